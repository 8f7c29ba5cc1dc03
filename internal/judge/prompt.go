package judge

import (
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// SystemPrompt anchors the model to the JSON schema the parser expects.
// The schema keys are Turkish, matching the deployed prompt set; the
// parser accepts both Turkish and English keys.
const SystemPrompt = `Sen deneyimli bir trading analistisin. Sana verilen teknik ve temel verileri degerlendirip SADECE asagidaki JSON formatinda cevap ver. JSON disinda hicbir metin yazma.

{
  "karar": "AL | SAT | BEKLE",
  "guven": 0-100,
  "giris_fiyati": 0.0,
  "zarar_kes": 0.0,
  "kar_al": 0.0,
  "risk_odul_orani": 0.0,
  "risk_skoru": 1-10,
  "analiz_vadesi": "H1 | H4 | D1",
  "beklenen_sure": "ornek: 4-8 saat",
  "neden": "kisa gerekce"
}`

// Context carries everything the decision prompt presents to the model.
type Context struct {
	Symbol    string
	Price     float64
	Technical domain.TechnicalResult
	Sentiment domain.SentimentResult
	Calendar  []domain.CalendarEvent
}

// BuildDecisionPrompt renders the per-symbol analysis prompt.
func BuildDecisionPrompt(c Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "SEMBOL: %s\nGUNCEL FIYAT: %.5f\n\n", c.Symbol, c.Price)

	fmt.Fprintf(&b, "TEKNIK ANALIZ (skor %d/100, yon %s):\n", c.Technical.Score, c.Technical.Direction)
	fmt.Fprintf(&b, "- RSI(14): %.1f\n", c.Technical.RSI)
	fmt.Fprintf(&b, "- MACD: %s\n", c.Technical.MACD)
	fmt.Fprintf(&b, "- Trend H1/H4/D1: %s / %s / %s\n", c.Technical.TrendH1, c.Technical.TrendH4, c.Technical.TrendD1)
	if c.Technical.VolumeHot {
		b.WriteString("- Hacim: ortalamanin uzerinde\n")
	}

	fmt.Fprintf(&b, "\nHABER DUYARLILIGI: %.1f (-100..100)\n", c.Sentiment.Sentiment)
	for _, n := range c.Sentiment.News {
		fmt.Fprintf(&b, "- [%s] %s (%.0f)\n", n.Impact, n.Title, n.Sentiment)
	}

	if len(c.Calendar) > 0 {
		b.WriteString("\nYAKLASAN EKONOMIK TAKVIM:\n")
		for _, ev := range c.Calendar {
			fmt.Fprintf(&b, "- %s %s: %s [%s]\n", ev.Time.Format(time.RFC822), ev.Country, ev.Name, ev.Impact)
		}
	}

	b.WriteString("\nBu verilerle karar ver ve SADECE JSON cevapla.")
	return b.String()
}

// BuildSelfAssessmentPrompt is the escalation prompt used after repeated
// zero-confidence answers: it asks the model to re-derive the decision
// from first principles instead of echoing the schema.
func BuildSelfAssessmentPrompt(c Context, zeroStreak int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Son %d analizde guven skorun 0 cikti. Bu gercekci degil.\n", zeroStreak)
	b.WriteString("Asagidaki veriyi bastan degerlendir. Teknik skor ve haber duyarliligini kendi basina tart, ")
	b.WriteString("her alanı tek tek doldur ve guven skorunu gerekcelendir. SADECE JSON cevapla.\n\n")
	b.WriteString(BuildDecisionPrompt(c))
	return b.String()
}
