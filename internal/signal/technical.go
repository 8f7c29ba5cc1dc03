package signal

import (
	"fmt"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// TechnicalConfig controla los umbrales del filtro técnico.
type TechnicalConfig struct {
	MinScore         int
	RSIPeriod        int
	RSIOversold      float64
	RSIOverbought    float64
	MACDFast         int
	MACDSlow         int
	MACDSignal       int
	EMAFast          int
	EMAMid           int
	EMASlow          int
	VolumeMultiplier float64
	VolumePeriod     int
}

// DefaultTechnicalConfig devuelve los umbrales estándar del filtro.
func DefaultTechnicalConfig() TechnicalConfig {
	return TechnicalConfig{
		MinScore:         70,
		RSIPeriod:        14,
		RSIOversold:      30,
		RSIOverbought:    70,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		EMAFast:          20,
		EMAMid:           50,
		EMASlow:          200,
		VolumeMultiplier: 1.5,
		VolumePeriod:     20,
	}
}

// Scoring por componente. Los pesos suman 100 para el lado que acierta todo:
// RSI 30, cruce MACD 25 + histograma 10, alineación de tendencia 30
// (mayoría 2/3 da 15), y el pico de volumen suma 15 de bonus al lado líder.
const (
	scoreRSI        = 30
	scoreMACDCross  = 25
	scoreMACDHist   = 10
	scoreTrendAll   = 30
	scoreTrendMajor = 15
	scoreVolume     = 15
)

// Technical es el filtro de la primera etapa: función pura sobre las velas
// del snapshot, sin estado.
type Technical struct {
	cfg TechnicalConfig
}

// NewTechnical crea el filtro con la configuración dada.
func NewTechnical(cfg TechnicalConfig) *Technical {
	return &Technical{cfg: cfg}
}

// Evaluate puntúa el snapshot y decide si pasa el filtro.
func (t *Technical) Evaluate(snap domain.MarketSnapshot) domain.TechnicalResult {
	h1 := closes(snap.BarsFor(domain.TFH1))
	if len(h1) < t.cfg.MACDSlow+t.cfg.MACDSignal {
		return domain.TechnicalResult{
			Direction: domain.DirectionNeutral,
			Reason:    "insufficient H1 history",
		}
	}

	var buy, sell int
	res := domain.TechnicalResult{Direction: domain.DirectionNeutral}

	// RSI sobre H1
	res.RSI = last(RSI(h1, t.cfg.RSIPeriod))
	switch {
	case res.RSI > 0 && res.RSI < t.cfg.RSIOversold:
		buy += scoreRSI
	case res.RSI > t.cfg.RSIOverbought:
		sell += scoreRSI
	}

	// Cruce MACD + histograma sobre H1
	macd, sig, hist := MACD(h1, t.cfg.MACDFast, t.cfg.MACDSlow, t.cfg.MACDSignal)
	switch {
	case last(macd) > last(sig):
		res.MACD = "BULLISH"
		buy += scoreMACDCross
	case last(macd) < last(sig):
		res.MACD = "BEARISH"
		sell += scoreMACDCross
	default:
		res.MACD = "NEUTRAL"
	}
	if h := last(hist); h > 0 {
		buy += scoreMACDHist
	} else if h < 0 {
		sell += scoreMACDHist
	}

	// Tendencia por apilamiento de EMAs en tres timeframes
	res.TrendH1 = t.trend(h1)
	res.TrendH4 = t.trend(closes(snap.BarsFor(domain.TFH4)))
	res.TrendD1 = t.trend(closes(snap.BarsFor(domain.TFD1)))

	bulls, bears := countTrends(res.TrendH1, res.TrendH4, res.TrendD1)
	switch {
	case bulls == 3:
		buy += scoreTrendAll
	case bulls == 2:
		buy += scoreTrendMajor
	}
	switch {
	case bears == 3:
		sell += scoreTrendAll
	case bears == 2:
		sell += scoreTrendMajor
	}

	// Pico de volumen: bonus al lado que va ganando
	res.VolumeHot = t.volumeSpike(snap.BarsFor(domain.TFH1))
	if res.VolumeHot {
		if buy > sell {
			buy += scoreVolume
		} else if sell > buy {
			sell += scoreVolume
		}
	}

	res.BuyScore, res.SellScore = buy, sell
	switch {
	case buy > sell:
		res.Direction = domain.DirectionBuy
		res.Score = buy
	case sell > buy:
		res.Direction = domain.DirectionSell
		res.Score = sell
	default:
		res.Direction = domain.DirectionNeutral
		res.Score = buy
	}

	res.Pass = res.Score >= t.cfg.MinScore && res.Direction != domain.DirectionNeutral
	if res.Pass {
		res.Reason = fmt.Sprintf("%s score %d (buy %d / sell %d)", res.Direction, res.Score, buy, sell)
	} else {
		res.Reason = fmt.Sprintf("score %d below minimum %d", res.Score, t.cfg.MinScore)
	}
	return res
}

// trend clasifica la serie por apilamiento precio/EMA20/EMA50 (y EMA200
// si hay histórico suficiente).
func (t *Technical) trend(closes []float64) string {
	if len(closes) < t.cfg.EMAMid {
		return "NEUTRAL"
	}
	price := last(closes)
	fast := last(EMA(closes, t.cfg.EMAFast))
	mid := last(EMA(closes, t.cfg.EMAMid))

	bull := price > fast && fast > mid
	bear := price < fast && fast < mid

	if len(closes) >= t.cfg.EMASlow {
		slow := last(EMA(closes, t.cfg.EMASlow))
		bull = bull && mid > slow
		bear = bear && mid < slow
	}

	switch {
	case bull:
		return "BULLISH"
	case bear:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}

func (t *Technical) volumeSpike(bars []domain.Candle) bool {
	if len(bars) < t.cfg.VolumePeriod+1 {
		return false
	}
	vols := make([]float64, len(bars))
	for i, b := range bars {
		vols[i] = b.Volume
	}
	avg := last(SMA(vols[:len(vols)-1], t.cfg.VolumePeriod))
	return avg > 0 && last(vols) > avg*t.cfg.VolumeMultiplier
}

func countTrends(trends ...string) (bulls, bears int) {
	for _, tr := range trends {
		switch tr {
		case "BULLISH":
			bulls++
		case "BEARISH":
			bears++
		}
	}
	return
}

func closes(bars []domain.Candle) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
