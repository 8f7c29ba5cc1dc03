package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime las señales de la pasada en el modo configurado.
func (c *Console) Notify(_ context.Context, signals []domain.Signal) error {
	if len(signals) == 0 {
		fmt.Fprintf(c.out, "[%s] no signals this pass\n", time.Now().Format("15:04:05"))
		return nil
	}

	if c.table {
		c.printFull(signals)
	} else {
		c.printCompact(signals)
	}
	return nil
}

// printCompact imprime lo esencial en una línea por pasada.
func (c *Console) printCompact(signals []domain.Signal) {
	now := time.Now().Format("15:04:05")
	buys, sells, waits := countByVerdict(signals)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d symbols → BUY:%d SELL:%d wait:%d", now, len(signals), buys, sells, waits)

	for _, sig := range signals {
		if !sig.Tradeable {
			continue
		}
		fmt.Fprintf(&sb, " | %s %s @%.5f conf:%d rr:%.2f",
			sig.Symbol, sig.Verdict, sig.EntryPrice, sig.Presented, sig.RiskReward)
	}

	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla completa de señales.
func (c *Console) printFull(signals []domain.Signal) {
	now := time.Now().Format("15:04:05")
	buys, sells, waits := countByVerdict(signals)

	fmt.Fprintf(c.out, "\n[%s] %d signals — BUY:%d SELL:%d wait:%d\n",
		now, len(signals), buys, sells, waits)

	table := tablewriter.NewWriter(c.out)
	table.Header("Symbol", "Verdict", "Conf", "Entry", "SL", "TP", "Lot", "R:R", "Reason")

	for _, sig := range signals {
		table.Append(
			sig.Symbol,
			string(sig.Verdict),
			fmt.Sprintf("%d%%", sig.Presented),
			priceLabel(sig.EntryPrice),
			priceLabel(sig.StopLoss),
			priceLabel(sig.TakeProfit),
			lotLabel(sig),
			rrLabel(sig),
			truncate(sig.Reason, 48),
		)
	}

	table.Render()
}

// NotifyBook imprime el libro de posiciones simuladas y su resumen.
func (c *Console) NotifyBook(_ context.Context, positions []domain.SimulatedPosition, summary domain.BookSummary) error {
	if len(positions) == 0 {
		fmt.Fprintf(c.out, "[%s][BOOK] no open positions | realized $%.2f\n",
			time.Now().Format("15:04:05"), summary.TotalRealizedUSD)
		return nil
	}

	if !c.table {
		c.printBookCompact(positions, summary)
		return nil
	}

	fmt.Fprintf(c.out, "\n=== SIMULATED BOOK — %d open ===\n", summary.CountOpen)

	table := tablewriter.NewWriter(c.out)
	table.Header("Symbol", "Dir", "Lot", "Entry", "Now", "SL", "TP", "uPnL$", "uPnL%", "Age")

	for _, pos := range positions {
		table.Append(
			pos.Symbol,
			string(pos.Direction),
			fmt.Sprintf("%.2f", pos.Lot),
			priceLabel(pos.EntryPrice),
			priceLabel(pos.CurrentPrice),
			priceLabel(pos.StopLoss),
			priceLabel(pos.TakeProfit),
			fmt.Sprintf("%+.2f", pos.UnrealizedUSD),
			fmt.Sprintf("%+.2f%%", pos.UnrealizedPct),
			ageLabel(pos.OpenedAt),
		)
	}

	table.Render()

	fmt.Fprintf(c.out, "  Notional $%.2f | Margin $%.2f | Unrealized %+.2f$ (%+.2f%%) | Realized %+.2f$\n",
		summary.TotalNotionalUSD, summary.TotalMarginUSD,
		summary.TotalUnrealizedUSD, summary.TotalUnrealizedPct, summary.TotalRealizedUSD)
	return nil
}

// printBookCompact imprime el libro en una línea.
func (c *Console) printBookCompact(positions []domain.SimulatedPosition, summary domain.BookSummary) {
	now := time.Now().Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s][BOOK] %d open | uPnL %+.2f$ | realized %+.2f$",
		now, summary.CountOpen, summary.TotalUnrealizedUSD, summary.TotalRealizedUSD)

	for _, pos := range positions {
		fmt.Fprintf(&sb, " | %s %s %+.2f$", pos.Symbol, pos.Direction, pos.UnrealizedUSD)
	}

	fmt.Fprintln(c.out, sb.String())
}

// --- helpers ---

func countByVerdict(signals []domain.Signal) (buys, sells, waits int) {
	for _, s := range signals {
		switch {
		case s.Tradeable && s.Verdict == domain.VerdictBuy:
			buys++
		case s.Tradeable && s.Verdict == domain.VerdictSell:
			sells++
		default:
			waits++
		}
	}
	return
}

func priceLabel(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.5f", v)
}

func lotLabel(sig domain.Signal) string {
	if !sig.Tradeable || sig.Lot <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", sig.Lot)
}

func rrLabel(sig domain.Signal) string {
	if !sig.Tradeable || sig.RiskReward <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", sig.RiskReward)
}

func ageLabel(opened time.Time) string {
	age := time.Since(opened)
	if age < time.Hour {
		return fmt.Sprintf("%dm", int(age.Minutes()))
	}
	if age < 48*time.Hour {
		return fmt.Sprintf("%.1fh", age.Hours())
	}
	return fmt.Sprintf("%.1fd", age.Hours()/24)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
