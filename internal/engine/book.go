package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/sniperbot/internal/adapters/storage"
	"github.com/alejandrodnm/sniperbot/internal/domain"
	"github.com/alejandrodnm/sniperbot/internal/ports"
)

// Book is the simulated position book: the balance-accounting view of the
// trades the audit ledger records. Every open position mirrors a PENDING
// ledger row and the two always close together through a single
// transaction (storage.CloseTradeTx).
//
// The book does not enforce the balance check on Open — the orchestrator
// decides ordering across candidate trades in one pass and checks free
// balance first.
type Book struct {
	store    *storage.Store
	log      *slog.Logger
	balance  float64 // starting virtual balance
	leverage float64
	open     []domain.SimulatedPosition
}

// OpenSpec describes the position to open. LedgerID links the ledger row.
type OpenSpec struct {
	LedgerID   int64
	Symbol     string
	Direction  domain.Verdict
	Lot        float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
}

// NewBook loads the open positions from storage so a restart resumes the
// book where it left off.
func NewBook(ctx context.Context, store *storage.Store, balance, leverage float64, log *slog.Logger) (*Book, error) {
	open, err := store.OpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.NewBook: load open positions: %w", err)
	}
	return &Book{
		store:    store,
		log:      log.With("component", "book"),
		balance:  balance,
		leverage: leverage,
		open:     open,
	}, nil
}

// Open creates and persists a new OPEN position.
func (b *Book) Open(ctx context.Context, spec OpenSpec) (domain.SimulatedPosition, error) {
	notional := domain.Notional(spec.Symbol, spec.Lot, spec.EntryPrice)
	p := domain.SimulatedPosition{
		ID:             uuid.NewString(),
		LedgerID:       spec.LedgerID,
		Symbol:         spec.Symbol,
		Direction:      spec.Direction,
		Lot:            spec.Lot,
		EntryPrice:     spec.EntryPrice,
		StopLoss:       spec.StopLoss,
		TakeProfit:     spec.TakeProfit,
		Leverage:       b.leverage,
		NotionalUSD:    notional,
		MarginRequired: notional / b.leverage,
		Status:         domain.PositionOpen,
		CurrentPrice:   spec.EntryPrice,
		OpenedAt:       time.Now().UTC(),
	}
	if err := b.store.SavePosition(ctx, p); err != nil {
		return domain.SimulatedPosition{}, fmt.Errorf("engine.Book.Open: %w", err)
	}
	b.open = append(b.open, p)
	b.log.Info("position opened",
		"symbol", p.Symbol, "direction", p.Direction, "lot", p.Lot,
		"entry", p.EntryPrice, "margin", p.MarginRequired)
	return p, nil
}

// HasOpen returns true if the book holds an open position for the symbol.
func (b *Book) HasOpen(symbol string) bool {
	for _, p := range b.open {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

// OpenCount returns the number of open positions.
func (b *Book) OpenCount() int {
	return len(b.open)
}

// Positions returns a copy of the open positions.
func (b *Book) Positions() []domain.SimulatedPosition {
	out := make([]domain.SimulatedPosition, len(b.open))
	copy(out, b.open)
	return out
}

// MarginCommitted returns the margin locked by open positions.
func (b *Book) MarginCommitted() float64 {
	var total float64
	for _, p := range b.open {
		total += p.MarginRequired
	}
	return total
}

// FreeBalance returns the balance available for new positions: starting
// balance plus realized P&L minus committed margin.
func (b *Book) FreeBalance(ctx context.Context) (float64, error) {
	realized, err := b.store.RealizedTotal(ctx)
	if err != nil {
		return 0, fmt.Errorf("engine.Book.FreeBalance: %w", err)
	}
	return b.balance + realized - b.MarginCommitted(), nil
}

// Refresh re-marks every open position at the provider's current price.
// A missing price skips that position, keeping its prior mark; one
// symbol's outage never fails the whole refresh.
func (b *Book) Refresh(ctx context.Context, md ports.MarketData) {
	for i := range b.open {
		p := &b.open[i]
		price, err := md.CurrentPrice(ctx, p.Symbol)
		if err != nil || price <= 0 {
			b.log.Debug("refresh skipped, no price", "symbol", p.Symbol, "err", err)
			continue
		}
		p.CurrentPrice = price
		p.UnrealizedUSD = p.PnL(price)
		if p.MarginRequired > 0 {
			p.UnrealizedPct = p.UnrealizedUSD / p.MarginRequired * 100
		}
		if err := b.store.MarkPosition(ctx, p.ID, price, p.UnrealizedUSD, p.UnrealizedPct); err != nil {
			b.log.Warn("failed to persist mark", "symbol", p.Symbol, "err", err)
		}
	}
}

// Crossed returns the open positions whose current mark already crossed
// their take-profit or stop-loss, with the level that was hit.
func (b *Book) Crossed() []domain.SimulatedPosition {
	var out []domain.SimulatedPosition
	for _, p := range b.open {
		if p.CurrentPrice <= 0 {
			continue
		}
		if levelCrossed(p, p.CurrentPrice) {
			out = append(out, p)
		}
	}
	return out
}

// Close settles the position and its ledger row in one transaction, and
// removes it from the in-memory book. Returns the classified outcome.
func (b *Book) Close(ctx context.Context, positionID string, closePrice float64) (domain.Outcome, error) {
	idx := -1
	for i, p := range b.open {
		if p.ID == positionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", fmt.Errorf("engine.Book.Close: position %s not open", positionID)
	}
	p := b.open[idx]

	outcome, pips := ClassifyOutcome(p.Symbol, p.Direction, p.EntryPrice, closePrice)
	realized := p.PnL(closePrice)

	if err := b.store.CloseTradeTx(ctx, p.ID, p.LedgerID, outcome, closePrice, realized, pips, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("engine.Book.Close: %w", err)
	}

	b.open = append(b.open[:idx], b.open[idx+1:]...)
	b.log.Info("position closed",
		"symbol", p.Symbol, "outcome", outcome, "close", closePrice,
		"pips", pips, "realized", realized)
	return outcome, nil
}

// Summary aggregates the book for display and balance accounting.
func (b *Book) Summary(ctx context.Context) (domain.BookSummary, error) {
	s := domain.BookSummary{CountOpen: len(b.open)}
	for _, p := range b.open {
		s.TotalNotionalUSD += p.NotionalUSD
		s.TotalMarginUSD += p.MarginRequired
		s.TotalUnrealizedUSD += p.UnrealizedUSD
	}
	if s.TotalMarginUSD > 0 {
		s.TotalUnrealizedPct = s.TotalUnrealizedUSD / s.TotalMarginUSD * 100
	}

	realized, err := b.store.RealizedTotal(ctx)
	if err != nil {
		return s, fmt.Errorf("engine.Book.Summary: %w", err)
	}
	closed, err := b.store.ClosedCount(ctx)
	if err != nil {
		return s, fmt.Errorf("engine.Book.Summary: %w", err)
	}
	s.TotalRealizedUSD = realized
	s.CountClosed = closed
	return s, nil
}

// ClassifyOutcome computes the ledger outcome for a close: profit in pips
// by instrument convention, with anything inside ±1 pip a BREAKEVEN.
func ClassifyOutcome(symbol string, direction domain.Verdict, entry, closePrice float64) (domain.Outcome, float64) {
	diff := closePrice - entry
	if direction == domain.VerdictSell {
		diff = -diff
	}
	pips := diff * domain.PipScale(symbol)

	switch {
	case math.Abs(pips) <= 1:
		return domain.OutcomeBreakeven, pips
	case pips > 0:
		return domain.OutcomeWin, pips
	default:
		return domain.OutcomeLoss, pips
	}
}

// levelCrossed reports whether price has reached the position's TP or SL.
func levelCrossed(p domain.SimulatedPosition, price float64) bool {
	if p.Direction == domain.VerdictBuy {
		return (p.TakeProfit > 0 && price >= p.TakeProfit) || (p.StopLoss > 0 && price <= p.StopLoss)
	}
	return (p.TakeProfit > 0 && price <= p.TakeProfit) || (p.StopLoss > 0 && price >= p.StopLoss)
}
