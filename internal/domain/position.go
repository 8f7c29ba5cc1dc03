package domain

import "time"

// PositionStatus represents the lifecycle of a simulated position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// SimulatedPosition is one leg of the virtual balance book. It mirrors a
// PendingTrade row in the audit ledger: the two must always close together.
type SimulatedPosition struct {
	ID             string // uuid
	LedgerID       int64  // PendingTrade row this position mirrors
	Symbol         string
	Direction      Verdict
	Lot            float64
	EntryPrice     float64
	StopLoss       float64
	TakeProfit     float64
	Leverage       float64
	NotionalUSD    float64
	MarginRequired float64
	Status         PositionStatus
	CurrentPrice   float64
	UnrealizedUSD  float64
	UnrealizedPct  float64
	RealizedUSD    float64
	OpenedAt       time.Time
	ClosedAt       *time.Time
}

// Notional computes the currency value controlled by a position: lot
// scaled by the per-class contract size at the given price.
func Notional(symbol string, lot, price float64) float64 {
	return lot * ContractSize(symbol) * price
}

// PnL returns the direction-aware profit for the position at the given
// price, in account currency per unit of notional movement.
func (p SimulatedPosition) PnL(price float64) float64 {
	diff := price - p.EntryPrice
	if p.Direction == VerdictSell {
		diff = -diff
	}
	return diff * p.Lot * ContractSize(p.Symbol)
}

// BookSummary aggregates the book for display and balance accounting.
type BookSummary struct {
	CountOpen          int
	CountClosed        int
	TotalNotionalUSD   float64
	TotalMarginUSD     float64
	TotalUnrealizedUSD float64
	TotalUnrealizedPct float64
	TotalRealizedUSD   float64
}
