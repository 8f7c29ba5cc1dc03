package domain

import "time"

// Signal is one published entry of the dashboard feed: the outcome of a
// symbol's pipeline run, tradeable or not. Held/low-confidence/rejected
// outcomes are published too, with the reason, so the operator always
// sees why no trade was taken.
type Signal struct {
	ID         string // uuid
	Symbol     string
	Verdict    Verdict
	Confidence int // real model confidence
	Presented  int // max(Confidence, display floor) — cosmetic, see config
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Lot        float64
	RiskReward float64
	Reason     string
	Message    string // composed operator-facing text
	Tradeable  bool
	CreatedAt  time.Time
}

// IsWaitState returns true for signals that do not open a trade. Used by
// the feed to collapse consecutive identical wait entries per symbol.
func (s Signal) IsWaitState() bool {
	return !s.Tradeable
}
