package domain

import "time"

// Outcome es el estado de un trade en el ledger de aprendizaje.
// PENDING es el único estado no terminal; no hay transiciones de salida
// desde un estado terminal.
type Outcome string

const (
	OutcomePending   Outcome = "PENDING"
	OutcomeWin       Outcome = "WIN"
	OutcomeLoss      Outcome = "LOSS"
	OutcomeBreakeven Outcome = "BREAKEVEN"
)

// IsTerminal devuelve true si el outcome ya no puede cambiar.
func (o Outcome) IsTerminal() bool {
	return o == OutcomeWin || o == OutcomeLoss || o == OutcomeBreakeven
}

// PendingTrade es una fila del historial de trades. Append-only: las filas
// nunca se borran, solo se crean PENDING y se cierran a un estado terminal.
type PendingTrade struct {
	ID             int64
	Symbol         string
	Direction      Verdict // BUY o SELL
	EntryPrice     float64
	StopLoss       float64
	TakeProfit     float64
	PositionSize   float64
	TechnicalScore int
	NewsSentiment  float64
	Confidence     int
	Reasoning      string
	Outcome        Outcome
	ProfitPips     float64
	ProfitAmount   float64
	ClosePrice     float64
	CloseTime      *time.Time
	TrendH1        string
	TrendH4        string
	TrendD1        string
	RSIValue       float64
	MACDSignal     string
	CreatedAt      time.Time
}

// AgeAt devuelve cuánto tiempo lleva abierto el trade en el instante dado.
func (t PendingTrade) AgeAt(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}

// EntryCooldown bloquea la re-entrada en un símbolo cerca de un precio
// recién cerrado. Se consulta antes de abrir y expira por tiempo.
type EntryCooldown struct {
	Symbol       string
	BlockedPrice float64
	BlockedFrom  time.Time
	BlockedUntil time.Time
	Tolerance    float64
	Reason       string
}

// Active devuelve true si el cooldown sigue vigente en el instante dado.
func (c EntryCooldown) Active(now time.Time) bool {
	return now.Before(c.BlockedUntil)
}

// Blocks devuelve true si el precio propuesto cae dentro de la tolerancia
// del precio bloqueado.
func (c EntryCooldown) Blocks(price float64) bool {
	diff := price - c.BlockedPrice
	if diff < 0 {
		diff = -diff
	}
	return diff <= c.Tolerance
}
