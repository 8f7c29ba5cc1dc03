package domain

// Verdict is the judgment model's final call for a symbol.
type Verdict string

const (
	VerdictBuy  Verdict = "BUY"
	VerdictSell Verdict = "SELL"
	VerdictPass Verdict = "PASS"
)

// IsTrade returns true if the verdict opens a position.
func (v Verdict) IsTrade() bool {
	return v == VerdictBuy || v == VerdictSell
}

// Direction is the technical filter's suggested side. Unlike a Verdict it
// can be NEUTRAL, which hard-fails the sentiment stage.
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
)

// Decision is the structured record recovered from the judgment model's
// raw text. Numeric fields default to zero when a field cannot be
// recovered; Verdict defaults to PASS. Downstream arithmetic never sees
// a null or garbage numeric.
type Decision struct {
	Verdict          Verdict
	Confidence       int // 0..100, model's self-reported certainty
	EntryPrice       float64
	StopLoss         float64
	TakeProfit       float64
	RiskReward       float64
	RiskScore        int // 1..10
	Timeframe        string
	ExpectedDuration string
	Reasoning        string
}

// TechnicalResult is the first-stage filter's output. Pure function of
// the snapshot's bars, no state.
type TechnicalResult struct {
	Pass      bool
	Score     int // 0..100, the winning side's score
	BuyScore  int
	SellScore int
	Direction Direction
	RSI       float64
	MACD      string // BULLISH | BEARISH | NEUTRAL
	TrendH1   string
	TrendH4   string
	TrendD1   string
	VolumeHot bool // volume above the spike multiplier
	Reason    string
}

// SentimentResult is the second-stage filter's output.
type SentimentResult struct {
	Pass      bool
	Sentiment float64 // -100..100 aggregate
	News      []NewsItem
	Reason    string
}
