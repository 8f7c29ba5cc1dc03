package signal_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/sniperbot/internal/domain"
	"github.com/alejandrodnm/sniperbot/internal/signal"
)

// series genera velas horarias con los cierres dados y volumen 1000; la
// última vela lleva el volumen indicado.
func series(closes []float64, lastVolume float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	start := time.Now().UTC().Add(-time.Duration(len(closes)) * time.Hour)
	for i, c := range closes {
		out[i] = domain.Candle{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   c,
			High:   c + 0.0002,
			Low:    c - 0.0002,
			Close:  c,
			Volume: 1000,
		}
	}
	out[len(out)-1].Volume = lastVolume
	return out
}

func rampUp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		x := float64(i)
		out[i] = 1.0 + 0.0004*x + 0.000004*x*x
	}
	return out
}

func rampDown(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		x := float64(i)
		out[i] = 1.5 - 0.0004*x - 0.000004*x*x
	}
	return out
}

func snapshot(bars []domain.Candle) domain.MarketSnapshot {
	price := 1.0
	if len(bars) > 0 {
		price = bars[len(bars)-1].Close
	}
	return domain.MarketSnapshot{
		Symbol:       "EURUSD=X",
		CurrentPrice: price,
		Bars: map[domain.Timeframe][]domain.Candle{
			domain.TFH1: bars,
			domain.TFH4: bars,
			domain.TFD1: bars,
		},
		FetchedAt: time.Now().UTC(),
	}
}

func TestEvaluateUptrendScoresBuy(t *testing.T) {
	tech := signal.NewTechnical(signal.DefaultTechnicalConfig())

	res := tech.Evaluate(snapshot(series(rampUp(250), 5000)))

	// MACD 25 + histograma 10 + tendencia 30 + volumen 15. El RSI de una
	// subida sin retrocesos satura en sobrecompra y puntúa al lado corto.
	assert.Equal(t, domain.DirectionBuy, res.Direction)
	assert.Equal(t, 80, res.Score)
	assert.Equal(t, 80, res.BuyScore)
	assert.Equal(t, 30, res.SellScore)
	assert.True(t, res.Pass)
	assert.Equal(t, "BULLISH", res.TrendH1)
	assert.Equal(t, "BULLISH", res.TrendH4)
	assert.Equal(t, "BULLISH", res.MACD)
	assert.True(t, res.VolumeHot)
	assert.Contains(t, res.Reason, "BUY score 80")
}

func TestEvaluateDowntrendScoresSell(t *testing.T) {
	tech := signal.NewTechnical(signal.DefaultTechnicalConfig())

	res := tech.Evaluate(snapshot(series(rampDown(250), 5000)))

	assert.Equal(t, domain.DirectionSell, res.Direction)
	assert.Equal(t, 80, res.Score)
	assert.True(t, res.Pass)
	assert.Equal(t, "BEARISH", res.TrendH1)
	assert.Equal(t, "BEARISH", res.MACD)
}

func TestEvaluateInsufficientHistory(t *testing.T) {
	tech := signal.NewTechnical(signal.DefaultTechnicalConfig())

	res := tech.Evaluate(snapshot(series(rampUp(30), 1000)))

	assert.False(t, res.Pass)
	assert.Equal(t, domain.DirectionNeutral, res.Direction)
	assert.Equal(t, "insufficient H1 history", res.Reason)
}

func TestEvaluateFlatMarketBelowMinimum(t *testing.T) {
	tech := signal.NewTechnical(signal.DefaultTechnicalConfig())

	closes := make([]float64, 250)
	for i := range closes {
		closes[i] = 1.0
	}
	res := tech.Evaluate(snapshot(series(closes, 1000)))

	assert.False(t, res.Pass)
	assert.Contains(t, res.Reason, "below minimum")
}

func TestEvaluateVolumeSpikeNeedsALeadingSide(t *testing.T) {
	tech := signal.NewTechnical(signal.DefaultTechnicalConfig())

	// Sin pico de volumen el mismo uptrend pierde el bonus de 15.
	res := tech.Evaluate(snapshot(series(rampUp(250), 1000)))

	assert.False(t, res.VolumeHot)
	assert.Equal(t, 65, res.Score)
	assert.False(t, res.Pass)
}

func TestIndicatorSanity(t *testing.T) {
	flat := make([]float64, 50)
	for i := range flat {
		flat[i] = 2.0
	}

	t.Run("ema of a constant is the constant", func(t *testing.T) {
		ema := signal.EMA(flat, 20)
		assert.InDelta(t, 2.0, ema[len(ema)-1], 1e-12)
	})

	t.Run("sma of a constant is the constant", func(t *testing.T) {
		sma := signal.SMA(flat, 20)
		assert.InDelta(t, 2.0, sma[len(sma)-1], 1e-12)
	})

	t.Run("rsi saturates on one-way series", func(t *testing.T) {
		up := rampUp(50)
		rsi := signal.RSI(up, 14)
		assert.InDelta(t, 100, rsi[len(rsi)-1], 1e-9)

		down := rampDown(50)
		rsi = signal.RSI(down, 14)
		assert.InDelta(t, 0, rsi[len(rsi)-1], 1e-9)
	})

	t.Run("macd of a constant is zero", func(t *testing.T) {
		macd, sig, hist := signal.MACD(flat, 12, 26, 9)
		assert.Zero(t, macd[len(macd)-1])
		assert.Zero(t, sig[len(sig)-1])
		assert.Zero(t, hist[len(hist)-1])
	})
}
