package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

const buyResponse = `{
  "karar": "AL",
  "guven": 85,
  "giris_fiyati": 1.0854,
  "zarar_kes": 1.0746,
  "kar_al": 1.1017,
  "neden": "momentum alcista con volumen creciente"
}`

const lowConfidenceResponse = `{"karar": "AL", "guven": 40, "neden": "seyrek teyit"}`

func TestRunOnceOpensTradeableSignal(t *testing.T) {
	market := &fakeMarket{
		prices: map[string]float64{"EURUSD=X": 1.0854},
		bars:   map[string][]domain.Candle{"EURUSD=X": uptrendBars(250)},
	}
	judge := &fakeJudge{responses: []string{buyResponse}}
	orch, store, book := newOrchestrator(t, testConfig("EURUSD=X"), market, judge)

	signals := orch.RunOnce(context.Background())

	require.Len(t, signals, 1)
	sig := signals[0]
	assert.True(t, sig.Tradeable)
	assert.Equal(t, domain.VerdictBuy, sig.Verdict)
	assert.Equal(t, 85, sig.Confidence)
	assert.Equal(t, 85, sig.Presented)
	assert.InDelta(t, 1.0854, sig.EntryPrice, 1e-9)
	assert.InDelta(t, 1.0746, sig.StopLoss, 1e-9)
	assert.InDelta(t, 1.1017, sig.TakeProfit, 1e-9)
	assert.InDelta(t, 9.21, sig.Lot, 1e-9)
	assert.InDelta(t, 1.51, sig.RiskReward, 1e-9)
	assert.Equal(t, 1, judge.calls)

	// El trade queda en el libro, en el ledger y en el feed.
	assert.Equal(t, 1, book.OpenCount())
	assert.True(t, book.HasOpen("EURUSD=X"))

	pending, err := store.PendingTrades(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "EURUSD=X", pending[0].Symbol)
	assert.Equal(t, 80, pending[0].TechnicalScore)

	feed, err := store.LatestSignals(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.True(t, feed[0].Tradeable)
}

func TestRunOnceSkipsSymbolWithOpenPosition(t *testing.T) {
	market := &fakeMarket{
		prices: map[string]float64{"EURUSD=X": 1.0854},
		bars:   map[string][]domain.Candle{"EURUSD=X": uptrendBars(250)},
	}
	judge := &fakeJudge{responses: []string{buyResponse}}
	orch, _, book := newOrchestrator(t, testConfig("EURUSD=X"), market, judge)

	first := orch.RunOnce(context.Background())
	require.Len(t, first, 1)
	require.Equal(t, 1, book.OpenCount())

	// Con la posición abierta el símbolo ni llega al modelo.
	second := orch.RunOnce(context.Background())
	assert.Empty(t, second)
	assert.Equal(t, 1, judge.calls)
}

func TestRunOnceRetriesLowConfidence(t *testing.T) {
	cfg := testConfig("EURUSD=X")
	cfg.MaxRetries = 3

	market := &fakeMarket{
		prices: map[string]float64{"EURUSD=X": 1.0854},
		bars:   map[string][]domain.Candle{"EURUSD=X": uptrendBars(250)},
	}
	judge := &fakeJudge{responses: []string{lowConfidenceResponse}}
	orch, _, book := newOrchestrator(t, cfg, market, judge)

	signals := orch.RunOnce(context.Background())

	assert.Equal(t, 3, judge.calls)
	require.Len(t, signals, 1)
	assert.False(t, signals[0].Tradeable)
	assert.Equal(t, 40, signals[0].Confidence)
	assert.Contains(t, signals[0].Reason, "confidence 40 below minimum 70")
	assert.Equal(t, 0, book.OpenCount())
}

func TestRunOnceTechnicalFailSkipsJudge(t *testing.T) {
	market := &fakeMarket{
		prices: map[string]float64{"EURUSD=X": 1.0},
		bars:   map[string][]domain.Candle{"EURUSD=X": flatBars(250)},
	}
	judge := &fakeJudge{}
	orch, _, _ := newOrchestrator(t, testConfig("EURUSD=X"), market, judge)

	signals := orch.RunOnce(context.Background())

	assert.Equal(t, 0, judge.calls)
	require.Len(t, signals, 1)
	assert.False(t, signals[0].Tradeable)
	assert.Contains(t, signals[0].Reason, "below minimum")
	// El suelo cosmético de confianza presentada.
	assert.Equal(t, 10, signals[0].Presented)
	assert.Equal(t, 0, signals[0].Confidence)
}

func TestRunOnceJudgeFailureDegradesToWait(t *testing.T) {
	market := &fakeMarket{
		prices: map[string]float64{"EURUSD=X": 1.0854},
		bars:   map[string][]domain.Candle{"EURUSD=X": uptrendBars(250)},
	}
	judge := &fakeJudge{err: errors.New("model timeout")}
	orch, _, book := newOrchestrator(t, testConfig("EURUSD=X"), market, judge)

	signals := orch.RunOnce(context.Background())

	require.Len(t, signals, 1)
	assert.False(t, signals[0].Tradeable)
	assert.Contains(t, signals[0].Reason, "confidence 0 below minimum 70")
	assert.Equal(t, 0, book.OpenCount())
}

func TestRunOnceMissingPriceSkipsSymbol(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{}}
	judge := &fakeJudge{}
	orch, _, _ := newOrchestrator(t, testConfig("EURUSD=X"), market, judge)

	signals := orch.RunOnce(context.Background())

	assert.Empty(t, signals)
	assert.Equal(t, 0, judge.calls)
}

func TestRunOncePanicDoesNotKillThePass(t *testing.T) {
	market := &fakeMarket{
		prices: map[string]float64{"EURUSD=X": 1.0854, "GBPUSD=X": 1.2710},
		bars: map[string][]domain.Candle{
			"EURUSD=X": uptrendBars(250),
			"GBPUSD=X": uptrendBars(250),
		},
	}
	judge := &fakeJudge{
		panicSymbol: "EURUSD=X",
		responses: []string{`{
		  "karar": "AL",
		  "guven": 80,
		  "giris_fiyati": 1.2710,
		  "zarar_kes": 1.2583,
		  "kar_al": 1.2901,
		  "neden": "ruptura confirmada"
		}`},
	}
	orch, _, book := newOrchestrator(t, testConfig("EURUSD=X", "GBPUSD=X"), market, judge)

	signals := orch.RunOnce(context.Background())

	require.Len(t, signals, 1)
	assert.Equal(t, "GBPUSD=X", signals[0].Symbol)
	assert.True(t, signals[0].Tradeable)
	assert.True(t, book.HasOpen("GBPUSD=X"))
	assert.False(t, book.HasOpen("EURUSD=X"))
}

func TestZeroStreakEscalatesToSelfAssessment(t *testing.T) {
	market := &fakeMarket{
		prices: map[string]float64{"EURUSD=X": 1.0854},
		bars:   map[string][]domain.Candle{"EURUSD=X": uptrendBars(250)},
	}
	// Siempre confianza cero: tres ciclos arman la autoevaluación, que
	// también devuelve cero y cede al heurístico local.
	judge := &fakeJudge{}
	orch, _, book := newOrchestrator(t, testConfig("EURUSD=X"), market, judge)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		signals := orch.RunOnce(ctx)
		require.Len(t, signals, 1)
		assert.False(t, signals[0].Tradeable)
		assert.Equal(t, 0, judge.selfCalls)
	}

	signals := orch.RunOnce(ctx)
	require.Len(t, signals, 1)
	sig := signals[0]

	assert.Equal(t, 1, judge.selfCalls)
	assert.Equal(t, 3, judge.calls)

	// Heurístico: técnica 80 y sentimiento neutro promedian 65 y abren
	// de todas formas — el fallback no pasa por el umbral del modelo.
	assert.True(t, sig.Tradeable)
	assert.Equal(t, 65, sig.Confidence)
	assert.True(t, strings.HasPrefix(sig.Reason, "Heuristic:"), "reason %q", sig.Reason)
	assert.Equal(t, 1, book.OpenCount())
}

func TestSelfAssessmentCanRescueTheDecision(t *testing.T) {
	market := &fakeMarket{
		prices: map[string]float64{"EURUSD=X": 1.0854},
		bars:   map[string][]domain.Candle{"EURUSD=X": uptrendBars(250)},
	}
	judge := &fakeJudge{selfAssess: []string{buyResponse}}
	orch, _, book := newOrchestrator(t, testConfig("EURUSD=X"), market, judge)
	ctx := context.Background()

	orch.RunOnce(ctx)
	orch.RunOnce(ctx)
	signals := orch.RunOnce(ctx)

	require.Len(t, signals, 1)
	assert.Equal(t, 1, judge.selfCalls)
	assert.True(t, signals[0].Tradeable)
	assert.Equal(t, 85, signals[0].Confidence)
	assert.True(t, book.HasOpen("EURUSD=X"))
}

func TestReconcileClosesCrossedPendingTrades(t *testing.T) {
	market := &fakeMarket{
		prices: map[string]float64{
			"EURUSD=X": 1.1050, // por encima de su TP
			"AUDUSD=X": 0.6650, // entre niveles
		},
		priceErr: map[string]error{"GBPUSD=X": errors.New("no quote")},
	}
	orch, store, book := newOrchestrator(t, testConfig(), market, &fakeJudge{})
	ctx := context.Background()

	logPending := func(symbol string, entry, sl, tp, lot float64) {
		t.Helper()
		_, err := store.LogTrade(ctx, domain.PendingTrade{
			Symbol:       symbol,
			Direction:    domain.VerdictBuy,
			EntryPrice:   entry,
			StopLoss:     sl,
			TakeProfit:   tp,
			PositionSize: lot,
			Confidence:   80,
			Reasoning:    "test",
			CreatedAt:    time.Now().UTC(),
		}, 0.001)
		require.NoError(t, err)
	}
	logPending("EURUSD=X", 1.0800, 1.0700, 1.1000, 9.26)
	logPending("GBPUSD=X", 1.2700, 1.2600, 1.2900, 7.87)
	logPending("AUDUSD=X", 0.6600, 0.6500, 0.6800, 15.15)

	sum := orch.Reconcile(ctx)

	assert.Equal(t, 3, sum.Checked)
	assert.Equal(t, 1, sum.Closed)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Errors)

	pending, err := store.PendingTrades(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	realized, err := store.RealizedTotal(ctx)
	require.NoError(t, err)
	assert.InDelta(t, (1.1050-1.0800)*9.26, realized, 1e-9)

	// El P&L de un cierre sin espejo en el libro también entra en el
	// balance libre.
	free, err := book.FreeBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100+(1.1050-1.0800)*9.26, free, 1e-9)
}

func TestRunOnceForceClosesAgedTrades(t *testing.T) {
	cfg := testConfig()
	cfg.ForceCloseAge = 48 * time.Hour

	market := &fakeMarket{prices: map[string]float64{"EURUSD=X": 1.0850}}
	orch, store, _ := newOrchestrator(t, cfg, market, &fakeJudge{})
	ctx := context.Background()

	_, err := store.LogTrade(ctx, domain.PendingTrade{
		Symbol:       "EURUSD=X",
		Direction:    domain.VerdictBuy,
		EntryPrice:   1.0800,
		StopLoss:     1.0700,
		TakeProfit:   1.1000,
		PositionSize: 5,
		Confidence:   80,
		Reasoning:    "test",
		CreatedAt:    time.Now().UTC().Add(-72 * time.Hour),
	}, 0.001)
	require.NoError(t, err)

	orch.RunOnce(ctx)

	pending, err := store.PendingTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	realized, err := store.RealizedTotal(ctx)
	require.NoError(t, err)
	assert.InDelta(t, (1.0850-1.0800)*5, realized, 1e-9)

	// El cierre forzado deja cooldown sobre el precio de cierre.
	allowed, reason, err := store.IsEntryAllowed(ctx, "EURUSD=X", 1.0850, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.NotEmpty(t, reason)

	allowed, _, err = store.IsEntryAllowed(ctx, "EURUSD=X", 1.2000, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRunOnceMonitorClosesCrossedPositions(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"EURUSD=X": 1.1050}}
	orch, store, book := newOrchestrator(t, testConfig(), market, &fakeJudge{})

	// TP en entry*1.015 = 1.10168: la marca 1.1050 lo cruza.
	openTestPosition(t, store, book, "EURUSD=X", 1.0854)

	orch.RunOnce(context.Background())

	assert.Equal(t, 0, book.OpenCount())
	closed, err := store.ClosedCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
}

func TestRunOnceRespectsMaxOpenPositions(t *testing.T) {
	cfg := testConfig("EURUSD=X")
	cfg.MaxOpenPositions = 1

	market := &fakeMarket{
		prices: map[string]float64{"EURUSD=X": 1.0854, "GBPUSD=X": 1.2710},
		bars:   map[string][]domain.Candle{"EURUSD=X": uptrendBars(250)},
	}
	judge := &fakeJudge{responses: []string{buyResponse}}
	orch, store, book := newOrchestrator(t, cfg, market, judge)

	// Libro ya lleno con otra posición.
	openTestPosition(t, store, book, "GBPUSD=X", 1.2710)

	signals := orch.RunOnce(context.Background())

	require.Len(t, signals, 1)
	assert.False(t, signals[0].Tradeable)
	assert.Contains(t, signals[0].Reason, "max open positions")
	assert.False(t, book.HasOpen("EURUSD=X"))
}

func TestRunDedupesWaitStatesAfterFirstPass(t *testing.T) {
	market := &fakeMarket{
		prices: map[string]float64{"EURUSD=X": 1.0854},
		bars:   map[string][]domain.Candle{"EURUSD=X": uptrendBars(250)},
	}
	judge := &fakeJudge{} // siempre confianza cero: estado de espera idéntico

	cfg := testConfig("EURUSD=X")
	cfg.Passes = 3
	cfg.Interval = time.Hour
	cfg.SelfAssessAfterZero = 10

	orch, store, _ := newOrchestrator(t, cfg, market, judge)

	// El juicio de la tercera pasada corta el bucle desde dentro.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	judge.cancelOn = 3
	judge.cancel = cancel

	require.NoError(t, orch.Run(ctx))
	assert.Equal(t, 3, judge.calls)

	// Solo la primera pasada publica el estado de espera; las siguientes
	// del mismo set ya deduplican.
	feed, err := store.LatestSignals(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Contains(t, feed[0].Reason, "below minimum")
}
