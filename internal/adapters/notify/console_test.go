package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sniperbot/internal/adapters/notify"
	"github.com/alejandrodnm/sniperbot/internal/domain"
)

func makeSignal(symbol string, verdict domain.Verdict, conf int, tradeable bool) domain.Signal {
	return domain.Signal{
		ID:         "test-id",
		Symbol:     symbol,
		Verdict:    verdict,
		Confidence: conf,
		Presented:  conf,
		EntryPrice: 1.08542,
		StopLoss:   1.07456,
		TakeProfit: 1.10171,
		Lot:        9.21,
		RiskReward: 1.5,
		Reason:     "momentum alcista confirmado",
		Tradeable:  tradeable,
		CreatedAt:  time.Now(),
	}
}

func TestConsoleNotifyTable(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	signals := []domain.Signal{
		makeSignal("EURUSD=X", domain.VerdictBuy, 85, true),
		makeSignal("GC=F", domain.VerdictPass, 40, false),
	}

	err := n.Notify(context.Background(), signals)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "EURUSD=X")
	assert.Contains(t, out, "GC=F")
	assert.Contains(t, out, "85%")
	assert.Contains(t, out, "BUY:1")
}

func TestConsoleNotifyEmpty(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	err := n.Notify(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "no signals this pass")
}

func TestConsoleNotifyCompact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	signals := []domain.Signal{
		makeSignal("GBPUSD=X", domain.VerdictSell, 72, true),
	}

	err := n.Notify(context.Background(), signals)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "SELL:1")
	assert.Contains(t, out, "GBPUSD=X")
}

func TestConsoleNotifyBook(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	positions := []domain.SimulatedPosition{
		{
			Symbol:        "EURUSD=X",
			Direction:     domain.VerdictBuy,
			Lot:           9.21,
			EntryPrice:    1.08542,
			CurrentPrice:  1.08901,
			StopLoss:      1.07456,
			TakeProfit:    1.10171,
			UnrealizedUSD: 0.03,
			UnrealizedPct: 33.06,
			OpenedAt:      time.Now().Add(-2 * time.Hour),
		},
	}
	summary := domain.BookSummary{
		CountOpen:          1,
		TotalNotionalUSD:   10.03,
		TotalMarginUSD:     0.10,
		TotalUnrealizedUSD: 0.03,
		TotalUnrealizedPct: 33.06,
	}

	err := n.NotifyBook(context.Background(), positions, summary)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "1 open")
	assert.Contains(t, out, "EURUSD=X")
	assert.Contains(t, out, "+0.03")
}

func TestConsoleNotifyBookEmpty(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	err := n.NotifyBook(context.Background(), nil, domain.BookSummary{TotalRealizedUSD: 12.5})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "no open positions")
}
