package engine_test

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sniperbot/internal/adapters/storage"
	"github.com/alejandrodnm/sniperbot/internal/domain"
	"github.com/alejandrodnm/sniperbot/internal/engine"
	"github.com/alejandrodnm/sniperbot/internal/risk"
	"github.com/alejandrodnm/sniperbot/internal/signal"
)

// fakeMarket sirve precios y velas fijos por símbolo. Un símbolo sin
// entrada devuelve error, igual que el proveedor real sin cotización.
type fakeMarket struct {
	prices   map[string]float64
	priceErr map[string]error
	bars     map[string][]domain.Candle
}

func (m *fakeMarket) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	if err := m.priceErr[symbol]; err != nil {
		return 0, err
	}
	p, ok := m.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", symbol)
	}
	return p, nil
}

func (m *fakeMarket) Bars(_ context.Context, symbol string, _ domain.Timeframe, _ int) ([]domain.Candle, error) {
	bars, ok := m.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("no bars for %s", symbol)
	}
	return bars, nil
}

// fakeJudge devuelve respuestas en orden; la última se repite. Las
// llamadas de autoevaluación se enrutan por el texto del prompt y se
// cuentan aparte.
type fakeJudge struct {
	responses   []string
	selfAssess  []string
	err         error
	panicSymbol string

	// cancel se dispara en la llamada número cancelOn: permite parar el
	// bucle de escaneo desde dentro de una pasada concreta.
	cancelOn int
	cancel   func()

	calls     int
	selfCalls int
}

const zeroResponse = `{"karar": "BEKLE", "guven": 0}`

func (j *fakeJudge) Generate(_ context.Context, prompt, _ string, _ float64) (string, error) {
	if j.panicSymbol != "" && strings.Contains(prompt, "SEMBOL: "+j.panicSymbol) {
		panic("judge exploded on " + j.panicSymbol)
	}
	if strings.Contains(prompt, "bastan degerlendir") {
		j.selfCalls++
		if len(j.selfAssess) == 0 {
			return zeroResponse, nil
		}
		r := j.selfAssess[0]
		if len(j.selfAssess) > 1 {
			j.selfAssess = j.selfAssess[1:]
		}
		return r, nil
	}

	j.calls++
	if j.cancelOn > 0 && j.calls == j.cancelOn && j.cancel != nil {
		j.cancel()
	}
	if j.err != nil {
		return "", j.err
	}
	if len(j.responses) == 0 {
		return zeroResponse, nil
	}
	r := j.responses[0]
	if len(j.responses) > 1 {
		j.responses = j.responses[1:]
	}
	return r, nil
}

// uptrendBars genera una subida convexa: precio por encima de las EMAs,
// MACD sobre su señal, y un pico de volumen en la última vela.
func uptrendBars(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	start := time.Now().UTC().Add(-time.Duration(n) * time.Hour)
	for i := range out {
		x := float64(i)
		c := 1.0 + 0.0004*x + 0.000004*x*x
		out[i] = domain.Candle{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   c - 0.0001,
			High:   c + 0.0002,
			Low:    c - 0.0002,
			Close:  c,
			Volume: 1000,
		}
	}
	out[n-1].Volume = 5000
	return out
}

// downtrendBars es el espejo bajista.
func downtrendBars(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	start := time.Now().UTC().Add(-time.Duration(n) * time.Hour)
	for i := range out {
		x := float64(i)
		c := 1.5 - 0.0004*x - 0.000004*x*x
		out[i] = domain.Candle{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   c + 0.0001,
			High:   c + 0.0002,
			Low:    c - 0.0002,
			Close:  c,
			Volume: 1000,
		}
	}
	out[n-1].Volume = 5000
	return out
}

func flatBars(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	start := time.Now().UTC().Add(-time.Duration(n) * time.Hour)
	for i := range out {
		out[i] = domain.Candle{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   1.0,
			High:   1.0,
			Low:    1.0,
			Close:  1.0,
			Volume: 1000,
		}
	}
	return out
}

// testConfig devuelve la configuración estándar de los tests: sin esperas
// y con una sola llamada de juicio por ciclo salvo que el test pida más.
func testConfig(symbols ...string) engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Symbols = symbols
	cfg.MaxRetries = 1
	cfg.RetryDelay = 0
	cfg.SymbolDelay = 0
	cfg.PassWait = 0
	cfg.SelfAssessAfterZero = 3
	return cfg
}

// newOrchestrator cablea un orquestador completo sobre sqlite en memoria.
func newOrchestrator(t *testing.T, cfg engine.Config, market *fakeMarket, model *fakeJudge) (*engine.Orchestrator, *storage.Store, *engine.Book) {
	t.Helper()

	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	book, err := engine.NewBook(context.Background(), store, cfg.VirtualBalance, cfg.Leverage, slog.Default())
	require.NoError(t, err)

	orch := engine.New(cfg, engine.Deps{
		Market:    market,
		Model:     model,
		Technical: signal.NewTechnical(signal.DefaultTechnicalConfig()),
		Sentiment: signal.NewSentiment(signal.DefaultSentimentConfig(), store),
		Validator: risk.NewValidator(risk.DefaultConfig()),
		Store:     store,
		Book:      book,
	})
	return orch, store, book
}
