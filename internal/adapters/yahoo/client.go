package yahoo

// client.go — adapter de datos de mercado sobre Yahoo Finance.
//
// Convenciones:
//   - Rate limiting compartido entre precio y velas: Yahoo banea IPs
//     agresivas sin aviso.
//   - Cadena de fallbacks por símbolo: los futuros de metales (GC=F,
//     SI=F) dejan de cotizar fuera de sesión y se sustituyen por su par
//     spot equivalente.
//   - H4 no existe como intervalo en Yahoo: se agrega desde H1.

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

const (
	maxRetries   = 3
	retryBackoff = 2 * time.Second
)

// Client implementa ports.MarketData contra Yahoo Finance.
type Client struct {
	limiter   *rate.Limiter
	fallbacks map[string][]string
	log       *slog.Logger
}

// NewClient crea el cliente con las cadenas de fallback dadas.
func NewClient(fallbacks map[string][]string) *Client {
	return &Client{
		limiter:   rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
		fallbacks: fallbacks,
		log:       slog.Default().With("component", "yahoo"),
	}
}

// CurrentPrice devuelve el último precio del símbolo, probando la cadena
// de fallbacks en orden.
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var lastErr error
	for _, sym := range c.chain(symbol) {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("yahoo.CurrentPrice: %w", err)
		}

		var price float64
		err := c.withRetry(ctx, func() error {
			q, err := quote.Get(sym)
			if err != nil {
				return err
			}
			if q == nil || q.RegularMarketPrice <= 0 {
				return fmt.Errorf("no market price for %s", sym)
			}
			price = q.RegularMarketPrice
			return nil
		})
		if err == nil {
			if sym != symbol {
				c.log.Debug("price via fallback", "symbol", symbol, "fallback", sym)
			}
			return price, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("yahoo.CurrentPrice: %s: %w", symbol, lastErr)
}

// Bars devuelve hasta count velas del timeframe, de más antigua a más
// reciente, probando la cadena de fallbacks en orden.
func (c *Client) Bars(ctx context.Context, symbol string, tf domain.Timeframe, count int) ([]domain.Candle, error) {
	interval, barSpan, aggregate := intervalFor(tf)

	fetch := count
	if aggregate > 1 {
		fetch = count * aggregate
	}
	start := time.Now().Add(-time.Duration(fetch+10) * barSpan)
	end := time.Now()

	var lastErr error
	for _, sym := range c.chain(symbol) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("yahoo.Bars: %w", err)
		}

		var bars []domain.Candle
		err := c.withRetry(ctx, func() error {
			params := &chart.Params{
				Symbol:   sym,
				Start:    datetime.New(&start),
				End:      datetime.New(&end),
				Interval: interval,
			}
			iter := chart.Get(params)

			bars = bars[:0]
			for iter.Next() {
				b := iter.Bar()
				bars = append(bars, domain.Candle{
					Time:   time.Unix(int64(b.Timestamp), 0).UTC(),
					Open:   b.Open.InexactFloat64(),
					High:   b.High.InexactFloat64(),
					Low:    b.Low.InexactFloat64(),
					Close:  b.Close.InexactFloat64(),
					Volume: float64(b.Volume),
				})
			}
			if err := iter.Err(); err != nil {
				return err
			}
			if len(bars) == 0 {
				return fmt.Errorf("no bars for %s %s", sym, tf)
			}
			return nil
		})
		if err == nil {
			if aggregate > 1 {
				bars = aggregateBars(bars, aggregate)
			}
			if len(bars) > count {
				bars = bars[len(bars)-count:]
			}
			return bars, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("yahoo.Bars: %s %s: %w", symbol, tf, lastErr)
}

// chain devuelve el símbolo seguido de sus fallbacks.
func (c *Client) chain(symbol string) []string {
	return append([]string{symbol}, c.fallbacks[symbol]...)
}

// withRetry reintenta con backoff y jitter, respetando el contexto.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt)*retryBackoff + time.Duration(rand.Intn(500))*time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

// intervalFor mapea el timeframe al intervalo de Yahoo, su duración y el
// factor de agregación (H4 se construye con 4 velas H1).
func intervalFor(tf domain.Timeframe) (datetime.Interval, time.Duration, int) {
	switch tf {
	case domain.TFM1:
		return datetime.OneMin, time.Minute, 1
	case domain.TFM5:
		return datetime.FiveMins, 5 * time.Minute, 1
	case domain.TFM15:
		return datetime.FifteenMins, 15 * time.Minute, 1
	case domain.TFM30:
		return datetime.ThirtyMins, 30 * time.Minute, 1
	case domain.TFH1:
		return datetime.OneHour, time.Hour, 1
	case domain.TFH4:
		return datetime.OneHour, time.Hour, 4
	default:
		return datetime.OneDay, 24 * time.Hour, 1
	}
}

// aggregateBars comprime grupos de n velas consecutivas en una.
func aggregateBars(bars []domain.Candle, n int) []domain.Candle {
	var out []domain.Candle
	for i := 0; i < len(bars); i += n {
		end := i + n
		if end > len(bars) {
			end = len(bars)
		}
		group := bars[i:end]

		agg := domain.Candle{
			Time: group[0].Time,
			Open: group[0].Open,
			Low:  group[0].Low,
		}
		for _, b := range group {
			if b.High > agg.High {
				agg.High = b.High
			}
			if b.Low < agg.Low {
				agg.Low = b.Low
			}
			agg.Volume += b.Volume
		}
		agg.Close = group[len(group)-1].Close
		out = append(out, agg)
	}
	return out
}
