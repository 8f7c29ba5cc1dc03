package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/domain"
	"github.com/alejandrodnm/sniperbot/internal/ports"
)

// SentimentConfig controla el filtro de noticias.
type SentimentConfig struct {
	Lookback     time.Duration
	MinSentiment float64
	Impacts      []domain.NewsImpact
	MaxNews      int
}

// DefaultSentimentConfig devuelve los umbrales estándar.
func DefaultSentimentConfig() SentimentConfig {
	return SentimentConfig{
		Lookback:     24 * time.Hour,
		MinSentiment: 50,
		Impacts:      []domain.NewsImpact{domain.ImpactHigh, domain.ImpactMedium},
		MaxNews:      5,
	}
}

// Sentiment es el filtro de la segunda etapa. Lee del almacén de noticias;
// sin noticias el símbolo pasa neutral. El resultado informa al juicio
// pero solo bloquea duro cuando la dirección técnica es NEUTRAL.
type Sentiment struct {
	cfg  SentimentConfig
	news ports.NewsSource
}

// NewSentiment crea el filtro sobre el almacén dado.
func NewSentiment(cfg SentimentConfig, news ports.NewsSource) *Sentiment {
	return &Sentiment{cfg: cfg, news: news}
}

// Evaluate agrega el sentimiento del símbolo y decide el gate según la
// dirección técnica sugerida. La banda es asimétrica a propósito: un BUY
// solo se frena con sentimiento claramente negativo (< -20) y un SELL
// solo con sentimiento claramente positivo (> 20).
func (s *Sentiment) Evaluate(ctx context.Context, symbol string, direction domain.Direction) domain.SentimentResult {
	if direction == domain.DirectionNeutral {
		return domain.SentimentResult{Reason: "no technical direction"}
	}

	items, err := s.news.Recent(ctx, symbol, s.cfg.Lookback, s.cfg.Impacts)
	if err != nil {
		// Proveedor caído: no bloquear el pipeline por falta de noticias
		return domain.SentimentResult{Pass: true, Reason: "news store unavailable"}
	}
	if len(items) == 0 {
		return domain.SentimentResult{Pass: true, Reason: "no relevant news"}
	}

	summary, err := s.news.AggregateSentiment(ctx, symbol, s.cfg.Lookback)
	if err != nil {
		return domain.SentimentResult{Pass: true, News: topNews(items, s.cfg.MaxNews), Reason: "sentiment aggregation failed"}
	}

	res := domain.SentimentResult{
		Sentiment: summary.Average,
		News:      topNews(items, s.cfg.MaxNews),
	}

	switch direction {
	case domain.DirectionBuy:
		res.Pass = summary.Average >= s.cfg.MinSentiment || summary.Average >= -20
	case domain.DirectionSell:
		res.Pass = summary.Average <= -s.cfg.MinSentiment || summary.Average <= 20
	}

	if res.Pass {
		res.Reason = fmt.Sprintf("sentiment %.1f over %d news", summary.Average, summary.Count)
	} else {
		res.Reason = fmt.Sprintf("sentiment %.1f against %s", summary.Average, direction)
	}
	return res
}

func topNews(items []domain.NewsItem, max int) []domain.NewsItem {
	if len(items) <= max {
		return items
	}
	return items[:max]
}
