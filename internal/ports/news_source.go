package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// NewsSource expone las noticias almacenadas con sentimiento puntuado.
type NewsSource interface {
	// Recent devuelve las noticias del símbolo dentro de la ventana,
	// filtradas por niveles de impacto, más recientes primero.
	Recent(ctx context.Context, symbol string, lookback time.Duration, impacts []domain.NewsImpact) ([]domain.NewsItem, error)

	// AggregateSentiment agrega el sentimiento del símbolo en la ventana.
	AggregateSentiment(ctx context.Context, symbol string, lookback time.Duration) (domain.SentimentSummary, error)
}
