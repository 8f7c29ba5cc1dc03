package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// AddNews inserta una noticia puntuada en el almacén.
func (s *Store) AddNews(ctx context.Context, n domain.NewsItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO news (symbol, title, source, sentiment, impact, published_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.Symbol, n.Title, n.Source, n.Sentiment, string(n.Impact), n.PublishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.AddNews: insert %q: %w", n.Title, err)
	}
	return nil
}

// SeedSampleNews puebla el almacén con titulares de ejemplo para los
// símbolos dados, solo si la tabla está vacía. Modo demo: permite ver el
// filtro de sentimiento trabajar sin un ingestor de noticias real.
func (s *Store) SeedSampleNews(ctx context.Context, symbols []string) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM news`).Scan(&count); err != nil {
		return fmt.Errorf("storage.SeedSampleNews: count: %w", err)
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	samples := []struct {
		title     string
		sentiment float64
		impact    domain.NewsImpact
		age       time.Duration
	}{
		{"Central bank holds rates, signals patience", 15, domain.ImpactHigh, 2 * time.Hour},
		{"Manufacturing PMI beats expectations", 35, domain.ImpactMedium, 5 * time.Hour},
		{"Trade balance narrows more than forecast", -10, domain.ImpactMedium, 9 * time.Hour},
	}
	for _, symbol := range symbols {
		for _, sm := range samples {
			n := domain.NewsItem{
				Symbol:      symbol,
				Title:       sm.title,
				Source:      "sample",
				Sentiment:   sm.sentiment,
				Impact:      sm.impact,
				PublishedAt: now.Add(-sm.age),
			}
			if err := s.AddNews(ctx, n); err != nil {
				return err
			}
		}
	}
	return nil
}

// Recent devuelve las noticias del símbolo dentro de la ventana, filtradas
// por impacto, más recientes primero. Implementa ports.NewsSource.
func (s *Store) Recent(ctx context.Context, symbol string, lookback time.Duration, impacts []domain.NewsImpact) ([]domain.NewsItem, error) {
	cutoff := time.Now().UTC().Add(-lookback)

	query := `
		SELECT id, symbol, title, COALESCE(source, ''), sentiment, impact, published_at
		FROM news
		WHERE symbol = ? AND published_at >= ?`
	args := []any{symbol, cutoff}

	if len(impacts) > 0 {
		placeholders := make([]string, len(impacts))
		for i, im := range impacts {
			placeholders[i] = "?"
			args = append(args, string(im))
		}
		query += fmt.Sprintf(" AND impact IN (%s)", strings.Join(placeholders, ","))
	}
	query += " ORDER BY published_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.Recent: query %s: %w", symbol, err)
	}
	defer rows.Close()

	var items []domain.NewsItem
	for rows.Next() {
		var n domain.NewsItem
		var impact string
		if err := rows.Scan(&n.ID, &n.Symbol, &n.Title, &n.Source, &n.Sentiment, &impact, &n.PublishedAt); err != nil {
			return nil, fmt.Errorf("storage.Recent: scan: %w", err)
		}
		n.Impact = domain.NewsImpact(impact)
		items = append(items, n)
	}
	return items, rows.Err()
}

// AggregateSentiment agrega el sentimiento del símbolo en la ventana.
// Implementa ports.NewsSource.
func (s *Store) AggregateSentiment(ctx context.Context, symbol string, lookback time.Duration) (domain.SentimentSummary, error) {
	cutoff := time.Now().UTC().Add(-lookback)

	var avg sql.NullFloat64
	var count, high int
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(sentiment), COUNT(*),
		       COALESCE(SUM(CASE WHEN impact = 'HIGH' THEN 1 ELSE 0 END), 0)
		FROM news
		WHERE symbol = ? AND published_at >= ?`,
		symbol, cutoff,
	).Scan(&avg, &count, &high)
	if err != nil {
		return domain.SentimentSummary{}, fmt.Errorf("storage.AggregateSentiment: %s: %w", symbol, err)
	}
	return domain.SentimentSummary{Average: avg.Float64, Count: count, HighImpact: high}, nil
}
