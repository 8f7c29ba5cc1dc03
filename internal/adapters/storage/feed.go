package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// AppendSignal añade una señal al feed del dashboard. Devuelve false sin
// insertar cuando la última entrada del símbolo es el mismo estado de
// espera (dedup: un "espera" idéntico repetido no aporta nada). `force`
// salta el dedup — la primera pasada tras un arranque publica siempre.
// Tras insertar, recorta el feed a las `limit` entradas más recientes.
func (s *Store) AppendSignal(ctx context.Context, sig domain.Signal, limit int, force bool) (bool, error) {
	if !force && sig.IsWaitState() {
		last, err := s.lastSignal(ctx, sig.Symbol)
		if err != nil {
			return false, err
		}
		if last != nil && last.IsWaitState() && last.Verdict == sig.Verdict && last.Reason == sig.Reason {
			return false, nil
		}
	}

	tradeable := 0
	if sig.Tradeable {
		tradeable = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signal_feed
			(id, symbol, verdict, confidence, presented, entry_price, stop_loss,
			 take_profit, lot, risk_reward, reason, message, tradeable, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.Symbol, string(sig.Verdict), sig.Confidence, sig.Presented,
		sig.EntryPrice, sig.StopLoss, sig.TakeProfit, sig.Lot, sig.RiskReward,
		sig.Reason, sig.Message, tradeable, sig.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("storage.AppendSignal: insert %s: %w", sig.Symbol, err)
	}

	if limit > 0 {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM signal_feed WHERE id NOT IN (
				SELECT id FROM signal_feed ORDER BY created_at DESC, id LIMIT ?
			)`, limit)
		if err != nil {
			return true, fmt.Errorf("storage.AppendSignal: prune: %w", err)
		}
	}
	return true, nil
}

// LatestSignals devuelve las n señales más recientes del feed.
func (s *Store) LatestSignals(ctx context.Context, n int) ([]domain.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, verdict, confidence, presented, entry_price,
		       stop_loss, take_profit, lot, risk_reward,
		       COALESCE(reason, ''), COALESCE(message, ''), tradeable, created_at
		FROM signal_feed
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.LatestSignals: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sig)
	}
	return out, rows.Err()
}

// lastSignal devuelve la entrada más reciente del símbolo, o nil si no hay.
func (s *Store) lastSignal(ctx context.Context, symbol string) (*domain.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, verdict, confidence, presented, entry_price,
		       stop_loss, take_profit, lot, risk_reward,
		       COALESCE(reason, ''), COALESCE(message, ''), tradeable, created_at
		FROM signal_feed
		WHERE symbol = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, symbol,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.lastSignal: query %s: %w", symbol, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("storage.lastSignal: %w", err)
		}
		return nil, nil
	}
	return scanSignal(rows)
}

func scanSignal(rows *sql.Rows) (*domain.Signal, error) {
	var sig domain.Signal
	var verdict string
	var tradeable int
	if err := rows.Scan(&sig.ID, &sig.Symbol, &verdict, &sig.Confidence,
		&sig.Presented, &sig.EntryPrice, &sig.StopLoss, &sig.TakeProfit,
		&sig.Lot, &sig.RiskReward, &sig.Reason, &sig.Message, &tradeable,
		&sig.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("storage.scanSignal: %w", err)
	}
	sig.Verdict = domain.Verdict(verdict)
	sig.Tradeable = tradeable == 1
	return &sig, nil
}
