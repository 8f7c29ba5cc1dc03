package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// ErrAlreadyClosed indica un intento de transición desde un outcome
// terminal. Los estados terminales son irreversibles.
var ErrAlreadyClosed = errors.New("storage: trade already closed")

// LogTrade inserta un trade PENDING en el ledger. Idempotente bajo
// reintentos: si ya existe un PENDING del mismo símbolo y dirección con
// entrada dentro de la tolerancia, devuelve el id existente sin insertar.
func (s *Store) LogTrade(ctx context.Context, t domain.PendingTrade, tolerance float64) (int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entry_price FROM trade_history
		 WHERE symbol = ? AND direction = ? AND outcome = 'PENDING'`,
		t.Symbol, string(t.Direction),
	)
	if err != nil {
		return 0, fmt.Errorf("storage.LogTrade: query pending: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var entry float64
		if err := rows.Scan(&id, &entry); err != nil {
			return 0, fmt.Errorf("storage.LogTrade: scan pending: %w", err)
		}
		if math.Abs(entry-t.EntryPrice) <= tolerance {
			return id, nil // duplicado — mismo trade lógico
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("storage.LogTrade: iterate pending: %w", err)
	}

	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_history
			(symbol, direction, entry_price, stop_loss, take_profit, position_size,
			 technical_score, news_sentiment, llm_confidence, reasoning, outcome,
			 trend_h1, trend_h4, trend_d1, rsi_value, macd_signal, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'PENDING', ?, ?, ?, ?, ?, ?)`,
		t.Symbol, string(t.Direction), t.EntryPrice, t.StopLoss, t.TakeProfit,
		t.PositionSize, t.TechnicalScore, t.NewsSentiment, t.Confidence,
		t.Reasoning, t.TrendH1, t.TrendH4, t.TrendD1, t.RSIValue, t.MACDSignal,
		created,
	)
	if err != nil {
		return 0, fmt.Errorf("storage.LogTrade: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage.LogTrade: last id: %w", err)
	}
	return id, nil
}

// UpdateOutcome cierra una fila PENDING a un estado terminal. Devuelve
// ErrAlreadyClosed si la fila ya no estaba PENDING.
func (s *Store) UpdateOutcome(ctx context.Context, id int64, outcome domain.Outcome, profitPips, profitAmount, closePrice float64, closeTime time.Time) error {
	if !outcome.IsTerminal() {
		return fmt.Errorf("storage.UpdateOutcome: %q is not a terminal outcome", outcome)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE trade_history
		SET outcome = ?, profit_pips = ?, profit_amount = ?, close_price = ?, close_time = ?
		WHERE id = ? AND outcome = 'PENDING'`,
		string(outcome), profitPips, profitAmount, closePrice, closeTime.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateOutcome: update %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.UpdateOutcome: rows affected: %w", err)
	}
	if n == 0 {
		return ErrAlreadyClosed
	}
	return nil
}

// PendingTrades devuelve todas las filas PENDING, más antiguas primero.
func (s *Store) PendingTrades(ctx context.Context) ([]domain.PendingTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, direction, entry_price, stop_loss, take_profit,
		       position_size, technical_score, news_sentiment, llm_confidence,
		       COALESCE(reasoning, ''), created_at
		FROM trade_history
		WHERE outcome = 'PENDING'
		ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.PendingTrades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.PendingTrade
	for rows.Next() {
		var t domain.PendingTrade
		var direction string
		if err := rows.Scan(&t.ID, &t.Symbol, &direction, &t.EntryPrice,
			&t.StopLoss, &t.TakeProfit, &t.PositionSize, &t.TechnicalScore,
			&t.NewsSentiment, &t.Confidence, &t.Reasoning, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.PendingTrades: scan: %w", err)
		}
		t.Direction = domain.Verdict(direction)
		t.Outcome = domain.OutcomePending
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// TradesToday cuenta los trades creados desde la medianoche UTC del día
// dado. Alimenta el tope diario del orquestador.
func (s *Store) TradesToday(ctx context.Context, now time.Time) (int, error) {
	midnight := now.UTC().Truncate(24 * time.Hour)
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trade_history WHERE created_at >= ?`, midnight,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage.TradesToday: %w", err)
	}
	return n, nil
}

// AddCooldown registra un bloqueo de re-entrada para el símbolo.
func (s *Store) AddCooldown(ctx context.Context, c domain.EntryCooldown) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entry_cooldowns
			(symbol, blocked_price, blocked_from, blocked_until, tolerance, reason)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.Symbol, c.BlockedPrice, c.BlockedFrom.UTC(), c.BlockedUntil.UTC(),
		c.Tolerance, c.Reason,
	)
	if err != nil {
		return fmt.Errorf("storage.AddCooldown: insert %s: %w", c.Symbol, err)
	}
	return nil
}

// IsEntryAllowed consulta los cooldowns del símbolo y rechaza la entrada
// si alguno sigue vigente y el precio cae dentro de su tolerancia.
func (s *Store) IsEntryAllowed(ctx context.Context, symbol string, price float64, now time.Time) (bool, string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, blocked_price, blocked_from, blocked_until, tolerance,
		       COALESCE(reason, '')
		FROM entry_cooldowns
		WHERE symbol = ?`,
		symbol,
	)
	if err != nil {
		return false, "", fmt.Errorf("storage.IsEntryAllowed: query %s: %w", symbol, err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.EntryCooldown
		if err := rows.Scan(&c.Symbol, &c.BlockedPrice, &c.BlockedFrom,
			&c.BlockedUntil, &c.Tolerance, &c.Reason,
		); err != nil {
			return false, "", fmt.Errorf("storage.IsEntryAllowed: scan: %w", err)
		}
		if c.Active(now) && c.Blocks(price) {
			reason := fmt.Sprintf("cooldown near %.5f until %s", c.BlockedPrice, c.BlockedUntil.Format(time.RFC3339))
			return false, reason, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, "", fmt.Errorf("storage.IsEntryAllowed: iterate: %w", err)
	}
	return true, "", nil
}

// scanTime es un helper para columnas DATETIME opcionales.
func scanTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
