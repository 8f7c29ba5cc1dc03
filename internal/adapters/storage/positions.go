package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// SavePosition persiste una posición simulada recién abierta.
func (s *Store) SavePosition(ctx context.Context, p domain.SimulatedPosition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sim_positions
			(id, ledger_id, symbol, direction, lot, entry_price, stop_loss,
			 take_profit, leverage, notional_usd, margin_required, status,
			 current_price, unrealized_usd, unrealized_pct, realized_usd, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.LedgerID, p.Symbol, string(p.Direction), p.Lot, p.EntryPrice,
		p.StopLoss, p.TakeProfit, p.Leverage, p.NotionalUSD, p.MarginRequired,
		string(p.Status), p.CurrentPrice, p.UnrealizedUSD, p.UnrealizedPct,
		p.RealizedUSD, p.OpenedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SavePosition: insert %s: %w", p.ID, err)
	}
	return nil
}

// MarkPosition actualiza la valoración de una posición abierta tras el
// refresco de precios del ciclo.
func (s *Store) MarkPosition(ctx context.Context, id string, price, unrealizedUSD, unrealizedPct float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sim_positions
		SET current_price = ?, unrealized_usd = ?, unrealized_pct = ?
		WHERE id = ? AND status = 'OPEN'`,
		price, unrealizedUSD, unrealizedPct, id,
	)
	if err != nil {
		return fmt.Errorf("storage.MarkPosition: update %s: %w", id, err)
	}
	return nil
}

// OpenPositions devuelve todas las posiciones con status OPEN.
func (s *Store) OpenPositions(ctx context.Context) ([]domain.SimulatedPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ledger_id, symbol, direction, lot, entry_price, stop_loss,
		       take_profit, leverage, notional_usd, margin_required, status,
		       current_price, unrealized_usd, unrealized_pct, realized_usd,
		       opened_at, closed_at
		FROM sim_positions
		WHERE status = 'OPEN'
		ORDER BY opened_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.OpenPositions: query: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// RealizedTotal devuelve la suma de P&L realizado: las posiciones
// cerradas del libro más los cierres solo-ledger (filas de trade_history
// liquidadas sin espejo en sim_positions — un open del libro que falló en
// su día y se reconcilió después). Las filas con espejo solo cuentan una
// vez, por el lado del libro.
func (s *Store) RealizedTotal(ctx context.Context) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT SUM(realized_usd)
		                 FROM sim_positions WHERE status = 'CLOSED'), 0)
		     + COALESCE((SELECT SUM(th.profit_amount)
		                 FROM trade_history th
		                 WHERE th.outcome != 'PENDING'
		                   AND NOT EXISTS (SELECT 1 FROM sim_positions sp
		                                   WHERE sp.ledger_id = th.id)), 0)`,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("storage.RealizedTotal: %w", err)
	}
	return total.Float64, nil
}

// ClosedCount devuelve el número de posiciones cerradas.
func (s *Store) ClosedCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sim_positions WHERE status = 'CLOSED'`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage.ClosedCount: %w", err)
	}
	return n, nil
}

// CloseTradeTx cierra en UNA transacción la posición del libro y su fila
// espejo del ledger: el mismo trade lógico nunca queda cerrado en un
// subsistema y abierto en el otro.
func (s *Store) CloseTradeTx(ctx context.Context, positionID string, ledgerID int64, outcome domain.Outcome, closePrice, realizedUSD, profitPips float64, closedAt time.Time) error {
	if !outcome.IsTerminal() {
		return fmt.Errorf("storage.CloseTradeTx: %q is not a terminal outcome", outcome)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.CloseTradeTx: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE sim_positions
		SET status = 'CLOSED', current_price = ?, unrealized_usd = 0,
		    unrealized_pct = 0, realized_usd = ?, closed_at = ?
		WHERE id = ? AND status = 'OPEN'`,
		closePrice, realizedUSD, closedAt.UTC(), positionID,
	)
	if err != nil {
		return fmt.Errorf("storage.CloseTradeTx: close position %s: %w", positionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyClosed
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE trade_history
		SET outcome = ?, profit_pips = ?, profit_amount = ?, close_price = ?, close_time = ?
		WHERE id = ? AND outcome = 'PENDING'`,
		string(outcome), profitPips, realizedUSD, closePrice, closedAt.UTC(), ledgerID,
	)
	if err != nil {
		return fmt.Errorf("storage.CloseTradeTx: close ledger %d: %w", ledgerID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyClosed
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.CloseTradeTx: commit: %w", err)
	}
	return nil
}

func scanPositions(rows *sql.Rows) ([]domain.SimulatedPosition, error) {
	var out []domain.SimulatedPosition
	for rows.Next() {
		var p domain.SimulatedPosition
		var direction, status string
		var closedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.LedgerID, &p.Symbol, &direction, &p.Lot,
			&p.EntryPrice, &p.StopLoss, &p.TakeProfit, &p.Leverage,
			&p.NotionalUSD, &p.MarginRequired, &status, &p.CurrentPrice,
			&p.UnrealizedUSD, &p.UnrealizedPct, &p.RealizedUSD,
			&p.OpenedAt, &closedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.scanPositions: %w", err)
		}
		p.Direction = domain.Verdict(direction)
		p.Status = domain.PositionStatus(status)
		p.ClosedAt = scanTime(closedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}
