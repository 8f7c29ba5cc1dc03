package storage

// sqlite.go — persistencia única del bot sobre SQLite (pure Go, sin CGo).
//
// Estrategia:
//   - `trade_history`: el ledger de aprendizaje, append-only. Las filas
//     nacen PENDING y se cierran a WIN/LOSS/BREAKEVEN; nunca se borran.
//   - `entry_cooldowns`: bloqueos de re-entrada por símbolo y precio.
//   - `sim_positions`: el libro de posiciones simuladas. Espeja el ledger
//     y el cierre de ambos va en la MISMA transacción (CloseTradeTx) —
//     que uno cierre sin el otro es la clase de bug que este diseño evita.
//   - `news`: noticias con sentimiento ya puntuado (-100..100).
//   - `signal_feed`: últimas señales para el dashboard, con tope y dedup.
//
// Cada mutación se persiste en el momento, sin batching: un crash a mitad
// de pasada deja un estado en disco consistente.

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
-- Ledger de aprendizaje: una fila por trade propuesto, append-only
CREATE TABLE IF NOT EXISTS trade_history (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol          TEXT    NOT NULL,
    direction       TEXT    NOT NULL,
    entry_price     REAL    NOT NULL,
    stop_loss       REAL    NOT NULL DEFAULT 0,
    take_profit     REAL    NOT NULL DEFAULT 0,
    position_size   REAL    NOT NULL DEFAULT 0,
    technical_score INTEGER NOT NULL DEFAULT 0,
    news_sentiment  REAL    NOT NULL DEFAULT 0,
    llm_confidence  INTEGER NOT NULL DEFAULT 0,
    reasoning       TEXT,
    outcome         TEXT    NOT NULL DEFAULT 'PENDING',
    profit_pips     REAL    NOT NULL DEFAULT 0,
    profit_amount   REAL    NOT NULL DEFAULT 0,
    close_price     REAL    NOT NULL DEFAULT 0,
    close_time      DATETIME,
    trend_h1        TEXT,
    trend_h4        TEXT,
    trend_d1        TEXT,
    rsi_value       REAL    NOT NULL DEFAULT 0,
    macd_signal     TEXT,
    created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS entry_cooldowns (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol        TEXT     NOT NULL,
    blocked_price REAL     NOT NULL,
    blocked_from  DATETIME NOT NULL,
    blocked_until DATETIME NOT NULL,
    tolerance     REAL     NOT NULL,
    reason        TEXT
);

-- Libro de posiciones simuladas: espejo contable del ledger
CREATE TABLE IF NOT EXISTS sim_positions (
    id              TEXT PRIMARY KEY,
    ledger_id       INTEGER NOT NULL,
    symbol          TEXT    NOT NULL,
    direction       TEXT    NOT NULL,
    lot             REAL    NOT NULL,
    entry_price     REAL    NOT NULL,
    stop_loss       REAL    NOT NULL DEFAULT 0,
    take_profit     REAL    NOT NULL DEFAULT 0,
    leverage        REAL    NOT NULL DEFAULT 100,
    notional_usd    REAL    NOT NULL DEFAULT 0,
    margin_required REAL    NOT NULL DEFAULT 0,
    status          TEXT    NOT NULL DEFAULT 'OPEN',
    current_price   REAL    NOT NULL DEFAULT 0,
    unrealized_usd  REAL    NOT NULL DEFAULT 0,
    unrealized_pct  REAL    NOT NULL DEFAULT 0,
    realized_usd    REAL    NOT NULL DEFAULT 0,
    opened_at       DATETIME NOT NULL,
    closed_at       DATETIME
);

CREATE TABLE IF NOT EXISTS news (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol       TEXT NOT NULL,
    title        TEXT NOT NULL,
    source       TEXT,
    sentiment    REAL NOT NULL DEFAULT 0 CHECK (sentiment BETWEEN -100 AND 100),
    impact       TEXT NOT NULL DEFAULT 'LOW' CHECK (impact IN ('HIGH','MEDIUM','LOW')),
    published_at DATETIME NOT NULL
);

-- Últimas señales para el dashboard, con tope y dedup de estados de espera
CREATE TABLE IF NOT EXISTS signal_feed (
    id          TEXT PRIMARY KEY,
    symbol      TEXT    NOT NULL,
    verdict     TEXT    NOT NULL,
    confidence  INTEGER NOT NULL DEFAULT 0,
    presented   INTEGER NOT NULL DEFAULT 0,
    entry_price REAL    NOT NULL DEFAULT 0,
    stop_loss   REAL    NOT NULL DEFAULT 0,
    take_profit REAL    NOT NULL DEFAULT 0,
    lot         REAL    NOT NULL DEFAULT 0,
    risk_reward REAL    NOT NULL DEFAULT 0,
    reason      TEXT,
    message     TEXT,
    tradeable   INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_outcome ON trade_history(outcome);
CREATE INDEX IF NOT EXISTS idx_trades_symbol  ON trade_history(symbol, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_cooldown_sym   ON entry_cooldowns(symbol, blocked_until DESC);
CREATE INDEX IF NOT EXISTS idx_positions_st   ON sim_positions(status);
CREATE INDEX IF NOT EXISTS idx_news_symbol    ON news(symbol, published_at DESC);
CREATE INDEX IF NOT EXISTS idx_feed_created   ON signal_feed(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_feed_symbol    ON signal_feed(symbol, created_at DESC);
`

// Store es el almacenamiento del bot. Los métodos del ledger, el libro,
// las noticias y el feed viven en sus propios archivos de este paquete.
type Store struct {
	db *sql.DB
}

// NewStore abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewStore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close cierra la conexión a la base de datos.
func (s *Store) Close() error {
	return s.db.Close()
}
