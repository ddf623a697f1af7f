package storage

// sqlite.go — historial de trading en SQLite (pure Go, sin CGo).
//
//   - order_events / fill_events / realized_exits: append-only.
//   - positions: una fila por market_id (UPSERT), se borra al cerrar.
//   - Cache en memoria del último JSON de cada posición: si no cambió no se
//     reescribe. La mayoría de ticks no mueven best_pnl_pct.
//   - Prune al arrancar: eventos de órdenes y fills > 90 días.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS order_events (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id           TEXT NOT NULL,
    market_id          TEXT NOT NULL,
    action             TEXT NOT NULL,
    status             TEXT NOT NULL,
    mode               TEXT NOT NULL,
    requested_notional REAL NOT NULL DEFAULT 0,
    requested_shares   REAL NOT NULL DEFAULT 0,
    filled_notional    REAL NOT NULL DEFAULT 0,
    filled_shares      REAL NOT NULL DEFAULT 0,
    average_price      REAL NOT NULL DEFAULT 0,
    fees               REAL NOT NULL DEFAULT 0,
    metadata           TEXT,
    created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fill_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id   TEXT NOT NULL,
    market_id  TEXT NOT NULL,
    notional   REAL NOT NULL,
    shares     REAL NOT NULL,
    price      REAL NOT NULL,
    fees       REAL NOT NULL DEFAULT 0,
    mode       TEXT,
    source     TEXT,
    metadata   TEXT,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    market_id       TEXT PRIMARY KEY,
    order_id        TEXT NOT NULL,
    side            TEXT NOT NULL,
    notional        REAL NOT NULL,
    shares          REAL NOT NULL,
    entry_yes       REAL NOT NULL,
    opened_at       TEXT NOT NULL,
    best_pnl_pct    REAL NOT NULL DEFAULT 0,
    strategy_states TEXT,
    updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS realized_exits (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    market_id    TEXT NOT NULL,
    order_id     TEXT,
    side         TEXT NOT NULL,
    strategy     TEXT,
    reason       TEXT,
    entry_yes    REAL NOT NULL,
    exit_yes     REAL NOT NULL,
    shares       REAL NOT NULL,
    notional     REAL NOT NULL,
    realized_pnl REAL NOT NULL,
    return_pct   REAL NOT NULL,
    opened_at    TEXT,
    closed_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_events_order ON order_events(order_id);
CREATE INDEX IF NOT EXISTS idx_fill_events_order  ON fill_events(order_id);
CREATE INDEX IF NOT EXISTS idx_exits_closed       ON realized_exits(closed_at DESC);
`

const (
	retentionEvents = 90 * 24 * time.Hour

	// ancho fijo para que el orden lexicográfico sea el cronológico
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteStorage implementa ports.TradeStorage.
type SQLiteStorage struct {
	db *sql.DB

	mu        sync.Mutex
	positions map[string]string // market_id → último JSON escrito
}

// NewSQLiteStorage abre (o crea) la base de datos en path. ":memory:" sirve
// para tests.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db, positions: make(map[string]string)}
	s.pruneOld(context.Background())
	return s, nil
}

// Close cierra la conexión.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveOrderEvent añade un evento por cada ExecutionReport.
func (s *SQLiteStorage) SaveOrderEvent(ctx context.Context, r domain.ExecutionReport) error {
	md, err := marshalMetadata(r.Metadata)
	if err != nil {
		return fmt.Errorf("storage.SaveOrderEvent: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO order_events
			(order_id, market_id, action, status, mode, requested_notional, requested_shares,
			 filled_notional, filled_shares, average_price, fees, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.OrderID, r.MarketID, string(r.Action), string(r.Status), string(r.Mode),
		r.RequestedNotional, r.RequestedShares, r.FilledNotional, r.FilledShares,
		r.AveragePrice, r.Fees, md, formatTime(r.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveOrderEvent %s: %w", r.OrderID, err)
	}
	return nil
}

// SaveFill añade un fill incremental.
func (s *SQLiteStorage) SaveFill(ctx context.Context, f domain.FillUpdate, marketID string) error {
	md, err := marshalMetadata(f.Metadata)
	if err != nil {
		return fmt.Errorf("storage.SaveFill: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fill_events
			(order_id, market_id, notional, shares, price, fees, mode, source, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, marketID, f.Notional, f.Shares, f.Price, f.Fees,
		string(f.Mode), f.Source, md, formatTime(f.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveFill %s: %w", f.OrderID, err)
	}
	return nil
}

// UpsertPosition guarda la posición si cambió desde la última escritura.
func (s *SQLiteStorage) UpsertPosition(ctx context.Context, p domain.Position) error {
	states, err := json.Marshal(p.Strategies)
	if err != nil {
		return fmt.Errorf("storage.UpsertPosition: marshal states: %w", err)
	}
	fingerprint, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("storage.UpsertPosition: marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.positions[p.MarketID] == string(fingerprint) {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO positions
			(market_id, order_id, side, notional, shares, entry_yes, opened_at,
			 best_pnl_pct, strategy_states, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market_id) DO UPDATE SET
			order_id        = excluded.order_id,
			side            = excluded.side,
			notional        = excluded.notional,
			shares          = excluded.shares,
			entry_yes       = excluded.entry_yes,
			opened_at       = excluded.opened_at,
			best_pnl_pct    = excluded.best_pnl_pct,
			strategy_states = excluded.strategy_states,
			updated_at      = excluded.updated_at`,
		p.MarketID, p.OrderID, string(p.Side), p.Notional, p.Shares, p.EntryYes,
		formatTime(p.OpenedAt), p.BestPnLPct, string(states), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("storage.UpsertPosition %s: %w", p.MarketID, err)
	}
	s.positions[p.MarketID] = string(fingerprint)
	return nil
}

// DeletePosition borra la posición de un mercado. No existir no es error.
func (s *SQLiteStorage) DeletePosition(ctx context.Context, marketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE market_id = ?`, marketID); err != nil {
		return fmt.Errorf("storage.DeletePosition %s: %w", marketID, err)
	}
	delete(s.positions, marketID)
	return nil
}

// LoadPositions devuelve las posiciones abiertas ordenadas por apertura.
func (s *SQLiteStorage) LoadPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, order_id, side, notional, shares, entry_yes, opened_at,
		       best_pnl_pct, strategy_states
		FROM positions ORDER BY opened_at ASC, market_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadPositions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var (
			p            domain.Position
			side, opened string
			states       sql.NullString
		)
		if err := rows.Scan(&p.MarketID, &p.OrderID, &side, &p.Notional, &p.Shares,
			&p.EntryYes, &opened, &p.BestPnLPct, &states); err != nil {
			return nil, fmt.Errorf("storage.LoadPositions: scan: %w", err)
		}
		p.Side = domain.Action(side)
		p.OpenedAt = parseTime(opened)
		p.Strategies = map[string]*domain.EntryState{}
		if states.Valid && states.String != "" && states.String != "null" {
			if err := json.Unmarshal([]byte(states.String), &p.Strategies); err != nil {
				return nil, fmt.Errorf("storage.LoadPositions: decode states %s: %w", p.MarketID, err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- helpers internos ---

// pruneOld borra eventos viejos. Las posiciones y las salidas no caducan:
// RecentReturns las necesita.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := formatTime(time.Now().Add(-retentionEvents))
	s.db.ExecContext(ctx, `DELETE FROM order_events WHERE created_at < ?`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM fill_events WHERE created_at < ?`, cutoff)
}

func marshalMetadata(md domain.Metadata) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
