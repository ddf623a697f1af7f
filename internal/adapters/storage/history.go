package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// SaveRealizedExit añade una salida cerrada.
func (s *SQLiteStorage) SaveRealizedExit(ctx context.Context, e domain.RealizedExit) error {
	var opened any
	if !e.OpenedAt.IsZero() {
		opened = formatTime(e.OpenedAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO realized_exits
			(market_id, order_id, side, strategy, reason, entry_yes, exit_yes, shares,
			 notional, realized_pnl, return_pct, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.MarketID, e.OrderID, string(e.Side), e.Strategy, e.Reason, e.EntryYes, e.ExitYes,
		e.Shares, e.Notional, e.RealizedPnL, e.ReturnPct, opened, formatTime(e.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveRealizedExit %s: %w", e.MarketID, err)
	}
	return nil
}

// RecentReturns devuelve los últimos n return_pct, más antiguo primero.
func (s *SQLiteStorage) RecentReturns(ctx context.Context, n int) ([]float64, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT return_pct FROM realized_exits ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentReturns: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var r float64
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("storage.RecentReturns: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RealizedExits devuelve las últimas limit salidas, más reciente primero.
func (s *SQLiteStorage) RealizedExits(ctx context.Context, limit int) ([]domain.RealizedExit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, COALESCE(order_id, ''), side, COALESCE(strategy, ''), COALESCE(reason, ''),
		       entry_yes, exit_yes, shares, notional, realized_pnl, return_pct,
		       COALESCE(opened_at, ''), closed_at
		FROM realized_exits ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RealizedExits: %w", err)
	}
	defer rows.Close()

	var out []domain.RealizedExit
	for rows.Next() {
		var (
			e                    domain.RealizedExit
			side, opened, closed string
		)
		if err := rows.Scan(&e.MarketID, &e.OrderID, &side, &e.Strategy, &e.Reason,
			&e.EntryYes, &e.ExitYes, &e.Shares, &e.Notional, &e.RealizedPnL, &e.ReturnPct,
			&opened, &closed); err != nil {
			return nil, fmt.Errorf("storage.RealizedExits: scan: %w", err)
		}
		e.Side = domain.Action(side)
		e.OpenedAt = parseTime(opened)
		e.ClosedAt = parseTime(closed)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DailySummaries agrega las salidas por día UTC, en orden cronológico.
// days <= 0 devuelve todo el historial.
func (s *SQLiteStorage) DailySummaries(ctx context.Context, days int) ([]domain.DailySummary, error) {
	from := ""
	if days > 0 {
		from = formatTime(time.Now().UTC().AddDate(0, 0, -days))
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(closed_at, 1, 10) AS day,
		       COUNT(*),
		       SUM(CASE WHEN realized_pnl > 0 THEN 1 ELSE 0 END),
		       SUM(notional),
		       SUM(realized_pnl),
		       AVG(return_pct)
		FROM realized_exits
		WHERE closed_at >= ?
		GROUP BY day ORDER BY day ASC`, from)
	if err != nil {
		return nil, fmt.Errorf("storage.DailySummaries: %w", err)
	}
	defer rows.Close()

	var out []domain.DailySummary
	for rows.Next() {
		var (
			d   domain.DailySummary
			day string
		)
		if err := rows.Scan(&day, &d.Exits, &d.Wins, &d.Notional, &d.RealizedPnL, &d.AvgReturn); err != nil {
			return nil, fmt.Errorf("storage.DailySummaries: scan: %w", err)
		}
		d.Date, _ = time.Parse("2006-01-02", day)
		d.RealizedPnL = domain.Round6(d.RealizedPnL)
		d.AvgReturn = domain.Round6(d.AvgReturn)
		out = append(out, d)
	}
	return out, rows.Err()
}

// FillsForOrder devuelve los fills persistidos de una orden en orden de llegada.
func (s *SQLiteStorage) FillsForOrder(ctx context.Context, orderID string) ([]domain.FillUpdate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT notional, shares, price, fees, COALESCE(mode, ''), COALESCE(source, ''), created_at
		FROM fill_events WHERE order_id = ? ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("storage.FillsForOrder: %w", err)
	}
	defer rows.Close()

	var out []domain.FillUpdate
	for rows.Next() {
		f := domain.FillUpdate{OrderID: orderID}
		var mode, created string
		if err := rows.Scan(&f.Notional, &f.Shares, &f.Price, &f.Fees, &mode, &f.Source, &created); err != nil {
			return nil, fmt.Errorf("storage.FillsForOrder: scan: %w", err)
		}
		f.Mode = domain.ExecutionMode(mode)
		f.Timestamp = parseTime(created)
		out = append(out, f)
	}
	return out, rows.Err()
}

// OrderEvents devuelve los ExecutionReport guardados de una orden.
func (s *SQLiteStorage) OrderEvents(ctx context.Context, orderID string) ([]domain.ExecutionReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, action, status, mode, requested_notional, requested_shares,
		       filled_notional, filled_shares, average_price, fees, COALESCE(metadata, ''), created_at
		FROM order_events WHERE order_id = ? ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("storage.OrderEvents: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionReport
	for rows.Next() {
		r := domain.ExecutionReport{OrderID: orderID}
		var action, status, mode, md, created string
		if err := rows.Scan(&r.MarketID, &action, &status, &mode, &r.RequestedNotional, &r.RequestedShares,
			&r.FilledNotional, &r.FilledShares, &r.AveragePrice, &r.Fees, &md, &created); err != nil {
			return nil, fmt.Errorf("storage.OrderEvents: scan: %w", err)
		}
		r.Action = domain.Action(action)
		r.Status = domain.ExecutionStatus(status)
		r.Mode = domain.ExecutionMode(mode)
		r.Timestamp = parseTime(created)
		r.Metadata = domain.Metadata{}
		if md != "" {
			if err := json.Unmarshal([]byte(md), &r.Metadata); err != nil {
				return nil, fmt.Errorf("storage.OrderEvents: decode metadata: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
