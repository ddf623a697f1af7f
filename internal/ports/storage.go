package ports

import (
	"context"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// TradeStorage persiste el historial de órdenes, fills, posiciones y salidas.
// Órdenes, fills y salidas son append-only; las posiciones se upsertean por
// market_id.
type TradeStorage interface {
	SaveOrderEvent(ctx context.Context, report domain.ExecutionReport) error
	SaveFill(ctx context.Context, fill domain.FillUpdate, marketID string) error

	UpsertPosition(ctx context.Context, pos domain.Position) error
	DeletePosition(ctx context.Context, marketID string) error
	LoadPositions(ctx context.Context) ([]domain.Position, error)

	SaveRealizedExit(ctx context.Context, exit domain.RealizedExit) error
	// RecentReturns devuelve los últimos n retornos realizados, más antiguo primero.
	RecentReturns(ctx context.Context, n int) ([]float64, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
