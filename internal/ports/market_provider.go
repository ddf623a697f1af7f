package ports

import (
	"context"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// SnapshotProvider devuelve las snapshots de los mercados a evaluar en un tick.
type SnapshotProvider interface {
	// FetchSnapshots returns at most limit active markets (limit <= 0: no cap).
	FetchSnapshots(ctx context.Context, limit int) ([]domain.MarketSnapshot, error)
}

// FeeSource obtiene el fee schedule vigente del venue.
type FeeSource interface {
	FetchFees(ctx context.Context) (domain.FeeSchedule, error)
}
