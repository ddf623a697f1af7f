package execution

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polytrader/internal/domain"
	"github.com/alejandrodnm/polytrader/internal/ports"
)

// DefaultFeeTTL es cada cuánto se refresca el fee schedule.
const DefaultFeeTTL = 5 * time.Minute

// FeeManager cachea maker/taker fees con un TTL. Un refresh fallido deja los
// valores anteriores (inicialmente los defaults configurados).
type FeeManager struct {
	src ports.FeeSource
	ttl time.Duration
	now func() time.Time

	mu          sync.RWMutex
	current     domain.FeeSchedule
	lastAttempt time.Time
}

// NewFeeManager crea el manager. src puede ser nil: se usan solo los defaults.
func NewFeeManager(src ports.FeeSource, defaults domain.FeeSchedule, ttl time.Duration) *FeeManager {
	if ttl <= 0 {
		ttl = DefaultFeeTTL
	}
	return &FeeManager{src: src, ttl: ttl, now: time.Now, current: defaults}
}

// Current devuelve el schedule cacheado sin refrescar.
func (f *FeeManager) Current() domain.FeeSchedule {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Fees devuelve el schedule, refrescándolo antes si está vencido.
func (f *FeeManager) Fees(ctx context.Context) domain.FeeSchedule {
	f.mu.RLock()
	stale := f.src != nil && f.now().Sub(f.lastAttempt) >= f.ttl
	f.mu.RUnlock()
	if stale {
		f.refresh(ctx)
	}
	return f.Current()
}

// refresh consulta la fuente. Solo un caller refresca a la vez; el resto ve
// lastAttempt actualizado y sigue con el cache.
func (f *FeeManager) refresh(ctx context.Context) {
	f.mu.Lock()
	if f.now().Sub(f.lastAttempt) < f.ttl {
		f.mu.Unlock()
		return
	}
	f.lastAttempt = f.now()
	prev := f.current
	f.mu.Unlock()

	fetched, err := f.src.FetchFees(ctx)
	if err != nil {
		slog.Warn("fees: refresh failed, keeping cached rates", "maker", prev.Maker, "taker", prev.Taker, "err", err)
		return
	}
	if fetched.FetchedAt.IsZero() {
		fetched.FetchedAt = f.now()
	}

	f.mu.Lock()
	f.current = fetched
	f.mu.Unlock()
	slog.Debug("fees: refreshed", "maker", fetched.Maker, "taker", fetched.Taker)
}
