package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polytrader/internal/application/lifecycle"
	"github.com/alejandrodnm/polytrader/internal/domain"
	"github.com/alejandrodnm/polytrader/internal/ports"
)

// FillSink recibe los fills reconciliados (el Runner lo implementa).
type FillSink interface {
	OnFill(ctx context.Context, orderID string, f domain.FillUpdate)
	OnFinal(orderID string)
}

// Reconciler consulta el venue por las órdenes live pendientes y aplica al
// tracker los fills nuevos como deltas sobre lo ya registrado.
type Reconciler struct {
	tracker  *lifecycle.Tracker
	source   ports.OrderStatusSource
	storage  ports.TradeStorage // opcional
	sink     FillSink           // opcional
	interval time.Duration
	now      func() time.Time
}

// NewReconciler crea el poller. interval <= 0 usa 15s.
func NewReconciler(tracker *lifecycle.Tracker, source ports.OrderStatusSource, storage ports.TradeStorage, sink FillSink, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Reconciler{
		tracker:  tracker,
		source:   source,
		storage:  storage,
		sink:     sink,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run hace polling hasta que el contexto se cancele.
func (rc *Reconciler) Run(ctx context.Context) error {
	slog.Info("reconciler starting", "interval", rc.interval)
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopped")
			return nil
		case <-ticker.C:
			rc.Poll(ctx)
		}
	}
}

// Poll reconcilia una vez y devuelve cuántos fills aplicó. Los errores del
// venue se loguean y no cortan el poll.
func (rc *Reconciler) Poll(ctx context.Context) int {
	applied := 0
	for _, st := range rc.tracker.PendingOrders() {
		if ctx.Err() != nil {
			break
		}
		if st.Mode != domain.ModeLive {
			continue
		}
		venueID := st.Metadata.String("venue_order_id")
		if venueID == "" {
			continue
		}

		vo, found, err := rc.source.GetOrder(ctx, venueID)
		if err != nil {
			slog.Warn("reconcile: get order failed", "order", st.OrderID, "venue_id", venueID, "err", err)
			continue
		}
		if !found {
			slog.Warn("reconcile: anomaly, venue does not know order", "order", st.OrderID, "venue_id", venueID)
			continue
		}

		if delta := vo.SizeMatched - st.FilledShares; delta > domain.FillEpsilon {
			price := vo.Price
			if price <= 0 {
				price, _ = st.Metadata.Float("token_price")
			}
			fill, ok := rc.tracker.ApplyExternalFill(domain.FillUpdate{
				OrderID:   st.OrderID,
				Notional:  delta * price,
				Shares:    delta,
				Price:     price,
				Mode:      domain.ModeLive,
				Source:    domain.SourceExternal,
				Timestamp: rc.now(),
				Metadata:  domain.Metadata{"venue_order_id": venueID, "venue_status": vo.Status},
			})
			if ok {
				applied++
				slog.Info("reconcile: fill applied", "order", st.OrderID, "shares", fill.Shares, "price", fill.Price)
				if rc.storage != nil {
					if err := rc.storage.SaveFill(ctx, fill, st.MarketID); err != nil {
						slog.Warn("storage: save fill", "order", st.OrderID, "err", err)
					}
				}
				if rc.sink != nil {
					rc.sink.OnFill(ctx, st.OrderID, fill)
				}
			}
		}

		if vo.Terminal() {
			final, _ := rc.tracker.Finalise(st.OrderID)
			slog.Info("reconcile: order final", "order", st.OrderID, "venue_status", vo.Status, "status", final.Status)
			if rc.sink != nil {
				rc.sink.OnFinal(st.OrderID)
			}
		}
	}
	return applied
}
