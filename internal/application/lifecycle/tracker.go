package lifecycle

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// Tracker sigue cada orden desde el envío hasta su estado terminal y mezcla
// los fills que llegan después (reconciliación con el CLOB).
//
// El mapa interno está protegido por un mutex. Llamadas sobre el mismo order
// id deben serializarse por el caller.
type Tracker struct {
	mu       sync.Mutex
	orders   map[string]*entry
	byMarket map[string][]string
	seq      uint64
	now      func() time.Time
}

type entry struct {
	state *domain.OrderState
	seq   uint64 // orden de registro
}

// New crea un tracker vacío.
func New() *Tracker {
	return &Tracker{
		orders:   make(map[string]*entry),
		byMarket: make(map[string][]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register crea el OrderState para un reporte y aplica el fill inicial que
// traiga. submitted → pending, failed → cancelled.
func (t *Tracker) Register(r domain.ExecutionReport) domain.OrderState {
	created := r.Timestamp
	if created.IsZero() {
		created = t.now()
	}
	st := &domain.OrderState{
		OrderID:           r.OrderID,
		MarketID:          r.MarketID,
		Action:            r.Action,
		RequestedNotional: domain.Round6(r.RequestedNotional),
		RequestedShares:   domain.Round6(r.RequestedShares),
		Mode:              r.Mode,
		Status:            initialStatus(r.Status),
		Metadata:          r.Metadata.Clone(),
		CreatedAt:         created,
		UpdatedAt:         created,
	}
	if st.Status != domain.OrderCancelled && r.FilledShares > 0 && r.FilledNotional > 0 {
		price := r.AveragePrice
		if price == 0 {
			price, _ = r.Metadata.Float("reference_price")
		}
		st.RecordFill(domain.FillUpdate{
			Notional:  r.FilledNotional,
			Shares:    r.FilledShares,
			Price:     price,
			Fees:      r.Fees,
			Mode:      r.Mode,
			Source:    domain.SourceInitial,
			Timestamp: created,
		})
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.orders[st.OrderID]; dup {
		slog.Warn("lifecycle: order re-registered, replacing state", "order", st.OrderID)
		t.unindex(st.OrderID)
	}
	t.seq++
	t.orders[st.OrderID] = &entry{state: st, seq: t.seq}
	t.byMarket[st.MarketID] = append(t.byMarket[st.MarketID], st.OrderID)
	return cloneState(st)
}

func initialStatus(s domain.ExecutionStatus) domain.OrderStatus {
	if s == domain.ExecFailed {
		return domain.OrderCancelled
	}
	return domain.OrderPending
}

// ApplyExternalFill aplica un fill a la orden u.OrderID. Orden desconocida,
// fill no positivo u orden terminal → ok=false y nada cambia. Devuelve el
// fill efectivamente aplicado (recortado al notional restante).
func (t *Tracker) ApplyExternalFill(u domain.FillUpdate) (domain.FillUpdate, bool) {
	if u.Source == "" {
		u.Source = domain.SourceExternal
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.orders[u.OrderID]
	if !ok {
		return domain.FillUpdate{}, false
	}
	return e.state.RecordFill(u)
}

// Get devuelve una copia del estado de la orden.
func (t *Tracker) Get(orderID string) (domain.OrderState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.orders[orderID]
	if !ok {
		return domain.OrderState{}, false
	}
	return cloneState(e.state), true
}

// ByMarket devuelve las órdenes de un mercado en orden de registro.
func (t *Tracker) ByMarket(marketID string) []domain.OrderState {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := t.byMarket[marketID]
	out := make([]domain.OrderState, 0, len(ids))
	for _, id := range ids {
		if e, ok := t.orders[id]; ok {
			out = append(out, cloneState(e.state))
		}
	}
	return out
}

// PendingOrders devuelve las órdenes pending o partial, más antiguas primero.
func (t *Tracker) PendingOrders() []domain.OrderState {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.OrderState
	for _, e := range t.sorted() {
		if !e.state.Status.Terminal() {
			out = append(out, cloneState(e.state))
		}
	}
	return out
}

// Finalise fuerza un estado terminal: filled si el notional está cubierto,
// cancelled si no.
func (t *Tracker) Finalise(orderID string) (domain.OrderState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.orders[orderID]
	if !ok {
		return domain.OrderState{}, false
	}
	st := e.state
	if st.FilledNotional+domain.FillEpsilon >= st.RequestedNotional {
		st.Status = domain.OrderFilled
	} else {
		st.Status = domain.OrderCancelled
	}
	st.UpdatedAt = t.now()
	return cloneState(st), true
}

// PruneCompleted elimina las órdenes terminales. Con keepLatest conserva la
// última terminal registrada. Devuelve cuántas se eliminaron.
func (t *Tracker) PruneCompleted(keepLatest bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var removable []string
	for _, e := range t.sorted() {
		if e.state.Status.Terminal() {
			removable = append(removable, e.state.OrderID)
		}
	}
	if keepLatest && len(removable) > 0 {
		removable = removable[:len(removable)-1]
	}
	for _, id := range removable {
		t.unindex(id)
		delete(t.orders, id)
	}
	return len(removable)
}

// Summary agrega el estado para monitoreo: conteos por status, las últimas
// limit órdenes pendientes (más nuevas primero) y la última orden registrada.
// limit <= 0 no recorta.
func (t *Tracker) Summary(limit int) domain.TrackerSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	sum := domain.TrackerSummary{
		TotalTracked: len(t.orders),
		Counts: map[domain.OrderStatus]int{
			domain.OrderPending:   0,
			domain.OrderPartial:   0,
			domain.OrderFilled:    0,
			domain.OrderCancelled: 0,
		},
	}
	all := t.sorted()
	for i := len(all) - 1; i >= 0; i-- {
		st := all[i].state
		sum.Counts[st.Status]++
		if !st.Status.Terminal() && (limit <= 0 || len(sum.Pending) < limit) {
			sum.Pending = append(sum.Pending, summaryRow(st))
		}
	}
	if len(all) > 0 {
		latest := summaryRow(all[len(all)-1].state)
		sum.Latest = &latest
	}
	return sum
}

// sorted devuelve las entradas por CreatedAt y luego orden de registro.
// Requiere t.mu.
func (t *Tracker) sorted() []*entry {
	out := make([]*entry, 0, len(t.orders))
	for _, e := range t.orders {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *entry) int {
		if c := a.state.CreatedAt.Compare(b.state.CreatedAt); c != 0 {
			return c
		}
		if a.seq < b.seq {
			return -1
		}
		return 1
	})
	return out
}

// unindex quita orderID del índice por mercado. Requiere t.mu.
func (t *Tracker) unindex(orderID string) {
	e, ok := t.orders[orderID]
	if !ok {
		return
	}
	m := e.state.MarketID
	ids := slices.DeleteFunc(t.byMarket[m], func(id string) bool { return id == orderID })
	if len(ids) == 0 {
		delete(t.byMarket, m)
		return
	}
	t.byMarket[m] = ids
}

func summaryRow(st *domain.OrderState) domain.OrderSummaryRow {
	return domain.OrderSummaryRow{
		OrderID:           st.OrderID,
		MarketID:          st.MarketID,
		Action:            st.Action,
		Status:            st.Status,
		RequestedNotional: st.RequestedNotional,
		FilledNotional:    st.FilledNotional,
		RemainingNotional: domain.Round6(st.RemainingNotional()),
		RequestedShares:   st.RequestedShares,
		FilledShares:      st.FilledShares,
		CreatedAt:         st.CreatedAt,
		UpdatedAt:         st.UpdatedAt,
	}
}

func cloneState(st *domain.OrderState) domain.OrderState {
	out := *st
	out.Fills = slices.Clone(st.Fills)
	out.Metadata = st.Metadata.Clone()
	return out
}
