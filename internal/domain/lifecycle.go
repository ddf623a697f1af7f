package domain

import (
	"math"
	"time"
)

// OrderStatus is the lifecycle state of a tracked order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPartial   OrderStatus = "partial"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further fills are expected.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled
}

// Fill sources.
const (
	SourceInitial    = "initial"
	SourceSimulation = "simulation"
	SourceExternal   = "external"
)

// FillUpdate is one incremental fill applied to an OrderState.
type FillUpdate struct {
	OrderID   string
	Notional  float64
	Shares    float64
	Price     float64
	Fees      float64
	Mode      ExecutionMode
	Source    string
	Timestamp time.Time
	Metadata  Metadata
}

// OrderState is the aggregated lifecycle of one order.
type OrderState struct {
	OrderID           string
	MarketID          string
	Action            Action
	RequestedNotional float64
	RequestedShares   float64
	Mode              ExecutionMode
	Status            OrderStatus
	FilledNotional    float64
	FilledShares      float64
	AveragePrice      float64
	FeesTotal         float64
	Fills             []FillUpdate
	Metadata          Metadata
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RecordFill applies one fill. Fills with non-positive notional or shares are
// ignored, as are fills on an order that is already terminal. A fill larger
// than the remaining notional is clipped (shares and fees pro rata) so the
// filled notional never exceeds the requested notional.
// Returns the update actually applied.
func (o *OrderState) RecordFill(u FillUpdate) (FillUpdate, bool) {
	if u.Shares <= 0 || u.Notional <= 0 || o.Status.Terminal() {
		return FillUpdate{}, false
	}
	remaining := o.RemainingNotional()
	if remaining <= FillEpsilon {
		return FillUpdate{}, false
	}
	if u.Notional > remaining {
		ratio := remaining / u.Notional
		u.Shares *= ratio
		u.Fees *= ratio
		u.Notional = remaining
	}

	prevShares := o.FilledShares
	o.FilledNotional = Round6(o.FilledNotional + u.Notional)
	o.FilledShares = Round6(o.FilledShares + u.Shares)
	weight := math.Max(o.FilledShares, 1e-12)
	o.AveragePrice = Round6((o.AveragePrice*prevShares + u.Price*u.Shares) / weight)
	o.FeesTotal = Round6(o.FeesTotal + u.Fees)
	if u.Mode != "" {
		o.Mode = u.Mode
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}
	if u.Source == "" {
		u.Source = SourceSimulation
	}
	u.OrderID = o.OrderID
	u.Notional = Round6(u.Notional)
	u.Shares = Round6(u.Shares)
	u.Price = Round6(u.Price)
	u.Fees = Round6(u.Fees)
	u.Mode = o.Mode
	o.Fills = append(o.Fills, u)
	o.UpdatedAt = u.Timestamp

	if o.FilledNotional+FillEpsilon >= o.RequestedNotional || o.FilledShares+FillEpsilon >= o.RequestedShares {
		o.Status = OrderFilled
	} else {
		o.Status = OrderPartial
	}
	return u, true
}

// RemainingNotional is requested minus filled, floored at 0.
func (o *OrderState) RemainingNotional() float64 {
	return math.Max(0, o.RequestedNotional-o.FilledNotional)
}

// RemainingShares is requested minus filled shares, floored at 0.
func (o *OrderState) RemainingShares() float64 {
	return math.Max(0, o.RequestedShares-o.FilledShares)
}

// FilledRatio is filled/requested notional in [0,1].
func (o *OrderState) FilledRatio() float64 {
	if o.RequestedNotional <= 0 {
		return 0
	}
	return Clamp(o.FilledNotional/o.RequestedNotional, 0, 1)
}

// OrderSummaryRow is one order line in a tracker summary.
type OrderSummaryRow struct {
	OrderID           string
	MarketID          string
	Action            Action
	Status            OrderStatus
	RequestedNotional float64
	FilledNotional    float64
	RemainingNotional float64
	RequestedShares   float64
	FilledShares      float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TrackerSummary aggregates tracker state for monitoring.
type TrackerSummary struct {
	TotalTracked int
	Counts       map[OrderStatus]int
	Pending      []OrderSummaryRow // newest first
	Latest       *OrderSummaryRow
}
