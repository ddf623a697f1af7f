package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the outcome of one submission.
type ExecutionStatus string

const (
	ExecFilled    ExecutionStatus = "filled"
	ExecPartial   ExecutionStatus = "partial"
	ExecSubmitted ExecutionStatus = "submitted"
	ExecFailed    ExecutionStatus = "failed"
)

// ExecutionMode says how an order was (or would be) executed.
type ExecutionMode string

const (
	ModeOffline  ExecutionMode = "offline"
	ModeDryRun   ExecutionMode = "dry-run"
	ModeReadOnly ExecutionMode = "read-only"
	ModeLive     ExecutionMode = "live"
)

// ParseExecutionMode normaliza el modo configurado. Desconocido → offline.
func ParseExecutionMode(s string) ExecutionMode {
	switch ExecutionMode(s) {
	case ModeDryRun, ModeReadOnly, ModeLive:
		return ExecutionMode(s)
	case "dry_run", "dryrun":
		return ModeDryRun
	case "readonly", "read_only":
		return ModeReadOnly
	}
	return ModeOffline
}

// ExecutionReport summarises one submission and its initial fill.
// Immutable once built.
type ExecutionReport struct {
	OrderID           string
	MarketID          string
	Action            Action
	RequestedNotional float64
	RequestedShares   float64
	FilledNotional    float64
	FilledShares      float64
	AveragePrice      float64
	Fees              float64
	Status            ExecutionStatus
	Mode              ExecutionMode
	Metadata          Metadata
	Timestamp         time.Time
}

// ReportInput carries the fields for BuildExecutionReport.
type ReportInput struct {
	OrderID           string // vacío → se genera un UUID
	MarketID          string
	Action            Action
	RequestedNotional float64
	RequestedShares   float64
	FilledNotional    float64
	FilledShares      float64
	AveragePrice      float64
	Fees              float64
	Status            ExecutionStatus
	Mode              ExecutionMode
	Metadata          Metadata
	Timestamp         time.Time
}

// BuildExecutionReport rounds amounts to 6 decimals and fills in the order id
// and timestamp when absent.
func BuildExecutionReport(in ReportInput) ExecutionReport {
	id := in.OrderID
	if id == "" {
		id = NewOrderID()
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	avg := 0.0
	if in.FilledShares > 0 {
		avg = Round6(in.AveragePrice)
	}
	md := Metadata{}
	for k, v := range in.Metadata {
		md[k] = v
	}
	return ExecutionReport{
		OrderID:           id,
		MarketID:          in.MarketID,
		Action:            in.Action,
		RequestedNotional: Round6(in.RequestedNotional),
		RequestedShares:   Round6(in.RequestedShares),
		FilledNotional:    Round6(in.FilledNotional),
		FilledShares:      Round6(in.FilledShares),
		AveragePrice:      avg,
		Fees:              Round6(in.Fees),
		Status:            in.Status,
		Mode:              in.Mode,
		Metadata:          md,
		Timestamp:         ts,
	}
}

// RemainingNotional is requested minus filled, floored at 0.
func (r ExecutionReport) RemainingNotional() float64 {
	return math.Max(0, r.RequestedNotional-r.FilledNotional)
}

// IsFilled reports whether the requested notional is covered.
func (r ExecutionReport) IsFilled() bool {
	return r.RemainingNotional() <= FillEpsilon
}

// NewOrderID devuelve un id local (UUID sin guiones).
func NewOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FillEpsilon is the tolerance used when comparing filled vs requested.
const FillEpsilon = 1e-8

// Round6 redondea a 6 decimales.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Round4 redondea a 4 decimales.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// OrderSide is the venue side of a signed order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// SubmitRequest is what the execution engine hands to the live submitter.
// Price and Shares are already rounded to venue precision.
type SubmitRequest struct {
	LocalID  string
	MarketID string
	TokenID  string
	Side     OrderSide
	Price    float64 // precio del token (no yes-price cuando se opera NO)
	Shares   float64
	NegRisk  bool
}

// SubmitResult is the venue acknowledgement of a submission.
type SubmitResult struct {
	VenueOrderID string
	Status       string
	TxHashes     []string
}

// VenueOrder es el estado de una orden tal como la reporta el venue.
type VenueOrder struct {
	VenueOrderID string
	MarketID     string
	TokenID      string
	Side         OrderSide
	Price        float64
	OriginalSize float64 // shares
	SizeMatched  float64 // shares
	Status       string  // LIVE | MATCHED | CANCELED ...
}

// Terminal reports whether the venue will not fill the order any further.
func (v VenueOrder) Terminal() bool {
	switch v.Status {
	case "MATCHED", "CANCELED", "CANCELLED", "EXPIRED", "INVALID":
		return true
	}
	return false
}
