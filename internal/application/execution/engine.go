package execution

import (
	"context"
	"log/slog"
	"math"

	"github.com/alejandrodnm/polytrader/internal/domain"
	"github.com/alejandrodnm/polytrader/internal/ports"
)

const (
	minPrice = 0.01
	maxPrice = 0.99
)

// FeeRates es lo que el engine necesita del FeeManager.
type FeeRates interface {
	Fees(ctx context.Context) domain.FeeSchedule
}

// Config holds execution settings.
type Config struct {
	Mode          domain.ExecutionMode
	SlippageModel string
}

// Request es una orden aprobada lista para ejecutar. Action está en espacio
// yes-price: para cerrar una posición se pasa la acción opuesta y Reduce=true.
type Request struct {
	MarketID string
	Action   domain.Action
	Notional float64
	// Shares fija la cantidad (p.ej. al cerrar); si es 0 se deriva del notional.
	Shares   float64
	Reduce   bool
	Snapshot domain.MarketSnapshot
	Metadata domain.Metadata
}

// Engine convierte órdenes aprobadas en fills simulados o en órdenes firmadas.
type Engine struct {
	cfg       Config
	fees      FeeRates
	submitter ports.OrderSubmitter
}

// New crea el engine. En modo live sin submitter se simula (dry-run).
func New(cfg Config, fees FeeRates, submitter ports.OrderSubmitter) *Engine {
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeOffline
	}
	if cfg.Mode == domain.ModeLive && submitter == nil {
		slog.Warn("execution: live mode without signing key, simulating fills")
		cfg.Mode = domain.ModeDryRun
	}
	return &Engine{cfg: cfg, fees: fees, submitter: submitter}
}

// Mode devuelve el modo efectivo.
func (e *Engine) Mode() domain.ExecutionMode { return e.cfg.Mode }

// Execute ejecuta req. Nunca devuelve error: los fallos de envío quedan en un
// reporte con status failed y fill 0.
func (e *Engine) Execute(ctx context.Context, req Request) domain.ExecutionReport {
	price := ReferencePrice(req.Action, req.Snapshot)
	if e.cfg.Mode == domain.ModeLive {
		return e.submit(ctx, req, price)
	}
	return e.simulate(ctx, req, price)
}

func (e *Engine) simulate(ctx context.Context, req Request, price float64) domain.ExecutionReport {
	requestedShares := req.Notional / price
	notional := req.Notional
	if req.Shares > 0 {
		requestedShares = req.Shares
		notional = req.Shares * price
	}

	filledShares := requestedShares
	if liq, ok := availableShares(req.Action, req.Snapshot); ok {
		filledShares = math.Min(requestedShares, liq)
	}
	filledShares = domain.Round6(filledShares)
	filledNotional := domain.Round6(filledShares * price)
	if filledNotional <= 0 && notional > 0 {
		filledShares, filledNotional = requestedShares, notional
	}

	status := domain.ExecPartial
	if filledNotional >= notional-domain.FillEpsilon {
		status = domain.ExecFilled
	}
	fees := 0.0
	if e.fees != nil {
		fees = filledNotional * e.fees.Fees(ctx).RateFor(e.cfg.SlippageModel)
	}

	md := req.Metadata.Clone()
	md["reference_price"] = price
	md["slippage_model"] = e.cfg.SlippageModel
	md["reduce"] = req.Reduce
	return domain.BuildExecutionReport(domain.ReportInput{
		MarketID:          req.MarketID,
		Action:            req.Action,
		RequestedNotional: notional,
		RequestedShares:   requestedShares,
		FilledNotional:    filledNotional,
		FilledShares:      filledShares,
		AveragePrice:      price,
		Fees:              fees,
		Status:            status,
		Mode:              e.cfg.Mode,
		Metadata:          md,
	})
}

// submit firma y envía la orden. Compra el token YES para action yes y el
// token NO (a 1-precio) para action no; con Reduce vende el token que se tiene.
func (e *Engine) submit(ctx context.Context, req Request, price float64) domain.ExecutionReport {
	snap := req.Snapshot
	side := domain.SideBuy
	token := snap.YesToken
	tokenPrice := price
	switch {
	case !req.Reduce && req.Action == domain.ActionNo:
		token, tokenPrice = snap.NoToken, 1-price
	case req.Reduce && req.Action == domain.ActionNo:
		// cierra un long YES: vende YES al bid
		side = domain.SideSell
	case req.Reduce && req.Action == domain.ActionYes:
		// cierra un long NO: vende NO a 1-ask
		side, token, tokenPrice = domain.SideSell, snap.NoToken, 1-price
	}

	shares := req.Shares
	if shares <= 0 {
		shares = req.Notional / tokenPrice
	}
	units := toVenueUnits(tokenPrice, shares)
	if units.Lossy {
		slog.Warn("execution: lossy conversion to venue precision",
			"market", req.MarketID, "price", tokenPrice, "venue_price", units.Price,
			"shares", shares, "venue_shares", units.Shares)
	}

	localID := domain.NewOrderID()
	md := req.Metadata.Clone()
	md["token_id"] = token
	md["side"] = string(side)
	md["token_price"] = units.Price
	md["reference_price"] = price
	md["reduce"] = req.Reduce
	md["lossy_precision"] = units.Lossy
	notional := domain.Round6(units.Shares * units.Price)

	in := domain.ReportInput{
		OrderID:           localID,
		MarketID:          req.MarketID,
		Action:            req.Action,
		RequestedNotional: notional,
		RequestedShares:   units.Shares,
		Mode:              domain.ModeLive,
		Metadata:          md,
	}

	if token == "" || units.Shares <= 0 {
		md["error"] = "missing token id or zero size after precision conversion"
		in.Status = domain.ExecFailed
		slog.Warn("execution: submit skipped", "market", req.MarketID, "token", token, "shares", units.Shares)
		return domain.BuildExecutionReport(in)
	}

	res, err := e.submitter.SubmitOrder(ctx, domain.SubmitRequest{
		LocalID:  localID,
		MarketID: req.MarketID,
		TokenID:  token,
		Side:     side,
		Price:    units.Price,
		Shares:   units.Shares,
		NegRisk:  snap.NegRisk,
	})
	if err != nil {
		md["error"] = err.Error()
		in.Status = domain.ExecFailed
		slog.Warn("execution: submit failed", "market", req.MarketID, "side", side, "err", err)
		return domain.BuildExecutionReport(in)
	}

	md["venue_order_id"] = res.VenueOrderID
	md["venue_status"] = res.Status
	if len(res.TxHashes) > 0 {
		md["tx_hashes"] = res.TxHashes
	}
	in.Status = domain.ExecSubmitted
	slog.Info("execution: submitted", "market", req.MarketID, "side", side,
		"price", units.Price, "shares", units.Shares, "venue_id", res.VenueOrderID)
	return domain.BuildExecutionReport(in)
}

// ReferencePrice resuelve el precio yes de ejecución. yes: ask, yes_price,
// bid+1¢, 0.5. no: bid, yes_price, 0.5. Siempre dentro de [0.01, 0.99].
func ReferencePrice(action domain.Action, s domain.MarketSnapshot) float64 {
	price := 0.5
	switch {
	case action == domain.ActionYes && s.Ask != nil:
		price = *s.Ask
	case action != domain.ActionYes && s.Bid != nil:
		price = *s.Bid
	case s.YesPrice != nil:
		price = *s.YesPrice
	case action == domain.ActionYes && s.Bid != nil:
		price = *s.Bid + 0.01
	}
	return domain.Clamp(price, minPrice, maxPrice)
}

// availableShares devuelve la liquidez del lado de la acción. Cero o ausente
// cuenta como desconocida.
func availableShares(action domain.Action, s domain.MarketSnapshot) (float64, bool) {
	side := s.LiquidityNo
	if action == domain.ActionYes {
		side = s.LiquidityYes
	}
	for _, v := range []*float64{side, s.Liquidity} {
		if v != nil && *v > 0 {
			return *v, true
		}
	}
	return 0, false
}
