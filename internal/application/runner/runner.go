// Package runner orquesta el loop de trading: snapshots → señales → riesgo →
// ejecución → tracker, y las salidas de las posiciones abiertas.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alejandrodnm/polytrader/internal/application/execution"
	"github.com/alejandrodnm/polytrader/internal/application/exits"
	"github.com/alejandrodnm/polytrader/internal/application/lifecycle"
	"github.com/alejandrodnm/polytrader/internal/domain"
	"github.com/alejandrodnm/polytrader/internal/ports"
)

// DefaultReturnsWindow es cuántos retornos realizados alimentan al VaR.
const DefaultReturnsWindow = 200

// OrderGenerator produce el intent de un mercado (strategy engine).
type OrderGenerator interface {
	GenerateOrder(s domain.MarketSnapshot) domain.OrderIntent
	UpdateRuntimeBalance(balance *float64)
}

// RiskValidator valida un intent contra el portfolio.
type RiskValidator interface {
	Validate(intent *domain.OrderIntent, p domain.Portfolio) domain.RiskReport
}

// Executor ejecuta una orden aprobada.
type Executor interface {
	Execute(ctx context.Context, req execution.Request) domain.ExecutionReport
}

// FeeRefresher refresca el fee schedule al inicio de cada tick.
type FeeRefresher interface {
	Fees(ctx context.Context) domain.FeeSchedule
}

// Config contiene la configuración del runner.
type Config struct {
	Interval       time.Duration
	Workers        int // 0 = NumCPU*2
	MarketLimit    int
	SummaryLimit   int
	ReturnsWindow  int
	InitialBalance float64
	Once           bool // un solo tick y salir
}

// Deps son los colaboradores del runner. Storage, Notifier, Balance y Fees
// son opcionales.
type Deps struct {
	Snapshots ports.SnapshotProvider
	Engine    OrderGenerator
	Risk      RiskValidator
	Executor  Executor
	Tracker   *lifecycle.Tracker
	Exits     *exits.Set
	Storage   ports.TradeStorage
	Notifier  ports.Notifier
	Balance   ports.BalanceSource
	Fees      FeeRefresher
}

// pendingOpen es una posición cuya orden de apertura todavía puede recibir
// fills. tokenSpace indica que los precios de los fills son del token
// comprado (órdenes live) y no yes-price.
type pendingOpen struct {
	pos        *domain.Position
	tokenSpace bool
}

// Runner es dueño del portfolio: posiciones abiertas, balance y ventana de
// retornos realizados.
type Runner struct {
	cfg  Config
	deps Deps
	now  func() time.Time

	mu        sync.Mutex
	positions map[string]*domain.Position
	pending   map[string]pendingOpen // por order id
	balance   float64                // equity del ledger paper
	onChain   *float64               // último balance on-chain
	returns   []float64
}

// New crea un Runner.
func New(cfg Config, deps Deps) *Runner {
	if cfg.ReturnsWindow <= 0 {
		cfg.ReturnsWindow = DefaultReturnsWindow
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if deps.Tracker == nil {
		deps.Tracker = lifecycle.New()
	}
	if deps.Exits == nil {
		deps.Exits = exits.DefaultSet()
	}
	return &Runner{
		cfg:       cfg,
		deps:      deps,
		now:       func() time.Time { return time.Now().UTC() },
		positions: make(map[string]*domain.Position),
		pending:   make(map[string]pendingOpen),
		balance:   cfg.InitialBalance,
	}
}

// Restore carga posiciones abiertas y retornos recientes desde storage.
func (r *Runner) Restore(ctx context.Context) error {
	if r.deps.Storage == nil {
		return nil
	}
	positions, err := r.deps.Storage.LoadPositions(ctx)
	if err != nil {
		return fmt.Errorf("runner.Restore: load positions: %w", err)
	}
	returns, err := r.deps.Storage.RecentReturns(ctx, r.cfg.ReturnsWindow)
	if err != nil {
		return fmt.Errorf("runner.Restore: load returns: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range positions {
		p := positions[i]
		r.positions[p.MarketID] = &p
	}
	r.returns = returns
	slog.Info("runner: state restored", "positions", len(positions), "returns", len(returns))
	return nil
}

// Run ejecuta ticks hasta que el contexto se cancele. Con cfg.Once corre uno solo.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("runner starting",
		"interval", r.cfg.Interval,
		"workers", r.cfg.Workers,
		"once", r.cfg.Once,
	)

	if _, err := r.Tick(ctx); err != nil {
		slog.Error("tick failed", "err", err)
		if r.cfg.Once {
			return err
		}
	}
	if r.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("runner stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Tick(ctx); err != nil {
				slog.Error("tick failed", "err", err)
			}
		}
	}
}

// marketResult es lo que produce un worker para un mercado.
type marketResult struct {
	hold         bool
	riskRejected bool
	executed     []domain.ExecutionReport
	closed       *domain.RealizedExit
}

// Tick ejecuta un ciclo completo y lo notifica.
func (r *Runner) Tick(ctx context.Context) (domain.TickReport, error) {
	start := r.now()

	r.refreshBalance(ctx)
	if r.deps.Fees != nil {
		r.deps.Fees.Fees(ctx)
	}

	snaps, err := r.deps.Snapshots.FetchSnapshots(ctx, r.cfg.MarketLimit)
	if err != nil {
		return domain.TickReport{}, fmt.Errorf("runner.Tick: fetch snapshots: %w", err)
	}

	results := processConcurrent(ctx, snaps, r.cfg.Workers, r.processMarket)

	report := domain.TickReport{StartedAt: start, Markets: len(results)}
	for _, res := range results {
		if res.hold {
			report.Holds++
		}
		if res.riskRejected {
			report.RiskRejected++
		}
		report.Executed = append(report.Executed, res.executed...)
		if res.closed != nil {
			report.Closed = append(report.Closed, *res.closed)
		}
	}
	report.Summary = r.deps.Tracker.Summary(r.cfg.SummaryLimit)
	r.deps.Tracker.PruneCompleted(true)

	r.mu.Lock()
	report.OpenPositions = len(r.positions)
	report.Balance = r.balanceLocked()
	r.mu.Unlock()
	report.Duration = r.now().Sub(start)

	if r.deps.Notifier != nil {
		if err := r.deps.Notifier.NotifyTick(ctx, report); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}
	slog.Info("tick complete",
		"markets", report.Markets,
		"executed", len(report.Executed),
		"closed", len(report.Closed),
		"holds", report.Holds,
		"risk_rejected", report.RiskRejected,
		"open_positions", report.OpenPositions,
		"duration", report.Duration.Round(time.Millisecond),
	)
	return report, nil
}

// refreshBalance lee el balance on-chain (si hay fuente) y actualiza la
// referencia de sizing del strategy engine.
func (r *Runner) refreshBalance(ctx context.Context) {
	if r.deps.Balance != nil {
		bal, err := r.deps.Balance.GetBalance(ctx)
		if err != nil {
			slog.Warn("runner: balance refresh failed, using last known", "err", err)
		} else {
			r.mu.Lock()
			r.onChain = &bal
			r.mu.Unlock()
		}
	}
	r.mu.Lock()
	bal := r.balanceLocked()
	r.mu.Unlock()
	r.deps.Engine.UpdateRuntimeBalance(&bal)
}

// balanceLocked requiere r.mu.
func (r *Runner) balanceLocked() float64 {
	if r.onChain != nil {
		return *r.onChain
	}
	return r.balance
}

// Portfolio devuelve una copia del estado que valida el risk engine.
func (r *Runner) Portfolio() domain.Portfolio {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.Portfolio{Balance: r.balanceLocked(), Returns: slices.Clone(r.returns)}
}

// Positions devuelve copias de las posiciones abiertas.
func (r *Runner) Positions() []domain.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Position, 0, len(r.positions))
	for _, p := range r.positions {
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b domain.Position) int {
		if a.MarketID < b.MarketID {
			return -1
		}
		if a.MarketID > b.MarketID {
			return 1
		}
		return 0
	})
	return out
}

func (r *Runner) processMarket(ctx context.Context, snap domain.MarketSnapshot) marketResult {
	r.mu.Lock()
	pos := r.positions[snap.MarketID]
	opening := r.openingLocked(snap.MarketID)
	r.mu.Unlock()

	if pos != nil {
		return r.manageExit(ctx, pos, snap)
	}
	if opening {
		return marketResult{hold: true}
	}
	return r.open(ctx, snap)
}

// openingLocked reports whether an open order for marketID may still fill.
func (r *Runner) openingLocked(marketID string) bool {
	for _, p := range r.pending {
		if p.pos.MarketID == marketID {
			return true
		}
	}
	return false
}

// --- apertura ---

func (r *Runner) open(ctx context.Context, snap domain.MarketSnapshot) marketResult {
	intent := r.deps.Engine.GenerateOrder(snap)
	if intent.IsHold() {
		slog.Debug("runner: hold", "market", snap.MarketID, "reason", intent.HoldReason)
		return marketResult{hold: true}
	}

	rr := r.deps.Risk.Validate(&intent, r.Portfolio())
	if !rr.Approved {
		slog.Info("runner: risk rejected", "market", snap.MarketID,
			"size", intent.Size, "failed", rr.FailedFactors)
		return marketResult{riskRejected: true}
	}

	names := make([]string, 0, len(intent.Contributions))
	for _, c := range intent.Contributions {
		names = append(names, c.Name)
	}
	rep := r.deps.Executor.Execute(ctx, execution.Request{
		MarketID: snap.MarketID,
		Action:   intent.Action,
		Notional: intent.Size,
		Snapshot: snap,
		Metadata: domain.Metadata{
			"combined_score": intent.CombinedScore,
			"confidence":     intent.Confidence,
			"strategies":     names,
		},
	})
	st := r.finaliseSimulated(r.register(ctx, rep))
	res := marketResult{executed: []domain.ExecutionReport{rep}}
	if rep.Status == domain.ExecFailed {
		return res
	}

	pos := &domain.Position{
		MarketID: snap.MarketID,
		OrderID:  rep.OrderID,
		Side:     intent.Action,
		OpenedAt: r.now(),
	}
	r.deps.Exits.Capture(pos, intent.Contributions)

	r.mu.Lock()
	r.pending[rep.OrderID] = pendingOpen{pos: pos, tokenSpace: rep.Mode == domain.ModeLive}
	r.mu.Unlock()

	for _, f := range st.Fills {
		r.OnFill(ctx, rep.OrderID, f)
	}
	if st.Status.Terminal() {
		r.OnFinal(rep.OrderID)
	}
	return res
}

// register registra el reporte en el tracker y lo persiste.
func (r *Runner) register(ctx context.Context, rep domain.ExecutionReport) domain.OrderState {
	st := r.deps.Tracker.Register(rep)
	if r.deps.Storage == nil {
		return st
	}
	if err := r.deps.Storage.SaveOrderEvent(ctx, rep); err != nil {
		slog.Warn("storage: save order event", "order", rep.OrderID, "err", err)
	}
	for _, f := range st.Fills {
		if err := r.deps.Storage.SaveFill(ctx, f, rep.MarketID); err != nil {
			slog.Warn("storage: save fill", "order", rep.OrderID, "err", err)
		}
	}
	return st
}

// finaliseSimulated cierra en el tracker una orden que no fue al venue: fuera
// de live no llegan más fills, así que un parcial no puede quedar abierto.
func (r *Runner) finaliseSimulated(st domain.OrderState) domain.OrderState {
	if st.Mode == domain.ModeLive || st.Status.Terminal() {
		return st
	}
	final, ok := r.deps.Tracker.Finalise(st.OrderID)
	if !ok {
		return st
	}
	slog.Debug("runner: simulated order finalised", "order", st.OrderID, "status", final.Status)
	return final
}

// OnFill aplica un fill de una orden de apertura a su posición. La posición
// se crea con el primer fill.
func (r *Runner) OnFill(ctx context.Context, orderID string, f domain.FillUpdate) {
	r.mu.Lock()
	p, ok := r.pending[orderID]
	if !ok || f.Shares <= 0 {
		r.mu.Unlock()
		return
	}
	yes := f.Price
	if p.tokenSpace && p.pos.Side == domain.ActionNo {
		yes = 1 - f.Price
	}
	pos := r.positions[p.pos.MarketID]
	if pos == nil {
		pos = p.pos
		r.positions[pos.MarketID] = pos
	}
	total := pos.Shares + f.Shares
	pos.EntryYes = domain.Round6((pos.EntryYes*pos.Shares + yes*f.Shares) / total)
	pos.Shares = domain.Round6(total)
	pos.Notional = domain.Round6(pos.Notional + f.Notional)
	if r.onChain == nil {
		r.balance -= f.Fees
	}
	snapshot := pos.Clone()
	r.mu.Unlock()

	r.persistPosition(ctx, snapshot)
}

// OnFinal deja de aceptar fills de apertura para orderID.
func (r *Runner) OnFinal(orderID string) {
	r.mu.Lock()
	delete(r.pending, orderID)
	r.mu.Unlock()
}

// --- salida ---

func (r *Runner) manageExit(ctx context.Context, pos *domain.Position, snap domain.MarketSnapshot) marketResult {
	now := r.now()

	r.mu.Lock()
	out := r.deps.Exits.Evaluate(pos, snap, now)
	snapshot := pos.Clone()
	r.mu.Unlock()

	if !out.ShouldClose() {
		r.persistPosition(ctx, snapshot)
		return marketResult{hold: true}
	}
	reason := out.Close.Decision.Reason
	strat := out.Close.Strategy

	rep := r.deps.Executor.Execute(ctx, execution.Request{
		MarketID: pos.MarketID,
		Action:   pos.Side.Opposite(),
		Shares:   snapshot.Shares,
		Reduce:   true,
		Snapshot: snap,
		Metadata: domain.Metadata{
			"exit_reason":   reason,
			"exit_strategy": strat,
			"position":      pos.OrderID,
		},
	})
	r.finaliseSimulated(r.register(ctx, rep))
	res := marketResult{executed: []domain.ExecutionReport{rep}}
	if rep.Status == domain.ExecFailed {
		slog.Warn("runner: close failed, keeping position", "market", pos.MarketID, "reason", reason)
		return res
	}

	// Un close enviado al venue se da por ejecutado al precio de referencia;
	// el reconciler sigue sus fills.
	closedShares := rep.FilledShares
	exitYes := rep.AveragePrice
	if closedShares <= 0 {
		closedShares = snapshot.Shares
		exitYes, _ = rep.Metadata.Float("reference_price")
	}
	realized := r.settle(ctx, pos, closedShares, exitYes, strat, reason, rep.Fees, now)
	slog.Info("runner: position closed",
		"market", pos.MarketID,
		"strategy", strat,
		"reason", reason,
		"pnl", realized.RealizedPnL,
		"return", realized.ReturnPct,
	)
	res.closed = &realized
	return res
}

// settle realiza closedShares de pos a exitYes. Un cierre parcial deja el
// resto abierto con notional pro rata.
func (r *Runner) settle(ctx context.Context, pos *domain.Position, closedShares, exitYes float64, strat, reason string, fees float64, at time.Time) domain.RealizedExit {
	r.mu.Lock()
	part := *pos
	full := closedShares >= pos.Shares-domain.FillEpsilon
	if !full && pos.Shares > 0 {
		ratio := closedShares / pos.Shares
		part.Shares = domain.Round6(closedShares)
		part.Notional = domain.Round6(pos.Notional * ratio)
		pos.Shares = domain.Round6(pos.Shares - closedShares)
		pos.Notional = domain.Round6(pos.Notional - part.Notional)
	}
	realized := part.CloseAt(exitYes, strat, reason, at)
	if full {
		delete(r.positions, pos.MarketID)
	}
	if r.onChain == nil {
		r.balance += realized.RealizedPnL - fees
	}
	r.returns = append(r.returns, realized.ReturnPct)
	if over := len(r.returns) - r.cfg.ReturnsWindow; over > 0 {
		r.returns = slices.Delete(r.returns, 0, over)
	}
	remaining := pos.Clone()
	r.mu.Unlock()

	if r.deps.Storage == nil {
		return realized
	}
	if err := r.deps.Storage.SaveRealizedExit(ctx, realized); err != nil {
		slog.Warn("storage: save realized exit", "market", pos.MarketID, "err", err)
	}
	if full {
		if err := r.deps.Storage.DeletePosition(ctx, pos.MarketID); err != nil {
			slog.Warn("storage: delete position", "market", pos.MarketID, "err", err)
		}
	} else {
		r.persistPosition(ctx, remaining)
	}
	return realized
}

func (r *Runner) persistPosition(ctx context.Context, p domain.Position) {
	if r.deps.Storage == nil {
		return
	}
	if err := r.deps.Storage.UpsertPosition(ctx, p); err != nil {
		slog.Warn("storage: upsert position", "market", p.MarketID, "err", err)
	}
}
