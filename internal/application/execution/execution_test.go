package execution_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polytrader/internal/application/execution"
	"github.com/alejandrodnm/polytrader/internal/domain"
)

// --- Fakes ---

type fakeFeeSource struct {
	calls int
	fees  domain.FeeSchedule
	err   error
}

func (f *fakeFeeSource) FetchFees(_ context.Context) (domain.FeeSchedule, error) {
	f.calls++
	return f.fees, f.err
}

type fakeSubmitter struct {
	got []domain.SubmitRequest
	err error
}

func (f *fakeSubmitter) SubmitOrder(_ context.Context, req domain.SubmitRequest) (domain.SubmitResult, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return domain.SubmitResult{}, f.err
	}
	return domain.SubmitResult{VenueOrderID: "0xabc", Status: "live"}, nil
}

func taker(rate float64) *execution.FeeManager {
	return execution.NewFeeManager(nil, domain.FeeSchedule{Maker: 0, Taker: rate}, 0)
}

func quoted(bid, ask float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		MarketID: "m1",
		YesToken: "111",
		NoToken:  "222",
		Bid:      domain.Float(bid),
		Ask:      domain.Float(ask),
	}
}

// --- FeeManager ---

func TestFeeManager_RefreshesWhenStale(t *testing.T) {
	src := &fakeFeeSource{fees: domain.FeeSchedule{Maker: 0.001, Taker: 0.002}}
	fm := execution.NewFeeManager(src, domain.FeeSchedule{Taker: 0.005}, time.Hour)

	assert.InDelta(t, 0.005, fm.Current().Taker, 1e-12)

	got := fm.Fees(context.Background())
	assert.InDelta(t, 0.002, got.Taker, 1e-12)
	assert.False(t, got.FetchedAt.IsZero())
	assert.Equal(t, 1, src.calls)

	// dentro del TTL no vuelve a consultar
	fm.Fees(context.Background())
	assert.Equal(t, 1, src.calls)
}

func TestFeeManager_FailureKeepsPrevious(t *testing.T) {
	src := &fakeFeeSource{err: errors.New("boom")}
	fm := execution.NewFeeManager(src, domain.FeeSchedule{Maker: 0.001, Taker: 0.005}, time.Hour)

	got := fm.Fees(context.Background())
	assert.InDelta(t, 0.005, got.Taker, 1e-12)
	assert.InDelta(t, 0.001, got.Maker, 1e-12)
	assert.Equal(t, 1, src.calls)

	// el intento fallido también cuenta para el TTL
	fm.Fees(context.Background())
	assert.Equal(t, 1, src.calls)
}

func TestFeeManager_NilSourceUsesDefaults(t *testing.T) {
	fm := execution.NewFeeManager(nil, domain.FeeSchedule{Taker: 0.01}, 0)
	assert.InDelta(t, 0.01, fm.Fees(context.Background()).Taker, 1e-12)
}

// --- ReferencePrice ---

func TestReferencePrice(t *testing.T) {
	cases := []struct {
		name   string
		action domain.Action
		snap   domain.MarketSnapshot
		want   float64
	}{
		{"yes uses ask", domain.ActionYes, quoted(0.40, 0.42), 0.42},
		{"no uses bid", domain.ActionNo, quoted(0.40, 0.42), 0.40},
		{"yes falls back to yes_price", domain.ActionYes, domain.MarketSnapshot{YesPrice: domain.Float(0.3)}, 0.3},
		{"yes falls back to bid plus cent", domain.ActionYes, domain.MarketSnapshot{Bid: domain.Float(0.3)}, 0.31},
		{"no without quotes", domain.ActionNo, domain.MarketSnapshot{}, 0.5},
		{"clamped high", domain.ActionYes, domain.MarketSnapshot{Ask: domain.Float(1.2)}, 0.99},
		{"clamped low", domain.ActionNo, domain.MarketSnapshot{Bid: domain.Float(0)}, 0.01},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, execution.ReferencePrice(tc.action, tc.snap), 1e-12)
		})
	}
}

// --- Simulation ---

func TestExecute_SimulatedFullFill(t *testing.T) {
	e := execution.New(execution.Config{Mode: domain.ModeOffline, SlippageModel: "taker"}, taker(0.005), nil)
	snap := domain.MarketSnapshot{MarketID: "m1", Ask: domain.Float(0.5), Liquidity: domain.Float(1000)}

	r := e.Execute(context.Background(), execution.Request{MarketID: "m1", Action: domain.ActionYes, Notional: 100, Snapshot: snap})

	assert.Equal(t, domain.ExecFilled, r.Status)
	assert.Equal(t, domain.ModeOffline, r.Mode)
	assert.InDelta(t, 100, r.FilledNotional, 1e-9)
	assert.InDelta(t, 200, r.FilledShares, 1e-9)
	assert.InDelta(t, 0.5, r.AveragePrice, 1e-9)
	assert.InDelta(t, 0.5, r.Fees, 1e-9)
	assert.NotEmpty(t, r.OrderID)
}

func TestExecute_PartialByLiquidity(t *testing.T) {
	e := execution.New(execution.Config{Mode: domain.ModeDryRun, SlippageModel: "taker"}, taker(0.01), nil)
	snap := quoted(0.48, 0.5)
	snap.LiquidityYes = domain.Float(50)

	r := e.Execute(context.Background(), execution.Request{MarketID: "m1", Action: domain.ActionYes, Notional: 100, Snapshot: snap})

	assert.Equal(t, domain.ExecPartial, r.Status)
	assert.InDelta(t, 50, r.FilledShares, 1e-9)
	assert.InDelta(t, 25, r.FilledNotional, 1e-9)
	assert.InDelta(t, 0.25, r.Fees, 1e-9)
	assert.InDelta(t, 75, r.RemainingNotional(), 1e-9)
}

func TestExecute_MakerModelUsesMakerRate(t *testing.T) {
	fm := execution.NewFeeManager(nil, domain.FeeSchedule{Maker: 0.001, Taker: 0.01}, 0)
	e := execution.New(execution.Config{SlippageModel: "maker"}, fm, nil)

	r := e.Execute(context.Background(), execution.Request{MarketID: "m1", Action: domain.ActionNo, Notional: 40, Snapshot: quoted(0.4, 0.42)})
	assert.Equal(t, domain.ExecFilled, r.Status)
	assert.InDelta(t, 0.04, r.Fees, 1e-9)
	assert.InDelta(t, 100, r.FilledShares, 1e-9)
}

func TestExecute_SharesOverrideNotional(t *testing.T) {
	e := execution.New(execution.Config{}, taker(0), nil)
	r := e.Execute(context.Background(), execution.Request{
		MarketID: "m1", Action: domain.ActionNo, Shares: 10, Reduce: true, Snapshot: quoted(0.6, 0.62),
	})
	assert.InDelta(t, 10, r.FilledShares, 1e-9)
	assert.InDelta(t, 6, r.FilledNotional, 1e-9)
	assert.Equal(t, true, r.Metadata["reduce"])
}

// --- Live ---

func TestExecute_LiveWithoutSubmitterIsDryRun(t *testing.T) {
	e := execution.New(execution.Config{Mode: domain.ModeLive}, taker(0), nil)
	assert.Equal(t, domain.ModeDryRun, e.Mode())

	r := e.Execute(context.Background(), execution.Request{MarketID: "m1", Action: domain.ActionYes, Notional: 10, Snapshot: quoted(0.4, 0.5)})
	assert.Equal(t, domain.ExecFilled, r.Status)
	assert.Equal(t, domain.ModeDryRun, r.Mode)
}

func TestExecute_LiveBuysYesToken(t *testing.T) {
	sub := &fakeSubmitter{}
	e := execution.New(execution.Config{Mode: domain.ModeLive}, taker(0), sub)

	r := e.Execute(context.Background(), execution.Request{MarketID: "m1", Action: domain.ActionYes, Notional: 10, Snapshot: quoted(0.4, 0.5)})

	require.Len(t, sub.got, 1)
	assert.Equal(t, "111", sub.got[0].TokenID)
	assert.Equal(t, domain.SideBuy, sub.got[0].Side)
	assert.InDelta(t, 0.5, sub.got[0].Price, 1e-12)
	assert.InDelta(t, 20, sub.got[0].Shares, 1e-12)

	assert.Equal(t, domain.ExecSubmitted, r.Status)
	assert.Equal(t, domain.ModeLive, r.Mode)
	assert.Zero(t, r.FilledNotional)
	assert.Equal(t, "0xabc", r.Metadata["venue_order_id"])
	assert.Equal(t, "111", r.Metadata["token_id"])
}

func TestExecute_LiveNoBuysNoTokenAtComplement(t *testing.T) {
	sub := &fakeSubmitter{}
	e := execution.New(execution.Config{Mode: domain.ModeLive}, taker(0), sub)

	e.Execute(context.Background(), execution.Request{MarketID: "m1", Action: domain.ActionNo, Notional: 12, Snapshot: quoted(0.4, 0.5)})

	require.Len(t, sub.got, 1)
	assert.Equal(t, "222", sub.got[0].TokenID)
	assert.Equal(t, domain.SideBuy, sub.got[0].Side)
	assert.InDelta(t, 0.6, sub.got[0].Price, 1e-12)
	assert.InDelta(t, 20, sub.got[0].Shares, 1e-12)
}

func TestExecute_LiveReduceSellsHeldToken(t *testing.T) {
	sub := &fakeSubmitter{}
	e := execution.New(execution.Config{Mode: domain.ModeLive}, taker(0), sub)
	snap := quoted(0.4, 0.5)

	// cerrar long YES
	e.Execute(context.Background(), execution.Request{MarketID: "m1", Action: domain.ActionNo, Shares: 15, Reduce: true, Snapshot: snap})
	// cerrar long NO
	e.Execute(context.Background(), execution.Request{MarketID: "m1", Action: domain.ActionYes, Shares: 15, Reduce: true, Snapshot: snap})

	require.Len(t, sub.got, 2)
	assert.Equal(t, "111", sub.got[0].TokenID)
	assert.Equal(t, domain.SideSell, sub.got[0].Side)
	assert.InDelta(t, 0.4, sub.got[0].Price, 1e-12)
	assert.Equal(t, "222", sub.got[1].TokenID)
	assert.Equal(t, domain.SideSell, sub.got[1].Side)
	assert.InDelta(t, 0.5, sub.got[1].Price, 1e-12)
	assert.InDelta(t, 15, sub.got[1].Shares, 1e-12)
}

func TestExecute_LiveFailureReported(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("insufficient balance")}
	e := execution.New(execution.Config{Mode: domain.ModeLive}, taker(0), sub)

	r := e.Execute(context.Background(), execution.Request{MarketID: "m1", Action: domain.ActionYes, Notional: 10, Snapshot: quoted(0.4, 0.5)})

	assert.Equal(t, domain.ExecFailed, r.Status)
	assert.Zero(t, r.FilledNotional)
	assert.Zero(t, r.FilledShares)
	assert.Equal(t, "insufficient balance", r.Metadata["error"])
}

func TestExecute_LiveMissingTokenFails(t *testing.T) {
	sub := &fakeSubmitter{}
	e := execution.New(execution.Config{Mode: domain.ModeLive}, taker(0), sub)
	snap := quoted(0.4, 0.5)
	snap.YesToken = ""

	r := e.Execute(context.Background(), execution.Request{MarketID: "m1", Action: domain.ActionYes, Notional: 10, Snapshot: snap})
	assert.Equal(t, domain.ExecFailed, r.Status)
	assert.Empty(t, sub.got)
}

func TestExecute_LiveLossyPrecisionFlagged(t *testing.T) {
	sub := &fakeSubmitter{}
	e := execution.New(execution.Config{Mode: domain.ModeLive}, taker(0), sub)

	r := e.Execute(context.Background(), execution.Request{MarketID: "m1", Action: domain.ActionYes, Notional: 10, Snapshot: quoted(0.4, 0.3333)})

	require.Len(t, sub.got, 1)
	assert.InDelta(t, 0.333, sub.got[0].Price, 1e-12)
	assert.InDelta(t, 30.0, sub.got[0].Shares, 1e-12)
	assert.Equal(t, true, r.Metadata["lossy_precision"])
}
