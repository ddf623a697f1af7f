package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polytrader/internal/adapters/storage"
	"github.com/alejandrodnm/polytrader/internal/domain"
)

func newDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makeExit(market string, pnl, ret float64, closed time.Time) domain.RealizedExit {
	return domain.RealizedExit{
		MarketID:    market,
		OrderID:     "o-" + market,
		Side:        domain.ActionYes,
		Strategy:    "mean_reversion",
		Reason:      "target",
		EntryYes:    0.40,
		ExitYes:     0.47,
		Shares:      250,
		Notional:    100,
		RealizedPnL: pnl,
		ReturnPct:   ret,
		OpenedAt:    closed.Add(-time.Hour),
		ClosedAt:    closed,
	}
}

// --- Orders and fills ---

func TestSQLiteStorage_OrderEvents(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rep := domain.BuildExecutionReport(domain.ReportInput{
		OrderID:           "ord1",
		MarketID:          "m1",
		Action:            domain.ActionYes,
		RequestedNotional: 100,
		RequestedShares:   250,
		FilledNotional:    40,
		FilledShares:      100,
		AveragePrice:      0.4,
		Fees:              0.2,
		Status:            domain.ExecPartial,
		Mode:              domain.ModeOffline,
		Metadata:          domain.Metadata{"reference_price": 0.4, "slippage_model": "taker"},
		Timestamp:         ts,
	})
	require.NoError(t, db.SaveOrderEvent(ctx, rep))

	events, err := db.OrderEvents(ctx, "ord1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	got := events[0]
	assert.Equal(t, "m1", got.MarketID)
	assert.Equal(t, domain.ActionYes, got.Action)
	assert.Equal(t, domain.ExecPartial, got.Status)
	assert.Equal(t, domain.ModeOffline, got.Mode)
	assert.InDelta(t, 40, got.FilledNotional, 1e-9)
	assert.InDelta(t, 0.2, got.Fees, 1e-9)
	assert.True(t, ts.Equal(got.Timestamp))
	assert.Equal(t, "taker", got.Metadata.String("slippage_model"))

	none, err := db.OrderEvents(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStorage_FillsInOrder(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, shares := range []float64{10, 15} {
		require.NoError(t, db.SaveFill(ctx, domain.FillUpdate{
			OrderID:   "ord1",
			Notional:  shares * 0.4,
			Shares:    shares,
			Price:     0.4,
			Mode:      domain.ModeLive,
			Source:    domain.SourceExternal,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}, "m1"))
	}

	fills, err := db.FillsForOrder(ctx, "ord1")
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.InDelta(t, 10, fills[0].Shares, 1e-9)
	assert.InDelta(t, 15, fills[1].Shares, 1e-9)
	assert.Equal(t, domain.SourceExternal, fills[1].Source)
	assert.Equal(t, domain.ModeLive, fills[1].Mode)
}

// --- Positions ---

func TestSQLiteStorage_PositionRoundTrip(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	opened := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	pos := domain.Position{
		MarketID: "m1",
		OrderID:  "ord1",
		Side:     domain.ActionNo,
		Notional: 60,
		Shares:   100,
		EntryYes: 0.4,
		OpenedAt: opened,
		Strategies: map[string]*domain.EntryState{
			"event_driven": {Exclusive: true, HoldSeconds: 900, Spike: domain.Float(0.7), TrailingTrigger: 0.045},
		},
	}
	require.NoError(t, db.UpsertPosition(ctx, pos))

	pos.BestPnLPct = 0.05
	require.NoError(t, db.UpsertPosition(ctx, pos))

	loaded, err := db.LoadPositions(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	got := loaded[0]
	assert.Equal(t, domain.ActionNo, got.Side)
	assert.InDelta(t, 0.05, got.BestPnLPct, 1e-9)
	assert.True(t, opened.Equal(got.OpenedAt))
	require.Contains(t, got.Strategies, "event_driven")
	st := got.Strategies["event_driven"]
	assert.True(t, st.Exclusive)
	assert.Equal(t, 900, st.HoldSeconds)
	require.NotNil(t, st.Spike)
	assert.InDelta(t, 0.7, *st.Spike, 1e-9)

	require.NoError(t, db.DeletePosition(ctx, "m1"))
	loaded, err = db.LoadPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	// borrar algo que no existe no falla
	assert.NoError(t, db.DeletePosition(ctx, "m1"))
}

func TestSQLiteStorage_ReinsertAfterDelete(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	pos := domain.Position{MarketID: "m1", OrderID: "o", Side: domain.ActionYes, Notional: 10, Shares: 20, EntryYes: 0.5, OpenedAt: time.Now()}

	require.NoError(t, db.UpsertPosition(ctx, pos))
	require.NoError(t, db.DeletePosition(ctx, "m1"))
	// misma posición tras borrar: la cache no debe saltarse la escritura
	require.NoError(t, db.UpsertPosition(ctx, pos))

	loaded, err := db.LoadPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

// --- Realized exits ---

func TestSQLiteStorage_RecentReturnsOldestFirst(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, r := range []float64{0.01, -0.02, 0.03, 0.04} {
		require.NoError(t, db.SaveRealizedExit(ctx, makeExit("m", r*100, r, base.Add(time.Duration(i)*time.Hour))))
	}

	rets, err := db.RecentReturns(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{-0.02, 0.03, 0.04}, rets)

	rets, err = db.RecentReturns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, rets)
}

func TestSQLiteStorage_RealizedExitsNewestFirst(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveRealizedExit(ctx, makeExit("a", 17.5, 0.175, base)))
	require.NoError(t, db.SaveRealizedExit(ctx, makeExit("b", -5, -0.05, base.Add(time.Hour))))

	exits, err := db.RealizedExits(ctx, 10)
	require.NoError(t, err)
	require.Len(t, exits, 2)
	assert.Equal(t, "b", exits[0].MarketID)
	assert.Equal(t, "a", exits[1].MarketID)
	assert.InDelta(t, 17.5, exits[1].RealizedPnL, 1e-9)
	assert.Equal(t, "target", exits[1].Reason)
	assert.True(t, base.Equal(exits[1].ClosedAt))
}

func TestSQLiteStorage_DailySummaries(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	d1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveRealizedExit(ctx, makeExit("a", 10, 0.10, d1)))
	require.NoError(t, db.SaveRealizedExit(ctx, makeExit("b", -4, -0.04, d1.Add(time.Hour))))
	require.NoError(t, db.SaveRealizedExit(ctx, makeExit("c", 6, 0.06, d2)))

	days, err := db.DailySummaries(ctx, 0)
	require.NoError(t, err)
	require.Len(t, days, 2)

	assert.True(t, d1.Truncate(24*time.Hour).Equal(days[0].Date))
	assert.Equal(t, 2, days[0].Exits)
	assert.Equal(t, 1, days[0].Wins)
	assert.InDelta(t, 0.5, days[0].WinRate(), 1e-9)
	assert.InDelta(t, 6, days[0].RealizedPnL, 1e-9)
	assert.InDelta(t, 0.03, days[0].AvgReturn, 1e-9)
	assert.InDelta(t, 200, days[0].Notional, 1e-9)

	assert.Equal(t, 1, days[1].Exits)
}
