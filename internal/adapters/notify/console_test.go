package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polytrader/internal/adapters/notify"
	"github.com/alejandrodnm/polytrader/internal/domain"
)

func makeReport() domain.TickReport {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.TickReport{
		StartedAt:     now,
		Duration:      312 * time.Millisecond,
		Markets:       40,
		Holds:         37,
		RiskRejected:  1,
		OpenPositions: 3,
		Balance:       10017.5,
		Executed: []domain.ExecutionReport{
			{
				OrderID:           "ord-1",
				MarketID:          "mkt-yes",
				Action:            domain.ActionYes,
				RequestedNotional: 250,
				FilledNotional:    250,
				FilledShares:      500,
				AveragePrice:      0.5,
				Fees:              0.5,
				Status:            domain.ExecFilled,
				Mode:              domain.ModeOffline,
			},
			{
				OrderID:  "ord-2",
				MarketID: "mkt-bad",
				Action:   domain.ActionNo,
				Status:   domain.ExecFailed,
				Mode:     domain.ModeLive,
				Metadata: domain.Metadata{"error": "clob rejected"},
			},
		},
		Closed: []domain.RealizedExit{
			{
				MarketID:    "mkt-old",
				Side:        domain.ActionYes,
				Strategy:    "momentum",
				Reason:      "take_profit",
				EntryYes:    0.40,
				ExitYes:     0.46,
				Shares:      100,
				Notional:    40,
				RealizedPnL: 6,
				ReturnPct:   0.15,
				OpenedAt:    now.Add(-3 * time.Hour),
				ClosedAt:    now,
			},
		},
		Summary: domain.TrackerSummary{
			TotalTracked: 4,
			Counts:       map[domain.OrderStatus]int{domain.OrderFilled: 3, domain.OrderPending: 1},
			Pending: []domain.OrderSummaryRow{
				{
					OrderID:           "ord-9",
					MarketID:          "mkt-wait",
					Action:            domain.ActionNo,
					Status:            domain.OrderPending,
					RequestedNotional: 100,
					RemainingNotional: 100,
					CreatedAt:         now.Add(-10 * time.Minute),
				},
			},
		},
	}
}

// --- NotifyTick ---

func TestConsole_NotifyTick_Compact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, n.NotifyTick(context.Background(), makeReport()))

	out := buf.String()
	assert.Contains(t, out, "40 mkts")
	assert.Contains(t, out, "2 exec")
	assert.Contains(t, out, "1 closed")
	assert.Contains(t, out, "bal $10017.50")
	assert.Contains(t, out, "orders filled:3 pending:1")
	assert.Contains(t, out, "pnl +$6.00")
	assert.Contains(t, out, "mkt-bad failed: clob rejected")
	assert.NotContains(t, out, "EXECUTED")
}

func TestConsole_NotifyTick_Tables(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, n.NotifyTick(context.Background(), makeReport()))

	out := buf.String()
	assert.Contains(t, out, "EXECUTED (2)")
	assert.Contains(t, out, "ord-1")
	assert.Contains(t, out, "$250.00")
	assert.Contains(t, out, "CLOSED (1)")
	assert.Contains(t, out, "momentum")
	assert.Contains(t, out, "take_profit")
	assert.Contains(t, out, "+15.00%")
	assert.Contains(t, out, "3.0h")
	assert.Contains(t, out, "PENDING ORDERS (1)")
	assert.Contains(t, out, "mkt-wait")
}

func TestConsole_NotifyTick_EmptyTick(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, n.NotifyTick(context.Background(), domain.TickReport{Markets: 5, Balance: 100}))

	out := buf.String()
	assert.Contains(t, out, "5 mkts")
	assert.Contains(t, out, "0 exec")
	assert.NotContains(t, out, "pnl")
	assert.NotContains(t, out, "EXECUTED")
	assert.NotContains(t, out, "PENDING")
}

func TestConsole_NotifyTick_LongIDsShortened(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	r := domain.TickReport{Executed: []domain.ExecutionReport{{
		OrderID:  "0x1234567890abcdef1234567890abcdef",
		MarketID: "m",
		Action:   domain.ActionYes,
		Status:   domain.ExecSubmitted,
	}}}
	require.NoError(t, n.NotifyTick(context.Background(), r))

	out := buf.String()
	assert.Contains(t, out, "0x12345678..")
	assert.NotContains(t, out, "0x1234567890abcdef1234567890abcdef")
}

// --- History ---

func TestConsole_PrintDailySummaries(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	n.PrintDailySummaries([]domain.DailySummary{
		{Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Exits: 4, Wins: 3, Notional: 200, RealizedPnL: 12, AvgReturn: 0.06},
		{Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Exits: 2, Wins: 0, Notional: 100, RealizedPnL: -4, AvgReturn: -0.04},
	})

	out := buf.String()
	assert.Contains(t, out, "2026-03-01 to 2026-03-02 (2 days)")
	assert.Contains(t, out, "75%")
	assert.Contains(t, out, "-$4.00")
	assert.Contains(t, out, "Win rate:              50.0%")
	assert.Contains(t, out, "Realized PnL:          +$8.00")
	assert.Contains(t, out, "+$4.00/day")
}

func TestConsole_PrintDailySummaries_Empty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf, true).PrintDailySummaries(nil)
	assert.Contains(t, buf.String(), "No realized exits yet")
}

func TestConsole_PrintOrderHistory(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.PrintOrderHistory("ord-1",
		[]domain.ExecutionReport{{OrderID: "ord-1", MarketID: "mkt", Action: domain.ActionYes, Status: domain.ExecPartial, Mode: domain.ModeDryRun, RequestedNotional: 100, FilledNotional: 40, Timestamp: ts}},
		[]domain.FillUpdate{
			{OrderID: "ord-1", Notional: 40, Shares: 80, Price: 0.5, Source: domain.SourceInitial, Timestamp: ts},
			{OrderID: "ord-1", Notional: 30, Shares: 60, Price: 0.5, Source: domain.SourceSimulation, Timestamp: ts.Add(time.Minute)},
		},
	)

	out := buf.String()
	assert.Contains(t, out, "ORDER ord-1")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "FILLS (2)")
	assert.Contains(t, out, "simulation")
	assert.Contains(t, out, "filled total: $70.00")
}

func TestConsole_PrintOrderHistory_NotFound(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf, true).PrintOrderHistory("nope", nil, nil)
	assert.Contains(t, buf.String(), "order nope not found")
}
