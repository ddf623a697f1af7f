package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// maxPendingRows limita la tabla de órdenes pendientes por tick.
const maxPendingRows = 10

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout. table=false imprime
// solo la línea compacta de cada tick.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyTick imprime el resumen del tick.
func (c *Console) NotifyTick(_ context.Context, r domain.TickReport) error {
	c.printCompact(r)
	if !c.table {
		return nil
	}
	if len(r.Executed) > 0 {
		c.printExecuted(r.Executed)
	}
	if len(r.Closed) > 0 {
		c.PrintExits(r.Closed)
	}
	if len(r.Summary.Pending) > 0 {
		c.printPending(r.Summary.Pending)
	}
	return nil
}

// printCompact imprime lo esencial en una línea (más alertas).
func (c *Console) printCompact(r domain.TickReport) {
	now := r.StartedAt
	if now.IsZero() {
		now = time.Now()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d mkts | %d exec | %d closed | %d hold | %d rej | %d open | bal $%.2f | %s",
		now.Local().Format("15:04:05"), r.Markets, len(r.Executed), len(r.Closed),
		r.Holds, r.RiskRejected, r.OpenPositions, r.Balance,
		r.Duration.Round(time.Millisecond))

	if counts := formatCounts(r.Summary.Counts); counts != "" {
		fmt.Fprintf(&sb, " | orders %s", counts)
	}

	var pnl float64
	for _, e := range r.Closed {
		pnl += e.RealizedPnL
	}
	if len(r.Closed) > 0 {
		fmt.Fprintf(&sb, " | pnl %s", signedUSD(pnl))
	}

	for _, rep := range r.Executed {
		if rep.Status == domain.ExecFailed {
			fmt.Fprintf(&sb, "\n  !! %s %s failed: %s", rep.Action, rep.MarketID, rep.Metadata.String("error"))
		}
	}

	fmt.Fprintln(c.out, sb.String())
}

func (c *Console) printExecuted(reps []domain.ExecutionReport) {
	fmt.Fprintf(c.out, "\n  EXECUTED (%d)\n", len(reps))
	table := tablewriter.NewWriter(c.out)
	table.Header("Order", "Market", "Side", "Status", "Mode", "Req$", "Fill$", "Shares", "Avg", "Fees")
	for _, r := range reps {
		table.Append(
			shortID(r.OrderID),
			shortID(r.MarketID),
			strings.ToUpper(string(r.Action)),
			string(r.Status),
			string(r.Mode),
			fmt.Sprintf("$%.2f", r.RequestedNotional),
			fmt.Sprintf("$%.2f", r.FilledNotional),
			fmt.Sprintf("%.2f", r.FilledShares),
			fmt.Sprintf("%.4f", r.AveragePrice),
			fmt.Sprintf("$%.4f", r.Fees),
		)
	}
	table.Render()
}

// PrintExits imprime salidas realizadas (tick o histórico).
func (c *Console) PrintExits(exits []domain.RealizedExit) {
	if len(exits) == 0 {
		fmt.Fprintln(c.out, "  no realized exits")
		return
	}
	fmt.Fprintf(c.out, "\n  CLOSED (%d)\n", len(exits))
	table := tablewriter.NewWriter(c.out)
	table.Header("Closed", "Market", "Side", "Strategy", "Reason", "Entry", "Exit", "Shares", "PnL", "Ret%", "Held")
	for _, e := range exits {
		table.Append(
			e.ClosedAt.Local().Format("01-02 15:04"),
			shortID(e.MarketID),
			strings.ToUpper(string(e.Side)),
			e.Strategy,
			e.Reason,
			fmt.Sprintf("%.4f", e.EntryYes),
			fmt.Sprintf("%.4f", e.ExitYes),
			fmt.Sprintf("%.2f", e.Shares),
			signedUSD(e.RealizedPnL),
			fmt.Sprintf("%+.2f%%", e.ReturnPct*100),
			formatHeld(e.ClosedAt.Sub(e.OpenedAt)),
		)
	}
	table.Render()
}

func (c *Console) printPending(rows []domain.OrderSummaryRow) {
	shown := rows
	if len(shown) > maxPendingRows {
		shown = shown[:maxPendingRows]
	}
	fmt.Fprintf(c.out, "\n  PENDING ORDERS (%d)\n", len(rows))
	table := tablewriter.NewWriter(c.out)
	table.Header("Order", "Market", "Side", "Status", "Req$", "Fill$", "Left$", "Age")
	for _, r := range shown {
		table.Append(
			shortID(r.OrderID),
			shortID(r.MarketID),
			strings.ToUpper(string(r.Action)),
			string(r.Status),
			fmt.Sprintf("$%.2f", r.RequestedNotional),
			fmt.Sprintf("$%.2f", r.FilledNotional),
			fmt.Sprintf("$%.2f", r.RemainingNotional),
			formatHeld(time.Since(r.CreatedAt)),
		)
	}
	table.Render()
	if len(rows) > len(shown) {
		fmt.Fprintf(c.out, "  ... %d more\n", len(rows)-len(shown))
	}
}

// PrintDailySummaries imprime el histórico diario de salidas con totales.
func (c *Console) PrintDailySummaries(days []domain.DailySummary) {
	if len(days) == 0 {
		fmt.Fprintln(c.out, "\n  No realized exits yet. Run the trader for a while first.")
		return
	}

	fmt.Fprintf(c.out, "\n")
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  REALIZED PnL REPORT\n")
	fmt.Fprintf(c.out, "  %s to %s (%d days)\n",
		days[0].Date.Format("2006-01-02"),
		days[len(days)-1].Date.Format("2006-01-02"),
		len(days))
	fmt.Fprintf(c.out, "========================================================\n\n")

	var exits, wins int
	var notional, pnl float64
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Date", "Exits", "Wins", "Win%", "Notional", "PnL", "AvgRet")
	for _, d := range days {
		exits += d.Exits
		wins += d.Wins
		notional += d.Notional
		pnl += d.RealizedPnL
		tbl.Append(
			d.Date.Format("01-02"),
			fmt.Sprintf("%d", d.Exits),
			fmt.Sprintf("%d", d.Wins),
			fmt.Sprintf("%.0f%%", d.WinRate()*100),
			fmt.Sprintf("$%.2f", d.Notional),
			signedUSD(d.RealizedPnL),
			fmt.Sprintf("%+.2f%%", d.AvgReturn*100),
		)
	}
	tbl.Render()

	fmt.Fprintf(c.out, "\n  --- AGGREGATE ---\n")
	fmt.Fprintf(c.out, "  Exits:                 %d\n", exits)
	if exits > 0 {
		fmt.Fprintf(c.out, "  Win rate:              %.1f%%\n", float64(wins)/float64(exits)*100)
	}
	fmt.Fprintf(c.out, "  Notional closed:       $%.2f\n", notional)
	fmt.Fprintf(c.out, "  Realized PnL:          %s\n", signedUSD(pnl))
	fmt.Fprintf(c.out, "  Daily avg PnL:         %s/day\n", signedUSD(pnl/float64(len(days))))
	fmt.Fprintln(c.out)
}

// PrintOrderHistory imprime los eventos de ejecución y fills de una orden.
func (c *Console) PrintOrderHistory(orderID string, events []domain.ExecutionReport, fills []domain.FillUpdate) {
	if len(events) == 0 && len(fills) == 0 {
		fmt.Fprintf(c.out, "  order %s not found\n", orderID)
		return
	}

	fmt.Fprintf(c.out, "\n  ORDER %s\n", orderID)
	if len(events) > 0 {
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Time", "Market", "Side", "Status", "Mode", "Req$", "Fill$", "Avg", "Fees")
		for _, e := range events {
			tbl.Append(
				e.Timestamp.Local().Format("01-02 15:04:05"),
				shortID(e.MarketID),
				strings.ToUpper(string(e.Action)),
				string(e.Status),
				string(e.Mode),
				fmt.Sprintf("$%.2f", e.RequestedNotional),
				fmt.Sprintf("$%.2f", e.FilledNotional),
				fmt.Sprintf("%.4f", e.AveragePrice),
				fmt.Sprintf("$%.4f", e.Fees),
			)
		}
		tbl.Render()
	}

	if len(fills) > 0 {
		fmt.Fprintf(c.out, "\n  FILLS (%d)\n", len(fills))
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Time", "Source", "Notional", "Shares", "Price", "Fees")
		var total float64
		for _, f := range fills {
			total += f.Notional
			tbl.Append(
				f.Timestamp.Local().Format("01-02 15:04:05"),
				f.Source,
				fmt.Sprintf("$%.2f", f.Notional),
				fmt.Sprintf("%.2f", f.Shares),
				fmt.Sprintf("%.4f", f.Price),
				fmt.Sprintf("$%.4f", f.Fees),
			)
		}
		tbl.Render()
		fmt.Fprintf(c.out, "  filled total: $%.2f\n", total)
	}
}

// formatCounts devuelve "pending:2 filled:5" en orden estable.
func formatCounts(counts map[domain.OrderStatus]int) string {
	if len(counts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(counts))
	for k, v := range counts {
		if v > 0 {
			keys = append(keys, string(k))
		}
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%d", k, counts[domain.OrderStatus(k)])
	}
	return strings.Join(parts, " ")
}

func signedUSD(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("+$%.2f", v)
}

// shortID acorta hashes y uuids para las tablas.
func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:10] + ".."
}

func formatHeld(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Hour:
		return fmt.Sprintf("%.0fm", d.Minutes())
	case d < 48*time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	default:
		return fmt.Sprintf("%.1fd", d.Hours()/24)
	}
}
