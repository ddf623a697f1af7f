package main

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polytrader/internal/adapters/notify"
	"github.com/alejandrodnm/polytrader/internal/adapters/storage"
)

const historyExitRows = 50

// printHistory imprime las últimas salidas y el PnL realizado por día.
func printHistory(ctx context.Context, store *storage.SQLiteStorage, console *notify.Console, days int) error {
	exits, err := store.RealizedExits(ctx, historyExitRows)
	if err != nil {
		return fmt.Errorf("history: exits: %w", err)
	}
	dailies, err := store.DailySummaries(ctx, days)
	if err != nil {
		return fmt.Errorf("history: daily summaries: %w", err)
	}
	console.PrintExits(exits)
	console.PrintDailySummaries(dailies)
	return nil
}

// printOrder imprime los eventos y fills guardados de una orden.
func printOrder(ctx context.Context, store *storage.SQLiteStorage, console *notify.Console, orderID string) error {
	events, err := store.OrderEvents(ctx, orderID)
	if err != nil {
		return fmt.Errorf("order: events: %w", err)
	}
	fills, err := store.FillsForOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("order: fills: %w", err)
	}
	console.PrintOrderHistory(orderID, events, fills)
	return nil
}
