package runner

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// processConcurrent corre fn sobre cada snapshot con un worker pool. Cada
// market id se encola una sola vez por tick, así que un mercado nunca lo
// procesan dos workers a la vez.
//
// Si workers <= 0 usa runtime.NumCPU() × 2.
func processConcurrent(
	ctx context.Context,
	snaps []domain.MarketSnapshot,
	workers int,
	fn func(context.Context, domain.MarketSnapshot) marketResult,
) []marketResult {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}

	workCh := make(chan domain.MarketSnapshot, len(snaps))
	resultCh := make(chan marketResult, len(snaps))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range workCh {
				if ctx.Err() != nil {
					continue
				}
				resultCh <- fn(ctx, s)
			}
		}()
	}

	seen := make(map[string]bool, len(snaps))
	queued := 0
	for _, s := range snaps {
		if s.MarketID == "" || seen[s.MarketID] {
			slog.Debug("runner: skipping snapshot", "market", s.MarketID, "duplicate", seen[s.MarketID])
			continue
		}
		seen[s.MarketID] = true
		workCh <- s
		queued++
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]marketResult, 0, queued)
	for r := range resultCh {
		results = append(results, r)
	}

	slog.Debug("runner: markets processed",
		"queued", queued,
		"results", len(results),
		"workers", workers,
	)
	return results
}
