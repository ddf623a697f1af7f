package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

const (
	defaultDataBase       = "https://data-api.polymarket.com"
	defaultVolTrades      = 100
	volatilityConcurrency = 8
	minVolTrades          = 3
)

// dataTrade es un trade de GET /trades de la Data API.
type dataTrade struct {
	Asset       string      `json:"asset"`
	Outcome     string      `json:"outcome"`
	Price       json.Number `json:"price"`
	Timestamp   json.Number `json:"timestamp"`
	ConditionID string      `json:"conditionId"`
}

// SetDataBase cambia la URL de la Data API (tests).
func (c *Client) SetDataBase(base string) {
	if base != "" {
		c.dataBase = base
	}
}

// fetchYesTradePrices devuelve los precios de los últimos n trades del
// mercado, más antiguo primero, en espacio yes (los trades del token NO se
// convierten a 1−p).
func (c *Client) fetchYesTradePrices(ctx context.Context, conditionID string, n int) ([]float64, error) {
	q := url.Values{}
	q.Set("market", conditionID)
	q.Set("limit", strconv.Itoa(n))

	var resp []dataTrade
	if err := c.get(ctx, c.clobLimiter, c.dataBase+"/trades?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("data-api.trades: %w", err)
	}

	sort.SliceStable(resp, func(i, j int) bool {
		ti, _ := resp[i].Timestamp.Int64()
		tj, _ := resp[j].Timestamp.Int64()
		return ti < tj
	})
	prices := make([]float64, 0, len(resp))
	for _, t := range resp {
		p, err := t.Price.Float64()
		if err != nil || p <= 0 || p >= 1 {
			continue
		}
		if strings.EqualFold(t.Outcome, "no") {
			p = 1 - p
		}
		prices = append(prices, p)
	}
	return prices, nil
}

// tradeVolatility es la desviación estándar de los cambios de precio entre
// trades consecutivos.
func tradeVolatility(prices []float64) (float64, bool) {
	if len(prices) < minVolTrades {
		return 0, false
	}
	diffs := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		diffs[i-1] = prices[i] - prices[i-1]
	}
	return stat.StdDev(diffs, nil), true
}

// enrichVolatility rellena Volatility de cada snapshot que no la traiga.
// Los fallos por mercado solo se loguean.
func (c *Client) enrichVolatility(ctx context.Context, snaps []domain.MarketSnapshot, trades int) {
	if trades <= 0 {
		trades = defaultVolTrades
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(volatilityConcurrency)
	for i := range snaps {
		if snaps[i].Volatility != nil {
			continue
		}
		g.Go(func() error {
			prices, err := c.fetchYesTradePrices(gctx, snaps[i].MarketID, trades)
			if err != nil {
				slog.Debug("gamma: volatility skipped", "market", snaps[i].MarketID, "err", err)
				return nil
			}
			if v, ok := tradeVolatility(prices); ok {
				snaps[i].Volatility = domain.Float(domain.Round6(v))
			}
			return nil
		})
	}
	_ = g.Wait()
}
