package polymarket

// clob.go — endpoints públicos del CLOB: books y fee rate.
//
// FetchOrderBooks lanza un request por batch en paralelo; el limiter de
// /books marca el ritmo, así que no hace falta semáforo.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

const (
	booksPath   = "/books"
	feeRatePath = "/fee-rate"
	batchSize   = 20 // máx token_ids por request a /books
)

// FetchOrderBooks obtiene los orderbooks para los token_ids dados en batches
// concurrentes. Implementa ports.BookProvider.
func (c *Client) FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	if len(tokenIDs) == 0 {
		return map[string]domain.OrderBook{}, nil
	}

	var (
		mu     sync.Mutex
		result = make(map[string]domain.OrderBook, len(tokenIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range splitBatches(tokenIDs, batchSize) {
		g.Go(func() error {
			books, err := c.fetchBooksBatch(gctx, batch)
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			mu.Lock()
			for k, v := range books {
				result[k] = v
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("clob.FetchOrderBooks: %w", err)
	}

	slog.Debug("clob: order books fetched", "tokens", len(tokenIDs), "books", len(result))
	return result, nil
}

// splitBatches divide ids en slices de tamaño máximo size.
func splitBatches(ids []string, size int) [][]string {
	if size <= 0 {
		size = batchSize
	}
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for i := 0; i < len(ids); i += size {
		end := min(i+size, len(ids))
		batches = append(batches, ids[i:end])
	}
	return batches
}

func (c *Client) fetchBooksBatch(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	if err := c.post(ctx, c.booksLimiter, c.clobBase+booksPath, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}
	return mapOrderBooks(resp), nil
}

// ErrNoReferenceToken se devuelve cuando no hay token para consultar el fee.
var ErrNoReferenceToken = errors.New("polymarket: fee source needs a reference token id")

// FeeSource implementa ports.FeeSource con GET /fee-rate. El CLOB solo
// publica el fee taker (base_fee en bps); el maker es el configurado.
type FeeSource struct {
	client  *Client
	tokenID string
	maker   float64
}

// NewFeeSource crea la fuente. tokenID es el token usado como referencia.
func NewFeeSource(c *Client, tokenID string, makerRate float64) *FeeSource {
	return &FeeSource{client: c, tokenID: tokenID, maker: makerRate}
}

// FetchFees consulta el fee rate vigente.
func (f *FeeSource) FetchFees(ctx context.Context) (domain.FeeSchedule, error) {
	if f.tokenID == "" {
		return domain.FeeSchedule{}, ErrNoReferenceToken
	}
	var resp feeRateResponse
	u := f.client.clobBase + feeRatePath + "?token_id=" + url.QueryEscape(f.tokenID)
	if err := f.client.get(ctx, f.client.clobLimiter, u, &resp); err != nil {
		return domain.FeeSchedule{}, fmt.Errorf("clob.FetchFees: %w", err)
	}
	if !resp.BaseFee.OK || resp.BaseFee.V < 0 {
		return domain.FeeSchedule{}, fmt.Errorf("clob.FetchFees: missing base_fee")
	}
	return domain.FeeSchedule{
		Maker:     f.maker,
		Taker:     resp.BaseFee.V / 10_000,
		FetchedAt: time.Now().UTC(),
	}, nil
}
