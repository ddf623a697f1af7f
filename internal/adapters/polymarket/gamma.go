package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/polytrader/internal/domain"
	"github.com/alejandrodnm/polytrader/internal/ports"
)

const (
	gammaMarketsPath = "/markets"
	gammaPageSize    = 100
	// Sin límite pedido se corta igual aquí para no recorrer todo Gamma.
	gammaMaxMarkets = 2000

	defaultBookDepth = 0.02
)

// SnapshotConfig controla cómo se arman las snapshots.
type SnapshotConfig struct {
	// Books pide los orderbooks de ambos tokens para bid/ask y liquidez.
	Books bool
	// BookDepth es la ventana de precio sobre el best ask que cuenta como
	// liquidez disponible. 0 → 0.02.
	BookDepth float64
	// Volatility calcula la volatilidad con los últimos VolatilityTrades
	// trades de cada mercado (Data API). 0 trades → 100.
	Volatility       bool
	VolatilityTrades int
}

// SnapshotSource implementa ports.SnapshotProvider sobre Gamma + CLOB.
type SnapshotSource struct {
	client *Client
	books  ports.BookProvider
	cfg    SnapshotConfig
	now    func() time.Time
}

// NewSnapshotSource crea la fuente de snapshots.
func NewSnapshotSource(c *Client, cfg SnapshotConfig) *SnapshotSource {
	if cfg.BookDepth <= 0 {
		cfg.BookDepth = defaultBookDepth
	}
	return &SnapshotSource{client: c, books: c, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// SetBookProvider reemplaza la fuente de orderbooks (por defecto el CLOB).
func (s *SnapshotSource) SetBookProvider(b ports.BookProvider) {
	if b != nil {
		s.books = b
	}
}

// FetchSnapshots devuelve hasta limit mercados activos ordenados por volumen.
// Un fallo de /books no es fatal: quedan las quotes de Gamma.
func (s *SnapshotSource) FetchSnapshots(ctx context.Context, limit int) ([]domain.MarketSnapshot, error) {
	raw, err := s.client.fetchGammaMarkets(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("gamma.FetchSnapshots: %w", err)
	}

	now := s.now()
	snaps := make([]domain.MarketSnapshot, 0, len(raw))
	events := make(map[string][]int)
	for _, gm := range raw {
		snap, ok := mapGammaMarket(gm, now)
		if !ok || snap.Resolved {
			continue
		}
		for _, ev := range gm.Events {
			if ev.ID != "" {
				events[ev.ID] = append(events[ev.ID], len(snaps))
			}
		}
		snaps = append(snaps, snap)
	}

	if s.cfg.Books && len(snaps) > 0 {
		tokens := make([]string, 0, 2*len(snaps))
		for _, sn := range snaps {
			tokens = append(tokens, sn.YesToken, sn.NoToken)
		}
		books, err := s.books.FetchOrderBooks(ctx, tokens)
		if err != nil {
			slog.Warn("gamma: books enrichment failed, using gamma quotes", "err", err)
		} else {
			for i := range snaps {
				applyBooks(&snaps[i], books, s.cfg.BookDepth)
			}
		}
	}

	if s.cfg.Volatility {
		s.client.enrichVolatility(ctx, snaps, s.cfg.VolatilityTrades)
	}

	linkEventSiblings(snaps, events)

	slog.Debug("gamma: snapshots built", "raw", len(raw), "snapshots", len(snaps), "events", len(events))
	return snaps, nil
}

// linkEventSiblings pone como referencias internas los otros mercados del
// mismo evento. Se llama después de applyBooks para usar el mid final.
func linkEventSiblings(snaps []domain.MarketSnapshot, events map[string][]int) {
	for _, idx := range events {
		if len(idx) < 2 {
			continue
		}
		for _, i := range idx {
			for _, j := range idx {
				if i == j {
					continue
				}
				snaps[i].InternalRefs = append(snaps[i].InternalRefs, referenceFor(snaps[j]))
			}
		}
	}
}

// fetchGammaMarkets pagina GET /markets por offset hasta limit.
func (c *Client) fetchGammaMarkets(ctx context.Context, limit int) ([]gammaMarket, error) {
	want := limit
	if want <= 0 || want > gammaMaxMarkets {
		want = gammaMaxMarkets
	}

	var all []gammaMarket
	for offset := 0; len(all) < want; offset += gammaPageSize {
		page := gammaPageSize
		if rest := want - len(all); rest < page {
			page = rest
		}
		q := url.Values{}
		q.Set("active", "true")
		q.Set("closed", "false")
		q.Set("order", "volume24hr")
		q.Set("ascending", "false")
		q.Set("limit", strconv.Itoa(page))
		q.Set("offset", strconv.Itoa(offset))

		var resp []gammaMarket
		if err := c.get(ctx, c.gammaLimiter, c.gammaBase+gammaMarketsPath+"?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("GET /markets offset=%d: %w", offset, err)
		}
		all = append(all, resp...)
		if len(resp) < page {
			break
		}
	}
	return all, nil
}
