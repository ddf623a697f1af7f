package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCLOBBase  = "https://clob.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"

	// Rate limits al 60% de los límites documentados.
	// CLOB /books: 500/10s → 30/s
	booksRatePerSec = 30
	// Gamma /markets: 300/10s → 18/s
	gammaRatePerSec = 18
	// CLOB general (fee-rate, order, data/order): 9000/10s → 540/s
	generalRatePerSec = 540

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es el HTTP client de Polymarket con rate limiting y retries.
// Solo habla con endpoints públicos; AuthClient añade L1/L2.
type Client struct {
	http         *http.Client
	clobBase     string
	gammaBase    string
	dataBase     string
	clobLimiter  *rate.Limiter
	gammaLimiter *rate.Limiter
	booksLimiter *rate.Limiter
	retryWait    time.Duration
}

// NewClient crea un Client con los base URLs dados.
// Si clobBase o gammaBase están vacíos usa los de producción.
func NewClient(clobBase, gammaBase string) *Client {
	if clobBase == "" {
		clobBase = defaultCLOBBase
	}
	if gammaBase == "" {
		gammaBase = defaultGammaBase
	}
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		clobBase:     clobBase,
		gammaBase:    gammaBase,
		dataBase:     defaultDataBase,
		clobLimiter:  rate.NewLimiter(generalRatePerSec, 50),
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
		booksLimiter: rate.NewLimiter(booksRatePerSec, 5),
		retryWait:    baseRetryWait,
	}
}

// SetRetryWait cambia la espera base del backoff (tests).
func (c *Client) SetRetryWait(d time.Duration) {
	if d > 0 {
		c.retryWait = d
	}
}

// StatusError es una respuesta 4xx del API. No se reintenta.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client error %d: %s", e.Code, e.Body)
}

// IsNotFound indica si err viene de un 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// requestFunc construye la request de un intento. Se llama en cada retry para
// que headers con timestamp (L2) se regeneren.
type requestFunc func() (*http.Request, error)

func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.do(ctx, limiter, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

func (c *Client) post(ctx context.Context, limiter *rate.Limiter, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.do(ctx, limiter, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// do ejecuta la request con backoff exponencial. 429 y 5xx se reintentan,
// 4xx devuelve *StatusError. out nil descarta el body.
func (c *Client) do(ctx context.Context, limiter *rate.Limiter, build requestFunc, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := build()
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			slog.Warn("polymarket: rate limited by API", "url", req.URL.Path, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 500:
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries: %s", resp.StatusCode, maxRetries, body)
			}
			c.sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 400:
			return &StatusError{Code: resp.StatusCode, Body: string(body)}
		}

		if readErr != nil {
			return fmt.Errorf("read response: %w", readErr)
		}
		if out == nil || len(bytes.TrimSpace(body)) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
