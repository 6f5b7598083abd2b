// Package yahoo provides a price client for Yahoo Finance's public quote endpoints.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36"
)

// Config configures the client
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	MaxRetryDelay     time.Duration
	RequestsPerSecond float64
}

// DefaultConfig returns production settings
func DefaultConfig() Config {
	return Config{
		BaseURL:           defaultBaseURL,
		Timeout:           10 * time.Second,
		MaxRetries:        3,
		RetryDelay:        250 * time.Millisecond,
		MaxRetryDelay:     2 * time.Second,
		RequestsPerSecond: 5,
	}
}

// statusError is a non-2xx response
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("yahoo API error: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *statusError) transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string   `json:"symbol"`
			RegularMarketPrice *float64 `json:"regularMarketPrice"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// Client implements domain.PriceProvider.
// It returns the live market price and falls back to the last daily close
// when the market is closed and no live price is published.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	pipeline   failsafe.Executor[[]byte]
	log        zerolog.Logger
}

// NewClient creates a new Yahoo Finance client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = cfg.RetryDelay
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	clientLog := log.With().Str("client", "yahoo").Logger()

	retryPolicy := retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool {
			return isTransient(err)
		}).
		WithBackoff(cfg.RetryDelay, cfg.MaxRetryDelay).
		WithMaxRetries(cfg.MaxRetries).
		Build()

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		pipeline:   failsafe.With[[]byte](retryPolicy),
		log:        clientLog,
	}
}

// CurrentPrice implements domain.PriceProvider
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := c.quotePrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch quote for %s: %w: %w", symbol, domain.ErrPriceUnavailable, err)
	}
	if price > 0 {
		return price, nil
	}

	c.log.Debug().Str("symbol", symbol).Msg("No live price, falling back to last close")

	price, err = c.lastClose(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch last close for %s: %w: %w", symbol, domain.ErrPriceUnavailable, err)
	}
	if !(price > 0) {
		return 0, fmt.Errorf("no price published for %s: %w", symbol, domain.ErrPriceUnavailable)
	}
	return price, nil
}

// quotePrice returns regularMarketPrice, or 0 when it is absent
func (c *Client) quotePrice(ctx context.Context, symbol string) (float64, error) {
	body, err := c.get(ctx, "/v7/finance/quote", url.Values{"symbols": {symbol}})
	if err != nil {
		return 0, err
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode quote response: %w", err)
	}

	for _, q := range resp.QuoteResponse.Result {
		if q.Symbol == symbol && q.RegularMarketPrice != nil {
			return *q.RegularMarketPrice, nil
		}
	}
	return 0, nil
}

// lastClose returns the most recent non-null close of the 1-day chart
func (c *Client) lastClose(ctx context.Context, symbol string) (float64, error) {
	body, err := c.get(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), url.Values{
		"range":    {"1d"},
		"interval": {"1d"},
	})
	if err != nil {
		return 0, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode chart response: %w", err)
	}
	if len(resp.Chart.Result) == 0 {
		return 0, nil
	}

	result := resp.Chart.Result[0]
	for _, q := range result.Indicators.Quote {
		for i := len(q.Close) - 1; i >= 0; i-- {
			if v := q.Close[i]; v != nil && !math.IsNaN(*v) {
				return *v, nil
			}
		}
	}
	if result.Meta.RegularMarketPrice != nil {
		return *result.Meta.RegularMarketPrice, nil
	}
	return 0, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.pipeline.WithContext(ctx).Get(func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, &statusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return body, nil
	})
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.transient()
	}
	return true
}
