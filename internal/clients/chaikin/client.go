// Package chaikin provides a client for the Chaikin Analytics members API,
// the source of the ratings snapshot that drives target allocation.
package chaikin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/ratings"
	"github.com/rs/zerolog"
)

const (
	defaultBaseURL  = "https://members.chaikinanalytics.com"
	loginPath       = "/api/login"
	suggestionsPath = "/api/suggestions"
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Client implements domain.RatingsSource.
// Each Fetch logs in with a fresh session and reads the suggestions list.
type Client struct {
	baseURL  string
	email    string
	password string
	timeout  time.Duration
	log      zerolog.Logger
}

// NewClient creates a new Chaikin client. An empty baseURL selects production.
func NewClient(baseURL, email, password string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:  baseURL,
		email:    email,
		password: password,
		timeout:  30 * time.Second,
		log:      log.With().Str("client", "chaikin").Logger(),
	}
}

// Fetch implements domain.RatingsSource.
// Rejected credentials fail with domain.ErrAuthentication; anything else
// that keeps the snapshot from being read fails with domain.ErrSourceUnavailable.
func (c *Client) Fetch(ctx context.Context) ([]domain.RatingEntry, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	httpClient := &http.Client{Timeout: c.timeout, Jar: jar}

	if err := c.login(ctx, httpClient); err != nil {
		return nil, err
	}

	body, err := c.do(ctx, httpClient, http.MethodGet, suggestionsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch suggestions: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("suggestions response is not JSON: %w", domain.ErrSourceUnavailable)
	}

	// The suggestions document is the "data" member of the captured payload
	payload, err := json.Marshal(map[string]json.RawMessage{"data": body})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap suggestions: %w", err)
	}

	entries, err := ratings.ParseSuggestions(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}

	c.log.Info().Int("count", len(entries)).Msg("Fetched ratings snapshot")
	return entries, nil
}

func (c *Client) login(ctx context.Context, httpClient *http.Client) error {
	body, err := json.Marshal(loginRequest{Email: c.email, Password: c.password})
	if err != nil {
		return fmt.Errorf("failed to marshal login request: %w", err)
	}

	if _, err := c.do(ctx, httpClient, http.MethodPost, loginPath, body); err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}

	c.log.Debug().Msg("Logged in")
	return nil
}

func (c *Client) do(ctx context.Context, httpClient *http.Client, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", domain.ErrSourceUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", domain.ErrAuthentication, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}
	return respBody, nil
}
