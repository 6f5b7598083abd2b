package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/di"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:           filepath.Join(dir, "data"),
		ChaikinEmail:      "me@example.com",
		ChaikinPassword:   "secret",
		IBGatewayURL:      "ws://127.0.0.1:1/ws",
		ReportPath:        filepath.Join(dir, "rebalance.csv"),
		PositionsTimeout:  time.Second,
		OrdersTimeout:     time.Second,
		ConnectTimeout:    time.Second,
		PriceFetchWorkers: 1,
		DevMode:           true,
	}

	container, err := di.Wire(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	return New(Config{
		Log:       testLogger(),
		Config:    cfg,
		Container: container,
		Port:      0,
		DevMode:   true,
	})
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		expectedStatus int
		contains       string
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK, `"status":"healthy"`},
		{"system status", http.MethodGet, "/api/system/status", "", http.StatusOK, `"journal":"ok"`},
		{
			"allocation compute",
			http.MethodPost,
			"/api/allocation/compute",
			`{"ratings":[{"symbol":"A","rating_score":5},{"symbol":"B","rating_score":5},{"symbol":"C","rating_score":6}]}`,
			http.StatusOK,
			`"percentage":49.95`,
		},
		{"allocation compute bad body", http.MethodPost, "/api/allocation/compute", "{", http.StatusBadRequest, "error"},
		{"no cycle yet", http.MethodGet, "/api/rebalancing/last", "", http.StatusNotFound, "error"},
		{"journal empty", http.MethodGet, "/api/trading/orders", "", http.StatusOK, `"data"`},
		{"unknown route", http.MethodGet, "/api/nope", "", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			w := httptest.NewRecorder()

			srv.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.contains != "" {
				assert.Contains(t, w.Body.String(), tt.contains)
			}
		})
	}
}

func TestServer_MetricsCountsRequests(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rebalancer_http_requests_total")
}

func TestServer_HealthBody(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rebalancer", body.Service)
	assert.Equal(t, "ok", body.Journal)
	assert.False(t, body.CycleRunning)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestServer_HealthReflectsState(t *testing.T) {
	tests := []struct {
		name           string
		journal        HealthChecker
		running        bool
		expectedStatus int
		validate       func(t *testing.T, body HealthResponse)
	}{
		{
			name:           "journal unreadable",
			journal:        failingCheck{},
			expectedStatus: http.StatusServiceUnavailable,
			validate: func(t *testing.T, body HealthResponse) {
				assert.Equal(t, "unhealthy", body.Status)
				assert.Contains(t, body.Journal, "malformed")
			},
		},
		{
			name:           "cycle in flight",
			running:        true,
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, body HealthResponse) {
				assert.Equal(t, "healthy", body.Status)
				assert.True(t, body.CycleRunning)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycles := new(MockCycleStatus)
			cycles.On("Running").Return(tt.running)

			s := &Server{log: testLogger(), journal: tt.journal, cycles: cycles, startedAt: time.Now()}

			w := httptest.NewRecorder()
			s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			var body HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			tt.validate(t, body)
			cycles.AssertExpectations(t)
		})
	}
}

func TestServer_RequestTimeout(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *config.Config
		expected time.Duration
	}{
		{"no config", nil, 60 * time.Second},
		{"short bounds", &config.Config{ConnectTimeout: time.Second, PositionsTimeout: time.Second, OrdersTimeout: time.Second}, 60 * time.Second},
		{
			"long bounds",
			&config.Config{ConnectTimeout: 5 * time.Second, PositionsTimeout: 30 * time.Second, OrdersTimeout: 60 * time.Second},
			125 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{cfg: tt.cfg}
			assert.Equal(t, tt.expected, s.requestTimeout())
		})
	}
}
