package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/ruleforge/internal/domain/rules"
	"github.com/sawpanic/ruleforge/internal/metrics"
	"github.com/sawpanic/ruleforge/internal/persistence"
)

type stubRuns struct {
	latest    *persistence.RuleRun
	summaries []persistence.RuleRunSummary
	err       error
	lastLimit int
}

func (s *stubRuns) Insert(context.Context, *persistence.RuleRun) error { return nil }
func (s *stubRuns) Latest(context.Context) (*persistence.RuleRun, error) {
	return s.latest, s.err
}
func (s *stubRuns) GetByID(_ context.Context, id string) (*persistence.RuleRun, error) {
	if s.latest != nil && s.latest.ID == id {
		return s.latest, nil
	}
	return nil, s.err
}
func (s *stubRuns) GetByInputHash(context.Context, string) (*persistence.RuleRun, error) {
	return nil, nil
}
func (s *stubRuns) ListRecent(_ context.Context, limit int) ([]persistence.RuleRunSummary, error) {
	s.lastLimit = limit
	return s.summaries, s.err
}
func (s *stubRuns) Count(context.Context, persistence.TimeRange) (int64, error) { return 0, nil }

type stubHealth struct{ healthy bool }

func (s stubHealth) Health(context.Context) persistence.HealthCheck {
	return persistence.HealthCheck{Healthy: s.healthy, ConnectionPool: map[string]int{"open": 1}}
}
func (s stubHealth) Ping(context.Context) error { return nil }
func (s stubHealth) Stats(context.Context) map[string]interface{} { return nil }

func sampleRun() *persistence.RuleRun {
	return &persistence.RuleRun{
		ID:        "run-1",
		Asset:     "SPY",
		TaskType:  "regression",
		TreeCount: 1,
		PathCount: 2,
		Rules: []rules.Rule{
			{Conditions: []rules.Condition{{Feature: "RSI", Operator: rules.OpGreater, Threshold: 30}}, Prediction: 0.003, Coverage: 0.6, Importance: 3.94},
		},
		TraderRules: []rules.SimplifiedRule{
			{
				Conditions: rules.BoundSet{{Feature: "RSI", Bound: rules.Bound{Direction: rules.DirGT, Threshold: 30}}},
				Prediction: 0.003, Coverage: 0.6, Importance: 3.94,
				Signal: rules.SignalLong, Strength: rules.StrengthStrong,
			},
		},
		CreatedAt: time.Date(2025, 9, 7, 10, 0, 0, 0, time.UTC),
	}
}

func testConfig() ServerConfig {
	cfg := DefaultServerConfig()
	cfg.RateLimitRPS = 0
	return cfg
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.1:5555"
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	s := newServer(testConfig(), Dependencies{Health: stubHealth{healthy: false}, Version: "v1.2.0"})

	rr := get(t, s, "/health")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Len(t, rr.Header().Get("X-Request-ID"), 8)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "v1.2.0", resp.Version)
	assert.NotEmpty(t, resp.System.GoVersion)
	require.NotNil(t, resp.Database)
	assert.False(t, resp.Database.Healthy)
}

func TestLatestTrader(t *testing.T) {
	s := newServer(testConfig(), Dependencies{Runs: &stubRuns{latest: sampleRun()}})

	rr := get(t, s, "/trader/latest")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		RunID   string                   `json:"run_id"`
		Asset   string                   `json:"asset"`
		Signals []map[string]interface{} `json:"signals"`
		Text    []string                 `json:"text"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, []string{"IF RSI > 30.0 THEN Strong LONG SPY"}, resp.Text)
	require.Len(t, resp.Signals, 1)
	assert.Equal(t, "Strong LONG", resp.Signals[0]["Signal"])
	assert.Equal(t, 60.0, resp.Signals[0]["Coverage_%"])
}

func TestLatestRules(t *testing.T) {
	s := newServer(testConfig(), Dependencies{Runs: &stubRuns{latest: sampleRun()}})

	rr := get(t, s, "/rules/latest")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp RulesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Rules, 1)
	assert.Equal(t, "RSI > 30.0000", resp.Rules[0].Conditions)
	assert.Equal(t, 1, resp.Rules[0].RuleID)
}

func TestLatest_NoRunsAndNoDatabase(t *testing.T) {
	s := newServer(testConfig(), Dependencies{Runs: &stubRuns{}})
	rr := get(t, s, "/trader/latest")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	assert.Equal(t, "no_runs", errResp.Code)
	assert.Equal(t, rr.Header().Get("X-Request-ID"), errResp.RequestID)

	s = newServer(testConfig(), Dependencies{})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/rules/latest").Code)

	s = newServer(testConfig(), Dependencies{Runs: &stubRuns{err: errors.New("db down")}})
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/rules/latest").Code)
}

func TestListRuns(t *testing.T) {
	runs := &stubRuns{summaries: []persistence.RuleRunSummary{{ID: "run-2"}, {ID: "run-1"}}}
	s := newServer(testConfig(), Dependencies{Runs: runs})

	rr := get(t, s, "/runs?limit=5")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 5, runs.lastLimit)

	var summaries []persistence.RuleRunSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summaries))
	assert.Len(t, summaries, 2)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/runs?limit=abc").Code)
}

func TestGetRun(t *testing.T) {
	s := newServer(testConfig(), Dependencies{Runs: &stubRuns{latest: sampleRun()}})

	assert.Equal(t, http.StatusOK, get(t, s, "/runs/run-1").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/runs/other").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.TreesWalked.Add(100)
	s := newServer(testConfig(), Dependencies{Metrics: reg})

	rr := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ruleforge_trees_walked_total 100")
}

func TestNotFound(t *testing.T) {
	s := newServer(testConfig(), Dependencies{})

	rr := get(t, s, "/candidates")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "endpoint_not_found")
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.RateLimitRPS = 1
	cfg.RateBurst = 2
	s := newServer(cfg, Dependencies{})

	assert.Equal(t, http.StatusOK, get(t, s, "/health").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/health").Code)

	rr := get(t, s, "/health")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}
