package http

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/ruleforge/internal/export"
	"github.com/sawpanic/ruleforge/internal/persistence"
)

// Handlers serves the JSON endpoints
type Handlers struct {
	runs      persistence.RuleRunRepo
	health    persistence.RepositoryHealth
	version   string
	startTime time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		runs:      deps.Runs,
		health:    deps.Health,
		version:   deps.Version,
		startTime: time.Now(),
	}
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                   `json:"status"` // "healthy", "degraded"
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	Version   string                   `json:"version"`
	System    SystemInfo               `json:"system"`
	Database  *persistence.HealthCheck `json:"database,omitempty"`
}

// SystemInfo provides system-level information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// RulesResponse lists the ranked raw rules of one run
type RulesResponse struct {
	RunID     string              `json:"run_id"`
	CreatedAt time.Time           `json:"created_at"`
	TaskType  string              `json:"task_type"`
	TreeCount int                 `json:"tree_count"`
	PathCount int                 `json:"path_count"`
	Rules     []export.RuleRecord `json:"rules"`
}

// TraderResponse lists the trader rules of one run
type TraderResponse struct {
	RunID     string                `json:"run_id"`
	CreatedAt time.Time             `json:"created_at"`
	Asset     string                `json:"asset"`
	Signals   []export.TraderRecord `json:"signals"`
	Text      []string              `json:"text"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: RequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// NotFound handles 404 responses
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "The requested endpoint does not exist")
}

// Health reports process and database status; a failing database degrades but never fails the check
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   h.version,
		System: SystemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			MemAlloc:      mem.Alloc,
			NumGC:         mem.NumGC,
		},
	}

	if h.health != nil {
		check := h.health.Health(r.Context())
		resp.Database = &check
		if !check.Healthy {
			resp.Status = "degraded"
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// LatestRules returns the ranked raw rules of the newest run
func (h *Handlers) LatestRules(w http.ResponseWriter, r *http.Request) {
	run, ok := h.latest(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, rulesResponse(run))
}

// LatestTrader returns the trader rules of the newest run
func (h *Handlers) LatestTrader(w http.ResponseWriter, r *http.Request) {
	run, ok := h.latest(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, traderResponse(run))
}

// ListRuns returns run summaries, newest first (?limit=N)
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "persistence_disabled", "No run database is configured")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			h.writeError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be an integer between 1 and 500")
			return
		}
		limit = n
	}

	summaries, err := h.runs.ListRecent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		h.writeError(w, r, http.StatusInternalServerError, "query_failed", "Failed to list runs")
		return
	}
	if summaries == nil {
		summaries = []persistence.RuleRunSummary{}
	}
	h.writeJSON(w, http.StatusOK, summaries)
}

// GetRun returns one run's trader rules by id
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "persistence_disabled", "No run database is configured")
		return
	}

	id := mux.Vars(r)["id"]
	run, err := h.runs.GetByID(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("run_id", id).Msg("Failed to load run")
		h.writeError(w, r, http.StatusInternalServerError, "query_failed", "Failed to load run")
		return
	}
	if run == nil {
		h.writeError(w, r, http.StatusNotFound, "run_not_found", "No run with id "+id)
		return
	}
	h.writeJSON(w, http.StatusOK, traderResponse(run))
}

func (h *Handlers) latest(w http.ResponseWriter, r *http.Request) (*persistence.RuleRun, bool) {
	if h.runs == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "persistence_disabled", "No run database is configured")
		return nil, false
	}

	run, err := h.runs.Latest(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load latest run")
		h.writeError(w, r, http.StatusInternalServerError, "query_failed", "Failed to load latest run")
		return nil, false
	}
	if run == nil {
		h.writeError(w, r, http.StatusNotFound, "no_runs", "No extraction runs have been stored yet")
		return nil, false
	}
	return run, true
}

func rulesResponse(run *persistence.RuleRun) RulesResponse {
	return RulesResponse{
		RunID:     run.ID,
		CreatedAt: run.CreatedAt,
		TaskType:  run.TaskType,
		TreeCount: run.TreeCount,
		PathCount: run.PathCount,
		Rules:     export.RuleRecords(run.Rules),
	}
}

func traderResponse(run *persistence.RuleRun) TraderResponse {
	text := make([]string, len(run.TraderRules))
	for i, s := range run.TraderRules {
		text[i] = s.Text(run.Asset)
	}
	return TraderResponse{
		RunID:     run.ID,
		CreatedAt: run.CreatedAt,
		Asset:     run.Asset,
		Signals:   export.TraderRecords(run.TraderRules, run.Asset),
		Text:      text,
	}
}
