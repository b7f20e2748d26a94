package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// PipelineStep names a stage of the extraction pipeline
type PipelineStep string

const (
	StepLoad    PipelineStep = "load"
	StepWalk    PipelineStep = "walk"
	StepScore   PipelineStep = "score"
	StepSelect  PipelineStep = "select"
	StepBuild   PipelineStep = "build"
	StepPersist PipelineStep = "persist"
	StepExport  PipelineStep = "export"
)

// PipelineResult is the outcome label recorded for a step
type PipelineResult string

const (
	ResultSuccess PipelineResult = "success"
	ResultError   PipelineResult = "error"
	ResultSkipped PipelineResult = "skipped"
	ResultCached  PipelineResult = "cached"
)

// Registry holds all Prometheus metrics for ruleforge
type Registry struct {
	gatherer prometheus.Gatherer

	// Step duration metrics
	StepDuration *prometheus.HistogramVec

	// Pipeline performance metrics
	PipelineSteps  *prometheus.CounterVec
	PipelineErrors *prometheus.CounterVec

	// Extraction volume
	Runs           *prometheus.CounterVec
	ActiveRuns     prometheus.Gauge
	TreesWalked    prometheus.Counter
	PathsExtracted prometheus.Counter
	RulesScored    prometheus.Counter
	TraderRules    prometheus.Gauge

	// Cache performance metrics
	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec

	hits, misses atomic.Uint64
}

// NewRegistry creates the metrics on a private prometheus registry
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	return newRegistry(reg, reg)
}

// NewDefaultRegistry registers the metrics with the global prometheus registry
func NewDefaultRegistry() *Registry {
	return newRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

func newRegistry(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Registry {
	r := &Registry{
		gatherer: gatherer,

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ruleforge_step_duration_seconds",
				Help:    "Duration of each pipeline step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"step", "result"},
		),

		PipelineSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ruleforge_pipeline_steps_total",
				Help: "Total number of pipeline steps executed",
			},
			[]string{"step", "status"},
		),

		PipelineErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ruleforge_pipeline_errors_total",
				Help: "Total number of pipeline errors by step",
			},
			[]string{"step", "error_type"},
		),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ruleforge_runs_total",
				Help: "Total number of extraction runs by task type and result",
			},
			[]string{"task_type", "result"},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ruleforge_active_runs",
				Help: "Number of extraction runs in progress",
			},
		),

		TreesWalked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ruleforge_trees_walked_total",
				Help: "Total number of trees walked",
			},
		),

		PathsExtracted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ruleforge_paths_extracted_total",
				Help: "Total number of root-to-leaf paths extracted",
			},
		),

		RulesScored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ruleforge_rules_scored_total",
				Help: "Total number of rules scored against a feature matrix",
			},
		),

		TraderRules: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ruleforge_trader_rules",
				Help: "Number of trader rules produced by the last run",
			},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ruleforge_cache_hit_ratio",
				Help: "Current cache hit ratio (0.0 to 1.0)",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ruleforge_cache_hits_total",
				Help: "Total number of cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ruleforge_cache_misses_total",
				Help: "Total number of cache misses by cache type",
			},
			[]string{"cache_type"},
		),
	}

	registerer.MustRegister(
		r.StepDuration,
		r.PipelineSteps,
		r.PipelineErrors,
		r.Runs,
		r.ActiveRuns,
		r.TreesWalked,
		r.PathsExtracted,
		r.RulesScored,
		r.TraderRules,
		r.CacheHitRatio,
		r.CacheHits,
		r.CacheMisses,
	)

	return r
}

// StepTimer tracks execution time for pipeline steps
type StepTimer struct {
	metrics *Registry
	step    PipelineStep
	start   time.Time
}

// StartStepTimer begins timing a pipeline step
func (r *Registry) StartStepTimer(step PipelineStep) *StepTimer {
	return &StepTimer{
		metrics: r,
		step:    step,
		start:   time.Now(),
	}
}

// Stop completes the step timing and records the metric
func (st *StepTimer) Stop(result PipelineResult) time.Duration {
	duration := time.Since(st.start)
	st.metrics.StepDuration.WithLabelValues(string(st.step), string(result)).Observe(duration.Seconds())
	st.metrics.PipelineSteps.WithLabelValues(string(st.step), string(result)).Inc()

	log.Debug().
		Str("step", string(st.step)).
		Str("result", string(result)).
		Dur("duration", duration).
		Msg("Pipeline step completed")
	return duration
}

// RecordCacheHit records a cache hit for the specified cache type
func (r *Registry) RecordCacheHit(cacheType string) {
	r.CacheHits.WithLabelValues(cacheType).Inc()
	r.hits.Add(1)
	r.updateCacheHitRatio()
}

// RecordCacheMiss records a cache miss for the specified cache type
func (r *Registry) RecordCacheMiss(cacheType string) {
	r.CacheMisses.WithLabelValues(cacheType).Inc()
	r.misses.Add(1)
	r.updateCacheHitRatio()
}

func (r *Registry) updateCacheHitRatio() {
	hits := float64(r.hits.Load())
	total := hits + float64(r.misses.Load())
	if total > 0 {
		r.CacheHitRatio.Set(hits / total)
	}
}

// RecordPipelineError records a pipeline error
func (r *Registry) RecordPipelineError(step PipelineStep, errorType string) {
	r.PipelineErrors.WithLabelValues(string(step), errorType).Inc()
	log.Warn().
		Str("step", string(step)).
		Str("error_type", errorType).
		Msg("Pipeline error recorded")
}

// StartRun marks a run as active and returns the function that ends it
func (r *Registry) StartRun(taskType string) func(result PipelineResult) {
	r.ActiveRuns.Inc()
	return func(result PipelineResult) {
		r.ActiveRuns.Dec()
		r.Runs.WithLabelValues(taskType, string(result)).Inc()
	}
}

// Handler serves the registry in the Prometheus text format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
