package extract

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/ruleforge/internal/cache"
	"github.com/sawpanic/ruleforge/internal/config"
	"github.com/sawpanic/ruleforge/internal/data/matrix"
	"github.com/sawpanic/ruleforge/internal/domain/rules"
	"github.com/sawpanic/ruleforge/internal/ensemble"
	"github.com/sawpanic/ruleforge/internal/infrastructure/breakers"
	steplog "github.com/sawpanic/ruleforge/internal/log"
	"github.com/sawpanic/ruleforge/internal/metrics"
	"github.com/sawpanic/ruleforge/internal/persistence"
)

// Config holds the parameters of one extraction
type Config struct {
	MaxRules    int
	MinSamples  int
	TopN        int
	MinCoverage float64
	Asset       string
	TaskType    string
	TargetName  string
	Workers     int
	CacheTTL    time.Duration
}

// ConfigFrom maps the file configuration onto extraction parameters
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxRules:    cfg.Extraction.MaxRules,
		MinSamples:  cfg.Extraction.MinSamples,
		TopN:        cfg.Trader.TopN,
		MinCoverage: cfg.Trader.MinCoverage,
		Asset:       cfg.Trader.Asset,
		TaskType:    cfg.Extraction.TaskType,
		TargetName:  cfg.Extraction.TargetName,
		Workers:     cfg.Extraction.Workers,
		CacheTTL:    cfg.Cache.TTL,
	}
}

// Validate rejects parameters the pipeline cannot run with
func (c Config) Validate() error {
	if err := rules.ValidateMinSamples(c.MinSamples); err != nil {
		return err
	}
	if err := rules.ValidateMinCoverage(c.MinCoverage); err != nil {
		return err
	}
	if c.TaskType != "regression" && c.TaskType != "classification" {
		return &rules.ConfigurationError{Field: "task_type", Value: c.TaskType, Reason: "must be regression or classification"}
	}
	return nil
}

// Classification reports whether leaf values are class probabilities
func (c Config) Classification() bool { return c.TaskType == "classification" }

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Input is a loaded ensemble and the feature matrix to score it against
type Input struct {
	Ensemble *ensemble.Ensemble
	Matrix   rules.FeatureMatrix
	// Hash identifies the inputs for caching; empty disables the cache
	Hash string
}

// Result is the outcome of one extraction run
type Result struct {
	RunID       string                 `json:"run_id"`
	InputHash   string                 `json:"input_hash"`
	TreeCount   int                    `json:"tree_count"`
	PathCount   int                    `json:"path_count"`
	Rules       []rules.Rule           `json:"rules"`
	TraderRules []rules.SimplifiedRule `json:"trader_rules"`
	Cached      bool                   `json:"cached"`
	Duration    time.Duration          `json:"duration"`
}

// Service runs the walk -> score -> select -> build pipeline
type Service struct {
	cfg         Config
	cache       cache.Cache
	repo        persistence.RuleRunRepo
	repoBreaker *breakers.Breaker
	metrics     *metrics.Registry
	progress    io.Writer
}

// Option configures optional service collaborators
type Option func(*Service)

// WithCache enables result caching keyed by input hash
func WithCache(c cache.Cache) Option { return func(s *Service) { s.cache = c } }

// WithRepository persists every completed run
func WithRepository(r persistence.RuleRunRepo) Option { return func(s *Service) { s.repo = r } }

// WithMetrics records pipeline metrics into m
func WithMetrics(m *metrics.Registry) Option { return func(s *Service) { s.metrics = m } }

// WithProgress renders a step progress bar on w
func WithProgress(w io.Writer) Option { return func(s *Service) { s.progress = w } }

// NewService validates cfg and builds a service
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{cfg: cfg, repoBreaker: breakers.New("postgres-rule-runs")}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewRegistry()
	}
	return s, nil
}

// Config returns the parameters the service runs with
func (s *Service) Config() Config { return s.cfg }

// LoadInput reads a model dump and a CSV feature matrix and hashes both with the run parameters
func (s *Service) LoadInput(modelPath, dataPath string, opts ...ensemble.Option) (in *Input, err error) {
	timer := s.metrics.StartStepTimer(metrics.StepLoad)
	defer func() {
		if err != nil {
			timer.Stop(metrics.ResultError)
			s.metrics.RecordPipelineError(metrics.StepLoad, errorType(err))
			return
		}
		timer.Stop(metrics.ResultSuccess)
	}()

	modelBytes, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", modelPath, err)
	}
	dataBytes, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read data %s: %w", dataPath, err)
	}

	ens, err := ensemble.Parse(bytes.NewReader(modelBytes), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", modelPath, err)
	}
	m, err := matrix.ReadCSV(bytes.NewReader(dataBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to load data %s: %w", dataPath, err)
	}

	return &Input{
		Ensemble: ens,
		Matrix:   modelColumns(m, ens.FeatureNames),
		Hash:     s.HashInputs(modelBytes, dataBytes, ens.FeatureNames),
	}, nil
}

// modelColumns drops columns the model never splits on, such as the target.
// The full matrix is kept when none of the model's features are present.
func modelColumns(m *matrix.Matrix, featureNames []string) *matrix.Matrix {
	available := make(map[string]bool, len(m.Names()))
	for _, name := range m.Names() {
		available[name] = true
	}

	var keep []string
	seen := make(map[string]bool, len(featureNames))
	for _, name := range featureNames {
		if available[name] && !seen[name] {
			keep = append(keep, name)
			seen[name] = true
		}
	}
	if len(keep) == 0 || len(keep) == len(m.Names()) {
		return m
	}

	projected, err := m.Select(keep)
	if err != nil {
		return m
	}
	return projected
}

// HashInputs fingerprints the raw inputs, the resolved feature names and every
// parameter that shapes the output
func (s *Service) HashInputs(model, data []byte, featureNames []string) string {
	h := sha256.New()
	h.Write(model)
	h.Write([]byte{0})
	h.Write(data)
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(featureNames, "\x1f")))
	fmt.Fprintf(h, "\x00%d|%d|%d|%g|%s|%s", s.cfg.MaxRules, s.cfg.MinSamples, s.cfg.TopN, s.cfg.MinCoverage, s.cfg.Asset, s.cfg.TaskType)
	return hex.EncodeToString(h.Sum(nil))
}

// missingFeatures lists model features with no column in m; rules on them cover no rows
func missingFeatures(featureNames []string, m rules.FeatureMatrix) []string {
	var missing []string
	for _, name := range featureNames {
		if _, ok := m.Column(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// cachedRun is the cache payload for a completed run
type cachedRun struct {
	RunID       string                 `json:"run_id"`
	TreeCount   int                    `json:"tree_count"`
	PathCount   int                    `json:"path_count"`
	Rules       []rules.Rule           `json:"rules"`
	TraderRules []rules.SimplifiedRule `json:"trader_rules"`
}

func cacheKey(hash string) string { return "run:" + hash }

// Run executes the pipeline on in. A cache hit short-circuits everything after load.
func (s *Service) Run(ctx context.Context, in Input) (result *Result, err error) {
	if in.Ensemble == nil || in.Matrix == nil {
		return nil, errors.New("extraction input requires an ensemble and a feature matrix")
	}

	start := time.Now()
	runID := uuid.New().String()
	logger := log.With().Str("run_id", runID).Logger()

	steps := steplog.NewStepLogger(s.progress, "extract", steplog.ExtractionSteps)
	endRun := s.metrics.StartRun(s.cfg.TaskType)
	defer func() {
		if err != nil {
			steps.Fail(err.Error())
			endRun(metrics.ResultError)
			return
		}
		steps.Finish()
		if result.Cached {
			endRun(metrics.ResultCached)
		} else {
			endRun(metrics.ResultSuccess)
		}
	}()

	steps.StartStep("load")
	if cached := s.lookup(ctx, in.Hash); cached != nil {
		logger.Info().Str("input_hash", in.Hash).Str("cached_run_id", cached.RunID).Msg("Returning cached extraction")
		return &Result{
			RunID:       cached.RunID,
			InputHash:   in.Hash,
			TreeCount:   cached.TreeCount,
			PathCount:   cached.PathCount,
			Rules:       cached.Rules,
			TraderRules: cached.TraderRules,
			Cached:      true,
			Duration:    time.Since(start),
		}, nil
	}

	if missing := missingFeatures(in.Ensemble.FeatureNames, in.Matrix); len(missing) > 0 {
		logger.Warn().Strs("features", missing).Msg("Model features missing from the feature matrix; rules on them cover no rows")
	}

	steps.StartStep("walk")
	timer := s.metrics.StartStepTimer(metrics.StepWalk)
	paths, err := s.walk(ctx, in.Ensemble)
	if err != nil {
		timer.Stop(metrics.ResultError)
		s.metrics.RecordPipelineError(metrics.StepWalk, errorType(err))
		return nil, err
	}
	timer.Stop(metrics.ResultSuccess)
	s.metrics.TreesWalked.Add(float64(len(in.Ensemble.Trees)))
	s.metrics.PathsExtracted.Add(float64(len(paths)))
	logger.Info().Int("tree_count", len(in.Ensemble.Trees)).Int("path_count", len(paths)).Msg("Extracted decision paths")

	steps.StartStep("score")
	timer = s.metrics.StartStepTimer(metrics.StepScore)
	scored, err := s.score(ctx, paths, in.Matrix)
	if err != nil {
		timer.Stop(metrics.ResultError)
		s.metrics.RecordPipelineError(metrics.StepScore, errorType(err))
		return nil, err
	}
	timer.Stop(metrics.ResultSuccess)
	s.metrics.RulesScored.Add(float64(len(scored)))

	steps.StartStep("select")
	timer = s.metrics.StartStepTimer(metrics.StepSelect)
	ranked := rules.Select(scored, s.cfg.MaxRules)
	timer.Stop(metrics.ResultSuccess)

	steps.StartStep("build")
	timer = s.metrics.StartStepTimer(metrics.StepBuild)
	trader, err := rules.Build(ranked, s.cfg.TopN, s.cfg.MinCoverage)
	if err != nil {
		timer.Stop(metrics.ResultError)
		s.metrics.RecordPipelineError(metrics.StepBuild, errorType(err))
		return nil, err
	}
	timer.Stop(metrics.ResultSuccess)
	s.metrics.TraderRules.Set(float64(len(trader)))
	logger.Info().Int("ranked_rules", len(ranked)).Int("trader_rules", len(trader)).Msg("Built trader rules")

	result = &Result{
		RunID:       runID,
		InputHash:   in.Hash,
		TreeCount:   len(in.Ensemble.Trees),
		PathCount:   len(paths),
		Rules:       ranked,
		TraderRules: trader,
	}

	steps.StartStep("persist")
	s.persist(ctx, result)
	s.store(ctx, result)

	result.Duration = time.Since(start)
	return result, nil
}

// walk extracts every tree's paths in parallel, keeping ensemble order
func (s *Service) walk(ctx context.Context, ens *ensemble.Ensemble) ([]rules.Rule, error) {
	walker := rules.NewWalker(ens.FeatureNames)
	perTree := make([][]rules.Rule, len(ens.Trees))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.workers())

	for i, tree := range ens.Trees {
		i, tree := i, tree
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			treeRules, err := walker.Walk(tree.Root, tree.ID)
			if err != nil {
				return err
			}
			perTree[i] = treeRules
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range perTree {
		total += len(r)
	}
	if leaves := ens.NumLeaves(); total != leaves {
		return nil, fmt.Errorf("walked %d paths but the ensemble has %d leaves", total, leaves)
	}
	all := make([]rules.Rule, 0, total)
	for _, r := range perTree {
		all = append(all, r...)
	}
	return all, nil
}

// score fills coverage and importance in parallel chunks; output order matches input
func (s *Service) score(ctx context.Context, paths []rules.Rule, m rules.FeatureMatrix) ([]rules.Rule, error) {
	if err := rules.ValidateMinSamples(s.cfg.MinSamples); err != nil {
		return nil, err
	}

	scored := make([]rules.Rule, len(paths))
	workers := s.cfg.workers()
	chunk := (len(paths) + workers - 1) / workers
	if chunk == 0 {
		return scored, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(paths); lo += chunk {
		lo, hi := lo, min(lo+chunk, len(paths))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gCtx.Err(); err != nil {
					return err
				}
				scored[i] = rules.ScoreRule(paths[i], m, s.cfg.MinSamples)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scored, nil
}

// lookup checks the cache, then the run store, for a run over identical inputs
func (s *Service) lookup(ctx context.Context, hash string) *cachedRun {
	if hash == "" {
		return nil
	}
	if cached := s.lookupCache(ctx, hash); cached != nil {
		return cached
	}
	return s.lookupStored(ctx, hash)
}

func (s *Service) lookupCache(ctx context.Context, hash string) *cachedRun {
	if s.cache == nil {
		return nil
	}

	data, found, err := s.cache.Get(ctx, cacheKey(hash))
	if err != nil {
		log.Warn().Err(err).Msg("Cache lookup failed, extracting")
		s.metrics.RecordCacheMiss("result")
		return nil
	}
	if !found {
		s.metrics.RecordCacheMiss("result")
		return nil
	}

	var cached cachedRun
	if err := json.Unmarshal(data, &cached); err != nil {
		log.Warn().Err(err).Msg("Discarding undecodable cache entry")
		s.metrics.RecordCacheMiss("result")
		return nil
	}
	s.metrics.RecordCacheHit("result")
	return &cached
}

func (s *Service) lookupStored(ctx context.Context, hash string) *cachedRun {
	if s.repo == nil {
		return nil
	}

	var run *persistence.RuleRun
	err := s.repoBreaker.Do(func() error {
		var err error
		run, err = s.repo.GetByInputHash(ctx, hash)
		return err
	})
	if err != nil {
		log.Warn().Err(err).Msg("Stored run lookup failed, extracting")
		s.metrics.RecordCacheMiss("store")
		return nil
	}
	if run == nil {
		s.metrics.RecordCacheMiss("store")
		return nil
	}
	s.metrics.RecordCacheHit("store")

	cached := &cachedRun{
		RunID:       run.ID,
		TreeCount:   run.TreeCount,
		PathCount:   run.PathCount,
		Rules:       run.Rules,
		TraderRules: run.TraderRules,
	}
	// Warm the cache so the next lookup skips the database
	s.store(ctx, &Result{
		RunID:       cached.RunID,
		InputHash:   hash,
		TreeCount:   cached.TreeCount,
		PathCount:   cached.PathCount,
		Rules:       cached.Rules,
		TraderRules: cached.TraderRules,
	})
	return cached
}

func (s *Service) store(ctx context.Context, r *Result) {
	if s.cache == nil || r.InputHash == "" {
		return
	}

	data, err := json.Marshal(cachedRun{
		RunID:       r.RunID,
		TreeCount:   r.TreeCount,
		PathCount:   r.PathCount,
		Rules:       r.Rules,
		TraderRules: r.TraderRules,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode run for cache")
		return
	}
	if err := s.cache.Set(ctx, cacheKey(r.InputHash), data, s.cfg.CacheTTL); err != nil {
		log.Warn().Err(err).Msg("Failed to cache run")
	}
}

// persist stores the run; failures are logged, not returned, so extraction works without a database
func (s *Service) persist(ctx context.Context, r *Result) {
	if s.repo == nil {
		return
	}

	timer := s.metrics.StartStepTimer(metrics.StepPersist)
	run := &persistence.RuleRun{
		ID:        r.RunID,
		InputHash: r.InputHash,
		Asset:     s.cfg.Asset,
		TaskType:  s.cfg.TaskType,
		TreeCount: r.TreeCount,
		PathCount: r.PathCount,
		Params: map[string]interface{}{
			"max_rules":    s.cfg.MaxRules,
			"min_samples":  s.cfg.MinSamples,
			"top_n":        s.cfg.TopN,
			"min_coverage": s.cfg.MinCoverage,
			"target_name":  s.cfg.TargetName,
		},
		Rules:       r.Rules,
		TraderRules: r.TraderRules,
	}

	err := s.repoBreaker.Do(func() error { return s.repo.Insert(ctx, run) })
	if err != nil {
		timer.Stop(metrics.ResultError)
		s.metrics.RecordPipelineError(metrics.StepPersist, "database")
		log.Warn().Err(err).Str("run_id", r.RunID).Msg("Failed to persist run")
		return
	}
	timer.Stop(metrics.ResultSuccess)
	log.Info().Str("run_id", r.RunID).Msg("Persisted run")
}

func errorType(err error) string {
	var malformed *rules.MalformedTreeError
	var cfgErr *rules.ConfigurationError
	switch {
	case errors.As(err, &malformed):
		return "malformed_tree"
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
