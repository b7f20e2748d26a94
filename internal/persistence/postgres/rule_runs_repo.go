package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/ruleforge/internal/persistence"
)

// ruleRunRepo implements RuleRunRepo interface for PostgreSQL
type ruleRunRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRuleRunRepo creates a new PostgreSQL rule run repository
func NewRuleRunRepo(db *sqlx.DB, timeout time.Duration) persistence.RuleRunRepo {
	return &ruleRunRepo{
		db:      db,
		timeout: timeout,
	}
}

const selectRunColumns = `
		SELECT id, input_hash, asset, task_type, tree_count, path_count,
		       params, rules, trader_rules, created_at
		FROM rule_runs`

// Insert stores a completed run
func (r *ruleRunRepo) Insert(ctx context.Context, run *persistence.RuleRun) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if !isValidTaskType(run.TaskType) {
		return fmt.Errorf("invalid task type: %s", run.TaskType)
	}

	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	rulesJSON, err := json.Marshal(run.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}

	traderJSON, err := json.Marshal(run.TraderRules)
	if err != nil {
		return fmt.Errorf("failed to marshal trader rules: %w", err)
	}

	query := `
		INSERT INTO rule_runs
		(id, input_hash, asset, task_type, tree_count, path_count, params, rules, trader_rules)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err = r.db.QueryRowxContext(ctx, query,
		run.ID, run.InputHash, run.Asset, run.TaskType, run.TreeCount, run.PathCount,
		paramsJSON, rulesJSON, traderJSON).
		Scan(&run.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert rule run: %w", err)
	}

	return nil
}

// Latest returns the most recent run
func (r *ruleRunRepo) Latest(ctx context.Context) (*persistence.RuleRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectRunColumns + `
		ORDER BY created_at DESC
		LIMIT 1`

	run, err := r.scanRun(r.db.QueryRowxContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest rule run: %w", err)
	}

	return run, nil
}

// GetByID retrieves a run by id
func (r *ruleRunRepo) GetByID(ctx context.Context, id string) (*persistence.RuleRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectRunColumns + `
		WHERE id = $1`

	run, err := r.scanRun(r.db.QueryRowxContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get rule run %s: %w", id, err)
	}

	return run, nil
}

// GetByInputHash returns the newest run produced from identical inputs
func (r *ruleRunRepo) GetByInputHash(ctx context.Context, hash string) (*persistence.RuleRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectRunColumns + `
		WHERE input_hash = $1
		ORDER BY created_at DESC
		LIMIT 1`

	run, err := r.scanRun(r.db.QueryRowxContext(ctx, query, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get rule run by input hash: %w", err)
	}

	return run, nil
}

// ListRecent lists run summaries, newest first
func (r *ruleRunRepo) ListRecent(ctx context.Context, limit int) ([]persistence.RuleRunSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, input_hash, asset, task_type, tree_count, path_count,
		       jsonb_array_length(trader_rules) AS trader_rule_count, created_at
		FROM rule_runs
		ORDER BY created_at DESC
		LIMIT $1`

	var summaries []persistence.RuleRunSummary
	if err := r.db.SelectContext(ctx, &summaries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list rule runs: %w", err)
	}

	return summaries, nil
}

// Count returns the number of runs in the time range
func (r *ruleRunRepo) Count(ctx context.Context, tr persistence.TimeRange) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT COUNT(*)
		FROM rule_runs
		WHERE created_at >= $1 AND created_at <= $2`

	var count int64
	if err := r.db.QueryRowxContext(ctx, query, tr.From, tr.To).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rule runs: %w", err)
	}

	return count, nil
}

func (r *ruleRunRepo) scanRun(row *sqlx.Row) (*persistence.RuleRun, error) {
	var run persistence.RuleRun
	var paramsJSON, rulesJSON, traderJSON []byte

	err := row.Scan(
		&run.ID, &run.InputHash, &run.Asset, &run.TaskType,
		&run.TreeCount, &run.PathCount,
		&paramsJSON, &rulesJSON, &traderJSON, &run.CreatedAt)

	if err != nil {
		return nil, err
	}

	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &run.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
	}

	if err := json.Unmarshal(rulesJSON, &run.Rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}

	if err := json.Unmarshal(traderJSON, &run.TraderRules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trader rules: %w", err)
	}

	return &run, nil
}

func isValidTaskType(taskType string) bool {
	return taskType == "regression" || taskType == "classification"
}
