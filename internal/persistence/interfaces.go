package persistence

import (
	"context"
	"time"

	"github.com/sawpanic/ruleforge/internal/domain/rules"
)

// TimeRange represents a time window for run queries
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// RuleRun is one persisted extraction: the ranked raw rules and the trader rules
// derived from them, with the parameters that produced them
type RuleRun struct {
	ID          string                 `json:"id" db:"id"`
	InputHash   string                 `json:"input_hash" db:"input_hash"`
	Asset       string                 `json:"asset" db:"asset"`
	TaskType    string                 `json:"task_type" db:"task_type"`
	TreeCount   int                    `json:"tree_count" db:"tree_count"`
	PathCount   int                    `json:"path_count" db:"path_count"`
	Params      map[string]interface{} `json:"params" db:"params"`
	Rules       []rules.Rule           `json:"rules" db:"rules"`
	TraderRules []rules.SimplifiedRule `json:"trader_rules" db:"trader_rules"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
}

// RuleRunSummary is the listing view of a run without rule payloads
type RuleRunSummary struct {
	ID              string    `json:"id" db:"id"`
	InputHash       string    `json:"input_hash" db:"input_hash"`
	Asset           string    `json:"asset" db:"asset"`
	TaskType        string    `json:"task_type" db:"task_type"`
	TreeCount       int       `json:"tree_count" db:"tree_count"`
	PathCount       int       `json:"path_count" db:"path_count"`
	TraderRuleCount int       `json:"trader_rule_count" db:"trader_rule_count"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// RuleRunRepo provides extraction run persistence
type RuleRunRepo interface {
	// Insert stores a completed run; CreatedAt is filled from the database
	Insert(ctx context.Context, run *RuleRun) error

	// Latest returns the most recent run, or nil when none exist
	Latest(ctx context.Context) (*RuleRun, error)

	// GetByID retrieves a run by id, or nil when not found
	GetByID(ctx context.Context, id string) (*RuleRun, error)

	// GetByInputHash returns the newest run produced from identical inputs
	GetByInputHash(ctx context.Context, hash string) (*RuleRun, error)

	// ListRecent lists run summaries, newest first
	ListRecent(ctx context.Context, limit int) ([]RuleRunSummary, error)

	// Count returns the number of runs in the time range
	Count(ctx context.Context, tr TimeRange) (int64, error)
}

// Repository aggregates all persistence interfaces
type Repository struct {
	Runs RuleRunRepo
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for persistence layer
type RepositoryHealth interface {
	// Health returns current repository health status
	Health(ctx context.Context) HealthCheck

	// Ping tests basic connectivity to database
	Ping(ctx context.Context) error

	// Stats returns connection pool and query statistics
	Stats(ctx context.Context) map[string]interface{}
}
