package postgres

// Schema creates the rule_runs table and its lookup indexes
const Schema = `
CREATE TABLE IF NOT EXISTS rule_runs (
	id           UUID PRIMARY KEY,
	input_hash   TEXT NOT NULL,
	asset        TEXT NOT NULL,
	task_type    TEXT NOT NULL CHECK (task_type IN ('regression', 'classification')),
	tree_count   INTEGER NOT NULL CHECK (tree_count >= 0),
	path_count   INTEGER NOT NULL CHECK (path_count >= 0),
	params       JSONB NOT NULL DEFAULT '{}'::jsonb,
	rules        JSONB NOT NULL DEFAULT '[]'::jsonb,
	trader_rules JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS rule_runs_created_at_idx ON rule_runs (created_at DESC);
CREATE INDEX IF NOT EXISTS rule_runs_input_hash_idx ON rule_runs (input_hash, created_at DESC);
`
