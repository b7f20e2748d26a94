package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 10, config.MaxOpenConns)
	assert.Equal(t, 5, config.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, config.ConnMaxLifetime)
	assert.Equal(t, 5*time.Minute, config.ConnMaxIdleTime)
	assert.Equal(t, 30*time.Second, config.QueryTimeout)
	assert.False(t, config.Enabled)
	assert.NoError(t, config.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing_dsn", func(c *Config) { c.DSN = "" }, "DSN is required"},
		{"zero_open", func(c *Config) { c.MaxOpenConns = 0 }, "max_open_conns"},
		{"idle_exceeds_open", func(c *Config) { c.MaxIdleConns = 50 }, "cannot exceed"},
		{"zero_timeout", func(c *Config) { c.QueryTimeout = 0 }, "query_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Enabled = true
			config.DSN = "postgres://localhost/ruleforge"
			tt.mutate(&config)

			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://env/ruleforge")
	t.Setenv("PG_ENABLED", "true")
	t.Setenv("PG_QUERY_TIMEOUT", "3s")
	t.Setenv("PG_MAX_OPEN_CONNS", "not-a-number")

	config := DefaultConfig()
	ApplyEnvOverrides(&config)

	assert.Equal(t, "postgres://env/ruleforge", config.DSN)
	assert.True(t, config.Enabled)
	assert.Equal(t, 3*time.Second, config.QueryTimeout)
	assert.Equal(t, 10, config.MaxOpenConns)
}

func TestNewManager_Disabled(t *testing.T) {
	manager, err := NewManager(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, manager.IsEnabled())
	assert.Nil(t, manager.Repository())
	assert.Nil(t, manager.DB())
	assert.NoError(t, manager.Migrate(context.Background()))
	assert.NoError(t, manager.Close())

	health := manager.Health().Health(context.Background())
	assert.True(t, health.Healthy)
	assert.Contains(t, health.Errors[0], "disabled")

	stats := manager.Health().Stats(context.Background())
	assert.False(t, stats["enabled"].(bool))
	assert.NoError(t, manager.Health().Ping(context.Background()))
}

func TestNewManager_MissingDSN(t *testing.T) {
	_, err := NewManager(Config{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
}

func newMockManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	config := DefaultConfig()
	config.Enabled = true
	config.DSN = "sqlmock"

	return NewManagerWithDB(sqlx.NewDb(mockDB, "postgres"), config), mock
}

func TestManager_Health(t *testing.T) {
	manager, mock := newMockManager(t)
	require.True(t, manager.IsEnabled())
	require.NotNil(t, manager.Repository().Runs)

	mock.ExpectPing()
	health := manager.Health().Health(context.Background())
	assert.True(t, health.Healthy)
	assert.Empty(t, health.Errors)
	assert.Contains(t, health.ConnectionPool, "open")

	mock.ExpectPing().WillReturnError(sqlmock.ErrCancelled)
	health = manager.Health().Health(context.Background())
	assert.False(t, health.Healthy)
	require.Len(t, health.Errors, 1)
	assert.Contains(t, health.Errors[0], "ping failed")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Migrate(t *testing.T) {
	manager, mock := newMockManager(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS rule_runs`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, manager.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
