package persistence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/ruleforge/internal/domain/rules"
)

func TestRuleRun_TraderRulesKeepConditionOrder(t *testing.T) {
	run := RuleRun{
		ID:       "run-1",
		Asset:    "SPY",
		TaskType: "regression",
		TraderRules: []rules.SimplifiedRule{
			{
				Conditions: rules.BoundSet{
					{Feature: "Volume", Bound: rules.Bound{Direction: rules.DirLE, Threshold: 1.5}},
					{Feature: "CallDex", Bound: rules.Bound{Direction: rules.DirGT, Threshold: 16.5}},
				},
				Prediction: 0.004,
				Signal:     rules.SignalLong,
				Strength:   rules.StrengthStrong,
			},
		},
		CreatedAt: time.Date(2025, 9, 7, 10, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(run)
	require.NoError(t, err)

	var decoded RuleRun
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Len(t, decoded.TraderRules, 1)
	assert.Equal(t, []string{"Volume", "CallDex"}, decoded.TraderRules[0].Conditions.Features())
	assert.Equal(t, "IF Volume < 1.5 AND CallDex > 16.5 THEN Strong LONG SPY", decoded.TraderRules[0].Text(decoded.Asset))
}

func TestHealthCheck_Structure(t *testing.T) {
	healthCheck := HealthCheck{
		Healthy: true,
		Errors:  []string{},
		ConnectionPool: map[string]int{
			"open": 5,
			"idle": 3,
		},
		LastCheck:      time.Now(),
		ResponseTimeMS: 4,
	}

	data, err := json.Marshal(healthCheck)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"errors"`)
	assert.Contains(t, string(data), `"connection_pool"`)
}
