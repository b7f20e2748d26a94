package rules

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type columnMatrix struct {
	rows    int
	columns map[string][]float64
}

func (m columnMatrix) NumRows() int { return m.rows }

func (m columnMatrix) Column(feature string) ([]float64, bool) {
	values, ok := m.columns[feature]
	return values, ok
}

// rsiMatrix returns 100 rows where the first `low` rows have RSI <= 30
func rsiMatrix(low int) columnMatrix {
	rsi := make([]float64, 100)
	for i := range rsi {
		if i < low {
			rsi[i] = 10 + float64(i%20)
		} else {
			rsi[i] = 31 + float64(i%40)
		}
	}
	return columnMatrix{rows: 100, columns: map[string][]float64{"RSI": rsi}}
}

func TestCoveredRows_Conjunction(t *testing.T) {
	// x in 0..9, y in 9..0; exactly rows 3,4,5 satisfy x > 2 AND y > 3
	x := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	y := []float64{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}
	m := columnMatrix{rows: 10, columns: map[string][]float64{"x": x, "y": y}}

	tests := []struct {
		name       string
		conditions []Condition
		want       int
	}{
		{"no_conditions", nil, 10},
		{"single", []Condition{{Feature: "x", Operator: OpGreater, Threshold: 2}}, 7},
		{"conjunction", []Condition{
			{Feature: "x", Operator: OpGreater, Threshold: 2},
			{Feature: "y", Operator: OpGreater, Threshold: 3},
		}, 3},
		{"disjoint", []Condition{
			{Feature: "x", Operator: OpLessEqual, Threshold: 2},
			{Feature: "y", Operator: OpLessEqual, Threshold: 3},
		}, 0},
		{"missing_column_fails_every_row", []Condition{
			{Feature: "x", Operator: OpGreater, Threshold: -1},
			{Feature: "volume", Operator: OpGreater, Threshold: -1e9},
		}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoveredRows(tt.conditions, m))
		})
	}
}

func TestCoveredRows_NaNNeverSatisfies(t *testing.T) {
	m := columnMatrix{rows: 3, columns: map[string][]float64{"x": {math.NaN(), 1, 2}}}

	assert.Equal(t, 1, CoveredRows([]Condition{{Feature: "x", Operator: OpLessEqual, Threshold: 1}}, m))
	assert.Equal(t, 1, CoveredRows([]Condition{{Feature: "x", Operator: OpGreater, Threshold: 1}}, m))
}

func TestScore_CoverageFraction(t *testing.T) {
	for _, k := range []int{0, 1, 40, 73, 100} {
		m := rsiMatrix(k)
		rule := Rule{Conditions: []Condition{{Feature: "RSI", Operator: OpLessEqual, Threshold: 30}}}

		scored := ScoreRule(rule, m, 0)
		assert.InDelta(t, float64(k)/100, scored.Coverage, 1e-12, "k=%d", k)
	}
}

func TestScore_ImportanceFormula(t *testing.T) {
	m := rsiMatrix(40)
	rule := Rule{
		Conditions: []Condition{{Feature: "RSI", Operator: OpGreater, Threshold: 30}},
		Prediction: 0.003,
	}

	scored := ScoreRule(rule, m, 10)
	want := 10.0*0.003 + 5.0*0.6 + 1.0/(1.0+0.1)
	assert.InDelta(t, want, scored.Importance, 1e-12)
}

func TestScore_PenaltyIsExactlyOneTenth(t *testing.T) {
	m := rsiMatrix(5)
	rule := Rule{
		Conditions: []Condition{{Feature: "RSI", Operator: OpLessEqual, Threshold: 30}},
		Prediction: -0.01,
	}

	unpenalized := ScoreRule(rule, m, 5)
	penalized := ScoreRule(rule, m, 6)

	assert.Equal(t, unpenalized.Coverage, penalized.Coverage)
	assert.Equal(t, unpenalized.Importance*0.1, penalized.Importance)
}

func TestImportance_Monotonicity(t *testing.T) {
	t.Run("prediction_magnitude", func(t *testing.T) {
		prev := Importance(0, 0.3, 2)
		for _, p := range []float64{0.001, -0.002, 0.01, -0.5, 3} {
			cur := Importance(p, 0.3, 2)
			assert.Greater(t, cur, prev, "prediction %v", p)
			prev = cur
		}
	})

	t.Run("coverage", func(t *testing.T) {
		prev := Importance(0.002, 0, 4)
		for _, c := range []float64{0.01, 0.2, 0.5, 0.99, 1} {
			cur := Importance(0.002, c, 4)
			assert.Greater(t, cur, prev, "coverage %v", c)
			prev = cur
		}
	})

	t.Run("fewer_conditions_score_higher", func(t *testing.T) {
		assert.Greater(t, Importance(0.002, 0.2, 1), Importance(0.002, 0.2, 2))
	})
}

func TestScore_DoesNotMutateInput(t *testing.T) {
	m := rsiMatrix(40)
	input := []Rule{
		{Conditions: []Condition{{Feature: "RSI", Operator: OpLessEqual, Threshold: 30}}, Prediction: -0.002},
		{Conditions: []Condition{{Feature: "RSI", Operator: OpGreater, Threshold: 30}}, Prediction: 0.003},
	}

	scored, err := Score(input, m, 10)
	require.NoError(t, err)
	require.Len(t, scored, 2)

	for _, r := range input {
		assert.Zero(t, r.Coverage)
		assert.Zero(t, r.Importance)
	}
	assert.InDelta(t, 0.4, scored[0].Coverage, 1e-12)
	assert.InDelta(t, 0.6, scored[1].Coverage, 1e-12)

	again, err := Score(input, m, 10)
	require.NoError(t, err)
	assert.Equal(t, scored, again)
}

func TestScore_EmptyMatrix(t *testing.T) {
	m := columnMatrix{rows: 0, columns: map[string][]float64{}}
	scored, err := Score([]Rule{{Prediction: 0.1}}, m, 0)
	require.NoError(t, err)
	assert.Zero(t, scored[0].Coverage)
}

func TestScore_NegativeMinSamples(t *testing.T) {
	_, err := Score(nil, rsiMatrix(1), -1)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "min_samples", cfgErr.Field)
}
