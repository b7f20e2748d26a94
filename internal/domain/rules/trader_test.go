package rules

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStrength(t *testing.T) {
	tests := []struct {
		prediction float64
		want       Strength
	}{
		{0.003, StrengthStrong},
		{-0.0021, StrengthStrong},
		{0.002, StrengthModerate},
		{-0.002, StrengthModerate},
		{0.0015, StrengthModerate},
		{0.001, StrengthWeak},
		{-0.0005, StrengthWeak},
		{0, StrengthWeak},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyStrength(tt.prediction), "prediction %v", tt.prediction)
	}
}

func TestClassifySignal(t *testing.T) {
	assert.Equal(t, SignalLong, ClassifySignal(0.0001))
	assert.Equal(t, SignalShort, ClassifySignal(0))
	assert.Equal(t, SignalShort, ClassifySignal(-1))
}

func TestBuild_Gates(t *testing.T) {
	ranked := []Rule{
		{
			// 4 distinct features after simplification
			Conditions: []Condition{gt("a", 1), gt("b", 1), gt("c", 1), le("d", 1)},
			Prediction: 0.05, Coverage: 0.5, Importance: 100,
		},
		{
			Conditions: []Condition{gt("a", 1)},
			Prediction: 0.01, Coverage: 0.10, Importance: 50,
		},
		{
			// unconditional default prediction
			Prediction: 0.02, Coverage: 1, Importance: 40,
		},
		{
			// 5 raw conditions but only 2 features
			Conditions: []Condition{gt("a", 1), gt("a", 2), le("b", 5), le("b", 4), gt("a", 0)},
			Prediction: -0.004, Coverage: 0.2, Importance: 30,
		},
		{
			Conditions: []Condition{le("a", 1)},
			Prediction: 0.0005, Coverage: 0.15, Importance: 20,
		},
	}

	got, err := Build(ranked, 6, 0.15)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, []string{"a", "b"}, got[0].Conditions.Features())
	assert.Equal(t, SignalShort, got[0].Signal)
	assert.Equal(t, StrengthStrong, got[0].Strength)
	a, _ := got[0].Conditions.Get("a")
	assert.Equal(t, Bound{Direction: DirGT, Threshold: 2}, a)

	// coverage exactly at the floor is admitted
	assert.Equal(t, 0.15, got[1].Coverage)
	assert.Equal(t, StrengthWeak, got[1].Strength)
	assert.Equal(t, SignalLong, got[1].Signal)
}

func TestBuild_SortsAndTruncates(t *testing.T) {
	var ranked []Rule
	for i, imp := range []float64{1, 5, 3, 5, 2, 4} {
		ranked = append(ranked, Rule{
			Conditions: []Condition{gt("x", float64(i))},
			Prediction: 0.003, Coverage: 0.5, Importance: imp, TreeID: i,
		})
	}

	got, err := Build(ranked, 3, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)

	thresholds := []float64{}
	for _, r := range got {
		b, _ := r.Conditions.Get("x")
		thresholds = append(thresholds, b.Threshold)
	}
	// ties on importance 5 keep input order (tree 1 before tree 3)
	assert.Equal(t, []float64{1, 3, 5}, thresholds)

	all, err := Build(ranked, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestBuild_EmptyInput(t *testing.T) {
	got, err := Build(nil, 6, 0.15)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBuild_InvalidMinCoverage(t *testing.T) {
	for _, mc := range []float64{-0.01, 1.01, math.NaN()} {
		_, err := Build(nil, 6, mc)

		var cfgErr *ConfigurationError
		require.True(t, errors.As(err, &cfgErr), "min_coverage %v", mc)
		assert.Equal(t, "min_coverage", cfgErr.Field)
	}
}

func TestPipeline_RSIScenario(t *testing.T) {
	w := NewWalker([]string{"RSI"})
	root := split(0, 0, 30, leaf(0, -0.002), leaf(1, 0.003))

	raw, err := w.Walk(root, 0)
	require.NoError(t, err)
	require.Len(t, raw, 2)

	scored, err := Score(raw, rsiMatrix(40), 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.40, scored[0].Coverage, 1e-12)
	assert.InDelta(t, 0.60, scored[1].Coverage, 1e-12)

	ranked := Select(scored, 20)
	require.Len(t, ranked, 2)
	assert.Equal(t, 0.003, ranked[0].Prediction)

	trader, err := Build(ranked, 6, 0.15)
	require.NoError(t, err)
	require.Len(t, trader, 2)

	assert.Equal(t, SignalLong, trader[0].Signal)
	assert.Equal(t, StrengthStrong, trader[0].Strength)
	assert.Equal(t, "IF RSI > 30.0 THEN Strong LONG SPY", trader[0].Text("SPY"))

	assert.Equal(t, SignalShort, trader[1].Signal)
	assert.Equal(t, StrengthModerate, trader[1].Strength)
	assert.Equal(t, "IF RSI < 30.0 THEN Moderate SHORT SPY", trader[1].Text("SPY"))
}
