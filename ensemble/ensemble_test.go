package ensemble

import (
	"testing"
	"time"

	"github.com/avoskamp/go-predictor/crossval"
	"github.com/avoskamp/go-predictor/forecast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(model string, mape, rmse float64) *crossval.Result {
	return &crossval.Result{
		Model:  model,
		Folds:  []crossval.FoldResult{{Fold: 0}},
		Scores: forecast.Scores{MAPE: mape, RMSE: rmse},
	}
}

func TestSelectBestOf(t *testing.T) {
	priority := []string{"a", "b", "c"}

	testData := map[string]struct {
		results  []*crossval.Result
		expected string
		err      error
	}{
		"no results": {
			err: ErrNoViableModel,
		},
		"only empty results": {
			results: []*crossval.Result{{Model: "a"}},
			err:     ErrNoViableModel,
		},
		"lowest mape wins": {
			results: []*crossval.Result{
				result("a", 0.3, 1.0),
				result("b", 0.1, 9.0),
			},
			expected: "b",
		},
		"rmse breaks mape tie": {
			results: []*crossval.Result{
				result("a", 0.2, 5.0),
				result("b", 0.2, 3.0),
			},
			expected: "b",
		},
		"priority breaks exact tie": {
			results: []*crossval.Result{
				result("c", 0.2, 5.0),
				result("b", 0.2, 5.0),
			},
			expected: "b",
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			sel, err := Select(td.results, PolicyBestOf, priority)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, td.expected, sel.ChosenModel)
			assert.Equal(t, map[string]float64{td.expected: 1.0}, sel.Weights)
		})
	}
}

func TestSelectBestOfDeterministic(t *testing.T) {
	priority := []string{"a", "b"}
	results := []*crossval.Result{
		result("a", 0.2, 5.0),
		result("b", 0.2, 5.0),
	}

	first, err := Select(results, PolicyBestOf, priority)
	require.Nil(t, err)
	for i := 0; i < 20; i++ {
		next, err := Select(results, PolicyBestOf, priority)
		require.Nil(t, err)
		assert.Equal(t, first, next)
	}
}

func TestSelectWeighted(t *testing.T) {
	results := []*crossval.Result{
		result("a", 0.1, 1.0),
		result("b", 0.3, 1.0),
	}

	sel, err := Select(results, PolicyWeighted, []string{"a", "b"})
	require.Nil(t, err)

	require.Len(t, sel.Weights, 2)
	total := 0.0
	for _, w := range sel.Weights {
		total += w
	}
	assert.InDelta(t, 1.0, total, 1e-12)
	// inverse MAPE weighting: a is three times better than b
	assert.InDelta(t, 3.0, sel.Weights["a"]/sel.Weights["b"], 1e-9)
}

func TestSelectWeightedPerfectScore(t *testing.T) {
	results := []*crossval.Result{
		result("a", 0, 0),
		result("b", 0.5, 1.0),
	}

	sel, err := Select(results, PolicyWeighted, []string{"a", "b"})
	require.Nil(t, err)
	assert.Greater(t, sel.Weights["a"], sel.Weights["b"])
}

func TestSelectUnknownPolicy(t *testing.T) {
	_, err := Select([]*crossval.Result{result("a", 0.1, 1.0)}, Policy("vote"), nil)
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestCombine(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	z := forecast.ConfidenceZ(forecast.DefaultConfidenceLevel)

	testData := map[string]struct {
		pointsByModel map[string][]forecast.Point
		weights       map[string]float64
		expectedVal   float64
		err           error
	}{
		"no forecasts": {
			err: ErrNoForecasts,
		},
		"missing weight": {
			pointsByModel: map[string][]forecast.Point{
				"a": {{T: ts, Value: 1}},
			},
			weights: map[string]float64{"b": 1},
			err:     ErrNoViableModel,
		},
		"length mismatch": {
			pointsByModel: map[string][]forecast.Point{
				"a": {{T: ts, Value: 1}},
				"b": {{T: ts, Value: 1}, {T: ts.Add(time.Hour), Value: 2}},
			},
			weights: map[string]float64{"a": 0.5, "b": 0.5},
			err:     ErrForecastMismatch,
		},
		"empty forecast": {
			pointsByModel: map[string][]forecast.Point{
				"a": {},
				"b": {{T: ts, Value: 1}},
			},
			weights: map[string]float64{"a": 0.5, "b": 0.5},
			err:     ErrForecastMismatch,
		},
		"weighted average": {
			pointsByModel: map[string][]forecast.Point{
				"a": {{T: ts, Value: 10, Lower: 10 - z, Upper: 10 + z}},
				"b": {{T: ts, Value: 20, Lower: 20 - z, Upper: 20 + z}},
			},
			weights:     map[string]float64{"a": 0.75, "b": 0.25},
			expectedVal: 12.5,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			combined, err := Combine(td.pointsByModel, td.weights, forecast.DefaultConfidenceLevel)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)
			require.Len(t, combined, 1)
			assert.InDelta(t, td.expectedVal, combined[0].Value, 1e-9)
			assert.Less(t, combined[0].Lower, combined[0].Value)
			assert.Greater(t, combined[0].Upper, combined[0].Value)
		})
	}
}

func TestCombineVariance(t *testing.T) {
	// two unit variance forecasts at equal weight combine to unit variance
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	z := forecast.ConfidenceZ(forecast.DefaultConfidenceLevel)

	pointsByModel := map[string][]forecast.Point{
		"a": {{T: ts, Value: 0, Lower: -z, Upper: z}},
		"b": {{T: ts, Value: 0, Lower: -z, Upper: z}},
	}
	weights := map[string]float64{"a": 0.5, "b": 0.5}

	combined, err := Combine(pointsByModel, weights, forecast.DefaultConfidenceLevel)
	require.Nil(t, err)
	require.Len(t, combined, 1)
	assert.InDelta(t, -z, combined[0].Lower, 1e-9)
	assert.InDelta(t, z, combined[0].Upper, 1e-9)
}
