package models

import (
	"testing"
	"time"

	"github.com/avoskamp/go-predictor/forecast"
	"github.com/avoskamp/go-predictor/timeseries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecurrentFitErrors(t *testing.T) {
	w := genWindow(t, 10, time.Hour, timeseries.GenerateConstY(10, 5))
	m := NewRecurrent(nil, forecast.DefaultConfidenceLevel, 42)
	assert.ErrorIs(t, m.Fit(w), forecast.ErrInsufficientTrainingData)
}

func TestRecurrentPredictUntrained(t *testing.T) {
	m := NewRecurrent(nil, forecast.DefaultConfidenceLevel, 42)
	_, err := m.Predict([]time.Time{time.Now()}, nil)
	assert.ErrorIs(t, err, forecast.ErrUntrainedModel)
}

func TestRecurrentConstantSeries(t *testing.T) {
	n := 60
	w := genWindow(t, n, time.Hour, timeseries.GenerateConstY(n, 25))

	m := NewRecurrent(nil, forecast.DefaultConfidenceLevel, 42)
	require.Nil(t, m.Fit(w))

	points, err := m.Predict(w.FutureTimes(5), nil)
	require.Nil(t, err)
	require.Len(t, points, 5)

	// a constant normalized series degenerates to zero input so the
	// network should land close to the mean
	for i, p := range points {
		assert.InDelta(t, 25.0, p.Value, 5.0, "step %d", i)
		assert.LessOrEqual(t, p.Lower, p.Value)
		assert.GreaterOrEqual(t, p.Upper, p.Value)
	}
}

func TestRecurrentDeterministicAcrossFits(t *testing.T) {
	n := 80
	y := timeseries.GenerateTrendY(n, 10.0, 0.3).
		Add(timeseries.GenerateNoise(n, 0.5, 7))
	w := genWindow(t, n, time.Hour, y)
	horizon := w.FutureTimes(6)

	a := NewRecurrent(nil, forecast.DefaultConfidenceLevel, 42)
	require.Nil(t, a.Fit(w))
	first, err := a.Predict(horizon, nil)
	require.Nil(t, err)

	b := NewRecurrent(nil, forecast.DefaultConfidenceLevel, 42)
	require.Nil(t, b.Fit(w))
	second, err := b.Predict(horizon, nil)
	require.Nil(t, err)

	assert.Equal(t, first, second)
}

func TestRecurrentHorizonExceeded(t *testing.T) {
	n := 60
	w := genWindow(t, n, time.Hour, timeseries.GenerateConstY(n, 25))

	m := NewRecurrent(nil, forecast.DefaultConfidenceLevel, 42)
	require.Nil(t, m.Fit(w))
	require.Equal(t, 48, m.MaxHorizon())

	_, err := m.Predict(w.FutureTimes(49), nil)
	assert.ErrorIs(t, err, forecast.ErrHorizonExceeded)
}

func TestRecurrentPredictIdempotent(t *testing.T) {
	n := 60
	w := genWindow(t, n, time.Hour, timeseries.GenerateTrendY(n, 5.0, 0.2))

	m := NewRecurrent(nil, forecast.DefaultConfidenceLevel, 42)
	require.Nil(t, m.Fit(w))

	horizon := w.FutureTimes(4)
	first, err := m.Predict(horizon, nil)
	require.Nil(t, err)
	second, err := m.Predict(horizon, nil)
	require.Nil(t, err)
	assert.Equal(t, first, second)
}

func TestNewVariant(t *testing.T) {
	testData := map[string]struct {
		variant  Variant
		expected string
		err      error
	}{
		"holt winters": {
			variant:  VariantHoltWinters,
			expected: "holt_winters",
		},
		"seasonal regression": {
			variant:  VariantSeasonalRegression,
			expected: "seasonal_regression",
		},
		"recurrent": {
			variant:  VariantRecurrent,
			expected: "recurrent",
		},
		"unknown": {
			variant: Variant("arima"),
			err:     ErrUnknownVariant,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			m, err := New(td.variant, nil)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, td.expected, m.Name())
		})
	}
}
