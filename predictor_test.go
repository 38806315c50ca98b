package predictor

import (
	"context"
	"testing"
	"time"

	"github.com/avoskamp/go-predictor/ensemble"
	"github.com/avoskamp/go-predictor/forecast/models"
	"github.com/avoskamp/go-predictor/timeseries"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genWindow(t *testing.T, n int, y []float64) *timeseries.Window {
	t.Helper()
	times := timeseries.GenerateT(n, time.Hour, func() time.Time {
		return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	})
	w, err := timeseries.New(times, y, time.Hour)
	require.Nil(t, err)
	return w
}

func TestNewOptionErrors(t *testing.T) {
	testData := map[string]struct {
		opt *Options
		err error
	}{
		"no candidates": {
			opt: &Options{Horizon: 5},
			err: ErrNoCandidates,
		},
		"bad horizon": {
			opt: &Options{Candidates: models.Variants()},
			err: ErrInvalidHorizon,
		},
		"negative workers": {
			opt: &Options{Candidates: models.Variants(), Horizon: 5, Workers: -1},
			err: ErrInvalidWorkers,
		},
		"unknown candidate": {
			opt: &Options{Candidates: []models.Variant{"arima"}, Horizon: 5},
			err: models.ErrUnknownVariant,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			_, err := New(td.opt)
			assert.ErrorIs(t, err, td.err)
		})
	}
}

func TestRunLinearTrend(t *testing.T) {
	n := 100
	w := genWindow(t, n, timeseries.GenerateTrendY(n, 10.0, 1.0))

	p, err := New(&Options{
		Candidates:     models.Variants(),
		FoldCount:      3,
		FoldTestLength: 5,
		Horizon:        5,
		Seed:           42,
	})
	require.Nil(t, err)

	artifact, err := p.Run(context.Background(), w)
	require.Nil(t, err)

	assert.Equal(t, 5, artifact.Horizon)
	assert.Equal(t, ensemble.PolicyBestOf, artifact.Policy)
	assert.NotEmpty(t, artifact.ChosenModel)
	require.Len(t, artifact.Points, 5)
	require.Len(t, artifact.Diagnostics, len(models.Variants()))

	total := 0.0
	for _, weight := range artifact.Weights {
		total += weight
	}
	assert.InDelta(t, 1.0, total, 1e-12)

	// forecast horizon continues the window at its sampling frequency
	assert.Equal(t, w.EndTime().Add(time.Hour), artifact.Points[0].T)
	for i, p := range artifact.Points {
		expected := 10.0 + float64(n+i)
		assert.InDelta(t, expected, p.Value, 10.0, "step %d", i)
		assert.LessOrEqual(t, p.Lower, p.Value)
		assert.GreaterOrEqual(t, p.Upper, p.Value)
	}
}

func TestRunDeterministic(t *testing.T) {
	n := 100
	y := timeseries.GenerateTrendY(n, 10.0, 1.0).
		Add(timeseries.GenerateNoise(n, 0.5, 11))
	w := genWindow(t, n, y)

	opt := func() *Options {
		return &Options{
			Candidates:     models.Variants(),
			FoldCount:      3,
			FoldTestLength: 5,
			Horizon:        5,
			Seed:           42,
		}
	}

	a, err := New(opt())
	require.Nil(t, err)
	first, err := a.Run(context.Background(), w)
	require.Nil(t, err)

	b, err := New(opt())
	require.Nil(t, err)
	second, err := b.Run(context.Background(), w)
	require.Nil(t, err)

	assert.Equal(t, first.ChosenModel, second.ChosenModel)
	assert.Equal(t, first.Weights, second.Weights)
	assert.Equal(t, first.Points, second.Points)
}

func TestRunWindowTooShort(t *testing.T) {
	// 5 observations cannot produce a single valid fold for any candidate
	w := genWindow(t, 5, timeseries.GenerateTrendY(5, 1.0, 1.0))

	p, err := New(&Options{
		Candidates:     models.Variants(),
		FoldCount:      3,
		FoldTestLength: 5,
		Horizon:        5,
	})
	require.Nil(t, err)

	_, err = p.Run(context.Background(), w)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ensemble.ErrNoViableModel)

	var pipeErr *Error
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, StageSelecting, pipeErr.Stage)
	require.Len(t, pipeErr.Diagnostics, len(models.Variants()))
	for _, diag := range pipeErr.Diagnostics {
		assert.NotEmpty(t, diag.Error)
	}
}

func TestRunEmptyWindow(t *testing.T) {
	p, err := New(nil)
	require.Nil(t, err)

	_, err = p.Run(context.Background(), nil)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, timeseries.ErrNoData)

	var pipeErr *Error
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, StageInit, pipeErr.Stage)
}

func TestRunFailingCandidateDoesNotAbort(t *testing.T) {
	n := 100
	w := genWindow(t, n, timeseries.GenerateTrendY(n, 10.0, 1.0))

	// force every recurrent fold below its training minimum so only the
	// other candidates stay viable
	mopt := models.NewDefaultOptions()
	mopt.Recurrent.MinTrain = 500

	p, err := New(&Options{
		Candidates:     models.Variants(),
		FoldCount:      3,
		FoldTestLength: 5,
		Horizon:        5,
		ModelOptions:   mopt,
		Workers:        3,
	})
	require.Nil(t, err)

	artifact, err := p.Run(context.Background(), w)
	require.Nil(t, err)

	assert.NotEqual(t, string(models.VariantRecurrent), artifact.ChosenModel)

	var recurrentDiag *CandidateDiagnostic
	for i := range artifact.Diagnostics {
		if artifact.Diagnostics[i].Model == string(models.VariantRecurrent) {
			recurrentDiag = &artifact.Diagnostics[i]
		}
	}
	require.NotNil(t, recurrentDiag)
	assert.NotEmpty(t, recurrentDiag.Error)
}

func TestRunWeightedPolicy(t *testing.T) {
	n := 100
	y := timeseries.GenerateTrendY(n, 10.0, 1.0).
		Add(timeseries.GenerateNoise(n, 0.5, 11))
	w := genWindow(t, n, y)

	p, err := New(&Options{
		Candidates:     []models.Variant{models.VariantSeasonalRegression, models.VariantHoltWinters},
		FoldCount:      3,
		FoldTestLength: 5,
		Horizon:        5,
		EnsemblePolicy: ensemble.PolicyWeighted,
	})
	require.Nil(t, err)

	artifact, err := p.Run(context.Background(), w)
	require.Nil(t, err)

	assert.Equal(t, ensemble.PolicyWeighted, artifact.Policy)
	assert.Empty(t, artifact.ChosenModel)
	require.Len(t, artifact.Weights, 2)

	total := 0.0
	for _, weight := range artifact.Weights {
		total += weight
	}
	assert.InDelta(t, 1.0, total, 1e-12)
	require.Len(t, artifact.Points, 5)
}

func TestRunWithDerivedRegressors(t *testing.T) {
	n := 24 * 14
	times := timeseries.GenerateT(n, time.Hour, func() time.Time {
		return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	})
	y := make(timeseries.Series, n)
	for i := 0; i < n; i++ {
		y[i] = 100
		switch times[i].Weekday() {
		case time.Saturday, time.Sunday:
			y[i] += 20
		}
	}
	w, err := timeseries.New(times, y, time.Hour)
	require.Nil(t, err)

	p, err := New(&Options{
		Candidates:     []models.Variant{models.VariantSeasonalRegression},
		FoldCount:      3,
		FoldTestLength: 12,
		Horizon:        24,
		Regressors: []timeseries.RegressorSpec{
			{Name: "weekend", Kind: timeseries.RegressorWeekend},
		},
	})
	require.Nil(t, err)

	artifact, err := p.Run(context.Background(), w)
	require.Nil(t, err)
	require.Len(t, artifact.Points, 24)

	// the original window stays untouched
	assert.Nil(t, w.Regressors)
}

func TestArtifactJSONRoundTrip(t *testing.T) {
	n := 100
	w := genWindow(t, n, timeseries.GenerateTrendY(n, 10.0, 1.0))

	p, err := New(&Options{
		Candidates:     []models.Variant{models.VariantHoltWinters},
		FoldCount:      3,
		FoldTestLength: 5,
		Horizon:        5,
	})
	require.Nil(t, err)

	artifact, err := p.Run(context.Background(), w)
	require.Nil(t, err)

	data, err := artifact.JSON()
	require.Nil(t, err)

	var decoded Artifact
	require.Nil(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, artifact.ChosenModel, decoded.ChosenModel)
	assert.Equal(t, artifact.Horizon, decoded.Horizon)
	require.Len(t, decoded.Points, len(artifact.Points))
	assert.InDelta(t, artifact.Points[0].Value, decoded.Points[0].Value, 1e-9)
}
