// Package crossval implements rolling-origin (walk-forward) cross-validation
// of a forecast model against historical data. The trailing observations of a
// window are partitioned into chronologically ordered test folds and a fresh
// model is fit on every fold's training prefix, so no future information ever
// leaks into a fit.
package crossval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avoskamp/go-predictor/forecast"
	"github.com/avoskamp/go-predictor/timeseries"
)

var (
	ErrNoWindow          = errors.New("no window to validate against")
	ErrNoModelFactory    = errors.New("no model factory provided")
	ErrInvalidFoldCount  = errors.New("fold count must be at least 1")
	ErrInvalidTestLength = errors.New("fold test length must be at least 1")
	ErrAllFoldsSkipped   = errors.New("all cross-validation folds skipped")
)

// Options configures a cross-validation run.
type Options struct {
	// Folds is the number of chronological test folds carved from the end
	// of the window.
	Folds int `json:"folds"`

	// TestLength is the number of observations forecast per fold.
	TestLength int `json:"test_length"`

	// Timeout bounds each fold's fit and predict. Zero disables the bound.
	Timeout time.Duration `json:"timeout"`

	// Parallelization sets how many folds run concurrently. Fold results
	// are merged in fold order regardless.
	Parallelization int `json:"parallelization"`
}

// NewDefaultOptions returns a default set of cross-validation options.
func NewDefaultOptions() *Options {
	return &Options{
		Folds:           3,
		TestLength:      5,
		Parallelization: 1,
	}
}

// Validate runs basic validation on cross-validation options.
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if o.Folds < 1 {
		return nil, ErrInvalidFoldCount
	}
	if o.TestLength < 1 {
		return nil, ErrInvalidTestLength
	}
	if o.Parallelization < 1 {
		o.Parallelization = 1
	}
	return o, nil
}

// FoldResult holds one fold's forecasts against its actuals for diagnostics.
type FoldResult struct {
	Fold      int              `json:"fold"`
	TrainSize int              `json:"train_size"`
	Predicted []forecast.Point `json:"predicted"`
	Actual    []float64        `json:"actual"`
	Scores    forecast.Scores  `json:"scores"`
}

// SkippedFold records a fold that produced no metric sample and why. Skipped
// folds are warnings, not failures, unless every fold is skipped.
type SkippedFold struct {
	Fold      int    `json:"fold"`
	TrainSize int    `json:"train_size"`
	Reason    string `json:"reason"`
}

// Result aggregates a model's walk-forward validation across all folds.
// Scores is the arithmetic mean of per-fold scores over surviving folds.
type Result struct {
	Model   string          `json:"model"`
	Folds   []FoldResult    `json:"folds"`
	Skipped []SkippedFold   `json:"skipped,omitempty"`
	Scores  forecast.Scores `json:"scores"`
}

// Run cross-validates the model produced by factory against the window. Fold
// i (0 indexed from oldest) tests the observations in the half-open index
// range [N-(K-i)*T, N-(K-i-1)*T) after fitting a fresh model on everything
// strictly before it. Folds whose training prefix is shorter than the model
// minimum, or whose fit or predict fails or times out, are skipped with a
// recorded warning. When every fold is skipped the partial result is
// returned along with ErrAllFoldsSkipped.
func Run(ctx context.Context, w *timeseries.Window, factory func() forecast.Model, opt *Options) (*Result, error) {
	if w == nil || w.Len() == 0 {
		return nil, ErrNoWindow
	}
	if factory == nil {
		return nil, ErrNoModelFactory
	}
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}

	name := factory().Name()
	n := w.Len()

	folds := make([]*FoldResult, opt.Folds)
	skips := make([]*SkippedFold, opt.Folds)

	sem := make(chan struct{}, opt.Parallelization)
	var wg sync.WaitGroup
	for i := 0; i < opt.Folds; i++ {
		sem <- struct{}{}
		wg.Add(1)

		go func(fold int) {
			defer func() {
				wg.Done()
				<-sem
			}()
			folds[fold], skips[fold] = runFold(ctx, w, factory(), fold, n, opt)
		}(i)
	}
	wg.Wait()

	res := &Result{Model: name}
	scores := make([]forecast.Scores, 0, opt.Folds)
	for i := 0; i < opt.Folds; i++ {
		if folds[i] != nil {
			res.Folds = append(res.Folds, *folds[i])
			scores = append(scores, folds[i].Scores)
			continue
		}
		res.Skipped = append(res.Skipped, *skips[i])
	}

	if len(res.Folds) == 0 {
		return res, fmt.Errorf("model %q, %w", name, ErrAllFoldsSkipped)
	}
	res.Scores = forecast.MeanScores(scores)
	return res, nil
}

func runFold(ctx context.Context, w *timeseries.Window, model forecast.Model, fold, n int, opt *Options) (*FoldResult, *SkippedFold) {
	testStart := n - (opt.Folds-fold)*opt.TestLength

	if testStart < model.MinTrainSize() {
		return nil, &SkippedFold{
			Fold:      fold,
			TrainSize: max(testStart, 0),
			Reason: fmt.Sprintf(
				"training prefix of %d below model minimum of %d",
				max(testStart, 0), model.MinTrainSize(),
			),
		}
	}
	if model.MaxHorizon() > 0 && opt.TestLength > model.MaxHorizon() {
		return nil, &SkippedFold{
			Fold:      fold,
			TrainSize: testStart,
			Reason:    fmt.Sprintf("fold test length %d exceeds model horizon %d", opt.TestLength, model.MaxHorizon()),
		}
	}

	train, test, err := w.SplitTrainTest(n - testStart)
	if err != nil {
		return nil, &SkippedFold{Fold: fold, TrainSize: testStart, Reason: err.Error()}
	}

	testT := test.T[:opt.TestLength]
	actual := test.Y[:opt.TestLength]
	testReg := test.RegressorSlice(0, opt.TestLength)

	predicted, err := fitPredict(ctx, model, train, testT, testReg, opt.Timeout)
	if err != nil {
		return nil, &SkippedFold{Fold: fold, TrainSize: testStart, Reason: err.Error()}
	}

	scores, err := forecast.NewScores(forecast.Values(predicted), actual)
	if err != nil {
		return nil, &SkippedFold{Fold: fold, TrainSize: testStart, Reason: err.Error()}
	}

	actualCopy := make([]float64, len(actual))
	copy(actualCopy, actual)

	return &FoldResult{
		Fold:      fold,
		TrainSize: testStart,
		Predicted: predicted,
		Actual:    actualCopy,
		Scores:    *scores,
	}, nil
}

// fitPredict runs one fold's fit and predict, bounded by the fold timeout. A
// model exceeding the bound is reported as a fold failure rather than
// blocking the run.
func fitPredict(ctx context.Context, model forecast.Model, train *timeseries.Window, t []time.Time, reg map[string][]float64, timeout time.Duration) ([]forecast.Point, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type foldOut struct {
		points []forecast.Point
		err    error
	}

	done := make(chan foldOut, 1)
	go func() {
		if err := model.Fit(train); err != nil {
			done <- foldOut{err: err}
			return
		}
		points, err := model.Predict(t, reg)
		done <- foldOut{points: points, err: err}
	}()

	select {
	case out := <-done:
		return out.points, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
