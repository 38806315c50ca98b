// Package predictor orchestrates the single-series prediction pipeline:
// candidate models are cross-validated against the historical window, the
// best model or a weighted ensemble is selected, the production model(s) are
// retrained on the full history, and a horizon forecast with confidence
// bounds is emitted as an immutable artifact.
package predictor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avoskamp/go-predictor/crossval"
	"github.com/avoskamp/go-predictor/ensemble"
	"github.com/avoskamp/go-predictor/forecast"
	"github.com/avoskamp/go-predictor/forecast/models"
	"github.com/avoskamp/go-predictor/timeseries"
	"github.com/rs/zerolog"
)

// Stage identifies where in its lifecycle a pipeline invocation is.
type Stage string

const (
	StageInit        Stage = "init"
	StageValidating  Stage = "validating"
	StageSelecting   Stage = "selecting"
	StageRetraining  Stage = "retraining"
	StageForecasting Stage = "forecasting"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Error is the single pipeline-level failure surfaced to the caller. It
// carries the stage that failed and the per-candidate diagnostics collected
// up to that point so the caller can explain the outcome.
type Error struct {
	Stage       Stage
	Diagnostics []CandidateDiagnostic
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("prediction pipeline failed during %s, %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Pipeline runs the prediction flow for a single series. A pipeline holds no
// mutable state across invocations; Run may be called concurrently for
// different series.
type Pipeline struct {
	opt *Options
	log zerolog.Logger
}

// New creates a Pipeline from the provided options. If no options are
// provided a default is used.
func New(opt *Options) (*Pipeline, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline options, %w", err)
	}

	log := zerolog.Nop()
	if opt.Logger != nil {
		log = *opt.Logger
	}

	return &Pipeline{
		opt: opt,
		log: log,
	}, nil
}

// Run executes one pipeline invocation over the window. Per-candidate
// failures are downgraded to diagnostics; the caller receives either a
// complete Artifact or a single *Error explaining which candidates failed
// and why.
func (p *Pipeline) Run(ctx context.Context, w *timeseries.Window) (*Artifact, error) {
	if w == nil || w.Len() == 0 {
		return nil, &Error{Stage: StageInit, Err: timeseries.ErrNoData}
	}

	if len(p.opt.Regressors) > 0 {
		derived, err := w.WithDerivedRegressors(p.opt.Regressors...)
		if err != nil {
			return nil, &Error{Stage: StageInit, Err: err}
		}
		w = derived
	}

	p.log.Info().
		Str("stage", string(StageValidating)).
		Int("observations", w.Len()).
		Int("candidates", len(p.opt.Candidates)).
		Msg("cross-validating candidate models")

	diags, viable := p.validateCandidates(ctx, w)

	p.log.Info().
		Str("stage", string(StageSelecting)).
		Int("viable", len(viable)).
		Str("policy", string(p.opt.EnsemblePolicy)).
		Msg("selecting production model")

	// Selection and retraining loop: a model that validated but fails its
	// full-history refit or final forecast is excluded and selection is
	// repeated over the remaining candidates.
	for {
		sel, err := ensemble.Select(viable, p.opt.EnsemblePolicy, p.opt.priority())
		if err != nil {
			p.log.Error().Str("stage", string(StageFailed)).Err(err).Msg("no production model")
			return nil, &Error{Stage: StageSelecting, Diagnostics: diags, Err: err}
		}

		artifact, failed, err := p.forecastSelection(ctx, w, sel, viable)
		if err == nil {
			artifact.Diagnostics = diags
			p.log.Info().
				Str("stage", string(StageDone)).
				Str("chosen_model", artifact.ChosenModel).
				Int("horizon", artifact.Horizon).
				Msg("forecast artifact generated")
			return artifact, nil
		}
		if failed == "" {
			p.log.Error().Str("stage", string(StageFailed)).Err(err).Msg("forecast generation failed")
			return nil, &Error{Stage: StageForecasting, Diagnostics: diags, Err: err}
		}

		p.log.Warn().
			Str("stage", string(StageRetraining)).
			Str("model", failed).
			Err(err).
			Msg("excluding candidate after retraining failure")

		for i := range diags {
			if diags[i].Model == failed {
				diags[i].Error = fmt.Sprintf("retraining: %v", err)
			}
		}
		next := viable[:0:0]
		for _, res := range viable {
			if res.Model != failed {
				next = append(next, res)
			}
		}
		viable = next
	}
}

// validateCandidates cross-validates every candidate on a bounded worker
// pool. The returned results preserve candidate order and contain only the
// candidates whose validation produced at least one surviving fold.
func (p *Pipeline) validateCandidates(ctx context.Context, w *timeseries.Window) ([]CandidateDiagnostic, []*crossval.Result) {
	cvOpt := &crossval.Options{
		Folds:           p.opt.FoldCount,
		TestLength:      p.opt.FoldTestLength,
		Timeout:         p.opt.ModelTimeout,
		Parallelization: 1,
	}

	diags := make([]CandidateDiagnostic, len(p.opt.Candidates))
	results := make([]*crossval.Result, len(p.opt.Candidates))

	sem := make(chan struct{}, p.opt.Workers)
	var wg sync.WaitGroup
	for i, variant := range p.opt.Candidates {
		sem <- struct{}{}
		wg.Add(1)

		go func(i int, variant models.Variant) {
			defer func() {
				wg.Done()
				<-sem
			}()

			factory := func() forecast.Model {
				// candidates are checked against the variant set during
				// option validation
				m, _ := models.New(variant, p.opt.ModelOptions)
				return m
			}

			res, err := crossval.Run(ctx, w, factory, cvOpt)
			diags[i] = CandidateDiagnostic{Model: string(variant), Result: res}
			if err != nil {
				diags[i].Error = err.Error()
				p.log.Warn().
					Str("stage", string(StageValidating)).
					Str("model", string(variant)).
					Err(err).
					Msg("candidate excluded")
				return
			}
			results[i] = res
			p.log.Debug().
				Str("stage", string(StageValidating)).
				Str("model", string(variant)).
				Float64("mape", res.Scores.MAPE).
				Float64("rmse", res.Scores.RMSE).
				Int("folds", len(res.Folds)).
				Msg("candidate validated")
		}(i, variant)
	}
	wg.Wait()

	viable := make([]*crossval.Result, 0, len(results))
	for _, res := range results {
		if res != nil {
			viable = append(viable, res)
		}
	}
	return diags, viable
}

// forecastSelection refits every selected model on the full window and
// produces the final horizon forecast. Retraining deliberately uses the
// entire history rather than the shorter training prefixes used during
// validation. On failure it reports which model to exclude.
func (p *Pipeline) forecastSelection(ctx context.Context, w *timeseries.Window, sel *ensemble.Selection, viable []*crossval.Result) (*Artifact, string, error) {
	futureT := w.FutureTimes(p.opt.Horizon)
	futureReg, err := timeseries.DeriveRegressors(futureT, p.opt.Regressors)
	if err != nil {
		return nil, "", err
	}

	names := make([]string, 0, len(sel.Weights))
	for name, weight := range sel.Weights {
		if weight > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	pointsByModel := make(map[string][]forecast.Point, len(names))
	for _, name := range names {
		model, err := models.New(models.Variant(name), p.opt.ModelOptions)
		if err != nil {
			return nil, name, err
		}
		points, err := p.refitAndForecast(ctx, model, w, futureT, futureReg)
		if err != nil {
			return nil, name, err
		}
		pointsByModel[name] = points
	}

	points := pointsByModel[names[0]]
	if len(names) > 1 {
		points, err = ensemble.Combine(pointsByModel, sel.Weights, p.opt.ConfidenceLevel)
		if err != nil {
			return nil, "", err
		}
	}

	artifact := &Artifact{
		GeneratedAt:     time.Now().UTC(),
		Horizon:         p.opt.Horizon,
		ConfidenceLevel: p.opt.ConfidenceLevel,
		Policy:          sel.Policy,
		ChosenModel:     sel.ChosenModel,
		Weights:         sel.Weights,
		Points:          points,
		Scores:          weightedScores(viable, sel.Weights),
	}
	return artifact, "", nil
}

// refitAndForecast fits the model on the full window and forecasts the
// horizon, bounded by the per-model timeout.
func (p *Pipeline) refitAndForecast(ctx context.Context, model forecast.Model, w *timeseries.Window, t []time.Time, reg map[string][]float64) ([]forecast.Point, error) {
	if p.opt.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opt.ModelTimeout)
		defer cancel()
	}

	type out struct {
		points []forecast.Point
		err    error
	}

	done := make(chan out, 1)
	go func() {
		if err := model.Fit(w); err != nil {
			done <- out{err: err}
			return
		}
		points, err := model.Predict(t, reg)
		done <- out{points: points, err: err}
	}()

	select {
	case res := <-done:
		return res.points, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// weightedScores averages candidate cross-validation scores by their final
// ensemble weight.
func weightedScores(viable []*crossval.Result, weights map[string]float64) forecast.Scores {
	var scores forecast.Scores
	for _, res := range viable {
		w, exists := weights[res.Model]
		if !exists {
			continue
		}
		scores.MAE += w * res.Scores.MAE
		scores.RMSE += w * res.Scores.RMSE
		scores.MAPE += w * res.Scores.MAPE
	}
	return scores
}
