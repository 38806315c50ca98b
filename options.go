package predictor

import (
	"errors"
	"time"

	"github.com/avoskamp/go-predictor/ensemble"
	"github.com/avoskamp/go-predictor/forecast"
	"github.com/avoskamp/go-predictor/forecast/models"
	"github.com/avoskamp/go-predictor/timeseries"
	"github.com/rs/zerolog"
)

var (
	ErrNoCandidates   = errors.New("no candidate models configured")
	ErrInvalidHorizon = errors.New("forecast horizon must be at least 1")
	ErrInvalidWorkers = errors.New("worker pool size must be at least 1")
)

// Options configures a prediction pipeline run. All knobs are explicit so
// concurrent pipelines for different series never share mutable state.
type Options struct {
	// Candidates is the set of model variants to cross-validate. Order
	// doubles as the declared priority used to break selection ties.
	Candidates []models.Variant `json:"candidates"`

	FoldCount      int `json:"fold_count"`
	FoldTestLength int `json:"fold_test_length"`
	Horizon        int `json:"forecast_horizon"`

	ConfidenceLevel float64         `json:"confidence_level"`
	EnsemblePolicy  ensemble.Policy `json:"ensemble_policy"`

	// Workers bounds how many candidates validate concurrently.
	Workers int `json:"worker_pool_size"`

	// ModelTimeout bounds every individual fit/predict cycle. A candidate
	// exceeding it is excluded, never aborting the pipeline.
	ModelTimeout time.Duration `json:"per_model_timeout"`

	// Seed drives any randomized model initialization.
	Seed uint64 `json:"random_seed"`

	// Regressors are calendar derived covariates computed for both the
	// historical window and the forecast horizon.
	Regressors []timeseries.RegressorSpec `json:"regressors,omitempty"`

	// ModelOptions carries per-variant tuning knobs.
	ModelOptions *models.Options `json:"model_options,omitempty"`

	// Logger receives per-stage structured events. Defaults to a no-op
	// logger.
	Logger *zerolog.Logger `json:"-"`
}

// NewDefaultOptions returns a default set of pipeline options.
func NewDefaultOptions() *Options {
	return &Options{
		Candidates:      models.Variants(),
		FoldCount:       3,
		FoldTestLength:  5,
		Horizon:         10,
		ConfidenceLevel: forecast.DefaultConfidenceLevel,
		EnsemblePolicy:  ensemble.PolicyBestOf,
		Workers:         1,
	}
}

// Validate runs basic validation on pipeline options, filling in defaults
// where a zero value has an unambiguous meaning.
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if len(o.Candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if o.Horizon < 1 {
		return nil, ErrInvalidHorizon
	}
	if o.Workers < 0 {
		return nil, ErrInvalidWorkers
	}
	if o.Workers == 0 {
		o.Workers = 1
	}
	if o.FoldCount == 0 {
		o.FoldCount = 3
	}
	if o.FoldTestLength == 0 {
		o.FoldTestLength = 5
	}
	if o.ConfidenceLevel <= 0 || o.ConfidenceLevel >= 1 {
		o.ConfidenceLevel = forecast.DefaultConfidenceLevel
	}
	if o.EnsemblePolicy == "" {
		o.EnsemblePolicy = ensemble.PolicyBestOf
	}

	mopt, err := o.ModelOptions.Validate()
	if err != nil {
		return nil, err
	}
	mopt.ConfidenceLevel = o.ConfidenceLevel
	mopt.Seed = o.Seed
	o.ModelOptions = mopt

	for _, variant := range o.Candidates {
		if _, err := models.New(variant, mopt); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// priority returns candidate names in their declared order.
func (o *Options) priority() []string {
	names := make([]string, 0, len(o.Candidates))
	for _, variant := range o.Candidates {
		names = append(names, string(variant))
	}
	return names
}
