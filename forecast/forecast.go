// Package forecast defines the model contract shared by every forecasting
// variant in the pipeline along with the forecast point and score types.
package forecast

import (
	"errors"
	"time"

	"github.com/avoskamp/go-predictor/timeseries"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrUntrainedModel           = errors.New("model has not been trained yet")
	ErrInsufficientTrainingData = errors.New("insufficient training data for model")
	ErrNoConvergence            = errors.New("model fit did not converge")
	ErrHorizonExceeded          = errors.New("requested horizon exceeds model maximum")
	ErrMissingRegressors        = errors.New("required future regressors missing or misaligned")
	ErrNoPredictionTimes        = errors.New("no prediction times requested")
)

// DefaultConfidenceLevel is the two-sided confidence level used for forecast
// bounds when none is configured.
const DefaultConfidenceLevel = 0.95

// Point is a single forecasted value with its confidence bounds.
type Point struct {
	T     time.Time `json:"time"`
	Value float64   `json:"value"`
	Lower float64   `json:"lower"`
	Upper float64   `json:"upper"`
}

// Model is the capability contract every forecasting variant implements.
// A model is created untrained, trained against exactly one window, and may
// then be queried any number of times. Predict must be deterministic and
// side effect free after a single Fit.
type Model interface {
	// Name identifies the model variant for selection and diagnostics.
	Name() string

	// MinTrainSize is the smallest window length the model can be fit on.
	MinTrainSize() int

	// MaxHorizon is the longest horizon the model can forecast, 0 meaning
	// unbounded.
	MaxHorizon() int

	// Fit trains the model on the window, consuming any registered
	// regressors the variant supports.
	Fit(w *timeseries.Window) error

	// Predict forecasts one point per requested time. Future regressor
	// values must be supplied for every regressor the model was fit with,
	// aligned index for index with t.
	Predict(t []time.Time, reg map[string][]float64) ([]Point, error)
}

// ConfidenceZ returns the two-sided standard normal quantile for the given
// confidence level, falling back to the default level for out of range input.
func ConfidenceZ(level float64) float64 {
	if level <= 0 || level >= 1 {
		level = DefaultConfidenceLevel
	}
	return distuv.UnitNormal.Quantile(0.5 + level/2)
}

// Values extracts the point forecast values from a slice of points.
func Values(points []Point) []float64 {
	vals := make([]float64, 0, len(points))
	for _, p := range points {
		vals = append(vals, p.Value)
	}
	return vals
}
