package models

import (
	"fmt"
	"math"
	"time"

	"github.com/avoskamp/go-predictor/forecast"
	"github.com/avoskamp/go-predictor/timeseries"
	"gonum.org/v1/gonum/stat"
)

// HoltWintersOptions configures the additive triple exponential smoothing
// model. A Period of 0 infers the seasonal period from the window sampling
// frequency at fit time.
type HoltWintersOptions struct {
	Alpha  float64 `json:"alpha"`
	Beta   float64 `json:"beta"`
	Gamma  float64 `json:"gamma"`
	Period int     `json:"period"`

	MinTrain int `json:"min_train"`
}

// NewDefaultHoltWintersOptions returns a default set of Holt-Winters options.
func NewDefaultHoltWintersOptions() *HoltWintersOptions {
	return &HoltWintersOptions{
		Alpha:    0.3,
		Beta:     0.1,
		Gamma:    0.1,
		MinTrain: 10,
	}
}

// HoltWinters decomposes a series into level, trend, and additive seasonal
// components via triple exponential smoothing. When the training window holds
// fewer than two full seasonal periods the seasonal component is dropped and
// the model degrades to double exponential smoothing.
type HoltWinters struct {
	opt        *HoltWintersOptions
	confidence float64

	level    float64
	trend    float64
	seasonal []float64
	phase    int
	residStd float64
	trained  bool
}

// NewHoltWinters creates an untrained Holt-Winters model.
func NewHoltWinters(opt *HoltWintersOptions, confidence float64) *HoltWinters {
	if opt == nil {
		opt = NewDefaultHoltWintersOptions()
	}
	return &HoltWinters{
		opt:        opt,
		confidence: confidence,
	}
}

func (h *HoltWinters) Name() string {
	return string(VariantHoltWinters)
}

func (h *HoltWinters) MinTrainSize() int {
	if h.opt.MinTrain < 2 {
		return 2
	}
	return h.opt.MinTrain
}

func (h *HoltWinters) MaxHorizon() int {
	return 0
}

// inferPeriod maps common sampling frequencies to their natural seasonal
// cycle in steps. Unrecognized frequencies disable the seasonal component.
func inferPeriod(freq time.Duration) int {
	switch freq {
	case time.Minute:
		return 60
	case time.Hour:
		return 24
	case 24 * time.Hour:
		return 7
	default:
		return 0
	}
}

// Fit runs the smoothing recursion over the window and stores the final
// level, trend, and per-step seasonal factors.
func (h *HoltWinters) Fit(w *timeseries.Window) error {
	n := w.Len()
	if n < h.MinTrainSize() {
		return fmt.Errorf(
			"holt-winters requires %d observations, got %d, %w",
			h.MinTrainSize(), n, forecast.ErrInsufficientTrainingData,
		)
	}

	alpha, beta, gamma := h.opt.Alpha, h.opt.Beta, h.opt.Gamma
	period := h.opt.Period
	if period == 0 {
		period = inferPeriod(w.Freq)
	}
	if period > 0 && n < 2*period {
		period = 0
	}

	y := w.Y
	fitted := make([]float64, n)

	var level, trend float64
	var seasonal []float64

	if period > 0 {
		// level seeded with the first season mean, trend with the mean
		// first difference across one season
		sum := 0.0
		for i := 0; i < period; i++ {
			sum += y[i]
		}
		level = sum / float64(period)
		trend = (y[period] - y[0]) / float64(period)

		seasonal = make([]float64, period)
		for i := 0; i < period; i++ {
			seasonal[i] = y[i] - level
		}

		for i := 0; i < n; i++ {
			sIdx := i % period
			fitted[i] = level + trend + seasonal[sIdx]

			prevLevel := level
			level = alpha*(y[i]-seasonal[sIdx]) + (1-alpha)*(level+trend)
			trend = beta*(level-prevLevel) + (1-beta)*trend
			seasonal[sIdx] = gamma*(y[i]-level) + (1-gamma)*seasonal[sIdx]
		}
	} else {
		level = y[0]
		trend = y[1] - y[0]
		for i := 0; i < n; i++ {
			fitted[i] = level + trend

			prevLevel := level
			level = alpha*y[i] + (1-alpha)*(level+trend)
			trend = beta*(level-prevLevel) + (1-beta)*trend
		}
	}

	if math.IsNaN(level) || math.IsInf(level, 0) || math.IsNaN(trend) || math.IsInf(trend, 0) {
		return fmt.Errorf("smoothing recursion diverged, %w", forecast.ErrNoConvergence)
	}

	residual := make([]float64, n)
	for i := 0; i < n; i++ {
		residual[i] = y[i] - fitted[i]
	}
	h.residStd = stat.StdDev(residual, nil)
	if math.IsNaN(h.residStd) {
		h.residStd = 0
	}

	h.level = level
	h.trend = trend
	h.seasonal = seasonal
	if period > 0 {
		h.phase = n % period
	}
	h.trained = true
	return nil
}

// Predict extrapolates level and trend with the stored seasonal factors. The
// interval width grows with the forecast step since smoothing errors
// accumulate over the horizon.
func (h *HoltWinters) Predict(t []time.Time, _ map[string][]float64) ([]forecast.Point, error) {
	if !h.trained {
		return nil, forecast.ErrUntrainedModel
	}
	if len(t) == 0 {
		return nil, forecast.ErrNoPredictionTimes
	}

	z := forecast.ConfidenceZ(h.confidence)
	points := make([]forecast.Point, 0, len(t))
	for i := 0; i < len(t); i++ {
		val := h.level + float64(i+1)*h.trend
		if len(h.seasonal) > 0 {
			val += h.seasonal[(h.phase+i)%len(h.seasonal)]
		}
		margin := z * h.residStd * math.Sqrt(float64(i+1))
		points = append(points, forecast.Point{
			T:     t[i],
			Value: val,
			Lower: val - margin,
			Upper: val + margin,
		})
	}
	return points, nil
}
