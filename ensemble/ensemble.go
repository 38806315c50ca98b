// Package ensemble chooses among cross-validated candidate models, either
// picking the single best performer or blending candidates into a weighted
// ensemble. MAPE is the primary metric, RMSE the tie breaker, and the
// declared candidate priority order the final tie breaker.
package ensemble

import (
	"errors"
	"fmt"
	"math"

	"github.com/avoskamp/go-predictor/crossval"
	"github.com/avoskamp/go-predictor/forecast"
)

var (
	ErrNoViableModel    = errors.New("no viable candidate model")
	ErrUnknownPolicy    = errors.New("unknown ensemble policy")
	ErrNoForecasts      = errors.New("no forecasts to combine")
	ErrForecastMismatch = errors.New("candidate forecasts have different lengths")
)

// Policy selects how validated candidates become a production model.
type Policy string

const (
	// PolicyBestOf picks the single candidate with the lowest primary metric.
	PolicyBestOf Policy = "best_of"
	// PolicyWeighted blends candidates weighted inversely to their primary
	// metric.
	PolicyWeighted Policy = "weighted"
)

// metricFloor guards the inverse metric weighting against division by zero
// for a candidate with a perfect validation score.
const metricFloor = 1e-9

// Selection is the outcome of selecting over cross-validation results. Under
// the best-of policy Weights holds a single entry of weight 1.
type Selection struct {
	Policy      Policy             `json:"policy"`
	ChosenModel string             `json:"chosen_model"`
	Weights     map[string]float64 `json:"weights"`
}

// Select applies the policy to the surviving cross-validation results.
// Candidates whose validation failed entirely must not appear in results;
// an empty results slice yields ErrNoViableModel. The priority list breaks
// exact metric ties deterministically.
func Select(results []*crossval.Result, policy Policy, priority []string) (*Selection, error) {
	viable := make([]*crossval.Result, 0, len(results))
	for _, res := range results {
		if res == nil || len(res.Folds) == 0 {
			continue
		}
		viable = append(viable, res)
	}
	if len(viable) == 0 {
		return nil, ErrNoViableModel
	}

	switch policy {
	case PolicyBestOf:
		best := viable[0]
		for _, res := range viable[1:] {
			if better(res, best, priority) {
				best = res
			}
		}
		return &Selection{
			Policy:      PolicyBestOf,
			ChosenModel: best.Model,
			Weights:     map[string]float64{best.Model: 1.0},
		}, nil

	case PolicyWeighted:
		weights := make(map[string]float64, len(viable))
		total := 0.0
		for _, res := range viable {
			w := 1.0 / math.Max(res.Scores.MAPE, metricFloor)
			weights[res.Model] = w
			total += w
		}
		if total == 0 {
			return nil, ErrNoViableModel
		}
		for name := range weights {
			weights[name] /= total
		}
		return &Selection{
			Policy:  PolicyWeighted,
			Weights: weights,
		}, nil

	default:
		return nil, fmt.Errorf("%q, %w", policy, ErrUnknownPolicy)
	}
}

// better reports whether a should be preferred over b: lowest MAPE, ties
// broken by lowest RMSE, remaining ties broken by priority order.
func better(a, b *crossval.Result, priority []string) bool {
	if a.Scores.MAPE != b.Scores.MAPE {
		return a.Scores.MAPE < b.Scores.MAPE
	}
	if a.Scores.RMSE != b.Scores.RMSE {
		return a.Scores.RMSE < b.Scores.RMSE
	}
	return priorityIndex(a.Model, priority) < priorityIndex(b.Model, priority)
}

func priorityIndex(name string, priority []string) int {
	for i, p := range priority {
		if p == name {
			return i
		}
	}
	return len(priority)
}

// Combine blends per-model forecasts into a single forecast using the
// selection weights. Points are averaged by weight. Bounds are combined by
// recovering each candidate's variance from its interval half-width at the
// given confidence level, averaging variances by weight, and converting back
// to an interval at the same confidence level.
func Combine(pointsByModel map[string][]forecast.Point, weights map[string]float64, confidence float64) ([]forecast.Point, error) {
	if len(pointsByModel) == 0 {
		return nil, ErrNoForecasts
	}

	var horizon int
	for name, points := range pointsByModel {
		if _, exists := weights[name]; !exists {
			return nil, fmt.Errorf("model %q has no weight, %w", name, ErrNoViableModel)
		}
		if len(points) == 0 {
			return nil, fmt.Errorf("model %q has an empty forecast, %w", name, ErrForecastMismatch)
		}
		if horizon == 0 {
			horizon = len(points)
			continue
		}
		if len(points) != horizon {
			return nil, ErrForecastMismatch
		}
	}

	z := forecast.ConfidenceZ(confidence)
	combined := make([]forecast.Point, horizon)
	for i := 0; i < horizon; i++ {
		var val, variance float64
		for name, points := range pointsByModel {
			w := weights[name]
			p := points[i]
			val += w * p.Value

			sigma := (p.Upper - p.Lower) / (2 * z)
			variance += w * sigma * sigma

			combined[i].T = p.T
		}
		margin := z * math.Sqrt(variance)
		combined[i].Value = val
		combined[i].Lower = val - margin
		combined[i].Upper = val + margin
	}
	return combined, nil
}
