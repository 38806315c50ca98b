package timeseries

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
)

var ErrUnknownRegressorKind = errors.New("unknown regressor kind")

// Regressor kinds derivable from timestamps alone. Calendar driven regressors
// can be computed for future timestamps, which makes them usable as covariates
// at prediction time without an external data feed.
const (
	RegressorWeekend   = "weekend"
	RegressorUSHoliday = "us_holiday"
)

// RegressorSpec describes an exogenous regressor derived from the time index.
type RegressorSpec struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// DeriveRegressors computes indicator series for the given timestamps, one per
// spec. Weekend indicators flag Saturday and Sunday. Holiday indicators flag
// observed US holidays using the rickar/cal business calendar.
func DeriveRegressors(t []time.Time, specs []RegressorSpec) (map[string][]float64, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	out := make(map[string][]float64, len(specs))
	for _, spec := range specs {
		switch spec.Kind {
		case RegressorWeekend:
			out[spec.Name] = weekendIndicator(t)
		case RegressorUSHoliday:
			out[spec.Name] = holidayIndicator(t)
		default:
			return nil, fmt.Errorf("%q, %w", spec.Kind, ErrUnknownRegressorKind)
		}
	}
	return out, nil
}

// WithDerivedRegressors returns a copy of the window with indicator regressors
// derived from its own time index.
func (w *Window) WithDerivedRegressors(specs ...RegressorSpec) (*Window, error) {
	derived, err := DeriveRegressors(w.T, specs)
	if err != nil {
		return nil, err
	}

	next := w
	for name, vals := range derived {
		next, err = next.WithRegressor(name, vals)
		if err != nil {
			return nil, err
		}
	}
	return next, nil
}

func weekendIndicator(t []time.Time) []float64 {
	y := make([]float64, len(t))
	for i := 0; i < len(t); i++ {
		switch t[i].Weekday() {
		case time.Saturday, time.Sunday:
			y[i] = 1.0
		}
	}
	return y
}

func holidayIndicator(t []time.Time) []float64 {
	c := cal.NewBusinessCalendar()
	c.AddHoliday(us.Holidays...)

	y := make([]float64, len(t))
	for i := 0; i < len(t); i++ {
		actual, observed, _ := c.IsHoliday(t[i])
		if actual || observed {
			y[i] = 1.0
		}
	}
	return y
}
