// Package timeseries provides the immutable time series window consumed by the
// prediction pipeline. A window stores a regularly sampled univariate series
// along with optional aligned exogenous regressors.
package timeseries

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoData               = errors.New("no observations")
	ErrLenMismatch          = errors.New("time feature has a different length than observations")
	ErrNonMonotonic         = errors.New("time feature is not strictly increasing")
	ErrNoFrequency          = errors.New("sampling frequency must be a positive duration")
	ErrIrregularSampling    = errors.New("observation spacing does not match the declared frequency")
	ErrEmptyRange           = errors.New("slice range contains no observations")
	ErrInsufficientData     = errors.New("insufficient observations for requested split")
	ErrRegressorLenMismatch = errors.New("regressor has a different length than observations")
	ErrRegressorExists      = errors.New("regressor already registered")
)

// Window represents a contiguous, regularly sampled slice of a time series.
// The time slice and value slice always have the same length and every
// registered regressor is aligned index for index with the time slice.
// Windows are never mutated in place; slicing and splitting return copies.
type Window struct {
	T    []time.Time
	Y    []float64
	Freq time.Duration

	Regressors map[string][]float64
}

// New returns a validated Window from a time slice, value slice, and declared
// sampling frequency. Timestamps must be strictly increasing and spaced
// exactly freq apart. A gap in the series is rejected rather than silently
// skipped since downstream models assume regular sampling.
func New(t []time.Time, y []float64, freq time.Duration) (*Window, error) {
	if len(y) == 0 {
		return nil, ErrNoData
	}
	if len(t) != len(y) {
		return nil, fmt.Errorf(
			"time feature has length of %d, but values has a length of %d, %w",
			len(t), len(y), ErrLenMismatch,
		)
	}
	if freq <= 0 {
		return nil, ErrNoFrequency
	}

	for i := 1; i < len(t); i++ {
		if !t[i].After(t[i-1]) {
			return nil, fmt.Errorf("non-monotonic at %d, %w", i, ErrNonMonotonic)
		}
		if t[i].Sub(t[i-1]) != freq {
			return nil, fmt.Errorf(
				"gap of %s between index %d and %d with declared frequency %s, %w",
				t[i].Sub(t[i-1]), i-1, i, freq, ErrIrregularSampling,
			)
		}
	}

	tSeries := make([]time.Time, len(t))
	ySeries := make([]float64, len(y))
	copy(tSeries, t)
	copy(ySeries, y)

	return &Window{
		T:    tSeries,
		Y:    ySeries,
		Freq: freq,
	}, nil
}

// WithRegressor returns a copy of the window with the named regressor
// registered. The regressor must have the same length as the window.
func (w *Window) WithRegressor(name string, vals []float64) (*Window, error) {
	if len(vals) != len(w.T) {
		return nil, fmt.Errorf(
			"regressor %q has length of %d, but window has a length of %d, %w",
			name, len(vals), len(w.T), ErrRegressorLenMismatch,
		)
	}
	if _, exists := w.Regressors[name]; exists {
		return nil, fmt.Errorf("%q, %w", name, ErrRegressorExists)
	}

	next := w.Copy()
	if next.Regressors == nil {
		next.Regressors = make(map[string][]float64)
	}
	series := make([]float64, len(vals))
	copy(series, vals)
	next.Regressors[name] = series
	return next, nil
}

// Len returns the number of observations in the window.
func (w *Window) Len() int {
	if w == nil {
		return 0
	}
	return len(w.T)
}

// StartTime returns the timestamp of the first observation.
func (w *Window) StartTime() time.Time {
	return w.T[0]
}

// EndTime returns the timestamp of the last observation.
func (w *Window) EndTime() time.Time {
	return w.T[len(w.T)-1]
}

// Copy returns a deep copy of the window.
func (w *Window) Copy() *Window {
	if w == nil {
		return nil
	}
	return w.subWindow(0, len(w.T))
}

// subWindow copies observations and regressors over the index range [i, j).
func (w *Window) subWindow(i, j int) *Window {
	tSeries := make([]time.Time, j-i)
	ySeries := make([]float64, j-i)
	copy(tSeries, w.T[i:j])
	copy(ySeries, w.Y[i:j])

	next := &Window{
		T:    tSeries,
		Y:    ySeries,
		Freq: w.Freq,
	}
	if len(w.Regressors) > 0 {
		next.Regressors = make(map[string][]float64, len(w.Regressors))
		for name, vals := range w.Regressors {
			series := make([]float64, j-i)
			copy(series, vals[i:j])
			next.Regressors[name] = series
		}
	}
	return next
}

// Slice returns a new window restricted to observations with
// start <= t < end. Fails if the range yields no observations.
func (w *Window) Slice(start, end time.Time) (*Window, error) {
	i := 0
	for i < len(w.T) && w.T[i].Before(start) {
		i++
	}
	j := i
	for j < len(w.T) && w.T[j].Before(end) {
		j++
	}
	if j <= i {
		return nil, fmt.Errorf("range [%s, %s), %w", start, end, ErrEmptyRange)
	}
	return w.subWindow(i, j), nil
}

// SplitTrainTest partitions the window into a training prefix and a test
// suffix with exactly testLen trailing observations. The training window
// always precedes the test window chronologically with no overlap.
func (w *Window) SplitTrainTest(testLen int) (*Window, *Window, error) {
	if testLen <= 0 || testLen >= len(w.T) {
		return nil, nil, fmt.Errorf(
			"cannot take %d test points from %d observations, %w",
			testLen, len(w.T), ErrInsufficientData,
		)
	}
	cut := len(w.T) - testLen
	return w.subWindow(0, cut), w.subWindow(cut, len(w.T)), nil
}

// FutureTimes returns the next h timestamps following the window at its
// sampling frequency.
func (w *Window) FutureTimes(h int) []time.Time {
	last := w.EndTime()
	t := make([]time.Time, 0, h)
	for i := 1; i <= h; i++ {
		t = append(t, last.Add(time.Duration(i)*w.Freq))
	}
	return t
}

// RegressorSlice returns a copy of every registered regressor restricted to
// the index range [i, j). Returns nil if the window has no regressors.
func (w *Window) RegressorSlice(i, j int) map[string][]float64 {
	if len(w.Regressors) == 0 {
		return nil
	}
	out := make(map[string][]float64, len(w.Regressors))
	for name, vals := range w.Regressors {
		series := make([]float64, j-i)
		copy(series, vals[i:j])
		out[name] = series
	}
	return out
}
