// Package models contains the concrete forecasting model variants selectable
// by the prediction pipeline: Holt-Winters exponential smoothing, seasonal
// linear regression, and a recurrent sequence model.
package models

import (
	"errors"
	"fmt"

	"github.com/avoskamp/go-predictor/forecast"
)

var ErrUnknownVariant = errors.New("unknown model variant")

// Variant names the closed set of forecasting model implementations.
type Variant string

const (
	VariantHoltWinters        Variant = "holt_winters"
	VariantSeasonalRegression Variant = "seasonal_regression"
	VariantRecurrent          Variant = "recurrent"
)

// Variants returns all known variants in the declared priority order used to
// break selection ties.
func Variants() []Variant {
	return []Variant{
		VariantSeasonalRegression,
		VariantHoltWinters,
		VariantRecurrent,
	}
}

// Options configures model construction. ConfidenceLevel applies to every
// variant. Seed is threaded to any variant with randomized initialization so
// repeated runs stay reproducible; there is no ambient random state.
type Options struct {
	ConfidenceLevel float64 `json:"confidence_level"`
	Seed            uint64  `json:"seed"`

	HoltWinters *HoltWintersOptions `json:"holt_winters,omitempty"`
	Seasonal    *SeasonalOptions    `json:"seasonal,omitempty"`
	Recurrent   *RecurrentOptions   `json:"recurrent,omitempty"`
}

// NewDefaultOptions returns a default set of model construction options.
func NewDefaultOptions() *Options {
	return &Options{
		ConfidenceLevel: forecast.DefaultConfidenceLevel,
		HoltWinters:     NewDefaultHoltWintersOptions(),
		Seasonal:        NewDefaultSeasonalOptions(),
		Recurrent:       NewDefaultRecurrentOptions(),
	}
}

// Validate fills in defaults for any unset option group.
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if o.ConfidenceLevel <= 0 || o.ConfidenceLevel >= 1 {
		o.ConfidenceLevel = forecast.DefaultConfidenceLevel
	}
	if o.HoltWinters == nil {
		o.HoltWinters = NewDefaultHoltWintersOptions()
	}
	if o.Seasonal == nil {
		o.Seasonal = NewDefaultSeasonalOptions()
	}
	if o.Recurrent == nil {
		o.Recurrent = NewDefaultRecurrentOptions()
	}
	return o, nil
}

// New constructs an untrained model of the requested variant.
func New(variant Variant, opt *Options) (forecast.Model, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}

	switch variant {
	case VariantHoltWinters:
		return NewHoltWinters(opt.HoltWinters, opt.ConfidenceLevel), nil
	case VariantSeasonalRegression:
		return NewSeasonalRegression(opt.Seasonal, opt.ConfidenceLevel), nil
	case VariantRecurrent:
		return NewRecurrent(opt.Recurrent, opt.ConfidenceLevel, opt.Seed), nil
	default:
		return nil, fmt.Errorf("%q, %w", variant, ErrUnknownVariant)
	}
}
