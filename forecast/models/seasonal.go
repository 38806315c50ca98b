package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/avoskamp/go-predictor/forecast"
	"github.com/avoskamp/go-predictor/timeseries"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	secondsPerDay  = 86400.0
	secondsPerWeek = 604800.0
)

// SeasonalOptions configures the seasonal regression model. Daily and weekly
// orders set how many Fourier harmonics model each seasonal cycle.
type SeasonalOptions struct {
	DailyOrders  int  `json:"daily_orders"`
	WeeklyOrders int  `json:"weekly_orders"`
	Trend        bool `json:"trend"`

	MinTrain int `json:"min_train"`
}

// NewDefaultSeasonalOptions returns a default set of seasonal regression
// options.
func NewDefaultSeasonalOptions() *SeasonalOptions {
	return &SeasonalOptions{
		DailyOrders:  3,
		WeeklyOrders: 3,
		Trend:        true,
		MinTrain:     20,
	}
}

// SeasonalRegression fits a linear model over an intercept, an optional
// linear trend, Fourier seasonal harmonics, and any regressors registered on
// the training window. Coefficients are solved by QR least squares. Models
// fit with window regressors require future regressor values at predict time.
type SeasonalRegression struct {
	opt        *SeasonalOptions
	confidence float64

	coef       []float64
	regNames   []string
	trainStart time.Time
	trainEnd   time.Time
	keepCols   []bool
	residStd   float64
	trained    bool
}

// NewSeasonalRegression creates an untrained seasonal regression model.
func NewSeasonalRegression(opt *SeasonalOptions, confidence float64) *SeasonalRegression {
	if opt == nil {
		opt = NewDefaultSeasonalOptions()
	}
	return &SeasonalRegression{
		opt:        opt,
		confidence: confidence,
	}
}

func (s *SeasonalRegression) Name() string {
	return string(VariantSeasonalRegression)
}

func (s *SeasonalRegression) MinTrainSize() int {
	min := s.opt.MinTrain
	// at least a couple of observations per coefficient
	nFeat := 2 + 2*(s.opt.DailyOrders+s.opt.WeeklyOrders)
	if min < 2*nFeat {
		min = 2 * nFeat
	}
	return min
}

func (s *SeasonalRegression) MaxHorizon() int {
	return 0
}

// featureRow generates the design row for a single timestamp. The trend
// feature is scaled to the training span so extrapolation stays numerically
// tame on long horizons.
func (s *SeasonalRegression) featureRow(t time.Time, reg map[string][]float64, i int) []float64 {
	row := make([]float64, 0, 2+2*(s.opt.DailyOrders+s.opt.WeeklyOrders)+len(s.regNames))
	row = append(row, 1.0)

	if s.opt.Trend {
		span := s.trainEnd.Sub(s.trainStart).Seconds()
		if span <= 0 {
			span = 1
		}
		row = append(row, t.Sub(s.trainStart).Seconds()/span)
	}

	epoch := float64(t.Unix())
	for order := 1; order <= s.opt.DailyOrders; order++ {
		rad := 2.0 * math.Pi * float64(order) * epoch / secondsPerDay
		row = append(row, math.Sin(rad), math.Cos(rad))
	}
	for order := 1; order <= s.opt.WeeklyOrders; order++ {
		rad := 2.0 * math.Pi * float64(order) * epoch / secondsPerWeek
		row = append(row, math.Sin(rad), math.Cos(rad))
	}

	for _, name := range s.regNames {
		row = append(row, reg[name][i])
	}
	return row
}

// Fit builds the design matrix over the training window and solves for the
// coefficients with QR factorization. Zero variance columns are dropped
// before solving to keep the factorization well conditioned.
func (s *SeasonalRegression) Fit(w *timeseries.Window) error {
	n := w.Len()
	if n < s.MinTrainSize() {
		return fmt.Errorf(
			"seasonal regression requires %d observations, got %d, %w",
			s.MinTrainSize(), n, forecast.ErrInsufficientTrainingData,
		)
	}

	s.trainStart = w.StartTime()
	s.trainEnd = w.EndTime()

	s.regNames = make([]string, 0, len(w.Regressors))
	for name := range w.Regressors {
		s.regNames = append(s.regNames, name)
	}
	sort.Strings(s.regNames)

	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = s.featureRow(w.T[i], w.Regressors, i)
	}

	nFeat := len(rows[0])
	// window regressors widen the design matrix beyond what MinTrainSize
	// could account for, so re-check the floor against the full row
	if n < 2*nFeat {
		return fmt.Errorf(
			"seasonal regression with %d regressors requires %d observations, got %d, %w",
			len(s.regNames), 2*nFeat, n, forecast.ErrInsufficientTrainingData,
		)
	}
	s.keepCols = usableColumns(rows, nFeat)

	kept := 0
	for _, keep := range s.keepCols {
		if keep {
			kept++
		}
	}

	x := mat.NewDense(n, kept, nil)
	for i := 0; i < n; i++ {
		c := 0
		for j := 0; j < nFeat; j++ {
			if !s.keepCols[j] {
				continue
			}
			x.Set(i, c, rows[i][j])
			c++
		}
	}
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		y.Set(i, 0, w.Y[i])
	}

	var qr mat.QR
	qr.Factorize(x)

	var coefMx mat.Dense
	if err := qr.SolveTo(&coefMx, false, y); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("least squares solve failed, %w", forecast.ErrNoConvergence)
		}
	}

	coef := make([]float64, kept)
	for i := 0; i < kept; i++ {
		coef[i] = coefMx.At(i, 0)
		if math.IsNaN(coef[i]) || math.IsInf(coef[i], 0) {
			return fmt.Errorf("non-finite coefficient at %d, %w", i, forecast.ErrNoConvergence)
		}
	}
	s.coef = coef

	residual := make([]float64, n)
	for i := 0; i < n; i++ {
		residual[i] = w.Y[i] - s.inferRow(rows[i])
	}
	s.residStd = stat.StdDev(residual, nil)
	if math.IsNaN(s.residStd) {
		s.residStd = 0
	}

	s.trained = true
	return nil
}

// usableColumns marks feature columns with non-zero variance. The intercept
// column is always kept.
func usableColumns(rows [][]float64, nFeat int) []bool {
	keep := make([]bool, nFeat)
	keep[0] = true
	for j := 1; j < nFeat; j++ {
		first := rows[0][j]
		for i := 1; i < len(rows); i++ {
			if rows[i][j] != first {
				keep[j] = true
				break
			}
		}
	}
	return keep
}

func (s *SeasonalRegression) inferRow(row []float64) float64 {
	val := 0.0
	c := 0
	for j := 0; j < len(row); j++ {
		if !s.keepCols[j] {
			continue
		}
		val += s.coef[c] * row[j]
		c++
	}
	return val
}

// Predict evaluates the fitted linear model at the requested times. Bounds
// use the conservative fallback of the in-sample residual standard deviation
// at the configured confidence level.
func (s *SeasonalRegression) Predict(t []time.Time, reg map[string][]float64) ([]forecast.Point, error) {
	if !s.trained {
		return nil, forecast.ErrUntrainedModel
	}
	if len(t) == 0 {
		return nil, forecast.ErrNoPredictionTimes
	}

	for _, name := range s.regNames {
		vals, exists := reg[name]
		if !exists || len(vals) != len(t) {
			return nil, fmt.Errorf("regressor %q, %w", name, forecast.ErrMissingRegressors)
		}
	}

	z := forecast.ConfidenceZ(s.confidence)
	margin := z * s.residStd

	points := make([]forecast.Point, 0, len(t))
	for i := 0; i < len(t); i++ {
		row := s.featureRow(t[i], reg, i)
		val := s.inferRow(row)
		points = append(points, forecast.Point{
			T:     t[i],
			Value: val,
			Lower: val - margin,
			Upper: val + margin,
		})
	}
	return points, nil
}
