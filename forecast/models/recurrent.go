package models

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/avoskamp/go-predictor/forecast"
	"github.com/avoskamp/go-predictor/timeseries"
	"gonum.org/v1/gonum/stat"
)

// RecurrentOptions configures the Elman recurrent network model.
type RecurrentOptions struct {
	HiddenSize   int     `json:"hidden_size"`
	Lookback     int     `json:"lookback"`
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learning_rate"`

	MinTrain int `json:"min_train"`
}

// NewDefaultRecurrentOptions returns a default set of recurrent model
// options.
func NewDefaultRecurrentOptions() *RecurrentOptions {
	return &RecurrentOptions{
		HiddenSize:   8,
		Lookback:     12,
		Epochs:       150,
		LearningRate: 0.05,
		MinTrain:     30,
	}
}

// Recurrent is a small Elman recurrent network trained on sliding lookback
// windows with backpropagation through the unrolled sequence. Weight
// initialization is driven by the explicit seed so fits are reproducible.
// Multistep forecasts feed each prediction back as the next input.
type Recurrent struct {
	opt        *RecurrentOptions
	confidence float64
	seed       uint64

	wx, wh, bh []float64
	wy         []float64
	by         float64

	mean, std float64
	tail      []float64
	residStd  float64
	trained   bool
}

// NewRecurrent creates an untrained recurrent model with the given seed.
func NewRecurrent(opt *RecurrentOptions, confidence float64, seed uint64) *Recurrent {
	if opt == nil {
		opt = NewDefaultRecurrentOptions()
	}
	return &Recurrent{
		opt:        opt,
		confidence: confidence,
		seed:       seed,
	}
}

func (r *Recurrent) Name() string {
	return string(VariantRecurrent)
}

func (r *Recurrent) MinTrainSize() int {
	min := r.opt.MinTrain
	if min < r.opt.Lookback+2 {
		min = r.opt.Lookback + 2
	}
	return min
}

// MaxHorizon caps multistep feedback at a few lookback lengths. Beyond that
// the forecast is mostly consuming its own output and degrades quickly.
func (r *Recurrent) MaxHorizon() int {
	return 4 * r.opt.Lookback
}

// forward runs the network over a normalized input sequence returning the
// hidden states per step and the scalar output.
func (r *Recurrent) forward(seq []float64) ([][]float64, float64) {
	hSize := r.opt.HiddenSize
	states := make([][]float64, len(seq))
	prev := make([]float64, hSize)

	for t, x := range seq {
		h := make([]float64, hSize)
		for j := 0; j < hSize; j++ {
			pre := r.wx[j]*x + r.bh[j]
			for k := 0; k < hSize; k++ {
				pre += r.wh[j*hSize+k] * prev[k]
			}
			h[j] = math.Tanh(pre)
		}
		states[t] = h
		prev = h
	}

	out := r.by
	for j := 0; j < hSize; j++ {
		out += r.wy[j] * prev[j]
	}
	return states, out
}

// Fit normalizes the series, builds sliding windows of lookback inputs with
// one step ahead targets, and trains by stochastic gradient descent with
// truncated backpropagation through the unrolled lookback.
func (r *Recurrent) Fit(w *timeseries.Window) error {
	n := w.Len()
	if n < r.MinTrainSize() {
		return fmt.Errorf(
			"recurrent model requires %d observations, got %d, %w",
			r.MinTrainSize(), n, forecast.ErrInsufficientTrainingData,
		)
	}

	mean, std := stat.MeanStdDev(w.Y, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	r.mean, r.std = mean, std

	norm := make([]float64, n)
	for i := 0; i < n; i++ {
		norm[i] = (w.Y[i] - mean) / std
	}

	hSize := r.opt.HiddenSize
	lookback := r.opt.Lookback

	rnd := rand.New(rand.NewPCG(r.seed, r.seed))
	scale := 0.2
	r.wx = initWeights(rnd, hSize, scale)
	r.wh = initWeights(rnd, hSize*hSize, scale)
	r.bh = make([]float64, hSize)
	r.wy = initWeights(rnd, hSize, scale)
	r.by = 0

	lr := r.opt.LearningRate
	for epoch := 0; epoch < r.opt.Epochs; epoch++ {
		epochLoss := 0.0
		for i := 0; i+lookback < n; i++ {
			seq := norm[i : i+lookback]
			target := norm[i+lookback]

			states, out := r.forward(seq)
			diff := out - target
			epochLoss += diff * diff

			r.backprop(seq, states, diff, lr)
		}

		if math.IsNaN(epochLoss) || math.IsInf(epochLoss, 0) {
			return fmt.Errorf("training loss diverged at epoch %d, %w", epoch, forecast.ErrNoConvergence)
		}
	}

	r.tail = make([]float64, lookback)
	copy(r.tail, norm[n-lookback:])

	// one step ahead residuals over the training range for fallback bounds
	residual := make([]float64, 0, n-lookback)
	for i := 0; i+lookback < n; i++ {
		_, out := r.forward(norm[i : i+lookback])
		residual = append(residual, (norm[i+lookback]-out)*std)
	}
	r.residStd = stat.StdDev(residual, nil)
	if math.IsNaN(r.residStd) {
		r.residStd = 0
	}

	r.trained = true
	return nil
}

func initWeights(rnd *rand.Rand, n int, scale float64) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = rnd.NormFloat64() * scale
	}
	return w
}

// backprop applies one stochastic gradient step for a single window,
// propagating the output error back through every unrolled step. Gradients
// are clipped elementwise to keep the recursion from blowing up.
func (r *Recurrent) backprop(seq []float64, states [][]float64, diff, lr float64) {
	hSize := r.opt.HiddenSize
	steps := len(seq)

	dwx := make([]float64, hSize)
	dwh := make([]float64, hSize*hSize)
	dbh := make([]float64, hSize)
	dwy := make([]float64, hSize)

	last := states[steps-1]
	dh := make([]float64, hSize)
	for j := 0; j < hSize; j++ {
		dwy[j] = diff * last[j]
		dh[j] = diff * r.wy[j]
	}
	dby := diff

	for t := steps - 1; t >= 0; t-- {
		var prev []float64
		if t > 0 {
			prev = states[t-1]
		}

		dprev := make([]float64, hSize)
		for j := 0; j < hSize; j++ {
			dpre := dh[j] * (1 - states[t][j]*states[t][j])
			dwx[j] += dpre * seq[t]
			dbh[j] += dpre
			for k := 0; k < hSize; k++ {
				if prev != nil {
					dwh[j*hSize+k] += dpre * prev[k]
					dprev[k] += dpre * r.wh[j*hSize+k]
				}
			}
		}
		dh = dprev
	}

	for j := 0; j < hSize; j++ {
		r.wx[j] -= lr * clip(dwx[j])
		r.bh[j] -= lr * clip(dbh[j])
		r.wy[j] -= lr * clip(dwy[j])
		for k := 0; k < hSize; k++ {
			r.wh[j*hSize+k] -= lr * clip(dwh[j*hSize+k])
		}
	}
	r.by -= lr * clip(dby)
}

func clip(g float64) float64 {
	const bound = 5.0
	return math.Max(-bound, math.Min(bound, g))
}

// Predict rolls the network forward feeding each forecast back as input.
// Bounds use the conservative fallback of the in-sample one step residual
// standard deviation.
func (r *Recurrent) Predict(t []time.Time, _ map[string][]float64) ([]forecast.Point, error) {
	if !r.trained {
		return nil, forecast.ErrUntrainedModel
	}
	if len(t) == 0 {
		return nil, forecast.ErrNoPredictionTimes
	}
	if len(t) > r.MaxHorizon() {
		return nil, fmt.Errorf(
			"requested %d steps with maximum of %d, %w",
			len(t), r.MaxHorizon(), forecast.ErrHorizonExceeded,
		)
	}

	z := forecast.ConfidenceZ(r.confidence)
	margin := z * r.residStd

	history := make([]float64, len(r.tail), len(r.tail)+len(t))
	copy(history, r.tail)

	points := make([]forecast.Point, 0, len(t))
	for i := 0; i < len(t); i++ {
		_, out := r.forward(history[len(history)-r.opt.Lookback:])
		history = append(history, out)

		val := out*r.std + r.mean
		points = append(points, forecast.Point{
			T:     t[i],
			Value: val,
			Lower: val - margin,
			Upper: val + margin,
		})
	}
	return points, nil
}
