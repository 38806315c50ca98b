package timeseries

import (
	"math"
	"math/rand/v2"
	"time"
)

// GenerateT produces n regularly spaced timestamps ending just before the
// time returned by nowFunc.
func GenerateT(n int, interval time.Duration, nowFunc func() time.Time) []time.Time {
	t := make([]time.Time, 0, n)
	ct := time.Unix(nowFunc().Unix()/60*60, 0).Add(-time.Duration(n) * interval)
	for i := 0; i < n; i++ {
		t = append(t, ct.Add(interval*time.Duration(i)))
	}
	return t
}

// Series is a float64 slice with chainable helpers for composing synthetic
// test signals.
type Series []float64

func (s Series) Add(src Series) Series {
	for i := range s {
		s[i] += src[i]
	}
	return s
}

// GenerateConstY produces a constant series of length n.
func GenerateConstY(n int, val float64) Series {
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		y[i] = val
	}
	return Series(y)
}

// GenerateTrendY produces a linear series, intercept + slope per step.
func GenerateTrendY(n int, intercept, slope float64) Series {
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		y[i] = intercept + slope*float64(i)
	}
	return Series(y)
}

// GenerateWaveY produces a sinusoid evaluated at the given times.
func GenerateWaveY(t []time.Time, amp, periodSec, order, timeOffset float64) Series {
	y := make([]float64, 0, len(t))
	for i := 0; i < len(t); i++ {
		val := amp * math.Sin(2.0*math.Pi*order/periodSec*(float64(t[i].Unix())+timeOffset))
		y = append(y, val)
	}
	return Series(y)
}

// GenerateNoise produces seeded gaussian noise so synthetic fixtures stay
// reproducible across runs.
func GenerateNoise(n int, scale float64, seed uint64) Series {
	rnd := rand.New(rand.NewPCG(seed, seed))
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		y[i] = rnd.NormFloat64() * scale
	}
	return Series(y)
}
