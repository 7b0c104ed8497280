package workload

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// GapSource draws the gap, in ticks, before the next call arrives.
// Gaps are always at least one tick so arrivals never share a timestamp
// with their predecessor.
type GapSource interface {
	Next(rng *rand.Rand) int64
}

// exponentialGaps gives a Poisson arrival process.
type exponentialGaps struct{ mean float64 }

func (g exponentialGaps) Next(rng *rand.Rand) int64 {
	return ticks(rng.ExpFloat64() * g.mean)
}

// gammaGaps keeps the mean gap but sets its coefficient of variation;
// cv > 1 clusters arrivals into bursts.
type gammaGaps struct{ shape, scale float64 }

func (g gammaGaps) Next(rng *rand.Rand) int64 {
	return ticks(unitGamma(rng, g.shape) * g.scale)
}

// fixedGaps spaces arrivals evenly.
type fixedGaps struct{ gap int64 }

func (g fixedGaps) Next(*rand.Rand) int64 { return g.gap }

// NewGapSource returns the gap source of process a at ratePerSecond calls
// per second.
func NewGapSource(a ArrivalSpec, ratePerSecond float64) GapSource {
	mean := math.Inf(1)
	if ratePerSecond > 0 {
		mean = ticksPerSecond / ratePerSecond
	}
	switch a.Process {
	case "constant":
		return fixedGaps{gap: ticks(math.Round(mean))}
	case "gamma":
		cv := 1.0
		if a.CV != nil && *a.CV > 0 {
			cv = *a.CV
		}
		shape := 1 / (cv * cv)
		if shape < 0.01 {
			logrus.Warnf("arrival cv %.1f gives gamma shape %.4f; using poisson arrivals", cv, shape)
			return exponentialGaps{mean: mean}
		}
		return gammaGaps{shape: shape, scale: mean * cv * cv}
	default:
		return exponentialGaps{mean: mean}
	}
}

// unitGamma draws from Gamma(shape, 1) with the Marsaglia-Tsang squeeze.
// Shapes below one are boosted to shape+1 and scaled back by U^(1/shape).
func unitGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		return unitGamma(rng, shape+1) * math.Pow(rng.Float64(), 1/shape)
	}
	d := shape - 1.0/3
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		x2 := x * x
		if u < 1-0.0331*x2*x2 || math.Log(u) < 0.5*x2+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// ticks rounds a duration down to whole ticks, clamped to [1, MaxInt64/2].
func ticks(v float64) int64 {
	switch {
	case math.IsNaN(v) || v < 1:
		return 1
	case v > math.MaxInt64/2:
		return math.MaxInt64 / 2
	}
	return int64(v)
}
