package strategy

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MinReversionSamples is the fewest (lag, diff) pairs a lambda estimate is
// made from; shorter spreads yield lambda = 0 and are rejected.
const MinReversionSamples = 10

// Reversion is the outcome of a mean-reversion speed estimate.
type Reversion struct {
	Lambda   float64
	HalfLife float64 // in bars; 0 when not mean-reverting
	Samples  int
}

// MeanReverting reports whether the spread pulls back toward its mean.
func (r Reversion) MeanReverting() bool { return r.Lambda < 0 }

// EstimateReversion fits diff_t = alpha + lambda*lag_t by ordinary least
// squares, where lag_t = s[t-1] and diff_t = s[t] - s[t-1]. Too few samples or
// a constant lag series return lambda = 0.
func EstimateReversion(spread []float64) Reversion {
	n := len(spread) - 1
	if n < MinReversionSamples {
		return Reversion{Samples: max(n, 0)}
	}

	lag := spread[:n]
	diff := make([]float64, n)
	floats.SubTo(diff, spread[1:], lag)

	if v := stat.Variance(lag, nil); v == 0 || math.IsNaN(v) {
		return Reversion{Samples: n}
	}
	_, lambda := stat.LinearRegression(lag, diff, nil, false)
	if math.IsNaN(lambda) || math.IsInf(lambda, 0) {
		return Reversion{Samples: n}
	}

	r := Reversion{Lambda: lambda, Samples: n}
	if r.Lambda < 0 {
		r.HalfLife = -math.Ln2 / r.Lambda
	}
	return r
}
