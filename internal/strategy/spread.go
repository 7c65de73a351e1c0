package strategy

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// align trims a and b to their common most-recent length.
func align(a, b []float64) ([]float64, []float64) {
	n := min(len(a), len(b))
	return a[len(a)-n:], b[len(b)-n:]
}

func checkPrice(leg string, i int, p float64) error {
	if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return fmt.Errorf("%w: %s[%d] = %v", domain.ErrInvalidPrice, leg, i, p)
	}
	return nil
}

// LogSpread returns log(a_i / b_i) for each aligned index. The series are
// aligned on their most recent points, so the result has length
// min(len(a), len(b)). Any non-positive or non-finite price fails the whole
// calculation with domain.ErrInvalidPrice.
func LogSpread(a, b []float64) ([]float64, error) {
	a, b = align(a, b)
	out := make([]float64, len(a))
	for i := range a {
		if err := checkPrice("a", i, a[i]); err != nil {
			return nil, err
		}
		if err := checkPrice("b", i, b[i]); err != nil {
			return nil, err
		}
		out[i] = math.Log(a[i] / b[i])
	}
	return out, nil
}

// LastPriceRatio returns a/b at the most recent aligned index.
func LastPriceRatio(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("%w: empty series", domain.ErrInsufficientHistory)
	}
	pa, pb := a[len(a)-1], b[len(b)-1]
	if err := checkPrice("a", len(a)-1, pa); err != nil {
		return 0, err
	}
	if err := checkPrice("b", len(b)-1, pb); err != nil {
		return 0, err
	}
	return pa / pb, nil
}
