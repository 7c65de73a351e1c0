package strategy

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// minStd is the deviation below which a window is treated as constant.
const minStd = 1e-12

// RollingZScore standardises each point against the trailing window of w
// observations using the sample standard deviation. Indices before the first
// full window, and windows with zero spread, are NaN.
func RollingZScore(series []float64, w int) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		out[i] = math.NaN()
	}
	if w < 2 {
		return out
	}
	for i := w - 1; i < len(series); i++ {
		mean, std := stat.MeanStdDev(series[i-w+1:i+1], nil)
		if std < minStd {
			continue
		}
		out[i] = (series[i] - mean) / std
	}
	return out
}

// LatestZScore returns the z-score of the final point. It fails with
// domain.ErrInsufficientHistory when no full window exists and with
// domain.ErrDegenerateSpread when the final window has zero deviation.
func LatestZScore(series []float64, w int) (float64, error) {
	if w < 2 || len(series) < w {
		return 0, fmt.Errorf("%w: %d points for window %d", domain.ErrInsufficientHistory, len(series), w)
	}
	mean, std := stat.MeanStdDev(series[len(series)-w:], nil)
	if std < minStd || math.IsNaN(std) {
		return 0, fmt.Errorf("%w: zero deviation over last %d points", domain.ErrDegenerateSpread, w)
	}
	return (series[len(series)-1] - mean) / std, nil
}

