package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Candle is one OHLCV bar for a single symbol.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Closes returns the close prices of candles in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// CheckOrdered returns ErrMisalignedSeries unless candle open times are
// strictly increasing.
func CheckOrdered(candles []Candle) error {
	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			return fmt.Errorf("%w: candle %d at %s not after %s", ErrMisalignedSeries,
				i, candles[i].OpenTime.Format(time.RFC3339), candles[i-1].OpenTime.Format(time.RFC3339))
		}
	}
	return nil
}

var barUnits = map[byte]time.Duration{
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// BarDuration returns the length of one bar for an exchange timeframe such
// as "15m", "1h" or "1d". Calendar timeframes ("1M") report false.
func BarDuration(timeframe string) (time.Duration, bool) {
	if len(timeframe) < 2 {
		return 0, false
	}
	unit, ok := barUnits[timeframe[len(timeframe)-1]]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(timeframe[:len(timeframe)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// NextBarOpen is when the bar after the last candle opens. It reports false
// for an empty series or an unknown timeframe.
func NextBarOpen(candles []Candle, timeframe string) (time.Time, bool) {
	d, ok := BarDuration(timeframe)
	if !ok || len(candles) == 0 {
		return time.Time{}, false
	}
	return candles[len(candles)-1].OpenTime.Add(d), true
}
