// Package hma computes and caches the 55-period Hull Moving Average over
// in-session candle data.
//
// HMA(n) = WMA(2*WMA(n/2) − WMA(n), floor(sqrt(n))), applied here as a
// series computation with a deliberate two-stage warm-up: points before the
// final smoothing threshold carry the unsmoothed raw HMA value, and points
// before the base lookback carry 0.
package hma

import (
	"fmt"
	"math"
	"time"

	"traderelay/internal/model"
)

// Fixed parameters — not configurable per call.
const (
	Period          = 55
	RequiredCandles = 60
	FreshFor        = 5 * time.Minute
)

// wma is the weighted moving average of data ending at idx over `window`
// points: weights window, window-1, …, 1 applied to data[idx], data[idx-1],
// …, divided by window*(window+1)/2. Returns 0 when idx < window-1.
func wma(data []float64, idx, window int) float64 {
	if idx < window-1 {
		return 0
	}
	var sum float64
	for k := 0; k < window; k++ {
		sum += data[idx-k] * float64(window-k)
	}
	return sum / (float64(window) * float64(window+1) / 2)
}

// Compute calculates the HMA series over the given candles.
// Fails with ErrInsufficientData when fewer than Period candles are given.
//
// Warm-up policy, preserved exactly from the production behaviour this
// replaces (downstream consumers depend on the existing values):
//   - index < Period-1: HMA = 0 ("not yet computable")
//   - Period-1 ≤ index < Period+sqrtPeriod-2: HMA = raw 2*WMA(27)−WMA(55)
//   - index ≥ Period+sqrtPeriod-2: HMA = sqrtPeriod-length WMA of the raw series
func Compute(candles []model.Candle) (*model.HMAResult, error) {
	if len(candles) < Period {
		return nil, fmt.Errorf("%w: need %d candles, have %d", ErrInsufficientData, Period, len(candles))
	}

	halfPeriod := Period / 2                         // 27
	sqrtPeriod := int(math.Floor(math.Sqrt(Period))) // 7
	smoothFrom := Period + sqrtPeriod - 2            // 60

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	// Raw (unsmoothed) HMA per index. Indices below Period-1 stay 0 and are
	// never read by the smoothing pass.
	raw := make([]float64, len(candles))
	for i := Period - 1; i < len(candles); i++ {
		raw[i] = 2*wma(closes, i, halfPeriod) - wma(closes, i, Period)
	}

	data := make([]model.HMAPoint, len(candles))
	for i, c := range candles {
		p := model.HMAPoint{TS: c.TS, Close: c.Close}
		switch {
		case i < Period-1:
			// warm-up: 0 means not yet computable
		case i < smoothFrom:
			p.HMA = raw[i]
		default:
			p.HMA = wma(raw, i, sqrtPeriod)
		}
		data[i] = p
	}

	return &model.HMAResult{
		Period:     Period,
		Data:       data,
		CurrentHMA: data[len(data)-1].HMA,
		LastUpdate: time.Now(),
	}, nil
}
