package model

import (
	"encoding/json"
	"time"
)

// Candle represents a single OHLC bar for one instrument.
// TS is the bar start time in epoch seconds (UTC), as returned by the
// broker's history endpoint. Candles are immutable once constructed and
// are always handled in ascending TS order.
type Candle struct {
	TS     int64   `json:"ts"` // epoch seconds
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Time returns the bar start as a time.Time.
func (c *Candle) Time() time.Time {
	return time.Unix(c.TS, 0).UTC()
}

// HMAPoint is a candle close paired with its Hull Moving Average value.
// HMA is 0 for indices before the warm-up boundary — callers must treat
// 0 as "not yet computable", not as a real indicator value.
type HMAPoint struct {
	TS    int64   `json:"ts"`
	Close float64 `json:"close"`
	HMA   float64 `json:"hma"`
}

// HMAResult is the full output of one HMA computation over a candle series.
type HMAResult struct {
	Period     int        `json:"period"`
	Data       []HMAPoint `json:"data"`
	CurrentHMA float64    `json:"currentHMA"` // last point's HMA, raw float
	LastUpdate time.Time  `json:"lastUpdate"`
}

// JSON returns the JSON-encoded result (ignoring errors for hot-path usage).
func (r *HMAResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
