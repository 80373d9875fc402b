// Package candle converts raw broker OHLCV history into typed candle
// sequences restricted to exchange trading-session minutes.
package candle

import (
	"traderelay/internal/model"
	"traderelay/internal/session"
)

// fieldCount is the expected tuple layout: [ts, open, high, low, close, volume].
const fieldCount = 6

// Normalize converts raw history tuples (epoch-seconds UTC timestamp plus
// OHLCV) into candles, keeping only bars whose IST minute-of-day falls
// inside the trading session. Input order is preserved — the broker returns
// timestamp-ascending data and no re-sort is performed. Duplicates are not
// deduplicated.
//
// Tuples with fewer than six fields are dropped rather than carried forward
// as partial candles. The broker emits them only on malformed responses, and
// a dropped bar is recoverable on the next fetch while a NaN close would
// poison every weighted average downstream.
func Normalize(raw [][]float64) []model.Candle {
	out := make([]model.Candle, 0, len(raw))
	for _, tup := range raw {
		if len(tup) < fieldCount {
			continue
		}
		ts := int64(tup[0])
		if !session.InSession(ts) {
			continue
		}
		out = append(out, model.Candle{
			TS:     ts,
			Open:   tup[1],
			High:   tup[2],
			Low:    tup[3],
			Close:  tup[4],
			Volume: int64(tup[5]),
		})
	}
	return out
}
