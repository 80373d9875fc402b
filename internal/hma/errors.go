package hma

import (
	"errors"
	"fmt"
)

// ErrInsufficientData signals that fewer candles were available than the
// computation needs. Callers should widen the history lookback or report
// "not enough data" — the engine never retries internally.
var ErrInsufficientData = errors.New("insufficient candle data")

// FetchError wraps a failure from the external history source. It is
// propagated unchanged to the caller: no retry, no backoff, no partial
// cache write.
type FetchError struct {
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("history fetch for %s: %v", e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
