package hma

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"traderelay/internal/candle"
	"traderelay/internal/model"
	"traderelay/internal/session"
)

// Resolution of the candles the engine works on: 5-minute bars.
const resolution = "5"

// lookbackDays is the trailing calendar window requested on a cache miss.
// Broad enough to guarantee ≥60 in-session 5-minute candles across a
// weekend or holiday gap.
const lookbackDays = 2

// HistoryProvider is the external market-data collaborator. It is
// responsible for authentication, rate limiting, its own timeout policy,
// and translating broker error codes into a uniform failure.
type HistoryProvider interface {
	FetchHistory(ctx context.Context, symbol, resolution string, from, to int64) ([][]float64, error)
}

// CacheStat is a read-only snapshot of one cached symbol.
type CacheStat struct {
	Symbol      string    `json:"symbol"`
	CandleCount int       `json:"candleCount"`
	LastUpdate  time.Time `json:"lastUpdate"`
}

type entry struct {
	result     *model.HMAResult
	lastUpdate time.Time
}

// call is an in-flight fetch-and-compute shared by concurrent cache misses
// for the same symbol.
type call struct {
	wg  sync.WaitGroup
	res *model.HMAResult
	err error
}

// Engine computes 55-period HMA series and caches results per symbol.
// The cache is owned by the engine instance — no process-wide state — so
// tests get isolated caches. Entries go stale lazily (checked on read);
// there is no eviction sweep and no size bound.
type Engine struct {
	provider HistoryProvider

	mu       sync.Mutex
	cache    map[string]*entry
	inflight map[string]*call

	now func() time.Time // injectable clock for freshness tests
}

// NewEngine creates an engine using the given history provider.
func NewEngine(provider HistoryProvider) *Engine {
	return &Engine{
		provider: provider,
		cache:    make(map[string]*entry),
		inflight: make(map[string]*call),
		now:      time.Now,
	}
}

// FetchAndCompute returns the HMA result for symbol, serving from cache when
// the entry is fresh (written under 5 minutes ago with ≥60 candles). The
// second return value reports a cache hit. On a miss, concurrent callers for
// the same symbol share a single fetch-and-compute; distinct symbols never
// block each other.
func (e *Engine) FetchAndCompute(ctx context.Context, symbol string) (*model.HMAResult, bool, error) {
	e.mu.Lock()
	if ent, ok := e.cache[symbol]; ok && e.fresh(ent) {
		e.mu.Unlock()
		return ent.result, true, nil
	}
	if c, ok := e.inflight[symbol]; ok {
		e.mu.Unlock()
		c.wg.Wait()
		return c.res, false, c.err
	}
	c := &call{}
	c.wg.Add(1)
	e.inflight[symbol] = c
	e.mu.Unlock()

	res, err := e.refresh(ctx, symbol)
	c.res, c.err = res, err

	e.mu.Lock()
	delete(e.inflight, symbol)
	if err == nil {
		// Entries are replaced whole on every successful recompute,
		// never partially mutated. Fetch failures leave the old entry alone.
		e.cache[symbol] = &entry{result: res, lastUpdate: res.LastUpdate}
	}
	e.mu.Unlock()
	c.wg.Done()

	return res, false, err
}

// refresh performs the miss path: fetch trailing history, normalize to
// in-session candles, compute.
func (e *Engine) refresh(ctx context.Context, symbol string) (*model.HMAResult, error) {
	from, to := session.LookbackWindow(e.now(), lookbackDays)
	raw, err := e.provider.FetchHistory(ctx, symbol, resolution, from, to)
	if err != nil {
		return nil, &FetchError{Symbol: symbol, Err: err}
	}

	candles := candle.Normalize(raw)
	if len(candles) < RequiredCandles {
		return nil, fmt.Errorf("%w: %s has %d in-session candles, need %d",
			ErrInsufficientData, symbol, len(candles), RequiredCandles)
	}

	res, err := Compute(candles)
	if err != nil {
		return nil, err
	}
	res.LastUpdate = e.now()
	return res, nil
}

func (e *Engine) fresh(ent *entry) bool {
	return e.now().Sub(ent.lastUpdate) < FreshFor && len(ent.result.Data) >= RequiredCandles
}

// Evict removes the cache entry for symbol if present and reports whether
// anything was removed. Other symbols are unaffected.
func (e *Engine) Evict(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.cache[symbol]
	delete(e.cache, symbol)
	return ok
}

// CacheStats returns a snapshot of every cached symbol, sorted by symbol.
// It does not mutate freshness state.
func (e *Engine) CacheStats() []CacheStat {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := make([]CacheStat, 0, len(e.cache))
	for sym, ent := range e.cache {
		stats = append(stats, CacheStat{
			Symbol:      sym,
			CandleCount: len(ent.result.Data),
			LastUpdate:  ent.lastUpdate,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Symbol < stats[j].Symbol })
	return stats
}
