package hma

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traderelay/internal/session"
)

// stubProvider counts fetches and returns canned history.
type stubProvider struct {
	calls int32
	fn    func(ctx context.Context, symbol, resolution string, from, to int64) ([][]float64, error)
}

func (s *stubProvider) FetchHistory(ctx context.Context, symbol, resolution string, from, to int64) ([][]float64, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.fn(ctx, symbol, resolution, from, to)
}

func (s *stubProvider) fetches() int32 { return atomic.LoadInt32(&s.calls) }

// rawHistory builds n in-session 5-minute tuples with closes start, start+1, …
func rawHistory(n int, start float64) [][]float64 {
	base := time.Date(2026, time.March, 3, 9, 15, 0, 0, session.IST).Unix()
	raw := make([][]float64, n)
	for i := range raw {
		price := start + float64(i)
		raw[i] = []float64{float64(base + int64(i)*300), price, price + 0.5, price - 0.5, price, 1000}
	}
	return raw
}

func newTestEngine(p HistoryProvider, clock *time.Time) *Engine {
	e := NewEngine(p)
	e.now = func() time.Time { return *clock }
	return e
}

func TestEngine_MissThenHit(t *testing.T) {
	provider := &stubProvider{fn: func(_ context.Context, _, res string, _, _ int64) ([][]float64, error) {
		assert.Equal(t, "5", res)
		return rawHistory(70, 100), nil
	}}
	clock := time.Date(2026, time.March, 3, 15, 0, 0, 0, session.IST)
	eng := newTestEngine(provider, &clock)

	res, cached, err := eng.FetchAndCompute(context.Background(), "NSE:SBIN-EQ")
	require.NoError(t, err)
	require.False(t, cached)
	require.Len(t, res.Data, 70)
	require.EqualValues(t, 1, provider.fetches())

	res2, cached, err := eng.FetchAndCompute(context.Background(), "NSE:SBIN-EQ")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Same(t, res, res2)
	assert.EqualValues(t, 1, provider.fetches(), "fresh hit must not refetch")
}

func TestEngine_FreshnessBoundary(t *testing.T) {
	provider := &stubProvider{fn: func(_ context.Context, _, _ string, _, _ int64) ([][]float64, error) {
		return rawHistory(70, 100), nil
	}}
	clock := time.Date(2026, time.March, 3, 15, 0, 0, 0, session.IST)
	eng := newTestEngine(provider, &clock)

	_, _, err := eng.FetchAndCompute(context.Background(), "NSE:SBIN-EQ")
	require.NoError(t, err)
	require.EqualValues(t, 1, provider.fetches())

	// 4m59s after the write: still fresh.
	clock = clock.Add(4*time.Minute + 59*time.Second)
	_, cached, err := eng.FetchAndCompute(context.Background(), "NSE:SBIN-EQ")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.EqualValues(t, 1, provider.fetches())

	// 5m01s after the write: stale, triggers a refetch.
	clock = clock.Add(2 * time.Second)
	_, cached, err = eng.FetchAndCompute(context.Background(), "NSE:SBIN-EQ")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.EqualValues(t, 2, provider.fetches())
}

func TestEngine_Evict(t *testing.T) {
	provider := &stubProvider{fn: func(_ context.Context, _, _ string, _, _ int64) ([][]float64, error) {
		return rawHistory(70, 100), nil
	}}
	clock := time.Date(2026, time.March, 3, 15, 0, 0, 0, session.IST)
	eng := newTestEngine(provider, &clock)

	_, _, err := eng.FetchAndCompute(context.Background(), "NSE:SBIN-EQ")
	require.NoError(t, err)

	assert.True(t, eng.Evict("NSE:SBIN-EQ"))
	assert.False(t, eng.Evict("NSE:SBIN-EQ"), "second evict finds nothing")
	assert.False(t, eng.Evict("NSE:TCS-EQ"), "unknown symbol")

	// Next read must hit the provider again, even inside the 5m window.
	_, cached, err := eng.FetchAndCompute(context.Background(), "NSE:SBIN-EQ")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.EqualValues(t, 2, provider.fetches())
}

func TestEngine_FetchErrorPropagates(t *testing.T) {
	brokerErr := errors.New("upstream 502")
	provider := &stubProvider{fn: func(_ context.Context, _, _ string, _, _ int64) ([][]float64, error) {
		return nil, brokerErr
	}}
	clock := time.Now()
	eng := newTestEngine(provider, &clock)

	res, cached, err := eng.FetchAndCompute(context.Background(), "NSE:SBIN-EQ")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.False(t, cached)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "NSE:SBIN-EQ", fe.Symbol)
	assert.ErrorIs(t, err, brokerErr)

	// No partial cache write on failure.
	assert.Empty(t, eng.CacheStats())
}

func TestEngine_InsufficientAfterNormalize(t *testing.T) {
	provider := &stubProvider{fn: func(_ context.Context, _, _ string, _, _ int64) ([][]float64, error) {
		return rawHistory(59, 100), nil
	}}
	clock := time.Now()
	eng := newTestEngine(provider, &clock)

	_, _, err := eng.FetchAndCompute(context.Background(), "NSE:SBIN-EQ")
	require.ErrorIs(t, err, ErrInsufficientData)
	assert.Empty(t, eng.CacheStats())
}

func TestEngine_CacheStats(t *testing.T) {
	provider := &stubProvider{fn: func(_ context.Context, _, _ string, _, _ int64) ([][]float64, error) {
		return rawHistory(70, 100), nil
	}}
	clock := time.Date(2026, time.March, 3, 15, 0, 0, 0, session.IST)
	eng := newTestEngine(provider, &clock)

	assert.Empty(t, eng.CacheStats())

	_, _, err := eng.FetchAndCompute(context.Background(), "NSE:TCS-EQ")
	require.NoError(t, err)
	_, _, err = eng.FetchAndCompute(context.Background(), "NSE:SBIN-EQ")
	require.NoError(t, err)

	stats := eng.CacheStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "NSE:SBIN-EQ", stats[0].Symbol)
	assert.Equal(t, "NSE:TCS-EQ", stats[1].Symbol)
	assert.Equal(t, 70, stats[0].CandleCount)
	assert.Equal(t, clock, stats[0].LastUpdate)
}

func TestEngine_ConcurrentMissSharesOneFetch(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	provider := &stubProvider{fn: func(_ context.Context, _, _ string, _, _ int64) ([][]float64, error) {
		close(entered)
		<-release
		return rawHistory(70, 100), nil
	}}
	clock := time.Date(2026, time.March, 3, 15, 0, 0, 0, session.IST)
	eng := newTestEngine(provider, &clock)

	var wg sync.WaitGroup
	results := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, results[0] = eng.FetchAndCompute(context.Background(), "NSE:SBIN-EQ")
	}()
	<-entered // first caller holds the in-flight slot

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, results[1] = eng.FetchAndCompute(context.Background(), "NSE:SBIN-EQ")
	}()

	// Let the second caller queue up behind the in-flight computation.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, results[0])
	require.NoError(t, results[1])
	assert.EqualValues(t, 1, provider.fetches(), "concurrent misses must share one fetch")
}
