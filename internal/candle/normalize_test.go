package candle

import (
	"testing"
	"time"

	"traderelay/internal/session"
)

func tsAt(hour, min int) int64 {
	return time.Date(2026, time.March, 3, hour, min, 0, 0, session.IST).Unix()
}

func tuple(ts int64, close float64) []float64 {
	return []float64{float64(ts), close - 1, close + 1, close - 2, close, 500}
}

func TestNormalize_SessionBoundaries(t *testing.T) {
	raw := [][]float64{
		tuple(tsAt(9, 14), 100),  // minute 554 — pre-market, dropped
		tuple(tsAt(9, 15), 101),  // minute 555 — first in-session bar
		tuple(tsAt(12, 0), 102),  // mid-session
		tuple(tsAt(15, 30), 103), // minute 930 — last in-session bar, inclusive
		tuple(tsAt(15, 31), 104), // minute 931 — post-market, dropped
	}

	got := Normalize(raw)
	if len(got) != 3 {
		t.Fatalf("kept %d candles, want 3", len(got))
	}
	wantCloses := []float64{101, 102, 103}
	for i, c := range got {
		if c.Close != wantCloses[i] {
			t.Errorf("candle %d: close=%v, want %v", i, c.Close, wantCloses[i])
		}
	}
}

func TestNormalize_FieldMapping(t *testing.T) {
	ts := tsAt(10, 0)
	got := Normalize([][]float64{{float64(ts), 100.5, 103.25, 99.75, 102.0, 12345}})
	if len(got) != 1 {
		t.Fatalf("kept %d candles, want 1", len(got))
	}
	c := got[0]
	if c.TS != ts || c.Open != 100.5 || c.High != 103.25 || c.Low != 99.75 || c.Close != 102.0 || c.Volume != 12345 {
		t.Errorf("unexpected candle: %+v", c)
	}
}

func TestNormalize_OrderPreserved(t *testing.T) {
	raw := [][]float64{
		tuple(tsAt(10, 0), 1),
		tuple(tsAt(10, 5), 2),
		tuple(tsAt(10, 10), 3),
	}
	got := Normalize(raw)
	for i := 1; i < len(got); i++ {
		if got[i].TS <= got[i-1].TS {
			t.Errorf("order not preserved at %d: %d <= %d", i, got[i].TS, got[i-1].TS)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := [][]float64{
		tuple(tsAt(9, 14), 100),
		tuple(tsAt(9, 15), 101),
		tuple(tsAt(11, 30), 102),
		tuple(tsAt(15, 30), 103),
		tuple(tsAt(16, 0), 104),
	}

	first := Normalize(raw)

	// Re-encode the already-filtered candles and normalize again:
	// nothing new may be excluded.
	again := make([][]float64, len(first))
	for i, c := range first {
		again[i] = []float64{float64(c.TS), c.Open, c.High, c.Low, c.Close, float64(c.Volume)}
	}
	second := Normalize(again)

	if len(second) != len(first) {
		t.Fatalf("idempotence violated: %d candles became %d", len(first), len(second))
	}
	for i := range first {
		if second[i] != first[i] {
			t.Errorf("candle %d changed: %+v != %+v", i, second[i], first[i])
		}
	}
}

func TestNormalize_ShortTuplesDropped(t *testing.T) {
	raw := [][]float64{
		tuple(tsAt(10, 0), 100),
		{float64(tsAt(10, 5)), 101, 102}, // truncated response row
		{},
		tuple(tsAt(10, 10), 103),
	}
	got := Normalize(raw)
	if len(got) != 2 {
		t.Fatalf("kept %d candles, want 2", len(got))
	}
	if got[0].Close != 100 || got[1].Close != 103 {
		t.Errorf("wrong candles kept: %+v", got)
	}
}

func TestNormalize_Empty(t *testing.T) {
	if got := Normalize(nil); len(got) != 0 {
		t.Errorf("Normalize(nil) = %v, want empty", got)
	}
	if got := Normalize([][]float64{}); len(got) != 0 {
		t.Errorf("Normalize(empty) = %v, want empty", got)
	}
}
