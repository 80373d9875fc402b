package session

import (
	"testing"
	"time"
)

func TestMinuteOfDay(t *testing.T) {
	cases := []struct {
		hour, min int
		want      int
	}{
		{0, 0, 0},
		{9, 15, 555},
		{15, 30, 930},
		{23, 59, 1439},
	}
	for _, tc := range cases {
		ts := time.Date(2026, time.March, 3, tc.hour, tc.min, 0, 0, IST).Unix()
		if got := MinuteOfDay(ts); got != tc.want {
			t.Errorf("MinuteOfDay(%02d:%02d) = %d, want %d", tc.hour, tc.min, got, tc.want)
		}
	}
}

func TestInSession_ClosedInterval(t *testing.T) {
	cases := []struct {
		hour, min int
		want      bool
	}{
		{9, 14, false},
		{9, 15, true},
		{12, 0, true},
		{15, 30, true}, // close is inclusive
		{15, 31, false},
		{3, 0, false},
	}
	for _, tc := range cases {
		ts := time.Date(2026, time.March, 3, tc.hour, tc.min, 30, 0, IST).Unix()
		if got := InSession(ts); got != tc.want {
			t.Errorf("InSession(%02d:%02d) = %v, want %v", tc.hour, tc.min, got, tc.want)
		}
	}
}

func TestInSession_UTCTimestampMapsToIST(t *testing.T) {
	// 03:45 UTC == 09:15 IST.
	ts := time.Date(2026, time.March, 3, 3, 45, 0, 0, time.UTC).Unix()
	if !InSession(ts) {
		t.Error("03:45 UTC should be in-session (09:15 IST)")
	}
}

func TestIsTradingDay(t *testing.T) {
	// 2026-03-03 is a Tuesday, 2026-03-07 a Saturday, 2026-01-26 Republic Day.
	if !IsTradingDay(time.Date(2026, time.March, 3, 12, 0, 0, 0, IST)) {
		t.Error("Tuesday should be a trading day")
	}
	if IsTradingDay(time.Date(2026, time.March, 7, 12, 0, 0, 0, IST)) {
		t.Error("Saturday should not be a trading day")
	}
	if IsTradingDay(time.Date(2026, time.January, 26, 12, 0, 0, 0, IST)) {
		t.Error("Republic Day should not be a trading day")
	}
}

func TestNextOpen(t *testing.T) {
	// Before open on a trading day → same day 9:15.
	early := time.Date(2026, time.March, 3, 8, 0, 0, 0, IST)
	open := NextOpen(early)
	want := time.Date(2026, time.March, 3, 9, 15, 0, 0, IST)
	if !open.Equal(want) {
		t.Errorf("NextOpen before open = %v, want %v", open, want)
	}

	// After close on Friday → Monday 9:15.
	friEvening := time.Date(2026, time.March, 6, 18, 0, 0, 0, IST)
	open = NextOpen(friEvening)
	want = time.Date(2026, time.March, 9, 9, 15, 0, 0, IST)
	if !open.Equal(want) {
		t.Errorf("NextOpen Friday evening = %v, want %v", open, want)
	}
}

func TestLookbackWindow(t *testing.T) {
	now := time.Date(2026, time.March, 3, 15, 0, 0, 0, IST)
	from, to := LookbackWindow(now, 2)
	if to != now.Unix() {
		t.Errorf("to = %d, want %d", to, now.Unix())
	}
	if from != now.AddDate(0, 0, -2).Unix() {
		t.Errorf("from = %d, want %d", from, now.AddDate(0, 0, -2).Unix())
	}
	if to-from != 2*24*3600 {
		t.Errorf("window = %ds, want 172800s", to-from)
	}
}
