// Package session provides NSE trading-session calendar arithmetic:
// the intraday session window, trading-day checks, and lookback helpers
// for history fetches.
package session

import (
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session window in IST. A candle is in-session iff its minute-of-day falls
// in [OpenMinuteOfDay, CloseMinuteOfDay] — the closed interval matters: the
// 15:30 bar is the last live-market bar and is kept.
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30

	OpenMinuteOfDay  = OpenHour*60 + OpenMinute   // 555
	CloseMinuteOfDay = CloseHour*60 + CloseMinute // 930
)

// MinuteOfDay returns the IST wall-clock minute-of-day for an epoch-seconds
// timestamp.
func MinuteOfDay(ts int64) int {
	t := time.Unix(ts, 0).In(IST)
	return t.Hour()*60 + t.Minute()
}

// InSession reports whether the epoch-seconds timestamp falls inside the
// trading-session window. Weekends and holidays are not checked here — a
// bar the exchange produced is in-session by definition; this guards only
// against pre/post-market ticks.
func InSession(ts int64) bool {
	m := MinuteOfDay(ts)
	return m >= OpenMinuteOfDay && m <= CloseMinuteOfDay
}

// IsWeekday returns true if t is Mon–Fri in IST.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not an NSE holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	return IsWeekday(ist) && !IsHoliday(ist)
}

// NextOpen returns the next market open time (9:15 AM IST on the next
// trading day). If t is before today's open on a trading day, returns
// today's open.
func NextOpen(t time.Time) time.Time {
	ist := t.In(IST)

	todayOpen := time.Date(ist.Year(), ist.Month(), ist.Day(), OpenHour, OpenMinute, 0, 0, IST)
	if ist.Before(todayOpen) && IsTradingDay(ist) {
		return todayOpen
	}

	d := ist.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // max 10 days ahead (holidays + weekends)
		if IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, IST)
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(ist.Year(), ist.Month(), ist.Day()+1, OpenHour, OpenMinute, 0, 0, IST)
}

// LookbackWindow returns [from, to] epoch seconds covering the trailing
// `days` calendar days ending at now. Two days is broad enough to guarantee
// ≥60 in-session 5-minute candles even across a weekend or holiday gap —
// a heuristic, not an exact calendar calculation.
func LookbackWindow(now time.Time, days int) (from, to int64) {
	to = now.Unix()
	from = now.AddDate(0, 0, -days).Unix()
	return from, to
}
