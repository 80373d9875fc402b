// Package expiry provides NSE derivatives expiry calendar arithmetic and
// option symbol formatting for the relay's symbol endpoints.
package expiry

import (
	"fmt"
	"strings"
	"time"

	"traderelay/internal/session"
)

// NSE index weeklies expire on Tuesday; an expiry falling on a holiday
// moves to the previous trading day.
const expiryWeekday = time.Tuesday

// NextWeekly returns the next weekly expiry date on or after t (IST),
// stepping back over holidays. A holiday-shifted expiry that lands before t
// (or on t's date with the session already closed) has already elapsed, so
// the following week's expiry is used instead.
func NextWeekly(t time.Time) time.Time {
	ist := t.In(session.IST)
	today := time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, session.IST)
	afterClose := ist.Hour()*60+ist.Minute() > session.CloseMinuteOfDay

	d := today
	for d.Weekday() != expiryWeekday {
		d = d.AddDate(0, 0, 1)
	}
	for {
		exp := rollBackOverHolidays(d)
		if exp.After(today) || (exp.Equal(today) && !afterClose) {
			return exp
		}
		d = d.AddDate(0, 0, 7)
	}
}

// Monthly returns the monthly expiry for the given year/month: the last
// expiry weekday of the month, rolled back over holidays.
func Monthly(year int, month time.Month) time.Time {
	// Last day of month, then walk back to the expiry weekday.
	d := time.Date(year, month+1, 0, 0, 0, 0, 0, session.IST)
	for d.Weekday() != expiryWeekday {
		d = d.AddDate(0, 0, -1)
	}
	return rollBackOverHolidays(d)
}

func rollBackOverHolidays(d time.Time) time.Time {
	for !session.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// OptionSymbol formats an NSE option trading symbol, e.g.
// "NSE:NIFTY2631024500CE" for NIFTY 24500 CE expiring 2026-03-10.
// cp must be "CE" or "PE".
func OptionSymbol(underlying string, exp time.Time, strike int, cp string) string {
	cp = strings.ToUpper(cp)
	ist := exp.In(session.IST)
	// Weekly format: YY M DD where M is 1-9, O, N, D.
	monthCode := fmt.Sprintf("%d", int(ist.Month()))
	switch ist.Month() {
	case time.October:
		monthCode = "O"
	case time.November:
		monthCode = "N"
	case time.December:
		monthCode = "D"
	}
	return fmt.Sprintf("NSE:%s%02d%s%02d%d%s",
		strings.ToUpper(underlying), ist.Year()%100, monthCode, ist.Day(), strike, cp)
}
