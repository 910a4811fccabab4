package util

import "time"

// IsTradingDay reports whether t falls on a weekday. Exchange holidays are
// not modelled; the holding horizon tolerates the occasional extra day.
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// AddTradingDays returns t advanced by n trading days, skipping weekends.
func AddTradingDays(t time.Time, n int) time.Time {
	d := t
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if IsTradingDay(d) {
			added++
		}
	}
	return d
}
