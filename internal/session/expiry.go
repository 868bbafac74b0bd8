package session

import (
	"strings"
	"time"
)

// Expiry describes one upcoming weekly option expiry.
type Expiry struct {
	Date     string `json:"date"`  // broker format, e.g. "03-Sep-2026"
	Label    string `json:"label"` // display format, e.g. "03 Sep 26"
	DaysAway int    `json:"days_away"`
	Weekday  string `json:"weekday"`
	ISODate  string `json:"timestamp"`
}

// WeeklyExpiries computes the next count weekly expiry dates for a symbol.
// NIFTY contracts expire on Tuesday, SENSEX family on Thursday. A same-day
// expiry is skipped once the session is past 10:00 UTC (afternoon IST).
func WeeklyExpiries(symbol string, count int, now time.Time) []Expiry {
	upper := strings.ToUpper(symbol)
	target := time.Tuesday
	if strings.Contains(upper, "SENSEX") || strings.Contains(upper, "BSESEN") {
		target = time.Thursday
	}

	today := now
	out := make([]Expiry, 0, count)
	for i := 0; i < 60 && len(out) < count; i++ {
		d := today.AddDate(0, 0, i)
		if d.Weekday() != target {
			continue
		}
		if i == 0 && now.UTC().Hour() >= 10 {
			continue
		}
		out = append(out, Expiry{
			Date:     d.Format("02-Jan-2006"),
			Label:    d.Format("02 Jan 06"),
			DaysAway: i,
			Weekday:  d.Weekday().String(),
			ISODate:  d.Format("2006-01-02"),
		})
	}
	return out
}
