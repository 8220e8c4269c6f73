package domain

import "time"

// MonthKey renders the per-month quota bucket for a point in time, e.g.
// "2026-08". Quota counters in the per-user index are keyed by this value.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
