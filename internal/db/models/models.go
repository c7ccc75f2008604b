// Package models holds the rows stored by the persistence layer.
package models

import "time"

// DayBounds returns the start of t's calendar day in loc and the start of the next one.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
