package digest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"focusbot/internal/db/models"
)

const nothingDue = "No tasks with due dates and no events today. Have a great day! ✨"

// Compose renders the digest for now, whose location is the user's zone.
// Completed and undated tasks are skipped; events are expected to be today's.
func Compose(now time.Time, tasks []*models.Task, events []*models.Event) string {
	loc := now.Location()
	dayStart, dayEnd := models.DayBounds(now, loc)

	var taskLines []string
	for _, t := range tasks {
		if t.DueDate == nil || t.Completed {
			continue
		}
		due := t.DueDate.In(loc)
		switch {
		case due.Before(now):
			taskLines = append(taskLines, fmt.Sprintf("• %s - due %s ⚠️ *OVERDUE*", t.Title, due.Format("2 Jan 2006 15:04")))
		case due.Before(dayEnd) && !due.Before(dayStart):
			taskLines = append(taskLines, fmt.Sprintf("• %s - due %s", t.Title, due.Format("15:04")))
		default:
			taskLines = append(taskLines, fmt.Sprintf("• %s - due %s", t.Title, due.Format("2 Jan 15:04")))
		}
	}

	sorted := make([]*models.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].At.Before(sorted[j].At)
	})

	var eventLines []string
	for _, e := range sorted {
		line := fmt.Sprintf("• %s - %s", e.At.In(loc).Format("15:04"), e.Title)
		if e.Description != "" {
			line += "\n  " + e.Description
		}
		eventLines = append(eventLines, line)
	}

	parts := []string{
		fmt.Sprintf("📅 *Digest for %s*", now.Format("2 January 2006")),
		"",
	}
	if len(taskLines) > 0 {
		parts = append(parts, fmt.Sprintf("📋 *Tasks (%d):*\n%s", len(taskLines), strings.Join(taskLines, "\n")))
	}
	if len(eventLines) > 0 {
		parts = append(parts, fmt.Sprintf("\n📆 *Today's events (%d):*\n%s", len(eventLines), strings.Join(eventLines, "\n")))
	}
	if len(taskLines) == 0 && len(eventLines) == 0 {
		parts = append(parts, nothingDue)
	}
	return strings.Join(parts, "\n")
}
