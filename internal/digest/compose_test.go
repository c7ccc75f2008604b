package digest_test

import (
	"strings"
	"testing"
	"time"

	"focusbot/internal/db/models"
	"focusbot/internal/digest"

	"github.com/m-mizutani/gt"
)

func TestComposeNothingDue(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	done := now.Add(time.Hour)

	text := digest.Compose(now, []*models.Task{
		{Title: "undated"},
		{Title: "finished", DueDate: &done, Completed: true},
	}, nil)

	gt.String(t, text).Contains("Digest for 2 March 2026")
	gt.String(t, text).Contains("No tasks with due dates and no events today")
	gt.Bool(t, strings.Contains(text, "Tasks")).False()
}

func TestComposeTaskDates(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	gt.NoError(t, err).Required()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, loc)

	overdue := now.Add(-26 * time.Hour)
	today := now.Add(3 * time.Hour)
	later := now.AddDate(0, 0, 2)

	text := digest.Compose(now, []*models.Task{
		{Title: "Old report", DueDate: &overdue},
		{Title: "Call bank", DueDate: &today},
		{Title: "Plan trip", DueDate: &later},
	}, nil)

	gt.String(t, text).Contains("📋 *Tasks (3):*")
	gt.String(t, text).Contains("• Old report - due 1 Mar 2026 07:00 ⚠️ *OVERDUE*")
	gt.String(t, text).Contains("• Call bank - due 12:00\n")
	gt.String(t, text).Contains("• Plan trip - due 4 Mar 09:00")
	gt.Bool(t, strings.Contains(text, "No tasks")).False()
}

func TestComposeEventsSortedWithDescription(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	text := digest.Compose(now, nil, []*models.Event{
		{Title: "Retro", At: now.Add(6 * time.Hour)},
		{Title: "Standup", At: now.Add(time.Hour), Description: "room 4"},
	})

	gt.String(t, text).Contains("📆 *Today's events (2):*\n• 10:00 - Standup\n  room 4\n• 15:00 - Retro")
}
