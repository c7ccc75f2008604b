package models

import (
	"time"

	"github.com/google/uuid"
)

type Event struct {
	ID              uuid.UUID `db:"id"`
	UserID          uuid.UUID `db:"user_id"`
	Title           string    `db:"title"`
	Description     string    `db:"description"`
	At              time.Time `db:"datetime"`
	ReminderMinutes *int      `db:"reminder_minutes"`
	CreatedAt       time.Time `db:"created_at"`
}

// EventWithOwner is an event joined with the platform identity of its owner,
// used by the reminder checker to address the notification.
type EventWithOwner struct {
	Event      *Event
	PlatformID string
}
