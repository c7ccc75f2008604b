package models

import (
	"time"

	"github.com/google/uuid"
)

type Task struct {
	ID          uuid.UUID  `db:"id"`
	UserID      uuid.UUID  `db:"user_id"`
	Title       string     `db:"title"`
	Description string     `db:"description"`
	DueDate     *time.Time `db:"due_date"`
	Completed   bool       `db:"completed"`
	CompletedAt *time.Time `db:"completed_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

// TaskStats aggregates a user's tasks. CompletionRate is a rounded percentage.
type TaskStats struct {
	Total          int
	Completed      int
	Active         int
	CompletionRate int
}

// NewTaskStats derives Active and CompletionRate from the two counters.
func NewTaskStats(total, completed int) TaskStats {
	s := TaskStats{Total: total, Completed: completed, Active: total - completed}
	if total > 0 {
		s.CompletionRate = int(float64(completed)/float64(total)*100 + 0.5)
	}
	return s
}
