package models

import (
	"time"

	"github.com/google/uuid"
)

// PomodoroSession is the persisted mirror of a running or finished focus session.
// At most one row per user has Active set; the scheduler enforces this by
// stopping before starting.
type PomodoroSession struct {
	ID           uuid.UUID  `db:"id"`
	UserID       uuid.UUID  `db:"user_id"`
	TaskID       *uuid.UUID `db:"task_id"`
	WorkMinutes  int        `db:"work_minutes"`
	BreakMinutes int        `db:"break_minutes"`
	Cycles       int        `db:"cycles"`
	CurrentCycle int        `db:"current_cycle"`
	Active       bool       `db:"is_active"`
	StartedAt    time.Time  `db:"started_at"`
	CompletedAt  *time.Time `db:"completed_at"`
}

type PomodoroPatch struct {
	CurrentCycle *int
}

// PomodoroStats sums completed sessions within a period.
type PomodoroStats struct {
	Sessions     int
	Cycles       int
	WorkMinutes  int
	BreakMinutes int
}

// Add folds a completed session into the totals.
func (s *PomodoroStats) Add(p *PomodoroSession) {
	s.Sessions++
	s.Cycles += p.Cycles
	s.WorkMinutes += p.WorkMinutes * p.Cycles
	s.BreakMinutes += p.BreakMinutes * p.Cycles
}

// Hours returns work time in hours rounded to one decimal.
func (s PomodoroStats) Hours() float64 {
	return float64(int(float64(s.WorkMinutes)/60*10+0.5)) / 10
}
