package models

import "github.com/google/uuid"

const (
	DefaultDigestTime      = "09:00"
	DefaultReminderMinutes = 30
	DefaultWorkMinutes     = 25
	DefaultBreakMinutes    = 5
	DefaultCycles          = 4
)

// Settings is the per-user singleton row.
type Settings struct {
	UserID               uuid.UUID `db:"user_id"`
	DailyDigest          bool      `db:"daily_digest"`
	DailyDigestTime      string    `db:"daily_digest_time"`
	ReminderMinutes      int       `db:"reminder_minutes"`
	Timezone             string    `db:"timezone"`
	PomodoroWorkMinutes  int       `db:"pomodoro_work_minutes"`
	PomodoroBreakMinutes int       `db:"pomodoro_break_minutes"`
	PomodoroCycles       int       `db:"pomodoro_cycles"`
}

// DefaultSettings returns the settings synthesized for a user without a row.
func DefaultSettings(userID uuid.UUID, timezone string) *Settings {
	return &Settings{
		UserID:               userID,
		DailyDigest:          true,
		DailyDigestTime:      DefaultDigestTime,
		ReminderMinutes:      DefaultReminderMinutes,
		Timezone:             timezone,
		PomodoroWorkMinutes:  DefaultWorkMinutes,
		PomodoroBreakMinutes: DefaultBreakMinutes,
		PomodoroCycles:       DefaultCycles,
	}
}

// SettingsPatch carries the fields to change; nil fields are left untouched.
type SettingsPatch struct {
	DailyDigest          *bool
	DailyDigestTime      *string
	ReminderMinutes      *int
	Timezone             *string
	PomodoroWorkMinutes  *int
	PomodoroBreakMinutes *int
	PomodoroCycles       *int
}

// Apply writes the non-nil fields of p onto s.
func (p SettingsPatch) Apply(s *Settings) {
	if p.DailyDigest != nil {
		s.DailyDigest = *p.DailyDigest
	}
	if p.DailyDigestTime != nil {
		s.DailyDigestTime = *p.DailyDigestTime
	}
	if p.ReminderMinutes != nil {
		s.ReminderMinutes = *p.ReminderMinutes
	}
	if p.Timezone != nil {
		s.Timezone = *p.Timezone
	}
	if p.PomodoroWorkMinutes != nil {
		s.PomodoroWorkMinutes = *p.PomodoroWorkMinutes
	}
	if p.PomodoroBreakMinutes != nil {
		s.PomodoroBreakMinutes = *p.PomodoroBreakMinutes
	}
	if p.PomodoroCycles != nil {
		s.PomodoroCycles = *p.PomodoroCycles
	}
}
