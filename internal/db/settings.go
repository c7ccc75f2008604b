package db

import (
	"context"
	"errors"

	"focusbot/internal/db/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/m-mizutani/goerr/v2"
)

// GetSettings never fails for a missing user or row: defaults are synthesized.
func (db *DB) GetSettings(ctx context.Context, platformID string) (*models.Settings, error) {
	query := `
		SELECT u.id, s.user_id IS NOT NULL,
			COALESCE(s.daily_digest, TRUE),
			COALESCE(s.daily_digest_time, ''),
			COALESCE(s.reminder_minutes, 0),
			COALESCE(s.timezone, ''),
			COALESCE(s.pomodoro_work_minutes, 0),
			COALESCE(s.pomodoro_break_minutes, 0),
			COALESCE(s.pomodoro_cycles, 0)
		FROM users u
		LEFT JOIN user_settings s ON s.user_id = u.id
		WHERE u.platform_id = $1`

	s := &models.Settings{}
	var found bool
	err := db.QueryRow(ctx, query, platformID).Scan(
		&s.UserID,
		&found,
		&s.DailyDigest,
		&s.DailyDigestTime,
		&s.ReminderMinutes,
		&s.Timezone,
		&s.PomodoroWorkMinutes,
		&s.PomodoroBreakMinutes,
		&s.PomodoroCycles,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DefaultSettings(uuid.Nil, db.defaultTZ), nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "error getting settings", goerr.V("platform_id", platformID))
	}
	if !found {
		return models.DefaultSettings(s.UserID, db.defaultTZ), nil
	}
	return s, nil
}

// UpdateSettings applies patch over the current settings and stores the result.
func (db *DB) UpdateSettings(ctx context.Context, platformID string, patch models.SettingsPatch) (*models.Settings, error) {
	user, err := db.EnsureUser(ctx, platformID)
	if err != nil {
		return nil, err
	}

	s, err := db.GetSettings(ctx, platformID)
	if err != nil {
		return nil, err
	}
	s.UserID = user.ID
	patch.Apply(s)

	query := `
		INSERT INTO user_settings (
			user_id, daily_digest, daily_digest_time, reminder_minutes, timezone,
			pomodoro_work_minutes, pomodoro_break_minutes, pomodoro_cycles
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			daily_digest = EXCLUDED.daily_digest,
			daily_digest_time = EXCLUDED.daily_digest_time,
			reminder_minutes = EXCLUDED.reminder_minutes,
			timezone = EXCLUDED.timezone,
			pomodoro_work_minutes = EXCLUDED.pomodoro_work_minutes,
			pomodoro_break_minutes = EXCLUDED.pomodoro_break_minutes,
			pomodoro_cycles = EXCLUDED.pomodoro_cycles`

	_, err = db.Exec(ctx, query,
		s.UserID.String(),
		s.DailyDigest,
		s.DailyDigestTime,
		s.ReminderMinutes,
		s.Timezone,
		s.PomodoroWorkMinutes,
		s.PomodoroBreakMinutes,
		s.PomodoroCycles,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "error saving settings", goerr.V("platform_id", platformID))
	}
	return s, nil
}
