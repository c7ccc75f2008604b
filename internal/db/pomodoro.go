package db

import (
	"context"
	"errors"
	"time"

	"focusbot/internal/db/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/m-mizutani/goerr/v2"
)

const pomodoroColumns = `id, user_id, task_id, work_minutes, break_minutes, cycles, current_cycle, is_active, started_at, completed_at`

func scanPomodoro(row pgx.Row) (*models.PomodoroSession, error) {
	p := &models.PomodoroSession{}
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.TaskID,
		&p.WorkMinutes,
		&p.BreakMinutes,
		&p.Cycles,
		&p.CurrentCycle,
		&p.Active,
		&p.StartedAt,
		&p.CompletedAt,
	)
	return p, err
}

// CreatePomodoroSession stores session as the user's active session, filling
// ID, UserID, StartedAt and Active.
func (db *DB) CreatePomodoroSession(ctx context.Context, platformID string, session *models.PomodoroSession) error {
	user, err := db.EnsureUser(ctx, platformID)
	if err != nil {
		return err
	}

	session.ID = uuid.New()
	session.UserID = user.ID
	session.Active = true
	session.StartedAt = time.Now()
	if session.CurrentCycle == 0 {
		session.CurrentCycle = 1
	}

	var taskID *string
	if session.TaskID != nil {
		s := session.TaskID.String()
		taskID = &s
	}

	query := `
		INSERT INTO pomodoro_sessions (` + pomodoroColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, NULL)`

	_, err = db.Exec(ctx, query,
		session.ID.String(),
		session.UserID.String(),
		taskID,
		session.WorkMinutes,
		session.BreakMinutes,
		session.Cycles,
		session.CurrentCycle,
		session.StartedAt,
	)
	if err != nil {
		return goerr.Wrap(err, "error creating pomodoro session", goerr.V("platform_id", platformID))
	}
	return nil
}

func (db *DB) UpdatePomodoroSession(ctx context.Context, id uuid.UUID, patch models.PomodoroPatch) error {
	if patch.CurrentCycle == nil {
		return nil
	}

	query := `UPDATE pomodoro_sessions SET current_cycle = $2 WHERE id = $1`
	tag, err := db.Exec(ctx, query, id.String(), *patch.CurrentCycle)
	if err != nil {
		return goerr.Wrap(err, "error updating pomodoro session", goerr.V("session_id", id))
	}
	return affected(tag, "pomodoro session not found", goerr.V("session_id", id))
}

// CompletePomodoroSession marks a session finished: inactive with a completion time.
func (db *DB) CompletePomodoroSession(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE pomodoro_sessions SET is_active = FALSE, completed_at = $2 WHERE id = $1`
	tag, err := db.Exec(ctx, query, id.String(), time.Now())
	if err != nil {
		return goerr.Wrap(err, "error completing pomodoro session", goerr.V("session_id", id))
	}
	return affected(tag, "pomodoro session not found", goerr.V("session_id", id))
}

// DeactivatePomodoroSession marks a stopped session inactive without a completion time.
func (db *DB) DeactivatePomodoroSession(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE pomodoro_sessions SET is_active = FALSE WHERE id = $1`
	tag, err := db.Exec(ctx, query, id.String())
	if err != nil {
		return goerr.Wrap(err, "error deactivating pomodoro session", goerr.V("session_id", id))
	}
	return affected(tag, "pomodoro session not found", goerr.V("session_id", id))
}

// GetActivePomodoroSession returns nil, nil when the user has no active session.
func (db *DB) GetActivePomodoroSession(ctx context.Context, platformID string) (*models.PomodoroSession, error) {
	query := `
		SELECT ` + pomodoroColumns + `
		FROM pomodoro_sessions
		WHERE user_id = ` + userIDQuery + ` AND is_active
		ORDER BY started_at DESC
		LIMIT 1`

	p, err := scanPomodoro(db.QueryRow(ctx, query, platformID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "error getting active pomodoro session", goerr.V("platform_id", platformID))
	}
	return p, nil
}

// DeactivateStalePomodoroSessions clears every active flag. Run once at
// startup, before any session of this process exists.
func (db *DB) DeactivateStalePomodoroSessions(ctx context.Context) (int64, error) {
	tag, err := db.Exec(ctx, `UPDATE pomodoro_sessions SET is_active = FALSE WHERE is_active`)
	if err != nil {
		return 0, goerr.Wrap(err, "error deactivating stale pomodoro sessions")
	}
	return tag.RowsAffected(), nil
}

// GetPomodoroStats sums sessions completed in [from, to).
func (db *DB) GetPomodoroStats(ctx context.Context, platformID string, from, to time.Time) (models.PomodoroStats, error) {
	query := `
		SELECT ` + pomodoroColumns + `
		FROM pomodoro_sessions
		WHERE user_id = ` + userIDQuery + `
		AND completed_at IS NOT NULL
		AND completed_at >= $2 AND completed_at < $3`

	var stats models.PomodoroStats
	rows, err := db.Query(ctx, query, platformID, from, to)
	if err != nil {
		return stats, goerr.Wrap(err, "error getting pomodoro stats", goerr.V("platform_id", platformID))
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPomodoro(rows)
		if err != nil {
			return stats, goerr.Wrap(err, "error scanning pomodoro session")
		}
		stats.Add(p)
	}
	return stats, rows.Err()
}
