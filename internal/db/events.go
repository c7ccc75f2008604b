package db

import (
	"context"
	"time"

	"focusbot/internal/db/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/m-mizutani/goerr/v2"
)

const eventColumns = `e.id, e.user_id, e.title, e.description, e.datetime, e.reminder_minutes, e.created_at`

func scanEvent(row pgx.Row, extra ...any) (*models.Event, error) {
	event := &models.Event{}
	dest := append([]any{
		&event.ID,
		&event.UserID,
		&event.Title,
		&event.Description,
		&event.At,
		&event.ReminderMinutes,
		&event.CreatedAt,
	}, extra...)
	return event, row.Scan(dest...)
}

func (db *DB) queryEvents(ctx context.Context, query string, args ...any) ([]*models.Event, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (db *DB) GetEvents(ctx context.Context, platformID string) ([]*models.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events e
		WHERE e.user_id = ` + userIDQuery + `
		ORDER BY e.datetime ASC`

	events, err := db.queryEvents(ctx, query, platformID)
	if err != nil {
		return nil, goerr.Wrap(err, "error listing events", goerr.V("platform_id", platformID))
	}
	return events, nil
}

// GetEventsBetween lists a user's events in [from, to) by time.
func (db *DB) GetEventsBetween(ctx context.Context, platformID string, from, to time.Time) ([]*models.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events e
		WHERE e.user_id = ` + userIDQuery + `
		AND e.datetime >= $2 AND e.datetime < $3
		ORDER BY e.datetime ASC`

	events, err := db.queryEvents(ctx, query, platformID, from, to)
	if err != nil {
		return nil, goerr.Wrap(err, "error listing events",
			goerr.V("platform_id", platformID), goerr.V("from", from), goerr.V("to", to))
	}
	return events, nil
}

// UpsertEvent creates the event when its ID is nil, otherwise rewrites it.
func (db *DB) UpsertEvent(ctx context.Context, platformID string, event *models.Event) error {
	if event.ID != uuid.Nil {
		query := `
			UPDATE events
			SET title = $3, description = $4, datetime = $5, reminder_minutes = $6
			WHERE user_id = ` + userIDQuery + ` AND id = $2`

		tag, err := db.Exec(ctx, query, platformID, event.ID.String(),
			event.Title, event.Description, event.At, event.ReminderMinutes)
		if err != nil {
			return goerr.Wrap(err, "error updating event", goerr.V("event_id", event.ID))
		}
		return affected(tag, "event not found", goerr.V("event_id", event.ID))
	}

	user, err := db.EnsureUser(ctx, platformID)
	if err != nil {
		return err
	}

	event.ID = uuid.New()
	event.UserID = user.ID
	event.CreatedAt = time.Now()

	query := `
		INSERT INTO events (id, user_id, title, description, datetime, reminder_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = db.Exec(ctx, query,
		event.ID.String(),
		event.UserID.String(),
		event.Title,
		event.Description,
		event.At,
		event.ReminderMinutes,
		event.CreatedAt,
	)
	if err != nil {
		return goerr.Wrap(err, "error creating event", goerr.V("platform_id", platformID))
	}
	return nil
}

func (db *DB) RemoveEvent(ctx context.Context, platformID string, eventID uuid.UUID) error {
	query := `DELETE FROM events WHERE user_id = ` + userIDQuery + ` AND id = $2`

	tag, err := db.Exec(ctx, query, platformID, eventID.String())
	if err != nil {
		return goerr.Wrap(err, "error removing event", goerr.V("event_id", eventID))
	}
	return affected(tag, "event not found", goerr.V("event_id", eventID))
}

// ListRemindableEvents returns events in [from, to) that carry a reminder
// lead, each with the platform id of its owner.
func (db *DB) ListRemindableEvents(ctx context.Context, from, to time.Time) ([]*models.EventWithOwner, error) {
	query := `
		SELECT ` + eventColumns + `, u.platform_id
		FROM events e
		JOIN users u ON u.id = e.user_id
		WHERE e.reminder_minutes IS NOT NULL
		AND e.datetime >= $1 AND e.datetime < $2
		ORDER BY e.datetime ASC`

	rows, err := db.Query(ctx, query, from, to)
	if err != nil {
		return nil, goerr.Wrap(err, "error listing remindable events", goerr.V("from", from), goerr.V("to", to))
	}
	defer rows.Close()

	var events []*models.EventWithOwner
	for rows.Next() {
		ew := &models.EventWithOwner{}
		ew.Event, err = scanEvent(rows, &ew.PlatformID)
		if err != nil {
			return nil, goerr.Wrap(err, "error scanning event")
		}
		events = append(events, ew)
	}
	return events, rows.Err()
}

func (db *DB) CountRemindableEvents(ctx context.Context, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM events
		WHERE reminder_minutes IS NOT NULL
		AND datetime >= $1 AND datetime < $2`

	var n int
	if err := db.QueryRow(ctx, query, from, to).Scan(&n); err != nil {
		return 0, goerr.Wrap(err, "error counting remindable events")
	}
	return n, nil
}
