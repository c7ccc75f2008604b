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

const userColumns = `id, platform_id, chat_id, delivery, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.PlatformID,
		&user.ChatID,
		&user.Delivery,
		&user.CreatedAt,
	)
	return user, err
}

// EnsureUser returns the user with platformID, creating the row on first contact.
func (db *DB) EnsureUser(ctx context.Context, platformID string) (*models.User, error) {
	query := `
		INSERT INTO users (id, platform_id, delivery, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (platform_id) DO UPDATE SET platform_id = EXCLUDED.platform_id
		RETURNING ` + userColumns

	user, err := scanUser(db.QueryRow(ctx, query,
		uuid.New().String(),
		platformID,
		models.DeliveryDiscord,
		time.Now(),
	))
	if err != nil {
		return nil, goerr.Wrap(err, "error ensuring user", goerr.V("platform_id", platformID))
	}
	return user, nil
}

func (db *DB) GetUserByPlatformID(ctx context.Context, platformID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE platform_id = $1`

	user, err := scanUser(db.QueryRow(ctx, query, platformID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "user not found", goerr.V("platform_id", platformID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "error getting user", goerr.V("platform_id", platformID))
	}
	return user, nil
}

func (db *DB) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, goerr.Wrap(err, "error listing users")
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "error scanning user")
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// SetDelivery selects the transport notifications for platformID go to.
// chatID is ignored for Discord, which addresses the user directly.
func (db *DB) SetDelivery(ctx context.Context, platformID, delivery, chatID string) error {
	if _, err := db.EnsureUser(ctx, platformID); err != nil {
		return err
	}

	var chat *string
	if delivery != models.DeliveryDiscord && chatID != "" {
		chat = &chatID
	}

	query := `UPDATE users SET delivery = $2, chat_id = $3 WHERE platform_id = $1`
	tag, err := db.Exec(ctx, query, platformID, delivery, chat)
	if err != nil {
		return goerr.Wrap(err, "error updating delivery", goerr.V("platform_id", platformID))
	}
	return affected(tag, "user not found", goerr.V("platform_id", platformID))
}
