package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DeliveryDiscord  = "discord"
	DeliveryTelegram = "telegram"
	DeliverySlack    = "slack"
)

// User is keyed internally by ID and externally by the Discord user id the
// commands arrive with. Delivery selects where notifications go; ChatID is
// the address on that platform when it is not Discord.
type User struct {
	ID         uuid.UUID `db:"id"`
	PlatformID string    `db:"platform_id"`
	ChatID     *string   `db:"chat_id"`
	Delivery   string    `db:"delivery"`
	CreatedAt  time.Time `db:"created_at"`
}
