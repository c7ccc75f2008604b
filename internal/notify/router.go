package notify

import (
	"context"
	"errors"

	"focusbot/internal/db"
	"focusbot/internal/db/models"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"
)

// UserLookup resolves the delivery preference of a user.
type UserLookup interface {
	GetUserByPlatformID(ctx context.Context, platformID string) (*models.User, error)
}

// Router is the Sender the rest of the bot talks to. It sends through the
// transport named by the user's delivery preference, and through Discord when
// that transport is missing or the user has no address on it.
type Router struct {
	users      UserLookup
	discord    Transport
	transports map[string]Transport
	log        *zap.Logger
}

var _ Sender = &Router{}

type RouterOption func(*Router)

// WithTransport registers the transport for a delivery name such as
// models.DeliveryTelegram.
func WithTransport(delivery string, t Transport) RouterOption {
	return func(r *Router) {
		r.transports[delivery] = t
	}
}

func NewRouter(users UserLookup, discord Transport, log *zap.Logger, opts ...RouterOption) *Router {
	r := &Router{
		users:      users,
		discord:    discord,
		transports: make(map[string]Transport),
		log:        log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) SendMessageToUser(ctx context.Context, userID string, text string, opts Options) error {
	transport, address, err := r.resolve(ctx, userID)
	if err != nil {
		return err
	}
	return transport.Send(ctx, address, text, opts)
}

func (r *Router) resolve(ctx context.Context, userID string) (Transport, string, error) {
	user, err := r.users.GetUserByPlatformID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return r.discordFor(userID)
	}
	if err != nil {
		return nil, "", goerr.Wrap(err, "error resolving delivery", goerr.V("user_id", userID))
	}

	if user.Delivery == "" || user.Delivery == models.DeliveryDiscord {
		return r.discordFor(userID)
	}

	t, ok := r.transports[user.Delivery]
	if !ok || user.ChatID == nil || *user.ChatID == "" {
		r.log.Warn("delivery transport unavailable, falling back to discord",
			zap.String("user_id", userID),
			zap.String("delivery", user.Delivery),
		)
		return r.discordFor(userID)
	}
	return t, *user.ChatID, nil
}

func (r *Router) discordFor(userID string) (Transport, string, error) {
	if r.discord == nil {
		return nil, "", goerr.Wrap(ErrTransportUnavailable, "no discord transport", goerr.V("user_id", userID))
	}
	return r.discord, userID, nil
}
