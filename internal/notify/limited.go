package notify

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"
)

// Limited throttles a Sender to stay under platform rate limits. Callers
// block until a token is available or ctx ends.
type Limited struct {
	next    Sender
	limiter *rate.Limiter
}

var _ Sender = &Limited{}

func NewLimited(next Sender, perSecond float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (l *Limited) SendMessageToUser(ctx context.Context, userID string, text string, opts Options) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return goerr.Wrap(err, "rate limit wait aborted", goerr.V("user_id", userID))
	}
	return l.next.SendMessageToUser(ctx, userID, text, opts)
}
