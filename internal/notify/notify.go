// Package notify delivers outbound messages to users over Discord, Telegram
// or Slack.
package notify

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

type Format string

const (
	FormatPlain    Format = ""
	FormatMarkdown Format = "markdown"
)

var ErrTransportUnavailable = goerr.New("notification transport is not configured")

// Options shape a message. Attachments are rendered as extra lines below the text.
type Options struct {
	Format      Format
	Attachments []string
}

// Sender delivers text to a user identified by platform id.
type Sender interface {
	SendMessageToUser(ctx context.Context, userID string, text string, opts Options) error
}

// Transport delivers text to an address on one platform.
type Transport interface {
	Send(ctx context.Context, address string, text string, opts Options) error
}

func render(text string, opts Options) string {
	if len(opts.Attachments) == 0 {
		return text
	}
	return text + "\n\n" + strings.Join(opts.Attachments, "\n")
}
