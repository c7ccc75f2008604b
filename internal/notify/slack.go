package notify

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

// SlackAPI is the part of *slack.Client used to post messages.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type Slack struct {
	api SlackAPI
}

func NewSlack(api SlackAPI) *Slack {
	return &Slack{api: api}
}

// Send posts to a member id, which Slack delivers as a DM from the app.
func (s *Slack) Send(ctx context.Context, memberID string, text string, opts Options) error {
	_, _, err := s.api.PostMessageContext(ctx, memberID,
		slack.MsgOptionText(render(text, opts), opts.Format != FormatMarkdown),
	)
	if err != nil {
		return goerr.Wrap(err, "error sending slack message", goerr.V("member_id", memberID))
	}
	return nil
}
