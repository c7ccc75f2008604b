package notify

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/m-mizutani/goerr/v2"
)

// DiscordSession is the part of *discordgo.Session used to send direct messages.
type DiscordSession interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Discord struct {
	session DiscordSession
}

func NewDiscord(session DiscordSession) *Discord {
	return &Discord{session: session}
}

// Send opens (or reuses) the DM channel with the user and posts there.
// Discord renders markdown on its own, so Format is not consulted.
func (d *Discord) Send(ctx context.Context, userID string, text string, opts Options) error {
	channel, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return goerr.Wrap(err, "error creating DM channel", goerr.V("user_id", userID))
	}

	if _, err := d.session.ChannelMessageSend(channel.ID, render(text, opts), discordgo.WithContext(ctx)); err != nil {
		return goerr.Wrap(err, "error sending discord message", goerr.V("user_id", userID))
	}
	return nil
}
