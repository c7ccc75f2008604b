package notify

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/m-mizutani/goerr/v2"
)

// TelegramAPI is the part of *tgbotapi.BotAPI used to send messages.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot TelegramAPI
}

func NewTelegram(bot TelegramAPI) *Telegram {
	return &Telegram{bot: bot}
}

// Send posts to the numeric chat id in address.
func (t *Telegram) Send(ctx context.Context, address string, text string, opts Options) error {
	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return goerr.Wrap(err, "invalid telegram chat id", goerr.V("chat_id", address))
	}

	msg := tgbotapi.NewMessage(chatID, render(text, opts))
	if opts.Format == FormatMarkdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	if _, err := t.bot.Send(msg); err != nil {
		return goerr.Wrap(err, "error sending telegram message", goerr.V("chat_id", chatID))
	}
	return nil
}
