// Package bot is the Discord front end: slash commands, autocomplete and the
// DM step flows that create tasks and events.
package bot

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"focusbot/internal/config"
	"focusbot/internal/db"
	"focusbot/internal/digest"
	"focusbot/internal/logger"
	"focusbot/internal/notify"
	"focusbot/internal/pomodoro"
	"focusbot/internal/reminder"

	"github.com/bwmarrin/discordgo"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"
)

// Services are the collaborators commands act on.
type Services struct {
	Store     db.Store
	Pomodoro  *pomodoro.Manager
	Digest    *digest.Scheduler
	Reminders *reminder.Checker
	Sender    notify.Sender
}

type Bot struct {
	config    *config.Config
	session   *discordgo.Session
	store     db.Store
	pomodoro  *pomodoro.Manager
	digest    *digest.Scheduler
	reminders *reminder.Checker
	sender    notify.Sender
	flows     *SessionStore
	log       *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	isShutdown bool
	wg         sync.WaitGroup
}

// New builds the bot around an unopened session. session may be nil when
// only the command logic is used.
func New(cfg *config.Config, session *discordgo.Session, svc Services, log *zap.Logger) *Bot {
	if session != nil {
		session.Identify.Intents = discordgo.IntentsGuilds |
			discordgo.IntentsGuildMessages |
			discordgo.IntentsDirectMessages |
			discordgo.IntentsMessageContent
	}

	return &Bot{
		config:    cfg,
		session:   session,
		store:     svc.Store,
		pomodoro:  svc.Pomodoro,
		digest:    svc.Digest,
		reminders: svc.Reminders,
		sender:    svc.Sender,
		flows:     NewSessionStore(),
		log:       log,
		now:       time.Now,
	}
}

// registerGuildCommands registers the command set for a guild, retrying
// transient failures.
func (b *Bot) registerGuildCommands(guildID string) error {
	maxRetries := 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		_, err := b.session.ApplicationCommandBulkOverwrite(b.config.Discord.ClientID, guildID, commands)
		if err == nil {
			b.log.Info("registered commands", zap.String("guild_id", guildID), zap.Int("count", len(commands)))
			return nil
		}
		lastErr = err
		b.log.Warn("failed to register commands",
			zap.String("guild_id", guildID), zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	return goerr.Wrap(lastErr, "failed to register commands",
		goerr.V("guild_id", guildID), goerr.V("attempts", maxRetries))
}

// Start connects to Discord and serves interactions until ctx ends.
func (b *Bot) Start(ctx context.Context) error {
	b.log.Info("starting discord bot")

	for {
		_, err := b.session.User("@me")
		if err == nil {
			break
		}
		b.log.Warn("failed to reach discord api, retrying", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
		}
	}

	b.session.AddHandler(b.handleReady)
	b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			b.track(func() { b.handleCommand(s, i) })
		case discordgo.InteractionApplicationCommandAutocomplete:
			b.track(func() { b.handleAutocomplete(s, i) })
		}
	})
	b.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		b.track(func() { b.handleMessage(s, m) })
	})
	b.session.AddHandler(b.handleGuildCreate)

	for {
		err := b.session.Open()
		if err == nil {
			break
		}
		b.log.Warn("failed to open discord session, retrying", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
		}
	}
	b.log.Info("discord session opened", zap.String("session_id", b.session.State.SessionID))

	<-ctx.Done()
	return b.Shutdown()
}

// Shutdown waits for running handlers and closes the session.
func (b *Bot) Shutdown() error {
	b.mu.Lock()
	if b.isShutdown {
		b.mu.Unlock()
		return nil
	}
	b.isShutdown = true
	b.mu.Unlock()

	b.log.Info("waiting for active handlers to complete")
	b.wg.Wait()

	if err := b.session.Close(); err != nil {
		return goerr.Wrap(err, "error closing discord session")
	}
	b.log.Info("discord session closed")
	return nil
}

// track runs fn unless shutdown began, so Shutdown can wait for it.
func (b *Bot) track(fn func()) {
	b.mu.Lock()
	if b.isShutdown {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	defer b.wg.Done()
	fn()
}

func (b *Bot) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("bot is ready", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
}

// handleGuildCreate fires for every guild on connect and for new ones later.
func (b *Bot) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if err := b.registerGuildCommands(g.ID); err != nil {
		b.log.Error("error registering commands", append(logger.ErrFields(err),
			zap.String("guild_id", g.ID), zap.String("guild", g.Name))...)
	}
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			fields := []zap.Field{
				zap.Any("panic", r),
				zap.String("guild_id", i.GuildID),
				zap.String("stack", string(buf[:n])),
			}
			if user != nil {
				fields = append(fields, zap.String("user_id", user.ID))
			}
			b.log.Error("panic in command handler", fields...)
			b.respond(s, i, "Error: an internal error occurred")
		}
	}()

	if user == nil {
		b.log.Warn("interaction without user", zap.String("interaction_id", i.ID))
		return
	}

	// Commands touching the store can outlast the three second window.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.Error("error acknowledging interaction", zap.Error(err), zap.String("user_id", user.ID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data := i.ApplicationCommandData()
	b.logCommand(user.ID, data)
	b.respond(s, i, b.dispatch(ctx, user.ID, data))
}

// respond replaces the deferred acknowledgement with content.
func (b *Bot) respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if content == "" {
		content = "Done."
	}
	content = truncateString(content, 2000)
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		b.log.Error("error responding to interaction", zap.Error(err), zap.String("interaction_id", i.ID))
	}
}

// handleMessage feeds direct messages into the sender's flow.
func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID != "" {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			b.log.Error("panic in message handler",
				zap.Any("panic", r),
				zap.String("user_id", m.Author.ID),
				zap.String("stack", string(buf[:n])),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reply, ok := b.HandleText(ctx, m.Author.ID, m.Content)
	if !ok || reply == "" {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply, discordgo.WithContext(ctx)); err != nil {
		b.log.Error("error replying to message", zap.Error(err), zap.String("user_id", m.Author.ID))
	}
}

// ensureUser registers the user on first contact and schedules their digest
// if nothing is scheduled yet.
func (b *Bot) ensureUser(ctx context.Context, userID string) error {
	if _, err := b.store.EnsureUser(ctx, userID); err != nil {
		return err
	}
	if b.digest != nil && !b.digest.HasJob(userID) {
		if err := b.digest.EnsureDailyJob(ctx, userID); err != nil {
			b.log.Warn("failed to schedule digest", append(logger.ErrFields(err), zap.String("user_id", userID))...)
		}
	}
	return nil
}

func (b *Bot) internalError(userID, action string, err error) string {
	b.log.Error("command failed", append(logger.ErrFields(err),
		zap.String("user_id", userID), zap.String("action", action))...)
	return fmt.Sprintf("Error: could not %s, please try again later.", action)
}
