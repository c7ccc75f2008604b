package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"focusbot/internal/db"
	"focusbot/internal/db/models"
	"focusbot/internal/digest"
	"focusbot/internal/logger"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	minZero = float64(0)
	minOne  = float64(1)

	taskOption = &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionString,
		Name:         "task",
		Description:  "Select a task",
		Required:     true,
		Autocomplete: true,
	}

	commands = []*discordgo.ApplicationCommand{
		{
			Name:        "task",
			Description: "Manage your tasks",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Create a task",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "title",
							Description: "Task title",
							Required:    true,
							MaxLength:   200,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "due",
							Description: "Due date (25.11.2025 18:00 or 2025-11-25)",
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "description",
							Description: "Task description",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List your tasks",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "all",
							Description: "Include completed tasks",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "done",
					Description: "Mark a task as completed",
					Options:     []*discordgo.ApplicationCommandOption{taskOption},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "undo",
					Description: "Mark a completed task as active again",
					Options:     []*discordgo.ApplicationCommandOption{taskOption},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "delete",
					Description: "Delete a task",
					Options:     []*discordgo.ApplicationCommandOption{taskOption},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "new",
					Description: "Create a task step by step in direct messages",
				},
			},
		},
		{
			Name:        "event",
			Description: "Manage your calendar events",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Create an event",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "title",
							Description: "Event title",
							Required:    true,
							MaxLength:   200,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "when",
							Description: "Start (25.11.2025 10:30 or 2025-11-25 10:30)",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "reminder",
							Description: "Minutes before the start to remind you (0 for none)",
							MinValue:    &minZero,
							MaxValue:    1440,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "description",
							Description: "Event description",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List upcoming events",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "delete",
					Description: "Delete an event",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:         discordgo.ApplicationCommandOptionString,
							Name:         "event",
							Description:  "Select an event",
							Required:     true,
							Autocomplete: true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "new",
					Description: "Create an event step by step in direct messages",
				},
			},
		},
		{
			Name:        "settings",
			Description: "View or change your settings",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "show",
					Description: "Show your settings",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "digest",
					Description: "Turn the daily digest on or off",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "enabled",
							Description: "Send the daily digest",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "digest_time",
					Description: "Set when the daily digest is sent",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "time",
							Description: "Local time (HH:MM)",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "reminder",
					Description: "Set the default reminder lead for new events",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "minutes",
							Description: "Minutes before the event",
							Required:    true,
							MinValue:    &minZero,
							MaxValue:    1440,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "timezone",
					Description: "Set your timezone",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "zone",
							Description: "Timezone (e.g., Europe/Moscow, America/New_York)",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "pomodoro",
					Description: "Set your default pomodoro intervals",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "work",
							Description: "Work minutes",
							MinValue:    &minOne,
							MaxValue:    240,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "break",
							Description: "Break minutes",
							MinValue:    &minOne,
							MaxValue:    120,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "cycles",
							Description: "Number of cycles",
							MinValue:    &minOne,
							MaxValue:    12,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "delivery",
					Description: "Choose where notifications are delivered",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "channel",
							Description: "Delivery channel",
							Required:    true,
							Choices: []*discordgo.ApplicationCommandOptionChoice{
								{Name: "Discord", Value: models.DeliveryDiscord},
								{Name: "Telegram", Value: models.DeliveryTelegram},
								{Name: "Slack", Value: models.DeliverySlack},
							},
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "address",
							Description: "Telegram chat id or Slack member id",
						},
					},
				},
			},
		},
		{
			Name:        "pomodoro",
			Description: "Run a pomodoro focus timer",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "start",
					Description: "Start a pomodoro, replacing any running one",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:         discordgo.ApplicationCommandOptionString,
							Name:         "task",
							Description:  "Task to focus on (free mode when empty)",
							Autocomplete: true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "work",
							Description: "Work minutes",
							MinValue:    &minOne,
							MaxValue:    240,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "break",
							Description: "Break minutes",
							MinValue:    &minOne,
							MaxValue:    120,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "cycles",
							Description: "Number of cycles",
							MinValue:    &minOne,
							MaxValue:    12,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "stop",
					Description: "Stop the running pomodoro",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "Show the running pomodoro",
				},
			},
		},
		{
			Name:        "stats",
			Description: "Show your task and focus statistics",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "period",
					Description: "Time period for focus time",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Today", Value: "today"},
						{Name: "This Week", Value: "week"},
						{Name: "This Month", Value: "month"},
					},
				},
			},
		},
		{
			Name:        "help",
			Description: "Show what the bot can do",
		},
	}
)

const helpText = "**focusbot**\n" +
	"`/task add|list|done|undo|delete|new` manage tasks\n" +
	"`/event add|list|delete|new` manage events with reminders\n" +
	"`/pomodoro start|stop|status` focus timer\n" +
	"`/settings show|digest|digest_time|reminder|timezone|pomodoro|delivery`\n" +
	"`/stats` your progress\n\n" +
	"Dates: `25.11.2025 18:00`, `25.11.2025`, `2025-11-25 18:00` or `2025-11-25`. " +
	"A date without a time means the end of that day.\n" +
	"Step by step flows run in direct messages; send `cancel` to abort."

// dispatch runs a slash command for userID and returns the reply.
func (b *Bot) dispatch(ctx context.Context, userID string, data discordgo.ApplicationCommandInteractionData) string {
	if err := b.ensureUser(ctx, userID); err != nil {
		return b.internalError(userID, "load your profile", err)
	}

	if data.Name == "help" {
		return helpText
	}
	if data.Name == "stats" {
		return b.handleStats(ctx, userID, optionsOf(data.Options))
	}

	if len(data.Options) == 0 {
		return "Error: missing subcommand"
	}
	sub := data.Options[0]
	opts := optionsOf(sub.Options)

	switch data.Name {
	case "task":
		return b.handleTask(ctx, userID, sub.Name, opts)
	case "event":
		return b.handleEvent(ctx, userID, sub.Name, opts)
	case "settings":
		return b.handleSettings(ctx, userID, sub.Name, opts)
	case "pomodoro":
		return b.handlePomodoro(ctx, userID, sub.Name, opts)
	}

	b.log.Warn("unknown command", zap.String("command", data.Name))
	return "Error: unknown command"
}

func (b *Bot) handleTask(ctx context.Context, userID, sub string, opts options) string {
	switch sub {
	case "add":
		loc := b.userLocation(ctx, userID)
		task := &models.Task{
			Title:       opts.String("title"),
			Description: opts.String("description"),
		}
		if task.Title == "" {
			return "Error: the title cannot be empty"
		}
		if raw := opts.String("due"); raw != "" {
			due, err := parseDate(raw, loc)
			if err != nil {
				return "Error: I could not read that date. Try `25.11.2025 18:00`."
			}
			task.DueDate = &due
		}
		if err := b.store.UpsertTask(ctx, userID, task); err != nil {
			return b.internalError(userID, "save the task", err)
		}
		return "✅ " + describeSavedTask(task, loc)

	case "list":
		all, _ := opts.Bool("all")
		tasks, err := b.store.GetTasks(ctx, userID, all)
		if err != nil {
			return b.internalError(userID, "load your tasks", err)
		}
		return formatTaskList(tasks, b.userLocation(ctx, userID), b.now())

	case "done", "undo", "delete":
		id, err := uuid.Parse(opts.String("task"))
		if err != nil {
			return "Error: pick a task from the list"
		}

		var msg string
		switch sub {
		case "done":
			err = b.store.CompleteTask(ctx, userID, id)
			msg = "✅ Task completed."
		case "undo":
			err = b.store.UncompleteTask(ctx, userID, id)
			msg = "↩️ Task is active again."
		default:
			err = b.store.RemoveTask(ctx, userID, id)
			msg = "🗑️ Task deleted."
		}
		if errors.Is(err, db.ErrNotFound) {
			return "Error: task not found"
		}
		if err != nil {
			return b.internalError(userID, "update the task", err)
		}
		return msg

	case "new":
		return b.startTaskFlow(userID) + "\nReply to me in a direct message."
	}
	return "Error: unknown subcommand"
}

func (b *Bot) handleEvent(ctx context.Context, userID, sub string, opts options) string {
	switch sub {
	case "add":
		loc := b.userLocation(ctx, userID)
		at, err := parseDate(opts.String("when"), loc)
		if err != nil {
			return "Error: I could not read that date. Try `25.11.2025 10:30`."
		}
		event := &models.Event{
			Title:       opts.String("title"),
			Description: opts.String("description"),
			At:          at,
		}
		if event.Title == "" {
			return "Error: the title cannot be empty"
		}

		minutes, ok := opts.Int("reminder")
		if !ok {
			settings, err := b.store.GetSettings(ctx, userID)
			if err != nil {
				return b.internalError(userID, "load your settings", err)
			}
			minutes = settings.ReminderMinutes
		}
		if minutes > 0 {
			event.ReminderMinutes = &minutes
		}

		if err := b.saveEvent(ctx, userID, event); err != nil {
			return b.internalError(userID, "save the event", err)
		}
		return "✅ " + describeSavedEvent(event, loc)

	case "list":
		events, err := b.store.GetEvents(ctx, userID)
		if err != nil {
			return b.internalError(userID, "load your events", err)
		}
		return formatEventList(events, b.userLocation(ctx, userID), b.now())

	case "delete":
		id, err := uuid.Parse(opts.String("event"))
		if err != nil {
			return "Error: pick an event from the list"
		}
		err = b.store.RemoveEvent(ctx, userID, id)
		if errors.Is(err, db.ErrNotFound) {
			return "Error: event not found"
		}
		if err != nil {
			return b.internalError(userID, "delete the event", err)
		}
		return "🗑️ Event deleted."

	case "new":
		return b.startEventFlow(userID) + "\nReply to me in a direct message."
	}
	return "Error: unknown subcommand"
}

// saveEvent stores the event and wakes the reminder checker when it has
// something to do today.
func (b *Bot) saveEvent(ctx context.Context, userID string, event *models.Event) error {
	if err := b.store.UpsertEvent(ctx, userID, event); err != nil {
		b.log.Error("failed to save event", append(logger.ErrFields(err), zap.String("user_id", userID))...)
		return err
	}
	if b.reminders != nil && event.ReminderMinutes != nil {
		if err := b.reminders.EnsureStarted(ctx); err != nil {
			b.log.Warn("failed to start reminder checker", logger.ErrFields(err)...)
		}
	}
	return nil
}

func (b *Bot) handleSettings(ctx context.Context, userID, sub string, opts options) string {
	var patch models.SettingsPatch

	switch sub {
	case "show":
		settings, err := b.store.GetSettings(ctx, userID)
		if err != nil {
			return b.internalError(userID, "load your settings", err)
		}
		user, err := b.store.GetUserByPlatformID(ctx, userID)
		if err != nil {
			return b.internalError(userID, "load your profile", err)
		}
		return formatSettings(settings, user)

	case "digest":
		enabled, _ := opts.Bool("enabled")
		patch.DailyDigest = &enabled

	case "digest_time":
		hour, minute, err := digest.ParseClock(opts.String("time"))
		if err != nil {
			return "Error: use HH:MM, for example `08:30`"
		}
		clock := fmt.Sprintf("%02d:%02d", hour, minute)
		patch.DailyDigestTime = &clock

	case "reminder":
		minutes, _ := opts.Int("minutes")
		if minutes < 0 {
			return "Error: minutes cannot be negative"
		}
		patch.ReminderMinutes = &minutes

	case "timezone":
		zone := opts.String("zone")
		if _, err := time.LoadLocation(zone); err != nil || zone == "" {
			return "Error: unknown timezone. Use an IANA name such as `Europe/Moscow`."
		}
		patch.Timezone = &zone

	case "pomodoro":
		if v, ok := opts.Int("work"); ok && v > 0 {
			patch.PomodoroWorkMinutes = &v
		}
		if v, ok := opts.Int("break"); ok && v > 0 {
			patch.PomodoroBreakMinutes = &v
		}
		if v, ok := opts.Int("cycles"); ok && v > 0 {
			patch.PomodoroCycles = &v
		}
		if patch == (models.SettingsPatch{}) {
			return "Error: give at least one of work, break or cycles"
		}

	case "delivery":
		return b.setDelivery(ctx, userID, opts.String("channel"), opts.String("address"))

	default:
		return "Error: unknown subcommand"
	}

	settings, err := b.store.UpdateSettings(ctx, userID, patch)
	if err != nil {
		return b.internalError(userID, "save your settings", err)
	}
	if b.digest != nil {
		if err := b.digest.EnsureDailyJob(ctx, userID); err != nil {
			b.log.Warn("failed to reschedule digest", append(logger.ErrFields(err), zap.String("user_id", userID))...)
		}
	}

	user, err := b.store.GetUserByPlatformID(ctx, userID)
	if err != nil {
		return b.internalError(userID, "load your profile", err)
	}
	return "✅ Settings saved.\n\n" + formatSettings(settings, user)
}

func (b *Bot) setDelivery(ctx context.Context, userID, channel, address string) string {
	switch channel {
	case models.DeliveryDiscord:
		address = ""
	case models.DeliveryTelegram, models.DeliverySlack:
		if address == "" {
			return fmt.Sprintf("Error: %s delivery needs an address", channel)
		}
	default:
		return "Error: unknown delivery channel"
	}

	if err := b.store.SetDelivery(ctx, userID, channel, address); err != nil {
		return b.internalError(userID, "save your delivery channel", err)
	}
	return fmt.Sprintf("✅ Notifications will be delivered via %s.", channel)
}

func formatSettings(s *models.Settings, u *models.User) string {
	digestState := "off"
	if s.DailyDigest {
		digestState = "on at " + s.DailyDigestTime
	}
	delivery := u.Delivery
	if delivery == "" {
		delivery = models.DeliveryDiscord
	}
	if u.ChatID != nil && *u.ChatID != "" {
		delivery += " (" + *u.ChatID + ")"
	}

	return formatTable([]string{"Setting", "Value"}, [][]string{
		{"Daily digest", digestState},
		{"Reminder lead", fmt.Sprintf("%d min", s.ReminderMinutes)},
		{"Timezone", s.Timezone},
		{"Pomodoro", fmt.Sprintf("%d/%d min x%d", s.PomodoroWorkMinutes, s.PomodoroBreakMinutes, s.PomodoroCycles)},
		{"Delivery", delivery},
	})
}

func formatTaskList(tasks []*models.Task, loc *time.Location, now time.Time) string {
	if len(tasks) == 0 {
		return "You have no tasks. Create one with `/task add`."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 **Your tasks (%d):**\n", len(tasks)))
	for _, t := range tasks {
		mark := "⬜"
		if t.Completed {
			mark = "✅"
		}
		sb.WriteString(fmt.Sprintf("%s %s", mark, t.Title))
		if t.DueDate != nil {
			sb.WriteString(" (due " + t.DueDate.In(loc).Format(displayLayout) + ")")
			if !t.Completed && t.DueDate.Before(now) {
				sb.WriteString(" ⚠️ overdue")
			}
		}
		if t.Description != "" {
			sb.WriteString("\n   " + t.Description)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatEventList shows events that have not started yet, soonest first.
func formatEventList(events []*models.Event, loc *time.Location, now time.Time) string {
	var upcoming []*models.Event
	for _, e := range events {
		if e.At.After(now) {
			upcoming = append(upcoming, e)
		}
	}
	if len(upcoming) == 0 {
		return "You have no upcoming events. Create one with `/event add`."
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].At.Before(upcoming[j].At) })

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📆 **Upcoming events (%d):**\n", len(upcoming)))
	for _, e := range upcoming {
		sb.WriteString(fmt.Sprintf("• %s %s", e.At.In(loc).Format(displayLayout), e.Title))
		if e.ReminderMinutes != nil {
			sb.WriteString(fmt.Sprintf(" (reminder %d min before)", *e.ReminderMinutes))
		}
		if e.Description != "" {
			sb.WriteString("\n   " + e.Description)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	if user == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	choices := b.autocomplete(ctx, user.ID, i.ApplicationCommandData())
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: choices,
		},
	})
	if err != nil {
		b.log.Warn("error responding to autocomplete", zap.Error(err), zap.String("user_id", user.ID))
	}
}

// autocomplete offers the user's tasks or events matching the focused option.
func (b *Bot) autocomplete(ctx context.Context, userID string, data discordgo.ApplicationCommandInteractionData) []*discordgo.ApplicationCommandOptionChoice {
	if len(data.Options) == 0 {
		return nil
	}
	sub := data.Options[0]

	var focused *discordgo.ApplicationCommandInteractionDataOption
	for _, opt := range sub.Options {
		if opt.Focused {
			focused = opt
			break
		}
	}
	if focused == nil || focused.Type != discordgo.ApplicationCommandOptionString {
		return nil
	}
	input := strings.ToLower(focused.StringValue())

	choices := []*discordgo.ApplicationCommandOptionChoice{}
	add := func(name string, id uuid.UUID) bool {
		if !strings.Contains(strings.ToLower(name), input) {
			return true
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  truncateString(name, 100),
			Value: id.String(),
		})
		return len(choices) < 25 // Discord limit
	}

	loc := b.userLocation(ctx, userID)
	switch focused.Name {
	case "task":
		tasks, err := b.store.GetTasks(ctx, userID, sub.Name == "undo" || sub.Name == "delete")
		if err != nil {
			b.log.Warn("failed to load tasks for autocomplete", append(logger.ErrFields(err), zap.String("user_id", userID))...)
			return nil
		}
		for _, t := range tasks {
			if sub.Name == "undo" && !t.Completed {
				continue
			}
			name := t.Title
			if t.Completed {
				name += " (completed)"
			}
			if !add(name, t.ID) {
				break
			}
		}

	case "event":
		events, err := b.store.GetEvents(ctx, userID)
		if err != nil {
			b.log.Warn("failed to load events for autocomplete", append(logger.ErrFields(err), zap.String("user_id", userID))...)
			return nil
		}
		for _, e := range events {
			if !add(e.At.In(loc).Format("02 Jan 15:04")+" "+e.Title, e.ID) {
				break
			}
		}
	}
	return choices
}
