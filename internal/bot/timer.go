package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"focusbot/internal/db"
	"focusbot/internal/db/models"
	"focusbot/internal/notify"
	"focusbot/internal/pomodoro"

	"github.com/google/uuid"
)

// SettingsReader is the part of the store the timer renderer needs.
type SettingsReader interface {
	GetSettings(ctx context.Context, platformID string) (*models.Settings, error)
}

// TimerRenderer posts the timer screen each time a phase begins, with
// clock times in the user's zone.
func TimerRenderer(settings SettingsReader, fallback *time.Location) pomodoro.RenderFunc {
	return func(ctx context.Context, conv pomodoro.Conversation, s pomodoro.Snapshot) error {
		if conv == nil {
			return nil
		}
		loc := fallback
		if st, err := settings.GetSettings(ctx, s.UserID); err == nil {
			if l, err := time.LoadLocation(st.Timezone); err == nil && st.Timezone != "" {
				loc = l
			}
		}
		return conv.Reply(ctx, timerText(s, loc), notify.Options{Format: notify.FormatMarkdown})
	}
}

func timerText(s pomodoro.Snapshot, loc *time.Location) string {
	mode := "free focus"
	if s.TaskTitle != "" {
		mode = fmt.Sprintf("task \"%s\"", s.TaskTitle)
	}

	phase := fmt.Sprintf("🍅 work until %s", s.PhaseEndsAt.In(loc).Format("15:04"))
	if s.Phase == pomodoro.PhaseBreak {
		phase = fmt.Sprintf("☕ break until %s", s.PhaseEndsAt.In(loc).Format("15:04"))
	}

	return strings.Join([]string{
		"⌛ *Pomodoro running*",
		"Mode: " + mode,
		fmt.Sprintf("Cycle: %d/%d", s.Cycle, s.Cycles),
		"Phase: " + phase,
		fmt.Sprintf("Intervals: %d min work / %d min break", s.WorkMinutes, s.BreakMinutes),
	}, "\n")
}

func (b *Bot) handlePomodoro(ctx context.Context, userID, sub string, opts options) string {
	switch sub {
	case "start":
		return b.startPomodoro(ctx, userID, opts)

	case "stop":
		if !b.pomodoro.Stop(ctx, userID, false) {
			return "No pomodoro is running."
		}
		return "⏹️ Pomodoro stopped."

	case "status":
		snap, ok := b.pomodoro.Get(userID)
		if !ok {
			return "No pomodoro is running. Start one with `/pomodoro start`."
		}
		remaining := snap.PhaseEndsAt.Sub(b.now())
		if remaining < 0 {
			remaining = 0
		}
		return timerText(snap, b.userLocation(ctx, userID)) +
			fmt.Sprintf("\nRemaining in phase: %s", formatDuration(remaining))
	}
	return "Error: unknown subcommand"
}

// startPomodoro fills unset intervals from the user's settings.
func (b *Bot) startPomodoro(ctx context.Context, userID string, opts options) string {
	settings, err := b.store.GetSettings(ctx, userID)
	if err != nil {
		return b.internalError(userID, "load your settings", err)
	}

	cfg := pomodoro.Config{
		WorkMinutes:  settings.PomodoroWorkMinutes,
		BreakMinutes: settings.PomodoroBreakMinutes,
		Cycles:       settings.PomodoroCycles,
	}
	if v, ok := opts.Int("work"); ok {
		cfg.WorkMinutes = v
	}
	if v, ok := opts.Int("break"); ok {
		cfg.BreakMinutes = v
	}
	if v, ok := opts.Int("cycles"); ok {
		cfg.Cycles = v
	}

	var task *models.Task
	if raw := opts.String("task"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return "Error: pick a task from the list"
		}
		task, err = b.store.GetTask(ctx, userID, id)
		if errors.Is(err, db.ErrNotFound) {
			return "Error: task not found"
		}
		if err != nil {
			return b.internalError(userID, "load the task", err)
		}
	}

	conv := pomodoro.SenderConversation(b.sender, userID)
	if err := b.pomodoro.Start(ctx, userID, conv, task, cfg); err != nil {
		return b.internalError(userID, "start the pomodoro", err)
	}

	snap, ok := b.pomodoro.Get(userID)
	if !ok {
		return "🍅 Pomodoro started."
	}
	target := "free focus"
	if task != nil {
		target = fmt.Sprintf("\"%s\"", task.Title)
	}
	return fmt.Sprintf("🍅 Pomodoro started for %s: %d/%d min, %d cycles. Updates arrive in your notifications.",
		target, snap.WorkMinutes, snap.BreakMinutes, snap.Cycles)
}
