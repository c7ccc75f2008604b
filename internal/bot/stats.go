package bot

import (
	"context"
	"fmt"
	"time"

	"focusbot/internal/db/models"
)

// statsPeriod returns the bounds [from, to) of the period containing now in
// loc. Weeks start on Monday.
func statsPeriod(period string, now time.Time, loc *time.Location) (time.Time, time.Time, string) {
	today, tomorrow := models.DayBounds(now, loc)

	switch period {
	case "week":
		offset := (int(today.Weekday()) + 6) % 7
		from := today.AddDate(0, 0, -offset)
		return from, from.AddDate(0, 0, 7), "this week"
	case "month":
		from := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 1, 0), "this month"
	default:
		return today, tomorrow, "today"
	}
}

func (b *Bot) handleStats(ctx context.Context, userID string, opts options) string {
	loc := b.userLocation(ctx, userID)
	from, to, label := statsPeriod(opts.String("period"), b.now(), loc)

	tasks, err := b.store.GetTaskStats(ctx, userID)
	if err != nil {
		return b.internalError(userID, "load your statistics", err)
	}
	focus, err := b.store.GetPomodoroStats(ctx, userID, from, to)
	if err != nil {
		return b.internalError(userID, "load your statistics", err)
	}

	return formatStats(tasks, focus, label)
}

func formatStats(tasks models.TaskStats, focus models.PomodoroStats, label string) string {
	rows := [][]string{
		{"Tasks total", fmt.Sprint(tasks.Total)},
		{"Completed", fmt.Sprint(tasks.Completed)},
		{"Active", fmt.Sprint(tasks.Active)},
		{"Completion rate", fmt.Sprintf("%d%%", tasks.CompletionRate)},
		{"Pomodoros " + label, fmt.Sprint(focus.Sessions)},
		{"Cycles " + label, fmt.Sprint(focus.Cycles)},
		{"Focus time " + label, formatDuration(time.Duration(focus.WorkMinutes) * time.Minute)},
	}
	return fmt.Sprintf("📊 **Your statistics** (%.1f h focused %s)\n", focus.Hours(), label) +
		formatTable([]string{"Metric", "Value"}, rows)
}
