package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"focusbot/internal/logger"

	"github.com/bwmarrin/discordgo"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"
)

var ErrInvalidDate = goerr.New("unrecognized date")

const displayLayout = "02 Jan 2006 15:04"

// dateLayouts are tried in order. Date-only layouts mean the end of that day.
var dateLayouts = []struct {
	layout   string
	dateOnly bool
}{
	{"02.01.2006 15:04", false},
	{"02.01.2006", true},
	{"2006-01-02 15:04", false},
	{"2006-01-02", true},
}

// parseDate reads user input in loc.
func parseDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, l := range dateLayouts {
		t, err := time.ParseInLocation(l.layout, raw, loc)
		if err != nil {
			continue
		}
		if l.dateOnly {
			t = time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 0, 0, loc)
		}
		return t, nil
	}
	return time.Time{}, goerr.Wrap(ErrInvalidDate, "failed to parse date", goerr.V("input", raw))
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// userLocation returns the zone from the user's settings, or the default zone.
func (b *Bot) userLocation(ctx context.Context, userID string) *time.Location {
	settings, err := b.store.GetSettings(ctx, userID)
	if err != nil {
		b.log.Warn("failed to load settings", append(logger.ErrFields(err), zap.String("user_id", userID))...)
		return b.config.Location()
	}
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil || settings.Timezone == "" {
		return b.config.Location()
	}
	return loc
}

// interactionUser returns the invoking user for both guild and DM interactions.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// options indexes a subcommand's options by name.
type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionsOf(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	m := make(options, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (o options) String(name string) string {
	if v, ok := o[name]; ok && v.Type == discordgo.ApplicationCommandOptionString {
		return strings.TrimSpace(v.StringValue())
	}
	return ""
}

func (o options) Int(name string) (int, bool) {
	if v, ok := o[name]; ok && v.Type == discordgo.ApplicationCommandOptionInteger {
		return int(v.IntValue()), true
	}
	return 0, false
}

func (o options) Bool(name string) (bool, bool) {
	if v, ok := o[name]; ok && v.Type == discordgo.ApplicationCommandOptionBoolean {
		return v.BoolValue(), true
	}
	return false, false
}

// logCommand records who ran which command with which parameters.
func (b *Bot) logCommand(userID string, data discordgo.ApplicationCommandInteractionData) {
	var params []string
	for _, opt := range data.Options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionSubCommand:
			params = append(params, opt.Name)
			for _, subOpt := range opt.Options {
				params = append(params, fmt.Sprintf("%s:%v", subOpt.Name, subOpt.Value))
			}
		default:
			params = append(params, fmt.Sprintf("%s:%v", opt.Name, opt.Value))
		}
	}

	b.log.Info("command executed",
		zap.String("user_id", userID),
		zap.String("command", data.Name),
		zap.Strings("params", params),
	)
}

// formatTable creates a Discord-friendly table with fixed-width columns
func formatTable(headers []string, rows [][]string) string {
	// Find the maximum width for each column
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var result strings.Builder

	result.WriteString("```\n")
	for i, header := range headers {
		result.WriteString(fmt.Sprintf("%-*s", widths[i]+2, header))
	}
	result.WriteString("\n")

	for _, width := range widths {
		result.WriteString(strings.Repeat("-", width+2))
	}
	result.WriteString("\n")

	for _, row := range rows {
		for i, cell := range row {
			result.WriteString(fmt.Sprintf("%-*s", widths[i]+2, cell))
		}
		result.WriteString("\n")
	}
	result.WriteString("```")

	return result.String()
}
