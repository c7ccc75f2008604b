package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"focusbot/internal/config"
	"focusbot/internal/db/memory"
	"focusbot/internal/db/models"
	"focusbot/internal/digest"
	"focusbot/internal/notify"
	"focusbot/internal/pomodoro"
	"focusbot/internal/reminder"
	"focusbot/internal/schedule"

	"github.com/bwmarrin/discordgo"
	"github.com/m-mizutani/gt"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 11, 9, 30, 0, 0, time.UTC) // Wednesday

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (s *recordingSender) SendMessageToUser(ctx context.Context, userID string, text string, opts notify.Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[string][]string)
	}
	s.sent[userID] = append(s.sent[userID], text)
	return nil
}

type fixture struct {
	bot    *Bot
	store  *memory.Store
	sched  *schedule.Fake
	sender *recordingSender
	digest *digest.Scheduler
	remind *reminder.Checker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Scheduler.DefaultTimezone = "UTC"

	sched := schedule.NewFake(t0, "UTC")
	store := memory.New("UTC", memory.WithClock(sched.Now))
	sender := &recordingSender{}
	log := zap.NewNop()

	pm := pomodoro.NewManager(store, sched, log, pomodoro.WithRenderer(TimerRenderer(store, time.UTC)))
	ds := digest.New(store, sched, sender, log, "UTC")
	rc := reminder.New(store, sender, log, time.UTC, reminder.WithClock(sched.Now))

	b := New(cfg, nil, Services{
		Store:     store,
		Pomodoro:  pm,
		Digest:    ds,
		Reminders: rc,
		Sender:    sender,
	}, log)
	b.now = sched.Now

	return &fixture{bot: b, store: store, sched: sched, sender: sender, digest: ds, remind: rc}
}

func command(name, sub string, opts ...*discordgo.ApplicationCommandInteractionDataOption) discordgo.ApplicationCommandInteractionData {
	data := discordgo.ApplicationCommandInteractionData{Name: name}
	if sub != "" {
		data.Options = []*discordgo.ApplicationCommandInteractionDataOption{{
			Type:    discordgo.ApplicationCommandOptionSubCommand,
			Name:    sub,
			Options: opts,
		}}
	} else {
		data.Options = opts
	}
	return data
}

func str(name, v string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Type: discordgo.ApplicationCommandOptionString, Name: name, Value: v}
}

func num(name string, v int) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Type: discordgo.ApplicationCommandOptionInteger, Name: name, Value: float64(v)}
}

func flag(name string, v bool) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Type: discordgo.ApplicationCommandOptionBoolean, Name: name, Value: v}
}

func TestParseDate(t *testing.T) {
	moscow, err := time.LoadLocation("Europe/Moscow")
	gt.NoError(t, err).Required()

	testCases := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"dotted with time", "25.11.2025 18:00", time.Date(2025, 11, 25, 18, 0, 0, 0, moscow)},
		{"dotted date only", "25.11.2025", time.Date(2025, 11, 25, 23, 59, 0, 0, moscow)},
		{"iso with time", "2025-11-25 07:05", time.Date(2025, 11, 25, 7, 5, 0, 0, moscow)},
		{"iso date only", " 2025-11-25 ", time.Date(2025, 11, 25, 23, 59, 0, 0, moscow)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseDate(tc.input, moscow)
			gt.NoError(t, err).Required()
			gt.Bool(t, got.Equal(tc.want)).True()
		})
	}

	t.Run("rejects free text", func(t *testing.T) {
		_, err := parseDate("next tuesday", moscow)
		gt.Error(t, err).Is(ErrInvalidDate)
	})
}

func TestSessionStore(t *testing.T) {
	s := NewSessionStore()
	_, ok := s.GetSession("u1")
	gt.Bool(t, ok).False()

	s.SetSession("u1", &Flow{Kind: FlowTask, Step: StepTitle, Task: &TaskDraft{}})
	f, ok := s.GetSession("u1")
	gt.Bool(t, ok).True()
	gt.Value(t, f.Kind).Equal(FlowTask)

	s.SetSession("u1", &Flow{Kind: FlowEvent, Step: StepTitle, Event: &EventDraft{}})
	f, _ = s.GetSession("u1")
	gt.Value(t, f.Kind).Equal(FlowEvent)

	s.ClearSession("u1")
	_, ok = s.GetSession("u1")
	gt.Bool(t, ok).False()
}

func TestTaskFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	reply := f.bot.dispatch(ctx, "u1", command("task", "new"))
	gt.String(t, reply).Contains("title")

	_, handled := f.bot.HandleText(ctx, "u2", "not in a flow")
	gt.Bool(t, handled).False()

	reply, _ = f.bot.HandleText(ctx, "u1", "Write report")
	gt.String(t, reply).Contains("description")
	reply, _ = f.bot.HandleText(ctx, "u1", "-")
	gt.String(t, reply).Contains("due")
	reply, _ = f.bot.HandleText(ctx, "u1", "sometime soon")
	gt.String(t, reply).Contains("could not read")
	reply, _ = f.bot.HandleText(ctx, "u1", "12.03.2026")
	gt.String(t, reply).Contains(`Task "Write report" saved, due 12 Mar 2026 23:59`)

	_, ok := f.bot.flows.GetSession("u1")
	gt.Bool(t, ok).False()

	tasks, err := f.store.GetTasks(ctx, "u1", false)
	gt.NoError(t, err).Required()
	gt.Array(t, tasks).Length(1)
	gt.Value(t, tasks[0].Description).Equal("")
	gt.Value(t, *tasks[0].DueDate).Equal(time.Date(2026, 3, 12, 23, 59, 0, 0, time.UTC))
}

func TestEventFlowStartsReminders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.bot.dispatch(ctx, "u1", command("event", "new"))
	f.bot.HandleText(ctx, "u1", "Standup")
	reply, _ := f.bot.HandleText(ctx, "u1", "11.03.2026 11:00")
	gt.String(t, reply).Contains("minutes")
	reply, _ = f.bot.HandleText(ctx, "u1", "soon")
	gt.String(t, reply).Contains("whole number")

	gt.Bool(t, f.remind.Active()).False()
	reply, _ = f.bot.HandleText(ctx, "u1", "15")
	gt.String(t, reply).Contains("remind you 15 min before")
	gt.Bool(t, f.remind.Active()).True()

	events, err := f.store.GetEvents(ctx, "u1")
	gt.NoError(t, err).Required()
	gt.Array(t, events).Length(1)
	gt.Value(t, *events[0].ReminderMinutes).Equal(15)
}

func TestFlowCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.bot.dispatch(ctx, "u1", command("task", "new"))
	f.bot.HandleText(ctx, "u1", "Half done")
	reply, handled := f.bot.HandleText(ctx, "u1", "Cancel")
	gt.Bool(t, handled).True()
	gt.Value(t, reply).Equal("Cancelled.")

	tasks, err := f.store.GetTasks(ctx, "u1", true)
	gt.NoError(t, err).Required()
	gt.Array(t, tasks).Length(0)
}

func TestConcurrentMessagesAdvanceFlowInTurn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.bot.startTaskFlow("u1")

	var wg sync.WaitGroup
	replies := make([]string, 2)
	for i := range replies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies[i], _ = f.bot.HandleText(ctx, "u1", "Ship release")
		}(i)
	}
	wg.Wait()

	joined := strings.Join(replies, "\n")
	gt.String(t, joined).Contains("Add a description")
	gt.String(t, joined).Contains("When is it due?")

	flow, ok := f.bot.flows.GetSession("u1")
	gt.Bool(t, ok).True()
	gt.Value(t, flow.Step).Equal(StepDue)
	gt.Value(t, flow.Task.Title).Equal("Ship release")
	gt.Value(t, flow.Task.Description).Equal("Ship release")
}

func TestSessionStoreUpdate(t *testing.T) {
	s := NewSessionStore()
	gt.Bool(t, s.Update("u1", func(*Flow) bool { return false })).False()

	s.SetSession("u1", &Flow{Kind: FlowEvent, Step: StepTitle, Event: &EventDraft{}})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update("u1", func(f *Flow) bool {
				f.Event.Title += "x"
				return false
			})
		}()
	}
	wg.Wait()

	f, ok := s.GetSession("u1")
	gt.Bool(t, ok).True()
	gt.Value(t, f.Event.Title).Equal(strings.Repeat("x", 20))

	// Copies handed out do not alias the stored flow.
	f.Event.Title = "changed"
	again, _ := s.GetSession("u1")
	gt.Value(t, again.Event.Title).Equal(strings.Repeat("x", 20))

	gt.Bool(t, s.Update("u1", func(*Flow) bool { return true })).True()
	_, ok = s.GetSession("u1")
	gt.Bool(t, ok).False()
}

func TestTaskCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	reply := f.bot.dispatch(ctx, "u1", command("task", "add", str("title", "Pay rent"), str("due", "2026-03-10 12:00")))
	gt.String(t, reply).Contains("Pay rent")

	reply = f.bot.dispatch(ctx, "u1", command("task", "add", str("title", "Bad"), str("due", "tomorrow")))
	gt.String(t, reply).Contains("Error")

	reply = f.bot.dispatch(ctx, "u1", command("task", "list"))
	gt.String(t, reply).Contains("overdue")

	tasks, err := f.store.GetTasks(ctx, "u1", false)
	gt.NoError(t, err).Required()
	gt.Array(t, tasks).Length(1)
	id := tasks[0].ID.String()

	reply = f.bot.dispatch(ctx, "u2", command("task", "done", str("task", id)))
	gt.Value(t, reply).Equal("Error: task not found")

	reply = f.bot.dispatch(ctx, "u1", command("task", "done", str("task", id)))
	gt.Value(t, reply).Equal("✅ Task completed.")

	reply = f.bot.dispatch(ctx, "u1", command("task", "list"))
	gt.String(t, reply).Contains("no tasks")
	reply = f.bot.dispatch(ctx, "u1", command("task", "list", flag("all", true)))
	gt.String(t, reply).Contains("✅ Pay rent")

	reply = f.bot.dispatch(ctx, "u1", command("task", "undo", str("task", id)))
	gt.String(t, reply).Contains("active again")

	reply = f.bot.dispatch(ctx, "u1", command("task", "delete", str("task", id)))
	gt.Value(t, reply).Equal("🗑️ Task deleted.")
	reply = f.bot.dispatch(ctx, "u1", command("task", "delete", str("task", "not-a-uuid")))
	gt.String(t, reply).Contains("pick a task")
}

func TestEventAddUsesDefaultReminder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	reply := f.bot.dispatch(ctx, "u1", command("event", "add", str("title", "Dentist"), str("when", "11.03.2026 17:00")))
	gt.String(t, reply).Contains("30 min before")
	gt.Bool(t, f.remind.Active()).True()

	reply = f.bot.dispatch(ctx, "u1", command("event", "add", str("title", "Quiet"), str("when", "20.03.2026 17:00"), num("reminder", 0)))
	gt.Bool(t, strings.Contains(reply, "remind")).False()

	reply = f.bot.dispatch(ctx, "u1", command("event", "list"))
	gt.String(t, reply).Contains("Upcoming events (2)")
	gt.Bool(t, strings.Index(reply, "Dentist") < strings.Index(reply, "Quiet")).True()
}

func TestSettingsReschedulesDigest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.bot.dispatch(ctx, "u1", command("help", ""))
	gt.Bool(t, f.digest.HasJob("u1")).True()

	reply := f.bot.dispatch(ctx, "u1", command("settings", "digest", flag("enabled", false)))
	gt.String(t, reply).Contains("off")
	gt.Bool(t, f.digest.HasJob("u1")).False()

	reply = f.bot.dispatch(ctx, "u1", command("settings", "digest_time", str("time", "25:00")))
	gt.String(t, reply).Contains("HH:MM")

	f.bot.dispatch(ctx, "u1", command("settings", "digest", flag("enabled", true)))
	reply = f.bot.dispatch(ctx, "u1", command("settings", "digest_time", str("time", "7:05")))
	gt.String(t, reply).Contains("on at 07:05")
	gt.Bool(t, f.digest.HasJob("u1")).True()

	reply = f.bot.dispatch(ctx, "u1", command("settings", "timezone", str("zone", "Mars/Olympus")))
	gt.String(t, reply).Contains("unknown timezone")

	reply = f.bot.dispatch(ctx, "u1", command("settings", "pomodoro", num("work", 50)))
	gt.String(t, reply).Contains("50/5 min x4")

	settings, err := f.store.GetSettings(ctx, "u1")
	gt.NoError(t, err).Required()
	gt.Value(t, settings.DailyDigestTime).Equal("07:05")
	gt.Value(t, settings.PomodoroWorkMinutes).Equal(50)
}

func TestSettingsDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	reply := f.bot.dispatch(ctx, "u1", command("settings", "delivery", str("channel", models.DeliveryTelegram)))
	gt.String(t, reply).Contains("needs an address")

	reply = f.bot.dispatch(ctx, "u1", command("settings", "delivery", str("channel", models.DeliveryTelegram), str("address", "12345")))
	gt.String(t, reply).Contains("via telegram")

	user, err := f.store.GetUserByPlatformID(ctx, "u1")
	gt.NoError(t, err).Required()
	gt.Value(t, user.Delivery).Equal(models.DeliveryTelegram)
	gt.Value(t, *user.ChatID).Equal("12345")

	reply = f.bot.dispatch(ctx, "u1", command("settings", "show"))
	gt.String(t, reply).Contains("telegram (12345)")
}

func TestPomodoroCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.bot.dispatch(ctx, "u1", command("task", "add", str("title", "Thesis")))
	tasks, err := f.store.GetTasks(ctx, "u1", false)
	gt.NoError(t, err).Required()

	reply := f.bot.dispatch(ctx, "u1", command("pomodoro", "status"))
	gt.String(t, reply).Contains("No pomodoro")

	reply = f.bot.dispatch(ctx, "u1", command("pomodoro", "start", str("task", tasks[0].ID.String()), num("cycles", 2)))
	gt.String(t, reply).Contains(`"Thesis": 25/5 min, 2 cycles`)

	// The timer screen goes to the user's notifications.
	gt.Array(t, f.sender.sent["u1"]).Length(1)
	gt.String(t, f.sender.sent["u1"][0]).Contains("work until 09:55")

	f.sched.Advance(10 * time.Minute)
	reply = f.bot.dispatch(ctx, "u1", command("pomodoro", "status"))
	gt.String(t, reply).Contains("Cycle: 1/2")
	gt.String(t, reply).Contains("15m 0s")

	reply = f.bot.dispatch(ctx, "u1", command("pomodoro", "stop"))
	gt.Value(t, reply).Equal("⏹️ Pomodoro stopped.")
	reply = f.bot.dispatch(ctx, "u1", command("pomodoro", "stop"))
	gt.Value(t, reply).Equal("No pomodoro is running.")
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.bot.dispatch(ctx, "u1", command("task", "add", str("title", "One")))
	f.bot.dispatch(ctx, "u1", command("task", "add", str("title", "Two")))
	tasks, err := f.store.GetTasks(ctx, "u1", false)
	gt.NoError(t, err).Required()
	f.bot.dispatch(ctx, "u1", command("task", "done", str("task", tasks[0].ID.String())))

	f.bot.dispatch(ctx, "u1", command("pomodoro", "start", num("work", 30), num("break", 5), num("cycles", 1)))
	f.sched.Advance(35 * time.Minute)

	reply := f.bot.dispatch(ctx, "u1", command("stats", "", str("period", "week")))
	gt.String(t, reply).Contains("0.5 h focused this week")
	gt.String(t, reply).Contains("50%")
	gt.String(t, reply).Contains("30m 0s")
}

func TestStatsPeriod(t *testing.T) {
	from, to, label := statsPeriod("week", t0, time.UTC)
	gt.Value(t, label).Equal("this week")
	gt.Value(t, from).Equal(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
	gt.Value(t, to).Equal(time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC))

	from, to, _ = statsPeriod("month", t0, time.UTC)
	gt.Value(t, from).Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	gt.Value(t, to).Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	from, to, label = statsPeriod("", t0, time.UTC)
	gt.Value(t, label).Equal("today")
	gt.Value(t, from).Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC))
	gt.Value(t, to).Equal(time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC))
}

func TestAutocomplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.bot.dispatch(ctx, "u1", command("task", "add", str("title", "Write tests")))
	f.bot.dispatch(ctx, "u1", command("task", "add", str("title", "Read book")))

	focused := str("task", "WRI")
	focused.Focused = true
	choices := f.bot.autocomplete(ctx, "u1", command("task", "done", focused))
	gt.Array(t, choices).Length(1)
	gt.Value(t, choices[0].Name).Equal("Write tests")

	choices = f.bot.autocomplete(ctx, "u1", command("task", "undo", focused))
	gt.Array(t, choices).Length(0)
}

func TestFormatTable(t *testing.T) {
	table := formatTable([]string{"A", "Long"}, [][]string{{"xyz", "1"}})
	gt.Value(t, table).Equal("```\nA    Long  \n-----------\nxyz  1     \n```")
}

func TestFormatDuration(t *testing.T) {
	gt.Value(t, formatDuration(90*time.Minute+5*time.Second)).Equal("1h 30m 5s")
	gt.Value(t, formatDuration(61*time.Second)).Equal("1m 1s")
	gt.Value(t, formatDuration(400*time.Millisecond)).Equal("0s")
}
