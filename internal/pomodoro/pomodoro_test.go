package pomodoro_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"focusbot/internal/db/memory"
	"focusbot/internal/db/models"
	"focusbot/internal/notify"
	"focusbot/internal/pomodoro"
	"focusbot/internal/schedule"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type recordingConversation struct {
	replies []string
}

func (c *recordingConversation) Reply(ctx context.Context, text string, opts notify.Options) error {
	c.replies = append(c.replies, text)
	return nil
}

type failingUpdates struct {
	*memory.Store
}

func (f failingUpdates) UpdatePomodoroSession(ctx context.Context, id uuid.UUID, patch models.PomodoroPatch) error {
	return errors.New("database is down")
}

func newManager(t *testing.T, store pomodoro.Store, opts ...pomodoro.Option) (*pomodoro.Manager, *schedule.Fake) {
	t.Helper()
	sched := schedule.NewFake(t0, "UTC")
	return pomodoro.NewManager(store, sched, zap.NewNop(), opts...), sched
}

func TestPhasesAlternateUntilComplete(t *testing.T) {
	ctx := context.Background()
	store := memory.New("UTC", memory.WithClock(func() time.Time { return t0 }))
	var phases []pomodoro.Phase
	render := func(ctx context.Context, conv pomodoro.Conversation, s pomodoro.Snapshot) error {
		phases = append(phases, s.Phase)
		return nil
	}
	m, sched := newManager(t, store, pomodoro.WithRenderer(render))
	conv := &recordingConversation{}

	gt.NoError(t, m.Start(ctx, "u1", conv, nil, pomodoro.Config{WorkMinutes: 1, BreakMinutes: 1, Cycles: 2})).Required()

	snap, ok := m.Get("u1")
	gt.Bool(t, ok).True()
	gt.Value(t, snap.Phase).Equal(pomodoro.PhaseWork)
	gt.Value(t, snap.Cycle).Equal(1)
	gt.Value(t, snap.PhaseEndsAt).Equal(t0.Add(time.Minute))

	sched.Advance(time.Minute)
	snap, _ = m.Get("u1")
	gt.Value(t, snap.Phase).Equal(pomodoro.PhaseBreak)
	gt.Array(t, conv.replies).Length(0)

	sched.Advance(time.Minute)
	snap, _ = m.Get("u1")
	gt.Value(t, snap.Phase).Equal(pomodoro.PhaseWork)
	gt.Value(t, snap.Cycle).Equal(2)
	gt.Array(t, conv.replies).Length(1)
	gt.String(t, conv.replies[0]).Contains("Cycle 1 complete")

	active, err := store.GetActivePomodoroSession(ctx, "u1")
	gt.NoError(t, err).Required()
	gt.Value(t, active.CurrentCycle).Equal(2)

	sched.Advance(2 * time.Minute)
	_, ok = m.Get("u1")
	gt.Bool(t, ok).False()
	gt.Array(t, conv.replies).Length(2)
	gt.String(t, conv.replies[1]).Contains("Pomodoro complete")
	gt.Value(t, phases).Equal([]pomodoro.Phase{pomodoro.PhaseWork, pomodoro.PhaseBreak, pomodoro.PhaseWork, pomodoro.PhaseBreak})
	gt.Number(t, sched.Timers()).Equal(0)

	active, err = store.GetActivePomodoroSession(ctx, "u1")
	gt.NoError(t, err).Required()
	gt.Value(t, active).Nil()

	stats, err := store.GetPomodoroStats(ctx, "u1", t0.Add(-time.Hour), t0.Add(time.Hour))
	gt.NoError(t, err).Required()
	gt.Value(t, stats.Sessions).Equal(1)
	gt.Value(t, stats.Cycles).Equal(2)
}

func TestStopCancelsPendingTransition(t *testing.T) {
	ctx := context.Background()
	store := memory.New("UTC", memory.WithClock(func() time.Time { return t0 }))
	m, sched := newManager(t, store)
	conv := &recordingConversation{}

	gt.NoError(t, m.Start(ctx, "u1", conv, nil, pomodoro.Config{WorkMinutes: 1, BreakMinutes: 1, Cycles: 2})).Required()
	sched.Advance(30 * time.Second)

	gt.Bool(t, m.Stop(ctx, "u1", true)).True()
	gt.Value(t, conv.replies).Equal([]string{"⏹️ Pomodoro stopped."})
	gt.Number(t, sched.Timers()).Equal(0)

	sched.Advance(time.Hour)
	gt.Array(t, conv.replies).Length(1)

	gt.Bool(t, m.Stop(ctx, "u1", true)).False()
	gt.Array(t, conv.replies).Length(1)

	active, err := store.GetActivePomodoroSession(ctx, "u1")
	gt.NoError(t, err).Required()
	gt.Value(t, active).Nil()

	stats, err := store.GetPomodoroStats(ctx, "u1", t0.Add(-time.Hour), t0.Add(time.Hour))
	gt.NoError(t, err).Required()
	gt.Value(t, stats.Sessions).Equal(0)
}

func TestStartReplacesRunningSession(t *testing.T) {
	ctx := context.Background()
	store := memory.New("UTC")
	m, sched := newManager(t, store)
	first := &recordingConversation{}
	second := &recordingConversation{}

	gt.NoError(t, m.Start(ctx, "u1", first, nil, pomodoro.Config{WorkMinutes: 1, BreakMinutes: 1, Cycles: 1})).Required()
	gt.NoError(t, m.Start(ctx, "u1", second, nil, pomodoro.Config{WorkMinutes: 5, BreakMinutes: 1, Cycles: 1})).Required()

	gt.Number(t, m.Active()).Equal(1)
	gt.Number(t, sched.Timers()).Equal(1)

	sched.Advance(10 * time.Minute)
	gt.Array(t, first.replies).Length(0)
	gt.Array(t, second.replies).Length(1)
}

func TestStartUsesDefaultsForNonPositiveValues(t *testing.T) {
	store := memory.New("UTC")
	m, _ := newManager(t, store)
	task := &models.Task{ID: uuid.New(), Title: "write report"}

	gt.NoError(t, m.Start(context.Background(), "u1", &recordingConversation{}, task, pomodoro.Config{WorkMinutes: 0, BreakMinutes: -3})).Required()

	snap, ok := m.Get("u1")
	gt.Bool(t, ok).True()
	gt.Value(t, snap.WorkMinutes).Equal(25)
	gt.Value(t, snap.BreakMinutes).Equal(5)
	gt.Value(t, snap.Cycles).Equal(4)
	gt.Value(t, snap.TaskTitle).Equal("write report")
	gt.Value(t, snap.PhaseEndsAt).Equal(t0.Add(25 * time.Minute))
}

func TestPersistenceFailureDoesNotHaltSession(t *testing.T) {
	store := failingUpdates{memory.New("UTC")}
	m, sched := newManager(t, store)
	conv := &recordingConversation{}

	gt.NoError(t, m.Start(context.Background(), "u1", conv, nil, pomodoro.Config{WorkMinutes: 1, BreakMinutes: 1, Cycles: 2})).Required()
	sched.Advance(4 * time.Minute)

	_, ok := m.Get("u1")
	gt.Bool(t, ok).False()
	gt.Array(t, conv.replies).Length(2)
	gt.String(t, conv.replies[1]).Contains("Pomodoro complete")
}

func TestRenderFailureIsIgnored(t *testing.T) {
	render := func(ctx context.Context, conv pomodoro.Conversation, s pomodoro.Snapshot) error {
		return errors.New("message too old to edit")
	}
	m, sched := newManager(t, memory.New("UTC"), pomodoro.WithRenderer(render))
	conv := &recordingConversation{}

	gt.NoError(t, m.Start(context.Background(), "u1", conv, nil, pomodoro.Config{WorkMinutes: 1, BreakMinutes: 1, Cycles: 1})).Required()
	sched.Advance(2 * time.Minute)
	gt.Array(t, conv.replies).Length(1)
}

func TestReconcileDeactivatesStaleRows(t *testing.T) {
	ctx := context.Background()
	store := memory.New("UTC")
	gt.NoError(t, store.CreatePomodoroSession(ctx, "u1", &models.PomodoroSession{WorkMinutes: 25, BreakMinutes: 5, Cycles: 4})).Required()

	m, _ := newManager(t, store)
	gt.NoError(t, m.Reconcile(ctx)).Required()

	active, err := store.GetActivePomodoroSession(ctx, "u1")
	gt.NoError(t, err).Required()
	gt.Value(t, active).Nil()
	_, ok := m.Get("u1")
	gt.Bool(t, ok).False()
}
