package db_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"focusbot/internal/db"
	"focusbot/internal/db/memory"
	"focusbot/internal/db/models"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
)

const testTZ = "Europe/Moscow"

func newPlatformID(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("user-%d", time.Now().UnixNano())
}

func runStoreTest(t *testing.T, newStore func(t *testing.T) db.Store) {
	t.Helper()

	t.Run("EnsureUser is idempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		pid := newPlatformID(t)

		first, err := store.EnsureUser(ctx, pid)
		gt.NoError(t, err).Required()
		second, err := store.EnsureUser(ctx, pid)
		gt.NoError(t, err).Required()

		gt.Value(t, second.ID).Equal(first.ID)
		gt.Value(t, first.Delivery).Equal(models.DeliveryDiscord)
	})

	t.Run("GetUserByPlatformID returns ErrNotFound for unknown user", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetUserByPlatformID(context.Background(), newPlatformID(t))
		gt.Error(t, err).Is(db.ErrNotFound)
	})

	t.Run("SetDelivery stores the chat address", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		pid := newPlatformID(t)

		gt.NoError(t, store.SetDelivery(ctx, pid, models.DeliveryTelegram, "12345")).Required()
		user, err := store.GetUserByPlatformID(ctx, pid)
		gt.NoError(t, err).Required()
		gt.Value(t, user.Delivery).Equal(models.DeliveryTelegram)
		gt.Value(t, user.ChatID).NotNil()
		gt.Value(t, *user.ChatID).Equal("12345")

		gt.NoError(t, store.SetDelivery(ctx, pid, models.DeliveryDiscord, "ignored")).Required()
		user, err = store.GetUserByPlatformID(ctx, pid)
		gt.NoError(t, err).Required()
		gt.Value(t, user.ChatID).Nil()
	})

	t.Run("GetTasks orders incomplete first then by due date", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		pid := newPlatformID(t)
		now := time.Now().Truncate(time.Second)

		later := now.Add(48 * time.Hour)
		sooner := now.Add(2 * time.Hour)
		undated := &models.Task{Title: "undated"}
		dueLater := &models.Task{Title: "later", DueDate: &later}
		dueSooner := &models.Task{Title: "sooner", DueDate: &sooner}
		done := &models.Task{Title: "done", DueDate: &sooner}
		for _, task := range []*models.Task{undated, dueLater, dueSooner, done} {
			gt.NoError(t, store.UpsertTask(ctx, pid, task)).Required()
			gt.Value(t, task.ID).NotEqual(uuid.Nil)
		}
		gt.NoError(t, store.CompleteTask(ctx, pid, done.ID)).Required()

		active, err := store.GetTasks(ctx, pid, false)
		gt.NoError(t, err).Required()
		gt.Array(t, active).Length(3)
		gt.Value(t, active[0].Title).Equal("sooner")
		gt.Value(t, active[1].Title).Equal("later")
		gt.Value(t, active[2].Title).Equal("undated")

		all, err := store.GetTasks(ctx, pid, true)
		gt.NoError(t, err).Required()
		gt.Array(t, all).Length(4)
		gt.Value(t, all[3].Title).Equal("done")
		gt.Bool(t, all[3].Completed).True()
		gt.Value(t, all[3].CompletedAt).NotNil()
	})

	t.Run("tasks of another user are not reachable", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		owner := newPlatformID(t)
		other := newPlatformID(t) + "-other"

		task := &models.Task{Title: "private"}
		gt.NoError(t, store.UpsertTask(ctx, owner, task)).Required()
		_, err := store.EnsureUser(ctx, other)
		gt.NoError(t, err).Required()

		gt.Error(t, store.CompleteTask(ctx, other, task.ID)).Is(db.ErrNotFound)
		gt.Error(t, store.RemoveTask(ctx, other, task.ID)).Is(db.ErrNotFound)
	})

	t.Run("UpsertTask updates an existing task", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		pid := newPlatformID(t)

		task := &models.Task{Title: "draft"}
		gt.NoError(t, store.UpsertTask(ctx, pid, task)).Required()
		task.Title = "final"
		task.Description = "with notes"
		gt.NoError(t, store.UpsertTask(ctx, pid, task)).Required()

		got, err := store.GetTask(ctx, pid, task.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Title).Equal("final")
		gt.Value(t, got.Description).Equal("with notes")
	})

	t.Run("UncompleteTask clears completion and stats follow", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		pid := newPlatformID(t)

		a := &models.Task{Title: "a"}
		b := &models.Task{Title: "b"}
		gt.NoError(t, store.UpsertTask(ctx, pid, a)).Required()
		gt.NoError(t, store.UpsertTask(ctx, pid, b)).Required()
		gt.NoError(t, store.CompleteTask(ctx, pid, a.ID)).Required()

		stats, err := store.GetTaskStats(ctx, pid)
		gt.NoError(t, err).Required()
		gt.Value(t, stats).Equal(models.TaskStats{Total: 2, Completed: 1, Active: 1, CompletionRate: 50})

		gt.NoError(t, store.UncompleteTask(ctx, pid, a.ID)).Required()
		got, err := store.GetTask(ctx, pid, a.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, got.Completed).False()
		gt.Value(t, got.CompletedAt).Nil()
	})

	t.Run("CleanupOldCompletedTasks removes only completed tasks before the cutoff", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		pid := newPlatformID(t)

		done := &models.Task{Title: "done"}
		open := &models.Task{Title: "open"}
		gt.NoError(t, store.UpsertTask(ctx, pid, done)).Required()
		gt.NoError(t, store.UpsertTask(ctx, pid, open)).Required()
		gt.NoError(t, store.CompleteTask(ctx, pid, done.ID)).Required()

		_, err := store.CleanupOldCompletedTasks(ctx, time.Now().AddDate(0, 0, -7))
		gt.NoError(t, err).Required()
		_, err = store.GetTask(ctx, pid, done.ID)
		gt.NoError(t, err)

		n, err := store.CleanupOldCompletedTasks(ctx, time.Now().Add(time.Hour))
		gt.NoError(t, err).Required()
		gt.Bool(t, n >= 1).True()
		_, err = store.GetTask(ctx, pid, done.ID)
		gt.Error(t, err).Is(db.ErrNotFound)
		_, err = store.GetTask(ctx, pid, open.ID)
		gt.NoError(t, err)
	})

	t.Run("remindable events need a lead and fall in the range", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		pid := newPlatformID(t)
		base := time.Date(2031, 3, 14, 0, 0, 0, 0, time.UTC).Add(time.Duration(time.Now().UnixNano() % int64(time.Hour)))

		lead := 15
		inside := &models.Event{Title: "standup", At: base.Add(10 * time.Hour), ReminderMinutes: &lead}
		noLead := &models.Event{Title: "lunch", At: base.Add(12 * time.Hour)}
		outside := &models.Event{Title: "tomorrow", At: base.Add(30 * time.Hour), ReminderMinutes: &lead}
		for _, e := range []*models.Event{outside, noLead, inside} {
			gt.NoError(t, store.UpsertEvent(ctx, pid, e)).Required()
		}

		from, to := base, base.Add(24*time.Hour)
		events, err := store.ListRemindableEvents(ctx, from, to)
		gt.NoError(t, err).Required()

		var mine []*models.EventWithOwner
		for _, e := range events {
			if e.PlatformID == pid {
				mine = append(mine, e)
			}
		}
		gt.Array(t, mine).Length(1)
		gt.Value(t, mine[0].Event.ID).Equal(inside.ID)
		gt.Value(t, *mine[0].Event.ReminderMinutes).Equal(15)

		n, err := store.CountRemindableEvents(ctx, from, to)
		gt.NoError(t, err).Required()
		gt.Bool(t, n >= 1).True()

		all, err := store.GetEvents(ctx, pid)
		gt.NoError(t, err).Required()
		gt.Array(t, all).Length(3)
		gt.Value(t, all[0].Title).Equal("standup")
		gt.Value(t, all[2].Title).Equal("tomorrow")

		between, err := store.GetEventsBetween(ctx, pid, from, to)
		gt.NoError(t, err).Required()
		gt.Array(t, between).Length(2)

		gt.NoError(t, store.RemoveEvent(ctx, pid, inside.ID)).Required()
		gt.Error(t, store.RemoveEvent(ctx, pid, inside.ID)).Is(db.ErrNotFound)
	})

	t.Run("GetSettings synthesizes defaults", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		s, err := store.GetSettings(ctx, newPlatformID(t))
		gt.NoError(t, err).Required()
		gt.Bool(t, s.DailyDigest).True()
		gt.Value(t, s.DailyDigestTime).Equal("09:00")
		gt.Value(t, s.ReminderMinutes).Equal(30)
		gt.Value(t, s.Timezone).Equal(testTZ)
		gt.Value(t, s.PomodoroWorkMinutes).Equal(25)
		gt.Value(t, s.PomodoroBreakMinutes).Equal(5)
		gt.Value(t, s.PomodoroCycles).Equal(4)
	})

	t.Run("UpdateSettings keeps one row per user", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		pid := newPlatformID(t)

		off := false
		at := "07:30"
		_, err := store.UpdateSettings(ctx, pid, models.SettingsPatch{DailyDigest: &off})
		gt.NoError(t, err).Required()
		updated, err := store.UpdateSettings(ctx, pid, models.SettingsPatch{DailyDigestTime: &at})
		gt.NoError(t, err).Required()
		gt.Bool(t, updated.DailyDigest).False()

		got, err := store.GetSettings(ctx, pid)
		gt.NoError(t, err).Required()
		gt.Bool(t, got.DailyDigest).False()
		gt.Value(t, got.DailyDigestTime).Equal("07:30")
		gt.Value(t, got.ReminderMinutes).Equal(30)
	})

	t.Run("pomodoro session lifecycle", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		pid := newPlatformID(t)

		session := &models.PomodoroSession{WorkMinutes: 25, BreakMinutes: 5, Cycles: 2}
		gt.NoError(t, store.CreatePomodoroSession(ctx, pid, session)).Required()
		gt.Value(t, session.CurrentCycle).Equal(1)

		active, err := store.GetActivePomodoroSession(ctx, pid)
		gt.NoError(t, err).Required()
		gt.Value(t, active).NotNil()
		gt.Value(t, active.ID).Equal(session.ID)

		cycle := 2
		gt.NoError(t, store.UpdatePomodoroSession(ctx, session.ID, models.PomodoroPatch{CurrentCycle: &cycle})).Required()
		gt.NoError(t, store.CompletePomodoroSession(ctx, session.ID)).Required()

		active, err = store.GetActivePomodoroSession(ctx, pid)
		gt.NoError(t, err).Required()
		gt.Value(t, active).Nil()

		stats, err := store.GetPomodoroStats(ctx, pid, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		gt.NoError(t, err).Required()
		gt.Value(t, stats).Equal(models.PomodoroStats{Sessions: 1, Cycles: 2, WorkMinutes: 50, BreakMinutes: 10})
	})

	t.Run("deactivated sessions do not count as completed", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		pid := newPlatformID(t)

		stopped := &models.PomodoroSession{WorkMinutes: 25, BreakMinutes: 5, Cycles: 4}
		stale := &models.PomodoroSession{WorkMinutes: 25, BreakMinutes: 5, Cycles: 4}
		gt.NoError(t, store.CreatePomodoroSession(ctx, pid, stopped)).Required()
		gt.NoError(t, store.DeactivatePomodoroSession(ctx, stopped.ID)).Required()
		gt.NoError(t, store.CreatePomodoroSession(ctx, pid, stale)).Required()

		n, err := store.DeactivateStalePomodoroSessions(ctx)
		gt.NoError(t, err).Required()
		gt.Bool(t, n >= 1).True()

		active, err := store.GetActivePomodoroSession(ctx, pid)
		gt.NoError(t, err).Required()
		gt.Value(t, active).Nil()

		stats, err := store.GetPomodoroStats(ctx, pid, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		gt.NoError(t, err).Required()
		gt.Value(t, stats.Sessions).Equal(0)

		gt.Error(t, store.CompletePomodoroSession(ctx, uuid.New())).Is(db.ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTest(t, func(t *testing.T) db.Store {
		return memory.New(testTZ)
	})
}

func TestPostgresStore(t *testing.T) {
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	if err := db.RunMigrations(databaseURL); err != nil {
		t.Skipf("test database is not reachable: %v", err)
	}

	runStoreTest(t, func(t *testing.T) db.Store {
		store, err := db.Open(context.Background(), databaseURL, testTZ)
		gt.NoError(t, err).Required()
		t.Cleanup(store.Close)
		return store
	})
}

func TestErrNotFoundIsWrapped(t *testing.T) {
	store := memory.New(testTZ)
	err := store.RemoveTask(context.Background(), "nobody", uuid.New())
	gt.Bool(t, errors.Is(err, db.ErrNotFound)).True()
}
