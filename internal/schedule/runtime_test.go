package schedule_test

import (
	"sync/atomic"
	"testing"
	"time"

	"focusbot/internal/schedule"

	"github.com/m-mizutani/gt"
	"go.uber.org/zap"
)

func TestRuntimeAfter(t *testing.T) {
	r := schedule.NewRuntime("UTC", zap.NewNop())
	r.Start()
	defer r.Stop()

	done := make(chan struct{})
	r.After(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not fire")
	}
}

func TestRuntimeCancel(t *testing.T) {
	r := schedule.NewRuntime("UTC", zap.NewNop())
	r.Start()
	defer r.Stop()

	var fired atomic.Bool
	h := r.After(20*time.Millisecond, func() { fired.Store(true) })
	r.Cancel(h)

	time.Sleep(60 * time.Millisecond)
	gt.Bool(t, fired.Load()).False()
}

func TestRuntimeRecoversPanic(t *testing.T) {
	r := schedule.NewRuntime("UTC", zap.NewNop())
	r.Start()
	defer r.Stop()

	done := make(chan struct{})
	r.After(time.Millisecond, func() { panic("boom") })
	r.After(5*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler stopped after panic")
	}
}

func TestRuntimeRecurring(t *testing.T) {
	r := schedule.NewRuntime("UTC", zap.NewNop())

	h, err := r.Recurring("0 3 * * 0", "Europe/Moscow", func() {})
	gt.NoError(t, err).Required()
	gt.Value(t, h).NotEqual(schedule.Handle(0))
	r.Cancel(h)

	_, err = r.Recurring("61 * * * *", "UTC", func() {})
	gt.Error(t, err).Is(schedule.ErrInvalidSpec)
}
