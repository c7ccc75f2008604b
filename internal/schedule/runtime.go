package schedule

import (
	"runtime"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runtime schedules on the wall clock: time.AfterFunc for one-shot delays and
// a single cron.Cron for recurring rules.
type Runtime struct {
	mu        sync.Mutex
	cron      *cron.Cron
	defaultTZ string
	log       *zap.Logger

	next    Handle
	timers  map[Handle]*time.Timer
	entries map[Handle]cron.EntryID
}

var _ Scheduler = &Runtime{}

func NewRuntime(defaultTZ string, log *zap.Logger) *Runtime {
	cl := cronLogger{log: log}
	return &Runtime{
		cron:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		defaultTZ: defaultTZ,
		log:       log,
		timers:    make(map[Handle]*time.Timer),
		entries:   make(map[Handle]cron.EntryID),
	}
}

// Start begins firing recurring rules. One-shot delays run regardless.
func (r *Runtime) Start() {
	r.cron.Start()
}

// Stop halts recurring rules and pending delays, then waits for running
// recurring jobs to return.
func (r *Runtime) Stop() {
	r.mu.Lock()
	for h, t := range r.timers {
		t.Stop()
		delete(r.timers, h)
	}
	r.mu.Unlock()

	<-r.cron.Stop().Done()
}

func (r *Runtime) Now() time.Time {
	return time.Now()
}

func (r *Runtime) After(d time.Duration, fn func()) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	h := r.next
	r.timers[h] = time.AfterFunc(d, func() {
		r.mu.Lock()
		_, pending := r.timers[h]
		delete(r.timers, h)
		r.mu.Unlock()

		if pending {
			r.run(fn)
		}
	})
	return h
}

func (r *Runtime) Recurring(spec, timezone string, fn func()) (Handle, error) {
	sched, fallback, err := parseRule(spec, timezone, r.defaultTZ)
	if err != nil {
		return 0, err
	}
	if fallback {
		r.log.Warn("unknown time zone, using default",
			zap.String("timezone", timezone),
			zap.String("default", r.defaultTZ),
		)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	h := r.next
	r.entries[h] = r.cron.Schedule(sched, cron.FuncJob(fn))
	return h, nil
}

func (r *Runtime) Cancel(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[h]; ok {
		t.Stop()
		delete(r.timers, h)
	}
	if id, ok := r.entries[h]; ok {
		r.cron.Remove(id)
		delete(r.entries, h)
	}
}

func (r *Runtime) run(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			r.log.Error("panic in scheduled callback",
				zap.Any("panic", rec),
				zap.String("stack", string(buf[:n])),
			)
		}
	}()
	fn()
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
