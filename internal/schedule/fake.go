package schedule

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Fake is a Scheduler on a simulated clock. Nothing fires until Advance is
// called; callbacks then run synchronously on the caller's goroutine.
type Fake struct {
	mu        sync.Mutex
	now       time.Time
	defaultTZ string

	next   Handle
	timers map[Handle]*fakeTimer
	jobs   map[Handle]*fakeJob
}

type fakeTimer struct {
	at time.Time
	fn func()
}

type fakeJob struct {
	sched cron.Schedule
	next  time.Time
	fn    func()
}

var _ Scheduler = &Fake{}

func NewFake(start time.Time, defaultTZ string) *Fake {
	return &Fake{
		now:       start,
		defaultTZ: defaultTZ,
		timers:    make(map[Handle]*fakeTimer),
		jobs:      make(map[Handle]*fakeJob),
	}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration, fn func()) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d < 0 {
		d = 0
	}
	f.next++
	f.timers[f.next] = &fakeTimer{at: f.now.Add(d), fn: fn}
	return f.next
}

func (f *Fake) Recurring(spec, timezone string, fn func()) (Handle, error) {
	sched, _, err := parseRule(spec, timezone, f.defaultTZ)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.next++
	f.jobs[f.next] = &fakeJob{sched: sched, next: sched.Next(f.now), fn: fn}
	return f.next, nil
}

func (f *Fake) Cancel(h Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.timers, h)
	delete(f.jobs, h)
}

// Advance moves the clock forward by d, firing every callback that comes due
// in time order. Ties go to the handle issued first. Callbacks may schedule
// or cancel further callbacks; those due within the window fire too.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		h, at, fn := f.earliest(target)
		if fn == nil {
			break
		}
		f.now = at
		if job, ok := f.jobs[h]; ok {
			job.next = job.sched.Next(at)
		} else {
			delete(f.timers, h)
		}

		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}

	if f.now.Before(target) {
		f.now = target
	}
	f.mu.Unlock()
}

// earliest finds the next callback due at or before target; callers hold mu.
func (f *Fake) earliest(target time.Time) (Handle, time.Time, func()) {
	var (
		best   Handle
		bestAt time.Time
		bestFn func()
	)
	consider := func(h Handle, at time.Time, fn func()) {
		if at.After(target) {
			return
		}
		if bestFn == nil || at.Before(bestAt) || (at.Equal(bestAt) && h < best) {
			best, bestAt, bestFn = h, at, fn
		}
	}
	for h, t := range f.timers {
		consider(h, t.at, t.fn)
	}
	for h, j := range f.jobs {
		if !j.next.IsZero() {
			consider(h, j.next, j.fn)
		}
	}
	return best, bestAt, bestFn
}

// Timers reports pending one-shot callbacks.
func (f *Fake) Timers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// Jobs reports registered recurring rules.
func (f *Fake) Jobs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

// NextRun returns when the recurring rule h fires next, or the zero time.
func (f *Fake) NextRun(h Handle) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[h]; ok {
		return j.next
	}
	return time.Time{}
}
