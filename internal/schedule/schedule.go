// Package schedule is the timing port used by the Pomodoro, digest and
// cleanup components: one-shot delays, recurring cron rules in a named
// time zone, and cancellation. Runtime is the production implementation;
// Fake drives the same contract from a simulated clock.
package schedule

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"
)

var ErrInvalidSpec = goerr.New("invalid recurrence rule")

// Handle identifies a scheduled callback. The zero Handle is never issued,
// and cancelling it is a no-op.
type Handle uint64

type Scheduler interface {
	Now() time.Time
	// After runs fn once, d from now. A non-positive d fires as soon as possible.
	After(d time.Duration, fn func()) Handle
	// Recurring runs fn at every time matching the five-field rule spec,
	// evaluated in the IANA zone timezone.
	Recurring(spec, timezone string, fn func()) (Handle, error)
	// Cancel stops a pending callback. Unknown or fired handles are ignored.
	Cancel(h Handle)
}

// parseRule compiles spec in timezone, falling back to defaultTZ when the
// zone is empty or unknown. It reports whether the fallback was taken.
func parseRule(spec, timezone, defaultTZ string) (cron.Schedule, bool, error) {
	fallback := false
	if _, err := time.LoadLocation(timezone); timezone == "" || err != nil {
		timezone = defaultTZ
		fallback = true
	}

	sched, err := cron.ParseStandard("CRON_TZ=" + timezone + " " + spec)
	if err != nil {
		return nil, fallback, goerr.Wrap(ErrInvalidSpec, err.Error(),
			goerr.V("spec", spec), goerr.V("timezone", timezone))
	}
	return sched, fallback, nil
}
