// Package reminder polls today's events and notifies owners once an event
// enters its reminder window.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"focusbot/internal/db/models"
	"focusbot/internal/logger"
	"focusbot/internal/metrics"
	"focusbot/internal/notify"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"
)

type Store interface {
	ListRemindableEvents(ctx context.Context, from, to time.Time) ([]*models.EventWithOwner, error)
	CountRemindableEvents(ctx context.Context, from, to time.Time) (int, error)
	GetSettings(ctx context.Context, platformID string) (*models.Settings, error)
}

type Option func(*Checker)

func WithInterval(d time.Duration) Option {
	return func(c *Checker) {
		c.interval = d
	}
}

func WithDedupTTL(ttl time.Duration) Option {
	return func(c *Checker) {
		c.dedupTTL = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		c.now = now
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(c *Checker) {
		c.metrics = r
	}
}

// Checker sends at most one reminder per event occurrence. Its loop stays
// idle until Activate is called, then ticks every interval until the
// context passed to Run ends.
type Checker struct {
	store   Store
	sender  notify.Sender
	log     *zap.Logger
	metrics metrics.Recorder
	loc     *time.Location

	interval time.Duration
	now      func() time.Time
	dedupTTL time.Duration
	sent     *Dedup

	ticking   atomic.Bool
	activate  sync.Once
	activated chan struct{}
}

func New(store Store, sender notify.Sender, log *zap.Logger, loc *time.Location, opts ...Option) *Checker {
	c := &Checker{
		store:     store,
		sender:    sender,
		log:       log,
		metrics:   metrics.Nop{},
		loc:       loc,
		interval:  time.Minute,
		now:       time.Now,
		dedupTTL:  24 * time.Hour,
		activated: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sent = NewDedup(c.dedupTTL)
	return c
}

// Run blocks until ctx ends. Once activated it ticks immediately and then
// every interval.
func (c *Checker) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-c.activated:
	}

	c.log.Info("reminder checker started", zap.Duration("interval", c.interval), zap.Duration("dedup_ttl", c.sent.TTL()))
	c.Tick(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("reminder checker stopping")
			return nil
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Activate lets Run start ticking. Later calls do nothing.
func (c *Checker) Activate() {
	c.activate.Do(func() { close(c.activated) })
}

func (c *Checker) Active() bool {
	select {
	case <-c.activated:
		return true
	default:
		return false
	}
}

// EnsureStarted activates the checker if any event with a reminder falls on
// today's calendar day.
func (c *Checker) EnsureStarted(ctx context.Context) error {
	if c.Active() {
		return nil
	}

	from, to := models.DayBounds(c.now(), c.loc)
	n, err := c.store.CountRemindableEvents(ctx, from, to)
	if err != nil {
		return goerr.Wrap(err, "failed to count remindable events")
	}
	if n == 0 {
		c.log.Debug("no reminders due today, checker stays idle")
		return nil
	}
	c.Activate()
	return nil
}

// Tick checks today's events once. A tick that starts while another is still
// running returns immediately.
func (c *Checker) Tick(ctx context.Context) {
	if !c.ticking.CompareAndSwap(false, true) {
		c.log.Debug("previous reminder tick still running, skipping")
		return
	}
	defer c.ticking.Store(false)

	now := c.now()
	from, to := models.DayBounds(now, c.loc)
	events, err := c.store.ListRemindableEvents(ctx, from, to)
	if err != nil {
		c.log.Error("failed to list remindable events", logger.ErrFields(err)...)
		return
	}

	for _, ew := range events {
		if c.due(ew.Event, now) {
			c.remind(ctx, ew)
		}
	}
}

// due reports whether e is ahead of now by no more than its lead plus one
// interval, so a tick landing just before the lead still fires.
func (c *Checker) due(e *models.Event, now time.Time) bool {
	if e.ReminderMinutes == nil {
		return false
	}
	remaining := e.At.Sub(now)
	window := time.Duration(*e.ReminderMinutes)*time.Minute + c.interval
	return remaining > 0 && remaining <= window
}

func (c *Checker) remind(ctx context.Context, ew *models.EventWithOwner) {
	key := Key{UserID: ew.PlatformID, EventID: ew.Event.ID, At: ew.Event.At.UnixMilli()}
	if !c.sent.Claim(key) {
		return
	}

	text := fmt.Sprintf("⏰ Reminder: \"%s\" starts at %s", ew.Event.Title, ew.Event.At.In(c.userLocation(ctx, ew.PlatformID)).Format("15:04"))
	if err := c.sender.SendMessageToUser(ctx, ew.PlatformID, text, notify.Options{}); err != nil {
		c.sent.Release(key)
		c.metrics.ReminderFailed()
		c.log.Error("failed to send reminder", append(logger.ErrFields(err),
			zap.String("user_id", ew.PlatformID),
			zap.String("event_id", ew.Event.ID.String()),
		)...)
		return
	}

	c.metrics.ReminderSent()
	c.log.Info("reminder sent",
		zap.String("user_id", ew.PlatformID),
		zap.String("event_id", ew.Event.ID.String()),
		zap.Time("at", ew.Event.At),
	)
}

func (c *Checker) userLocation(ctx context.Context, userID string) *time.Location {
	s, err := c.store.GetSettings(ctx, userID)
	if err != nil {
		c.log.Warn("failed to load settings for reminder", append(logger.ErrFields(err), zap.String("user_id", userID))...)
		return c.loc
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil || s.Timezone == "" {
		return c.loc
	}
	return loc
}
