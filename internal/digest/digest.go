// Package digest schedules and composes each user's daily summary of due
// tasks and today's events.
package digest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"focusbot/internal/db/models"
	"focusbot/internal/logger"
	"focusbot/internal/metrics"
	"focusbot/internal/notify"
	"focusbot/internal/schedule"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"
)

var ErrInvalidTime = goerr.New("digest time must be HH:MM")

type Store interface {
	ListUsers(ctx context.Context) ([]*models.User, error)
	GetSettings(ctx context.Context, platformID string) (*models.Settings, error)
	GetTasks(ctx context.Context, platformID string, includeCompleted bool) ([]*models.Task, error)
	GetEventsBetween(ctx context.Context, platformID string, from, to time.Time) ([]*models.Event, error)
}

type Option func(*Scheduler)

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Scheduler) {
		s.metrics = r
	}
}

// Scheduler keeps at most one daily job per user.
type Scheduler struct {
	store     Store
	sched     schedule.Scheduler
	sender    notify.Sender
	log       *zap.Logger
	metrics   metrics.Recorder
	defaultTZ string

	mu   sync.Mutex
	jobs map[string]schedule.Handle
}

func New(store Store, sched schedule.Scheduler, sender notify.Sender, log *zap.Logger, defaultTZ string, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     store,
		sched:     sched,
		sender:    sender,
		log:       log,
		metrics:   metrics.Nop{},
		defaultTZ: defaultTZ,
		jobs:      make(map[string]schedule.Handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseClock splits "HH:MM" into hour and minute.
func ParseClock(v string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) != 2 {
		return 0, 0, goerr.Wrap(ErrInvalidTime, "bad format", goerr.V("value", v))
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, goerr.Wrap(ErrInvalidTime, "bad hour", goerr.V("value", v))
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, goerr.Wrap(ErrInvalidTime, "bad minute", goerr.V("value", v))
	}
	return hour, minute, nil
}

// EnsureDailyJob replaces the user's job with one matching current settings.
// A disabled digest leaves no job.
func (s *Scheduler) EnsureDailyJob(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(userID)

	settings, err := s.store.GetSettings(ctx, userID)
	if err != nil {
		return goerr.Wrap(err, "failed to load settings for digest", goerr.V("user_id", userID))
	}
	if !settings.DailyDigest {
		return nil
	}

	hour, minute, err := ParseClock(settings.DailyDigestTime)
	if err != nil {
		s.log.Warn("invalid digest time, using default", append(logger.ErrFields(err),
			zap.String("user_id", userID))...)
		hour, minute, _ = ParseClock(models.DefaultDigestTime)
	}

	jobCtx := context.WithoutCancel(ctx)
	rule := fmt.Sprintf("%d %d * * *", minute, hour)
	h, err := s.sched.Recurring(rule, settings.Timezone, func() {
		if err := s.SendDailySummary(jobCtx, userID); err != nil {
			s.log.Error("failed to send daily digest", append(logger.ErrFields(err),
				zap.String("user_id", userID))...)
		}
	})
	if err != nil {
		return goerr.Wrap(err, "failed to schedule digest", goerr.V("user_id", userID), goerr.V("rule", rule))
	}
	s.jobs[userID] = h

	s.log.Debug("daily digest scheduled",
		zap.String("user_id", userID),
		zap.String("rule", rule),
		zap.String("timezone", settings.Timezone),
	)
	return nil
}

func (s *Scheduler) CancelDailyJob(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(userID)
}

func (s *Scheduler) cancelLocked(userID string) {
	if h, ok := s.jobs[userID]; ok {
		s.sched.Cancel(h)
		delete(s.jobs, userID)
	}
}

// HasJob reports whether userID currently has a digest scheduled.
func (s *Scheduler) HasJob(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[userID]
	return ok
}

// EnsureAll schedules every known user. Failures are logged per user.
func (s *Scheduler) EnsureAll(ctx context.Context) error {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to list users for digest")
	}

	for _, u := range users {
		if err := s.EnsureDailyJob(ctx, u.PlatformID); err != nil {
			s.log.Error("failed to schedule digest", append(logger.ErrFields(err),
				zap.String("user_id", u.PlatformID))...)
		}
	}
	s.log.Info("daily digests scheduled", zap.Int("users", len(users)))
	return nil
}

// SendDailySummary composes and delivers the digest unless the user turned
// it off since the job was scheduled.
func (s *Scheduler) SendDailySummary(ctx context.Context, userID string) error {
	settings, err := s.store.GetSettings(ctx, userID)
	if err != nil {
		return goerr.Wrap(err, "failed to load settings", goerr.V("user_id", userID))
	}
	if !settings.DailyDigest {
		return nil
	}

	loc := s.location(settings.Timezone)
	now := s.sched.Now().In(loc)

	tasks, err := s.store.GetTasks(ctx, userID, false)
	if err != nil {
		return goerr.Wrap(err, "failed to load tasks", goerr.V("user_id", userID))
	}

	from, to := models.DayBounds(now, loc)
	events, err := s.store.GetEventsBetween(ctx, userID, from, to)
	if err != nil {
		return goerr.Wrap(err, "failed to load events", goerr.V("user_id", userID))
	}

	text := Compose(now, tasks, events)
	if err := s.sender.SendMessageToUser(ctx, userID, text, notify.Options{Format: notify.FormatMarkdown}); err != nil {
		return goerr.Wrap(err, "failed to deliver digest", goerr.V("user_id", userID))
	}

	s.metrics.DigestSent()
	s.log.Info("daily digest sent", zap.String("user_id", userID))
	return nil
}

func (s *Scheduler) location(tz string) *time.Location {
	if loc, err := time.LoadLocation(tz); err == nil && tz != "" {
		return loc
	}
	if loc, err := time.LoadLocation(s.defaultTZ); err == nil {
		return loc
	}
	return time.UTC
}
