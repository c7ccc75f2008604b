// Package memory is an in-process store with the same behavior as the
// postgres backend. It backs the memory database backend and the tests.
package memory

import (
	"sync"
	"time"

	"focusbot/internal/db"
	"focusbot/internal/db/models"

	"github.com/google/uuid"
)

type Option func(*Store)

// WithClock replaces time.Now for created/completed timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type Store struct {
	mu        sync.RWMutex
	defaultTZ string
	now       func() time.Time

	users    map[string]*models.User // by platform id
	tasks    map[uuid.UUID]*models.Task
	events   map[uuid.UUID]*models.Event
	settings map[uuid.UUID]*models.Settings
	sessions map[uuid.UUID]*models.PomodoroSession
}

var _ db.Store = &Store{}

func New(defaultTZ string, opts ...Option) *Store {
	s := &Store{
		defaultTZ: defaultTZ,
		now:       time.Now,
		users:     make(map[string]*models.User),
		tasks:     make(map[uuid.UUID]*models.Task),
		events:    make(map[uuid.UUID]*models.Event),
		settings:  make(map[uuid.UUID]*models.Settings),
		sessions:  make(map[uuid.UUID]*models.PomodoroSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyUser(u *models.User) *models.User {
	c := *u
	if u.ChatID != nil {
		chat := *u.ChatID
		c.ChatID = &chat
	}
	return &c
}

func copyTask(t *models.Task) *models.Task {
	c := *t
	c.DueDate = copyTime(t.DueDate)
	c.CompletedAt = copyTime(t.CompletedAt)
	return &c
}

func copyEvent(e *models.Event) *models.Event {
	c := *e
	c.ReminderMinutes = copyInt(e.ReminderMinutes)
	return &c
}

func copySession(p *models.PomodoroSession) *models.PomodoroSession {
	c := *p
	if p.TaskID != nil {
		id := *p.TaskID
		c.TaskID = &id
	}
	c.CompletedAt = copyTime(p.CompletedAt)
	return &c
}

// userID resolves a platform id; callers hold mu.
func (s *Store) userID(platformID string) (uuid.UUID, bool) {
	u, ok := s.users[platformID]
	if !ok {
		return uuid.Nil, false
	}
	return u.ID, true
}

// ensureUser is EnsureUser for callers that already hold mu.
func (s *Store) ensureUser(platformID string) *models.User {
	if u, ok := s.users[platformID]; ok {
		return u
	}
	u := &models.User{
		ID:         uuid.New(),
		PlatformID: platformID,
		Delivery:   models.DeliveryDiscord,
		CreatedAt:  s.now(),
	}
	s.users[platformID] = u
	return u
}
