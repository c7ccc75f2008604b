package memory

import (
	"context"
	"sort"
	"time"

	"focusbot/internal/db"
	"focusbot/internal/db/models"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

func sortEvents(events []*models.Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].At.Before(events[j].At)
	})
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (s *Store) GetEvents(ctx context.Context, platformID string) ([]*models.Event, error) {
	return s.eventsWhere(platformID, func(*models.Event) bool { return true }), nil
}

func (s *Store) GetEventsBetween(ctx context.Context, platformID string, from, to time.Time) ([]*models.Event, error) {
	return s.eventsWhere(platformID, func(e *models.Event) bool { return inRange(e.At, from, to) }), nil
}

func (s *Store) eventsWhere(platformID string, keep func(*models.Event) bool) []*models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uid, ok := s.userID(platformID)
	if !ok {
		return nil
	}

	var events []*models.Event
	for _, e := range s.events {
		if e.UserID == uid && keep(e) {
			events = append(events, copyEvent(e))
		}
	}
	sortEvents(events)
	return events
}

func (s *Store) UpsertEvent(ctx context.Context, platformID string, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID != uuid.Nil {
		uid, ok := s.userID(platformID)
		e, exists := s.events[event.ID]
		if !ok || !exists || e.UserID != uid {
			return goerr.Wrap(db.ErrNotFound, "event not found", goerr.V("event_id", event.ID))
		}
		e.Title = event.Title
		e.Description = event.Description
		e.At = event.At
		e.ReminderMinutes = copyInt(event.ReminderMinutes)
		return nil
	}

	u := s.ensureUser(platformID)
	event.ID = uuid.New()
	event.UserID = u.ID
	event.CreatedAt = s.now()
	s.events[event.ID] = copyEvent(event)
	return nil
}

func (s *Store) RemoveEvent(ctx context.Context, platformID string, eventID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid, ok := s.userID(platformID)
	e, exists := s.events[eventID]
	if !ok || !exists || e.UserID != uid {
		return goerr.Wrap(db.ErrNotFound, "event not found", goerr.V("event_id", eventID))
	}
	delete(s.events, eventID)
	return nil
}

func (s *Store) ListRemindableEvents(ctx context.Context, from, to time.Time) ([]*models.EventWithOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make(map[uuid.UUID]string, len(s.users))
	for _, u := range s.users {
		owners[u.ID] = u.PlatformID
	}

	var events []*models.Event
	for _, e := range s.events {
		if e.ReminderMinutes != nil && inRange(e.At, from, to) {
			events = append(events, copyEvent(e))
		}
	}
	sortEvents(events)

	result := make([]*models.EventWithOwner, 0, len(events))
	for _, e := range events {
		result = append(result, &models.EventWithOwner{Event: e, PlatformID: owners[e.UserID]})
	}
	return result, nil
}

func (s *Store) CountRemindableEvents(ctx context.Context, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.events {
		if e.ReminderMinutes != nil && inRange(e.At, from, to) {
			n++
		}
	}
	return n, nil
}
