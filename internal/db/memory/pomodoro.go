package memory

import (
	"context"
	"time"

	"focusbot/internal/db"
	"focusbot/internal/db/models"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

func (s *Store) CreatePomodoroSession(ctx context.Context, platformID string, session *models.PomodoroSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.ensureUser(platformID)
	session.ID = uuid.New()
	session.UserID = u.ID
	session.Active = true
	session.StartedAt = s.now()
	if session.CurrentCycle == 0 {
		session.CurrentCycle = 1
	}
	s.sessions[session.ID] = copySession(session)
	return nil
}

// session returns the stored row; callers hold mu.
func (s *Store) session(id uuid.UUID) (*models.PomodoroSession, error) {
	p, ok := s.sessions[id]
	if !ok {
		return nil, goerr.Wrap(db.ErrNotFound, "pomodoro session not found", goerr.V("session_id", id))
	}
	return p, nil
}

func (s *Store) UpdatePomodoroSession(ctx context.Context, id uuid.UUID, patch models.PomodoroPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.session(id)
	if err != nil {
		return err
	}
	if patch.CurrentCycle != nil {
		p.CurrentCycle = *patch.CurrentCycle
	}
	return nil
}

func (s *Store) CompletePomodoroSession(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.session(id)
	if err != nil {
		return err
	}
	now := s.now()
	p.Active = false
	p.CompletedAt = &now
	return nil
}

func (s *Store) DeactivatePomodoroSession(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.session(id)
	if err != nil {
		return err
	}
	p.Active = false
	return nil
}

func (s *Store) GetActivePomodoroSession(ctx context.Context, platformID string) (*models.PomodoroSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uid, ok := s.userID(platformID)
	if !ok {
		return nil, nil
	}

	var found *models.PomodoroSession
	for _, p := range s.sessions {
		if p.UserID == uid && p.Active && (found == nil || p.StartedAt.After(found.StartedAt)) {
			found = p
		}
	}
	if found == nil {
		return nil, nil
	}
	return copySession(found), nil
}

func (s *Store) DeactivateStalePomodoroSessions(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, p := range s.sessions {
		if p.Active {
			p.Active = false
			n++
		}
	}
	return n, nil
}

func (s *Store) GetPomodoroStats(ctx context.Context, platformID string, from, to time.Time) (models.PomodoroStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats models.PomodoroStats
	uid, ok := s.userID(platformID)
	if !ok {
		return stats, nil
	}
	for _, p := range s.sessions {
		if p.UserID == uid && p.CompletedAt != nil && inRange(*p.CompletedAt, from, to) {
			stats.Add(p)
		}
	}
	return stats, nil
}
