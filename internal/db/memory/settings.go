package memory

import (
	"context"

	"focusbot/internal/db/models"

	"github.com/google/uuid"
)

func (s *Store) GetSettings(ctx context.Context, platformID string) (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.settingsFor(platformID), nil
}

// settingsFor returns a copy of the stored row or synthesized defaults; callers hold mu.
func (s *Store) settingsFor(platformID string) *models.Settings {
	uid, ok := s.userID(platformID)
	if !ok {
		return models.DefaultSettings(uuid.Nil, s.defaultTZ)
	}
	if st, ok := s.settings[uid]; ok {
		c := *st
		return &c
	}
	return models.DefaultSettings(uid, s.defaultTZ)
}

func (s *Store) UpdateSettings(ctx context.Context, platformID string, patch models.SettingsPatch) (*models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.ensureUser(platformID)
	st := s.settingsFor(platformID)
	patch.Apply(st)
	s.settings[u.ID] = st

	c := *st
	return &c, nil
}
