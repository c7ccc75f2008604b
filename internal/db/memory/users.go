package memory

import (
	"context"
	"sort"

	"focusbot/internal/db"
	"focusbot/internal/db/models"

	"github.com/m-mizutani/goerr/v2"
)

func (s *Store) EnsureUser(ctx context.Context, platformID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copyUser(s.ensureUser(platformID)), nil
}

func (s *Store) GetUserByPlatformID(ctx context.Context, platformID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[platformID]
	if !ok {
		return nil, goerr.Wrap(db.ErrNotFound, "user not found", goerr.V("platform_id", platformID))
	}
	return copyUser(u), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (s *Store) SetDelivery(ctx context.Context, platformID, delivery, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.ensureUser(platformID)
	u.Delivery = delivery
	u.ChatID = nil
	if delivery != models.DeliveryDiscord && chatID != "" {
		u.ChatID = &chatID
	}
	return nil
}
