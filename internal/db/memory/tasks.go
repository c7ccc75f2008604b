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

// ownedTask returns the stored task if platformID owns it; callers hold mu.
func (s *Store) ownedTask(platformID string, taskID uuid.UUID) (*models.Task, error) {
	uid, ok := s.userID(platformID)
	t, exists := s.tasks[taskID]
	if !ok || !exists || t.UserID != uid {
		return nil, goerr.Wrap(db.ErrNotFound, "task not found", goerr.V("task_id", taskID))
	}
	return t, nil
}

func (s *Store) GetTasks(ctx context.Context, platformID string, includeCompleted bool) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uid, ok := s.userID(platformID)
	if !ok {
		return nil, nil
	}

	var tasks []*models.Task
	for _, t := range s.tasks {
		if t.UserID != uid || (t.Completed && !includeCompleted) {
			continue
		}
		tasks = append(tasks, copyTask(t))
	}
	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Completed != b.Completed {
			return !a.Completed
		}
		switch {
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return tasks, nil
}

func (s *Store) GetTask(ctx context.Context, platformID string, taskID uuid.UUID) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.ownedTask(platformID, taskID)
	if err != nil {
		return nil, err
	}
	return copyTask(t), nil
}

func (s *Store) UpsertTask(ctx context.Context, platformID string, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ID != uuid.Nil {
		t, err := s.ownedTask(platformID, task.ID)
		if err != nil {
			return err
		}
		t.Title = task.Title
		t.Description = task.Description
		t.DueDate = copyTime(task.DueDate)
		return nil
	}

	u := s.ensureUser(platformID)
	task.ID = uuid.New()
	task.UserID = u.ID
	task.Completed = false
	task.CompletedAt = nil
	task.CreatedAt = s.now()
	s.tasks[task.ID] = copyTask(task)
	return nil
}

func (s *Store) CompleteTask(ctx context.Context, platformID string, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.ownedTask(platformID, taskID)
	if err != nil {
		return err
	}
	now := s.now()
	t.Completed = true
	t.CompletedAt = &now
	return nil
}

func (s *Store) UncompleteTask(ctx context.Context, platformID string, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.ownedTask(platformID, taskID)
	if err != nil {
		return err
	}
	t.Completed = false
	t.CompletedAt = nil
	return nil
}

func (s *Store) RemoveTask(ctx context.Context, platformID string, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ownedTask(platformID, taskID); err != nil {
		return err
	}
	delete(s.tasks, taskID)
	for _, p := range s.sessions {
		if p.TaskID != nil && *p.TaskID == taskID {
			p.TaskID = nil
		}
	}
	return nil
}

func (s *Store) GetTaskStats(ctx context.Context, platformID string) (models.TaskStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uid, ok := s.userID(platformID)
	if !ok {
		return models.NewTaskStats(0, 0), nil
	}

	var total, completed int
	for _, t := range s.tasks {
		if t.UserID != uid {
			continue
		}
		total++
		if t.Completed {
			completed++
		}
	}
	return models.NewTaskStats(total, completed), nil
}

func (s *Store) CleanupOldCompletedTasks(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.tasks {
		if t.Completed && t.CompletedAt != nil && t.CompletedAt.Before(olderThan) {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}
