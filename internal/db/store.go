package db

import (
	"context"
	"time"

	"focusbot/internal/db/models"

	"github.com/google/uuid"
)

// Store is the persistence surface shared by the postgres and memory backends.
// Users are addressed by platform id throughout.
type Store interface {
	EnsureUser(ctx context.Context, platformID string) (*models.User, error)
	GetUserByPlatformID(ctx context.Context, platformID string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	SetDelivery(ctx context.Context, platformID, delivery, chatID string) error

	GetTasks(ctx context.Context, platformID string, includeCompleted bool) ([]*models.Task, error)
	GetTask(ctx context.Context, platformID string, taskID uuid.UUID) (*models.Task, error)
	UpsertTask(ctx context.Context, platformID string, task *models.Task) error
	CompleteTask(ctx context.Context, platformID string, taskID uuid.UUID) error
	UncompleteTask(ctx context.Context, platformID string, taskID uuid.UUID) error
	RemoveTask(ctx context.Context, platformID string, taskID uuid.UUID) error
	GetTaskStats(ctx context.Context, platformID string) (models.TaskStats, error)
	CleanupOldCompletedTasks(ctx context.Context, olderThan time.Time) (int64, error)

	GetEvents(ctx context.Context, platformID string) ([]*models.Event, error)
	GetEventsBetween(ctx context.Context, platformID string, from, to time.Time) ([]*models.Event, error)
	UpsertEvent(ctx context.Context, platformID string, event *models.Event) error
	RemoveEvent(ctx context.Context, platformID string, eventID uuid.UUID) error
	ListRemindableEvents(ctx context.Context, from, to time.Time) ([]*models.EventWithOwner, error)
	CountRemindableEvents(ctx context.Context, from, to time.Time) (int, error)

	GetSettings(ctx context.Context, platformID string) (*models.Settings, error)
	UpdateSettings(ctx context.Context, platformID string, patch models.SettingsPatch) (*models.Settings, error)

	CreatePomodoroSession(ctx context.Context, platformID string, session *models.PomodoroSession) error
	UpdatePomodoroSession(ctx context.Context, id uuid.UUID, patch models.PomodoroPatch) error
	CompletePomodoroSession(ctx context.Context, id uuid.UUID) error
	DeactivatePomodoroSession(ctx context.Context, id uuid.UUID) error
	GetActivePomodoroSession(ctx context.Context, platformID string) (*models.PomodoroSession, error)
	DeactivateStalePomodoroSessions(ctx context.Context) (int64, error)
	GetPomodoroStats(ctx context.Context, platformID string, from, to time.Time) (models.PomodoroStats, error)
}

var _ Store = &DB{}
