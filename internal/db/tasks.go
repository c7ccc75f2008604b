package db

import (
	"context"
	"errors"
	"time"

	"focusbot/internal/db/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/m-mizutani/goerr/v2"
)

const taskColumns = `id, user_id, title, description, due_date, completed, completed_at, created_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	task := &models.Task{}
	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&task.DueDate,
		&task.Completed,
		&task.CompletedAt,
		&task.CreatedAt,
	)
	return task, err
}

// GetTasks lists a user's tasks: incomplete first, then by due date with
// undated tasks last, newest first among equals.
func (db *DB) GetTasks(ctx context.Context, platformID string, includeCompleted bool) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = ` + userIDQuery + `
		AND ($2 OR NOT completed)
		ORDER BY completed ASC, due_date ASC NULLS LAST, created_at DESC`

	rows, err := db.Query(ctx, query, platformID, includeCompleted)
	if err != nil {
		return nil, goerr.Wrap(err, "error listing tasks", goerr.V("platform_id", platformID))
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "error scanning task")
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (db *DB) GetTask(ctx context.Context, platformID string, taskID uuid.UUID) (*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = ` + userIDQuery + ` AND id = $2`

	task, err := scanTask(db.QueryRow(ctx, query, platformID, taskID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "task not found", goerr.V("task_id", taskID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "error getting task", goerr.V("task_id", taskID))
	}
	return task, nil
}

// UpsertTask creates the task when its ID is nil, otherwise updates title,
// description and due date. The task's ID and UserID are filled on create.
func (db *DB) UpsertTask(ctx context.Context, platformID string, task *models.Task) error {
	if task.ID != uuid.Nil {
		query := `
			UPDATE tasks
			SET title = $3, description = $4, due_date = $5
			WHERE user_id = ` + userIDQuery + ` AND id = $2`

		tag, err := db.Exec(ctx, query, platformID, task.ID.String(), task.Title, task.Description, task.DueDate)
		if err != nil {
			return goerr.Wrap(err, "error updating task", goerr.V("task_id", task.ID))
		}
		return affected(tag, "task not found", goerr.V("task_id", task.ID))
	}

	user, err := db.EnsureUser(ctx, platformID)
	if err != nil {
		return err
	}

	task.ID = uuid.New()
	task.UserID = user.ID
	task.CreatedAt = time.Now()

	query := `
		INSERT INTO tasks (id, user_id, title, description, due_date, completed, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)`

	_, err = db.Exec(ctx, query,
		task.ID.String(),
		task.UserID.String(),
		task.Title,
		task.Description,
		task.DueDate,
		task.CreatedAt,
	)
	if err != nil {
		return goerr.Wrap(err, "error creating task", goerr.V("platform_id", platformID))
	}
	return nil
}

func (db *DB) CompleteTask(ctx context.Context, platformID string, taskID uuid.UUID) error {
	query := `
		UPDATE tasks
		SET completed = TRUE, completed_at = $3
		WHERE user_id = ` + userIDQuery + ` AND id = $2`

	tag, err := db.Exec(ctx, query, platformID, taskID.String(), time.Now())
	if err != nil {
		return goerr.Wrap(err, "error completing task", goerr.V("task_id", taskID))
	}
	return affected(tag, "task not found", goerr.V("task_id", taskID))
}

func (db *DB) UncompleteTask(ctx context.Context, platformID string, taskID uuid.UUID) error {
	query := `
		UPDATE tasks
		SET completed = FALSE, completed_at = NULL
		WHERE user_id = ` + userIDQuery + ` AND id = $2`

	tag, err := db.Exec(ctx, query, platformID, taskID.String())
	if err != nil {
		return goerr.Wrap(err, "error reopening task", goerr.V("task_id", taskID))
	}
	return affected(tag, "task not found", goerr.V("task_id", taskID))
}

func (db *DB) RemoveTask(ctx context.Context, platformID string, taskID uuid.UUID) error {
	query := `DELETE FROM tasks WHERE user_id = ` + userIDQuery + ` AND id = $2`

	tag, err := db.Exec(ctx, query, platformID, taskID.String())
	if err != nil {
		return goerr.Wrap(err, "error removing task", goerr.V("task_id", taskID))
	}
	return affected(tag, "task not found", goerr.V("task_id", taskID))
}

func (db *DB) GetTaskStats(ctx context.Context, platformID string) (models.TaskStats, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE completed)
		FROM tasks
		WHERE user_id = ` + userIDQuery

	var total, completed int
	if err := db.QueryRow(ctx, query, platformID).Scan(&total, &completed); err != nil {
		return models.TaskStats{}, goerr.Wrap(err, "error counting tasks", goerr.V("platform_id", platformID))
	}
	return models.NewTaskStats(total, completed), nil
}

// CleanupOldCompletedTasks deletes completed tasks finished before olderThan
// and reports how many rows went.
func (db *DB) CleanupOldCompletedTasks(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM tasks WHERE completed AND completed_at < $1`

	tag, err := db.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, goerr.Wrap(err, "error cleaning up tasks", goerr.V("older_than", olderThan))
	}
	return tag.RowsAffected(), nil
}
