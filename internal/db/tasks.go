package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Joseda-hg/taskflow/internal/lifecycle"
	"github.com/Joseda-hg/taskflow/internal/model"
)

var ErrSubtaskRange = errors.New("subtask index out of range")

const taskColumns = `id, owner_id, title, description, category, priority, status,
	start_at, end_at, duration_minutes, deadline, urgency, subtasks, ai_generated, ai_notes,
	is_recurring, recurrence_rule, attached_files, completed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateTask inserts a task for owner. Defaults, the derived end time and the
// initial status derivation are applied before the row is written.
func (s *Store) CreateTask(ctx context.Context, owner int64, task model.Task) (model.Task, error) {
	task.OwnerID = owner
	lifecycle.Prepare(&task, s.now())

	subtasks, err := encodeJSON(task.Subtasks, "[]")
	if err != nil {
		return model.Task{}, fmt.Errorf("encode subtasks: %w", err)
	}
	files, err := encodeJSON(task.AttachedFiles, "[]")
	if err != nil {
		return model.Task{}, fmt.Errorf("encode attached files: %w", err)
	}

	res, err := s.q.ExecContext(ctx, `INSERT INTO tasks (
		owner_id, title, description, category, priority, status,
		start_at, end_at, duration_minutes, deadline, urgency, subtasks, ai_generated, ai_notes,
		is_recurring, recurrence_rule, attached_files, completed_at, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		owner, task.Title, task.Description, string(task.Category), string(task.Priority), string(task.Status),
		nullTime(task.Start), nullTime(task.End), nullInt(task.Duration), nullTime(task.Deadline),
		task.Urgency, subtasks, task.AIGenerated, task.AINotes,
		task.IsRecurring, task.RecurrenceRule, files, nullTime(task.CompletedAt),
		task.CreatedAt.UTC(), task.UpdatedAt.UTC(),
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return model.Task{}, fmt.Errorf("insert task id: %w", err)
	}

	created, err := s.GetTask(ctx, owner, id)
	if err != nil {
		return model.Task{}, err
	}

	if err := s.addHistory(ctx, owner, id, "created", formatCreatedDetails(created)); err != nil {
		return model.Task{}, err
	}

	return created, nil
}

// GetTask loads one task. Tasks of other owners are reported as ErrNotFound.
func (s *Store) GetTask(ctx context.Context, owner, taskID int64) (model.Task, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner_id = ?`, taskID, owner)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("get task %d: %w", taskID, err)
	}
	return task, nil
}

// UpdateTask applies a partial update. Without an explicit status in the
// patch the derivation pass runs on the result.
func (s *Store) UpdateTask(ctx context.Context, owner, taskID int64, patch model.TaskPatch) (model.Task, error) {
	before, err := s.GetTask(ctx, owner, taskID)
	if err != nil {
		return model.Task{}, err
	}

	after := before
	if err := lifecycle.ApplyPatch(&after, patch, s.now()); err != nil {
		return model.Task{}, err
	}

	return s.saveTask(ctx, before, after)
}

func (s *Store) CompleteTask(ctx context.Context, owner, taskID int64) (model.Task, error) {
	completed := model.StatusCompleted
	return s.UpdateTask(ctx, owner, taskID, model.TaskPatch{Status: &completed})
}

func (s *Store) PostponeTask(ctx context.Context, owner, taskID int64, newStart time.Time) (model.Task, error) {
	before, err := s.GetTask(ctx, owner, taskID)
	if err != nil {
		return model.Task{}, err
	}

	after := before
	lifecycle.Postpone(&after, newStart, s.now())
	return s.saveTask(ctx, before, after)
}

func (s *Store) ToggleSubtask(ctx context.Context, owner, taskID int64, index int) (model.Task, error) {
	before, err := s.GetTask(ctx, owner, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if index < 0 || index >= len(before.Subtasks) {
		return model.Task{}, ErrSubtaskRange
	}

	after := before
	after.Subtasks = append([]model.Subtask(nil), before.Subtasks...)
	after.Subtasks[index].Done = !after.Subtasks[index].Done
	after.UpdatedAt = s.now()
	return s.saveTask(ctx, before, after)
}

func (s *Store) saveTask(ctx context.Context, before, after model.Task) (model.Task, error) {
	if err := s.writeTask(ctx, after); err != nil {
		return model.Task{}, err
	}

	saved, err := s.GetTask(ctx, after.OwnerID, after.ID)
	if err != nil {
		return model.Task{}, err
	}

	if err := s.addHistory(ctx, saved.OwnerID, saved.ID, "updated", formatTaskDiff(before, saved)); err != nil {
		return model.Task{}, err
	}
	return saved, nil
}

func (s *Store) writeTask(ctx context.Context, task model.Task) error {
	subtasks, err := encodeJSON(task.Subtasks, "[]")
	if err != nil {
		return fmt.Errorf("encode subtasks: %w", err)
	}
	files, err := encodeJSON(task.AttachedFiles, "[]")
	if err != nil {
		return fmt.Errorf("encode attached files: %w", err)
	}

	res, err := s.q.ExecContext(ctx, `UPDATE tasks SET
		title = ?, description = ?, category = ?, priority = ?, status = ?,
		start_at = ?, end_at = ?, duration_minutes = ?, deadline = ?, urgency = ?, subtasks = ?,
		ai_notes = ?, is_recurring = ?, recurrence_rule = ?, attached_files = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		task.Title, task.Description, string(task.Category), string(task.Priority), string(task.Status),
		nullTime(task.Start), nullTime(task.End), nullInt(task.Duration), nullTime(task.Deadline),
		task.Urgency, subtasks, task.AINotes, task.IsRecurring, task.RecurrenceRule, files,
		nullTime(task.CompletedAt), task.UpdatedAt.UTC(),
		task.ID, task.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("update task %d: %w", task.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("task %d: %w", task.ID, ErrNotFound)
	}
	return nil
}

// DeleteTask removes a task and returns what was deleted.
func (s *Store) DeleteTask(ctx context.Context, owner, taskID int64) (model.Task, error) {
	before, err := s.GetTask(ctx, owner, taskID)
	if err != nil {
		return model.Task{}, err
	}

	if err := s.addHistory(ctx, owner, taskID, "deleted", formatDeletedDetails(before)); err != nil {
		return model.Task{}, err
	}

	if _, err := s.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner_id = ?`, taskID, owner); err != nil {
		return model.Task{}, fmt.Errorf("delete task %d: %w", taskID, err)
	}
	return before, nil
}

// DeleteActiveTasks removes every non-completed task of owner.
func (s *Store) DeleteActiveTasks(ctx context.Context, owner int64) ([]model.Task, error) {
	active, err := s.ListTasks(ctx, owner, model.Filter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	deleted := make([]model.Task, 0, len(active))
	for _, task := range active {
		removed, err := s.DeleteTask(ctx, owner, task.ID)
		if err != nil {
			return nil, err
		}
		deleted = append(deleted, removed)
	}
	return deleted, nil
}

// ListTasks returns the owner's tasks ordered by start time, unscheduled last.
// A From/To range keeps tasks whose start or deadline falls inside [From, To),
// plus unscheduled ones when IncludeUnscheduled is set.
func (s *Store) ListTasks(ctx context.Context, owner int64, filter model.Filter) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ?`
	args := []any{owner}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ActiveOnly {
		query += ` AND status <> 'completed'`
	}
	query += ` ORDER BY start_at IS NULL, start_at, id`

	tasks, err := s.queryTasks(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	if filter.From != nil || filter.To != nil {
		tasks = filterRange(tasks, filter)
	}
	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

// RecentActiveTasks returns up to limit active tasks, newest first.
func (s *Store) RecentActiveTasks(ctx context.Context, owner int64, limit int) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ? AND status <> 'completed'
		ORDER BY created_at DESC, id DESC`
	args := []any{owner}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryTasks(ctx, query, args...)
}

// ActiveTaskIDs returns the id of every active task of owner.
func (s *Store) ActiveTaskIDs(ctx context.Context, owner int64) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id FROM tasks WHERE owner_id = ? AND status <> 'completed' ORDER BY id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list active task ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RefreshStatuses runs the derivation pass over the owner's non-sticky tasks
// and persists every transition immediately. It returns the changed tasks.
func (s *Store) RefreshStatuses(ctx context.Context, owner int64) ([]model.Task, error) {
	candidates, err := s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE owner_id = ? AND status IN ('pending', 'in_progress', 'overdue')`, owner)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var changed []model.Task
	for _, task := range candidates {
		before := task.Status
		if !lifecycle.Derive(&task, now) {
			continue
		}
		if _, err := s.q.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
			string(task.Status), task.UpdatedAt.UTC(), task.ID, owner); err != nil {
			return nil, fmt.Errorf("refresh status of task %d: %w", task.ID, err)
		}
		if err := s.addHistory(ctx, owner, task.ID, "status", formatChange("status", string(before), string(task.Status))); err != nil {
			return nil, err
		}
		changed = append(changed, task)
	}
	return changed, nil
}

// queryTasks drains the result set before returning so callers can write on
// the same single connection afterwards.
func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]model.Task, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	result := []model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		result = append(result, task)
	}
	return result, rows.Err()
}

func scanTask(row rowScanner) (model.Task, error) {
	var (
		task                              model.Task
		category, priority, status        string
		start, end, deadline, completedAt sql.NullTime
		duration                          sql.NullInt64
		subtasks, files                   string
		createdAt, updatedAt              time.Time
	)
	if err := row.Scan(
		&task.ID, &task.OwnerID, &task.Title, &task.Description, &category, &priority, &status,
		&start, &end, &duration, &deadline, &task.Urgency, &subtasks, &task.AIGenerated, &task.AINotes,
		&task.IsRecurring, &task.RecurrenceRule, &files, &completedAt, &createdAt, &updatedAt,
	); err != nil {
		return model.Task{}, err
	}

	task.Category = model.Category(category)
	task.Priority = model.Priority(priority)
	task.Status = model.Status(status)
	task.Start = timePtr(start)
	task.End = timePtr(end)
	task.Deadline = timePtr(deadline)
	task.CompletedAt = timePtr(completedAt)
	task.Duration = intPtr(duration)
	task.CreatedAt = createdAt.UTC()
	task.UpdatedAt = updatedAt.UTC()

	task.Subtasks = []model.Subtask{}
	if err := decodeJSON(subtasks, &task.Subtasks); err != nil {
		return model.Task{}, fmt.Errorf("decode subtasks: %w", err)
	}
	task.AttachedFiles = []string{}
	if err := decodeJSON(files, &task.AttachedFiles); err != nil {
		return model.Task{}, fmt.Errorf("decode attached files: %w", err)
	}
	return task, nil
}

func filterRange(tasks []model.Task, filter model.Filter) []model.Task {
	inRange := func(t *time.Time) bool {
		if t == nil {
			return false
		}
		if filter.From != nil && t.Before(*filter.From) {
			return false
		}
		if filter.To != nil && !t.Before(*filter.To) {
			return false
		}
		return true
	}

	kept := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		switch {
		case inRange(task.Start), inRange(task.Deadline):
			kept = append(kept, task)
		case filter.IncludeUnscheduled && task.Start == nil:
			kept = append(kept, task)
		}
	}
	return kept
}
