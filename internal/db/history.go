package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Joseda-hg/taskflow/internal/model"
)

func (s *Store) addHistory(ctx context.Context, owner, taskID int64, eventType, details string) error {
	if _, err := s.q.ExecContext(ctx, `INSERT INTO task_history (owner_id, task_id, event_type, details, created_at)
		VALUES (?, ?, ?, ?, ?)`, owner, taskID, eventType, details, s.now().UTC()); err != nil {
		return fmt.Errorf("add history for task %d: %w", taskID, err)
	}
	return nil
}

func (s *Store) ListHistory(ctx context.Context, owner, taskID int64) ([]model.HistoryEntry, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, task_id, event_type, details, created_at FROM task_history
		WHERE owner_id = ? AND task_id = ? ORDER BY created_at, id`, owner, taskID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	history := []model.HistoryEntry{}
	for rows.Next() {
		var entry model.HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.TaskID, &entry.EventType, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		history = append(history, entry)
	}
	return history, rows.Err()
}

func formatCreatedDetails(task model.Task) string {
	return fmt.Sprintf("created: title='%s' category=%s priority=%s status=%s start=%s deadline=%s",
		task.Title, task.Category, task.Priority, task.Status, formatTime(task.Start), formatTime(task.Deadline))
}

func formatDeletedDetails(task model.Task) string {
	return fmt.Sprintf("deleted: title='%s' category=%s priority=%s status=%s start=%s deadline=%s",
		task.Title, task.Category, task.Priority, task.Status, formatTime(task.Start), formatTime(task.Deadline))
}

func formatTaskDiff(before, after model.Task) string {
	changes := []string{}
	if before.Title != after.Title {
		changes = append(changes, formatChange("title", before.Title, after.Title))
	}
	if before.Description != after.Description {
		changes = append(changes, formatChange("description", before.Description, after.Description))
	}
	if before.Category != after.Category {
		changes = append(changes, formatChange("category", string(before.Category), string(after.Category)))
	}
	if before.Priority != after.Priority {
		changes = append(changes, formatChange("priority", string(before.Priority), string(after.Priority)))
	}
	if before.Status != after.Status {
		changes = append(changes, formatChange("status", string(before.Status), string(after.Status)))
	}
	if formatTime(before.Start) != formatTime(after.Start) {
		changes = append(changes, formatChange("start", formatTime(before.Start), formatTime(after.Start)))
	}
	if formatTime(before.End) != formatTime(after.End) {
		changes = append(changes, formatChange("end", formatTime(before.End), formatTime(after.End)))
	}
	if formatDuration(before.Duration) != formatDuration(after.Duration) {
		changes = append(changes, formatChange("duration", formatDuration(before.Duration), formatDuration(after.Duration)))
	}
	if formatTime(before.Deadline) != formatTime(after.Deadline) {
		changes = append(changes, formatChange("deadline", formatTime(before.Deadline), formatTime(after.Deadline)))
	}
	if formatSubtasks(before.Subtasks) != formatSubtasks(after.Subtasks) {
		changes = append(changes, formatChange("subtasks", formatSubtasks(before.Subtasks), formatSubtasks(after.Subtasks)))
	}

	if len(changes) == 0 {
		return "updated: no changes"
	}

	return "updated: " + strings.Join(changes, "; ")
}

func formatChange(field, before, after string) string {
	return fmt.Sprintf("%s: '%s' -> '%s'", field, valueOrNone(before), valueOrNone(after))
}

func valueOrNone(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "none"
	}
	return trimmed
}

func formatTime(value *time.Time) string {
	if value == nil {
		return "none"
	}
	return value.UTC().Format("2006-01-02 15:04")
}

func formatDuration(value *int) string {
	if value == nil {
		return "none"
	}
	return fmt.Sprintf("%dm", *value)
}

func formatSubtasks(subtasks []model.Subtask) string {
	if len(subtasks) == 0 {
		return "none"
	}

	parts := make([]string, 0, len(subtasks))
	for _, sub := range subtasks {
		mark := " "
		if sub.Done {
			mark = "x"
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", mark, sub.Title))
	}
	return strings.Join(parts, ", ")
}
