// Package lifecycle holds the task state rules: status derivation, end-time
// derivation, completion stamping and partial updates. Everything here is
// pure; callers persist the result.
package lifecycle

import (
	"errors"
	"strings"
	"time"

	"github.com/Joseda-hg/taskflow/internal/model"
)

const DefaultTitle = "Untitled task"

var (
	ErrEmptyTitle    = errors.New("task title is required")
	ErrDerivedStatus = errors.New("overdue status is derived and cannot be set directly")
)

// Overdue reports whether the task has run past its scheduled slot or its
// deadline at now.
func Overdue(t model.Task, now time.Time) bool {
	if t.Start != nil && t.Duration != nil {
		if t.Start.Add(minutes(*t.Duration)).Before(now) {
			return true
		}
	}
	return t.Deadline != nil && t.Deadline.Before(now)
}

// Derive runs one derivation pass over t and reports whether the status
// changed. Completed and postponed tasks are never touched; an overdue task
// whose slot and deadline moved into the future recovers to pending.
func Derive(t *model.Task, now time.Time) bool {
	if t.Status.Sticky() {
		return false
	}

	late := Overdue(*t, now)
	switch {
	case late && t.Status != model.StatusOverdue:
		t.Status = model.StatusOverdue
	case !late && t.Status == model.StatusOverdue:
		t.Status = model.StatusPending
	default:
		return false
	}
	t.UpdatedAt = now
	return true
}

// DeriveEnd fills End from Start+Duration when End is absent.
func DeriveEnd(t *model.Task) {
	if t.End != nil || t.Start == nil || t.Duration == nil {
		return
	}
	end := t.Start.Add(minutes(*t.Duration))
	t.End = &end
}

// SetStatus applies an explicit status transition, stamping or clearing the
// completion time.
func SetStatus(t *model.Task, status model.Status, now time.Time) {
	t.Status = status
	if status == model.StatusCompleted {
		if t.CompletedAt == nil {
			stamp := now
			t.CompletedAt = &stamp
		}
	} else {
		t.CompletedAt = nil
	}
	t.UpdatedAt = now
}

// Prepare normalizes a task about to be inserted: defaults, clamped urgency,
// derived end time and an initial derivation pass so a task created with a
// past deadline starts out overdue.
func Prepare(t *model.Task, now time.Time) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		t.Title = DefaultTitle
	}
	if t.Category == "" {
		t.Category = model.CategoryUnsorted
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	if t.Status == "" || t.Status == model.StatusOverdue {
		t.Status = model.StatusPending
	}
	if t.Duration != nil && *t.Duration <= 0 {
		t.Duration = nil
	}
	t.Urgency = clampUrgency(t.Urgency)
	if t.Subtasks == nil {
		t.Subtasks = []model.Subtask{}
	}
	if t.AttachedFiles == nil {
		t.AttachedFiles = []string{}
	}

	DeriveEnd(t)
	if t.Status == model.StatusCompleted {
		SetStatus(t, t.Status, now)
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	Derive(t, now)
}

// ApplyPatch merges p into t. When the patch carries no explicit status the
// derivation pass runs afterwards, so moving a deadline can flip overdue.
func ApplyPatch(t *model.Task, p model.TaskPatch, now time.Time) error {
	if p.Status != nil && *p.Status == model.StatusOverdue {
		return ErrDerivedStatus
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return ErrEmptyTitle
		}
		t.Title = title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Urgency != nil {
		t.Urgency = clampUrgency(*p.Urgency)
	}
	if p.Subtasks != nil {
		t.Subtasks = p.Subtasks
	}
	if p.AINotes != nil {
		t.AINotes = *p.AINotes
	}
	if p.IsRecurring != nil {
		t.IsRecurring = *p.IsRecurring
	}
	if p.RecurrenceRule != nil {
		t.RecurrenceRule = *p.RecurrenceRule
	}
	if p.Deadline != nil {
		t.Deadline = p.Deadline
	}

	rescheduled := false
	if p.Start != nil {
		t.Start = p.Start
		rescheduled = true
	}
	if p.Duration != nil {
		if *p.Duration > 0 {
			t.Duration = p.Duration
		} else {
			t.Duration = nil
		}
		rescheduled = true
	}
	switch {
	case p.End != nil:
		t.End = p.End
	case rescheduled && t.Start != nil && t.Duration != nil:
		t.End = nil
		DeriveEnd(t)
	}

	t.UpdatedAt = now
	if p.Status != nil {
		SetStatus(t, *p.Status, now)
	} else {
		Derive(t, now)
	}
	return nil
}

// Postpone moves a task to newStart. A scheduled slot keeps its duration
// (60 minutes when unknown) and a deadline moves with it.
func Postpone(t *model.Task, newStart time.Time, now time.Time) {
	if t.Start != nil {
		duration := 60
		if t.Duration != nil {
			duration = *t.Duration
		}
		start := newStart
		end := newStart.Add(minutes(duration))
		t.Start = &start
		t.End = &end
	}
	if t.Deadline != nil {
		deadline := newStart
		t.Deadline = &deadline
	}
	SetStatus(t, model.StatusPostponed, now)
}

func clampUrgency(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
