package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Joseda-hg/taskflow/internal/db"
	"github.com/Joseda-hg/taskflow/internal/lifecycle"
	"github.com/Joseda-hg/taskflow/internal/load"
	"github.com/Joseda-hg/taskflow/internal/model"
)

const (
	DefaultStartHour = 9
	defaultUrgency   = 0.5
)

// Result is what one reconciliation pass changed. Before holds the updated
// tasks as they were ahead of the pass.
type Result struct {
	Created       []model.Task
	Updated       []model.Task
	Before        []model.Task
	Deleted       []model.Task
	MemoriesSaved []string
}

// AffectedDates lists the distinct local dates touched by the pass, in
// first-seen order. A rescheduled task counts toward its old and new dates.
func (r Result) AffectedDates(loc *time.Location) []time.Time {
	return load.DistinctDates(loc, r.Created, r.Before, r.Updated, r.Deleted)
}

// Summary is the action summary persisted with the assistant turn.
func (r Result) Summary(actions ActionSet) model.ActionSummary {
	return model.ActionSummary{
		Created:             refs(r.Created),
		Updated:             refs(r.Updated),
		Deleted:             refs(r.Deleted),
		MemoriesSaved:       nonNil(r.MemoriesSaved),
		ClarifyingQuestions: nonNil(actions.ClarifyingQuestions),
		Tips:                nonNil(actions.Tips),
		LoadWarning:         actions.LoadWarning,
	}
}

// Reconciler applies an ActionSet to the store.
type Reconciler struct {
	logger      *zap.Logger
	defaultHour int
}

func NewReconciler(logger *zap.Logger, defaultHour int) *Reconciler {
	if defaultHour < 0 || defaultHour > 23 {
		defaultHour = DefaultStartHour
	}
	return &Reconciler{logger: logger.Named("reconcile"), defaultHour: defaultHour}
}

// With returns a copy that logs through logger.
func (r *Reconciler) With(logger *zap.Logger) *Reconciler {
	clone := *r
	clone.logger = logger
	return &clone
}

// Apply runs memories, deletes, creates and updates in that order against
// tx. Callers wrap it in a transaction; any returned error means the pass
// must be rolled back.
func (r *Reconciler) Apply(ctx context.Context, tx *db.Store, owner int64, actions ActionSet, utterance string, loc *time.Location) (Result, error) {
	if loc == nil {
		loc = time.UTC
	}
	result := Result{
		Created:       []model.Task{},
		Updated:       []model.Task{},
		Before:        []model.Task{},
		Deleted:       []model.Task{},
		MemoriesSaved: []string{},
	}

	for _, mem := range actions.Memories {
		if strings.TrimSpace(mem.Key) == "" {
			continue
		}
		fact, err := tx.UpsertMemory(ctx, owner, mem.Key, mem.Value, model.ParseMemoryType(mem.Type))
		if err != nil {
			return Result{}, fmt.Errorf("save memory %q: %w", mem.Key, err)
		}
		result.MemoriesSaved = append(result.MemoriesSaved, fact.Key)
	}

	deleted, err := r.applyDeletes(ctx, tx, owner, actions.Delete, utterance)
	if err != nil {
		return Result{}, err
	}
	result.Deleted = deleted

	now := tx.Now()
	for _, fields := range actions.Create {
		task, err := tx.CreateTask(ctx, owner, r.newTask(fields, "", utterance, now, loc))
		if err != nil {
			return Result{}, fmt.Errorf("create task: %w", err)
		}
		result.Created = append(result.Created, task)
	}
	for _, fields := range actions.Unsorted {
		task, err := tx.CreateTask(ctx, owner, r.newTask(fields, model.CategoryUnsorted, utterance, now, loc))
		if err != nil {
			return Result{}, fmt.Errorf("create unsorted task: %w", err)
		}
		result.Created = append(result.Created, task)
	}

	for _, spec := range actions.Update {
		before, task, ok, err := r.applyUpdate(ctx, tx, owner, spec, loc)
		if err != nil {
			return Result{}, err
		}
		if ok {
			result.Before = append(result.Before, before)
			result.Updated = append(result.Updated, task)
		}
	}

	r.logger.Debug("reconciled",
		zap.Int("created", len(result.Created)),
		zap.Int("updated", len(result.Updated)),
		zap.Int("deleted", len(result.Deleted)),
		zap.Int("memories", len(result.MemoriesSaved)),
	)
	return result, nil
}

// applyDeletes gives the utterance precedence: a plain "delete everything"
// wipes the active tasks whatever ids the model listed.
func (r *Reconciler) applyDeletes(ctx context.Context, tx *db.Store, owner int64, spec DeleteSpec, utterance string) ([]model.Task, error) {
	if DeleteAllIntent(utterance) || spec.All {
		deleted, err := tx.DeleteActiveTasks(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("delete active tasks: %w", err)
		}
		return deleted, nil
	}

	deleted := []model.Task{}
	for _, id := range spec.IDs {
		task, err := tx.DeleteTask(ctx, owner, id)
		if errors.Is(err, db.ErrNotFound) {
			r.logger.Debug("skip delete of unknown task", zap.Int64("task", id))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("delete task %d: %w", id, err)
		}
		deleted = append(deleted, task)
	}
	return deleted, nil
}

func (r *Reconciler) newTask(f TaskFields, category model.Category, utterance string, now time.Time, loc *time.Location) model.Task {
	task := model.Task{
		Title:       lifecycle.DefaultTitle,
		Category:    model.CategoryUnsorted,
		Priority:    model.PriorityMedium,
		Status:      model.StatusPending,
		Urgency:     defaultUrgency,
		AIGenerated: true,
		Subtasks:    []model.Subtask{},
	}
	if f.Title != nil && strings.TrimSpace(*f.Title) != "" {
		task.Title = strings.TrimSpace(*f.Title)
	}
	if f.Description != nil {
		task.Description = *f.Description
	}

	switch {
	case category != "":
		task.Category = category
	case f.Category != nil:
		if c, err := model.ParseCategory(*f.Category); err == nil {
			task.Category = c
		} else {
			r.logger.Warn("invalid category, using default", zap.String("title", task.Title), zap.Error(err))
		}
	}
	if f.Priority != nil {
		if p, err := model.ParsePriority(*f.Priority); err == nil {
			task.Priority = p
		} else {
			r.logger.Warn("invalid priority, using default", zap.String("title", task.Title), zap.Error(err))
		}
	}

	task.Start = ParseTime(f.Start, loc)
	task.End = ParseTime(f.End, loc)
	task.Deadline = ParseTime(f.Deadline, loc)
	if task.Start == nil {
		if start, ok := DefaultStart(utterance, now, loc, r.defaultHour); ok {
			task.Start = &start
		}
	}
	if f.Duration != nil && *f.Duration > 0 {
		d := *f.Duration
		task.Duration = &d
	}
	if f.Urgency != nil {
		task.Urgency = *f.Urgency
	}
	if f.AINotes != nil {
		task.AINotes = *f.AINotes
	}
	for _, sub := range f.Subtasks {
		task.Subtasks = append(task.Subtasks, model.Subtask{Title: sub.Title})
	}
	if f.IsRecurring != nil {
		task.IsRecurring = *f.IsRecurring
	}
	if f.RecurrenceRule != nil {
		task.RecurrenceRule = *f.RecurrenceRule
	}
	return task
}

func (r *Reconciler) applyUpdate(ctx context.Context, tx *db.Store, owner int64, spec UpdateSpec, loc *time.Location) (model.Task, model.Task, bool, error) {
	log := r.logger.With(zap.Int64("task", spec.ID))

	before, err := tx.GetTask(ctx, owner, spec.ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			log.Debug("skip update of unknown task")
			return model.Task{}, model.Task{}, false, nil
		}
		return model.Task{}, model.Task{}, false, err
	}

	patch := r.patchFrom(spec.Fields, loc, log)
	if patch.Empty() {
		log.Debug("skip empty update")
		return model.Task{}, model.Task{}, false, nil
	}

	task, err := tx.UpdateTask(ctx, owner, spec.ID, patch)
	if err != nil {
		return model.Task{}, model.Task{}, false, fmt.Errorf("update task %d: %w", spec.ID, err)
	}
	return before, task, true, nil
}

// patchFrom keeps only the fields that were supplied and read cleanly.
func (r *Reconciler) patchFrom(f TaskFields, loc *time.Location, log *zap.Logger) model.TaskPatch {
	var patch model.TaskPatch

	if f.Title != nil {
		if title := strings.TrimSpace(*f.Title); title != "" {
			patch.Title = &title
		}
	}
	patch.Description = f.Description
	if f.Category != nil {
		if c, err := model.ParseCategory(*f.Category); err == nil {
			patch.Category = &c
		} else {
			log.Warn("ignore invalid category", zap.Error(err))
		}
	}
	if f.Priority != nil {
		if p, err := model.ParsePriority(*f.Priority); err == nil {
			patch.Priority = &p
		} else {
			log.Warn("ignore invalid priority", zap.Error(err))
		}
	}
	if f.Status != nil {
		s, err := model.ParseStatus(*f.Status)
		switch {
		case err != nil:
			log.Warn("ignore invalid status", zap.Error(err))
		case s == model.StatusOverdue:
			log.Warn("ignore explicit overdue status")
		default:
			patch.Status = &s
		}
	}

	patch.Start = ParseTime(f.Start, loc)
	patch.End = ParseTime(f.End, loc)
	patch.Deadline = ParseTime(f.Deadline, loc)
	if f.Duration != nil && *f.Duration > 0 {
		d := *f.Duration
		patch.Duration = &d
	}
	patch.Urgency = f.Urgency
	patch.AINotes = f.AINotes
	if f.Subtasks != nil {
		patch.Subtasks = f.Subtasks
	}
	patch.IsRecurring = f.IsRecurring
	patch.RecurrenceRule = f.RecurrenceRule
	return patch
}

func refs(tasks []model.Task) []model.TaskRef {
	out := make([]model.TaskRef, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Ref())
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
