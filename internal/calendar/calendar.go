// Package calendar mirrors scheduled tasks into a Google Calendar.
package calendar

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/Joseda-hg/taskflow/internal/db"
	"github.com/Joseda-hg/taskflow/internal/load"
	"github.com/Joseda-hg/taskflow/internal/model"
)

// TaskIDProperty is the private extended property that links an event to
// its task.
const TaskIDProperty = "taskflow_id"

const defaultEventMinutes = 30

// Events is the slice of the Calendar API the syncer needs.
type Events interface {
	FindByTask(ctx context.Context, taskID string) (*gcal.Event, error)
	Insert(ctx context.Context, event *gcal.Event) (*gcal.Event, error)
	Patch(ctx context.Context, eventID string, event *gcal.Event) (*gcal.Event, error)
}

type Result struct {
	Inserted int `json:"inserted"`
	Patched  int `json:"patched"`
	Skipped  int `json:"skipped"`
}

type Syncer struct {
	store    *db.Store
	analyzer *load.Analyzer
	events   Events
	logger   *zap.Logger
}

func NewSyncer(store *db.Store, analyzer *load.Analyzer, events Events, logger *zap.Logger) *Syncer {
	return &Syncer{store: store, analyzer: analyzer, events: events, logger: logger.Named("calendar")}
}

// Sync pushes every active task with a start time. Events already carrying
// the task id are patched when they drifted, the rest are inserted.
func (s *Syncer) Sync(ctx context.Context, owner int64) (Result, error) {
	if _, err := s.analyzer.Refresh(ctx, owner); err != nil {
		return Result{}, err
	}
	tasks, err := s.store.ListTasks(ctx, owner, model.Filter{ActiveOnly: true})
	if err != nil {
		return Result{}, err
	}
	loc := s.analyzer.Location(ctx, owner)

	var res Result
	for _, task := range tasks {
		if task.Start == nil {
			continue
		}
		desired := EventFor(task, loc)

		existing, err := s.events.FindByTask(ctx, desired.ExtendedProperties.Private[TaskIDProperty])
		if err != nil {
			return res, fmt.Errorf("find event for task %d: %w", task.ID, err)
		}

		switch {
		case existing == nil:
			if _, err := s.events.Insert(ctx, desired); err != nil {
				return res, fmt.Errorf("insert event for task %d: %w", task.ID, err)
			}
			res.Inserted++
		case needsUpdate(existing, desired):
			if _, err := s.events.Patch(ctx, existing.Id, desired); err != nil {
				return res, fmt.Errorf("patch event %s: %w", existing.Id, err)
			}
			res.Patched++
		default:
			res.Skipped++
		}
	}

	s.logger.Info("calendar synced",
		zap.Int64("owner", owner),
		zap.Int("inserted", res.Inserted),
		zap.Int("patched", res.Patched),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// EventFor renders task as an event in loc. The end is the task's end, else
// start plus its duration, else start plus thirty minutes.
func EventFor(task model.Task, loc *time.Location) *gcal.Event {
	start := task.Start.In(loc)
	end := start.Add(defaultEventMinutes * time.Minute)
	switch {
	case task.End != nil && task.End.After(*task.Start):
		end = task.End.In(loc)
	case task.Duration != nil && *task.Duration > 0:
		end = start.Add(time.Duration(*task.Duration) * time.Minute)
	}

	return &gcal.Event{
		Summary:     task.Title,
		Description: task.Description,
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: loc.String()},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: loc.String()},
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{TaskIDProperty: strconv.FormatInt(task.ID, 10)},
		},
	}
}

func needsUpdate(existing, desired *gcal.Event) bool {
	if existing.Summary != desired.Summary || existing.Description != desired.Description {
		return true
	}
	return !sameInstant(existing.Start, desired.Start) || !sameInstant(existing.End, desired.End)
}

// The API echoes times back in the calendar's zone, so compare instants.
func sameInstant(a, b *gcal.EventDateTime) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, errA := time.Parse(time.RFC3339, a.DateTime)
	tb, errB := time.Parse(time.RFC3339, b.DateTime)
	if errA != nil || errB != nil {
		return a.DateTime == b.DateTime
	}
	return ta.Equal(tb)
}
