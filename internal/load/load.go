// Package load derives workload metrics, advice and daily snapshots from the
// owner's tasks.
package load

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Joseda-hg/taskflow/internal/db"
	"github.com/Joseda-hg/taskflow/internal/model"
)

const (
	// DefaultTaskMinutes is assumed for tasks without a duration.
	DefaultTaskMinutes = 30
	// MaxLoadRatio caps the planned/capacity ratio.
	MaxLoadRatio = 1.5
)

type DayLoad struct {
	Date           string  `json:"date"`
	TasksCount     int     `json:"tasks_count"`
	PlannedMinutes int     `json:"planned_minutes"`
	MaxMinutes     int     `json:"max_minutes"`
	Ratio          float64 `json:"load_ratio"`
	LoadPercent    int     `json:"load_percent"`
	Overloaded     bool    `json:"overloaded"`
	CriticalCount  int     `json:"critical_count"`
	HighCount      int     `json:"high_count"`
}

// Analyzer reads through a store. Use In to run it inside a transaction.
type Analyzer struct {
	store       *db.Store
	logger      *zap.Logger
	fallbackLoc *time.Location
}

func NewAnalyzer(store *db.Store, logger *zap.Logger, fallbackLoc *time.Location) *Analyzer {
	if fallbackLoc == nil {
		fallbackLoc = time.UTC
	}
	return &Analyzer{store: store, logger: logger.Named("load"), fallbackLoc: fallbackLoc}
}

// In returns a copy of the analyzer bound to store, typically a tx store.
func (a *Analyzer) In(store *db.Store) *Analyzer {
	clone := *a
	clone.store = store
	return &clone
}

// Location is the owner's zone: the profile's, else the configured default.
func (a *Analyzer) Location(ctx context.Context, owner int64) *time.Location {
	profile, err := a.store.GetProfile(ctx, owner)
	if err != nil || profile.Timezone == "" {
		return a.fallbackLoc
	}
	loc, err := time.LoadLocation(profile.Timezone)
	if err != nil {
		a.logger.Warn("unknown profile timezone", zap.String("timezone", profile.Timezone), zap.Error(err))
		return a.fallbackLoc
	}
	return loc
}

// Today is the owner's current calendar date at local midnight.
func (a *Analyzer) Today(ctx context.Context, owner int64) time.Time {
	return StartOfDay(a.store.Now(), a.Location(ctx, owner))
}

// DayLoad measures the non-completed tasks that start on the given local
// date. The derivation pass runs first.
func (a *Analyzer) DayLoad(ctx context.Context, owner int64, date time.Time) (DayLoad, error) {
	if _, err := a.Refresh(ctx, owner); err != nil {
		return DayLoad{}, err
	}
	capacity, err := a.capacity(ctx, owner)
	if err != nil {
		return DayLoad{}, err
	}
	active, err := a.store.ListTasks(ctx, owner, model.Filter{ActiveOnly: true})
	if err != nil {
		return DayLoad{}, err
	}

	loc := a.Location(ctx, owner)
	day := StartOfDay(date, loc)
	return computeDayLoad(day, startingOn(active, day), capacity), nil
}

func computeDayLoad(day time.Time, tasks []model.Task, capacity float64) DayLoad {
	load := DayLoad{
		Date:       day.Format(model.DateLayout),
		TasksCount: len(tasks),
		MaxMinutes: int(capacity),
	}
	for _, task := range tasks {
		load.PlannedMinutes += taskMinutes(task)
		switch task.Priority {
		case model.PriorityCritical:
			load.CriticalCount++
		case model.PriorityHigh:
			load.HighCount++
		}
	}
	load.Ratio = Ratio(load.PlannedMinutes, capacity)
	load.LoadPercent = int(math.Round(load.Ratio * 100))
	load.Overloaded = load.Ratio > 1.0
	return load
}

// Ratio is planned/capacity clamped to MaxLoadRatio.
func Ratio(planned int, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return math.Min(float64(planned)/capacity, MaxLoadRatio)
}

// Refresh runs the derivation pass and recomputes the snapshot of every date
// a transitioned task counts toward. It returns the transitioned tasks.
func (a *Analyzer) Refresh(ctx context.Context, owner int64) ([]model.Task, error) {
	changed, err := a.store.RefreshStatuses(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return changed, nil
	}
	for _, day := range DistinctDates(a.Location(ctx, owner), changed) {
		if _, err := a.UpdateDailyStats(ctx, owner, day); err != nil {
			return nil, fmt.Errorf("update daily stats: %w", err)
		}
	}
	return changed, nil
}

// Overdue runs the derivation pass and returns the overdue tasks.
func (a *Analyzer) Overdue(ctx context.Context, owner int64) ([]model.Task, error) {
	if _, err := a.Refresh(ctx, owner); err != nil {
		return nil, err
	}
	return a.store.ListTasks(ctx, owner, model.Filter{Status: model.StatusOverdue})
}

// Tips composes advice in a fixed order and never returns an empty list.
func (a *Analyzer) Tips(ctx context.Context, owner int64) ([]string, error) {
	today := a.Today(ctx, owner)
	load, err := a.DayLoad(ctx, owner, today)
	if err != nil {
		return nil, err
	}
	tomorrow, err := a.DayLoad(ctx, owner, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	overdue, err := a.Overdue(ctx, owner)
	if err != nil {
		return nil, err
	}
	return composeTips(load, tomorrow, overdue), nil
}

func composeTips(today, tomorrow DayLoad, overdue []model.Task) []string {
	tips := []string{}

	if today.Overloaded {
		tips = append(tips, fmt.Sprintf("Today has %d min planned out of a %d min maximum. Consider moving some tasks.",
			today.PlannedMinutes, today.MaxMinutes))
	}
	if len(overdue) > 0 {
		titles := make([]string, 0, 3)
		for i := 0; i < len(overdue) && i < 3; i++ {
			titles = append(titles, overdue[i].Title)
		}
		tips = append(tips, fmt.Sprintf("Overdue tasks: %d. For example: %s. Want to reschedule them?",
			len(overdue), strings.Join(titles, ", ")))
	}
	if today.CriticalCount > 0 {
		tips = append(tips, fmt.Sprintf("%d critical tasks today. Start with those!", today.CriticalCount))
	}
	if tomorrow.TasksCount == 0 && len(overdue) > 0 {
		tips = append(tips, "Tomorrow is free, a good slot for the overdue tasks.")
	}

	if len(tips) == 0 {
		if today.TasksCount == 0 {
			tips = append(tips, "No tasks for today. A good moment to plan the day!")
		} else {
			tips = append(tips, fmt.Sprintf("Load: %d%%. Good pace!", today.LoadPercent))
		}
	}
	return tips
}

// UpdateDailyStats recomputes the owner's snapshot for the local date from
// every task whose start or deadline falls on it, and upserts it.
func (a *Analyzer) UpdateDailyStats(ctx context.Context, owner int64, date time.Time) (model.DailyStat, error) {
	capacity, err := a.capacity(ctx, owner)
	if err != nil {
		return model.DailyStat{}, err
	}
	tasks, err := a.store.ListTasks(ctx, owner, model.Filter{})
	if err != nil {
		return model.DailyStat{}, err
	}

	day := StartOfDay(date, a.Location(ctx, owner))
	stat := computeDailyStat(day, onDay(tasks, day), capacity)
	return a.store.UpsertDailyStat(ctx, owner, stat)
}

func computeDailyStat(day time.Time, tasks []model.Task, capacity float64) model.DailyStat {
	stat := model.DailyStat{Date: day.Format(model.DateLayout), TasksTotal: len(tasks)}
	for _, task := range tasks {
		minutes := taskMinutes(task)
		stat.MinutesPlanned += minutes
		switch task.Status {
		case model.StatusCompleted:
			stat.TasksCompleted++
			stat.MinutesCompleted += minutes
		case model.StatusOverdue:
			stat.TasksOverdue++
		case model.StatusPostponed:
			stat.TasksPostponed++
		}
	}
	stat.LoadScore = Ratio(stat.MinutesPlanned, capacity)
	stat.AllDone = stat.TasksTotal > 0 && stat.TasksCompleted == stat.TasksTotal
	return stat
}

// AffectedDates lists the local dates a task counts toward.
func AffectedDates(task model.Task, loc *time.Location) []time.Time {
	var dates []time.Time
	for _, t := range []*time.Time{task.Start, task.Deadline} {
		if t == nil {
			continue
		}
		day := StartOfDay(*t, loc)
		if len(dates) == 0 || !dates[0].Equal(day) {
			dates = append(dates, day)
		}
	}
	return dates
}

// DistinctDates merges the AffectedDates of every task, in first-seen order.
func DistinctDates(loc *time.Location, tasks ...[]model.Task) []time.Time {
	seen := map[string]bool{}
	var dates []time.Time
	for _, group := range tasks {
		for _, task := range group {
			for _, day := range AffectedDates(task, loc) {
				key := day.Format(model.DateLayout)
				if seen[key] {
					continue
				}
				seen[key] = true
				dates = append(dates, day)
			}
		}
	}
	return dates
}

func (a *Analyzer) capacity(ctx context.Context, owner int64) (float64, error) {
	profile, err := a.store.GetProfile(ctx, owner)
	if errors.Is(err, db.ErrNotFound) {
		return model.DefaultMaxDailyHours * 60, nil
	}
	if err != nil {
		return 0, err
	}
	return profile.CapacityMinutes(), nil
}

func taskMinutes(task model.Task) int {
	if task.Duration != nil && *task.Duration > 0 {
		return *task.Duration
	}
	return DefaultTaskMinutes
}

func startingOn(tasks []model.Task, day time.Time) []model.Task {
	next := day.AddDate(0, 0, 1)
	out := []model.Task{}
	for _, task := range tasks {
		if within(task.Start, day, next) {
			out = append(out, task)
		}
	}
	return out
}

func onDay(tasks []model.Task, day time.Time) []model.Task {
	next := day.AddDate(0, 0, 1)
	out := []model.Task{}
	for _, task := range tasks {
		if within(task.Start, day, next) || within(task.Deadline, day, next) {
			out = append(out, task)
		}
	}
	return out
}

func within(t *time.Time, from, to time.Time) bool {
	return t != nil && !t.Before(from) && t.Before(to)
}

// StartOfDay is local midnight of t's calendar date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
