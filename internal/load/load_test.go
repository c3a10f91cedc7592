package load

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Joseda-hg/taskflow/internal/db"
	"github.com/Joseda-hg/taskflow/internal/model"
)

var testNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestAnalyzer(t *testing.T) (*Analyzer, *db.Store) {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	store := db.NewStore(conn).WithClock(func() time.Time { return testNow })
	return NewAnalyzer(store, zap.NewNop(), time.UTC), store
}

func addTask(t *testing.T, store *db.Store, title string, start time.Time, minutes int, priority model.Priority) model.Task {
	t.Helper()
	task, err := store.CreateTask(context.Background(), 1, model.Task{
		Title:    title,
		Start:    &start,
		Duration: &minutes,
		Priority: priority,
	})
	require.NoError(t, err)
	return task
}

func TestDayLoadAndOverloadClamp(t *testing.T) {
	a, store := newTestAnalyzer(t)
	ctx := context.Background()
	hours := 8.0
	_, err := store.UpdateProfile(ctx, 1, model.ProfilePatch{MaxDailyHours: &hours})
	require.NoError(t, err)

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	addTask(t, store, "Report", day.Add(9*time.Hour), 180, model.PriorityHigh)
	addTask(t, store, "Meeting", day.Add(13*time.Hour), 120, model.PriorityCritical)
	addTask(t, store, "Email", day.Add(16*time.Hour), 60, "")

	load, err := a.DayLoad(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, 3, load.TasksCount)
	assert.Equal(t, 360, load.PlannedMinutes)
	assert.Equal(t, 480, load.MaxMinutes)
	assert.Equal(t, 75, load.LoadPercent)
	assert.False(t, load.Overloaded)
	assert.Equal(t, 1, load.CriticalCount)
	assert.Equal(t, 1, load.HighCount)

	addTask(t, store, "Move", day.Add(18*time.Hour), 300, "")
	load, err = a.DayLoad(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, 660, load.PlannedMinutes)
	assert.InDelta(t, MaxLoadRatio, load.Ratio, 1e-9)
	assert.Equal(t, 150, load.LoadPercent)
	assert.True(t, load.Overloaded)
}

func TestDayLoadCountsMissingDurationAsThirtyAndSkipsCompleted(t *testing.T) {
	a, store := newTestAnalyzer(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)

	_, err := store.CreateTask(ctx, 1, model.Task{Title: "No duration", Start: &start})
	require.NoError(t, err)
	done := addTask(t, store, "Done", start, 90, "")
	_, err = store.CompleteTask(ctx, 1, done.ID)
	require.NoError(t, err)

	load, err := a.DayLoad(ctx, 1, start)
	require.NoError(t, err)
	assert.Equal(t, 1, load.TasksCount)
	assert.Equal(t, DefaultTaskMinutes, load.PlannedMinutes)
}

func TestTipsNeverEmpty(t *testing.T) {
	a, store := newTestAnalyzer(t)
	ctx := context.Background()

	tips, err := a.Tips(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"No tasks for today. A good moment to plan the day!"}, tips)

	addTask(t, store, "Light", testNow.Add(2*time.Hour), 30, "")
	tips, err = a.Tips(ctx, 1)
	require.NoError(t, err)
	require.Len(t, tips, 1)
	assert.Contains(t, tips[0], "Good pace")
}

func TestTipsOrder(t *testing.T) {
	a, store := newTestAnalyzer(t)
	ctx := context.Background()

	addTask(t, store, "Marathon", testNow.Add(time.Hour), 600, model.PriorityCritical)
	for _, title := range []string{"Old 1", "Old 2", "Old 3", "Old 4"} {
		deadline := testNow.Add(-48 * time.Hour)
		_, err := store.CreateTask(ctx, 1, model.Task{Title: title, Deadline: &deadline})
		require.NoError(t, err)
	}

	tips, err := a.Tips(ctx, 1)
	require.NoError(t, err)
	require.Len(t, tips, 4)
	assert.Contains(t, tips[0], "600 min planned")
	assert.Contains(t, tips[1], "Overdue tasks: 4")
	assert.Contains(t, tips[1], "Old 1, Old 2, Old 3.")
	assert.Contains(t, tips[2], "1 critical")
	assert.Contains(t, tips[3], "Tomorrow is free")
}

func TestComposeTipsFallbacks(t *testing.T) {
	assert.NotEmpty(t, composeTips(DayLoad{}, DayLoad{}, nil))
	assert.NotEmpty(t, composeTips(DayLoad{TasksCount: 2, LoadPercent: 40}, DayLoad{TasksCount: 1}, nil))
}

func TestUpdateDailyStatsAndStreak(t *testing.T) {
	a, store := newTestAnalyzer(t)
	ctx := context.Background()

	today := StartOfDay(testNow, time.UTC)
	for i := 1; i <= 2; i++ {
		day := today.AddDate(0, 0, -i)
		_, err := store.UpsertDailyStat(ctx, 1, model.DailyStat{Date: day.Format(model.DateLayout), TasksTotal: 1, TasksCompleted: 1, AllDone: true})
		require.NoError(t, err)
	}

	task := addTask(t, store, "Walk", today.Add(10*time.Hour), 45, "")
	stat, err := a.UpdateDailyStats(ctx, 1, today)
	require.NoError(t, err)
	assert.Equal(t, 1, stat.TasksTotal)
	assert.False(t, stat.AllDone)
	assert.Equal(t, 45, stat.MinutesPlanned)

	streak, err := a.Streak(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, streak, "today is not done yet")

	_, err = store.CompleteTask(ctx, 1, task.ID)
	require.NoError(t, err)
	stat, err = a.UpdateDailyStats(ctx, 1, today)
	require.NoError(t, err)
	assert.True(t, stat.AllDone)
	assert.Equal(t, 45, stat.MinutesCompleted)

	streak, err = a.Streak(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, streak)

	points, err := a.Daily(ctx, 1, 7)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, today.Format(model.DateLayout), points[2].Date)

	heat, err := a.Heatmap(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, heat, 3)
	none, err := a.Heatmap(ctx, 1, 2024)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOverview(t *testing.T) {
	a, store := newTestAnalyzer(t)
	ctx := context.Background()

	done := addTask(t, store, "Done", testNow.Add(time.Hour), 30, model.PriorityHigh)
	_, err := store.CompleteTask(ctx, 1, done.ID)
	require.NoError(t, err)
	addTask(t, store, "Open", testNow.Add(2*time.Hour), 30, model.PriorityHigh)
	deadline := testNow.Add(-time.Hour)
	_, err = store.CreateTask(ctx, 1, model.Task{Title: "Late", Deadline: &deadline, Category: model.CategoryFinance})
	require.NoError(t, err)

	got, err := a.Overview(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalTasks)
	assert.Equal(t, 1, got.Completed)
	assert.Equal(t, 1, got.Overdue)
	assert.Equal(t, 1, got.Pending)
	assert.Equal(t, 33, got.CompletionRate)
	assert.Equal(t, 2, got.ByPriority[model.PriorityHigh])
	assert.Equal(t, 1, got.ByCategory[model.CategoryFinance])
}

func TestWindow(t *testing.T) {
	date := time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC) // Wednesday
	from, to := Window("week", date)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), to)

	from, to = Window("month", date)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), to)

	from, to = Window("day", date)
	assert.Equal(t, 24*time.Hour, to.Sub(from))
}
