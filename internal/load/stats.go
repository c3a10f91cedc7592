package load

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/Joseda-hg/taskflow/internal/model"
)

// StreakWindowDays bounds how far back a streak is searched.
const StreakWindowDays = 90

type Overview struct {
	TotalTasks     int                    `json:"total_tasks"`
	Completed      int                    `json:"completed"`
	Overdue        int                    `json:"overdue"`
	Pending        int                    `json:"pending"`
	CompletionRate int                    `json:"completion_rate"`
	StreakDays     int                    `json:"streak_days"`
	ByCategory     map[model.Category]int `json:"by_category"`
	ByPriority     map[model.Priority]int `json:"by_priority"`
}

// DailyPoint is one row of the daily chart. LoadScore is a percentage.
type DailyPoint struct {
	Date           string `json:"date"`
	Total          int    `json:"total"`
	Completed      int    `json:"completed"`
	Overdue        int    `json:"overdue"`
	LoadScore      int    `json:"load_score"`
	AllDone        bool   `json:"all_done"`
	MinutesPlanned int    `json:"minutes_planned"`
	MinutesDone    int    `json:"minutes_done"`
}

type HeatCell struct {
	Completed int  `json:"completed"`
	Total     int  `json:"total"`
	AllDone   bool `json:"all_done"`
}

func (a *Analyzer) Overview(ctx context.Context, owner int64) (Overview, error) {
	if _, err := a.Refresh(ctx, owner); err != nil {
		return Overview{}, err
	}
	tasks, err := a.store.ListTasks(ctx, owner, model.Filter{})
	if err != nil {
		return Overview{}, err
	}

	out := Overview{
		TotalTasks: len(tasks),
		ByCategory: map[model.Category]int{},
		ByPriority: map[model.Priority]int{},
	}
	for _, task := range tasks {
		switch task.Status {
		case model.StatusCompleted:
			out.Completed++
		case model.StatusOverdue:
			out.Overdue++
		case model.StatusPending:
			out.Pending++
		}
		out.ByCategory[task.Category]++
		out.ByPriority[task.Priority]++
	}
	if out.TotalTasks > 0 {
		out.CompletionRate = int(math.Round(float64(out.Completed) / float64(out.TotalTasks) * 100))
	}

	out.StreakDays, err = a.Streak(ctx, owner)
	if err != nil {
		return Overview{}, err
	}
	return out, nil
}

// Streak counts consecutive all-done days ending today.
func (a *Analyzer) Streak(ctx context.Context, owner int64) (int, error) {
	today := a.Today(ctx, owner)
	from := today.AddDate(0, 0, -StreakWindowDays).Format(model.DateLayout)
	stats, err := a.store.ListDailyStats(ctx, owner, from, today.Format(model.DateLayout))
	if err != nil {
		return 0, err
	}

	done := make(map[string]bool, len(stats))
	for _, stat := range stats {
		done[stat.Date] = stat.AllDone
	}

	streak := 0
	for day := today; done[day.Format(model.DateLayout)]; day = day.AddDate(0, 0, -1) {
		streak++
	}
	return streak, nil
}

// Daily returns the snapshots of the last days days, oldest first.
func (a *Analyzer) Daily(ctx context.Context, owner int64, days int) ([]DailyPoint, error) {
	if days <= 0 {
		days = 30
	}
	today := a.Today(ctx, owner)
	stats, err := a.store.ListDailyStats(ctx, owner,
		today.AddDate(0, 0, -days).Format(model.DateLayout), today.Format(model.DateLayout))
	if err != nil {
		return nil, err
	}

	points := make([]DailyPoint, 0, len(stats))
	for _, stat := range stats {
		points = append(points, DailyPoint{
			Date:           stat.Date,
			Total:          stat.TasksTotal,
			Completed:      stat.TasksCompleted,
			Overdue:        stat.TasksOverdue,
			LoadScore:      int(math.Round(stat.LoadScore * 100)),
			AllDone:        stat.AllDone,
			MinutesPlanned: stat.MinutesPlanned,
			MinutesDone:    stat.MinutesCompleted,
		})
	}
	return points, nil
}

// Heatmap maps each recorded date of year to its completion counts. A zero
// year means the owner's current year.
func (a *Analyzer) Heatmap(ctx context.Context, owner int64, year int) (map[string]HeatCell, error) {
	if year <= 0 {
		year = a.Today(ctx, owner).Year()
	}
	y := strconv.Itoa(year)
	stats, err := a.store.ListDailyStats(ctx, owner, y+"-01-01", y+"-12-31")
	if err != nil {
		return nil, err
	}

	cells := make(map[string]HeatCell, len(stats))
	for _, stat := range stats {
		cells[stat.Date] = HeatCell{Completed: stat.TasksCompleted, Total: stat.TasksTotal, AllDone: stat.AllDone}
	}
	return cells, nil
}

// Window is the [from, to) range of the calendar view containing date.
func Window(view string, date time.Time) (time.Time, time.Time) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	switch view {
	case "week":
		offset := (int(day.Weekday()) + 6) % 7
		from := day.AddDate(0, 0, -offset)
		return from, from.AddDate(0, 0, 7)
	case "month":
		from := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return from, from.AddDate(0, 1, 0)
	case "year":
		from := time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, day.Location())
		return from, from.AddDate(1, 0, 0)
	default:
		return day, day.AddDate(0, 0, 1)
	}
}
