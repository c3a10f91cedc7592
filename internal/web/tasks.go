package web

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Joseda-hg/taskflow/internal/agent"
	"github.com/Joseda-hg/taskflow/internal/db"
	"github.com/Joseda-hg/taskflow/internal/lifecycle"
	"github.com/Joseda-hg/taskflow/internal/load"
	"github.com/Joseda-hg/taskflow/internal/model"
)

// taskInput is the JSON body of task create and update requests. Absent
// fields are left untouched on update.
type taskInput struct {
	Title          *string         `json:"title"`
	Description    *string         `json:"description"`
	Category       *string         `json:"category"`
	Priority       *string         `json:"priority"`
	Status         *string         `json:"status"`
	Start          *string         `json:"start_datetime"`
	End            *string         `json:"end_datetime"`
	Duration       *int            `json:"duration_minutes"`
	Deadline       *string         `json:"deadline"`
	Urgency        *float64        `json:"urgency_score"`
	Subtasks       []model.Subtask `json:"subtasks"`
	AINotes        *string         `json:"ai_notes"`
	IsRecurring    *bool           `json:"is_recurring"`
	RecurrenceRule *string         `json:"recurrence_rule"`
}

func (in taskInput) patch(loc *time.Location) (model.TaskPatch, error) {
	var p model.TaskPatch
	var err error

	p.Title = in.Title
	p.Description = in.Description
	if in.Category != nil {
		c, err := model.ParseCategory(*in.Category)
		if err != nil {
			return p, err
		}
		p.Category = &c
	}
	if in.Priority != nil {
		pr, err := model.ParsePriority(*in.Priority)
		if err != nil {
			return p, err
		}
		p.Priority = &pr
	}
	if in.Status != nil {
		st, err := model.ParseStatus(*in.Status)
		if err != nil {
			return p, err
		}
		if st == model.StatusOverdue {
			return p, lifecycle.ErrDerivedStatus
		}
		p.Status = &st
	}
	if p.Start, err = parseTimeField("start_datetime", in.Start, loc); err != nil {
		return p, err
	}
	if p.End, err = parseTimeField("end_datetime", in.End, loc); err != nil {
		return p, err
	}
	if p.Deadline, err = parseTimeField("deadline", in.Deadline, loc); err != nil {
		return p, err
	}
	if in.Duration != nil && *in.Duration < 0 {
		return p, badRequest("duration_minutes must not be negative")
	}
	p.Duration = in.Duration
	p.Urgency = in.Urgency
	p.Subtasks = in.Subtasks
	p.AINotes = in.AINotes
	p.IsRecurring = in.IsRecurring
	p.RecurrenceRule = in.RecurrenceRule
	return p, nil
}

func (in taskInput) task(loc *time.Location) (model.Task, error) {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return model.Task{}, lifecycle.ErrEmptyTitle
	}
	p, err := in.patch(loc)
	if err != nil {
		return model.Task{}, err
	}

	task := model.Task{
		Title:          *p.Title,
		Start:          p.Start,
		End:            p.End,
		Duration:       p.Duration,
		Deadline:       p.Deadline,
		Urgency:        0.5,
		Subtasks:       p.Subtasks,
		RecurrenceRule: deref(p.RecurrenceRule),
		Description:    deref(p.Description),
		AINotes:        deref(p.AINotes),
	}
	if p.Category != nil {
		task.Category = *p.Category
	}
	if p.Priority != nil {
		task.Priority = *p.Priority
	}
	if p.Status != nil {
		task.Status = *p.Status
	}
	if p.Urgency != nil {
		task.Urgency = *p.Urgency
	}
	if p.IsRecurring != nil {
		task.IsRecurring = *p.IsRecurring
	}
	return task, nil
}

func parseTimeField(name string, raw *string, loc *time.Location) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t := agent.ParseTime(raw, loc)
	if t == nil {
		return nil, badRequest(fmt.Sprintf("invalid %s %q", name, *raw))
	}
	return t, nil
}

func (s *Server) handleListTasks(c *gin.Context) {
	ctx := c.Request.Context()
	date, err := s.dateParam(ctx, c.Query("date"))
	if err != nil {
		s.fail(c, err)
		return
	}

	var filter model.Filter
	if value := c.Query("category"); value != "" {
		if filter.Category, err = model.ParseCategory(value); err != nil {
			s.fail(c, err)
			return
		}
	}
	if value := c.Query("status"); value != "" {
		if filter.Status, err = model.ParseStatus(value); err != nil {
			s.fail(c, err)
			return
		}
	}

	tasks, err := s.rangeTasks(ctx, c.DefaultQuery("view", "day"), date, filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// rangeTasks lists tasks whose start or deadline falls in the calendar view
// around date, plus unscheduled ones.
func (s *Server) rangeTasks(ctx context.Context, view string, date time.Time, filter ...model.Filter) ([]model.Task, error) {
	if _, err := s.analyzer.Refresh(ctx, s.owner); err != nil {
		return nil, err
	}
	var f model.Filter
	if len(filter) > 0 {
		f = filter[0]
	}
	from, to := load.Window(view, date)
	f.From, f.To = &from, &to
	f.IncludeUnscheduled = true
	return s.store.ListTasks(ctx, s.owner, f)
}

func (s *Server) handleUnsorted(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := s.analyzer.Refresh(ctx, s.owner); err != nil {
		s.fail(c, err)
		return
	}
	tasks, err := s.store.ListTasks(ctx, s.owner, model.Filter{
		Category:   model.CategoryUnsorted,
		ActiveOnly: true,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleOverdue(c *gin.Context) {
	tasks, err := s.analyzer.Overdue(c.Request.Context(), s.owner)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleTips(c *gin.Context) {
	ctx := c.Request.Context()
	tips, err := s.analyzer.Tips(ctx, s.owner)
	if err != nil {
		s.fail(c, err)
		return
	}
	today, err := s.analyzer.DayLoad(ctx, s.owner, s.analyzer.Today(ctx, s.owner))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tips": tips, "today_load": today})
}

func (s *Server) handleDayLoad(c *gin.Context) {
	ctx := c.Request.Context()
	date, err := s.dateParam(ctx, c.Param("date"))
	if err != nil {
		s.fail(c, err)
		return
	}
	day, err := s.analyzer.DayLoad(ctx, s.owner, date)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, day)
}

func (s *Server) handleGetTask(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := paramID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	if _, err := s.analyzer.Refresh(ctx, s.owner); err != nil {
		s.fail(c, err)
		return
	}
	task, err := s.store.GetTask(ctx, s.owner, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	history, err := s.store.ListHistory(ctx, s.owner, id)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, struct {
		Task    model.Task           `json:"task"`
		History []model.HistoryEntry `json:"history"`
	}{Task: task, History: history})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	ctx := c.Request.Context()
	var in taskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.fail(c, badRequest(err.Error()))
		return
	}
	task, err := in.task(s.analyzer.Location(ctx, s.owner))
	if err != nil {
		s.fail(c, err)
		return
	}

	var created model.Task
	err = s.mutate(ctx, func(tx *db.Store) ([]model.Task, error) {
		var err error
		created, err = tx.CreateTask(ctx, s.owner, task)
		return []model.Task{created}, err
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := paramID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	var in taskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.fail(c, badRequest(err.Error()))
		return
	}
	patch, err := in.patch(s.analyzer.Location(ctx, s.owner))
	if err != nil {
		s.fail(c, err)
		return
	}
	if patch.Empty() {
		s.fail(c, badRequest("no fields to update"))
		return
	}

	s.respondMutation(c, id, func(tx *db.Store) (model.Task, error) {
		return tx.UpdateTask(ctx, s.owner, id, patch)
	})
}

func (s *Server) handleCompleteTask(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := paramID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondMutation(c, id, func(tx *db.Store) (model.Task, error) {
		return tx.CompleteTask(ctx, s.owner, id)
	})
}

func (s *Server) handlePostponeTask(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := paramID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	raw := c.Query("new_date")
	if strings.TrimSpace(raw) == "" {
		s.fail(c, badRequest("new_date is required"))
		return
	}
	newStart, err := parseTimeField("new_date", &raw, s.analyzer.Location(ctx, s.owner))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondMutation(c, id, func(tx *db.Store) (model.Task, error) {
		return tx.PostponeTask(ctx, s.owner, id, *newStart)
	})
}

func (s *Server) handleToggleSubtask(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := paramID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		s.fail(c, badRequest("invalid subtask index"))
		return
	}
	s.respondMutation(c, id, func(tx *db.Store) (model.Task, error) {
		return tx.ToggleSubtask(ctx, s.owner, id, idx)
	})
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := paramID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}

	var deleted model.Task
	err = s.mutate(ctx, func(tx *db.Store) ([]model.Task, error) {
		var err error
		deleted, err = tx.DeleteTask(ctx, s.owner, id)
		return []model.Task{deleted}, err
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": deleted.Ref()})
}

// respondMutation runs fn on an existing task and answers with the result.
// Stats are refreshed for both the old and the new dates.
func (s *Server) respondMutation(c *gin.Context, id int64, fn func(tx *db.Store) (model.Task, error)) {
	ctx := c.Request.Context()
	var after model.Task
	err := s.mutate(ctx, func(tx *db.Store) ([]model.Task, error) {
		before, err := tx.GetTask(ctx, s.owner, id)
		if err != nil {
			return nil, err
		}
		after, err = fn(tx)
		if err != nil {
			return nil, err
		}
		return []model.Task{before, after}, nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, after)
}

// mutate runs fn in one transaction and refreshes the daily snapshot of every
// date the returned tasks touch.
func (s *Server) mutate(ctx context.Context, fn func(tx *db.Store) ([]model.Task, error)) error {
	return s.store.WithTx(ctx, func(tx *db.Store) error {
		touched, err := fn(tx)
		if err != nil {
			return err
		}

		analyzer := s.analyzer.In(tx)
		loc := analyzer.Location(ctx, s.owner)
		seen := map[string]bool{}
		for _, task := range touched {
			for _, day := range load.AffectedDates(task, loc) {
				key := day.Format(model.DateLayout)
				if seen[key] {
					continue
				}
				seen[key] = true
				if _, err := analyzer.UpdateDailyStats(ctx, s.owner, day); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// dateParam reads YYYY-MM-DD in the owner's zone; empty means today.
func (s *Server) dateParam(ctx context.Context, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return s.analyzer.Today(ctx, s.owner), nil
	}
	date, err := time.ParseInLocation(model.DateLayout, value, s.analyzer.Location(ctx, s.owner))
	if err != nil {
		return time.Time{}, badRequest(fmt.Sprintf("invalid date %q, want YYYY-MM-DD", value))
	}
	return date, nil
}

func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(fmt.Sprintf("invalid %s %q", name, c.Param(name)))
	}
	return id, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type taskRow struct {
	Task  model.Task
	When  string
	Done  int
	Total int
}

func buildTaskRows(tasks []model.Task, loc *time.Location) []taskRow {
	rows := make([]taskRow, 0, len(tasks))
	for _, task := range tasks {
		row := taskRow{Task: task, When: "unscheduled", Total: len(task.Subtasks)}
		if task.Start != nil {
			row.When = task.Start.In(loc).Format("15:04")
		}
		for _, sub := range task.Subtasks {
			if sub.Done {
				row.Done++
			}
		}
		rows = append(rows, row)
	}
	return rows
}
