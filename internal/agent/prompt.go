package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Joseda-hg/taskflow/internal/model"
)

const DefaultActiveTaskLimit = 20

const rules = `You are TaskFlow AI, a personal task management assistant.

Your capabilities:
1. Extract tasks from natural language or voice transcripts
2. Prioritize tasks (critical/high/medium/low) based on urgency, deadlines and user context
3. Categorize tasks: work, study, health, personal, finance, social, unsorted
4. Estimate task duration in minutes (realistic, based on task type)
5. Update, reschedule, complete or delete existing tasks by id
6. Remember facts about the user and use them in future responses
7. Give actionable tips about workload, deadlines and productivity
8. Ask clarifying questions when information is insufficient

RESPONSE FORMAT:
Always respond with one valid JSON object and nothing else, in this structure:
{
  "message": "Your conversational reply to the user (friendly, concise)",
  "tasks_to_create": [
    {
      "title": "Task title",
      "description": "Optional details",
      "category": "work|study|health|personal|finance|social|unsorted",
      "priority": "critical|high|medium|low",
      "duration_minutes": 60,
      "start_datetime": "2025-02-21T14:00:00 or null",
      "deadline": "2025-02-22T18:00:00 or null",
      "urgency_score": 0.8,
      "ai_notes": "Why this priority/category was chosen",
      "subtasks": ["subtask 1", "subtask 2"]
    }
  ],
  "tasks_to_unsorted": [
    {"title": "Task with insufficient info", "description": "What info is missing", "category": "unsorted"}
  ],
  "tasks_to_update": [
    {"id": 12, "updates": {"start_datetime": "2025-02-23T10:00:00", "status": "completed"}}
  ],
  "tasks_to_delete": [12, 15] or "all",
  "memories_to_save": [
    {"key": "fact_key", "value": "fact_value", "type": "preference|fact|pattern|tip"}
  ],
  "clarifying_questions": ["Question if more info is needed"],
  "tips": ["Tip about workload or tasks"],
  "load_warning": null or "Warning if the user is overloaded"
}

Rules:
- ALWAYS respond in the same language the user writes in
- Be warm, concise and practical
- Datetimes are local to the user, formatted YYYY-MM-DDTHH:MM:SS
- Duration estimates: email=15min, meeting=60min, report=120min, quick call=10min, exercise=45min
- Mark a task as "unsorted" only if it is truly missing critical info (what/when)
- urgency_score: 0.0 = no rush, 1.0 = on fire
- Refer to existing tasks only by the ids listed below; never invent ids
- Valid statuses for updates: pending, in_progress, completed, postponed (overdue is computed automatically)
- To delete every task, set "tasks_to_delete" to "all" or list every active task id`

// PromptStore is the read side the builder needs.
type PromptStore interface {
	GetProfile(ctx context.Context, owner int64) (model.UserProfile, error)
	RecentActiveTasks(ctx context.Context, owner int64, limit int) ([]model.Task, error)
	ActiveTaskIDs(ctx context.Context, owner int64) ([]int64, error)
	MemoryMap(ctx context.Context, owner int64) (map[string]string, error)
	Now() time.Time
}

// Builder renders the system prompt from the owner's current state.
type Builder struct {
	store       PromptStore
	logger      *zap.Logger
	fallbackLoc *time.Location
	activeLimit int
}

func NewBuilder(store PromptStore, logger *zap.Logger, fallbackLoc *time.Location, activeLimit int) *Builder {
	if fallbackLoc == nil {
		fallbackLoc = time.UTC
	}
	if activeLimit <= 0 {
		activeLimit = DefaultActiveTaskLimit
	}
	return &Builder{
		store:       store,
		logger:      logger.Named("prompt"),
		fallbackLoc: fallbackLoc,
		activeLimit: activeLimit,
	}
}

// Build never fails. A missing profile renders as an empty one and a section
// whose read fails renders empty.
func (b *Builder) Build(ctx context.Context, owner int64) string {
	profile, err := b.store.GetProfile(ctx, owner)
	if err != nil {
		b.logger.Debug("profile unavailable", zap.Int64("owner", owner), zap.Error(err))
		profile = model.UserProfile{OwnerID: owner}
	}
	loc := Location(profile.Timezone, b.fallbackLoc)

	tasks, err := b.store.RecentActiveTasks(ctx, owner, b.activeLimit)
	if err != nil {
		b.logger.Warn("active tasks unavailable", zap.Int64("owner", owner), zap.Error(err))
		tasks = nil
	}
	memory, err := b.store.MemoryMap(ctx, owner)
	if err != nil {
		b.logger.Warn("memory unavailable", zap.Int64("owner", owner), zap.Error(err))
		memory = nil
	}
	ids, err := b.store.ActiveTaskIDs(ctx, owner)
	if err != nil {
		b.logger.Warn("active task ids unavailable", zap.Int64("owner", owner), zap.Error(err))
		ids = nil
	}

	var out strings.Builder
	out.WriteString(rules)
	out.WriteString("\n\n")

	now := b.store.Now().In(loc)
	fmt.Fprintf(&out, "Current date and time: %s (%s), time zone %s\n\n",
		now.Format("2006-01-02 15:04"), now.Weekday(), loc.String())

	out.WriteString("User context: ")
	out.WriteString(compactJSON(profileContext(profile)))
	out.WriteString("\n\n")

	fmt.Fprintf(&out, "Active tasks (most recent %d):\n", b.activeLimit)
	if len(tasks) == 0 {
		out.WriteString("- none\n")
	}
	for _, task := range tasks {
		fmt.Fprintf(&out, "- [id %d] %s | category=%s | priority=%s | status=%s | start=%s | deadline=%s\n",
			task.ID, task.Title, task.Category, task.Priority, task.Status,
			localTime(task.Start, loc), localTime(task.Deadline, loc))
	}
	out.WriteString("\n")

	out.WriteString("User memory: ")
	if len(memory) == 0 {
		out.WriteString("No memory yet.")
	} else {
		out.WriteString(compactJSON(memory))
	}
	out.WriteString("\n\n")

	out.WriteString("All active task ids (for \"delete all\" requests): ")
	if ids == nil {
		ids = []int64{}
	}
	out.WriteString(compactJSON(ids))
	out.WriteString("\n")

	return out.String()
}

// Location resolves an IANA zone name, falling back when it is empty or
// unknown.
func Location(name string, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}

func profileContext(p model.UserProfile) map[string]any {
	ctx := map[string]any{
		"name":            p.Name,
		"occupation":      p.Occupation,
		"workplace":       p.Workplace,
		"max_daily_hours": p.MaxDailyHours,
		"health_notes":    p.HealthNotes,
		"wake_time":       p.WakeTime,
		"sleep_time":      p.SleepTime,
	}
	if len(p.WorkSchedule) > 0 {
		ctx["work_schedule"] = p.WorkSchedule
	}
	if len(p.StudySchedule) > 0 {
		ctx["study_schedule"] = p.StudySchedule
	}
	return ctx
}

func localTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "none"
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

// compactJSON keeps non-ASCII text readable for the model.
func compactJSON(value any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return "{}"
	}
	return strings.TrimSpace(buf.String())
}
