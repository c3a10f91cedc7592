package model

import "time"

type Task struct {
	ID             int64      `json:"id"`
	OwnerID        int64      `json:"owner_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Category       Category   `json:"category"`
	Priority       Priority   `json:"priority"`
	Status         Status     `json:"status"`
	Start          *time.Time `json:"start_datetime"`
	End            *time.Time `json:"end_datetime"`
	Duration       *int       `json:"duration_minutes"`
	Deadline       *time.Time `json:"deadline"`
	Urgency        float64    `json:"urgency_score"`
	Subtasks       []Subtask  `json:"subtasks"`
	AIGenerated    bool       `json:"ai_generated"`
	AINotes        string     `json:"ai_notes,omitempty"`
	IsRecurring    bool       `json:"is_recurring"`
	RecurrenceRule string     `json:"recurrence_rule,omitempty"`
	AttachedFiles  []string   `json:"attached_files"`
	CompletedAt    *time.Time `json:"completed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type Subtask struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// Active reports whether the task still counts toward the owner's open work.
func (t Task) Active() bool {
	return t.Status != StatusCompleted
}

// Ref is the compact form of a task used in action summaries.
func (t Task) Ref() TaskRef {
	return TaskRef{ID: t.ID, Title: t.Title, Category: t.Category, Priority: t.Priority, Status: t.Status}
}

type TaskRef struct {
	ID       int64    `json:"id"`
	Title    string   `json:"title"`
	Category Category `json:"category,omitempty"`
	Priority Priority `json:"priority,omitempty"`
	Status   Status   `json:"status,omitempty"`
}

// TaskPatch carries a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title          *string
	Description    *string
	Category       *Category
	Priority       *Priority
	Status         *Status
	Start          *time.Time
	End            *time.Time
	Duration       *int
	Deadline       *time.Time
	Urgency        *float64
	Subtasks       []Subtask
	AINotes        *string
	IsRecurring    *bool
	RecurrenceRule *string
}

// Empty reports whether the patch would change nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.Priority == nil &&
		p.Status == nil && p.Start == nil && p.End == nil && p.Duration == nil && p.Deadline == nil &&
		p.Urgency == nil && p.Subtasks == nil && p.AINotes == nil && p.IsRecurring == nil && p.RecurrenceRule == nil
}

type HistoryEntry struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	EventType string    `json:"event_type"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows task listings. Zero values match everything.
type Filter struct {
	Category Category   `json:"category"`
	Status   Status     `json:"status"`
	From     *time.Time `json:"from"`
	To       *time.Time `json:"to"`

	// IncludeUnscheduled keeps tasks without a start time in ranged listings.
	IncludeUnscheduled bool `json:"include_unscheduled"`
	ActiveOnly         bool `json:"active_only"`
	Limit              int  `json:"limit"`
}

type MemoryFact struct {
	ID         int64      `json:"id"`
	OwnerID    int64      `json:"owner_id"`
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	Type       MemoryType `json:"type"`
	Confidence float64    `json:"confidence"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type ConversationMessage struct {
	ID        int64       `json:"id"`
	OwnerID   int64       `json:"owner_id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"message_type"`
	Meta      MessageMeta `json:"metadata"`
	CreatedAt time.Time   `json:"created_at"`
}

type UserProfile struct {
	OwnerID       int64          `json:"id"`
	Name          string         `json:"name"`
	Email         string         `json:"email,omitempty"`
	Occupation    string         `json:"occupation,omitempty"`
	Workplace     string         `json:"workplace,omitempty"`
	WorkSchedule  map[string]any `json:"work_schedule,omitempty"`
	StudySchedule map[string]any `json:"study_schedule,omitempty"`
	MaxDailyHours float64        `json:"max_daily_hours"`
	HealthNotes   string         `json:"health_notes,omitempty"`
	WakeTime      string         `json:"wake_time"`
	SleepTime     string         `json:"sleep_time"`
	Timezone      string         `json:"timezone,omitempty"`
	Preferences   map[string]any `json:"preferences"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

const DefaultMaxDailyHours = 8.0

// DefaultProfile is the profile every owner starts with.
func DefaultProfile(owner int64) UserProfile {
	return UserProfile{
		OwnerID:       owner,
		Name:          "User",
		MaxDailyHours: DefaultMaxDailyHours,
		WakeTime:      "08:00",
		SleepTime:     "23:00",
		Preferences:   map[string]any{},
	}
}

// CapacityMinutes is the owner's daily budget in minutes.
func (p UserProfile) CapacityMinutes() float64 {
	hours := p.MaxDailyHours
	if hours <= 0 {
		hours = DefaultMaxDailyHours
	}
	return hours * 60
}

// ProfilePatch merges into a profile; only non-nil fields overwrite.
type ProfilePatch struct {
	Name          *string        `json:"name"`
	Email         *string        `json:"email"`
	Occupation    *string        `json:"occupation"`
	Workplace     *string        `json:"workplace"`
	WorkSchedule  map[string]any `json:"work_schedule"`
	StudySchedule map[string]any `json:"study_schedule"`
	MaxDailyHours *float64       `json:"max_daily_hours"`
	HealthNotes   *string        `json:"health_notes"`
	WakeTime      *string        `json:"wake_time"`
	SleepTime     *string        `json:"sleep_time"`
	Timezone      *string        `json:"timezone"`
	Preferences   map[string]any `json:"preferences"`
}

// Apply merges the patch into p.
func (patch ProfilePatch) Apply(p *UserProfile) {
	setString(&p.Name, patch.Name)
	setString(&p.Email, patch.Email)
	setString(&p.Occupation, patch.Occupation)
	setString(&p.Workplace, patch.Workplace)
	setString(&p.HealthNotes, patch.HealthNotes)
	setString(&p.WakeTime, patch.WakeTime)
	setString(&p.SleepTime, patch.SleepTime)
	setString(&p.Timezone, patch.Timezone)
	if patch.WorkSchedule != nil {
		p.WorkSchedule = patch.WorkSchedule
	}
	if patch.StudySchedule != nil {
		p.StudySchedule = patch.StudySchedule
	}
	if patch.MaxDailyHours != nil {
		p.MaxDailyHours = *patch.MaxDailyHours
	}
	if patch.Preferences != nil {
		p.Preferences = patch.Preferences
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

type DailyStat struct {
	OwnerID          int64     `json:"owner_id"`
	Date             string    `json:"date"`
	TasksTotal       int       `json:"total"`
	TasksCompleted   int       `json:"completed"`
	TasksOverdue     int       `json:"overdue"`
	TasksPostponed   int       `json:"postponed"`
	MinutesPlanned   int       `json:"minutes_planned"`
	MinutesCompleted int       `json:"minutes_done"`
	LoadScore        float64   `json:"load_score"`
	AllDone          bool      `json:"all_done"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DateLayout is the calendar-date key used by DailyStat rows and API params.
const DateLayout = "2006-01-02"
