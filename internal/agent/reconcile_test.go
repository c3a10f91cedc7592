package agent

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Joseda-hg/taskflow/internal/db"
	"github.com/Joseda-hg/taskflow/internal/model"
)

func reconcile(t *testing.T, store *db.Store, owner int64, raw, utterance string) Result {
	t.Helper()
	r := NewReconciler(zaptest.NewLogger(t), DefaultStartHour)
	var result Result
	err := store.WithTx(context.Background(), func(tx *db.Store) error {
		var err error
		result, err = r.Apply(context.Background(), tx, owner, Parse(raw), utterance, time.UTC)
		return err
	})
	require.NoError(t, err)
	return result
}

func seedTasks(t *testing.T, store *db.Store, owner int64, titles ...string) []model.Task {
	t.Helper()
	tasks := make([]model.Task, 0, len(titles))
	for _, title := range titles {
		task, err := store.CreateTask(context.Background(), owner, model.Task{Title: title})
		require.NoError(t, err)
		tasks = append(tasks, task)
	}
	return tasks
}

func titles(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Title)
	}
	return out
}

func TestDeleteAllUtteranceRemovesEveryActiveTaskWhateverTheIDs(t *testing.T) {
	for _, utterance := range []string{"удали все задачи", "delete everything"} {
		t.Run(utterance, func(t *testing.T) {
			store := newTestStore(t)
			seedTasks(t, store, 1, "Report", "Dentist", "Groceries")

			result := reconcile(t, store, 1, `{"message":"Done","tasks_to_delete":[999]}`, utterance)

			assert.ElementsMatch(t, []string{"Report", "Dentist", "Groceries"}, titles(result.Deleted))
			remaining, err := store.ListTasks(context.Background(), 1, model.Filter{})
			require.NoError(t, err)
			assert.Empty(t, remaining)
		})
	}
}

func TestDeleteSentinelKeepsCompletedAndOtherOwners(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mine := seedTasks(t, store, 1, "Open", "Finished")
	_, err := store.CompleteTask(ctx, 1, mine[1].ID)
	require.NoError(t, err)
	seedTasks(t, store, 2, "Someone else's")

	result := reconcile(t, store, 1, `{"tasks_to_delete":"all"}`, "clean up please")

	assert.Equal(t, []string{"Open"}, titles(result.Deleted))
	left, err := store.ListTasks(ctx, 1, model.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Finished"}, titles(left))
	others, err := store.ListTasks(ctx, 2, model.Filter{})
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestForeignAndUnknownIDsAreSkipped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	foreign := seedTasks(t, store, 2, "Not yours")[0]

	raw := `{"tasks_to_delete":[` + itoa(foreign.ID) + `, 404],
		"tasks_to_update":[{"id":` + itoa(foreign.ID) + `,"title":"Hijacked"}]}`
	result := reconcile(t, store, 1, raw, "remove that one")

	assert.Empty(t, result.Deleted)
	assert.Empty(t, result.Updated)
	got, err := store.GetTask(ctx, 2, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, "Not yours", got.Title)
}

func TestCreateNormalizesFields(t *testing.T) {
	store := newTestStore(t)

	result := reconcile(t, store, 1, `{
		"tasks_to_create": [
			{"title": "  ", "category": "chores", "priority": "urgent"},
			{"title": "Pay rent", "deadline": "2025-02-28T10:00:00", "priority": "high", "category": "finance"},
			{"title": "Standup", "start_datetime": "2025-03-03T10:00:00", "duration_minutes": 15,
			 "subtasks": [{"title": "notes", "done": true}]}
		],
		"tasks_to_unsorted": [{"title": "Something vague", "category": "work"}]
	}`, "")

	require.Len(t, result.Created, 4)

	untitled := result.Created[0]
	assert.Equal(t, "Untitled task", untitled.Title)
	assert.Equal(t, model.CategoryUnsorted, untitled.Category)
	assert.Equal(t, model.PriorityMedium, untitled.Priority)
	assert.True(t, untitled.AIGenerated)
	assert.InDelta(t, 0.5, untitled.Urgency, 1e-9)

	rent := result.Created[1]
	assert.Equal(t, model.StatusOverdue, rent.Status)
	assert.Equal(t, model.CategoryFinance, rent.Category)

	standup := result.Created[2]
	require.NotNil(t, standup.End)
	assert.True(t, standup.End.Equal(time.Date(2025, 3, 3, 10, 15, 0, 0, time.UTC)))
	assert.Equal(t, []model.Subtask{{Title: "notes"}}, standup.Subtasks)

	assert.Equal(t, model.CategoryUnsorted, result.Created[3].Category)
}

func TestCreateUsesRelativeDayWhenStartMissing(t *testing.T) {
	store := newTestStore(t)

	result := reconcile(t, store, 1, `{"tasks_to_create":[{"title":"Call mom"}]}`, "call mom tomorrow")

	require.Len(t, result.Created, 1)
	start := result.Created[0].Start
	require.NotNil(t, start)
	assert.True(t, start.Equal(time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)), start.String())

	dates := result.AffectedDates(time.UTC)
	require.Len(t, dates, 1)
	assert.Equal(t, "2025-03-02", dates[0].Format(model.DateLayout))
}

func TestUpdateAppliesOnlyCleanFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	task := seedTasks(t, store, 1, "Essay")[0]

	raw := `{"tasks_to_update":[
		{"id":` + itoa(task.ID) + `,"updates":{"status":"overdue","deadline":"whenever","priority":"high"}}
	]}`
	result := reconcile(t, store, 1, raw, "")
	require.Len(t, result.Updated, 1)
	assert.Equal(t, model.PriorityHigh, result.Updated[0].Priority)
	assert.Equal(t, model.StatusPending, result.Updated[0].Status)
	assert.Nil(t, result.Updated[0].Deadline)

	raw = `{"tasks_to_update":[{"id":` + itoa(task.ID) + `,"status":"completed"}]}`
	result = reconcile(t, store, 1, raw, "")
	require.Len(t, result.Updated, 1)
	assert.Equal(t, model.StatusCompleted, result.Updated[0].Status)
	assert.NotNil(t, result.Updated[0].CompletedAt)

	raw = `{"tasks_to_update":[{"id":` + itoa(task.ID) + `,"status":"bogus"}]}`
	result = reconcile(t, store, 1, raw, "")
	assert.Empty(t, result.Updated)

	got, err := store.GetTask(ctx, 1, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestMemoriesAreUpsertedByKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	reconcile(t, store, 1, `{"memories_to_save":[{"key":"job","value":"nurse","type":"fact"}]}`, "")
	result := reconcile(t, store, 1, `{"memories_to_save":[{"key":"job","value":"doctor","type":"mystery"}]}`, "")

	assert.Equal(t, []string{"job"}, result.MemoriesSaved)
	facts, err := store.ListMemories(ctx, 1)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "doctor", facts[0].Value)
	assert.Equal(t, model.MemoryFactType, facts[0].Type)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
