package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Joseda-hg/taskflow/internal/agent"
	"github.com/Joseda-hg/taskflow/internal/db"
	"github.com/Joseda-hg/taskflow/internal/load"
	"github.com/Joseda-hg/taskflow/internal/model"
)

var testNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type fakeAssistant struct {
	mu       sync.Mutex
	requests []agent.Request
	uploads  []string
	audio    [][]byte
	err      error
}

func (f *fakeAssistant) Handle(_ context.Context, req agent.Request) (agent.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return agent.Reply{Message: "echo: " + req.Text, TurnID: "t1"}, f.err
}

func (f *fakeAssistant) HandleVoice(_ context.Context, _ int64, audio []byte, _ string) (agent.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, audio)
	return agent.Reply{Message: "heard", Transcript: "buy bread"}, nil
}

func (f *fakeAssistant) HandleUpload(_ context.Context, _ int64, filename string, data []byte) (agent.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, filename+":"+string(data))
	return agent.Reply{Message: "extracted", Filename: filename}, nil
}

func newTestServer(t *testing.T) (*Server, *db.Store, *fakeAssistant) {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	store := db.NewStore(conn).WithClock(func() time.Time { return testNow })
	_, err = store.EnsureProfile(context.Background(), 1, "UTC")
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	assistant := &fakeAssistant{}
	server := NewServer(store, load.NewAnalyzer(store, logger, time.UTC), assistant, 1, logger)
	return server, store, assistant
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndIndex(t *testing.T) {
	s, store, _ := newTestServer(t)
	start := testNow.Add(2 * time.Hour)
	_, err := store.CreateTask(context.Background(), 1, model.Task{Title: "Dentist <3", Start: &start})
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Dentist &lt;3")
	assert.Contains(t, rec.Body.String(), "10:00")
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	s, store, _ := newTestServer(t)
	ctx := context.Background()

	rec := do(t, s, http.MethodPost, "/api/tasks", map[string]any{
		"title":            "Report",
		"category":         "work",
		"priority":         "high",
		"start_datetime":   "2025-03-01T14:00:00",
		"duration_minutes": 90,
		"subtasks":         []map[string]any{{"title": "outline"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Task](t, rec)
	assert.Equal(t, model.StatusPending, created.Status)
	require.NotNil(t, created.End)
	assert.True(t, created.End.Equal(time.Date(2025, 3, 1, 15, 30, 0, 0, time.UTC)))
	path := "/api/tasks/" + strconv.FormatInt(created.ID, 10)

	stat, err := store.GetDailyStat(ctx, 1, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, 1, stat.TasksTotal)

	rec = do(t, s, http.MethodGet, "/api/tasks?view=week&date=2025-03-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Task](t, rec), 1)

	rec = do(t, s, http.MethodPatch, path+"/subtasks/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.Task](t, rec).Subtasks[0].Done)

	rec = do(t, s, http.MethodPatch, path, map[string]any{"status": "overdue"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, path+"/postpone?new_date=2025-03-04T10:00:00", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	postponed := decode[model.Task](t, rec)
	assert.Equal(t, model.StatusPostponed, postponed.Status)
	assert.True(t, postponed.End.Equal(time.Date(2025, 3, 4, 11, 30, 0, 0, time.UTC)))

	// The old date's snapshot no longer counts the task.
	stat, err = store.GetDailyStat(ctx, 1, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, 0, stat.TasksTotal)

	rec = do(t, s, http.MethodPost, path+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decode[model.Task](t, rec).CompletedAt)

	rec = do(t, s, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[struct {
		Task    model.Task           `json:"task"`
		History []model.HistoryEntry `json:"history"`
	}](t, rec)
	assert.Equal(t, model.StatusCompleted, detail.Task.Status)
	assert.GreaterOrEqual(t, len(detail.History), 4)

	rec = do(t, s, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskValidation(t *testing.T) {
	s, _, _ := newTestServer(t)

	cases := []struct {
		name string
		body any
	}{
		{"missing title", map[string]any{"category": "work"}},
		{"bad category", map[string]any{"title": "x", "category": "chores"}},
		{"bad date", map[string]any{"title": "x", "deadline": "next week"}},
		{"malformed", "{not json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/tasks", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/tasks/abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/api/tasks/99/complete", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/tasks/load/2025-13-01", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/tasks?status=done", nil).Code)
}

func TestTipsLoadAndStats(t *testing.T) {
	s, store, _ := newTestServer(t)
	start := testNow.Add(time.Hour)
	minutes := 240
	_, err := store.CreateTask(context.Background(), 1, model.Task{Title: "Deep work", Start: &start, Duration: &minutes})
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/api/tasks/tips", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tips := decode[struct {
		Tips      []string     `json:"tips"`
		TodayLoad load.DayLoad `json:"today_load"`
	}](t, rec)
	assert.NotEmpty(t, tips.Tips)
	assert.Equal(t, 50, tips.TodayLoad.LoadPercent)

	rec = do(t, s, http.MethodGet, "/api/tasks/load/2025-03-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 240, decode[load.DayLoad](t, rec).PlannedMinutes)

	rec = do(t, s, http.MethodGet, "/api/stats/overview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[load.Overview](t, rec).TotalTasks)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/stats/daily?days=7", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/stats/daily?days=0", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/stats/heatmap?year=2025", nil).Code)
}

func TestProfileAndMemories(t *testing.T) {
	s, store, _ := newTestServer(t)
	ctx := context.Background()

	rec := do(t, s, http.MethodPatch, "/api/profile", map[string]any{"name": "Anna", "max_daily_hours": 6})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	profile := decode[model.UserProfile](t, rec)
	assert.Equal(t, "Anna", profile.Name)
	assert.Equal(t, 6.0, profile.MaxDailyHours)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPatch, "/api/profile", map[string]any{"timezone": "Mars/Base"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPatch, "/api/profile", map[string]any{"max_daily_hours": 0}).Code)

	fact, err := store.UpsertMemory(ctx, 1, "job", "nurse", model.MemoryFactType)
	require.NoError(t, err)
	rec = do(t, s, http.MethodGet, "/api/profile/memories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.MemoryFact](t, rec), 1)

	path := "/api/profile/memories/" + strconv.FormatInt(fact.ID, 10)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, path, nil).Code)
}

func TestChatAcceptsFormAndJSON(t *testing.T) {
	s, _, assistant := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/ai/chat", map[string]any{"message": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "echo: hello", decode[agent.Reply](t, rec).Message)

	req := httptest.NewRequest(http.MethodPost, "/api/ai/chat", strings.NewReader("message=from+form"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/ai/chat", map[string]any{"message": "  "}).Code)

	require.Len(t, assistant.requests, 2)
	assert.Equal(t, "from form", assistant.requests[1].Text)
	assert.Equal(t, int64(1), assistant.requests[0].Owner)
}

func TestChatStorageFailureIs500WithReply(t *testing.T) {
	s, _, assistant := newTestServer(t)
	assistant.err = errors.New("disk full")

	rec := do(t, s, http.MethodPost, "/api/ai/chat", map[string]any{"message": "hello"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "echo: hello", decode[agent.Reply](t, rec).Message)
}

func TestVoiceAndUploadMultipart(t *testing.T) {
	s, _, assistant := newTestServer(t)

	rec := postFile(t, s, "/api/ai/voice", "audio", "note.webm", []byte("RIFF"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "buy bread", decode[agent.Reply](t, rec).Transcript)

	rec = postFile(t, s, "/api/ai/upload-file", "file", "todo.txt", []byte("milk\neggs"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "todo.txt", decode[agent.Reply](t, rec).Filename)
	assert.Equal(t, []string{"todo.txt:milk\neggs"}, assistant.uploads)

	rec = postFile(t, s, "/api/ai/upload-file", "wrong", "todo.txt", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func postFile(t *testing.T, s *Server, path, field, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHistory(t *testing.T) {
	s, store, _ := newTestServer(t)
	_, err := store.AppendMessage(context.Background(), 1, model.RoleUser, "hi", model.KindText, model.NoMeta())
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/api/ai/history?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	messages := decode[[]model.ConversationMessage](t, rec)
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].Content)
}

func TestWebSocketRepliesInOrder(t *testing.T) {
	s, _, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ai/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "first", "type": "text"}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("second")))

	for _, want := range []string{"echo: first", "echo: second"} {
		var reply agent.Reply
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, want, reply.Message)
	}
}

func TestReadEndpointsRunDerivation(t *testing.T) {
	s, store, _ := newTestServer(t)
	ctx := context.Background()
	earlier := store.WithClock(func() time.Time { return time.Date(2025, 2, 28, 20, 0, 0, 0, time.UTC) })
	deadline := time.Date(2025, 2, 28, 23, 0, 0, 0, time.UTC)

	unsorted, err := earlier.CreateTask(ctx, 1, model.Task{Title: "Sort receipts", Category: model.CategoryUnsorted, Deadline: &deadline})
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, unsorted.Status)

	rec := do(t, s, http.MethodGet, "/api/tasks/unsorted", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]model.Task](t, rec)
	require.Len(t, listed, 1)
	assert.Equal(t, model.StatusOverdue, listed[0].Status)

	single, err := earlier.CreateTask(ctx, 1, model.Task{Title: "Pay rent", Deadline: &deadline})
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, single.Status)

	rec = do(t, s, http.MethodGet, "/api/tasks/"+strconv.FormatInt(single.ID, 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[struct {
		Task model.Task `json:"task"`
	}](t, rec)
	assert.Equal(t, model.StatusOverdue, detail.Task.Status)

	stat, err := store.GetDailyStat(ctx, 1, "2025-02-28")
	require.NoError(t, err)
	assert.Equal(t, 2, stat.TasksOverdue)
}
