package agent

import (
	"context"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Joseda-hg/taskflow/internal/db"
	"github.com/Joseda-hg/taskflow/internal/llm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Saturday noon.
var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return db.NewStore(conn).WithClock(func() time.Time { return testNow })
}

type call struct {
	system string
	turns  []llm.Turn
}

// scriptedBackend answers from a queue and records every call.
type scriptedBackend struct {
	mu      sync.Mutex
	answers []string
	errs    []error
	calls   []call
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Complete(_ context.Context, system string, turns []llm.Turn) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := len(b.calls)
	b.calls = append(b.calls, call{system: system, turns: append([]llm.Turn(nil), turns...)})
	if i < len(b.errs) && b.errs[i] != nil {
		return "", b.errs[i]
	}
	if i < len(b.answers) {
		return b.answers[i], nil
	}
	return `{"message":"ok"}`, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return f.text, f.err
}
