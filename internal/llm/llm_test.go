package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Joseda-hg/taskflow/internal/config"
)

func TestAnthropicComplete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":" {\"message\":\"hi\"} "}]}`))
	}))
	defer srv.Close()

	backend := NewAnthropic(Options{APIKey: "secret", BaseURL: srv.URL})
	text, err := backend.Complete(context.Background(), "rules", []Turn{
		{Role: RoleAssistant, Text: "stale greeting"},
		{Role: RoleUser, Text: "one"},
		{Role: RoleUser, Text: "two"},
		{Role: RoleAssistant, Text: "ok"},
		{Role: RoleUser, Text: "three"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"message":"hi"}`, text)

	assert.Equal(t, "rules", got.System)
	assert.Equal(t, anthropicModel, got.Model)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, anthropicMessage{Role: "user", Content: "one\n\ntwo"}, got.Messages[0])
	assert.Equal(t, "assistant", got.Messages[1].Role)
}

func TestAnthropicRequiresKey(t *testing.T) {
	_, err := NewAnthropic(Options{}).Complete(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req openAIRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "system", req.Messages[0].Role)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"done"}}]}`))
	}))
	defer srv.Close()

	backend := NewOpenAI(Options{APIKey: "k", BaseURL: srv.URL, RetryBackoff: time.Millisecond})
	text, err := backend.Complete(context.Background(), "sys", []Turn{{Role: RoleUser, Text: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.EqualValues(t, 2, calls.Load())
}

func TestOpenAIClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewOpenAI(Options{APIKey: "k", BaseURL: srv.URL, RetryBackoff: time.Millisecond}).
		Complete(context.Background(), "", []Turn{{Role: RoleUser, Text: "x"}})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestLocalNeedsNoKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"local"}}]}`))
	}))
	defer srv.Close()

	backend := WithLogging(NewLocal(Options{BaseURL: srv.URL}), zaptest.NewLogger(t))
	text, err := backend.Complete(context.Background(), "", []Turn{{Role: RoleUser, Text: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "local", text)
	assert.Equal(t, "local", backend.Name())
}

func TestEmptyChoicesIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewLocal(Options{BaseURL: srv.URL}).Complete(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestDetect(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	name, _ := Detect(config.LLMConfig{})
	assert.Equal(t, "local", name)

	name, key := Detect(config.LLMConfig{APIKey: "k"})
	assert.Equal(t, "local", name)
	assert.Empty(t, key)

	t.Setenv("GEMINI_API_KEY", "g")
	name, key = Detect(config.LLMConfig{})
	assert.Equal(t, "gemini", name)
	assert.Equal(t, "g", key)

	t.Setenv("OPENAI_API_KEY", "o")
	name, key = Detect(config.LLMConfig{})
	assert.Equal(t, "openai", name)
	assert.Equal(t, "o", key)

	name, key = Detect(config.LLMConfig{Backend: "anthropic", APIKey: "a"})
	assert.Equal(t, "anthropic", name)
	assert.Equal(t, "a", key)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), config.LLMConfig{Backend: "parrot"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.LLMConfig{Backend: "gemini"})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = New(context.Background(), config.LLMConfig{APIKey: "k"})
	assert.ErrorIs(t, err, config.ErrKeyWithoutBackend)
}
