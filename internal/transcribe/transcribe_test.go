package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joseda-hg/taskflow/internal/config"
)

func TestTranscribeSendsMultipartAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))

		file, header, err := r.FormFile("file")
		if assert.NoError(t, err) {
			defer file.Close()
			data, _ := io.ReadAll(file)
			assert.Equal(t, "voice.ogg", header.Filename)
			assert.Equal(t, []byte("OggS"), data)
		}
		_, _ = w.Write([]byte(`{"text":"  купить молоко завтра  "}`))
	}))
	defer srv.Close()

	client := New(config.TranscribeConfig{APIKey: "key", BaseURL: srv.URL})
	text, err := client.Transcribe(context.Background(), []byte("OggS"), "voice.ogg")
	require.NoError(t, err)
	assert.Equal(t, "купить молоко завтра", text)
}

func TestTranscribeDefaultsFilenameAndAcceptsPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		if assert.NoError(t, err) {
			assert.Equal(t, DefaultFilename, header.Filename)
		}
		_, _ = w.Write([]byte("hello there\n"))
	}))
	defer srv.Close()

	text, err := New(config.TranscribeConfig{APIKey: "key", BaseURL: srv.URL}).
		Transcribe(context.Background(), []byte{1, 2, 3}, "blob")
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}

func TestTranscribeErrors(t *testing.T) {
	_, err := New(config.TranscribeConfig{}).Transcribe(context.Background(), []byte{1}, "a.webm")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err = New(config.TranscribeConfig{APIKey: "key", BaseURL: srv.URL}).
		Transcribe(context.Background(), []byte{1}, "a.webm")
	assert.ErrorContains(t, err, "status 429")
}
