// Package transcribe turns uploaded audio into text through an
// OpenAI-compatible /audio/transcriptions endpoint.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/Joseda-hg/taskflow/internal/config"
)

const DefaultFilename = "audio.webm"

var ErrNoAPIKey = errors.New("transcribe: API key not configured")

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Client is a Whisper-style transcription client.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

func New(cfg config.TranscribeConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: cfg.Timeout()},
	}
}

// Transcribe uploads audio and returns the trimmed transcript. The filename
// extension tells the service which container the bytes are in.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("transcribe: empty audio")
	}
	if filepath.Ext(filename) == "" {
		filename = DefaultFilename
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("transcribe: create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("transcribe: write audio: %w", err)
	}
	if err := form.WriteField("model", c.model); err != nil {
		return "", err
	}
	if err := form.WriteField("response_format", "json"); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("transcribe: create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: request failed after %v: %w", time.Since(start).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("transcribe: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcribe: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return parseTranscript(data), nil
}

// Some compatible servers ignore response_format and answer plain text.
func parseTranscript(data []byte) string {
	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &decoded); err == nil {
		return strings.TrimSpace(decoded.Text)
	}
	return strings.TrimSpace(string(data))
}
