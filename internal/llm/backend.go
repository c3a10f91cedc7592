// Package llm provides the text-completion backends the agent talks to. Every
// backend reduces to Complete(system, turns) -> text; the vendor wire formats
// stay inside this package.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the conversation sent to the backend.
type Turn struct {
	Role Role
	Text string
}

type Backend interface {
	// Complete returns a single completion for the system instruction and
	// the ordered turns.
	Complete(ctx context.Context, system string, turns []Turn) (string, error)
	Name() string
}

var (
	ErrNoAPIKey      = errors.New("llm: API key not configured")
	ErrEmptyResponse = errors.New("llm: no completion returned")
)

// APIError is a non-success HTTP answer from a backend.
type APIError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API request failed with status %d: %s", e.Backend, e.StatusCode, e.Body)
}

// Options configure a concrete backend.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64

	// MaxRetries bounds retries on 429 and 5xx answers.
	MaxRetries int
	// RetryBackoff is the first wait between retries; it doubles each time.
	RetryBackoff time.Duration
}

func (o Options) withDefaults(baseURL, model string) Options {
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	if o.Model == "" {
		o.Model = model
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 2000
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = 2
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Second
	}
	return o
}
