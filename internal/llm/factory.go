package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/Joseda-hg/taskflow/internal/config"
)

// Detect resolves the backend name and key. An explicit backend wins;
// otherwise the first vendor key found in the environment picks the backend
// (ANTHROPIC > OPENAI > GEMINI), falling back to a keyless local server.
func Detect(cfg config.LLMConfig) (string, string) {
	if cfg.Backend != "" {
		return cfg.Backend, cfg.APIKey
	}

	providers := []struct {
		envVar  string
		backend string
	}{
		{"ANTHROPIC_API_KEY", "anthropic"},
		{"OPENAI_API_KEY", "openai"},
		{"GEMINI_API_KEY", "gemini"},
	}
	for _, p := range providers {
		if key := os.Getenv(p.envVar); key != "" {
			return p.backend, key
		}
	}
	return "local", ""
}

// New builds the backend selected by cfg. It is resolved once at startup and
// injected into the agent.
func New(ctx context.Context, cfg config.LLMConfig) (Backend, error) {
	if cfg.Backend == "" && cfg.APIKey != "" {
		return nil, config.ErrKeyWithoutBackend
	}
	name, key := Detect(cfg)
	opts := Options{
		APIKey:      key,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout(),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}

	switch name {
	case "anthropic":
		return NewAnthropic(opts), nil
	case "openai":
		return NewOpenAI(opts), nil
	case "gemini":
		return NewGemini(ctx, opts)
	case "local":
		return NewLocal(opts), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q (valid: anthropic, openai, gemini, local)", name)
	}
}
