package llm

import (
	"context"
	"strings"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	openAIModel   = "gpt-4o-mini"

	// LocalBaseURL is the OpenAI-compatible endpoint of a local Ollama server.
	LocalBaseURL = "http://localhost:11434/v1"
	localModel   = "llama3.1"
)

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OpenAI speaks the chat completions protocol. The same client serves local
// servers that expose an OpenAI-compatible API; those need no key.
type OpenAI struct {
	name       string
	opts       Options
	http       httpClient
	requireKey bool
}

func NewOpenAI(opts Options) *OpenAI {
	opts = opts.withDefaults(openAIBaseURL, openAIModel)
	return &OpenAI{name: "openai", opts: opts, http: newHTTPClient("openai", opts), requireKey: true}
}

// NewLocal returns a chat completions client for a locally hosted model.
func NewLocal(opts Options) *OpenAI {
	opts = opts.withDefaults(LocalBaseURL, localModel)
	return &OpenAI{name: "local", opts: opts, http: newHTTPClient("local", opts)}
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Complete(ctx context.Context, system string, turns []Turn) (string, error) {
	if o.requireKey && o.opts.APIKey == "" {
		return "", ErrNoAPIKey
	}

	req := openAIRequest{
		Model:       o.opts.Model,
		MaxTokens:   o.opts.MaxTokens,
		Temperature: o.opts.Temperature,
	}
	if system != "" {
		req.Messages = append(req.Messages, openAIMessage{Role: "system", Content: system})
	}
	for _, turn := range turns {
		req.Messages = append(req.Messages, openAIMessage{Role: string(turn.Role), Content: turn.Text})
	}

	headers := map[string]string{}
	if o.opts.APIKey != "" {
		headers["Authorization"] = "Bearer " + o.opts.APIKey
	}

	var resp openAIResponse
	if err := o.http.postJSON(ctx, strings.TrimRight(o.opts.BaseURL, "/")+"/chat/completions", headers, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", &APIError{Backend: o.name, Body: resp.Error.Message}
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
