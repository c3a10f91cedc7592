package llm

import (
	"context"
	"strings"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicModel   = "claude-sonnet-4-5"
	anthropicVersion = "2023-06-01"
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Anthropic talks to the Messages API.
type Anthropic struct {
	opts Options
	http httpClient
}

func NewAnthropic(opts Options) *Anthropic {
	opts = opts.withDefaults(anthropicBaseURL, anthropicModel)
	return &Anthropic{opts: opts, http: newHTTPClient("anthropic", opts)}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Complete(ctx context.Context, system string, turns []Turn) (string, error) {
	if a.opts.APIKey == "" {
		return "", ErrNoAPIKey
	}

	req := anthropicRequest{
		Model:       a.opts.Model,
		MaxTokens:   a.opts.MaxTokens,
		System:      system,
		Temperature: a.opts.Temperature,
	}
	for _, turn := range alternate(turns) {
		req.Messages = append(req.Messages, anthropicMessage{Role: string(turn.Role), Content: turn.Text})
	}

	var resp anthropicResponse
	headers := map[string]string{
		"x-api-key":         a.opts.APIKey,
		"anthropic-version": anthropicVersion,
	}
	if err := a.http.postJSON(ctx, strings.TrimRight(a.opts.BaseURL, "/")+"/messages", headers, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", &APIError{Backend: a.Name(), Body: resp.Error.Message}
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// alternate drops leading assistant turns and merges consecutive turns of the
// same role, which is what the Messages API accepts.
func alternate(turns []Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, turn := range turns {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		if len(out) == 0 && turn.Role != RoleUser {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == turn.Role {
			out[n-1].Text += "\n\n" + turn.Text
			continue
		}
		out = append(out, turn)
	}
	return out
}
