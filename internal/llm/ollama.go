package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/companionos/companion/internal/metrics"
	"github.com/companionos/companion/internal/model"
)

// OllamaClient calls the Ollama chat API.
type OllamaClient struct {
	client *resty.Client
	model  string
}

// NewOllamaClient creates a client for baseURL with model as the default model.
// The transport timeout is only a backstop; per-call timeouts come from ctx.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(5 * time.Minute)

	return &OllamaClient{client: c, model: model}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatResponse struct {
	Message *chatMessage `json:"message"`
	Error   string       `json:"error,omitempty"`
}

// Chat sends system, history and prompt as one non-streaming chat request.
func (c *OllamaClient) Chat(ctx context.Context, req Request) (string, error) {
	class := req.Class
	if class == "" {
		class = ClassGenerate
	}
	start := time.Now()
	out, err := c.chat(ctx, req)
	metrics.BackendLatency.WithLabelValues(class).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.BackendCalls.WithLabelValues(class, outcome).Inc()
	return out, err
}

func (c *OllamaClient) chat(ctx context.Context, req Request) (string, error) {
	body := chatRequest{Model: req.Model, Stream: false}
	if body.Model == "" {
		body.Model = c.model
	}
	if req.MaxTokens > 0 {
		body.Options = &chatOptions{NumPredict: req.MaxTokens}
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: string(model.RoleSystem), Content: req.System})
	}
	for _, m := range req.History {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	body.Messages = append(body.Messages, chatMessage{Role: string(model.RoleUser), Content: req.Prompt})

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&body).
		Post("/api/chat")
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(resp.Body(), &cr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if cr.Error != "" {
		return "", fmt.Errorf("ollama error: %s", cr.Error)
	}
	if cr.Message == nil || strings.TrimSpace(cr.Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return cr.Message.Content, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Models lists the models installed on the backend.
func (c *OllamaClient) Models(ctx context.Context) ([]string, error) {
	resp, err := c.client.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		return nil, fmt.Errorf("ollama tags: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("ollama tags status %d", resp.StatusCode())
	}
	var tr tagsResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, 0, len(tr.Models))
	for _, m := range tr.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Pull asks the backend to download name and waits until it is done.
func (c *OllamaClient) Pull(ctx context.Context, name string) error {
	if name == "" {
		name = c.model
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"model": name, "stream": false}).
		Post("/api/pull")
	if err != nil {
		return fmt.Errorf("ollama pull %s: %w", name, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("ollama pull %s status %d: %s", name, resp.StatusCode(), truncate(resp.String(), 200))
	}
	var pr struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &pr); err == nil && pr.Error != "" {
		return fmt.Errorf("ollama pull %s: %s", name, pr.Error)
	}
	return nil
}

// HealthPing implements health.HealthPinger.
func (c *OllamaClient) HealthPing(ctx context.Context) error {
	_, err := c.Models(ctx)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
