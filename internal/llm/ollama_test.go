package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/companionos/companion/internal/model"
)

func TestOllamaClient_Chat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "hello there"},
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "default-model")
	out, err := c.Chat(context.Background(), Request{
		Class:     ClassJudge,
		Model:     "judge-model",
		System:    "be brief",
		History:   []Message{{Role: model.RoleUser, Content: "hi"}, {Role: model.RoleAssistant, Content: "hey"}},
		Prompt:    "how are you?",
		MaxTokens: 64,
	})
	if err != nil {
		t.Fatalf("chat error: %v", err)
	}
	if out != "hello there" {
		t.Fatalf("unexpected reply %q", out)
	}
	if got.Model != "judge-model" || got.Stream {
		t.Fatalf("unexpected request envelope: %+v", got)
	}
	if got.Options == nil || got.Options.NumPredict != 64 {
		t.Fatalf("max tokens not forwarded: %+v", got.Options)
	}
	if len(got.Messages) != 4 {
		t.Fatalf("expected system+2 history+prompt, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[3].Role != "user" || got.Messages[3].Content != "how are you?" {
		t.Fatalf("unexpected message order: %+v", got.Messages)
	}
}

func TestOllamaClient_DefaultModel(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"ok"}}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "default-model")
	if _, err := c.Chat(context.Background(), Request{Prompt: "x"}); err != nil {
		t.Fatalf("chat error: %v", err)
	}
	if got.Model != "default-model" {
		t.Fatalf("expected default model, got %q", got.Model)
	}
	if got.Options != nil {
		t.Fatalf("options should be omitted without max tokens")
	}
}

func TestOllamaClient_Errors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `model not found`, nil},
		{"no message", http.StatusOK, `{}`, ErrEmptyResponse},
		{"empty content", http.StatusOK, `{"message":{"role":"assistant","content":""}}`, ErrEmptyResponse},
		{"blank content", http.StatusOK, `{"message":{"role":"assistant","content":" \n "}}`, ErrEmptyResponse},
		{"error field", http.StatusOK, `{"error":"out of memory"}`, nil},
		{"bad json", http.StatusOK, `not-json`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewOllamaClient(srv.URL, "m").Chat(context.Background(), Request{Prompt: "x"})
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestOllamaClient_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := NewOllamaClient(srv.URL, "m").Chat(ctx, Request{Prompt: "x"}); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestOllamaClient_HealthPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:3b"}]}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "m")
	if err := c.HealthPing(context.Background()); err != nil {
		t.Fatalf("health ping: %v", err)
	}
	names, err := c.Models(context.Background())
	if err != nil || len(names) != 1 || names[0] != "llama3.2:3b" {
		t.Fatalf("models: %v %v", names, err)
	}
}

func TestOllamaClient_Pull(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pull" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got["model"] == "missing" {
			_, _ = w.Write([]byte(`{"error":"pull model manifest: file does not exist"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3.2:3b")
	if err := c.Pull(context.Background(), ""); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if got["model"] != "llama3.2:3b" || got["stream"] != false {
		t.Fatalf("unexpected pull body: %v", got)
	}
	if err := c.Pull(context.Background(), "missing"); err == nil {
		t.Fatalf("expected pull error")
	}
}
