package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/config"
)

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("missing x-api-key header")
		}
		var body anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.System != "be terse" {
			t.Errorf("system prompt not forwarded: %q", body.System)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]string{{"type": "text", "text": "no."}},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 2},
		})
	}))
	defer srv.Close()

	ad := NewAnthropic(config.BackendConfig{
		Name: "claude", Kind: "anthropic", ModelName: "claude-test",
		Endpoint: srv.URL, APIKey: "secret", TimeoutSec: 5,
	})
	res, err := ad.Generate(context.Background(), Request{Prompt: "hi", SystemPrompt: "be terse"})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if res.Text != "no." {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if res.StopReason != "end_turn" {
		t.Fatalf("unexpected stop reason %q", res.StopReason)
	}
	if res.TokenCount != 12 {
		t.Fatalf("unexpected token count %d", res.TokenCount)
	}
}

func TestAnthropicGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ad := NewAnthropic(config.BackendConfig{
		Name: "claude", Kind: "anthropic", Endpoint: srv.URL, APIKey: "secret", TimeoutSec: 5,
	})
	_, err := ad.Generate(context.Background(), Request{Prompt: "hi"})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", reqErr.StatusCode)
	}
	if !reqErr.Transient() {
		t.Fatalf("503 should be transient")
	}
}

func TestAnthropicStreamingUnsupported(t *testing.T) {
	ad := NewAnthropic(config.BackendConfig{Name: "claude", APIKey: "secret"})
	_, err := ad.GenerateStream(context.Background(), Request{Prompt: "hi"})
	if !errors.Is(err, ErrStreamingUnsupported) {
		t.Fatalf("expected ErrStreamingUnsupported, got %v", err)
	}
}

func TestTransientClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, tc := range cases {
		err := &RequestError{Backend: "b", StatusCode: tc.status}
		if IsTransient(err) != tc.transient {
			t.Fatalf("status %d: transient=%v, want %v", tc.status, !tc.transient, tc.transient)
		}
	}
	if !IsTransient(ErrTimeout) {
		t.Fatalf("timeout should be transient")
	}
	if IsTransient(nil) {
		t.Fatalf("nil error should not be transient")
	}
}
