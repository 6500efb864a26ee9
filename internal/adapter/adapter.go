package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message is one turn of prior conversation passed to an adapter.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request is the provider-independent generation request.
type Request struct {
	Prompt       string
	SystemPrompt string
	History      []Message

	Temperature *float64
	TopP        *float64
	MaxTokens   int
}

// GenerationResult is the standardized output of one backend call.
// When a call fails after all retries, the scheduler stores a result
// with FailureKind set and empty Text instead of dropping the slot.
type GenerationResult struct {
	Backend     string          `json:"backend"`
	Prompt      string          `json:"prompt"`
	Text        string          `json:"text"`
	StopReason  string          `json:"stop_reason"`
	TokenCount  int             `json:"token_count"`
	LatencyMS   int64           `json:"latency_ms"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	FailureKind string          `json:"failure_kind,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Failed reports whether this result is a failure marker rather than a
// real model response.
func (r GenerationResult) Failed() bool {
	return r.FailureKind != ""
}

// Adapter is the capability contract every backend implements. The
// orchestration core never depends on provider request/response shapes
// beyond this interface.
type Adapter interface {
	Initialize(ctx context.Context) error
	Generate(ctx context.Context, req Request) (GenerationResult, error)
	// GenerateStream returns a finite, non-restartable sequence of text
	// fragments. Adapters without streaming support return
	// ErrStreamingUnsupported.
	GenerateStream(ctx context.Context, req Request) (<-chan string, error)
	HealthCheck(ctx context.Context) bool
	Close() error
}

var (
	// ErrUnknownBackendKind is returned by the registry for a kind tag
	// that was never registered. Fatal at setup.
	ErrUnknownBackendKind = errors.New("unknown backend kind")

	// ErrStreamingUnsupported marks an adapter without a streaming path.
	// The orchestrator treats it as "not supported", never as a failure.
	ErrStreamingUnsupported = errors.New("streaming not supported by this backend")

	// ErrTimeout marks an adapter call that exceeded its per-call timeout.
	ErrTimeout = errors.New("adapter call timed out")
)

// InitializationError wraps a failure to bring up an adapter.
type InitializationError struct {
	Backend string
	Err     error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialize backend %s: %v", e.Backend, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// RequestError is a failed provider call. StatusCode 0 means the
// request never produced an HTTP response (network-level failure).
type RequestError struct {
	Backend    string
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("backend %s request failed (status %d): %s", e.Backend, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend %s request failed: %s", e.Backend, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying: timeouts,
// provider rate-limit rejections, 5xx responses, and network-level
// failures. 4xx responses other than 429 are permanent.
func (e *RequestError) Transient() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsTransient classifies an adapter error for the retry policy.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Transient()
	}
	return false
}
