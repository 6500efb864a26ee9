package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/config"
)

// Ollama is a thin adapter for a local Ollama server. It is the one
// built-in adapter with a streaming path (newline-delimited JSON).
type Ollama struct {
	cfg  config.BackendConfig
	core *httpCore
}

func NewOllama(cfg config.BackendConfig) *Ollama {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &Ollama{
		cfg:  cfg,
		core: newHTTPCore(cfg.Name, endpoint, time.Duration(cfg.TimeoutSec)*time.Second, nil),
	}
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
	EvalCount  int    `json:"eval_count"`
}

func (o *Ollama) Initialize(ctx context.Context) error { return nil }

func (o *Ollama) options(req Request) map[string]any {
	opts := map[string]any{}
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		opts["top_p"] = *req.TopP
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

func (o *Ollama) Generate(ctx context.Context, req Request) (GenerationResult, error) {
	raw, err := o.core.postJSON(ctx, "/api/generate", ollamaRequest{
		Model:   o.cfg.ModelName,
		Prompt:  req.Prompt,
		System:  req.SystemPrompt,
		Stream:  false,
		Options: o.options(req),
	})
	if err != nil {
		return GenerationResult{}, err
	}

	var resp ollamaResponse
	if err := json.Unmarshal(raw.Body, &resp); err != nil {
		return GenerationResult{}, &RequestError{Backend: o.cfg.Name, StatusCode: raw.StatusCode, Message: "decode generate response: " + err.Error(), Err: err}
	}
	return GenerationResult{
		Backend:    o.cfg.Name,
		Prompt:     req.Prompt,
		Text:       resp.Response,
		StopReason: resp.DoneReason,
		TokenCount: resp.EvalCount,
		LatencyMS:  raw.Duration.Milliseconds(),
		Raw:        json.RawMessage(raw.Body),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// GenerateStream emits response fragments as they arrive. The channel
// is closed when the server marks the generation done or the stream
// breaks; the sequence is finite and cannot be restarted.
func (o *Ollama) GenerateStream(ctx context.Context, req Request) (<-chan string, error) {
	payload, err := json.Marshal(ollamaRequest{
		Model:   o.cfg.ModelName,
		Prompt:  req.Prompt,
		System:  req.SystemPrompt,
		Stream:  true,
		Options: o.options(req),
	})
	if err != nil {
		return nil, &RequestError{Backend: o.cfg.Name, Message: "marshal stream request: " + err.Error(), Err: err}
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, o.core.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, &RequestError{Backend: o.cfg.Name, Message: "build stream request: " + err.Error(), Err: err}
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := o.core.client.Do(request)
	if err != nil {
		return nil, &RequestError{Backend: o.cfg.Name, Message: err.Error(), Err: err}
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		defer response.Body.Close()
		return nil, &RequestError{Backend: o.cfg.Name, StatusCode: response.StatusCode, Message: "stream request rejected"}
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer response.Body.Close()
		scanner := bufio.NewScanner(response.Body)
		for scanner.Scan() {
			var chunk ollamaResponse
			if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
				return
			}
			if chunk.Response != "" {
				select {
				case out <- chunk.Response:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				return
			}
		}
	}()
	return out, nil
}

func (o *Ollama) HealthCheck(ctx context.Context) bool {
	_, err := o.core.get(ctx, "/api/tags")
	return err == nil
}

func (o *Ollama) Close() error { return nil }
