package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/config"
)

// HuggingFace is a thin adapter for the HuggingFace Inference API
// text-generation task.
type HuggingFace struct {
	cfg  config.BackendConfig
	core *httpCore
}

func NewHuggingFace(cfg config.BackendConfig) *HuggingFace {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api-inference.huggingface.co"
	}
	return &HuggingFace{
		cfg: cfg,
		core: newHTTPCore(cfg.Name, endpoint, time.Duration(cfg.TimeoutSec)*time.Second, map[string]string{
			"Authorization": "Bearer " + cfg.APIKey,
		}),
	}
}

type hfRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		Temperature    *float64 `json:"temperature,omitempty"`
		TopP           *float64 `json:"top_p,omitempty"`
		MaxNewTokens   int      `json:"max_new_tokens,omitempty"`
		ReturnFullText bool     `json:"return_full_text"`
	} `json:"parameters"`
}

type hfResponseItem struct {
	GeneratedText string `json:"generated_text"`
}

func (h *HuggingFace) Initialize(ctx context.Context) error {
	if h.cfg.APIKey == "" {
		return &InitializationError{Backend: h.cfg.Name, Err: fmt.Errorf("missing api key")}
	}
	return nil
}

func (h *HuggingFace) Generate(ctx context.Context, req Request) (GenerationResult, error) {
	// The inference API takes one flat prompt; fold system prompt and
	// history in front of the user prompt.
	input := req.Prompt
	for i := len(req.History) - 1; i >= 0; i-- {
		input = req.History[i].Role + ": " + req.History[i].Content + "\n" + input
	}
	if req.SystemPrompt != "" {
		input = req.SystemPrompt + "\n\n" + input
	}
	body := hfRequest{Inputs: input}
	body.Parameters.Temperature = req.Temperature
	body.Parameters.TopP = req.TopP
	body.Parameters.MaxNewTokens = req.MaxTokens

	raw, err := h.core.postJSON(ctx, "/models/"+h.cfg.ModelName, body)
	if err != nil {
		return GenerationResult{}, err
	}

	var items []hfResponseItem
	if err := json.Unmarshal(raw.Body, &items); err != nil {
		return GenerationResult{}, &RequestError{Backend: h.cfg.Name, StatusCode: raw.StatusCode, Message: "decode inference response: " + err.Error(), Err: err}
	}
	text := ""
	if len(items) > 0 {
		text = items[0].GeneratedText
	}
	return GenerationResult{
		Backend:    h.cfg.Name,
		Prompt:     req.Prompt,
		Text:       text,
		StopReason: "stop",
		LatencyMS:  raw.Duration.Milliseconds(),
		Raw:        json.RawMessage(raw.Body),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (h *HuggingFace) GenerateStream(ctx context.Context, req Request) (<-chan string, error) {
	return nil, ErrStreamingUnsupported
}

func (h *HuggingFace) HealthCheck(ctx context.Context) bool {
	_, err := h.core.get(ctx, "/models/"+h.cfg.ModelName)
	return err == nil
}

func (h *HuggingFace) Close() error { return nil }
