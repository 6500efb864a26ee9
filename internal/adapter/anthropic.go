package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/config"
)

// Anthropic is a thin adapter for the Anthropic Messages API.
type Anthropic struct {
	cfg  config.BackendConfig
	core *httpCore
}

func NewAnthropic(cfg config.BackendConfig) *Anthropic {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.anthropic.com"
	}
	return &Anthropic{
		cfg: cfg,
		core: newHTTPCore(cfg.Name, endpoint, time.Duration(cfg.TimeoutSec)*time.Second, map[string]string{
			"x-api-key":         cfg.APIKey,
			"anthropic-version": "2023-06-01",
		}),
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (a *Anthropic) Initialize(ctx context.Context) error {
	if a.cfg.APIKey == "" {
		return &InitializationError{Backend: a.cfg.Name, Err: fmt.Errorf("missing api key")}
	}
	return nil
}

func (a *Anthropic) Generate(ctx context.Context, req Request) (GenerationResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	messages := make([]anthropicMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, anthropicMessage{Role: "user", Content: req.Prompt})

	raw, err := a.core.postJSON(ctx, "/v1/messages", anthropicRequest{
		Model:       a.cfg.ModelName,
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	})
	if err != nil {
		return GenerationResult{}, err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw.Body, &resp); err != nil {
		return GenerationResult{}, &RequestError{Backend: a.cfg.Name, StatusCode: raw.StatusCode, Message: "decode message response: " + err.Error(), Err: err}
	}
	text := ""
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return GenerationResult{
		Backend:    a.cfg.Name,
		Prompt:     req.Prompt,
		Text:       text,
		StopReason: resp.StopReason,
		TokenCount: resp.Usage.InputTokens + resp.Usage.OutputTokens,
		LatencyMS:  raw.Duration.Milliseconds(),
		Raw:        json.RawMessage(raw.Body),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (a *Anthropic) GenerateStream(ctx context.Context, req Request) (<-chan string, error) {
	return nil, ErrStreamingUnsupported
}

func (a *Anthropic) HealthCheck(ctx context.Context) bool {
	_, err := a.core.get(ctx, "/v1/models")
	return err == nil
}

func (a *Anthropic) Close() error { return nil }
