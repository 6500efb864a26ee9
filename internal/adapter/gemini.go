package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/config"
)

// Gemini is a thin adapter for the Google Generative Language API.
type Gemini struct {
	cfg  config.BackendConfig
	core *httpCore
}

func NewGemini(cfg config.BackendConfig) *Gemini {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &Gemini{
		cfg: cfg,
		core: newHTTPCore(cfg.Name, endpoint, time.Duration(cfg.TimeoutSec)*time.Second, map[string]string{
			"x-goog-api-key": cfg.APIKey,
		}),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature     *float64 `json:"temperature,omitempty"`
		TopP            *float64 `json:"topP,omitempty"`
		MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (g *Gemini) Initialize(ctx context.Context) error {
	if g.cfg.APIKey == "" {
		return &InitializationError{Backend: g.cfg.Name, Err: fmt.Errorf("missing api key")}
	}
	return nil
}

func (g *Gemini) Generate(ctx context.Context, req Request) (GenerationResult, error) {
	body := geminiRequest{}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	for _, m := range req.History {
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}})
	body.GenerationConfig.Temperature = req.Temperature
	body.GenerationConfig.TopP = req.TopP
	body.GenerationConfig.MaxOutputTokens = req.MaxTokens

	raw, err := g.core.postJSON(ctx, "/models/"+g.cfg.ModelName+":generateContent", body)
	if err != nil {
		return GenerationResult{}, err
	}

	var resp geminiResponse
	if err := json.Unmarshal(raw.Body, &resp); err != nil {
		return GenerationResult{}, &RequestError{Backend: g.cfg.Name, StatusCode: raw.StatusCode, Message: "decode generate response: " + err.Error(), Err: err}
	}
	text := ""
	stopReason := ""
	if len(resp.Candidates) > 0 {
		stopReason = resp.Candidates[0].FinishReason
		for _, part := range resp.Candidates[0].Content.Parts {
			text += part.Text
		}
	}
	return GenerationResult{
		Backend:    g.cfg.Name,
		Prompt:     req.Prompt,
		Text:       text,
		StopReason: stopReason,
		TokenCount: resp.UsageMetadata.TotalTokenCount,
		LatencyMS:  raw.Duration.Milliseconds(),
		Raw:        json.RawMessage(raw.Body),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (g *Gemini) GenerateStream(ctx context.Context, req Request) (<-chan string, error) {
	return nil, ErrStreamingUnsupported
}

func (g *Gemini) HealthCheck(ctx context.Context) bool {
	_, err := g.core.get(ctx, "/models/"+g.cfg.ModelName)
	return err == nil
}

func (g *Gemini) Close() error { return nil }
