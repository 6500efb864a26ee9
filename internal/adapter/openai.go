package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/config"
)

// OpenAI is a thin adapter for the OpenAI Chat Completions API. It also
// covers OpenAI-compatible endpoints (Azure deployments, local
// gateways) when given a custom endpoint.
type OpenAI struct {
	cfg  config.BackendConfig
	core *httpCore
}

func NewOpenAI(cfg config.BackendConfig) *OpenAI {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com"
	}
	return &OpenAI{
		cfg: cfg,
		core: newHTTPCore(cfg.Name, endpoint, time.Duration(cfg.TimeoutSec)*time.Second, map[string]string{
			"Authorization": "Bearer " + cfg.APIKey,
		}),
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (o *OpenAI) Initialize(ctx context.Context) error {
	if o.cfg.APIKey == "" {
		return &InitializationError{Backend: o.cfg.Name, Err: fmt.Errorf("missing api key")}
	}
	return nil
}

func (o *OpenAI) buildMessages(req Request) []openAIMessage {
	messages := make([]openAIMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.History {
		messages = append(messages, openAIMessage{Role: m.Role, Content: m.Content})
	}
	return append(messages, openAIMessage{Role: "user", Content: req.Prompt})
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (GenerationResult, error) {
	messages := o.buildMessages(req)

	raw, err := o.core.postJSON(ctx, "/v1/chat/completions", openAIRequest{
		Model:       o.cfg.ModelName,
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return GenerationResult{}, err
	}

	var resp openAIResponse
	if err := json.Unmarshal(raw.Body, &resp); err != nil {
		return GenerationResult{}, &RequestError{Backend: o.cfg.Name, StatusCode: raw.StatusCode, Message: "decode chat response: " + err.Error(), Err: err}
	}
	text := ""
	stopReason := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
		stopReason = resp.Choices[0].FinishReason
	}
	return GenerationResult{
		Backend:    o.cfg.Name,
		Prompt:     req.Prompt,
		Text:       text,
		StopReason: stopReason,
		TokenCount: resp.Usage.TotalTokens,
		LatencyMS:  raw.Duration.Milliseconds(),
		Raw:        json.RawMessage(raw.Body),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// GenerateStream emits completion deltas from the server-sent event
// stream. The channel is closed on the [DONE] sentinel or when the
// stream breaks; the sequence is finite and cannot be restarted.
func (o *OpenAI) GenerateStream(ctx context.Context, req Request) (<-chan string, error) {
	messages := o.buildMessages(req)
	payload, err := json.Marshal(openAIRequest{
		Model:       o.cfg.ModelName,
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, &RequestError{Backend: o.cfg.Name, Message: "marshal stream request: " + err.Error(), Err: err}
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, o.core.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &RequestError{Backend: o.cfg.Name, Message: "build stream request: " + err.Error(), Err: err}
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

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
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var chunk openAIStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case out <- chunk.Choices[0].Delta.Content:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (o *OpenAI) HealthCheck(ctx context.Context) bool {
	_, err := o.core.get(ctx, "/v1/models")
	return err == nil
}

func (o *OpenAI) Close() error { return nil }
