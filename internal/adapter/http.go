package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// httpCore is the shared HTTP machinery under the thin provider
// adapters: one JSON POST/GET with provider headers, body capture, and
// error normalization into RequestError / ErrTimeout.
type httpCore struct {
	backend string
	baseURL string
	client  *http.Client
	headers map[string]string
}

func newHTTPCore(backend, baseURL string, timeout time.Duration, headers map[string]string) *httpCore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpCore{
		backend: backend,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		headers: headers,
	}
}

type rawResponse struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

func (c *httpCore) postJSON(ctx context.Context, path string, body any) (*rawResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload)
}

func (c *httpCore) get(ctx context.Context, path string) (*rawResponse, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *httpCore) do(ctx context.Context, method, path string, payload []byte) (*rawResponse, error) {
	var reader io.Reader
	if len(payload) > 0 {
		reader = bytes.NewReader(payload)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if len(payload) > 0 {
		request.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		if v != "" {
			request.Header.Set(k, v)
		}
	}

	start := time.Now()
	response, err := c.client.Do(request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return nil, fmt.Errorf("%s %s: %w", method, path, ErrTimeout)
		}
		return nil, &RequestError{Backend: c.backend, Message: err.Error(), Err: err}
	}
	defer response.Body.Close()

	bodyBytes, readErr := io.ReadAll(response.Body)
	raw := &rawResponse{
		StatusCode: response.StatusCode,
		Body:       bodyBytes,
		Duration:   time.Since(start),
	}
	if readErr != nil {
		return raw, &RequestError{Backend: c.backend, StatusCode: response.StatusCode, Message: "read response body: " + readErr.Error(), Err: readErr}
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return raw, &RequestError{
			Backend:    c.backend,
			StatusCode: response.StatusCode,
			Message:    firstN(string(bodyBytes), 300),
		}
	}
	return raw, nil
}

func isClientTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func firstN(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
