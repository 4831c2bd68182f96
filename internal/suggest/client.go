package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/murmurapp/murmur/internal/config"
)

// Completer is a blocking text-completion call. The production implementation
// is Client; tests substitute a stub.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// APIError is a non-2xx answer from the completion provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("completion provider returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to an OpenAI-style completions endpoint. Requests carry the
// configured timeout and are retried with exponential backoff on 429 and 5xx.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
}

var _ Completer = (*Client)(nil)

func NewClient(cfg config.SuggestConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
	}
}

type completionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// Complete sends the prompt and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(completionRequest{
		Model:     c.model,
		Prompt:    prompt,
		MaxTokens: 100,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		text, err := c.doRequest(ctx, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if apiErr, ok := err.(*APIError); ok && !retryable(apiErr.StatusCode) {
			break
		}
	}

	return "", lastErr
}

func (c *Client) doRequest(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var decoded completionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("completion response contained no choices")
	}

	return decoded.Choices[0].Text, nil
}

func retryable(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
