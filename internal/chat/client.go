// Package chat is a small client for OpenAI-compatible chat-completion APIs.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrNoChoices is returned when a completion response carries no choices.
var ErrNoChoices = errors.New("chat: response contained no choices")

// CredentialSource supplies the API key for each request.
type CredentialSource interface {
	Load() (string, error)
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat API error %d: %s", e.StatusCode, e.Message)
}

// Client sends chat-completion requests. It keeps no conversation state.
type Client struct {
	baseURL string
	model   string
	creds   CredentialSource
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	timeout time.Duration // applied after all options; zero keeps the client's own
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout. It applies to whichever HTTP
// client the options end up selecting, and never mutates one passed to
// WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRequestsPerMinute limits outgoing requests. Zero disables the limit.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the API at baseURL (e.g. https://api.openai.com/v1).
func New(baseURL, model string, creds CredentialSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		creds:   creds,
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  slog.With("component", "chat"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c
}

// Model returns the model name sent with each request.
func (c *Client) Model() string {
	return c.model
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the transcript and returns the assistant's reply.
// Credential errors are wrapped so callers can match vault sentinels.
func (c *Client) Complete(ctx context.Context, messages []Message) (Message, error) {
	key, err := c.creds.Load()
	if err != nil {
		return Message{}, fmt.Errorf("loading API key: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Message{}, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(completionRequest{Model: c.model, Messages: messages})
	if err != nil {
		return Message{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Message{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Message{}, fmt.Errorf("reading response: %w", err)
	}
	c.logger.Debug("completion", "model", c.model, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Message{}, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	var out completionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Message{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Choices) == 0 {
		return Message{}, ErrNoChoices
	}
	reply := out.Choices[0].Message
	if reply.Role == "" {
		reply.Role = RoleAssistant
	}
	return reply, nil
}

func errorMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return "empty response body"
}
