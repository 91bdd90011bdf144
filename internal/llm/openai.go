package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/smartdoc/internal/config"
)

// Defaults for the OpenAI-compatible endpoint.
const (
	DefaultBaseURL      = "https://api.groq.com/openai/v1"
	DefaultModel        = "llama-3.1-8b-instant"
	DefaultTimeout      = 120 * time.Second
	DefaultStreamBuffer = 16
)

// OpenAIClient calls an OpenAI-compatible /chat/completions endpoint. Requests
// are not retried.
type OpenAIClient struct {
	client      *http.Client
	timeout     time.Duration
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	buffer      int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// OpenAIOption configures an OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(c *OpenAIClient) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithModel sets the model name.
func WithModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) OpenAIOption {
	return func(c *OpenAIClient) { c.temperature = t }
}

// WithMaxTokens caps generated tokens. Zero leaves it to the server.
func WithMaxTokens(n int) OpenAIOption {
	return func(c *OpenAIClient) { c.maxTokens = n }
}

// WithTimeout bounds waiting for response headers and, for Complete, the
// whole call. Streamed bodies are bounded only by the caller's context.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *OpenAIClient) {
		if d > 0 {
			c.timeout = d
			c.client = newHTTPClient(d)
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *OpenAIClient) { c.client = hc }
}

// WithRequestsPerMinute limits request starts client-side. Zero disables the limit.
func WithRequestsPerMinute(n int) OpenAIOption {
	return func(c *OpenAIClient) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

// WithStreamBuffer sets the capacity of the fragment channel.
func WithStreamBuffer(n int) OpenAIOption {
	return func(c *OpenAIClient) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) OpenAIOption {
	return func(c *OpenAIClient) { c.logger = l }
}

// NewOpenAIClient creates a client authenticating with apiKey.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	c := &OpenAIClient{
		client:  newHTTPClient(DefaultTimeout),
		timeout: DefaultTimeout,
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		model:   DefaultModel,
		buffer:  DefaultStreamBuffer,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromConfig creates a client from the llm settings, reading the key from the configured env var.
func NewFromConfig(cfg config.LLMConfig, logger *zap.Logger) (*OpenAIClient, error) {
	key := cfg.APIKey()
	if key == "" {
		return nil, fmt.Errorf("%w: export %s or add it to .env", ErrNoAPIKey, cfg.APIKeyEnv)
	}
	opts := []OpenAIOption{
		WithBaseURL(cfg.BaseURL),
		WithModel(cfg.Model),
		WithTemperature(cfg.Temperature),
		WithMaxTokens(cfg.MaxTokens),
		WithRequestsPerMinute(cfg.RequestsPerMinute),
		WithStreamBuffer(cfg.StreamBuffer),
	}
	if cfg.TimeoutSecs > 0 {
		opts = append(opts, WithTimeout(time.Duration(cfg.TimeoutSecs)*time.Second))
	}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	return NewOpenAIClient(key, opts...)
}

// newHTTPClient has no overall Client.Timeout, which would also cut off
// long streamed bodies.
func newHTTPClient(headerTimeout time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: tr}
}

// ModelName returns the model name.
func (c *OpenAIClient) ModelName() string {
	return c.model
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiErrorBody `json:"error,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiErrorBody `json:"error,omitempty"`
}

type apiErrorBody struct {
	Message string `json:"message"`
}

// Complete returns the full answer for messages.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.do(ctx, messages, opts, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode LLM response: %w", err)
	}
	if out.Error != nil {
		return "", &APIError{StatusCode: resp.StatusCode, Message: out.Error.Message}
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

// Stream sends a streaming request and returns fragments as they arrive.
func (c *OpenAIClient) Stream(ctx context.Context, messages []Message, opts Options) (<-chan Fragment, error) {
	resp, err := c.do(ctx, messages, opts, true)
	if err != nil {
		return nil, err
	}
	out := make(chan Fragment, c.buffer)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		if err := readStream(ctx, resp.Body, out); err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- Fragment{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// readStream forwards the deltas of an SSE body until [DONE] or EOF. A body
// that ends before [DONE] or a finish_reason fails with ErrIncompleteStream.
func readStream(ctx context.Context, body io.Reader, out chan<- Fragment) error {
	finished := false
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return &APIError{StatusCode: http.StatusOK, Message: chunk.Error.Message}
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				finished = true
			}
			if choice.Delta.Content == "" {
				continue
			}
			select {
			case out <- Fragment{Text: choice.Delta.Content}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	if !finished {
		return ErrIncompleteStream
	}
	return nil
}

func (c *OpenAIClient) do(ctx context.Context, messages []Message, opts Options, stream bool) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      stream,
	}
	if opts.Temperature != nil {
		reqBody.Temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		reqBody.MaxTokens = opts.MaxTokens
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send LLM request: %w", err)
	}
	c.logger.Debug("llm request",
		zap.String("model", c.model),
		zap.Int("messages", len(messages)),
		zap.Bool("stream", stream),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		var parsed chatResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return resp, nil
}
