// Package llm talks to chat-completion language models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrNoAPIKey is returned when no API key is configured.
	ErrNoAPIKey = errors.New("LLM API key is not set")
	// ErrEmptyResponse is returned when the model returns no choices.
	ErrEmptyResponse = errors.New("LLM returned no choices")
	// ErrIncompleteStream is returned when a streamed answer ends before completion.
	ErrIncompleteStream = errors.New("LLM stream ended before completion")
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes a single request. Zero values use the client defaults.
type Options struct {
	MaxTokens int
	// Temperature overrides the client temperature when set.
	Temperature *float64
}

// Fragment is one piece of a streamed answer. A fragment with Err set is the last one.
type Fragment struct {
	Text string
	Err  error
}

// Client is a chat-completion model.
type Client interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
	// Stream returns a channel of fragments that is closed when the answer
	// ends, fails, or ctx is cancelled.
	Stream(ctx context.Context, messages []Message, opts Options) (<-chan Fragment, error)
	ModelName() string
}

// APIError is a non-2xx response from the model endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("LLM request failed (status %d): %s", e.StatusCode, e.Message)
}

// Collect drains a fragment stream into the full text.
func Collect(fragments <-chan Fragment) (string, error) {
	var b strings.Builder
	for f := range fragments {
		if f.Err != nil {
			return b.String(), f.Err
		}
		b.WriteString(f.Text)
	}
	return b.String(), nil
}
