package llm

import (
	"context"
	"strings"
	"sync"
)

// MockClient is a scripted Client for tests and offline demos. Replies are
// returned in order; once exhausted, Respond (if set) or a fixed echo is used.
type MockClient struct {
	Replies []string
	// Respond computes a reply from the request when Replies is exhausted.
	Respond func(messages []Message) string
	// Err, when set, fails every call.
	Err error

	mu    sync.Mutex
	calls [][]Message
}

// NewMockClient returns a MockClient that answers with replies in order.
func NewMockClient(replies ...string) *MockClient {
	return &MockClient{Replies: replies}
}

// ModelName returns "mock".
func (m *MockClient) ModelName() string {
	return "mock"
}

// Calls returns a copy of every request received.
func (m *MockClient) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]Message, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockClient) next(messages []Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]Message(nil), messages...))
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Replies) > 0 {
		r := m.Replies[0]
		m.Replies = m.Replies[1:]
		return r, nil
	}
	if m.Respond != nil {
		return m.Respond(messages), nil
	}
	return "mock answer", nil
}

// Complete returns the next reply.
func (m *MockClient) Complete(ctx context.Context, messages []Message, _ Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.next(messages)
}

// Stream emits the next reply word by word.
func (m *MockClient) Stream(ctx context.Context, messages []Message, _ Options) (<-chan Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reply, err := m.next(messages)
	if err != nil {
		return nil, err
	}
	out := make(chan Fragment)
	go func() {
		defer close(out)
		for _, piece := range strings.SplitAfter(reply, " ") {
			if piece == "" {
				continue
			}
			select {
			case out <- Fragment{Text: piece}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
