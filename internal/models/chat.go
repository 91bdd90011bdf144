package models

import (
	"fmt"
	"strings"
)

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one rendered message in the session transcript.
type ChatTurn struct {
	Role        Role     `json:"role"`
	Text        string   `json:"text"`
	Suggestions []string `json:"suggestions,omitempty"`
	Sources     []*Chunk `json:"sources,omitempty"`
}

// Exchange is a (question, answer) pair fed back to the model as conversation history.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Answer is the outcome of one retrieval-augmented turn.
type Answer struct {
	Text string `json:"answer"`
	// Query is the search query actually used for retrieval (the rephrased question, when rephrasing ran).
	Query   string   `json:"query"`
	Sources []*Chunk `json:"sources"`
}

// AskRequest is a chat question submitted through the API.
type AskRequest struct {
	Question string `json:"question"`
	Stream   bool   `json:"stream,omitempty"`
}

// Validate trims the question and rejects an empty one.
func (r *AskRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	return nil
}
