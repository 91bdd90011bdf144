package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/smartdoc/internal/llm"
)

// DefaultFollowUps is the number of suggestions requested and kept.
const DefaultFollowUps = 3

// FollowUps asks the model for suggested next questions after question and
// answer. Non-compliant output only shortens the list; only a failed model
// call is an error.
func (p *Pipeline) FollowUps(ctx context.Context, question, answer string) ([]string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: followUpInstruction},
		{Role: llm.RoleUser, Content: "Question: " + question + "\n\nAnswer: " + answer},
	}
	raw, err := p.llm.Complete(ctx, messages, llm.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate follow-up questions: %w", err)
	}
	return ParseSuggestions(raw, p.followUps), nil
}

// ParseSuggestions extracts at most limit suggestions from raw model output.
// Per line: leading dashes, bullets and whitespace are stripped; blank lines,
// preambles ("here are...", "here is...") and short labelled headers (a colon
// and fewer than 6 words) are dropped.
func ParseSuggestions(raw string, limit int) []string {
	if limit <= 0 {
		limit = DefaultFollowUps
	}
	out := []string{}
	for _, line := range strings.Split(raw, "\n") {
		s := strings.TrimSpace(strings.TrimLeft(line, "-*•– \t"))
		if s == "" {
			continue
		}
		lower := strings.ToLower(s)
		if strings.HasPrefix(lower, "here are") || strings.HasPrefix(lower, "here is") {
			continue
		}
		if strings.Contains(s, ":") && len(strings.Fields(s)) < 6 {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
