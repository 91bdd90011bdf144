package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/smartdoc/internal/models"
	"github.com/hyperjump/smartdoc/internal/search"
)

// Tool is a fixed-instruction document action.
type Tool string

// Document tools.
const (
	ToolSummary Tool = "summary"
	ToolNotes   Tool = "notes"
	ToolQuiz    Tool = "quiz"
	ToolTopics  Tool = "topics"
)

// ErrUnknownTool is returned by ParseTool for names outside Tools.
var ErrUnknownTool = errors.New("unknown tool")

var toolInstructions = map[Tool]string{
	ToolSummary: "Summarize the document in a few concise paragraphs covering its main points.",
	ToolNotes:   "Write structured study notes for the document with headings and bullet points for the key facts and definitions.",
	ToolQuiz:    "Write a quiz of 5 multiple-choice questions about the document. Give four options per question and mark the correct answer.",
	ToolTopics:  "List the main topics covered in the document, one per line, each with a one-sentence description.",
}

// Tools returns the available tools in display order.
func Tools() []Tool {
	return []Tool{ToolSummary, ToolNotes, ToolQuiz, ToolTopics}
}

// ParseTool resolves a tool name, case-insensitively.
func ParseTool(name string) (Tool, error) {
	t := Tool(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := toolInstructions[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t, nil
}

// Instruction returns the fixed instruction sent in place of a question.
func (t Tool) Instruction() string {
	return toolInstructions[t]
}

// RunTool answers the tool's instruction with empty history and no rephrase.
// Retrieval runs against the instruction text.
func (p *Pipeline) RunTool(ctx context.Context, idx search.Searcher, tool Tool) (*models.Answer, error) {
	s, err := p.RunToolStream(ctx, idx, tool)
	if err != nil {
		return nil, err
	}
	return s.Collect()
}

// RunToolStream is RunTool with the answer text streamed.
func (p *Pipeline) RunToolStream(ctx context.Context, idx search.Searcher, tool Tool) (*StreamingAnswer, error) {
	instruction := tool.Instruction()
	if instruction == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, string(tool))
	}
	t, err := p.prepare(ctx, idx, instruction, nil, false)
	if err != nil {
		return nil, err
	}
	return p.stream(ctx, t)
}
