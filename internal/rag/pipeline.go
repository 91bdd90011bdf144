// Package rag answers questions from retrieved document context.
package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/smartdoc/internal/llm"
	"github.com/hyperjump/smartdoc/internal/models"
	"github.com/hyperjump/smartdoc/internal/search"
)

// DefaultContextK is how many retrieved chunks reach the prompt.
const DefaultContextK = 2

// Pipeline runs one turn: rephrase, retrieve, assemble context, answer.
type Pipeline struct {
	llm       llm.Client
	retriever *search.Retriever
	contextK  int
	annotate  bool
	followUps int
	logger    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithContextK truncates retrieved chunks to k before assembly. A negative k keeps all of them.
func WithContextK(k int) Option {
	return func(p *Pipeline) { p.contextK = k }
}

// WithAnnotations toggles the [source, page] prefix on context passages.
func WithAnnotations(enabled bool) Option {
	return func(p *Pipeline) { p.annotate = enabled }
}

// WithFollowUpCount sets how many suggestions FollowUps keeps.
func WithFollowUpCount(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.followUps = n
		}
	}
}

// NewPipeline returns a pipeline answering with client over chunks from retriever.
func NewPipeline(client llm.Client, retriever *search.Retriever, opts ...Option) *Pipeline {
	p := &Pipeline{
		llm:       client,
		retriever: retriever,
		contextK:  DefaultContextK,
		annotate:  true,
		followUps: DefaultFollowUps,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StreamingAnswer is an answer whose text is still arriving.
type StreamingAnswer struct {
	Query     string
	Sources   []*models.Chunk
	Fragments <-chan llm.Fragment
}

// Collect drains the fragments into a complete Answer.
func (s *StreamingAnswer) Collect() (*models.Answer, error) {
	text, err := llm.Collect(s.Fragments)
	if err != nil {
		return nil, err
	}
	return &models.Answer{Text: text, Query: s.Query, Sources: s.Sources}, nil
}

// turn is a prepared request.
type turn struct {
	query    string
	sources  []*models.Chunk
	messages []llm.Message
}

// Ask answers question against idx given prior history.
func (p *Pipeline) Ask(ctx context.Context, idx search.Searcher, question string, history []models.Exchange) (*models.Answer, error) {
	t, err := p.prepare(ctx, idx, question, history, true)
	if err != nil {
		return nil, err
	}
	text, err := p.llm.Complete(ctx, t.messages, llm.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	return &models.Answer{Text: text, Query: t.query, Sources: t.sources}, nil
}

// AskStream is Ask with the answer text streamed.
func (p *Pipeline) AskStream(ctx context.Context, idx search.Searcher, question string, history []models.Exchange) (*StreamingAnswer, error) {
	t, err := p.prepare(ctx, idx, question, history, true)
	if err != nil {
		return nil, err
	}
	return p.stream(ctx, t)
}

func (p *Pipeline) stream(ctx context.Context, t *turn) (*StreamingAnswer, error) {
	frags, err := p.llm.Stream(ctx, t.messages, llm.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	return &StreamingAnswer{Query: t.query, Sources: t.sources, Fragments: frags}, nil
}

// SearchQuery returns the query used for retrieval: the question itself when
// history is empty, otherwise a standalone rewrite produced by the model.
func (p *Pipeline) SearchQuery(ctx context.Context, question string, history []models.Exchange) (string, error) {
	if len(history) == 0 {
		return question, nil
	}
	messages := []llm.Message{{Role: llm.RoleSystem, Content: rephraseInstruction}}
	messages = append(messages, historyMessages(history)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "Follow-up question: " + question})
	rewritten, err := p.llm.Complete(ctx, messages, llm.Options{})
	if err != nil {
		return "", fmt.Errorf("failed to rephrase question: %w", err)
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return question, nil
	}
	p.logger.Debug("rephrased question", zap.String("question", question), zap.String("query", rewritten))
	return rewritten, nil
}

// prepare runs the steps before generation. rephrase is false for tools.
func (p *Pipeline) prepare(ctx context.Context, idx search.Searcher, question string, history []models.Exchange, rephrase bool) (*turn, error) {
	query := question
	if rephrase {
		q, err := p.SearchQuery(ctx, question, history)
		if err != nil {
			return nil, err
		}
		query = q
	}
	chunks, err := p.retriever.Retrieve(ctx, idx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}
	if p.contextK >= 0 && len(chunks) > p.contextK {
		chunks = chunks[:p.contextK]
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: answerInstruction + AssembleContext(chunks, p.annotate)}}
	messages = append(messages, historyMessages(history)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})

	p.logger.Debug("prepared turn",
		zap.String("query", query),
		zap.Int("context_chunks", len(chunks)),
		zap.Int("history", len(history)))
	return &turn{query: query, sources: chunks, messages: messages}, nil
}

func historyMessages(history []models.Exchange) []llm.Message {
	out := make([]llm.Message, 0, len(history)*2)
	for _, ex := range history {
		out = append(out,
			llm.Message{Role: llm.RoleUser, Content: ex.Question},
			llm.Message{Role: llm.RoleAssistant, Content: ex.Answer})
	}
	return out
}
