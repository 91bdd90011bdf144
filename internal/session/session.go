// Package session holds one conversation over one attached document.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/smartdoc/internal/models"
	"github.com/hyperjump/smartdoc/internal/rag"
	"github.com/hyperjump/smartdoc/internal/search"
)

var (
	// ErrNoDocument is returned by chat operations before a document is attached.
	ErrNoDocument = errors.New("no document attached: upload a document first")
	// ErrBusy is returned when a turn is already in flight.
	ErrBusy = errors.New("a request is already in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// Document is an attached, indexed upload.
type Document struct {
	Key   string
	Files []string
	Index interface {
		search.Searcher
		Count() int
		Close() error
	}
}

// Session is a single-user conversation. Turns are appended only after the
// model call that produced them completes.
type Session struct {
	id       string
	pipeline *rag.Pipeline
	logger   *zap.Logger
	created  time.Time

	// turn serializes requests; mu guards the fields below.
	turn    sync.Mutex
	mu      sync.RWMutex
	doc     *Document
	turns   []models.ChatTurn
	history []models.Exchange
	pending string
	closed  bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New creates an empty session answering through pipeline.
func New(pipeline *rag.Pipeline, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		pipeline: pipeline,
		logger:   zap.NewNop(),
		created:  time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", s.id))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Created returns when the session started.
func (s *Session) Created() time.Time {
	return s.created
}

// Attach makes doc the active document, closing the previous one. The
// transcript is cleared unless doc has the same key as the attached document.
func (s *Session) Attach(doc *Document) error {
	if doc == nil || doc.Index == nil {
		return errors.New("attach requires an indexed document")
	}
	s.turn.Lock()
	defer s.turn.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.doc != nil && s.doc.Index != doc.Index {
		if err := s.doc.Index.Close(); err != nil {
			s.logger.Warn("failed to close previous index", zap.Error(err))
		}
	}
	same := s.doc != nil && s.doc.Key == doc.Key
	s.doc = doc
	if !same {
		s.turns = nil
		s.history = nil
		s.pending = ""
	}
	s.logger.Info("document attached",
		zap.String("key", doc.Key),
		zap.Strings("files", doc.Files),
		zap.Bool("kept_transcript", same))
	return nil
}

// Document returns the attached document, or nil.
func (s *Session) Document() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Turns returns a copy of the transcript.
func (s *Session) Turns() []models.ChatTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChatTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

// History returns a copy of the question/answer pairs.
func (s *Session) History() []models.Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Exchange(nil), s.history...)
}

// Clear drops the transcript and history but keeps the document.
func (s *Session) Clear() {
	s.turn.Lock()
	defer s.turn.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.history = nil
	s.pending = ""
}

// SetPending stores a prompt to submit next, e.g. a chosen suggestion.
func (s *Session) SetPending(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = prompt
}

// TakePending returns and clears the pending prompt.
func (s *Session) TakePending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = ""
	return p, p != ""
}

// Suggestion returns the n-th (1-based) suggestion of the last assistant turn.
func (s *Session) Suggestion(n int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return "", false
	}
	i := s.answerTurn(s.history[len(s.history)-1])
	if i < 0 || n < 1 || n > len(s.turns[i].Suggestions) {
		return "", false
	}
	return s.turns[i].Suggestions[n-1], true
}

// Close releases the attached index.
func (s *Session) Close() error {
	s.turn.Lock()
	defer s.turn.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.doc != nil {
		return s.doc.Index.Close()
	}
	return nil
}

// begin takes the turn lock and returns the active document.
func (s *Session) begin() (*Document, []models.Exchange, error) {
	if !s.turn.TryLock() {
		return nil, nil, ErrBusy
	}
	s.mu.RLock()
	doc, closed := s.doc, s.closed
	history := append([]models.Exchange(nil), s.history...)
	s.mu.RUnlock()
	if closed {
		s.turn.Unlock()
		return nil, nil, ErrClosed
	}
	if doc == nil {
		s.turn.Unlock()
		return nil, nil, ErrNoDocument
	}
	return doc, history, nil
}

func (s *Session) record(prompt string, ans *models.Answer, exchange bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns,
		models.ChatTurn{Role: models.RoleUser, Text: prompt},
		models.ChatTurn{Role: models.RoleAssistant, Text: ans.Text, Sources: ans.Sources})
	if exchange {
		s.history = append(s.history, models.Exchange{Question: prompt, Answer: ans.Text})
	}
}

// Ask answers question and appends the turn.
func (s *Session) Ask(ctx context.Context, question string) (*models.Answer, error) {
	req := models.AskRequest{Question: question}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	doc, history, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer s.turn.Unlock()

	ans, err := s.pipeline.Ask(ctx, doc.Index, req.Question, history)
	if err != nil {
		return nil, err
	}
	s.record(req.Question, ans, true)
	return ans, nil
}

// Stream is an answer in progress. Fragments must be drained; the turn is
// recorded when the stream ends without error and Wait returns the result.
type Stream struct {
	Query     string
	Sources   []*models.Chunk
	Fragments <-chan string

	done   chan struct{}
	answer *models.Answer
	err    error
}

// Wait blocks until the stream ends and returns the complete answer.
func (st *Stream) Wait() (*models.Answer, error) {
	<-st.done
	return st.answer, st.err
}

// AskStream answers question with streamed text.
func (s *Session) AskStream(ctx context.Context, question string) (*Stream, error) {
	req := models.AskRequest{Question: question, Stream: true}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	doc, history, err := s.begin()
	if err != nil {
		return nil, err
	}
	sa, err := s.pipeline.AskStream(ctx, doc.Index, req.Question, history)
	if err != nil {
		s.turn.Unlock()
		return nil, err
	}
	return s.relay(ctx, req.Question, sa, true), nil
}

// RunTool runs a document tool. Tool turns are shown in the transcript but
// are not fed back as conversation history.
func (s *Session) RunTool(ctx context.Context, tool rag.Tool) (*models.Answer, error) {
	st, err := s.RunToolStream(ctx, tool)
	if err != nil {
		return nil, err
	}
	for range st.Fragments {
	}
	return st.Wait()
}

// RunToolStream is RunTool with streamed text.
func (s *Session) RunToolStream(ctx context.Context, tool rag.Tool) (*Stream, error) {
	doc, _, err := s.begin()
	if err != nil {
		return nil, err
	}
	sa, err := s.pipeline.RunToolStream(ctx, doc.Index, tool)
	if err != nil {
		s.turn.Unlock()
		return nil, err
	}
	return s.relay(ctx, toolPrompt(tool), sa, false), nil
}

func toolPrompt(tool rag.Tool) string {
	return fmt.Sprintf("[%s]", tool)
}

// relay forwards fragments and records the turn on success. It owns the turn lock.
func (s *Session) relay(ctx context.Context, prompt string, sa *rag.StreamingAnswer, exchange bool) *Stream {
	out := make(chan string)
	st := &Stream{Query: sa.Query, Sources: sa.Sources, Fragments: out, done: make(chan struct{})}
	go func() {
		defer close(st.done)
		defer s.turn.Unlock()
		defer close(out)
		var text []byte
		for f := range sa.Fragments {
			if f.Err != nil {
				st.err = f.Err
				break
			}
			text = append(text, f.Text...)
			select {
			case out <- f.Text:
			case <-ctx.Done():
			}
		}
		if st.err == nil {
			st.err = ctx.Err()
		}
		if st.err != nil {
			s.logger.Warn("turn aborted", zap.Error(st.err))
			return
		}
		st.answer = &models.Answer{Text: string(text), Query: sa.Query, Sources: sa.Sources}
		s.record(prompt, st.answer, exchange)
	}()
	return st
}

// FollowUps suggests next questions for the last exchange and attaches them
// to the assistant turn that answered it. Tool turns are skipped.
func (s *Session) FollowUps(ctx context.Context) ([]string, error) {
	if _, _, err := s.begin(); err != nil {
		return nil, err
	}
	defer s.turn.Unlock()

	s.mu.RLock()
	if len(s.history) == 0 {
		s.mu.RUnlock()
		return []string{}, nil
	}
	ex := s.history[len(s.history)-1]
	question, answer := ex.Question, ex.Answer
	last := s.answerTurn(ex)
	s.mu.RUnlock()

	suggestions, err := s.pipeline.FollowUps(ctx, question, answer)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if last >= 0 && last < len(s.turns) {
		s.turns[last].Suggestions = suggestions
	}
	s.mu.Unlock()
	return suggestions, nil
}

// answerTurn returns the index of the assistant turn recorded for ex, or -1.
// Callers hold mu.
func (s *Session) answerTurn(ex models.Exchange) int {
	for i := len(s.turns) - 1; i >= 1; i-- {
		t, prev := s.turns[i], s.turns[i-1]
		if t.Role == models.RoleAssistant && t.Text == ex.Answer &&
			prev.Role == models.RoleUser && prev.Text == ex.Question {
			return i
		}
	}
	return -1
}
