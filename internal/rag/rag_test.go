package rag

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/smartdoc/internal/llm"
	"github.com/hyperjump/smartdoc/internal/models"
	"github.com/hyperjump/smartdoc/internal/search"
)

// fakeIndex returns fixed chunks and records the queries it saw.
type fakeIndex struct {
	chunks  []*models.Chunk
	queries []string
}

func (f *fakeIndex) Search(_ context.Context, query string, k int) ([]*models.Chunk, error) {
	f.queries = append(f.queries, query)
	if k < len(f.chunks) {
		return f.chunks[:k], nil
	}
	return f.chunks, nil
}

func (f *fakeIndex) KeywordSearch(context.Context, string, int) ([]*models.Chunk, error) {
	return nil, nil
}

func chunksOf(texts ...string) []*models.Chunk {
	out := make([]*models.Chunk, len(texts))
	for i, t := range texts {
		out[i] = &models.Chunk{ID: t, Text: t, Source: "doc.txt", Page: i, Score: 1 - float64(i)/10}
	}
	return out
}

func TestAssembleContext(t *testing.T) {
	chunks := chunksOf("alpha", "beta")
	if got := AssembleContext(chunks, false); got != "alpha\n\nbeta" {
		t.Errorf("plain context = %q", got)
	}
	want := "[source: doc.txt, page: 1]\nalpha\n\n[source: doc.txt, page: 2]\nbeta"
	if got := AssembleContext(chunks, true); got != want {
		t.Errorf("annotated context = %q", got)
	}
	if got := AssembleContext(nil, true); got != NoContextMarker {
		t.Errorf("empty context = %q", got)
	}
}

func TestAsk_emptyHistoryUsesRawQuestion(t *testing.T) {
	client := llm.NewMockClient("answer")
	idx := &fakeIndex{chunks: chunksOf("a", "b", "c")}
	p := NewPipeline(client, search.NewRetriever(5))

	ans, err := p.Ask(context.Background(), idx, "What is it?", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(client.Calls()) != 1 {
		t.Fatalf("model calls = %d, want 1 (no rephrase)", len(client.Calls()))
	}
	if len(idx.queries) != 1 || idx.queries[0] != "What is it?" {
		t.Errorf("queries = %v", idx.queries)
	}
	if ans.Query != "What is it?" || ans.Text != "answer" {
		t.Errorf("answer = %+v", ans)
	}
	if len(ans.Sources) != DefaultContextK {
		t.Errorf("sources = %d, want %d", len(ans.Sources), DefaultContextK)
	}
	msgs := client.Calls()[0]
	if msgs[0].Role != llm.RoleSystem || !strings.Contains(msgs[0].Content, "a\n\n[source: doc.txt, page: 2]\nb") {
		t.Errorf("system prompt = %q", msgs[0].Content)
	}
	if strings.Contains(msgs[0].Content, "\nc") {
		t.Error("third chunk should be truncated away")
	}
	if last := msgs[len(msgs)-1]; last.Role != llm.RoleUser || last.Content != "What is it?" {
		t.Errorf("last message = %+v", last)
	}
}

func TestAsk_historyRephrases(t *testing.T) {
	client := llm.NewMockClient("  What is photosynthesis used for?  ", "It makes sugar.")
	idx := &fakeIndex{chunks: chunksOf("plants")}
	p := NewPipeline(client, search.NewRetriever(5), WithContextK(-1))
	history := []models.Exchange{{Question: "What is photosynthesis?", Answer: "A process in plants."}}

	ans, err := p.Ask(context.Background(), idx, "What is it used for?", history)
	if err != nil {
		t.Fatal(err)
	}
	calls := client.Calls()
	if len(calls) != 2 {
		t.Fatalf("model calls = %d, want 2", len(calls))
	}
	if idx.queries[0] != "What is photosynthesis used for?" || ans.Query != idx.queries[0] {
		t.Errorf("search query = %q", idx.queries[0])
	}
	// The answer call sees history before the original question.
	answer := calls[1]
	if len(answer) != 4 || answer[1].Content != "What is photosynthesis?" || answer[2].Role != llm.RoleAssistant {
		t.Errorf("answer messages = %+v", answer)
	}
	if answer[3].Content != "What is it used for?" {
		t.Errorf("question = %q", answer[3].Content)
	}
}

func TestAsk_noChunksUsesMarker(t *testing.T) {
	client := llm.NewMockClient(Fallback)
	p := NewPipeline(client, search.NewRetriever(5), WithAnnotations(false))
	ans, err := p.Ask(context.Background(), &fakeIndex{}, "anything?", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(client.Calls()[0][0].Content, NoContextMarker) {
		t.Error("system prompt should end with the no-context marker")
	}
	if len(ans.Sources) != 0 {
		t.Errorf("sources = %v", ans.Sources)
	}
}

func TestAsk_modelErrorPropagates(t *testing.T) {
	boom := errors.New("network down")
	client := &llm.MockClient{Err: boom}
	p := NewPipeline(client, search.NewRetriever(5))
	if _, err := p.Ask(context.Background(), &fakeIndex{}, "q", nil); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestAskStream(t *testing.T) {
	client := llm.NewMockClient("streamed answer text")
	p := NewPipeline(client, search.NewRetriever(5))
	s, err := p.AskStream(context.Background(), &fakeIndex{chunks: chunksOf("x")}, "q", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Sources) != 1 || s.Query != "q" {
		t.Errorf("stream metadata = %+v", s)
	}
	ans, err := s.Collect()
	if err != nil || ans.Text != "streamed answer text" {
		t.Errorf("Collect = %+v, %v", ans, err)
	}
}

func TestRunTool(t *testing.T) {
	client := llm.NewMockClient("summary text")
	idx := &fakeIndex{chunks: chunksOf("content")}
	p := NewPipeline(client, search.NewRetriever(5))

	ans, err := p.RunTool(context.Background(), idx, ToolSummary)
	if err != nil {
		t.Fatal(err)
	}
	if ans.Text != "summary text" {
		t.Errorf("tool answer = %q", ans.Text)
	}
	if idx.queries[0] != ToolSummary.Instruction() {
		t.Errorf("retrieval query = %q, want the instruction", idx.queries[0])
	}
	calls := client.Calls()
	if len(calls) != 1 || len(calls[0]) != 2 || calls[0][1].Content != ToolSummary.Instruction() {
		t.Errorf("tool messages = %+v", calls)
	}

	if _, err := p.RunTool(context.Background(), idx, Tool("poem")); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("unknown tool err = %v", err)
	}
}

func TestParseTool(t *testing.T) {
	for _, tool := range Tools() {
		got, err := ParseTool(" " + strings.ToUpper(string(tool)) + " ")
		if err != nil || got != tool {
			t.Errorf("ParseTool(%s) = %v, %v", tool, got, err)
		}
		if tool.Instruction() == "" {
			t.Errorf("%s has no instruction", tool)
		}
	}
	if _, err := ParseTool("translate"); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("err = %v", err)
	}
}

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "preamble and labelled header dropped",
			raw:  "Here are some questions:\n- What is X?\n- Topic: summary\n- How does Y work?",
			want: []string{"What is X?", "How does Y work?"},
		},
		{
			name: "capped at three",
			raw:  "One?\nTwo?\n\nThree?\nFour?",
			want: []string{"One?", "Two?", "Three?"},
		},
		{
			name: "bullets and here is",
			raw:  "Here is a list\n* • Why does it rain?\n  - When was it built?",
			want: []string{"Why does it rain?", "When was it built?"},
		},
		{
			name: "long line with colon kept",
			raw:  "In the report, what does the term churn rate: mean exactly?",
			want: []string{"In the report, what does the term churn rate: mean exactly?"},
		},
		{
			name: "nothing usable",
			raw:  "\n\nQuestions:\n",
			want: []string{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseSuggestions(tc.raw, 3)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseSuggestions = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFollowUps(t *testing.T) {
	client := llm.NewMockClient("Here are some questions:\n- What is X?\n- Topic: summary\n- How does Y work?")
	p := NewPipeline(client, search.NewRetriever(5))
	got, err := p.FollowUps(context.Background(), "q", "a")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"What is X?", "How does Y work?"}) {
		t.Errorf("FollowUps = %q", got)
	}
	if !strings.Contains(client.Calls()[0][1].Content, "Question: q") {
		t.Errorf("follow-up prompt = %q", client.Calls()[0][1].Content)
	}
}
