package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hyperjump/smartdoc/internal/llm"
	"github.com/hyperjump/smartdoc/internal/models"
	"github.com/hyperjump/smartdoc/internal/rag"
	"github.com/hyperjump/smartdoc/internal/search"
	"github.com/hyperjump/smartdoc/internal/session"
)

type fakeIndex struct{}

func (fakeIndex) Search(context.Context, string, int) ([]*models.Chunk, error) {
	return []*models.Chunk{{ID: "c1", Text: "The sky is blue.", Source: "sky.txt", Page: 1}}, nil
}

func (fakeIndex) KeywordSearch(context.Context, string, int) ([]*models.Chunk, error) {
	return nil, nil
}

func (fakeIndex) Count() int   { return 1 }
func (fakeIndex) Close() error { return nil }

func scripted() *llm.MockClient {
	m := llm.NewMockClient()
	m.Respond = func(messages []llm.Message) string {
		system := messages[0].Content
		switch {
		case strings.HasPrefix(system, "Suggest exactly"):
			return "- What is X?\n- How does Y work?"
		case strings.HasPrefix(system, "Given the conversation"):
			return "What is X in the document?"
		default:
			return "The sky is blue."
		}
	}
	return m
}

func newModel(t *testing.T, client llm.Client, attached bool, opts Options) (Model, *session.Session) {
	t.Helper()
	sess := session.New(rag.NewPipeline(client, search.NewRetriever(5)))
	if attached {
		if err := sess.Attach(&session.Document{Key: "k", Files: []string{"sky.txt"}, Index: fakeIndex{}}); err != nil {
			t.Fatal(err)
		}
	}
	m := New(context.Background(), sess, opts)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model), sess
}

// run feeds msg to the model and runs every resulting command to completion.
func run(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	var cur tea.Model = m
	for i := 0; msg != nil; i++ {
		if i > 1000 {
			t.Fatal("command loop did not settle")
		}
		var cmd tea.Cmd
		cur, cmd = cur.Update(msg)
		if cmd == nil {
			break
		}
		msg = cmd()
	}
	return cur.(Model)
}

func enter(t *testing.T, m Model, text string) Model {
	t.Helper()
	m.input.SetValue(text)
	return run(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input   string
		name    string
		args    []string
		command bool
	}{
		{"/open a.pdf b.txt", "open", []string{"a.pdf", "b.txt"}, true},
		{"  /SUMMARY ", "summary", []string{}, true},
		{"/2", "2", []string{}, true},
		{"what is this?", "", nil, false},
		{"/", "", nil, false},
	}
	for _, tt := range tests {
		got, ok := parseCommand(tt.input)
		if ok != tt.command || got.name != tt.name || len(got.args) != len(tt.args) {
			t.Errorf("parseCommand(%q) = %+v, %v", tt.input, got, ok)
			continue
		}
		for i := range tt.args {
			if got.args[i] != tt.args[i] {
				t.Errorf("parseCommand(%q) args = %v", tt.input, got.args)
			}
		}
	}
	if _, ok := suggestionIndex("0"); ok {
		t.Error("suggestion 0 accepted")
	}
	if n, ok := suggestionIndex("3"); !ok || n != 3 {
		t.Errorf("suggestionIndex(3) = %d, %v", n, ok)
	}
}

func TestModel_streamsAnswer(t *testing.T) {
	m, sess := newModel(t, scripted(), true, Options{})
	m = enter(t, m, "What color is the sky?")

	turns := sess.Turns()
	if len(turns) != 2 || turns[1].Text != "The sky is blue." {
		t.Fatalf("turns = %+v", turns)
	}
	if m.busy || m.status != "Ready." {
		t.Errorf("busy = %v, status = %q", m.busy, m.status)
	}
	view := m.View()
	if !strings.Contains(view, "The sky is blue.") || !strings.Contains(view, "What color is the sky?") {
		t.Errorf("view missing transcript:\n%s", view)
	}
	if strings.Contains(view, cursor) {
		t.Error("cursor left after the answer finished")
	}
}

func TestModel_partialAnswerShowsCursor(t *testing.T) {
	m, _ := newModel(t, scripted(), true, Options{})
	m.input.SetValue("What color is the sky?")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	next, cmd = next.Update(cmd())
	next, _ = next.Update(cmd())
	got := next.(Model)
	if got.partial != "The " {
		t.Errorf("partial = %q", got.partial)
	}
	if !strings.Contains(got.View(), "The "+cursor) {
		t.Errorf("view missing partial answer:\n%s", got.View())
	}
	// Cancel so the stream goroutine exits.
	got.cancel()
}

func TestModel_askBeforeUpload(t *testing.T) {
	client := scripted()
	m, _ := newModel(t, client, false, Options{})
	if !strings.Contains(m.status, "/open") {
		t.Errorf("initial status = %q", m.status)
	}
	m = enter(t, m, "hello?")
	if !strings.Contains(m.status, "upload a document first") {
		t.Errorf("status = %q", m.status)
	}
	if len(client.Calls()) != 0 {
		t.Error("model called before upload")
	}
	if m.busy {
		t.Error("model still busy after a gate error")
	}
}

func TestModel_followUpSuggestion(t *testing.T) {
	m, sess := newModel(t, scripted(), true, Options{})
	m = enter(t, m, "What color is the sky?")
	m = enter(t, m, "/followups")
	if !strings.Contains(m.status, "/1../2") {
		t.Errorf("status = %q", m.status)
	}
	if !strings.Contains(m.View(), "/1 What is X?") {
		t.Errorf("suggestions not rendered:\n%s", m.View())
	}

	m = enter(t, m, "/1")
	turns := sess.Turns()
	if len(turns) != 4 || turns[2].Text != "What is X?" {
		t.Fatalf("turns = %+v", turns)
	}
	if _, ok := sess.TakePending(); ok {
		t.Error("pending prompt not consumed")
	}

	m = enter(t, m, "/7")
	if !strings.Contains(m.status, "No suggestion 7") {
		t.Errorf("status = %q", m.status)
	}
}

func TestModel_autoFollowUps(t *testing.T) {
	m, sess := newModel(t, scripted(), true, Options{AutoFollowUps: true})
	m = enter(t, m, "What color is the sky?")
	turns := sess.Turns()
	if len(turns) != 2 || len(turns[1].Suggestions) != 2 {
		t.Fatalf("turns = %+v", turns)
	}
	if m.busy {
		t.Error("busy after follow-ups")
	}
}

func TestModel_tool(t *testing.T) {
	m, sess := newModel(t, scripted(), true, Options{})
	m = enter(t, m, "/summary")
	turns := sess.Turns()
	if len(turns) != 2 || turns[0].Text != "[summary]" {
		t.Fatalf("turns = %+v", turns)
	}
	if len(sess.History()) != 0 {
		t.Error("tool turn fed into history")
	}
}

func TestModel_cancel(t *testing.T) {
	m, sess := newModel(t, scripted(), true, Options{})
	m.input.SetValue("What color is the sky?")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !next.(Model).busy {
		t.Fatal("not busy after submit")
	}
	next, cmd = next.Update(cmd())

	// Input is rejected while the answer is in flight.
	busy := next.(Model)
	busy.input.SetValue("another?")
	rejected, _ := busy.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.Contains(rejected.(Model).status, "Still working") {
		t.Errorf("status = %q", rejected.(Model).status)
	}

	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyEsc})
	got := run(t, next.(Model), cmd())
	if got.status != "Cancelled." || got.busy {
		t.Errorf("status = %q, busy = %v", got.status, got.busy)
	}
	if len(sess.Turns()) != 0 {
		t.Errorf("cancelled turn recorded: %+v", sess.Turns())
	}
}

func TestModel_clear(t *testing.T) {
	m, sess := newModel(t, scripted(), true, Options{})
	m = enter(t, m, "What color is the sky?")
	m = enter(t, m, "/clear")
	if len(sess.Turns()) != 0 || m.status != "Conversation cleared." {
		t.Errorf("turns = %d, status = %q", len(sess.Turns()), m.status)
	}
	if sess.Document() == nil {
		t.Error("clear detached the document")
	}
}

func TestModel_export(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.pdf")
	m, _ := newModel(t, scripted(), true, Options{ExportTitle: "Chat"})
	m = enter(t, m, "What color is the sky?")
	m = enter(t, m, "/export "+path)
	if m.status != "Saved conversation to "+path {
		t.Errorf("status = %q", m.status)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "%PDF") {
		t.Error("export is not a PDF")
	}
}

func TestModel_open(t *testing.T) {
	var opened []string
	opener := func(_ context.Context, paths []string) (*session.Document, error) {
		opened = paths
		return &session.Document{Key: "k2", Files: []string{"notes.txt"}, Index: fakeIndex{}}, nil
	}
	m, sess := newModel(t, scripted(), false, Options{Open: opener})
	m = enter(t, m, "/open notes.txt")
	if len(opened) != 1 || opened[0] != "notes.txt" {
		t.Errorf("opened = %v", opened)
	}
	if doc := sess.Document(); doc == nil || doc.Key != "k2" {
		t.Fatalf("document = %+v", doc)
	}
	if m.status != "Attached notes.txt (1 chunks)." {
		t.Errorf("status = %q", m.status)
	}
	if !strings.Contains(m.View(), "document: notes.txt") {
		t.Errorf("header missing document:\n%s", m.View())
	}
}

func TestModel_openErrors(t *testing.T) {
	m, _ := newModel(t, scripted(), false, Options{})
	m = enter(t, m, "/open a.txt")
	if !strings.Contains(m.status, "not available") {
		t.Errorf("status = %q", m.status)
	}

	failing := func(context.Context, []string) (*session.Document, error) {
		return nil, errors.New("boom")
	}
	m, sess := newModel(t, scripted(), false, Options{Open: failing})
	m = enter(t, m, "/open")
	if !strings.HasPrefix(m.status, "Usage") {
		t.Errorf("status = %q", m.status)
	}
	m = enter(t, m, "/open a.txt")
	if m.status != "Error: boom" || sess.Document() != nil {
		t.Errorf("status = %q", m.status)
	}
}

func TestModel_helpAndUnknown(t *testing.T) {
	m, _ := newModel(t, scripted(), true, Options{})
	m = enter(t, m, "/help")
	if !strings.Contains(m.View(), "/followups") {
		t.Error("help not shown")
	}
	m = enter(t, m, "/bogus")
	if !strings.Contains(m.status, "Unknown command /bogus") {
		t.Errorf("status = %q", m.status)
	}
}

func TestModel_quit(t *testing.T) {
	m, _ := newModel(t, scripted(), true, Options{})
	m.input.SetValue("/quit")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("/quit did not quit")
	}
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlD})
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+d did not quit")
	}
}
