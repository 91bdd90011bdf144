package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hyperjump/smartdoc/internal/export"
	"github.com/hyperjump/smartdoc/internal/models"
	"github.com/hyperjump/smartdoc/internal/rag"
	"github.com/hyperjump/smartdoc/internal/session"
)

const helpText = `Commands:
  /open <file>...   index and attach documents
  /summary /notes /quiz /topics   run a document tool
  /followups        suggest next questions
  /1 /2 /3          ask a suggested question
  /clear            clear the conversation
  /export [path]    save the conversation as PDF
  /help             show this help
  /quit             exit
Anything else is asked as a question. Esc cancels an answer in progress.`

// Messages produced by commands.
type (
	openedMsg struct {
		doc *session.Document
		err error
	}
	streamStartedMsg struct {
		prompt string
		stream *session.Stream
		err    error
	}
	fragmentMsg struct {
		text string
	}
	streamDoneMsg struct {
		answer *models.Answer
		err    error
	}
	followUpsMsg struct {
		suggestions []string
		err         error
	}
	exportedMsg struct {
		path string
		err  error
	}
	pendingMsg struct{}
)

// command is a parsed slash command.
type command struct {
	name string
	args []string
}

// parseCommand splits "/name arg..." input. ok is false for plain questions.
func parseCommand(input string) (command, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return command{}, false
	}
	fields := strings.Fields(input[1:])
	if len(fields) == 0 {
		return command{}, false
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

// suggestionIndex returns n for "/n" commands.
func suggestionIndex(name string) (int, bool) {
	n, err := strconv.Atoi(name)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// openCmd indexes paths and attaches the result to sess.
func openCmd(ctx context.Context, open Opener, sess *session.Session, paths []string) tea.Cmd {
	return func() tea.Msg {
		doc, err := open(ctx, paths)
		if err != nil {
			return openedMsg{err: err}
		}
		if err := sess.Attach(doc); err != nil {
			doc.Index.Close()
			return openedMsg{err: err}
		}
		return openedMsg{doc: doc}
	}
}

func askCmd(ctx context.Context, sess *session.Session, question string) tea.Cmd {
	return func() tea.Msg {
		st, err := sess.AskStream(ctx, question)
		return streamStartedMsg{prompt: question, stream: st, err: err}
	}
}

func toolCmd(ctx context.Context, sess *session.Session, tool rag.Tool) tea.Cmd {
	return func() tea.Msg {
		st, err := sess.RunToolStream(ctx, tool)
		return streamStartedMsg{prompt: fmt.Sprintf("[%s]", tool), stream: st, err: err}
	}
}

// nextFragment reads one fragment; when the stream ends it reports the outcome.
func nextFragment(st *session.Stream) tea.Cmd {
	return func() tea.Msg {
		text, ok := <-st.Fragments
		if ok {
			return fragmentMsg{text: text}
		}
		ans, err := st.Wait()
		return streamDoneMsg{answer: ans, err: err}
	}
}

func followUpsCmd(ctx context.Context, sess *session.Session) tea.Cmd {
	return func() tea.Msg {
		s, err := sess.FollowUps(ctx)
		return followUpsMsg{suggestions: s, err: err}
	}
}

func exportCmd(sess *session.Session, path string, opts export.Options) tea.Cmd {
	return func() tea.Msg {
		err := export.SavePDF(path, sess.Turns(), opts)
		return exportedMsg{path: path, err: err}
	}
}

func pendingCmd() tea.Msg {
	return pendingMsg{}
}
