// Package tui is the terminal chat surface: a transcript viewport, a query
// box, and slash commands for documents, tools, follow-ups, and export.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hyperjump/smartdoc/internal/export"
	"github.com/hyperjump/smartdoc/internal/rag"
	"github.com/hyperjump/smartdoc/internal/session"
)

// Opener indexes paths and returns the document to attach.
type Opener func(ctx context.Context, paths []string) (*session.Document, error)

// Options configures the chat model.
type Options struct {
	Open        Opener
	ExportPath  string
	ExportTitle string
	// AutoFollowUps requests suggestions after every answer.
	AutoFollowUps bool
}

// Model is the Bubble Tea model for a chat session.
type Model struct {
	ctx      context.Context
	sess     *session.Session
	opts     Options
	input    textinput.Model
	viewport viewport.Model
	width    int
	ready    bool

	busy    bool
	status  string
	notice  string
	prompt  string
	partial string
	stream  *session.Stream
	cancel  context.CancelFunc
}

// New creates a chat model over sess. ctx bounds every model call.
func New(ctx context.Context, sess *session.Session, opts Options) Model {
	if opts.ExportPath == "" {
		opts.ExportPath = export.DefaultFilename
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your document, or /help"
	ti.Focus()
	ti.CharLimit = 0
	m := Model{
		ctx:      ctx,
		sess:     sess,
		opts:     opts,
		input:    ti,
		viewport: viewport.New(80, 20),
		width:    80,
		status:   "Ready.",
	}
	if sess.Document() == nil {
		m.status = "No document attached. Use /open <file>."
	}
	m.refresh()
	return m
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window, and command result messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = max(20, msg.Width)
		_, bh := boxStyle.GetFrameSize()
		reserved := 2 + 1 + 3 + bh // header lines, status, input box, viewport frame
		m.viewport.Width = m.width - 2
		m.viewport.Height = max(3, msg.Height-reserved)
		m.input.Width = m.width - 6
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case tea.KeyEsc:
			if m.cancel != nil {
				m.cancel()
				m.status = "Cancelling..."
			}
			return m, nil
		case tea.KeyEnter:
			text := m.input.Value()
			m.input.SetValue("")
			return m.submit(text)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case openedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.notice = ""
			m.status = fmt.Sprintf("Attached %s (%d chunks).", strings.Join(msg.doc.Files, ", "), msg.doc.Index.Count())
		}
		m.refresh()
		return m, nil

	case streamStartedMsg:
		if msg.err != nil {
			m.finish()
			m.status = "Error: " + msg.err.Error()
			m.refresh()
			return m, nil
		}
		m.stream = msg.stream
		m.status = "Answering... (Esc to cancel)"
		m.refresh()
		return m, nextFragment(msg.stream)

	case fragmentMsg:
		m.partial += msg.text
		m.refresh()
		return m, nextFragment(m.stream)

	case streamDoneMsg:
		m.finish()
		if msg.err != nil {
			if errors.Is(msg.err, context.Canceled) {
				m.status = "Cancelled."
			} else {
				m.status = "Error: " + msg.err.Error()
			}
			m.refresh()
			return m, nil
		}
		m.status = "Ready."
		m.refresh()
		if m.opts.AutoFollowUps {
			m.busy = true
			return m, followUpsCmd(m.ctx, m.sess)
		}
		return m, nil

	case followUpsMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else if len(msg.suggestions) == 0 {
			m.status = "No suggestions."
		} else {
			m.status = "Pick a suggestion with /1../" + fmt.Sprint(len(msg.suggestions)) + "."
		}
		m.refresh()
		return m, nil

	case exportedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = "Saved conversation to " + msg.path
		}
		return m, nil

	case pendingMsg:
		if prompt, ok := m.sess.TakePending(); ok {
			return m.ask(prompt)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit dispatches one line of input.
func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	text = strings.TrimSpace(text)
	if text == "" {
		return m, nil
	}
	cmd, isCommand := parseCommand(text)
	if cmd.name == "quit" || cmd.name == "exit" {
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	}
	if m.busy {
		m.status = "Still working on the previous request."
		return m, nil
	}
	if !isCommand {
		return m.ask(text)
	}

	if n, ok := suggestionIndex(cmd.name); ok {
		s, ok := m.sess.Suggestion(n)
		if !ok {
			m.status = fmt.Sprintf("No suggestion %d. Use /followups first.", n)
			return m, nil
		}
		m.sess.SetPending(s)
		return m, pendingCmd
	}
	if tool, err := rag.ParseTool(cmd.name); err == nil {
		return m.runTool(tool)
	}

	switch cmd.name {
	case "help":
		m.notice = helpText
		m.refresh()
		return m, nil
	case "open":
		if len(cmd.args) == 0 {
			m.status = "Usage: /open <file>..."
			return m, nil
		}
		if m.opts.Open == nil {
			m.status = "Opening documents is not available here."
			return m, nil
		}
		m.busy = true
		m.status = "Indexing " + strings.Join(cmd.args, ", ") + "..."
		return m, openCmd(m.ctx, m.opts.Open, m.sess, cmd.args)
	case "followups":
		m.busy = true
		m.status = "Thinking of follow-up questions..."
		return m, followUpsCmd(m.ctx, m.sess)
	case "clear":
		m.sess.Clear()
		m.status = "Conversation cleared."
		m.refresh()
		return m, nil
	case "export":
		path := m.opts.ExportPath
		if len(cmd.args) > 0 {
			path = cmd.args[0]
		}
		m.busy = true
		return m, exportCmd(m.sess, path, export.Options{Title: m.opts.ExportTitle, Compress: true})
	default:
		m.status = fmt.Sprintf("Unknown command /%s. Try /help.", cmd.name)
		return m, nil
	}
}

func (m Model) ask(question string) (tea.Model, tea.Cmd) {
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.busy = true
	m.prompt = question
	m.partial = ""
	m.status = "Retrieving..."
	m.refresh()
	return m, askCmd(ctx, m.sess, question)
}

func (m Model) runTool(tool rag.Tool) (tea.Model, tea.Cmd) {
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.busy = true
	m.prompt = fmt.Sprintf("[%s]", tool)
	m.partial = ""
	m.status = "Running " + string(tool) + "..."
	m.refresh()
	return m, toolCmd(ctx, m.sess, tool)
}

// finish clears in-flight state.
func (m *Model) finish() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.busy = false
	m.stream = nil
	m.prompt = ""
	m.partial = ""
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderTranscript(m.sess, m.notice, m.prompt, m.partial, m.viewport.Width))
	m.viewport.GotoBottom()
}

// View renders the header, transcript, query box, and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("SmartDoc")
	doc := mutedStyle.Render("no document")
	if d := m.sess.Document(); d != nil {
		doc = mutedStyle.Render("document: " + strings.Join(d.Files, ", "))
	}
	body := boxStyle.Render(m.viewport.View())
	input := boxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + doc + "\n" + body + "\n" + input + "\n" + status
}
