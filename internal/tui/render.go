package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hyperjump/smartdoc/internal/models"
	"github.com/hyperjump/smartdoc/internal/session"
)

var (
	boxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle     = lipgloss.NewStyle().Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

const cursor = "▌"

// renderTranscript renders the session turns followed by an in-flight
// prompt and its partial answer.
func renderTranscript(sess *session.Session, notice, prompt, partial string, width int) string {
	var b strings.Builder
	if notice != "" {
		b.WriteString(mutedStyle.Render(notice))
		b.WriteString("\n\n")
	}
	wrap := lipgloss.NewStyle()
	if width > 4 {
		wrap = wrap.Width(width - 4)
	}
	for _, t := range sess.Turns() {
		writeTurn(&b, wrap, t)
	}
	if prompt != "" {
		writeTurn(&b, wrap, models.ChatTurn{Role: models.RoleUser, Text: prompt})
		b.WriteString(assistantStyle.Render("SmartDoc"))
		b.WriteString("\n")
		b.WriteString(wrap.Render(partial + cursor))
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return mutedStyle.Render("Ask a question about your document. Type /help for commands.")
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeTurn(b *strings.Builder, wrap lipgloss.Style, t models.ChatTurn) {
	if t.Role == models.RoleUser {
		b.WriteString(userStyle.Render("You"))
	} else {
		b.WriteString(assistantStyle.Render("SmartDoc"))
	}
	b.WriteString("\n")
	b.WriteString(wrap.Render(strings.TrimSpace(t.Text)))
	b.WriteString("\n")
	for i, s := range t.Suggestions {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  /%d %s", i+1, s)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
