package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles for the session view.
type Styles struct {
	Header    lipgloss.Style
	User      lipgloss.Style
	Plant     lipgloss.Style
	UserText  lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	Deviation lipgloss.Style
}

// DefaultStyles returns the standard theme.
func DefaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Plant:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("114")),
		UserText:  lipgloss.NewStyle().PaddingLeft(2),
		Muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		Deviation: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}

func (m Model) renderHistory() string {
	var sb strings.Builder
	for _, msg := range m.history {
		switch msg.Role {
		case "user":
			sb.WriteString(m.styles.User.Render("You") + "\n")
			sb.WriteString(m.styles.UserText.Render(msg.Content))
			sb.WriteString("\n\n")
		default:
			sb.WriteString(m.styles.Plant.Render(m.plantName) + "\n")
			sb.WriteString(m.safeRenderMarkdown(msg.Content))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// safeRenderMarkdown renders markdown with panic recovery.
func (m Model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()
	if m.renderer != nil && content != "" {
		if rendered, err := m.renderer.Render(content); err == nil {
			return rendered
		}
	}
	return content
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	title := m.styles.Header.Render(fmt.Sprintf(" %s ", m.plantName))
	readout := m.styles.Deviation.Render(fmt.Sprintf("touch %6.2f", m.deviation))
	gap := m.width - lipgloss.Width(title) - lipgloss.Width(readout)
	if gap < 1 {
		gap = 1
	}
	header := title + strings.Repeat(" ", gap) + readout

	status := m.styles.Muted.Render("enter to send, esc to end session")
	if m.thinking {
		status = m.spinner.View() + m.styles.Muted.Render(" thinking...")
	}
	if m.err != nil {
		status = m.styles.Error.Render(fmt.Sprintf("error: %v", m.err))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		status,
		m.textarea.View(),
	)
}
