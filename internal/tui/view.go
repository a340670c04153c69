package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dkessler/parley/pkg/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	statStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	humanStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	aiStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("45")).
		Bold(true)

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	directiveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return "Goodbye!\n"
	}

	var b strings.Builder
	b.WriteString(a.headerView())
	b.WriteString("\n")
	b.WriteString(a.transcript.View())
	b.WriteString("\n")
	b.WriteString(a.logsView())
	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Width(max(a.width-2, 20)).Render(a.input.View()))
	return b.String()
}

// headerView renders the title bar with queue and execution state.
func (a *App) headerView() string {
	team := a.coord.Team()
	title := headerStyle.Render(fmt.Sprintf(" parley · %s", team.Name))

	var status string
	switch {
	case a.sessionDone:
		status = "completed"
		if a.sessionMessage != "" {
			status = fmt.Sprintf("completed (%s)", a.sessionMessage)
		}
	case a.executing != "":
		name := a.executing
		if m := team.MemberByID(a.executing); m != nil {
			name = m.Name
		}
		status = fmt.Sprintf("%s responding · %d queued", name, a.pending)
	default:
		status = fmt.Sprintf("%d queued · enter to send · ctrl+x cancel · ctrl+s save · ctrl+c quit", a.pending)
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, title, statStyle.Render("  "+status))
}

// logsView renders the recent diagnostic lines, padded to a fixed height.
func (a *App) logsView() string {
	lines := make([]string, 0, maxLogEntries)
	if a.errText != "" {
		lines = append(lines, errStyle.Render("error: "+a.errText))
	}
	for _, entry := range a.logs {
		lines = append(lines, logStyle.Render(fmt.Sprintf("%s %s", entry.Timestamp.Format("15:04:05"), entry.Message)))
	}
	for len(lines) < maxLogEntries {
		lines = append(lines, "")
	}
	if len(lines) > maxLogEntries {
		lines = lines[len(lines)-maxLogEntries:]
	}
	return strings.Join(lines, "\n")
}

// renderTranscript formats the conversation history for the viewport.
func renderTranscript(team *models.Team, messages []models.ConversationMessage, width int) string {
	if len(messages) == 0 {
		return statStyle.Render("No messages yet. Address members with [NEXT: name].")
	}

	var b strings.Builder
	for i := range messages {
		m := &messages[i]
		style := aiStyle
		if m.Speaker.Kind == models.MemberKindHuman {
			style = humanStyle
		}
		name := m.Speaker.DisplayName
		if name == "" {
			name = m.Speaker.Name
		}

		b.WriteString(style.Render(name))
		b.WriteString(" ")
		b.WriteString(timeStyle.Render(m.Timestamp.Format("15:04:05")))
		if len(m.RawDirectives) > 0 {
			b.WriteString(" ")
			b.WriteString(directiveStyle.Render(strings.Join(m.RawDirectives, " ")))
		}
		b.WriteString("\n")
		b.WriteString(wrapText(m.Content, width))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// wrapText folds text to the given width on word boundaries.
func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > width {
			cut := strings.LastIndex(line[:width], " ")
			if cut <= 0 {
				cut = width
			}
			out = append(out, line[:cut])
			line = strings.TrimLeft(line[cut:], " ")
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
