// Package prompt assembles worker prompt text from conversation history
// under a byte budget.
package prompt

import (
	"fmt"
	"strings"

	"github.com/dkessler/parley/pkg/models"
)

// DefaultByteBudget bounds assembled prompt size when none is configured.
const DefaultByteBudget = 64 * 1024

// latestFloor is the minimum byte allowance for the latest message; it is
// never truncated below this.
const latestFloor = 512

// Input is everything a prompt is assembled from.
type Input struct {
	// Member is the member the prompt is addressed to.
	Member *models.Member
	// Team provides the team name and standing task text.
	Team *models.Team
	// SystemInstructions is optional behavioral guidance.
	SystemInstructions string
	// History is the conversation so far, oldest first, excluding the
	// latest message.
	History []models.ConversationMessage
	// Latest is the message the member is responding to.
	Latest *models.ConversationMessage
}

// Output is an assembled prompt. System is populated separately so worker
// types that accept a distinct system-instruction string can use it; others
// get the instructions folded into Prompt.
type Output struct {
	Prompt string
	System string
}

// Builder formats prompts within a byte budget, progressively dropping the
// lowest-priority sections: oldest history first, then the task text, then
// instructions, and as a last resort truncating the latest message down to
// a floor.
type Builder struct {
	ByteBudget int
	// SplitSystem emits instructions as a separate system string instead of
	// embedding them in the prompt.
	SplitSystem bool
}

// Build assembles a prompt for the given input, guaranteed to fit the byte
// budget.
func (b *Builder) Build(in Input) Output {
	budget := b.ByteBudget
	if budget <= 0 {
		budget = DefaultByteBudget
	}

	history := in.History
	task := ""
	if in.Team != nil {
		task = in.Team.Task
	}
	instructions := in.SystemInstructions
	latest := ""
	if in.Latest != nil {
		latest = formatMessage(in.Latest)
	}

	embedInstructions := instructions
	if b.SplitSystem {
		embedInstructions = ""
	}

	prompt := render(in, history, task, embedInstructions, latest)
	for len(prompt) > budget && len(history) > 0 {
		history = history[1:]
		prompt = render(in, history, task, embedInstructions, latest)
	}
	if len(prompt) > budget && task != "" {
		task = truncate(task, len(task)-(len(prompt)-budget))
		prompt = render(in, history, task, embedInstructions, latest)
	}
	if len(prompt) > budget && embedInstructions != "" {
		embedInstructions = truncate(embedInstructions, len(embedInstructions)-(len(prompt)-budget))
		prompt = render(in, history, task, embedInstructions, latest)
	}
	if len(prompt) > budget {
		keep := len(latest) - (len(prompt) - budget)
		if keep < latestFloor {
			keep = latestFloor
		}
		latest = truncate(latest, keep)
		prompt = render(in, history, task, embedInstructions, latest)
	}

	out := Output{Prompt: prompt}
	if b.SplitSystem {
		out.System = instructions
	}
	return out
}

// render produces the prompt text from the surviving sections.
func render(in Input, history []models.ConversationMessage, task, instructions, latest string) string {
	var sb strings.Builder

	if in.Member != nil && in.Team != nil {
		fmt.Fprintf(&sb, "You are %s, a member of team %s.\n", displayName(in.Member), in.Team.Name)
	}
	if task != "" {
		fmt.Fprintf(&sb, "\nTeam task:\n%s\n", task)
	}
	if instructions != "" {
		fmt.Fprintf(&sb, "\n%s\n", instructions)
	}
	if len(history) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for i := range history {
			sb.WriteString(formatMessage(&history[i]))
			sb.WriteByte('\n')
		}
	}
	if latest != "" {
		sb.WriteString("\nRespond to this message:\n")
		sb.WriteString(latest)
		sb.WriteByte('\n')
	}
	sb.WriteString("\nTo hand the conversation to another member, end your reply with [NEXT: name]. For urgent handoffs use [NEXT: name:p1].\n")

	return sb.String()
}

func formatMessage(m *models.ConversationMessage) string {
	name := m.Speaker.DisplayName
	if name == "" {
		name = m.Speaker.Name
	}
	return fmt.Sprintf("[%s]: %s", name, m.Content)
}

func displayName(m *models.Member) string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}

// truncate cuts s to at most n bytes with an ellipsis, preserving at least
// a small head when n is tiny.
func truncate(s string, n int) string {
	if n >= len(s) {
		return s
	}
	if n < 16 {
		n = 16
	}
	if n >= len(s) {
		return s
	}
	return s[:n-3] + "..."
}
