// Package tui provides the terminal user interface for Parley.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dkessler/parley/internal/conversation"
	"github.com/dkessler/parley/pkg/models"
)

// ConversationEventMsg wraps a coordinator event for the TUI.
type ConversationEventMsg struct {
	Event conversation.ConversationEvent
}

// SessionDoneMsg signals that the conversation session has completed.
type SessionDoneMsg struct {
	Success bool
	Message string
}

// turnFinishedMsg reports the outcome of a submitted message's drive.
type turnFinishedMsg struct {
	err error
}

// LogEntry represents a diagnostic line displayed under the transcript.
type LogEntry struct {
	Timestamp time.Time
	Message   string
}

// maxLogEntries bounds the diagnostic line history.
const maxLogEntries = 6

// App is the main bubbletea model for the Parley TUI.
type App struct {
	// coord is the coordinator being driven.
	coord *conversation.Coordinator
	// transcript shows the conversation history.
	transcript viewport.Model
	// input is the text field for human turns.
	input textinput.Model
	// logs holds recent diagnostic lines.
	logs []LogEntry
	// executing is the member currently running a turn, or "".
	executing string
	// pending counts queued routing items.
	pending int
	// width is the terminal width.
	width int
	// height is the terminal height.
	height int
	// quitting indicates the app is shutting down.
	quitting bool
	// sessionDone indicates the session has completed.
	sessionDone bool
	// sessionMessage holds the final session message.
	sessionMessage string
	// busy indicates a submitted message is still driving turns.
	busy bool
	// errText holds the last hard error, shown until the next submit.
	errText string
}

// New creates a new App over the given coordinator.
func New(coord *conversation.Coordinator) *App {
	ti := textinput.New()
	ti.Placeholder = "Type a message, [NEXT: name] to hand off..."
	ti.Focus()
	ti.CharLimit = 2000
	ti.Width = 60

	vp := viewport.New(80, 20)

	return &App{
		coord:      coord,
		transcript: vp,
		input:      ti,
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			a.quitting = true
			a.coord.Stop()
			return a, tea.Quit
		case "ctrl+x":
			if a.executing != "" {
				if err := a.coord.HandleUserCancellation(); err != nil {
					a.appendLog(fmt.Sprintf("cancel: %v", err))
				}
			}
			return a, nil
		case "ctrl+s":
			if err := a.coord.SaveCurrentSession(); err != nil {
				a.appendLog(fmt.Sprintf("save: %v", err))
			} else {
				a.appendLog("session saved")
			}
			return a, nil
		case "enter":
			return a, a.submit()
		case "pgup":
			a.transcript.HalfViewUp()
			return a, nil
		case "pgdown":
			a.transcript.HalfViewDown()
			return a, nil
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.layout()
		a.refreshTranscript()

	case ConversationEventMsg:
		a.applyEvent(msg.Event)

	case turnFinishedMsg:
		a.busy = false
		if msg.err != nil {
			a.errText = msg.err.Error()
		}
		a.refreshTranscript()

	case SessionDoneMsg:
		a.sessionDone = true
		a.sessionMessage = msg.Message
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)
	a.transcript, cmd = a.transcript.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

// submit sends the input field's text through the coordinator.
func (a *App) submit() tea.Cmd {
	text := a.input.Value()
	if text == "" || a.busy {
		return nil
	}
	a.input.Reset()
	a.busy = true
	a.errText = ""

	coord := a.coord
	return func() tea.Msg {
		var err error
		if coord.Status() == models.SessionPaused {
			err = coord.InjectMessage(context.Background(), "", text)
		} else {
			err = coord.SendMessage(context.Background(), text, "")
		}
		return turnFinishedMsg{err: err}
	}
}

// applyEvent folds a coordinator event into the display state.
func (a *App) applyEvent(ev conversation.ConversationEvent) {
	switch ev.Type {
	case conversation.EventQueueState:
		if ev.QueueStats != nil {
			a.pending = ev.QueueStats.Pending
		}
		a.executing = ev.ExecutingMemberID
	case conversation.EventMemberStarted:
		a.executing = ev.MemberID
		a.appendLog(fmt.Sprintf("%s is responding...", ev.MemberName))
	case conversation.EventMemberCompleted:
		a.executing = ""
		a.refreshTranscript()
	case conversation.EventQueueProtection:
		a.appendLog(fmt.Sprintf("queue protection: %s (%s)", ev.Message, ev.MemberID))
	case conversation.EventUnresolvedAddressee:
		a.appendLog(fmt.Sprintf("%s addressed unknown member(s): %v", ev.MemberName, ev.Unresolved))
	case conversation.EventConsistencyWarning:
		a.appendLog(fmt.Sprintf("history references absent member(s): %v", ev.MissingSpeakers))
	case conversation.EventSessionPaused:
		a.executing = ""
		a.appendLog(fmt.Sprintf("waiting for %s", ev.MemberName))
		a.refreshTranscript()
	case conversation.EventSessionCompleted:
		a.executing = ""
		a.sessionDone = true
		a.sessionMessage = ev.Message
		a.refreshTranscript()
	}
}

// appendLog records a diagnostic line, keeping only the most recent ones.
func (a *App) appendLog(message string) {
	a.logs = append(a.logs, LogEntry{Timestamp: time.Now(), Message: message})
	if len(a.logs) > maxLogEntries {
		a.logs = a.logs[len(a.logs)-maxLogEntries:]
	}
}

// layout recomputes component sizes from the terminal dimensions.
func (a *App) layout() {
	if a.width <= 0 || a.height <= 0 {
		return
	}
	a.input.Width = a.width - 6
	// Header, log block, and input each take fixed rows.
	transcriptHeight := a.height - 4 - maxLogEntries
	if transcriptHeight < 3 {
		transcriptHeight = 3
	}
	a.transcript.Width = a.width
	a.transcript.Height = transcriptHeight
}

// refreshTranscript re-renders the conversation into the viewport.
func (a *App) refreshTranscript() {
	a.transcript.SetContent(renderTranscript(a.coord.Team(), a.coord.Messages(), a.transcript.Width))
	a.transcript.GotoBottom()
}

// NewProgram creates a bubbletea program for the given coordinator.
func NewProgram(coord *conversation.Coordinator) (*tea.Program, *App) {
	app := New(coord)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// ForwardEvents converts coordinator events to TUI messages until the event
// channel closes.
func ForwardEvents(program *tea.Program, events <-chan conversation.ConversationEvent) {
	for event := range events {
		program.Send(ConversationEventMsg{Event: event})
	}
}

var _ tea.Model = (*App)(nil)
