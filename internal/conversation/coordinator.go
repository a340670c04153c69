package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dkessler/parley/internal/directive"
	"github.com/dkessler/parley/internal/process"
	"github.com/dkessler/parley/internal/prompt"
	"github.com/dkessler/parley/internal/routing"
	"github.com/dkessler/parley/internal/state"
	"github.com/dkessler/parley/internal/worker"
	"github.com/dkessler/parley/pkg/models"
)

// WorkerRunner is the worker-management facade the coordinator drives turns
// through.
type WorkerRunner interface {
	// EnsureAgentStarted makes a live worker process exist for the member.
	EnsureAgentStarted(ctx context.Context, memberID, workerConfigID string) error
	// SendAndReceive executes one turn and returns the worker's response.
	SendAndReceive(ctx context.Context, memberID, prompt string) (worker.TurnResult, error)
	// CancelAgent aborts the member's in-flight turn, if any.
	CancelAgent(memberID string) bool
	// StopAgent terminates the member's worker process.
	StopAgent(memberID string) error
	// StopAll terminates every running worker.
	StopAll()
}

var _ WorkerRunner = (*worker.Manager)(nil)

// Options configures a Coordinator.
type Options struct {
	// Queue bounds the routing queue.
	Queue routing.Options
	// MaxRounds caps automatic turns per drive; zero means unlimited.
	MaxRounds int
	// PromptBudget bounds assembled prompt size in bytes.
	PromptBudget int
	// SystemInstructions is optional behavioral guidance passed to workers.
	SystemInstructions string
	// EventBuffer sizes the event channel.
	EventBuffer int
	// Store persists session snapshots. Nil disables save/resume.
	Store state.SnapshotStore
}

// defaultEventBuffer sizes the event channel when none is configured.
const defaultEventBuffer = 64

// Coordinator is the conversation state machine. It owns the session,
// resolves directives against the team, and drives the routing queue until
// no deliverable item remains.
//
// Callers interact with the coordinator sequentially; the only methods safe
// to call from another goroutine mid-drive are HandleUserCancellation and
// the read accessors.
type Coordinator struct {
	workers WorkerRunner
	queue   *routing.Queue
	store   state.SnapshotStore
	builder *prompt.Builder
	emitter *EventEmitter

	maxRounds          int
	systemInstructions string

	// executing holds the id of the member currently running a turn, or "".
	// Kept atomic so queue observers and the TUI can read it without taking
	// the coordinator lock.
	executing atomic.Value

	mu      sync.Mutex
	team    *models.Team
	session *models.ConversationSession
	rounds  int
}

// NewCoordinator creates a coordinator for the given team.
func NewCoordinator(team *models.Team, workers WorkerRunner, opts Options) *Coordinator {
	bufferSize := opts.EventBuffer
	if bufferSize <= 0 {
		bufferSize = defaultEventBuffer
	}

	c := &Coordinator{
		workers:            workers,
		queue:              routing.New(opts.Queue),
		store:              opts.Store,
		builder:            &prompt.Builder{ByteBudget: opts.PromptBudget},
		emitter:            NewEventEmitter(bufferSize),
		maxRounds:          opts.MaxRounds,
		systemInstructions: opts.SystemInstructions,
		team:               team,
	}
	c.executing.Store("")

	c.queue.SetStateObserver(func(s routing.Stats) {
		c.emitter.Emit(ConversationEvent{
			Type:              EventQueueState,
			QueueStats:        &s,
			ExecutingMemberID: c.ExecutingMemberID(),
		})
	})
	c.queue.SetProtectionObserver(func(ev routing.ProtectionEvent) {
		c.emitter.Emit(ConversationEvent{
			Type:       EventQueueProtection,
			MemberID:   ev.TargetMemberID,
			Message:    ev.Reason,
			Protection: &ev,
		})
	})

	return c
}

// Events returns the coordinator's event channel for subscribers.
func (c *Coordinator) Events() <-chan ConversationEvent {
	return c.emitter.Events()
}

// Team returns the coordinator's current team.
func (c *Coordinator) Team() *models.Team {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.team
}

// Status returns the current session status, or "" when no session exists.
func (c *Coordinator) Status() models.SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.Status
}

// SessionID returns the current session id, or "".
func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.ID
}

// WaitingForMemberID returns the member awaited while paused, or "".
func (c *Coordinator) WaitingForMemberID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.WaitingForMemberID
}

// ExecutingMemberID returns the member currently running a turn, or "".
func (c *Coordinator) ExecutingMemberID() string {
	id, _ := c.executing.Load().(string)
	return id
}

// Messages returns a copy of the session's message list.
func (c *Coordinator) Messages() []models.ConversationMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	out := make([]models.ConversationMessage, len(c.session.Messages))
	copy(out, c.session.Messages)
	return out
}

// QueueStats returns the routing queue's current counts.
func (c *Coordinator) QueueStats() routing.Stats {
	return c.queue.GetStats()
}

// SendMessage appends a message from the given speaker, routes its
// directives, and drives the queue until it drains, pauses, or fails.
// The speaker defaults to the first human member when unspecified.
//
// Turn failures propagate to the caller, except cancellation, which is
// absorbed as a pause transition.
func (c *Coordinator) SendMessage(ctx context.Context, text, speakerMemberID string) error {
	c.mu.Lock()
	if c.session != nil && c.session.Status == models.SessionCompleted {
		c.mu.Unlock()
		return fmt.Errorf("session %s is completed; resume or start a new one", c.session.ID)
	}
	if c.session == nil {
		c.session = &models.ConversationSession{
			ID:        uuid.NewString(),
			TeamID:    c.team.ID,
			Status:    models.SessionActive,
			StartedAt: time.Now(),
		}
		debugLog("started session %s for team %s", c.session.ID, c.team.ID)
	}
	c.session.Status = models.SessionActive
	c.session.WaitingForMemberID = ""

	speaker := c.team.FirstHuman()
	if speakerMemberID != "" {
		speaker = c.team.MemberByID(speakerMemberID)
	}
	if speaker == nil {
		c.mu.Unlock()
		return fmt.Errorf("unknown speaker member %q", speakerMemberID)
	}

	c.appendParsedLocked(text, speaker, "")
	c.mu.Unlock()

	return c.drive(ctx)
}

// InjectMessage resumes a paused session with a message from the given
// member, defaulting to the member the session is waiting for.
func (c *Coordinator) InjectMessage(ctx context.Context, memberID, text string) error {
	c.mu.Lock()
	if c.session == nil || c.session.Status != models.SessionPaused {
		c.mu.Unlock()
		return fmt.Errorf("no paused session to inject into")
	}
	if memberID == "" {
		memberID = c.session.WaitingForMemberID
	}
	c.mu.Unlock()

	return c.SendMessage(ctx, text, memberID)
}

// HandleUserCancellation aborts the currently executing member's turn. The
// member's completed notification fires here so observer state unwinds
// consistently, and the session pauses awaiting a human.
func (c *Coordinator) HandleUserCancellation() error {
	memberID := c.ExecutingMemberID()
	if memberID == "" {
		return fmt.Errorf("no member is currently executing")
	}

	// If the turn finished between the executing check and here, its own
	// completed notification already fired; don't emit a second one.
	cancelled := c.workers.CancelAgent(memberID)
	c.executing.Store("")

	c.mu.Lock()
	var name string
	if m := c.team.MemberByID(memberID); m != nil {
		name = m.Name
	}
	if c.session != nil && c.session.Status != models.SessionCompleted {
		c.session.Status = models.SessionPaused
		c.session.WaitingForMemberID = c.fallbackMemberLocked().ID
	}
	c.mu.Unlock()

	if cancelled {
		c.emitter.Emit(ConversationEvent{
			Type:       EventMemberCompleted,
			MemberID:   memberID,
			MemberName: name,
			Message:    "cancelled by user",
		})
	}

	log.Printf("[conversation] cancelled turn for member %s", memberID)
	return nil
}

// Stop completes the session and terminates every worker.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.session != nil && c.session.Status != models.SessionCompleted {
		c.session.Status = models.SessionCompleted
		c.session.WaitingForMemberID = ""
	}
	c.mu.Unlock()

	c.workers.StopAll()
	c.emitter.Emit(ConversationEvent{Type: EventSessionCompleted})
}

// drive executes queue selections until the queue drains, the session
// leaves the active state, or a turn fails.
func (c *Coordinator) drive(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.session == nil || c.session.Status != models.SessionActive {
			c.mu.Unlock()
			return nil
		}
		if c.maxRounds > 0 && c.rounds >= c.maxRounds {
			c.session.Status = models.SessionCompleted
			c.session.WaitingForMemberID = ""
			c.mu.Unlock()
			log.Printf("[conversation] round limit %d reached, completing session", c.maxRounds)
			c.emitter.Emit(ConversationEvent{Type: EventSessionCompleted, Message: "round limit reached"})
			return nil
		}
		c.mu.Unlock()

		item := c.queue.SelectNext()
		if item == nil {
			c.pauseFor(nil)
			return nil
		}

		member := c.team.MemberByID(item.TargetMemberID)
		if member == nil {
			debugLog("skipping delivery to removed member %s", item.TargetMemberID)
			c.queue.MarkCompleted(item.ParentMessageID)
			continue
		}
		if member.Kind == models.MemberKindHuman {
			c.queue.MarkCompleted(item.ParentMessageID)
			c.pauseFor(member)
			return nil
		}

		if err := c.executeTurn(ctx, member, item); err != nil {
			if errors.Is(err, process.ErrSendCancelled) {
				// Cancellation already transitioned the session to paused.
				return nil
			}
			return err
		}
	}
}

// executeTurn runs one worker turn for the selected item and appends the
// response. The prompt always carries the current latest message's content,
// not the content captured at enqueue time.
func (c *Coordinator) executeTurn(ctx context.Context, member *models.Member, item *models.RoutingItem) error {
	c.mu.Lock()
	if len(c.session.Messages) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("no message to deliver to %s", member.Name)
	}
	latest := c.session.Messages[len(c.session.Messages)-1]
	history := make([]models.ConversationMessage, len(c.session.Messages)-1)
	copy(history, c.session.Messages[:len(c.session.Messages)-1])
	team := c.team
	c.mu.Unlock()

	c.executing.Store(member.ID)
	c.emitter.Emit(ConversationEvent{
		Type:       EventMemberStarted,
		MemberID:   member.ID,
		MemberName: member.Name,
	})
	debugLog("executing turn: member=%s intent=%s branch=%s", member.Name, item.Intent, item.ParentMessageID)

	if err := c.workers.EnsureAgentStarted(ctx, member.ID, member.WorkerConfig); err != nil {
		c.executing.Store("")
		return fmt.Errorf("start worker for %s: %w", member.Name, err)
	}

	out := c.builder.Build(prompt.Input{
		Member:             member,
		Team:               team,
		SystemInstructions: c.systemInstructions,
		History:            history,
		Latest:             &latest,
	})

	res, err := c.workers.SendAndReceive(ctx, member.ID, out.Prompt)
	if err != nil {
		c.executing.Store("")
		if errors.Is(err, process.ErrSendCancelled) {
			return err
		}
		return fmt.Errorf("turn for %s: %w", member.Name, err)
	}

	c.mu.Lock()
	c.appendParsedLocked(res.Text, member, latest.ID)
	c.rounds++
	c.mu.Unlock()

	c.executing.Store("")
	c.emitter.Emit(ConversationEvent{
		Type:       EventMemberCompleted,
		MemberID:   member.ID,
		MemberName: member.Name,
		Message:    string(res.FinishReason),
	})
	c.queue.MarkCompleted(item.ParentMessageID)
	return nil
}

// appendParsedLocked appends a message built from raw worker or human text:
// directives are parsed out, addressees resolved against the team, and
// resolved addressees enqueued keyed by the new message's id. Callers hold
// c.mu.
func (c *Coordinator) appendParsedLocked(text string, speaker *models.Member, parentID string) *models.ConversationMessage {
	parsed := directive.Parse(text)
	resolved, unresolved := directive.ResolveAddressees(c.team, parsed.Addressees)

	msg := models.ConversationMessage{
		ID:              uuid.NewString(),
		Content:         parsed.CleanContent,
		Speaker:         models.SpeakerFor(speaker),
		Timestamp:       time.Now(),
		RawDirectives:   parsed.Raw,
		Addressees:      resolved,
		ParentMessageID: parentID,
	}

	if parentID != "" {
		for i := range c.session.Messages {
			sib := &c.session.Messages[i]
			if sib.ParentMessageID == parentID {
				msg.SiblingIDs = append(msg.SiblingIDs, sib.ID)
				sib.SiblingIDs = append(sib.SiblingIDs, msg.ID)
			}
		}
	}

	c.session.Append(msg)

	if len(unresolved) > 0 {
		debugLog("unresolved addressees from %s: %v", speaker.Name, unresolved)
		c.emitter.Emit(ConversationEvent{
			Type:       EventUnresolvedAddressee,
			MemberID:   speaker.ID,
			MemberName: speaker.Name,
			Unresolved: unresolved,
		})
	}

	items := make([]*models.RoutingItem, 0, len(resolved))
	for _, a := range resolved {
		items = append(items, &models.RoutingItem{
			TargetMemberID: a.MemberID,
			Intent:         a.Intent,
		})
	}
	if len(items) > 0 {
		c.queue.Enqueue(items, msg.ID)
	}

	return c.session.Latest()
}

// pauseFor pauses the session awaiting the given member, defaulting to the
// first human when nil.
func (c *Coordinator) pauseFor(member *models.Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.Status != models.SessionActive {
		return
	}
	if member == nil {
		member = c.fallbackMemberLocked()
	}
	c.session.Status = models.SessionPaused
	c.session.WaitingForMemberID = member.ID

	c.emitter.Emit(ConversationEvent{
		Type:       EventSessionPaused,
		MemberID:   member.ID,
		MemberName: member.Name,
	})
	debugLog("paused, waiting for member %s", member.Name)
}

// fallbackMemberLocked returns the first human member, or the first member
// of any kind for teams without one.
func (c *Coordinator) fallbackMemberLocked() *models.Member {
	if m := c.team.FirstHuman(); m != nil {
		return m
	}
	return &c.team.Members[0]
}
