package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dkessler/parley/internal/process"
	"github.com/dkessler/parley/internal/state"
	"github.com/dkessler/parley/internal/worker"
	"github.com/dkessler/parley/pkg/models"
)

// fakeRunner is an in-memory WorkerRunner. Each member answers with the
// next queued response; in blocking mode sends park until cancelled.
type fakeRunner struct {
	mu        sync.Mutex
	started   map[string]string
	responses map[string][]string
	prompts   []string
	blocking  bool
	inflight  chan string
	cancels   map[string]chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		started:   make(map[string]string),
		responses: make(map[string][]string),
		inflight:  make(chan string, 4),
		cancels:   make(map[string]chan struct{}),
	}
}

func (f *fakeRunner) respond(memberID string, texts ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[memberID] = append(f.responses[memberID], texts...)
}

func (f *fakeRunner) EnsureAgentStarted(ctx context.Context, memberID, workerConfigID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started[memberID] = workerConfigID
	return nil
}

func (f *fakeRunner) SendAndReceive(ctx context.Context, memberID, prompt string) (worker.TurnResult, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	if f.blocking {
		cancel := make(chan struct{})
		f.cancels[memberID] = cancel
		f.mu.Unlock()
		f.inflight <- memberID
		select {
		case <-cancel:
			return worker.TurnResult{}, process.ErrSendCancelled
		case <-ctx.Done():
			return worker.TurnResult{}, ctx.Err()
		}
	}
	var text string
	if q := f.responses[memberID]; len(q) > 0 {
		text, f.responses[memberID] = q[0], q[1:]
	}
	f.mu.Unlock()
	return worker.TurnResult{Text: text, RawOutput: text, FinishReason: process.FinishResultRecord}, nil
}

func (f *fakeRunner) CancelAgent(memberID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.cancels[memberID]; ok {
		close(ch)
		delete(f.cancels, memberID)
		return true
	}
	return false
}

func (f *fakeRunner) StopAgent(memberID string) error { return nil }
func (f *fakeRunner) StopAll()                        {}

func testTeam() *models.Team {
	return &models.Team{
		ID:   "team-1",
		Name: "core",
		Members: []models.Member{
			{ID: "h1", Name: "dana", DisplayName: "Dana", Kind: models.MemberKindHuman},
			{ID: "a1", Name: "ava", DisplayName: "Ava", Kind: models.MemberKindAI, WorkerConfig: "claude"},
			{ID: "a2", Name: "ben", DisplayName: "Ben", Kind: models.MemberKindAI, WorkerConfig: "claude"},
		},
	}
}

// drainEvents empties the coordinator's event channel without blocking.
func drainEvents(c *Coordinator) []ConversationEvent {
	var out []ConversationEvent
	for {
		select {
		case ev := <-c.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countEvents(events []ConversationEvent, typ EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestDirectiveChainDrivesTurns(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("a1", "Here is my review [NEXT: ben]")
	runner.respond("a2", "Nothing to add")
	c := NewCoordinator(testTeam(), runner, Options{})

	if err := c.SendMessage(context.Background(), "Review this [NEXT: ava]", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs := c.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Speaker.ID != "h1" || msgs[1].Speaker.ID != "a1" || msgs[2].Speaker.ID != "a2" {
		t.Errorf("unexpected speaker order: %s %s %s", msgs[0].Speaker.ID, msgs[1].Speaker.ID, msgs[2].Speaker.ID)
	}
	if msgs[0].Content != "Review this" {
		t.Errorf("directive not stripped: %q", msgs[0].Content)
	}
	if msgs[1].ParentMessageID != msgs[0].ID || msgs[2].ParentMessageID != msgs[1].ID {
		t.Errorf("parent chain broken: %q %q", msgs[1].ParentMessageID, msgs[2].ParentMessageID)
	}
	if runner.started["a1"] != "claude" || runner.started["a2"] != "claude" {
		t.Errorf("workers not started with configured definition: %v", runner.started)
	}
}

func TestFallbackToHumanOnNoDirective(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("a1", "Done, no further handoff")
	c := NewCoordinator(testTeam(), runner, Options{})

	if err := c.SendMessage(context.Background(), "Go [NEXT: ava]", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got := c.Status(); got != models.SessionPaused {
		t.Errorf("expected paused, got %s", got)
	}
	if got := c.WaitingForMemberID(); got != "h1" {
		t.Errorf("expected waiting for first human h1, got %s", got)
	}
	events := drainEvents(c)
	if countEvents(events, EventSessionPaused) != 1 {
		t.Errorf("expected one paused event, got %d", countEvents(events, EventSessionPaused))
	}
}

func TestHumanAddresseePausesForThatMember(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("a1", "Dana should weigh in [NEXT: dana]")
	c := NewCoordinator(testTeam(), runner, Options{})

	if err := c.SendMessage(context.Background(), "Start [NEXT: ava]", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got := c.Status(); got != models.SessionPaused {
		t.Errorf("expected paused, got %s", got)
	}
	if got := c.WaitingForMemberID(); got != "h1" {
		t.Errorf("expected waiting for dana, got %s", got)
	}
}

func TestUnresolvedAddresseeReported(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("a1", "ok")
	c := NewCoordinator(testTeam(), runner, Options{})

	if err := c.SendMessage(context.Background(), "Go [NEXT: ava, ghost]", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	events := drainEvents(c)
	found := false
	for _, ev := range events {
		if ev.Type == EventUnresolvedAddressee {
			found = true
			if len(ev.Unresolved) != 1 || ev.Unresolved[0] != "ghost" {
				t.Errorf("unexpected unresolved list: %v", ev.Unresolved)
			}
		}
	}
	if !found {
		t.Error("expected an unresolved_addressee event")
	}
	// The resolvable addressee still executed.
	if len(c.Messages()) != 2 {
		t.Errorf("expected ava's turn to run, got %d messages", len(c.Messages()))
	}
}

func TestCancellationPausesWithoutError(t *testing.T) {
	runner := newFakeRunner()
	runner.blocking = true
	c := NewCoordinator(testTeam(), runner, Options{})

	done := make(chan error, 1)
	go func() {
		done <- c.SendMessage(context.Background(), "Go [NEXT: ava]", "")
	}()

	select {
	case memberID := <-runner.inflight:
		if memberID != "a1" {
			t.Fatalf("unexpected member in flight: %s", memberID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("turn never started")
	}

	if err := c.HandleUserCancellation(); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("sendMessage should absorb cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sendMessage did not return after cancel")
	}

	if got := c.Status(); got != models.SessionPaused {
		t.Errorf("expected paused, got %s", got)
	}
	if got := c.WaitingForMemberID(); got != "h1" {
		t.Errorf("expected waiting for first human, got %s", got)
	}
	events := drainEvents(c)
	if n := countEvents(events, EventMemberCompleted); n != 1 {
		t.Errorf("expected exactly one completed notification, got %d", n)
	}
	if c.ExecutingMemberID() != "" {
		t.Errorf("executing member not cleared: %s", c.ExecutingMemberID())
	}
}

func TestCancellationWithoutExecutingMember(t *testing.T) {
	c := NewCoordinator(testTeam(), newFakeRunner(), Options{})
	if err := c.HandleUserCancellation(); err == nil {
		t.Error("expected error when no member is executing")
	}
}

func TestCancellationAfterTurnAlreadyFinished(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("a1", "All set")
	c := NewCoordinator(testTeam(), runner, Options{})

	if err := c.SendMessage(context.Background(), "Go [NEXT: ava]", ""); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	before := drainEvents(c)
	completedBefore := countEvents(before, EventMemberCompleted)

	// Cancellation losing the race: the turn finished (and reported itself
	// completed) just before the cancel landed.
	c.executing.Store("a1")
	if err := c.HandleUserCancellation(); err != nil {
		t.Fatalf("cancellation failed: %v", err)
	}

	after := drainEvents(c)
	if n := countEvents(after, EventMemberCompleted); n != 0 {
		t.Errorf("expected no extra member_completed (already had %d), got %d more", completedBefore, n)
	}
	if c.Status() != models.SessionPaused {
		t.Errorf("expected paused session, got %s", c.Status())
	}
	if c.ExecutingMemberID() != "" {
		t.Error("expected executing member cleared")
	}
}

func TestInjectMessageResumes(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("a1", "First pass done", "Second pass done")
	c := NewCoordinator(testTeam(), runner, Options{})

	if err := c.SendMessage(context.Background(), "Go [NEXT: ava]", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.Status() != models.SessionPaused {
		t.Fatalf("expected paused before inject, got %s", c.Status())
	}

	if err := c.InjectMessage(context.Background(), "", "Again please [NEXT: ava]"); err != nil {
		t.Fatalf("inject: %v", err)
	}
	msgs := c.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages after inject, got %d", len(msgs))
	}
	if msgs[2].Speaker.ID != "h1" {
		t.Errorf("injected message should come from the waiting human, got %s", msgs[2].Speaker.ID)
	}
}

func TestInjectRequiresPausedSession(t *testing.T) {
	c := NewCoordinator(testTeam(), newFakeRunner(), Options{})
	if err := c.InjectMessage(context.Background(), "h1", "hello"); err == nil {
		t.Error("expected error injecting without a paused session")
	}
}

func TestRoundCapCompletesSession(t *testing.T) {
	runner := newFakeRunner()
	// Two members ping-pong forever.
	runner.respond("a1", "[NEXT: ben]", "[NEXT: ben]", "[NEXT: ben]")
	runner.respond("a2", "[NEXT: ava]", "[NEXT: ava]", "[NEXT: ava]")
	c := NewCoordinator(testTeam(), runner, Options{MaxRounds: 3})

	if err := c.SendMessage(context.Background(), "Go [NEXT: ava]", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got := c.Status(); got != models.SessionCompleted {
		t.Errorf("expected completed after round cap, got %s", got)
	}
	// Opening message plus exactly MaxRounds worker turns.
	if got := len(c.Messages()); got != 4 {
		t.Errorf("expected 4 messages, got %d", got)
	}
	if err := c.SendMessage(context.Background(), "more", ""); err == nil {
		t.Error("completed session should reject sendMessage")
	}
}

func TestStopCompletesSession(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("a1", "done")
	c := NewCoordinator(testTeam(), runner, Options{})
	if err := c.SendMessage(context.Background(), "Go [NEXT: ava]", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	c.Stop()
	if got := c.Status(); got != models.SessionCompleted {
		t.Errorf("expected completed, got %s", got)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	db, err := state.Open(filepath.Join(t.TempDir(), "parley.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	team := testTeam()
	runner := newFakeRunner()
	runner.respond("a1", "All reviewed")
	c := NewCoordinator(team, runner, Options{Store: db})

	if err := c.SendMessage(context.Background(), "Review this [NEXT: ava]", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	sessionID := c.SessionID()
	want := c.Messages()

	if err := c.SaveCurrentSession(); err != nil {
		t.Fatalf("save: %v", err)
	}

	resumed := NewCoordinator(team, newFakeRunner(), Options{Store: db})
	if err := resumed.SetTeam(team, sessionID); err != nil {
		t.Fatalf("resume: %v", err)
	}

	got := resumed.Messages()
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Content != want[i].Content || got[i].Speaker != want[i].Speaker {
			t.Errorf("message %d differs: got %+v want %+v", i, got[i], want[i])
		}
	}
	if resumed.Status() != models.SessionPaused {
		t.Errorf("resumed session should be paused, got %s", resumed.Status())
	}
	if resumed.WaitingForMemberID() != "h1" {
		t.Errorf("resumed session should wait for the first human, got %s", resumed.WaitingForMemberID())
	}
}

func TestResumeTeamMismatch(t *testing.T) {
	db, err := state.Open(filepath.Join(t.TempDir(), "parley.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	team := testTeam()
	c := NewCoordinator(team, newFakeRunner(), Options{Store: db})
	if err := c.SendMessage(context.Background(), "hello", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	sessionID := c.SessionID()
	if err := c.SaveCurrentSession(); err != nil {
		t.Fatalf("save: %v", err)
	}

	other := &models.Team{ID: "team-2", Name: "other", Members: team.Members}
	fresh := NewCoordinator(other, newFakeRunner(), Options{Store: db})
	err = fresh.SetTeam(other, sessionID)
	if !errors.Is(err, state.ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound for mismatched team, got %v", err)
	}
	if fresh.SessionID() != "" {
		t.Error("failed resume should leave the coordinator without a session")
	}
}

func TestResumeMissingSpeakerWarning(t *testing.T) {
	db, err := state.Open(filepath.Join(t.TempDir(), "parley.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	team := testTeam()
	runner := newFakeRunner()
	runner.respond("a1", "Reviewed")
	c := NewCoordinator(team, runner, Options{Store: db})
	if err := c.SendMessage(context.Background(), "Go [NEXT: ava]", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	sessionID := c.SessionID()
	if err := c.SaveCurrentSession(); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Same team id, but ava is gone.
	smaller := &models.Team{ID: team.ID, Name: team.Name, Members: []models.Member{team.Members[0], team.Members[2]}}
	resumed := NewCoordinator(smaller, newFakeRunner(), Options{Store: db})
	if err := resumed.SetTeam(smaller, sessionID); err != nil {
		t.Fatalf("resume should succeed despite missing speaker: %v", err)
	}

	events := drainEvents(resumed)
	warnings := 0
	for _, ev := range events {
		if ev.Type == EventConsistencyWarning {
			warnings++
			if len(ev.MissingSpeakers) != 1 || ev.MissingSpeakers[0] != "ava" {
				t.Errorf("unexpected missing speakers: %v", ev.MissingSpeakers)
			}
		}
	}
	if warnings != 1 {
		t.Errorf("expected exactly one consistency warning, got %d", warnings)
	}
}

func TestQueueStateEventsCarryExecutingMember(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("a1", "done")
	c := NewCoordinator(testTeam(), runner, Options{})
	if err := c.SendMessage(context.Background(), "Go [NEXT: ava]", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	events := drainEvents(c)
	if countEvents(events, EventQueueState) == 0 {
		t.Error("expected queue_state events")
	}
	if countEvents(events, EventMemberStarted) != 1 || countEvents(events, EventMemberCompleted) != 1 {
		t.Errorf("expected one started and one completed event, got %d/%d",
			countEvents(events, EventMemberStarted), countEvents(events, EventMemberCompleted))
	}
}
