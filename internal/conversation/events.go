// Package conversation coordinates multi-party conversations: it appends
// messages, routes directives through the queue, drives worker turns, and
// persists sessions for resume.
package conversation

import (
	"time"

	"github.com/dkessler/parley/internal/routing"
)

// EventType represents the type of conversation event.
type EventType string

const (
	// EventQueueState carries a queue-state snapshot after an enqueue or
	// selection.
	EventQueueState EventType = "queue_state"
	// EventQueueProtection indicates an item was rejected or demoted.
	EventQueueProtection EventType = "queue_protection"
	// EventMemberStarted indicates a member's turn has started.
	EventMemberStarted EventType = "member_started"
	// EventMemberCompleted indicates a member's turn has finished.
	EventMemberCompleted EventType = "member_completed"
	// EventUnresolvedAddressee indicates directive addressees matched no
	// team member.
	EventUnresolvedAddressee EventType = "unresolved_addressee"
	// EventConsistencyWarning indicates restored history references
	// speakers absent from the live team.
	EventConsistencyWarning EventType = "member_consistency_warning"
	// EventSessionPaused indicates the session is awaiting human input.
	EventSessionPaused EventType = "session_paused"
	// EventSessionCompleted indicates the session has finished.
	EventSessionCompleted EventType = "session_completed"
)

// ConversationEvent represents an event emitted by the coordinator.
// These events are used to update the TUI and surface diagnostics.
type ConversationEvent struct {
	// Type is the kind of event.
	Type EventType
	// MemberID is the id of the related member, if applicable.
	MemberID string
	// MemberName is the name of the related member, if applicable.
	MemberName string
	// Message provides additional context about the event.
	Message string
	// QueueStats carries the queue snapshot for queue_state events.
	QueueStats *routing.Stats
	// ExecutingMemberID is the member currently executing, if any.
	ExecutingMemberID string
	// Protection carries the detail for queue_protection events.
	Protection *routing.ProtectionEvent
	// Unresolved lists addressee names that matched no member.
	Unresolved []string
	// MissingSpeakers lists restored-history speakers absent from the team.
	MissingSpeakers []string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
