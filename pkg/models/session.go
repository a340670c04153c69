package models

import "time"

// SessionStatus represents the lifecycle state of a conversation session.
type SessionStatus string

const (
	// SessionActive indicates the session is driving turns.
	SessionActive SessionStatus = "active"
	// SessionPaused indicates the session is awaiting human input.
	SessionPaused SessionStatus = "paused"
	// SessionCompleted indicates the session has finished.
	SessionCompleted SessionStatus = "completed"
)

// Valid returns true if the status is a known value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionPaused, SessionCompleted:
		return true
	default:
		return false
	}
}

// ConversationSession is the append-only record of one conversation.
// The session has a single writer (the coordinator) and is never mutated
// concurrently.
type ConversationSession struct {
	// ID is the unique session id.
	ID string `json:"id"`
	// TeamID is the id of the team holding the conversation.
	TeamID string `json:"team_id"`
	// Messages is the ordered message list.
	Messages []ConversationMessage `json:"messages"`
	// Status is the current lifecycle state.
	Status SessionStatus `json:"status"`
	// WaitingForMemberID is the member currently awaited when paused.
	WaitingForMemberID string `json:"waiting_for_member_id,omitempty"`
	// StartedAt is when the session was created.
	StartedAt time.Time `json:"started_at"`
}

// SessionStats aggregates counts over a session's messages.
type SessionStats struct {
	// MessageCount is the total number of messages.
	MessageCount int
	// ByMember maps member id to that member's message count.
	ByMember map[string]int
	// Duration is the elapsed time since the session started.
	Duration time.Duration
}

// Append adds a message to the session.
func (s *ConversationSession) Append(msg ConversationMessage) {
	s.Messages = append(s.Messages, msg)
}

// Latest returns the most recent message, or nil if the session is empty.
func (s *ConversationSession) Latest() *ConversationMessage {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// Stats computes aggregate counts for the session.
func (s *ConversationSession) Stats() SessionStats {
	stats := SessionStats{
		MessageCount: len(s.Messages),
		ByMember:     make(map[string]int),
	}
	for i := range s.Messages {
		stats.ByMember[s.Messages[i].Speaker.ID]++
	}
	if !s.StartedAt.IsZero() {
		stats.Duration = time.Since(s.StartedAt)
	}
	return stats
}
