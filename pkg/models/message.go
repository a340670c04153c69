package models

import "time"

// SpeakerRef is a denormalized snapshot of the member that produced a
// message. History keeps its own copy so transcripts survive member removal.
type SpeakerRef struct {
	// ID is the member id at the time the message was produced.
	ID string `json:"id"`
	// Name is the member's short name.
	Name string `json:"name"`
	// DisplayName is the member's display name.
	DisplayName string `json:"display_name"`
	// Kind is the member kind.
	Kind MemberKind `json:"kind"`
}

// SpeakerFor builds a SpeakerRef snapshot from a live member.
func SpeakerFor(m *Member) SpeakerRef {
	return SpeakerRef{
		ID:          m.ID,
		Name:        m.Name,
		DisplayName: m.DisplayName,
		Kind:        m.Kind,
	}
}

// ResolvedAddressee records one addressee a directive resolved to. The raw
// identifier text is kept alongside the match to support unresolved-addressee
// diagnostics.
type ResolvedAddressee struct {
	// Raw is the identifier text as written in the directive.
	Raw string `json:"raw"`
	// MemberID is the id of the matched member.
	MemberID string `json:"member_id"`
	// MemberName is the name of the matched member.
	MemberName string `json:"member_name"`
	// Intent is the priority class requested for this delivery.
	Intent Intent `json:"intent"`
}

// ConversationMessage is one turn's record.
type ConversationMessage struct {
	// ID is the unique message id.
	ID string `json:"id"`
	// Content is the message text with directive markers removed.
	Content string `json:"content"`
	// Speaker is a snapshot of the producing member.
	Speaker SpeakerRef `json:"speaker"`
	// Timestamp is when the message was appended.
	Timestamp time.Time `json:"timestamp"`
	// RawDirectives holds the directive strings exactly as written.
	RawDirectives []string `json:"raw_directives,omitempty"`
	// Addressees lists the addressees that actually resolved.
	Addressees []ResolvedAddressee `json:"addressees,omitempty"`
	// ParentMessageID is the id of the message this one responds to.
	// Empty for conversation-opening messages.
	ParentMessageID string `json:"parent_message_id,omitempty"`
	// SiblingIDs lists other messages produced from the same parent, for
	// fan-out turns.
	SiblingIDs []string `json:"sibling_ids,omitempty"`
}
