package models

import "time"

// Intent is the priority class of a routing delivery.
type Intent string

const (
	// IntentInterrupt preempts all other pending work.
	IntentInterrupt Intent = "P1_INTERRUPT"
	// IntentReply is the default priority for directive deliveries.
	IntentReply Intent = "P2_REPLY"
	// IntentExtend is the lowest priority, for supplementary contributions.
	IntentExtend Intent = "P3_EXTEND"
)

// Valid returns true if the intent is a known value.
func (i Intent) Valid() bool {
	switch i {
	case IntentInterrupt, IntentReply, IntentExtend:
		return true
	default:
		return false
	}
}

// Rank returns the intent's ordering rank; lower ranks schedule first.
func (i Intent) Rank() int {
	switch i {
	case IntentInterrupt:
		return 0
	case IntentReply:
		return 1
	case IntentExtend:
		return 2
	default:
		return 3
	}
}

// RoutingItem is one pending delivery: send the branch's latest content to a
// member. Items are consumed exactly once when selected; the only in-place
// mutation allowed is demoting Intent under branch-overflow protection.
type RoutingItem struct {
	// TargetMemberID is the member to deliver to.
	TargetMemberID string `json:"target_member_id"`
	// Intent is the delivery's priority class.
	Intent Intent `json:"intent"`
	// ParentMessageID identifies the branch the item belongs to.
	ParentMessageID string `json:"parent_message_id"`
	// Seq is the queue-assigned enqueue sequence, the tie-break within a
	// priority class.
	Seq uint64 `json:"seq"`
	// EnqueuedAt is when the item was admitted.
	EnqueuedAt time.Time `json:"enqueued_at"`
}
