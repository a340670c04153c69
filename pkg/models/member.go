// Package models contains the shared data model for parley conversations.
package models

// MemberKind distinguishes AI-driven worker members from human participants.
type MemberKind string

const (
	// MemberKindAI indicates a member backed by an external worker process.
	MemberKindAI MemberKind = "ai"
	// MemberKindHuman indicates a human participant.
	MemberKindHuman MemberKind = "human"
)

// Valid returns true if the kind is a known value.
func (k MemberKind) Valid() bool {
	switch k {
	case MemberKindAI, MemberKindHuman:
		return true
	default:
		return false
	}
}

// Member is one conversation participant. Members are immutable once their
// Team is constructed.
type Member struct {
	// ID is the stable identifier for this member.
	ID string `json:"id"`
	// Name is the short name used in routing directives.
	Name string `json:"name"`
	// DisplayName is the human-readable name shown in transcripts.
	DisplayName string `json:"display_name"`
	// Kind is whether the member is AI-driven or human.
	Kind MemberKind `json:"kind"`
	// WorkerConfig names the worker definition that drives this member.
	// Empty for human members.
	WorkerConfig string `json:"worker_config,omitempty"`
	// Position is the member's ordinal position within the team.
	Position int `json:"position"`
}

// Team is an ordered set of members plus descriptive metadata. A team is
// read-only for the duration of a conversation.
type Team struct {
	// ID is the stable identifier for this team.
	ID string `json:"id"`
	// Name is the team's short name.
	Name string `json:"name"`
	// Description describes what the team is for.
	Description string `json:"description,omitempty"`
	// Task is the standing task text shared with every worker.
	Task string `json:"task,omitempty"`
	// Members lists the participants in ordinal order.
	Members []Member `json:"members"`
}

// MemberByID returns the member with the given id, or nil.
func (t *Team) MemberByID(id string) *Member {
	for i := range t.Members {
		if t.Members[i].ID == id {
			return &t.Members[i]
		}
	}
	return nil
}

// FirstHuman returns the first human member in ordinal order, or nil if the
// team has none.
func (t *Team) FirstHuman() *Member {
	for i := range t.Members {
		if t.Members[i].Kind == MemberKindHuman {
			return &t.Members[i]
		}
	}
	return nil
}
