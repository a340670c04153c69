package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkessler/parley/pkg/models"
)

// SchemaVersion is the snapshot schema written by this build. Version 1
// snapshots (legacy speaker/addressee record shapes) are still readable.
const SchemaVersion = 2

// Snapshot is the persisted form of a conversation session.
type Snapshot struct {
	SchemaVersion int              `json:"schemaVersion"`
	TeamID        string           `json:"teamId"`
	SessionID     string           `json:"sessionId"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	Context       SnapshotContext  `json:"context"`
	Metadata      SnapshotMetadata `json:"metadata"`
}

// SnapshotContext carries the conversation content.
type SnapshotContext struct {
	Messages []SnapshotMessage `json:"messages"`
	TeamTask string            `json:"teamTask,omitempty"`
}

// SnapshotMetadata carries aggregate information about the snapshot.
type SnapshotMetadata struct {
	MessageCount int    `json:"messageCount"`
	Summary      string `json:"summary,omitempty"`
}

// SnapshotMessage is one persisted message.
type SnapshotMessage struct {
	ID                 string            `json:"id"`
	Content            string            `json:"content"`
	Speaker            SpeakerRecord     `json:"speaker"`
	Timestamp          time.Time         `json:"timestamp"`
	RawDirectives      []string          `json:"rawDirectives,omitempty"`
	ResolvedAddressees []AddresseeRecord `json:"resolvedAddressees,omitempty"`
	ParentMessageID    string            `json:"parentMessageId,omitempty"`
	SiblingIDs         []string          `json:"siblingIds,omitempty"`
}

// SpeakerRecord is a persisted speaker reference. It marshals in the
// current {id, name, displayName, type} shape and unmarshals the legacy
// {roleId, roleName, roleTitle, type} shape as well.
type SpeakerRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Type        string `json:"type"`
}

// UnmarshalJSON accepts both the current and the legacy speaker shapes.
func (r *SpeakerRecord) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
		Type        string `json:"type"`
		RoleID      string `json:"roleId"`
		RoleName    string `json:"roleName"`
		RoleTitle   string `json:"roleTitle"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.ID = aux.ID
	r.Name = aux.Name
	r.DisplayName = aux.DisplayName
	r.Type = aux.Type
	if r.ID == "" && aux.RoleID != "" {
		r.ID = aux.RoleID
		r.Name = aux.RoleName
		r.DisplayName = aux.RoleTitle
	}
	return nil
}

// AddresseeRecord is a persisted resolved addressee, accepting both the
// current memberId/memberName shape and the legacy roleId/roleName shape.
type AddresseeRecord struct {
	Raw        string `json:"raw,omitempty"`
	MemberID   string `json:"memberId"`
	MemberName string `json:"memberName"`
	Intent     string `json:"intent,omitempty"`
}

// UnmarshalJSON accepts both the current and the legacy addressee shapes.
func (r *AddresseeRecord) UnmarshalJSON(data []byte) error {
	var aux struct {
		Raw        string `json:"raw"`
		MemberID   string `json:"memberId"`
		MemberName string `json:"memberName"`
		Intent     string `json:"intent"`
		RoleID     string `json:"roleId"`
		RoleName   string `json:"roleName"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.Raw = aux.Raw
	r.MemberID = aux.MemberID
	r.MemberName = aux.MemberName
	r.Intent = aux.Intent
	if r.MemberID == "" && aux.RoleID != "" {
		r.MemberID = aux.RoleID
		r.MemberName = aux.RoleName
	}
	return nil
}

// EncodeSession converts a live session into its persisted form.
func EncodeSession(session *models.ConversationSession, team *models.Team) *Snapshot {
	snap := &Snapshot{
		SchemaVersion: SchemaVersion,
		TeamID:        session.TeamID,
		SessionID:     session.ID,
		CreatedAt:     session.StartedAt,
		UpdatedAt:     time.Now(),
		Metadata:      SnapshotMetadata{MessageCount: len(session.Messages)},
	}
	if team != nil {
		snap.Context.TeamTask = team.Task
	}

	for i := range session.Messages {
		m := &session.Messages[i]
		sm := SnapshotMessage{
			ID:      m.ID,
			Content: m.Content,
			Speaker: SpeakerRecord{
				ID:          m.Speaker.ID,
				Name:        m.Speaker.Name,
				DisplayName: m.Speaker.DisplayName,
				Type:        string(m.Speaker.Kind),
			},
			Timestamp:       m.Timestamp,
			RawDirectives:   m.RawDirectives,
			ParentMessageID: m.ParentMessageID,
			SiblingIDs:      m.SiblingIDs,
		}
		for _, a := range m.Addressees {
			sm.ResolvedAddressees = append(sm.ResolvedAddressees, AddresseeRecord{
				Raw:        a.Raw,
				MemberID:   a.MemberID,
				MemberName: a.MemberName,
				Intent:     string(a.Intent),
			})
		}
		snap.Context.Messages = append(snap.Context.Messages, sm)
	}

	return snap
}

// Session rehydrates the snapshot into a live session. Restored sessions
// come back paused regardless of the state they were saved in.
func (s *Snapshot) Session() (*models.ConversationSession, error) {
	if s.SchemaVersion < 1 || s.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("incompatible snapshot schema version %d (supported 1..%d)", s.SchemaVersion, SchemaVersion)
	}

	session := &models.ConversationSession{
		ID:        s.SessionID,
		TeamID:    s.TeamID,
		Status:    models.SessionPaused,
		StartedAt: s.CreatedAt,
	}

	for _, sm := range s.Context.Messages {
		msg := models.ConversationMessage{
			ID:      sm.ID,
			Content: sm.Content,
			Speaker: models.SpeakerRef{
				ID:          sm.Speaker.ID,
				Name:        sm.Speaker.Name,
				DisplayName: sm.Speaker.DisplayName,
				Kind:        models.MemberKind(sm.Speaker.Type),
			},
			Timestamp:       sm.Timestamp,
			RawDirectives:   sm.RawDirectives,
			ParentMessageID: sm.ParentMessageID,
			SiblingIDs:      sm.SiblingIDs,
		}
		for _, a := range sm.ResolvedAddressees {
			msg.Addressees = append(msg.Addressees, models.ResolvedAddressee{
				Raw:        a.Raw,
				MemberID:   a.MemberID,
				MemberName: a.MemberName,
				Intent:     models.Intent(a.Intent),
			})
		}
		session.Append(msg)
	}

	return session, nil
}
