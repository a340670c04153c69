package models

import (
	"testing"
	"time"
)

func TestMemberKindValid(t *testing.T) {
	if !MemberKindAI.Valid() || !MemberKindHuman.Valid() {
		t.Error("expected known kinds to be valid")
	}
	if MemberKind("robot").Valid() {
		t.Error("expected unknown kind to be invalid")
	}
}

func TestTeamFirstHuman(t *testing.T) {
	team := &Team{
		ID: "team-1",
		Members: []Member{
			{ID: "m1", Name: "sarah", Kind: MemberKindAI},
			{ID: "m2", Name: "alex", Kind: MemberKindHuman},
			{ID: "m3", Name: "jo", Kind: MemberKindHuman},
		},
	}

	human := team.FirstHuman()
	if human == nil {
		t.Fatal("expected a human member")
	}
	if human.ID != "m2" {
		t.Errorf("expected first human m2, got %s", human.ID)
	}

	aiOnly := &Team{Members: []Member{{ID: "m1", Kind: MemberKindAI}}}
	if aiOnly.FirstHuman() != nil {
		t.Error("expected nil for team without humans")
	}
}

func TestTeamMemberByID(t *testing.T) {
	team := &Team{Members: []Member{{ID: "m1", Name: "sarah"}}}
	if m := team.MemberByID("m1"); m == nil || m.Name != "sarah" {
		t.Errorf("expected to find m1, got %v", m)
	}
	if team.MemberByID("missing") != nil {
		t.Error("expected nil for unknown id")
	}
}

func TestIntentRankOrdering(t *testing.T) {
	if !(IntentInterrupt.Rank() < IntentReply.Rank()) {
		t.Error("P1 must rank before P2")
	}
	if !(IntentReply.Rank() < IntentExtend.Rank()) {
		t.Error("P2 must rank before P3")
	}
	if Intent("P9_BOGUS").Valid() {
		t.Error("expected unknown intent to be invalid")
	}
}

func TestSessionStats(t *testing.T) {
	s := &ConversationSession{
		ID:        "sess-1",
		TeamID:    "team-1",
		Status:    SessionActive,
		StartedAt: time.Now().Add(-time.Minute),
	}
	s.Append(ConversationMessage{ID: "a", Speaker: SpeakerRef{ID: "m1"}})
	s.Append(ConversationMessage{ID: "b", Speaker: SpeakerRef{ID: "m1"}})
	s.Append(ConversationMessage{ID: "c", Speaker: SpeakerRef{ID: "m2"}})

	stats := s.Stats()
	if stats.MessageCount != 3 {
		t.Errorf("expected 3 messages, got %d", stats.MessageCount)
	}
	if stats.ByMember["m1"] != 2 || stats.ByMember["m2"] != 1 {
		t.Errorf("unexpected per-member counts: %v", stats.ByMember)
	}
	if stats.Duration <= 0 {
		t.Error("expected positive duration")
	}
	if s.Latest().ID != "c" {
		t.Errorf("expected latest message c, got %s", s.Latest().ID)
	}
}
