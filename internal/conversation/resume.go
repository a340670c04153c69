package conversation

import (
	"fmt"

	"github.com/dkessler/parley/pkg/models"
)

// SetTeam installs a team, optionally resuming a persisted session.
//
// With an empty resumeSessionID the coordinator starts fresh: any existing
// session is discarded and the next SendMessage opens a new one. With a
// session id, the snapshot is loaded and validated against the team; on any
// failure the coordinator keeps its pre-resume state. A restored session
// comes back paused awaiting a human, even if speakers in its history are
// no longer team members (those raise a single consistency warning).
func (c *Coordinator) SetTeam(team *models.Team, resumeSessionID string) error {
	if resumeSessionID == "" {
		c.mu.Lock()
		c.team = team
		c.session = nil
		c.rounds = 0
		c.mu.Unlock()
		return nil
	}

	if c.store == nil {
		return fmt.Errorf("resume session %s: no snapshot store configured", resumeSessionID)
	}

	snap, err := c.store.Load(team.ID, resumeSessionID)
	if err != nil {
		return fmt.Errorf("resume session %s: %w", resumeSessionID, err)
	}
	if snap.TeamID != team.ID {
		return fmt.Errorf("resume session %s: snapshot belongs to team %s, not %s", resumeSessionID, snap.TeamID, team.ID)
	}

	session, err := snap.Session()
	if err != nil {
		return fmt.Errorf("resume session %s: %w", resumeSessionID, err)
	}

	missing := missingSpeakers(session, team)
	if len(missing) > 0 {
		c.emitter.Emit(ConversationEvent{
			Type:            EventConsistencyWarning,
			MissingSpeakers: missing,
			Message:         fmt.Sprintf("%d speaker(s) in restored history are not on the team", len(missing)),
		})
	}

	c.mu.Lock()
	c.team = team
	c.session = session
	c.session.WaitingForMemberID = c.fallbackMemberLocked().ID
	c.rounds = 0
	c.mu.Unlock()

	debugLog("resumed session %s with %d messages", resumeSessionID, len(session.Messages))
	return nil
}

// missingSpeakers lists the names of history speakers absent from the team,
// deduplicated, in first-appearance order.
func missingSpeakers(session *models.ConversationSession, team *models.Team) []string {
	seen := make(map[string]bool)
	var missing []string
	for i := range session.Messages {
		sp := &session.Messages[i].Speaker
		if sp.ID == "" || seen[sp.ID] {
			continue
		}
		seen[sp.ID] = true
		if team.MemberByID(sp.ID) == nil {
			name := sp.Name
			if name == "" {
				name = sp.ID
			}
			missing = append(missing, name)
		}
	}
	return missing
}
