package conversation

import (
	"fmt"

	"github.com/dkessler/parley/internal/state"
)

// SaveCurrentSession writes the current session to the snapshot store.
func (c *Coordinator) SaveCurrentSession() error {
	if c.store == nil {
		return fmt.Errorf("no snapshot store configured")
	}

	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return fmt.Errorf("no session to save")
	}
	snap := state.EncodeSession(c.session, c.team)
	c.mu.Unlock()

	if err := c.store.Save(snap); err != nil {
		return fmt.Errorf("save session %s: %w", snap.SessionID, err)
	}
	debugLog("saved session %s (%d messages)", snap.SessionID, snap.Metadata.MessageCount)
	return nil
}
