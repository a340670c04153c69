package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrSnapshotNotFound is returned when no snapshot exists for the requested
// team/session pair.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotInfo summarizes a stored snapshot for listings.
type SnapshotInfo struct {
	TeamID       string
	SessionID    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// SnapshotStore is the persistence interface the coordinator writes session
// snapshots through. Separating it from the SQLite implementation keeps the
// coordinator testable with an in-memory store.
type SnapshotStore interface {
	io.Closer
	// Save writes or replaces the snapshot keyed by its team and session id.
	Save(snap *Snapshot) error
	// Load reads the snapshot for the given team and session.
	// Returns ErrSnapshotNotFound when absent.
	Load(teamID, sessionID string) (*Snapshot, error)
	// List returns stored snapshots for a team, newest first. An empty
	// teamID lists all teams.
	List(teamID string) ([]SnapshotInfo, error)
}

var _ SnapshotStore = (*DB)(nil)

// Save writes or replaces a snapshot.
func (db *DB) Save(snap *Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	_, err = db.conn.Exec(`
		INSERT INTO snapshots (team_id, session_id, created_at, updated_at, message_count, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(team_id, session_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			message_count = excluded.message_count,
			payload = excluded.payload
	`, snap.TeamID, snap.SessionID, snap.CreatedAt, snap.UpdatedAt, snap.Metadata.MessageCount, string(payload))
	if err != nil {
		return fmt.Errorf("save snapshot %s/%s: %w", snap.TeamID, snap.SessionID, err)
	}
	return nil
}

// Load reads a snapshot by team and session id.
func (db *DB) Load(teamID, sessionID string) (*Snapshot, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var payload string
	row := db.conn.QueryRow(
		"SELECT payload FROM snapshots WHERE team_id = ? AND session_id = ?",
		teamID, sessionID,
	)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s for team %s: %w", sessionID, teamID, ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// List returns stored snapshots for a team, newest first.
func (db *DB) List(teamID string) ([]SnapshotInfo, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	query := "SELECT team_id, session_id, created_at, updated_at, message_count FROM snapshots"
	args := []interface{}{}
	if teamID != "" {
		query += " WHERE team_id = ?"
		args = append(args, teamID)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.TeamID, &info.SessionID, &info.CreatedAt, &info.UpdatedAt, &info.MessageCount); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
