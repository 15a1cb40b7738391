package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// RoomRow is one live room in the directory.
type RoomRow struct {
	SessionID string
	Code      string
	Host      string
	Creature  string
	State     string // "waiting", "battle"
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the directory of rooms currently open. Rows are removed as soon
// as a room is discarded; nothing about a finished battle is kept.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if strings.Contains(path, ":memory:") {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	// WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS rooms (
			session_id TEXT PRIMARY KEY,
			code       TEXT NOT NULL,
			host       TEXT NOT NULL,
			creature   TEXT NOT NULL,
			state      TEXT NOT NULL DEFAULT 'waiting',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS rooms_code ON rooms(code);
	`)
	return err
}

// PutRoom records the room a session has open, replacing any previous one.
func (s *Store) PutRoom(r RoomRow) error {
	_, err := s.db.Exec(`
		INSERT INTO rooms (session_id, code, host, creature, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id) DO UPDATE SET
			code = excluded.code,
			host = excluded.host,
			creature = excluded.creature,
			state = excluded.state,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, r.SessionID, r.Code, r.Host, r.Creature, r.State)
	return err
}

// GetRoom retrieves the room open in a session.
func (s *Store) GetRoom(sessionID string) (*RoomRow, error) {
	row := s.db.QueryRow(`SELECT session_id, code, host, creature, state, created_at, updated_at
		FROM rooms WHERE session_id = ?`, sessionID)
	var r RoomRow
	if err := row.Scan(&r.SessionID, &r.Code, &r.Host, &r.Creature, &r.State, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRoomState changes the lifecycle state of a session's room.
func (s *Store) UpdateRoomState(sessionID, state string) error {
	_, err := s.db.Exec("UPDATE rooms SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE session_id = ?", state, sessionID)
	return err
}

// CodeTaken reports whether any open room uses code.
func (s *Store) CodeTaken(code string) (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM rooms WHERE code = ?", code).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListRooms returns all rooms with the given state (or all if state is empty).
func (s *Store) ListRooms(state string) ([]RoomRow, error) {
	const cols = "SELECT session_id, code, host, creature, state, created_at, updated_at FROM rooms"
	var rows *sql.Rows
	var err error
	if state == "" {
		rows, err = s.db.Query(cols + " ORDER BY created_at DESC")
	} else {
		rows, err = s.db.Query(cols+" WHERE state = ? ORDER BY created_at DESC", state)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []RoomRow
	for rows.Next() {
		var r RoomRow
		if err := rows.Scan(&r.SessionID, &r.Code, &r.Host, &r.Creature, &r.State, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// DeleteRoom removes a session's room.
func (s *Store) DeleteRoom(sessionID string) error {
	_, err := s.db.Exec("DELETE FROM rooms WHERE session_id = ?", sessionID)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
