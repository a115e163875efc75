// Package record persists a live race stream to SQLite and reads it back
// for replay and report generation. Messages are stored as raw wire bytes
// so a replayed session is byte-identical to the original broadcast.
package record

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// ErrNoSessions is returned by LatestSessionID on an empty database.
var ErrNoSessions = errors.New("no recorded sessions")

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the session database at path and brings
// its schema up to date.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

// migrateUp applies pending schema migrations from the embedded filesystem.
func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// SessionInfo describes one recorded session.
type SessionInfo struct {
	SessionID        string
	SourceURL        string
	Notes            string
	StartedUnixNanos int64
	SnapshotCount    int64
}

// CreateSession registers a new session row and returns its generated ID.
func (db *DB) CreateSession(sourceURL, notes string, startedUnixNanos int64) (string, error) {
	id := uuid.New().String()
	_, err := db.Exec(
		`INSERT INTO race_sessions (session_id, source_url, notes, started_unix_nanos) VALUES (?, ?, ?, ?)`,
		id, sourceURL, notes, startedUnixNanos,
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// Sessions lists all recorded sessions, newest first.
func (db *DB) Sessions() ([]SessionInfo, error) {
	rows, err := db.Query(`
		SELECT s.session_id, s.source_url, s.notes, s.started_unix_nanos,
		       (SELECT COUNT(*) FROM race_snapshots r WHERE r.session_id = s.session_id)
		FROM race_sessions s
		ORDER BY s.started_unix_nanos DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.SessionID, &info.SourceURL, &info.Notes, &info.StartedUnixNanos, &info.SnapshotCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// LatestSessionID returns the most recently started session.
func (db *DB) LatestSessionID() (string, error) {
	var id string
	err := db.QueryRow(
		`SELECT session_id FROM race_sessions ORDER BY started_unix_nanos DESC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSessions
	}
	if err != nil {
		return "", fmt.Errorf("latest session: %w", err)
	}
	return id, nil
}

// SaveTrack stores the session's track message. A session has at most one
// track; a reconnect mid-recording overwrites with the same payload.
func (db *DB) SaveTrack(sessionID string, payload []byte) error {
	_, err := db.Exec(
		`INSERT OR REPLACE INTO race_tracks (session_id, payload) VALUES (?, ?)`,
		sessionID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("save track: %w", err)
	}
	return nil
}

// Track returns the session's raw track message.
func (db *DB) Track(sessionID string) ([]byte, error) {
	var payload string
	err := db.QueryRow(
		`SELECT payload FROM race_tracks WHERE session_id = ?`, sessionID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s has no track payload", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load track: %w", err)
	}
	return []byte(payload), nil
}

// AppendSnapshot stores one state broadcast.
func (db *DB) AppendSnapshot(sessionID string, seq int64, simTime float64, recordedUnixNanos int64, payload []byte) error {
	_, err := db.Exec(
		`INSERT INTO race_snapshots (session_id, seq, sim_time, recorded_unix_nanos, payload) VALUES (?, ?, ?, ?, ?)`,
		sessionID, seq, simTime, recordedUnixNanos, string(payload),
	)
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}

// SnapshotCount returns the number of stored state broadcasts.
func (db *DB) SnapshotCount(sessionID string) (int64, error) {
	var count int64
	err := db.QueryRow(
		`SELECT COUNT(*) FROM race_snapshots WHERE session_id = ?`, sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return count, nil
}

// SnapshotRecord is one stored state broadcast with its capture timing.
type SnapshotRecord struct {
	Seq               int64
	SimTime           float64
	RecordedUnixNanos int64
	Payload           []byte
}

// SnapshotCursor streams a session's snapshots in sequence order.
type SnapshotCursor struct {
	rows *sql.Rows
}

// OpenSnapshots opens a cursor over the session's snapshots. The caller
// must Close it.
func (db *DB) OpenSnapshots(sessionID string) (*SnapshotCursor, error) {
	rows, err := db.Query(`
		SELECT seq, sim_time, recorded_unix_nanos, payload
		FROM race_snapshots
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("open snapshots: %w", err)
	}
	return &SnapshotCursor{rows: rows}, nil
}

// ReadSnapshot returns the next snapshot, or io.EOF after the last one.
func (c *SnapshotCursor) ReadSnapshot() (*SnapshotRecord, error) {
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		return nil, io.EOF
	}
	var rec SnapshotRecord
	var payload string
	if err := c.rows.Scan(&rec.Seq, &rec.SimTime, &rec.RecordedUnixNanos, &payload); err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	rec.Payload = []byte(payload)
	return &rec, nil
}

// Close releases the cursor.
func (c *SnapshotCursor) Close() error {
	return c.rows.Close()
}
