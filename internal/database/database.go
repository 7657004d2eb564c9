// Package database provides SQLite storage for sign-in sessions.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bryan-buckman/ncv/internal/model"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		access_token TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		user_name TEXT NOT NULL DEFAULT '',
		workspace_name TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// CreateSession stores a new session.
func (db *DB) CreateSession(s *model.Session) error {
	prepareSession(s)
	_, err := db.conn.Exec(
		"INSERT INTO sessions (id, access_token, user_id, user_name, workspace_name, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		s.ID, s.AccessToken, s.User.ID, s.User.Name, s.WorkspaceName, s.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession returns a session by ID.
func (db *DB) GetSession(id string) (*model.Session, error) {
	row := db.conn.QueryRow(
		"SELECT id, access_token, user_id, user_name, workspace_name, created_at FROM sessions WHERE id = ?", id)
	return scanSession(row)
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (db *DB) DeleteSession(id string) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE id = ?", id)
	return err
}

// DeleteSessionsBefore removes sessions created before t.
func (db *DB) DeleteSessionsBefore(t time.Time) (int64, error) {
	res, err := db.conn.Exec("DELETE FROM sessions WHERE created_at < ?", t.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func prepareSession(s *model.Session) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.CreatedAt = s.CreatedAt.Truncate(time.Second)
}

func scanSession(row *sql.Row) (*model.Session, error) {
	var (
		s       model.Session
		created int64
	)
	err := row.Scan(&s.ID, &s.AccessToken, &s.User.ID, &s.User.Name, &s.WorkspaceName, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.CreatedAt = time.Unix(created, 0)
	return &s, nil
}
