// Package database provides storage backends for sign-in sessions.
package database

import (
	"errors"
	"strings"
	"time"

	"github.com/bryan-buckman/ncv/internal/model"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Store defines the interface for session storage.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// CreateSession stores s. An empty ID is replaced by a new random one and
	// a zero CreatedAt by the current time.
	CreateSession(s *model.Session) error
	GetSession(id string) (*model.Session, error)
	DeleteSession(id string) error
	// DeleteSessionsBefore removes sessions created before t and returns how
	// many were removed.
	DeleteSessionsBefore(t time.Time) (int64, error)
}

// Open picks the backend from dbURL: postgres:// and postgresql:// URLs open
// PostgreSQL, anything else is a SQLite path.
func Open(dbURL string) (Store, error) {
	if strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://") {
		return NewPostgres(dbURL)
	}
	return New(dbURL)
}
