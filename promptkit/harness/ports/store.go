package harnessports

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when no snapshot exists for a session id.
var ErrSessionNotFound = errors.New("session not found")

// SessionInfo describes a stored session without its snapshot.
type SessionInfo struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionStore persists serialized conversation histories.
type SessionStore interface {
	SaveSession(ctx context.Context, id string, snapshot []byte) error
	LoadSession(ctx context.Context, id string) ([]byte, error) // ErrSessionNotFound when missing
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]SessionInfo, error) // most recently updated first
}
