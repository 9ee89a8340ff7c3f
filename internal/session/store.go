package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrDuplicate   = errors.New("session already exists")
	ErrInvalidUser = errors.New("user id is required")
)

// Store persists sessions and their messages. Implementations must make
// RecordActivity an atomic increment and keep last_activity monotonic.
type Store interface {
	// FindActive returns the most recently active session for the key.
	FindActive(ctx context.Context, userID, chatID string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Create(ctx context.Context, s *Session) error
	Touch(ctx context.Context, id string, at time.Time) error
	RecordActivity(ctx context.Context, id string, delta int64, agent string, at time.Time) error
	Deactivate(ctx context.Context, id string) (bool, error)
	DeactivateIdle(ctx context.Context, cutoff time.Time) (int64, error)
	SetPreferences(ctx context.Context, id string, prefs map[string]any) error
	AppendMessages(ctx context.Context, msgs ...*Message) error
	// RecentMessages returns up to limit messages, newest first.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
}
