package session

import (
	"context"
	"time"
)

// boundedStore gives every store call its own deadline, so a stuck
// database turns into an error the manager can degrade on instead of
// holding the caller until its own deadline.
type boundedStore struct {
	Store
	timeout time.Duration
}

func (s boundedStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s boundedStore) FindActive(ctx context.Context, userID, chatID string) (*Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.FindActive(ctx, userID, chatID)
}

func (s boundedStore) Get(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.Get(ctx, id)
}

func (s boundedStore) Create(ctx context.Context, sess *Session) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.Create(ctx, sess)
}

func (s boundedStore) Touch(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.Touch(ctx, id, at)
}

func (s boundedStore) RecordActivity(ctx context.Context, id string, delta int64, agent string, at time.Time) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.RecordActivity(ctx, id, delta, agent, at)
}

func (s boundedStore) Deactivate(ctx context.Context, id string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.Deactivate(ctx, id)
}

func (s boundedStore) DeactivateIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.DeactivateIdle(ctx, cutoff)
}

func (s boundedStore) SetPreferences(ctx context.Context, id string, prefs map[string]any) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.SetPreferences(ctx, id, prefs)
}

func (s boundedStore) AppendMessages(ctx context.Context, msgs ...*Message) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.AppendMessages(ctx, msgs...)
}

func (s boundedStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.RecentMessages(ctx, sessionID, limit)
}
