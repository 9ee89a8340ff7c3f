package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	messages map[string][]Message
	nextID   uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
	}
}

func (m *MemoryStore) FindActive(_ context.Context, userID, chatID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Session
	for _, s := range m.sessions {
		if !s.IsActive || s.UserID != userID || s.ChatID != chatID {
			continue
		}
		if best == nil || s.LastActivity.After(best.LastActivity) {
			best = s
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return cloneSession(best), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return ErrDuplicate
	}
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *MemoryStore) Touch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && s.LastActivity.Before(at) {
		s.LastActivity = at
		s.UpdatedAt = at
	}
	return nil
}

func (m *MemoryStore) RecordActivity(_ context.Context, id string, delta int64, agent string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.MessageCount += delta
	if s.LastActivity.Before(at) {
		s.LastActivity = at
	}
	if agent != "" {
		s.CurrentAgent = agent
	}
	s.UpdatedAt = at
	return nil
}

func (m *MemoryStore) Deactivate(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false, ErrNotFound
	}
	was := s.IsActive
	s.IsActive = false
	return was, nil
}

func (m *MemoryStore) DeactivateIdle(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.IsActive && s.LastActivity.Before(cutoff) {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SetPreferences(_ context.Context, id string, prefs map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Preferences = copyMap(prefs)
	return nil
}

func (m *MemoryStore) AppendMessages(_ context.Context, msgs ...*Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		m.nextID++
		msg.ID = m.nextID
		cp := *msg
		cp.Metadata = copyMap(msg.Metadata)
		m.messages[msg.SessionID] = append(m.messages[msg.SessionID], cp)
	}
	return nil
}

func (m *MemoryStore) RecentMessages(_ context.Context, sessionID string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	all := m.messages[sessionID]
	out := make([]Message, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func cloneSession(s *Session) *Session {
	cp := *s
	cp.Preferences = copyMap(s.Preferences)
	return &cp
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
