package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T, store Store, clock *fakeClock) *Manager {
	return NewManager(store, Options{Now: clock.Now, Logger: zaptest.NewLogger(t)})
}

func TestGetOrCreateActiveSession_Idempotent(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			m := newTestManager(t, factory(t), clock)
			ctx := context.Background()

			first, err := m.GetOrCreateActiveSession(ctx, "u1", "c1")
			require.NoError(t, err)
			assert.True(t, first.IsActive)
			assert.False(t, first.Ephemeral)

			clock.Advance(5 * time.Minute)
			second, err := m.GetOrCreateActiveSession(ctx, "u1", "c1")
			require.NoError(t, err)
			assert.Equal(t, first.ID, second.ID)
			assert.Equal(t, clock.Now(), second.LastActivity)

			other, err := m.GetOrCreateActiveSession(ctx, "u1", "c2")
			require.NoError(t, err)
			assert.NotEqual(t, first.ID, other.ID)

			noChat, err := m.GetOrCreateActiveSession(ctx, "u1", "")
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("u1_%d", clock.Now().Unix()/3600), noChat.ID)
		})
	}
}

func TestGetOrCreateActiveSession_EmptyUser(t *testing.T) {
	m := newTestManager(t, NewMemoryStore(), newFakeClock())
	_, err := m.GetOrCreateActiveSession(context.Background(), "  ", "c")
	require.ErrorIs(t, err, ErrInvalidUser)
}

func TestCleanupOldSessions_AfterIdleTimeout(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			m := newTestManager(t, factory(t), clock)
			ctx := context.Background()

			first, err := m.GetOrCreateActiveSession(ctx, "u1", "c1")
			require.NoError(t, err)

			clock.Advance(31 * time.Minute)
			n, err := m.CleanupOldSessions(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			// idempotent
			n, err = m.CleanupOldSessions(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(0), n)

			next, err := m.GetOrCreateActiveSession(ctx, "u1", "c1")
			require.NoError(t, err)
			assert.NotEqual(t, first.ID, next.ID)
			assert.True(t, next.IsActive)
		})
	}
}

func TestGetOrCreateActiveSession_ExpiredWithoutSweep(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	m := newTestManager(t, store, clock)
	ctx := context.Background()

	first, err := m.GetOrCreateActiveSession(ctx, "u1", "c1")
	require.NoError(t, err)

	clock.Advance(45 * time.Minute)
	next, err := m.GetOrCreateActiveSession(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, next.ID)

	old, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive, "expired session must be closed before a new one is opened")
}

func TestGetOrCreateActiveSession_ResumesAcrossBucketBoundary(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 14, 59, 50, 0, time.UTC)}
	m := newTestManager(t, NewMemoryStore(), clock)
	ctx := context.Background()

	first, err := m.GetOrCreateActiveSession(ctx, "u1", "c1")
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	second, err := m.GetOrCreateActiveSession(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateActiveSession_OneActivePerKeyUnderConcurrency(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	m := newTestManager(t, store, clock)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.GetOrCreateActiveSession(ctx, "u1", "c1")
			require.NoError(t, err)
			ids[i] = s.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 0, m.locks.size())
}

func TestCloseSession(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			m := newTestManager(t, factory(t), clock)
			ctx := context.Background()

			s, err := m.GetOrCreateActiveSession(ctx, "u1", "")
			require.NoError(t, err)
			require.NoError(t, m.CloseSession(ctx, s.ID))

			next, err := m.GetOrCreateActiveSession(ctx, "u1", "")
			require.NoError(t, err)
			assert.NotEqual(t, s.ID, next.ID)

			require.ErrorIs(t, m.CloseSession(ctx, "missing"), ErrNotFound)
		})
	}
}

func TestRecordTurnAndConversationContext(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			store := factory(t)
			m := newTestManager(t, store, clock)
			ctx := context.Background()

			s, err := m.GetOrCreateActiveSession(ctx, "u1", "c1")
			require.NoError(t, err)

			empty := m.GetConversationContext(ctx, s.ID, 10)
			assert.False(t, empty.HasHistory())

			for i := 0; i < 3; i++ {
				clock.Advance(time.Minute)
				m.RecordTurn(ctx, s, Turn{
					UserText:      fmt.Sprintf("pergunta %d", i),
					AssistantText: fmt.Sprintf("resposta %d", i),
					Agent:         "leo",
					Metadata:      map[string]any{"turn": i},
				})
			}
			assert.Equal(t, int64(6), s.MessageCount)

			c := m.GetConversationContext(ctx, s.ID, 4)
			require.Len(t, c.RecentMessages, 4)
			assert.Equal(t, "pergunta 1", c.RecentMessages[0].Content)
			assert.Equal(t, RoleUser, c.RecentMessages[0].Role)
			assert.Equal(t, "resposta 2", c.RecentMessages[3].Content)
			assert.Equal(t, "leo", c.CurrentTopic)

			stored, err := store.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(6), stored.MessageCount)
			assert.True(t, stored.LastActivity.Equal(clock.Now()))
		})
	}
}

func TestRecordTurn_ConcurrentIncrementsAreNotLost(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			store := factory(t)
			m := newTestManager(t, store, clock)
			ctx := context.Background()

			s, err := m.GetOrCreateActiveSession(ctx, "u1", "c1")
			require.NoError(t, err)

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					cp := *s
					m.RecordTurn(ctx, &cp, Turn{UserText: fmt.Sprintf("m%d", i), AssistantText: "ok"})
				}(i)
			}
			wg.Wait()

			stored, err := store.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(20), stored.MessageCount)
		})
	}
}

func TestUpdateLastActivity_IsMonotonic(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	m := newTestManager(t, store, clock)
	ctx := context.Background()

	s, err := m.GetOrCreateActiveSession(ctx, "u1", "")
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	m.UpdateLastActivity(ctx, s.ID)
	later := clock.Now()

	clock.Advance(-5 * time.Minute)
	m.UpdateLastActivity(ctx, s.ID)

	stored, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, stored.LastActivity.Equal(later))
}

func TestStoreFailure_DegradesToEphemeral(t *testing.T) {
	m := newTestManager(t, brokenStore{}, newFakeClock())
	ctx := context.Background()

	s, err := m.GetOrCreateActiveSession(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.True(t, s.Ephemeral)
	assert.NotEmpty(t, s.ID)

	// none of these may panic or error
	m.UpdateLastActivity(ctx, s.ID)
	m.RecordTurn(ctx, s, Turn{UserText: "oi", AssistantText: "olá"})
	c := m.GetConversationContext(ctx, s.ID, 5)
	assert.False(t, c.HasHistory())

	snap := m.Metrics()
	assert.Greater(t, snap.Total, 0)
	assert.NotEmpty(t, snap.RecentErrors)
}

func TestSetPreferences(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			m := newTestManager(t, factory(t), newFakeClock())
			ctx := context.Background()

			s, err := m.GetOrCreateActiveSession(ctx, "u1", "")
			require.NoError(t, err)
			require.NoError(t, m.SetPreferences(ctx, s.ID, map[string]any{"tom": "formal"}))

			c := m.GetConversationContext(ctx, s.ID, 5)
			assert.Equal(t, "formal", c.Preferences["tom"])
		})
	}
}

// hangingStore blocks FindActive and Get until the call's context ends.
type hangingStore struct{ brokenStore }

func (hangingStore) FindActive(ctx context.Context, _, _ string) (*Session, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingStore) Get(ctx context.Context, _ string) (*Session, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStoreCallsAreBoundedIndividually(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(hangingStore{}, Options{
		StoreTimeout: 30 * time.Millisecond,
		Now:          clock.Now,
		Logger:       zaptest.NewLogger(t),
	})

	// the caller's own deadline is far away
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	start := time.Now()
	s, err := m.GetOrCreateActiveSession(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.True(t, s.Ephemeral)

	c := m.GetConversationContext(ctx, "u1_c1_1", 5)
	assert.False(t, c.HasHistory())
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NoError(t, ctx.Err())
}

func TestSessionKeyComponentsCannotCollide(t *testing.T) {
	assert.NotEqual(t, sessionKey("a_b", ""), sessionKey("a", "b"))
	assert.NotEqual(t, sessionKey("a_b", "c"), sessionKey("a", "b_c"))
	assert.NotEqual(t, sessionKey("a~u", ""), sessionKey("a_", ""))
	assert.Equal(t, "5511999_c1", sessionKey("5511999", "c1"))

	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			m := newTestManager(t, factory(t), clock)
			ctx := context.Background()

			joined, err := m.GetOrCreateActiveSession(ctx, "a_b", "")
			require.NoError(t, err)
			split, err := m.GetOrCreateActiveSession(ctx, "a", "b")
			require.NoError(t, err)

			bucket := clock.Now().Unix() / 3600
			assert.Equal(t, fmt.Sprintf("a~ub_%d", bucket), joined.ID)
			assert.Equal(t, fmt.Sprintf("a_b_%d", bucket), split.ID)
			assert.Equal(t, "a_b", joined.UserID)
			assert.Equal(t, "a", split.UserID)
		})
	}
}
