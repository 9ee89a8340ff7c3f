// Package session owns conversation sessions and their messages.
//
// At most one session is active per (userId, chatId). A session is resumed
// while its last activity is within the idle timeout, regardless of the
// hour bucket embedded in its id, so a conversation that crosses a bucket
// boundary keeps its session. Store failures never surface to callers: the
// manager hands out an ephemeral session for the turn instead.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/agent-squad/internal/common"
	"go.uber.org/zap"
)

const (
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultBucket        = time.Hour
	DefaultContextWindow = 10
	DefaultAgent         = "geral"
	DefaultStoreTimeout  = 2 * time.Second
)

type Options struct {
	IdleTimeout time.Duration
	Bucket      time.Duration
	// StoreTimeout bounds each individual store call.
	StoreTimeout time.Duration
	Now          func() time.Time
	Logger       *zap.Logger
}

type Manager struct {
	store   Store
	idle    time.Duration
	bucket  time.Duration
	now     func() time.Time
	log     *zap.Logger
	locks   *keyLocks
	metrics *Metrics
}

func NewManager(store Store, opts Options) *Manager {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Bucket < time.Second {
		opts.Bucket = DefaultBucket
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		store:   boundedStore{Store: store, timeout: opts.StoreTimeout},
		idle:    opts.IdleTimeout,
		bucket:  opts.Bucket,
		now:     opts.Now,
		log:     opts.Logger.Named("session"),
		locks:   newKeyLocks(),
		metrics: &Metrics{},
	}
}

func (m *Manager) IdleTimeout() time.Duration { return m.idle }

func (m *Manager) Metrics() MetricsSnapshot { return m.metrics.Snapshot() }

func (m *Manager) clock() time.Time { return m.now().UTC() }

// GetOrCreateActiveSession returns the live session for (userID, chatID),
// creating one when none is active or the last one went idle.
func (m *Manager) GetOrCreateActiveSession(ctx context.Context, userID, chatID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	chatID = strings.TrimSpace(chatID)
	if userID == "" {
		return nil, ErrInvalidUser
	}

	key := sessionKey(userID, chatID)
	unlock := m.locks.Lock("key:" + key)
	defer unlock()

	start := time.Now()
	now := m.clock()

	existing, err := m.store.FindActive(ctx, userID, chatID)
	switch {
	case err == nil && now.Sub(existing.LastActivity) <= m.idle:
		m.touch(ctx, existing.ID, now)
		if existing.LastActivity.Before(now) {
			existing.LastActivity = now
		}
		m.metrics.record("resume", existing.ID, time.Since(start), nil)
		return existing, nil

	case err == nil:
		// idle but not swept yet
		if _, derr := m.store.Deactivate(ctx, existing.ID); derr != nil {
			m.log.Warn("deactivate idle session failed", zap.String("session_id", existing.ID), zap.Error(derr))
		}

	case errors.Is(err, ErrNotFound):

	default:
		m.log.Warn("session lookup failed, continuing without persistence",
			zap.String("user_id", userID), zap.String("chat_id", chatID), zap.Error(err))
		m.metrics.record("create", "", time.Since(start), err)
		return m.ephemeral(key, userID, chatID, now), nil
	}

	sess, err := m.create(ctx, key, userID, chatID, now)
	m.metrics.record("create", idOf(sess), time.Since(start), err)
	if err != nil {
		m.log.Warn("session create failed, continuing without persistence",
			zap.String("user_id", userID), zap.String("chat_id", chatID), zap.Error(err))
		return m.ephemeral(key, userID, chatID, now), nil
	}
	m.log.Debug("session created", zap.String("session_id", sess.ID))
	return sess, nil
}

func (m *Manager) create(ctx context.Context, key, userID, chatID string, now time.Time) (*Session, error) {
	sess := &Session{
		ID:           fmt.Sprintf("%s_%d", key, m.bucketOf(now)),
		UserID:       userID,
		ChatID:       chatID,
		CurrentAgent: DefaultAgent,
		LastActivity: now,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := m.store.Create(ctx, sess)
	if !errors.Is(err, ErrDuplicate) {
		return sess, err
	}

	// the bucket id belongs to a session closed earlier in this bucket
	suffix, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	sess.ID = sess.ID + "_" + strings.ToLower(suffix)
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (m *Manager) ephemeral(key, userID, chatID string, now time.Time) *Session {
	suffix, err := common.NewULID()
	if err != nil {
		suffix = fmt.Sprintf("%d", now.UnixNano())
	}
	return &Session{
		ID:           fmt.Sprintf("%s_%d_tmp%s", key, m.bucketOf(now), strings.ToLower(suffix)),
		UserID:       userID,
		ChatID:       chatID,
		CurrentAgent: DefaultAgent,
		LastActivity: now,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
		Ephemeral:    true,
	}
}

func (m *Manager) bucketOf(t time.Time) int64 {
	return t.Unix() / int64(m.bucket/time.Second)
}

// UpdateLastActivity is best effort: failures are logged, never returned.
func (m *Manager) UpdateLastActivity(ctx context.Context, sessionID string) {
	m.touch(ctx, sessionID, m.clock())
}

func (m *Manager) touch(ctx context.Context, sessionID string, at time.Time) {
	start := time.Now()
	err := m.store.Touch(ctx, sessionID, at)
	m.metrics.record("update", sessionID, time.Since(start), err)
	if err != nil {
		m.log.Warn("update last activity failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Session loads a stored session by id.
func (m *Manager) Session(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return sess, nil
}

// CloseSession marks the session inactive, e.g. on a user reset.
func (m *Manager) CloseSession(ctx context.Context, sessionID string) error {
	unlock := m.locks.Lock("sid:" + sessionID)
	defer unlock()

	start := time.Now()
	_, err := m.store.Deactivate(ctx, sessionID)
	m.metrics.record("close", sessionID, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("close session %s: %w", sessionID, err)
	}
	return nil
}

// CleanupOldSessions deactivates every active session idle for longer than
// the timeout and returns how many were closed.
func (m *Manager) CleanupOldSessions(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := m.clock().Add(-m.idle)
	n, err := m.store.DeactivateIdle(ctx, cutoff)
	m.metrics.record("cleanup", "", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	if n > 0 {
		m.log.Info("idle sessions closed", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// RunCleanup sweeps idle sessions every interval until ctx is done.
func (m *Manager) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.CleanupOldSessions(ctx); err != nil {
				m.log.Warn("session sweep failed", zap.Error(err))
			}
		}
	}
}

// GetConversationContext returns the last maxMessages messages in
// chronological order plus the stored topic and preferences.
func (m *Manager) GetConversationContext(ctx context.Context, sessionID string, maxMessages int) Context {
	if maxMessages <= 0 {
		maxMessages = DefaultContextWindow
	}
	out := Context{SessionID: sessionID}

	start := time.Now()
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.log.Warn("load session failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		m.metrics.record("context", sessionID, time.Since(start), err)
		return out
	}
	out.CurrentTopic = sess.CurrentAgent
	out.Preferences = sess.Preferences

	recent, err := m.store.RecentMessages(ctx, sessionID, maxMessages)
	m.metrics.record("context", sessionID, time.Since(start), err)
	if err != nil {
		m.log.Warn("load recent messages failed", zap.String("session_id", sessionID), zap.Error(err))
		return out
	}

	out.RecentMessages = make([]ContextMessage, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		msg := recent[i]
		out.RecentMessages = append(out.RecentMessages, ContextMessage{
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: msg.CreatedAt,
		})
	}
	return out
}

// RecordTurn appends the user and assistant messages and advances the
// session's counters. Mutations for one session are serialized.
func (m *Manager) RecordTurn(ctx context.Context, sess *Session, turn Turn) {
	if sess == nil || sess.Ephemeral {
		return
	}

	unlock := m.locks.Lock("sid:" + sess.ID)
	defer unlock()

	start := time.Now()
	now := m.clock()
	received := turn.ReceivedAt.UTC()
	if turn.ReceivedAt.IsZero() || received.After(now) {
		received = now
	}

	msgs := []*Message{
		{SessionID: sess.ID, Role: RoleUser, Content: turn.UserText, CreatedAt: received},
	}
	if turn.AssistantText != "" {
		msgs = append(msgs, &Message{
			SessionID: sess.ID,
			Role:      RoleAssistant,
			Content:   turn.AssistantText,
			Metadata:  turn.Metadata,
			CreatedAt: now,
		})
	}

	err := m.store.AppendMessages(ctx, msgs...)
	if err == nil {
		err = m.store.RecordActivity(ctx, sess.ID, int64(len(msgs)), turn.Agent, now)
	}
	m.metrics.record("record", sess.ID, time.Since(start), err)
	if err != nil {
		m.log.Warn("record turn failed", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}

	sess.MessageCount += int64(len(msgs))
	if sess.LastActivity.Before(now) {
		sess.LastActivity = now
	}
	if turn.Agent != "" {
		sess.CurrentAgent = turn.Agent
	}
}

func (m *Manager) SetPreferences(ctx context.Context, sessionID string, prefs map[string]any) error {
	unlock := m.locks.Lock("sid:" + sessionID)
	defer unlock()
	if err := m.store.SetPreferences(ctx, sessionID, prefs); err != nil {
		return fmt.Errorf("set preferences %s: %w", sessionID, err)
	}
	return nil
}

var keyEscaper = strings.NewReplacer("~", "~~", "_", "~u")

// sessionKey joins the escaped components with "_", so no component can
// smuggle a separator into the key.
func sessionKey(userID, chatID string) string {
	if chatID == "" {
		return keyEscaper.Replace(userID)
	}
	return keyEscaper.Replace(userID) + "_" + keyEscaper.Replace(chatID)
}

func idOf(s *Session) string {
	if s == nil {
		return ""
	}
	return s.ID
}
