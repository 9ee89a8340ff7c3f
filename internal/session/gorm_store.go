package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindActive(ctx context.Context, userID, chatID string) (*Session, error) {
	var out Session
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND chat_id = ? AND is_active = ?", userID, chatID, true).
		Order("last_activity DESC").
		First(&out).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &out, nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*Session, error) {
	var out Session
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &out, nil
}

// Create inserts the session; if the id is already taken it reports
// ErrDuplicate instead of the driver error.
func (s *GormStore) Create(ctx context.Context, sess *Session) error {
	err := s.db.WithContext(ctx).Create(sess).Error
	if err == nil {
		return nil
	}
	if _, getErr := s.Get(ctx, sess.ID); getErr == nil {
		return ErrDuplicate
	}
	return err
}

func (s *GormStore) Touch(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND last_activity < ?", id, at).
		Updates(map[string]any{"last_activity": at, "updated_at": at}).Error
}

func (s *GormStore) RecordActivity(ctx context.Context, id string, delta int64, agent string, at time.Time) error {
	updates := map[string]any{
		"message_count": gorm.Expr("message_count + ?", delta),
		"last_activity": gorm.Expr("CASE WHEN last_activity < ? THEN ? ELSE last_activity END", at, at),
		"updated_at":    at,
	}
	if agent != "" {
		updates["current_agent"] = agent
	}
	res := s.db.WithContext(ctx).Model(&Session{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Deactivate(ctx context.Context, id string) (bool, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	res := s.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	return res.RowsAffected > 0, res.Error
}

func (s *GormStore) DeactivateIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Session{}).
		Where("is_active = ? AND last_activity < ?", true, cutoff).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

func (s *GormStore) SetPreferences(ctx context.Context, id string, prefs map[string]any) error {
	res := s.db.WithContext(ctx).Model(&Session{ID: id}).
		Select("preferences").
		Updates(&Session{Preferences: prefs})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) AppendMessages(ctx context.Context, msgs ...*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(msgs).Error
}

func (s *GormStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	var msgs []Message
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
