// Package redisstore is the Redis-backed shared tier of the classification
// cache, so several API and worker processes reuse each other's results.
package redisstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/agent-squad/internal/intent"
)

const classificationPrefix = "squad:cls:"

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// classificationKey hashes the normalized text so arbitrary user input
// never ends up in a key.
func classificationKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return classificationPrefix + hex.EncodeToString(sum[:])
}

func (s *Store) GetClassification(ctx context.Context, key string) (intent.Classification, bool, error) {
	b, err := s.rdb.Get(ctx, classificationKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return intent.Classification{}, false, nil
	}
	if err != nil {
		return intent.Classification{}, false, err
	}
	var cls intent.Classification
	if err := json.Unmarshal(b, &cls); err != nil {
		// a corrupt entry is a miss; drop it
		_ = s.rdb.Del(ctx, classificationKey(key)).Err()
		return intent.Classification{}, false, nil
	}
	return cls, true, nil
}

func (s *Store) SetClassification(ctx context.Context, key string, cls intent.Classification, ttl time.Duration) error {
	b, err := json.Marshal(cls)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, classificationKey(key), b, ttl).Err()
}

// ClearClassifications deletes every shared classification entry.
func (s *Store) ClearClassifications(ctx context.Context) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, classificationPrefix+"*", 500).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := s.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("del: %w", err)
			}
			deleted += n
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}
