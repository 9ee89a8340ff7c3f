package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	// a few minutes into an hour so +31m may or may not cross a bucket
	return &fakeClock{t: time.Date(2026, 3, 10, 14, 5, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(gormsqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(Models()...))
	return db
}

// storeFactories runs a test against every Store implementation.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"gorm":   func(t *testing.T) Store { return NewGormStore(openTestDB(t)) },
	}
}

var errStoreDown = errors.New("store down")

// brokenStore fails every call.
type brokenStore struct{}

func (brokenStore) FindActive(context.Context, string, string) (*Session, error) {
	return nil, errStoreDown
}
func (brokenStore) Get(context.Context, string) (*Session, error) { return nil, errStoreDown }
func (brokenStore) Create(context.Context, *Session) error        { return errStoreDown }
func (brokenStore) Touch(context.Context, string, time.Time) error {
	return errStoreDown
}
func (brokenStore) RecordActivity(context.Context, string, int64, string, time.Time) error {
	return errStoreDown
}
func (brokenStore) Deactivate(context.Context, string) (bool, error) { return false, errStoreDown }
func (brokenStore) DeactivateIdle(context.Context, time.Time) (int64, error) {
	return 0, errStoreDown
}
func (brokenStore) SetPreferences(context.Context, string, map[string]any) error {
	return errStoreDown
}
func (brokenStore) AppendMessages(context.Context, ...*Message) error { return errStoreDown }
func (brokenStore) RecentMessages(context.Context, string, int) ([]Message, error) {
	return nil, errStoreDown
}
