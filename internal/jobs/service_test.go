package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/agent-squad/internal/intent"
	"github.com/suPer8Hu/agent-squad/internal/orchestrator"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(gormsqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(Models()...))
	return db
}

type fakePublisher struct {
	mu      sync.Mutex
	jobs    []string
	replies []any
	err     error
}

func (p *fakePublisher) PublishJob(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, id)
	return nil
}

func (p *fakePublisher) PublishReply(_ context.Context, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, v)
	return nil
}

type fakeHandler struct{ calls int }

func (h *fakeHandler) HandleMessage(_ context.Context, ev orchestrator.Event) orchestrator.Response {
	h.calls++
	cls := intent.Classification{PrimaryIntent: intent.Geral, Urgency: intent.Alta, Confidence: 0.7}
	return orchestrator.Response{
		Success:        true,
		Message:        "eco: " + ev.Text,
		Agent:          "geral",
		Classification: &cls,
		Metadata:       orchestrator.Metadata{UserID: ev.UserID},
	}
}

func TestEnqueueAndProcess(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	pub := &fakePublisher{}
	h := &fakeHandler{}
	svc := NewService(repo, pub, h, pub, zaptest.NewLogger(t))
	ctx := context.Background()

	job, created, err := svc.Enqueue(ctx, orchestrator.Event{UserID: "u1", ChatID: "c1", Text: "oi"}, "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, job.ID, 26)
	assert.Equal(t, []string{job.ID}, pub.jobs)

	require.NoError(t, svc.Process(ctx, job.ID))
	got, err := svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "eco: oi", got.Result.Message)
	assert.Equal(t, intent.Alta, got.Result.Classification.Urgency)
	require.Len(t, pub.replies, 1)
	assert.Equal(t, job.ID, pub.replies[0].(ReplyMessage).JobID)

	// redelivery is a no-op
	require.NoError(t, svc.Process(ctx, job.ID))
	assert.Equal(t, 1, h.calls)
}

func TestEnqueue_Idempotent(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	pub := &fakePublisher{}
	svc := NewService(repo, pub, nil, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	first, created, err := svc.Enqueue(ctx, orchestrator.Event{UserID: "u1", Text: "oi"}, "key-1")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := svc.Enqueue(ctx, orchestrator.Event{UserID: "u1", Text: "oi"}, "key-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, pub.jobs, 1)

	other, created, err := svc.Enqueue(ctx, orchestrator.Event{UserID: "u2", Text: "oi"}, "key-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestEnqueue_PublishFailureMarksJobFailed(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	svc := NewService(repo, &fakePublisher{err: errors.New("broker down")}, nil, nil, zaptest.NewLogger(t))

	_, _, err := svc.Enqueue(context.Background(), orchestrator.Event{UserID: "u1", Text: "oi"}, "")
	require.Error(t, err)

	var jobs []Job
	require.NoError(t, db.Find(&jobs).Error)
	require.Len(t, jobs, 1)
	assert.Equal(t, StatusFailed, jobs[0].Status)
	require.NotNil(t, jobs[0].Error)
	assert.Contains(t, *jobs[0].Error, "broker down")
}

func TestProcess_UnknownJob(t *testing.T) {
	svc := NewService(NewRepo(openTestDB(t)), nil, &fakeHandler{}, nil, zaptest.NewLogger(t))
	err := svc.Process(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}
