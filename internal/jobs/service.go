// Package jobs runs turns asynchronously: the API enqueues a job, a worker
// processes it through the orchestrator and stores the response.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/agent-squad/internal/common"
	"github.com/suPer8Hu/agent-squad/internal/orchestrator"
	"go.uber.org/zap"
)

type Publisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

// ReplyPublisher hands finished turns to the delivery side.
type ReplyPublisher interface {
	PublishReply(ctx context.Context, v any) error
}

type Handler interface {
	HandleMessage(ctx context.Context, ev orchestrator.Event) orchestrator.Response
}

type ReplyMessage struct {
	JobID    string                `json:"job_id"`
	UserID   string                `json:"user_id"`
	ChatID   string                `json:"chat_id,omitempty"`
	Response orchestrator.Response `json:"response"`
}

type Service struct {
	repo    *Repo
	pub     Publisher
	handler Handler
	replies ReplyPublisher
	log     *zap.Logger
}

// NewService wires the job pipeline. pub is needed to enqueue; handler and
// replies only on the worker side. replies may be nil.
func NewService(repo *Repo, pub Publisher, handler Handler, replies ReplyPublisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, pub: pub, handler: handler, replies: replies, log: logger.Named("jobs")}
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// Enqueue stores a queued job and publishes it. Repeating a call with the
// same idempotency key returns the first job without publishing again.
func (s *Service) Enqueue(ctx context.Context, ev orchestrator.Event, idempotencyKey string) (*Job, bool, error) {
	if s.pub == nil {
		return nil, false, fmt.Errorf("jobs: no publisher configured")
	}
	id, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}

	var key *string
	if k := strings.TrimSpace(idempotencyKey); k != "" {
		key = &k
	}
	job := &Job{
		ID:             id,
		UserID:         strings.TrimSpace(ev.UserID),
		ChatID:         strings.TrimSpace(ev.ChatID),
		Text:           ev.Text,
		History:        ev.ConversationHistory,
		IdempotencyKey: key,
		Status:         StatusQueued,
	}

	job, created, err := s.repo.CreateOrGetExisting(ctx, job)
	if err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	if !created {
		return job, false, nil
	}

	if err := s.pub.PublishJob(ctx, job.ID); err != nil {
		_ = s.repo.MarkFailed(context.WithoutCancel(ctx), job.ID, "enqueue failed: "+err.Error())
		return nil, false, fmt.Errorf("publish job: %w", err)
	}
	return job, true, nil
}

// Process runs one job. Jobs that are no longer queued are skipped, so a
// redelivered message is harmless.
func (s *Service) Process(ctx context.Context, jobID string) error {
	start := time.Now()
	started, err := s.repo.MarkRunning(ctx, jobID)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if !started {
		s.log.Info("job already taken, skipping", zap.String("job_id", jobID), zap.String("status", string(job.Status)))
		return nil
	}

	resp := s.handler.HandleMessage(ctx, job.Event())
	job.Status = StatusSucceeded
	job.Result = &resp
	if err := s.repo.MarkSucceeded(ctx, job); err != nil {
		// a redelivery would skip a running job, so settle it here
		s.Fail(context.WithoutCancel(ctx), jobID, err)
		return fmt.Errorf("mark succeeded: %w", err)
	}

	if s.replies != nil {
		msg := ReplyMessage{JobID: job.ID, UserID: job.UserID, ChatID: job.ChatID, Response: resp}
		if err := s.replies.PublishReply(ctx, msg); err != nil {
			// the result is stored and can still be polled
			s.log.Warn("publish reply failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}

	if cost := time.Since(start); cost > 2*time.Second {
		s.log.Info("slow job", zap.String("job_id", jobID), zap.Duration("total", cost))
	}
	return nil
}

// Fail records a job that could not be processed at all.
func (s *Service) Fail(ctx context.Context, jobID string, cause error) {
	if err := s.repo.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		s.log.Warn("mark failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
