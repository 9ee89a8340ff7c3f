package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/agent-squad/internal/agent"
	"github.com/suPer8Hu/agent-squad/internal/classifier"
	"github.com/suPer8Hu/agent-squad/internal/common"
	"github.com/suPer8Hu/agent-squad/internal/jobs"
	"github.com/suPer8Hu/agent-squad/internal/orchestrator"
	"github.com/suPer8Hu/agent-squad/internal/session"
	"go.uber.org/zap"
)

// SharedCacheAdmin is the admin side of the shared classification tier.
type SharedCacheAdmin interface {
	ClearClassifications(ctx context.Context) (int64, error)
}

type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Sessions     *session.Manager
	Classifier   *classifier.Classifier
	Agents       *agent.Registry
	// Jobs is nil when async processing is disabled.
	Jobs          *jobs.Service
	SharedCache   SharedCacheAdmin
	ContextWindow int
	// ServiceSubject may act for the userId named in the request.
	ServiceSubject string
	Logger         *zap.Logger
}

type Handler struct {
	orch       *orchestrator.Orchestrator
	sessions   *session.Manager
	classifier *classifier.Classifier
	agents     *agent.Registry
	jobs       *jobs.Service
	shared     SharedCacheAdmin
	window     int
	service    string
	log        *zap.Logger
}

func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.ContextWindow <= 0 {
		d.ContextWindow = session.DefaultContextWindow
	}
	return &Handler{
		orch:       d.Orchestrator,
		sessions:   d.Sessions,
		classifier: d.Classifier,
		agents:     d.Agents,
		jobs:       d.Jobs,
		shared:     d.SharedCache,
		window:     d.ContextWindow,
		service:    d.ServiceSubject,
		log:        d.Logger.Named("http"),
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}
