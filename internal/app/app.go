// Package app assembles the turn pipeline shared by the API server and the
// worker: providers, agents, retrieval, classification and sessions.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/agent-squad/internal/agent"
	"github.com/suPer8Hu/agent-squad/internal/ai"
	"github.com/suPer8Hu/agent-squad/internal/classifier"
	"github.com/suPer8Hu/agent-squad/internal/config"
	"github.com/suPer8Hu/agent-squad/internal/jobs"
	"github.com/suPer8Hu/agent-squad/internal/orchestrator"
	"github.com/suPer8Hu/agent-squad/internal/retrieval"
	"github.com/suPer8Hu/agent-squad/internal/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const cacheSweepInterval = time.Minute

type App struct {
	Sessions     *session.Manager
	Classifier   *classifier.Classifier
	Agents       *agent.Registry
	Orchestrator *orchestrator.Orchestrator

	cfg config.Config
}

// Models lists every table the pipeline and the job queue use.
func Models() []any {
	var out []any
	out = append(out, session.Models()...)
	out = append(out, jobs.Models()...)
	out = append(out, retrieval.Models()...)
	return out
}

// Providers registers the supported LLM backends; an empty model picks the
// backend's configured default.
func Providers(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("ollama", func(_ context.Context, model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, orDefault(model, cfg.OllamaModel)), nil
	})
	reg.Register("openrouter", func(_ context.Context, model string) (ai.Provider, error) {
		if cfg.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("openrouter: OPENROUTER_API_KEY is not set")
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey,
			orDefault(model, cfg.OpenRouterModel), cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	reg.Register("ark", func(ctx context.Context, model string) (ai.Provider, error) {
		p, err := ai.NewArkProvider(ctx, cfg.ArkAPIKey, cfg.ArkBaseURL, orDefault(model, cfg.ArkModel))
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	return reg
}

// New builds the pipeline. shared may be nil. A classifier backend that
// cannot be built leaves classification on heuristics and fallback; an
// agent backend that cannot be built is fatal.
func New(ctx context.Context, cfg config.Config, gdb *gorm.DB, shared classifier.SharedCache, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	providers := Providers(cfg)

	agentLLM, err := providers.Get(ctx, cfg.AIProvider, cfg.AIModel)
	if err != nil {
		return nil, fmt.Errorf("agent provider: %w", err)
	}
	classifierLLM, err := providers.Get(ctx, cfg.ClassifierProvider, cfg.ClassifierModel)
	if err != nil {
		logger.Warn("classifier provider unavailable, semantic layer disabled",
			zap.String("provider", cfg.ClassifierProvider), zap.Error(err))
	}

	personas, err := agent.LoadDescriptors(cfg.AgentsFile)
	if err != nil {
		return nil, err
	}
	knowledge, err := retrieval.LoadKnowledge(cfg.KnowledgeFile)
	if err != nil {
		return nil, err
	}

	combiner := retrieval.NewCombiner(cfg.RetrieverTimeout, logger)
	agents := make([]agent.SpecialistAgent, 0, len(agent.IDs))
	for _, id := range agent.IDs {
		agents = append(agents, agent.NewLLMAgent(personas[id], agentLLM,
			agent.WithRetrievers(combiner, cfg.RetrievalTopK,
				retrieval.NewKeywordRetriever(string(id), knowledge[string(id)]),
				retrieval.NewDocumentRetriever(gdb, string(id)),
			),
		))
	}
	registry, err := agent.NewRegistry(agents...)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(session.NewGormStore(gdb), session.Options{
		IdleTimeout:  cfg.SessionIdleTimeout,
		Bucket:       cfg.SessionBucket,
		StoreTimeout: cfg.SessionStoreTimeout,
		Logger:       logger,
	})
	cls := classifier.New(classifierLLM, classifier.Options{
		Timeout:       cfg.ClassifierTimeout,
		Cache:         classifier.NewCache(cfg.CacheTTL, cfg.CacheMaxEntries),
		Shared:        shared,
		SharedTimeout: cfg.SharedCacheTimeout,
		Logger:        logger,
	})
	orch := orchestrator.New(sessions, cls, agent.NewRouter(registry, logger), orchestrator.Options{
		TurnTimeout:   cfg.TurnTimeout,
		ContextWindow: cfg.ChatContextWindowSize,
		Logger:        logger,
	})

	logger.Info("pipeline ready",
		zap.String("agent_provider", cfg.AIProvider),
		zap.Bool("semantic_classifier", classifierLLM != nil),
		zap.Bool("shared_cache", shared != nil))

	return &App{
		Sessions:     sessions,
		Classifier:   cls,
		Agents:       registry,
		Orchestrator: orch,
		cfg:          cfg,
	}, nil
}

// RunBackground sweeps idle sessions and expired cache entries until ctx
// is done.
func (a *App) RunBackground(ctx context.Context) {
	go a.Sessions.RunCleanup(ctx, a.cfg.SessionCleanupInterval)
	go a.Classifier.Cache().Run(ctx, cacheSweepInterval)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
