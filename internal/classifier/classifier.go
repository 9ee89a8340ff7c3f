// Package classifier turns a user message into an intent.Classification.
//
// Layers run in order and the first one that answers wins: empty input,
// keyword heuristics, the classification cache (in-process, then an
// optional shared tier), and finally an LLM. Classify never fails; any
// error in the semantic layer yields the deterministic fallback.
package classifier

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/agent-squad/internal/ai"
	"github.com/suPer8Hu/agent-squad/internal/intent"
	"github.com/suPer8Hu/agent-squad/internal/session"
	"go.uber.org/zap"
)

const (
	DefaultTimeout       = 8 * time.Second
	DefaultSharedTimeout = 500 * time.Millisecond
)

var errNoBackend = errors.New("classifier: no semantic backend")

// SharedCache is a cache tier shared between processes (Redis).
type SharedCache interface {
	GetClassification(ctx context.Context, key string) (intent.Classification, bool, error)
	SetClassification(ctx context.Context, key string, cls intent.Classification, ttl time.Duration) error
}

type Options struct {
	Timeout time.Duration
	Cache   *Cache
	Shared  SharedCache
	// SharedTimeout bounds each call to the shared tier.
	SharedTimeout time.Duration
	Logger        *zap.Logger
}

type Classifier struct {
	backend       ai.Provider
	timeout       time.Duration
	cache         *Cache
	shared        SharedCache
	sharedTimeout time.Duration
	log           *zap.Logger
	metrics       *Metrics
}

// New builds a classifier. backend may be nil, in which case messages the
// heuristics and cache cannot answer get the fallback classification.
func New(backend ai.Provider, opts Options) *Classifier {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Cache == nil {
		opts.Cache = NewCache(DefaultCacheTTL, DefaultCacheMaxEntries)
	}
	if opts.SharedTimeout <= 0 {
		opts.SharedTimeout = DefaultSharedTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Classifier{
		backend:       backend,
		timeout:       opts.Timeout,
		cache:         opts.Cache,
		shared:        opts.Shared,
		sharedTimeout: opts.SharedTimeout,
		log:           opts.Logger.Named("classifier"),
		metrics:       newMetrics(),
	}
}

func (c *Classifier) Cache() *Cache { return c.cache }

func (c *Classifier) Metrics() MetricsSnapshot { return c.metrics.Snapshot() }

func (c *Classifier) Classify(ctx context.Context, message string, sc session.Context) intent.Classification {
	start := time.Now()
	cls := c.classify(ctx, message, sc)
	if sc.HasHistory() {
		cls.ConversationContext = intent.Continuidade
	} else {
		cls.ConversationContext = intent.Inicial
	}
	cls.Confidence = intent.ClampConfidence(cls.Confidence)
	c.metrics.record(cls, time.Since(start))
	return cls
}

func (c *Classifier) classify(ctx context.Context, message string, sc session.Context) intent.Classification {
	if !meaningful(message) {
		return empty("mensagem vazia")
	}

	text := normalize(message)
	if h, ok := matchDomain(text); ok {
		return intent.Classification{
			PrimaryIntent:   h.intent,
			SecondaryIntent: map[intent.Intent]string{h.intent: h.secondary},
			Urgency:         detectUrgency(text),
			Confidence:      heuristicConfidence(h.hits),
			Reasoning:       "classificação heurística por palavras-chave",
			Source:          intent.SourceHeuristic,
			HeuristicRoute:  true,
		}
	}

	if gibberish(text) {
		return empty("mensagem sem palavras reconhecíveis")
	}

	if cls, ok := c.lookup(ctx, text); ok {
		cls.Source = intent.SourceCache
		return cls
	}

	cls, err := c.semantic(ctx, message, sc)
	if err != nil {
		c.log.Warn("semantic classification failed, using fallback", zap.Error(err))
		return Fallback()
	}
	cls.Source = intent.SourceSemantic
	c.store(ctx, text, cls)
	return cls
}

func empty(reason string) intent.Classification {
	return intent.Classification{
		PrimaryIntent:   intent.Geral,
		SecondaryIntent: map[intent.Intent]string{intent.Geral: intent.TagOrientacaoGeral},
		Urgency:         intent.Baixa,
		Confidence:      0.5,
		Reasoning:       reason,
		Source:          intent.SourceEmpty,
	}
}

func (c *Classifier) lookup(ctx context.Context, key string) (intent.Classification, bool) {
	if cls, ok := c.cache.Get(key); ok {
		return cls, true
	}
	if c.shared == nil {
		return intent.Classification{}, false
	}
	sctx, cancel := context.WithTimeout(ctx, c.sharedTimeout)
	defer cancel()
	cls, ok, err := c.shared.GetClassification(sctx, key)
	if err != nil {
		c.log.Warn("shared cache get failed", zap.Error(err))
		return intent.Classification{}, false
	}
	if ok {
		c.cache.Set(key, cls)
	}
	return cls, ok
}

func (c *Classifier) store(ctx context.Context, key string, cls intent.Classification) {
	c.cache.Set(key, cls)
	if c.shared == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, c.sharedTimeout)
	defer cancel()
	if err := c.shared.SetClassification(sctx, key, cls, c.cache.TTL()); err != nil {
		c.log.Warn("shared cache set failed", zap.Error(err))
	}
}

func (c *Classifier) semantic(ctx context.Context, message string, sc session.Context) (intent.Classification, error) {
	if c.backend == nil {
		return intent.Classification{}, errNoBackend
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.backend.Chat(ctx, buildPrompt(message, sc))
	if err != nil {
		return intent.Classification{}, err
	}
	return parseModelOutput(out)
}

// Fallback is the classification used when the semantic layer fails.
func Fallback() intent.Classification {
	return intent.Classification{
		PrimaryIntent:   intent.Geral,
		SecondaryIntent: map[intent.Intent]string{intent.Geral: intent.TagOutro},
		Urgency:         intent.Media,
		Confidence:      0.5,
		Reasoning:       "fallback",
		Source:          intent.SourceFallback,
	}
}

// Priority orders work by urgency first, then confidence.
func Priority(cls intent.Classification) float64 {
	return float64(cls.Urgency.Rank()) + intent.ClampConfidence(cls.Confidence)
}
