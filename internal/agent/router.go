package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/suPer8Hu/agent-squad/internal/classifier"
	"github.com/suPer8Hu/agent-squad/internal/intent"
	"go.uber.org/zap"
)

// Apology is the last-resort reply when no agent could answer.
const Apology = "Desculpe, ocorreu um erro ao processar sua mensagem. Tente novamente."

const heuristicMinConfidence = 0.6

// Route names the rule that selected the first agent.
type Route string

const (
	RouteHeuristic Route = "heuristic"
	RouteIntent    Route = "intent"
	RouteDefault   Route = "default"
)

type Dispatch struct {
	Agent     ID
	AgentName string
	Route     Route
	Reply     Reply
	Priority  float64
	Attempts  []ID
}

// Router picks an agent for a classified message and falls back to the
// general agent, then to Apology, when the chosen one fails.
type Router struct {
	registry *Registry
	log      *zap.Logger
}

func NewRouter(registry *Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{registry: registry, log: logger.Named("router")}
}

func (r *Router) Registry() *Registry { return r.registry }

// Select applies the routing rules in order: a confident heuristic match,
// the intent table, then the general agent.
func Select(cls intent.Classification) (ID, Route) {
	if cls.HeuristicRoute && cls.Confidence >= heuristicMinConfidence {
		if id, ok := ForIntent(cls.PrimaryIntent); ok {
			return id, RouteHeuristic
		}
	}
	if id, ok := ForIntent(cls.PrimaryIntent); ok {
		return id, RouteIntent
	}
	return Geral, RouteDefault
}

// Route never returns an empty message.
func (r *Router) Route(ctx context.Context, req Request) Dispatch {
	target, route := Select(req.Classification)
	d := Dispatch{Route: route, Priority: classifier.Priority(req.Classification)}

	reply, err := r.invoke(ctx, target, req)
	d.Attempts = append(d.Attempts, target)
	if err == nil {
		return r.done(d, target, reply)
	}
	r.log.Warn("agent failed",
		zap.String("agent", string(target)), zap.String("session_id", req.SessionID), zap.Error(err))

	if target != Geral && ctx.Err() == nil {
		reply, err = r.invoke(ctx, Geral, req)
		d.Attempts = append(d.Attempts, Geral)
		if err == nil {
			reply.Metadata = withMeta(reply.Metadata, "fallbackFrom", string(target))
			return r.done(d, Geral, reply)
		}
		r.log.Warn("general agent failed", zap.String("session_id", req.SessionID), zap.Error(err))
	}

	r.log.Error("no agent could answer, sending apology",
		zap.String("session_id", req.SessionID), zap.Stringer("attempts", idList(d.Attempts)))
	d.Agent = Geral
	d.AgentName = r.displayName(Geral)
	d.Reply = Reply{Success: false, Message: Apology, Metadata: map[string]any{"error": true}}
	return d
}

func (r *Router) done(d Dispatch, id ID, reply Reply) Dispatch {
	d.Agent = id
	d.AgentName = r.displayName(id)
	d.Reply = reply
	return d
}

// invoke runs one agent, turning panics, failures and blank replies into
// errors.
func (r *Router) invoke(ctx context.Context, id ID, req Request) (reply Reply, err error) {
	a, err := r.registry.Get(id)
	if err != nil {
		return Reply{}, err
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("agent %s panic: %v", id, p)
		}
	}()

	reply, err = a.Handle(ctx, req)
	if err != nil {
		return Reply{}, err
	}
	if !reply.Success {
		return Reply{}, fmt.Errorf("agent %s reported failure", id)
	}
	if strings.TrimSpace(reply.Message) == "" {
		return Reply{}, fmt.Errorf("agent %s: %w", id, ErrEmptyReply)
	}
	return reply, nil
}

func (r *Router) displayName(id ID) string {
	a, err := r.registry.Get(id)
	if err != nil || a.Descriptor().DisplayName == "" {
		return string(id)
	}
	return a.Descriptor().DisplayName
}

func withMeta(m map[string]any, k string, v any) map[string]any {
	if m == nil {
		m = make(map[string]any, 1)
	}
	m[k] = v
	return m
}

type idList []ID

func (l idList) String() string {
	parts := make([]string, len(l))
	for i, id := range l {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}
