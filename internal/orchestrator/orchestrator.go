// Package orchestrator runs one conversational turn end to end: session,
// context, classification, routing and persistence.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/suPer8Hu/agent-squad/internal/agent"
	"github.com/suPer8Hu/agent-squad/internal/intent"
	"github.com/suPer8Hu/agent-squad/internal/session"
	"go.uber.org/zap"
)

const (
	DefaultTurnTimeout = 30 * time.Second
	persistTimeout     = 5 * time.Second
)

type Sessions interface {
	GetOrCreateActiveSession(ctx context.Context, userID, chatID string) (*session.Session, error)
	GetConversationContext(ctx context.Context, sessionID string, maxMessages int) session.Context
	RecordTurn(ctx context.Context, sess *session.Session, turn session.Turn)
}

type Classifier interface {
	Classify(ctx context.Context, message string, sc session.Context) intent.Classification
}

type Router interface {
	Route(ctx context.Context, req agent.Request) agent.Dispatch
}

type Event struct {
	UserID              string                   `json:"userId"`
	ChatID              string                   `json:"chatId,omitempty"`
	Text                string                   `json:"text"`
	ConversationHistory []session.ContextMessage `json:"conversationHistory,omitempty"`
}

type Metadata struct {
	SessionID  string    `json:"sessionId,omitempty"`
	UserID     string    `json:"userId"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	Route      string    `json:"route,omitempty"`
	Ephemeral  bool      `json:"ephemeral,omitempty"`
}

type Response struct {
	Success        bool                   `json:"success"`
	Message        string                 `json:"message"`
	Agent          string                 `json:"agent"`
	AgentName      string                 `json:"agentName"`
	Classification *intent.Classification `json:"classification,omitempty"`
	Priority       float64                `json:"priority"`
	ProcessingTime int64                  `json:"processingTime"`
	Metadata       Metadata               `json:"metadata"`
}

type Options struct {
	TurnTimeout   time.Duration
	ContextWindow int
	Now           func() time.Time
	Logger        *zap.Logger
}

type Orchestrator struct {
	sessions   Sessions
	classifier Classifier
	router     Router
	timeout    time.Duration
	window     int
	now        func() time.Time
	log        *zap.Logger
}

func New(sessions Sessions, cls Classifier, router Router, opts Options) *Orchestrator {
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = DefaultTurnTimeout
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = session.DefaultContextWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		sessions:   sessions,
		classifier: cls,
		router:     router,
		timeout:    opts.TurnTimeout,
		window:     opts.ContextWindow,
		now:        opts.Now,
		log:        opts.Logger.Named("orchestrator"),
	}
}

type turnResult struct {
	resp Response
	sess *session.Session
	turn *session.Turn
}

// HandleMessage always returns a Response with a non-empty message. When
// the turn deadline passes first the caller gets the apology and nothing
// is recorded.
func (o *Orchestrator) HandleMessage(ctx context.Context, ev Event) Response {
	start := o.now()
	ev.UserID = strings.TrimSpace(ev.UserID)
	ev.ChatID = strings.TrimSpace(ev.ChatID)
	if ev.UserID == "" {
		o.log.Error("event without user id")
		return o.lastResort(ev, start)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan turnResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				o.log.Error("turn panicked", zap.String("user_id", ev.UserID), zap.Any("panic", p))
				done <- turnResult{resp: o.lastResort(ev, start)}
			}
		}()
		done <- o.run(ctx, ev, start)
	}()

	select {
	case res := <-done:
		if ctx.Err() != nil {
			o.log.Error("turn finished after deadline", zap.String("user_id", ev.UserID))
			return o.lastResort(ev, start)
		}
		if res.turn != nil {
			o.persist(ctx, res.sess, *res.turn)
		}
		res.resp.ProcessingTime = o.now().Sub(start).Milliseconds()
		return res.resp
	case <-ctx.Done():
		o.log.Error("turn deadline exceeded",
			zap.String("user_id", ev.UserID), zap.Duration("timeout", o.timeout), zap.Error(ctx.Err()))
		return o.lastResort(ev, start)
	}
}

func (o *Orchestrator) run(ctx context.Context, ev Event, start time.Time) turnResult {
	sess, err := o.sessions.GetOrCreateActiveSession(ctx, ev.UserID, ev.ChatID)
	if err != nil {
		o.log.Error("session unavailable", zap.String("user_id", ev.UserID), zap.Error(err))
		return turnResult{resp: o.lastResort(ev, start)}
	}

	sc := session.Context{SessionID: sess.ID}
	if !sess.Ephemeral {
		sc = o.sessions.GetConversationContext(ctx, sess.ID, o.window)
	}
	if len(ev.ConversationHistory) > 0 {
		merged := make([]session.ContextMessage, 0, len(ev.ConversationHistory)+len(sc.RecentMessages))
		merged = append(merged, ev.ConversationHistory...)
		sc.RecentMessages = append(merged, sc.RecentMessages...)
	}

	cls := o.classifier.Classify(ctx, ev.Text, sc)
	d := o.router.Route(ctx, agent.Request{
		UserID:         ev.UserID,
		SessionID:      sess.ID,
		Message:        ev.Text,
		Classification: cls,
		History:        sc.RecentMessages,
		Preferences:    sc.Preferences,
	})

	msg := d.Reply.Message
	if strings.TrimSpace(msg) == "" {
		msg = agent.Apology
	}
	resp := Response{
		Success:        d.Reply.Success,
		Message:        msg,
		Agent:          string(d.Agent),
		AgentName:      d.AgentName,
		Classification: &cls,
		Priority:       d.Priority,
		Metadata: Metadata{
			SessionID:  sess.ID,
			UserID:     ev.UserID,
			Timestamp:  start.UTC(),
			Confidence: cls.Confidence,
			Route:      string(d.Route),
			Ephemeral:  sess.Ephemeral,
		},
	}

	turn := &session.Turn{
		UserText:      ev.Text,
		AssistantText: msg,
		Agent:         string(d.Agent),
		ReceivedAt:    start,
		Metadata: map[string]any{
			"intent":     string(cls.PrimaryIntent),
			"secondary":  cls.Secondary(),
			"urgency":    cls.Urgency.String(),
			"confidence": cls.Confidence,
			"source":     string(cls.Source),
			"success":    d.Reply.Success,
		},
	}
	return turnResult{resp: resp, sess: sess, turn: turn}
}

// persist is detached from caller cancellation.
func (o *Orchestrator) persist(ctx context.Context, sess *session.Session, turn session.Turn) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	o.sessions.RecordTurn(pctx, sess, turn)
}

func (o *Orchestrator) lastResort(ev Event, start time.Time) Response {
	return Response{
		Success:        false,
		Message:        agent.Apology,
		Agent:          string(agent.Geral),
		AgentName:      string(agent.Geral),
		ProcessingTime: o.now().Sub(start).Milliseconds(),
		Metadata: Metadata{
			UserID:    ev.UserID,
			Timestamp: start.UTC(),
		},
	}
}
