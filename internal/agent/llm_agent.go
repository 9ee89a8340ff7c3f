package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/suPer8Hu/agent-squad/internal/ai"
	"github.com/suPer8Hu/agent-squad/internal/retrieval"
	"github.com/suPer8Hu/agent-squad/internal/session"
)

const (
	defaultHistoryLimit = 6
	defaultKnowledgeTop = 5
)

// LLMAgent answers with a persona prompt, retrieved knowledge and the
// recent conversation.
type LLMAgent struct {
	desc         Descriptor
	provider     ai.Provider
	combiner     *retrieval.Combiner
	retrievers   []retrieval.Retriever
	topK         int
	historyLimit int
}

type LLMAgentOption func(*LLMAgent)

func WithRetrievers(c *retrieval.Combiner, topK int, rs ...retrieval.Retriever) LLMAgentOption {
	return func(a *LLMAgent) {
		a.combiner = c
		a.retrievers = rs
		if topK > 0 {
			a.topK = topK
		}
	}
}

func WithHistoryLimit(n int) LLMAgentOption {
	return func(a *LLMAgent) {
		if n > 0 {
			a.historyLimit = n
		}
	}
}

func NewLLMAgent(desc Descriptor, provider ai.Provider, opts ...LLMAgentOption) *LLMAgent {
	a := &LLMAgent{
		desc:         desc,
		provider:     provider,
		topK:         defaultKnowledgeTop,
		historyLimit: defaultHistoryLimit,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *LLMAgent) ID() ID { return a.desc.ID }

func (a *LLMAgent) Descriptor() Descriptor { return a.desc }

func (a *LLMAgent) Handle(ctx context.Context, req Request) (Reply, error) {
	var knowledge []retrieval.Item
	if a.combiner != nil && len(a.retrievers) > 0 {
		knowledge = a.combiner.Retrieve(ctx, req.Message, a.topK, a.retrievers...)
	}

	out, err := a.provider.Chat(ctx, a.messages(req, knowledge))
	if err != nil {
		return Reply{}, fmt.Errorf("%s: %w", a.desc.ID, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return Reply{}, fmt.Errorf("%s: %w", a.desc.ID, ErrEmptyReply)
	}

	mode := "llm"
	if len(knowledge) > 0 {
		mode = "rag"
	}
	return Reply{
		Success: true,
		Message: out,
		Metadata: map[string]any{
			"agent":          string(a.desc.ID),
			"mode":           mode,
			"knowledgeItems": len(knowledge),
		},
	}, nil
}

func (a *LLMAgent) messages(req Request, knowledge []retrieval.Item) []ai.Message {
	var sys strings.Builder
	sys.WriteString(strings.TrimSpace(a.desc.Instructions))
	if a.desc.Tone != "" {
		fmt.Fprintf(&sys, "\n\nTom: %s", a.desc.Tone)
	}
	if len(req.Preferences) > 0 {
		sys.WriteString("\nPreferências do usuário:")
		for _, k := range sortedKeys(req.Preferences) {
			fmt.Fprintf(&sys, "\n- %s: %v", k, req.Preferences[k])
		}
	}
	sys.WriteString("\nResponda sempre em PT-BR.")
	if ctxText := retrieval.FormatContext(knowledge); ctxText != "" {
		sys.WriteString("\n\nUse, quando fizer sentido, o contexto abaixo.\n")
		sys.WriteString(ctxText)
	}

	msgs := []ai.Message{{Role: ai.RoleSystem, Content: sys.String()}}
	history := req.History
	if len(history) > a.historyLimit {
		history = history[len(history)-a.historyLimit:]
	}
	for _, h := range history {
		role := ai.RoleUser
		if h.Role == session.RoleAssistant {
			role = ai.RoleAssistant
		}
		msgs = append(msgs, ai.Message{Role: role, Content: h.Content})
	}
	return append(msgs, ai.Message{Role: ai.RoleUser, Content: req.Message})
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
