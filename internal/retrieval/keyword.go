package retrieval

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	keywordThreshold = 0.3
	keywordTopK      = 5
)

//go:embed knowledge.yaml
var defaultKnowledge []byte

type KnowledgeEntry struct {
	Key      string   `yaml:"key"`
	Content  string   `yaml:"content"`
	Keywords []string `yaml:"keywords"`
	Tags     []string `yaml:"tags"`
	Source   string   `yaml:"source"`
}

// Knowledge maps an agent id to its entries.
type Knowledge map[string][]KnowledgeEntry

// LoadKnowledge reads a YAML knowledge file, or the built-in one when path
// is empty.
func LoadKnowledge(path string) (Knowledge, error) {
	data := defaultKnowledge
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read knowledge file: %w", err)
		}
		data = b
	}
	var k Knowledge
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("parse knowledge: %w", err)
	}
	return k, nil
}

// KeywordRetriever scores a static knowledge base by term overlap.
type KeywordRetriever struct {
	name    string
	entries []KnowledgeEntry
}

func NewKeywordRetriever(agentID string, entries []KnowledgeEntry) *KeywordRetriever {
	return &KeywordRetriever{name: "keyword:" + agentID, entries: entries}
}

func (r *KeywordRetriever) Name() string { return r.name }

func (r *KeywordRetriever) Retrieve(ctx context.Context, query string) ([]Item, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	var out []Item
	for _, e := range r.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score := relevance(q, e)
		if score <= keywordThreshold {
			continue
		}
		src := e.Source
		if src == "" {
			src = "knowledge_base"
		}
		out = append(out, Item{Content: e.Content, Score: score, Source: src})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > keywordTopK {
		out = out[:keywordTopK]
	}
	return out, nil
}

// relevance: 0.5 when the whole query appears in the content, 0.1 per
// query word found in the content, 0.2 per query word that is a keyword,
// 0.3 per tag found in the query. Capped at 1.
func relevance(query string, e KnowledgeEntry) float64 {
	content := strings.ToLower(e.Content)
	score := 0.0
	if strings.Contains(content, query) {
		score += 0.5
	}
	for _, w := range strings.Fields(query) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w == "" {
			continue
		}
		if strings.Contains(content, w) {
			score += 0.1
		}
		for _, kw := range e.Keywords {
			if strings.EqualFold(kw, w) {
				score += 0.2
				break
			}
		}
	}
	for _, tag := range e.Tags {
		if strings.Contains(query, strings.ToLower(tag)) {
			score += 0.3
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}
