// Package retrieval gathers knowledge snippets for an agent from several
// retrievers at once and merges them into one ranked list.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultTimeout = 3 * time.Second

type Item struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
}

type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, query string) ([]Item, error)
}

// Combiner fans a query out to retrievers. A failing, panicking or slow
// branch is logged and contributes nothing.
type Combiner struct {
	timeout time.Duration
	log     *zap.Logger
}

func NewCombiner(timeout time.Duration, logger *zap.Logger) *Combiner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Combiner{timeout: timeout, log: logger.Named("retrieval")}
}

// Retrieve returns at most topK items (all when topK <= 0), deduplicated by
// content keeping the highest score, ordered by score descending. It never
// returns nil.
func (c *Combiner) Retrieve(ctx context.Context, query string, topK int, retrievers ...Retriever) []Item {
	if len(retrievers) == 0 {
		return []Item{}
	}

	results := make([][]Item, len(retrievers))
	var g errgroup.Group
	for i, r := range retrievers {
		g.Go(func() error {
			items, err := c.runOne(ctx, r, query)
			if err != nil {
				c.log.Warn("retriever failed", zap.String("retriever", r.Name()), zap.Error(err))
				return nil
			}
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	return merge(results, topK)
}

func (c *Combiner) runOne(ctx context.Context, r Retriever, query string) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		items []Item
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- result{err: fmt.Errorf("retriever panic: %v", p)}
			}
		}()
		items, err := r.Retrieve(ctx, query)
		ch <- result{items: items, err: err}
	}()

	select {
	case res := <-ch:
		return res.items, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func merge(results [][]Item, topK int) []Item {
	out := []Item{}
	index := make(map[string]int)
	for _, items := range results {
		for _, it := range items {
			if strings.TrimSpace(it.Content) == "" {
				continue
			}
			if at, seen := index[it.Content]; seen {
				if it.Score > out[at].Score {
					out[at] = it
				}
				continue
			}
			index[it.Content] = len(out)
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// FormatContext renders items as a numbered knowledge block for a prompt.
func FormatContext(items []Item) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Base de Conhecimento:\n")
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, it.Content)
	}
	return b.String()
}
