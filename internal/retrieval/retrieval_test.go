package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticRetriever struct {
	name  string
	items []Item
	err   error
}

func (s staticRetriever) Name() string { return s.name }

func (s staticRetriever) Retrieve(context.Context, string) ([]Item, error) {
	return s.items, s.err
}

type panicRetriever struct{}

func (panicRetriever) Name() string { return "panic" }

func (panicRetriever) Retrieve(context.Context, string) ([]Item, error) {
	panic("boom")
}

type slowRetriever struct{}

func (slowRetriever) Name() string { return "slow" }

func (slowRetriever) Retrieve(ctx context.Context, _ string) ([]Item, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCombiner_DedupeAndSort(t *testing.T) {
	c := NewCombiner(time.Second, zaptest.NewLogger(t))
	a := staticRetriever{name: "a", items: []Item{
		{Content: "x", Score: 0.4, Source: "a"},
		{Content: "y", Score: 0.9, Source: "a"},
	}}
	b := staticRetriever{name: "b", items: []Item{
		{Content: "x", Score: 0.7, Source: "b"},
		{Content: "z", Score: 0.1, Source: "b"},
	}}

	got := c.Retrieve(context.Background(), "q", 0, a, b)
	require.Len(t, got, 3)
	assert.Equal(t, "y", got[0].Content)
	assert.Equal(t, Item{Content: "x", Score: 0.7, Source: "b"}, got[1])
	assert.Equal(t, "z", got[2].Content)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}

	top := c.Retrieve(context.Background(), "q", 2, a, b)
	require.Len(t, top, 2)
	assert.Equal(t, "y", top[0].Content)
}

func TestCombiner_AllRetrieversFail(t *testing.T) {
	c := NewCombiner(50*time.Millisecond, zaptest.NewLogger(t))
	got := c.Retrieve(context.Background(), "q", 5,
		staticRetriever{name: "err", err: errors.New("db down")},
		panicRetriever{},
		slowRetriever{},
	)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCombiner_PartialResults(t *testing.T) {
	c := NewCombiner(50*time.Millisecond, zaptest.NewLogger(t))
	got := c.Retrieve(context.Background(), "q", 5,
		panicRetriever{},
		staticRetriever{name: "ok", items: []Item{{Content: "kept", Score: 0.5}}},
		slowRetriever{},
	)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Content)
}

func TestCombiner_NoRetrievers(t *testing.T) {
	c := NewCombiner(0, nil)
	got := c.Retrieve(context.Background(), "q", 5)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFormatContext(t *testing.T) {
	assert.Empty(t, FormatContext(nil))
	out := FormatContext([]Item{{Content: "um"}, {Content: "dois"}})
	assert.Equal(t, "Base de Conhecimento:\n1. um\n2. dois\n", out)
}
