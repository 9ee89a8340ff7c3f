package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetIsCaseInsensitive(t *testing.T) {
	reg := NewRegistry()
	var gotModel string
	reg.Register(" Fake ", func(ctx context.Context, model string) (Provider, error) {
		gotModel = model
		return ProviderFunc(func(ctx context.Context, messages []Message) (string, error) {
			return "pong", nil
		}), nil
	})

	p, err := reg.Get(context.Background(), "FAKE", "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", gotModel)

	out, err := p.Chat(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
	assert.Equal(t, []string{"fake"}, reg.Names())
}

func TestRegistry_Unknown(t *testing.T) {
	_, err := NewRegistry().Get(context.Background(), "nope", "")
	require.Error(t, err)
}

func TestRegistry_SharesBuiltProviders(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	reg.Register("fake", func(ctx context.Context, model string) (Provider, error) {
		calls++
		if model == "broken" {
			return nil, errors.New("no such model")
		}
		return ProviderFunc(func(ctx context.Context, messages []Message) (string, error) {
			return model, nil
		}), nil
	})
	ctx := context.Background()

	_, err := reg.Get(ctx, "fake", "m1")
	require.NoError(t, err)
	_, err = reg.Get(ctx, "FAKE", " m1 ")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = reg.Get(ctx, "fake", "m2")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	_, err = reg.Get(ctx, "fake", "broken")
	require.Error(t, err)
	_, err = reg.Get(ctx, "fake", "broken")
	require.Error(t, err)
	assert.Equal(t, 4, calls)
}
