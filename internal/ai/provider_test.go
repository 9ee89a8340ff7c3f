package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaChatReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3:latest", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)

		_ = json.NewEncoder(w).Encode(ollamaChatResp{Message: Message{Role: RoleAssistant, Content: "olá"}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "")
	out, err := p.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "oi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "olá", out)
}

func TestOllamaProvider_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "x").Chat(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestOpenRouterProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "squad", r.Header.Get("X-Title"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"financeiro"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "key", "openrouter/auto", "", "squad")
	out, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "saldo"}})
	require.NoError(t, err)
	assert.Equal(t, "financeiro", out)
}

func TestOpenRouterProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenRouterProvider("", "", "m", "", "").Chat(context.Background(), nil)
	require.Error(t, err)
}

func TestToSchemaMessages_Roles(t *testing.T) {
	out := toSchemaMessages([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "b"},
		{Role: RoleAssistant, Content: "c"},
	})
	require.Len(t, out, 3)
	assert.EqualValues(t, "system", out[0].Role)
	assert.EqualValues(t, "user", out[1].Role)
	assert.EqualValues(t, "assistant", out[2].Role)
	assert.Equal(t, "c", out[2].Content)
}
