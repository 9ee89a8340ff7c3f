package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/agent-squad/internal/config"
	"github.com/suPer8Hu/agent-squad/internal/db"
	"github.com/suPer8Hu/agent-squad/internal/intent"
	"github.com/suPer8Hu/agent-squad/internal/orchestrator"
	"github.com/suPer8Hu/agent-squad/internal/retrieval"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(fmt.Sprintf("sqlite:file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb, Models()...))
	return gdb
}

// fakeOllama answers every chat with reply and remembers the last system prompt.
func fakeOllama(t *testing.T, reply string, lastSystem *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) > 0 && req.Messages[0].Role == "system" {
			lastSystem.Store(req.Messages[0].Content)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": reply},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(ollamaURL string) config.Config {
	return config.Config{
		AIProvider:         "ollama",
		ClassifierProvider: "openrouter", // no key: semantic layer off
		OllamaBaseURL:      ollamaURL,
		OllamaModel:        "llama3:latest",
		RetrieverTimeout:   time.Second,
		RetrievalTopK:      5,
		TurnTimeout:        5 * time.Second,
		CacheTTL:           time.Minute,
		CacheMaxEntries:    100,
	}
}

func TestNew_RunsTurnEndToEnd(t *testing.T) {
	var system atomic.Value
	srv := fakeOllama(t, "Receita registrada.", &system)
	gdb := openDB(t)
	require.NoError(t, gdb.Create(&retrieval.Document{
		AgentID: "leo",
		Title:   "politica-recebimentos",
		Content: "Para registrar uma receita de venda emita a nota fiscal no mesmo dia.",
	}).Error)

	a, err := New(context.Background(), testConfig(srv.URL), gdb, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	resp := a.Orchestrator.HandleMessage(context.Background(), orchestrator.Event{
		UserID: "5511999",
		Text:   "Preciso registrar uma receita de R$ 500,00 da venda de hoje",
	})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "leo", resp.Agent)
	assert.Equal(t, "Receita registrada.", resp.Message)
	require.NotNil(t, resp.Classification)
	assert.Equal(t, intent.Financeiro, resp.Classification.PrimaryIntent)
	assert.Contains(t, system.Load(), "nota fiscal")
}

func TestNew_UnknownAgentProviderFails(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.AIProvider = "watson"
	_, err := New(context.Background(), cfg, openDB(t), nil, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "unknown ai provider")
}

func TestProviders(t *testing.T) {
	reg := Providers(config.Config{OllamaModel: "llama3:latest"})
	assert.Equal(t, []string{"ark", "ollama", "openrouter"}, reg.Names())

	_, err := reg.Get(context.Background(), "openrouter", "")
	assert.Error(t, err)
	_, err = reg.Get(context.Background(), "ark", "")
	assert.Error(t, err)
	p, err := reg.Get(context.Background(), "OLLAMA", "")
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"dev", "prod", ""} {
		l, err := NewLogger(env)
		require.NoError(t, err, env)
		assert.NotNil(t, l)
	}
}
