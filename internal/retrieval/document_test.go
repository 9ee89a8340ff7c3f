package retrieval

import (
	"context"
	"fmt"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(gormsqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(Models()...))
	return db
}

func TestDocumentRetriever(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&[]Document{
		{AgentID: "leo", Title: "Impostos", Content: "O Simples Nacional unifica impostos para pequenas empresas."},
		{AgentID: "leo", Title: "Caixa", Content: "Separe o dinheiro pessoal do caixa da empresa."},
		{AgentID: "max", Title: "Impostos", Content: "Impostos sobre anúncios variam por plataforma."},
	}).Error)

	r := NewDocumentRetriever(db, "leo")
	items, err := r.Retrieve(context.Background(), "quais impostos minha empresa paga?")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "documents:Impostos", items[0].Source)
	assert.Greater(t, items[0].Score, items[1].Score)
	for _, it := range items {
		assert.NotContains(t, it.Content, "anúncios")
	}

	empty, err := r.Retrieve(context.Background(), "a o ?")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestQueryTerms(t *testing.T) {
	assert.Equal(t, []string{"fluxo", "caixa", "100"}, queryTerms("Fluxo de CAIXA: 100% fluxo"))
}
