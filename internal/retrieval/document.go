package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	"gorm.io/gorm"
)

const (
	maxQueryTerms = 8
	documentScan  = 50
	documentTopK  = 5
)

// Document is a knowledge snippet stored in the database. Ingestion happens
// elsewhere; this package only reads.
type Document struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	AgentID   string    `gorm:"type:varchar(32);not null;index" json:"agentId"`
	Title     string    `gorm:"type:varchar(255)" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Document) TableName() string { return "squad_knowledge_documents" }

func Models() []any { return []any{&Document{}} }

type DocumentRetriever struct {
	db      *gorm.DB
	agentID string
}

func NewDocumentRetriever(db *gorm.DB, agentID string) *DocumentRetriever {
	return &DocumentRetriever{db: db, agentID: agentID}
}

func (r *DocumentRetriever) Name() string { return "documents:" + r.agentID }

// Retrieve scores each candidate by the share of query terms it contains.
func (r *DocumentRetriever) Retrieve(ctx context.Context, query string) ([]Item, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	q := r.db.WithContext(ctx).Where("agent_id = ?", r.agentID)
	cond := r.db.Where("content LIKE ?", "%"+terms[0]+"%")
	for _, t := range terms[1:] {
		cond = cond.Or("content LIKE ?", "%"+t+"%")
	}
	var docs []Document
	if err := q.Where(cond).Order("id DESC").Limit(documentScan).Find(&docs).Error; err != nil {
		return nil, err
	}

	out := make([]Item, 0, len(docs))
	for _, d := range docs {
		text := strings.ToLower(d.Title + " " + d.Content)
		matched := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		src := "documents"
		if d.Title != "" {
			src = "documents:" + d.Title
		}
		out = append(out, Item{
			Content: d.Content,
			Score:   float64(matched) / float64(len(terms)),
			Source:  src,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > documentTopK {
		out = out[:documentTopK]
	}
	return out, nil
}

// queryTerms splits on anything that is not a letter or digit, so the terms
// are safe inside LIKE patterns.
func queryTerms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(words))
	var out []string
	for _, w := range words {
		if len([]rune(w)) < 3 {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == maxQueryTerms {
			break
		}
	}
	return out
}
