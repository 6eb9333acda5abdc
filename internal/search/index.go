package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"researchtools/internal/framework"
)

const (
	collectionName = "framework_sessions"
	maxContentLen  = 8000
	defaultLimit   = 10
	maxLimit       = 50
)

// Hit is one search result
type Hit struct {
	SessionID     string  `json:"session_id"`
	Title         string  `json:"title"`
	FrameworkType string  `json:"framework_type"`
	Status        string  `json:"status"`
	Similarity    float32 `json:"similarity"`
	Snippet       string  `json:"snippet"`
}

// Index is a semantic index over framework sessions backed by chromem-go.
// It implements framework.Observer so saved sessions are indexed as they change.
type Index struct {
	db     *chromem.DB
	coll   *chromem.Collection
	logger *zap.Logger
	mu     sync.RWMutex
}

// NewIndex opens the index. An empty path keeps it in memory.
func NewIndex(path string, embed chromem.EmbeddingFunc, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else if db, err = chromem.NewPersistentDB(path, false); err != nil {
		return nil, fmt.Errorf("opening search index at %s: %w", path, err)
	}

	coll, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("creating search collection: %w", err)
	}
	return &Index{db: db, coll: coll, logger: logger.Named("search")}, nil
}

// SessionSaved indexes or re-indexes s
func (ix *Index) SessionSaved(ctx context.Context, s *framework.Session) {
	if err := ix.Upsert(ctx, s); err != nil {
		ix.logger.Warn("indexing session failed", zap.String("session_id", s.ID), zap.Error(err))
	}
}

// SessionDeleted drops a session from the index
func (ix *Index) SessionDeleted(ctx context.Context, _, id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.coll.Delete(ctx, nil, nil, id); err != nil {
		ix.logger.Warn("removing session from index failed", zap.String("session_id", id), zap.Error(err))
	}
}

// Upsert stores the searchable text of s
func (ix *Index) Upsert(ctx context.Context, s *framework.Session) error {
	doc := chromem.Document{
		ID:      s.ID,
		Content: SessionText(s),
		Metadata: map[string]string{
			"user_id":        s.UserID,
			"title":          s.Title,
			"framework_type": string(s.Type),
			"status":         string(s.Status),
		},
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.coll.AddDocument(ctx, doc)
}

// Search returns the user's sessions most similar to query. frameworkType
// narrows the search when set.
func (ix *Index) Search(ctx context.Context, userID, query, frameworkType string, limit int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	where := map[string]string{"user_id": userID}
	if frameworkType != "" {
		where["framework_type"] = frameworkType
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if n := ix.coll.Count(); n == 0 {
		return []Hit{}, nil
	} else if limit > n {
		limit = n
	}

	results, err := ix.coll.Query(ctx, query, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying search index: %w", err)
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			SessionID:     r.ID,
			Title:         r.Metadata["title"],
			FrameworkType: r.Metadata["framework_type"],
			Status:        r.Metadata["status"],
			Similarity:    r.Similarity,
			Snippet:       snippet(r.Content, 200),
		})
	}
	return hits, nil
}

// Count returns the number of indexed sessions
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.coll.Count()
}

// SessionText is the title, description, tags and every string in the
// session data, one per line.
func SessionText(s *framework.Session) string {
	parts := []string{s.Title}
	if s.Description != "" {
		parts = append(parts, s.Description)
	}
	if len(s.Tags) > 0 {
		parts = append(parts, strings.Join(s.Tags, " "))
	}
	if s.Data != nil {
		if raw, err := json.Marshal(s.Data); err == nil {
			var v any
			if json.Unmarshal(raw, &v) == nil {
				parts = collectStrings(v, parts)
			}
		}
	}
	text := strings.Join(parts, "\n")
	if r := []rune(text); len(r) > maxContentLen {
		text = string(r[:maxContentLen])
	}
	return text
}

func collectStrings(v any, out []string) []string {
	switch t := v.(type) {
	case string:
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	case []any:
		for _, e := range t {
			out = collectStrings(e, out)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = collectStrings(t[k], out)
		}
	}
	return out
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
