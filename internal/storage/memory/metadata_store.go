package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
)

// MetadataStore upserts article rows into a map keyed by ID.
type MetadataStore struct {
	mu    sync.RWMutex
	order []string
	rows  map[string]harvest.Article
}

// NewMetadataStore constructs an empty MetadataStore.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{rows: make(map[string]harvest.Article)}
}

// UpsertArticles replaces rows with matching IDs and appends new ones.
func (s *MetadataStore) UpsertArticles(_ context.Context, articles []harvest.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range articles {
		if _, exists := s.rows[a.ID]; !exists {
			s.order = append(s.order, a.ID)
		}
		a.Content = ""
		s.rows[a.ID] = a
	}
	return nil
}

// Articles returns the stored rows in first-insert order.
func (s *MetadataStore) Articles() []harvest.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]harvest.Article, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rows[id])
	}
	return out
}

// Close is a no-op.
func (s *MetadataStore) Close() error { return nil }
