package harvest

import (
	"context"
	"io"
)

// Searcher runs one site-scoped query and returns stubs in rank order.
type Searcher interface {
	Search(ctx context.Context, topic string, domain Domain) []Article
}

// MetadataStore upserts article rows keyed by ID.
type MetadataStore interface {
	UpsertArticles(ctx context.Context, articles []Article) error
	Close() error
}

// Exporter writes the tabular export, collapsing rows by source URL.
type Exporter interface {
	Export(ctx context.Context, articles []Article) error
}

// BlobStore writes content and returns a URI for it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// IDGenerator produces article IDs.
type IDGenerator interface {
	NewID() (string, error)
}
