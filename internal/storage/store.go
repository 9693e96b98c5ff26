// Package storage persists article metadata and content across the
// configured sinks.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
	"github.com/JakeFAU/topic-harvester/internal/metrics"
)

// Config controls content file naming.
type Config struct {
	ShortTitleLimit int
}

// ArticleStore fans article writes out to the metadata table, the tabular
// export and the content store. A failing sink never prevents the others
// from being written.
type ArticleStore struct {
	meta   harvest.MetadataStore
	export harvest.Exporter
	blobs  harvest.BlobStore
	cfg    Config
	logger *zap.Logger
}

// New builds an ArticleStore. meta and export may be nil; blobs is required.
func New(meta harvest.MetadataStore, export harvest.Exporter, blobs harvest.BlobStore, cfg Config, logger *zap.Logger) (*ArticleStore, error) {
	if blobs == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if cfg.ShortTitleLimit <= 0 {
		cfg.ShortTitleLimit = DefaultShortTitleLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArticleStore{meta: meta, export: export, blobs: blobs, cfg: cfg, logger: logger}, nil
}

// SaveMetadata upserts articles into the metadata table and merges them into
// the export. Both sinks are attempted; their errors are joined.
func (s *ArticleStore) SaveMetadata(ctx context.Context, articles []harvest.Article) error {
	if len(articles) == 0 {
		return nil
	}
	var errs []error
	if s.meta != nil {
		if err := s.meta.UpsertArticles(ctx, articles); err != nil {
			errs = append(errs, s.fail("database", err))
		}
	}
	if s.export != nil {
		if err := s.export.Export(ctx, articles); err != nil {
			errs = append(errs, s.fail("export", err))
		}
	}
	if len(errs) == 0 {
		s.logger.Info("metadata stored", zap.Int("articles", len(articles)))
	}
	return errors.Join(errs...)
}

// SaveMarkdown writes the article content as a Markdown file and returns its
// URI. Empty content still produces a file.
func (s *ArticleStore) SaveMarkdown(ctx context.Context, a harvest.Article) (string, error) {
	p := ContentPath(a, s.cfg.ShortTitleLimit, ExtMarkdown)
	uri, err := s.blobs.PutObject(ctx, p, "text/markdown; charset=utf-8", strings.NewReader(a.Content))
	if err != nil {
		return "", s.fail("content", fmt.Errorf("write markdown %s: %w", p, err))
	}
	s.logger.Debug("markdown stored", zap.String("id", a.ID), zap.String("uri", uri))
	return uri, nil
}

// SavePDF streams body into the content store as the article's PDF file.
func (s *ArticleStore) SavePDF(ctx context.Context, a harvest.Article, body io.Reader) (string, error) {
	p := ContentPath(a, s.cfg.ShortTitleLimit, ExtPDF)
	uri, err := s.blobs.PutObject(ctx, p, "application/pdf", body)
	if err != nil {
		return "", s.fail("content", fmt.Errorf("write pdf %s: %w", p, err))
	}
	s.logger.Debug("pdf stored", zap.String("id", a.ID), zap.String("uri", uri))
	return uri, nil
}

// Close releases the metadata store.
func (s *ArticleStore) Close() error {
	if s.meta == nil {
		return nil
	}
	return s.meta.Close()
}

func (s *ArticleStore) fail(sink string, err error) error {
	metrics.ObserveStorageError(sink)
	s.logger.Error("storage write failed", zap.String("sink", sink), zap.Error(err))
	return fmt.Errorf("%s: %w: %w", sink, harvest.ErrStorage, err)
}
