// Package content turns article URLs into Markdown using a configured
// retrieval strategy.
package content

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
	"github.com/JakeFAU/topic-harvester/internal/markdown"
	"github.com/JakeFAU/topic-harvester/internal/metrics"
)

// Fetcher retrieves url and returns its Markdown content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Name() string
}

// PageFetcher retrieves raw pages. Non-2xx responses are returned as pages,
// not errors.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (harvest.Page, error)
}

// ShellDetector flags 2xx pages whose static HTML needs a renderer.
type ShellDetector interface {
	NeedsRender(page harvest.Page) bool
}

// Static fetches pages over plain HTTP. A non-2xx response triggers exactly
// one attempt with the fallback strategy; transport errors do not.
type Static struct {
	pages    PageFetcher
	fallback Fetcher
	shells   ShellDetector
	conv     *markdown.Converter
	logger   *zap.Logger
}

// NewStatic builds a Static strategy. fallback may be nil.
func NewStatic(pages PageFetcher, fallback Fetcher, conv *markdown.Converter, logger *zap.Logger) *Static {
	if conv == nil {
		conv = markdown.NewConverter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Static{pages: pages, fallback: fallback, conv: conv, logger: logger}
}

// PromoteShells also sends 2xx application shells to the fallback. It has
// no effect without a fallback.
func (s *Static) PromoteShells(d ShellDetector) *Static {
	s.shells = d
	return s
}

// Name identifies the strategy.
func (s *Static) Name() string { return "static" }

// Fetch implements Fetcher.
func (s *Static) Fetch(ctx context.Context, url string) (string, error) {
	page, err := s.pages.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	if page.OK() {
		if s.fallback == nil || s.shells == nil || !s.shells.NeedsRender(page) {
			return s.conv.FromHTML(string(page.Body))
		}
		s.logger.Info("static page is an application shell, using fallback",
			zap.String("url", url),
			zap.String("fallback", s.fallback.Name()),
		)
	} else {
		if s.fallback == nil {
			return "", fmt.Errorf("static status %d: %w", page.StatusCode, harvest.ErrUpstream)
		}
		s.logger.Info("static fetch rejected, using fallback",
			zap.String("url", url),
			zap.Int("status", page.StatusCode),
			zap.String("fallback", s.fallback.Name()),
		)
	}
	out, err := s.fallback.Fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fallback %s: %w", s.fallback.Name(), err)
	}
	return out, nil
}

// Rendered converts pages produced by a browser-backed PageFetcher.
type Rendered struct {
	pages PageFetcher
	conv  *markdown.Converter
}

// NewRendered builds a Rendered strategy.
func NewRendered(pages PageFetcher, conv *markdown.Converter) *Rendered {
	if conv == nil {
		conv = markdown.NewConverter()
	}
	return &Rendered{pages: pages, conv: conv}
}

// Name identifies the strategy.
func (r *Rendered) Name() string { return "headless" }

// Fetch implements Fetcher.
func (r *Rendered) Fetch(ctx context.Context, url string) (string, error) {
	page, err := r.pages.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return r.conv.FromHTML(string(page.Body))
}

// Safe wraps a Fetcher so that failures become empty content and a log line.
type Safe struct {
	next   Fetcher
	logger *zap.Logger
}

// NewSafe wraps next.
func NewSafe(next Fetcher, logger *zap.Logger) *Safe {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Safe{next: next, logger: logger}
}

// Markdown returns the content for url, or "" when retrieval failed.
func (s *Safe) Markdown(ctx context.Context, url string) string {
	start := time.Now()
	out, err := s.next.Fetch(ctx, url)
	if err != nil {
		metrics.ObserveFetch(s.next.Name(), harvest.Kind(err), time.Since(start))
		s.logger.Warn("content fetch failed",
			zap.String("url", url),
			zap.String("strategy", s.next.Name()),
			zap.String("kind", harvest.Kind(err)),
			zap.Error(err),
		)
		return ""
	}
	metrics.ObserveFetch(s.next.Name(), "ok", time.Since(start))
	return out
}
