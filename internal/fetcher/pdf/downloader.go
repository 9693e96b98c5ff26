// Package pdf downloads PDF documents verbatim.
package pdf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
)

const (
	// ChunkSize bounds every read from a download body.
	ChunkSize      = 8192
	defaultTimeout = 15 * time.Second
)

// Config controls the downloader.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Downloader opens PDF bodies for streaming into storage.
type Downloader struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a Downloader.
func New(cfg Config, logger *zap.Logger) *Downloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Open issues a GET for rawURL and returns the body. Non-2xx responses are
// reported as errors with the body already closed, so callers write nothing.
// The returned reader yields at most ChunkSize bytes per Read.
func (d *Downloader) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build pdf request: %w", err)
	}
	if ua := strings.TrimSpace(d.cfg.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pdf request: %w: %w", harvest.ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if cerr := resp.Body.Close(); cerr != nil {
			d.logger.Debug("close pdf body", zap.Error(cerr))
		}
		return nil, fmt.Errorf("pdf status %d: %w", resp.StatusCode, harvest.ErrUpstream)
	}
	return &chunkReader{rc: resp.Body}, nil
}

type chunkReader struct {
	rc io.ReadCloser
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > ChunkSize {
		p = p[:ChunkSize]
	}
	return c.rc.Read(p)
}

func (c *chunkReader) Close() error {
	return c.rc.Close()
}
