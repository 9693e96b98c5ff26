// Package zyte renders pages through the Zyte extraction API.
package zyte

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
	"github.com/JakeFAU/topic-harvester/internal/markdown"
	"github.com/JakeFAU/topic-harvester/internal/metrics"
)

const (
	defaultTimeout   = 20 * time.Second
	maxErrorBodySize = 4 << 10
)

// Config controls the Zyte client.
type Config struct {
	APIURL            string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client fetches a URL through Zyte and returns Markdown.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	conv    *markdown.Converter
	logger  *zap.Logger
}

type request struct {
	URL              string         `json:"url"`
	HTTPResponseBody bool           `json:"httpResponseBody"`
	Article          bool           `json:"article"`
	ArticleOptions   articleOptions `json:"articleOptions"`
}

type articleOptions struct {
	ExtractFrom string `json:"extractFrom"`
}

type response struct {
	HTTPResponseBody string          `json:"httpResponseBody"`
	Article          json.RawMessage `json:"article"`
}

// New builds a Zyte client. A zero RequestsPerSecond disables client-side
// throttling.
func New(cfg Config, conv *markdown.Converter, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, fmt.Errorf("zyte api_url is required")
	}
	if conv == nil {
		conv = markdown.NewConverter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		conv:    conv,
		logger:  logger,
	}, nil
}

// Name identifies the strategy in logs and metrics.
func (c *Client) Name() string { return "zyte" }

// Fetch asks Zyte to extract rawURL. The extracted article structure is
// rendered as a bullet tree; without one, the raw response body is converted
// instead.
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	decoded, err := c.extract(ctx, rawURL)
	if err != nil {
		return "", err
	}

	var html string
	if decoded.HTTPResponseBody != "" {
		body, err := base64.StdEncoding.DecodeString(decoded.HTTPResponseBody)
		if err != nil {
			return "", fmt.Errorf("decode zyte body: %w: %w", harvest.ErrUpstream, err)
		}
		html = strings.ToValidUTF8(string(body), "�")
	} else {
		c.logger.Warn("zyte response has no httpResponseBody", zap.String("url", rawURL))
	}

	if hasArticle(decoded.Article) {
		out, err := markdown.FromJSON(decoded.Article)
		if err != nil {
			return "", fmt.Errorf("render zyte article: %w", err)
		}
		return out, nil
	}
	c.logger.Debug("zyte returned no article, converting body", zap.String("url", rawURL))
	return c.conv.FromHTML(html)
}

func (c *Client) extract(ctx context.Context, rawURL string) (response, error) {
	payload, err := json.Marshal(request{
		URL:              rawURL,
		HTTPResponseBody: true,
		Article:          true,
		ArticleOptions:   articleOptions{ExtractFrom: "httpResponseBody"},
	})
	if err != nil {
		return response{}, fmt.Errorf("encode zyte request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return response{}, fmt.Errorf("build zyte request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.APIKey, "")

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("zyte request: %w: %w", harvest.ErrTransport, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close zyte body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return response{}, fmt.Errorf("zyte status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(body)), harvest.ErrUpstream)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return response{}, fmt.Errorf("decode zyte response: %w: %w", harvest.ErrUpstream, err)
	}
	return decoded, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("zyte rate limit: %w", err)
	}
	metrics.ObserveRateLimitDelay("zyte", time.Since(start))
	return nil
}

func hasArticle(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
