// Package search queries web search APIs and maps results to article stubs.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
	"github.com/JakeFAU/topic-harvester/internal/metrics"
)

const (
	defaultTimeout   = 10 * time.Second
	maxErrorBodySize = 4 << 10
)

// Config controls the Google Custom Search client.
type Config struct {
	Engine  harvest.EngineConfig
	Timeout time.Duration
	// Language and SafeSearch are fixed per deployment rather than per query.
	Language   string
	SafeSearch string
}

// Client implements harvest.Searcher against the Google Custom Search JSON API.
type Client struct {
	cfg    Config
	http   *http.Client
	ids    harvest.IDGenerator
	logger *zap.Logger
}

type response struct {
	Items []item `json:"items"`
}

type item struct {
	Link  string `json:"link"`
	Title string `json:"title"`
}

// NewGoogle builds a search client.
func NewGoogle(cfg Config, ids harvest.IDGenerator, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Engine.URL) == "" {
		return nil, fmt.Errorf("search api_url is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Language == "" {
		cfg.Language = "lang_en"
	}
	if cfg.SafeSearch == "" {
		cfg.SafeSearch = "off"
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		ids:    ids,
		logger: logger,
	}, nil
}

// Search issues one query restricted to domain and returns at most
// domain.MaxArticles stubs in API rank order. Failures are logged and yield
// an empty slice.
func (c *Client) Search(ctx context.Context, topic string, domain harvest.Domain) []harvest.Article {
	log := c.logger.With(zap.String("topic", topic), zap.String("domain", domain.Name))
	log.Debug("searching articles", zap.Int("max", domain.MaxArticles))

	items, err := c.query(ctx, topic, domain.Name)
	if err != nil {
		log.Warn("search failed", zap.String("kind", harvest.Kind(err)), zap.Error(err))
		metrics.ObserveSearch(c.engineName(), domain.Name, harvest.Kind(err), 0)
		return []harvest.Article{}
	}
	if limit := max(domain.MaxArticles, 0); len(items) > limit {
		items = items[:limit]
	}

	articles := make([]harvest.Article, 0, len(items))
	for _, it := range items {
		id, err := c.ids.NewID()
		if err != nil {
			log.Error("generate article id", zap.Error(err))
			continue
		}
		articles = append(articles, harvest.Article{
			ID:               id,
			SourceName:       domain.Name,
			SourceDomain:     domain.Name,
			SearchEngineName: c.engineName(),
			SourceURL:        it.Link,
			SourceTitle:      it.Title,
			SearchQuery:      topic,
		})
	}
	metrics.ObserveSearch(c.engineName(), domain.Name, "ok", len(articles))
	log.Debug("search complete", zap.Int("results", len(articles)))
	return articles
}

func (c *Client) query(ctx context.Context, topic, domain string) ([]item, error) {
	endpoint, err := c.buildURL(topic, domain)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w: %w", harvest.ErrTransport, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close search body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, fmt.Errorf("search status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(body)), harvest.ErrUpstream)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w: %w", harvest.ErrUpstream, err)
	}
	return decoded.Items, nil
}

// buildURL scopes the query to domain with siteSearch rather than a site:
// operator in the free text.
func (c *Client) buildURL(topic, domain string) (string, error) {
	base, err := url.Parse(c.cfg.Engine.URL)
	if err != nil {
		return "", fmt.Errorf("parse search api_url: %w", err)
	}
	params := base.Query()
	params.Set("key", c.cfg.Engine.APIKey)
	params.Set("cx", c.cfg.Engine.ContextID)
	params.Set("q", topic)
	params.Set("lr", c.cfg.Language)
	params.Set("safe", c.cfg.SafeSearch)
	params.Set("siteSearch", domain)
	params.Set("siteSearchFilter", "i")
	if restrict := strings.TrimSpace(c.cfg.Engine.DateRestrict); restrict != "" {
		params.Set("dateRestrict", restrict)
	}
	base.RawQuery = params.Encode()
	return base.String(), nil
}

func (c *Client) engineName() string {
	if c.cfg.Engine.Name != "" {
		return c.cfg.Engine.Name
	}
	return "google"
}
