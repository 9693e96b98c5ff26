// Package harvest defines the core types shared across the article pipeline.
package harvest

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Duplicate flag values persisted with every article.
const (
	DuplicateYes = "yes"
	DuplicateNo  = "no"
)

// Article is one discovered search result. It starts life as a stub and is
// filled in by the fetch stage.
type Article struct {
	ID                 string     `json:"source_guid"`
	SourceName         string     `json:"source_name"`
	SourceDomain       string     `json:"source_domain"`
	SearchEngineName   string     `json:"search_engine_name"`
	SourceURL          string     `json:"source_url"`
	SourceTitle        string     `json:"source_article_title"`
	SearchQuery        string     `json:"search_query"`
	SuspectedDuplicate string     `json:"suspected_duplicate"`
	DateRetrieved      *time.Time `json:"date_retrieved,omitempty"`
	Content            string     `json:"-"`
}

// IsPDF reports whether the article URL path ends in .pdf, ignoring case.
func (a Article) IsPDF() bool {
	raw := a.SourceURL
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		raw = u.Path
	}
	return strings.HasSuffix(strings.ToLower(raw), ".pdf")
}

// Topic returns the query the article was found with, or "general".
func (a Article) Topic() string {
	if strings.TrimSpace(a.SearchQuery) == "" {
		return "general"
	}
	return a.SearchQuery
}

// RetrievedAt formats DateRetrieved as RFC 3339, or "" when unset.
func (a Article) RetrievedAt() string {
	if a.DateRetrieved == nil {
		return ""
	}
	return a.DateRetrieved.UTC().Format(time.RFC3339)
}

// Domain is a search target with a per-query result cap.
type Domain struct {
	Name        string
	MaxArticles int
}

// EngineConfig carries the credentials and endpoint of one search backend.
type EngineConfig struct {
	Name         string `mapstructure:"api_name"`
	URL          string `mapstructure:"api_url"`
	APIKey       string `mapstructure:"api_key"`
	ContextID    string `mapstructure:"cx"`
	DateRestrict string `mapstructure:"date_restrict"`
}

// Page is the raw result of fetching a URL.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// OK reports whether the page carries a 2xx status.
func (p Page) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode <= 299
}
