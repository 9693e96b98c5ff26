// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/topic-harvester/internal/dedup"
	"github.com/JakeFAU/topic-harvester/internal/harvest"
	"github.com/JakeFAU/topic-harvester/internal/input"
)

// Scrape engine and fallback names.
const (
	EngineStatic   = "static"
	EngineHeadless = "headless"
	EngineZyte     = "zyte"
	FallbackNone   = "none"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Search   SearchConfig   `mapstructure:"search"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	PDF      PDFConfig      `mapstructure:"pdf"`
	Markdown MarkdownConfig `mapstructure:"markdown"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Inputs   InputsConfig   `mapstructure:"inputs"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// SearchConfig selects the search backend.
type SearchConfig struct {
	Engine  string                          `mapstructure:"engine"`
	Engines map[string]harvest.EngineConfig `mapstructure:"engines"`
	Timeout time.Duration                   `mapstructure:"timeout"`
}

// LimitsConfig bounds search usage.
type LimitsConfig struct {
	QueriesPerMinute int `mapstructure:"max_queries_per_minute"`
	QueriesPerDay    int `mapstructure:"max_queries_per_day"`
}

// PipelineConfig toggles run stages.
type PipelineConfig struct {
	Scrape       bool   `mapstructure:"scrape"`
	Dedup        string `mapstructure:"dedup"`
	FetchWorkers int    `mapstructure:"fetch_workers"`
}

// ScrapeConfig selects and tunes the content fetch strategy.
type ScrapeConfig struct {
	Engine        string         `mapstructure:"engine"`
	Fallback      string         `mapstructure:"fallback"`
	UserAgent     string         `mapstructure:"user_agent"`
	Timeout       time.Duration  `mapstructure:"timeout"`
	RespectRobots bool           `mapstructure:"respect_robots"`
	RenderShells  bool           `mapstructure:"render_shells"`
	ShellMinBody  int            `mapstructure:"shell_min_body"`
	Headless      HeadlessConfig `mapstructure:"headless"`
	Zyte          ZyteConfig     `mapstructure:"zyte"`
}

// HeadlessConfig tunes browser rendering.
type HeadlessConfig struct {
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
	ScrollAttempts int           `mapstructure:"scroll_attempts"`
	ScrollPause    time.Duration `mapstructure:"scroll_pause"`
	ExpandXPath    string        `mapstructure:"expand_xpath"`
	MaxParallel    int           `mapstructure:"max_parallel"`
	DomainQPS      float64       `mapstructure:"domain_qps"`
}

// ZyteConfig holds the third-party render API settings.
type ZyteConfig struct {
	APIURL            string        `mapstructure:"api_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// PDFConfig tunes PDF downloads.
type PDFConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// MarkdownConfig controls content file naming.
type MarkdownConfig struct {
	ShortTitleLimit int `mapstructure:"short_title_limit"`
}

// StorageConfig groups the persistence sinks.
type StorageConfig struct {
	Database DatabaseConfig `mapstructure:"database"`
	Export   ExportConfig   `mapstructure:"export"`
	Content  ContentConfig  `mapstructure:"content"`
}

// DatabaseConfig selects the metadata table backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	Name   string `mapstructure:"name"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// ExportConfig locates the spreadsheet export. An empty file name disables it.
type ExportConfig struct {
	Path     string `mapstructure:"path"`
	FileName string `mapstructure:"file_name"`
	Sheet    string `mapstructure:"sheet"`
}

// ContentConfig selects where Markdown and PDF files go.
type ContentConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// InputsConfig locates the topic and domain lists.
type InputsConfig struct {
	Topics  input.TopicsConfig  `mapstructure:"topics"`
	Domains input.DomainsConfig `mapstructure:"domains"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool     `mapstructure:"development"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.engine", "google")
	v.SetDefault("search.engines.google.api_name", "google")
	v.SetDefault("search.engines.google.api_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("search.engines.google.api_key", "")
	v.SetDefault("search.engines.google.cx", "")
	v.SetDefault("search.engines.google.date_restrict", "")
	v.SetDefault("search.timeout", 10*time.Second)
	v.SetDefault("limits.max_queries_per_minute", 60)
	v.SetDefault("limits.max_queries_per_day", 10000)
	v.SetDefault("pipeline.scrape", true)
	v.SetDefault("pipeline.dedup", string(dedup.ModeRun))
	v.SetDefault("pipeline.fetch_workers", 1)
	v.SetDefault("scrape.engine", EngineStatic)
	v.SetDefault("scrape.fallback", EngineHeadless)
	v.SetDefault("scrape.user_agent", "topic-harvester/1.0")
	v.SetDefault("scrape.timeout", 10*time.Second)
	v.SetDefault("scrape.respect_robots", false)
	v.SetDefault("scrape.render_shells", false)
	v.SetDefault("scrape.shell_min_body", 2048)
	v.SetDefault("scrape.headless.nav_timeout", 45*time.Second)
	v.SetDefault("scrape.headless.scroll_attempts", 3)
	v.SetDefault("scrape.headless.scroll_pause", 2*time.Second)
	v.SetDefault("scrape.headless.expand_xpath", `//button[contains(., 'Read More')]`)
	v.SetDefault("scrape.headless.max_parallel", 1)
	v.SetDefault("scrape.headless.domain_qps", 0)
	v.SetDefault("scrape.zyte.api_url", "https://api.zyte.com/v1/extract")
	v.SetDefault("scrape.zyte.api_key", "")
	v.SetDefault("scrape.zyte.timeout", 20*time.Second)
	v.SetDefault("scrape.zyte.requests_per_second", 0)
	v.SetDefault("pdf.timeout", 15*time.Second)
	v.SetDefault("markdown.short_title_limit", 15)
	v.SetDefault("storage.database.driver", "sqlite")
	v.SetDefault("storage.database.path", "data")
	v.SetDefault("storage.database.name", "articles.db")
	v.SetDefault("storage.database.dsn", "")
	v.SetDefault("storage.database.table", "articles")
	v.SetDefault("storage.export.path", "data")
	v.SetDefault("storage.export.file_name", "articles.xlsx")
	v.SetDefault("storage.export.sheet", "Articles")
	v.SetDefault("storage.content.backend", "local")
	v.SetDefault("storage.content.path", "articles")
	v.SetDefault("storage.content.gcs_bucket", "")
	v.SetDefault("storage.content.gcs_prefix", "")
	v.SetDefault("inputs.topics.column", "topic")
	v.SetDefault("inputs.domains.domain_column", "domain")
	v.SetDefault("inputs.domains.max_column", "max_articles")
	v.SetDefault("logging.development", false)
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	engine, ok := c.Search.Engines[c.Search.Engine]
	if !ok {
		return fmt.Errorf("search.engine %q has no entry under search.engines", c.Search.Engine)
	}
	if strings.TrimSpace(engine.URL) == "" {
		return fmt.Errorf("search.engines.%s.api_url is required", c.Search.Engine)
	}
	if c.Limits.QueriesPerMinute < 0 {
		return fmt.Errorf("limits.max_queries_per_minute must be >= 0")
	}
	if c.Limits.QueriesPerDay < 0 {
		return fmt.Errorf("limits.max_queries_per_day must be >= 0")
	}
	if _, err := dedup.ParseMode(c.Pipeline.Dedup); err != nil {
		return fmt.Errorf("pipeline.dedup: %w", err)
	}
	if c.Pipeline.FetchWorkers <= 0 {
		return fmt.Errorf("pipeline.fetch_workers must be > 0")
	}
	if err := c.validateScrape(); err != nil {
		return err
	}
	if c.Markdown.ShortTitleLimit <= 0 {
		return fmt.Errorf("markdown.short_title_limit must be > 0")
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return c.validateInputs()
}

func (c Config) validateScrape() error {
	switch c.Scrape.Engine {
	case EngineStatic, EngineHeadless, EngineZyte:
	default:
		return fmt.Errorf("scrape.engine must be one of static, headless, zyte; got %q", c.Scrape.Engine)
	}
	switch c.Scrape.Fallback {
	case EngineHeadless, EngineZyte, FallbackNone, "":
	default:
		return fmt.Errorf("scrape.fallback must be one of headless, zyte, none; got %q", c.Scrape.Fallback)
	}
	if c.Scrape.Headless.ScrollAttempts < 0 {
		return fmt.Errorf("scrape.headless.scroll_attempts must be >= 0")
	}
	if c.Pipeline.Scrape && c.UsesZyte() && strings.TrimSpace(c.Scrape.Zyte.APIURL) == "" {
		return fmt.Errorf("scrape.zyte.api_url is required when zyte is used")
	}
	return nil
}

func (c Config) validateStorage() error {
	db := c.Storage.Database
	switch db.Driver {
	case "sqlite":
		if db.Name == "" {
			return fmt.Errorf("storage.database.name is required for sqlite")
		}
	case "postgres":
		if db.DSN == "" {
			return fmt.Errorf("storage.database.dsn is required for postgres")
		}
	case "none":
	default:
		return fmt.Errorf("storage.database.driver must be one of sqlite, postgres, none; got %q", db.Driver)
	}

	content := c.Storage.Content
	switch content.Backend {
	case "local":
		if content.Path == "" {
			return fmt.Errorf("storage.content.path is required for the local backend")
		}
	case "gcs":
		if content.GCSBucket == "" {
			return fmt.Errorf("storage.content.gcs_bucket is required for the gcs backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.content.backend must be one of local, gcs, memory; got %q", content.Backend)
	}
	return nil
}

func (c Config) validateInputs() error {
	topics := c.Inputs.Topics
	if topics.File == "" && len(topics.List) == 0 {
		return fmt.Errorf("inputs.topics needs a file or a list")
	}
	if topics.File != "" && topics.Column == "" {
		return fmt.Errorf("inputs.topics.column is required with a file")
	}
	domains := c.Inputs.Domains
	if domains.File == "" && len(domains.List) == 0 {
		return fmt.Errorf("inputs.domains needs a file or a list")
	}
	if domains.File != "" && (domains.DomainColumn == "" || domains.MaxColumn == "") {
		return fmt.Errorf("inputs.domains.domain_column and max_column are required with a file")
	}
	return nil
}

// Engine returns the selected search engine settings. The engine name
// defaults to the selection key.
func (c Config) Engine() harvest.EngineConfig {
	e := c.Search.Engines[c.Search.Engine]
	if e.Name == "" {
		e.Name = c.Search.Engine
	}
	return e
}

// DedupMode returns the parsed dedup mode. Validate has already rejected
// unknown values.
func (c Config) DedupMode() dedup.Mode {
	m, _ := dedup.ParseMode(c.Pipeline.Dedup)
	return m
}

// UsesZyte reports whether zyte is the primary engine or the fallback.
func (c Config) UsesZyte() bool {
	return c.Scrape.Engine == EngineZyte || (c.Scrape.Engine == EngineStatic && c.Scrape.Fallback == EngineZyte)
}
