package main

import (
	"context"
	"fmt"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/topic-harvester/internal/config"
	"github.com/JakeFAU/topic-harvester/internal/content"
	"github.com/JakeFAU/topic-harvester/internal/dedup"
	collyfetcher "github.com/JakeFAU/topic-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/topic-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/topic-harvester/internal/fetcher/pdf"
	"github.com/JakeFAU/topic-harvester/internal/fetcher/shell"
	"github.com/JakeFAU/topic-harvester/internal/fetcher/zyte"
	"github.com/JakeFAU/topic-harvester/internal/harvest"
	"github.com/JakeFAU/topic-harvester/internal/id/uuid"
	"github.com/JakeFAU/topic-harvester/internal/markdown"
	"github.com/JakeFAU/topic-harvester/internal/pipeline"
	"github.com/JakeFAU/topic-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/topic-harvester/internal/search"
	"github.com/JakeFAU/topic-harvester/internal/storage"
	"github.com/JakeFAU/topic-harvester/internal/storage/excel"
	"github.com/JakeFAU/topic-harvester/internal/storage/gcs"
	"github.com/JakeFAU/topic-harvester/internal/storage/local"
	"github.com/JakeFAU/topic-harvester/internal/storage/memory"
	"github.com/JakeFAU/topic-harvester/internal/storage/postgres"
	"github.com/JakeFAU/topic-harvester/internal/storage/sqlite"
)

// app owns the components of one run and releases them on Close.
type app struct {
	orch    *pipeline.Orchestrator
	store   *storage.ArticleStore
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	searcher, err := search.NewGoogle(search.Config{
		Engine:  cfg.Engine(),
		Timeout: cfg.Search.Timeout,
	}, uuid.NewUUIDGenerator(), logger.Named("search"))
	if err != nil {
		return nil, fmt.Errorf("build search client: %w", err)
	}

	store, err := buildStore(ctx, cfg, a, logger.Named("storage"))
	if err != nil {
		return nil, err
	}
	a.store = store

	deps := pipeline.Deps{
		Searcher: searcher,
		Limiter: ratelimit.New(ratelimit.Config{
			QueriesPerMinute: cfg.Limits.QueriesPerMinute,
			QueriesPerDay:    cfg.Limits.QueriesPerDay,
		}),
		Dedup: dedup.New(cfg.DedupMode()),
		Store: store,
	}
	if cfg.Pipeline.Scrape {
		fetcher, closeFetcher, err := newContentFetcher(cfg, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeFetcher)
		deps.Content = content.NewSafe(fetcher, logger.Named("content"))
		deps.PDF = pdf.New(pdf.Config{
			UserAgent: cfg.Scrape.UserAgent,
			Timeout:   cfg.PDF.Timeout,
		}, logger.Named("pdf"))
	}

	orch, err := pipeline.New(pipeline.Config{
		Scrape:       cfg.Pipeline.Scrape,
		FetchWorkers: cfg.Pipeline.FetchWorkers,
	}, deps, logger.Named("pipeline"))
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	a.orch = orch
	ok = true
	return a, nil
}

func buildStore(ctx context.Context, cfg config.Config, a *app, logger *zap.Logger) (*storage.ArticleStore, error) {
	var meta harvest.MetadataStore
	dbCfg := cfg.Storage.Database
	switch dbCfg.Driver {
	case "sqlite":
		s, err := sqlite.New(ctx, sqlite.Config{Path: dbCfg.Path, Name: dbCfg.Name, Table: dbCfg.Table})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		meta = s
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{DSN: dbCfg.DSN, Table: dbCfg.Table})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		meta = s
	}
	if meta != nil {
		a.closers = append(a.closers, func() {
			if err := meta.Close(); err != nil {
				logger.Warn("close metadata store", zap.Error(err))
			}
		})
	}

	var exporter harvest.Exporter
	if exp := cfg.Storage.Export; exp.FileName != "" {
		e, err := excel.New(excel.Config{Path: exp.Path, FileName: exp.FileName, Sheet: exp.Sheet})
		if err != nil {
			return nil, fmt.Errorf("build export: %w", err)
		}
		exporter = e
	}

	var blobs harvest.BlobStore
	contentCfg := cfg.Storage.Content
	switch contentCfg.Backend {
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("close gcs client", zap.Error(err))
			}
		})
		b, err := gcs.New(client, gcs.Config{Bucket: contentCfg.GCSBucket, Prefix: contentCfg.GCSPrefix})
		if err != nil {
			return nil, err
		}
		blobs = b
	case "memory":
		blobs = memory.NewBlobStore()
	default:
		b, err := local.New(local.Config{BaseDir: contentCfg.Path})
		if err != nil {
			return nil, fmt.Errorf("open content directory: %w", err)
		}
		blobs = b
	}

	store, err := storage.New(meta, exporter, blobs, storage.Config{
		ShortTitleLimit: cfg.Markdown.ShortTitleLimit,
	}, logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// newContentFetcher builds the configured retrieval strategy. The returned
// func releases browser resources.
func newContentFetcher(cfg config.Config, logger *zap.Logger) (content.Fetcher, func(), error) {
	conv := markdown.NewConverter()
	noop := func() {}

	newRenderer := func() (*headless.Fetcher, error) {
		h := cfg.Scrape.Headless
		return headless.NewChromedp(headless.Config{
			MaxParallel:       h.MaxParallel,
			UserAgent:         cfg.Scrape.UserAgent,
			NavigationTimeout: h.NavTimeout,
			ScrollAttempts:    h.ScrollAttempts,
			ScrollPause:       h.ScrollPause,
			ExpandXPath:       h.ExpandXPath,
			DomainQPS:         h.DomainQPS,
		}, logger.Named("headless"))
	}
	newZyte := func() (*zyte.Client, error) {
		z := cfg.Scrape.Zyte
		return zyte.New(zyte.Config{
			APIURL:            z.APIURL,
			APIKey:            z.APIKey,
			Timeout:           z.Timeout,
			RequestsPerSecond: z.RequestsPerSecond,
		}, conv, logger.Named("zyte"))
	}

	switch cfg.Scrape.Engine {
	case config.EngineHeadless:
		r, err := newRenderer()
		if err != nil {
			return nil, nil, fmt.Errorf("build headless fetcher: %w", err)
		}
		return content.NewRendered(r, conv), r.Close, nil
	case config.EngineZyte:
		z, err := newZyte()
		if err != nil {
			return nil, nil, fmt.Errorf("build zyte client: %w", err)
		}
		return z, noop, nil
	}

	var (
		fallback content.Fetcher
		closer   = noop
	)
	switch cfg.Scrape.Fallback {
	case config.EngineHeadless:
		r, err := newRenderer()
		if err != nil {
			return nil, nil, fmt.Errorf("build headless fallback: %w", err)
		}
		fallback, closer = content.NewRendered(r, conv), r.Close
	case config.EngineZyte:
		z, err := newZyte()
		if err != nil {
			return nil, nil, fmt.Errorf("build zyte fallback: %w", err)
		}
		fallback = z
	}
	pages := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Scrape.UserAgent,
		RespectRobots: cfg.Scrape.RespectRobots,
		Timeout:       cfg.Scrape.Timeout,
	})
	static := content.NewStatic(pages, fallback, conv, logger.Named("static"))
	if cfg.Scrape.RenderShells {
		static.PromoteShells(shell.New(cfg.Scrape.ShellMinBody))
	}
	return static, closer, nil
}
