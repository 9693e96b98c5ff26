// Package pipeline drives a harvest run: search every topic on every domain,
// flag duplicates, persist stubs, fetch content and persist the final rows.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/topic-harvester/internal/dedup"
	"github.com/JakeFAU/topic-harvester/internal/harvest"
	"github.com/JakeFAU/topic-harvester/internal/metrics"
	"github.com/JakeFAU/topic-harvester/internal/policy/ratelimit"
)

// State names a stage of a run.
type State string

// Run states in the order they are entered.
const (
	StateIdle            State = "idle"
	StateSearching       State = "searching"
	StateDeduplicating   State = "deduplicating"
	StatePersistingStubs State = "persisting_stubs"
	StateFetching        State = "fetching"
	StatePersistingFinal State = "persisting_final"
	StateDone            State = "done"
)

// QueryLimiter gates every search call.
type QueryLimiter interface {
	Acquire(ctx context.Context) error
}

// ContentFetcher returns Markdown for a page, or "" on failure.
type ContentFetcher interface {
	Markdown(ctx context.Context, url string) string
}

// PDFSource opens a PDF body for streaming.
type PDFSource interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Store persists article metadata and content.
type Store interface {
	SaveMetadata(ctx context.Context, articles []harvest.Article) error
	SaveMarkdown(ctx context.Context, a harvest.Article) (string, error)
	SavePDF(ctx context.Context, a harvest.Article, body io.Reader) (string, error)
}

// Config controls optional stages.
type Config struct {
	Scrape       bool
	FetchWorkers int
}

// Deps bundles the collaborators of an Orchestrator. Content and PDF may be
// nil when scraping is disabled.
type Deps struct {
	Searcher harvest.Searcher
	Limiter  QueryLimiter
	Dedup    *dedup.Deduplicator
	Content  ContentFetcher
	PDF      PDFSource
	Store    Store
}

// Summary counts what a run did.
type Summary struct {
	Searches       int
	Stubs          int
	Duplicates     int
	Fetched        int
	PDFs           int
	Failures       int
	StorageErrors  int
	QuotaExhausted bool
	Duration       time.Duration
}

// Orchestrator runs the harvest state machine.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	state State
}

// New validates deps and builds an Orchestrator.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Searcher == nil || deps.Limiter == nil || deps.Store == nil {
		return nil, fmt.Errorf("searcher, limiter and store are required")
	}
	if deps.Dedup == nil {
		deps.Dedup = dedup.New(dedup.ModeRun)
	}
	if cfg.Scrape && (deps.Content == nil || deps.PDF == nil) {
		return nil, fmt.Errorf("content and pdf fetchers are required when scraping")
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		now:    time.Now,
		state:  StateIdle,
	}, nil
}

// State reports the current stage.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) enter(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.logger.Info("pipeline stage", zap.String("state", string(s)))
}

// Run executes one harvest over topics × domains and returns the final
// records. Individual failures are logged and counted; the only error
// returned is cancellation of ctx.
func (o *Orchestrator) Run(ctx context.Context, topics []string, domains []harvest.Domain) (Summary, []harvest.Article, error) {
	start := o.now()
	var sum Summary
	o.deps.Dedup.Reset()

	o.enter(StateSearching)
	articles, err := o.search(ctx, topics, domains, &sum)
	if err != nil {
		return sum, articles, err
	}

	o.enter(StateDeduplicating)
	if o.deps.Dedup.Mode() != dedup.ModeBatch {
		sum.Duplicates = o.deps.Dedup.Flag(articles)
	}
	metrics.ObserveDuplicates(sum.Duplicates)

	o.enter(StatePersistingStubs)
	o.persist(ctx, articles, &sum)

	if !o.cfg.Scrape {
		o.logger.Info("scraping disabled, skipping content fetch")
		return o.finish(start, sum, articles)
	}

	o.enter(StateFetching)
	if err := o.fetchAll(ctx, articles, &sum); err != nil {
		return sum, articles, err
	}

	o.enter(StatePersistingFinal)
	o.persist(ctx, articles, &sum)
	return o.finish(start, sum, articles)
}

func (o *Orchestrator) finish(start time.Time, sum Summary, articles []harvest.Article) (Summary, []harvest.Article, error) {
	o.enter(StateDone)
	sum.Duration = o.now().Sub(start)
	o.logger.Info("harvest complete",
		zap.Int("searches", sum.Searches),
		zap.Int("stubs", sum.Stubs),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("fetched", sum.Fetched),
		zap.Int("pdfs", sum.PDFs),
		zap.Int("failures", sum.Failures),
		zap.Int("storage_errors", sum.StorageErrors),
		zap.Bool("quota_exhausted", sum.QuotaExhausted),
		zap.Duration("duration", sum.Duration),
	)
	return sum, articles, nil
}

func (o *Orchestrator) search(ctx context.Context, topics []string, domains []harvest.Domain, sum *Summary) ([]harvest.Article, error) {
	var all []harvest.Article
	for _, topic := range topics {
		for _, domain := range domains {
			if err := o.deps.Limiter.Acquire(ctx); err != nil {
				if errors.Is(err, ratelimit.ErrQuotaExhausted) {
					o.logger.Warn("query quota exhausted, ending search",
						zap.Int("searches", sum.Searches))
					sum.QuotaExhausted = true
					return all, nil
				}
				return all, fmt.Errorf("wait for query budget: %w", err)
			}
			found := o.deps.Searcher.Search(ctx, topic, domain)
			sum.Searches++
			if len(found) == 0 {
				o.logger.Warn("no results", zap.String("topic", topic), zap.String("domain", domain.Name))
			}
			if o.deps.Dedup.Mode() == dedup.ModeBatch {
				sum.Duplicates += o.deps.Dedup.Flag(found)
			}
			all = append(all, found...)
			sum.Stubs += len(found)
		}
	}
	return all, nil
}

func (o *Orchestrator) persist(ctx context.Context, articles []harvest.Article, sum *Summary) {
	if err := o.deps.Store.SaveMetadata(ctx, articles); err != nil {
		sum.StorageErrors++
		o.logger.Error("persist metadata", zap.Error(err))
	}
}

// fetchAll fills content for every record. Records are processed by a
// bounded pool; each record only touches its own slice element.
func (o *Orchestrator) fetchAll(ctx context.Context, articles []harvest.Article, sum *Summary) error {
	var fetched, pdfs, failures atomic.Int64
	var g errgroup.Group
	g.SetLimit(o.cfg.FetchWorkers)
	for i := range articles {
		if ctx.Err() != nil {
			break
		}
		a := &articles[i]
		g.Go(func() error {
			var ok bool
			if a.IsPDF() {
				ok = o.fetchPDF(ctx, a)
				if ok {
					pdfs.Add(1)
				}
			} else {
				ok = o.fetchMarkdown(ctx, a)
				if ok {
					fetched.Add(1)
				}
			}
			if !ok {
				failures.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	sum.Fetched = int(fetched.Load())
	sum.PDFs = int(pdfs.Load())
	sum.Failures = int(failures.Load())
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fetch canceled: %w", err)
	}
	return nil
}

func (o *Orchestrator) fetchPDF(ctx context.Context, a *harvest.Article) bool {
	log := o.logger.With(zap.String("id", a.ID), zap.String("url", a.SourceURL))
	body, err := o.deps.PDF.Open(ctx, a.SourceURL)
	if err != nil {
		metrics.ObservePDFDownload(harvest.Kind(err))
		log.Warn("pdf download failed", zap.String("kind", harvest.Kind(err)), zap.Error(err))
		return false
	}
	defer func() {
		if cerr := body.Close(); cerr != nil {
			log.Debug("close pdf body", zap.Error(cerr))
		}
	}()
	if _, err := o.deps.Store.SavePDF(ctx, *a, body); err != nil {
		metrics.ObservePDFDownload("storage")
		return false
	}
	metrics.ObservePDFDownload("ok")
	retrieved := o.now()
	a.DateRetrieved = &retrieved
	return true
}

func (o *Orchestrator) fetchMarkdown(ctx context.Context, a *harvest.Article) bool {
	a.Content = o.deps.Content.Markdown(ctx, a.SourceURL)
	retrieved := o.now()
	a.DateRetrieved = &retrieved
	if _, err := o.deps.Store.SaveMarkdown(ctx, *a); err != nil {
		return false
	}
	return a.Content != ""
}
