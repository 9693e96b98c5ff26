package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/topic-harvester/internal/dedup"
	"github.com/JakeFAU/topic-harvester/internal/harvest"
	"github.com/JakeFAU/topic-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/topic-harvester/internal/storage"
	"github.com/JakeFAU/topic-harvester/internal/storage/memory"
)

type fakeSearcher struct {
	mu      sync.Mutex
	calls   int
	results map[string][]string // domain -> urls
	seq     int
}

func (f *fakeSearcher) Search(_ context.Context, topic string, domain harvest.Domain) []harvest.Article {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var out []harvest.Article
	for _, u := range f.results[domain.Name] {
		f.seq++
		out = append(out, harvest.Article{
			ID:           fmt.Sprintf("id-%02d", f.seq),
			SourceDomain: domain.Name,
			SourceURL:    u,
			SourceTitle:  "Same Title",
			SearchQuery:  topic,
		})
	}
	return out
}

type fakeContent struct {
	mu   sync.Mutex
	urls []string
	fail map[string]bool
}

func (f *fakeContent) Markdown(_ context.Context, url string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if f.fail[url] {
		return ""
	}
	return "# " + url
}

type fakePDF struct {
	mu   sync.Mutex
	urls []string
	fail bool
}

func (f *fakePDF) Open(_ context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if f.fail {
		return nil, fmt.Errorf("pdf status 404: %w", harvest.ErrUpstream)
	}
	return io.NopCloser(strings.NewReader("%PDF-1.4")), nil
}

type noWait struct{}

func (noWait) Acquire(context.Context) error { return nil }

type harness struct {
	orch    *Orchestrator
	search  *fakeSearcher
	content *fakeContent
	pdf     *fakePDF
	meta    *memory.MetadataStore
	blobs   *memory.BlobStore
}

func newHarness(t *testing.T, cfg Config, limiter QueryLimiter, mode dedup.Mode, results map[string][]string) *harness {
	t.Helper()
	h := &harness{
		search:  &fakeSearcher{results: results},
		content: &fakeContent{fail: map[string]bool{}},
		pdf:     &fakePDF{},
		meta:    memory.NewMetadataStore(),
		blobs:   memory.NewBlobStore(),
	}
	store, err := storage.New(h.meta, nil, h.blobs, storage.Config{}, nil)
	require.NoError(t, err)
	orch, err := New(cfg, Deps{
		Searcher: h.search,
		Limiter:  limiter,
		Dedup:    dedup.New(mode),
		Content:  h.content,
		PDF:      h.pdf,
		Store:    store,
	}, nil)
	require.NoError(t, err)
	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	orch.now = func() time.Time { return fixed }
	h.orch = orch
	return h
}

func TestRunStopsSearchingWhenQuotaExhausted(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.New(ratelimit.Config{QueriesPerDay: 3})
	results := map[string][]string{"a.com": {"https://a.com/1"}}
	h := newHarness(t, Config{}, limiter, dedup.ModeRun, results)

	domains := []harvest.Domain{{Name: "a.com", MaxArticles: 5}}
	sum, articles, err := h.orch.Run(context.Background(), []string{"t1", "t2", "t3", "t4", "t5"}, domains)
	require.NoError(t, err)
	assert.Equal(t, 3, h.search.calls)
	assert.Equal(t, 3, sum.Searches)
	assert.True(t, sum.QuotaExhausted)
	assert.Len(t, articles, 3)
	assert.Equal(t, StateDone, h.orch.State())
}

func TestRunFlagsDuplicatesAndKeepsAll(t *testing.T) {
	t.Parallel()

	results := map[string][]string{
		"a.com": {"https://a.com/x", "https://a.com/y"},
		"b.com": {"https://a.com/x"},
	}
	h := newHarness(t, Config{}, noWait{}, dedup.ModeRun, results)

	domains := []harvest.Domain{{Name: "a.com"}, {Name: "b.com"}}
	sum, articles, err := h.orch.Run(context.Background(), []string{"cpi"}, domains)
	require.NoError(t, err)
	require.Len(t, articles, 3)
	assert.Equal(t, []string{"no", "no", "yes"}, flags(articles))
	assert.Equal(t, 1, sum.Duplicates)
	assert.Len(t, h.meta.Articles(), 3)
}

func TestRunDoesNotCarryDuplicatesAcrossRuns(t *testing.T) {
	t.Parallel()

	results := map[string][]string{"a.com": {"https://a.com/1"}}
	h := newHarness(t, Config{}, noWait{}, dedup.ModeRun, results)
	domains := []harvest.Domain{{Name: "a.com", MaxArticles: 5}}

	first, articles, err := h.orch.Run(context.Background(), []string{"cpi"}, domains)
	require.NoError(t, err)
	assert.Equal(t, []string{"no"}, flags(articles))
	assert.Zero(t, first.Duplicates)

	second, articles, err := h.orch.Run(context.Background(), []string{"cpi"}, domains)
	require.NoError(t, err)
	assert.Equal(t, []string{"no"}, flags(articles))
	assert.Zero(t, second.Duplicates)
}

func TestRunBatchModeFlagsWithinBatch(t *testing.T) {
	t.Parallel()

	results := map[string][]string{
		"a.com": {"https://a.com/x", "https://a.com/x"},
		"b.com": {"https://a.com/x"},
	}
	h := newHarness(t, Config{}, noWait{}, dedup.ModeBatch, results)

	_, articles, err := h.orch.Run(context.Background(), []string{"cpi"}, []harvest.Domain{{Name: "a.com"}, {Name: "b.com"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"no", "yes", "no"}, flags(articles))
}

func TestRunWithoutScrapeSkipsFetching(t *testing.T) {
	t.Parallel()

	results := map[string][]string{"a.com": {"https://a.com/x", "https://a.com/doc.pdf"}}
	h := newHarness(t, Config{Scrape: false}, noWait{}, dedup.ModeRun, results)

	sum, articles, err := h.orch.Run(context.Background(), []string{"cpi"}, []harvest.Domain{{Name: "a.com"}})
	require.NoError(t, err)
	assert.Empty(t, h.content.urls)
	assert.Empty(t, h.pdf.urls)
	assert.Empty(t, h.blobs.Paths())
	assert.Zero(t, sum.Fetched)
	for _, a := range articles {
		assert.Nil(t, a.DateRetrieved)
	}
	assert.Len(t, h.meta.Articles(), 2)
}

func TestRunRoutesPDFsCaseInsensitively(t *testing.T) {
	t.Parallel()

	results := map[string][]string{"a.com": {"https://a.com/Report.PDF", "https://a.com/page"}}
	h := newHarness(t, Config{Scrape: true}, noWait{}, dedup.ModeRun, results)

	sum, articles, err := h.orch.Run(context.Background(), []string{"cpi"}, []harvest.Domain{{Name: "a.com"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.com/Report.PDF"}, h.pdf.urls)
	assert.Equal(t, []string{"https://a.com/page"}, h.content.urls)
	assert.Equal(t, 1, sum.PDFs)
	assert.Equal(t, 1, sum.Fetched)
	assert.Equal(t, []string{"cpi/id-01-Same_Title.pdf", "cpi/id-02-Same_Title.md"}, h.blobs.Paths())

	for _, a := range articles {
		require.NotNil(t, a.DateRetrieved)
	}
	final := h.meta.Articles()
	require.Len(t, final, 2)
	assert.NotNil(t, final[0].DateRetrieved)
}

func TestRunIsolatesPerRecordFailures(t *testing.T) {
	t.Parallel()

	results := map[string][]string{"a.com": {
		"https://a.com/broken", "https://a.com/missing.pdf", "https://a.com/fine",
	}}
	h := newHarness(t, Config{Scrape: true, FetchWorkers: 2}, noWait{}, dedup.ModeRun, results)
	h.content.fail["https://a.com/broken"] = true
	h.pdf.fail = true

	sum, articles, err := h.orch.Run(context.Background(), []string{"cpi"}, []harvest.Domain{{Name: "a.com"}})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Failures)
	assert.Equal(t, 1, sum.Fetched)

	byURL := map[string]harvest.Article{}
	for _, a := range articles {
		byURL[a.SourceURL] = a
	}
	// a failed page fetch still records the attempt and writes an empty file
	assert.NotNil(t, byURL["https://a.com/broken"].DateRetrieved)
	assert.Nil(t, byURL["https://a.com/missing.pdf"].DateRetrieved)
	assert.Equal(t, "# https://a.com/fine", byURL["https://a.com/fine"].Content)

	paths := h.blobs.Paths()
	assert.Len(t, paths, 2)
	for _, p := range paths {
		assert.NotContains(t, p, ".pdf")
	}
}

func TestRunIdenticalTitlesGetDistinctFiles(t *testing.T) {
	t.Parallel()

	results := map[string][]string{"a.com": {"https://a.com/1", "https://a.com/2"}}
	h := newHarness(t, Config{Scrape: true}, noWait{}, dedup.ModeRun, results)

	_, _, err := h.orch.Run(context.Background(), []string{"cpi"}, []harvest.Domain{{Name: "a.com"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"cpi/id-01-Same_Title.md", "cpi/id-02-Same_Title.md"}, h.blobs.Paths())
}

type cancelingLimiter struct{ cancel context.CancelFunc }

func (c cancelingLimiter) Acquire(ctx context.Context) error {
	c.cancel()
	return ctx.Err()
}

func TestRunReturnsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, Config{}, cancelingLimiter{cancel: cancel}, dedup.ModeRun, nil)

	_, _, err := h.orch.Run(ctx, []string{"cpi"}, []harvest.Domain{{Name: "a.com"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{}, nil)
	require.Error(t, err)

	store, err := storage.New(nil, nil, memory.NewBlobStore(), storage.Config{}, nil)
	require.NoError(t, err)
	_, err = New(Config{Scrape: true}, Deps{Searcher: &fakeSearcher{}, Limiter: noWait{}, Store: store}, nil)
	require.Error(t, err)
}

func flags(articles []harvest.Article) []string {
	out := make([]string, len(articles))
	for i, a := range articles {
		out[i] = a.SuspectedDuplicate
	}
	return out
}
