package content

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
)

type stubPages struct {
	page  harvest.Page
	err   error
	calls int
}

func (s *stubPages) Fetch(context.Context, string) (harvest.Page, error) {
	s.calls++
	return s.page, s.err
}

type stubFetcher struct {
	out   string
	err   error
	calls int
}

func (s *stubFetcher) Fetch(context.Context, string) (string, error) {
	s.calls++
	return s.out, s.err
}

func (s *stubFetcher) Name() string { return "stub" }

func TestStaticConvertsSuccessfulPage(t *testing.T) {
	t.Parallel()

	pages := &stubPages{page: harvest.Page{StatusCode: 200, Body: []byte("<h2>News</h2>")}}
	fallback := &stubFetcher{out: "fallback"}
	s := NewStatic(pages, fallback, nil, nil)

	out, err := s.Fetch(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "## News", out)
	assert.Zero(t, fallback.calls)
}

func TestStaticFallsBackOnceOnNon2xx(t *testing.T) {
	t.Parallel()

	pages := &stubPages{page: harvest.Page{StatusCode: 500}}
	fallback := &stubFetcher{out: "rendered"}
	s := NewStatic(pages, fallback, nil, nil)

	out, err := s.Fetch(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "rendered", out)
	assert.Equal(t, 1, pages.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestStaticNoFallbackOnTransportError(t *testing.T) {
	t.Parallel()

	pages := &stubPages{err: harvest.ErrTransport}
	fallback := &stubFetcher{out: "rendered"}
	s := NewStatic(pages, fallback, nil, nil)

	_, err := s.Fetch(context.Background(), "https://example.com/a")
	require.ErrorIs(t, err, harvest.ErrTransport)
	assert.Zero(t, fallback.calls)
}

func TestStaticWithoutFallback(t *testing.T) {
	t.Parallel()

	s := NewStatic(&stubPages{page: harvest.Page{StatusCode: 403}}, nil, nil, nil)
	_, err := s.Fetch(context.Background(), "https://example.com/a")
	require.ErrorIs(t, err, harvest.ErrUpstream)
}

type shellFlag bool

func (f shellFlag) NeedsRender(harvest.Page) bool { return bool(f) }

func TestStaticPromotesShells(t *testing.T) {
	t.Parallel()

	pages := &stubPages{page: harvest.Page{StatusCode: 200, Body: []byte(`<div id="root"></div>`)}}
	fallback := &stubFetcher{out: "rendered"}
	s := NewStatic(pages, fallback, nil, nil).PromoteShells(shellFlag(true))

	out, err := s.Fetch(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "rendered", out)
	assert.Equal(t, 1, fallback.calls)

	plain := NewStatic(&stubPages{page: harvest.Page{StatusCode: 200, Body: []byte("<p>text</p>")}}, fallback, nil, nil).
		PromoteShells(shellFlag(false))
	out, err = plain.Fetch(context.Background(), "https://example.com/b")
	require.NoError(t, err)
	assert.Equal(t, "text", out)
	assert.Equal(t, 1, fallback.calls)
}

func TestStaticShellWithoutFallbackConverts(t *testing.T) {
	t.Parallel()

	s := NewStatic(&stubPages{page: harvest.Page{StatusCode: 200, Body: []byte("<p>shell</p>")}}, nil, nil, nil).
		PromoteShells(shellFlag(true))
	out, err := s.Fetch(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "shell", out)
}

func TestRenderedConvertsBody(t *testing.T) {
	t.Parallel()

	r := NewRendered(&stubPages{page: harvest.Page{StatusCode: 200, Body: []byte("<p>hello</p>"), Rendered: true}}, nil)
	out, err := r.Fetch(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "headless", r.Name())
}

func TestSafeSwallowsErrors(t *testing.T) {
	t.Parallel()

	safe := NewSafe(&stubFetcher{err: errors.New("boom")}, nil)
	assert.Equal(t, "", safe.Markdown(context.Background(), "https://example.com/a"))

	safe = NewSafe(&stubFetcher{out: "text"}, nil)
	assert.Equal(t, "text", safe.Markdown(context.Background(), "https://example.com/a"))
}
