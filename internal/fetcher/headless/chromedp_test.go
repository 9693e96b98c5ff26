package headless

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
)

type fakeSession struct {
	heights   []float64
	clicked   int
	expandErr error
	navErr    error
	html      string

	navigated []string
	scrolls   int
	sleeps    []time.Duration
	heightIdx int
}

func (f *fakeSession) Navigate(url string) error {
	f.navigated = append(f.navigated, url)
	return f.navErr
}

func (f *fakeSession) Evaluate(expr string, out any) error {
	switch {
	case expr == heightScript:
		h := f.heights[len(f.heights)-1]
		if f.heightIdx < len(f.heights) {
			h = f.heights[f.heightIdx]
		}
		f.heightIdx++
		*(out.(*float64)) = h
	case expr == scrollScript:
		f.scrolls++
	case strings.Contains(expr, "document.evaluate"):
		if f.expandErr != nil {
			return f.expandErr
		}
		*(out.(*int)) = f.clicked
	}
	return nil
}

func (f *fakeSession) Sleep(d time.Duration) error {
	f.sleeps = append(f.sleeps, d)
	return nil
}

func (f *fakeSession) OuterHTML() (string, error) {
	return f.html, nil
}

func newTestFetcher(t *testing.T, cfg Config, s session) (*Fetcher, *int) {
	t.Helper()
	f, err := NewChromedp(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(f.Close)
	closed := 0
	f.open = func(context.Context) (session, context.CancelFunc) {
		return s, func() { closed++ }
	}
	return f, &closed
}

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallel: -1}, nil); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	f, err := NewChromedp(Config{MaxParallel: 2}, nil)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, 2, cap(f.limiter))
	assert.Equal(t, 45*time.Second, f.cfg.NavigationTimeout)
	assert.Equal(t, 2*time.Second, f.cfg.ScrollPause)
	assert.Equal(t, DefaultExpandXPath, f.cfg.ExpandXPath)
}

func TestFetchStopsScrollingWhenHeightStable(t *testing.T) {
	t.Parallel()

	s := &fakeSession{heights: []float64{1000, 2000, 2000}, html: "<html><body>ok</body></html>"}
	f, closed := newTestFetcher(t, Config{ScrollAttempts: 3, ScrollPause: time.Millisecond}, s)

	page, err := f.Fetch(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, page.Rendered)
	assert.Equal(t, s.html, string(page.Body))
	assert.Equal(t, []string{"https://example.com/a"}, s.navigated)
	assert.Equal(t, 2, s.scrolls)
	assert.Equal(t, 1, *closed)
}

func TestFetchScrollBoundedByAttempts(t *testing.T) {
	t.Parallel()

	s := &fakeSession{heights: []float64{1, 2, 3, 4, 5, 6, 7}}
	f, _ := newTestFetcher(t, Config{ScrollAttempts: 3, ScrollPause: time.Millisecond}, s)

	_, err := f.Fetch(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, 3, s.scrolls)
}

func TestFetchExpandIsBestEffort(t *testing.T) {
	t.Parallel()

	s := &fakeSession{heights: []float64{10}, expandErr: errors.New("no xpath")}
	f, _ := newTestFetcher(t, Config{ScrollAttempts: 1, ScrollPause: time.Millisecond}, s)
	_, err := f.Fetch(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	// initial pause plus one scroll pause
	assert.Len(t, s.sleeps, 2)

	s2 := &fakeSession{heights: []float64{10}, clicked: 2}
	f2, _ := newTestFetcher(t, Config{ScrollAttempts: 1, ScrollPause: time.Millisecond}, s2)
	_, err = f2.Fetch(context.Background(), "https://example.com/b")
	require.NoError(t, err)
	assert.Len(t, s2.sleeps, 3)
}

func TestFetchNavigationFailureReleasesSession(t *testing.T) {
	t.Parallel()

	s := &fakeSession{heights: []float64{10}, navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	f, closed := newTestFetcher(t, Config{ScrollPause: time.Millisecond}, s)

	_, err := f.Fetch(context.Background(), "https://nowhere.invalid/")
	require.Error(t, err)
	assert.ErrorIs(t, err, harvest.ErrRender)
	assert.Equal(t, 1, *closed)
}

func TestFetchCanceledWhileWaitingForSlot(t *testing.T) {
	t.Parallel()

	s := &fakeSession{heights: []float64{10}}
	f, _ := newTestFetcher(t, Config{MaxParallel: 1, ScrollPause: time.Millisecond}, s)
	f.limiter <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Fetch(ctx, "https://example.com/a")
	require.ErrorIs(t, err, context.Canceled)
}

func TestExpandScriptEmbedsXPath(t *testing.T) {
	t.Parallel()

	script := expandScript(DefaultExpandXPath)
	assert.Contains(t, script, "//button[contains(., 'Read More')]")
	assert.Contains(t, script, "return clicked")
}
