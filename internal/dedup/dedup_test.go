package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
)

func articles(urls ...string) []harvest.Article {
	out := make([]harvest.Article, 0, len(urls))
	for i, u := range urls {
		out = append(out, harvest.Article{ID: string(rune('a' + i)), SourceURL: u})
	}
	return out
}

func flags(in []harvest.Article) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		out = append(out, a.SuspectedDuplicate)
	}
	return out
}

func TestRunModeFirstOccurrenceWins(t *testing.T) {
	t.Parallel()

	in := articles("urlA", "urlB", "urlA")
	n := New(ModeRun).Flag(in)

	require.Len(t, in, 3)
	assert.Equal(t, []string{"no", "no", "yes"}, flags(in))
	assert.Equal(t, 1, n)
}

func TestRunModeRemembersAcrossCalls(t *testing.T) {
	t.Parallel()

	d := New(ModeRun)
	first := articles("urlA", "urlB")
	second := articles("urlB", "urlC")
	d.Flag(first)
	d.Flag(second)

	assert.Equal(t, []string{"no", "no"}, flags(first))
	assert.Equal(t, []string{"yes", "no"}, flags(second))
}

func TestResetForgetsSeenURLs(t *testing.T) {
	t.Parallel()

	d := New(ModeRun)
	first := articles("urlA")
	d.Flag(first)
	d.Reset()
	second := articles("urlA", "urlA")
	d.Flag(second)

	assert.Equal(t, []string{"no"}, flags(first))
	assert.Equal(t, []string{"no", "yes"}, flags(second))
}

func TestBatchModeResetsPerCall(t *testing.T) {
	t.Parallel()

	d := New(ModeBatch)
	first := articles("urlA", "urlA")
	second := articles("urlA", "urlB")
	d.Flag(first)
	d.Flag(second)

	assert.Equal(t, []string{"no", "yes"}, flags(first))
	assert.Equal(t, []string{"no", "no"}, flags(second))
}

func TestOffModeMarksEverythingUnique(t *testing.T) {
	t.Parallel()

	in := articles("urlA", "urlA", "urlA")
	assert.Zero(t, New(ModeOff).Flag(in))
	assert.Equal(t, []string{"no", "no", "no"}, flags(in))
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	cases := map[string]Mode{
		"on":    ModeRun,
		"ON":    ModeRun,
		"off":   ModeOff,
		"":      ModeOff,
		"batch": ModeBatch,
	}
	for raw, want := range cases {
		got, err := ParseMode(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseMode("sometimes")
	assert.Error(t, err)
}
