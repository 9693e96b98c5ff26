// Package dedup flags article stubs that share a source URL.
package dedup

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
)

// Mode selects the scope of the duplicate check.
type Mode string

// Supported modes.
const (
	// ModeRun flags repeats across the whole run's result set.
	ModeRun Mode = "on"
	// ModeOff skips the check; every article is marked non-duplicate.
	ModeOff Mode = "off"
	// ModeBatch flags repeats only within one (topic, domain) search batch.
	ModeBatch Mode = "batch"
)

// ParseMode maps a configuration value onto a Mode.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeRun, "run", "global", "yes", "true", "1":
		return ModeRun, nil
	case ModeOff, "", "no", "false", "0":
		return ModeOff, nil
	case ModeBatch:
		return ModeBatch, nil
	default:
		return "", fmt.Errorf("unknown dedup mode %q", raw)
	}
}

// Deduplicator marks the first article seen for a URL as "no" and every later
// one as "yes". Articles are never removed.
type Deduplicator struct {
	mode Mode
	seen map[string]struct{}
}

// New creates a Deduplicator for mode.
func New(mode Mode) *Deduplicator {
	return &Deduplicator{
		mode: mode,
		seen: make(map[string]struct{}),
	}
}

// Mode returns the configured mode.
func (d *Deduplicator) Mode() Mode {
	return d.mode
}

// Reset forgets every URL seen so far. Call it at the start of each run.
func (d *Deduplicator) Reset() {
	clear(d.seen)
}

// Flag sets SuspectedDuplicate on every article in order and returns the
// number flagged as duplicates. In ModeRun the seen set persists between
// calls until Reset; in ModeBatch each call starts fresh.
func (d *Deduplicator) Flag(articles []harvest.Article) int {
	if d.mode == ModeOff {
		for i := range articles {
			articles[i].SuspectedDuplicate = harvest.DuplicateNo
		}
		return 0
	}
	seen := d.seen
	if d.mode == ModeBatch {
		seen = make(map[string]struct{}, len(articles))
	}
	dups := 0
	for i := range articles {
		key := articles[i].SourceURL
		if _, ok := seen[key]; ok {
			articles[i].SuspectedDuplicate = harvest.DuplicateYes
			dups++
			continue
		}
		articles[i].SuspectedDuplicate = harvest.DuplicateNo
		seen[key] = struct{}{}
	}
	return dups
}
