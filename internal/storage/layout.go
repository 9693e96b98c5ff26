package storage

import (
	"path"
	"regexp"
	"strings"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
)

// DefaultShortTitleLimit is the number of title runes kept in file names.
const DefaultShortTitleLimit = 15

// File extensions for stored content.
const (
	ExtMarkdown = "md"
	ExtPDF      = "pdf"
)

var (
	unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

func sanitize(name string) string {
	cleaned := unsafeNameChars.ReplaceAllString(name, "")
	cleaned = strings.TrimSpace(cleaned)
	return whitespaceRun.ReplaceAllString(cleaned, "_")
}

// TopicDir returns the directory name used for a topic.
func TopicDir(topic string) string {
	if dir := sanitize(topic); dir != "" {
		return dir
	}
	return "untitled_topic"
}

// ShortTitle truncates title to limit runes and makes it safe for file names.
func ShortTitle(title string, limit int) string {
	if limit <= 0 {
		limit = DefaultShortTitleLimit
	}
	runes := []rune(title)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	if short := sanitize(string(runes)); short != "" {
		return short
	}
	return "untitled"
}

// ContentPath returns the slash-separated object path for an article's
// content: {topic}/{id}-{short_title}.{ext}.
func ContentPath(a harvest.Article, limit int, ext string) string {
	name := a.ID + "-" + ShortTitle(a.SourceTitle, limit) + "." + ext
	return path.Join(TopicDir(a.Topic()), name)
}
