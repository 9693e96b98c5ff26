// Package markdown converts fetched HTML and extracted JSON structures into
// Markdown documents.
package markdown

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// Converter turns rendered markup into Markdown.
type Converter struct {
	conv *md.Converter
}

// NewConverter returns a Converter emitting CommonMark with script-like
// elements dropped.
func NewConverter() *Converter {
	conv := md.NewConverter("", true, nil)
	conv.Remove("script", "style", "noscript", "iframe")
	return &Converter{conv: conv}
}

// FromHTML converts html into Markdown. Empty input yields empty output.
func (c *Converter) FromHTML(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	out, err := c.conv.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert html to markdown: %w", err)
	}
	return out, nil
}
