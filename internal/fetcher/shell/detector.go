// Package shell recognises HTML responses that are client-side application
// shells, where the article only appears after scripts run.
package shell

import (
	"bytes"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
)

// DefaultMinBody is the body size under which a script-heavy page counts as
// a shell.
const DefaultMinBody = 2048

// scriptShare is the percentage of the document covered by <script> blocks
// above which a small page is treated as a shell.
const scriptShare = 25

var markers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version="),
}

// Detector flags successful pages whose static HTML is unlikely to hold the
// article text.
type Detector struct {
	minBody int
}

// New builds a Detector. minBody <= 0 selects DefaultMinBody.
func New(minBody int) *Detector {
	if minBody <= 0 {
		minBody = DefaultMinBody
	}
	return &Detector{minBody: minBody}
}

// NeedsRender reports whether page should be re-fetched with a renderer.
// Only 2xx pages are considered; failures are handled by status fallback.
func (d *Detector) NeedsRender(page harvest.Page) bool {
	if !page.OK() {
		return false
	}
	body := page.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	for _, m := range markers {
		if bytes.Contains(body, m) {
			return true
		}
	}
	return len(body) < d.minBody && scriptCoverage(body)*100/len(body) >= scriptShare
}

// scriptCoverage returns how many bytes of body sit inside <script> elements,
// tags included. An unterminated script runs to the end of the document.
func scriptCoverage(body []byte) int {
	lower := bytes.ToLower(body)
	openTag, closeTag := []byte("<script"), []byte("</script>")
	covered := 0
	for pos := 0; pos < len(lower); {
		start := bytes.Index(lower[pos:], openTag)
		if start < 0 {
			break
		}
		start += pos
		end := bytes.Index(lower[start:], closeTag)
		if end < 0 {
			covered += len(lower) - start
			break
		}
		end += start + len(closeTag)
		covered += end - start
		pos = end
	}
	return covered
}
