package shell

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
)

func page(status int, body string) harvest.Page {
	return harvest.Page{StatusCode: status, Body: []byte(body)}
}

func TestNeedsRender(t *testing.T) {
	t.Parallel()

	article := "<html><body><article>" + strings.Repeat("Prices rose again. ", 200) + "</article></body></html>"
	tests := []struct {
		name string
		page harvest.Page
		want bool
	}{
		{name: "empty body", page: page(200, "  \n"), want: true},
		{name: "react root", page: page(200, article+`<div id="root"></div>`), want: true},
		{name: "next.js", page: page(200, `<div id="__next"></div>`+article), want: true},
		{name: "script heavy small page", page: page(200, `<html><script>var a = 1; var b = 2; load();</script><p>x</p></html>`), want: true},
		{name: "unterminated script", page: page(200, `<p>hi</p><script src="a.js">boot()`), want: true},
		{name: "plain article", page: page(200, article), want: false},
		{name: "small page without scripts", page: page(200, "<p>short note</p>"), want: false},
		{name: "non-2xx ignored", page: page(404, ""), want: false},
	}
	d := New(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.NeedsRender(tt.page))
		})
	}
}

func TestLargeScriptPageIsNotAShell(t *testing.T) {
	t.Parallel()

	body := "<script>" + strings.Repeat("x", 3000) + "</script><p>body</p>"
	assert.False(t, New(1024).NeedsRender(page(200, body)))
	assert.True(t, New(8192).NeedsRender(page(200, body)))
}
