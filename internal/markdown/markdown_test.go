package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHTML(t *testing.T) {
	t.Parallel()

	c := NewConverter()
	out, err := c.FromHTML(`<html><body><h1>Title</h1><p>Hello <strong>world</strong></p><script>var x=1;</script></body></html>`)
	require.NoError(t, err)
	assert.Contains(t, out, "# Title")
	assert.Contains(t, out, "Hello **world**")
	assert.NotContains(t, out, "var x")

	empty, err := c.FromHTML("  ")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFromJSONNestedOrderPreserved(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"headline": "Rates rise",
		"authors": [{"name": "A. Writer"}, "Desk"],
		"meta": {"wordCount": 512, "paywalled": false, "section": null},
		"empty": {}
	}`)
	out, err := FromJSON(raw)
	require.NoError(t, err)

	want := strings.Join([]string{
		"# Extracted Article\n",
		"- **headline**: Rates rise",
		"- **authors**:",
		"  - **Item 0**:",
		"    - **name**: A. Writer",
		"  - **Item 1**: Desk",
		"- **meta**:",
		"  - **wordCount**: 512",
		"  - **paywalled**: false",
		"  - **section**: null",
		"- **empty**:",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestFromJSONTopLevelArrayAndEmpty(t *testing.T) {
	t.Parallel()

	out, err := FromJSON([]byte(`[1, [2]]`))
	require.NoError(t, err)
	assert.Equal(t, "# Extracted Article\n\n- **Item 0**: 1\n- **Item 1**:\n  - **Item 0**: 2", out)

	out, err = FromJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "# Extracted Article\n", out)
}

func TestFromJSONRejectsMalformed(t *testing.T) {
	t.Parallel()

	_, err := FromJSON([]byte(`{"a": `))
	assert.Error(t, err)
	_, err = FromJSON([]byte(`{"a": 1} {"b": 2}`))
	assert.Error(t, err)
}
