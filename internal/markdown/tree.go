package markdown

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// TreeHeading is the title line written above a rendered JSON structure.
const TreeHeading = "# Extracted Article"

// FromJSON renders an arbitrary JSON document as an indented bullet list.
// Object keys keep their document order; list elements are labelled
// "Item N". Nesting adds two spaces of indentation per level.
func FromJSON(raw []byte) (string, error) {
	lines := []string{TreeHeading + "\n"}
	if len(bytes.TrimSpace(raw)) == 0 {
		return strings.Join(lines, "\n"), nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("read json: %w", err)
	}
	w := &treeWriter{dec: dec, lines: lines}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			err = w.object(0)
		case '[':
			err = w.array(0)
		default:
			err = fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		w.lines = append(w.lines, "- "+scalar(t))
	}
	if err != nil {
		return "", err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("trailing data after json value")
	}
	return strings.Join(w.lines, "\n"), nil
}

type treeWriter struct {
	dec   *json.Decoder
	lines []string
}

func (w *treeWriter) object(indent int) error {
	for w.dec.More() {
		keyTok, err := w.dec.Token()
		if err != nil {
			return fmt.Errorf("read object key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", keyTok)
		}
		if err := w.value(indent, key); err != nil {
			return err
		}
	}
	return w.closing('}')
}

func (w *treeWriter) array(indent int) error {
	for i := 0; w.dec.More(); i++ {
		if err := w.value(indent, fmt.Sprintf("Item %d", i)); err != nil {
			return err
		}
	}
	return w.closing(']')
}

func (w *treeWriter) value(indent int, label string) error {
	tok, err := w.dec.Token()
	if err != nil {
		return fmt.Errorf("read value for %q: %w", label, err)
	}
	prefix := strings.Repeat("  ", indent)
	delim, isDelim := tok.(json.Delim)
	if !isDelim {
		w.lines = append(w.lines, fmt.Sprintf("%s- **%s**: %s", prefix, label, scalar(tok)))
		return nil
	}
	w.lines = append(w.lines, fmt.Sprintf("%s- **%s**:", prefix, label))
	switch delim {
	case '{':
		return w.object(indent + 1)
	case '[':
		return w.array(indent + 1)
	default:
		return fmt.Errorf("unexpected delimiter %q", delim)
	}
}

func (w *treeWriter) closing(want json.Delim) error {
	tok, err := w.dec.Token()
	if err != nil {
		return fmt.Errorf("read closing %q: %w", want, err)
	}
	if tok != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func scalar(tok json.Token) string {
	switch v := tok.(type) {
	case nil:
		return "null"
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(v)
	}
}
