package decode

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"

	"backtest-artifacts/internal/model"
)

var (
	// ErrNotJSONLines means at least one line is not a JSON document on its own.
	ErrNotJSONLines = errors.New("content is not JSON lines")
	// ErrNotText means the content is not valid UTF-8.
	ErrNotText = errors.New("content is not UTF-8 text")
)

// Number is a JSON number kept as its source literal, so integers of any
// size survive unchanged.
type Number string

// splitLines splits b after every '\n', keeping the terminators.
func splitLines(b []byte) [][]byte {
	var lines [][]byte
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			lines = append(lines, b)
			break
		}
		lines = append(lines, b[:i+1])
		b = b[i+1:]
	}
	return lines
}

// parseJSONLines decodes every line as its own JSON document. It fails as a
// whole if any line fails, and when there are no lines.
func parseJSONLines(b []byte) ([]any, error) {
	lines := splitLines(b)
	if len(lines) == 0 {
		return nil, ErrNotJSONLines
	}
	docs := make([]any, 0, len(lines))
	for i, line := range lines {
		doc, err := parseJSON(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrNotJSONLines, i+1, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// parseJSON decodes b as exactly one JSON document, keeping object key order.
func parseJSON(b []byte) (any, error) {
	if !utf8.Valid(b) {
		return nil, ErrNotText
	}
	b = nullNonFinite(b)
	if !json.Valid(b) {
		return nil, errors.New("invalid JSON document")
	}
	v, typ, _, err := jsonparser.Get(b)
	if err != nil {
		return nil, err
	}
	return jsonValue(v, typ)
}

var nonFiniteLiterals = [][]byte{[]byte("-Infinity"), []byte("Infinity"), []byte("NaN")}

// nullNonFinite rewrites the NaN, Infinity and -Infinity literals that
// Python's json module writes for non-finite floats into null. String
// contents are left alone.
func nullNonFinite(b []byte) []byte {
	if !bytes.Contains(b, nonFiniteLiterals[1]) && !bytes.Contains(b, nonFiniteLiterals[2]) {
		return b
	}
	out := make([]byte, 0, len(b))
	inString, escaped := false, false
	for i := 0; i < len(b); i++ {
		c := b[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			out = append(out, c)
			continue
		}
		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}
		if n := nonFiniteAt(b[i:]); n > 0 {
			out = append(out, "null"...)
			i += n - 1
			continue
		}
		out = append(out, c)
	}
	return out
}

func nonFiniteAt(b []byte) int {
	for _, lit := range nonFiniteLiterals {
		if bytes.HasPrefix(b, lit) {
			return len(lit)
		}
	}
	return 0
}

func jsonValue(v []byte, typ jsonparser.ValueType) (any, error) {
	switch typ {
	case jsonparser.Null:
		return nil, nil
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(v)
	case jsonparser.Number:
		return Number(v), nil
	case jsonparser.String:
		return jsonparser.ParseString(v)
	case jsonparser.Array:
		out := []any{}
		var inner error
		_, err := jsonparser.ArrayEach(v, func(item []byte, t jsonparser.ValueType, _ int, err error) {
			if inner != nil {
				return
			}
			if err != nil {
				inner = err
				return
			}
			x, err := jsonValue(item, t)
			if err != nil {
				inner = err
				return
			}
			out = append(out, x)
		})
		if err != nil {
			return nil, err
		}
		return out, inner
	case jsonparser.Object:
		m := model.NewMapping()
		err := jsonparser.ObjectEach(v, func(key, item []byte, t jsonparser.ValueType, _ int) error {
			// ObjectEach hands over keys already unescaped.
			x, err := jsonValue(item, t)
			if err != nil {
				return err
			}
			m.Set(string(key), x)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("unexpected JSON value type %s", typ)
}
