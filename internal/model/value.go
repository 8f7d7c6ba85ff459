package model

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Mapping is a string-keyed mapping that remembers insertion order, so decoded
// dicts come out with their keys in the order they were written.
type Mapping = orderedmap.OrderedMap[string, any]

func NewMapping() *Mapping {
	return orderedmap.New[string, any]()
}

// Set is a decoded Python set or frozenset. It has no JSON form and is
// rendered with its str() representation.
type Set struct {
	Items  []any
	Frozen bool
}

func (s Set) String() string {
	parts := make([]string, len(s.Items))
	for i, it := range s.Items {
		parts[i] = Repr(it)
	}
	sort.Strings(parts)
	body := "{" + strings.Join(parts, ", ") + "}"
	switch {
	case s.Frozen && len(parts) == 0:
		return "frozenset()"
	case s.Frozen:
		return "frozenset(" + body + ")"
	case len(parts) == 0:
		return "set()"
	}
	return body
}

// Opaque stands in for an instance of a class we have no decoder for.
type Opaque struct {
	Module string
	Name   string
}

func (o Opaque) String() string {
	return fmt.Sprintf("<%s.%s object>", o.Module, o.Name)
}

// KeyString converts a mapping key to its JSON object key the way Python's
// json.dumps does. Keys of any other type are rejected.
func KeyString(k any) (string, error) {
	switch x := k.(type) {
	case string:
		return x, nil
	case nil:
		return "null", nil
	case bool:
		if x {
			return "true", nil
		}
		return "false", nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case *big.Int:
		return x.String(), nil
	case float64:
		switch {
		case math.IsNaN(x):
			return "NaN", nil
		case math.IsInf(x, 1):
			return "Infinity", nil
		case math.IsInf(x, -1):
			return "-Infinity", nil
		}
		return FloatRepr(x), nil
	}
	return "", fmt.Errorf("keys must be str, int, float, bool or None, not %s", pyTypeName(k))
}

// FloatRepr formats f like Python's float repr: shortest round-trip digits,
// always with a fractional part or an exponent.
func FloatRepr(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	e := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return e
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Repr renders v the way Python's repr() would for the value kinds we decode.
func Repr(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case *big.Int:
		return x.String()
	case float64:
		return FloatRepr(x)
	case string:
		return quoteString(x)
	case []byte:
		return BytesRepr(x)
	case []any:
		parts := make([]string, len(x))
		for i, it := range x {
			parts[i] = Repr(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Mapping:
		parts := make([]string, 0, x.Len())
		for p := x.Oldest(); p != nil; p = p.Next() {
			parts = append(parts, quoteString(p.Key)+": "+Repr(p.Value))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// BytesRepr renders b as a Python bytes literal, e.g. b'ab\x00'.
func BytesRepr(b []byte) string {
	quote := byte('\'')
	if strings.IndexByte(string(b), '\'') >= 0 && strings.IndexByte(string(b), '"') < 0 {
		quote = '"'
	}
	var sb strings.Builder
	sb.WriteString("b")
	sb.WriteByte(quote)
	for _, c := range b {
		switch {
		case c == quote || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\t':
			sb.WriteString(`\t`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(&sb, `\x%02x`, c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte(quote)
	return sb.String()
}

func quoteString(s string) string {
	quote := "'"
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		quote = `"`
	}
	r := strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`, "\t", `\t`, quote, `\`+quote)
	return quote + r.Replace(s) + quote
}

func pyTypeName(v any) string {
	switch v.(type) {
	case []any:
		return "tuple"
	case []byte:
		return "bytes"
	case DateTime:
		return "datetime"
	case Date:
		return "date"
	case Duration:
		return "timedelta"
	case Set:
		return "set"
	case *Mapping:
		return "dict"
	case Opaque:
		return v.(Opaque).Name
	}
	return fmt.Sprintf("%T", v)
}
