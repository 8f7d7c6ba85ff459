package decode

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"

	"github.com/goccy/go-json"

	"backtest-artifacts/internal/model"
)

// Encode writes a normalized value as one line of JSON followed by a newline.
// Mapping keys keep their order.
func Encode(w io.Writer, v any) error {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(x))
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case *big.Int:
		buf.WriteString(x.String())
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(model.FloatRepr(x))
	case Number:
		buf.WriteString(string(x))
	case string:
		b, err := json.MarshalNoEscape(x)
		if err != nil {
			return err
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, it := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, it); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *model.Mapping:
		buf.WriteByte('{')
		first := true
		for p := x.Oldest(); p != nil; p = p.Next() {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			if err := encodeValue(buf, p.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeValue(buf, p.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("cannot encode %T as JSON", v)
	}
	return nil
}
