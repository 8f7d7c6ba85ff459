package unpickle

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"backtest-artifacts/internal/model"
)

// dtype is a numpy.dtype. kind follows numpy's type characters: b i u f M m
// O U S.
type dtype struct {
	kind  byte
	size  int
	order binary.ByteOrder
	unit  string
}

var dtypeSpec = regexp.MustCompile(`^([biufMmOUSV?])(\d*)(?:\[(\w+)\])?$`)

// newDtype handles numpy.dtype(spec, align, copy). Byte order and datetime
// units arrive later through BUILD.
func newDtype(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("dtype: missing type spec")
	}
	spec, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("dtype: spec is %T", args[0])
	}
	m := dtypeSpec.FindStringSubmatch(strings.TrimLeft(spec, "<>|="))
	if m == nil {
		return nil, fmt.Errorf("dtype: unsupported spec %q", spec)
	}
	dt := &dtype{kind: m[1][0], order: binary.LittleEndian, unit: m[3]}
	if dt.kind == '?' {
		dt.kind, dt.size = 'b', 1
	}
	if m[2] != "" {
		dt.size, _ = strconv.Atoi(m[2])
	}
	return dt, nil
}

// PySetState reads numpy's dtype state tuple:
// (version, byteorder, subarray, names, fields, elsize, alignment, flags[, metadata]).
func (d *dtype) PySetState(state interface{}) error {
	t, ok := asTuple(state)
	if !ok || len(t) < 2 {
		return fmt.Errorf("dtype: unexpected state %T", state)
	}
	if order, ok := t[1].(string); ok && order == ">" {
		d.order = binary.BigEndian
	}
	if len(t) > 5 {
		if elsize, ok := asInt(t[5]); ok && elsize > 0 {
			d.size = int(elsize)
		}
	}
	if d.kind == 'M' || d.kind == 'm' {
		d.unit = datetimeUnit(t[len(t)-1], d.unit)
	}
	return nil
}

// datetimeUnit finds the (unit, num, den, events) tuple inside the datetime
// metadata numpy appends to the dtype state as ({}, (b'ns', 1, 1, 1)).
func datetimeUnit(meta interface{}, def string) string {
	items, ok := asTuple(meta)
	if !ok || len(items) == 0 {
		return def
	}
	if unit, err := stateBytes(items[0]); err == nil {
		return string(unit)
	}
	for _, it := range items {
		if u := datetimeUnit(it, ""); u != "" {
			return u
		}
	}
	return def
}

func (d *dtype) itemSize() int {
	switch d.kind {
	case 'b':
		return 1
	case 'M', 'm':
		return 8
	}
	return d.size
}

// decode converts one element's bytes.
func (d *dtype) decode(b []byte) (interface{}, error) {
	switch d.kind {
	case 'b':
		return b[0] != 0, nil
	case 'i':
		switch d.size {
		case 1:
			return int64(int8(b[0])), nil
		case 2:
			return int64(int16(d.order.Uint16(b))), nil
		case 4:
			return int64(int32(d.order.Uint32(b))), nil
		case 8:
			return int64(d.order.Uint64(b)), nil
		}
	case 'u':
		switch d.size {
		case 1:
			return int64(b[0]), nil
		case 2:
			return int64(d.order.Uint16(b)), nil
		case 4:
			return int64(d.order.Uint32(b)), nil
		case 8:
			v := d.order.Uint64(b)
			if v > math.MaxInt64 {
				return new(big.Int).SetUint64(v), nil
			}
			return int64(v), nil
		}
	case 'f':
		switch d.size {
		case 4:
			return float64(math.Float32frombits(d.order.Uint32(b))), nil
		case 8:
			return math.Float64frombits(d.order.Uint64(b)), nil
		}
	case 'M':
		v := int64(d.order.Uint64(b))
		if v == math.MinInt64 {
			return model.NaT{}, nil
		}
		t, err := fromEpoch(v, d.unit)
		if err != nil {
			return nil, err
		}
		return model.DateTime{Time: t}, nil
	case 'm':
		v := int64(d.order.Uint64(b))
		if v == math.MinInt64 {
			return model.NaT{}, nil
		}
		step, err := unitDuration(d.unit)
		if err != nil {
			return nil, err
		}
		return model.Duration(time.Duration(v) * step), nil
	case 'U':
		runes := make([]rune, 0, len(b)/4)
		for i := 0; i+4 <= len(b); i += 4 {
			r := rune(d.order.Uint32(b[i:]))
			if r == 0 {
				break
			}
			if !utf8.ValidRune(r) {
				return nil, fmt.Errorf("dtype U: invalid code point %#x", r)
			}
			runes = append(runes, r)
		}
		return string(runes), nil
	case 'S':
		end := len(b)
		for end > 0 && b[end-1] == 0 {
			end--
		}
		return append([]byte(nil), b[:end]...), nil
	}
	return nil, fmt.Errorf("dtype %c%d is not supported", d.kind, d.size)
}

func (d *dtype) decodeAll(b []byte) ([]interface{}, error) {
	size := d.itemSize()
	if size <= 0 {
		return nil, fmt.Errorf("dtype %c has no fixed item size", d.kind)
	}
	if len(b)%size != 0 {
		return nil, fmt.Errorf("dtype %c%d: %d bytes is not a whole number of items", d.kind, size, len(b))
	}
	out := make([]interface{}, 0, len(b)/size)
	for i := 0; i < len(b); i += size {
		v, err := d.decode(b[i : i+size])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func unitDuration(unit string) (time.Duration, error) {
	switch unit {
	case "ns", "":
		return time.Nanosecond, nil
	case "us":
		return time.Microsecond, nil
	case "ms":
		return time.Millisecond, nil
	case "s":
		return time.Second, nil
	case "m":
		return time.Minute, nil
	case "h":
		return time.Hour, nil
	case "D":
		return 24 * time.Hour, nil
	case "W":
		return 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("datetime unit %q is not supported", unit)
}

func fromEpoch(v int64, unit string) (time.Time, error) {
	step, err := unitDuration(unit)
	if err != nil {
		return time.Time{}, err
	}
	if step >= time.Second {
		return time.Unix(v*int64(step/time.Second), 0).UTC(), nil
	}
	per := int64(time.Second / step)
	sec, frac := v/per, v%per
	if frac < 0 {
		sec--
		frac += per
	}
	return time.Unix(sec, frac*int64(step)).UTC(), nil
}

// ndarray is a numpy array. items hold decoded elements in storage order;
// object arrays keep the raw pickled values.
type ndarray struct {
	shape   []int
	dtype   *dtype
	fortran bool
	items   []interface{}
}

// newArray handles numpy.core.multiarray._reconstruct(ndarray, (0,), b'b');
// the content arrives through BUILD.
func newArray(args ...interface{}) (interface{}, error) {
	return &ndarray{}, nil
}

// PySetState reads (version, shape, dtype, is_fortran, data).
func (a *ndarray) PySetState(state interface{}) error {
	t, ok := asTuple(state)
	if !ok {
		return fmt.Errorf("ndarray: unexpected state %T", state)
	}
	if len(t) == 5 {
		t = t[1:]
	}
	if len(t) != 4 {
		return fmt.Errorf("ndarray: unexpected state length %d", len(t))
	}
	dt, ok := t[1].(*dtype)
	if !ok {
		return fmt.Errorf("ndarray: dtype is %T", t[1])
	}
	fortran, _ := t[2].(bool)
	return a.fill(t[0], dt, fortran, t[3])
}

func (a *ndarray) fill(shape interface{}, dt *dtype, fortran bool, data interface{}) error {
	dims, ok := asTuple(shape)
	if !ok {
		return fmt.Errorf("ndarray: shape is %T", shape)
	}
	a.shape = make([]int, len(dims))
	for i, d := range dims {
		n, ok := asInt(d)
		if !ok {
			return fmt.Errorf("ndarray: shape[%d] is %T", i, d)
		}
		a.shape[i] = int(n)
	}
	a.dtype, a.fortran = dt, fortran
	if items, ok := asTuple(data); ok {
		a.items = items
		return nil
	}
	raw, err := stateBytes(data)
	if err != nil {
		return fmt.Errorf("ndarray: %w", err)
	}
	a.items, err = dt.decodeAll(raw)
	return err
}

// arrayFromBuffer handles numpy.core.numeric._frombuffer(buf, dtype, shape, order),
// the protocol 5 array form.
func arrayFromBuffer(args ...interface{}) (interface{}, error) {
	if len(args) < 4 {
		return nil, fmt.Errorf("_frombuffer: expected 4 arguments, got %d", len(args))
	}
	dt, ok := args[1].(*dtype)
	if !ok {
		return nil, fmt.Errorf("_frombuffer: dtype is %T", args[1])
	}
	order, _ := args[3].(string)
	a := &ndarray{}
	if err := a.fill(args[2], dt, order == "F", args[0]); err != nil {
		return nil, err
	}
	return a, nil
}

// newScalar handles numpy.core.multiarray.scalar(dtype, data).
func newScalar(args ...interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("scalar: expected 2 arguments, got %d", len(args))
	}
	dt, ok := args[0].(*dtype)
	if !ok {
		return nil, fmt.Errorf("scalar: dtype is %T", args[0])
	}
	if dt.kind == 'O' {
		return args[1], nil
	}
	raw, err := stateBytes(args[1])
	if err != nil {
		return nil, fmt.Errorf("scalar: %w", err)
	}
	if dt.kind == 'U' || dt.kind == 'S' {
		dt = &dtype{kind: dt.kind, size: len(raw), order: dt.order}
	}
	if size := dt.itemSize(); size <= 0 || len(raw) < size {
		return nil, fmt.Errorf("scalar: %d bytes for dtype %c%d", len(raw), dt.kind, dt.size)
	}
	return dt.decode(raw[:dt.itemSize()])
}

func (a *ndarray) size() int {
	n := 1
	for _, d := range a.shape {
		n *= d
	}
	return n
}

// flat returns the elements in C order.
func (a *ndarray) flat() []interface{} {
	if !a.fortran || len(a.shape) < 2 {
		return a.items
	}
	rows, cols := a.shape[0], a.size()/max(a.shape[0], 1)
	out := make([]interface{}, len(a.items))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[i*cols+j] = a.items[j*rows+i]
		}
	}
	return out
}

// rows splits a 2-D array into its rows. 1-D arrays are a single row.
func (a *ndarray) rows() [][]interface{} {
	flat := a.flat()
	if len(a.shape) < 2 {
		return [][]interface{}{flat}
	}
	n := a.shape[0]
	if n == 0 {
		return nil
	}
	width := len(flat) / n
	out := make([][]interface{}, n)
	for i := range out {
		out[i] = flat[i*width : (i+1)*width]
	}
	return out
}
