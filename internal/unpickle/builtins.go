package unpickle

import (
	"fmt"
	"math/big"
	"reflect"
	"time"
	"unicode/utf8"

	"github.com/nlpodyssey/gopickle/types"
	"golang.org/x/text/encoding/charmap"

	"backtest-artifacts/internal/model"
)

var globals = map[string]interface{}{
	"builtins.set":            callable(newSet(false)),
	"builtins.frozenset":      callable(newSet(true)),
	"builtins.slice":          callable(newSlice),
	"builtins.bytearray":      callable(newBytes),
	"builtins.bytes":          callable(newBytes),
	"collections.OrderedDict": callable(newOrderedDict),
	"collections.defaultdict": callable(newOrderedDict),
	"copyreg._reconstructor":  callable(reconstruct),
	"_codecs.encode":          callable(codecsEncode),
	"decimal.Decimal":         callable(newDecimal),

	"datetime.datetime":  callable(newDateTime),
	"datetime.date":      callable(newDate),
	"datetime.time":      callable(newClock),
	"datetime.timedelta": callable(newTimedelta),
	"datetime.timezone":  callable(newTimezone),
	"pytz._UTC":          callable(func(...interface{}) (interface{}, error) { return time.UTC, nil }),
	"pytz._p":            callable(newPytzZone),

	"numpy.dtype":                        callable(newDtype),
	"numpy.core.multiarray._reconstruct": callable(newArray),
	"numpy.core.multiarray.scalar":       callable(newScalar),
	"numpy.core.numeric._frombuffer":     callable(arrayFromBuffer),
}

type setObj struct {
	items  []interface{}
	frozen bool
}

func newSet(frozen bool) callable {
	return func(args ...interface{}) (interface{}, error) {
		s := &setObj{frozen: frozen}
		if len(args) > 0 {
			items, err := iterate(args[0])
			if err != nil {
				return nil, fmt.Errorf("set: %w", err)
			}
			s.items = items
		}
		return s, nil
	}
}

// sliceObj is builtins.slice; pandas uses it for block placements.
type sliceObj struct {
	start, stop, step interface{}
}

func newSlice(args ...interface{}) (interface{}, error) {
	s := &sliceObj{}
	switch len(args) {
	case 1:
		s.stop = args[0]
	case 3:
		s.step = args[2]
		fallthrough
	case 2:
		s.start, s.stop = args[0], args[1]
	default:
		return nil, fmt.Errorf("slice: expected 1 to 3 arguments, got %d", len(args))
	}
	return s, nil
}

// indices expands the slice over a sequence of length n.
func (s *sliceObj) indices(n int) ([]int, error) {
	step := int64(1)
	if s.step != nil {
		v, ok := asInt(s.step)
		if !ok || v == 0 {
			return nil, fmt.Errorf("slice: invalid step %v", s.step)
		}
		step = v
	}
	bound := func(v interface{}, def int64) (int64, error) {
		if v == nil {
			return def, nil
		}
		i, ok := asInt(v)
		if !ok {
			return 0, fmt.Errorf("slice: invalid bound %v", v)
		}
		if i < 0 {
			i += int64(n)
		}
		return i, nil
	}
	var start, stop int64
	var err error
	if step > 0 {
		if start, err = bound(s.start, 0); err != nil {
			return nil, err
		}
		if stop, err = bound(s.stop, int64(n)); err != nil {
			return nil, err
		}
		start, stop = clamp(start, 0, int64(n)), clamp(stop, 0, int64(n))
	} else {
		if start, err = bound(s.start, int64(n)-1); err != nil {
			return nil, err
		}
		if stop, err = bound(s.stop, -1); err != nil {
			return nil, err
		}
		start, stop = clamp(start, -1, int64(n)-1), clamp(stop, -1, int64(n)-1)
	}
	var out []int
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		out = append(out, int(i))
	}
	return out, nil
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func newBytes(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return []byte{}, nil
	}
	if s, ok := args[0].(string); ok {
		return latin1(s)
	}
	if b, ok := bytesOf(args[0]); ok {
		return b, nil
	}
	return nil, fmt.Errorf("bytes: unsupported argument %T", args[0])
}

func newOrderedDict(args ...interface{}) (interface{}, error) {
	d := &dictObject{}
	if len(args) == 0 {
		return d, nil
	}
	pairs, err := iterate(args[len(args)-1])
	if err != nil {
		// defaultdict(factory) carries no items in its arguments
		return d, nil
	}
	for _, p := range pairs {
		kv, ok := asTuple(p)
		if !ok || len(kv) != 2 {
			return nil, fmt.Errorf("OrderedDict: item is not a pair: %T", p)
		}
		d.Set(kv[0], kv[1])
	}
	return d, nil
}

func reconstruct(args ...interface{}) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("_reconstructor: missing class")
	}
	c, ok := args[0].(*class)
	if !ok {
		return nil, fmt.Errorf("_reconstructor: unsupported class %T", args[0])
	}
	return c.PyNew()
}

// codecsEncode is how protocol 2 pickles spell bytes: encode(u'...', 'latin1').
func codecsEncode(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("_codecs.encode: missing argument")
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("_codecs.encode: expected str, got %T", args[0])
	}
	return latin1(s)
}

// latin1 reverses the latin-1 decode Python applies to bytes pickled under
// protocols 0 to 2. Text that is not UTF-8 already holds the raw bytes.
func latin1(s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return []byte(s), nil
	}
	b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("latin-1 encode: %w", err)
	}
	return b, nil
}

// newDecimal keeps the textual form, which is what str(Decimal) yields.
func newDecimal(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return "0", nil
	}
	if s, ok := args[0].(string); ok {
		return s, nil
	}
	return fmt.Sprint(args[0]), nil
}

func newDateTime(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("datetime: missing state")
	}
	b, err := stateBytes(args[0])
	if err != nil || len(b) != 10 {
		return nil, fmt.Errorf("datetime: unsupported state %T", args[0])
	}
	year := int(b[0])<<8 | int(b[1])
	us := int(b[7])<<16 | int(b[8])<<8 | int(b[9])
	var tz interface{}
	if len(args) > 1 {
		tz = args[1]
	}
	loc, aware := location(tz)
	t := time.Date(year, time.Month(b[2]&0x7f), int(b[3]), int(b[4]&0x7f), int(b[5]), int(b[6]), us*1000, loc)
	return model.DateTime{Time: t, Aware: aware}, nil
}

func newDate(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("date: missing state")
	}
	b, err := stateBytes(args[0])
	if err != nil || len(b) != 4 {
		return nil, fmt.Errorf("date: unsupported state %T", args[0])
	}
	year := int(b[0])<<8 | int(b[1])
	return model.Date{Time: time.Date(year, time.Month(b[2]), int(b[3]), 0, 0, 0, 0, time.UTC)}, nil
}

// newClock yields the str() of a datetime.time, which is all JSON can carry.
func newClock(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("time: missing state")
	}
	b, err := stateBytes(args[0])
	if err != nil || len(b) != 6 {
		return nil, fmt.Errorf("time: unsupported state %T", args[0])
	}
	s := fmt.Sprintf("%02d:%02d:%02d", b[0]&0x7f, b[1], b[2])
	if us := int(b[3])<<16 | int(b[4])<<8 | int(b[5]); us != 0 {
		s += fmt.Sprintf(".%06d", us)
	}
	return s, nil
}

func newTimedelta(args ...interface{}) (interface{}, error) {
	var parts [3]int64
	for i := 0; i < len(args) && i < 3; i++ {
		v, ok := asInt(args[i])
		if !ok {
			return nil, fmt.Errorf("timedelta: argument %d is %T", i, args[i])
		}
		parts[i] = v
	}
	d := time.Duration(parts[0])*24*time.Hour + time.Duration(parts[1])*time.Second + time.Duration(parts[2])*time.Microsecond
	return model.Duration(d), nil
}

func newTimezone(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return time.UTC, nil
	}
	off, ok := args[0].(model.Duration)
	if !ok {
		return nil, fmt.Errorf("timezone: offset is %T", args[0])
	}
	name := ""
	if len(args) > 1 {
		name, _ = args[1].(string)
	}
	if off == 0 && name == "" {
		return time.UTC, nil
	}
	return time.FixedZone(name, int(time.Duration(off)/time.Second)), nil
}

// newPytzZone handles pytz._p(zone, utcoffset, dstoffset, tzname).
func newPytzZone(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return time.UTC, nil
	}
	zone, _ := args[0].(string)
	if len(args) > 1 {
		if off, ok := asInt(args[1]); ok {
			name := zone
			if len(args) > 3 {
				if n, ok := args[3].(string); ok {
					name = n
				}
			}
			return time.FixedZone(name, int(off)), nil
		}
	}
	if loc, err := time.LoadLocation(zone); err == nil {
		return loc, nil
	}
	return time.UTC, nil
}

// location maps a pickled tzinfo to a time.Location. Zones we cannot
// rebuild still mark the value as aware and fall back to UTC.
func location(tz interface{}) (*time.Location, bool) {
	switch z := tz.(type) {
	case nil:
		return time.UTC, false
	case *time.Location:
		return z, true
	}
	return time.UTC, true
}

// stateBytes accepts bytes, or a str holding latin-1 code points as written by
// Python 2 and by protocol 0.
func stateBytes(v interface{}) ([]byte, error) {
	if s, ok := v.(string); ok {
		return latin1(s)
	}
	if b, ok := bytesOf(v); ok {
		return b, nil
	}
	return nil, fmt.Errorf("expected bytes, got %T", v)
}

// bytesOf unwraps bytes and gopickle's bytearray, which is a named byte slice.
func bytesOf(v interface{}) ([]byte, bool) {
	if b, ok := v.([]byte); ok {
		return b, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return rv.Bytes(), true
	}
	return nil, false
}

func asTuple(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case *types.Tuple:
		return []interface{}(*t), true
	case *types.List:
		return []interface{}(*t), true
	case []interface{}:
		return t, true
	}
	return nil, false
}

// iterate lists the items of any pickled iterable.
func iterate(v interface{}) ([]interface{}, error) {
	if items, ok := asTuple(v); ok {
		return items, nil
	}
	switch s := v.(type) {
	case *setObj:
		return s.items, nil
	case *dictObject:
		return s.keys, nil
	}
	if keys, ok := setKeys(v); ok {
		return keys, nil
	}
	return nil, fmt.Errorf("%T is not iterable", v)
}

// setKeys lists the members of gopickle's set and frozenset, both of which
// are maps keyed by member.
func setKeys(v interface{}) ([]interface{}, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Map {
		return nil, false
	}
	out := make([]interface{}, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out = append(out, iter.Key().Interface())
	}
	return out, true
}

func asInt(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case *big.Int:
		if x.IsInt64() {
			return x.Int64(), true
		}
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func dictGet(d interface{}, key string) (interface{}, bool) {
	switch m := d.(type) {
	case *types.Dict:
		for _, e := range *m {
			if k, ok := e.Key.(string); ok && k == key {
				return e.Value, true
			}
		}
	case *dictObject:
		for i, k := range m.keys {
			if s, ok := k.(string); ok && s == key {
				return m.values[i], true
			}
		}
	}
	return nil, false
}
