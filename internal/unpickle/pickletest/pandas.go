package pickletest

import (
	"bytes"
	"encoding/binary"
	"time"
)

// Writer pushes one value.
type Writer = func(*Builder)

// Write returns the pickle of the value pushed by w.
func Write(w Writer) []byte {
	b := New()
	w(b)
	return b.Bytes()
}

// Dtype pushes numpy.dtype(spec) with a little-endian state.
func (b *Builder) Dtype(spec string) *Builder {
	b.Global("numpy", "dtype").Str(spec).Bool(false).Bool(true).Tuple3().Reduce()
	return b.Mark().Int(3).Str("<").None().None().None().Int(-1).Int(-1).Int(0).Tuple().Build()
}

// Array pushes an ndarray rebuilt the way numpy pickles one.
func Array(spec string, shape []int, data Writer) Writer {
	return func(b *Builder) {
		b.Global("numpy.core.multiarray", "_reconstruct")
		b.Global("numpy", "ndarray").Int(0).Tuple1().Raw([]byte("b")).Tuple3().Reduce()
		b.Mark().Int(1).Mark()
		for _, d := range shape {
			b.Int(int64(d))
		}
		b.Tuple().Dtype(spec).Bool(false)
		data(b)
		b.Tuple().Build()
	}
}

func FloatArray(shape []int, values ...float64) Writer {
	var raw bytes.Buffer
	binary.Write(&raw, binary.LittleEndian, values)
	return Array("f8", shape, func(b *Builder) { b.Raw(raw.Bytes()) })
}

func IntArray(shape []int, values ...int64) Writer {
	var raw bytes.Buffer
	binary.Write(&raw, binary.LittleEndian, values)
	return Array("i8", shape, func(b *Builder) { b.Raw(raw.Bytes()) })
}

// DatetimeArray pushes a datetime64[ns] array.
func DatetimeArray(shape []int, ts ...time.Time) Writer {
	ns := make([]int64, len(ts))
	for i, t := range ts {
		ns[i] = t.UnixNano()
	}
	var raw bytes.Buffer
	binary.Write(&raw, binary.LittleEndian, ns)
	return Array("M8[ns]", shape, func(b *Builder) { b.Raw(raw.Bytes()) })
}

func ObjectArray(items ...Writer) Writer {
	return Array("O", []int{len(items)}, func(b *Builder) { b.Elems(items...) })
}

// Index pushes a pandas Index of object labels.
func Index(labels ...Writer) Writer {
	return newIndex("pandas.core.indexes.base", "Index", S("data"), ObjectArray(labels...), S("name"), Nil)
}

func RangeIndex(start, stop int64) Writer {
	return newIndex("pandas.core.indexes.range", "RangeIndex",
		S("name"), Nil, S("start"), I(start), S("stop"), I(stop), S("step"), I(1))
}

func DatetimeIndex(ts ...time.Time) Writer {
	return newIndex("pandas.core.indexes.datetimes", "DatetimeIndex",
		S("data"), DatetimeArray([]int{len(ts)}, ts...), S("name"), Nil, S("tz"), Nil)
}

func newIndex(module, class string, attrs ...Writer) Writer {
	return func(b *Builder) {
		b.Global("pandas.core.indexes.base", "_new_Index").Global(module, class)
		b.Items(attrs...).Tuple2().Reduce()
	}
}

// Block pushes the block dict of a BlockManager placed at [start, stop).
func Block(values Writer, start, stop int64) Writer {
	return func(b *Builder) {
		b.Items(S("values"), values, S("mgr_locs"), func(b *Builder) {
			b.Global("builtins", "slice").Int(start).Int(stop).Int(1).Tuple3().Reduce()
		})
	}
}

// Manager pushes a BlockManager or SingleBlockManager with the 0.14.1 state.
func Manager(class string, axes []Writer, blocks ...Writer) Writer {
	return func(b *Builder) {
		b.Global("pandas.core.internals.managers", class).EmptyTuple().NewObj()
		b.Mark().List().List().List()
		b.Items(S("0.14.1"), func(b *Builder) {
			b.Items(S("axes"), func(b *Builder) { b.Elems(axes...) }, S("blocks"), func(b *Builder) { b.Elems(blocks...) })
		})
		b.Tuple().Build()
	}
}

// DataFrame pushes a frame whose blocks hold data for columns over index.
func DataFrame(columns, index Writer, blocks ...Writer) Writer {
	return func(b *Builder) {
		b.Global("pandas.core.frame", "DataFrame").EmptyTuple().NewObj()
		b.Items(
			S("_mgr"), Manager("BlockManager", []Writer{columns, index}, blocks...),
			S("_typ"), S("dataframe"),
			S("_metadata"), func(b *Builder) { b.List() },
			S("attrs"), func(b *Builder) { b.Dict() },
		)
		b.Build()
	}
}

func Series(name Writer, index, values Writer) Writer {
	return func(b *Builder) {
		b.Global("pandas.core.series", "Series").EmptyTuple().NewObj()
		b.Items(
			S("_mgr"), Manager("SingleBlockManager", []Writer{index}, Block(values, 0, 1)),
			S("_typ"), S("series"),
			S("_metadata"), func(b *Builder) { b.Elems(S("_name")) },
			S("attrs"), func(b *Builder) { b.Dict() },
			S("_name"), name,
		)
		b.Build()
	}
}

// DateTime pushes a datetime.datetime in UTC, tz-aware through pytz.
func DateTime(t time.Time) Writer {
	t = t.UTC()
	us := t.Nanosecond() / 1000
	state := []byte{
		byte(t.Year() >> 8), byte(t.Year()), byte(t.Month()), byte(t.Day()),
		byte(t.Hour()), byte(t.Minute()), byte(t.Second()),
		byte(us >> 16), byte(us >> 8), byte(us),
	}
	return func(b *Builder) {
		b.Global("datetime", "datetime").Raw(state)
		b.Global("pytz", "_UTC").EmptyTuple().Reduce()
		b.Tuple2().Reduce()
	}
}

// Object pushes an instance of a class without a decoder.
func Object(module, class string) Writer {
	return Instance(module, class)
}

// Instance pushes an object built with __new__ and a dict state of attrs.
func Instance(module, class string, attrs ...Writer) Writer {
	return func(b *Builder) {
		b.Global(module, class).EmptyTuple().NewObj().Items(attrs...).Build()
	}
}

// Categorical pushes a pandas Categorical whose codes index categories.
func Categorical(categories Writer, codes ...int64) Writer {
	return Instance("pandas.core.arrays.categorical", "Categorical",
		S("_dtype"), Instance("pandas.core.dtypes.dtypes", "CategoricalDtype",
			S("categories"), categories, S("ordered"), func(b *Builder) { b.Bool(false) }),
		S("_ndarray"), IntArray([]int{len(codes)}, codes...),
	)
}
