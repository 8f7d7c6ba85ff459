// Package pickletest assembles pickle streams opcode by opcode for tests.
package pickletest

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Opcodes used by Builder.
const (
	opMark       = '('
	opStop       = '.'
	opNone       = 'N'
	opBinInt     = 'J'
	opBinFloat   = 'G'
	opBinUnicode = 'X'
	opBinBytes   = 'B'
	opEmptyDict  = '}'
	opEmptyList  = ']'
	opEmptyTuple = ')'
	opTuple      = 't'
	opAppends    = 'e'
	opSetItems   = 'u'
	opGlobal     = 'c'
	opReduce     = 'R'
	opBuild      = 'b'
	opProto      = 0x80
	opNewObj     = 0x81
	opTuple1     = 0x85
	opTuple2     = 0x86
	opTuple3     = 0x87
	opNewTrue    = 0x88
	opNewFalse   = 0x89
	opLong1      = 0x8a
	opEmptySet   = 0x8f
	opAddItems   = 0x90
)

// Builder writes a protocol 4 pickle. Methods push onto the unpickler's
// stack in call order.
type Builder struct {
	buf bytes.Buffer
}

func New() *Builder {
	b := &Builder{}
	b.buf.Write([]byte{opProto, 4})
	return b
}

// Bytes terminates the stream and returns it.
func (b *Builder) Bytes() []byte {
	b.buf.WriteByte(opStop)
	return b.buf.Bytes()
}

func (b *Builder) op(c byte) *Builder {
	b.buf.WriteByte(c)
	return b
}

func (b *Builder) Mark() *Builder       { return b.op(opMark) }
func (b *Builder) None() *Builder       { return b.op(opNone) }
func (b *Builder) Dict() *Builder       { return b.op(opEmptyDict) }
func (b *Builder) List() *Builder       { return b.op(opEmptyList) }
func (b *Builder) EmptyTuple() *Builder { return b.op(opEmptyTuple) }
func (b *Builder) Tuple() *Builder      { return b.op(opTuple) }
func (b *Builder) Tuple1() *Builder     { return b.op(opTuple1) }
func (b *Builder) Tuple2() *Builder     { return b.op(opTuple2) }
func (b *Builder) Tuple3() *Builder     { return b.op(opTuple3) }
func (b *Builder) Appends() *Builder    { return b.op(opAppends) }
func (b *Builder) SetItems() *Builder   { return b.op(opSetItems) }
func (b *Builder) Reduce() *Builder     { return b.op(opReduce) }
func (b *Builder) NewObj() *Builder     { return b.op(opNewObj) }
func (b *Builder) Build() *Builder      { return b.op(opBuild) }
func (b *Builder) EmptySet() *Builder   { return b.op(opEmptySet) }
func (b *Builder) AddItems() *Builder   { return b.op(opAddItems) }

func (b *Builder) Bool(v bool) *Builder {
	if v {
		return b.op(opNewTrue)
	}
	return b.op(opNewFalse)
}

func (b *Builder) Int(v int64) *Builder {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		b.buf.WriteByte(opBinInt)
		binary.Write(&b.buf, binary.LittleEndian, int32(v))
		return b
	}
	b.buf.Write([]byte{opLong1, 8})
	binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

func (b *Builder) Float(f float64) *Builder {
	b.buf.WriteByte(opBinFloat)
	binary.Write(&b.buf, binary.BigEndian, f)
	return b
}

func (b *Builder) Str(s string) *Builder {
	b.buf.WriteByte(opBinUnicode)
	binary.Write(&b.buf, binary.LittleEndian, uint32(len(s)))
	b.buf.WriteString(s)
	return b
}

func (b *Builder) Raw(p []byte) *Builder {
	b.buf.WriteByte(opBinBytes)
	binary.Write(&b.buf, binary.LittleEndian, uint32(len(p)))
	b.buf.Write(p)
	return b
}

// Global pushes module.name.
func (b *Builder) Global(module, name string) *Builder {
	b.buf.WriteByte(opGlobal)
	b.buf.WriteString(module + "\n" + name + "\n")
	return b
}

// Items pushes a dict from alternating key and value writers.
func (b *Builder) Items(kv ...func(*Builder)) *Builder {
	b.Dict().Mark()
	for _, f := range kv {
		f(b)
	}
	return b.SetItems()
}

// Elems pushes a list built by the given writers.
func (b *Builder) Elems(items ...func(*Builder)) *Builder {
	b.List().Mark()
	for _, f := range items {
		f(b)
	}
	return b.Appends()
}

// S, I, F and Nil are writer shorthands for Items and Elems.
func S(s string) func(*Builder)  { return func(b *Builder) { b.Str(s) } }
func I(v int64) func(*Builder)   { return func(b *Builder) { b.Int(v) } }
func F(f float64) func(*Builder) { return func(b *Builder) { b.Float(f) } }
func Nil(b *Builder)             { b.None() }
