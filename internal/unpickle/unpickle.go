// Package unpickle decodes Python pickle streams into model values.
//
// The opcode machine is gopickle's; this package supplies the classes a
// pickle may reference. Builtins, datetime, numpy arrays and pandas frames are
// rebuilt into concrete values; every other class becomes an object that only
// remembers its name, constructor arguments and state.
package unpickle

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/nlpodyssey/gopickle/pickle"
)

// Load decodes one pickle from r. Malformed streams yield an error, never a
// panic.
func Load(r io.Reader) (any, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Loads(b)
}

// Loads decodes one pickle held in b. Bytes after the STOP opcode are ignored.
func Loads(b []byte) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			v, err = nil, fmt.Errorf("malformed pickle: %v", p)
		}
	}()
	u := pickle.NewUnpickler(bytes.NewReader(binaryText(b)))
	u.FindClass = findClass
	raw, err := u.Load()
	if err != nil {
		return nil, err
	}
	return convert(raw)
}

// callable is a global that pickles invoke through REDUCE.
type callable func(args ...interface{}) (interface{}, error)

func (f callable) Call(args ...interface{}) (interface{}, error) { return f(args...) }

var moduleAliases = map[string]string{
	"__builtin__":            "builtins",
	"copy_reg":               "copyreg",
	"numpy._core.multiarray": "numpy.core.multiarray",
	"numpy._core.numeric":    "numpy.core.numeric",
}

func findClass(module, name string) (interface{}, error) {
	if alias, ok := moduleAliases[module]; ok {
		module = alias
	}
	if g, ok := globals[module+"."+name]; ok {
		return g, nil
	}
	if strings.HasPrefix(module, "pandas") {
		if g, ok := pandasGlobals[name]; ok {
			return g, nil
		}
	}
	return &class{module: module, name: name}, nil
}

// class is any Python class without a dedicated decoder.
type class struct {
	module string
	name   string
}

func (c *class) Call(args ...interface{}) (interface{}, error) { return c.PyNew(args...) }

func (c *class) PyNew(args ...interface{}) (interface{}, error) {
	return &object{class: c, args: args}, nil
}

func (c *class) inPandas() bool { return strings.HasPrefix(c.module, "pandas") }

// object is an instance of a class. List and dict subclasses receive their
// items through Append and Set; everything else through its BUILD state.
type object struct {
	class *class
	args  []interface{}
	state interface{}
	items []interface{}
	dict  *dictObject
}

func (o *object) PySetState(state interface{}) error {
	o.state = state
	return nil
}

func (o *object) Append(v interface{}) {
	o.items = append(o.items, v)
}

func (o *object) Set(key, value interface{}) {
	if o.dict == nil {
		o.dict = &dictObject{}
	}
	o.dict.Set(key, value)
}

// dictObject backs collections.OrderedDict and dict subclasses.
type dictObject struct {
	keys   []interface{}
	values []interface{}
}

func (d *dictObject) Set(key, value interface{}) {
	for i, k := range d.keys {
		if sameKey(k, key) {
			d.values[i] = value
			return
		}
	}
	d.keys = append(d.keys, key)
	d.values = append(d.values, value)
}

func (d *dictObject) PySetState(state interface{}) error { return nil }

func sameKey(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	return ta == tb && ta.Comparable() && a == b
}
