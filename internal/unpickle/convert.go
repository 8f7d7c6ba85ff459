package unpickle

import (
	"fmt"
	"math/big"
	"time"

	"github.com/nlpodyssey/gopickle/types"

	"backtest-artifacts/internal/model"
)

// convert turns the unpickled object graph into model values.
func convert(v interface{}) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool, string, float64, int64, *big.Int, []byte:
		return x, nil
	case int:
		return int64(x), nil
	case model.DateTime, model.Date, model.Duration, model.NaT:
		return x, nil
	case *types.List:
		return convertAll(*x)
	case *types.Tuple:
		return convertAll(*x)
	case *types.Dict:
		m := model.NewMapping()
		for _, e := range *x {
			if err := setItem(m, e.Key, e.Value); err != nil {
				return nil, err
			}
		}
		return m, nil
	case *types.OrderedDict:
		m := model.NewMapping()
		for e := x.List.Front(); e != nil; e = e.Next() {
			entry := e.Value.(*types.OrderedDictEntry)
			if err := setItem(m, entry.Key, entry.Value); err != nil {
				return nil, err
			}
		}
		return m, nil
	case *dictObject:
		return convertDict(x)
	case *setObj:
		items, err := convertAll(x.items)
		if err != nil {
			return nil, err
		}
		return model.Set{Items: items, Frozen: x.frozen}, nil
	case *ndarray:
		return convertArray(x)
	case *index:
		return x.labels()
	case *object:
		return convertObject(x)
	case *class:
		return fmt.Sprintf("<class '%s.%s'>", x.module, x.name), nil
	case *dtype:
		return fmt.Sprintf("%c%d", x.kind, x.itemSize()), nil
	case *time.Location:
		return x.String(), nil
	case *sliceObj:
		return fmt.Sprintf("slice(%s, %s, %s)", model.Repr(x.start), model.Repr(x.stop), model.Repr(x.step)), nil
	case *block:
		return model.Opaque{Module: "pandas.core.internals.blocks", Name: "Block"}, nil
	case callable:
		return "<built-in function>", nil
	}
	if b, ok := bytesOf(v); ok {
		return b, nil
	}
	if keys, ok := setKeys(v); ok {
		items, err := convertAll(keys)
		if err != nil {
			return nil, err
		}
		return model.Set{Items: items}, nil
	}
	return nil, fmt.Errorf("unsupported pickled value of type %T", v)
}

func convertAll(items []interface{}) ([]any, error) {
	out := make([]any, len(items))
	for i, it := range items {
		v, err := convert(it)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func convertDict(d *dictObject) (*model.Mapping, error) {
	m := model.NewMapping()
	for i, k := range d.keys {
		if err := setItem(m, k, d.values[i]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func setItem(m *model.Mapping, key, value interface{}) error {
	k, err := convert(key)
	if err != nil {
		return err
	}
	ks, err := model.KeyString(k)
	if err != nil {
		return err
	}
	v, err := convert(value)
	if err != nil {
		return fmt.Errorf("%s: %w", ks, err)
	}
	m.Set(ks, v)
	return nil
}

// convertArray yields nested lists, as ndarray.tolist() would.
func convertArray(a *ndarray) (any, error) {
	flat, err := convertAll(a.flat())
	if err != nil {
		return nil, err
	}
	if len(a.shape) < 2 {
		return flat, nil
	}
	return nest(flat, a.shape), nil
}

func nest(flat []any, shape []int) []any {
	if len(shape) == 1 {
		return flat
	}
	n := shape[0]
	out := make([]any, n)
	if n == 0 {
		return out
	}
	width := len(flat) / n
	for i := range out {
		out[i] = nest(flat[i*width:(i+1)*width], shape[1:])
	}
	return out
}

func convertObject(o *object) (any, error) {
	if o.class.inPandas() {
		switch o.class.name {
		case "DataFrame":
			return frameTable(o.state)
		case "Series":
			return seriesOf(o.state)
		case "Categorical":
			return categoricalValues(o)
		}
		if _, ok := extensionPayload(o); ok {
			return arrayValues(o)
		}
	}
	switch {
	case o.dict != nil:
		return convertDict(o.dict)
	case o.items != nil:
		return convertAll(o.items)
	}
	return model.Opaque{Module: o.class.module, Name: o.class.name}, nil
}
