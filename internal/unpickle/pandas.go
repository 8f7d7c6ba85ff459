package unpickle

import (
	"errors"
	"fmt"
	"time"

	"backtest-artifacts/internal/model"
)

// pandasGlobals are looked up by name under any pandas module, since pandas
// moves these between releases.
var pandasGlobals = map[string]interface{}{
	"_new_Index":          callable(newIndex),
	"_unpickle_timestamp": callable(newTimestamp),
	"_unpickle_block":     callable(newBlock),
	"_timedelta_unpickle": callable(newTimedeltaValue),
	"__nat_unpickle":      callable(func(...interface{}) (interface{}, error) { return model.NaT{}, nil }),
}

// index is a pandas Index rebuilt by _new_Index(cls, attrs).
type index struct {
	class *class
	attrs interface{}
}

func newIndex(args ...interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("_new_Index: expected 2 arguments, got %d", len(args))
	}
	c, ok := args[0].(*class)
	if !ok {
		return nil, fmt.Errorf("_new_Index: class is %T", args[0])
	}
	return &index{class: c, attrs: args[1]}, nil
}

func (ix *index) labels() ([]any, error) {
	switch ix.class.name {
	case "RangeIndex":
		return ix.rangeLabels()
	case "MultiIndex":
		return ix.multiLabels()
	}
	data, ok := dictGet(ix.attrs, "data")
	if !ok {
		return nil, fmt.Errorf("%s: missing data", ix.class.name)
	}
	values, err := arrayValues(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ix.class.name, err)
	}
	if tz, ok := dictGet(ix.attrs, "tz"); ok && tz != nil {
		localize(values, tz)
	}
	return values, nil
}

func (ix *index) rangeLabels() ([]any, error) {
	get := func(key string, def int64) (int64, error) {
		v, ok := dictGet(ix.attrs, key)
		if !ok || v == nil {
			return def, nil
		}
		n, ok := asInt(v)
		if !ok {
			return 0, fmt.Errorf("RangeIndex: %s is %T", key, v)
		}
		return n, nil
	}
	start, err := get("start", 0)
	if err != nil {
		return nil, err
	}
	stop, err := get("stop", 0)
	if err != nil {
		return nil, err
	}
	step, err := get("step", 1)
	if err != nil {
		return nil, err
	}
	if step == 0 {
		return nil, fmt.Errorf("RangeIndex: zero step")
	}
	var out []any
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		out = append(out, i)
	}
	return out, nil
}

// multiLabels expands levels and codes into one tuple per position.
func (ix *index) multiLabels() ([]any, error) {
	rawLevels, _ := dictGet(ix.attrs, "levels")
	rawCodes, _ := dictGet(ix.attrs, "codes")
	if rawCodes == nil {
		rawCodes, _ = dictGet(ix.attrs, "labels")
	}
	levelList, ok := asTuple(rawLevels)
	if !ok {
		return nil, fmt.Errorf("MultiIndex: levels are %T", rawLevels)
	}
	codeList, ok := asTuple(rawCodes)
	if !ok || len(codeList) != len(levelList) {
		return nil, fmt.Errorf("MultiIndex: codes do not match levels")
	}
	levels := make([][]any, len(levelList))
	codes := make([][]any, len(codeList))
	for i := range levelList {
		var err error
		if levels[i], err = arrayValues(levelList[i]); err != nil {
			return nil, fmt.Errorf("MultiIndex level %d: %w", i, err)
		}
		if codes[i], err = arrayValues(codeList[i]); err != nil {
			return nil, fmt.Errorf("MultiIndex codes %d: %w", i, err)
		}
	}
	if len(codes) == 0 {
		return nil, nil
	}
	out := make([]any, len(codes[0]))
	for pos := range out {
		tuple := make([]any, len(levels))
		for lvl := range levels {
			code, _ := asInt(codes[lvl][pos])
			if code >= 0 && int(code) < len(levels[lvl]) {
				tuple[lvl] = levels[lvl][code]
			}
		}
		out[pos] = tuple
	}
	return out, nil
}

// newTimestamp handles _unpickle_timestamp(value, freq, tz[, reso]); value is
// an epoch count in the resolution's unit, nanoseconds by default.
func newTimestamp(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("_unpickle_timestamp: missing value")
	}
	v, ok := asInt(args[0])
	if !ok {
		return nil, fmt.Errorf("_unpickle_timestamp: value is %T", args[0])
	}
	unit := "ns"
	if len(args) > 3 {
		if reso, ok := asInt(args[3]); ok {
			unit = resolutionUnit(reso)
		}
	}
	t, err := fromEpoch(v, unit)
	if err != nil {
		return nil, err
	}
	var tz interface{}
	if len(args) > 2 {
		tz = args[2]
	}
	loc, aware := location(tz)
	return model.DateTime{Time: t.In(loc), Aware: aware}, nil
}

// newTimedeltaValue handles _timedelta_unpickle(value, reso).
func newTimedeltaValue(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("_timedelta_unpickle: missing value")
	}
	v, ok := asInt(args[0])
	if !ok {
		return nil, fmt.Errorf("_timedelta_unpickle: value is %T", args[0])
	}
	unit := "ns"
	if len(args) > 1 {
		if reso, ok := asInt(args[1]); ok {
			unit = resolutionUnit(reso)
		}
	}
	step, err := unitDuration(unit)
	if err != nil {
		return nil, err
	}
	return model.Duration(time.Duration(v) * step), nil
}

// resolutionUnit maps pandas' NpyDatetimeUnit codes.
func resolutionUnit(reso int64) string {
	switch reso {
	case 7:
		return "s"
	case 8:
		return "ms"
	case 9:
		return "us"
	}
	return "ns"
}

// block is one homogeneous chunk of a BlockManager.
type block struct {
	values interface{}
	locs   interface{}
}

func newBlock(args ...interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("_unpickle_block: expected values and placement")
	}
	return &block{values: args[0], locs: args[1]}, nil
}

// managerState unpacks the BlockManager pickle state:
// (axes, block_values, block_items, {"0.14.1": {"axes": ..., "blocks": [...]}}).
func managerState(mgr interface{}) (axes []interface{}, blocks []*block, err error) {
	o, ok := mgr.(*object)
	if !ok {
		return nil, nil, fmt.Errorf("block manager is %T", mgr)
	}
	state, ok := asTuple(o.state)
	if !ok || len(state) < 3 {
		return nil, nil, fmt.Errorf("%s: unexpected state %T", o.class.name, o.state)
	}
	if len(state) >= 4 {
		if extra, ok := dictGet(state[3], "0.14.1"); ok {
			rawAxes, _ := dictGet(extra, "axes")
			rawBlocks, _ := dictGet(extra, "blocks")
			if axes, ok = asTuple(rawAxes); !ok {
				return nil, nil, fmt.Errorf("%s: axes are %T", o.class.name, rawAxes)
			}
			list, ok := asTuple(rawBlocks)
			if !ok {
				return nil, nil, fmt.Errorf("%s: blocks are %T", o.class.name, rawBlocks)
			}
			for _, b := range list {
				if blk, ok := b.(*block); ok {
					blocks = append(blocks, blk)
					continue
				}
				values, _ := dictGet(b, "values")
				locs, _ := dictGet(b, "mgr_locs")
				blocks = append(blocks, &block{values: values, locs: locs})
			}
			return axes, blocks, nil
		}
	}
	return legacyManagerState(o.class.name, state)
}

// legacyManagerState reads the pre-0.14.1 layout, where each block is placed
// by the column labels it holds.
func legacyManagerState(name string, state []interface{}) ([]interface{}, []*block, error) {
	axes, ok := asTuple(state[0])
	if !ok || len(axes) == 0 {
		return nil, nil, fmt.Errorf("%s: axes are %T", name, state[0])
	}
	values, _ := asTuple(state[1])
	items, _ := asTuple(state[2])
	if len(values) != len(items) {
		return nil, nil, fmt.Errorf("%s: %d block values for %d block item sets", name, len(values), len(items))
	}
	columns, err := axisLabels(axes[0])
	if err != nil {
		return nil, nil, err
	}
	blocks := make([]*block, len(values))
	for i := range values {
		held, err := axisLabels(items[i])
		if err != nil {
			return nil, nil, err
		}
		locs := make([]interface{}, 0, len(held))
		for _, label := range held {
			for pos, c := range columns {
				if sameKey(c, label) {
					locs = append(locs, pos)
					break
				}
			}
		}
		blocks[i] = &block{values: values[i], locs: []interface{}(locs)}
	}
	return axes, blocks, nil
}

func axisLabels(v interface{}) ([]any, error) {
	if ix, ok := v.(*index); ok {
		return ix.labels()
	}
	return arrayValues(v)
}

// placement expands a block's mgr_locs into column positions.
func placement(locs interface{}, ncols int) ([]int, error) {
	if s, ok := locs.(*sliceObj); ok {
		return s.indices(ncols)
	}
	values, err := arrayValues(locs)
	if err != nil {
		return nil, fmt.Errorf("mgr_locs: %w", err)
	}
	out := make([]int, len(values))
	for i, v := range values {
		n, ok := asInt(v)
		if !ok {
			return nil, fmt.Errorf("mgr_locs: position is %T", v)
		}
		out[i] = int(n)
	}
	return out, nil
}

// blockColumns returns the block's columns, one slice of row values each.
func blockColumns(values interface{}) ([][]any, error) {
	if a, ok := values.(*ndarray); ok && len(a.shape) >= 2 {
		rows := a.rows()
		out := make([][]any, len(rows))
		for i, r := range rows {
			col, err := convertAll(r)
			if err != nil {
				return nil, err
			}
			out[i] = col
		}
		return out, nil
	}
	col, err := arrayValues(values)
	if err != nil {
		return nil, err
	}
	return [][]any{col}, nil
}

// frameTable rebuilds a DataFrame from its NDFrame state.
func frameTable(state interface{}) (*model.Table, error) {
	mgr, ok := managerOf(state)
	if !ok {
		return nil, fmt.Errorf("DataFrame: state has no block manager")
	}
	axes, blocks, err := managerState(mgr)
	if err != nil {
		return nil, err
	}
	if len(axes) != 2 {
		return nil, fmt.Errorf("DataFrame: expected 2 axes, got %d", len(axes))
	}
	columns, err := axisLabels(axes[0])
	if err != nil {
		return nil, fmt.Errorf("DataFrame columns: %w", err)
	}
	rows, err := axisLabels(axes[1])
	if err != nil {
		return nil, fmt.Errorf("DataFrame index: %w", err)
	}
	t := &model.Table{Columns: columns, Index: rows, Data: make([][]any, len(columns))}
	for bi, b := range blocks {
		locs, err := placement(b.locs, len(columns))
		if err != nil {
			return nil, fmt.Errorf("DataFrame block %d: %w", bi, err)
		}
		cols, err := blockColumns(b.values)
		if err != nil {
			return nil, fmt.Errorf("DataFrame block %d: %w", bi, err)
		}
		if len(cols) != len(locs) {
			return nil, fmt.Errorf("DataFrame block %d: %d columns for %d positions", bi, len(cols), len(locs))
		}
		for i, pos := range locs {
			if pos < 0 || pos >= len(columns) {
				return nil, fmt.Errorf("DataFrame block %d: position %d out of range", bi, pos)
			}
			t.Data[pos] = cols[i]
		}
	}
	return t, nil
}

// seriesOf rebuilds a Series from its NDFrame state.
func seriesOf(state interface{}) (*model.Series, error) {
	mgr, ok := managerOf(state)
	if !ok {
		return nil, fmt.Errorf("Series: state has no block manager")
	}
	axes, blocks, err := managerState(mgr)
	if err != nil {
		return nil, err
	}
	if len(axes) != 1 || len(blocks) != 1 {
		return nil, fmt.Errorf("Series: expected 1 axis and 1 block, got %d and %d", len(axes), len(blocks))
	}
	labels, err := axisLabels(axes[0])
	if err != nil {
		return nil, fmt.Errorf("Series index: %w", err)
	}
	values, err := arrayValues(blocks[0].values)
	if err != nil {
		return nil, fmt.Errorf("Series values: %w", err)
	}
	s := &model.Series{Index: labels, Values: values}
	for _, key := range []string{"_name", "name"} {
		if name, ok := dictGet(state, key); ok {
			if s.Name, err = convert(name); err != nil {
				return nil, err
			}
			break
		}
	}
	return s, nil
}

func managerOf(state interface{}) (interface{}, bool) {
	if mgr, ok := dictGet(state, "_mgr"); ok {
		return mgr, true
	}
	return dictGet(state, "_data")
}

// arrayValues converts any array-like (ndarray, extension array, list, index)
// into a flat slice of values.
func arrayValues(v interface{}) ([]any, error) {
	switch x := v.(type) {
	case *ndarray:
		return convertAll(x.flat())
	case *index:
		return x.labels()
	case *object:
		if x.class.name == "Categorical" {
			return categoricalValues(x)
		}
		payload, ok := extensionPayload(x)
		if !ok {
			return nil, fmt.Errorf("%s.%s is not array-like", x.class.module, x.class.name)
		}
		values, err := convertAll(payload.flat())
		if err != nil {
			return nil, err
		}
		if tz, ok := extensionZone(x); ok {
			localize(values, tz)
		}
		return values, nil
	}
	if items, ok := asTuple(v); ok {
		return convertAll(items)
	}
	return nil, fmt.Errorf("%T is not array-like", v)
}

// extensionPayload finds the numpy array backing a pandas extension array
// such as DatetimeArray, whatever pickle layout the pandas version used.
func extensionPayload(o *object) (*ndarray, bool) {
	for _, key := range []string{"_ndarray", "_data"} {
		if v, ok := dictGet(o.state, key); ok {
			if a, ok := v.(*ndarray); ok {
				return a, true
			}
		}
	}
	candidates := append([]interface{}{}, o.args...)
	if t, ok := asTuple(o.state); ok {
		candidates = append(candidates, t...)
	}
	for _, c := range candidates {
		if a, ok := c.(*ndarray); ok {
			return a, true
		}
	}
	return nil, false
}

// categoricalValues maps the codes of a Categorical through its categories.
// Code -1 is a missing value.
func categoricalValues(o *object) ([]any, error) {
	codes, ok := categoricalCodes(o)
	if !ok {
		return nil, errors.New("Categorical: codes not found")
	}
	cats, ok := categoriesOf(o)
	if !ok {
		return nil, errors.New("Categorical: categories not found")
	}
	labels, err := axisLabels(cats)
	if err != nil {
		return nil, fmt.Errorf("Categorical categories: %w", err)
	}
	raw, err := convertAll(codes.flat())
	if err != nil {
		return nil, err
	}
	out := make([]any, len(raw))
	for i, c := range raw {
		n, ok := asInt(c)
		switch {
		case !ok:
			return nil, fmt.Errorf("Categorical: code is %T", c)
		case n < 0:
			out[i] = nil
		case n >= int64(len(labels)):
			return nil, fmt.Errorf("Categorical: code %d outside %d categories", n, len(labels))
		default:
			out[i] = labels[n]
		}
	}
	return out, nil
}

func categoricalCodes(o *object) (*ndarray, bool) {
	if v, ok := dictGet(o.state, "_codes"); ok {
		if a, ok := v.(*ndarray); ok {
			return a, true
		}
	}
	return extensionPayload(o)
}

// categoriesOf reads the categories off the CategoricalDtype, falling back to
// the _categories attribute older pandas pickled on the array itself.
func categoriesOf(o *object) (interface{}, bool) {
	if d, ok := dictGet(o.state, "_dtype"); ok {
		if dt, ok := d.(*object); ok {
			for _, key := range []string{"categories", "_categories"} {
				if c, ok := dictGet(dt.state, key); ok {
					return c, true
				}
			}
		}
	}
	return dictGet(o.state, "_categories")
}

// extensionZone finds the tz of a DatetimeTZDtype attached to an array.
func extensionZone(o *object) (interface{}, bool) {
	candidates := append([]interface{}{}, o.args...)
	if t, ok := asTuple(o.state); ok {
		candidates = append(candidates, t...)
	}
	if d, ok := dictGet(o.state, "_dtype"); ok {
		candidates = append(candidates, d)
	}
	for _, c := range candidates {
		dt, ok := c.(*object)
		if !ok || dt.class.name != "DatetimeTZDtype" {
			continue
		}
		if tz, ok := dictGet(dt.state, "tz"); ok {
			return tz, true
		}
		if len(dt.args) > 1 {
			return dt.args[1], true
		}
		return nil, true
	}
	return nil, false
}

// localize turns naive UTC datetimes into aware ones in tz.
func localize(values []any, tz interface{}) {
	loc, _ := location(tz)
	for i, v := range values {
		if dt, ok := v.(model.DateTime); ok {
			values[i] = model.DateTime{Time: dt.Time.In(loc), Aware: true}
		}
	}
}
