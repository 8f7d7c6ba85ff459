package model

import "fmt"

// Table is a decoded DataFrame: labeled columns over a shared row index.
// It only exists between decoding and normalization.
type Table struct {
	Columns []any
	Index   []any
	// Data is column-major: Data[c][r] is row r of column c.
	Data [][]any
}

func (t *Table) NumRows() int {
	if len(t.Index) > 0 {
		return len(t.Index)
	}
	if len(t.Data) > 0 {
		return len(t.Data[0])
	}
	return 0
}

// Records flattens the table into one mapping per row with the column labels
// as keys, the shape pandas produces with to_dict(orient="records").
func (t *Table) Records() ([]*Mapping, error) {
	keys := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		k, err := KeyString(c)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		keys[i] = k
	}
	n := t.NumRows()
	out := make([]*Mapping, n)
	for r := 0; r < n; r++ {
		row := NewMapping()
		for c, k := range keys {
			var v any
			if c < len(t.Data) && r < len(t.Data[c]) {
				v = t.Data[c][r]
			}
			row.Set(k, v)
		}
		out[r] = row
	}
	return out, nil
}

// Series is a decoded pandas Series: values labeled by an index.
type Series struct {
	Name   any
	Index  []any
	Values []any
}

// ToMapping returns index label -> value, like Series.to_dict().
func (s *Series) ToMapping() (*Mapping, error) {
	m := NewMapping()
	for i, v := range s.Values {
		var label any = int64(i)
		if i < len(s.Index) {
			label = s.Index[i]
		}
		k, err := KeyString(label)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		m.Set(k, v)
	}
	return m, nil
}
