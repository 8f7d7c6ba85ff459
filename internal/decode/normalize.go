package decode

import (
	"fmt"
	"math"
	"math/big"

	"backtest-artifacts/internal/model"
)

// normalize rewrites a decoded value into plain JSON shapes. Tables become
// lists of row mappings and series become label mappings, at any depth.
// Values JSON cannot hold are replaced by their Python str() rendering.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, int64, *big.Int, string, Number:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, nil
		}
		return x, nil
	case model.NaT:
		return nil, nil
	case *model.Table:
		rows, err := x.Records()
		if err != nil {
			return nil, err
		}
		out := make([]any, len(rows))
		for i, r := range rows {
			if out[i], err = normalize(r); err != nil {
				return nil, err
			}
		}
		return out, nil
	case *model.Series:
		m, err := x.ToMapping()
		if err != nil {
			return nil, err
		}
		return normalize(m)
	case []any:
		out := make([]any, len(x))
		for i, it := range x {
			n, err := normalize(it)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case *model.Mapping:
		out := model.NewMapping()
		for p := x.Oldest(); p != nil; p = p.Next() {
			n, err := normalize(p.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.Key, err)
			}
			out.Set(p.Key, n)
		}
		return out, nil
	case []byte:
		return model.BytesRepr(x), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return fmt.Sprint(v), nil
}
