package unpickle_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-artifacts/internal/model"
	"backtest-artifacts/internal/unpickle"
	pt "backtest-artifacts/internal/unpickle/pickletest"
)

func mappingKeys(m *model.Mapping) []string {
	var keys []string
	for p := m.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

func TestLoads_DictKeepsOrderAndScalars(t *testing.T) {
	raw := pt.Write(func(b *pt.Builder) {
		b.Items(
			pt.S("zeta"), pt.I(1),
			pt.S("alpha"), func(b *pt.Builder) { b.Elems(pt.F(1.5), pt.S("x"), pt.Nil, func(b *pt.Builder) { b.Bool(true) }) },
			pt.S("mid"), pt.I(-7),
		)
	})

	v, err := unpickle.Loads(raw)
	require.NoError(t, err)
	m, ok := v.(*model.Mapping)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, mappingKeys(m))

	zeta, _ := m.Get("zeta")
	assert.Equal(t, int64(1), zeta)
	alpha, _ := m.Get("alpha")
	assert.Equal(t, []any{1.5, "x", nil, true}, alpha)
	mid, _ := m.Get("mid")
	assert.Equal(t, int64(-7), mid)
}

func TestLoads_NonStringKeys(t *testing.T) {
	raw := pt.Write(func(b *pt.Builder) {
		b.Items(pt.I(1), pt.S("one"), pt.F(2.5), pt.S("two and a half"), pt.Nil, pt.S("none"))
	})
	v, err := unpickle.Loads(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2.5", "null"}, mappingKeys(v.(*model.Mapping)))
}

func TestLoads_TupleKeyIsRejected(t *testing.T) {
	raw := pt.Write(func(b *pt.Builder) {
		b.Items(func(b *pt.Builder) { b.Int(1).Int(2).Tuple2() }, pt.I(3))
	})
	_, err := unpickle.Loads(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keys must be str, int, float, bool or None")
}

func TestLoads_DataFrame(t *testing.T) {
	raw := pt.Write(pt.DataFrame(
		pt.Index(pt.S("open"), pt.S("close")),
		pt.RangeIndex(0, 3),
		pt.Block(pt.FloatArray([]int{2, 3}, 1, 2, 3, 10, 20, 30), 0, 2),
	))

	v, err := unpickle.Loads(raw)
	require.NoError(t, err)
	table, ok := v.(*model.Table)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, []any{"open", "close"}, table.Columns)
	assert.Equal(t, []any{int64(0), int64(1), int64(2)}, table.Index)
	assert.Equal(t, [][]any{{1.0, 2.0, 3.0}, {10.0, 20.0, 30.0}}, table.Data)
}

func TestLoads_DataFrameMixedBlocks(t *testing.T) {
	// pair lives in an object block at position 0, close in a float block at 1
	raw := pt.Write(pt.DataFrame(
		pt.Index(pt.S("pair"), pt.S("close")),
		pt.RangeIndex(0, 2),
		pt.Block(pt.FloatArray([]int{1, 2}, 0.5, 0.25), 1, 2),
		pt.Block(pt.Array("O", []int{1, 2}, func(b *pt.Builder) { b.Elems(pt.S("BTC/USDT"), pt.S("ETH/USDT")) }), 0, 1),
	))

	v, err := unpickle.Loads(raw)
	require.NoError(t, err)
	rows, err := v.(*model.Table).Records()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"pair", "close"}, mappingKeys(rows[0]))
	pair, _ := rows[1].Get("pair")
	assert.Equal(t, "ETH/USDT", pair)
	closeVal, _ := rows[1].Get("close")
	assert.Equal(t, 0.25, closeVal)
}

func TestLoads_Series(t *testing.T) {
	raw := pt.Write(pt.Series(pt.S("profit"), pt.Index(pt.S("a"), pt.S("b")), pt.FloatArray([]int{2}, 1.25, -3)))

	v, err := unpickle.Loads(raw)
	require.NoError(t, err)
	s, ok := v.(*model.Series)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, "profit", s.Name)
	assert.Equal(t, []any{"a", "b"}, s.Index)
	assert.Equal(t, []any{1.25, -3.0}, s.Values)
}

func TestLoads_DatetimeIndex(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := pt.Write(pt.DatetimeIndex(t0, t0.Add(time.Hour)))

	v, err := unpickle.Loads(raw)
	require.NoError(t, err)
	labels, ok := v.([]any)
	require.True(t, ok, "got %T", v)
	require.Len(t, labels, 2)
	assert.Equal(t, "2024-01-01 01:00:00", labels[1].(model.DateTime).String())
}

func TestLoads_DateTime(t *testing.T) {
	when := time.Date(2024, 1, 2, 3, 4, 5, 123456000, time.UTC)
	v, err := unpickle.Loads(pt.Write(pt.DateTime(when)))
	require.NoError(t, err)
	dt, ok := v.(model.DateTime)
	require.True(t, ok, "got %T", v)
	assert.True(t, dt.Aware)
	assert.Equal(t, "2024-01-02 03:04:05.123456+00:00", dt.String())
	assert.Equal(t, "2024-01-02T03:04:05.123456+00:00", dt.ISOFormat())
}

func TestLoads_ProtocolZeroText(t *testing.T) {
	// pickle.dumps({"key": "\u00e9\u2028", "path": "a\\b\n"}, protocol=0)
	raw := []byte("(dp0\nVkey\np1\nV\xe9\\u2028\np2\nsVpath\np3\nVa\\u005cb\\u000a\np4\ns.")
	v, err := unpickle.Loads(raw)
	require.NoError(t, err)
	m, ok := v.(*model.Mapping)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, []string{"key", "path"}, mappingKeys(m))
	key, _ := m.Get("key")
	assert.Equal(t, "\u00e9\u2028", key)
	path, _ := m.Get("path")
	assert.Equal(t, "a\\b\n", path)
}

func TestLoads_ProtocolZeroDateTime(t *testing.T) {
	// pickle.dumps(datetime(2024, 1, 2, 10, 4, 5), protocol=0)
	raw := []byte("cdatetime\ndatetime\np0\n(c_codecs\nencode\np1\n" +
		"(V\x07\xe8\x01\x02\\u000a\x04\x05\\u0000\\u0000\\u0000\np2\nVlatin1\np3\ntp4\nRp5\ntp6\nRp7\n.")
	v, err := unpickle.Loads(raw)
	require.NoError(t, err)
	dt, ok := v.(model.DateTime)
	require.True(t, ok, "got %T", v)
	assert.False(t, dt.Aware)
	assert.Equal(t, "2024-01-02 10:04:05", dt.String())
}

func TestLoads_CategoricalUsesCategories(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		v, err := unpickle.Loads(pt.Write(pt.Categorical(pt.Index(pt.S("long"), pt.S("short")), 1, 0, -1, 1)))
		require.NoError(t, err)
		assert.Equal(t, []any{"short", "long", nil, "short"}, v)
	})
	t.Run("series", func(t *testing.T) {
		raw := pt.Write(pt.Series(pt.S("side"), pt.RangeIndex(0, 2), pt.Categorical(pt.Index(pt.S("long"), pt.S("short")), 0, 1)))
		v, err := unpickle.Loads(raw)
		require.NoError(t, err)
		m, ok := v.(*model.Series)
		require.True(t, ok, "got %T", v)
		assert.Equal(t, []any{"long", "short"}, m.Values)
	})
	t.Run("code outside categories", func(t *testing.T) {
		_, err := unpickle.Loads(pt.Write(pt.Categorical(pt.Index(pt.S("long")), 3)))
		require.Error(t, err)
	})
}

func TestLoads_Set(t *testing.T) {
	raw := pt.Write(func(b *pt.Builder) {
		b.Global("builtins", "set").Elems(pt.S("b"), pt.S("a")).Tuple1().Reduce()
	})
	v, err := unpickle.Loads(raw)
	require.NoError(t, err)
	s, ok := v.(model.Set)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, "{'a', 'b'}", s.String())
}

func TestLoads_TwoDimensionalArray(t *testing.T) {
	v, err := unpickle.Loads(pt.Write(pt.IntArray([]int{2, 2}, 1, 2, 3, 4)))
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{int64(1), int64(2)}, []any{int64(3), int64(4)}}, v)
}

func TestLoads_UnknownClassIsOpaque(t *testing.T) {
	v, err := unpickle.Loads(pt.Write(pt.Object("freqtrade.optimize.hyperopt", "HyperoptState")))
	require.NoError(t, err)
	assert.Equal(t, model.Opaque{Module: "freqtrade.optimize.hyperopt", Name: "HyperoptState"}, v)
	assert.Equal(t, "<freqtrade.optimize.hyperopt.HyperoptState object>", v.(model.Opaque).String())
}

func TestLoads_Garbage(t *testing.T) {
	for name, raw := range map[string][]byte{
		"empty":     {},
		"json":      []byte(`{"a": 1}`),
		"truncated": pt.New().Str("never stopped").Mark().Bytes()[:5],
		"binary":    {0xff, 0xfe, 0x00, 0x01},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := unpickle.Loads(raw)
			assert.Error(t, err)
		})
	}
}
