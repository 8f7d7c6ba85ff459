package timerange

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/klauspost/compress/gzip"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-artifacts/internal/config"
	"backtest-artifacts/internal/model"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// writeFeather writes one record batch per entry of batches, each holding
// that many hourly candles.
func writeFeather(t *testing.T, path string, dateType arrow.DataType, opts []ipc.Option, batches ...int) {
	t.Helper()
	pool := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "date", Type: dateType},
		{Name: "open", Type: arrow.PrimitiveTypes.Float64},
		{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	}, nil)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w, err := ipc.NewFileWriter(f, append([]ipc.Option{ipc.WithSchema(schema), ipc.WithAllocator(pool)}, opts...)...)
	require.NoError(t, err)

	b := array.NewRecordBuilder(pool, schema)
	defer b.Release()
	row := 0
	for _, n := range batches {
		for i := 0; i < n; i++ {
			ts := t0.Add(time.Duration(row) * time.Hour)
			switch fb := b.Field(0).(type) {
			case *array.TimestampBuilder:
				unit := dateType.(*arrow.TimestampType).Unit
				v, err := arrow.TimestampFromTime(ts, unit)
				require.NoError(t, err)
				fb.Append(v)
			case *array.Date32Builder:
				fb.Append(arrow.Date32FromTime(ts.Add(time.Duration(row) * 23 * time.Hour)))
			}
			b.Field(1).(*array.Float64Builder).Append(float64(row))
			b.Field(2).(*array.Float64Builder).Append(float64(row) + 0.5)
			row++
		}
		rec := b.NewRecord()
		require.NoError(t, w.Write(rec))
		rec.Release()
	}
	require.NoError(t, w.Close())
}

func extract(t *testing.T, path string) (*model.TimeRange, error) {
	t.Helper()
	return New(config.RangeConfig{}, nil).Extract(path)
}

func TestExtract_Feather(t *testing.T) {
	utc := &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}
	tests := []struct {
		name    string
		opts    []ipc.Option
		batches []int
	}{
		{name: "single batch", batches: []int{100}},
		{name: "several batches", batches: []int{40, 0, 60}},
		{name: "lz4 compressed", opts: []ipc.Option{ipc.WithLZ4()}, batches: []int{100}},
		{name: "zstd compressed", opts: []ipc.Option{ipc.WithZstd()}, batches: []int{100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "BTC_USDT-1h.feather")
			writeFeather(t, path, utc, tt.opts, tt.batches...)

			tr, err := extract(t, path)
			require.NoError(t, err)
			assert.Equal(t, "2024-01-01T00:00:00+00:00", tr.StartTime)
			assert.Equal(t, "2024-01-05T03:00:00+00:00", tr.EndTime)
		})
	}
}

func TestExtract_FeatherNaiveNanoseconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "naive.feather")
	writeFeather(t, path, &arrow.TimestampType{Unit: arrow.Nanosecond}, nil, 2)

	tr, err := extract(t, path)
	require.NoError(t, err)
	assert.Equal(t, &model.TimeRange{StartTime: "2024-01-01T00:00:00", EndTime: "2024-01-01T01:00:00"}, tr)
}

func TestExtract_FeatherDateColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily.feather")
	writeFeather(t, path, arrow.FixedWidthTypes.Date32, nil, 3)

	tr, err := extract(t, path)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", tr.StartTime)
	assert.Equal(t, "2024-01-03", tr.EndTime)
}

func TestExtract_FeatherEmpty(t *testing.T) {
	utc := &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}
	t.Run("no batches", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.feather")
		writeFeather(t, path, utc, nil)
		_, err := extract(t, path)
		assert.ErrorIs(t, err, ErrEmpty)
	})
	t.Run("empty batch", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.feather")
		writeFeather(t, path, utc, nil, 0)
		_, err := extract(t, path)
		assert.ErrorIs(t, err, ErrEmpty)
	})
}

func TestExtract_MissingDateColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.feather")
	writeFeather(t, path, &arrow.TimestampType{Unit: arrow.Second}, nil, 5)

	_, err := New(config.RangeConfig{DateColumn: "timestamp"}, nil).Extract(path)
	assert.ErrorIs(t, err, ErrEmpty)
	assert.Equal(t, "File is empty or 'date' column is missing", ErrEmpty.Error())
}

func TestExtract_UnsupportedDateType(t *testing.T) {
	pool := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{{Name: "date", Type: arrow.BinaryTypes.String}}, nil)
	path := filepath.Join(t.TempDir(), "strings.feather")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	require.NoError(t, err)
	b := array.NewRecordBuilder(pool, schema)
	b.Field(0).(*array.StringBuilder).Append("2024-01-01")
	rec := b.NewRecord()
	require.NoError(t, w.Write(rec))
	rec.Release()
	b.Release()
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	_, err = extract(t, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestExtract_NotFeather(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.feather")
	require.NoError(t, os.WriteFile(path, []byte("definitely not arrow"), 0o644))
	_, err := extract(t, path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmpty)
}

func TestExtract_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.feather")
	_, err := extract(t, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), path)
}

type candle struct {
	Date  time.Time `parquet:"date"`
	Open  float64   `parquet:"open"`
	Close float64   `parquet:"close"`
}

func writeParquet[T any](t *testing.T, path string, rows []T) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := parquet.NewGenericWriter[T](f)
	if len(rows) > 0 {
		_, err = w.Write(rows)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestExtract_Parquet(t *testing.T) {
	rows := make([]candle, 100)
	for i := range rows {
		rows[i] = candle{Date: t0.Add(time.Duration(i) * time.Hour), Open: float64(i), Close: float64(i)}
	}
	path := filepath.Join(t.TempDir(), "BTC_USDT-1h.parquet")
	writeParquet(t, path, rows)

	tr, err := extract(t, path)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00+00:00", tr.StartTime)
	assert.Equal(t, "2024-01-05T03:00:00+00:00", tr.EndTime)
}

func TestExtract_ParquetEmptyOrMissingColumn(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.parquet")
	writeParquet[candle](t, empty, nil)
	_, err := extract(t, empty)
	assert.ErrorIs(t, err, ErrEmpty)

	type noDate struct {
		Close float64 `parquet:"close"`
	}
	missing := filepath.Join(dir, "nodate.parquet")
	writeParquet(t, missing, []noDate{{Close: 1}})
	_, err = extract(t, missing)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestExtract_JSONCandles(t *testing.T) {
	dir := t.TempDir()
	arrays := []byte(`[[1704067200000,1,2,0.5,1.5,10],[1704070800000,1,2,0.5,1.5,10],[1704423600000,1,2,0.5,1.5,10]]`)

	plain := filepath.Join(dir, "BTC_USDT-1h.json")
	require.NoError(t, os.WriteFile(plain, arrays, 0o644))

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write(arrays)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	compressed := filepath.Join(dir, "BTC_USDT-1h.json.gz")
	require.NoError(t, os.WriteFile(compressed, gz.Bytes(), 0o644))

	objects := filepath.Join(dir, "objects.json")
	require.NoError(t, os.WriteFile(objects, []byte(`[{"date":"2024-01-01T00:00:00Z","close":1},{"date":"2024-01-05T03:00:00+00:00","close":2}]`), 0o644))

	for _, path := range []string{plain, compressed, objects} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			tr, err := extract(t, path)
			require.NoError(t, err)
			assert.Equal(t, "2024-01-01T00:00:00+00:00", tr.StartTime)
			assert.Equal(t, "2024-01-05T03:00:00+00:00", tr.EndTime)
		})
	}

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`[]`), 0o644))
	_, err = extract(t, empty)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestExtract_FormatOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.dat")
	require.NoError(t, os.WriteFile(path, []byte(`[[1704067200000,1,2,0.5,1.5,10]]`), 0o644))

	tr, err := New(config.RangeConfig{Format: "json"}, nil).Extract(path)
	require.NoError(t, err)
	assert.Equal(t, tr.StartTime, tr.EndTime)

	_, err = New(config.RangeConfig{Format: "csv"}, nil).Extract(path)
	assert.Error(t, err)
}

func TestFormatFor(t *testing.T) {
	tests := map[string]string{
		"BTC_USDT-1h.feather":    "feather",
		"BTC_USDT-1h.parquet":    "parquet",
		"BTC_USDT-1h.PARQUET":    "parquet",
		"BTC_USDT-1h.json":       "json",
		"BTC_USDT-1h.json.gz":    "json",
		"/data/binance/any.file": "feather",
	}
	for path, want := range tests {
		assert.Equal(t, want, FormatFor(path), path)
	}
}
