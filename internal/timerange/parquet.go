package timerange

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/deprecated"

	"backtest-artifacts/internal/model"
)

// loadParquet reads the date column of a parquet file chunk by chunk, keeping
// only its first and last value.
func loadParquet(path, column string) (model.Instant, model.Instant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}

	pf, err := parquet.OpenFile(f, info.Size(), parquet.SkipBloomFilters(true))
	if err != nil {
		return nil, nil, fmt.Errorf("open parquet %s: %w", path, err)
	}
	leaf, ok := pf.Schema().Lookup(column)
	if !ok {
		return nil, nil, ErrEmpty
	}
	convert, err := parquetConverter(leaf.Node)
	if err != nil {
		return nil, nil, err
	}

	var first, last *parquet.Value
	for _, rg := range pf.RowGroups() {
		if rg.NumRows() == 0 {
			continue
		}
		lo, hi, err := chunkEnds(rg.ColumnChunks()[leaf.ColumnIndex])
		if err != nil {
			return nil, nil, fmt.Errorf("read parquet %s: %w", path, err)
		}
		if lo == nil {
			continue
		}
		if first == nil {
			first = lo
		}
		last = hi
	}
	if first == nil {
		return nil, nil, ErrEmpty
	}
	return convert(*first), convert(*last), nil
}

// chunkEnds returns the first and last value stored in a column chunk.
func chunkEnds(chunk parquet.ColumnChunk) (first, last *parquet.Value, err error) {
	pages := chunk.Pages()
	defer pages.Close()

	buf := make([]parquet.Value, 512)
	for {
		page, err := pages.ReadPage()
		if errors.Is(err, io.EOF) {
			return first, last, nil
		}
		if err != nil {
			return nil, nil, err
		}
		values := page.Values()
		for {
			n, err := values.ReadValues(buf)
			if n > 0 {
				if first == nil {
					v := buf[0].Clone()
					first = &v
				}
				v := buf[n-1].Clone()
				last = &v
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				parquet.Release(page)
				return nil, nil, err
			}
		}
		parquet.Release(page)
	}
}

// parquetConverter maps the column's logical type to an Instant constructor.
func parquetConverter(node parquet.Node) (func(parquet.Value) model.Instant, error) {
	lt := node.Type().LogicalType()
	switch {
	case lt != nil && lt.Timestamp != nil:
		unit := time.Nanosecond
		switch {
		case lt.Timestamp.Unit.Millis != nil:
			unit = time.Millisecond
		case lt.Timestamp.Unit.Micros != nil:
			unit = time.Microsecond
		}
		aware := lt.Timestamp.IsAdjustedToUTC
		return func(v parquet.Value) model.Instant {
			if v.IsNull() {
				return model.NaT{}
			}
			return model.DateTime{Time: epochTime(v.Int64(), unit), Aware: aware}
		}, nil
	case lt != nil && lt.Date != nil:
		return func(v parquet.Value) model.Instant {
			if v.IsNull() {
				return model.NaT{}
			}
			return model.Date{Time: time.Unix(int64(v.Int32())*86400, 0).UTC()}
		}, nil
	}
	if ct := node.Type().ConvertedType(); ct != nil {
		switch *ct {
		case deprecated.TimestampMillis:
			return legacyTimestamp(time.Millisecond), nil
		case deprecated.TimestampMicros:
			return legacyTimestamp(time.Microsecond), nil
		}
	}
	return nil, fmt.Errorf("date column has unsupported type %s", node.Type())
}

func legacyTimestamp(unit time.Duration) func(parquet.Value) model.Instant {
	return func(v parquet.Value) model.Instant {
		if v.IsNull() {
			return model.NaT{}
		}
		return model.DateTime{Time: epochTime(v.Int64(), unit), Aware: true}
	}
}

func epochTime(v int64, unit time.Duration) time.Time {
	per := int64(time.Second / unit)
	sec, frac := v/per, v%per
	if frac < 0 {
		sec--
		frac += per
	}
	return time.Unix(sec, frac*int64(unit)).UTC()
}
