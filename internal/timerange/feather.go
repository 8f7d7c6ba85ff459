package timerange

import (
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"backtest-artifacts/internal/model"
)

// loadFeather reads a feather (Arrow IPC file) table, compressed or not.
func loadFeather(path, column string) (model.Instant, model.Instant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, nil, fmt.Errorf("read feather %s: %w", path, err)
	}
	defer r.Close()

	idx := r.Schema().FieldIndices(column)
	if len(idx) == 0 {
		return nil, nil, ErrEmpty
	}
	col := idx[0]

	var first, last model.Instant
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, nil, fmt.Errorf("read feather %s: record batch %d: %w", path, i, err)
		}
		if rec.NumRows() == 0 {
			continue
		}
		arr := rec.Column(col)
		if first == nil {
			if first, err = arrowInstant(arr, 0); err != nil {
				return nil, nil, err
			}
		}
		if last, err = arrowInstant(arr, arr.Len()-1); err != nil {
			return nil, nil, err
		}
	}
	if first == nil {
		return nil, nil, ErrEmpty
	}
	return first, last, nil
}

// arrowInstant converts row i of a temporal column.
func arrowInstant(arr arrow.Array, i int) (model.Instant, error) {
	if arr.IsNull(i) {
		return model.NaT{}, nil
	}
	switch a := arr.(type) {
	case *array.Timestamp:
		typ := a.DataType().(*arrow.TimestampType)
		toTime, err := typ.GetToTimeFunc()
		if err != nil {
			return nil, err
		}
		return model.DateTime{Time: toTime(a.Value(i)), Aware: typ.TimeZone != ""}, nil
	case *array.Date32:
		return model.Date{Time: a.Value(i).ToTime()}, nil
	case *array.Date64:
		return model.Date{Time: a.Value(i).ToTime()}, nil
	}
	return nil, fmt.Errorf("date column has unsupported type %s", arr.DataType())
}
