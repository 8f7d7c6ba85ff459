package timerange

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"backtest-artifacts/internal/model"
)

// candleTimestamps are the keys tried for the time of object-shaped candles.
var candleTimestamps = []string{"timestamp", "time"}

// loadJSON reads freqtrade JSON candles, plain or gzipped. Candles are either
// arrays whose first element is epoch milliseconds, or objects carrying the
// date column as epoch milliseconds or an ISO-8601 string.
func loadJSON(path, column string) (model.Instant, model.Instant, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if bytes.HasPrefix(raw, []byte{0x1f, 0x8b}) {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		defer zr.Close()
		if raw, err = io.ReadAll(zr); err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var candles []any
	if err := dec.Decode(&candles); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(candles) == 0 {
		return nil, nil, ErrEmpty
	}
	first, err := candleTime(candles[0], column)
	if err != nil {
		return nil, nil, err
	}
	last, err := candleTime(candles[len(candles)-1], column)
	if err != nil {
		return nil, nil, err
	}
	return first, last, nil
}

func candleTime(candle any, column string) (model.Instant, error) {
	switch c := candle.(type) {
	case []any:
		if len(c) == 0 {
			return nil, fmt.Errorf("empty candle")
		}
		return jsonInstant(c[0])
	case map[string]any:
		for _, key := range append([]string{column}, candleTimestamps...) {
			if v, ok := c[key]; ok {
				return jsonInstant(v)
			}
		}
		return nil, ErrEmpty
	}
	return nil, fmt.Errorf("unsupported candle %T", candle)
}

func jsonInstant(v any) (model.Instant, error) {
	switch x := v.(type) {
	case nil:
		return model.NaT{}, nil
	case json.Number:
		ms, err := x.Int64()
		if err != nil {
			f, ferr := x.Float64()
			if ferr != nil {
				return nil, fmt.Errorf("invalid timestamp %s", x)
			}
			ms = int64(f)
		}
		return model.DateTime{Time: time.UnixMilli(ms).UTC(), Aware: true}, nil
	case string:
		return parseISO(x)
	}
	return nil, fmt.Errorf("unsupported timestamp %T", v)
}

var isoLayouts = []struct {
	layout string
	aware  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02 15:04:05.999999999Z07:00", true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02 15:04:05.999999999", false},
}

func parseISO(s string) (model.Instant, error) {
	for _, l := range isoLayouts {
		if t, err := time.Parse(l.layout, s); err == nil {
			return model.DateTime{Time: t, Aware: l.aware}, nil
		}
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return model.Date{Time: t}, nil
	}
	return nil, fmt.Errorf("invalid timestamp %q", strings.TrimSpace(s))
}
