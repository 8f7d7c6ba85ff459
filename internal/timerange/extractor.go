// Package timerange reports the first and last timestamp of a candle file.
//
// Files are expected to be sorted by time already; only the first and last
// rows of the date column are read.
package timerange

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"backtest-artifacts/internal/config"
	"backtest-artifacts/internal/model"
)

// ErrEmpty is returned for files without rows or without the date column.
var ErrEmpty = errors.New("File is empty or 'date' column is missing")

// loadFunc reads the first and last value of column from the file at path.
type loadFunc func(path, column string) (first, last model.Instant, err error)

var loaders = map[string]loadFunc{
	"feather": loadFeather,
	"parquet": loadParquet,
	"json":    loadJSON,
}

type Extractor struct {
	cfg config.RangeConfig
	log *zap.Logger
}

func New(cfg config.RangeConfig, log *zap.Logger) *Extractor {
	if cfg.DateColumn == "" {
		cfg.DateColumn = config.DefaultDateColumn
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{cfg: cfg, log: log}
}

// Extract returns the time range covered by the file at path.
func (e *Extractor) Extract(path string) (*model.TimeRange, error) {
	format := e.cfg.Format
	if format == "" {
		format = FormatFor(path)
	}
	load, ok := loaders[format]
	if !ok {
		return nil, fmt.Errorf("unknown data format %q", format)
	}
	e.log.Debug("reading time range", zap.String("path", path), zap.String("format", format), zap.String("column", e.cfg.DateColumn))
	first, last, err := load(path, e.cfg.DateColumn)
	if err != nil {
		return nil, err
	}
	return model.NewTimeRange(first, last), nil
}

// FormatFor picks a loader from the file extension. Unknown extensions are
// read as feather.
func FormatFor(path string) string {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".parquet"):
		return "parquet"
	case strings.HasSuffix(name, ".json"), strings.HasSuffix(name, ".json.gz"):
		return "json"
	}
	return "feather"
}
