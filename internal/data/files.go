package data

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"backtest-artifacts/internal/model"
)

// DataFile is one candle file found under a freqtrade data directory.
type DataFile struct {
	Filename     string    `json:"filename"`
	Path         string    `json:"filepath"`
	Exchange     string    `json:"exchange"`
	Pair         string    `json:"pair"`
	Timeframe    string    `json:"timeframe"`
	Format       string    `json:"format"`     // json, jsongz, feather, parquet
	CandleType   string    `json:"candleType"` // spot, futures, mark, funding_rate, ...
	MarketType   string    `json:"marketType"` // spot or futures
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`

	// Filled in by the scan command when ranges are requested.
	Range      *model.TimeRange `json:"range,omitempty"`
	RangeError string           `json:"rangeError,omitempty"`
}

// ParsedName is what a data filename says about its content.
type ParsedName struct {
	Pair       string
	Timeframe  string
	Format     string
	CandleType string
}

// e.g. BTC_USDT-1h.feather, BTC_USDT_USDT-5m-futures.parquet, ETH_BTC-1d.json.gz
var dataFilename = regexp.MustCompile(`(?i)^(.+)-(\d+[mhdwM])(?:-(futures|mark|index|premiumIndex|funding_rate))?\.(json|json\.gz|feather|parquet)$`)

// ParseDataFilename splits a freqtrade candle filename into pair, timeframe
// and format. The pair's first underscore becomes the quote separator.
func ParseDataFilename(name string) (ParsedName, bool) {
	m := dataFilename.FindStringSubmatch(name)
	if m == nil {
		return ParsedName{}, false
	}
	p := ParsedName{
		Pair:       strings.Replace(m[1], "_", "/", 1),
		Timeframe:  normalizeTimeframe(m[2]),
		Format:     strings.ToLower(m[4]),
		CandleType: "spot",
	}
	if p.Format == "json.gz" {
		p.Format = "jsongz"
	}
	if m[3] != "" {
		p.CandleType = m[3]
	}
	return p, true
}

// normalizeTimeframe lowercases the unit except M, which is months.
func normalizeTimeframe(tf string) string {
	if strings.HasSuffix(tf, "M") {
		return tf
	}
	return strings.ToLower(tf)
}

// ScanDataFiles lists the candle files under root/<exchange>/ and
// root/<exchange>/futures/. Files whose names do not parse are skipped.
func ScanDataFiles(root string, log *zap.Logger) ([]DataFile, error) {
	if log == nil {
		log = zap.NewNop()
	}
	exchanges, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}
	var out []DataFile
	for _, ex := range exchanges {
		if !ex.IsDir() {
			continue
		}
		dir := filepath.Join(root, ex.Name())
		for _, sub := range []struct {
			path   string
			market string
		}{
			{dir, "spot"},
			{filepath.Join(dir, "futures"), "futures"},
		} {
			files, err := scanDir(sub.path, ex.Name(), sub.market, log)
			if err != nil {
				return nil, err
			}
			out = append(out, files...)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func scanDir(dir, exchange, market string, log *zap.Logger) ([]DataFile, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var out []DataFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		parsed, ok := ParseDataFilename(e.Name())
		if !ok {
			log.Debug("skipping file with invalid name", zap.String("file", filepath.Join(dir, e.Name())))
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", e.Name(), err)
		}
		mt := market
		if parsed.CandleType != "spot" {
			mt = "futures"
		}
		out = append(out, DataFile{
			Filename:     e.Name(),
			Path:         filepath.Join(dir, e.Name()),
			Exchange:     exchange,
			Pair:         parsed.Pair,
			Timeframe:    parsed.Timeframe,
			Format:       parsed.Format,
			CandleType:   parsed.CandleType,
			MarketType:   mt,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
	}
	return out, nil
}
