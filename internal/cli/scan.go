package cli

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"backtest-artifacts/internal/config"
	"backtest-artifacts/internal/data"
	"backtest-artifacts/internal/timerange"
)

// RunScan prints the candle files of a freqtrade data directory as a JSON
// array, optionally with the time range of each file.
func RunScan(prog string, args []string, stdout, stderr io.Writer) int {
	flags, common := newFlagSet(prog, stderr)
	dataDir := flags.String("datadir", "", "freqtrade data directory (user_data/data)")
	withRanges := flags.Bool("ranges", false, "read the time range of every file")
	if done, code := parseFlags(flags, args); done {
		return code
	}
	if *dataDir == "" || flags.NArg() != 0 {
		fmt.Fprintf(stderr, "Usage: %s --datadir <dir> [--ranges]\n", prog)
		return exitError
	}

	cfg, log, err := common.setup(config.Config{}, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "An error occurred: %v\n", err)
		return exitError
	}
	defer log.Sync()

	files, err := data.ScanDataFiles(*dataDir, log)
	if err != nil {
		fmt.Fprintf(stderr, "An error occurred: %v\n", err)
		return exitError
	}
	if *withRanges {
		addRanges(files, cfg.Range, log)
	}
	if files == nil {
		files = []data.DataFile{}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(files); err != nil {
		fmt.Fprintf(stderr, "An error occurred: %v\n", err)
		return exitError
	}
	return exitOK
}

// addRanges fills in each file's time range. Failures stay with the file.
func addRanges(files []data.DataFile, cfg config.RangeConfig, log *zap.Logger) {
	for i := range files {
		rc := cfg
		// the file name says what the file holds
		rc.Format = timerange.FormatFor(files[i].Path)
		tr, err := timerange.New(rc, log).Extract(files[i].Path)
		if err != nil {
			log.Info("could not read time range", zap.String("file", files[i].Path), zap.Error(err))
			files[i].RangeError = err.Error()
			continue
		}
		files[i].Range = tr
	}
}
