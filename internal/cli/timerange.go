package cli

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"backtest-artifacts/internal/config"
	"backtest-artifacts/internal/timerange"
)

type errorResult struct {
	Error string `json:"error"`
}

// RunRange prints {"startTime": ..., "endTime": ...} for the single path
// argument. Every failure is reported as {"error": ...} on stderr.
func RunRange(prog string, args []string, stdout, stderr io.Writer) int {
	flags, common := newFlagSet(prog, stderr)
	column := flags.String("date-column", "", "name of the date column (default date)")
	format := flags.String("format", "", "force the file format: feather, parquet or json")
	if done, code := parseFlags(flags, args); done {
		return code
	}
	if flags.NArg() != 1 {
		return writeError(stderr, fmt.Sprintf("Usage: %s <file_path>", prog))
	}

	var override config.Config
	override.Range.DateColumn = *column
	override.Range.Format = *format
	cfg, log, err := common.setup(override, stderr)
	if err != nil {
		return writeError(stderr, err.Error())
	}
	defer log.Sync()

	tr, err := timerange.New(cfg.Range, log).Extract(flags.Arg(0))
	if err != nil {
		return writeError(stderr, err.Error())
	}
	raw, err := json.Marshal(tr)
	if err != nil {
		return writeError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, string(raw))
	return exitOK
}

func writeError(w io.Writer, msg string) int {
	raw, err := json.Marshal(errorResult{Error: msg})
	if err != nil {
		fmt.Fprintln(w, msg)
		return exitError
	}
	fmt.Fprintln(w, string(raw))
	return exitError
}
