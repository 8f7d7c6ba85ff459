// Package cli holds the command runners shared by every binary. A runner
// takes the arguments after the program or subcommand name, writes its result
// to stdout and diagnostics to stderr, and returns the process exit code.
package cli

import (
	"errors"
	"io"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"backtest-artifacts/internal/config"
	"backtest-artifacts/internal/logging"
)

const (
	exitOK    = 0
	exitError = 1
)

// commonFlags are accepted by every command.
type commonFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newFlagSet(name string, stderr io.Writer) (*pflag.FlagSet, *commonFlags) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	c := &commonFlags{}
	fs.StringVar(&c.configPath, "config", "", "path to YAML config")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error (default warn)")
	fs.StringVar(&c.logFormat, "log-format", "", "log encoding: console or json")
	return fs, c
}

// setup loads the config file, overlays flag values and builds the logger.
func (c *commonFlags) setup(override config.Config, stderr io.Writer) (*config.Config, *zap.Logger, error) {
	base, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	override.Log.Level = c.logLevel
	override.Log.Encoding = c.logFormat
	merged := config.Merge(*base, override)
	if err := merged.Validate(); err != nil {
		return nil, nil, err
	}
	log, err := logging.NewWithSink(merged.Log, stderr)
	if err != nil {
		return nil, nil, err
	}
	return &merged, log, nil
}

// parseFlags parses args; help is reported as handled with exit code 0.
func parseFlags(fs *pflag.FlagSet, args []string) (done bool, code int) {
	err := fs.Parse(args)
	switch {
	case err == nil:
		return false, exitOK
	case errors.Is(err, pflag.ErrHelp):
		return true, exitOK
	}
	return true, exitError
}
