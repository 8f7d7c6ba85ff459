package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"backtest-artifacts/internal/config"
	"backtest-artifacts/internal/decode"
)

// RunDecode prints the artifact at the single path argument as one line of
// JSON.
func RunDecode(prog string, args []string, stdout, stderr io.Writer) int {
	flags, common := newFlagSet(prog, stderr)
	noDecompress := flags.Bool("no-decompress", false, "decode file content exactly as read")
	if done, code := parseFlags(flags, args); done {
		return code
	}
	if flags.NArg() != 1 {
		fmt.Fprintf(stderr, "Usage: %s <path_to_pickle_file>\n", prog)
		return exitError
	}
	path := flags.Arg(0)

	var override config.Config
	override.Decoder.DisableDecompress = *noDecompress
	cfg, log, err := common.setup(override, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "An error occurred: %v\n", err)
		return exitError
	}
	defer log.Sync()

	v, err := decode.New(cfg.Decoder, log).DecodeFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "Error: File not found at %s\n", path)
		return exitError
	}
	if err != nil {
		fmt.Fprintf(stderr, "An error occurred: %v\n", err)
		return exitError
	}

	var out bytes.Buffer
	if err := decode.Encode(&out, v); err != nil {
		fmt.Fprintf(stderr, "An error occurred: %v\n", err)
		return exitError
	}
	if _, err := stdout.Write(out.Bytes()); err != nil {
		fmt.Fprintf(stderr, "An error occurred: %v\n", err)
		return exitError
	}
	return exitOK
}
