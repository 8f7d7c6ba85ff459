package main

import (
	"fmt"
	"os"

	"backtest-artifacts/internal/cli"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "decode":
		os.Exit(cli.RunDecode("cli decode", os.Args[2:], os.Stdout, os.Stderr))
	case "range":
		os.Exit(cli.RunRange("cli range", os.Args[2:], os.Stdout, os.Stderr))
	case "scan":
		os.Exit(cli.RunScan("cli scan", os.Args[2:], os.Stdout, os.Stderr))
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  cli decode user_data/hyperopt_results/strategy_2024-01-01.pickle")
	fmt.Fprintln(os.Stderr, "  cli range user_data/data/binance/BTC_USDT-1h.feather")
	fmt.Fprintln(os.Stderr, "  cli scan --datadir user_data/data --ranges")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "notes:")
	fmt.Fprintln(os.Stderr, "  - decode falls back to JSON lines, a JSON document, then raw text")
	fmt.Fprintln(os.Stderr, "  - range expects candles sorted by date")
	fmt.Fprintln(os.Stderr, "  - every command accepts --config, --log-level and --log-format")
}
