package main

import (
	"os"

	"backtest-artifacts/internal/cli"
)

func main() {
	os.Exit(cli.RunRange("data-range", os.Args[1:], os.Stdout, os.Stderr))
}
