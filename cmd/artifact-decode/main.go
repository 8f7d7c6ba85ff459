package main

import (
	"os"

	"backtest-artifacts/internal/cli"
)

func main() {
	os.Exit(cli.RunDecode("artifact-decode", os.Args[1:], os.Stdout, os.Stderr))
}
