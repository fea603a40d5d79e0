package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

const (
	evaluateCommand = "evaluate"
	marketsCommand  = "markets"
	tokenCommand    = "token"
	defaultConfig   = "./lendboard.toml"
	defaultTokenEnv = "DASHBOARDD_JWT_SECRET"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case evaluateCommand:
		err = runEvaluate(os.Args[2:], os.Stdin, os.Stdout)
	case marketsCommand:
		err = runMarkets(os.Args[2:], os.Stdout)
	case tokenCommand:
		err = runToken(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: lendctl <command> [flags]

Commands:
  %s  derive totals and health from a snapshot file
  %s   list the markets configured for a chain
  %s     mint an ingest token for dashboardd
`, evaluateCommand, marketsCommand, tokenCommand)
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}
