package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

func runMarkets(args []string, stdout io.Writer) error {
	fs := newFlagSet(marketsCommand, os.Stderr)
	configPath := fs.String("config", defaultConfig, "Path to the lendboard catalog")
	chainID := fs.Uint64("chain", 0, "Chain ID, defaults to the catalog's default chain")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cat, err := loadCatalog(*configPath)
	if err != nil {
		return err
	}
	if *chainID == 0 {
		*chainID = cat.DefaultChain()
	}
	listings, err := cat.Markets(*chainID)
	if err != nil {
		return err
	}
	annualizer, err := cat.Annualizer(*chainID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Chain %d: %d blocks/day, %d days/year\n\n", *chainID, annualizer.BlocksPerDay, annualizer.DaysPerYear)
	fmt.Fprintln(tw, "SYMBOL\tMARKET\tUNDERLYING\tDECIMALS")
	for _, l := range listings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", l.Market.Symbol, l.Market.Address.Hex(), l.Underlying.Symbol, l.Underlying.Decimals)
	}
	return tw.Flush()
}
