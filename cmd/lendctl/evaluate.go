package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"lendboard/config"
	"lendboard/lending/catalog"
	"lendboard/lending/view"
)

const (
	formatAuto  = "auto"
	formatTable = "table"
	formatJSON  = "json"
)

func runEvaluate(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := newFlagSet(evaluateCommand, os.Stderr)
	configPath := fs.String("config", defaultConfig, "Path to the lendboard catalog")
	snapshotPath := fs.String("snapshot", "-", "Snapshot file, - for stdin")
	account := fs.String("account", "", "Account address shown in the output")
	format := fs.String("format", formatAuto, "Output format: auto, table or json")
	asJSON := fs.Bool("json", false, "Shorthand for -format json")
	strict := fs.Bool("strict", false, "Fail on negative balances instead of skipping the market")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *asJSON {
		*format = formatJSON
	}

	cat, err := loadCatalog(*configPath)
	if err != nil {
		return err
	}
	snap, err := readSnapshot(*snapshotPath, stdin)
	if err != nil {
		return err
	}
	if *account == "" {
		*account = snap.Account
	}
	if *account != "" {
		if *account, err = view.NormalizeAccount(*account); err != nil {
			return err
		}
	}
	records, warnings, err := snap.Resolve(cat)
	if err != nil {
		return err
	}
	annualizer, err := cat.Annualizer(snap.ChainID)
	if err != nil {
		return err
	}
	eval, err := view.Evaluate(records, annualizer, *strict)
	if err != nil {
		return err
	}
	rendered := eval.Render(*account, snap.ChainID, warnings)

	switch resolveFormat(*format, stdout) {
	case formatJSON:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rendered)
	case formatTable:
		return writeTable(stdout, rendered)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return catalog.New(cfg)
}

func readSnapshot(path string, stdin io.Reader) (view.Snapshot, error) {
	if path == "-" {
		return view.ReadSnapshot(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return view.Snapshot{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return view.ReadSnapshot(f)
}

// resolveFormat picks the table for terminals and JSON for pipes when the
// format is auto.
func resolveFormat(format string, out io.Writer) string {
	if format != formatAuto {
		return format
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return formatTable
	}
	return formatJSON
}

var printer = message.NewPrinter(language.AmericanEnglish)

// usd renders an 18-decimal string as grouped dollars; unavailable values
// print as a dash.
func usd(v *string) string {
	if v == nil {
		return "-"
	}
	d, err := decimal.NewFromString(*v)
	if err != nil {
		return *v
	}
	fixed := d.Round(2).StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, cents, _ := strings.Cut(fixed, ".")
	return sign + "$" + groupThousands(whole) + "." + cents
}

// groupThousands inserts commas into a run of digits. Grouping stays on the
// decimal string so values beyond float64 precision keep every digit.
func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func percent(v *float64) string {
	if v == nil {
		return "-"
	}
	return printer.Sprintf("%.2f%%", *v)
}

func writeTable(out io.Writer, v view.View) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if v.Account != "" {
		fmt.Fprintf(tw, "Account\t%s\n", v.Account)
	}
	fmt.Fprintf(tw, "Chain\t%d\n", v.ChainID)
	fmt.Fprintf(tw, "Supply balance\t%s\n", usd(v.Totals.SupplyValueUSD))
	fmt.Fprintf(tw, "Borrow balance\t%s\n", usd(v.Totals.BorrowValueUSD))
	fmt.Fprintf(tw, "Borrow limit\t%s\n", usd(v.Totals.LimitUSD))
	fmt.Fprintf(tw, "Limit used\t%s\n", usedLimit(v.Health.UsedLimit))
	fmt.Fprintf(tw, "Available to borrow\t%s\n", usd(v.Health.AvailableToBorrowUSD))
	fmt.Fprintf(tw, "Net APY\t%s\n", printer.Sprintf("%.2f%%", v.Totals.NetAPY))
	if !v.Totals.Complete {
		fmt.Fprintf(tw, "Status\tpartial (%d loading, %d unavailable)\n", v.Totals.Pending, v.Totals.Unavailable)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "MARKET\tSTATE\tSUPPLIED\tBORROWED\tSUPPLY APY\tBORROW APY\tCOLLATERAL\tLIMIT SHARE")
	for _, a := range v.Assets {
		name := a.Symbol
		if name == "" {
			name = a.Market
		}
		share := "-"
		if a.ShareOfLimit != nil {
			share = usedLimit(*a.ShareOfLimit)
		}
		collateral := "no"
		if a.CanBeCollateral {
			collateral = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f%%\t%.2f%%\t%s\t%s\n",
			name, a.State, usd(a.SupplyValueUSD), usd(a.BorrowValueUSD),
			a.SupplyAPY, a.BorrowAPY, collateral, share)
	}
	for _, w := range v.Warnings {
		fmt.Fprintf(tw, "warning\trecord %d\t%s\t%s\n", w.Index, w.Market, w.Reason)
	}
	return tw.Flush()
}

func usedLimit(r view.RatioView) string {
	switch r.State {
	case "defined":
		return percent(r.Percent)
	case "over_limit_undefined":
		return "over limit"
	default:
		return "-"
	}
}
