package view

import (
	"time"

	"lendboard/lending/fixedpoint"
	"lendboard/lending/health"
	"lendboard/lending/market"
	"lendboard/lending/portfolio"
	"lendboard/lending/rates"
)

// Evaluation holds the engine output for one snapshot.
type Evaluation struct {
	Entries    []market.Entry
	Totals     portfolio.Totals
	Health     health.AccountHealth
	Markets    portfolio.Markets
	Annualizer rates.Annualizer
}

// Evaluate runs records through the builder, dedupe, aggregation and health
// derivation. It only fails in strict mode.
func Evaluate(records []market.Record, annualizer rates.Annualizer, strict bool) (Evaluation, error) {
	entries, err := market.Builder{Strict: strict}.Build(records)
	if err != nil {
		return Evaluation{}, err
	}
	entries = portfolio.Dedupe(entries)
	totals := portfolio.Aggregate(entries, annualizer)
	return Evaluation{
		Entries:    entries,
		Totals:     totals,
		Health:     health.Evaluate(totals),
		Markets:    portfolio.Partition(entries),
		Annualizer: annualizer,
	}, nil
}

// View is the rendered account view. USD amounts are decimal strings with
// 18 places; null marks a value that is not available yet.
type View struct {
	Account    string      `json:"account"`
	ChainID    uint64      `json:"chainId"`
	SnapshotID string      `json:"snapshotId,omitempty"`
	AsOf       *time.Time  `json:"asOf,omitempty"`
	Totals     TotalsView  `json:"totals"`
	Health     HealthView  `json:"health"`
	Assets     []AssetView `json:"assets"`
	Markets    MarketsView `json:"markets"`
	Warnings   []Warning   `json:"warnings,omitempty"`
}

type TotalsView struct {
	SupplyValueUSD *string `json:"supplyValueUsd"`
	BorrowValueUSD *string `json:"borrowValueUsd"`
	LimitUSD       *string `json:"limitUsd"`
	MarketSizeUSD  *string `json:"marketSizeUsd"`
	LiquidityUSD   *string `json:"liquidityUsd"`
	NetAPY         float64 `json:"netApy"`
	Included       int     `json:"included"`
	Pending        int     `json:"pending"`
	Missing        int     `json:"missing"`
	Invalid        int     `json:"invalid"`
	Unavailable    int     `json:"unavailable"`
	Complete       bool    `json:"complete"`
}

type RatioView struct {
	State   string   `json:"state"`
	Value   *string  `json:"value,omitempty"`
	Percent *float64 `json:"percent,omitempty"`
}

type HealthView struct {
	UsedLimit            RatioView `json:"usedLimit"`
	AvailableToBorrowUSD *string   `json:"availableToBorrowUsd"`
	OverLimit            bool      `json:"overLimit"`
}

type AssetView struct {
	Market               string     `json:"market"`
	Symbol               string     `json:"symbol,omitempty"`
	Underlying           string     `json:"underlying,omitempty"`
	State                string     `json:"state"`
	Error                string     `json:"error,omitempty"`
	SupplyBalance        *string    `json:"supplyBalance,omitempty"`
	BorrowBalance        *string    `json:"borrowBalance,omitempty"`
	SupplyValueUSD       *string    `json:"supplyValueUsd,omitempty"`
	BorrowValueUSD       *string    `json:"borrowValueUsd,omitempty"`
	CollateralValueUSD   *string    `json:"collateralValueUsd,omitempty"`
	SupplyAPY            float64    `json:"supplyApy"`
	BorrowAPY            float64    `json:"borrowApy"`
	ShareOfLimit         *RatioView `json:"shareOfLimit,omitempty"`
	CanBeCollateral      bool       `json:"canBeCollateral"`
	CanDisableCollateral bool       `json:"canDisableCollateral"`
}

// MarketsView lists market addresses per dashboard table.
type MarketsView struct {
	Supplied   []string `json:"supplied"`
	Supplyable []string `json:"supplyable"`
	Borrowed   []string `json:"borrowed"`
	Borrowable []string `json:"borrowable"`
}

func amount(a fixedpoint.Amount) *string {
	if !a.Available() {
		return nil
	}
	s := fixedpoint.Format(a.Int(), fixedpoint.Decimals, fixedpoint.Decimals)
	return &s
}

func ratioView(r health.Ratio) RatioView {
	out := RatioView{State: r.State.String()}
	if mantissa := r.Mantissa(); mantissa != nil {
		value := fixedpoint.Format(mantissa, fixedpoint.Decimals, fixedpoint.Decimals)
		out.Value = &value
	}
	if pct, ok := r.Percent(); ok {
		out.Percent = &pct
	}
	return out
}

func addresses(assets []*market.Asset) []string {
	out := make([]string, 0, len(assets))
	for _, asset := range assets {
		out = append(out, asset.Market.Address.Hex())
	}
	return out
}

// Render shapes the evaluation for clients.
func (e Evaluation) Render(account string, chainID uint64, warnings []Warning) View {
	v := View{
		Account: account,
		ChainID: chainID,
		Totals: TotalsView{
			SupplyValueUSD: amount(e.Totals.SupplyValue),
			BorrowValueUSD: amount(e.Totals.BorrowValue),
			LimitUSD:       amount(e.Totals.Limit),
			MarketSizeUSD:  amount(e.Totals.MarketSize),
			LiquidityUSD:   amount(e.Totals.LiquidityValue),
			NetAPY:         e.Totals.NetAPY,
			Included:       e.Totals.Included,
			Pending:        e.Totals.Pending,
			Missing:        e.Totals.Missing,
			Invalid:        e.Totals.Invalid,
			Unavailable:    e.Totals.Unavailable,
			Complete:       e.Totals.Complete(),
		},
		Health: HealthView{
			UsedLimit:            ratioView(e.Health.UsedLimit()),
			AvailableToBorrowUSD: amount(e.Health.AvailableToBorrow()),
			OverLimit:            e.Health.OverLimit(),
		},
		Assets: make([]AssetView, 0, len(e.Entries)),
		Markets: MarketsView{
			Supplied:   addresses(e.Markets.Supplied),
			Supplyable: addresses(e.Markets.Supplyable),
			Borrowed:   addresses(e.Markets.Borrowed),
			Borrowable: addresses(e.Markets.Borrowable),
		},
		Warnings: warnings,
	}
	for _, entry := range e.Entries {
		v.Assets = append(v.Assets, e.asset(entry))
	}
	return v
}

func (e Evaluation) asset(entry market.Entry) AssetView {
	out := AssetView{
		Market: entry.Market.Address.Hex(),
		Symbol: entry.Market.Symbol,
		State:  entry.State.String(),
	}
	if entry.Err != nil {
		out.Error = entry.Err.Error()
	}
	asset := entry.Asset
	if entry.State != market.StateExists || asset == nil {
		return out
	}
	share := ratioView(e.Health.ShareOfLimit(asset))
	out.Underlying = asset.Underlying.Symbol
	out.SupplyBalance = amount(asset.SupplyBalanceInUnderlying())
	out.BorrowBalance = amount(asset.BorrowBalanceInUnderlying())
	out.SupplyValueUSD = amount(asset.SupplyValueUSD())
	out.BorrowValueUSD = amount(asset.BorrowValueUSD())
	out.CollateralValueUSD = amount(asset.CollateralWeightedValueUSD())
	out.SupplyAPY = e.Annualizer.APY(asset.SupplyRatePerBlock)
	out.BorrowAPY = e.Annualizer.APY(asset.BorrowRatePerBlock)
	out.ShareOfLimit = &share
	out.CanBeCollateral = asset.CanBeCollateral
	out.CanDisableCollateral = e.Health.CanDisableCollateral(asset)
	return out
}
