package flow

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxSymbolLength is the width of the symbol column; longer symbols are cut to it.
const MaxSymbolLength = 10

// Project expands every token into one row per timeframe in mapping, token-major.
func Project(tokens []MergedToken, mapping Mapping, fetchedAt time.Time) []TimeframeRow {
	rows := make([]TimeframeRow, 0, len(tokens)*len(mapping))
	for _, tok := range tokens {
		for _, spec := range mapping {
			rows = append(rows, projectOne(tok, spec, fetchedAt))
		}
	}
	return rows
}

func projectOne(tok MergedToken, spec TimeframeSpec, fetchedAt time.Time) TimeframeRow {
	nf := tok.Netflow
	net := nf.Flow(spec.Horizon)
	inflow, outflow := SplitFlow(net)

	row := TimeframeRow{
		Symbol:           TruncateSymbol(nf.Symbol),
		Address:          nf.Address,
		Timeframe:        spec.Label,
		PriceChangePct:   decimal.Zero,
		MarketCap:        nf.MarketCapUSD,
		SmartWalletCount: nf.TraderCount,
		Volume:           decimal.Zero,
		Liquidity:        decimal.Zero,
		Inflow:           inflow,
		Outflow:          outflow,
		NetFlow:          net,
		TokenAge:         nf.AgeDays,
		Sectors:          append([]string(nil), nf.Sectors...),
		FetchedAt:        fetchedAt,
	}

	if m := tok.Market; m != nil {
		row.PriceChangePct = m.PriceChange[spec.Interval]
		row.Volume = intervalVolume(m, spec.Interval)
		row.Liquidity = m.LiquidityUSD
		if row.MarketCap.IsZero() {
			row.MarketCap = m.FDV
		}
	}
	return row
}

// SplitFlow decomposes a signed netflow so that inflow - outflow == net and at
// most one side is non-zero.
func SplitFlow(net decimal.Decimal) (inflow, outflow decimal.Decimal) {
	switch net.Sign() {
	case 1:
		return net, decimal.Zero
	case -1:
		return decimal.Zero, net.Neg()
	default:
		return decimal.Zero, decimal.Zero
	}
}

// intervalVolume reads the volume for iv, falling back to the 24h window when
// the pair does not report iv at all.
func intervalVolume(m *MarketRecord, iv Interval) decimal.Decimal {
	if v, ok := m.Volume[iv]; ok {
		return v
	}
	if v, ok := m.Volume[IntervalH24]; ok {
		return v
	}
	return decimal.Zero
}

// TruncateSymbol cuts s to MaxSymbolLength characters.
func TruncateSymbol(s string) string {
	r := []rune(s)
	if len(r) <= MaxSymbolLength {
		return s
	}
	return string(r[:MaxSymbolLength])
}

// GroupByTimeframe returns one bucket per mapping entry, in mapping order.
// Buckets with no rows are kept so publishing them clears stale data.
func GroupByTimeframe(rows []TimeframeRow, mapping Mapping) []Bucket {
	idx := make(map[string]int, len(mapping))
	buckets := make([]Bucket, len(mapping))
	for i, spec := range mapping {
		idx[spec.Label] = i
		buckets[i] = Bucket{Timeframe: spec.Label, Rows: []TimeframeRow{}}
	}
	for _, row := range rows {
		i, ok := idx[row.Timeframe]
		if !ok {
			continue
		}
		buckets[i].Rows = append(buckets[i].Rows, row)
	}
	return buckets
}
