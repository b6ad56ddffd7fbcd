// Package flow holds the smart-money flow domain: upstream records, the merge of
// netflow and DEX data, and the projection into per-timeframe rows.
package flow

import (
	"time"

	"github.com/shopspring/decimal"
)

// Horizon is a fixed netflow window reported by the netflow provider.
type Horizon string

const (
	Horizon1h  Horizon = "1h"
	Horizon24h Horizon = "24h"
	Horizon7d  Horizon = "7d"
	Horizon30d Horizon = "30d"
)

// Interval is a DEX short interval code.
type Interval string

const (
	IntervalM5  Interval = "m5"
	IntervalH1  Interval = "h1"
	IntervalH6  Interval = "h6"
	IntervalH24 Interval = "h24"
)

// NetflowRecord is one token from the smart-money netflow provider.
type NetflowRecord struct {
	Address      string
	Symbol       string
	Chain        string
	NetFlow      map[Horizon]decimal.Decimal
	TraderCount  int64
	MarketCapUSD decimal.Decimal
	AgeDays      int64
	Sectors      []string
}

// Flow returns the netflow for h, zero when the provider omitted it.
func (r NetflowRecord) Flow(h Horizon) decimal.Decimal {
	if r.NetFlow == nil {
		return decimal.Zero
	}
	return r.NetFlow[h]
}

// MarketRecord is one DEX trading pair keyed by its base token address.
type MarketRecord struct {
	Address      string
	PairAddress  string
	DexID        string
	ChainID      string
	PriceChange  map[Interval]decimal.Decimal
	Volume       map[Interval]decimal.Decimal
	LiquidityUSD decimal.Decimal
	FDV          decimal.Decimal
}

// MergedToken is a netflow record joined with its liquidity-maximal pair, if any.
type MergedToken struct {
	Netflow NetflowRecord
	Market  *MarketRecord
}

// TimeframeRow is the unit persisted per (token, timeframe).
type TimeframeRow struct {
	Symbol           string
	Address          string
	Timeframe        string
	PriceChangePct   decimal.Decimal
	MarketCap        decimal.Decimal
	SmartWalletCount int64
	Volume           decimal.Decimal
	Liquidity        decimal.Decimal
	Inflow           decimal.Decimal
	Outflow          decimal.Decimal
	NetFlow          decimal.Decimal
	TokenAge         int64
	Sectors          []string
	FetchedAt        time.Time
}

// Bucket is the full replacement row-set for one timeframe.
type Bucket struct {
	Timeframe string
	Rows      []TimeframeRow
}
