package dexscreener

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"smartflow/internal/flow"
)

type tokensResponse struct {
	SchemaVersion string            `json:"schemaVersion"`
	Pairs         []json.RawMessage `json:"pairs"`
}

// pairKey is the part of a pair needed to decide whether it was requested.
// It decodes even when the rest of the pair is malformed.
type pairKey struct {
	ChainID   string `json:"chainId"`
	BaseToken struct {
		Address string `json:"address"`
	} `json:"baseToken"`
}

type Pair struct {
	ChainID     string                         `json:"chainId"`
	DexID       string                         `json:"dexId"`
	PairAddress string                         `json:"pairAddress"`
	BaseToken   BaseToken                      `json:"baseToken"`
	PriceUSD    decimal.NullDecimal            `json:"priceUsd"`
	PriceChange map[string]decimal.NullDecimal `json:"priceChange"`
	Volume      map[string]decimal.NullDecimal `json:"volume"`
	Liquidity   *Liquidity                     `json:"liquidity"`
	FDV         decimal.NullDecimal            `json:"fdv"`
}

type BaseToken struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

type Liquidity struct {
	USD decimal.NullDecimal `json:"usd"`
}

// Record converts the pair into a market record keyed by its base token.
func (p Pair) Record() flow.MarketRecord {
	rec := flow.MarketRecord{
		Address:     p.BaseToken.Address,
		PairAddress: p.PairAddress,
		DexID:       p.DexID,
		ChainID:     p.ChainID,
		PriceChange: intervals(p.PriceChange),
		Volume:      intervals(p.Volume),
	}
	if p.Liquidity != nil && p.Liquidity.USD.Valid {
		rec.LiquidityUSD = p.Liquidity.USD.Decimal
	}
	if p.FDV.Valid {
		rec.FDV = p.FDV.Decimal
	}
	return rec
}

// intervals drops null entries so a null window counts as not reported.
func intervals(in map[string]decimal.NullDecimal) map[flow.Interval]decimal.Decimal {
	out := make(map[flow.Interval]decimal.Decimal, len(in))
	for k, v := range in {
		if !v.Valid {
			continue
		}
		out[flow.Interval(k)] = v.Decimal
	}
	return out
}

// ChunkFailure is one batch that could not be fetched.
type ChunkFailure struct {
	Addresses []string
	Err       error
}

// MarketResult collects the pairs fetched across all chunks.
type MarketResult struct {
	Records  []flow.MarketRecord
	Rejected []flow.Rejection
	Failures []ChunkFailure
	Chunks   int
}
