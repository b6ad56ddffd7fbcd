package nansen

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"smartflow/internal/flow"
)

type NetflowRequest struct {
	Chains     []string
	Page       int
	PerPage    int
	OrderField string
	Direction  string
}

type netflowBody struct {
	Chains     []string   `json:"chains"`
	Pagination pagination `json:"pagination"`
	OrderBy    []orderBy  `json:"order_by"`
}

type pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

type orderBy struct {
	Direction string `json:"direction"`
	Field     string `json:"field"`
}

type netflowResponse struct {
	Data []json.RawMessage `json:"data"`
}

// Token is one entry of the smart-money netflow response.
type Token struct {
	TokenAddress  string              `json:"token_address"`
	TokenSymbol   string              `json:"token_symbol"`
	Chain         string              `json:"chain"`
	NetFlow1hUSD  decimal.NullDecimal `json:"net_flow_1h_usd"`
	NetFlow24hUSD decimal.NullDecimal `json:"net_flow_24h_usd"`
	NetFlow7dUSD  decimal.NullDecimal `json:"net_flow_7d_usd"`
	NetFlow30dUSD decimal.NullDecimal `json:"net_flow_30d_usd"`
	TraderCount   decimal.NullDecimal `json:"trader_count"`
	MarketCapUSD  decimal.NullDecimal `json:"market_cap_usd"`
	TokenAgeDays  decimal.NullDecimal `json:"token_age_days"`
	TokenSectors  []string            `json:"token_sectors"`
}

// Record converts the wire token into a domain record. Absent amounts are left
// out of the horizon map so they read as zero.
func (t Token) Record(defaultChain string) flow.NetflowRecord {
	chain := t.Chain
	if chain == "" {
		chain = defaultChain
	}
	flows := make(map[flow.Horizon]decimal.Decimal, 4)
	for h, v := range map[flow.Horizon]decimal.NullDecimal{
		flow.Horizon1h:  t.NetFlow1hUSD,
		flow.Horizon24h: t.NetFlow24hUSD,
		flow.Horizon7d:  t.NetFlow7dUSD,
		flow.Horizon30d: t.NetFlow30dUSD,
	} {
		if v.Valid {
			flows[h] = v.Decimal
		}
	}
	return flow.NetflowRecord{
		Address:      t.TokenAddress,
		Symbol:       t.TokenSymbol,
		Chain:        chain,
		NetFlow:      flows,
		TraderCount:  nullInt(t.TraderCount),
		MarketCapUSD: nullDecimal(t.MarketCapUSD),
		AgeDays:      nullInt(t.TokenAgeDays),
		Sectors:      t.TokenSectors,
	}
}

func nullDecimal(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}

func nullInt(v decimal.NullDecimal) int64 {
	if !v.Valid {
		return 0
	}
	return v.Decimal.IntPart()
}
