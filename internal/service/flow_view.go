package service

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"smartflow/internal/flow"
	"smartflow/internal/models"
)

// FlowView is one row of the read API. Amounts are decimal strings.
type FlowView struct {
	Symbol       string          `json:"symbol"`
	TokenAddress string          `json:"token_address"`
	Timeframe    string          `json:"timeframe"`
	PriceChange  decimal.Decimal `json:"price_change"`
	MarketCap    decimal.Decimal `json:"market_cap"`
	SmartWallets int64           `json:"smart_wallets"`
	Volume       decimal.Decimal `json:"volume"`
	Liquidity    decimal.Decimal `json:"liquidity"`
	Inflows      decimal.Decimal `json:"inflows"`
	Outflows     decimal.Decimal `json:"outflows"`
	NetFlows     decimal.Decimal `json:"net_flows"`
	TokenAge     int64           `json:"token_age"`
	TokenSectors []string        `json:"token_sectors"`
	FetchedAt    time.Time       `json:"fetched_at"`
}

func toModel(r flow.TimeframeRow) models.TokenFlow {
	sectors := r.Sectors
	if sectors == nil {
		sectors = []string{}
	}
	return models.TokenFlow{
		Timeframe:    r.Timeframe,
		Symbol:       flow.TruncateSymbol(r.Symbol),
		TokenAddress: r.Address,
		PriceChange:  r.PriceChangePct,
		MarketCap:    r.MarketCap,
		SmartWallets: r.SmartWalletCount,
		Volume:       r.Volume,
		Liquidity:    r.Liquidity,
		Inflows:      r.Inflow,
		Outflows:     r.Outflow,
		NetFlows:     r.NetFlow,
		TokenAge:     r.TokenAge,
		TokenSectors: datatypes.JSONSlice[string](sectors),
		FetchedAt:    r.FetchedAt.UTC(),
	}
}

func toModels(rows []flow.TimeframeRow) []models.TokenFlow {
	out := make([]models.TokenFlow, 0, len(rows))
	for _, r := range rows {
		out = append(out, toModel(r))
	}
	return out
}

func viewFromModel(m models.TokenFlow) FlowView {
	sectors := []string(m.TokenSectors)
	if sectors == nil {
		sectors = []string{}
	}
	return FlowView{
		Symbol:       m.Symbol,
		TokenAddress: m.TokenAddress,
		Timeframe:    m.Timeframe,
		PriceChange:  m.PriceChange,
		MarketCap:    m.MarketCap,
		SmartWallets: m.SmartWallets,
		Volume:       m.Volume,
		Liquidity:    m.Liquidity,
		Inflows:      m.Inflows,
		Outflows:     m.Outflows,
		NetFlows:     m.NetFlows,
		TokenAge:     m.TokenAge,
		TokenSectors: sectors,
		FetchedAt:    m.FetchedAt.UTC(),
	}
}

func viewFromRow(r flow.TimeframeRow) FlowView {
	return viewFromModel(toModel(r))
}
