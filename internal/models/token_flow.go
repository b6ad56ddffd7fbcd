package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TokenFlow struct {
	ID           uint64                      `gorm:"primaryKey;autoIncrement"`
	Timeframe    string                      `gorm:"type:varchar(16);not null;index:idx_token_flows_timeframe_net,priority:1;comment:timeframe label"`
	Symbol       string                      `gorm:"type:varchar(10);not null;comment:token symbol, at most 10 chars"`
	TokenAddress string                      `gorm:"type:varchar(64);not null;index;comment:token mint address"`
	PriceChange  decimal.Decimal             `gorm:"type:numeric(30,10);not null;comment:price change percent"`
	MarketCap    decimal.Decimal             `gorm:"type:numeric(30,10);not null;comment:market cap usd"`
	SmartWallets int64                       `gorm:"not null;default:0;comment:smart-money trader count"`
	Volume       decimal.Decimal             `gorm:"type:numeric(30,10);not null;comment:dex volume usd"`
	Liquidity    decimal.Decimal             `gorm:"type:numeric(30,10);not null;comment:dex liquidity usd"`
	Inflows      decimal.Decimal             `gorm:"type:numeric(30,10);not null;comment:positive part of net flow"`
	Outflows     decimal.Decimal             `gorm:"type:numeric(30,10);not null;comment:negative part of net flow"`
	NetFlows     decimal.Decimal             `gorm:"type:numeric(30,10);not null;index:idx_token_flows_timeframe_net,priority:2;comment:net flow usd"`
	TokenAge     int64                       `gorm:"not null;default:0;comment:token age in days"`
	TokenSectors datatypes.JSONSlice[string] `gorm:"comment:token sectors"`
	FetchedAt    time.Time                   `gorm:"not null;index;comment:upstream fetch time"`
	CreatedAt    time.Time                   `gorm:"autoCreateTime"`
}

func (TokenFlow) TableName() string {
	return "token_flows"
}
