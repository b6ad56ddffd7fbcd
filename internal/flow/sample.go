package flow

import (
	"time"

	"github.com/shopspring/decimal"
)

// SampleAddressPrefix marks every address in a sample data set.
const SampleAddressPrefix = "sample:"

var sampleSymbols = []string{"BONK", "WIF", "MYRO", "POPCAT", "MEW", "PONKE", "SAMO", "FOXY", "CRCL", "SIGN"}

// SampleRows builds a fixed placeholder set for timeframe, ordered by net flow
// descending. The same arguments always produce the same rows.
func SampleRows(timeframe string, limit int, at time.Time) []TimeframeRow {
	if limit <= 0 || limit > len(sampleSymbols) {
		limit = len(sampleSymbols)
	}
	rows := make([]TimeframeRow, 0, limit)
	for i := 0; i < limit; i++ {
		n := int64(i)
		net := decimal.NewFromInt(250000 - 43000*n)
		inflow, outflow := SplitFlow(net)
		rows = append(rows, TimeframeRow{
			Symbol:           sampleSymbols[i],
			Address:          SampleAddressPrefix + sampleSymbols[i],
			Timeframe:        timeframe,
			PriceChangePct:   decimal.NewFromInt(12 - 3*n).Div(decimal.NewFromInt(2)),
			MarketCap:        decimal.NewFromInt(5000000 - 350000*n),
			SmartWalletCount: 40 - 3*n,
			Volume:           decimal.NewFromInt(900000 - 60000*n),
			Liquidity:        decimal.NewFromInt(400000 - 25000*n),
			Inflow:           inflow,
			Outflow:          outflow,
			NetFlow:          net,
			TokenAge:         3 + 2*n,
			Sectors:          []string{"Meme", "Community"},
			FetchedAt:        at,
		})
	}
	return rows
}
