package flow

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func TestCheckAddress(t *testing.T) {
	assert.NoError(t, CheckAddress(ChainSolana, bonkMint))
	assert.Error(t, CheckAddress(ChainSolana, ""))
	assert.Error(t, CheckAddress(ChainSolana, "not-base58-0OIl"))
	assert.Error(t, CheckAddress(ChainSolana, "abc"))
	assert.NoError(t, CheckAddress("ethereum", "0xabc"))
}

func TestSanitizeNetflow(t *testing.T) {
	rec := NetflowRecord{
		Address:      "  " + bonkMint + " ",
		Symbol:       " BONK ",
		Chain:        ChainSolana,
		TraderCount:  -3,
		AgeDays:      -1,
		MarketCapUSD: decimal.NewFromInt(-10),
		Sectors:      []string{"Meme", " ", ""},
	}
	out, zeroed, err := SanitizeNetflow(rec)
	require.NoError(t, err)
	assert.Equal(t, bonkMint, out.Address)
	assert.Equal(t, "BONK", out.Symbol)
	assert.Zero(t, out.TraderCount)
	assert.Zero(t, out.AgeDays)
	assert.True(t, out.MarketCapUSD.IsZero())
	assert.Equal(t, []string{"Meme"}, out.Sectors)
	assert.ElementsMatch(t, []string{"trader_count", "token_age_days", "market_cap_usd"}, zeroed)

	_, _, err = SanitizeNetflow(NetflowRecord{Address: "bogus", Chain: ChainSolana})
	assert.Error(t, err)
}

func TestSanitizeMarket(t *testing.T) {
	m := MarketRecord{
		Address:      bonkMint,
		ChainID:      ChainSolana,
		LiquidityUSD: decimal.NewFromInt(-1),
		Volume:       map[Interval]decimal.Decimal{IntervalH1: decimal.NewFromInt(-5), IntervalH24: decimal.NewFromInt(5)},
	}
	out, zeroed, err := SanitizeMarket(m)
	require.NoError(t, err)
	assert.True(t, out.LiquidityUSD.IsZero())
	assert.True(t, out.Volume[IntervalH1].IsZero())
	assert.True(t, out.Volume[IntervalH24].Equal(decimal.NewFromInt(5)))
	assert.ElementsMatch(t, []string{"liquidity.usd", "volume.h1"}, zeroed)
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = &UpstreamError{Provider: "nansen", Status: 503, Body: "down"}
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
	assert.False(t, errors.Is(err, ErrPersistence))
	assert.Contains(t, err.Error(), "503")

	cause := errors.New("disk full")
	err = &PersistenceError{Timeframe: "24h", Op: "insert", Rows: 9, Err: cause}
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "24h")
}
