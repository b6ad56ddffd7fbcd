package flow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const ChainSolana = "solana"

var (
	errEmptyAddress   = errors.New("empty token address")
	errInvalidAddress = errors.New("invalid solana address")
)

// Rejection records an upstream record dropped at the ingestion boundary.
type Rejection struct {
	Provider string
	Address  string
	Reason   string
}

// CheckAddress validates a token address for chain. Solana addresses must decode
// as a base58 ed25519 public key; other chains only need a non-empty value.
func CheckAddress(chain, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return errEmptyAddress
	}
	if !strings.EqualFold(chain, ChainSolana) {
		return nil
	}
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("%w: %v", errInvalidAddress, err)
	}
	return nil
}

// SanitizeNetflow rejects records without a usable address and zeroes numeric
// fields that cannot be negative. It returns the names of the fields it zeroed.
func SanitizeNetflow(r NetflowRecord) (NetflowRecord, []string, error) {
	r.Address = strings.TrimSpace(r.Address)
	chain := r.Chain
	if chain == "" {
		chain = ChainSolana
	}
	if err := CheckAddress(chain, r.Address); err != nil {
		return NetflowRecord{}, nil, err
	}
	r.Symbol = strings.TrimSpace(r.Symbol)

	var zeroed []string
	if r.TraderCount < 0 {
		r.TraderCount = 0
		zeroed = append(zeroed, "trader_count")
	}
	if r.AgeDays < 0 {
		r.AgeDays = 0
		zeroed = append(zeroed, "token_age_days")
	}
	if r.MarketCapUSD.IsNegative() {
		r.MarketCapUSD = decimal.Zero
		zeroed = append(zeroed, "market_cap_usd")
	}
	r.Sectors = cleanSectors(r.Sectors)
	return r, zeroed, nil
}

// SanitizeMarket applies the same rules to a DEX pair.
func SanitizeMarket(m MarketRecord) (MarketRecord, []string, error) {
	m.Address = strings.TrimSpace(m.Address)
	chain := m.ChainID
	if chain == "" {
		chain = ChainSolana
	}
	if err := CheckAddress(chain, m.Address); err != nil {
		return MarketRecord{}, nil, err
	}

	var zeroed []string
	if m.LiquidityUSD.IsNegative() {
		m.LiquidityUSD = decimal.Zero
		zeroed = append(zeroed, "liquidity.usd")
	}
	if m.FDV.IsNegative() {
		m.FDV = decimal.Zero
		zeroed = append(zeroed, "fdv")
	}
	for k, v := range m.Volume {
		if v.IsNegative() {
			m.Volume[k] = decimal.Zero
			zeroed = append(zeroed, "volume."+string(k))
		}
	}
	return m, zeroed, nil
}

func cleanSectors(items []string) []string {
	out := make([]string, 0, len(items))
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		out = append(out, val)
	}
	return out
}
