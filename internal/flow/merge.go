package flow

// MergedSet maps token address to MergedToken and remembers netflow order.
type MergedSet struct {
	order     []string
	byAddress map[string]MergedToken
}

func (s MergedSet) Len() int { return len(s.order) }

func (s MergedSet) Get(address string) (MergedToken, bool) {
	tok, ok := s.byAddress[address]
	return tok, ok
}

// Tokens returns the merged tokens in netflow input order.
func (s MergedSet) Tokens() []MergedToken {
	out := make([]MergedToken, 0, len(s.order))
	for _, addr := range s.order {
		out = append(out, s.byAddress[addr])
	}
	return out
}

// Merge outer-joins netflow records with the liquidity-maximal pair per address.
// The first pair seen wins a liquidity tie; the first netflow record wins a
// duplicate address.
func Merge(netflow []NetflowRecord, market []MarketRecord) MergedSet {
	best := make(map[string]int, len(market))
	for i := range market {
		addr := market[i].Address
		cur, ok := best[addr]
		if !ok || market[i].LiquidityUSD.GreaterThan(market[cur].LiquidityUSD) {
			best[addr] = i
		}
	}

	set := MergedSet{
		order:     make([]string, 0, len(netflow)),
		byAddress: make(map[string]MergedToken, len(netflow)),
	}
	for _, rec := range netflow {
		if _, dup := set.byAddress[rec.Address]; dup {
			continue
		}
		tok := MergedToken{Netflow: rec}
		if idx, ok := best[rec.Address]; ok {
			m := market[idx]
			tok.Market = &m
		}
		set.order = append(set.order, rec.Address)
		set.byAddress[rec.Address] = tok
	}
	return set
}
