package flow

import "fmt"

// MappingVersion identifies DefaultMapping. Bump it with every change to the table.
const MappingVersion = "2024-06.v2"

// TimeframeSpec says where a display bucket reads its netflow and DEX window from.
type TimeframeSpec struct {
	Label    string   `json:"label"`
	Horizon  Horizon  `json:"netflow_horizon"`
	Interval Interval `json:"dex_interval"`
}

type Mapping []TimeframeSpec

// DefaultMapping is the authoritative bucket table. Short buckets borrow the
// closest horizon the netflow provider reports; DEX windows stop at h24.
var DefaultMapping = Mapping{
	{Label: "5min", Horizon: Horizon1h, Interval: IntervalM5},
	{Label: "10min", Horizon: Horizon1h, Interval: IntervalM5},
	{Label: "30min", Horizon: Horizon1h, Interval: IntervalH1},
	{Label: "1h", Horizon: Horizon1h, Interval: IntervalH1},
	{Label: "6h", Horizon: Horizon24h, Interval: IntervalH6},
	{Label: "12h", Horizon: Horizon24h, Interval: IntervalH6},
	{Label: "24h", Horizon: Horizon24h, Interval: IntervalH24},
	{Label: "7d", Horizon: Horizon7d, Interval: IntervalH24},
	{Label: "30d", Horizon: Horizon30d, Interval: IntervalH24},
}

func (m Mapping) Labels() []string {
	out := make([]string, 0, len(m))
	for _, spec := range m {
		out = append(out, spec.Label)
	}
	return out
}

func (m Mapping) Lookup(label string) (TimeframeSpec, bool) {
	for _, spec := range m {
		if spec.Label == label {
			return spec, true
		}
	}
	return TimeframeSpec{}, false
}

// Select returns the specs for labels in the requested order. An empty request
// selects the whole table.
func (m Mapping) Select(labels []string) (Mapping, error) {
	if len(labels) == 0 {
		out := make(Mapping, len(m))
		copy(out, m)
		return out, nil
	}
	seen := make(map[string]struct{}, len(labels))
	out := make(Mapping, 0, len(labels))
	for _, label := range labels {
		spec, ok := m.Lookup(label)
		if !ok {
			return nil, fmt.Errorf("unknown timeframe %q (known: %v)", label, m.Labels())
		}
		if _, dup := seen[label]; dup {
			return nil, fmt.Errorf("duplicate timeframe %q", label)
		}
		seen[label] = struct{}{}
		out = append(out, spec)
	}
	return out, nil
}
