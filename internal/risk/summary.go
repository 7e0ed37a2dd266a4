package risk

import (
	"github.com/montanaflynn/stats"

	"github.com/sells-group/groundwater-cli/internal/model"
)

// MetalStats summarizes one metal across a dataset.
type MetalStats struct {
	Metal    string  `json:"metal"`
	Measured int     `json:"measured"`
	Mean     float64 `json:"mean"`
	Max      float64 `json:"max"`
	Exceeded int     `json:"exceeded"` // samples above the permissible limit
}

// Summary describes the risk distribution of a dataset.
type Summary struct {
	Total    int                    `json:"total"`
	Unscored int                    `json:"unscored"`
	Tiers    map[model.RiskTier]int `json:"tiers"`
	Mean     float64                `json:"mean_hmpi"`
	Median   float64                `json:"median_hmpi"`
	Max      float64                `json:"max_hmpi"`
	Metals   []MetalStats           `json:"metals"`
}

// Summarize computes tier counts and HMPI/concentration statistics for
// already-scored samples. Unscored samples are counted but excluded from
// the HMPI statistics.
func (m *Model) Summarize(samples []model.Sample) Summary {
	sum := Summary{
		Total: len(samples),
		Tiers: map[model.RiskTier]int{
			model.RiskSafe:     0,
			model.RiskModerate: 0,
			model.RiskHigh:     0,
		},
	}

	var scores stats.Float64Data
	for _, s := range samples {
		if !s.Risk.Valid() {
			sum.Unscored++
			continue
		}
		sum.Tiers[s.Risk]++
		scores = append(scores, s.HMPI)
	}

	if len(scores) > 0 {
		// stats only errors on empty input.
		sum.Mean, _ = scores.Mean()
		sum.Median, _ = scores.Median()
		sum.Max, _ = scores.Max()
	}

	for _, std := range m.standards {
		var values stats.Float64Data
		ms := MetalStats{Metal: std.Metal}
		for _, s := range samples {
			v, ok := s.Concentrations[std.Metal]
			if !ok {
				continue
			}
			values = append(values, v)
			if v > std.Limit {
				ms.Exceeded++
			}
		}
		ms.Measured = len(values)
		if len(values) > 0 {
			ms.Mean, _ = values.Mean()
			ms.Max, _ = values.Max()
		}
		sum.Metals = append(sum.Metals, ms)
	}

	return sum
}
