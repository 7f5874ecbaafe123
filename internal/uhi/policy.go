// Package uhi computes urban heat island maps from LST predictions and an
// urban/rural classification mask.
package uhi

import (
	"math"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/raster"
)

// Reference statistics.
const (
	StatisticPercentile = "percentile"
	StatisticMean       = "mean"
)

// DefaultPercentile is the percentile of the default policy.
const DefaultPercentile = 25.0

// Policy selects the reference statistic a UHI map is measured against: a
// class of mask pixels and the statistic computed over their predictions.
// There is exactly one active policy per Computer and no fallback between
// policies.
type Policy struct {
	Class      string  `yaml:"class" mapstructure:"class"`
	Statistic  string  `yaml:"statistic" mapstructure:"statistic"`
	Percentile float64 `yaml:"percentile" mapstructure:"percentile"`
}

// DefaultPolicy is the 25th percentile of urban-pixel predictions.
func DefaultPolicy() Policy {
	return Policy{Class: geo.ClassUrban, Statistic: StatisticPercentile, Percentile: DefaultPercentile}
}

// Validate checks the policy fields.
func (p Policy) Validate() error {
	if !geo.ValidClass(p.Class) {
		return eris.Errorf("uhi: unknown reference class %q", p.Class)
	}
	switch p.Statistic {
	case StatisticMean:
	case StatisticPercentile:
		if math.IsNaN(p.Percentile) || p.Percentile < 0 || p.Percentile > 100 {
			return eris.Errorf("uhi: percentile %v out of range [0, 100]", p.Percentile)
		}
	default:
		return eris.Errorf("uhi: unknown reference statistic %q", p.Statistic)
	}
	return nil
}

// String describes the policy, e.g. "p25(urban)".
func (p Policy) String() string {
	if p.Statistic == StatisticMean {
		return "mean(" + p.Class + ")"
	}
	return "p" + strconv.FormatFloat(p.Percentile, 'g', -1, 64) + "(" + p.Class + ")"
}

func (p Policy) reduce(vs []float64) float64 {
	if p.Statistic == StatisticMean {
		return raster.NaNMean(vs)
	}
	return raster.NaNPercentile(vs, p.Percentile)
}
