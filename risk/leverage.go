package risk

import "apex_hunter_go/config"

// SizeMultiplier scales the base position size down as drawdown approaches the maximum:
// 1 below a third of it, 0.67 from a third, 0.33 from two thirds, 0 at or above the maximum.
func SizeMultiplier(drawdownPercent, maxDrawdownPercent float64) float64 {
	switch {
	case drawdownPercent >= maxDrawdownPercent:
		return 0
	case drawdownPercent >= maxDrawdownPercent*0.67:
		return 0.33
	case drawdownPercent >= maxDrawdownPercent*0.33:
		return 0.67
	default:
		return 1
	}
}

// LeverageCeiling is the drawdown-adjusted maximum leverage.
func LeverageCeiling(maxLeverage int, drawdownPercent, maxDrawdownPercent float64) int {
	switch {
	case drawdownPercent >= maxDrawdownPercent*0.67:
		return atLeastOne(maxLeverage / 2)
	case drawdownPercent >= maxDrawdownPercent*0.33:
		return atLeastOne(int(float64(maxLeverage) * 0.7))
	default:
		return maxLeverage
	}
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// LeverageSizer maps signal confidence to leverage through ordered bands.
type LeverageSizer struct {
	Bands              []config.LeverageBand // descending MinConfidence, non-increasing leverage
	MaxDrawdownPercent float64
}

// Leverage picks the first band whose floor the confidence exceeds (1 if none),
// clamps it to the drawdown-adjusted ceiling and never returns less than 1.
func (s LeverageSizer) Leverage(confidence, drawdownPercent float64, maxLeverage int) int {
	lev := 1
	for _, b := range s.Bands {
		if confidence > b.MinConfidence {
			lev = b.Leverage
			break
		}
	}
	if ceiling := LeverageCeiling(maxLeverage, drawdownPercent, s.MaxDrawdownPercent); lev > ceiling {
		lev = ceiling
	}
	return atLeastOne(lev)
}
