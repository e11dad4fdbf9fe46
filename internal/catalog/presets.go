package catalog

import "sniperd/internal/types"

func floatPtr(v float64) *float64 { return &v }

// builtinPresets are the shipped defaults. A YAML entry with the same id
// replaces the built-in wholesale.
func builtinPresets() []types.StrategyPreset {
	return []types.StrategyPreset{
		{
			ID:                  "memecoin-conservative",
			Name:                "Memecoin Conservative",
			AssetClass:          types.ClassMemecoin,
			Mode:                types.ModeConservative,
			MinLiquidityUSD:     25000,
			MinMomentum1hPct:    5,
			MinAgeMinutes:       30,
			MaxTokenAgeHours:    24,
			MinVolLiqRatio:      0.5,
			MinScore:            60,
			StopLossPct:         15,
			TakeProfitPct:       30,
			TrailingStopPct:     10,
			MaxPositionAgeHours: 24,
		},
		{
			ID:                       "memecoin-aggressive",
			Name:                     "Memecoin Aggressive",
			AssetClass:               types.ClassMemecoin,
			Mode:                     types.ModeAggressive,
			MinLiquidityUSD:          10000,
			MinMomentum1hPct:         10,
			MinAgeMinutes:            10,
			MaxTokenAgeHours:         12,
			MinVolLiqRatio:           1.0,
			StopLossPct:              20,
			TakeProfitPct:            60,
			TrailingStopPct:          15,
			MaxPositionAgeHours:      12,
			AutoWrPrimaryOverridePct: floatPtr(55),
		},
		{
			ID:                  "synthetic-conservative",
			Name:                "Synthetic Conservative",
			AssetClass:          types.ClassSynthetic,
			Mode:                types.ModeConservative,
			MinMomentum1hPct:    2,
			StopLossPct:         8,
			TakeProfitPct:       15,
			TrailingStopPct:     5,
			MaxPositionAgeHours: 48,
		},
	}
}
