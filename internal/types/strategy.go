package types

import "strings"

// AssetClass is a trading scope with its own filter thresholds and circuit
// breaker. Classes with platform-guaranteed liquidity skip the liquidity
// and volume/liquidity gates entirely.
type AssetClass string

const (
	ClassMemecoin  AssetClass = "memecoin"
	ClassSynthetic AssetClass = "synthetic"
)

// GuaranteedLiquidity reports whether the venue guarantees liquidity for
// the class (synthetic/tokenized instruments).
func (c AssetClass) GuaranteedLiquidity() bool {
	return c == ClassSynthetic
}

func ParseAssetClass(raw string) (AssetClass, bool) {
	switch AssetClass(strings.ToLower(strings.TrimSpace(raw))) {
	case ClassMemecoin:
		return ClassMemecoin, true
	case ClassSynthetic:
		return ClassSynthetic, true
	}
	return "", false
}

// PresetMode distinguishes the risk posture of a preset.
type PresetMode string

const (
	ModeConservative PresetMode = "conservative"
	ModeAggressive   PresetMode = "aggressive"
)

// StrategyPreset is one named configuration from the catalog: entry filter
// thresholds plus exit parameters. Presets are static; only the catalog
// file changes them.
type StrategyPreset struct {
	ID         string     `yaml:"id"`
	Name       string     `yaml:"name"`
	AssetClass AssetClass `yaml:"asset_class"`
	Mode       PresetMode `yaml:"mode"`

	// Entry filter thresholds.
	MinLiquidityUSD  float64 `yaml:"min_liquidity_usd"`
	MinMomentum1hPct float64 `yaml:"min_momentum_1h_pct"`
	MinAgeMinutes    float64 `yaml:"min_age_minutes"`
	MaxTokenAgeHours float64 `yaml:"max_token_age_hours"` // 0 disables
	MinVolLiqRatio   float64 `yaml:"min_vol_liq_ratio"`
	MinScore         float64 `yaml:"min_score"`

	// Exit parameters, all expressed as positive percentages.
	StopLossPct         float64 `yaml:"stop_loss_pct"`
	TakeProfitPct       float64 `yaml:"take_profit_pct"`
	TrailingStopPct     float64 `yaml:"trailing_stop_pct"`
	MaxPositionAgeHours float64 `yaml:"max_position_age_hours"` // 0 disables

	// Optional per-preset primary threshold override for the WR gate.
	// Only honored when lower than the global primary threshold.
	AutoWrPrimaryOverridePct *float64 `yaml:"auto_wr_primary_override_pct,omitempty"`
}

// Valid performs the structural checks the catalog enforces on load.
func (p StrategyPreset) Valid() bool {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
		return false
	}
	if p.StopLossPct <= 0 || p.TakeProfitPct <= 0 {
		return false
	}
	if p.TrailingStopPct < 0 || p.MaxPositionAgeHours < 0 {
		return false
	}
	return true
}
