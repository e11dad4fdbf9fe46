// Package filter implements the entry gate for graduation feed items.
// Evaluation is pure: no state, safe from any goroutine.
package filter

import (
	"fmt"

	"sniperd/internal/types"
)

// Transaction counts at or below this floor carry no buy/sell signal, so
// the ratio gate is skipped rather than failed.
const txnNoiseFloor = 10

// Accepted buy/sell ratio band when enough transactions exist.
const (
	minBuySellRatio = 1.0
	maxBuySellRatio = 3.0
)

// GateCheck is the outcome of a single gate, formatted so an operator can
// see which threshold was violated and by how much.
type GateCheck struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
	Skipped   bool
}

// Verdict is the full filter outcome for one feed item against one preset.
type Verdict struct {
	PassesAll    bool
	RejectReason string // first failing gate; empty when PassesAll
	Checks       []GateCheck
}

// Evaluate runs every applicable gate. All gates must pass for PassesAll;
// the first failure determines RejectReason.
func Evaluate(item types.FeedItem, preset types.StrategyPreset) Verdict {
	class := item.AssetClass
	checks := make([]GateCheck, 0, 7)

	checks = append(checks, liquidityGate(item, preset, class))
	checks = append(checks, minAgeGate(item, preset, class))
	checks = append(checks, buySellGate(item, class))
	checks = append(checks, maxAgeGate(item, preset, class))
	checks = append(checks, momentumGate(item, preset, class))
	checks = append(checks, volLiqGate(item, preset, class))
	checks = append(checks, scoreGate(item, preset))

	verdict := Verdict{PassesAll: true, Checks: checks}
	for _, c := range checks {
		if c.Skipped || c.Pass {
			continue
		}
		verdict.PassesAll = false
		if verdict.RejectReason == "" {
			verdict.RejectReason = fmt.Sprintf("%s: %s (need %s)", c.Name, c.Actual, c.Threshold)
		}
	}
	return verdict
}

func skipped(name, why string) GateCheck {
	return GateCheck{Name: name, Threshold: why, Actual: "skipped", Pass: true, Skipped: true}
}

func liquidityGate(item types.FeedItem, preset types.StrategyPreset, class types.AssetClass) GateCheck {
	if class.GuaranteedLiquidity() {
		return skipped("liquidity", "platform-guaranteed liquidity")
	}
	return GateCheck{
		Name:      "liquidity",
		Threshold: fmt.Sprintf(">= $%.0f", preset.MinLiquidityUSD),
		Actual:    fmt.Sprintf("$%.0f", item.LiquidityUSD),
		Pass:      item.LiquidityUSD >= preset.MinLiquidityUSD,
	}
}

func minAgeGate(item types.FeedItem, preset types.StrategyPreset, class types.AssetClass) GateCheck {
	if class != types.ClassMemecoin {
		return skipped("min_age", "not a memecoin")
	}
	if preset.MinAgeMinutes <= 0 {
		return skipped("min_age", "disabled")
	}
	return GateCheck{
		Name:      "min_age",
		Threshold: fmt.Sprintf(">= %.0fm", preset.MinAgeMinutes),
		Actual:    fmt.Sprintf("%.1fm", item.AgeMinutes),
		Pass:      item.AgeMinutes >= preset.MinAgeMinutes,
	}
}

func buySellGate(item types.FeedItem, class types.AssetClass) GateCheck {
	if class != types.ClassMemecoin {
		return skipped("buy_sell_ratio", "not a memecoin")
	}
	if item.TotalTxns() <= txnNoiseFloor {
		return skipped("buy_sell_ratio", fmt.Sprintf("only %d txns, insufficient signal", item.TotalTxns()))
	}
	ratio := item.BuySellRatio()
	return GateCheck{
		Name:      "buy_sell_ratio",
		Threshold: fmt.Sprintf("in [%.1f, %.1f]", minBuySellRatio, maxBuySellRatio),
		Actual:    fmt.Sprintf("%.2f (%d buys / %d sells)", ratio, item.Buys, item.Sells),
		Pass:      ratio >= minBuySellRatio && ratio <= maxBuySellRatio,
	}
}

func maxAgeGate(item types.FeedItem, preset types.StrategyPreset, class types.AssetClass) GateCheck {
	if class != types.ClassMemecoin {
		return skipped("max_age", "not a memecoin")
	}
	if preset.MaxTokenAgeHours <= 0 {
		return skipped("max_age", "disabled")
	}
	return GateCheck{
		Name:      "max_age",
		Threshold: fmt.Sprintf("<= %.1fh", preset.MaxTokenAgeHours),
		Actual:    fmt.Sprintf("%.2fh", item.AgeHours()),
		Pass:      item.AgeHours() <= preset.MaxTokenAgeHours,
	}
}

func momentumGate(item types.FeedItem, preset types.StrategyPreset, class types.AssetClass) GateCheck {
	if class != types.ClassMemecoin {
		return skipped("momentum_1h", "not a memecoin")
	}
	return GateCheck{
		Name:      "momentum_1h",
		Threshold: fmt.Sprintf(">= %.1f%%", preset.MinMomentum1hPct),
		Actual:    fmt.Sprintf("%.1f%%", item.PriceChange1hPct),
		Pass:      item.PriceChange1hPct >= preset.MinMomentum1hPct,
	}
}

func volLiqGate(item types.FeedItem, preset types.StrategyPreset, class types.AssetClass) GateCheck {
	if class.GuaranteedLiquidity() {
		return skipped("vol_liq_ratio", "platform-guaranteed liquidity")
	}
	if item.Volume24hUSD <= 0 {
		return skipped("vol_liq_ratio", "no volume data")
	}
	if item.LiquidityUSD <= 0 {
		return skipped("vol_liq_ratio", "no liquidity data")
	}
	ratio := item.Volume24hUSD / item.LiquidityUSD
	return GateCheck{
		Name:      "vol_liq_ratio",
		Threshold: fmt.Sprintf(">= %.2f", preset.MinVolLiqRatio),
		Actual:    fmt.Sprintf("%.2f", ratio),
		Pass:      ratio >= preset.MinVolLiqRatio,
	}
}

func scoreGate(item types.FeedItem, preset types.StrategyPreset) GateCheck {
	if preset.MinScore <= 0 {
		return skipped("score", "disabled")
	}
	return GateCheck{
		Name:      "score",
		Threshold: fmt.Sprintf(">= %.0f", preset.MinScore),
		Actual:    fmt.Sprintf("%.0f", item.Score),
		Pass:      item.Score >= preset.MinScore,
	}
}
