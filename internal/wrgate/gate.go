// Package wrgate selects the single preset allowed to auto-trade, applying
// a two-tier statistical threshold over backtest metadata. Selection uses
// the lower bound of the win-rate confidence interval rather than the point
// estimate, so a high observed win rate from a small sample cannot promote
// a preset.
package wrgate

import (
	"time"

	"sniperd/internal/types"
)

type ResolutionMode string

const (
	ModePrimary  ResolutionMode = "primary"
	ModeFallback ResolutionMode = "fallback"
	ModeNone     ResolutionMode = "none"
)

type ThresholdSource string

const (
	SourceGlobalPrimary   ThresholdSource = "global_primary"
	SourcePrimaryOverride ThresholdSource = "primary_override"
	SourceFallback        ThresholdSource = "fallback"
)

// Config carries the gate thresholds, all win-rate percentages.
type Config struct {
	PrimaryPct  float64
	FallbackPct float64
	MinTrades   int
}

// Candidate pairs a preset with its metadata for one selection pass.
type Candidate struct {
	Preset types.StrategyPreset
	Meta   types.BacktestMeta
}

// Selection is the gate's read model. Mode == none means auto-trading is
// disabled for the scope; it never defaults to any preset.
type Selection struct {
	Mode            ResolutionMode  `json:"mode"`
	UsedThreshold   float64         `json:"used_threshold"`
	StrategyID      string          `json:"strategy_id,omitempty"`
	ThresholdPct    float64         `json:"threshold_pct"`
	ThresholdSource ThresholdSource `json:"threshold_source,omitempty"`
	EvaluatedAt     time.Time       `json:"evaluated_at"`
}

// Selected reports whether a preset won the selection.
func (s Selection) Selected() bool {
	return s.Mode != ModeNone && s.StrategyID != ""
}

// SelectBest implements the two-tier gate. Candidates must already be
// scoped to one asset class; the caller filters before selection.
func SelectBest(candidates []Candidate, cfg Config) Selection {
	now := time.Now()
	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.Meta.Backtested {
			continue
		}
		if c.Meta.Trades < cfg.MinTrades {
			continue
		}
		eligible = append(eligible, c)
	}

	// Primary pass: per-preset override may lower the bar, never raise it.
	var (
		best       *Candidate
		bestThresh float64
		bestSource ThresholdSource
	)
	for i := range eligible {
		c := eligible[i]
		threshold := cfg.PrimaryPct
		source := SourceGlobalPrimary
		if o := c.Preset.AutoWrPrimaryOverridePct; o != nil && *o < cfg.PrimaryPct {
			threshold = *o
			source = SourcePrimaryOverride
		}
		if c.Meta.WinRateLower95Pct < threshold {
			continue
		}
		if best == nil || c.Meta.NetPnlPct > best.Meta.NetPnlPct {
			best = &eligible[i]
			bestThresh = threshold
			bestSource = source
		}
	}
	if best != nil {
		return Selection{
			Mode:            ModePrimary,
			UsedThreshold:   bestThresh,
			StrategyID:      best.Preset.ID,
			ThresholdPct:    bestThresh,
			ThresholdSource: bestSource,
			EvaluatedAt:     now,
		}
	}

	// Fallback pass: a single uniform threshold, no overrides.
	for i := range eligible {
		c := eligible[i]
		if c.Meta.WinRateLower95Pct < cfg.FallbackPct {
			continue
		}
		if best == nil || c.Meta.NetPnlPct > best.Meta.NetPnlPct {
			best = &eligible[i]
		}
	}
	if best != nil {
		return Selection{
			Mode:            ModeFallback,
			UsedThreshold:   cfg.FallbackPct,
			StrategyID:      best.Preset.ID,
			ThresholdPct:    cfg.FallbackPct,
			ThresholdSource: SourceFallback,
			EvaluatedAt:     now,
		}
	}

	return Selection{Mode: ModeNone, EvaluatedAt: now}
}
