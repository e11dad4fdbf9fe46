package wrgate

import (
	"sniperd/internal/filter"
	"sniperd/internal/types"
)

// PresetSource lists catalog presets in scope for an asset class.
type PresetSource interface {
	List(class types.AssetClass) []types.StrategyPreset
	Get(id string) (types.StrategyPreset, bool)
}

// MetaSource resolves the latest backtest metadata for a preset.
type MetaSource interface {
	Get(presetID string) (types.BacktestMeta, bool)
}

// Session recomputes selections on demand from immutable inputs. It holds
// no cached selection state; every consumer sees the same derivation.
type Session struct {
	presets PresetSource
	metas   MetaSource
	cfg     Config
}

func NewSession(presets PresetSource, metas MetaSource, cfg Config) *Session {
	return &Session{presets: presets, metas: metas, cfg: cfg}
}

// Evaluate builds the candidate set for the class and runs the gate.
func (s *Session) Evaluate(class types.AssetClass) Selection {
	if s == nil || s.presets == nil {
		return Selection{Mode: ModeNone}
	}
	presets := s.presets.List(class)
	candidates := make([]Candidate, 0, len(presets))
	for _, p := range presets {
		var meta types.BacktestMeta
		if s.metas != nil {
			meta, _ = s.metas.Get(p.ID)
		}
		candidates = append(candidates, Candidate{Preset: p, Meta: meta})
	}
	return SelectBest(candidates, s.cfg)
}

// ActivePreset resolves the preset selected for the class, if any.
func (s *Session) ActivePreset(class types.AssetClass) (types.StrategyPreset, Selection, bool) {
	sel := s.Evaluate(class)
	if !sel.Selected() {
		return types.StrategyPreset{}, sel, false
	}
	preset, ok := s.presets.Get(sel.StrategyID)
	if !ok {
		return types.StrategyPreset{}, sel, false
	}
	return preset, sel, true
}

// SuggestStrategy is the advisory query exposed to collaborators: returns
// the active preset's id when the feed item would pass its filter, or ""
// when no strategy would trade the item.
func (s *Session) SuggestStrategy(item types.FeedItem) string {
	preset, _, ok := s.ActivePreset(item.AssetClass)
	if !ok {
		return ""
	}
	if verdict := filter.Evaluate(item, preset); !verdict.PassesAll {
		return ""
	}
	return preset.ID
}
