package types

import "time"

// BacktestStage is the lifecycle stage of a preset in the promotion
// pipeline, supplied by the metadata provider.
type BacktestStage string

const (
	StageCandidate BacktestStage = "candidate"
	StagePaper     BacktestStage = "paper"
	StageLive      BacktestStage = "live"
	StageRetired   BacktestStage = "retired"
)

// BacktestMeta is the per-preset historical record the WR gate selects on.
// It is produced externally and refreshed out of band; the engine treats it
// as read-only.
type BacktestMeta struct {
	PresetID string `json:"preset_id"`

	WinRatePct        float64 `json:"win_rate_pct"`
	WinRateLower95Pct float64 `json:"win_rate_lower_95_pct"`
	Trades            int     `json:"trades"`
	NetPnlPct         float64 `json:"net_pnl_pct"`
	ProfitFactor      float64 `json:"profit_factor"`

	Stage             BacktestStage `json:"stage"`
	PromotionEligible bool          `json:"promotion_eligible"`
	Underperformer    bool          `json:"underperformer"`

	Backtested  bool      `json:"backtested"`
	RefreshedAt time.Time `json:"refreshed_at"`
}
