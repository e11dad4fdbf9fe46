// Package model holds the gorm table definitions for the sqlite store.
package model

import (
	"gorm.io/datatypes"
)

// PositionModel persists one trade. Decimal amounts are stored as strings
// to avoid float drift; timestamps are Unix seconds.
type PositionModel struct {
	ID            string `gorm:"column:id;primaryKey"`
	Mint          string `gorm:"column:mint;index"`
	Symbol        string `gorm:"column:symbol"`
	WalletAddress string `gorm:"column:wallet_address"`
	AssetClass    string `gorm:"column:asset_class;index"`
	PresetID      string `gorm:"column:preset_id"`

	Status         string  `gorm:"column:status;index"`
	SolInvested    string  `gorm:"column:sol_invested"`
	AmountLamports uint64  `gorm:"column:amount_lamports"`
	EntryPrice     float64 `gorm:"column:entry_price"`
	EntryTime      int64   `gorm:"column:entry_time"`

	PnlPercent       float64 `gorm:"column:pnl_percent"`
	PnlSol           string  `gorm:"column:pnl_sol"`
	HighWaterMarkPct float64 `gorm:"column:high_water_mark_pct"`

	RecommendedSL    *float64 `gorm:"column:recommended_sl"`
	RecommendedTP    *float64 `gorm:"column:recommended_tp"`
	RecommendedTrail *float64 `gorm:"column:recommended_trail"`

	ExitPendingJSON datatypes.JSON `gorm:"column:exit_pending_json;type:TEXT"`

	ClosedAt *int64 `gorm:"column:closed_at"`
	ExitTx   string `gorm:"column:exit_tx"`

	CreatedAt int64 `gorm:"column:created_at"`
	UpdatedAt int64 `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

// BudgetStateModel is a singleton row (ID always 1) carrying the budget
// read model as JSON.
type BudgetStateModel struct {
	ID        int            `gorm:"column:id;primaryKey"`
	Payload   datatypes.JSON `gorm:"column:payload;type:TEXT"`
	UpdatedAt int64          `gorm:"column:updated_at"`
}

func (BudgetStateModel) TableName() string { return "budget_state" }

// BreakerStateModel persists one circuit breaker scope.
type BreakerStateModel struct {
	Scope             string `gorm:"column:scope;primaryKey"`
	ConsecutiveLosses int    `gorm:"column:consecutive_losses"`
	DailyLossSol      string `gorm:"column:daily_loss_sol"`
	Tripped           bool   `gorm:"column:tripped"`
	Reason            string `gorm:"column:reason"`
	CooldownUntil     int64  `gorm:"column:cooldown_until"`
	Day               string `gorm:"column:day"`
	UpdatedAt         int64  `gorm:"column:updated_at"`
}

func (BreakerStateModel) TableName() string { return "breaker_states" }

// TradeOperationModel is the append-only audit log of every execution
// attempt, successful or not.
type TradeOperationModel struct {
	ID         uint           `gorm:"column:id;primaryKey;autoIncrement"`
	PositionID string         `gorm:"column:position_id;index"`
	Operation  string         `gorm:"column:operation"`
	Success    bool           `gorm:"column:success"`
	TxHash     string         `gorm:"column:tx_hash"`
	Error      string         `gorm:"column:error"`
	Details    datatypes.JSON `gorm:"column:details;type:TEXT"`
	CreatedAt  int64          `gorm:"column:created_at;index"`
}

func (TradeOperationModel) TableName() string { return "trade_operations" }
