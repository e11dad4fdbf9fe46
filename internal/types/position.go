package types

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a position. The four trigger
// statuses are terminal outcomes kept distinct for reporting; "closed"
// covers manual closes.
type PositionStatus string

const (
	StatusOpen         PositionStatus = "open"
	StatusTakeProfit   PositionStatus = "tp_hit"
	StatusStopLoss     PositionStatus = "sl_hit"
	StatusTrailingStop PositionStatus = "trail_stop"
	StatusExpired      PositionStatus = "expired"
	StatusClosed       PositionStatus = "closed"
)

// IsTerminal reports whether no further mutation is allowed.
func (s PositionStatus) IsTerminal() bool {
	return s != StatusOpen && s != ""
}

// ExitTrigger identifies which detection rule armed an exit.
type ExitTrigger string

const (
	TriggerStopLoss     ExitTrigger = "stop_loss"
	TriggerTakeProfit   ExitTrigger = "take_profit"
	TriggerTrailingStop ExitTrigger = "trailing_stop"
	TriggerMaxAge       ExitTrigger = "max_age"
	TriggerManual       ExitTrigger = "manual"
)

// TerminalStatus maps a trigger to the position status recorded on a
// confirmed close.
func (t ExitTrigger) TerminalStatus() PositionStatus {
	switch t {
	case TriggerStopLoss:
		return StatusStopLoss
	case TriggerTakeProfit:
		return StatusTakeProfit
	case TriggerTrailingStop:
		return StatusTrailingStop
	case TriggerMaxAge:
		return StatusExpired
	default:
		return StatusClosed
	}
}

// ExitPending records a detected-but-not-yet-executed exit. Detection is
// cheap and runs every monitoring tick; execution consumes this.
type ExitPending struct {
	Trigger        ExitTrigger `json:"trigger"`
	PnlPercent     float64     `json:"pnl_percent"`
	DetectedAt     time.Time   `json:"detected_at"`
	QuoteAvailable bool        `json:"quote_available"`
	Reason         string      `json:"reason"`
}

// Position is one opened trade. While Status == open, PnlPercent/PnlSol
// track the monitored mark price; on close they are frozen at the realized
// swap value. The mutable fields (status, mark, exit pending, close
// outcome) are guarded by mu: the monitor tick, the close goroutine, and
// the HTTP read model all touch the same instance. Mutate through the
// methods below; direct field writes are only safe before the position is
// shared.
type Position struct {
	ID            string     `json:"id"`
	Mint          string     `json:"mint"`
	Symbol        string     `json:"symbol"`
	WalletAddress string     `json:"wallet_address"`
	AssetClass    AssetClass `json:"asset_class"`
	PresetID      string     `json:"preset_id"`

	Status         PositionStatus  `json:"status"`
	SolInvested    decimal.Decimal `json:"sol_invested"`
	AmountLamports uint64          `json:"amount_lamports"`
	EntryPrice     float64         `json:"entry_price"`
	EntryTime      time.Time       `json:"entry_time"`

	PnlPercent       float64         `json:"pnl_percent"`
	PnlSol           decimal.Decimal `json:"pnl_sol"`
	HighWaterMarkPct float64         `json:"high_water_mark_pct"`

	// Per-asset overrides; nil means the preset value applies.
	RecommendedSL    *float64 `json:"recommended_sl,omitempty"`
	RecommendedTP    *float64 `json:"recommended_tp,omitempty"`
	RecommendedTrail *float64 `json:"recommended_trail,omitempty"`

	ExitPending *ExitPending `json:"exit_pending,omitempty"`

	ClosedAt *time.Time `json:"closed_at,omitempty"`
	ExitTx   string     `json:"exit_tx,omitempty"`

	mu      sync.RWMutex
	closing atomic.Bool
}

// CurrentStatus reads the status under the position lock.
func (p *Position) CurrentStatus() PositionStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status
}

// Pnl returns the mark fields as one consistent read.
func (p *Position) Pnl() (sol decimal.Decimal, pct, highWater float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.PnlSol, p.PnlPercent, p.HighWaterMarkPct
}

// MarkToQuote installs a fresh mark from a live quote and reports whether
// the high-water mark advanced. A terminal position is frozen and ignores
// late marks.
func (p *Position) MarkToQuote(pnlSol decimal.Decimal, pnlPct float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Status.IsTerminal() {
		return false
	}
	p.PnlSol = pnlSol
	p.PnlPercent = pnlPct
	if pnlPct > p.HighWaterMarkPct {
		p.HighWaterMarkPct = pnlPct
		return true
	}
	return false
}

// ArmExit installs a pending exit. Returns false when one is already
// armed or the position is terminal.
func (p *Position) ArmExit(pending ExitPending) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ExitPending != nil || p.Status.IsTerminal() {
		return false
	}
	p.ExitPending = &pending
	return true
}

// PendingTrigger returns the armed exit trigger, if any.
func (p *Position) PendingTrigger() (ExitTrigger, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.ExitPending == nil {
		return "", false
	}
	return p.ExitPending.Trigger, true
}

// NoteCloseAttempt annotates the armed exit after a failed execution
// attempt. The exit stays armed so the next tick retries.
func (p *Position) NoteCloseAttempt(quoteAvailable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ExitPending != nil {
		p.ExitPending.QuoteAvailable = quoteAvailable
	}
}

// ApplyClose freezes the realized outcome. After this call the position is
// terminal and no mark can mutate it again.
func (p *Position) ApplyClose(status PositionStatus, pnlSol decimal.Decimal, pnlPct float64, closedAt time.Time, exitTx string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = status
	p.PnlSol = pnlSol
	p.PnlPercent = pnlPct
	if pnlPct > p.HighWaterMarkPct {
		p.HighWaterMarkPct = pnlPct
	}
	p.ExitPending = nil
	p.ClosedAt = &closedAt
	p.ExitTx = exitTx
}

// Clone returns a detached copy safe to serialize or persist while the
// live position keeps mutating.
func (p *Position) Clone() *Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c := &Position{
		ID:               p.ID,
		Mint:             p.Mint,
		Symbol:           p.Symbol,
		WalletAddress:    p.WalletAddress,
		AssetClass:       p.AssetClass,
		PresetID:         p.PresetID,
		Status:           p.Status,
		SolInvested:      p.SolInvested,
		AmountLamports:   p.AmountLamports,
		EntryPrice:       p.EntryPrice,
		EntryTime:        p.EntryTime,
		PnlPercent:       p.PnlPercent,
		PnlSol:           p.PnlSol,
		HighWaterMarkPct: p.HighWaterMarkPct,
		RecommendedSL:    p.RecommendedSL,
		RecommendedTP:    p.RecommendedTP,
		RecommendedTrail: p.RecommendedTrail,
		ExitTx:           p.ExitTx,
	}
	if p.ExitPending != nil {
		ep := *p.ExitPending
		c.ExitPending = &ep
	}
	if p.ClosedAt != nil {
		ts := *p.ClosedAt
		c.ClosedAt = &ts
	}
	return c
}

// positionJSON strips the custom marshaler so Clone output serializes with
// the plain field tags.
type positionJSON Position

// MarshalJSON serializes a consistent snapshot of the position.
func (p *Position) MarshalJSON() ([]byte, error) {
	return json.Marshal((*positionJSON)(p.Clone()))
}

// TryBeginClose acquires the position's exclusivity flag. Any exit attempt,
// tick-driven or manual, must hold it before talking to the execution layer.
func (p *Position) TryBeginClose() bool {
	return p.closing.CompareAndSwap(false, true)
}

// EndClose releases the exclusivity flag. Safe to call on every exit path.
func (p *Position) EndClose() {
	p.closing.Store(false)
}

// IsClosing reports whether an exit attempt is in flight.
func (p *Position) IsClosing() bool {
	return p.closing.Load()
}

// AgeHours is the holding time at the given instant.
func (p *Position) AgeHours(now time.Time) float64 {
	if p.EntryTime.IsZero() {
		return 0
	}
	return now.Sub(p.EntryTime).Hours()
}

// EffectiveStopLoss resolves the per-asset override against the preset value.
func (p *Position) EffectiveStopLoss(presetPct float64) float64 {
	if p.RecommendedSL != nil && *p.RecommendedSL > 0 {
		return *p.RecommendedSL
	}
	return presetPct
}

func (p *Position) EffectiveTakeProfit(presetPct float64) float64 {
	if p.RecommendedTP != nil && *p.RecommendedTP > 0 {
		return *p.RecommendedTP
	}
	return presetPct
}

func (p *Position) EffectiveTrailing(presetPct float64) float64 {
	if p.RecommendedTrail != nil && *p.RecommendedTrail > 0 {
		return *p.RecommendedTrail
	}
	return presetPct
}

// NormalizeMint upper-cases nothing: Solana addresses are case sensitive.
// It only trims surrounding whitespace.
func NormalizeMint(mint string) string {
	return strings.TrimSpace(mint)
}
