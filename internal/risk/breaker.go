// Package risk implements the trading guards: per-asset-class circuit
// breakers, the spend budget, and the signer authorization state machine.
// Everything here gates opens; nothing here ever touches open positions.
package risk

import (
	"fmt"
	"sync"
	"time"

	"sniperd/internal/logger"
	"sniperd/internal/types"

	"github.com/shopspring/decimal"
)

// GlobalScope is the breaker scope sitting above every asset class.
const GlobalScope = "global"

// BreakerConfig holds the trip thresholds for one scope.
type BreakerConfig struct {
	MaxConsecutiveLosses int
	MaxDailyLossSol      decimal.Decimal
	CooldownMinutes      int
}

// BreakerState is the read model for one scope's breaker.
type BreakerState struct {
	Scope             string          `json:"scope"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	DailyLossSol      decimal.Decimal `json:"daily_loss_sol"`
	Tripped           bool            `json:"tripped"`
	Reason            string          `json:"reason,omitempty"`
	CooldownUntil     time.Time       `json:"cooldown_until,omitzero"`
	Day               string          `json:"day"`
}

type breaker struct {
	cfg   BreakerConfig
	state BreakerState
}

// BreakerRegistry owns one breaker per asset class plus a global breaker.
// All methods are safe for concurrent use.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*breaker
	classCfg BreakerConfig
	now      func() time.Time
}

// NewBreakerRegistry builds the registry with per-class thresholds and a
// separate global threshold set.
func NewBreakerRegistry(classCfg, globalCfg BreakerConfig) *BreakerRegistry {
	r := &BreakerRegistry{
		breakers: make(map[string]*breaker),
		classCfg: classCfg,
		now:      time.Now,
	}
	r.breakers[GlobalScope] = &breaker{cfg: globalCfg, state: BreakerState{Scope: GlobalScope}}
	return r
}

func (r *BreakerRegistry) get(scope string) *breaker {
	b, ok := r.breakers[scope]
	if !ok {
		b = &breaker{cfg: r.classCfg, state: BreakerState{Scope: scope}}
		r.breakers[scope] = b
	}
	return b
}

// utcDay is the daily reset boundary key (UTC midnight).
func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (b *breaker) rollDay(now time.Time) {
	day := utcDay(now)
	if b.state.Day == day {
		return
	}
	b.state.Day = day
	b.state.DailyLossSol = decimal.Zero
}

func (b *breaker) maybeCooldownClear(now time.Time) {
	if !b.state.Tripped || b.state.CooldownUntil.IsZero() {
		return
	}
	if now.Before(b.state.CooldownUntil) {
		return
	}
	logger.Infof("CircuitBreaker[%s]: cooldown elapsed, auto-clearing", b.state.Scope)
	b.state.Tripped = false
	b.state.Reason = ""
	b.state.CooldownUntil = time.Time{}
	b.state.ConsecutiveLosses = 0
}

func (b *breaker) recordLoss(lossSol decimal.Decimal, now time.Time) {
	b.rollDay(now)
	b.state.ConsecutiveLosses++
	b.state.DailyLossSol = b.state.DailyLossSol.Add(lossSol)

	if b.cfg.MaxConsecutiveLosses > 0 && b.state.ConsecutiveLosses >= b.cfg.MaxConsecutiveLosses {
		b.trip(now, fmt.Sprintf("%d consecutive losses", b.state.ConsecutiveLosses))
		return
	}
	if b.cfg.MaxDailyLossSol.IsPositive() && b.state.DailyLossSol.GreaterThanOrEqual(b.cfg.MaxDailyLossSol) {
		b.trip(now, fmt.Sprintf("daily loss %s SOL reached limit %s", b.state.DailyLossSol, b.cfg.MaxDailyLossSol))
	}
}

func (b *breaker) trip(now time.Time, reason string) {
	if b.state.Tripped {
		return
	}
	b.state.Tripped = true
	b.state.Reason = reason
	b.state.CooldownUntil = now.Add(time.Duration(b.cfg.CooldownMinutes) * time.Minute)
	logger.Warnf("CircuitBreaker[%s]: TRIPPED (%s), cooldown until %s",
		b.state.Scope, reason, b.state.CooldownUntil.Format(time.RFC3339))
}

// RecordClose feeds one realized close into the class breaker and the
// global breaker. A win resets the loss streak, a loss extends it, and a
// break-even close is neutral: it neither resets nor extends.
func (r *BreakerRegistry) RecordClose(class types.AssetClass, pnlSol decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pnlSol.IsZero() {
		return
	}
	now := r.now()
	for _, scope := range []string{string(class), GlobalScope} {
		b := r.get(scope)
		b.rollDay(now)
		if pnlSol.IsPositive() {
			b.state.ConsecutiveLosses = 0
			continue
		}
		b.recordLoss(pnlSol.Neg(), now)
	}
}

// Allowed reports whether opens are currently permitted for the class. The
// global breaker is consulted first. Elapsed cooldowns auto-clear here.
func (r *BreakerRegistry) Allowed(class types.AssetClass) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for _, scope := range []string{GlobalScope, string(class)} {
		b := r.get(scope)
		b.rollDay(now)
		b.maybeCooldownClear(now)
		if b.state.Tripped {
			return false, fmt.Sprintf("%s breaker tripped: %s", scope, b.state.Reason)
		}
	}
	return true, ""
}

// Reset is the operator override: clears the breaker for one scope
// immediately, including its loss streak.
func (r *BreakerRegistry) Reset(scope string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.get(scope)
	b.state.Tripped = false
	b.state.Reason = ""
	b.state.CooldownUntil = time.Time{}
	b.state.ConsecutiveLosses = 0
	logger.Infof("CircuitBreaker[%s]: manual reset", scope)
}

// Snapshot returns a copy of every scope's state, global first.
func (r *BreakerRegistry) Snapshot() []BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	out := make([]BreakerState, 0, len(r.breakers))
	if g, ok := r.breakers[GlobalScope]; ok {
		g.rollDay(now)
		out = append(out, g.state)
	}
	for scope, b := range r.breakers {
		if scope == GlobalScope {
			continue
		}
		b.rollDay(now)
		out = append(out, b.state)
	}
	return out
}

// Restore installs persisted states at startup, keeping configured
// thresholds.
func (r *BreakerRegistry) Restore(states []BreakerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range states {
		if s.Scope == "" {
			continue
		}
		b := r.get(s.Scope)
		b.state = s
	}
}
