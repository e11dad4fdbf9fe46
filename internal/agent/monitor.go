package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sniperd/internal/executor"
	"sniperd/internal/gateway/jupiter"
	"sniperd/internal/logger"
	"sniperd/internal/types"

	"github.com/shopspring/decimal"
)

const (
	lamportsPerSol = 1_000_000_000

	// Mark quotes use the base tolerance; escalation happens only on the
	// execution path.
	markSlippageBps = 100

	// Advisory warning at 80% of the way to a trigger.
	nearTriggerFraction = 0.8
)

// PresetSource resolves the preset a position was opened under.
type PresetSource interface {
	Get(id string) (types.StrategyPreset, bool)
}

// CloseExecutor runs the execution half of an exit.
type CloseExecutor interface {
	ClosePosition(ctx context.Context, p *types.Position, trigger types.ExitTrigger) error
}

// AlertNotifier receives advisory near-trigger warnings.
type AlertNotifier interface {
	NearTrigger(p *types.Position, trigger types.ExitTrigger)
}

// Monitor re-evaluates every open position's detection rules each tick.
// Detection is cheap and only arms exitPending; execution is delegated and
// guarded by the position's closing flag.
type Monitor struct {
	book    *Book
	quotes  executor.QuoteService
	presets PresetSource
	closer  CloseExecutor
	store   executor.Store
	alerts  AlertNotifier

	mu     sync.Mutex
	warned map[string]map[types.ExitTrigger]bool

	now func() time.Time
}

func NewMonitor(book *Book, quotes executor.QuoteService, presets PresetSource, closer CloseExecutor, store executor.Store, alerts AlertNotifier) *Monitor {
	return &Monitor{
		book:    book,
		quotes:  quotes,
		presets: presets,
		closer:  closer,
		store:   store,
		alerts:  alerts,
		warned:  make(map[string]map[types.ExitTrigger]bool),
		now:     time.Now,
	}
}

// Tick runs one monitoring pass. Every position is evaluated in isolation;
// a panic or error in one never stops evaluation of the others.
func (m *Monitor) Tick(ctx context.Context) {
	for _, p := range m.book.Open() {
		m.evaluateOne(ctx, p)
	}
	// Drop terminal positions from the book once their close confirmed.
	for _, p := range m.book.All() {
		if p.CurrentStatus().IsTerminal() {
			m.book.Remove(p.ID)
			m.forget(p.ID)
		}
	}
}

func (m *Monitor) evaluateOne(ctx context.Context, p *types.Position) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Monitor: evaluation of %s panicked: %v", p.ID, r)
		}
	}()
	if p.IsClosing() {
		return
	}

	preset, ok := m.presets.Get(p.PresetID)
	if !ok {
		logger.Warnf("Monitor: position %s references unknown preset %s, age checks only", p.ID, p.PresetID)
	}

	marked := m.refreshMark(ctx, p)
	trigger, reason := m.detect(p, preset, marked)

	if trigger != "" {
		_, pct, _ := p.Pnl()
		armed := p.ArmExit(types.ExitPending{
			Trigger:        trigger,
			PnlPercent:     pct,
			DetectedAt:     m.now(),
			QuoteAvailable: marked,
			Reason:         reason,
		})
		if armed {
			logger.Infof("Monitor: %s armed %s (%s)", p.Symbol, trigger, reason)
			if err := m.store.UpsertPosition(ctx, p); err != nil {
				logger.Warnf("Monitor: persisting armed exit for %s failed: %v", p.ID, err)
			}
		}
	}

	pending, ok := p.PendingTrigger()
	if !ok {
		m.warnNearTriggers(p, preset, marked)
		return
	}

	// Execution runs off the tick goroutine so one slow close does not
	// stall monitoring of other positions. The closing flag prevents
	// double-dispatch across ticks.
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("Monitor: close of %s panicked: %v", p.ID, r)
			}
		}()
		err := m.closer.ClosePosition(ctx, p, pending)
		if err != nil && !errors.Is(err, executor.ErrAlreadyClosing) {
			logger.Warnf("Monitor: close of %s failed, will retry next tick: %v", p.Symbol, err)
		}
	}()
}

// refreshMark re-prices the position from a live quote. Returns false when
// no quote was available; pnl fields then keep their previous values.
func (m *Monitor) refreshMark(ctx context.Context, p *types.Position) bool {
	quote, err := m.quotes.GetQuote(ctx, p.Mint, jupiter.WrappedSolMint, p.AmountLamports, markSlippageBps)
	if err != nil {
		logger.Debugf("Monitor: no mark quote for %s: %v", p.Symbol, err)
		return false
	}
	value := decimal.NewFromInt(int64(quote.OutAmount)).Div(decimal.NewFromInt(lamportsPerSol))
	pnlSol := value.Sub(p.SolInvested)
	pnlPct := 0.0
	if p.SolInvested.IsPositive() {
		pnlPct, _ = pnlSol.Div(p.SolInvested).Mul(decimal.NewFromInt(100)).Float64()
	}
	if p.MarkToQuote(pnlSol, pnlPct) {
		if err := m.store.UpsertPosition(ctx, p); err != nil {
			logger.Debugf("Monitor: persisting high-water mark for %s failed: %v", p.ID, err)
		}
	}
	return true
}

// detect evaluates the exit rules in priority order: stop-loss beats age
// expiry beats trailing-stop beats take-profit. Price-based rules require
// a fresh mark.
func (m *Monitor) detect(p *types.Position, preset types.StrategyPreset, marked bool) (types.ExitTrigger, string) {
	_, pct, hwm := p.Pnl()
	if marked {
		if sl := p.EffectiveStopLoss(preset.StopLossPct); sl > 0 && pct <= -sl {
			return types.TriggerStopLoss, fmt.Sprintf("pnl %.2f%% breached stop loss %.1f%%", pct, sl)
		}
	}
	if maxAge := preset.MaxPositionAgeHours; maxAge > 0 {
		if age := p.AgeHours(m.now()); age >= maxAge {
			return types.TriggerMaxAge, fmt.Sprintf("held %.1fh, max %.1fh", age, maxAge)
		}
	}
	if marked {
		if trail := p.EffectiveTrailing(preset.TrailingStopPct); trail > 0 &&
			hwm >= trail && hwm-pct >= trail {
			return types.TriggerTrailingStop,
				fmt.Sprintf("gave back %.2f%% from high-water mark %.2f%%", hwm-pct, hwm)
		}
		if tp := p.EffectiveTakeProfit(preset.TakeProfitPct); tp > 0 && pct >= tp {
			return types.TriggerTakeProfit, fmt.Sprintf("pnl %.2f%% reached take profit %.1f%%", pct, tp)
		}
	}
	return "", ""
}

// warnNearTriggers emits one advisory per position per trigger when a rule
// is 80% of the way to firing. Warnings never change state.
func (m *Monitor) warnNearTriggers(p *types.Position, preset types.StrategyPreset, marked bool) {
	if m.alerts == nil {
		return
	}
	_, pct, hwm := p.Pnl()
	if marked {
		if sl := p.EffectiveStopLoss(preset.StopLossPct); sl > 0 && pct <= -sl*nearTriggerFraction {
			m.warnOnce(p, types.TriggerStopLoss)
		}
		if tp := p.EffectiveTakeProfit(preset.TakeProfitPct); tp > 0 && pct >= tp*nearTriggerFraction {
			m.warnOnce(p, types.TriggerTakeProfit)
		}
		if trail := p.EffectiveTrailing(preset.TrailingStopPct); trail > 0 &&
			hwm >= trail && hwm-pct >= trail*nearTriggerFraction {
			m.warnOnce(p, types.TriggerTrailingStop)
		}
	}
	if maxAge := preset.MaxPositionAgeHours; maxAge > 0 && p.AgeHours(m.now()) >= maxAge*nearTriggerFraction {
		m.warnOnce(p, types.TriggerMaxAge)
	}
}

func (m *Monitor) warnOnce(p *types.Position, trigger types.ExitTrigger) {
	m.mu.Lock()
	seen := m.warned[p.ID]
	if seen == nil {
		seen = make(map[types.ExitTrigger]bool)
		m.warned[p.ID] = seen
	}
	already := seen[trigger]
	seen[trigger] = true
	m.mu.Unlock()
	if already {
		return
	}
	snap := p.Clone()
	logger.Infof("Monitor: %s near %s (pnl %.2f%%)", snap.Symbol, trigger, snap.PnlPercent)
	m.alerts.NearTrigger(snap, trigger)
}

func (m *Monitor) forget(positionID string) {
	m.mu.Lock()
	delete(m.warned, positionID)
	m.mu.Unlock()
}
