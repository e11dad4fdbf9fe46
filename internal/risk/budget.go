package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"sniperd/internal/logger"

	"github.com/shopspring/decimal"
)

var (
	ErrNotAuthorized    = errors.New("trading is not authorized")
	ErrBudgetExhausted  = errors.New("budget exhausted")
	ErrPerTradeCap      = errors.New("size exceeds per-trade cap")
	ErrConcurrencyCap   = errors.New("open position cap reached")
	ErrDailyVolumeCap   = errors.New("daily volume cap reached")
	ErrInvalidTradeSize = errors.New("trade size must be positive")
)

// Limits are the explicit spending bounds a session enters on activation.
// They are never carried over from a prior session.
type Limits struct {
	BudgetSol         decimal.Decimal
	PerTradeSol       decimal.Decimal
	MaxOpenPositions  int
	MaxDailyVolumeSol decimal.Decimal // zero disables
}

func (l Limits) Validate() error {
	if !l.BudgetSol.IsPositive() {
		return fmt.Errorf("budget must be positive, got %s", l.BudgetSol)
	}
	if !l.PerTradeSol.IsPositive() {
		return fmt.Errorf("per-trade cap must be positive, got %s", l.PerTradeSol)
	}
	if l.PerTradeSol.GreaterThan(l.BudgetSol) {
		return fmt.Errorf("per-trade cap %s exceeds budget %s", l.PerTradeSol, l.BudgetSol)
	}
	if l.MaxOpenPositions <= 0 {
		return fmt.Errorf("max open positions must be positive, got %d", l.MaxOpenPositions)
	}
	if l.MaxDailyVolumeSol.IsNegative() {
		return fmt.Errorf("daily volume cap must not be negative, got %s", l.MaxDailyVolumeSol)
	}
	return nil
}

// BudgetView is the read model exposed over HTTP and persisted.
type BudgetView struct {
	BudgetSol         decimal.Decimal `json:"budget_sol"`
	SpentSol          decimal.Decimal `json:"spent_sol"`
	RemainingSol      decimal.Decimal `json:"remaining_sol"`
	Authorized        bool            `json:"authorized"`
	OpenPositions     int             `json:"open_positions"`
	MaxOpenPositions  int             `json:"max_open_positions"`
	PerTradeSol       decimal.Decimal `json:"per_trade_sol"`
	DailyVolumeSol    decimal.Decimal `json:"daily_volume_sol"`
	MaxDailyVolumeSol decimal.Decimal `json:"max_daily_volume_sol"`
	Day               string          `json:"day"`
}

// Budget tracks net SOL deployed against an authorized ceiling. Reserve
// and the settle calls are atomic with the open/close they account for.
type Budget struct {
	mu          sync.Mutex
	limits      Limits
	spent       decimal.Decimal
	authorized  bool
	openCount   int
	dailyVolume decimal.Decimal
	day         string
	now         func() time.Time
}

func NewBudget() *Budget {
	return &Budget{now: time.Now}
}

// Authorize arms the budget with freshly entered limits.
func (b *Budget) Authorize(limits Limits) error {
	if err := limits.Validate(); err != nil {
		return fmt.Errorf("invalid limits: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits = limits
	b.spent = decimal.Zero
	b.authorized = true
	b.rollDayLocked()
	logger.Infof("Budget: authorized %s SOL (per-trade %s, max %d open)",
		limits.BudgetSol, limits.PerTradeSol, limits.MaxOpenPositions)
	return nil
}

// Revoke disables new opens immediately. Existing reservations stay on the
// books so settlement still balances.
func (b *Budget) Revoke() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.authorized {
		logger.Warnf("Budget: authorization revoked, new opens disabled")
	}
	b.authorized = false
}

func (b *Budget) rollDayLocked() {
	day := utcDay(b.now())
	if b.day == day {
		return
	}
	b.day = day
	b.dailyVolume = decimal.Zero
}

// Reserve accounts for an open of the given size. It refuses before any
// mutation when a cap would be violated.
func (b *Budget) Reserve(size decimal.Decimal) error {
	if !size.IsPositive() {
		return ErrInvalidTradeSize
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollDayLocked()
	if !b.authorized {
		return ErrNotAuthorized
	}
	if size.GreaterThan(b.limits.PerTradeSol) {
		return ErrPerTradeCap
	}
	if b.openCount >= b.limits.MaxOpenPositions {
		return ErrConcurrencyCap
	}
	remaining := b.limits.BudgetSol.Sub(b.spent)
	if remaining.LessThan(size) {
		return ErrBudgetExhausted
	}
	if b.limits.MaxDailyVolumeSol.IsPositive() &&
		b.dailyVolume.Add(size).GreaterThan(b.limits.MaxDailyVolumeSol) {
		return ErrDailyVolumeCap
	}
	b.spent = b.spent.Add(size)
	b.dailyVolume = b.dailyVolume.Add(size)
	b.openCount++
	return nil
}

// ReleaseFailedOpen rolls a reservation back when the open never executed.
func (b *Budget) ReleaseFailedOpen(size decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spent = b.spent.Sub(size)
	if b.spent.IsNegative() {
		b.spent = decimal.Zero
	}
	if b.openCount > 0 {
		b.openCount--
	}
}

// SettleClose accounts for a realized close: the position slot frees up and
// the realized proceeds return to the budget, so only net losses consume
// the ceiling.
func (b *Budget) SettleClose(costBasis, proceeds decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	credit := proceeds
	if credit.GreaterThan(costBasis) {
		credit = costBasis
	}
	b.spent = b.spent.Sub(credit)
	if b.spent.IsNegative() {
		b.spent = decimal.Zero
	}
	if b.openCount > 0 {
		b.openCount--
	}
}

// RegisterOpen bumps accounting for a position restored from the store,
// bypassing authorization checks.
func (b *Budget) RegisterOpen(size decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spent = b.spent.Add(size)
	b.openCount++
}

// Authorized reports whether new opens are permitted at all.
func (b *Budget) Authorized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.authorized
}

// View returns the current read model. Remaining is clamped at zero.
func (b *Budget) View() BudgetView {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollDayLocked()
	remaining := b.limits.BudgetSol.Sub(b.spent)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return BudgetView{
		BudgetSol:         b.limits.BudgetSol,
		SpentSol:          b.spent,
		RemainingSol:      remaining,
		Authorized:        b.authorized,
		OpenPositions:     b.openCount,
		MaxOpenPositions:  b.limits.MaxOpenPositions,
		PerTradeSol:       b.limits.PerTradeSol,
		DailyVolumeSol:    b.dailyVolume,
		MaxDailyVolumeSol: b.limits.MaxDailyVolumeSol,
		Day:               b.day,
	}
}

// Restore installs persisted budget state at startup.
func (b *Budget) Restore(view BudgetView) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits = Limits{
		BudgetSol:         view.BudgetSol,
		PerTradeSol:       view.PerTradeSol,
		MaxOpenPositions:  view.MaxOpenPositions,
		MaxDailyVolumeSol: view.MaxDailyVolumeSol,
	}
	b.spent = view.SpentSol
	b.authorized = view.Authorized
	b.openCount = view.OpenPositions
	b.dailyVolume = view.DailyVolumeSol
	b.day = view.Day
}
