package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sol(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func testLimits() Limits {
	return Limits{
		BudgetSol:        sol(1.0),
		PerTradeSol:      sol(0.3),
		MaxOpenPositions: 3,
	}
}

func TestReserveRefusedWhenUnauthorized(t *testing.T) {
	b := NewBudget()
	assert.ErrorIs(t, b.Reserve(sol(0.1)), ErrNotAuthorized)
}

func TestReserveRefusedWhenRemainingTooSmall(t *testing.T) {
	b := NewBudget()
	require.NoError(t, b.Authorize(Limits{BudgetSol: sol(1.0), PerTradeSol: sol(0.3), MaxOpenPositions: 10}))
	require.NoError(t, b.Reserve(sol(0.3)))
	require.NoError(t, b.Reserve(sol(0.3)))
	require.NoError(t, b.Reserve(sol(0.3)))

	// remaining = 0.1 < 0.2, refused even though authorized.
	assert.ErrorIs(t, b.Reserve(sol(0.2)), ErrBudgetExhausted)
}

func TestReserveCaps(t *testing.T) {
	b := NewBudget()
	require.NoError(t, b.Authorize(testLimits()))

	assert.ErrorIs(t, b.Reserve(sol(0.5)), ErrPerTradeCap)
	assert.ErrorIs(t, b.Reserve(sol(0)), ErrInvalidTradeSize)

	require.NoError(t, b.Reserve(sol(0.1)))
	require.NoError(t, b.Reserve(sol(0.1)))
	require.NoError(t, b.Reserve(sol(0.1)))
	assert.ErrorIs(t, b.Reserve(sol(0.1)), ErrConcurrencyCap)
}

func TestDailyVolumeCap(t *testing.T) {
	b := NewBudget()
	b.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	limits := testLimits()
	limits.MaxDailyVolumeSol = sol(0.5)
	require.NoError(t, b.Authorize(limits))

	require.NoError(t, b.Reserve(sol(0.3)))
	b.SettleClose(sol(0.3), sol(0.3))
	require.NoError(t, b.Reserve(sol(0.2)))
	b.SettleClose(sol(0.2), sol(0.2))

	// Budget has room, but the daily volume cap is spent.
	assert.ErrorIs(t, b.Reserve(sol(0.1)), ErrDailyVolumeCap)

	b.now = func() time.Time { return time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC) }
	assert.NoError(t, b.Reserve(sol(0.1)))
}

func TestSettleCloseReturnsProceedsAndFreesSlot(t *testing.T) {
	b := NewBudget()
	require.NoError(t, b.Authorize(testLimits()))

	require.NoError(t, b.Reserve(sol(0.3)))
	view := b.View()
	assert.True(t, view.SpentSol.Equal(sol(0.3)))
	assert.Equal(t, 1, view.OpenPositions)

	// Losing close: 0.2 comes back, 0.1 of budget stays consumed.
	b.SettleClose(sol(0.3), sol(0.2))
	view = b.View()
	assert.True(t, view.SpentSol.Equal(sol(0.1)))
	assert.Equal(t, 0, view.OpenPositions)

	// Winning close never credits more than the cost basis.
	require.NoError(t, b.Reserve(sol(0.2)))
	b.SettleClose(sol(0.2), sol(0.5))
	view = b.View()
	assert.True(t, view.SpentSol.Equal(sol(0.1)))
}

func TestReleaseFailedOpenRollsBack(t *testing.T) {
	b := NewBudget()
	require.NoError(t, b.Authorize(testLimits()))

	require.NoError(t, b.Reserve(sol(0.3)))
	b.ReleaseFailedOpen(sol(0.3))

	view := b.View()
	assert.True(t, view.SpentSol.IsZero())
	assert.Equal(t, 0, view.OpenPositions)
}

func TestRevokeDisablesOpensOnly(t *testing.T) {
	b := NewBudget()
	require.NoError(t, b.Authorize(testLimits()))
	require.NoError(t, b.Reserve(sol(0.2)))

	b.Revoke()
	assert.ErrorIs(t, b.Reserve(sol(0.1)), ErrNotAuthorized)

	// The in-flight reservation still settles.
	b.SettleClose(sol(0.2), sol(0.2))
	assert.Equal(t, 0, b.View().OpenPositions)
}

func TestViewRemainingClampedAtZero(t *testing.T) {
	b := NewBudget()
	b.Restore(BudgetView{
		BudgetSol:  sol(0.5),
		SpentSol:   sol(0.7),
		Authorized: true,
	})
	assert.True(t, b.View().RemainingSol.IsZero())
}
