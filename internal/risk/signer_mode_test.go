package risk

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBalances struct {
	balance decimal.Decimal
	err     error
	calls   int
}

func (s *stubBalances) BalanceSol(context.Context, string) (decimal.Decimal, error) {
	s.calls++
	return s.balance, s.err
}

func generateKey(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv, base58.Encode(pub)
}

func TestActivateAutonomousHappyPath(t *testing.T) {
	key, address := generateKey(t)
	budget := NewBudget()
	balances := &stubBalances{balance: sol(2.0)}
	session := NewSignerSession(budget, balances, sol(0.05))

	err := session.ActivateAutonomous(context.Background(), key, address, testLimits())
	require.NoError(t, err)

	assert.Equal(t, ModeAutonomous, session.Mode())
	assert.True(t, budget.Authorized())
	assert.Equal(t, 1, balances.calls, "balance must be checked fresh on activation")

	got, err := session.DelegatedKey()
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestActivateRejectsKeyMismatch(t *testing.T) {
	key, _ := generateKey(t)
	_, otherAddress := generateKey(t)
	session := NewSignerSession(NewBudget(), &stubBalances{balance: sol(2.0)}, sol(0.05))

	err := session.ActivateAutonomous(context.Background(), key, otherAddress, testLimits())
	assert.ErrorIs(t, err, ErrKeyMismatch)
	assert.Equal(t, ModeInteractive, session.Mode())
}

func TestActivateRejectsInsufficientBalance(t *testing.T) {
	key, address := generateKey(t)
	budget := NewBudget()
	// Balance covers the budget but not the fee buffer on top.
	session := NewSignerSession(budget, &stubBalances{balance: sol(1.02)}, sol(0.05))

	err := session.ActivateAutonomous(context.Background(), key, address, testLimits())
	assert.ErrorIs(t, err, ErrBalanceTooLow)
	assert.False(t, budget.Authorized(), "failed activation must not mutate the budget")
}

func TestActivateRejectsMissingLimits(t *testing.T) {
	key, address := generateKey(t)
	session := NewSignerSession(NewBudget(), &stubBalances{balance: sol(2.0)}, sol(0.05))

	// Zero-valued limits simulate "carried over from a stale session".
	err := session.ActivateAutonomous(context.Background(), key, address, Limits{})
	assert.Error(t, err)
}

func TestActivateRejectsBalanceCheckFailure(t *testing.T) {
	key, address := generateKey(t)
	session := NewSignerSession(NewBudget(), &stubBalances{err: fmt.Errorf("rpc down")}, sol(0.05))

	err := session.ActivateAutonomous(context.Background(), key, address, testLimits())
	assert.ErrorIs(t, err, ErrBalanceCheck)
}

func TestSwitchToInteractiveRevokesBudget(t *testing.T) {
	key, address := generateKey(t)
	budget := NewBudget()
	session := NewSignerSession(budget, &stubBalances{balance: sol(2.0)}, sol(0.05))
	require.NoError(t, session.ActivateAutonomous(context.Background(), key, address, testLimits()))

	// An in-flight position before the switch.
	require.NoError(t, budget.Reserve(sol(0.2)))

	session.SwitchToInteractive()

	assert.Equal(t, ModeInteractive, session.Mode())
	assert.ErrorIs(t, budget.Reserve(sol(0.1)), ErrNotAuthorized)

	_, err := session.DelegatedKey()
	assert.ErrorIs(t, err, ErrNotAutonomous)

	// The existing position is untouched and still settles.
	budget.SettleClose(sol(0.2), sol(0.2))
	assert.Equal(t, 0, budget.View().OpenPositions)
}
