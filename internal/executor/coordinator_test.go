package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"sniperd/internal/gateway/jupiter"
	"sniperd/internal/risk"
	"sniperd/internal/signer"
	"sniperd/internal/store/gormstore"
	"sniperd/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockQuotes struct{ mock.Mock }

func (m *mockQuotes) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*jupiter.Quote, error) {
	args := m.Called(ctx, inputMint, outputMint, amount, slippageBps)
	if q := args.Get(0); q != nil {
		return q.(*jupiter.Quote), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockQuotes) ExecuteSwap(ctx context.Context, quote *jupiter.Quote, sgn signer.Signer, req signer.Request) (*jupiter.SwapResult, error) {
	args := m.Called(ctx, quote, sgn, req)
	if r := args.Get(0); r != nil {
		return r.(*jupiter.SwapResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type memStore struct {
	positions map[string]*types.Position
	ops       []gormstore.TradeOperation
}

func newMemStore() *memStore {
	return &memStore{positions: make(map[string]*types.Position)}
}

func (s *memStore) UpsertPosition(_ context.Context, p *types.Position) error {
	s.positions[p.ID] = p
	return nil
}

func (s *memStore) AppendTradeOperation(_ context.Context, op gormstore.TradeOperation) error {
	s.ops = append(s.ops, op)
	return nil
}

type nopSigner struct{}

func (nopSigner) Sign(context.Context, signer.Request) ([]byte, error) { return []byte("sig"), nil }
func (nopSigner) Address() string                                      { return "wallet1" }

type fixedSigners struct{}

func (fixedSigners) Current() signer.Signer { return nopSigner{} }

func authorizedBudget(t *testing.T) *risk.Budget {
	t.Helper()
	b := risk.NewBudget()
	require.NoError(t, b.Authorize(risk.Limits{
		BudgetSol:        decimal.NewFromFloat(1.0),
		PerTradeSol:      decimal.NewFromFloat(0.3),
		MaxOpenPositions: 5,
	}))
	return b
}

func testBreakers() *risk.BreakerRegistry {
	return risk.NewBreakerRegistry(
		risk.BreakerConfig{MaxConsecutiveLosses: 3, MaxDailyLossSol: decimal.NewFromFloat(10), CooldownMinutes: 30},
		risk.BreakerConfig{MaxConsecutiveLosses: 10, MaxDailyLossSol: decimal.NewFromFloat(50), CooldownMinutes: 60},
	)
}

func openPosition() *types.Position {
	return &types.Position{
		ID:             "pos-1",
		Mint:           "MintAAA1111111111111111111111111111111111111",
		Symbol:         "AAA",
		AssetClass:     types.ClassMemecoin,
		Status:         types.StatusOpen,
		SolInvested:    decimal.NewFromFloat(0.2),
		AmountLamports: 5_000_000,
		EntryTime:      time.Now().Add(-time.Hour),
		ExitPending: &types.ExitPending{
			Trigger:    types.TriggerStopLoss,
			PnlPercent: -16,
			DetectedAt: time.Now(),
			Reason:     "pnl -16.0% breached stop loss 15.0%",
		},
	}
}

func TestClosePositionLadderShortCircuits(t *testing.T) {
	quotes := &mockQuotes{}
	store := newMemStore()
	budget := authorizedBudget(t)
	budget.RegisterOpen(decimal.NewFromFloat(0.2))
	c := NewCoordinator(quotes, store, budget, testBreakers(), fixedSigners{}, nil)

	p := openPosition()
	// 100 bps has no route; 250 bps does. 500 bps must never be asked.
	quotes.On("GetQuote", mock.Anything, p.Mint, jupiter.WrappedSolMint, p.AmountLamports, 100).
		Return(nil, jupiter.ErrNoRoute).Once()
	winning := &jupiter.Quote{OutAmount: 150_000_000, SlippageBps: 250} // 0.15 SOL
	quotes.On("GetQuote", mock.Anything, p.Mint, jupiter.WrappedSolMint, p.AmountLamports, 250).
		Return(winning, nil).Once()
	quotes.On("ExecuteSwap", mock.Anything, winning, mock.Anything, mock.Anything).
		Return(&jupiter.SwapResult{Success: true, TxHash: "tx1"}, nil).Once()

	require.NoError(t, c.ClosePosition(context.Background(), p, types.TriggerStopLoss))
	quotes.AssertExpectations(t)

	assert.Equal(t, types.StatusStopLoss, p.Status)
	assert.Nil(t, p.ExitPending)
	assert.Equal(t, "tx1", p.ExitTx)
	// Realized: 0.15 - 0.2 = -0.05 SOL, -25%.
	assert.True(t, p.PnlSol.Equal(decimal.NewFromFloat(-0.05)))
	assert.InDelta(t, -25.0, p.PnlPercent, 0.001)
	assert.False(t, p.IsClosing(), "flag must be released on success")
}

func TestClosePositionLadderExhausted(t *testing.T) {
	quotes := &mockQuotes{}
	store := newMemStore()
	c := NewCoordinator(quotes, store, authorizedBudget(t), testBreakers(), fixedSigners{}, nil)

	p := openPosition()
	for _, bps := range []int{100, 250, 500} {
		quotes.On("GetQuote", mock.Anything, p.Mint, jupiter.WrappedSolMint, p.AmountLamports, bps).
			Return(nil, jupiter.ErrNoRoute).Once()
	}

	err := c.ClosePosition(context.Background(), p, types.TriggerStopLoss)
	assert.ErrorIs(t, err, ErrNoRouteAtAnySlippage)
	quotes.AssertExpectations(t)

	// Retryable: flag released, trigger still armed, quote marked missing.
	assert.False(t, p.IsClosing())
	assert.Equal(t, types.StatusOpen, p.Status)
	require.NotNil(t, p.ExitPending)
	assert.False(t, p.ExitPending.QuoteAvailable)
}

func TestClosePositionSignerFailureKeepsExitPending(t *testing.T) {
	quotes := &mockQuotes{}
	store := newMemStore()
	c := NewCoordinator(quotes, store, authorizedBudget(t), testBreakers(), fixedSigners{}, nil)

	p := openPosition()
	q := &jupiter.Quote{OutAmount: 150_000_000, SlippageBps: 100}
	quotes.On("GetQuote", mock.Anything, p.Mint, jupiter.WrappedSolMint, p.AmountLamports, 100).
		Return(q, nil).Once()
	quotes.On("ExecuteSwap", mock.Anything, q, mock.Anything, mock.Anything).
		Return(nil, errors.New("signer rejected")).Once()

	err := c.ClosePosition(context.Background(), p, types.TriggerStopLoss)
	assert.Error(t, err)
	assert.False(t, p.IsClosing())
	assert.Equal(t, types.StatusOpen, p.Status)
	require.NotNil(t, p.ExitPending)
	assert.True(t, p.ExitPending.QuoteAvailable)
}

func TestClosePositionIdempotentOnTerminal(t *testing.T) {
	quotes := &mockQuotes{}
	c := NewCoordinator(quotes, newMemStore(), authorizedBudget(t), testBreakers(), fixedSigners{}, nil)

	p := openPosition()
	p.Status = types.StatusStopLoss
	p.PnlPercent = -25
	p.PnlSol = decimal.NewFromFloat(-0.05)

	require.NoError(t, c.ClosePosition(context.Background(), p, types.TriggerManual))

	// Frozen fields never change and no quote is ever requested.
	assert.Equal(t, types.StatusStopLoss, p.Status)
	assert.InDelta(t, -25.0, p.PnlPercent, 0.001)
	quotes.AssertNotCalled(t, "GetQuote", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestClosePositionMutualExclusion(t *testing.T) {
	c := NewCoordinator(&mockQuotes{}, newMemStore(), authorizedBudget(t), testBreakers(), fixedSigners{}, nil)

	p := openPosition()
	require.True(t, p.TryBeginClose())
	defer p.EndClose()

	err := c.ClosePosition(context.Background(), p, types.TriggerManual)
	assert.ErrorIs(t, err, ErrAlreadyClosing)
}

func TestCloseFeedsBreaker(t *testing.T) {
	quotes := &mockQuotes{}
	breakers := testBreakers()
	budget := authorizedBudget(t)
	c := NewCoordinator(quotes, newMemStore(), budget, breakers, fixedSigners{}, nil)

	for i := 0; i < 3; i++ {
		p := openPosition()
		p.ID = p.ID + string(rune('a'+i))
		q := &jupiter.Quote{OutAmount: 150_000_000}
		quotes.On("GetQuote", mock.Anything, p.Mint, jupiter.WrappedSolMint, p.AmountLamports, 100).
			Return(q, nil).Once()
		quotes.On("ExecuteSwap", mock.Anything, q, mock.Anything, mock.Anything).
			Return(&jupiter.SwapResult{Success: true, TxHash: "tx"}, nil).Once()
		budget.RegisterOpen(p.SolInvested)
		require.NoError(t, c.ClosePosition(context.Background(), p, types.TriggerStopLoss))
	}

	ok, reason := breakers.Allowed(types.ClassMemecoin)
	assert.False(t, ok, "three losing closes must trip the class breaker")
	assert.Contains(t, reason, "consecutive losses")
}

func TestOpenTradeReservesBeforeQuoteAndRollsBack(t *testing.T) {
	quotes := &mockQuotes{}
	budget := authorizedBudget(t)
	c := NewCoordinator(quotes, newMemStore(), budget, testBreakers(), fixedSigners{}, nil)

	item := types.FeedItem{Mint: "MintBBB", Symbol: "BBB", AssetClass: types.ClassMemecoin}
	// The buy side walks the same ladder as closes before giving up.
	for _, bps := range []int{100, 250, 500} {
		quotes.On("GetQuote", mock.Anything, jupiter.WrappedSolMint, "MintBBB", uint64(200_000_000), bps).
			Return(nil, jupiter.ErrNoRoute).Once()
	}

	_, err := c.OpenTrade(context.Background(), item, types.StrategyPreset{ID: "p"}, decimal.NewFromFloat(0.2))
	assert.ErrorIs(t, err, ErrNoRouteAtAnySlippage)
	assert.True(t, budget.View().SpentSol.IsZero(), "failed open must roll the reservation back")
	assert.Equal(t, 0, budget.View().OpenPositions)
}

func TestOpenTradeRefusedOverBudget(t *testing.T) {
	quotes := &mockQuotes{}
	budget := authorizedBudget(t)
	c := NewCoordinator(quotes, newMemStore(), budget, testBreakers(), fixedSigners{}, nil)

	item := types.FeedItem{Mint: "MintCCC", Symbol: "CCC", AssetClass: types.ClassMemecoin}
	_, err := c.OpenTrade(context.Background(), item, types.StrategyPreset{ID: "p"}, decimal.NewFromFloat(0.5))
	assert.ErrorIs(t, err, risk.ErrPerTradeCap)
	quotes.AssertNotCalled(t, "GetQuote", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOpenTradeSuccess(t *testing.T) {
	quotes := &mockQuotes{}
	store := newMemStore()
	budget := authorizedBudget(t)
	c := NewCoordinator(quotes, store, budget, testBreakers(), fixedSigners{}, nil)

	item := types.FeedItem{Mint: "MintDDD", Symbol: "DDD", AssetClass: types.ClassMemecoin}
	q := &jupiter.Quote{OutAmount: 42_000_000}
	quotes.On("GetQuote", mock.Anything, jupiter.WrappedSolMint, "MintDDD", uint64(200_000_000), 100).
		Return(q, nil).Once()
	quotes.On("ExecuteSwap", mock.Anything, q, mock.Anything, mock.Anything).
		Return(&jupiter.SwapResult{Success: true, TxHash: "txopen"}, nil).Once()

	p, err := c.OpenTrade(context.Background(), item, types.StrategyPreset{ID: "preset-x"}, decimal.NewFromFloat(0.2))
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, p.Status)
	assert.Equal(t, uint64(42_000_000), p.AmountLamports)
	assert.Equal(t, "preset-x", p.PresetID)
	assert.Equal(t, "wallet1", p.WalletAddress)
	assert.Equal(t, 1, budget.View().OpenPositions)
	assert.Contains(t, store.positions, p.ID)
}
