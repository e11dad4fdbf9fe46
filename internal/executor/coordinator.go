// Package executor orchestrates trade execution: quote retrieval with the
// escalating slippage ladder, signing, settlement accounting, and feeding
// realized outcomes back into the circuit breakers.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sniperd/internal/gateway/jupiter"
	"sniperd/internal/logger"
	"sniperd/internal/risk"
	"sniperd/internal/signer"
	"sniperd/internal/store/gormstore"
	"sniperd/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const lamportsPerSol = 1_000_000_000

// DefaultSlippageLadder is the ordered list of close attempts. The first
// rung that yields a route wins; the ladder never reorders.
var DefaultSlippageLadder = []int{100, 250, 500}

var (
	ErrAlreadyClosing       = errors.New("close already in flight for position")
	ErrNoRouteAtAnySlippage = errors.New("no route at any slippage rung")
)

// QuoteService is the aggregator surface the coordinator consumes.
type QuoteService interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*jupiter.Quote, error)
	ExecuteSwap(ctx context.Context, quote *jupiter.Quote, sgn signer.Signer, req signer.Request) (*jupiter.SwapResult, error)
}

// Store is the persistence surface the coordinator writes through.
type Store interface {
	UpsertPosition(ctx context.Context, p *types.Position) error
	AppendTradeOperation(ctx context.Context, op gormstore.TradeOperation) error
}

// SignerProvider resolves the signer for the current session mode.
type SignerProvider interface {
	Current() signer.Signer
}

// Notifier receives trade lifecycle events. All methods must be
// non-blocking.
type Notifier interface {
	PositionOpened(p *types.Position)
	PositionClosed(p *types.Position)
}

// Coordinator is safe for concurrent use; per-position exclusivity comes
// from the position's own closing flag.
type Coordinator struct {
	quotes   QuoteService
	store    Store
	budget   *risk.Budget
	breakers *risk.BreakerRegistry
	signers  SignerProvider
	notifier Notifier

	ladder      []int
	signTimeout time.Duration
}

func NewCoordinator(quotes QuoteService, store Store, budget *risk.Budget, breakers *risk.BreakerRegistry, signers SignerProvider, notifier Notifier) *Coordinator {
	return &Coordinator{
		quotes:      quotes,
		store:       store,
		budget:      budget,
		breakers:    breakers,
		signers:     signers,
		notifier:    notifier,
		ladder:      DefaultSlippageLadder,
		signTimeout: 30 * time.Second,
	}
}

// SetSlippageLadder overrides the close ladder; empty input is ignored.
func (c *Coordinator) SetSlippageLadder(bps []int) {
	if len(bps) > 0 {
		c.ladder = bps
	}
}

// SetSignTimeout overrides the per-swap signing deadline.
func (c *Coordinator) SetSignTimeout(d time.Duration) {
	if d > 0 {
		c.signTimeout = d
	}
}

// OpenTrade executes a buy for the feed item under the preset. The budget
// is reserved before the quote so concurrent opens cannot overspend; any
// failure after the reservation rolls it back.
func (c *Coordinator) OpenTrade(ctx context.Context, item types.FeedItem, preset types.StrategyPreset, sizeSol decimal.Decimal) (*types.Position, error) {
	if err := c.budget.Reserve(sizeSol); err != nil {
		return nil, err
	}

	lamports := uint64(sizeSol.Mul(decimal.NewFromInt(lamportsPerSol)).IntPart())
	quote, usedBps, err := c.quoteWithLadder(ctx, jupiter.WrappedSolMint, item.Mint, lamports)
	if err != nil {
		c.budget.ReleaseFailedOpen(sizeSol)
		c.audit(ctx, gormstore.TradeOperation{
			Operation: "open",
			Error:     err.Error(),
			Details:   map[string]interface{}{"mint": item.Mint},
		})
		return nil, fmt.Errorf("open quote failed for %s: %w", item.Symbol, err)
	}

	sgn := c.signers.Current()
	signCtx, cancel := context.WithTimeout(ctx, c.signTimeout)
	defer cancel()
	result, err := c.quotes.ExecuteSwap(signCtx, quote, sgn, signer.Request{
		Mint:    item.Mint,
		Side:    "buy",
		Summary: fmt.Sprintf("buy %s for %s SOL", item.Symbol, sizeSol),
	})
	if err != nil {
		c.budget.ReleaseFailedOpen(sizeSol)
		c.audit(ctx, gormstore.TradeOperation{
			Operation: "open",
			Error:     err.Error(),
			Details:   map[string]interface{}{"mint": item.Mint},
		})
		return nil, fmt.Errorf("open swap failed for %s: %w", item.Symbol, err)
	}

	now := time.Now()
	p := &types.Position{
		ID:             uuid.NewString(),
		Mint:           item.Mint,
		Symbol:         item.Symbol,
		WalletAddress:  sgn.Address(),
		AssetClass:     item.AssetClass,
		PresetID:       preset.ID,
		Status:         types.StatusOpen,
		SolInvested:    sizeSol,
		AmountLamports: quote.OutAmount,
		EntryPrice:     entryPrice(sizeSol, quote.OutAmount),
		EntryTime:      now,
	}
	if err := c.store.UpsertPosition(ctx, p); err != nil {
		logger.Errorf("Executor: persisting opened position %s failed: %v", p.ID, err)
	}
	c.audit(ctx, gormstore.TradeOperation{
		PositionID: p.ID,
		Operation:  "open",
		Success:    true,
		TxHash:     result.TxHash,
		Details: map[string]interface{}{
			"mint":         item.Mint,
			"sol_invested": sizeSol.String(),
			"slippage_bps": usedBps,
		},
	})
	if c.notifier != nil {
		c.notifier.PositionOpened(p)
	}
	logger.Tradef("Executor: opened %s (%s SOL, tx %s)", p.Symbol, sizeSol, result.TxHash)
	return p, nil
}

func entryPrice(sizeSol decimal.Decimal, amountLamports uint64) float64 {
	if amountLamports == 0 {
		return 0
	}
	price, _ := sizeSol.Div(decimal.NewFromInt(int64(amountLamports))).Float64()
	return price
}

// ClosePosition executes the exit armed on the position (or a manual
// close). It acquires the position's exclusivity flag for the whole
// attempt; on failure the flag is released and exitPending stays intact so
// the next tick can retry.
func (c *Coordinator) ClosePosition(ctx context.Context, p *types.Position, trigger types.ExitTrigger) error {
	if !p.TryBeginClose() {
		return ErrAlreadyClosing
	}
	defer p.EndClose()

	if p.CurrentStatus().IsTerminal() {
		return nil
	}

	quote, usedBps, err := c.quoteWithLadder(ctx, p.Mint, jupiter.WrappedSolMint, p.AmountLamports)
	if err != nil {
		c.failClose(ctx, p, trigger, err)
		return err
	}

	sgn := c.signers.Current()
	signCtx, cancel := context.WithTimeout(ctx, c.signTimeout)
	defer cancel()
	result, err := c.quotes.ExecuteSwap(signCtx, quote, sgn, signer.Request{
		PositionID: p.ID,
		Mint:       p.Mint,
		Side:       "sell",
		Summary:    fmt.Sprintf("close %s (%s)", p.Symbol, trigger),
	})
	if err != nil {
		c.failClose(ctx, p, trigger, err)
		return fmt.Errorf("close swap failed for %s: %w", p.Symbol, err)
	}

	// Realized value comes from the actual swap output, not the monitored
	// mark price.
	proceeds := decimal.NewFromInt(int64(quote.OutAmount)).Div(decimal.NewFromInt(lamportsPerSol))
	pnlSol := proceeds.Sub(p.SolInvested)
	pnlPct := 0.0
	if p.SolInvested.IsPositive() {
		pnlPct, _ = pnlSol.Div(p.SolInvested).Mul(decimal.NewFromInt(100)).Float64()
	}

	p.ApplyClose(trigger.TerminalStatus(), pnlSol, pnlPct, time.Now(), result.TxHash)

	if err := c.store.UpsertPosition(ctx, p); err != nil {
		logger.Errorf("Executor: persisting closed position %s failed: %v", p.ID, err)
	}
	c.budget.SettleClose(p.SolInvested, proceeds)
	c.breakers.RecordClose(p.AssetClass, pnlSol)
	c.audit(ctx, gormstore.TradeOperation{
		PositionID: p.ID,
		Operation:  "close",
		Success:    true,
		TxHash:     result.TxHash,
		Details: map[string]interface{}{
			"trigger":      string(trigger),
			"pnl_sol":      pnlSol.String(),
			"pnl_percent":  pnlPct,
			"slippage_bps": usedBps,
		},
	})
	if c.notifier != nil {
		c.notifier.PositionClosed(p)
	}
	logger.Tradef("Executor: closed %s via %s, pnl %.2f%% (%s SOL), tx %s",
		p.Symbol, trigger, pnlPct, pnlSol, result.TxHash)
	return nil
}

// quoteWithLadder walks the slippage rungs in order, short-circuiting on
// the first route.
func (c *Coordinator) quoteWithLadder(ctx context.Context, inputMint, outputMint string, amount uint64) (*jupiter.Quote, int, error) {
	for _, bps := range c.ladder {
		quote, err := c.quotes.GetQuote(ctx, inputMint, outputMint, amount, bps)
		if err == nil {
			return quote, bps, nil
		}
		if !errors.Is(err, jupiter.ErrNoRoute) {
			return nil, bps, err
		}
		logger.Debugf("Executor: no route for %s at %d bps, escalating", inputMint, bps)
	}
	return nil, 0, ErrNoRouteAtAnySlippage
}

// failClose records a failed attempt. exitPending stays armed so the
// position remains retryable; only quote availability is annotated.
func (c *Coordinator) failClose(ctx context.Context, p *types.Position, trigger types.ExitTrigger, cause error) {
	p.NoteCloseAttempt(!errors.Is(cause, ErrNoRouteAtAnySlippage))
	if err := c.store.UpsertPosition(ctx, p); err != nil {
		logger.Errorf("Executor: persisting failed close for %s failed: %v", p.ID, err)
	}
	c.audit(ctx, gormstore.TradeOperation{
		PositionID: p.ID,
		Operation:  "close",
		Error:      cause.Error(),
		Details:    map[string]interface{}{"trigger": string(trigger)},
	})
	logger.Warnf("Executor: close attempt for %s failed (%s): %v", p.Symbol, trigger, cause)
}

func (c *Coordinator) audit(ctx context.Context, op gormstore.TradeOperation) {
	op.CreatedAt = time.Now()
	if err := c.store.AppendTradeOperation(ctx, op); err != nil {
		logger.Warnf("Executor: audit log write failed: %v", err)
	}
}
