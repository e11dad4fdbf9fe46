package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"sniperd/internal/executor"
	"sniperd/internal/gateway/jupiter"
	"sniperd/internal/signer"
	"sniperd/internal/store/gormstore"
	"sniperd/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quoteTable returns a fixed out-amount per mint; missing mints have no
// route.
type quoteTable struct {
	mu  sync.Mutex
	out map[string]uint64
}

func (q *quoteTable) set(mint string, outLamports uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.out == nil {
		q.out = make(map[string]uint64)
	}
	q.out[mint] = outLamports
}

func (q *quoteTable) GetQuote(_ context.Context, inputMint, _ string, _ uint64, slippageBps int) (*jupiter.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out, ok := q.out[inputMint]
	if !ok {
		return nil, jupiter.ErrNoRoute
	}
	return &jupiter.Quote{OutAmount: out, SlippageBps: slippageBps}, nil
}

func (q *quoteTable) ExecuteSwap(context.Context, *jupiter.Quote, signer.Signer, signer.Request) (*jupiter.SwapResult, error) {
	return &jupiter.SwapResult{Success: true, TxHash: "tx"}, nil
}

type noopStore struct{}

func (noopStore) UpsertPosition(context.Context, *types.Position) error { return nil }

func (noopStore) AppendTradeOperation(context.Context, gormstore.TradeOperation) error {
	return nil
}

type recordingCloser struct {
	calls chan types.ExitTrigger
}

func (c *recordingCloser) ClosePosition(_ context.Context, p *types.Position, trigger types.ExitTrigger) error {
	c.calls <- trigger
	return nil
}

type fixedPresets struct{ preset types.StrategyPreset }

func (f fixedPresets) Get(string) (types.StrategyPreset, bool) { return f.preset, true }

type recordingAlerts struct {
	mu       sync.Mutex
	triggers []types.ExitTrigger
}

func (a *recordingAlerts) NearTrigger(_ *types.Position, trigger types.ExitTrigger) {
	a.mu.Lock()
	a.triggers = append(a.triggers, trigger)
	a.mu.Unlock()
}

func (a *recordingAlerts) seen() []types.ExitTrigger {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.ExitTrigger(nil), a.triggers...)
}

func monitorPreset() types.StrategyPreset {
	return types.StrategyPreset{
		ID:                  "p",
		Name:                "P",
		StopLossPct:         15,
		TakeProfitPct:       30,
		TrailingStopPct:     10,
		MaxPositionAgeHours: 24,
	}
}

func newOpenPosition(id, mint string) *types.Position {
	return &types.Position{
		ID:             id,
		Mint:           mint,
		Symbol:         "SYM-" + id,
		AssetClass:     types.ClassMemecoin,
		PresetID:       "p",
		Status:         types.StatusOpen,
		SolInvested:    decimal.NewFromFloat(0.2),
		AmountLamports: 1000,
		EntryTime:      time.Now().Add(-time.Hour),
	}
}

// lamports for a given pnl percent on a 0.2 SOL position
func valueFor(pnlPct float64) uint64 {
	return uint64(200_000_000 * (1 + pnlPct/100))
}

func newTestMonitor(quotes *quoteTable, closer *recordingCloser, alerts *recordingAlerts) (*Monitor, *Book) {
	book := NewBook()
	var alertsIface AlertNotifier
	if alerts != nil {
		alertsIface = alerts
	}
	m := NewMonitor(book, quotes, fixedPresets{preset: monitorPreset()}, closer, noopStore{}, alertsIface)
	return m, book
}

func TestHighWaterMarkNeverDecreases(t *testing.T) {
	quotes := &quoteTable{}
	m, book := newTestMonitor(quotes, &recordingCloser{calls: make(chan types.ExitTrigger, 8)}, nil)

	p := newOpenPosition("1", "mintA")
	book.Add(p)

	for _, pnl := range []float64{2, 8, 5, 7, 3} {
		quotes.set("mintA", valueFor(pnl))
		m.Tick(context.Background())
	}
	assert.InDelta(t, 8.0, p.HighWaterMarkPct, 0.01)
}

func TestTrailingStopArmingPrecondition(t *testing.T) {
	quotes := &quoteTable{}
	closer := &recordingCloser{calls: make(chan types.ExitTrigger, 8)}
	m, book := newTestMonitor(quotes, closer, nil)

	p := newOpenPosition("1", "mintA")
	book.Add(p)

	// HWM reaches 5%, below the 10% arming bar; a drop to -6% gives back
	// 11% but must not fire the trail.
	quotes.set("mintA", valueFor(5))
	m.Tick(context.Background())
	quotes.set("mintA", valueFor(-6))
	m.Tick(context.Background())
	require.Nil(t, p.ExitPending)

	// Now the trail arms at 12% HWM and fires on an 11-point giveback.
	quotes.set("mintA", valueFor(12))
	m.Tick(context.Background())
	require.Nil(t, p.ExitPending)
	quotes.set("mintA", valueFor(1))
	m.Tick(context.Background())

	require.NotNil(t, p.ExitPending)
	assert.Equal(t, types.TriggerTrailingStop, p.ExitPending.Trigger)

	select {
	case trigger := <-closer.calls:
		assert.Equal(t, types.TriggerTrailingStop, trigger)
	case <-time.After(time.Second):
		t.Fatal("close never dispatched")
	}
}

func TestStopLossBeatsTakeProfitConflicts(t *testing.T) {
	quotes := &quoteTable{}
	closer := &recordingCloser{calls: make(chan types.ExitTrigger, 8)}
	m, book := newTestMonitor(quotes, closer, nil)

	p := newOpenPosition("1", "mintA")
	book.Add(p)

	quotes.set("mintA", valueFor(-20))
	m.Tick(context.Background())

	require.NotNil(t, p.ExitPending)
	assert.Equal(t, types.TriggerStopLoss, p.ExitPending.Trigger)
}

func TestAgeExpiryFiresWithoutQuote(t *testing.T) {
	quotes := &quoteTable{} // no routes at all
	closer := &recordingCloser{calls: make(chan types.ExitTrigger, 8)}
	m, book := newTestMonitor(quotes, closer, nil)

	p := newOpenPosition("1", "mintGone")
	p.EntryTime = time.Now().Add(-25 * time.Hour)
	book.Add(p)

	m.Tick(context.Background())

	require.NotNil(t, p.ExitPending)
	assert.Equal(t, types.TriggerMaxAge, p.ExitPending.Trigger)
	assert.False(t, p.ExitPending.QuoteAvailable)
}

func TestNearTriggerIsAdvisoryOnly(t *testing.T) {
	quotes := &quoteTable{}
	alerts := &recordingAlerts{}
	m, book := newTestMonitor(quotes, &recordingCloser{calls: make(chan types.ExitTrigger, 8)}, alerts)

	p := newOpenPosition("1", "mintA")
	book.Add(p)

	// -13% is 86% of the way to the 15% stop loss.
	quotes.set("mintA", valueFor(-13))
	m.Tick(context.Background())

	assert.Nil(t, p.ExitPending, "near-trigger warning must not change state")
	assert.Contains(t, alerts.seen(), types.TriggerStopLoss)

	// The same warning is not repeated.
	m.Tick(context.Background())
	assert.Len(t, alerts.seen(), 1)
}

func TestSkipsPositionsMidClose(t *testing.T) {
	quotes := &quoteTable{}
	closer := &recordingCloser{calls: make(chan types.ExitTrigger, 8)}
	m, book := newTestMonitor(quotes, closer, nil)

	p := newOpenPosition("1", "mintA")
	p.ExitPending = &types.ExitPending{Trigger: types.TriggerStopLoss}
	require.True(t, p.TryBeginClose())
	defer p.EndClose()
	book.Add(p)

	quotes.set("mintA", valueFor(-20))
	m.Tick(context.Background())

	select {
	case <-closer.calls:
		t.Fatal("must not dispatch a close while one is in flight")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOneFailingPositionDoesNotStopOthers(t *testing.T) {
	quotes := &quoteTable{}
	closer := &recordingCloser{calls: make(chan types.ExitTrigger, 8)}
	book := NewBook()
	m := NewMonitor(book, quotes, panickyPresets{}, closer, noopStore{}, nil)

	bad := newOpenPosition("bad", "mintBad")
	bad.PresetID = "boom"
	good := newOpenPosition("good", "mintGood")
	book.Add(bad)
	book.Add(good)

	quotes.set("mintGood", valueFor(-20))
	quotes.set("mintBad", valueFor(0))

	m.Tick(context.Background())

	require.NotNil(t, good.ExitPending, "healthy position must still be evaluated")
	assert.Equal(t, types.TriggerStopLoss, good.ExitPending.Trigger)
}

// panickyPresets blows up for one preset id to exercise tick isolation.
type panickyPresets struct{}

func (panickyPresets) Get(id string) (types.StrategyPreset, bool) {
	if id == "boom" {
		panic(fmt.Sprintf("bad preset lookup %s", id))
	}
	return monitorPreset(), true
}

// slowCloser settles a close with the same locking discipline as the real
// execution path, but slowly, so ticks keep running against the position
// while the close is in flight.
type slowCloser struct {
	realizedSol decimal.Decimal
	realizedPct float64
}

func (c *slowCloser) ClosePosition(_ context.Context, p *types.Position, trigger types.ExitTrigger) error {
	if !p.TryBeginClose() {
		return executor.ErrAlreadyClosing
	}
	defer p.EndClose()
	time.Sleep(30 * time.Millisecond)
	p.ApplyClose(trigger.TerminalStatus(), c.realizedSol, c.realizedPct, time.Now(), "tx-slow")
	return nil
}

func TestSlowCloseNotClobberedByTicks(t *testing.T) {
	quotes := &quoteTable{}
	closer := &slowCloser{realizedSol: decimal.NewFromFloat(-0.036), realizedPct: -18}
	book := NewBook()
	m := NewMonitor(book, quotes, fixedPresets{preset: monitorPreset()}, closer, noopStore{}, nil)

	p := newOpenPosition("1", "mintA")
	book.Add(p)
	quotes.set("mintA", valueFor(-20))

	// Ticks keep marking and re-dispatching while the close runs.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !p.CurrentStatus().IsTerminal() {
		m.Tick(context.Background())
		time.Sleep(2 * time.Millisecond)
	}
	require.True(t, p.CurrentStatus().IsTerminal(), "close never settled")

	// The realized outcome is frozen: late marks are ignored and the
	// recorded values are the swap's, not the monitor's.
	assert.False(t, p.MarkToQuote(decimal.NewFromFloat(9), 9))
	sol, pct, _ := p.Pnl()
	assert.True(t, decimal.NewFromFloat(-0.036).Equal(sol))
	assert.InDelta(t, -18.0, pct, 0.001)
}
