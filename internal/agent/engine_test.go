package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"sniperd/internal/risk"
	"sniperd/internal/types"
	"sniperd/internal/wrgate"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingOpener struct {
	mu     sync.Mutex
	opened []types.FeedItem
	err    error
}

func (o *recordingOpener) OpenTrade(_ context.Context, item types.FeedItem, preset types.StrategyPreset, sizeSol decimal.Decimal) (*types.Position, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	o.opened = append(o.opened, item)
	return &types.Position{
		ID:          "pos-" + item.Symbol,
		Mint:        item.Mint,
		Symbol:      item.Symbol,
		AssetClass:  item.AssetClass,
		PresetID:    preset.ID,
		Status:      types.StatusOpen,
		SolInvested: sizeSol,
		EntryTime:   time.Now(),
	}, nil
}

func (o *recordingOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

type presetList struct{ presets []types.StrategyPreset }

func (l presetList) List(class types.AssetClass) []types.StrategyPreset {
	out := make([]types.StrategyPreset, 0, len(l.presets))
	for _, p := range l.presets {
		if p.AssetClass == class {
			out = append(out, p)
		}
	}
	return out
}

func (l presetList) Get(id string) (types.StrategyPreset, bool) {
	for _, p := range l.presets {
		if p.ID == id {
			return p, true
		}
	}
	return types.StrategyPreset{}, false
}

type metaMap map[string]types.BacktestMeta

func (m metaMap) Get(id string) (types.BacktestMeta, bool) {
	meta, ok := m[id]
	return meta, ok
}

func engineSession(withMeta bool) *wrgate.Session {
	preset := types.StrategyPreset{
		ID:               "meme-1",
		Name:             "Meme",
		AssetClass:       types.ClassMemecoin,
		MinLiquidityUSD:  10000,
		MinMomentum1hPct: 5,
		StopLossPct:      15,
		TakeProfitPct:    30,
	}
	metas := metaMap{}
	if withMeta {
		metas["meme-1"] = types.BacktestMeta{
			PresetID:          "meme-1",
			WinRateLower95Pct: 75,
			Trades:            2000,
			NetPnlPct:         12,
			Backtested:        true,
		}
	}
	return wrgate.NewSession(presetList{presets: []types.StrategyPreset{preset}}, metas,
		wrgate.Config{PrimaryPct: 70, FallbackPct: 50, MinTrades: 1000})
}

func engineBreakers() *risk.BreakerRegistry {
	return risk.NewBreakerRegistry(
		risk.BreakerConfig{MaxConsecutiveLosses: 2, MaxDailyLossSol: decimal.NewFromFloat(1), CooldownMinutes: 30},
		risk.BreakerConfig{MaxConsecutiveLosses: 10, MaxDailyLossSol: decimal.NewFromFloat(10), CooldownMinutes: 60},
	)
}

func goodItem() types.FeedItem {
	return types.FeedItem{
		Mint:             "MintAAA1111111111111111111111111111111111111",
		Symbol:           "AAA",
		AssetClass:       types.ClassMemecoin,
		LiquidityUSD:     50000,
		PriceChange1hPct: 9,
		Volume24hUSD:     60000,
		Buys:             30,
		Sells:            20,
		AgeMinutes:       60,
		ObservedAt:       time.Now(),
	}
}

func TestEngineOpensOnPassingItem(t *testing.T) {
	opener := &recordingOpener{}
	book := NewBook()
	e := NewEngine(book, engineSession(true), engineBreakers(), opener, decimal.NewFromFloat(0.1))

	e.handleItem(context.Background(), goodItem())

	require.Equal(t, 1, opener.count())
	assert.True(t, book.HasOpenMint(goodItem().Mint))
}

func TestEngineSkipsWithoutEligibleStrategy(t *testing.T) {
	opener := &recordingOpener{}
	e := NewEngine(NewBook(), engineSession(false), engineBreakers(), opener, decimal.NewFromFloat(0.1))

	e.handleItem(context.Background(), goodItem())
	assert.Zero(t, opener.count())
}

func TestEngineSkipsFilterReject(t *testing.T) {
	opener := &recordingOpener{}
	e := NewEngine(NewBook(), engineSession(true), engineBreakers(), opener, decimal.NewFromFloat(0.1))

	item := goodItem()
	item.LiquidityUSD = 100
	e.handleItem(context.Background(), item)
	assert.Zero(t, opener.count())
}

func TestEngineSkipsWhenBreakerTripped(t *testing.T) {
	opener := &recordingOpener{}
	breakers := engineBreakers()
	breakers.RecordClose(types.ClassMemecoin, decimal.NewFromFloat(-0.1))
	breakers.RecordClose(types.ClassMemecoin, decimal.NewFromFloat(-0.1))
	e := NewEngine(NewBook(), engineSession(true), breakers, opener, decimal.NewFromFloat(0.1))

	e.handleItem(context.Background(), goodItem())
	assert.Zero(t, opener.count())
}

func TestEngineDeduplicatesMints(t *testing.T) {
	opener := &recordingOpener{}
	book := NewBook()
	e := NewEngine(book, engineSession(true), engineBreakers(), opener, decimal.NewFromFloat(0.1))

	e.handleItem(context.Background(), goodItem())
	e.handleItem(context.Background(), goodItem())
	assert.Equal(t, 1, opener.count())
}

func TestEngineRunDrainsChannel(t *testing.T) {
	opener := &recordingOpener{}
	e := NewEngine(NewBook(), engineSession(true), engineBreakers(), opener, decimal.NewFromFloat(0.1))

	items := make(chan types.FeedItem, 1)
	items <- goodItem()
	close(items)

	require.NoError(t, e.Run(context.Background(), items))
	assert.Equal(t, 1, opener.count())
}
