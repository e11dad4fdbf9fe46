package filter

import (
	"testing"
	"time"

	"sniperd/internal/types"

	"github.com/stretchr/testify/assert"
)

func memePreset() types.StrategyPreset {
	return types.StrategyPreset{
		ID:               "meme",
		Name:             "Meme",
		AssetClass:       types.ClassMemecoin,
		MinLiquidityUSD:  10000,
		MinMomentum1hPct: 5,
		MinAgeMinutes:    10,
		MaxTokenAgeHours: 24,
		MinVolLiqRatio:   0.5,
		MinScore:         60,
		StopLossPct:      15,
		TakeProfitPct:    30,
	}
}

func passingItem() types.FeedItem {
	return types.FeedItem{
		Mint:             "So11111111111111111111111111111111111111112",
		Symbol:           "TEST",
		AssetClass:       types.ClassMemecoin,
		LiquidityUSD:     50000,
		PriceChange1hPct: 12,
		Volume24hUSD:     80000,
		Buys:             40,
		Sells:            25,
		Score:            75,
		AgeMinutes:       90,
		ObservedAt:       time.Now(),
	}
}

func TestEvaluatePassesAllGates(t *testing.T) {
	v := Evaluate(passingItem(), memePreset())
	assert.True(t, v.PassesAll)
	assert.Empty(t, v.RejectReason)
}

func TestEvaluateRejectReasonNamesFirstFailingGate(t *testing.T) {
	item := passingItem()
	item.LiquidityUSD = 500
	item.Volume24hUSD = 0

	v := Evaluate(item, memePreset())
	assert.False(t, v.PassesAll)
	assert.Contains(t, v.RejectReason, "liquidity")
	assert.Contains(t, v.RejectReason, "need")
}

func TestNoiseFloorExemptsBuySellGate(t *testing.T) {
	item := passingItem()
	// 5 txns with a ratio of 4.0, far outside the band.
	item.Buys = 4
	item.Sells = 1

	v := Evaluate(item, memePreset())
	assert.True(t, v.PassesAll)
	for _, c := range v.Checks {
		if c.Name == "buy_sell_ratio" {
			assert.True(t, c.Skipped)
		}
	}
}

func TestBuySellGateFailsOutsideBand(t *testing.T) {
	item := passingItem()
	item.Buys = 60
	item.Sells = 10 // ratio 6.0 with plenty of signal

	v := Evaluate(item, memePreset())
	assert.False(t, v.PassesAll)
	assert.Contains(t, v.RejectReason, "buy_sell_ratio")
}

func TestSyntheticSkipsLiquidityGates(t *testing.T) {
	preset := memePreset()
	preset.AssetClass = types.ClassSynthetic

	item := passingItem()
	item.AssetClass = types.ClassSynthetic
	item.LiquidityUSD = 0
	item.Volume24hUSD = 0
	item.PriceChange1hPct = 12

	v := Evaluate(item, preset)
	assert.True(t, v.PassesAll)
}

func TestMinAgeGateRejectsFreshTokens(t *testing.T) {
	item := passingItem()
	item.AgeMinutes = 3

	v := Evaluate(item, memePreset())
	assert.False(t, v.PassesAll)
	assert.Contains(t, v.RejectReason, "min_age")
}

func TestMaxAgeGateRejectsStaleTokens(t *testing.T) {
	item := passingItem()
	item.AgeMinutes = 60 * 48

	v := Evaluate(item, memePreset())
	assert.False(t, v.PassesAll)
	assert.Contains(t, v.RejectReason, "max_age")
}

func TestScoreGateDisabledWhenZero(t *testing.T) {
	preset := memePreset()
	preset.MinScore = 0

	item := passingItem()
	item.Score = 0

	v := Evaluate(item, preset)
	assert.True(t, v.PassesAll)
}
