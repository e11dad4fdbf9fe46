package types

import "time"

// FeedItem is one graduation surfaced by the discovery feed: a token that
// just became tradeable on the venue. Field values arrive precomputed by
// the feed producer; the engine never derives them itself.
type FeedItem struct {
	Mint       string     `json:"mint"`
	Symbol     string     `json:"symbol"`
	AssetClass AssetClass `json:"asset_class"`

	LiquidityUSD     float64 `json:"liquidity_usd"`
	PriceChange1hPct float64 `json:"price_change_1h_pct"`
	Volume24hUSD     float64 `json:"volume_24h_usd"`
	Buys             int     `json:"buys"`
	Sells            int     `json:"sells"`
	Score            float64 `json:"score"`

	PriceSol    float64   `json:"price_sol"`
	GraduatedAt time.Time `json:"graduated_at"`
	AgeMinutes  float64   `json:"age_minutes"`
	ObservedAt  time.Time `json:"observed_at"`
}

// TotalTxns is the transaction count in the sampling window. Ratios
// computed over ten or fewer transactions carry no signal.
func (f FeedItem) TotalTxns() int {
	return f.Buys + f.Sells
}

// BuySellRatio returns buys/sells; a zero sell count yields the buy count
// so callers can still range-check it.
func (f FeedItem) BuySellRatio() float64 {
	if f.Sells == 0 {
		return float64(f.Buys)
	}
	return float64(f.Buys) / float64(f.Sells)
}

// AgeHours converts the feed-reported age.
func (f FeedItem) AgeHours() float64 {
	return f.AgeMinutes / 60
}
