// Package market supplies the SOL/USDT reference price used to express
// SOL-denominated PnL in USD for reports and notifications. The engine's
// decisions never depend on it; a stale reference only degrades display.
package market

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"sniperd/internal/logger"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

const referenceSymbol = "SOLUSDT"

// ReferencePrice polls the spot ticker on a fixed interval and caches the
// latest price.
type ReferencePrice struct {
	client   *binance.Client
	interval time.Duration

	mu        sync.RWMutex
	priceUSD  decimal.Decimal
	updatedAt time.Time
}

func NewReferencePrice(interval time.Duration) *ReferencePrice {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReferencePrice{
		client:   binance.NewClient("", ""),
		interval: interval,
	}
}

// Run polls until ctx ends. Fetch failures keep the last good price.
func (r *ReferencePrice) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if err := r.refresh(ctx); err != nil {
		logger.Warnf("Market: initial reference price fetch failed: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.refresh(ctx); err != nil {
				logger.Warnf("Market: reference price fetch failed: %v", err)
			}
		}
	}
}

func (r *ReferencePrice) refresh(ctx context.Context) error {
	prices, err := r.client.NewListPricesService().Symbol(referenceSymbol).Do(ctx)
	if err != nil {
		return fmt.Errorf("fetching %s failed: %w", referenceSymbol, err)
	}
	if len(prices) == 0 {
		return fmt.Errorf("empty ticker response for %s", referenceSymbol)
	}
	value, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return fmt.Errorf("parsing %s price %q failed: %w", referenceSymbol, prices[0].Price, err)
	}
	r.mu.Lock()
	r.priceUSD = decimal.NewFromFloat(value)
	r.updatedAt = time.Now()
	r.mu.Unlock()
	return nil
}

// SolUSD returns the cached price; ok is false before the first successful
// fetch.
func (r *ReferencePrice) SolUSD() (decimal.Decimal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.priceUSD, !r.updatedAt.IsZero()
}

// ToUSD converts a SOL amount using the cached reference. Returns zero and
// false when no reference is available yet.
func (r *ReferencePrice) ToUSD(sol decimal.Decimal) (decimal.Decimal, bool) {
	price, ok := r.SolUSD()
	if !ok {
		return decimal.Zero, false
	}
	return sol.Mul(price), true
}
