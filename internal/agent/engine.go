package agent

import (
	"context"

	"sniperd/internal/filter"
	"sniperd/internal/logger"
	"sniperd/internal/risk"
	"sniperd/internal/types"
	"sniperd/internal/wrgate"

	"github.com/shopspring/decimal"
)

// Opener executes the buy side of a new position.
type Opener interface {
	OpenTrade(ctx context.Context, item types.FeedItem, preset types.StrategyPreset, sizeSol decimal.Decimal) (*types.Position, error)
}

// Engine is the open path: it consumes graduation items and opens a
// position when the strategy gate, candidate filter, circuit breakers,
// and budget all agree.
type Engine struct {
	book     *Book
	session  *wrgate.Session
	breakers *risk.BreakerRegistry
	opener   Opener
	sizeSol  decimal.Decimal
}

func NewEngine(book *Book, session *wrgate.Session, breakers *risk.BreakerRegistry, opener Opener, sizeSol decimal.Decimal) *Engine {
	return &Engine{
		book:     book,
		session:  session,
		breakers: breakers,
		opener:   opener,
		sizeSol:  sizeSol,
	}
}

// Run consumes the feed until ctx ends. Every item is handled in
// isolation; a failure on one never stops the stream.
func (e *Engine) Run(ctx context.Context, items <-chan types.FeedItem) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-items:
			if !ok {
				return nil
			}
			e.handleItem(ctx, item)
		}
	}
}

func (e *Engine) handleItem(ctx context.Context, item types.FeedItem) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Engine: handling %s panicked: %v", item.Symbol, r)
		}
	}()

	if e.book.HasOpenMint(item.Mint) {
		logger.Debugf("Engine: already holding %s, skipping", item.Symbol)
		return
	}

	preset, sel, ok := e.session.ActivePreset(item.AssetClass)
	if !ok {
		logger.Debugf("Engine: no eligible strategy for %s (mode=%s), skipping %s",
			item.AssetClass, sel.Mode, item.Symbol)
		return
	}

	verdict := filter.Evaluate(item, preset)
	if !verdict.PassesAll {
		logger.Infof("Engine: rejected %s: %s", item.Symbol, verdict.RejectReason)
		return
	}

	if allowed, reason := e.breakers.Allowed(item.AssetClass); !allowed {
		logger.Infof("Engine: trading paused for %s: %s", item.AssetClass, reason)
		return
	}

	p, err := e.opener.OpenTrade(ctx, item, preset, e.sizeSol)
	if err != nil {
		logger.Warnf("Engine: open for %s refused: %v", item.Symbol, err)
		return
	}
	e.book.Add(p)
}
