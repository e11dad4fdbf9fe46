// Package app wires configuration into the running engine: catalog, gate
// session, risk state, execution, monitoring, the feed consumer, and the
// HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sniperd/internal/agent"
	"sniperd/internal/backtest"
	"sniperd/internal/catalog"
	sncfg "sniperd/internal/config"
	"sniperd/internal/gateway/feed"
	"sniperd/internal/gateway/notifier"
	"sniperd/internal/logger"
	"sniperd/internal/market"
	"sniperd/internal/risk"
	"sniperd/internal/scheduler"
	"sniperd/internal/store/gormstore"
	livehttp "sniperd/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

const snapshotInterval = 30 * time.Second

// App holds every long-running component and orchestrates their lifecycle.
type App struct {
	cfg       *sncfg.Config
	catalog   *catalog.Catalog
	metas     *backtest.MetaStore
	store     *gormstore.GormStore
	budget    *risk.Budget
	breakers  *risk.BreakerRegistry
	signers   *risk.SignerSession
	book      *agent.Book
	monitor   *agent.Monitor
	engine    *agent.Engine
	feed      *feed.Client
	reference *market.ReferencePrice
	notifier  *notifier.Telegram
	liveHTTP  *livehttp.Server

	Summary *StartupSummary
}

// NewApp builds the application from config without starting it.
func NewApp(cfg *sncfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts every component and blocks until ctx ends or a component
// fails. State snapshots and the session summary run regardless of how the
// run terminates.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	startedAt := time.Now()
	defer a.shutdown(startedAt)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.liveHTTP.Start(ctx); err != nil {
			return fmt.Errorf("live http server error: %w", err)
		}
		return nil
	})

	if a.feed != nil {
		group.Go(func() error {
			return ignoreCanceled(a.feed.Run(ctx))
		})
		group.Go(func() error {
			return ignoreCanceled(a.engine.Run(ctx, a.feed.Items()))
		})
	}

	group.Go(func() error {
		tick := scheduler.NewIntervalScheduler(ctx, "monitor",
			time.Duration(a.cfg.Trading.MonitorIntervalSeconds)*time.Second)
		tick.RunImmediately = true
		tick.Start(a.monitor.Tick)
		return nil
	})

	if a.cfg.Backtest.BaseURL != "" {
		group.Go(func() error {
			refresh := scheduler.NewIntervalScheduler(ctx, "backtest-refresh",
				time.Duration(a.cfg.Backtest.RefreshIntervalMinutes)*time.Minute)
			refresh.Start(func(ctx context.Context) {
				if err := a.metas.Refresh(ctx); err != nil {
					logger.Warnf("App: backtest refresh failed, keeping previous snapshot: %v", err)
				}
			})
			return nil
		})
	}

	group.Go(func() error {
		return ignoreCanceled(a.reference.Run(ctx))
	})

	group.Go(func() error {
		notified := make(map[string]bool)
		snap := scheduler.NewIntervalScheduler(ctx, "state-snapshot", snapshotInterval)
		snap.Start(func(ctx context.Context) {
			a.persistState(ctx)
			a.notifyTrippedBreakers(notified)
		})
		return nil
	})

	return group.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// persistState snapshots budget and breaker state so a restart resumes
// where the process left off.
func (a *App) persistState(ctx context.Context) {
	if err := a.store.SaveBudget(ctx, a.budget.View()); err != nil {
		logger.Warnf("App: persisting budget state failed: %v", err)
	}
	states := a.breakers.Snapshot()
	records := make([]gormstore.BreakerRecord, 0, len(states))
	for _, s := range states {
		records = append(records, gormstore.BreakerRecord{
			Scope:             s.Scope,
			ConsecutiveLosses: s.ConsecutiveLosses,
			DailyLossSol:      s.DailyLossSol,
			Tripped:           s.Tripped,
			Reason:            s.Reason,
			CooldownUntil:     s.CooldownUntil,
			Day:               s.Day,
		})
	}
	if err := a.store.SaveBreakers(ctx, records); err != nil {
		logger.Warnf("App: persisting breaker state failed: %v", err)
	}
}

// notifyTrippedBreakers sends one alert per trip; the entry clears when the
// breaker recovers so the next trip alerts again.
func (a *App) notifyTrippedBreakers(notified map[string]bool) {
	for _, s := range a.breakers.Snapshot() {
		if s.Tripped && !notified[s.Scope] {
			notified[s.Scope] = true
			a.notifier.BreakerTripped(s.Scope, s.Reason, s.CooldownUntil)
			continue
		}
		if !s.Tripped {
			delete(notified, s.Scope)
		}
	}
}

func (a *App) shutdown(startedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.persistState(ctx)
	reportSession(ctx, a.store, a.notifier, startedAt)
	a.catalog.Close()
	if err := a.store.Close(); err != nil {
		logger.Warnf("App: closing store failed: %v", err)
	}
	logger.Infof("App: shutdown complete")
}
