package app

import (
	"context"
	"fmt"
	"time"

	"sniperd/internal/agent"
	"sniperd/internal/backtest"
	"sniperd/internal/catalog"
	sncfg "sniperd/internal/config"
	"sniperd/internal/executor"
	"sniperd/internal/gateway/feed"
	"sniperd/internal/gateway/jupiter"
	"sniperd/internal/gateway/notifier"
	"sniperd/internal/gateway/solanarpc"
	"sniperd/internal/logger"
	"sniperd/internal/market"
	"sniperd/internal/risk"
	"sniperd/internal/signer"
	"sniperd/internal/store/gormstore"
	livehttp "sniperd/internal/transport/http/live"
	"sniperd/internal/wrgate"

	"github.com/shopspring/decimal"
)

// AppBuilder assembles the engine from configuration. The fn hooks exist
// so tests can substitute gateways without a network.
type AppBuilder struct {
	cfg *sncfg.Config

	quoteServiceFn func(*sncfg.Config) executor.QuoteService
	balanceFn      func(*sncfg.Config) risk.BalanceChecker
	storeFn        func(*sncfg.Config) (*gormstore.GormStore, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *sncfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:            cfg,
		quoteServiceFn: buildQuoteService,
		balanceFn:      buildBalanceChecker,
		storeFn:        buildStore,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func buildQuoteService(cfg *sncfg.Config) executor.QuoteService {
	return jupiter.NewClient(cfg.Jupiter.BaseURL)
}

func buildBalanceChecker(cfg *sncfg.Config) risk.BalanceChecker {
	return solanarpc.NewClient(cfg.RPC.Endpoint)
}

func buildStore(cfg *sncfg.Config) (*gormstore.GormStore, error) {
	return gormstore.NewGormStore(cfg.Store.DBPath)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	cat, err := catalog.New(cfg.Presets.Path)
	if err != nil {
		return nil, fmt.Errorf("loading preset catalog failed: %w", err)
	}
	if err := cat.Watch(); err != nil {
		logger.Warnf("App: preset hot-reload unavailable: %v", err)
	}
	logger.Infof("✓ loaded %d strategy presets", len(cat.All()))

	metas := b.buildMetaStore(ctx, cfg)

	session := wrgate.NewSession(cat, metas, wrgate.Config{
		PrimaryPct:  cfg.WrGate.PrimaryPct,
		FallbackPct: cfg.WrGate.FallbackPct,
		MinTrades:   cfg.WrGate.MinTrades,
	})

	store, err := b.storeFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening state store failed: %w", err)
	}

	budget := risk.NewBudget()
	breakers := risk.NewBreakerRegistry(breakerConfig(cfg.Risk.Class), breakerConfig(cfg.Risk.Global))
	restoredBudget, err := restoreRiskState(ctx, store, budget, breakers)
	if err != nil {
		store.Close()
		return nil, err
	}

	signerSession := risk.NewSignerSession(budget, b.balanceFn(cfg), decimal.NewFromFloat(cfg.Risk.FeeBufferSol))
	signTimeout := time.Duration(cfg.Trading.SignTimeoutSeconds) * time.Second
	// Headless interactive signing has no approver wired; every interactive
	// sign attempt is denied until autonomous mode is activated.
	selector := signer.NewSelector(signerSession, signer.NewInteractive(nil, nil, signTimeout))

	tg := notifier.NewTelegram(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID)
	if tg.Enabled() {
		logger.Infof("✓ telegram notifications enabled")
	}

	quotes := b.quoteServiceFn(cfg)
	coordinator := executor.NewCoordinator(quotes, store, budget, breakers, selector, tg)
	coordinator.SetSlippageLadder(cfg.Trading.SlippageLadderBps)
	coordinator.SetSignTimeout(signTimeout)

	book := agent.NewBook()
	if err := reconcilePositions(ctx, store, book, budget, restoredBudget); err != nil {
		store.Close()
		return nil, err
	}

	monitor := agent.NewMonitor(book, quotes, cat, coordinator, store, tg)
	engine := agent.NewEngine(book, session, breakers, coordinator, decimal.NewFromFloat(cfg.Trading.SizeSol))

	var feedClient *feed.Client
	if cfg.Feed.WSURL != "" {
		feedClient, err = feed.NewClient(cfg.Feed.WSURL)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("building feed client failed: %w", err)
		}
	} else {
		logger.Warnf("App: feed.ws_url not configured, open path is idle")
	}

	reference := market.NewReferencePrice(time.Duration(cfg.Market.ReferenceIntervalSeconds) * time.Second)

	var keys livehttp.KeySource
	if cfg.Signer.KeypairPath != "" {
		keys = signer.NewFileKeySource(cfg.Signer.KeypairPath)
	} else {
		logger.Warnf("App: signer.keypair_path not configured, autonomous activation unavailable")
	}

	server, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr: cfg.App.HTTPAddr,
		Router: &livehttp.Router{
			Book:      book,
			Session:   session,
			Breakers:  breakers,
			Budget:    budget,
			Signers:   signerSession,
			Closer:    coordinator,
			Store:     store,
			Reference: reference,
			Keys:      keys,
		},
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &App{
		cfg:       cfg,
		catalog:   cat,
		metas:     metas,
		store:     store,
		budget:    budget,
		breakers:  breakers,
		signers:   signerSession,
		book:      book,
		monitor:   monitor,
		engine:    engine,
		feed:      feedClient,
		reference: reference,
		notifier:  tg,
		liveHTTP:  server,
		Summary: &StartupSummary{
			Env:           cfg.App.Env,
			HTTPAddr:      server.Addr(),
			Presets:       len(cat.All()),
			OpenPositions: len(book.Open()),
			SignerMode:    string(signerSession.Mode()),
		},
	}, nil
}

func (b *AppBuilder) buildMetaStore(ctx context.Context, cfg *sncfg.Config) *backtest.MetaStore {
	var provider backtest.Provider
	if cfg.Backtest.BaseURL != "" {
		provider = backtest.NewHTTPProvider(cfg.Backtest.BaseURL)
	}
	metas := backtest.NewMetaStore(provider)
	if provider != nil {
		if err := metas.Refresh(ctx); err != nil {
			logger.Warnf("App: initial backtest refresh failed, gate selects nothing until data arrives: %v", err)
		}
	} else {
		logger.Warnf("App: backtest.base_url not configured, auto-trading stays disabled")
	}
	return metas
}

func breakerConfig(c sncfg.BreakerLimitsConfig) risk.BreakerConfig {
	return risk.BreakerConfig{
		MaxConsecutiveLosses: c.MaxConsecutiveLosses,
		MaxDailyLossSol:      decimal.NewFromFloat(c.MaxDailyLossSol),
		CooldownMinutes:      c.CooldownMinutes,
	}
}

// restoreRiskState loads persisted budget and breaker state. Returns whether
// a budget row existed; position reconciliation needs to know.
func restoreRiskState(ctx context.Context, store *gormstore.GormStore, budget *risk.Budget, breakers *risk.BreakerRegistry) (bool, error) {
	var view risk.BudgetView
	restored, err := store.LoadBudget(ctx, &view)
	if err != nil {
		return false, fmt.Errorf("loading budget state failed: %w", err)
	}
	if restored {
		budget.Restore(view)
		logger.Infof("✓ restored budget state (spent %s of %s SOL)", view.SpentSol, view.BudgetSol)
	}

	records, err := store.LoadBreakers(ctx)
	if err != nil {
		return restored, fmt.Errorf("loading breaker state failed: %w", err)
	}
	if len(records) > 0 {
		states := make([]risk.BreakerState, 0, len(records))
		for _, r := range records {
			states = append(states, risk.BreakerState{
				Scope:             r.Scope,
				ConsecutiveLosses: r.ConsecutiveLosses,
				DailyLossSol:      r.DailyLossSol,
				Tripped:           r.Tripped,
				Reason:            r.Reason,
				CooldownUntil:     r.CooldownUntil,
				Day:               r.Day,
			})
		}
		breakers.Restore(states)
		logger.Infof("✓ restored %d breaker scopes", len(states))
	}
	return restored, nil
}

// reconcilePositions rebuilds the in-memory book from the store. When no
// budget snapshot existed, restored opens are re-registered so accounting
// still balances.
func reconcilePositions(ctx context.Context, store *gormstore.GormStore, book *agent.Book, budget *risk.Budget, budgetRestored bool) error {
	open, err := store.ListOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("loading open positions failed: %w", err)
	}
	book.Load(open)
	if !budgetRestored {
		for _, p := range open {
			budget.RegisterOpen(p.SolInvested)
		}
	}
	if len(open) > 0 {
		logger.Infof("✓ restored %d open positions", len(open))
	}
	return nil
}

func WithQuoteService(fn func(*sncfg.Config) executor.QuoteService) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.quoteServiceFn = fn
		}
	}
}

func WithBalanceChecker(fn func(*sncfg.Config) risk.BalanceChecker) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.balanceFn = fn
		}
	}
}

func WithStore(fn func(*sncfg.Config) (*gormstore.GormStore, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.storeFn = fn
		}
	}
}
