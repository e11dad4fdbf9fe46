package config

import "github.com/spf13/viper"

const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppHTTPAddr  = ":9984"
	defaultAppLogPath   = "/data/logs/sniperd.log"
	defaultStoreDBPath  = "/data/db/sniperd.db"
	defaultJupiterURL   = "https://quote-api.jup.ag"
	defaultRPCEndpoint  = "https://api.mainnet-beta.solana.com"
	defaultPresetsPath  = "configs/presets.yaml"
	defaultMetaRefresh  = 15 // minutes
	defaultRefInterval  = 60 // seconds
	defaultTickInterval = 20 // seconds

	defaultPrimaryPct  = 70.0
	defaultFallbackPct = 50.0
	defaultMinTrades   = 1000

	defaultSizeSol     = 0.1
	defaultSignTimeout = 30 // seconds

	defaultClassMaxLosses   = 3
	defaultClassMaxDailySol = 1.0
	defaultClassCooldown    = 60 // minutes

	defaultGlobalMaxLosses   = 8
	defaultGlobalMaxDailySol = 3.0
	defaultGlobalCooldown    = 120 // minutes

	defaultFeeBufferSol = 0.05
)

func applyDefaults(v *viper.Viper) {
	v.SetDefault("app.env", defaultAppEnv)
	v.SetDefault("app.log_level", defaultAppLogLevel)
	v.SetDefault("app.http_addr", defaultAppHTTPAddr)
	v.SetDefault("app.log_path", defaultAppLogPath)

	v.SetDefault("store.db_path", defaultStoreDBPath)
	v.SetDefault("jupiter.base_url", defaultJupiterURL)
	v.SetDefault("rpc.endpoint", defaultRPCEndpoint)
	v.SetDefault("presets.path", defaultPresetsPath)
	v.SetDefault("backtest.refresh_interval_minutes", defaultMetaRefresh)
	v.SetDefault("market.reference_interval_seconds", defaultRefInterval)

	v.SetDefault("wr_gate.primary_pct", defaultPrimaryPct)
	v.SetDefault("wr_gate.fallback_pct", defaultFallbackPct)
	v.SetDefault("wr_gate.min_trades", defaultMinTrades)

	v.SetDefault("trading.size_sol", defaultSizeSol)
	v.SetDefault("trading.monitor_interval_seconds", defaultTickInterval)
	v.SetDefault("trading.slippage_ladder_bps", []int{100, 250, 500})
	v.SetDefault("trading.sign_timeout_seconds", defaultSignTimeout)

	v.SetDefault("risk.class.max_consecutive_losses", defaultClassMaxLosses)
	v.SetDefault("risk.class.max_daily_loss_sol", defaultClassMaxDailySol)
	v.SetDefault("risk.class.cooldown_minutes", defaultClassCooldown)
	v.SetDefault("risk.global.max_consecutive_losses", defaultGlobalMaxLosses)
	v.SetDefault("risk.global.max_daily_loss_sol", defaultGlobalMaxDailySol)
	v.SetDefault("risk.global.cooldown_minutes", defaultGlobalCooldown)
	v.SetDefault("risk.fee_buffer_sol", defaultFeeBufferSol)
}
