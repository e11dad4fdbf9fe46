package config

// Config is the full engine configuration, loaded from YAML.
type Config struct {
	App      AppConfig      `yaml:"app" mapstructure:"app"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Feed     FeedConfig     `yaml:"feed" mapstructure:"feed"`
	Jupiter  JupiterConfig  `yaml:"jupiter" mapstructure:"jupiter"`
	RPC      RPCConfig      `yaml:"rpc" mapstructure:"rpc"`
	Backtest BacktestConfig `yaml:"backtest" mapstructure:"backtest"`
	Market   MarketConfig   `yaml:"market" mapstructure:"market"`
	WrGate   WrGateConfig   `yaml:"wr_gate" mapstructure:"wr_gate"`
	Presets  PresetsConfig  `yaml:"presets" mapstructure:"presets"`
	Trading  TradingConfig  `yaml:"trading" mapstructure:"trading"`
	Risk     RiskConfig     `yaml:"risk" mapstructure:"risk"`
	Signer   SignerConfig   `yaml:"signer" mapstructure:"signer"`
	Notify   NotifyConfig   `yaml:"notify" mapstructure:"notify"`
}

type AppConfig struct {
	Env      string `yaml:"env" mapstructure:"env"`
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr"`
	LogPath  string `yaml:"log_path" mapstructure:"log_path"`
}

type StoreConfig struct {
	DBPath string `yaml:"db_path" mapstructure:"db_path"`
}

type FeedConfig struct {
	WSURL string `yaml:"ws_url" mapstructure:"ws_url"`
}

type JupiterConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

type RPCConfig struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

type BacktestConfig struct {
	BaseURL                string `yaml:"base_url" mapstructure:"base_url"`
	RefreshIntervalMinutes int    `yaml:"refresh_interval_minutes" mapstructure:"refresh_interval_minutes"`
}

type MarketConfig struct {
	ReferenceIntervalSeconds int `yaml:"reference_interval_seconds" mapstructure:"reference_interval_seconds"`
}

type WrGateConfig struct {
	PrimaryPct  float64 `yaml:"primary_pct" mapstructure:"primary_pct"`
	FallbackPct float64 `yaml:"fallback_pct" mapstructure:"fallback_pct"`
	MinTrades   int     `yaml:"min_trades" mapstructure:"min_trades"`
}

type PresetsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

type TradingConfig struct {
	SizeSol                float64 `yaml:"size_sol" mapstructure:"size_sol"`
	MonitorIntervalSeconds int     `yaml:"monitor_interval_seconds" mapstructure:"monitor_interval_seconds"`
	SlippageLadderBps      []int   `yaml:"slippage_ladder_bps" mapstructure:"slippage_ladder_bps"`
	SignTimeoutSeconds     int     `yaml:"sign_timeout_seconds" mapstructure:"sign_timeout_seconds"`
}

type BreakerLimitsConfig struct {
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses" mapstructure:"max_consecutive_losses"`
	MaxDailyLossSol      float64 `yaml:"max_daily_loss_sol" mapstructure:"max_daily_loss_sol"`
	CooldownMinutes      int     `yaml:"cooldown_minutes" mapstructure:"cooldown_minutes"`
}

type RiskConfig struct {
	Class        BreakerLimitsConfig `yaml:"class" mapstructure:"class"`
	Global       BreakerLimitsConfig `yaml:"global" mapstructure:"global"`
	FeeBufferSol float64             `yaml:"fee_buffer_sol" mapstructure:"fee_buffer_sol"`
}

// SignerConfig locates the delegated autonomous key. The key alone never
// enables trading: activation still requires the expected address and
// explicit limits entered over the API.
type SignerConfig struct {
	KeypairPath string `yaml:"keypair_path" mapstructure:"keypair_path"`
}

type NotifyConfig struct {
	TelegramBotToken string `yaml:"telegram_bot_token" mapstructure:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id" mapstructure:"telegram_chat_id"`
}
