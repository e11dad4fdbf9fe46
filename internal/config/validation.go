package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.WrGate.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Store.DBPath) == "" {
		return fmt.Errorf("store.db_path is required")
	}
	return nil
}

func (w *WrGateConfig) validate() error {
	if w.PrimaryPct <= 0 || w.PrimaryPct > 100 {
		return fmt.Errorf("wr_gate.primary_pct must be in (0, 100], got %v", w.PrimaryPct)
	}
	if w.FallbackPct <= 0 || w.FallbackPct > 100 {
		return fmt.Errorf("wr_gate.fallback_pct must be in (0, 100], got %v", w.FallbackPct)
	}
	if w.FallbackPct > w.PrimaryPct {
		return fmt.Errorf("wr_gate.fallback_pct (%v) must not exceed primary_pct (%v)", w.FallbackPct, w.PrimaryPct)
	}
	if w.MinTrades <= 0 {
		return fmt.Errorf("wr_gate.min_trades must be positive, got %d", w.MinTrades)
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if t.SizeSol <= 0 {
		return fmt.Errorf("trading.size_sol must be positive, got %v", t.SizeSol)
	}
	if t.MonitorIntervalSeconds <= 0 {
		return fmt.Errorf("trading.monitor_interval_seconds must be positive, got %d", t.MonitorIntervalSeconds)
	}
	if len(t.SlippageLadderBps) == 0 {
		return fmt.Errorf("trading.slippage_ladder_bps must not be empty")
	}
	prev := 0
	for _, bps := range t.SlippageLadderBps {
		if bps <= prev {
			return fmt.Errorf("trading.slippage_ladder_bps must be strictly increasing, got %v", t.SlippageLadderBps)
		}
		prev = bps
	}
	if t.SignTimeoutSeconds <= 0 {
		return fmt.Errorf("trading.sign_timeout_seconds must be positive, got %d", t.SignTimeoutSeconds)
	}
	return nil
}

func (r *RiskConfig) validate() error {
	for name, b := range map[string]BreakerLimitsConfig{"risk.class": r.Class, "risk.global": r.Global} {
		if b.MaxConsecutiveLosses <= 0 {
			return fmt.Errorf("%s.max_consecutive_losses must be positive, got %d", name, b.MaxConsecutiveLosses)
		}
		if b.MaxDailyLossSol <= 0 {
			return fmt.Errorf("%s.max_daily_loss_sol must be positive, got %v", name, b.MaxDailyLossSol)
		}
		if b.CooldownMinutes <= 0 {
			return fmt.Errorf("%s.cooldown_minutes must be positive, got %d", name, b.CooldownMinutes)
		}
	}
	if r.FeeBufferSol < 0 {
		return fmt.Errorf("risk.fee_buffer_sol must not be negative, got %v", r.FeeBufferSol)
	}
	return nil
}
