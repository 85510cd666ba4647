package config

import (
	"fmt"
	"strings"
)

// Validate checks every recognized option's range so a misconfigured bot
// refuses to start instead of trading with nonsense thresholds.
func (c *Config) Validate() error {
	if len(c.Exchange.Symbols) == 0 {
		return fmt.Errorf("exchange.symbols must name at least one symbol")
	}
	for _, s := range c.Exchange.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("exchange.symbols contains a blank entry")
		}
	}
	if c.Exchange.Provider == "csv" && c.Exchange.CSVDir == "" {
		return fmt.Errorf("exchange.csv_dir is required for the csv provider")
	}

	s := c.Strategy
	if s.RSIPeriod < 0 || s.VolumePeriod < 0 {
		return fmt.Errorf("strategy periods must not be negative")
	}
	if s.RSIOversold < 0 || s.RSIOversold > 100 {
		return fmt.Errorf("strategy.rsi_oversold must be in [0,100], got %.1f", s.RSIOversold)
	}
	if s.RSIOverbought < 0 || s.RSIOverbought > 100 {
		return fmt.Errorf("strategy.rsi_overbought must be in [0,100], got %.1f", s.RSIOverbought)
	}
	if s.RSIOversold >= s.RSIOverbought {
		return fmt.Errorf("strategy.rsi_oversold (%.1f) must be below rsi_overbought (%.1f)", s.RSIOversold, s.RSIOverbought)
	}
	if s.VolumeMultiplier < 1 {
		return fmt.Errorf("strategy.volume_multiplier must be >= 1, got %.2f", s.VolumeMultiplier)
	}
	if s.ConfirmationBars < 0 {
		return fmt.Errorf("strategy.confirmation_bars must not be negative")
	}

	r := c.Risk
	if r.RiskPerTrade <= 0 || r.RiskPerTrade > 1 {
		return fmt.Errorf("risk.risk_per_trade must be in (0,1], got %.4f", r.RiskPerTrade)
	}
	if r.Leverage < 1 {
		return fmt.Errorf("risk.leverage must be >= 1, got %d", r.Leverage)
	}
	if r.TakeProfit <= 0 {
		return fmt.Errorf("risk.take_profit must be > 0, got %.4f", r.TakeProfit)
	}
	if r.StopLoss <= 0 {
		return fmt.Errorf("risk.stop_loss must be > 0, got %.4f", r.StopLoss)
	}
	if r.TrailingTrigger < 0 || r.TrailingDistance < 0 {
		return fmt.Errorf("risk trailing fractions must not be negative")
	}
	if r.TrailingTrigger > 0 && r.TrailingDistance <= 0 {
		return fmt.Errorf("risk.trailing_distance must be > 0 when trailing is enabled")
	}
	if r.CommissionRate < 0 {
		return fmt.Errorf("risk.commission_rate must not be negative")
	}
	if r.MaxConsecutiveLosses < 1 {
		return fmt.Errorf("risk.max_consecutive_losses must be >= 1, got %d", r.MaxConsecutiveLosses)
	}
	if r.PauseHours < 0 {
		return fmt.Errorf("risk.pause_hours must be >= 0, got %.2f", r.PauseHours)
	}
	switch r.Scope {
	case "", "account", "symbol":
	default:
		return fmt.Errorf("risk.scope must be account or symbol, got %q", r.Scope)
	}

	if c.Paper.StartingCash < 0 {
		return fmt.Errorf("paper.starting_cash must not be negative")
	}
	return nil
}
