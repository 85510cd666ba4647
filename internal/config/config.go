// Package config exposes strongly typed application configuration structs
// loaded from YAML. The configuration is loaded once at startup and treated
// as immutable by the trading core.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment,
// metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Exchange describes market-data and venue connectivity.
type Exchange struct {
	Provider  string   `yaml:"provider"` // stub | binance | csv
	Symbols   []string `yaml:"symbols"`
	Interval  string   `yaml:"interval"`
	Preload   int      `yaml:"preload_candles"`
	CSVDir    string   `yaml:"csv_dir"`
	APIKey    string   `yaml:"api_key"`
	APISecret string   `yaml:"api_secret"`
	Testnet   bool     `yaml:"testnet"`
}

// Strategy specifies which signal generator is active and its thresholds.
type Strategy struct {
	Mode             string  `yaml:"mode"`
	RSIPeriod        int     `yaml:"rsi_period"`
	RSIOversold      float64 `yaml:"rsi_oversold"`
	RSIOverbought    float64 `yaml:"rsi_overbought"`
	VolumePeriod     int     `yaml:"volume_period"`
	VolumeMultiplier float64 `yaml:"volume_multiplier"`
	ConfirmationBars int     `yaml:"confirmation_bars"`
}

// Risk encodes sizing and the consecutive-loss circuit breaker.
type Risk struct {
	RiskPerTrade         float64 `yaml:"risk_per_trade"`
	Leverage             int     `yaml:"leverage"`
	TakeProfit           float64 `yaml:"take_profit"`
	StopLoss             float64 `yaml:"stop_loss"`
	TrailingTrigger      float64 `yaml:"trailing_trigger"`
	TrailingDistance     float64 `yaml:"trailing_distance"`
	CommissionRate       float64 `yaml:"commission_rate"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	PauseHours           float64 `yaml:"pause_hours"`
	Scope                string  `yaml:"scope"` // account | symbol
}

// Paper captures the simulated account settings used outside live mode.
type Paper struct {
	StartingCash float64 `yaml:"starting_cash"`
	TradesPath   string  `yaml:"trades_path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Exchange Exchange `yaml:"exchange"`
	Strategy Strategy `yaml:"strategy"`
	Risk     Risk     `yaml:"risk"`
	Paper    Paper    `yaml:"paper"`
}

// Load reads a YAML file from disk and hydrates a Config struct. Credentials
// present in the environment override the file so secrets stay out of YAML.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if key := os.Getenv("BINANCE_API_KEY"); key != "" {
		config.Exchange.APIKey = key
	}
	if secret := os.Getenv("BINANCE_API_SECRET"); secret != "" {
		config.Exchange.APISecret = secret
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
