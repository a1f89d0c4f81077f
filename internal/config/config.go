package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Price     PriceConfig     `yaml:"price"`
	Trading   TradingConfig   `yaml:"trading"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Storage   StorageConfig   `yaml:"storage"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	AI        AIConfig        `yaml:"ai"`
	Web       WebConfig       `yaml:"web"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type PriceConfig struct {
	Symbol         string       `yaml:"symbol"`
	CoinGeckoID    string       `yaml:"coingecko_id"`
	BinanceURL     string       `yaml:"binance_url"`
	CoinGeckoURL   string       `yaml:"coingecko_url"`
	TimeoutSeconds int          `yaml:"timeout_seconds"`
	CacheTTL       string       `yaml:"cache_ttl"`
	Stream         StreamConfig `yaml:"stream"`
}

type StreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	MaxAge  string `yaml:"max_age"`
}

type TradingConfig struct {
	DefaultPositionSize       float64 `yaml:"default_position_size"`
	StartingBalance           float64 `yaml:"starting_balance"`
	InvalidateOnPreEntrySLHit bool    `yaml:"invalidate_on_pre_entry_sl_hit"`
	ExitAtLastTakeProfit      bool    `yaml:"exit_at_last_take_profit"`
}

type SchedulerConfig struct {
	Interval string `yaml:"interval"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"` // sqlite or postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type AIConfig struct {
	Enabled        bool   `yaml:"enabled"`
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Interval       string `yaml:"interval"`
	MinConfidence  int    `yaml:"min_confidence"`
}

type WebConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Price.Symbol == "" {
		cfg.Price.Symbol = "ETHUSDT"
	}
	if cfg.Price.CoinGeckoID == "" {
		cfg.Price.CoinGeckoID = "ethereum"
	}
	if cfg.Price.BinanceURL == "" {
		cfg.Price.BinanceURL = "https://api.binance.com"
	}
	if cfg.Price.CoinGeckoURL == "" {
		cfg.Price.CoinGeckoURL = "https://api.coingecko.com"
	}
	if cfg.Price.TimeoutSeconds == 0 {
		cfg.Price.TimeoutSeconds = 5
	}
	if cfg.Price.CacheTTL == "" {
		cfg.Price.CacheTTL = "60s"
	}
	if cfg.Price.Stream.URL == "" {
		cfg.Price.Stream.URL = "wss://stream.binance.com:9443/ws"
	}
	if cfg.Price.Stream.MaxAge == "" {
		cfg.Price.Stream.MaxAge = "10s"
	}
	if cfg.Trading.DefaultPositionSize == 0 {
		cfg.Trading.DefaultPositionSize = 1000
	}
	if cfg.Trading.StartingBalance == 0 {
		cfg.Trading.StartingBalance = 1000
	}
	if cfg.Scheduler.Interval == "" {
		cfg.Scheduler.Interval = "1m"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/paper-trader.db"
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://api.deepseek.com/v1"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "deepseek-chat"
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 120
	}
	if cfg.AI.Interval == "" {
		cfg.AI.Interval = "4h"
	}
	if cfg.AI.MinConfidence == 0 {
		cfg.AI.MinConfidence = 70
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"price.cache_ttl":      c.Price.CacheTTL,
		"price.stream.max_age": c.Price.Stream.MaxAge,
		"scheduler.interval":   c.Scheduler.Interval,
		"ai.interval":          c.AI.Interval,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", name, v)
		}
	}
	if c.Price.TimeoutSeconds < 0 {
		return fmt.Errorf("price.timeout_seconds must not be negative")
	}
	if c.Trading.DefaultPositionSize < 0 {
		return fmt.Errorf("trading.default_position_size must not be negative")
	}
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required when storage.driver is postgres")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.AI.Enabled && c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required when ai is enabled")
	}
	return nil
}

func (c *Config) PriceTimeout() time.Duration {
	return time.Duration(c.Price.TimeoutSeconds) * time.Second
}

func (c *Config) PriceCacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.Price.CacheTTL)
	return d
}

func (c *Config) StreamMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.Price.Stream.MaxAge)
	return d
}

func (c *Config) SyncInterval() time.Duration {
	d, _ := time.ParseDuration(c.Scheduler.Interval)
	return d
}

func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AI.TimeoutSeconds) * time.Second
}

func (c *Config) AIInterval() time.Duration {
	d, _ := time.ParseDuration(c.AI.Interval)
	return d
}
