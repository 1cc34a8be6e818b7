package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"coinsignal/internal/indicator"
	"coinsignal/internal/strategy"
)

// Config holds all application configuration. Values come from environment
// variables (optionally seeded from a .env file); indicator parameters and
// signal thresholds may be overridden by a YAML file named in CONFIG_FILE.
type Config struct {
	// Service
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	CacheTTL      time.Duration

	// Kafka (empty brokers disables the producer)
	KafkaBrokers string
	KafkaTopic   string

	// Admin ingest guard (empty disables TOTP checks)
	AdminTOTPSecret string

	// Tracker + rescan
	WindowSize int
	RescanCron string

	// Alerts
	WebhookURL     string
	TelegramToken  string
	TelegramChatID string

	ConfigFile string

	Indicators indicator.Params
	Thresholds strategy.Thresholds
}

// fileOverlay is the YAML document accepted through CONFIG_FILE.
type fileOverlay struct {
	Indicators *indicator.Params    `yaml:"indicators"`
	Thresholds *strategy.Thresholds `yaml:"thresholds"`
}

// Load reads .env (if present), environment variables with defaults, then the
// optional YAML overlay, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("config: .env not loaded", "error", err)
	}

	cfg := &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/prices.db"),
		CacheTTL:      getDuration("CACHE_TTL", 5*time.Minute),

		KafkaBrokers: getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "coin-signals"),

		AdminTOTPSecret: getEnv("ADMIN_TOTP_SECRET", ""),

		WindowSize: getInt("WINDOW_SIZE", 200),
		RescanCron: getEnv("RESCAN_CRON", "*/5 * * * *"),

		WebhookURL:     getEnv("ALERT_WEBHOOK_URL", ""),
		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),

		ConfigFile: getEnv("CONFIG_FILE", ""),

		Indicators: indicator.DefaultParams(),
		Thresholds: strategy.DefaultThresholds(),
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var ov fileOverlay
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if ov.Indicators != nil {
		c.Indicators = mergeParams(c.Indicators, *ov.Indicators)
	}
	if ov.Thresholds != nil {
		c.Thresholds = mergeThresholds(c.Thresholds, *ov.Thresholds)
	}
	return nil
}

// Validate checks indicator params, thresholds and the tracker window.
func (c *Config) Validate() error {
	if err := c.Indicators.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if min := c.Indicators.MinPoints(); c.WindowSize < min {
		return fmt.Errorf("config: WINDOW_SIZE=%d below the %d points the indicators need", c.WindowSize, min)
	}
	return nil
}

// Brokers splits KafkaBrokers on commas.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// mergeParams keeps base values for fields left zero in the overlay.
func mergeParams(base, ov indicator.Params) indicator.Params {
	if ov.RSIPeriod != 0 {
		base.RSIPeriod = ov.RSIPeriod
	}
	if ov.MACDFast != 0 {
		base.MACDFast = ov.MACDFast
	}
	if ov.MACDSlow != 0 {
		base.MACDSlow = ov.MACDSlow
	}
	if ov.MACDSignal != 0 {
		base.MACDSignal = ov.MACDSignal
	}
	if ov.BollingerPeriod != 0 {
		base.BollingerPeriod = ov.BollingerPeriod
	}
	if ov.BollingerK != 0 {
		base.BollingerK = ov.BollingerK
	}
	return base
}

func mergeThresholds(base, ov strategy.Thresholds) strategy.Thresholds {
	if ov.RSIOversold != 0 {
		base.RSIOversold = ov.RSIOversold
	}
	if ov.RSIOverbought != 0 {
		base.RSIOverbought = ov.RSIOverbought
	}
	if ov.MACDLookback != 0 {
		base.MACDLookback = ov.MACDLookback
	}
	return base
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: invalid integer, using default", "key", key, "value", v)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config: invalid duration, using default", "key", key, "value", v)
		return fallback
	}
	return d
}
