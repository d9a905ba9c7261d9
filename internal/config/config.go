// Package config loads service configuration from the environment. Engine
// settings defined here are only the seed; once running they live in the
// store and change through the API.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/aurumlabs/goldwatch/internal/engine"
)

// Config holds all configuration for the service.
type Config struct {
	// HTTP
	HTTPAddr string

	// Market data provider
	QuoteURL      string
	IndicatorsURL string

	// Database: SQLite path or postgres:// URL
	DatabaseDSN string

	// Redis state mirror (disabled when RedisAddr is empty)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Telegram alerts (disabled when TelegramToken is empty)
	TelegramToken  string
	TelegramChatID int64

	// Mode
	Debug bool

	// Engine seeds
	Settings engine.Settings
	Profile  engine.Profile
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	set := engine.DefaultSettings()
	set.PollIntervalMs = getEnvInt64("POLL_INTERVAL_MS", set.PollIntervalMs)
	set.RequestTimeoutMs = getEnvInt64("REQUEST_TIMEOUT_MS", set.RequestTimeoutMs)
	set.FreshnessCeilingMin = getEnvFloat("FRESHNESS_CEILING_MIN", set.FreshnessCeilingMin)
	set.HistoryRetentionHours = getEnvFloat("HISTORY_RETENTION_HOURS", set.HistoryRetentionHours)
	set.MaxInMemoryPoints = getEnvInt("MAX_IN_MEMORY_POINTS", set.MaxInMemoryPoints)
	set.HorizonMinutes = getEnvFloat("HORIZON_MINUTES", set.HorizonMinutes)
	set.BuyThreshold = getEnvFloat("BUY_THRESHOLD", set.BuyThreshold)
	set.SellThreshold = getEnvFloat("SELL_THRESHOLD", set.SellThreshold)
	set.MinConfidence = getEnvFloat("MIN_CONFIDENCE", set.MinConfidence)
	set.ActionCooldownMin = getEnvFloat("ACTION_COOLDOWN_MIN", set.ActionCooldownMin)
	if err := set.Validate(); err != nil {
		return nil, err
	}

	prof := engine.DefaultProfile()
	prof.CashAmount = getEnvDecimal("PROFILE_CASH", prof.CashAmount)
	prof.GoldGrams = getEnvDecimal("PROFILE_GOLD_GRAMS", prof.GoldGrams)
	prof.AvgBuyPrice = getEnvDecimal("PROFILE_AVG_BUY_PRICE", prof.AvgBuyPrice)
	prof.BuyFeePct = getEnvFloat("PROFILE_BUY_FEE_PCT", prof.BuyFeePct)
	prof.SellFeePct = getEnvFloat("PROFILE_SELL_FEE_PCT", prof.SellFeePct)
	if err := prof.Validate(); err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		QuoteURL:      os.Getenv("GOLD_QUOTE_URL"),
		IndicatorsURL: os.Getenv("GOLD_INDICATORS_URL"),
		DatabaseDSN:   getEnv("DATABASE_DSN", "data/goldwatch.db"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		Debug:         getEnvBool("DEBUG", false),
		Settings:      set,
		Profile:       prof,
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if cfg.QuoteURL == "" {
		return nil, fmt.Errorf("GOLD_QUOTE_URL is required")
	}
	if cfg.IndicatorsURL == "" {
		return nil, fmt.Errorf("GOLD_INDICATORS_URL is required")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
