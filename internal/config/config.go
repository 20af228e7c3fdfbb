package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all tunables for the service. Values are loaded from
// environment variables with sensible defaults; nothing here is
// behavior-defining beyond what the engine is constructed with.
type Config struct {
	Port         string
	DatabasePath string
	JWTSecret    string

	QuoteAPIURL string
	SwapAPIURL  string

	// RunSchedule is a cron expression for the engine clock.
	RunSchedule string

	MaxOrdersPerRun       int
	APICallTimeout        time.Duration
	OrderExecutionTimeout time.Duration
	MaxRetryAttempts      int
	RetryBaseDelay        time.Duration
	Concurrency           int
	RunLeaseTTL           time.Duration

	// SupportedTokens maps token symbol to decimal precision,
	// parsed from "SYM:decimals" pairs.
	SupportedTokens map[string]int32
}

const defaultTokens = "ETH:18,WETH:18,USDC:6,USDT:6,DAI:18,WBTC:8,TOWER:18"

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		Port:                  envString("PORT", "8080"),
		DatabasePath:          envString("DATABASE_PATH", "tower.db"),
		JWTSecret:             envString("JWT_SECRET", "tower-secret-key"),
		QuoteAPIURL:           envString("QUOTE_API_URL", "http://localhost:9090"),
		SwapAPIURL:            envString("SWAP_API_URL", "http://localhost:9091"),
		RunSchedule:           envString("RUN_SCHEDULE", "0 * * * *"),
		MaxOrdersPerRun:       envInt("MAX_ORDERS_PER_RUN", 100),
		APICallTimeout:        envDuration("API_CALL_TIMEOUT", 10*time.Second),
		OrderExecutionTimeout: envDuration("ORDER_EXECUTION_TIMEOUT", 30*time.Second),
		MaxRetryAttempts:      envInt("MAX_RETRY_ATTEMPTS", 3),
		RetryBaseDelay:        envDuration("RETRY_BASE_DELAY", time.Second),
		Concurrency:           envInt("CONCURRENCY", 1),
		RunLeaseTTL:           envDuration("RUN_LEASE_TTL", 10*time.Minute),
		SupportedTokens:       parseTokens(envString("SUPPORTED_TOKENS", defaultTokens)),
	}
	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// parseTokens parses "ETH:18,USDC:6" into a symbol-to-decimals map.
// Malformed entries are skipped rather than failing startup.
func parseTokens(raw string) map[string]int32 {
	tokens := make(map[string]int32)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		decimals, err := strconv.ParseInt(parts[1], 10, 32)
		if err != nil || decimals < 0 {
			continue
		}
		symbol := strings.ToUpper(strings.TrimSpace(parts[0]))
		if symbol == "" {
			continue
		}
		tokens[symbol] = int32(decimals)
	}
	if len(tokens) == 0 {
		return parseTokens(defaultTokens)
	}
	return tokens
}
