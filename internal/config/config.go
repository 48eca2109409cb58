// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is built once at startup and
// handed to each client constructor; nothing below cmd/ reads the environment.
type Config struct {
	// Server settings
	Port        string
	Env         string // "development", "staging", "production"
	LogLevel    string
	LogFormat   string // "text" or "json"
	CORSOrigins []string

	// Ethereum via Alchemy. An empty key selects mock data.
	AlchemyAPIKey  string
	AlchemyNetwork string // e.g. "eth-mainnet", "eth-sepolia"
	AlchemyURL     string // Full endpoint override (tests, proxies)

	// Cardano via Blockfrost. An empty key selects mock data.
	BlockfrostAPIKey  string
	BlockfrostNetwork string // "mainnet", "preprod", "preview", "testnet"
	BlockfrostURL     string // Base URL override

	// Masumi registry and payment service
	MasumiRegistryURL string
	MasumiPaymentURL  string
	MasumiAPIKey      string
	MasumiAgentID     string // Decisions are logged only when set

	// Risk routing
	UpstreamTimeout      time.Duration
	MaxTransfers         int
	FallbackOnFetchError bool

	// Tracing
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort              = "8000"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultAlchemyNetwork    = "eth-mainnet"
	DefaultBlockfrostNetwork = "mainnet"
	DefaultMasumiRegistryURL = "https://registry.masumi.network/api/v1"
	DefaultMasumiPaymentURL  = "https://payment.masumi.network/api/v1"
	DefaultUpstreamTimeout   = 20 * time.Second
	DefaultMaxTransfers      = 50
)

var blockfrostNetworks = map[string]bool{
	"mainnet": true,
	"preprod": true,
	"preview": true,
	"testnet": true,
}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:            getEnv("LOG_FORMAT", DefaultLogFormat),
		CORSOrigins:          getEnvList("CORS_ORIGINS", []string{"*"}),
		AlchemyAPIKey:        os.Getenv("ALCHEMY_API_KEY"),
		AlchemyNetwork:       getEnv("ALCHEMY_NETWORK", DefaultAlchemyNetwork),
		AlchemyURL:           os.Getenv("ALCHEMY_URL"),
		BlockfrostAPIKey:     os.Getenv("BLOCKFROST_API_KEY"),
		BlockfrostNetwork:    getEnv("BLOCKFROST_NETWORK", DefaultBlockfrostNetwork),
		BlockfrostURL:        os.Getenv("BLOCKFROST_URL"),
		MasumiRegistryURL:    getEnv("MASUMI_REGISTRY_URL", DefaultMasumiRegistryURL),
		MasumiPaymentURL:     getEnv("MASUMI_PAYMENT_URL", DefaultMasumiPaymentURL),
		MasumiAPIKey:         os.Getenv("MASUMI_API_KEY"),
		MasumiAgentID:        os.Getenv("MASUMI_AGENT_ID"),
		UpstreamTimeout:      getEnvDuration("UPSTREAM_TIMEOUT", DefaultUpstreamTimeout),
		MaxTransfers:         int(getEnvInt64("MAX_TRANSFERS", DefaultMaxTransfers)),
		FallbackOnFetchError: getEnvBool("FALLBACK_ON_FETCH_ERROR", false),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if !blockfrostNetworks[c.BlockfrostNetwork] {
		return fmt.Errorf("BLOCKFROST_NETWORK must be one of mainnet, preprod, preview, testnet (got %q)", c.BlockfrostNetwork)
	}
	if c.AlchemyNetwork == "" && c.AlchemyURL == "" {
		return fmt.Errorf("ALCHEMY_NETWORK or ALCHEMY_URL is required")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if c.MaxTransfers <= 0 {
		return fmt.Errorf("MAX_TRANSFERS must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
