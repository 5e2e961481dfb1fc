package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/balancer"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/compress"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/engine"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/ratelimit"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	RedisURL    string
	SQLitePath  string

	// Engine identity
	AgentID          string
	LivenessInterval time.Duration

	// Encryption (empty key disables it)
	CipherKey       string
	CipherAlgorithm string

	// Rate limiting (TokensPerInterval <= 0 disables it)
	RateLimitTokens   int64
	RateLimitInterval time.Duration
	RateLimitBurst    int64

	// Compression (Threshold < 0 disables it)
	CompressionThreshold int
	CompressionLevel     int

	// Load balancing
	LoadBalancingStrategy     string
	OverrideExplicitRecipient bool
	PeerWeights               map[string]float64

	CacheTTL time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/a2a.db"),

		AgentID:          getEnv("AGENT_ID", "agent-"+hostnameSuffix()),
		LivenessInterval: getDurationMs("LIVENESS_INTERVAL_MS", 30*time.Second),

		CipherKey:       os.Getenv("CIPHER_KEY"),
		CipherAlgorithm: getEnv("CIPHER_ALGORITHM", "aes-256-gcm"),

		RateLimitTokens:   getInt64("RATE_LIMIT_TOKENS", 0),
		RateLimitInterval: getDurationMs("RATE_LIMIT_INTERVAL_MS", time.Minute),
		RateLimitBurst:    getInt64("RATE_LIMIT_BURST", 0),

		CompressionThreshold: int(getInt64("COMPRESSION_THRESHOLD", -1)),
		CompressionLevel:     int(getInt64("COMPRESSION_LEVEL", 6)),

		LoadBalancingStrategy:     getEnv("LOAD_BALANCING_STRATEGY", ""),
		OverrideExplicitRecipient: getEnv("OVERRIDE_EXPLICIT_RECIPIENT", "false") == "true",

		CacheTTL: getDurationMs("CACHE_TTL_MS", time.Hour),
	}

	// Parse static peer weights (comma-separated agent=weight pairs)
	if weights := os.Getenv("PEER_WEIGHTS"); weights != "" {
		cfg.PeerWeights = make(map[string]float64)
		for _, entry := range strings.Split(weights, ",") {
			name, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
			if !ok {
				continue
			}
			w, err := strconv.ParseFloat(value, 64)
			if err != nil || w <= 0 {
				continue
			}
			cfg.PeerWeights[name] = w
		}
	}

	// In production, require database and redis URLs and a cipher key
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if cfg.CipherKey == "" {
			panic("CIPHER_KEY is required in production")
		}
	}

	return cfg
}

// EngineOptions translates the flat environment config into engine options.
func (c *Config) EngineOptions() engine.Options {
	opts := engine.Options{
		AgentID:          c.AgentID,
		LivenessInterval: c.LivenessInterval,
		CipherKey:        c.CipherKey,
		CipherAlgorithm:  c.CipherAlgorithm,
		Weights:          c.PeerWeights,
		CacheTTL:         c.CacheTTL,
		LoadBalancing: balancer.Config{
			Strategy:         balancer.Strategy(c.LoadBalancingStrategy),
			OverrideExplicit: c.OverrideExplicitRecipient,
		},
	}
	if c.RateLimitTokens > 0 {
		burst := c.RateLimitBurst
		if burst <= 0 {
			burst = c.RateLimitTokens
		}
		opts.RateLimit = &ratelimit.Config{
			TokensPerInterval: int(c.RateLimitTokens),
			Interval:          c.RateLimitInterval,
			MaxTokens:         int(burst),
		}
	}
	if c.CompressionThreshold >= 0 {
		opts.Compression = &compress.Config{
			ThresholdBytes: c.CompressionThreshold,
			Level:          c.CompressionLevel,
		}
	}
	return opts
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

func getDurationMs(key string, defaultValue time.Duration) time.Duration {
	ms := getInt64(key, 0)
	if ms <= 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}

func hostnameSuffix() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "local"
	}
	return host
}
