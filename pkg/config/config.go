// Package config provides environment-based configuration for the fleet monitor.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the fleet monitor.
type Config struct {
	// Authentication
	JWTSecret  string
	JWTExpiry  time.Duration
	BcryptCost int

	// Server configuration
	APIHost    string
	APIPort    int
	GRPCPort   int
	CORSOrigin string

	ShutdownTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	Stream    StreamConfig
	Metrics   MetricsConfig
	Alerts    AlertsConfig
	RateLimit RateLimitConfig
}

// StreamConfig holds push broadcaster timing.
type StreamConfig struct {
	UpdateInterval time.Duration
	PingInterval   time.Duration
	PingTimeout    time.Duration
	WriteTimeout   time.Duration
}

// MetricsConfig holds metrics history settings.
type MetricsConfig struct {
	Capacity int
}

// AlertsConfig holds alert rule settings.
type AlertsConfig struct {
	// RulesFile is an optional YAML file replacing the built-in default rules.
	RulesFile string
}

// RateLimitConfig bounds login attempts per client address.
type RateLimitConfig struct {
	LoginRate  float64 // attempts per second
	LoginBurst int
}

// Load reads configuration from environment variables. A .env file in the
// working directory, when present, is loaded first without overriding
// variables already set in the environment.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := fromEnv("")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing.
func LoadWithDefaults() *Config {
	return fromEnv("development-secret-key-min-32-chars")
}

func fromEnv(defaultSecret string) *Config {
	return &Config{
		JWTSecret:       getEnv("JWT_SECRET", defaultSecret),
		JWTExpiry:       getDurationEnv("JWT_EXPIRY", 24*time.Hour),
		BcryptCost:      getIntEnv("BCRYPT_COST", 10),
		APIHost:         getEnv("API_HOST", "0.0.0.0"),
		APIPort:         getIntEnv("API_PORT", 3001),
		GRPCPort:        getIntEnv("GRPC_PORT", 9091),
		CORSOrigin:      getEnv("CORS_ORIGIN", "http://localhost:3000"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		Stream: StreamConfig{
			UpdateInterval: getDurationEnv("UPDATE_INTERVAL", 5*time.Second),
			PingInterval:   getDurationEnv("PING_INTERVAL", 10*time.Second),
			PingTimeout:    getDurationEnv("PING_TIMEOUT", 5*time.Second),
			WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 5*time.Second),
		},
		Metrics: MetricsConfig{
			Capacity: getIntEnv("METRICS_CAPACITY", 1000),
		},
		Alerts: AlertsConfig{
			RulesFile: getEnv("ALERT_RULES_FILE", ""),
		},
		RateLimit: RateLimitConfig{
			LoginRate:  getFloatEnv("LOGIN_RATE", 1),
			LoginBurst: getIntEnv("LOGIN_BURST", 5),
		},
	}
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Stream.UpdateInterval <= 0 || c.Stream.PingInterval <= 0 {
		return fmt.Errorf("UPDATE_INTERVAL and PING_INTERVAL must be positive")
	}
	if c.Stream.PingTimeout <= 0 || c.Stream.PingTimeout > c.Stream.PingInterval {
		return fmt.Errorf("PING_TIMEOUT must be positive and not exceed PING_INTERVAL")
	}
	if c.Metrics.Capacity <= 0 {
		return fmt.Errorf("METRICS_CAPACITY must be positive")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// GRPCAddr returns the gRPC listen address.
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.GRPCPort)
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
