package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Client   ClientConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Pricing  PricingConfig
	Sync     SyncConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ClientConfig identifies this client instance. Local state in redis is
// namespaced by the client id, so several clients (or a test harness running
// many trips) can share one redis.
type ClientConfig struct {
	ID   string
	Role string // "captain" or "customer"
}

// DatabaseConfig holds PostgreSQL configuration for the remote store.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// PricingConfig holds the resolved pricing parameters for this service
// class. Reward-type resolution happens upstream; these values arrive final.
type PricingConfig struct {
	BaseCost      float64
	OnWayPerKm    float64
	OnWayPerMin   float64
	WaitingPerMin float64
	TripPerKm     float64
	TripPerMin    float64
}

// SyncConfig holds the cadence of the sync sweep and reconciliation.
type SyncConfig struct {
	Interval      time.Duration
	PollInterval  time.Duration
	TerminalGrace time.Duration
}

// Load loads configuration from a .env file (if present) and the
// environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Client: ClientConfig{
			ID:   getEnv("CLIENT_ID", "default"),
			Role: getEnv("CLIENT_ROLE", "captain"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "tripsync"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "tripsync"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Pricing: PricingConfig{
			BaseCost:      getFloatEnv("PRICING_BASE_COST", 2.0),
			OnWayPerKm:    getFloatEnv("PRICING_ON_WAY_PER_KM", 0.3),
			OnWayPerMin:   getFloatEnv("PRICING_ON_WAY_PER_MIN", 0.0),
			WaitingPerMin: getFloatEnv("PRICING_WAITING_PER_MIN", 0.2),
			TripPerKm:     getFloatEnv("PRICING_TRIP_PER_KM", 0.8),
			TripPerMin:    getFloatEnv("PRICING_TRIP_PER_MIN", 0.25),
		},
		Sync: SyncConfig{
			Interval:      getDurationEnv("SYNC_INTERVAL", 30*time.Second),
			PollInterval:  getDurationEnv("RECONCILE_POLL_INTERVAL", 15*time.Second),
			TerminalGrace: getDurationEnv("RECONCILE_TERMINAL_GRACE", 3*time.Second),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
