// Package config provides configuration management for the lookup tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lookup-tracker/internal/types"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Provider ProviderConfig
	Poll     PollConfig
	Notify   NotifyConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL renders the connection string shared by the pool and the migration
// runner.
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Database,
	)
}

// RedisConfig holds Redis configuration for the result cache
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// ProviderConfig holds the external lookup provider configuration
type ProviderConfig struct {
	APIKey            string
	SubmitURL         string
	ResultURL         string
	BalanceURL        string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// PollConfig holds polling configuration
type PollConfig struct {
	// Schedule is the fixed backoff sequence between polls; attempt indexes it.
	Schedule []time.Duration
	// ResultCacheTTL bounds how long a terminal payload is kept for manual checks.
	ResultCacheTTL time.Duration
}

// NotifyConfig holds outbound notification configuration
type NotifyConfig struct {
	TelegramToken string
	Timeout       time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "lookup_tracker"),
				User:           getEnv("POSTGRES_USER", "tracker"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			Redis: RedisConfig{
				Host:     getEnv("REDIS_HOST", "localhost"),
				Port:     getEnv("REDIS_PORT", "6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
			},
		},
		Provider: ProviderConfig{
			APIKey:            getEnv("API_KEY", ""),
			SubmitURL:         getEnv("SEARCHDATA_URL", "https://bender-search.ru/apiv1/search_data"),
			ResultURL:         getEnv("RESULT_URL", "https://bender-search.ru/apiv1/result"),
			BalanceURL:        getEnv("BALANCE_URL", "https://bender-search.ru/apiv1/check_balance"),
			Timeout:           getEnvAsDuration("API_TIMEOUT", 15*time.Second),
			RequestsPerSecond: getEnvAsFloat("API_REQUESTS_PER_SECOND", 3),
		},
		Poll: PollConfig{
			Schedule:       getEnvAsSchedule("POLL_SCHEDULE", types.DefaultPollSchedule),
			ResultCacheTTL: getEnvAsDuration("RESULT_CACHE_TTL", 24*time.Hour),
		},
		Notify: NotifyConfig{
			TelegramToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			Timeout:       getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSchedule parses a comma-separated list of durations, e.g. "5s,10s,20s".
// An empty or malformed value falls back to the default schedule.
func getEnvAsSchedule(key string, defaultValue []time.Duration) []time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	schedule := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil || d <= 0 {
			return defaultValue
		}
		schedule = append(schedule, d)
	}
	if len(schedule) == 0 {
		return defaultValue
	}
	return schedule
}
