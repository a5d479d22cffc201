// Package config loads bb84sim settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port           int
	LogLevel       string
	LogPretty      bool
	StepDelay      time.Duration
	ReportInterval int
	Seed           int64 // 0 seeds from the clock
	HistoryWindow  int
	DefaultQubits  int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnvAsInt("BB84_PORT", 8084),
		LogLevel:       getEnv("BB84_LOG_LEVEL", "info"),
		LogPretty:      getEnvAsBool("BB84_LOG_PRETTY", false),
		StepDelay:      getEnvAsDuration("BB84_STEP_DELAY", 250*time.Millisecond),
		ReportInterval: getEnvAsInt("BB84_REPORT_INTERVAL", 1),
		Seed:           int64(getEnvAsInt("BB84_SEED", 0)),
		HistoryWindow:  getEnvAsInt("BB84_HISTORY_WINDOW", 100),
		DefaultQubits:  getEnvAsInt("BB84_DEFAULT_QUBITS", 50),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded values are usable
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("BB84_PORT %d out of range", c.Port)
	}
	if c.StepDelay < 0 {
		return fmt.Errorf("BB84_STEP_DELAY must not be negative, got %v", c.StepDelay)
	}
	if c.ReportInterval < 1 {
		return fmt.Errorf("BB84_REPORT_INTERVAL must be positive, got %d", c.ReportInterval)
	}
	if c.HistoryWindow < 1 {
		return fmt.Errorf("BB84_HISTORY_WINDOW must be positive, got %d", c.HistoryWindow)
	}
	if c.DefaultQubits < 1 {
		return fmt.Errorf("BB84_DEFAULT_QUBITS must be positive, got %d", c.DefaultQubits)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
