package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all application configuration
type Config struct {
	DatabasePath string
	Addr         string
	LogLevel     logrus.Level

	// OTP verification
	OTPTTL           time.Duration
	OTPSweepInterval time.Duration

	Environment string // "development", "production" or "test"
}

// Load reads configuration from the environment, after loading an optional
// .env file from the working directory.
func Load() (*Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying defaults for
// unset values.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DatabasePath:     "fredwelfare.db",
		Addr:             ":8080",
		LogLevel:         logrus.InfoLevel,
		OTPTTL:           5 * time.Minute,
		OTPSweepInterval: time.Minute,
		Environment:      "development",
	}

	if v := getenv("WELFARE_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := getenv("WELFARE_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := getenv("WELFARE_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := getenv("WELFARE_LOG_LEVEL"); v != "" {
		level, err := logrus.ParseLevel(v)
		if err != nil {
			return nil, fmt.Errorf("WELFARE_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}
	if v := getenv("WELFARE_OTP_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("WELFARE_OTP_TTL: %w", err)
		}
		cfg.OTPTTL = d
	}
	if v := getenv("WELFARE_OTP_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("WELFARE_OTP_SWEEP_INTERVAL: %w", err)
		}
		cfg.OTPSweepInterval = d
	}

	if cfg.OTPTTL <= 0 {
		return nil, fmt.Errorf("WELFARE_OTP_TTL must be positive")
	}
	if cfg.OTPSweepInterval <= 0 {
		return nil, fmt.Errorf("WELFARE_OTP_SWEEP_INTERVAL must be positive")
	}

	return cfg, nil
}

// NewLogger returns a JSON logrus logger at the configured level.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(c.LogLevel)
	logger.SetOutput(os.Stdout)
	return logger
}
