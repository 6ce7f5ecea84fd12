package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, "fredwelfare.db", cfg.DatabasePath)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.OTPTTL)
	assert.Equal(t, time.Minute, cfg.OTPSweepInterval)
	assert.Equal(t, "development", cfg.Environment)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"WELFARE_DB_PATH":            "/var/lib/welfare/ledger.db",
		"WELFARE_ADDR":               "127.0.0.1:9000",
		"WELFARE_LOG_LEVEL":          "debug",
		"WELFARE_OTP_TTL":            "90s",
		"WELFARE_OTP_SWEEP_INTERVAL": "10s",
		"WELFARE_ENVIRONMENT":        "production",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/welfare/ledger.db", cfg.DatabasePath)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 90*time.Second, cfg.OTPTTL)
	assert.Equal(t, 10*time.Second, cfg.OTPSweepInterval)
	assert.Equal(t, "production", cfg.Environment)

	logger := cfg.NewLogger()
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	tests := map[string]map[string]string{
		"bad level":    {"WELFARE_LOG_LEVEL": "loud"},
		"bad ttl":      {"WELFARE_OTP_TTL": "five minutes"},
		"negative ttl": {"WELFARE_OTP_TTL": "-1m"},
		"zero sweep":   {"WELFARE_OTP_SWEEP_INTERVAL": "0s"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(envOf(env))
			assert.Error(t, err)
		})
	}
}
