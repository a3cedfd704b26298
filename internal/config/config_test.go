package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/payhistory/internal/payments"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if !had {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "CAPTURE_MODE", "DEFAULT_CURRENCY", "AUDIT_INTERVAL", "LOG_FORMAT", "DATABASE_URL"} {
		setEnv(t, key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, payments.CaptureClose, cfg.CaptureMode)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.Equal(t, DefaultAuditInterval, cfg.AuditInterval)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_WithOverrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "CAPTURE_MODE", "partial")
	setEnv(t, "DEFAULT_CURRENCY", "cad")
	setEnv(t, "AUDIT_INTERVAL", "30s")
	setEnv(t, "LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, payments.CapturePartial, cfg.CaptureMode)
	assert.Equal(t, "CAD", cfg.DefaultCurrency)
	assert.Equal(t, 30*time.Second, cfg.AuditInterval)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_InvalidCaptureMode(t *testing.T) {
	setEnv(t, "CAPTURE_MODE", "eager")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAPTURE_MODE")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:            "8080",
			LogFormat:       "text",
			CaptureMode:     payments.CaptureClose,
			DefaultCurrency: "USD",
			AuditInterval:   time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid config", func(c *Config) {}, ""},
		{"audit disabled", func(c *Config) { c.AuditInterval = 0 }, ""},
		{"missing port", func(c *Config) { c.Port = "" }, "PORT is required"},
		{"non-numeric port", func(c *Config) { c.Port = "http" }, "PORT must be numeric"},
		{"unknown capture mode", func(c *Config) { c.CaptureMode = "eager" }, "CAPTURE_MODE"},
		{"bad currency", func(c *Config) { c.DefaultCurrency = "DOLLAR" }, "DEFAULT_CURRENCY"},
		{"negative interval", func(c *Config) { c.AuditInterval = -time.Second }, "AUDIT_INTERVAL"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvDuration(t *testing.T) {
	setEnv(t, "TEST_DURATION", "2m")
	setEnv(t, "TEST_SECONDS", "45")
	setEnv(t, "TEST_INVALID", "soon")

	assert.Equal(t, 2*time.Minute, getEnvDuration("TEST_DURATION", 0))
	assert.Equal(t, 45*time.Second, getEnvDuration("TEST_SECONDS", 0))
	assert.Equal(t, time.Hour, getEnvDuration("NONEXISTENT_VAR", time.Hour))
	assert.Equal(t, time.Hour, getEnvDuration("TEST_INVALID", time.Hour)) // Falls back on parse error
}
