package config

import (
	"path/filepath"
	"testing"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.ServerPort)
	assert.Equal(t, DefaultGeneralVersion, cfg.GeneralVersion)
	assert.Equal(t, int64(DefaultLogMaxBytes), cfg.LogMaxBytes)
	assert.Equal(t, DefaultRateLimitMax, cfg.RateLimitMax)
	assert.Equal(t, DefaultRateLimitWindow, cfg.RateLimitWindowSeconds)
	assert.Equal(t, DefaultClientIPHeader, cfg.RateLimitClientHeader)
	assert.Equal(t, DefaultLogDirectoryName, filepath.Base(cfg.LogDir))
	assert.True(t, cfg.SchedulerEnabled)
	assert.False(t, cfg.LiveFeedEnabled)
	assert.Equal(t, DefaultLogRetentionDays, cfg.LogRetentionDays)
	assert.False(t, cfg.SharedRateLimitEnabled())
	assert.False(t, cfg.ForwardingEnabled())
}

func TestNew_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SERVER_PORT", "9001")
	t.Setenv("LOG_DIR", dir)
	t.Setenv("LOG_MAX_BYTES", "2048")
	t.Setenv("RATE_LIMIT_MAX", "3")
	t.Setenv("DB_CACHE_ADDRESS", "localhost")
	t.Setenv("DB_CACHE_PORT", "6379")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.LogDir)
	assert.Equal(t, int64(2048), cfg.LogMaxBytes)
	assert.Equal(t, 3, cfg.RateLimitMax)
	assert.True(t, cfg.SharedRateLimitEnabled())
}

func TestValidateConfig(t *testing.T) {
	log := logger.New("test")
	valid := Config{
		ServerPort:             8280,
		LogDir:                 "logs",
		LogMaxBytes:            DefaultLogMaxBytes,
		RateLimitMax:           10,
		RateLimitWindowSeconds: 60,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero port", mutate: func(c *Config) { c.ServerPort = 0 }, wantErr: "invalid server port"},
		{name: "empty log dir", mutate: func(c *Config) { c.LogDir = "" }, wantErr: "LOG_DIR"},
		{name: "zero rotation size", mutate: func(c *Config) { c.LogMaxBytes = 0 }, wantErr: "rotation size"},
		{name: "negative retention", mutate: func(c *Config) { c.LogRetentionDays = -1 }, wantErr: "log retention"},
		{name: "zero rate limit", mutate: func(c *Config) { c.RateLimitMax = 0 }, wantErr: "rate limit"},
		{name: "zero window", mutate: func(c *Config) { c.RateLimitWindowSeconds = 0 }, wantErr: "rate limit"},
		{
			name:    "cache address without port",
			mutate:  func(c *Config) { c.DatabaseCacheAddress = "localhost" },
			wantErr: "DB_CACHE_PORT",
		},
		{
			name:   "forward url",
			mutate: func(c *Config) { c.LogForwardURL = "http://victorialogs:9428" },
		},
		{
			name:    "relative forward url",
			mutate:  func(c *Config) { c.LogForwardURL = "victorialogs:9428" },
			wantErr: "LOG_FORWARD_URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := validateConfig(cfg, log)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
