package config

import (
	"net/url"
	"os"
	"path/filepath"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/spf13/viper"
)

const (
	DefaultLogMaxBytes       = 10 * 1024 * 1024
	DefaultRateLimitMax      = 10
	DefaultRateLimitWindow   = 60
	DefaultClientIPHeader    = "X-Real-IP"
	DefaultServerPort        = 8280
	DefaultGeneralVersion    = "1.0.0"
	DefaultEnvironment       = "development"
	DefaultCorsAllowOrigins  = "http://localhost:3000, http://localhost:3001"
	DefaultLogDirectoryName  = "logs"
	DefaultSchedulerEnabled  = true
	DefaultLiveFeedEnabled   = false
	DefaultDatabaseCachePort = 0
	DefaultLogRetentionDays  = 0
)

type Config struct {
	GeneralVersion         string `mapstructure:"GENERAL_VERSION"`
	Environment            string `mapstructure:"ENVIRONMENT"`
	ServerPort             int    `mapstructure:"SERVER_PORT"`
	CorsAllowOrigins       string `mapstructure:"CORS_ALLOW_ORIGINS"`
	LogDir                 string `mapstructure:"LOG_DIR"`
	LogMaxBytes            int64  `mapstructure:"LOG_MAX_BYTES"`
	LogRetentionDays       int    `mapstructure:"LOG_RETENTION_DAYS"`
	RateLimitMax           int    `mapstructure:"RATE_LIMIT_MAX"`
	RateLimitWindowSeconds int    `mapstructure:"RATE_LIMIT_WINDOW_SECONDS"`
	RateLimitClientHeader  string `mapstructure:"RATE_LIMIT_CLIENT_HEADER"`
	DatabaseCacheAddress   string `mapstructure:"DB_CACHE_ADDRESS"`
	DatabaseCachePort      int    `mapstructure:"DB_CACHE_PORT"`
	SchedulerEnabled       bool   `mapstructure:"SCHEDULER_ENABLED"`
	LiveFeedEnabled        bool   `mapstructure:"LIVE_FEED_ENABLED"`
	LogForwardURL          string `mapstructure:"LOG_FORWARD_URL"`
}

var envVars = []string{
	"GENERAL_VERSION", "ENVIRONMENT", "SERVER_PORT", "CORS_ALLOW_ORIGINS",
	"LOG_DIR", "LOG_MAX_BYTES", "LOG_RETENTION_DAYS",
	"RATE_LIMIT_MAX", "RATE_LIMIT_WINDOW_SECONDS", "RATE_LIMIT_CLIENT_HEADER",
	"DB_CACHE_ADDRESS", "DB_CACHE_PORT",
	"SCHEDULER_ENABLED", "LIVE_FEED_ENABLED", "LOG_FORWARD_URL",
}

func New() (Config, error) {
	log := logger.New("config").Function("New")
	log.Info("Initializing config")

	v := viper.New()
	setDefaults(v)

	// Enable automatic environment variable reading first
	v.AutomaticEnv()

	for _, env := range envVars {
		if err := v.BindEnv(env); err != nil {
			log.Warn("Failed to bind environment variable", "env", env, "error", err)
		}
	}

	// Only fall back to files when the deployment did not provide the port
	if _, ok := os.LookupEnv("SERVER_PORT"); ok {
		log.Info("Environment variables detected, skipping file loading")
	} else {
		log.Info("Environment variables not found, attempting to load from files")

		v.SetConfigFile(".env")
		v.SetConfigType("env")

		if err := v.ReadInConfig(); err != nil {
			log.Warn("Could not find .env file", "error", err)
		} else {
			log.Info("Loaded .env file")
		}

		v.SetConfigFile(".env.local")
		if err := v.MergeInConfig(); err != nil {
			log.Debug("No .env.local file found", "error", err)
		} else {
			log.Info("Loaded .env.local overrides")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, log.Err("Fatal error: could not unmarshal config", err)
	}

	if err := validateConfig(config, log); err != nil {
		return Config{}, err
	}

	log.Info("Successfully initialized config",
		"environment", config.Environment,
		"port", config.ServerPort,
		"logDir", config.LogDir,
		"sharedRateLimit", config.SharedRateLimitEnabled())
	return config, nil
}

func setDefaults(v *viper.Viper) {
	logDir := DefaultLogDirectoryName
	if cwd, err := os.Getwd(); err == nil {
		logDir = filepath.Join(cwd, DefaultLogDirectoryName)
	}

	v.SetDefault("GENERAL_VERSION", DefaultGeneralVersion)
	v.SetDefault("ENVIRONMENT", DefaultEnvironment)
	v.SetDefault("SERVER_PORT", DefaultServerPort)
	v.SetDefault("CORS_ALLOW_ORIGINS", DefaultCorsAllowOrigins)
	v.SetDefault("LOG_DIR", logDir)
	v.SetDefault("LOG_MAX_BYTES", DefaultLogMaxBytes)
	v.SetDefault("LOG_RETENTION_DAYS", DefaultLogRetentionDays)
	v.SetDefault("RATE_LIMIT_MAX", DefaultRateLimitMax)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", DefaultRateLimitWindow)
	v.SetDefault("RATE_LIMIT_CLIENT_HEADER", DefaultClientIPHeader)
	v.SetDefault("DB_CACHE_ADDRESS", "")
	v.SetDefault("DB_CACHE_PORT", DefaultDatabaseCachePort)
	v.SetDefault("SCHEDULER_ENABLED", DefaultSchedulerEnabled)
	v.SetDefault("LIVE_FEED_ENABLED", DefaultLiveFeedEnabled)
	v.SetDefault("LOG_FORWARD_URL", "")
}

// ForwardingEnabled reports whether telemetry records are shipped to VictoriaLogs.
func (c Config) ForwardingEnabled() bool {
	return c.LogForwardURL != ""
}

// SharedRateLimitEnabled reports whether a valkey instance is configured for the rate limiter.
func (c Config) SharedRateLimitEnabled() bool {
	return c.DatabaseCacheAddress != "" && c.DatabaseCachePort > 0
}

func validateConfig(config Config, log logger.Logger) error {
	if config.ServerPort <= 0 {
		return log.Error(
			"Fatal error: invalid server port",
			"port", config.ServerPort,
		)
	}

	if config.LogDir == "" {
		return log.ErrMsg("Fatal error: LOG_DIR must not be empty")
	}

	if config.LogMaxBytes <= 0 {
		return log.Error(
			"Fatal error: invalid log rotation size",
			"bytes", config.LogMaxBytes,
		)
	}

	if config.LogRetentionDays < 0 {
		return log.Error(
			"Fatal error: invalid log retention",
			"days", config.LogRetentionDays,
		)
	}

	if config.RateLimitMax <= 0 || config.RateLimitWindowSeconds <= 0 {
		return log.Error(
			"Fatal error: invalid rate limit",
			"max", config.RateLimitMax,
			"windowSeconds", config.RateLimitWindowSeconds,
		)
	}

	if config.DatabaseCacheAddress != "" && config.DatabaseCachePort <= 0 {
		return log.ErrMsg("Fatal error: DB_CACHE_PORT required when DB_CACHE_ADDRESS is set")
	}

	if config.LogForwardURL != "" {
		parsed, err := url.Parse(config.LogForwardURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return log.Error(
				"Fatal error: LOG_FORWARD_URL must be an absolute http(s) URL",
				"url", config.LogForwardURL,
			)
		}
	}

	return nil
}
