package database

import (
	"context"

	"nexus/config"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/valkey-io/valkey-go"
)

type CacheClient valkey.Client

type Cache struct {
	RateLimit CacheClient
}

// DB holds the optional shared stores. Telemetry itself lives in NDJSON files, so
// every client here may be nil when no cache is configured.
type DB struct {
	Cache Cache
	log   logger.Logger
}

func New(config config.Config) (DB, error) {
	log := logger.New("database").Function("New")

	db := &DB{log: log}

	if !config.SharedRateLimitEnabled() {
		log.Info("No cache configured, using in-process stores")
		return *db, nil
	}

	log.Info("Initializing cache database")
	if err := db.initializeCacheDB(config); err != nil {
		return DB{}, log.Err("failed to initialize cache database", err)
	}

	return *db, nil
}

// HasCache reports whether the shared cache is connected
func (s *DB) HasCache() bool {
	return s.Cache.RateLimit != nil
}

// Ping checks the cache connection when one is configured
func (s *DB) Ping(ctx context.Context) error {
	log := s.log.TraceFromContext(ctx).Function("Ping")

	client := s.Cache.RateLimit
	if client == nil {
		return nil
	}

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		return log.Err("failed to ping cache database", err)
	}
	return nil
}

func (s *DB) Close() error {
	if s.Cache.RateLimit != nil {
		s.Cache.RateLimit.Close()
	}

	return nil
}
