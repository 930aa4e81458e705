package database

import (
	"fmt"

	"nexus/config"

	"github.com/valkey-io/valkey-go"
)

// Valkey Database Index Organization
// Each database index provides logical separation for different cache categories
const (
	// GENERAL_CACHE_INDEX (DB 0) - General purpose caching, unused by the telemetry server
	GENERAL_CACHE_INDEX = iota

	// RATE_LIMIT_CACHE_INDEX (DB 1) - Fixed-window counters shared by every instance
	RATE_LIMIT_CACHE_INDEX
)

func (s *DB) initializeCacheDB(config config.Config) error {
	log := s.log.Function("initializeCacheDB")

	address := config.DatabaseCacheAddress
	port := config.DatabaseCachePort
	if address == "" || port == 0 {
		return log.Errorf("failed to initialize cache database", "address or port is empty")
	}

	var cacheDB Cache

	var err error
	cacheDB.RateLimit, err = valkey.NewClient(
		valkey.ClientOption{
			InitAddress: []string{fmt.Sprintf("%s:%d", address, port)},
			SelectDB:    RATE_LIMIT_CACHE_INDEX,
		},
	)
	if err != nil {
		return log.Err("failed to create rate limit valkey client", err)
	}

	s.Cache = cacheDB

	log.Info("Cache database initialized", "address", address, "port", port)
	return nil
}
