package config

import (
	serrors "github.com/jkassis/bbstore/internal/errors"
)

// Validate checks mandatory directives for the selected store type.
func Validate(cfg *Config) error {
	if cfg.StoreDB.Table == "" {
		return serrors.New(serrors.CodeConfigInvalid, "directive 'table' is not specified in 'store-db' group").
			WithSuggestion("set store-db.table to the hash/table holding stored messages")
	}

	switch cfg.Core.StoreType {
	case StoreTypeRedis:
		if cfg.StoreDB.ID == "" {
			return serrors.New(serrors.CodeConfigInvalid, "directive 'id' is not specified in 'store-db' group").
				WithSuggestion("set store-db.id to the id of a redis-connection group")
		}
		conn, ok := FindConnection(cfg.RedisConnections, cfg.StoreDB.ID)
		if !ok {
			return serrors.Newf(serrors.CodeProfileNotFound,
				"connection settings for 'redis-connection' with id '%s' are not specified", cfg.StoreDB.ID)
		}
		return validateConnection(conn)
	case StoreTypeBadger, StoreTypeRAM:
		return nil
	case StoreTypeSQLite, StoreTypeFile:
		if cfg.Core.StoreLocation == "" {
			return serrors.Newf(serrors.CodeConfigInvalid,
				"directive 'store-location' is required for store-type '%s'", cfg.Core.StoreType)
		}
		return nil
	}
	return serrors.Newf(serrors.CodeConfigInvalid, "unsupported store-type '%s'", cfg.Core.StoreType).
		WithSuggestion("use one of redis, badger, sqlite, file, ram")
}

func validateConnection(conn RedisConnection) error {
	if conn.Host == "" {
		return serrors.Newf(serrors.CodeConfigInvalid,
			"directive 'host' is not specified in 'redis-connection' group '%s'", conn.ID)
	}
	if conn.Port == 0 {
		return serrors.Newf(serrors.CodeConfigInvalid,
			"directive 'port' is not specified in 'redis-connection' group '%s'", conn.ID)
	}
	return nil
}

// FindConnection returns the first profile whose id matches.
func FindConnection(conns []RedisConnection, id string) (RedisConnection, bool) {
	for _, c := range conns {
		if c.ID == id {
			return c, true
		}
	}
	return RedisConnection{}, false
}
