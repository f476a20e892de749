package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/jkassis/bbstore/internal/config"
	serrors "github.com/jkassis/bbstore/internal/errors"
)

// Open validates cfg, builds the configured backend and returns a store whose
// gate is closed. It fails instead of aborting so the launcher decides what
// a fatal configuration means.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		return nil, serrors.New(serrors.CodeConfigInvalid, "no configuration")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	logger := optionLogger(opts)
	table := cfg.StoreDB.Table
	location := cfg.Core.StoreLocation

	var backend Backend
	switch cfg.Core.StoreType {
	case config.StoreTypeRedis:
		conn, _ := config.FindConnection(cfg.RedisConnections, cfg.StoreDB.ID)
		rb, n := RedisBackendMake(ctx, conn, logger)
		if n == 0 {
			_ = rb.Close()
			return nil, serrors.Newf(serrors.CodeNoConnections, "redis database pool '%s' has no connections", conn.ID).
				WithSuggestion("check host, port and password of the redis-connection group")
		}
		backend = rb
	case config.StoreTypeBadger:
		bb, err := BadgerBackendMake(location, logger)
		if err != nil {
			return nil, serrors.Wrap(serrors.CodeNoConnections, "could not open badger store", err)
		}
		backend = bb
	case config.StoreTypeSQLite:
		sb, err := SQLiteBackendMake(location, 1)
		if err != nil {
			return nil, serrors.Wrap(serrors.CodeNoConnections, "could not open sqlite store", err)
		}
		backend = sb
	case config.StoreTypeFile:
		fb, err := FileBackendMake(location)
		if err != nil {
			return nil, serrors.Wrap(serrors.CodeNoConnections, "could not open file store", err)
		}
		backend = fb
	case config.StoreTypeRAM:
		backend = RAMBackendMake()
	}

	logger.Info("Store opened",
		zap.String("type", cfg.Core.StoreType),
		zap.String("table", table),
	)
	return StoreMake(backend, table, opts...), nil
}

// optionLogger returns the logger set through opts, if any.
func optionLogger(opts []Option) *zap.Logger {
	probe := &Store{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(probe)
	}
	return probe.logger
}
