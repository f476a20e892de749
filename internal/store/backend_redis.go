package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jkassis/bbstore/internal/config"
)

const redisDialTimeout = 5 * time.Second

// RedisBackend keeps each table in one Redis hash: field = message id,
// value = base64 of the blob. Every operation checks out one pooled
// connection and returns it on all paths.
type RedisBackend struct {
	client   *redis.Client
	poolSize int
	logger   *zap.Logger
}

// RedisBackendMake builds the pool described by conn and reports how many
// connections answered a PING. The caller decides what zero means.
func RedisBackendMake(ctx context.Context, conn config.RedisConnection, logger *zap.Logger) (*RedisBackend, int) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := &redis.Options{
		Addr:        net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port)),
		Password:    conn.Password,
		DB:          conn.DatabaseIndex(),
		PoolSize:    conn.PoolSize(),
		DialTimeout: redisDialTimeout,
		MaxRetries:  -1, // failed writes are logged, never retried
	}
	if conn.IdleTimeout != nil && *conn.IdleTimeout > 0 {
		opts.ConnMaxIdleTime = time.Duration(*conn.IdleTimeout) * time.Second
	}

	b := &RedisBackend{
		client:   redis.NewClient(opts),
		poolSize: conn.PoolSize(),
		logger:   logger,
	}
	n := b.warm(ctx)
	logger.Info("Redis pool ready",
		zap.String("profile", conn.String()),
		zap.Int("connections", n),
		zap.Int("maxConnections", b.poolSize),
	)
	return b, n
}

// checkout borrows a dedicated connection from the pool.
func (b *RedisBackend) checkout() *redis.Conn {
	return b.client.Conn()
}

// checkin returns a connection to the pool.
func (b *RedisBackend) checkin(cn *redis.Conn) {
	if err := cn.Close(); err != nil {
		b.logger.Warn("Redis connection checkin failed", zap.Error(err))
	}
}

// warm opens up to poolSize connections at once and returns how many work.
func (b *RedisBackend) warm(ctx context.Context) int {
	held := make([]*redis.Conn, 0, b.poolSize)
	defer func() {
		for _, cn := range held {
			b.checkin(cn)
		}
	}()

	ok := 0
	for i := 0; i < b.poolSize; i++ {
		cn := b.checkout()
		held = append(held, cn)
		if err := cn.Ping(ctx).Err(); err != nil {
			b.logger.Error("Redis connection failed", zap.Int("slot", i), zap.Error(err))
			continue
		}
		ok++
	}
	return ok
}

// Upsert runs HSET table id base64(blob).
func (b *RedisBackend) Upsert(ctx context.Context, table, id string, blob []byte) error {
	cn := b.checkout()
	defer b.checkin(cn)

	if err := cn.HSet(ctx, table, id, base64.StdEncoding.EncodeToString(blob)).Err(); err != nil {
		return fmt.Errorf("HSET %s %s: %w", table, id, err)
	}
	return nil
}

// Delete runs HDEL table id.
func (b *RedisBackend) Delete(ctx context.Context, table, id string) error {
	cn := b.checkout()
	defer b.checkin(cn)

	if err := cn.HDel(ctx, table, id).Err(); err != nil {
		return fmt.Errorf("HDEL %s %s: %w", table, id, err)
	}
	return nil
}

// EnumerateAll runs HGETALL table. Fields whose value is not valid base64
// are logged and left out.
func (b *RedisBackend) EnumerateAll(ctx context.Context, table string) ([]Record, error) {
	cn := b.checkout()
	defer b.checkin(cn)

	all, err := cn.HGetAll(ctx, table).Result()
	if err != nil {
		return nil, fmt.Errorf("HGETALL %s: %w", table, err)
	}

	records := make([]Record, 0, len(all))
	for id, encoded := range all {
		blob, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			b.logger.Error("Could not base64 decode stored message", zap.String("table", table), zap.String("msgID", id), zap.Error(err))
			continue
		}
		b.logger.Debug("Found entry for message", zap.String("table", table), zap.String("msgID", id))
		records = append(records, Record{ID: id, Blob: blob})
	}
	return records, nil
}

// Close releases the pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

var _ Backend = (*RedisBackend)(nil)
