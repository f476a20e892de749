package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerBackend implements a durable record store using BadgerDB.
type BadgerBackend struct {
	db     *badger.DB
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// BadgerBackendMake opens a BadgerDB-backed record store with sync writes enabled.
// An empty path opens an in-memory database.
func BadgerBackendMake(path string, logger *zap.Logger) (*BadgerBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).          // Ensures writes are flushed to disk immediately
		WithLoggingLevel(badger.ERROR) // Reduce log noise
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	logger.Debug("BadgerDB opened", zap.String("path", path))
	return &BadgerBackend{db: db, path: path, logger: logger}, nil
}

func badgerPrefix(table string) []byte {
	return []byte(fmt.Sprintf("msg:%s:", table))
}

func badgerKey(table, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%s", table, id))
}

// Upsert persists a record under "msg:<table>:<id>".
func (b *BadgerBackend) Upsert(ctx context.Context, table, id string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(table, id), blob)
	})
	if err == nil {
		b.logger.Debug("Record saved to BadgerDB", zap.String("table", table), zap.String("msgID", id))
	}
	return err
}

// Delete removes a record from BadgerDB.
func (b *BadgerBackend) Delete(ctx context.Context, table, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(table, id))
	})
	if err == nil {
		b.logger.Debug("Record deleted from BadgerDB", zap.String("table", table), zap.String("msgID", id))
	}
	return err
}

// EnumerateAll reads every record in table within one read transaction.
func (b *BadgerBackend) EnumerateAll(ctx context.Context, table string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := badgerPrefix(table)
	var records []Record

	err := b.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.Prefix = prefix
		it := txn.NewIterator(itOpts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			blob, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			records = append(records, Record{ID: string(item.Key()[len(prefix):]), Blob: blob})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the BadgerDB connection.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	b.logger.Debug("Closing BadgerDB", zap.String("path", b.path))
	err := b.db.Close()
	b.db = nil
	return err
}

var _ Backend = (*BadgerBackend)(nil)
