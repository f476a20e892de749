package store

import (
	"context"
	"sync"
)

// RAMBackend (fast but volatile)
type RAMBackend struct {
	mu     sync.Mutex
	tables map[string]map[string][]byte
}

func RAMBackendMake() *RAMBackend {
	return &RAMBackend{tables: make(map[string]map[string][]byte)}
}

func (b *RAMBackend) Upsert(ctx context.Context, table, id string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tables[table]
	if !ok {
		t = make(map[string][]byte)
		b.tables[table] = t
	}
	t[id] = append([]byte(nil), blob...)
	return nil
}

func (b *RAMBackend) Delete(ctx context.Context, table, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tables[table], id)
	return nil
}

func (b *RAMBackend) EnumerateAll(ctx context.Context, table string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	records := make([]Record, 0, len(b.tables[table]))
	for id, blob := range b.tables[table] {
		records = append(records, Record{ID: id, Blob: append([]byte(nil), blob...)})
	}
	return records, nil
}

func (b *RAMBackend) Close() error { return nil }

var _ Backend = (*RAMBackend)(nil)
