package store

import "context"

// Record is one stored message keyed by its id.
type Record struct {
	ID   string
	Blob []byte
}

// Backend holds records in named tables. Implementations must be safe for
// concurrent use and must not retry failed operations.
type Backend interface {
	// Upsert writes blob under id, replacing any existing record.
	Upsert(ctx context.Context, table, id string, blob []byte) error
	// Delete removes the record for id. A missing id is not an error.
	Delete(ctx context.Context, table, id string) error
	// EnumerateAll returns every record in table, or an error and no records.
	EnumerateAll(ctx context.Context, table string) ([]Record, error)
	Close() error
}
