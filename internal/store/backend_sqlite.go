package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

var sqlIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteBackend keeps each table as an SQLite table of (id, message) rows.
type SQLiteBackend struct {
	sqlDB *sql.DB

	mu      sync.Mutex
	created map[string]bool
}

// SQLiteBackendMake opens the database at path with at most maxConns open connections.
func SQLiteBackendMake(path string, maxConns int) (*SQLiteBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if maxConns <= 0 {
		maxConns = 1
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxConns)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &SQLiteBackend{sqlDB: sqlDB, created: make(map[string]bool)}, nil
}

// ensureTable creates table on first use.
func (b *SQLiteBackend) ensureTable(ctx context.Context, table string) error {
	if !sqlIdentifier.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.created[table] {
		return nil
	}
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	message BLOB NOT NULL
)`, table)
	if _, err := b.sqlDB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	b.created[table] = true
	return nil
}

// Upsert inserts or replaces the row for id.
func (b *SQLiteBackend) Upsert(ctx context.Context, table, id string, blob []byte) error {
	if err := b.ensureTable(ctx, table); err != nil {
		return err
	}
	_, err := b.sqlDB.ExecContext(ctx,
		fmt.Sprintf("INSERT OR REPLACE INTO %s (id, message) VALUES (?, ?)", table), id, blob)
	return err
}

// Delete removes the row for id.
func (b *SQLiteBackend) Delete(ctx context.Context, table, id string) error {
	if err := b.ensureTable(ctx, table); err != nil {
		return err
	}
	_, err := b.sqlDB.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	return err
}

// EnumerateAll reads every row of table.
func (b *SQLiteBackend) EnumerateAll(ctx context.Context, table string) ([]Record, error) {
	if err := b.ensureTable(ctx, table); err != nil {
		return nil, err
	}
	rows, err := b.sqlDB.QueryContext(ctx, fmt.Sprintf("SELECT id, message FROM %s", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Blob); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the SQLite handle.
func (b *SQLiteBackend) Close() error {
	if b == nil || b.sqlDB == nil {
		return nil
	}
	return b.sqlDB.Close()
}

var _ Backend = (*SQLiteBackend)(nil)
