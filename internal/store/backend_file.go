package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps each table as a JSON file <dir>/<table>.json mapping
// id to blob. Writes replace the whole file atomically.
type FileBackend struct {
	dir string
	mu  sync.Mutex
}

// FileBackendMake returns a FileBackend rooted at dir, creating it if needed.
func FileBackendMake(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(table string) (string, error) {
	if table == "" || filepath.Base(table) != table {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return filepath.Join(b.dir, table+".json"), nil
}

func (b *FileBackend) Upsert(ctx context.Context, table, id string, blob []byte) error {
	return b.mutate(ctx, table, func(records map[string][]byte) {
		records[id] = blob
	})
}

func (b *FileBackend) Delete(ctx context.Context, table, id string) error {
	return b.mutate(ctx, table, func(records map[string][]byte) {
		delete(records, id)
	})
}

func (b *FileBackend) EnumerateAll(ctx context.Context, table string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := b.path(table)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	records := make(map[string][]byte)
	if err := readJSON(path, &records); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(records))
	for id, blob := range records {
		out = append(out, Record{ID: id, Blob: blob})
	}
	return out, nil
}

func (b *FileBackend) mutate(ctx context.Context, table string, fn func(map[string][]byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.path(table)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	records := make(map[string][]byte)
	if err := readJSON(path, &records); err != nil {
		return err
	}
	fn(records)
	return writeJSON(path, records, 0o600)
}

func (b *FileBackend) Close() error { return nil }

// readJSON reads path into out; a missing file is not an error.
func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// writeJSON writes v via a temp file, then atomically replaces path.
func writeJSON(path string, v any, mode os.FileMode) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

var _ Backend = (*FileBackend)(nil)
