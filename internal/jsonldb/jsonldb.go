// Package jsonldb persists append-mostly tables as JSON Lines files with a
// full in-memory copy. It backs the local storage backend: user accounts,
// table metadata and per-table row data when no Postgres DSN is configured.
package jsonldb

import (
	"bufio"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
)

// Cloner is implemented by record types so that callers never share memory
// with the in-memory copy.
type Cloner[T any] interface {
	Clone() T
}

// Table is a JSONL-backed table of records of type T. All methods are safe
// for concurrent use.
type Table[T Cloner[T]] struct {
	path string

	mu      sync.RWMutex
	records []T
}

// Open loads (or creates) the table at path.
func Open[T Cloner[T]](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating directory for %s: %w", path, err)
	}
	t := &Table[T]{path: path}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table[T]) load() error {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.records = nil
			return nil
		}
		return fmt.Errorf("opening %s: %w", t.path, err)
	}
	defer func() { _ = f.Close() }()

	var records []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("decoding record in %s: %w", t.path, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", t.path, err)
	}
	t.records = records
	return nil
}

// Len returns the number of records.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// All iterates over clones of every record in insertion order.
func (t *Table[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		for _, rec := range t.records {
			if !yield(rec.Clone()) {
				return
			}
		}
	}
}

// Find returns a clone of the first record matching pred.
func (t *Table[T]) Find(pred func(T) bool) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, rec := range t.records {
		if pred(rec) {
			return rec.Clone(), true
		}
	}
	var zero T
	return zero, false
}

// Append adds records to the table and persists them.
func (t *Table[T]) Append(records ...T) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s for append: %w", t.path, err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("writing %s: %w", t.path, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing %s: %w", t.path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", t.path, err)
	}
	t.records = append(t.records, records...)
	return nil
}

// Rewrite atomically replaces the whole table with records. Used for updates
// and deletes, which are rare compared to appends.
func (t *Table[T]) Rewrite(records []T) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tmp := t.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	w := bufio.NewWriter(f)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("encoding record: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing %s: %w", tmp, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing %s: %w", tmp, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flushing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("replacing %s: %w", t.path, err)
	}
	t.records = records
	return nil
}

// Delete removes the backing file. The table must not be used afterwards.
func (t *Table[T]) Delete() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = nil
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
