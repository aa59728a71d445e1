// Package local is the JSONL-backed storage implementation. It serves
// development setups without Postgres and the test suite; the on-disk layout
// is one metadata file each for users and tables, plus one rows file per user
// table under rows/.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tabulahq/tabula/internal/jsonldb"
	"github.com/tabulahq/tabula/internal/storage"
	"github.com/tabulahq/tabula/internal/table"
)

// Store implements storage.Metadata and storage.Userdata on JSONL files.
type Store struct {
	dir    string
	users  *jsonldb.Table[*storage.User]
	tables *jsonldb.Table[*tableRec]

	rows rowStores
}

var (
	_ storage.Metadata = (*Store)(nil)
	_ storage.Userdata = (*Store)(nil)
)

// tableRec is the stored form of table metadata.
type tableRec struct {
	table.Table
}

func (r *tableRec) Clone() *tableRec {
	c := *r
	c.Columns = make([]table.Column, len(r.Columns))
	copy(c.Columns, r.Columns)
	return &c
}

// Open opens (or initialises) a local store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	users, err := jsonldb.Open[*storage.User](filepath.Join(dir, "users.jsonl"))
	if err != nil {
		return nil, err
	}
	tables, err := jsonldb.Open[*tableRec](filepath.Join(dir, "tables.jsonl"))
	if err != nil {
		return nil, err
	}
	s := &Store{dir: dir, users: users, tables: tables}
	s.rows.dir = filepath.Join(dir, "rows")
	return s, nil
}

// CreateUser registers a new account.
func (s *Store) CreateUser(_ context.Context, user *storage.User) error {
	if _, ok := s.users.Find(func(u *storage.User) bool { return u.Username == user.Username }); ok {
		return storage.ErrUserExists
	}
	return s.users.Append(user.Clone())
}

// UserByName looks an account up by username.
func (s *Store) UserByName(_ context.Context, username string) (*storage.User, error) {
	u, ok := s.users.Find(func(u *storage.User) bool { return u.Username == username })
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return u, nil
}

// CreateTable registers table metadata.
func (s *Store) CreateTable(_ context.Context, t *table.Table) error {
	return s.tables.Append(&tableRec{Table: *t})
}

// GetTable returns the metadata for owner/name.
func (s *Store) GetTable(_ context.Context, owner, name string) (*table.Table, error) {
	rec, ok := s.tables.Find(func(r *tableRec) bool { return r.Owner == owner && r.Name == name })
	if !ok {
		return nil, storage.ErrTableNotFound
	}
	return &rec.Table, nil
}

// UpdateTable replaces stored metadata for t.UUID.
func (s *Store) UpdateTable(_ context.Context, t *table.Table) error {
	return s.mutateTables(t.UUID, func(r *tableRec) { r.Table = *t })
}

// MarkTableChanged bumps the last-changed timestamp.
func (s *Store) MarkTableChanged(_ context.Context, tableUUID uuid.UUID, when time.Time) error {
	return s.mutateTables(tableUUID, func(r *tableRec) { r.LastChanged = when })
}

func (s *Store) mutateTables(tableUUID uuid.UUID, mutate func(*tableRec)) error {
	var all []*tableRec
	found := false
	for r := range s.tables.All() {
		if r.UUID == tableUUID {
			mutate(r)
			found = true
		}
		all = append(all, r)
	}
	if !found {
		return storage.ErrTableNotFound
	}
	return s.tables.Rewrite(all)
}

// DeleteTable removes table metadata.
func (s *Store) DeleteTable(_ context.Context, tableUUID uuid.UUID) error {
	var all []*tableRec
	found := false
	for r := range s.tables.All() {
		if r.UUID == tableUUID {
			found = true
			continue
		}
		all = append(all, r)
	}
	if !found {
		return storage.ErrTableNotFound
	}
	return s.tables.Rewrite(all)
}

// TablesForUser lists a user's tables, most recently changed first.
func (s *Store) TablesForUser(_ context.Context, username string, includePrivate bool) ([]*table.Table, error) {
	var out []*table.Table
	for r := range s.tables.All() {
		if r.Owner != username {
			continue
		}
		if !r.IsPublic && !includePrivate {
			continue
		}
		t := r.Table
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastChanged.After(out[j].LastChanged) })
	return out, nil
}

// RecentPublicTables lists up to n most recently changed public tables.
func (s *Store) RecentPublicTables(_ context.Context, n int) ([]*table.Table, error) {
	var out []*table.Table
	for r := range s.tables.All() {
		if !r.IsPublic {
			continue
		}
		t := r.Table
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastChanged.After(out[j].LastChanged) })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}
