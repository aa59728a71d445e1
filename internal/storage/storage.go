// Package storage defines the persistence contracts: account and table
// metadata on one side, user row data with keyset pagination primitives on
// the other. Two implementations exist: Postgres (storage/pg) for production
// and a JSONL-backed local store (storage/local) for development and tests.
package storage

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/tabulahq/tabula/internal/table"
)

var (
	// ErrUserNotFound is returned when no user has the given name.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when registering an already-taken username.
	ErrUserExists = errors.New("username already taken")
	// ErrTableNotFound is returned when a user has no table of the given name.
	ErrTableNotFound = errors.New("table not found")
	// ErrRowNotFound is returned for operations on a row id the table lacks.
	ErrRowNotFound = errors.New("row not found")
)

// User is an account. The API key is the Basic auth password for API access,
// generated at registration.
type User struct {
	UUID         uuid.UUID `json:"uuid"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	APIKey       string    `json:"api_key"` // 16 random bytes, hex encoded
	Registered   time.Time `json:"registered"`
	About        string    `json:"about"`
}

// Clone returns a copy of the user.
func (u *User) Clone() *User {
	c := *u
	return &c
}

// Metadata stores accounts and table metadata.
type Metadata interface {
	CreateUser(ctx context.Context, user *User) error
	UserByName(ctx context.Context, username string) (*User, error)

	// CreateTable registers table metadata. The UUID must already be set.
	CreateTable(ctx context.Context, t *table.Table) error
	GetTable(ctx context.Context, owner, name string) (*table.Table, error)
	// UpdateTable replaces the stored metadata for t.UUID (columns, caption,
	// visibility, last-changed).
	UpdateTable(ctx context.Context, t *table.Table) error
	DeleteTable(ctx context.Context, tableUUID uuid.UUID) error
	// MarkTableChanged bumps the table's last-changed timestamp.
	MarkTableChanged(ctx context.Context, tableUUID uuid.UUID, when time.Time) error
	// TablesForUser lists a user's tables, newest first. Private tables are
	// included only when includePrivate is set.
	TablesForUser(ctx context.Context, username string, includePrivate bool) ([]*table.Table, error)
	// RecentPublicTables lists up to n most recently changed public tables.
	RecentPublicTables(ctx context.Context, n int) ([]*table.Table, error)
}

// Userdata stores the rows of user tables and exposes the primitives the
// keyset paginator is built from. Window, ExistsAbove and ExistsBelow are
// deliberately narrow so that TablePage stays a pure decision function.
type Userdata interface {
	// CreateUserdata provisions row storage for a new table.
	CreateUserdata(ctx context.Context, t *table.Table) error
	// DropUserdata removes a table's row storage.
	DropUserdata(ctx context.Context, t *table.Table) error

	// InsertRow appends a row and returns the assigned strictly increasing id.
	InsertRow(ctx context.Context, t *table.Table, row table.Row) (int64, error)
	GetRow(ctx context.Context, t *table.Table, rowID int64) (table.Row, error)
	// UpdateRow fully replaces the row. Returns ErrRowNotFound if absent.
	UpdateRow(ctx context.Context, t *table.Table, rowID int64, row table.Row) error
	// DeleteRow removes the row. Its id is never reused.
	DeleteRow(ctx context.Context, t *table.Table, rowID int64) error

	// Window returns at most ks.Size rows satisfying the boundary predicate,
	// in ascending row id order. For OpLessThan these are the highest ids
	// below the boundary, re-sorted ascending.
	Window(ctx context.Context, t *table.Table, ks table.KeySet) ([]table.Row, error)
	// ExistsAbove reports whether any row has id > rowID.
	ExistsAbove(ctx context.Context, t *table.Table, rowID int64) (bool, error)
	// ExistsBelow reports whether any row has id < rowID.
	ExistsBelow(ctx context.Context, t *table.Table, rowID int64) (bool, error)
	// RowIDBounds returns the minimum and maximum row ids, or ok=false for an
	// empty table.
	RowIDBounds(ctx context.Context, t *table.Table) (minID, maxID int64, ok bool, err error)

	// AllRows streams every row in ascending id order, for whole-table
	// exports.
	AllRows(ctx context.Context, t *table.Table) iter.Seq2[table.Row, error]
}

// Store bundles the two halves of the persistence layer.
type Store struct {
	Meta Metadata
	Data Userdata
}
