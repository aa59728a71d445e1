// Package pg is the Postgres storage implementation. Account and table
// metadata live in a metadata schema; each user table gets its own physical
// table in the userdata schema, named after the table's UUID, with the
// synthetic row id as an identity primary key. All DDL/DML for user tables is
// generated from the column metadata.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	// Registers the "postgres" driver.
	_ "github.com/lib/pq"
	"github.com/tabulahq/tabula/internal/storage"
	"github.com/tabulahq/tabula/internal/table"
)

// Store implements storage.Metadata and storage.Userdata on Postgres.
type Store struct {
	db *sql.DB
}

var (
	_ storage.Metadata = (*Store)(nil)
	_ storage.Userdata = (*Store)(nil)
)

// Open connects to Postgres and ensures the metadata schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS metadata`,
		`CREATE SCHEMA IF NOT EXISTS userdata`,
		`CREATE TABLE IF NOT EXISTS metadata.users (
			user_uuid uuid PRIMARY KEY,
			username text NOT NULL UNIQUE,
			password_hash text NOT NULL,
			api_key text NOT NULL,
			registered timestamptz NOT NULL,
			about text NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS metadata.tables (
			table_uuid uuid PRIMARY KEY,
			owner text NOT NULL,
			name text NOT NULL,
			is_public boolean NOT NULL,
			caption text NOT NULL DEFAULT '',
			created timestamptz NOT NULL,
			last_changed timestamptz NOT NULL,
			UNIQUE (owner, name)
		)`,
		`CREATE TABLE IF NOT EXISTS metadata.table_columns (
			table_uuid uuid NOT NULL REFERENCES metadata.tables (table_uuid) ON DELETE CASCADE,
			position integer NOT NULL,
			name text NOT NULL,
			col_type text NOT NULL,
			PRIMARY KEY (table_uuid, position)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

// CreateUser registers a new account.
func (s *Store) CreateUser(ctx context.Context, user *storage.User) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM metadata.users WHERE username = $1)`, user.Username).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return storage.ErrUserExists
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO metadata.users (user_uuid, username, password_hash, api_key, registered, about)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.UUID, user.Username, user.PasswordHash, user.APIKey, user.Registered, user.About)
	return err
}

// UserByName looks an account up by username.
func (s *Store) UserByName(ctx context.Context, username string) (*storage.User, error) {
	u := &storage.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT user_uuid, username, password_hash, api_key, registered, about
		 FROM metadata.users WHERE username = $1`, username).
		Scan(&u.UUID, &u.Username, &u.PasswordHash, &u.APIKey, &u.Registered, &u.About)
	if err == sql.ErrNoRows {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateTable registers table metadata.
func (s *Store) CreateTable(ctx context.Context, t *table.Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO metadata.tables (table_uuid, owner, name, is_public, caption, created, last_changed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.UUID, t.Owner, t.Name, t.IsPublic, t.Caption, t.Created, t.LastChanged)
	if err != nil {
		return err
	}
	if err := insertColumns(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

func insertColumns(ctx context.Context, tx *sql.Tx, t *table.Table) error {
	for i, c := range t.UserColumns() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO metadata.table_columns (table_uuid, position, name, col_type)
			 VALUES ($1, $2, $3, $4)`, t.UUID, i, c.Name, string(c.Type)); err != nil {
			return err
		}
	}
	return nil
}

// GetTable returns the metadata for owner/name, columns in ordinal order.
func (s *Store) GetTable(ctx context.Context, owner, name string) (*table.Table, error) {
	t := &table.Table{}
	err := s.db.QueryRowContext(ctx,
		`SELECT table_uuid, owner, name, is_public, caption, created, last_changed
		 FROM metadata.tables WHERE owner = $1 AND name = $2`, owner, name).
		Scan(&t.UUID, &t.Owner, &t.Name, &t.IsPublic, &t.Caption, &t.Created, &t.LastChanged)
	if err == sql.ErrNoRows {
		return nil, storage.ErrTableNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.Columns, err = s.columnsFor(ctx, t.UUID); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) columnsFor(ctx context.Context, tableUUID uuid.UUID) ([]table.Column, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, col_type FROM metadata.table_columns
		 WHERE table_uuid = $1 ORDER BY position`, tableUUID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cols []table.Column
	for rows.Next() {
		var name, colType string
		if err := rows.Scan(&name, &colType); err != nil {
			return nil, err
		}
		ct, ok := table.ParseColumnType(colType)
		if !ok {
			return nil, fmt.Errorf("table %s: unknown column type %q", tableUUID, colType)
		}
		cols = append(cols, table.Column{Name: name, Type: ct})
	}
	return cols, rows.Err()
}

// UpdateTable replaces the stored metadata for t.UUID.
func (s *Store) UpdateTable(ctx context.Context, t *table.Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE metadata.tables SET is_public = $2, caption = $3, last_changed = $4 WHERE table_uuid = $1`,
		t.UUID, t.IsPublic, t.Caption, t.LastChanged)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrTableNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM metadata.table_columns WHERE table_uuid = $1`, t.UUID); err != nil {
		return err
	}
	if err := insertColumns(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteTable removes table metadata; columns cascade.
func (s *Store) DeleteTable(ctx context.Context, tableUUID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM metadata.tables WHERE table_uuid = $1`, tableUUID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrTableNotFound
	}
	return nil
}

// MarkTableChanged bumps the table's last-changed timestamp.
func (s *Store) MarkTableChanged(ctx context.Context, tableUUID uuid.UUID, when time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE metadata.tables SET last_changed = $2 WHERE table_uuid = $1`, tableUUID, when)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrTableNotFound
	}
	return nil
}

// TablesForUser lists a user's tables, most recently changed first.
func (s *Store) TablesForUser(ctx context.Context, username string, includePrivate bool) ([]*table.Table, error) {
	query := `SELECT table_uuid, owner, name, is_public, caption, created, last_changed
		 FROM metadata.tables WHERE owner = $1`
	if !includePrivate {
		query += ` AND is_public`
	}
	query += ` ORDER BY last_changed DESC`
	return s.queryTables(ctx, query, username)
}

// RecentPublicTables lists up to n most recently changed public tables.
func (s *Store) RecentPublicTables(ctx context.Context, n int) ([]*table.Table, error) {
	return s.queryTables(ctx,
		`SELECT table_uuid, owner, name, is_public, caption, created, last_changed
		 FROM metadata.tables WHERE is_public ORDER BY last_changed DESC LIMIT $1`, n)
}

func (s *Store) queryTables(ctx context.Context, query string, args ...any) ([]*table.Table, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*table.Table
	for rows.Next() {
		t := &table.Table{}
		if err := rows.Scan(&t.UUID, &t.Owner, &t.Name, &t.IsPublic, &t.Caption, &t.Created, &t.LastChanged); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, t := range out {
		if t.Columns, err = s.columnsFor(ctx, t.UUID); err != nil {
			return nil, err
		}
	}
	return out, nil
}
