// Package table defines the value objects shared across the application:
// tables, typed columns, rows, and the keyset pagination cursor.
//
// User tables are dynamically shaped: the column set is data, not Go structs.
// Every row additionally carries tabula_row_id, a server-assigned strictly
// increasing integer that is never reused or mutated. All pagination is keyed
// on that single column.
package table

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// RowIDColumnName is the synthetic primary key column present on every table.
const RowIDColumnName = "tabula_row_id"

// RowIDColumn is the column definition for the synthetic row id.
var RowIDColumn = Column{Name: RowIDColumnName, Type: ColumnTypeInteger}

var (
	errTableNameInvalid = errors.New("table names must start with a letter and contain only letters, digits and dashes")
	errUsernameInvalid  = errors.New("usernames must start with a letter and contain only letters, digits and dashes")
)

// Dots are excluded so that a trailing ".json"/".csv" on a URL always means a
// format suffix, never part of the table name.
var nameRegex = regexp.MustCompile(`^[A-Za-z][-A-Za-z0-9_]*$`)

// CheckTableName validates a user-supplied table name.
func CheckTableName(name string) error {
	if !nameRegex.MatchString(name) {
		return errTableNameInvalid
	}
	return nil
}

// CheckUsername validates a user-supplied username.
func CheckUsername(name string) error {
	if !nameRegex.MatchString(name) {
		return errUsernameInvalid
	}
	return nil
}

// Table is the metadata for one user table.
type Table struct {
	UUID        uuid.UUID `json:"uuid"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	IsPublic    bool      `json:"is_public"`
	Caption     string    `json:"caption"`
	Columns     []Column  `json:"columns"`
	Created     time.Time `json:"created"`
	LastChanged time.Time `json:"last_changed"`
}

// Ref returns the canonical "owner/name" reference for the table.
func (t *Table) Ref() string {
	return t.Owner + "/" + t.Name
}

// UserColumns returns the columns excluding the synthetic row id.
func (t *Table) UserColumns() []Column {
	cols := make([]Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name != RowIDColumnName {
			cols = append(cols, c)
		}
	}
	return cols
}

// ColumnByName returns the named column, or false if the table has no such
// column.
func (t *Table) ColumnByName(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Row is one row of a user table. Cells is keyed by column name and holds
// typed values (int64, float64, bool, string, time.Time) or nil.
type Row struct {
	ID    int64
	Cells map[string]any
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	cells := make(map[string]any, len(r.Cells))
	for k, v := range r.Cells {
		cells[k] = v
	}
	return Row{ID: r.ID, Cells: cells}
}

// Page is a bounded window of rows in ascending row id order. HasMore and
// HasLess report whether rows exist beyond either boundary of the window, not
// merely whether the window itself is non-empty.
type Page struct {
	Rows    []Row
	HasMore bool
	HasLess bool
}

// FirstID returns the row id of the first row, or 0 for an empty page.
func (p *Page) FirstID() int64 {
	if len(p.Rows) == 0 {
		return 0
	}
	return p.Rows[0].ID
}

// LastID returns the row id of the last row, or 0 for an empty page.
func (p *Page) LastID() int64 {
	if len(p.Rows) == 0 {
		return 0
	}
	return p.Rows[len(p.Rows)-1].ID
}

// ContainsID reports whether the page includes the given row id.
func (p *Page) ContainsID(id int64) bool {
	for _, r := range p.Rows {
		if r.ID == id {
			return true
		}
	}
	return false
}

// Column is one typed column of a user table. Ordinal order is the order of
// the Columns slice on Table.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

func (c Column) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.Type)
}
