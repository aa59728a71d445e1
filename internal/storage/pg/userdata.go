package pg

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/lib/pq"
	"github.com/tabulahq/tabula/internal/storage"
	"github.com/tabulahq/tabula/internal/table"
)

// physicalName is the name of the backing table in the userdata schema. The
// UUID is hex without dashes so the identifier stays well under Postgres's 63
// byte limit.
func physicalName(t *table.Table) string {
	return "userdata_" + strings.ReplaceAll(t.UUID.String(), "-", "")
}

func qualifiedName(t *table.Table) string {
	return "userdata." + pq.QuoteIdentifier(physicalName(t))
}

// pgType maps a column type to its Postgres column type.
func pgType(ct table.ColumnType) string {
	switch ct {
	case table.ColumnTypeText:
		return "text"
	case table.ColumnTypeInteger:
		return "bigint"
	case table.ColumnTypeFloat:
		return "double precision"
	case table.ColumnTypeBoolean:
		return "boolean"
	case table.ColumnTypeDate:
		return "date"
	}
	return "text"
}

// createTableSQL builds the DDL for a user table's backing table.
func createTableSQL(t *table.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", qualifiedName(t))
	fmt.Fprintf(&b, "\t%s bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY", pq.QuoteIdentifier(table.RowIDColumnName))
	for _, c := range t.UserColumns() {
		fmt.Fprintf(&b, ",\n\t%s %s", pq.QuoteIdentifier(c.Name), pgType(c.Type))
	}
	b.WriteString("\n)")
	return b.String()
}

// quotedUserColumns returns the quoted user column identifiers in order.
func quotedUserColumns(t *table.Table) []string {
	cols := t.UserColumns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pq.QuoteIdentifier(c.Name)
	}
	return out
}

// insertRowSQL builds the INSERT returning the assigned row id. A table with
// no user columns still accepts rows via DEFAULT VALUES.
func insertRowSQL(t *table.Table) string {
	cols := quotedUserColumns(t)
	if len(cols) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s",
			qualifiedName(t), pq.QuoteIdentifier(table.RowIDColumnName))
	}
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		qualifiedName(t), strings.Join(cols, ", "), strings.Join(params, ", "),
		pq.QuoteIdentifier(table.RowIDColumnName))
}

func selectRowSQL(t *table.Table) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		strings.Join(quotedUserColumns(t), ", "), qualifiedName(t),
		pq.QuoteIdentifier(table.RowIDColumnName))
}

func updateRowSQL(t *table.Table) string {
	cols := quotedUserColumns(t)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+2)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = $1",
		qualifiedName(t), strings.Join(sets, ", "),
		pq.QuoteIdentifier(table.RowIDColumnName))
}

// windowSQL builds the keyset window query. Backward pages select the highest
// ids below the boundary in descending order; callers re-sort ascending.
func windowSQL(t *table.Table, op table.KeySetOp) string {
	rowID := pq.QuoteIdentifier(table.RowIDColumnName)
	cmp, dir := ">", "ASC"
	if op == table.OpLessThan {
		cmp, dir = "<", "DESC"
	}
	cols := append([]string{rowID}, quotedUserColumns(t)...)
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s %s $1 ORDER BY %s %s LIMIT $2",
		strings.Join(cols, ", "), qualifiedName(t), rowID, cmp, rowID, dir)
}

// rowValues converts typed cells into driver arguments, in user column order.
func rowValues(t *table.Table, row table.Row) []any {
	cols := t.UserColumns()
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = row.Cells[c.Name]
	}
	return args
}

// scanDest returns scan targets for the user columns plus a closure that
// converts the scanned values into typed cells.
func scanDest(t *table.Table) ([]any, func() map[string]any) {
	cols := t.UserColumns()
	dest := make([]any, len(cols))
	for i, c := range cols {
		switch c.Type {
		case table.ColumnTypeInteger:
			dest[i] = &sql.NullInt64{}
		case table.ColumnTypeFloat:
			dest[i] = &sql.NullFloat64{}
		case table.ColumnTypeBoolean:
			dest[i] = &sql.NullBool{}
		case table.ColumnTypeDate:
			dest[i] = &sql.NullTime{}
		default:
			dest[i] = &sql.NullString{}
		}
	}
	return dest, func() map[string]any {
		cells := make(map[string]any, len(cols))
		for i, c := range cols {
			switch d := dest[i].(type) {
			case *sql.NullInt64:
				if d.Valid {
					cells[c.Name] = d.Int64
				} else {
					cells[c.Name] = nil
				}
			case *sql.NullFloat64:
				if d.Valid {
					cells[c.Name] = d.Float64
				} else {
					cells[c.Name] = nil
				}
			case *sql.NullBool:
				if d.Valid {
					cells[c.Name] = d.Bool
				} else {
					cells[c.Name] = nil
				}
			case *sql.NullTime:
				if d.Valid {
					cells[c.Name] = d.Time.UTC()
				} else {
					cells[c.Name] = nil
				}
			case *sql.NullString:
				if d.Valid {
					cells[c.Name] = d.String
				} else {
					cells[c.Name] = nil
				}
			}
		}
		return cells
	}
}

// CreateUserdata creates the backing table.
func (s *Store) CreateUserdata(ctx context.Context, t *table.Table) error {
	_, err := s.db.ExecContext(ctx, createTableSQL(t))
	if err != nil {
		return fmt.Errorf("creating backing table for %s: %w", t.Ref(), err)
	}
	return nil
}

// DropUserdata drops the backing table.
func (s *Store) DropUserdata(ctx context.Context, t *table.Table) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", qualifiedName(t)))
	return err
}

// InsertRow inserts a row and returns the identity-assigned id.
func (s *Store) InsertRow(ctx context.Context, t *table.Table, row table.Row) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, insertRowSQL(t), rowValues(t, row)...).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetRow returns the row with the given id.
func (s *Store) GetRow(ctx context.Context, t *table.Table, rowID int64) (table.Row, error) {
	dest, cells := scanDest(t)
	err := s.db.QueryRowContext(ctx, selectRowSQL(t), rowID).Scan(dest...)
	if err == sql.ErrNoRows {
		return table.Row{}, storage.ErrRowNotFound
	}
	if err != nil {
		return table.Row{}, err
	}
	return table.Row{ID: rowID, Cells: cells()}, nil
}

// UpdateRow fully replaces the row with the given id.
func (s *Store) UpdateRow(ctx context.Context, t *table.Table, rowID int64, row table.Row) error {
	args := append([]any{rowID}, rowValues(t, row)...)
	res, err := s.db.ExecContext(ctx, updateRowSQL(t), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrRowNotFound
	}
	return nil
}

// DeleteRow removes the row with the given id. Identity columns never hand
// out the same id twice, so deleted ids stay dead.
func (s *Store) DeleteRow(ctx context.Context, t *table.Table, rowID int64) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
			qualifiedName(t), pq.QuoteIdentifier(table.RowIDColumnName)), rowID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrRowNotFound
	}
	return nil
}

// Window returns at most ks.Size rows satisfying the boundary, ascending.
func (s *Store) Window(ctx context.Context, t *table.Table, ks table.KeySet) ([]table.Row, error) {
	rows, err := s.db.QueryContext(ctx, windowSQL(t, ks.Op), ks.N, ks.Size)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []table.Row
	for rows.Next() {
		var id int64
		dest, cells := scanDest(t)
		if err := rows.Scan(append([]any{&id}, dest...)...); err != nil {
			return nil, err
		}
		out = append(out, table.Row{ID: id, Cells: cells()})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if ks.Op == table.OpLessThan {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	return out, nil
}

// ExistsAbove reports whether any row has id > rowID.
func (s *Store) ExistsAbove(ctx context.Context, t *table.Table, rowID int64) (bool, error) {
	return s.exists(ctx, t, ">", rowID)
}

// ExistsBelow reports whether any row has id < rowID.
func (s *Store) ExistsBelow(ctx context.Context, t *table.Table, rowID int64) (bool, error) {
	return s.exists(ctx, t, "<", rowID)
}

func (s *Store) exists(ctx context.Context, t *table.Table, cmp string, rowID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s %s $1)",
			qualifiedName(t), pq.QuoteIdentifier(table.RowIDColumnName), cmp), rowID).Scan(&exists)
	return exists, err
}

// RowIDBounds returns the minimum and maximum row ids, or ok=false when empty.
func (s *Store) RowIDBounds(ctx context.Context, t *table.Table) (minID, maxID int64, ok bool, err error) {
	var lo, hi sql.NullInt64
	rowID := pq.QuoteIdentifier(table.RowIDColumnName)
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT min(%s), max(%s) FROM %s", rowID, rowID, qualifiedName(t))).Scan(&lo, &hi)
	if err != nil {
		return 0, 0, false, err
	}
	if !lo.Valid {
		return 0, 0, false, nil
	}
	return lo.Int64, hi.Int64, true, nil
}

// AllRows streams every row ascending, for whole-table exports. The
// connection stays busy until the iterator is drained or abandoned.
func (s *Store) AllRows(ctx context.Context, t *table.Table) iter.Seq2[table.Row, error] {
	rowID := pq.QuoteIdentifier(table.RowIDColumnName)
	cols := append([]string{rowID}, quotedUserColumns(t)...)
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "), qualifiedName(t), rowID)
	return func(yield func(table.Row, error) bool) {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			yield(table.Row{}, err)
			return
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var id int64
			dest, cells := scanDest(t)
			if err := rows.Scan(append([]any{&id}, dest...)...); err != nil {
				yield(table.Row{}, err)
				return
			}
			if !yield(table.Row{ID: id, Cells: cells()}, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(table.Row{}, err)
		}
	}
}
