package local

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/tabulahq/tabula/internal/jsonldb"
	"github.com/tabulahq/tabula/internal/storage"
	"github.com/tabulahq/tabula/internal/table"
)

// rowRec is the stored form of one row. Cells hold JSON-safe values (dates as
// YYYY-MM-DD strings); they are re-typed against the table's columns on read.
type rowRec struct {
	ID    int64          `json:"id"`
	Cells map[string]any `json:"cells"`
}

func (r *rowRec) Clone() *rowRec {
	c := &rowRec{ID: r.ID, Cells: make(map[string]any, len(r.Cells))}
	for k, v := range r.Cells {
		c.Cells[k] = v
	}
	return c
}

// rowStore is the row file for one table. Records are kept in ascending row
// id order: appends always carry the next id and rewrites preserve order.
type rowStore struct {
	mu     sync.Mutex
	tbl    *jsonldb.Table[*rowRec]
	nextID int64
}

// rowStores lazily opens row files, one per table UUID.
type rowStores struct {
	dir string
	mu  sync.Mutex
	m   map[uuid.UUID]*rowStore
}

func (rs *rowStores) get(tableUUID uuid.UUID) (*rowStore, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.m == nil {
		rs.m = make(map[uuid.UUID]*rowStore)
	}
	if st, ok := rs.m[tableUUID]; ok {
		return st, nil
	}
	tbl, err := jsonldb.Open[*rowRec](filepath.Join(rs.dir, tableUUID.String()+".jsonl"))
	if err != nil {
		return nil, err
	}
	st := &rowStore{tbl: tbl, nextID: 1}
	for r := range tbl.All() {
		if r.ID >= st.nextID {
			st.nextID = r.ID + 1
		}
	}
	rs.m[tableUUID] = st
	return st, nil
}

func (rs *rowStores) drop(tableUUID uuid.UUID) error {
	st, err := rs.get(tableUUID)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	delete(rs.m, tableUUID)
	rs.mu.Unlock()
	return st.tbl.Delete()
}

func encodeRow(t *table.Table, row table.Row) *rowRec {
	rec := &rowRec{ID: row.ID, Cells: make(map[string]any, len(row.Cells))}
	for _, c := range t.UserColumns() {
		rec.Cells[c.Name] = c.Type.ToJSON(row.Cells[c.Name])
	}
	return rec
}

func decodeRow(t *table.Table, rec *rowRec) (table.Row, error) {
	row := table.Row{ID: rec.ID, Cells: make(map[string]any, len(rec.Cells))}
	for _, c := range t.UserColumns() {
		v, err := c.Type.FromJSON(rec.Cells[c.Name])
		if err != nil {
			return table.Row{}, fmt.Errorf("row %d, column %q: %w", rec.ID, c.Name, err)
		}
		row.Cells[c.Name] = v
	}
	return row, nil
}

// CreateUserdata provisions the rows file for a new table.
func (s *Store) CreateUserdata(_ context.Context, t *table.Table) error {
	_, err := s.rows.get(t.UUID)
	return err
}

// DropUserdata removes a table's rows file.
func (s *Store) DropUserdata(_ context.Context, t *table.Table) error {
	return s.rows.drop(t.UUID)
}

// InsertRow appends a row and returns its assigned id.
func (s *Store) InsertRow(_ context.Context, t *table.Table, row table.Row) (int64, error) {
	st, err := s.rows.get(t.UUID)
	if err != nil {
		return 0, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	rec := encodeRow(t, row)
	rec.ID = st.nextID
	if err := st.tbl.Append(rec); err != nil {
		return 0, err
	}
	st.nextID++
	return rec.ID, nil
}

// GetRow returns the row with the given id.
func (s *Store) GetRow(_ context.Context, t *table.Table, rowID int64) (table.Row, error) {
	st, err := s.rows.get(t.UUID)
	if err != nil {
		return table.Row{}, err
	}
	rec, ok := st.tbl.Find(func(r *rowRec) bool { return r.ID == rowID })
	if !ok {
		return table.Row{}, storage.ErrRowNotFound
	}
	return decodeRow(t, rec)
}

// UpdateRow fully replaces the row with the given id.
func (s *Store) UpdateRow(_ context.Context, t *table.Table, rowID int64, row table.Row) error {
	st, err := s.rows.get(t.UUID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	var all []*rowRec
	found := false
	for r := range st.tbl.All() {
		if r.ID == rowID {
			rec := encodeRow(t, row)
			rec.ID = rowID
			r = rec
			found = true
		}
		all = append(all, r)
	}
	if !found {
		return storage.ErrRowNotFound
	}
	return st.tbl.Rewrite(all)
}

// DeleteRow removes the row with the given id. The id is not reused: the next
// id counter only ever moves forward.
func (s *Store) DeleteRow(_ context.Context, t *table.Table, rowID int64) error {
	st, err := s.rows.get(t.UUID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	var all []*rowRec
	found := false
	for r := range st.tbl.All() {
		if r.ID == rowID {
			found = true
			continue
		}
		all = append(all, r)
	}
	if !found {
		return storage.ErrRowNotFound
	}
	return st.tbl.Rewrite(all)
}

// Window returns at most ks.Size rows satisfying the keyset boundary, in
// ascending id order.
func (s *Store) Window(_ context.Context, t *table.Table, ks table.KeySet) ([]table.Row, error) {
	st, err := s.rows.get(t.UUID)
	if err != nil {
		return nil, err
	}
	var recs []*rowRec
	for r := range st.tbl.All() {
		switch ks.Op {
		case table.OpGreaterThan:
			if r.ID > ks.N {
				recs = append(recs, r)
			}
		case table.OpLessThan:
			if r.ID < ks.N {
				recs = append(recs, r)
			}
		}
	}
	// Records are in ascending id order; forward pagination takes the first
	// Size matches, backward pagination the last Size.
	if ks.Op == table.OpGreaterThan && len(recs) > ks.Size {
		recs = recs[:ks.Size]
	} else if ks.Op == table.OpLessThan && len(recs) > ks.Size {
		recs = recs[len(recs)-ks.Size:]
	}
	rows := make([]table.Row, 0, len(recs))
	for _, rec := range recs {
		row, err := decodeRow(t, rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ExistsAbove reports whether any row has id > rowID.
func (s *Store) ExistsAbove(_ context.Context, t *table.Table, rowID int64) (bool, error) {
	st, err := s.rows.get(t.UUID)
	if err != nil {
		return false, err
	}
	_, ok := st.tbl.Find(func(r *rowRec) bool { return r.ID > rowID })
	return ok, nil
}

// ExistsBelow reports whether any row has id < rowID.
func (s *Store) ExistsBelow(_ context.Context, t *table.Table, rowID int64) (bool, error) {
	st, err := s.rows.get(t.UUID)
	if err != nil {
		return false, err
	}
	_, ok := st.tbl.Find(func(r *rowRec) bool { return r.ID < rowID })
	return ok, nil
}

// RowIDBounds returns the minimum and maximum ids, or ok=false when empty.
func (s *Store) RowIDBounds(_ context.Context, t *table.Table) (minID, maxID int64, ok bool, err error) {
	st, err := s.rows.get(t.UUID)
	if err != nil {
		return 0, 0, false, err
	}
	first := true
	for r := range st.tbl.All() {
		if first {
			minID = r.ID
			first = false
		}
		maxID = r.ID
	}
	return minID, maxID, !first, nil
}

// AllRows streams every row in ascending id order.
func (s *Store) AllRows(ctx context.Context, t *table.Table) iter.Seq2[table.Row, error] {
	return func(yield func(table.Row, error) bool) {
		st, err := s.rows.get(t.UUID)
		if err != nil {
			yield(table.Row{}, err)
			return
		}
		for rec := range st.tbl.All() {
			row, err := decodeRow(t, rec)
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}
