package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tabulahq/tabula/internal/storage"
	"github.com/tabulahq/tabula/internal/storage/local"
	"github.com/tabulahq/tabula/internal/table"
)

func newTestTable(t *testing.T) (*local.Store, *table.Table) {
	t.Helper()
	st, err := local.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	tbl := &table.Table{
		UUID:     uuid.New(),
		Owner:    "ada",
		Name:     "numbers",
		IsPublic: true,
		Columns: []table.Column{
			{Name: "n", Type: table.ColumnTypeInteger},
		},
		Created:     time.Now().UTC(),
		LastChanged: time.Now().UTC(),
	}
	if err := st.CreateUserdata(context.Background(), tbl); err != nil {
		t.Fatal(err)
	}
	return st, tbl
}

func insertN(t *testing.T, st *local.Store, tbl *table.Table, count int) {
	t.Helper()
	for i := 1; i <= count; i++ {
		id, err := st.InsertRow(context.Background(), tbl, table.Row{Cells: map[string]any{"n": int64(i * 10)}})
		if err != nil {
			t.Fatal(err)
		}
		if id != int64(i) {
			t.Fatalf("InsertRow assigned id %d, want %d", id, i)
		}
	}
}

func pageIDs(p table.Page) []int64 {
	ids := make([]int64, len(p.Rows))
	for i, r := range p.Rows {
		ids[i] = r.ID
	}
	return ids
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTablePageScenario(t *testing.T) {
	// Five rows, page size two: the worked example from the pagination
	// contract.
	st, tbl := newTestTable(t)
	insertN(t, st, tbl, 5)
	ctx := context.Background()

	tests := []struct {
		name     string
		ks       table.KeySet
		wantIDs  []int64
		wantMore bool
		wantLess bool
	}{
		{"first page", table.FirstPage(2), []int64{1, 2}, true, false},
		{"next after 2", table.KeySet{N: 2, Op: table.OpGreaterThan, Size: 2}, []int64{3, 4}, true, true},
		{"last page via max+1", table.KeySet{N: 6, Op: table.OpLessThan, Size: 2}, []int64{4, 5}, false, true},
		{"previous before 3", table.KeySet{N: 3, Op: table.OpLessThan, Size: 2}, []int64{1, 2}, true, false},
		{"past the top", table.KeySet{N: 50, Op: table.OpGreaterThan, Size: 2}, nil, false, true},
		{"past the bottom", table.KeySet{N: 0, Op: table.OpLessThan, Size: 2}, nil, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := storage.TablePage(ctx, st, tbl, tt.ks)
			if err != nil {
				t.Fatal(err)
			}
			if !equalIDs(pageIDs(page), tt.wantIDs) {
				t.Errorf("ids = %v, want %v", pageIDs(page), tt.wantIDs)
			}
			if page.HasMore != tt.wantMore {
				t.Errorf("HasMore = %v, want %v", page.HasMore, tt.wantMore)
			}
			if page.HasLess != tt.wantLess {
				t.Errorf("HasLess = %v, want %v", page.HasLess, tt.wantLess)
			}
		})
	}
}

func TestTablePageEmptyTable(t *testing.T) {
	st, tbl := newTestTable(t)
	page, err := storage.TablePage(context.Background(), st, tbl, table.FirstPage(10))
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Rows) != 0 || page.HasMore || page.HasLess {
		t.Errorf("empty table page = %+v, want empty with both flags false", page)
	}
}

func TestTablePageWalkReconstructsSequence(t *testing.T) {
	// Following "Next" boundaries from the first page must visit every row
	// exactly once, in ascending order, including across deletion gaps.
	st, tbl := newTestTable(t)
	insertN(t, st, tbl, 23)
	ctx := context.Background()
	for _, gone := range []int64{4, 5, 6, 12, 22} {
		if err := st.DeleteRow(ctx, tbl, gone); err != nil {
			t.Fatal(err)
		}
	}

	want := []int64{}
	for i := int64(1); i <= 23; i++ {
		switch i {
		case 4, 5, 6, 12, 22:
		default:
			want = append(want, i)
		}
	}

	var got []int64
	ks := table.FirstPage(4)
	for {
		page, err := storage.TablePage(ctx, st, tbl, ks)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, pageIDs(page)...)
		// HasLess is false exactly on the page holding the minimum id.
		if page.HasLess == page.ContainsID(want[0]) {
			t.Errorf("HasLess = %v on page %v", page.HasLess, pageIDs(page))
		}
		if !page.HasMore {
			if !page.ContainsID(want[len(want)-1]) {
				t.Errorf("HasMore false on page %v which lacks the max id", pageIDs(page))
			}
			break
		}
		ks = table.KeySet{N: page.LastID(), Op: table.OpGreaterThan, Size: 4}
	}
	if !equalIDs(got, want) {
		t.Errorf("walk = %v, want %v", got, want)
	}
}

func TestTablePageBackwardWalk(t *testing.T) {
	st, tbl := newTestTable(t)
	insertN(t, st, tbl, 7)
	ctx := context.Background()

	_, maxID, ok, err := st.RowIDBounds(ctx, tbl)
	if err != nil || !ok {
		t.Fatalf("RowIDBounds = %v, %v", ok, err)
	}

	var got []int64
	ks := table.KeySet{N: maxID + 1, Op: table.OpLessThan, Size: 3}
	for {
		page, err := storage.TablePage(ctx, st, tbl, ks)
		if err != nil {
			t.Fatal(err)
		}
		ids := pageIDs(page)
		got = append(ids, got...)
		if !page.HasLess {
			break
		}
		ks = table.KeySet{N: page.FirstID(), Op: table.OpLessThan, Size: 3}
	}
	want := []int64{1, 2, 3, 4, 5, 6, 7}
	if !equalIDs(got, want) {
		t.Errorf("backward walk = %v, want %v", got, want)
	}
}
