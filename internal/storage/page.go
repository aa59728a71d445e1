package storage

import (
	"context"

	"github.com/tabulahq/tabula/internal/table"
)

// TablePage fetches one page of rows for the given keyset.
//
// The decision logic is independent of any particular backend: the window
// query returns the rows satisfying the boundary predicate, then the flags
// are derived from the boundary rows of the window. When the window is empty
// the flags are derived from the boundary value itself, so that paging past
// either end of the data still reports which side the data is on. An empty
// table yields an empty page with both flags false.
func TablePage(ctx context.Context, data Userdata, t *table.Table, ks table.KeySet) (table.Page, error) {
	rows, err := data.Window(ctx, t, ks)
	if err != nil {
		return table.Page{}, err
	}

	var hasMore, hasLess bool
	if len(rows) > 0 {
		if hasMore, err = data.ExistsAbove(ctx, t, rows[len(rows)-1].ID); err != nil {
			return table.Page{}, err
		}
		if hasLess, err = data.ExistsBelow(ctx, t, rows[0].ID); err != nil {
			return table.Page{}, err
		}
	} else {
		switch ks.Op {
		case table.OpGreaterThan:
			// Nothing above the boundary; report whether data exists at or
			// below it (id < n+1 means id <= n).
			hasMore = false
			if hasLess, err = data.ExistsBelow(ctx, t, ks.N+1); err != nil {
				return table.Page{}, err
			}
		case table.OpLessThan:
			hasLess = false
			if hasMore, err = data.ExistsAbove(ctx, t, ks.N-1); err != nil {
				return table.Page{}, err
			}
		}
	}

	return table.Page{Rows: rows, HasMore: hasMore, HasLess: hasLess}, nil
}
