package table

import (
	"errors"
	"fmt"
	"strconv"
)

// DefaultPageSize is the number of rows in one page.
const DefaultPageSize = 11

// ErrInvalidBoundary is wrapped by all keyset parse failures so the HTTP
// layer can map them to a 400 collectively.
var ErrInvalidBoundary = errors.New("invalid pagination boundary")

// KeySetOp is the comparison direction of a pagination boundary.
type KeySetOp string

const (
	// OpGreaterThan pages forward: rows with id > n, ascending.
	OpGreaterThan KeySetOp = "gt"
	// OpLessThan pages backward: the highest ids below n, re-sorted ascending.
	OpLessThan KeySetOp = "lt"
)

// KeySet is the pagination cursor: a boundary row id and a direction.
//
// The key is hardcoded to the single tabula_row_id column. That does not
// generalise to multi-column sort orders; if those ever become a requirement
// this needs to grow into a composite key tuple.
type KeySet struct {
	N    int64
	Op   KeySetOp
	Size int
}

// FirstPage is the keyset for the first page of a table.
func FirstPage(size int) KeySet {
	return KeySet{N: 0, Op: OpGreaterThan, Size: size}
}

// ParseKeySet builds a KeySet from the raw "op" and "n" query parameters.
// Absent parameters mean the first page. Supplying op without n, an unknown
// op, or a non-integer n is an error wrapping ErrInvalidBoundary.
func ParseKeySet(opParam, nParam string, size int) (KeySet, error) {
	if size <= 0 {
		size = DefaultPageSize
	}
	if opParam == "" && nParam == "" {
		return FirstPage(size), nil
	}
	if opParam != "" && nParam == "" {
		return KeySet{}, fmt.Errorf("%w: op=%q supplied without n", ErrInvalidBoundary, opParam)
	}

	op := OpGreaterThan
	switch opParam {
	case "", "gt":
	case "lt":
		op = OpLessThan
	default:
		return KeySet{}, fmt.Errorf("%w: unknown op %q", ErrInvalidBoundary, opParam)
	}

	n, err := strconv.ParseInt(nParam, 10, 64)
	if err != nil {
		return KeySet{}, fmt.Errorf("%w: n=%q is not a row id", ErrInvalidBoundary, nParam)
	}
	return KeySet{N: n, Op: op, Size: size}, nil
}
