package table

import (
	"errors"
	"testing"
)

func TestParseKeySet(t *testing.T) {
	tests := []struct {
		name    string
		op, n   string
		want    KeySet
		wantErr bool
	}{
		{"no params is first page", "", "", KeySet{N: 0, Op: OpGreaterThan, Size: 5}, false},
		{"forward", "gt", "10", KeySet{N: 10, Op: OpGreaterThan, Size: 5}, false},
		{"backward", "lt", "10", KeySet{N: 10, Op: OpLessThan, Size: 5}, false},
		{"n without op defaults to gt", "", "3", KeySet{N: 3, Op: OpGreaterThan, Size: 5}, false},
		{"op without n", "gt", "", KeySet{}, true},
		{"unknown op", "between", "3", KeySet{}, true},
		{"non-integer n", "gt", "abc", KeySet{}, true},
		{"float n", "lt", "1.5", KeySet{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKeySet(tt.op, tt.n, 5)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrInvalidBoundary) {
					t.Errorf("error = %v, want ErrInvalidBoundary", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseKeySetDefaultSize(t *testing.T) {
	ks, err := ParseKeySet("", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if ks.Size != DefaultPageSize {
		t.Errorf("Size = %d, want %d", ks.Size, DefaultPageSize)
	}
}
