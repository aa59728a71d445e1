package table

import (
	"iter"
	"strings"
	"testing"
	"time"
)

func sliceRows(rows []Row) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for _, r := range rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func TestReadCSVInference(t *testing.T) {
	body := strings.Join([]string{
		"name,age,score,member,joined",
		"ada,36,9.5,true,2018-01-03",
		"grace,85,8,false,2019-11-20",
		"linus,,7.25,true,",
	}, "\n")

	cols, rows, err := ReadCSV(strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}

	wantTypes := map[string]ColumnType{
		"name":   ColumnTypeText,
		"age":    ColumnTypeInteger,
		"score":  ColumnTypeFloat,
		"member": ColumnTypeBoolean,
		"joined": ColumnTypeDate,
	}
	if len(cols) != len(wantTypes) {
		t.Fatalf("got %d columns, want %d", len(cols), len(wantTypes))
	}
	for _, c := range cols {
		if wantTypes[c.Name] != c.Type {
			t.Errorf("column %q inferred as %s, want %s", c.Name, c.Type, wantTypes[c.Name])
		}
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Cells["age"] != int64(36) {
		t.Errorf("age = %v, want 36", rows[0].Cells["age"])
	}
	if rows[1].Cells["joined"] != time.Date(2019, 11, 20, 0, 0, 0, 0, time.UTC) {
		t.Errorf("joined = %v", rows[1].Cells["joined"])
	}
	if rows[2].Cells["age"] != nil {
		t.Errorf("empty integer cell = %v, want nil", rows[2].Cells["age"])
	}
}

func TestInferColumnTypePriority(t *testing.T) {
	tests := []struct {
		name    string
		samples []string
		want    ColumnType
	}{
		{"ones and zeroes are integers", []string{"1", "0", "1"}, ColumnTypeInteger},
		{"integers", []string{"36", "85"}, ColumnTypeInteger},
		{"mixed int and float", []string{"36", "7.25"}, ColumnTypeFloat},
		{"booleans", []string{"true", "FALSE"}, ColumnTypeBoolean},
		{"dates", []string{"2018-01-03", ""}, ColumnTypeDate},
		{"all empty", []string{"", ""}, ColumnTypeText},
		{"mixed gives text", []string{"36", "ada"}, ColumnTypeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferColumnType(tt.samples); got != tt.want {
				t.Errorf("InferColumnType(%v) = %s, want %s", tt.samples, got, tt.want)
			}
		})
	}
}

func TestReadCSVSkipsRowIDColumn(t *testing.T) {
	body := "tabula_row_id,name\n1,ada\n2,grace\n"
	cols, rows, err := ReadCSV(strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 1 || cols[0].Name != "name" {
		t.Fatalf("cols = %v, want just name", cols)
	}
	if len(rows) != 2 || rows[0].ID != 0 {
		t.Errorf("uploaded ids must be ignored, got %+v", rows)
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"bad column name", "1col\nx\n"},
		{"ragged record", "a,b\n1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ReadCSV(strings.NewReader(tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWriteCSV(t *testing.T) {
	cols := []Column{
		{Name: "name", Type: ColumnTypeText},
		{Name: "age", Type: ColumnTypeInteger},
	}
	rows := []Row{
		{ID: 1, Cells: map[string]any{"name": "ada", "age": int64(36)}},
		{ID: 3, Cells: map[string]any{"name": "grace", "age": nil}},
	}

	var sb strings.Builder
	if err := WriteCSV(&sb, cols, sliceRows(rows)); err != nil {
		t.Fatal(err)
	}
	want := "tabula_row_id,name,age\n1,ada,36\n3,grace,\n"
	if sb.String() != want {
		t.Errorf("got %q, want %q", sb.String(), want)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	cols := []Column{
		{Name: "val", Type: ColumnTypeFloat},
		{Name: "day", Type: ColumnTypeDate},
	}
	rows := []Row{
		{ID: 1, Cells: map[string]any{"val": 0.1, "day": time.Date(2022, 3, 4, 0, 0, 0, 0, time.UTC)}},
	}
	var sb strings.Builder
	if err := WriteCSV(&sb, cols, sliceRows(rows)); err != nil {
		t.Fatal(err)
	}
	gotCols, gotRows, err := ReadCSV(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatal(err)
	}
	if gotCols[0].Type != ColumnTypeFloat || gotCols[1].Type != ColumnTypeDate {
		t.Errorf("types = %v", gotCols)
	}
	if gotRows[0].Cells["val"] != 0.1 {
		t.Errorf("val = %v, want 0.1", gotRows[0].Cells["val"])
	}
}
