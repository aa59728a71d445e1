package table

import (
	"testing"
	"time"
)

func TestColumnTypeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		ct   ColumnType
		in   string
		want any
	}{
		{"text", ColumnTypeText, "hello", "hello"},
		{"text empty", ColumnTypeText, "", ""},
		{"integer", ColumnTypeInteger, "42", int64(42)},
		{"integer negative", ColumnTypeInteger, "-7", int64(-7)},
		{"float", ColumnTypeFloat, "3.5", 3.5},
		{"float whole", ColumnTypeFloat, "2", 2.0},
		{"boolean true", ColumnTypeBoolean, "true", true},
		{"boolean false", ColumnTypeBoolean, "false", false},
		{"date", ColumnTypeDate, "2018-01-03", time.Date(2018, 1, 3, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.ct.ParseCell(tt.in)
			if err != nil {
				t.Fatalf("ParseCell(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseCell(%q) = %v (%T), want %v (%T)", tt.in, got, got, tt.want, tt.want)
			}
			// Formatting then reparsing must yield the same value.
			formatted := tt.ct.FormatCell(got)
			again, err := tt.ct.ParseCell(formatted)
			if err != nil {
				t.Fatalf("ParseCell(FormatCell()) error = %v", err)
			}
			if again != got {
				t.Errorf("round trip = %v, want %v", again, got)
			}
		})
	}
}

func TestColumnTypeParseCellNull(t *testing.T) {
	for _, ct := range []ColumnType{ColumnTypeInteger, ColumnTypeFloat, ColumnTypeBoolean, ColumnTypeDate} {
		got, err := ct.ParseCell("")
		if err != nil {
			t.Errorf("%s: ParseCell(\"\") error = %v", ct, err)
		}
		if got != nil {
			t.Errorf("%s: ParseCell(\"\") = %v, want nil", ct, got)
		}
		if s := ct.FormatCell(nil); s != "" {
			t.Errorf("%s: FormatCell(nil) = %q, want \"\"", ct, s)
		}
	}
}

func TestColumnTypeParseCellErrors(t *testing.T) {
	tests := []struct {
		ct ColumnType
		in string
	}{
		{ColumnTypeInteger, "abc"},
		{ColumnTypeInteger, "1.5"},
		{ColumnTypeFloat, "x"},
		{ColumnTypeBoolean, "maybe"},
		{ColumnTypeDate, "03/01/2018"},
		{ColumnTypeDate, "2018-13-40"},
	}
	for _, tt := range tests {
		if _, err := tt.ct.ParseCell(tt.in); err == nil {
			t.Errorf("%s: ParseCell(%q) expected error", tt.ct, tt.in)
		}
	}
}

func TestColumnTypeFromJSON(t *testing.T) {
	tests := []struct {
		name    string
		ct      ColumnType
		in      any
		want    any
		wantErr bool
	}{
		{"integer from whole float", ColumnTypeInteger, float64(9), int64(9), false},
		{"integer rejects fraction", ColumnTypeInteger, 9.5, nil, true},
		{"integer rejects string", ColumnTypeInteger, "9", nil, true},
		{"float", ColumnTypeFloat, 1.25, 1.25, false},
		{"boolean", ColumnTypeBoolean, true, true, false},
		{"boolean rejects number", ColumnTypeBoolean, float64(1), nil, true},
		{"date", ColumnTypeDate, "2020-02-29", time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC), false},
		{"date rejects junk", ColumnTypeDate, "whenever", nil, true},
		{"text", ColumnTypeText, "hi", "hi", false},
		{"null", ColumnTypeInteger, nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.ct.FromJSON(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromJSON(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("FromJSON(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestColumnTypeToJSON(t *testing.T) {
	d := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	if got := ColumnTypeDate.ToJSON(d); got != "2021-06-01" {
		t.Errorf("ToJSON(date) = %v, want 2021-06-01", got)
	}
	if got := ColumnTypeInteger.ToJSON(int64(3)); got != int64(3) {
		t.Errorf("ToJSON(int) = %v, want 3", got)
	}
	if got := ColumnTypeText.ToJSON(nil); got != nil {
		t.Errorf("ToJSON(nil) = %v, want nil", got)
	}
}
