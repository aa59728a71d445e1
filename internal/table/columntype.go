package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateFormat is the wire format for date values, in CSV and JSON alike.
const DateFormat = "2006-01-02"

// ColumnType is the declared type of a column. Values of each type have a
// single canonical Go representation: text→string, integer→int64,
// float→float64, boolean→bool, date→time.Time (midnight UTC).
type ColumnType string

const (
	ColumnTypeText    ColumnType = "text"
	ColumnTypeInteger ColumnType = "integer"
	ColumnTypeFloat   ColumnType = "float"
	ColumnTypeBoolean ColumnType = "boolean"
	ColumnTypeDate    ColumnType = "date"
)

// ParseColumnType returns the ColumnType for its string name.
func ParseColumnType(s string) (ColumnType, bool) {
	switch ColumnType(strings.ToLower(s)) {
	case ColumnTypeText, ColumnTypeInteger, ColumnTypeFloat, ColumnTypeBoolean, ColumnTypeDate:
		return ColumnType(strings.ToLower(s)), true
	}
	return "", false
}

// ParseCell converts a string cell (from CSV or an HTML form) into the typed
// value for this column. An empty string is null for every type except text,
// where it is the empty string.
func (ct ColumnType) ParseCell(s string) (any, error) {
	if s == "" && ct != ColumnTypeText {
		return nil, nil
	}
	switch ct {
	case ColumnTypeText:
		return s, nil
	case ColumnTypeInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid integer", s)
		}
		return n, nil
	case ColumnTypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid float", s)
		}
		return f, nil
	case ColumnTypeBoolean:
		switch strings.ToLower(s) {
		case "true", "t", "yes", "on", "1":
			return true, nil
		case "false", "f", "no", "off", "0":
			return false, nil
		}
		return nil, fmt.Errorf("%q is not a valid boolean", s)
	case ColumnTypeDate:
		d, err := time.ParseInLocation(DateFormat, s, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid date (want YYYY-MM-DD)", s)
		}
		return d, nil
	}
	return nil, fmt.Errorf("unknown column type: %q", ct)
}

// FormatCell converts a typed value back into its string form. It is the
// inverse of ParseCell: formatting then reparsing yields the same value.
func (ct ColumnType) FormatCell(v any) string {
	if v == nil {
		return ""
	}
	switch ct {
	case ColumnTypeText:
		return v.(string)
	case ColumnTypeInteger:
		return strconv.FormatInt(v.(int64), 10)
	case ColumnTypeFloat:
		return strconv.FormatFloat(v.(float64), 'g', -1, 64)
	case ColumnTypeBoolean:
		return strconv.FormatBool(v.(bool))
	case ColumnTypeDate:
		return v.(time.Time).Format(DateFormat)
	}
	return fmt.Sprintf("%v", v)
}

// FromJSON converts a value as decoded by encoding/json (float64, bool,
// string, nil) into the typed value for this column.
func (ct ColumnType) FromJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch ct {
	case ColumnTypeText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", v)
		}
		return s, nil
	case ColumnTypeInteger:
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("expected an integer, got %v", v)
		}
		return int64(f), nil
	case ColumnTypeFloat:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %T", v)
		}
		return f, nil
	case ColumnTypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a boolean, got %T", v)
		}
		return b, nil
	case ColumnTypeDate:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a date string, got %T", v)
		}
		return ct.ParseCell(s)
	}
	return nil, fmt.Errorf("unknown column type: %q", ct)
}

// ToJSON converts a typed value into a form that encoding/json serializes
// losslessly. Dates become YYYY-MM-DD strings, everything else passes through.
func (ct ColumnType) ToJSON(v any) any {
	if v == nil {
		return nil
	}
	if ct == ColumnTypeDate {
		return v.(time.Time).Format(DateFormat)
	}
	return v
}
