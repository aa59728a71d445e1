package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
)

var errCSVNoHeader = errors.New("csv body has no header row")

// WriteCSV writes a header row followed by one line per row. tabula_row_id is
// emitted first, then the user columns in ordinal order. The row iterator may
// yield an error, which aborts the write.
func WriteCSV(w io.Writer, cols []Column, rows iter.Seq2[Row, error]) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, len(cols)+1)
	header = append(header, RowIDColumnName)
	for _, c := range cols {
		if c.Name != RowIDColumnName {
			header = append(header, c.Name)
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for row, err := range rows {
		if err != nil {
			return err
		}
		record[0] = strconv.FormatInt(row.ID, 10)
		i := 1
		for _, c := range cols {
			if c.Name == RowIDColumnName {
				continue
			}
			record[i] = c.Type.FormatCell(row.Cells[c.Name])
			i++
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a whole CSV document into typed columns and rows, inferring
// a column type for each header from the values beneath it. A leading
// tabula_row_id column is tolerated and skipped: ids are always assigned by
// the store, never taken from an upload.
func ReadCSV(r io.Reader) ([]Column, []Row, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, errCSVNoHeader
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading csv header: %w", err)
	}

	var records [][]string
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading csv: %w", err)
		}
		records = append(records, record)
	}

	cols := make([]Column, 0, len(header))
	keep := make([]int, 0, len(header))
	for i, name := range header {
		if name == RowIDColumnName {
			continue
		}
		if err := CheckTableName(name); err != nil {
			return nil, nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		samples := make([]string, len(records))
		for j, record := range records {
			samples[j] = record[i]
		}
		cols = append(cols, Column{Name: name, Type: InferColumnType(samples)})
		keep = append(keep, i)
	}

	rows := make([]Row, 0, len(records))
	for lineno, record := range records {
		cells := make(map[string]any, len(cols))
		for ci, col := range cols {
			v, err := col.Type.ParseCell(record[keep[ci]])
			if err != nil {
				return nil, nil, fmt.Errorf("line %d, column %q: %w", lineno+2, col.Name, err)
			}
			cells[col.Name] = v
		}
		rows = append(rows, Row{Cells: cells})
	}
	return cols, rows, nil
}

// InferColumnType picks the narrowest column type that can represent every
// non-empty sample: integer, then float, then boolean, then date, falling
// back to text. An all-empty column is text.
func InferColumnType(samples []string) ColumnType {
	seen := false
	canInt, canFloat, canBool, canDate := true, true, true, true
	for _, s := range samples {
		if s == "" {
			continue
		}
		seen = true
		if canInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				canInt = false
			}
		}
		if canFloat {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				canFloat = false
			}
		}
		if canBool && !isBoolToken(s) {
			canBool = false
		}
		if canDate {
			if _, err := ColumnTypeDate.ParseCell(s); err != nil {
				canDate = false
			}
		}
	}
	switch {
	case !seen:
		return ColumnTypeText
	case canInt:
		return ColumnTypeInteger
	case canFloat:
		return ColumnTypeFloat
	case canBool:
		return ColumnTypeBoolean
	case canDate:
		return ColumnTypeDate
	}
	return ColumnTypeText
}

// isBoolToken is deliberately stricter than ColumnType.ParseCell: "1" and "0"
// must infer as integer, not boolean.
func isBoolToken(s string) bool {
	switch s {
	case "true", "false", "True", "False", "TRUE", "FALSE":
		return true
	}
	return false
}
