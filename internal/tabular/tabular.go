// Package tabular parses tabular import files into raw field mappings. It
// deals with file syntax only; field semantics belong to the ingestion
// service consuming the rows.
package tabular

import (
	"encoding/csv"
	"io"
	"sort"
	"strings"

	"fintrack/internal/core"
)

// Required columns for a transaction import. Optional columns
// (account_id, category_id, vendor, note) pass through when present.
var requiredColumns = []string{"date", "amount", "type"}

// Row is one data row keyed by header name. Blank cells are absent from
// the map, never an empty or "nan" value.
type Row map[string]string

// ParseCSV reads a comma-separated file with one header row. Missing
// required columns are a validation error naming the absent headers.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, core.Validationf("CSV file is empty")
	}
	if err != nil {
		return nil, core.Validationf("read CSV header: %v", err)
	}

	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		columns[i] = name
		seen[name] = true
	}

	var missing []string
	for _, col := range requiredColumns {
		if !seen[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, core.Validationf("CSV missing required columns: %s", strings.Join(missing, ", "))
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.Validationf("read CSV line %d: %v", line, err)
		}
		if len(record) != len(columns) {
			return nil, core.Validationf("CSV line %d has %d fields, header has %d", line, len(record), len(columns))
		}

		row := make(Row, len(columns))
		for i, cell := range record {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			row[columns[i]] = cell
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Cell returns the named cell and whether it was present.
func (r Row) Cell(key string) (string, bool) {
	v, ok := r[key]
	return v, ok
}
