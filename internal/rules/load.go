package rules

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Rule file column headers. The file is the CSV export of the original
// LISTA spreadsheet, so the Spanish headers are the wire format.
const (
	colOrigin = "Grupo_Origen"
	colTarget = "Grupo_Destino"
	colRestr1 = "Restriccion_1"
	colRestr2 = "Restriccion_2"
	colRestr3 = "Restriccion_3"
)

// LoadFile reads the rule file and returns its rows in file order.
// Columns are located by header name, so column order in the file is free.
func LoadFile(path string) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // trailing empty restriction cells are often omitted
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read rule file header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	if _, ok := idx[colOrigin]; !ok {
		return nil, fmt.Errorf("rule file missing %q column", colOrigin)
	}
	if _, ok := idx[colTarget]; !ok {
		return nil, fmt.Errorf("rule file missing %q column", colTarget)
	}

	field := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var records []RawRecord
	rowNum := 0
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read rule file row %d: %w", rowNum+1, err)
		}
		rowNum++
		records = append(records, RawRecord{
			Origin: field(row, colOrigin),
			Target: field(row, colTarget),
			Restrictions: [MaxRestrictions]string{
				field(row, colRestr1),
				field(row, colRestr2),
				field(row, colRestr3),
			},
			Row: rowNum,
		})
	}

	return records, nil
}
