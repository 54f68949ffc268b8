package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Column maps a row key to its printed label.
type Column struct {
	Key   string
	Label string
	// Width is a relative weight used by the PDF renderer. Zero counts as 1.
	Width float64
}

// Dataset is tabular export content.
type Dataset struct {
	Columns []Column
	Rows    []map[string]string
}

// Detail is a labelled value printed above the table.
type Detail struct {
	Label string
	Value string
}

// Document is a titled report made of header details and one table.
type Document struct {
	Title   string
	Details []Detail
	Table   Dataset
}

// CSVExporter renders documents as CSV.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render writes the details as key/value rows, a blank row, then the table.
func (e *CSVExporter) Render(doc Document) ([]byte, error) {
	if len(doc.Table.Columns) == 0 {
		return nil, fmt.Errorf("csv requires at least one column")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	for _, d := range doc.Details {
		if err := writer.Write([]string{d.Label, d.Value}); err != nil {
			return nil, fmt.Errorf("write csv detail: %w", err)
		}
	}
	if len(doc.Details) > 0 {
		if err := writer.Write([]string{""}); err != nil {
			return nil, fmt.Errorf("write csv separator: %w", err)
		}
	}
	labels := make([]string, len(doc.Table.Columns))
	for i, col := range doc.Table.Columns {
		labels[i] = col.Label
	}
	if err := writer.Write(labels); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range doc.Table.Rows {
		record := make([]string, len(doc.Table.Columns))
		for i, col := range doc.Table.Columns {
			record[i] = row[col.Key]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
