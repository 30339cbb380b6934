package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/desertthunder/dird/internal/shared"
)

// csvRow is one data row of an import file keyed by the header.
type csvRow struct {
	line   int
	fields map[string]string
	err    error
}

func (r csvRow) body() map[string]any {
	body := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		body[k] = v
	}
	return body
}

// readCSV reads a header row and the data rows under it. Malformed rows are returned with err set.
func readCSV(r io.Reader) ([]csvRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty import file", shared.ErrInvalidArgument)
		}
		return nil, fmt.Errorf("%w: failed to read header: %v", shared.ErrInvalidArgument, err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var rows []csvRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rows = append(rows, csvRow{line: parseErr.Line, err: err})
				continue
			}
			return nil, fmt.Errorf("failed to read import file: %w", err)
		}

		line, _ := reader.FieldPos(0)
		row := csvRow{line: line, fields: make(map[string]string, len(header))}
		if len(record) > len(header) {
			row.err = fmt.Errorf("row has %d fields, header has %d", len(record), len(header))
		}
		for i, value := range record {
			if i < len(header) && value != "" {
				row.fields[header[i]] = value
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
