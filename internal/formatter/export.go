package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/desertthunder/dird/internal/models"
)

// Supported export formats.
const (
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
)

// Export renders result in the named format.
func Export(result *models.LookupResult, format, title string) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(result)
	case FormatMarkdown:
		return ExportToMarkdown(result, title)
	case FormatText:
		return ExportToText(result)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// ExportToCSV converts a lookup result to CSV with the display headers followed by a Source column.
func ExportToCSV(result *models.LookupResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := append(append([]string{}, result.ColumnHeaders...), "Source")
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range result.Results {
		record := append(Strings(r.ColumnValues), r.Source)
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a lookup result to a Markdown table.
func ExportToMarkdown(result *models.LookupResult, title string) ([]byte, error) {
	var buf bytes.Buffer

	if title != "" {
		buf.WriteString(fmt.Sprintf("# %s\n\n", title))
	}
	buf.WriteString(fmt.Sprintf("**Results**: %d of %d (offset %d)\n\n", len(result.Results), result.Total, result.Offset))

	if len(result.Results) == 0 {
		return buf.Bytes(), nil
	}

	headers := append(append([]string{}, result.ColumnHeaders...), "Source")
	buf.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	buf.WriteString("|" + strings.Repeat(" --- |", len(headers)) + "\n")

	for _, r := range result.Results {
		cells := append(Strings(r.ColumnValues), r.Source)
		for i, c := range cells {
			cells[i] = strings.ReplaceAll(c, "|", "\\|")
		}
		buf.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	return buf.Bytes(), nil
}

// ExportToText converts a lookup result to plain text, one contact per line.
func ExportToText(result *models.LookupResult) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Results: %d of %d\n\n", len(result.Results), result.Total))
	for i, r := range result.Results {
		var cols []string
		for _, v := range r.ColumnValues {
			if s, ok := v.(string); ok && s != "" {
				cols = append(cols, s)
			}
		}
		marker := ""
		if r.IsFavorite {
			marker = " *"
		}
		buf.WriteString(fmt.Sprintf("%d. %s [%s]%s\n", result.Offset+i+1, strings.Join(cols, " - "), r.Source, marker))
	}

	return buf.Bytes(), nil
}

// Strings renders column values as text: nil is empty, booleans are yes/no.
func Strings(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		switch val := v.(type) {
		case nil:
			out = append(out, "")
		case string:
			out = append(out, val)
		case bool:
			if val {
				out = append(out, "yes")
			} else {
				out = append(out, "no")
			}
		default:
			out = append(out, fmt.Sprint(val))
		}
	}
	return out
}
