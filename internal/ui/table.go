package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/dird/internal/formatter"
	"github.com/desertthunder/dird/internal/models"
)

const (
	favoriteMark = "★"
	personalMark = "●"
)

// Table renders rows under headers with the palette's border and title styles.
func (p *Palette) Table(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(p.border).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.title.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

// LookupTable renders a lookup result with a trailing source column and a page footer.
func (p *Palette) LookupTable(result *models.LookupResult) string {
	headers := append(append([]string{}, result.ColumnHeaders...), "Source")
	rows := make([][]string, 0, len(result.Results))
	for _, r := range result.Results {
		rows = append(rows, append(Cells(result.ColumnTypes, r), r.Source))
	}

	var b strings.Builder
	b.WriteString(p.Table(headers, rows))
	b.WriteString("\n")
	b.WriteString(p.Help(Footer(result)))
	return b.String()
}

// Cells renders the column values of r, drawing favorite and personal columns as marks.
func Cells(types []string, r models.FormattedResult) []string {
	cells := formatter.Strings(r.ColumnValues)
	for i, typ := range types {
		if i >= len(cells) {
			break
		}
		switch typ {
		case models.ColumnTypeFavorite:
			cells[i] = mark(r.IsFavorite, favoriteMark)
		case models.ColumnTypePersonal:
			cells[i] = mark(r.IsPersonal, personalMark)
		}
	}
	return cells
}

// Footer describes the page of result shown.
func Footer(result *models.LookupResult) string {
	if len(result.Results) == 0 {
		return fmt.Sprintf("no results (total %d)", result.Total)
	}
	footer := fmt.Sprintf("%d-%d of %d", result.Offset+1, result.Offset+len(result.Results), result.Total)
	if result.NextOffset != nil {
		footer += fmt.Sprintf(", next offset %d", *result.NextOffset)
	}
	return footer
}

func mark(set bool, m string) string {
	if set {
		return m
	}
	return ""
}
