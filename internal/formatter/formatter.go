// package formatter shapes raw contacts into display columns and exports results (CSV, Markdown, plain text)
package formatter

import (
	"strings"

	"github.com/desertthunder/dird/internal/models"
)

type part struct {
	text  string
	field bool
}

// Template is a parsed column template such as "{firstname} {lastname}".
//
// Braces are escaped by doubling them: "{{" renders "{".
type Template struct {
	raw   string
	parts []part
}

// ParseTemplate parses s. A string without braces is a bare field reference.
func ParseTemplate(s string) Template {
	if !strings.ContainsAny(s, "{}") {
		if s == "" {
			return Template{raw: s}
		}
		return Template{raw: s, parts: []part{{text: s, field: true}}}
	}

	var (
		parts []part
		lit   strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, part{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				lit.WriteString(s[i:])
				i = len(s)
				continue
			}
			flush()
			parts = append(parts, part{text: s[i+1 : i+1+end], field: true})
			i += end + 1
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return Template{raw: s, parts: parts}
}

// String returns the template source.
func (t Template) String() string { return t.raw }

// Fields returns the field names the template references, in order.
func (t Template) Fields() []string {
	var fields []string
	for _, p := range t.parts {
		if p.field {
			fields = append(fields, p.text)
		}
	}
	return fields
}

// Execute substitutes fields into the template. ok is false when a referenced field is absent.
func (t Template) Execute(fields map[string]string) (string, bool) {
	if len(t.parts) == 0 {
		return "", false
	}
	var b strings.Builder
	for _, p := range t.parts {
		if !p.field {
			b.WriteString(p.text)
			continue
		}
		v, ok := fields[p.text]
		if !ok {
			return "", false
		}
		b.WriteString(v)
	}
	return b.String(), true
}

// ApplyFormatColumns returns a copy of fields extended with one derived field per format column.
//
// A format column whose template references an absent field is left out.
func ApplyFormatColumns(formatColumns map[string]string, fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields)+len(formatColumns))
	for k, v := range fields {
		out[k] = v
	}
	for name, tmpl := range formatColumns {
		if v, ok := ParseTemplate(tmpl).Execute(fields); ok {
			out[name] = v
		}
	}
	return out
}

// Flags are the annotations a formatted result carries besides its fields.
type Flags struct {
	Favorite bool
	Personal bool
}

// Format renders one value per display column, in column order.
//
// Favorite and personal columns render the matching flag. Other columns substitute their
// field template; a missing field yields the column default, or nil without one.
func Format(contact models.Contact, display *models.Display, flags Flags) []any {
	values := make([]any, 0, len(display.Columns))
	for _, col := range display.Columns {
		values = append(values, columnValue(col, contact.Fields, flags))
	}
	return values
}

func columnValue(col models.Column, fields map[string]string, flags Flags) any {
	switch col.Type {
	case models.ColumnTypeFavorite:
		return flags.Favorite
	case models.ColumnTypePersonal:
		return flags.Personal
	}

	if v, ok := ParseTemplate(col.Field).Execute(fields); ok {
		return v
	}
	if col.Default != nil {
		return *col.Default
	}
	return nil
}

// FormatResult builds a complete [models.FormattedResult] for contact.
//
// Without a display, column values are empty and the raw fields are exposed instead.
func FormatResult(contact models.Contact, display *models.Display, favorite bool) models.FormattedResult {
	relations := make(map[string]any, len(contact.Relations)+1)
	for k, v := range contact.Relations {
		relations[k] = v
	}
	if contact.ID != "" {
		relations["source_entry_id"] = contact.ID
	}

	result := models.FormattedResult{
		Source:      contact.Source,
		Backend:     contact.Backend,
		Relations:   relations,
		IsFavorite:  favorite,
		IsPersonal:  contact.Personal,
		IsDeletable: contact.Deletable,
	}

	if display == nil {
		result.ColumnValues = []any{}
		result.Fields = contact.Fields
		return result
	}

	result.ColumnValues = Format(contact, display, Flags{Favorite: favorite, Personal: contact.Personal})
	return result
}
