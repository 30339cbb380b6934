package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
)

// Phone vendors and the number of entries their directory screens show per page.
var vendorPageSizes = map[string]int{
	"aastra":  16,
	"cisco":   16,
	"polycom": 16,
	"snom":    16,
	"thomson": 8,
	"yealink": 16,
}

// Vendors returns the supported phone vendors, sorted.
func Vendors() []string {
	vendors := make([]string, 0, len(vendorPageSizes))
	for v := range vendorPageSizes {
		vendors = append(vendors, v)
	}
	sort.Strings(vendors)
	return vendors
}

// PhoneLookup runs a lookup and flattens it into one name/number entry per number column,
// sorted by name and paginated with the page size of vendor unless req.Limit is set.
//
// Entries are named after the first name column of the display, or the "name" field without display.
func (e *Engine) PhoneLookup(ctx context.Context, req Request, term, vendor string) (*models.PhoneLookupResult, error) {
	pageSize, ok := vendorPageSizes[vendor]
	if !ok {
		return nil, fmt.Errorf("%w: unknown phone vendor %q", shared.ErrInvalidArgument, vendor)
	}

	full := req
	full.Limit, full.Offset = nil, 0
	lookup, err := e.Lookup(ctx, full, term, nil)
	if err != nil {
		return nil, err
	}

	entries := phoneEntries(lookup)
	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})

	limit := pageSize
	if req.Limit != nil && *req.Limit >= 0 {
		limit = *req.Limit
	}
	start, end, next, previous := window(len(entries), req.Offset, &limit)

	return &models.PhoneLookupResult{
		Vendor:         vendor,
		Term:           term,
		Results:        entries[start:end],
		Total:          len(entries),
		Offset:         start,
		Limit:          limit,
		NextOffset:     next,
		PreviousOffset: previous,
	}, nil
}

func phoneEntries(lookup *models.LookupResult) []models.PhoneEntry {
	nameIdx := -1
	var numberIdx []int
	for i, t := range lookup.ColumnTypes {
		switch t {
		case models.ColumnTypeName:
			if nameIdx < 0 {
				nameIdx = i
			}
		case models.ColumnTypeNumber:
			numberIdx = append(numberIdx, i)
		}
	}

	var entries []models.PhoneEntry
	for _, r := range lookup.Results {
		if len(lookup.ColumnTypes) == 0 {
			if number := r.Fields["number"]; number != "" {
				entries = append(entries, models.PhoneEntry{Name: r.Fields["name"], Number: number})
			}
			continue
		}

		name := ""
		if nameIdx >= 0 {
			name = stringValue(r.ColumnValues[nameIdx])
		}
		for _, i := range numberIdx {
			if number := stringValue(r.ColumnValues[i]); number != "" {
				entries = append(entries, models.PhoneEntry{Name: name, Number: number})
			}
		}
	}
	if entries == nil {
		entries = []models.PhoneEntry{}
	}
	return entries
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
