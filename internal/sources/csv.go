package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
)

// CSVSource serves the rows of a CSV file loaded once at construction.
//
// The header row names the fields. With unique columns configured, each contact carries their
// joined values as id and under [models.UniqueIDField].
type CSVSource struct {
	cfg      models.SourceConfig
	contacts []models.Contact
}

// NewCSVSource loads cfg.File. A missing or malformed file is a construction error.
func NewCSVSource(_ context.Context, cfg models.SourceConfig, _ Dependencies) (Source, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("%w: csv source %s has no file", shared.ErrMissingConfig, cfg.Name)
	}

	f, err := os.Open(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	contacts, err := readCSV(f, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", cfg.File, err)
	}
	return &CSVSource{cfg: cfg, contacts: contacts}, nil
}

func readCSV(r io.Reader, cfg models.SourceConfig) ([]models.Contact, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	if cfg.Separator != "" {
		sep, size := utf8.DecodeRuneInString(cfg.Separator)
		if size != len(cfg.Separator) {
			return nil, fmt.Errorf("separator must be a single character, got %q", cfg.Separator)
		}
		reader.Comma = sep
	}

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var contacts []models.Contact
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		fields := make(map[string]string, len(header))
		for i, key := range header {
			if i < len(row) {
				fields[key] = row[i]
			}
		}

		id := uniqueID(cfg.UniqueColumns, fields)
		if id != "" {
			fields[models.UniqueIDField] = id
		}
		contacts = append(contacts, newContact(cfg, id, fields))
	}
	return contacts, nil
}

// Name returns the configured source name.
func (s *CSVSource) Name() string { return s.cfg.Name }

// Search scans the searched columns of every row.
func (s *CSVSource) Search(_ context.Context, term string, _ Args) ([]models.Contact, error) {
	var results []models.Contact
	for _, c := range s.contacts {
		if containsAny(c.Fields, s.cfg.SearchedColumns, term) {
			results = append(results, c)
		}
	}
	return results, nil
}

// FirstMatch returns the first row, in file order, with an exact first-matched column.
func (s *CSVSource) FirstMatch(_ context.Context, term string, _ Args) (*models.Contact, error) {
	for _, c := range s.contacts {
		if equalsAny(c.Fields, s.cfg.FirstMatchedColumns, term) {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

// List returns the rows whose unique id is in ids.
func (s *CSVSource) List(_ context.Context, ids []string, _ Args) ([]models.Contact, error) {
	if len(s.cfg.UniqueColumns) == 0 {
		return nil, nil
	}

	wanted := idSet(ids)
	var results []models.Contact
	for _, c := range s.contacts {
		if wanted[c.ID] {
			results = append(results, c)
		}
	}
	return results, nil
}
