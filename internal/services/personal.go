package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"go.uber.org/multierr"
)

// PersonalStore persists personal contacts. Implemented by [repositories.PersonalRepository].
type PersonalStore interface {
	Create(ctx context.Context, owner string, fields map[string]string) (*models.PersonalContact, error)
	Get(ctx context.Context, owner, id string) (*models.PersonalContact, error)
	Edit(ctx context.Context, owner, id string, fields map[string]string) (*models.PersonalContact, error)
	Delete(ctx context.Context, owner, id string) error
	DeleteAll(ctx context.Context, owner string) (int64, error)
	List(ctx context.Context, owner string) ([]models.PersonalContact, error)
}

// PersonalService manages the contacts each user keeps for themselves.
type PersonalService struct {
	store  PersonalStore
	logger *log.Logger
}

// NewPersonalService creates a PersonalService on top of store.
func NewPersonalService(store PersonalStore, logger *log.Logger) *PersonalService {
	if logger == nil {
		logger = log.Default()
	}
	return &PersonalService{store: store, logger: shared.WithLogger(logger, "component", "personal")}
}

// Create validates body and stores it as a new contact of owner.
// A contact with the same fields as an existing one fails with [shared.ErrDuplicatedContact].
func (s *PersonalService) Create(ctx context.Context, owner string, body map[string]any) (*models.PersonalContact, error) {
	fields, err := ValidatePersonalContact(body)
	if err != nil {
		return nil, err
	}
	return s.store.Create(ctx, owner, fields)
}

func (s *PersonalService) Get(ctx context.Context, owner, id string) (*models.PersonalContact, error) {
	return s.store.Get(ctx, owner, id)
}

// Edit replaces every field of the contact.
func (s *PersonalService) Edit(ctx context.Context, owner, id string, body map[string]any) (*models.PersonalContact, error) {
	fields, err := ValidatePersonalContact(body)
	if err != nil {
		return nil, err
	}
	return s.store.Edit(ctx, owner, id, fields)
}

func (s *PersonalService) Delete(ctx context.Context, owner, id string) error {
	return s.store.Delete(ctx, owner, id)
}

// DeleteAll purges the contacts of owner and returns how many were removed.
func (s *PersonalService) DeleteAll(ctx context.Context, owner string) (int64, error) {
	n, err := s.store.DeleteAll(ctx, owner)
	if err != nil {
		return 0, err
	}
	s.logger.Info("purged personal contacts", "user_uuid", owner, "count", n)
	return n, nil
}

func (s *PersonalService) List(ctx context.Context, owner string) ([]models.PersonalContact, error) {
	return s.store.List(ctx, owner)
}

// ImportCSV creates one contact of owner per row of r. The first row names the fields; empty cells are left out.
//
// Rows that fail validation or storage are reported with their line number and do not stop the import.
func (s *PersonalService) ImportCSV(ctx context.Context, owner string, r io.Reader) (*models.ImportResult[models.PersonalContact], error) {
	rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}

	result := &models.ImportResult[models.PersonalContact]{
		Created: []models.PersonalContact{},
		Failed:  []models.ImportError{},
	}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if row.err != nil {
			result.Failed = append(result.Failed, importError(row, row.err))
			continue
		}

		contact, err := s.Create(ctx, owner, row.body())
		if err != nil {
			result.Failed = append(result.Failed, importError(row, err))
			continue
		}
		result.Created = append(result.Created, *contact)
	}

	s.logger.Info("imported personal contacts",
		"user_uuid", owner, "created", len(result.Created), "failed", len(result.Failed))
	return result, nil
}

// ValidatePersonalContact checks a raw contact body and returns its fields. The "id" key is ignored.
//
// Every value must be a string; otherwise validation stops there. Keys are then checked as path
// segments and every violation is reported at once, wrapped in [shared.ErrInvalidPersonalContact].
func ValidatePersonalContact(body map[string]any) (map[string]string, error) {
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make(map[string]string, len(body))
	for _, k := range keys {
		v, ok := body[k].(string)
		if !ok {
			return nil, shared.NewValidationError(shared.ErrInvalidPersonalContact, "all values must be strings")
		}
		if k == "id" {
			continue
		}
		fields[k] = v
	}

	var errs error
	for _, k := range keys {
		if k == "id" {
			continue
		}
		for _, rule := range personalKeyRules {
			if msg := rule(k); msg != "" {
				errs = multierr.Append(errs, fmt.Errorf("%q: %s", k, msg))
			}
		}
	}
	if errs != nil {
		var violations []string
		for _, e := range multierr.Errors(errs) {
			violations = append(violations, e.Error())
		}
		return nil, shared.NewValidationError(shared.ErrInvalidPersonalContact, violations...)
	}
	return fields, nil
}

var personalKeyRules = []func(string) string{
	func(k string) string { return when(k == "", "key must not be empty") },
	func(k string) string { return when(k == ".", "key `.` is invalid") },
	func(k string) string { return when(strings.Contains(k, ".."), ".. is forbidden in keys") },
	func(k string) string { return when(strings.Contains(k, "//"), "// is forbidden in keys") },
	func(k string) string { return when(strings.HasPrefix(k, "/"), "key must not start with /") },
	func(k string) string { return when(strings.HasSuffix(k, "/"), "key must not end with /") },
	func(k string) string { return when(strings.HasPrefix(k, "./"), "key must not start with ./") },
	func(k string) string { return when(strings.HasSuffix(k, "/."), "key must not end with /.") },
	func(k string) string { return when(strings.Contains(k, "/./"), "key must not contain /./") },
	func(k string) string { return when(!isASCII(k), "key must contain only ASCII characters") },
}

func when(cond bool, msg string) string {
	if cond {
		return msg
	}
	return ""
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

func importError(row csvRow, err error) models.ImportError {
	msg := err.Error()
	if errors.Is(err, shared.ErrDuplicatedContact) {
		msg = "contact already exists"
	}
	return models.ImportError{Line: row.line, Contact: row.fields, Message: msg}
}
