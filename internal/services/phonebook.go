package services

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
)

var phonebookOrders = []string{"name", "description"}

// PhonebookStore persists phonebooks. Implemented by [repositories.PhonebookRepository].
type PhonebookStore interface {
	Create(ctx context.Context, tenant string, body models.PhonebookBody) (*models.Phonebook, error)
	Get(ctx context.Context, tenant string, id int64) (*models.Phonebook, error)
	Edit(ctx context.Context, tenant string, id int64, body models.PhonebookBody) (*models.Phonebook, error)
	Delete(ctx context.Context, tenant string, id int64) error
	List(ctx context.Context, tenant string, params models.ListParams) ([]models.Phonebook, error)
	Count(ctx context.Context, tenant, search string) (int, error)
}

// PhonebookContactStore persists phonebook contacts. Implemented by [repositories.PhonebookContactRepository].
type PhonebookContactStore interface {
	Create(ctx context.Context, tenant string, phonebookID int64, fields map[string]string) (*models.PhonebookContact, error)
	Get(ctx context.Context, tenant string, phonebookID int64, id string) (*models.PhonebookContact, error)
	Edit(ctx context.Context, tenant string, phonebookID int64, id string, fields map[string]string) (*models.PhonebookContact, error)
	Delete(ctx context.Context, tenant string, phonebookID int64, id string) error
	List(ctx context.Context, tenant string, phonebookID int64, params models.ListParams) ([]models.PhonebookContact, error)
	Count(ctx context.Context, tenant string, phonebookID int64, search string) (int, error)
}

// PhonebookService manages tenant phonebooks and their contacts.
//
// Every operation validates the tenant first; a phonebook of another tenant is reported as missing.
type PhonebookService struct {
	phonebooks PhonebookStore
	contacts   PhonebookContactStore
	logger     *log.Logger
}

// NewPhonebookService creates a PhonebookService.
func NewPhonebookService(phonebooks PhonebookStore, contacts PhonebookContactStore, logger *log.Logger) *PhonebookService {
	if logger == nil {
		logger = log.Default()
	}
	return &PhonebookService{
		phonebooks: phonebooks,
		contacts:   contacts,
		logger:     shared.WithLogger(logger, "component", "phonebook"),
	}
}

func (s *PhonebookService) Create(ctx context.Context, tenant string, body models.PhonebookBody) (*models.Phonebook, error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if err := validateStruct(body, shared.ErrInvalidPhonebook); err != nil {
		return nil, err
	}
	return s.phonebooks.Create(ctx, tenant, body)
}

func (s *PhonebookService) Get(ctx context.Context, tenant string, id int64) (*models.Phonebook, error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, err
	}
	return s.phonebooks.Get(ctx, tenant, id)
}

func (s *PhonebookService) Edit(ctx context.Context, tenant string, id int64, body models.PhonebookBody) (*models.Phonebook, error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if err := validateStruct(body, shared.ErrInvalidPhonebook); err != nil {
		return nil, err
	}
	return s.phonebooks.Edit(ctx, tenant, id, body)
}

// Delete removes a phonebook with all its contacts.
func (s *PhonebookService) Delete(ctx context.Context, tenant string, id int64) error {
	if err := ValidateTenant(tenant); err != nil {
		return err
	}
	return s.phonebooks.Delete(ctx, tenant, id)
}

// List returns the phonebooks of tenant. Order may be "name" or "description".
func (s *PhonebookService) List(ctx context.Context, tenant string, params models.ListParams) (*models.ListResult[models.Phonebook], error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if err := validateListParams(params, phonebookOrders); err != nil {
		return nil, err
	}

	total, err := s.phonebooks.Count(ctx, tenant, "")
	if err != nil {
		return nil, err
	}
	filtered := total
	if params.Search != "" {
		if filtered, err = s.phonebooks.Count(ctx, tenant, params.Search); err != nil {
			return nil, err
		}
	}
	items, err := s.phonebooks.List(ctx, tenant, params)
	if err != nil {
		return nil, err
	}
	return &models.ListResult[models.Phonebook]{Total: total, Filtered: filtered, Items: items}, nil
}

func (s *PhonebookService) CreateContact(ctx context.Context, tenant string, phonebookID int64, body map[string]string) (*models.PhonebookContact, error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, err
	}
	fields, err := validateContact(body)
	if err != nil {
		return nil, err
	}
	return s.contacts.Create(ctx, tenant, phonebookID, fields)
}

func (s *PhonebookService) GetContact(ctx context.Context, tenant string, phonebookID int64, id string) (*models.PhonebookContact, error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, err
	}
	return s.contacts.Get(ctx, tenant, phonebookID, id)
}

func (s *PhonebookService) EditContact(ctx context.Context, tenant string, phonebookID int64, id string, body map[string]string) (*models.PhonebookContact, error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, err
	}
	fields, err := validateContact(body)
	if err != nil {
		return nil, err
	}
	return s.contacts.Edit(ctx, tenant, phonebookID, id, fields)
}

func (s *PhonebookService) DeleteContact(ctx context.Context, tenant string, phonebookID int64, id string) error {
	if err := ValidateTenant(tenant); err != nil {
		return err
	}
	return s.contacts.Delete(ctx, tenant, phonebookID, id)
}

// ListContacts returns the contacts of a phonebook. Order may name any field.
func (s *PhonebookService) ListContacts(ctx context.Context, tenant string, phonebookID int64, params models.ListParams) (*models.ListResult[models.PhonebookContact], error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if err := validateListParams(params, nil); err != nil {
		return nil, err
	}

	total, err := s.contacts.Count(ctx, tenant, phonebookID, "")
	if err != nil {
		return nil, err
	}
	filtered := total
	if params.Search != "" {
		if filtered, err = s.contacts.Count(ctx, tenant, phonebookID, params.Search); err != nil {
			return nil, err
		}
	}
	items, err := s.contacts.List(ctx, tenant, phonebookID, params)
	if err != nil {
		return nil, err
	}
	return &models.ListResult[models.PhonebookContact]{Total: total, Filtered: filtered, Items: items}, nil
}

// ImportContacts creates every valid body in the phonebook. Invalid or duplicated bodies are reported
// as failed, indexed from 1 in Line, and do not stop the import.
func (s *PhonebookService) ImportContacts(ctx context.Context, tenant string, phonebookID int64, bodies []map[string]string) (*models.ImportResult[models.PhonebookContact], error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if _, err := s.phonebooks.Get(ctx, tenant, phonebookID); err != nil {
		return nil, err
	}

	rows := make([]csvRow, 0, len(bodies))
	for i, body := range bodies {
		rows = append(rows, csvRow{line: i + 1, fields: body})
	}
	return s.importRows(ctx, tenant, phonebookID, rows)
}

// ImportCSV is [PhonebookService.ImportContacts] reading bodies from a CSV file with a header row.
func (s *PhonebookService) ImportCSV(ctx context.Context, tenant string, phonebookID int64, r io.Reader) (*models.ImportResult[models.PhonebookContact], error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if _, err := s.phonebooks.Get(ctx, tenant, phonebookID); err != nil {
		return nil, err
	}

	rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	return s.importRows(ctx, tenant, phonebookID, rows)
}

func (s *PhonebookService) importRows(ctx context.Context, tenant string, phonebookID int64, rows []csvRow) (*models.ImportResult[models.PhonebookContact], error) {
	result := &models.ImportResult[models.PhonebookContact]{
		Created: []models.PhonebookContact{},
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

		fields, err := validateContact(row.fields)
		if err == nil {
			var contact *models.PhonebookContact
			if contact, err = s.contacts.Create(ctx, tenant, phonebookID, fields); err == nil {
				result.Created = append(result.Created, *contact)
				continue
			}
		}
		result.Failed = append(result.Failed, importError(row, err))
	}

	s.logger.Info("imported phonebook contacts",
		"tenant_uuid", tenant, "phonebook_id", phonebookID,
		"created", len(result.Created), "failed", len(result.Failed))
	return result, nil
}

// validateContact rejects empty bodies and empty keys and drops the "id" key.
func validateContact(body map[string]string) (map[string]string, error) {
	if len(body) == 0 {
		return nil, shared.NewValidationError(shared.ErrInvalidContact, "contacts cannot be empty")
	}
	if _, ok := body[""]; ok {
		return nil, shared.NewValidationError(shared.ErrInvalidContact, "contacts cannot have empty keys")
	}

	fields := make(map[string]string, len(body))
	for k, v := range body {
		if k != "id" {
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		return nil, shared.NewValidationError(shared.ErrInvalidContact, "contacts cannot be empty")
	}
	return fields, nil
}
