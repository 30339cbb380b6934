package sources

import (
	"context"
	"fmt"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
)

// PhonebookSource serves the contacts of one phonebook.
//
// The phonebook is resolved at construction from phonebook_id, or from phonebook_name within the
// source tenant.
type PhonebookSource struct {
	cfg         models.SourceConfig
	phonebookID int64
	store       PhonebookContactStore
}

// NewPhonebookSource builds a phonebook source. An unknown phonebook is a construction error.
func NewPhonebookSource(ctx context.Context, cfg models.SourceConfig, deps Dependencies) (Source, error) {
	if deps.Phonebooks == nil || deps.PhonebookContacts == nil {
		return nil, fmt.Errorf("%w: phonebook source %s has no phonebook store", shared.ErrMissingConfig, cfg.Name)
	}

	var (
		phonebook *models.Phonebook
		err       error
	)
	switch {
	case cfg.PhonebookID != 0:
		phonebook, err = deps.Phonebooks.Get(ctx, cfg.Tenant, cfg.PhonebookID)
	case cfg.PhonebookName != "":
		phonebook, err = deps.Phonebooks.GetByName(ctx, cfg.Tenant, cfg.PhonebookName)
	default:
		return nil, fmt.Errorf("%w: phonebook source %s names no phonebook", shared.ErrMissingConfig, cfg.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve phonebook of %s: %w", cfg.Name, err)
	}

	return &PhonebookSource{cfg: cfg, phonebookID: phonebook.ID, store: deps.PhonebookContacts}, nil
}

// Name returns the configured source name.
func (s *PhonebookSource) Name() string { return s.cfg.Name }

// Search returns the phonebook contacts matching term.
func (s *PhonebookSource) Search(ctx context.Context, term string, _ Args) ([]models.Contact, error) {
	contacts, err := s.store.Search(ctx, s.phonebookID, s.cfg.SearchedColumns, term)
	if err != nil {
		return nil, err
	}
	return s.convert(contacts), nil
}

// FirstMatch returns a phonebook contact with an exact first-matched column.
func (s *PhonebookSource) FirstMatch(ctx context.Context, term string, _ Args) (*models.Contact, error) {
	contact, err := s.store.FirstMatch(ctx, s.phonebookID, s.cfg.FirstMatchedColumns, term)
	if err != nil || contact == nil {
		return nil, err
	}
	c := s.contact(*contact)
	return &c, nil
}

// List returns the phonebook contacts among ids.
func (s *PhonebookSource) List(ctx context.Context, ids []string, _ Args) ([]models.Contact, error) {
	contacts, err := s.store.ListByIDs(ctx, s.phonebookID, ids)
	if err != nil {
		return nil, err
	}
	return s.convert(contacts), nil
}

func (s *PhonebookSource) convert(contacts []models.PhonebookContact) []models.Contact {
	results := make([]models.Contact, 0, len(contacts))
	for _, c := range contacts {
		results = append(results, s.contact(c))
	}
	return results
}

func (s *PhonebookSource) contact(pc models.PhonebookContact) models.Contact {
	fields := make(map[string]string, len(pc.Fields)+1)
	for k, v := range pc.Fields {
		fields[k] = v
	}
	fields["id"] = pc.ID
	return newContact(s.cfg, pc.ID, fields)
}
