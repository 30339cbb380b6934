package sources

import (
	"context"
	"fmt"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
)

// PersonalSource serves the personal contacts of the calling user.
type PersonalSource struct {
	cfg   models.SourceConfig
	store PersonalStore
}

// NewPersonalSource builds a personal source reading deps.Personal.
func NewPersonalSource(_ context.Context, cfg models.SourceConfig, deps Dependencies) (Source, error) {
	if deps.Personal == nil {
		return nil, fmt.Errorf("%w: personal source %s has no contact store", shared.ErrMissingConfig, cfg.Name)
	}
	return &PersonalSource{cfg: cfg, store: deps.Personal}, nil
}

// Name returns the configured source name.
func (s *PersonalSource) Name() string { return s.cfg.Name }

// Search returns the caller's contacts matching term. No searched columns means no results.
func (s *PersonalSource) Search(ctx context.Context, term string, args Args) ([]models.Contact, error) {
	if args.UserUUID == "" || len(s.cfg.SearchedColumns) == 0 {
		return nil, nil
	}

	contacts, err := s.store.Search(ctx, args.UserUUID, s.cfg.SearchedColumns, term)
	if err != nil {
		return nil, err
	}
	return s.convert(contacts), nil
}

// FirstMatch returns one of the caller's contacts with an exact first-matched column.
func (s *PersonalSource) FirstMatch(ctx context.Context, term string, args Args) (*models.Contact, error) {
	if args.UserUUID == "" {
		return nil, nil
	}

	contact, err := s.store.FirstMatch(ctx, args.UserUUID, s.cfg.FirstMatchedColumns, term)
	if err != nil || contact == nil {
		return nil, err
	}
	c := s.contact(*contact)
	return &c, nil
}

// List returns the caller's contacts among ids.
func (s *PersonalSource) List(ctx context.Context, ids []string, args Args) ([]models.Contact, error) {
	if args.UserUUID == "" {
		return nil, nil
	}

	contacts, err := s.store.ListByIDs(ctx, args.UserUUID, ids)
	if err != nil {
		return nil, err
	}
	return s.convert(contacts), nil
}

// All returns every contact of the caller.
func (s *PersonalSource) All(ctx context.Context, args Args) ([]models.Contact, error) {
	if args.UserUUID == "" {
		return nil, nil
	}

	contacts, err := s.store.List(ctx, args.UserUUID)
	if err != nil {
		return nil, err
	}
	return s.convert(contacts), nil
}

func (s *PersonalSource) convert(contacts []models.PersonalContact) []models.Contact {
	results := make([]models.Contact, 0, len(contacts))
	for _, c := range contacts {
		results = append(results, s.contact(c))
	}
	return results
}

func (s *PersonalSource) contact(pc models.PersonalContact) models.Contact {
	c := newContact(s.cfg, pc.ID, pc.Body())
	c.Personal = true
	c.Deletable = true
	return c
}
