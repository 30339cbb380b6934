package services

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/desertthunder/dird/internal/sources"
)

// Favorite event names.
const (
	EventFavoriteAdded   = "favorite_added"
	EventFavoriteDeleted = "favorite_deleted"
)

// FavoriteEvent is the payload of favorite events.
type FavoriteEvent struct {
	UserUUID   string `json:"user_uuid"`
	TenantUUID string `json:"tenant_uuid"`
	Source     string `json:"source"`
	ContactID  string `json:"contact_id"`
}

// Registry exposes the current source generation.
type Registry interface {
	Current() *sources.Generation
}

// FavoriteStore persists favorites. Implemented by [repositories.FavoriteRepository].
type FavoriteStore interface {
	Create(ctx context.Context, fav models.Favorite) error
	Delete(ctx context.Context, fav models.Favorite) error
	List(ctx context.Context, owner string) ([]models.Favorite, error)
}

// FavoriteService marks and unmarks favorite contacts and announces the changes.
type FavoriteService struct {
	store     FavoriteStore
	registry  Registry
	publisher Publisher
	logger    *log.Logger
}

// NewFavoriteService creates a FavoriteService. A nil registry accepts any source name;
// a nil publisher disables events.
func NewFavoriteService(store FavoriteStore, registry Registry, publisher Publisher, logger *log.Logger) *FavoriteService {
	if logger == nil {
		logger = log.Default()
	}
	return &FavoriteService{
		store:     store,
		registry:  registry,
		publisher: publisher,
		logger:    shared.WithLogger(logger, "component", "favorites"),
	}
}

// Add marks a contact of a configured source visible to tenant as favorite of fav.Owner.
func (s *FavoriteService) Add(ctx context.Context, tenant string, fav models.Favorite) error {
	if err := s.check(tenant, fav); err != nil {
		return err
	}
	if err := s.store.Create(ctx, fav); err != nil {
		return err
	}
	s.publish(ctx, EventFavoriteAdded, tenant, fav)
	return nil
}

// Remove unmarks a favorite; an unknown favorite fails with [shared.ErrNoSuchFavorite].
func (s *FavoriteService) Remove(ctx context.Context, tenant string, fav models.Favorite) error {
	if err := s.check(tenant, fav); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, fav); err != nil {
		return err
	}
	s.publish(ctx, EventFavoriteDeleted, tenant, fav)
	return nil
}

func (s *FavoriteService) List(ctx context.Context, owner string) ([]models.Favorite, error) {
	return s.store.List(ctx, owner)
}

func (s *FavoriteService) check(tenant string, fav models.Favorite) error {
	if fav.Owner == "" || fav.Source == "" || fav.ContactID == "" {
		return fmt.Errorf("%w: user, source and contact id are required", shared.ErrMissingArgument)
	}
	if s.registry == nil {
		return nil
	}
	if !s.registry.Current().Visible(fav.Source, tenant) {
		return fmt.Errorf("%w: %s", shared.ErrNoSuchSource, fav.Source)
	}
	return nil
}

func (s *FavoriteService) publish(ctx context.Context, name, tenant string, fav models.Favorite) {
	if s.publisher == nil {
		return
	}
	event := FavoriteEvent{
		UserUUID:   fav.Owner,
		TenantUUID: tenant,
		Source:     fav.Source,
		ContactID:  fav.ContactID,
	}
	if err := s.publisher.Publish(ctx, name, event); err != nil {
		s.logger.Warn("failed to publish event", "event", name, "error", err)
	}
}
