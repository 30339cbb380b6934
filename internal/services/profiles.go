package services

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
)

var profileSourceOrders = []string{"name", "backend"}

var profileServices = []string{models.ServiceLookup, models.ServiceReverse, models.ServiceFavorites}

// ProfileService reads profiles from the current source generation.
type ProfileService struct {
	registry Registry
}

func NewProfileService(registry Registry) *ProfileService {
	return &ProfileService{registry: registry}
}

// Get returns the profile called name visible to tenant.
func (s *ProfileService) Get(_ context.Context, tenant, name string) (*models.Profile, error) {
	return s.registry.Current().Profile(tenant, name)
}

// List returns the profiles visible to tenant.
func (s *ProfileService) List(_ context.Context, tenant string) []models.Profile {
	profiles := s.registry.Current().Profiles(tenant)
	if profiles == nil {
		profiles = []models.Profile{}
	}
	return profiles
}

// Sources lists the configured sources a profile references in any of its services, with their load state.
//
// params.Name filters on the exact name, params.Search on a name substring; order may be "name" or "backend".
func (s *ProfileService) Sources(_ context.Context, tenant, name string, params models.ListParams) (*models.ListResult[models.SourceItem], error) {
	if err := validateListParams(params, profileSourceOrders); err != nil {
		return nil, err
	}

	gen := s.registry.Current()
	profile, err := gen.Profile(tenant, name)
	if err != nil {
		return nil, err
	}

	var all []models.SourceItem
	seen := map[string]bool{}
	for _, service := range profileServices {
		for _, source := range profile.SourceNames(service) {
			if seen[source] {
				continue
			}
			seen[source] = true
			if !gen.Visible(source, tenant) {
				continue
			}
			if cfg, ok := gen.Config(source); ok {
				all = append(all, models.SourceItem{SourceConfig: cfg, Loaded: gen.Loaded(source)})
			}
		}
	}

	filtered := make([]models.SourceItem, 0, len(all))
	for _, item := range all {
		if params.Name != "" && item.Name != params.Name {
			continue
		}
		if params.Search != "" && !shared.ContainsFold(item.Name, params.Search) {
			continue
		}
		filtered = append(filtered, item)
	}
	sortSourceItems(filtered, params.Order, params.Direction)

	return &models.ListResult[models.SourceItem]{
		Total:    len(all),
		Filtered: len(filtered),
		Items:    page(filtered, params),
	}, nil
}

func sortSourceItems(items []models.SourceItem, order, direction string) {
	key := func(i models.SourceItem) string { return strings.ToLower(i.Name) }
	if order == "backend" {
		key = func(i models.SourceItem) string { return i.Backend }
	}
	sort.SliceStable(items, func(a, b int) bool { return key(items[a]) < key(items[b]) })
	if direction == models.DirectionDesc {
		slices.Reverse(items)
	}
}

// page applies the offset and limit of params to items.
func page[T any](items []T, params models.ListParams) []T {
	start := min(params.Offset, len(items))
	end := len(items)
	if params.Limit != nil {
		end = min(start+*params.Limit, end)
	}
	return items[start:end]
}
