package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/desertthunder/dird/internal/sources"
)

var sourceOrders = []string{"name", "backend"}

// SourceStore persists sources created at runtime. Implemented by [repositories.SourceRepository].
type SourceStore interface {
	Create(ctx context.Context, cfg models.SourceConfig) (*models.SourceConfig, error)
	Get(ctx context.Context, backend, uuid string, visibleTenants []string) (*models.SourceConfig, error)
	Edit(ctx context.Context, backend, uuid string, visibleTenants []string, cfg models.SourceConfig) (*models.SourceConfig, error)
	Delete(ctx context.Context, backend, uuid string, visibleTenants []string) error
	List(ctx context.Context, backend string, visibleTenants []string, params models.ListParams) ([]models.SourceConfig, error)
	Count(ctx context.Context, backend string, visibleTenants []string, search string) (int, error)
}

// Reloader rebuilds the source registry.
type Reloader interface {
	Reload(ctx context.Context) error
}

// SourceService manages sources created at runtime, next to those of the configuration file.
type SourceService struct {
	store    SourceStore
	reloader Reloader
	logger   *log.Logger
}

// NewSourceService creates a SourceService. A nil reloader leaves the registry untouched.
func NewSourceService(store SourceStore, reloader Reloader, logger *log.Logger) *SourceService {
	if logger == nil {
		logger = log.Default()
	}
	return &SourceService{store: store, reloader: reloader, logger: shared.WithLogger(logger, "component", "sources")}
}

// Backends returns the backends sources may be created for.
func (s *SourceService) Backends() []string {
	return sources.Backends()
}

// Create validates cfg and stores it as a source of backend.
// A name already taken fails with [shared.ErrDuplicatedSource].
func (s *SourceService) Create(ctx context.Context, backend string, cfg models.SourceConfig) (*models.SourceConfig, error) {
	cfg.Backend = backend
	if err := validateSource(cfg); err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.logger.Info("source created", "source", created.Name, "backend", backend, "uuid", created.UUID)
	s.reload(ctx)
	return created, nil
}

func (s *SourceService) Get(ctx context.Context, backend, uuid string, visibleTenants []string) (*models.SourceConfig, error) {
	if !sources.IsBackend(backend) {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownBackend, backend)
	}
	return s.store.Get(ctx, backend, uuid, visibleTenants)
}

// Edit replaces the configuration of a source; its uuid and backend are kept.
func (s *SourceService) Edit(ctx context.Context, backend, uuid string, visibleTenants []string, cfg models.SourceConfig) (*models.SourceConfig, error) {
	cfg.Backend = backend
	cfg.UUID = uuid
	if err := validateSource(cfg); err != nil {
		return nil, err
	}

	edited, err := s.store.Edit(ctx, backend, uuid, visibleTenants, cfg)
	if err != nil {
		return nil, err
	}
	s.logger.Info("source edited", "source", edited.Name, "backend", backend, "uuid", uuid)
	s.reload(ctx)
	return edited, nil
}

func (s *SourceService) Delete(ctx context.Context, backend, uuid string, visibleTenants []string) error {
	if !sources.IsBackend(backend) {
		return fmt.Errorf("%w: %s", shared.ErrUnknownBackend, backend)
	}
	if err := s.store.Delete(ctx, backend, uuid, visibleTenants); err != nil {
		return err
	}
	s.logger.Info("source deleted", "backend", backend, "uuid", uuid)
	s.reload(ctx)
	return nil
}

// List returns the visible sources of backend, or of every backend when backend is empty.
func (s *SourceService) List(ctx context.Context, backend string, visibleTenants []string, params models.ListParams) (*models.ListResult[models.SourceConfig], error) {
	if backend != "" && !sources.IsBackend(backend) {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownBackend, backend)
	}
	if err := validateListParams(params, sourceOrders); err != nil {
		return nil, err
	}

	total, err := s.store.Count(ctx, backend, visibleTenants, "")
	if err != nil {
		return nil, err
	}

	var filtered int
	switch {
	case params.Name != "":
		all := params
		all.Limit, all.Offset = nil, 0
		matching, err := s.store.List(ctx, backend, visibleTenants, all)
		if err != nil {
			return nil, err
		}
		filtered = len(matching)
	case params.Search != "":
		if filtered, err = s.store.Count(ctx, backend, visibleTenants, params.Search); err != nil {
			return nil, err
		}
	default:
		filtered = total
	}

	items, err := s.store.List(ctx, backend, visibleTenants, params)
	if err != nil {
		return nil, err
	}
	return &models.ListResult[models.SourceConfig]{Total: total, Filtered: filtered, Items: items}, nil
}

func (s *SourceService) reload(ctx context.Context) {
	if s.reloader == nil {
		return
	}
	if err := s.reloader.Reload(ctx); err != nil {
		s.logger.Warn("failed to reload sources", "error", err)
	}
}

func validateSource(cfg models.SourceConfig) error {
	if err := validateStruct(cfg, shared.ErrInvalidSource); err != nil {
		return err
	}
	if !sources.IsBackend(cfg.Backend) {
		return shared.NewValidationError(shared.ErrInvalidSource, fmt.Sprintf("unknown backend %q", cfg.Backend))
	}
	if cfg.Tenant != "" {
		if err := ValidateTenant(cfg.Tenant); err != nil {
			return shared.NewValidationError(shared.ErrInvalidSource, err.Error())
		}
	}
	return nil
}

// SourceLister returns every stored source.
type SourceLister interface {
	All(ctx context.Context) ([]models.SourceConfig, error)
}

// SnapshotReloader publishes a generation built from a snapshot. Implemented by [sources.Registry].
type SnapshotReloader interface {
	Reload(ctx context.Context, snap sources.Snapshot) *sources.Generation
}

// Loader feeds the registry with the sources, displays and profiles of the configuration file
// plus the sources stored at runtime. File sources win over stored ones with the same name.
type Loader struct {
	registry SnapshotReloader
	stored   SourceLister
	logger   *log.Logger

	mu  sync.Mutex
	cfg *shared.Config
}

// NewLoader creates a Loader. A nil stored lister uses the configuration file only.
func NewLoader(registry SnapshotReloader, stored SourceLister, cfg *shared.Config, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{registry: registry, stored: stored, cfg: cfg, logger: shared.WithLogger(logger, "component", "loader")}
}

// Snapshot assembles the current configuration.
func (l *Loader) Snapshot(ctx context.Context) (sources.Snapshot, error) {
	l.mu.Lock()
	cfg := l.cfg
	l.mu.Unlock()

	snap := sources.Snapshot{
		Sources:  append([]models.SourceConfig(nil), cfg.Sources...),
		Displays: cfg.Displays,
		Profiles: cfg.Profiles,
		Enabled:  cfg.EnabledBackends,
	}
	if l.stored == nil {
		return snap, nil
	}

	stored, err := l.stored.All(ctx)
	if err != nil {
		return sources.Snapshot{}, fmt.Errorf("failed to list stored sources: %w", err)
	}
	names := make(map[string]bool, len(snap.Sources))
	for _, c := range snap.Sources {
		names[c.Name] = true
	}
	for _, c := range stored {
		if names[c.Name] {
			l.logger.Warn("stored source shadowed by configuration file", "source", c.Name, "uuid", c.UUID)
			continue
		}
		snap.Sources = append(snap.Sources, c)
	}
	return snap, nil
}

// Reload publishes a new generation from the current configuration.
func (l *Loader) Reload(ctx context.Context) error {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return err
	}
	l.registry.Reload(ctx, snap)
	return nil
}

// SetConfig replaces the configuration file contents and reloads.
func (l *Loader) SetConfig(ctx context.Context, cfg *shared.Config) error {
	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
	return l.Reload(ctx)
}
