package sources

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dird/internal/metrics"
	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
)

// Snapshot is the configuration a generation is built from.
type Snapshot struct {
	Sources  []models.SourceConfig
	Displays []models.Display
	Profiles []models.Profile
	// Enabled restricts the backends that may be loaded; empty enables every backend.
	Enabled []string
}

// Generation is an immutable view of the loaded sources, displays and profiles.
// A request reads one generation for its whole lifetime.
type Generation struct {
	Number   uint64
	sources  map[string]Source
	configs  map[string]models.SourceConfig
	displays map[string]models.Display
	profiles []models.Profile
}

// NewGeneration assembles a generation from already constructed sources and the rest of snap.
func NewGeneration(number uint64, loaded map[string]Source, snap Snapshot) *Generation {
	g := &Generation{
		Number:   number,
		sources:  make(map[string]Source, len(loaded)),
		configs:  make(map[string]models.SourceConfig, len(snap.Sources)),
		displays: make(map[string]models.Display, len(snap.Displays)),
		profiles: append([]models.Profile(nil), snap.Profiles...),
	}
	for name, src := range loaded {
		g.sources[name] = src
	}
	for _, c := range snap.Sources {
		if _, dup := g.configs[c.Name]; !dup {
			g.configs[c.Name] = c
		}
	}
	for _, d := range snap.Displays {
		g.displays[d.Name] = d
	}
	return g
}

// Backend returns the backend tag of the source called name, empty when unconfigured.
func (g *Generation) Backend(name string) string {
	return g.configs[name].Backend
}

// Source returns the loaded source called name.
func (g *Generation) Source(name string) (Source, bool) {
	s, ok := g.sources[name]
	return s, ok
}

// Config returns the configuration of the source called name, loaded or not.
func (g *Generation) Config(name string) (models.SourceConfig, bool) {
	c, ok := g.configs[name]
	return c, ok
}

// Loaded reports whether the source called name was constructed successfully.
func (g *Generation) Loaded(name string) bool {
	_, ok := g.sources[name]
	return ok
}

// Len returns the number of loaded sources.
func (g *Generation) Len() int { return len(g.sources) }

// Names returns the loaded source names, sorted.
func (g *Generation) Names() []string {
	names := make([]string, 0, len(g.sources))
	for _, c := range g.orderedConfigs() {
		if g.Loaded(c.Name) {
			names = append(names, c.Name)
		}
	}
	return names
}

// Configs returns every configured source, in name order.
func (g *Generation) Configs() []models.SourceConfig {
	return g.orderedConfigs()
}

func (g *Generation) orderedConfigs() []models.SourceConfig {
	configs := make([]models.SourceConfig, 0, len(g.configs))
	for _, c := range g.configs {
		configs = append(configs, c)
	}
	sortConfigs(configs)
	return configs
}

// Visible reports whether the source called name may be read by callers of tenant.
// Sources without a tenant are global; an unknown source is never visible.
func (g *Generation) Visible(name, tenant string) bool {
	cfg, ok := g.configs[name]
	if !ok {
		return false
	}
	return cfg.Tenant == "" || cfg.Tenant == tenant
}

// ForProfile returns the loaded sources profile declares for service, in declared order.
// Unknown and unloaded names are skipped, as are sources of a tenant other than tenant.
func (g *Generation) ForProfile(profile *models.Profile, service, tenant string) []Source {
	names := profile.SourceNames(service)
	result := make([]Source, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if !g.Visible(name, tenant) {
			continue
		}
		if s, ok := g.sources[name]; ok {
			result = append(result, s)
		}
	}
	return result
}

// Profile returns the profile called name visible to tenant. Profiles without a tenant are visible to all,
// tenant scoped ones only to callers of that tenant.
func (g *Generation) Profile(tenant, name string) (*models.Profile, error) {
	for i := range g.profiles {
		p := &g.profiles[i]
		if p.Name == name && (p.Tenant == "" || p.Tenant == tenant) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrNoSuchProfile, name)
}

// Profiles returns the profiles visible to tenant.
func (g *Generation) Profiles(tenant string) []models.Profile {
	var result []models.Profile
	for _, p := range g.profiles {
		if p.Tenant == "" || p.Tenant == tenant {
			result = append(result, p)
		}
	}
	return result
}

// AllProfiles returns every profile regardless of tenant.
func (g *Generation) AllProfiles() []models.Profile {
	return slices.Clone(g.profiles)
}

// Display returns the display called name.
func (g *Generation) Display(name string) (*models.Display, bool) {
	d, ok := g.displays[name]
	if !ok {
		return nil, false
	}
	return &d, true
}

// Registry builds sources from configuration and publishes them as generations.
//
// Reads go through [Registry.Current] and never block; [Registry.Reload] is serialized.
type Registry struct {
	deps     Dependencies
	breaker  BreakerSettings
	logger   *log.Logger
	metrics  *metrics.Metrics
	current  atomic.Pointer[Generation]
	mu       sync.Mutex
	sequence uint64
}

// RegistryOption customizes a [Registry].
type RegistryOption func(*Registry)

// WithBreakerSettings overrides [DefaultBreakerSettings].
func WithBreakerSettings(s BreakerSettings) RegistryOption {
	return func(r *Registry) { r.breaker = s }
}

// NewRegistry creates a registry with an empty generation.
func NewRegistry(deps Dependencies, opts ...RegistryOption) *Registry {
	if deps.Logger == nil {
		deps.Logger = shared.NewLogger(nil)
	}
	r := &Registry{
		deps:    deps,
		breaker: DefaultBreakerSettings,
		logger:  shared.WithLogger(deps.Logger, "component", "registry"),
		metrics: deps.Metrics,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.current.Store(NewGeneration(0, nil, Snapshot{}))
	return r
}

// Current returns the latest published generation.
func (r *Registry) Current() *Generation {
	return r.current.Load()
}

// LoadAll constructs every config whose backend is enabled. A failing source is logged and
// left out; it never prevents the others from loading.
func (r *Registry) LoadAll(ctx context.Context, configs []models.SourceConfig, enabled []string) map[string]Source {
	allowed := make(map[string]bool, len(enabled))
	for _, b := range enabled {
		allowed[b] = true
	}

	loaded := make(map[string]Source, len(configs))
	for _, cfg := range configs {
		if len(allowed) > 0 && !allowed[cfg.Backend] {
			r.logger.Debug("backend disabled, skipping source", "source", cfg.Name, "backend", cfg.Backend)
			continue
		}
		if _, dup := loaded[cfg.Name]; dup {
			r.logger.Warn("duplicated source name, keeping the first", "source", cfg.Name)
			continue
		}

		src, err := r.load(ctx, cfg)
		if err != nil {
			r.logger.Error("failed to load source", "source", cfg.Name, "backend", cfg.Backend, "error", err)
			r.metrics.SourceLoadFailed(cfg.Backend)
			continue
		}
		loaded[cfg.Name] = src
	}
	return loaded
}

func (r *Registry) load(ctx context.Context, cfg models.SourceConfig) (src Source, err error) {
	constructor, ok := constructors[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownBackend, cfg.Backend)
	}

	defer func() {
		if p := recover(); p != nil {
			src, err = nil, fmt.Errorf("constructor panicked: %v", p)
		}
	}()

	deps := r.deps
	deps.Logger = shared.WithLogger(r.deps.Logger, "source", cfg.Name)
	src, err = constructor(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}
	if remote(cfg.Backend) {
		src = withBreaker(src, cfg.Backend, r.breaker, r.metrics, deps.Logger)
	}
	return src, nil
}

// Reload builds a generation from snap and publishes it. Concurrent reloads run one at a time.
func (r *Registry) Reload(ctx context.Context, snap Snapshot) *Generation {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sequence++
	g := NewGeneration(r.sequence, r.LoadAll(ctx, snap.Sources, snap.Enabled), snap)
	r.current.Store(g)

	r.metrics.ObserveGeneration(g.Number, len(g.sources))
	r.logger.Info("registry reloaded", "generation", g.Number, "loaded", len(g.sources), "configured", len(g.configs))
	return g
}
