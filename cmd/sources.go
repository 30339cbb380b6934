package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
)

// sourceBody decodes --body, reading it from a file when it starts with @.
func sourceBody(cmd *cli.Command) (models.SourceConfig, error) {
	var cfg models.SourceConfig

	raw := []byte(cmd.String("body"))
	if path, ok := strings.CutPrefix(string(raw), "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read source body: %w", err)
		}
		raw = data
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: source body: %v", shared.ErrInvalidArgument, err)
	}
	return cfg, nil
}

// visibleTenants scopes source access to the caller's tenant, or to every tenant without one.
func (d *directory) visibleTenants(ctx context.Context, cmd *cli.Command) ([]string, error) {
	info, err := d.identify(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if info.TenantUUID == "" {
		return nil, nil
	}
	return []string{info.TenantUUID}, nil
}

func (r *Runner) writeSources(cmd *cli.Command, v any, configs ...models.SourceConfig) error {
	return r.writeResult(cmd, v, func() error {
		rows := make([][]string, 0, len(configs))
		for _, c := range configs {
			rows = append(rows, []string{c.UUID, c.Name, c.Backend, c.Tenant})
		}
		return r.writeTable([]string{"UUID", "Name", "Backend", "Tenant"}, rows)
	})
}

// SourcesBackends lists the backends sources can be created for.
func (r *Runner) SourcesBackends(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, false, func(d *directory) error {
		for _, b := range d.sources.Backends() {
			if err := r.writePlainln("%s", b); err != nil {
				return err
			}
		}
		return nil
	})
}

// SourcesList lists stored sources.
func (r *Runner) SourcesList(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, false, func(d *directory) error {
		tenants, err := d.visibleTenants(ctx, cmd)
		if err != nil {
			return err
		}
		result, err := d.sources.List(ctx, cmd.String("backend"), tenants, listParams(cmd))
		if err != nil {
			return err
		}
		return r.writeSources(cmd, result, result.Items...)
	})
}

// SourcesGet shows a stored source.
func (r *Runner) SourcesGet(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, 2, "BACKEND UUID")
	if err != nil {
		return err
	}

	return r.with(ctx, false, func(d *directory) error {
		tenants, err := d.visibleTenants(ctx, cmd)
		if err != nil {
			return err
		}
		cfg, err := d.sources.Get(ctx, a[0], a[1], tenants)
		if err != nil {
			return err
		}
		return r.writeSources(cmd, cfg, *cfg)
	})
}

// SourcesCreate stores a source from --body.
func (r *Runner) SourcesCreate(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, 1, "BACKEND")
	if err != nil {
		return err
	}
	cfg, err := sourceBody(cmd)
	if err != nil {
		return err
	}

	return r.with(ctx, false, func(d *directory) error {
		info, err := d.identify(ctx, cmd)
		if err != nil {
			return err
		}
		if cfg.Tenant == "" {
			cfg.Tenant = info.TenantUUID
		}
		created, err := d.sources.Create(ctx, a[0], cfg)
		if err != nil {
			return err
		}
		return r.writeSources(cmd, created, *created)
	})
}

// SourcesEdit replaces a stored source with --body.
func (r *Runner) SourcesEdit(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, 2, "BACKEND UUID")
	if err != nil {
		return err
	}
	cfg, err := sourceBody(cmd)
	if err != nil {
		return err
	}

	return r.with(ctx, false, func(d *directory) error {
		tenants, err := d.visibleTenants(ctx, cmd)
		if err != nil {
			return err
		}
		edited, err := d.sources.Edit(ctx, a[0], a[1], tenants, cfg)
		if err != nil {
			return err
		}
		return r.writeSources(cmd, edited, *edited)
	})
}

// SourcesRemove deletes a stored source.
func (r *Runner) SourcesRemove(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, 2, "BACKEND UUID")
	if err != nil {
		return err
	}

	return r.with(ctx, false, func(d *directory) error {
		tenants, err := d.visibleTenants(ctx, cmd)
		if err != nil {
			return err
		}
		if err := d.sources.Delete(ctx, a[0], a[1], tenants); err != nil {
			return err
		}
		return r.writePlainln("%s", r.palette.OK("✓ source "+a[1]+" deleted"))
	})
}

// ProfilesList lists the profiles visible to the caller's tenant.
func (r *Runner) ProfilesList(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, true, func(d *directory) error {
		info, err := d.identify(ctx, cmd)
		if err != nil {
			return err
		}

		profiles := d.profiles.List(ctx, info.TenantUUID)
		return r.writeResult(cmd, profiles, func() error {
			rows := make([][]string, 0, len(profiles))
			for _, p := range profiles {
				rows = append(rows, []string{
					p.Name,
					p.Tenant,
					p.Display,
					strings.Join(p.SourceNames(models.ServiceLookup), ", "),
					strings.Join(p.SourceNames(models.ServiceReverse), ", "),
					strings.Join(p.SourceNames(models.ServiceFavorites), ", "),
				})
			}
			return r.writeTable([]string{"Name", "Tenant", "Display", "Lookup", "Reverse", "Favorites"}, rows)
		})
	})
}

// ProfilesSources lists the sources used by a profile with their load state.
func (r *Runner) ProfilesSources(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, 1, "PROFILE")
	if err != nil {
		return err
	}

	return r.with(ctx, true, func(d *directory) error {
		info, err := d.identify(ctx, cmd)
		if err != nil {
			return err
		}

		result, err := d.profiles.Sources(ctx, info.TenantUUID, a[0], listParams(cmd))
		if err != nil {
			return err
		}
		return r.writeResult(cmd, result, func() error {
			rows := make([][]string, 0, len(result.Items))
			for _, item := range result.Items {
				loaded := r.palette.OK("yes")
				if !item.Loaded {
					loaded = r.palette.Err("no")
				}
				rows = append(rows, []string{item.Name, item.Backend, loaded})
			}
			return r.writeTable([]string{"Name", "Backend", "Loaded"}, rows)
		})
	})
}
