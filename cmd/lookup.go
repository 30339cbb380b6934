package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/dird/internal/auth"
	"github.com/desertthunder/dird/internal/engine"
	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/urfave/cli/v3"
)

// request builds an engine request for the caller and the profile and page flags.
func (d *directory) request(ctx context.Context, cmd *cli.Command) (engine.Request, error) {
	info, err := d.identify(ctx, cmd)
	if err != nil {
		return engine.Request{}, err
	}
	return newRequest(info, cmd), nil
}

func newRequest(info *auth.TokenInfo, cmd *cli.Command) engine.Request {
	return engine.Request{
		Profile:    cmd.String("profile"),
		TenantUUID: info.TenantUUID,
		UserUUID:   info.UserUUID,
		Token:      info.Token,
		External:   info.External,
		Limit:      limit(cmd),
		Offset:     int(cmd.Int("offset")),
	}
}

// args returns exactly n positional arguments named by usage.
func args(cmd *cli.Command, n int, usage string) ([]string, error) {
	a := cmd.Args().Slice()
	if len(a) < n {
		return nil, fmt.Errorf("%w: expected %s", shared.ErrMissingArgument, usage)
	}
	if len(a) > n {
		return nil, fmt.Errorf("%w: unexpected arguments %v", shared.ErrInvalidArgument, a[n:])
	}
	return a, nil
}

// withProgress runs fn with a progress channel drained to stderr when --progress is set.
func (r *Runner) withProgress(cmd *cli.Command, fn func(progress chan<- engine.ProgressUpdate) error) error {
	if !cmd.Bool("progress") {
		return fn(nil)
	}

	progress := make(chan engine.ProgressUpdate, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.palette.Progress(os.Stderr, progress)
	}()

	err := fn(progress)
	close(progress)
	<-done
	return err
}

// Lookup searches the lookup sources of a profile.
func (r *Runner) Lookup(ctx context.Context, cmd *cli.Command) error {
	term := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if term == "" {
		return fmt.Errorf("%w: expected TERM", shared.ErrMissingArgument)
	}

	return r.with(ctx, true, func(d *directory) error {
		req, err := d.request(ctx, cmd)
		if err != nil {
			return err
		}

		var result *models.LookupResult
		err = r.withProgress(cmd, func(progress chan<- engine.ProgressUpdate) error {
			result, err = d.engine.Lookup(ctx, req, term, progress)
			return err
		})
		if err != nil {
			return fmt.Errorf("lookup failed: %w", err)
		}

		r.logger.Debug("lookup complete", "term", term, "profile", req.Profile, "total", result.Total)
		return r.writeLookup(result, cmd.String("format"), "Lookup: "+term, cmd.Bool("pretty"))
	})
}

// Reverse resolves one or more numbers to the contact owning them.
func (r *Runner) Reverse(ctx context.Context, cmd *cli.Command) error {
	extens := cmd.Args().Slice()
	if len(extens) == 0 {
		return fmt.Errorf("%w: expected EXTEN", shared.ErrMissingArgument)
	}

	return r.with(ctx, true, func(d *directory) error {
		req, err := d.request(ctx, cmd)
		if err != nil {
			return err
		}

		results, err := d.engine.ReverseMany(ctx, req, extens)
		if err != nil {
			return fmt.Errorf("reverse lookup failed: %w", err)
		}
		if results == nil {
			results = []models.ReverseResult{}
		}

		return r.writeResult(cmd, results, func() error {
			rows := make([][]string, 0, len(results))
			for _, res := range results {
				rows = append(rows, []string{res.Exten, res.Display, res.Source, res.Backend})
			}
			return r.writeTable([]string{"Exten", "Display", "Source", "Backend"}, rows)
		})
	})
}

// Phone runs a lookup shaped for the directory screen of a desk phone.
func (r *Runner) Phone(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, 1, "TERM")
	if err != nil {
		return err
	}

	return r.with(ctx, true, func(d *directory) error {
		req, err := d.request(ctx, cmd)
		if err != nil {
			return err
		}

		result, err := d.engine.PhoneLookup(ctx, req, a[0], cmd.String("vendor"))
		if err != nil {
			return fmt.Errorf("phone lookup failed: %w", err)
		}

		return r.writeResult(cmd, result, func() error {
			rows := make([][]string, 0, len(result.Results))
			for _, e := range result.Results {
				rows = append(rows, []string{e.Name, e.Number})
			}
			if err := r.writeTable([]string{"Name", "Number"}, rows); err != nil {
				return err
			}
			return r.writePlainln("%s", r.palette.Help(fmt.Sprintf("%s: %d entries, offset %d", result.Vendor, result.Total, result.Offset)))
		})
	})
}

// FavoritesList resolves the caller's favorites through a profile.
func (r *Runner) FavoritesList(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, true, func(d *directory) error {
		info, err := d.user(ctx, cmd)
		if err != nil {
			return err
		}

		result, err := d.engine.Favorites(ctx, newRequest(info, cmd), nil)
		if err != nil {
			return fmt.Errorf("failed to list favorites: %w", err)
		}
		return r.writeLookup(result, cmd.String("format"), "Favorites", cmd.Bool("pretty"))
	})
}

// FavoritesAdd marks SOURCE CONTACT_ID as a favorite of the caller.
func (r *Runner) FavoritesAdd(ctx context.Context, cmd *cli.Command) error {
	return r.favorite(ctx, cmd, true)
}

// FavoritesRemove unmarks SOURCE CONTACT_ID.
func (r *Runner) FavoritesRemove(ctx context.Context, cmd *cli.Command) error {
	return r.favorite(ctx, cmd, false)
}

func (r *Runner) favorite(ctx context.Context, cmd *cli.Command, add bool) error {
	a, err := args(cmd, 2, "SOURCE CONTACT_ID")
	if err != nil {
		return err
	}

	return r.with(ctx, true, func(d *directory) error {
		info, err := d.user(ctx, cmd)
		if err != nil {
			return err
		}

		fav := models.Favorite{Owner: info.UserUUID, Source: a[0], ContactID: a[1]}
		if add {
			if err := d.favorites.Add(ctx, info.TenantUUID, fav); err != nil {
				return err
			}
			return r.writePlainln("%s", r.palette.OK(fmt.Sprintf("✓ %s/%s added to favorites", fav.Source, fav.ContactID)))
		}

		if err := d.favorites.Remove(ctx, info.TenantUUID, fav); err != nil {
			return err
		}
		return r.writePlainln("%s", r.palette.OK(fmt.Sprintf("✓ %s/%s removed from favorites", fav.Source, fav.ContactID)))
	})
}
