package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/dird/internal/server"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Serve runs the status server until interrupted.
//
// The registry is reloaded when the config file changes and, with --reload-interval, periodically
// so sources stored by other processes are picked up.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return r.with(ctx, true, func(d *directory) error {
		addr := cmd.String("addr")
		if addr == "" {
			addr = r.config.Server.Addr()
		}
		srv := server.New(addr, server.NewRouter(d.registry, d.gatherer, r.logger), r.logger)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.ListenAndRun(ctx)
		})

		if _, err := os.Stat(r.configPath); err == nil && !cmd.Bool("no-watch") {
			g.Go(func() error {
				return shared.WatchConfig(ctx, r.configPath, r.logger, func(cfg *shared.Config) {
					shared.ConfigureLogger(r.logger, cfg.Log)
					r.reload(ctx, d, func() error { return d.loader.SetConfig(ctx, cfg) })
				})
			})
		}

		if interval := cmd.Duration("reload-interval"); interval > 0 {
			g.Go(func() error {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						r.reload(ctx, d, func() error { return d.loader.Reload(ctx) })
					}
				}
			})
		}

		return g.Wait()
	})
}

func (r *Runner) reload(ctx context.Context, d *directory, fn func() error) {
	if err := fn(); err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("failed to reload sources", "error", err)
		}
		return
	}
	gen := d.registry.Current()
	r.logger.Info("sources reloaded", "generation", gen.Number, "loaded", gen.Len())
}
