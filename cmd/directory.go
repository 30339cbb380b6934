package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/dird/internal/auth"
	"github.com/desertthunder/dird/internal/engine"
	"github.com/desertthunder/dird/internal/events"
	"github.com/desertthunder/dird/internal/metrics"
	"github.com/desertthunder/dird/internal/repositories"
	"github.com/desertthunder/dird/internal/services"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/desertthunder/dird/internal/sources"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"
)

// directory is the assembled application behind a command.
type directory struct {
	db        *sql.DB
	gatherer  *prometheus.Registry
	registry  *sources.Registry
	loader    *services.Loader
	engine    *engine.Engine
	verifier  auth.Verifier
	publisher *events.Publisher
	listener  *events.Listener
	stop      context.CancelFunc

	personal   *services.PersonalService
	phonebooks *services.PhonebookService
	favorites  *services.FavoriteService
	profiles   *services.ProfileService
	sources    *services.SourceService
}

// open connects the database and wires the services. Sources are not loaded until [directory.load].
func (r *Runner) open() (*directory, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	gatherer := prometheus.NewRegistry()
	m := metrics.New(gatherer)

	personalRepo := repositories.NewPersonalRepository(db)
	phonebookRepo := repositories.NewPhonebookRepository(db)
	contactRepo := repositories.NewPhonebookContactRepository(db)
	favoriteRepo := repositories.NewFavoriteRepository(db)
	sourceRepo := repositories.NewSourceRepository(db)

	registry := sources.NewRegistry(sources.Dependencies{
		Logger:            r.logger,
		Metrics:           m,
		Personal:          personalRepo,
		Phonebooks:        phonebookRepo,
		PhonebookContacts: contactRepo,
		HTTPClient:        r.httpClient,
	})
	loader := services.NewLoader(registry, sourceRepo, r.config, r.logger)
	publisher, bus := events.NewGoChannel(r.config.Events, r.logger)

	// Events are handled in the process that publishes them.
	listenCtx, stop := context.WithCancel(context.Background())
	listener, err := events.Listen(listenCtx, bus, r.eventHandler, services.EventFavoriteAdded, services.EventFavoriteDeleted)
	if err != nil {
		stop()
		return nil, multierr.Append(err, multierr.Combine(publisher.Close(), db.Close()))
	}

	return &directory{
		db:         db,
		gatherer:   gatherer,
		registry:   registry,
		loader:     loader,
		engine:     engine.New(registry, favoriteRepo, r.config.Engine, r.logger, m),
		verifier:   auth.FromConfig(r.config.Auth),
		publisher:  publisher,
		listener:   listener,
		stop:       stop,
		personal:   services.NewPersonalService(personalRepo, r.logger),
		phonebooks: services.NewPhonebookService(phonebookRepo, contactRepo, r.logger),
		favorites:  services.NewFavoriteService(favoriteRepo, registry, publisher, r.logger),
		profiles:   services.NewProfileService(registry),
		sources:    services.NewSourceService(sourceRepo, loader, r.logger),
	}, nil
}

// load builds the first source generation.
func (d *directory) load(ctx context.Context) error {
	if err := d.loader.Reload(ctx); err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}
	return nil
}

// Close closes the bus, waits for the pending events to be handled, then closes the database.
func (d *directory) Close() error {
	err := d.publisher.Close()
	d.stop()
	_ = d.listener.Wait()
	return multierr.Combine(err, d.db.Close())
}

// with opens the directory, loading sources when asked, and runs fn against it.
func (r *Runner) with(ctx context.Context, load bool, fn func(d *directory) error) error {
	d, err := r.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			r.logger.Warn("failed to close directory", "error", err)
		}
	}()

	if load {
		if err := d.load(ctx); err != nil {
			return err
		}
	}
	return fn(d)
}

// identify resolves the caller from --token, falling back to --user and --tenant.
func (d *directory) identify(ctx context.Context, cmd *cli.Command) (*auth.TokenInfo, error) {
	if token := cmd.String("token"); token != "" {
		info, err := d.verifier.Verify(ctx, token)
		if err != nil {
			return nil, err
		}
		return info, nil
	}
	return &auth.TokenInfo{UserUUID: cmd.String("user"), TenantUUID: cmd.String("tenant")}, nil
}

func (d *directory) user(ctx context.Context, cmd *cli.Command) (*auth.TokenInfo, error) {
	info, err := d.identify(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if info.UserUUID == "" {
		return nil, fmt.Errorf("%w: --token or --user is required", shared.ErrMissingArgument)
	}
	return info, nil
}

func (d *directory) tenant(ctx context.Context, cmd *cli.Command) (string, error) {
	info, err := d.identify(ctx, cmd)
	if err != nil {
		return "", err
	}
	if info.TenantUUID == "" {
		return "", fmt.Errorf("%w: --token or --tenant is required", shared.ErrMissingArgument)
	}
	return info.TenantUUID, nil
}
