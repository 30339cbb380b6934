package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/repositories"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/desertthunder/dird/internal/sources"
	tu "github.com/desertthunder/dird/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReloader struct {
	calls atomic.Int32
	err   error
}

func (r *countingReloader) Reload(context.Context) error {
	r.calls.Add(1)
	return r.err
}

func csvSource(name, file string) models.SourceConfig {
	return models.SourceConfig{Name: name, File: file, SearchedColumns: []string{"firstname"}}
}

func TestSourceService(t *testing.T) {
	ctx := context.Background()

	newService := func(t *testing.T) (*SourceService, *countingReloader) {
		reloader := &countingReloader{}
		return NewSourceService(repositories.NewSourceRepository(setupTestDB(t)), reloader, quietLogger()), reloader
	}

	t.Run("Create reloads the registry", func(t *testing.T) {
		svc, reloader := newService(t)

		created, err := svc.Create(ctx, sources.BackendCSV, csvSource("people", "/tmp/people.csv"))
		require.NoError(t, err)
		assert.NotEmpty(t, created.UUID)
		assert.Equal(t, sources.BackendCSV, created.Backend)
		assert.EqualValues(t, 1, reloader.calls.Load())

		got, err := svc.Get(ctx, sources.BackendCSV, created.UUID, nil)
		require.NoError(t, err)
		assert.Equal(t, "people", got.Name)
	})

	t.Run("validation", func(t *testing.T) {
		svc, reloader := newService(t)

		_, err := svc.Create(ctx, sources.BackendCSV, models.SourceConfig{})
		require.ErrorIs(t, err, shared.ErrInvalidSource)
		assert.Contains(t, shared.Violations(err), "name is required")

		_, err = svc.Create(ctx, "carrier-pigeon", csvSource("people", "x"))
		assert.ErrorIs(t, err, shared.ErrInvalidSource)

		_, err = svc.Create(ctx, sources.BackendCSV, models.SourceConfig{Name: "people", Tenant: "Not A Tenant"})
		assert.ErrorIs(t, err, shared.ErrInvalidSource)

		assert.Zero(t, reloader.calls.Load())
	})

	t.Run("duplicated name", func(t *testing.T) {
		svc, _ := newService(t)

		_, err := svc.Create(ctx, sources.BackendCSV, csvSource("people", "a.csv"))
		require.NoError(t, err)
		_, err = svc.Create(ctx, sources.BackendCSV, csvSource("people", "b.csv"))
		assert.ErrorIs(t, err, shared.ErrDuplicatedSource)
	})

	t.Run("Edit keeps uuid and backend", func(t *testing.T) {
		svc, reloader := newService(t)
		created, err := svc.Create(ctx, sources.BackendCSV, csvSource("people", "a.csv"))
		require.NoError(t, err)

		edited, err := svc.Edit(ctx, sources.BackendCSV, created.UUID, nil, csvSource("people", "b.csv"))
		require.NoError(t, err)
		assert.Equal(t, created.UUID, edited.UUID)
		assert.Equal(t, "b.csv", edited.File)
		assert.EqualValues(t, 2, reloader.calls.Load())
	})

	t.Run("tenant visibility", func(t *testing.T) {
		svc, _ := newService(t)
		cfg := csvSource("people", "a.csv")
		cfg.Tenant = "tenant-a"
		created, err := svc.Create(ctx, sources.BackendCSV, cfg)
		require.NoError(t, err)

		_, err = svc.Get(ctx, sources.BackendCSV, created.UUID, []string{"tenant-b"})
		assert.ErrorIs(t, err, shared.ErrNoSuchSource)
		assert.ErrorIs(t, svc.Delete(ctx, sources.BackendCSV, created.UUID, []string{"tenant-b"}), shared.ErrNoSuchSource)

		require.NoError(t, svc.Delete(ctx, sources.BackendCSV, created.UUID, []string{"tenant-a"}))
	})

	t.Run("List", func(t *testing.T) {
		svc, _ := newService(t)
		for _, name := range []string{"d", "b", "a", "c"} {
			_, err := svc.Create(ctx, sources.BackendCSV, csvSource(name, name+".csv"))
			require.NoError(t, err)
		}

		result, err := svc.List(ctx, sources.BackendCSV, nil, models.ListParams{Limit: intPtr(2), Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 4, result.Total)
		assert.Equal(t, 4, result.Filtered)
		require.Len(t, result.Items, 2)
		assert.Equal(t, "b", result.Items[0].Name)
		assert.Equal(t, "c", result.Items[1].Name)

		byName, err := svc.List(ctx, sources.BackendCSV, nil, models.ListParams{Name: "c"})
		require.NoError(t, err)
		assert.Equal(t, 4, byName.Total)
		assert.Equal(t, 1, byName.Filtered)

		_, err = svc.List(ctx, sources.BackendCSV, nil, models.ListParams{Order: "file"})
		assert.ErrorIs(t, err, shared.ErrInvalidOrder)

		_, err = svc.List(ctx, "carrier-pigeon", nil, models.ListParams{})
		assert.ErrorIs(t, err, shared.ErrUnknownBackend)
	})

	t.Run("reload failure does not fail the mutation", func(t *testing.T) {
		reloader := &countingReloader{err: errors.New("boom")}
		svc := NewSourceService(repositories.NewSourceRepository(setupTestDB(t)), reloader, quietLogger())

		_, err := svc.Create(ctx, sources.BackendCSV, csvSource("people", "a.csv"))
		assert.NoError(t, err)
	})
}

func TestLoader(t *testing.T) {
	ctx := context.Background()

	dir := t.TempDir()
	fileCSV := filepath.Join(dir, "file.csv")
	storedCSV := filepath.Join(dir, "stored.csv")
	tu.MustWriteFile(t, fileCSV, "firstname,number\nAlice,1111\n")
	tu.MustWriteFile(t, storedCSV, "firstname,number\nBob,2222\n")

	fileSource := csvSource("from-file", fileCSV)
	fileSource.Backend = sources.BackendCSV
	cfg := &shared.Config{
		Sources:  []models.SourceConfig{fileSource},
		Displays: []models.Display{{Name: "default"}},
		Profiles: []models.Profile{{Name: "default", Display: "default"}},
	}

	t.Run("merges file and stored sources", func(t *testing.T) {
		store := repositories.NewSourceRepository(setupTestDB(t))
		stored := csvSource("stored", storedCSV)
		stored.Backend = sources.BackendCSV
		_, err := store.Create(ctx, stored)
		require.NoError(t, err)

		registry := sources.NewRegistry(sources.Dependencies{Logger: quietLogger()})
		loader := NewLoader(registry, store, cfg, quietLogger())
		require.NoError(t, loader.Reload(ctx))

		gen := registry.Current()
		assert.EqualValues(t, 1, gen.Number)
		assert.Equal(t, []string{"from-file", "stored"}, gen.Names())
		_, err = gen.Profile("", "default")
		assert.NoError(t, err)
	})

	t.Run("file source shadows stored source", func(t *testing.T) {
		store := repositories.NewSourceRepository(setupTestDB(t))
		shadow := csvSource("from-file", storedCSV)
		shadow.Backend = sources.BackendCSV
		_, err := store.Create(ctx, shadow)
		require.NoError(t, err)

		loader := NewLoader(sources.NewRegistry(sources.Dependencies{Logger: quietLogger()}), store, cfg, quietLogger())
		snap, err := loader.Snapshot(ctx)
		require.NoError(t, err)
		require.Len(t, snap.Sources, 1)
		assert.Equal(t, fileCSV, snap.Sources[0].File)
	})

	t.Run("SetConfig publishes a new generation", func(t *testing.T) {
		registry := sources.NewRegistry(sources.Dependencies{Logger: quietLogger()})
		loader := NewLoader(registry, nil, cfg, quietLogger())
		require.NoError(t, loader.Reload(ctx))

		require.NoError(t, loader.SetConfig(ctx, &shared.Config{}))
		gen := registry.Current()
		assert.EqualValues(t, 2, gen.Number)
		assert.Zero(t, gen.Len())
	})
}

func TestProfileService(t *testing.T) {
	ctx := context.Background()

	snap := sources.Snapshot{
		Sources: []models.SourceConfig{
			{Name: "zeta", Backend: "csv"},
			{Name: "alpha", Backend: "ldap"},
			{Name: "broken", Backend: "wazo"},
			{Name: "private", Backend: "csv", Tenant: "tenant-b"},
		},
		Profiles: []models.Profile{
			{Name: "default", Services: map[string]models.ServiceConfig{
				models.ServiceLookup:    {Sources: []string{"zeta", "alpha", "ghost", "private"}},
				models.ServiceReverse:   {Sources: []string{"alpha", "broken"}},
				models.ServiceFavorites: {Sources: []string{"zeta"}},
			}},
			{Name: "sales", Tenant: "tenant-b"},
		},
	}
	registry := tu.NewStaticRegistry(snap, tu.NewMockSource("zeta"), tu.NewMockSource("alpha"), tu.NewMockSource("private"))
	svc := NewProfileService(registry)

	t.Run("Get respects tenants", func(t *testing.T) {
		_, err := svc.Get(ctx, "tenant-a", "default")
		assert.NoError(t, err)

		_, err = svc.Get(ctx, "tenant-a", "sales")
		assert.ErrorIs(t, err, shared.ErrNoSuchProfile)
	})

	t.Run("List", func(t *testing.T) {
		assert.Len(t, svc.List(ctx, "tenant-a"), 1)
		assert.Len(t, svc.List(ctx, "tenant-b"), 2)
	})

	t.Run("Sources", func(t *testing.T) {
		result, err := svc.Sources(ctx, "tenant-a", "default", models.ListParams{})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Total)
		require.Len(t, result.Items, 3)
		assert.Equal(t, "alpha", result.Items[0].Name)
		assert.Equal(t, "broken", result.Items[1].Name)
		assert.False(t, result.Items[1].Loaded)
		assert.True(t, result.Items[2].Loaded)
	})

	t.Run("Sources of another tenant are hidden", func(t *testing.T) {
		result, err := svc.Sources(ctx, "tenant-b", "default", models.ListParams{Name: "private"})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Filtered)

		result, err = svc.Sources(ctx, "tenant-a", "default", models.ListParams{Name: "private"})
		require.NoError(t, err)
		assert.Zero(t, result.Filtered)
	})

	t.Run("Get without a tenant only sees global profiles", func(t *testing.T) {
		_, err := svc.Get(ctx, "", "sales")
		assert.ErrorIs(t, err, shared.ErrNoSuchProfile)
	})

	t.Run("Sources filtered and ordered", func(t *testing.T) {
		result, err := svc.Sources(ctx, "", "default", models.ListParams{Order: "backend", Direction: "desc", Limit: intPtr(1)})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Filtered)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "broken", result.Items[0].Name)

		searched, err := svc.Sources(ctx, "", "default", models.ListParams{Search: "ET"})
		require.NoError(t, err)
		assert.Equal(t, 1, searched.Filtered)
		assert.Equal(t, "zeta", searched.Items[0].Name)
	})

	t.Run("Sources of unknown profile", func(t *testing.T) {
		_, err := svc.Sources(ctx, "", "nope", models.ListParams{})
		assert.ErrorIs(t, err, shared.ErrNoSuchProfile)
	})
}
