package services

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/repositories"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/desertthunder/dird/internal/sources"
	tu "github.com/desertthunder/dird/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFavoriteService(t *testing.T) {
	ctx := context.Background()
	registry := tu.NewStaticRegistry(sources.Snapshot{}, tu.NewMockSource("csv-people"))
	fav := models.Favorite{Owner: "user-1", Source: "csv-people", ContactID: "42"}

	t.Run("Add publishes favorite_added", func(t *testing.T) {
		pub := &tu.MockPublisher{}
		svc := NewFavoriteService(repositories.NewFavoriteRepository(setupTestDB(t)), registry, pub, quietLogger())

		require.NoError(t, svc.Add(ctx, "tenant-a", fav))

		favorites, err := svc.List(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, []models.Favorite{fav}, favorites)

		events := pub.Events()
		require.Len(t, events, 1)
		assert.Equal(t, EventFavoriteAdded, events[0].Name)
		assert.Equal(t, FavoriteEvent{UserUUID: "user-1", TenantUUID: "tenant-a", Source: "csv-people", ContactID: "42"}, events[0].Payload)
	})

	t.Run("Remove publishes favorite_deleted", func(t *testing.T) {
		pub := &tu.MockPublisher{}
		svc := NewFavoriteService(repositories.NewFavoriteRepository(setupTestDB(t)), registry, pub, quietLogger())
		require.NoError(t, svc.Add(ctx, "tenant-a", fav))

		require.NoError(t, svc.Remove(ctx, "tenant-a", fav))

		events := pub.Events()
		require.Len(t, events, 2)
		assert.Equal(t, EventFavoriteDeleted, events[1].Name)
	})

	t.Run("Remove unknown favorite", func(t *testing.T) {
		pub := &tu.MockPublisher{}
		svc := NewFavoriteService(repositories.NewFavoriteRepository(setupTestDB(t)), registry, pub, quietLogger())

		assert.ErrorIs(t, svc.Remove(ctx, "tenant-a", fav), shared.ErrNoSuchFavorite)
		assert.Empty(t, pub.Events())
	})

	t.Run("Add twice", func(t *testing.T) {
		svc := NewFavoriteService(repositories.NewFavoriteRepository(setupTestDB(t)), registry, nil, quietLogger())

		require.NoError(t, svc.Add(ctx, "tenant-a", fav))
		assert.ErrorIs(t, svc.Add(ctx, "tenant-a", fav), shared.ErrDuplicatedFavorite)
	})

	t.Run("unknown source", func(t *testing.T) {
		svc := NewFavoriteService(repositories.NewFavoriteRepository(setupTestDB(t)), registry, nil, quietLogger())

		err := svc.Add(ctx, "tenant-a", models.Favorite{Owner: "user-1", Source: "nope", ContactID: "1"})
		assert.ErrorIs(t, err, shared.ErrNoSuchSource)
	})

	t.Run("source of another tenant", func(t *testing.T) {
		scoped := tu.NewStaticRegistry(sources.Snapshot{
			Sources: []models.SourceConfig{{Name: "b-secrets", Backend: "csv", Tenant: "tenant-b"}},
		}, tu.NewMockSource("b-secrets"))
		svc := NewFavoriteService(repositories.NewFavoriteRepository(setupTestDB(t)), scoped, nil, quietLogger())
		secret := models.Favorite{Owner: "user-1", Source: "b-secrets", ContactID: "1"}

		assert.ErrorIs(t, svc.Add(ctx, "tenant-a", secret), shared.ErrNoSuchSource)
		assert.ErrorIs(t, svc.Add(ctx, "", secret), shared.ErrNoSuchSource)
		assert.NoError(t, svc.Add(ctx, "tenant-b", secret))
	})

	t.Run("missing fields", func(t *testing.T) {
		svc := NewFavoriteService(repositories.NewFavoriteRepository(setupTestDB(t)), nil, nil, quietLogger())

		err := svc.Add(ctx, "tenant-a", models.Favorite{Owner: "user-1", Source: "csv-people"})
		assert.ErrorIs(t, err, shared.ErrMissingArgument)
	})

	t.Run("publish failure does not fail the change", func(t *testing.T) {
		pub := &tu.MockPublisher{Err: errors.New("bus down")}
		svc := NewFavoriteService(repositories.NewFavoriteRepository(setupTestDB(t)), registry, pub, quietLogger())

		require.NoError(t, svc.Add(ctx, "tenant-a", fav))
		favorites, err := svc.List(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, favorites, 1)
	})
}
