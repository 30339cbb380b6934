package services

import (
	"context"
	"strings"
	"testing"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/repositories"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPhonebookService(t *testing.T) *PhonebookService {
	t.Helper()
	db := setupTestDB(t)
	return NewPhonebookService(
		repositories.NewPhonebookRepository(db),
		repositories.NewPhonebookContactRepository(db),
		quietLogger(),
	)
}

func TestPhonebookService(t *testing.T) {
	ctx := context.Background()

	t.Run("Create & Get", func(t *testing.T) {
		svc := newPhonebookService(t)

		created, err := svc.Create(ctx, "tenant-a", models.PhonebookBody{Name: "main"})
		require.NoError(t, err)

		got, err := svc.Get(ctx, "tenant-a", created.ID)
		require.NoError(t, err)
		assert.Equal(t, "main", got.Name)
	})

	t.Run("body validation", func(t *testing.T) {
		svc := newPhonebookService(t)

		_, err := svc.Create(ctx, "tenant-a", models.PhonebookBody{})
		require.ErrorIs(t, err, shared.ErrInvalidPhonebook)
		assert.Equal(t, []string{"name is required"}, shared.Violations(err))

		_, err = svc.Create(ctx, "tenant-a", models.PhonebookBody{Name: strings.Repeat("x", 256)})
		assert.ErrorIs(t, err, shared.ErrInvalidPhonebook)

		_, err = svc.Create(ctx, "tenant-a", models.PhonebookBody{Name: strings.Repeat("x", 255)})
		assert.NoError(t, err)
	})

	t.Run("invalid tenant", func(t *testing.T) {
		svc := newPhonebookService(t)

		_, err := svc.Create(ctx, "Tenant A", models.PhonebookBody{Name: "main"})
		assert.ErrorIs(t, err, shared.ErrInvalidTenant)
	})

	t.Run("duplicate name in tenant", func(t *testing.T) {
		svc := newPhonebookService(t)

		_, err := svc.Create(ctx, "tenant-a", models.PhonebookBody{Name: "main"})
		require.NoError(t, err)
		_, err = svc.Create(ctx, "tenant-a", models.PhonebookBody{Name: "main"})
		assert.ErrorIs(t, err, shared.ErrDuplicatedPhonebook)

		_, err = svc.Create(ctx, "tenant-b", models.PhonebookBody{Name: "main"})
		assert.NoError(t, err)
	})

	t.Run("other tenant sees nothing", func(t *testing.T) {
		svc := newPhonebookService(t)

		created, err := svc.Create(ctx, "tenant-a", models.PhonebookBody{Name: "main"})
		require.NoError(t, err)

		_, err = svc.Get(ctx, "tenant-b", created.ID)
		assert.ErrorIs(t, err, shared.ErrNoSuchPhonebook)
		assert.ErrorIs(t, svc.Delete(ctx, "tenant-b", created.ID), shared.ErrNoSuchPhonebook)
	})

	t.Run("List paginates with total and filtered", func(t *testing.T) {
		svc := newPhonebookService(t)
		for _, name := range []string{"d", "b", "a", "c"} {
			_, err := svc.Create(ctx, "tenant-a", models.PhonebookBody{Name: name})
			require.NoError(t, err)
		}

		result, err := svc.List(ctx, "tenant-a", models.ListParams{Order: "name", Limit: intPtr(2), Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 4, result.Total)
		assert.Equal(t, 4, result.Filtered)
		require.Len(t, result.Items, 2)
		assert.Equal(t, "b", result.Items[0].Name)
		assert.Equal(t, "c", result.Items[1].Name)

		searched, err := svc.List(ctx, "tenant-a", models.ListParams{Search: "A"})
		require.NoError(t, err)
		assert.Equal(t, 4, searched.Total)
		assert.Equal(t, 1, searched.Filtered)
	})

	t.Run("List rejects bad params", func(t *testing.T) {
		svc := newPhonebookService(t)

		_, err := svc.List(ctx, "tenant-a", models.ListParams{Order: "uuid"})
		assert.ErrorIs(t, err, shared.ErrInvalidOrder)

		_, err = svc.List(ctx, "tenant-a", models.ListParams{Direction: "sideways"})
		assert.ErrorIs(t, err, shared.ErrInvalidDirection)
	})
}

func TestPhonebookContacts(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*PhonebookService, int64) {
		svc := newPhonebookService(t)
		pb, err := svc.Create(ctx, "tenant-a", models.PhonebookBody{Name: "main"})
		require.NoError(t, err)
		return svc, pb.ID
	}

	t.Run("body validation", func(t *testing.T) {
		svc, id := setup(t)

		_, err := svc.CreateContact(ctx, "tenant-a", id, map[string]string{})
		assert.ErrorIs(t, err, shared.ErrInvalidContact)

		_, err = svc.CreateContact(ctx, "tenant-a", id, map[string]string{"": "x"})
		assert.ErrorIs(t, err, shared.ErrInvalidContact)

		_, err = svc.CreateContact(ctx, "tenant-a", id, map[string]string{"id": "mine"})
		assert.ErrorIs(t, err, shared.ErrInvalidContact)
	})

	t.Run("id is assigned, not taken from the body", func(t *testing.T) {
		svc, id := setup(t)

		created, err := svc.CreateContact(ctx, "tenant-a", id, map[string]string{"id": "mine", "firstname": "Alice"})
		require.NoError(t, err)
		assert.NotEqual(t, "mine", created.ID)
		assert.Equal(t, map[string]string{"firstname": "Alice"}, created.Fields)

		got, err := svc.GetContact(ctx, "tenant-a", id, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Fields, got.Fields)
	})

	t.Run("Edit & Delete", func(t *testing.T) {
		svc, id := setup(t)

		created, err := svc.CreateContact(ctx, "tenant-a", id, map[string]string{"firstname": "Alice"})
		require.NoError(t, err)

		edited, err := svc.EditContact(ctx, "tenant-a", id, created.ID, map[string]string{"firstname": "Alicia"})
		require.NoError(t, err)
		assert.Equal(t, "Alicia", edited.Fields["firstname"])

		require.NoError(t, svc.DeleteContact(ctx, "tenant-a", id, created.ID))
		_, err = svc.GetContact(ctx, "tenant-a", id, created.ID)
		assert.ErrorIs(t, err, shared.ErrNoSuchContact)
	})

	t.Run("ListContacts orders by any field", func(t *testing.T) {
		svc, id := setup(t)
		for _, name := range []string{"Charlie", "Alice", "Bob"} {
			_, err := svc.CreateContact(ctx, "tenant-a", id, map[string]string{"firstname": name})
			require.NoError(t, err)
		}

		result, err := svc.ListContacts(ctx, "tenant-a", id, models.ListParams{Order: "firstname", Direction: "desc"})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Total)
		require.Len(t, result.Items, 3)
		assert.Equal(t, "Charlie", result.Items[0].Fields["firstname"])
		assert.Equal(t, "Alice", result.Items[2].Fields["firstname"])
	})

	t.Run("ImportContacts keeps going past invalid bodies", func(t *testing.T) {
		svc, id := setup(t)

		result, err := svc.ImportContacts(ctx, "tenant-a", id, []map[string]string{
			{"firstname": "Alice"},
			{},
			{"firstname": "Bob"},
			{"": "nameless"},
		})
		require.NoError(t, err)
		assert.Len(t, result.Created, 2)
		require.Len(t, result.Failed, 2)
		assert.Equal(t, 2, result.Failed[0].Line)
		assert.Equal(t, 4, result.Failed[1].Line)
	})

	t.Run("ImportCSV", func(t *testing.T) {
		svc, id := setup(t)

		result, err := svc.ImportCSV(ctx, "tenant-a", id, strings.NewReader("firstname,number\nAlice,1111\nBob,2222\n"))
		require.NoError(t, err)
		assert.Len(t, result.Created, 2)
		assert.Empty(t, result.Failed)
	})

	t.Run("import into another tenant's phonebook", func(t *testing.T) {
		svc, id := setup(t)

		_, err := svc.ImportContacts(ctx, "tenant-b", id, []map[string]string{{"firstname": "Alice"}})
		assert.ErrorIs(t, err, shared.ErrNoSuchPhonebook)
	})
}
