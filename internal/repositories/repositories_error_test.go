package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

var errBoom = errors.New("boom")

func TestPhonebookRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Create rolls back when the insert fails", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT OR IGNORE INTO tenants`).WithArgs("t").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO phonebooks`).WillReturnError(errBoom)
		mock.ExpectRollback()

		_, err := NewPhonebookRepository(db).Create(ctx, "t", models.PhonebookBody{Name: "main"})
		require.Error(t, err)
		assert.ErrorIs(t, err, errBoom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Create fails when the transaction cannot begin", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectBegin().WillReturnError(errBoom)

		_, err := NewPhonebookRepository(db).Create(ctx, "t", models.PhonebookBody{Name: "main"})
		assert.ErrorContains(t, err, "failed to begin transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Get wraps query errors", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectQuery(`SELECT id, tenant_uuid, name, description FROM phonebooks`).
			WithArgs(int64(1), "t").
			WillReturnError(errBoom)

		_, err := NewPhonebookRepository(db).Get(ctx, "t", 1)
		assert.ErrorIs(t, err, errBoom)
		assert.False(t, errors.Is(err, shared.ErrNoSuchPhonebook))
	})

	t.Run("List scans rows", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		rows := sqlmock.NewRows([]string{"id", "tenant_uuid", "name", "description"}).
			AddRow(int64(1), "t", "a", "first").
			AddRow(int64(2), "t", "b", nil)
		mock.ExpectQuery(`SELECT id, tenant_uuid, name, description FROM phonebooks WHERE tenant_uuid = \?`).
			WillReturnRows(rows)

		phonebooks, err := NewPhonebookRepository(db).List(ctx, "t", models.ListParams{})
		require.NoError(t, err)
		require.Len(t, phonebooks, 2)
		assert.Equal(t, "first", *phonebooks[0].Description)
		assert.Nil(t, phonebooks[1].Description)
	})

	t.Run("Count wraps query errors", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM phonebooks`).WillReturnError(errBoom)

		_, err := NewPhonebookRepository(db).Count(ctx, "t", "")
		assert.ErrorContains(t, err, "failed to count phonebooks")
	})
}

func TestPersonalRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Create fails on user get-or-create", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT OR IGNORE INTO users`).WillReturnError(errBoom)
		mock.ExpectRollback()

		_, err := NewPersonalRepository(db).Create(ctx, "user-1", map[string]string{"a": "b"})
		assert.ErrorContains(t, err, "failed to get or create user")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Edit reports affected rows errors", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec(`UPDATE personal_contacts`).
			WillReturnResult(sqlmock.NewErrorResult(errBoom))

		_, err := NewPersonalRepository(db).Edit(ctx, "user-1", "id", map[string]string{"a": "b"})
		assert.ErrorContains(t, err, "failed to get affected rows")
	})

	t.Run("List rejects corrupted field maps", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		rows := sqlmock.NewRows([]string{"id", "user_uuid", "hash", "fields"}).
			AddRow("id", "user-1", "h", "not json")
		mock.ExpectQuery(`SELECT id, user_uuid, hash, fields FROM personal_contacts`).WillReturnRows(rows)

		_, err := NewPersonalRepository(db).List(ctx, "user-1")
		assert.ErrorContains(t, err, "failed to decode fields")
	})

	t.Run("List reports iteration errors", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		rows := sqlmock.NewRows([]string{"id", "user_uuid", "hash", "fields"}).
			AddRow("id", "user-1", "h", `{"a":"b"}`).
			RowError(0, errBoom)
		mock.ExpectQuery(`SELECT id, user_uuid, hash, fields FROM personal_contacts`).WillReturnRows(rows)

		_, err := NewPersonalRepository(db).List(ctx, "user-1")
		assert.ErrorIs(t, err, errBoom)
	})
}

func TestFavoriteRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Delete wraps exec errors", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec(`DELETE FROM favorites`).
			WithArgs("user-1", "my_csv", "1").
			WillReturnError(errBoom)

		err := NewFavoriteRepository(db).Delete(ctx, models.Favorite{Owner: "user-1", Source: "my_csv", ContactID: "1"})
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("Create commit failure is reported", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT OR IGNORE INTO users`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO favorites`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit().WillReturnError(errBoom)

		err := NewFavoriteRepository(db).Create(ctx, models.Favorite{Owner: "user-1", Source: "s", ContactID: "1"})
		assert.ErrorContains(t, err, "failed to commit transaction")
	})
}

func TestSourceRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("List rejects corrupted configs", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		rows := sqlmock.NewRows([]string{"uuid", "tenant_uuid", "name", "backend", "config"}).
			AddRow("u", nil, "broken", "csv", "{")
		mock.ExpectQuery(`SELECT uuid, tenant_uuid, name, backend, config FROM sources`).WillReturnRows(rows)

		_, err := NewSourceRepository(db).All(ctx)
		assert.ErrorContains(t, err, "failed to decode source config broken")
	})

	t.Run("Edit of a missing source", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT tenant_uuid FROM sources`).WillReturnRows(sqlmock.NewRows([]string{"tenant_uuid"}))
		mock.ExpectRollback()

		_, err := NewSourceRepository(db).Edit(ctx, "csv", "u", nil, models.SourceConfig{Name: "x"})
		assert.ErrorIs(t, err, shared.ErrNoSuchSource)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
