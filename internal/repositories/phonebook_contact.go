package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
)

// PhonebookContactRepository persists the contacts of phonebooks.
//
// Tenant-scoped methods first check that the phonebook belongs to the tenant and report
// [shared.ErrNoSuchPhonebook] otherwise. The Search, FirstMatch and ListByIDs methods serve
// the phonebook source, which has already resolved its phonebook.
type PhonebookContactRepository struct {
	db *sql.DB
}

// NewPhonebookContactRepository creates a new PhonebookContactRepository with the given database connection
func NewPhonebookContactRepository(db *sql.DB) *PhonebookContactRepository {
	return &PhonebookContactRepository{db: db}
}

func (r *PhonebookContactRepository) checkPhonebook(ctx context.Context, q queryer, tenant string, phonebookID int64) error {
	var one int
	err := q.QueryRowContext(ctx,
		"SELECT 1 FROM phonebooks WHERE id = ? AND tenant_uuid = ?", phonebookID, tenant,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return shared.ErrNoSuchPhonebook
	}
	if err != nil {
		return fmt.Errorf("failed to check phonebook: %w", err)
	}
	return nil
}

// Create adds a contact to a phonebook. Identical contents in the same phonebook are rejected.
func (r *PhonebookContactRepository) Create(ctx context.Context, tenant string, phonebookID int64, fields map[string]string) (*models.PhonebookContact, error) {
	raw, folded, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}

	contact := &models.PhonebookContact{ID: shared.GenerateID(), PhonebookID: phonebookID, Fields: fields}
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.checkPhonebook(ctx, tx, tenant, phonebookID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO phonebook_contacts (id, phonebook_id, hash, fields, folded) VALUES (?, ?, ?, ?, ?)",
			contact.ID, phonebookID, shared.ContentHash(fields), raw, folded,
		)
		if err != nil {
			if shared.IsUniqueViolation(err) {
				return shared.ErrDuplicatedContact
			}
			return fmt.Errorf("failed to insert phonebook contact: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return contact, nil
}

// Get retrieves one contact of a phonebook
func (r *PhonebookContactRepository) Get(ctx context.Context, tenant string, phonebookID int64, id string) (*models.PhonebookContact, error) {
	if err := r.checkPhonebook(ctx, r.db, tenant, phonebookID); err != nil {
		return nil, err
	}

	var raw string
	err := r.db.QueryRowContext(ctx,
		"SELECT fields FROM phonebook_contacts WHERE id = ? AND phonebook_id = ?", id, phonebookID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNoSuchContact
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get phonebook contact: %w", err)
	}

	fields, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}
	return &models.PhonebookContact{ID: id, PhonebookID: phonebookID, Fields: fields}, nil
}

// Edit replaces the fields of a contact.
func (r *PhonebookContactRepository) Edit(ctx context.Context, tenant string, phonebookID int64, id string, fields map[string]string) (*models.PhonebookContact, error) {
	raw, folded, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.checkPhonebook(ctx, tx, tenant, phonebookID); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			"UPDATE phonebook_contacts SET hash = ?, fields = ?, folded = ? WHERE id = ? AND phonebook_id = ?",
			shared.ContentHash(fields), raw, folded, id, phonebookID,
		)
		if err != nil {
			if shared.IsUniqueViolation(err) {
				return shared.ErrDuplicatedContact
			}
			return fmt.Errorf("failed to update phonebook contact: %w", err)
		}
		return checkAffected(result, shared.ErrNoSuchContact)
	})
	if err != nil {
		return nil, err
	}
	return &models.PhonebookContact{ID: id, PhonebookID: phonebookID, Fields: fields}, nil
}

// Delete removes a contact from a phonebook.
func (r *PhonebookContactRepository) Delete(ctx context.Context, tenant string, phonebookID int64, id string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.checkPhonebook(ctx, tx, tenant, phonebookID); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			"DELETE FROM phonebook_contacts WHERE id = ? AND phonebook_id = ?", id, phonebookID,
		)
		if err != nil {
			return fmt.Errorf("failed to delete phonebook contact: %w", err)
		}
		return checkAffected(result, shared.ErrNoSuchContact)
	})
}

// List returns the contacts of a phonebook matching params.
//
// Search matches any field; Order names any field, contacts without it sort first.
func (r *PhonebookContactRepository) List(ctx context.Context, tenant string, phonebookID int64, params models.ListParams) ([]models.PhonebookContact, error) {
	if err := r.checkPhonebook(ctx, r.db, tenant, phonebookID); err != nil {
		return nil, err
	}

	where, args := r.filter(phonebookID, params.Search)
	query := "SELECT id, phonebook_id, fields FROM phonebook_contacts WHERE " + where
	if params.Order != "" {
		query += fmt.Sprintf(" ORDER BY json_extract(fields, ?) %s, rowid", direction(params.Direction))
		args = append(args, fieldPath(params.Order))
	} else {
		query += " ORDER BY rowid"
	}
	query, args = paginate(query, args, params)

	return r.query(ctx, query, args...)
}

// Count returns the number of contacts of a phonebook matching search.
func (r *PhonebookContactRepository) Count(ctx context.Context, tenant string, phonebookID int64, search string) (int, error) {
	if err := r.checkPhonebook(ctx, r.db, tenant, phonebookID); err != nil {
		return 0, err
	}

	where, args := r.filter(phonebookID, search)
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM phonebook_contacts WHERE "+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count phonebook contacts: %w", err)
	}
	return count, nil
}

// Search returns the contacts of a phonebook containing term in one of columns.
// No columns means no match.
func (r *PhonebookContactRepository) Search(ctx context.Context, phonebookID int64, columns []string, term string) ([]models.PhonebookContact, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	clause, args := searchClause("folded", columns, term)
	query := "SELECT id, phonebook_id, fields FROM phonebook_contacts WHERE phonebook_id = ? AND " + clause + " ORDER BY rowid"
	return r.query(ctx, query, append([]any{phonebookID}, args...)...)
}

// FirstMatch returns a contact of a phonebook holding exactly term in one of columns, or nil.
func (r *PhonebookContactRepository) FirstMatch(ctx context.Context, phonebookID int64, columns []string, term string) (*models.PhonebookContact, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	clause, args := exactClause("fields", columns, term)
	query := "SELECT id, phonebook_id, fields FROM phonebook_contacts WHERE phonebook_id = ? AND " + clause + " ORDER BY rowid LIMIT 1"
	contacts, err := r.query(ctx, query, append([]any{phonebookID}, args...)...)
	if err != nil || len(contacts) == 0 {
		return nil, err
	}
	return &contacts[0], nil
}

// ListByIDs returns the contacts of a phonebook among ids.
func (r *PhonebookContactRepository) ListByIDs(ctx context.Context, phonebookID int64, ids []string) ([]models.PhonebookContact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		"SELECT id, phonebook_id, fields FROM phonebook_contacts WHERE phonebook_id = ? AND id IN (%s) ORDER BY rowid",
		placeholders(len(ids)),
	)
	return r.query(ctx, query, append([]any{phonebookID}, stringArgs(ids)...)...)
}

func (r *PhonebookContactRepository) filter(phonebookID int64, search string) (string, []any) {
	where := "phonebook_id = ?"
	args := []any{phonebookID}
	if search != "" {
		clause, searchArgs := searchClause("folded", nil, search)
		where += " AND " + clause
		args = append(args, searchArgs...)
	}
	return where, args
}

func (r *PhonebookContactRepository) query(ctx context.Context, query string, args ...any) ([]models.PhonebookContact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query phonebook contacts: %w", err)
	}
	defer rows.Close()

	contacts := []models.PhonebookContact{}
	for rows.Next() {
		var (
			c   models.PhonebookContact
			raw string
		)
		if err := rows.Scan(&c.ID, &c.PhonebookID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan phonebook contact row: %w", err)
		}
		if c.Fields, err = decodeFields(raw); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return contacts, nil
}
