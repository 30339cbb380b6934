package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
)

// PersonalRepository persists contacts owned by a single user.
//
// Every method is scoped by owner: a contact of another user is reported as [shared.ErrNoSuchContact].
// Contents are unique per owner through the hash column.
type PersonalRepository struct {
	db *sql.DB
}

// NewPersonalRepository creates a new PersonalRepository with the given database connection
func NewPersonalRepository(db *sql.DB) *PersonalRepository {
	return &PersonalRepository{db: db}
}

// Create inserts a contact for owner, creating the user row when needed.
func (r *PersonalRepository) Create(ctx context.Context, owner string, fields map[string]string) (*models.PersonalContact, error) {
	raw, folded, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}

	contact := &models.PersonalContact{
		ID:     shared.GenerateID(),
		Owner:  owner,
		Fields: fields,
		Hash:   shared.ContentHash(fields),
	}

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, owner); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO personal_contacts (id, user_uuid, hash, fields, folded) VALUES (?, ?, ?, ?, ?)",
			contact.ID, owner, contact.Hash, raw, folded,
		)
		if err != nil {
			if shared.IsUniqueViolation(err) {
				return shared.ErrDuplicatedContact
			}
			return fmt.Errorf("failed to insert personal contact: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return contact, nil
}

// Get retrieves a contact of owner by id
func (r *PersonalRepository) Get(ctx context.Context, owner, id string) (*models.PersonalContact, error) {
	contacts, err := r.query(ctx,
		"SELECT id, user_uuid, hash, fields FROM personal_contacts WHERE id = ? AND user_uuid = ?",
		id, owner,
	)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, shared.ErrNoSuchContact
	}
	return &contacts[0], nil
}

// Edit replaces the fields of a contact of owner.
func (r *PersonalRepository) Edit(ctx context.Context, owner, id string, fields map[string]string) (*models.PersonalContact, error) {
	raw, folded, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}
	hash := shared.ContentHash(fields)

	result, err := r.db.ExecContext(ctx,
		"UPDATE personal_contacts SET hash = ?, fields = ?, folded = ? WHERE id = ? AND user_uuid = ?",
		hash, raw, folded, id, owner,
	)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return nil, shared.ErrDuplicatedContact
		}
		return nil, fmt.Errorf("failed to update personal contact: %w", err)
	}

	if err := checkAffected(result, shared.ErrNoSuchContact); err != nil {
		return nil, err
	}
	return &models.PersonalContact{ID: id, Owner: owner, Fields: fields, Hash: hash}, nil
}

// Delete removes a contact of owner.
func (r *PersonalRepository) Delete(ctx context.Context, owner, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM personal_contacts WHERE id = ? AND user_uuid = ?", id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete personal contact: %w", err)
	}
	return checkAffected(result, shared.ErrNoSuchContact)
}

// DeleteAll removes every contact of owner and returns how many were removed.
func (r *PersonalRepository) DeleteAll(ctx context.Context, owner string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM personal_contacts WHERE user_uuid = ?", owner)
	if err != nil {
		return 0, fmt.Errorf("failed to purge personal contacts: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// List returns every contact of owner in insertion order.
func (r *PersonalRepository) List(ctx context.Context, owner string) ([]models.PersonalContact, error) {
	return r.query(ctx,
		"SELECT id, user_uuid, hash, fields FROM personal_contacts WHERE user_uuid = ? ORDER BY rowid",
		owner,
	)
}

// Search returns the contacts of owner containing term in one of columns, ignoring case and accents.
// No columns means no match.
func (r *PersonalRepository) Search(ctx context.Context, owner string, columns []string, term string) ([]models.PersonalContact, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	clause, args := searchClause("folded", columns, term)
	return r.query(ctx,
		"SELECT id, user_uuid, hash, fields FROM personal_contacts WHERE user_uuid = ? AND "+clause+" ORDER BY rowid",
		append([]any{owner}, args...)...,
	)
}

// FirstMatch returns a contact of owner holding exactly term in one of columns, or nil.
func (r *PersonalRepository) FirstMatch(ctx context.Context, owner string, columns []string, term string) (*models.PersonalContact, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	clause, args := exactClause("fields", columns, term)
	contacts, err := r.query(ctx,
		"SELECT id, user_uuid, hash, fields FROM personal_contacts WHERE user_uuid = ? AND "+clause+" ORDER BY rowid LIMIT 1",
		append([]any{owner}, args...)...,
	)
	if err != nil || len(contacts) == 0 {
		return nil, err
	}
	return &contacts[0], nil
}

// ListByIDs returns the contacts of owner among ids. Ids of other owners are ignored.
func (r *PersonalRepository) ListByIDs(ctx context.Context, owner string, ids []string) ([]models.PersonalContact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		"SELECT id, user_uuid, hash, fields FROM personal_contacts WHERE user_uuid = ? AND id IN (%s) ORDER BY rowid",
		placeholders(len(ids)),
	)
	return r.query(ctx, query, append([]any{owner}, stringArgs(ids)...)...)
}

func (r *PersonalRepository) query(ctx context.Context, query string, args ...any) ([]models.PersonalContact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query personal contacts: %w", err)
	}
	defer rows.Close()

	contacts := []models.PersonalContact{}
	for rows.Next() {
		c, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return contacts, nil
}

func (r *PersonalRepository) scanRow(rows *sql.Rows) (*models.PersonalContact, error) {
	var (
		c   models.PersonalContact
		raw string
	)
	if err := rows.Scan(&c.ID, &c.Owner, &c.Hash, &raw); err != nil {
		return nil, fmt.Errorf("failed to scan personal contact row: %w", err)
	}

	fields, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}
	c.Fields = fields
	return &c, nil
}
