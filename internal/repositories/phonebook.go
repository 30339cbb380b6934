package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
)

var phonebookOrder = map[string]string{
	"name":        "name",
	"description": "description",
}

// PhonebookRepository persists tenant-scoped phonebooks.
type PhonebookRepository struct {
	db *sql.DB
}

// NewPhonebookRepository creates a new PhonebookRepository with the given database connection
func NewPhonebookRepository(db *sql.DB) *PhonebookRepository {
	return &PhonebookRepository{db: db}
}

// Create inserts a phonebook for tenant, creating the tenant row when needed.
func (r *PhonebookRepository) Create(ctx context.Context, tenant string, body models.PhonebookBody) (*models.Phonebook, error) {
	phonebook := &models.Phonebook{Tenant: tenant, Name: body.Name, Description: body.Description}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := ensureTenant(ctx, tx, tenant); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			"INSERT INTO phonebooks (tenant_uuid, name, description) VALUES (?, ?, ?)",
			tenant, body.Name, body.Description,
		)
		if err != nil {
			if shared.IsUniqueViolation(err) {
				return fmt.Errorf("%w: %s", shared.ErrDuplicatedPhonebook, body.Name)
			}
			return fmt.Errorf("failed to insert phonebook: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get phonebook id: %w", err)
		}
		phonebook.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return phonebook, nil
}

// Get retrieves a phonebook of tenant by id
func (r *PhonebookRepository) Get(ctx context.Context, tenant string, id int64) (*models.Phonebook, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, tenant_uuid, name, description FROM phonebooks WHERE id = ? AND tenant_uuid = ?",
		id, tenant,
	)
	return r.scanOne(row)
}

// GetByName retrieves a phonebook of tenant by name
func (r *PhonebookRepository) GetByName(ctx context.Context, tenant, name string) (*models.Phonebook, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, tenant_uuid, name, description FROM phonebooks WHERE name = ? AND tenant_uuid = ?",
		name, tenant,
	)
	return r.scanOne(row)
}

// Edit replaces the name and description of a phonebook.
func (r *PhonebookRepository) Edit(ctx context.Context, tenant string, id int64, body models.PhonebookBody) (*models.Phonebook, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE phonebooks SET name = ?, description = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND tenant_uuid = ?`,
		body.Name, body.Description, id, tenant,
	)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", shared.ErrDuplicatedPhonebook, body.Name)
		}
		return nil, fmt.Errorf("failed to update phonebook: %w", err)
	}

	if err := checkAffected(result, shared.ErrNoSuchPhonebook); err != nil {
		return nil, err
	}
	return &models.Phonebook{ID: id, Tenant: tenant, Name: body.Name, Description: body.Description}, nil
}

// Delete removes a phonebook and, by cascade, its contacts.
func (r *PhonebookRepository) Delete(ctx context.Context, tenant string, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM phonebooks WHERE id = ? AND tenant_uuid = ?", id, tenant)
	if err != nil {
		return fmt.Errorf("failed to delete phonebook: %w", err)
	}
	return checkAffected(result, shared.ErrNoSuchPhonebook)
}

// List returns the phonebooks of tenant matching params.
//
// Search matches name or description, case-insensitively.
func (r *PhonebookRepository) List(ctx context.Context, tenant string, params models.ListParams) ([]models.Phonebook, error) {
	where, args := r.filter(tenant, params.Search)
	query := "SELECT id, tenant_uuid, name, description FROM phonebooks WHERE " + where

	order, ok := phonebookOrder[params.Order]
	if !ok {
		order = "name"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id", order, direction(params.Direction))
	query, args = paginate(query, args, params)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query phonebooks: %w", err)
	}
	defer rows.Close()

	phonebooks := []models.Phonebook{}
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		phonebooks = append(phonebooks, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return phonebooks, nil
}

// Count returns the number of phonebooks of tenant matching search.
func (r *PhonebookRepository) Count(ctx context.Context, tenant, search string) (int, error) {
	where, args := r.filter(tenant, search)

	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM phonebooks WHERE "+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count phonebooks: %w", err)
	}
	return count, nil
}

func (r *PhonebookRepository) filter(tenant, search string) (string, []any) {
	where := "tenant_uuid = ?"
	args := []any{tenant}
	if search != "" {
		pattern := likePattern(search)
		where += ` AND (lower(name) LIKE ? ESCAPE '\' OR lower(coalesce(description, '')) LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	}
	return where, args
}

func (r *PhonebookRepository) scanOne(row *sql.Row) (*models.Phonebook, error) {
	var (
		p           models.Phonebook
		description sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Tenant, &p.Name, &description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNoSuchPhonebook
		}
		return nil, fmt.Errorf("failed to scan phonebook: %w", err)
	}
	if description.Valid {
		p.Description = &description.String
	}
	return &p, nil
}

func (r *PhonebookRepository) scanRow(rows *sql.Rows) (*models.Phonebook, error) {
	var (
		p           models.Phonebook
		description sql.NullString
	)
	if err := rows.Scan(&p.ID, &p.Tenant, &p.Name, &description); err != nil {
		return nil, fmt.Errorf("failed to scan phonebook row: %w", err)
	}
	if description.Valid {
		p.Description = &description.String
	}
	return &p, nil
}
