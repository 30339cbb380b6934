package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/goccy/go-json"
)

var sourceOrder = map[string]string{
	"name":    "name",
	"backend": "backend",
}

// SourceRepository persists sources created at runtime.
//
// The full configuration is stored as JSON; uuid, tenant, name and backend are also kept as
// columns for filtering. visibleTenants restricts reads and writes to sources of those tenants
// plus tenantless ones; an empty list disables the restriction.
type SourceRepository struct {
	db *sql.DB
}

// NewSourceRepository creates a new SourceRepository with the given database connection
func NewSourceRepository(db *sql.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// Create inserts cfg, generating its uuid when unset.
func (r *SourceRepository) Create(ctx context.Context, cfg models.SourceConfig) (*models.SourceConfig, error) {
	if cfg.UUID == "" {
		cfg.UUID = shared.GenerateID()
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode source config: %w", err)
	}

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		if cfg.Tenant != "" {
			if err := ensureTenant(ctx, tx, cfg.Tenant); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO sources (uuid, tenant_uuid, name, backend, config) VALUES (?, ?, ?, ?, ?)",
			cfg.UUID, nullString(cfg.Tenant), cfg.Name, cfg.Backend, string(raw),
		)
		if err != nil {
			if shared.IsUniqueViolation(err) {
				return fmt.Errorf("%w: %s", shared.ErrDuplicatedSource, cfg.Name)
			}
			return fmt.Errorf("failed to insert source: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get retrieves a source of backend by uuid.
func (r *SourceRepository) Get(ctx context.Context, backend, uuid string, visibleTenants []string) (*models.SourceConfig, error) {
	where, args := r.filter(backend, visibleTenants, "")
	configs, err := r.query(ctx,
		"SELECT uuid, tenant_uuid, name, backend, config FROM sources WHERE uuid = ? AND "+where,
		append([]any{uuid}, args...)...,
	)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, shared.ErrNoSuchSource
	}
	return &configs[0], nil
}

// Edit replaces the configuration of a source. Its uuid, backend and tenant are kept.
func (r *SourceRepository) Edit(ctx context.Context, backend, uuid string, visibleTenants []string, cfg models.SourceConfig) (*models.SourceConfig, error) {
	var updated models.SourceConfig
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		where, args := r.filter(backend, visibleTenants, "")
		var tenant sql.NullString
		err := tx.QueryRowContext(ctx,
			"SELECT tenant_uuid FROM sources WHERE uuid = ? AND "+where,
			append([]any{uuid}, args...)...,
		).Scan(&tenant)
		if errors.Is(err, sql.ErrNoRows) {
			return shared.ErrNoSuchSource
		}
		if err != nil {
			return fmt.Errorf("failed to get source: %w", err)
		}

		cfg.UUID, cfg.Backend, cfg.Tenant = uuid, backend, tenant.String
		raw, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode source config: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE sources SET name = ?, config = ?, updated_at = CURRENT_TIMESTAMP WHERE uuid = ?",
			cfg.Name, string(raw), uuid,
		)
		if err != nil {
			if shared.IsUniqueViolation(err) {
				return fmt.Errorf("%w: %s", shared.ErrDuplicatedSource, cfg.Name)
			}
			return fmt.Errorf("failed to update source: %w", err)
		}
		updated = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a source of backend.
func (r *SourceRepository) Delete(ctx context.Context, backend, uuid string, visibleTenants []string) error {
	where, args := r.filter(backend, visibleTenants, "")
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sources WHERE uuid = ? AND "+where,
		append([]any{uuid}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return checkAffected(result, shared.ErrNoSuchSource)
}

// List returns the sources of backend matching params. An empty backend lists every backend.
//
// params.Name filters on the exact name, params.Search on a name substring.
func (r *SourceRepository) List(ctx context.Context, backend string, visibleTenants []string, params models.ListParams) ([]models.SourceConfig, error) {
	where, args := r.filter(backend, visibleTenants, params.Search)
	if params.Name != "" {
		where += " AND name = ?"
		args = append(args, params.Name)
	}

	order, ok := sourceOrder[params.Order]
	if !ok {
		order = "name"
	}
	query := fmt.Sprintf(
		"SELECT uuid, tenant_uuid, name, backend, config FROM sources WHERE %s ORDER BY %s %s",
		where, order, direction(params.Direction),
	)
	query, args = paginate(query, args, params)
	return r.query(ctx, query, args...)
}

// Count returns the number of visible sources of backend matching search.
func (r *SourceRepository) Count(ctx context.Context, backend string, visibleTenants []string, search string) (int, error) {
	where, args := r.filter(backend, visibleTenants, search)

	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sources WHERE "+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sources: %w", err)
	}
	return count, nil
}

// All returns every stored source, for registry snapshots.
func (r *SourceRepository) All(ctx context.Context) ([]models.SourceConfig, error) {
	return r.List(ctx, "", nil, models.ListParams{})
}

func (r *SourceRepository) filter(backend string, visibleTenants []string, search string) (string, []any) {
	where := "1 = 1"
	var args []any
	if backend != "" {
		where += " AND backend = ?"
		args = append(args, backend)
	}
	if len(visibleTenants) > 0 {
		where += fmt.Sprintf(" AND (tenant_uuid IS NULL OR tenant_uuid IN (%s))", placeholders(len(visibleTenants)))
		args = append(args, stringArgs(visibleTenants)...)
	}
	if search != "" {
		where += ` AND lower(name) LIKE ? ESCAPE '\'`
		args = append(args, likePattern(search))
	}
	return where, args
}

func (r *SourceRepository) query(ctx context.Context, query string, args ...any) ([]models.SourceConfig, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	configs := []models.SourceConfig{}
	for rows.Next() {
		var (
			cfg     models.SourceConfig
			tenant  sql.NullString
			uuid    string
			name    string
			backend string
			raw     string
		)
		if err := rows.Scan(&uuid, &tenant, &name, &backend, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode source config %s: %w", name, err)
		}
		cfg.UUID, cfg.Tenant, cfg.Name, cfg.Backend = uuid, tenant.String, name, backend
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return configs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
