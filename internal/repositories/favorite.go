package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
)

// FavoriteRepository persists the (source, contact id) pairs users mark as favorite.
type FavoriteRepository struct {
	db *sql.DB
}

// NewFavoriteRepository creates a new FavoriteRepository with the given database connection
func NewFavoriteRepository(db *sql.DB) *FavoriteRepository {
	return &FavoriteRepository{db: db}
}

// Create marks a contact as favorite, creating the user row when needed.
func (r *FavoriteRepository) Create(ctx context.Context, fav models.Favorite) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, fav.Owner); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO favorites (user_uuid, source_name, contact_id) VALUES (?, ?, ?)",
			fav.Owner, fav.Source, fav.ContactID,
		)
		if err != nil {
			if shared.IsUniqueViolation(err) {
				return shared.ErrDuplicatedFavorite
			}
			return fmt.Errorf("failed to insert favorite: %w", err)
		}
		return nil
	})
}

// Delete unmarks a favorite.
func (r *FavoriteRepository) Delete(ctx context.Context, fav models.Favorite) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM favorites WHERE user_uuid = ? AND source_name = ? AND contact_id = ?",
		fav.Owner, fav.Source, fav.ContactID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete favorite: %w", err)
	}
	return checkAffected(result, shared.ErrNoSuchFavorite)
}

// List returns the favorites of owner grouped by source.
func (r *FavoriteRepository) List(ctx context.Context, owner string) ([]models.Favorite, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_uuid, source_name, contact_id FROM favorites WHERE user_uuid = ? ORDER BY source_name, created_at, contact_id",
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query favorites: %w", err)
	}
	defer rows.Close()

	favorites := []models.Favorite{}
	for rows.Next() {
		var f models.Favorite
		if err := rows.Scan(&f.Owner, &f.Source, &f.ContactID); err != nil {
			return nil, fmt.Errorf("failed to scan favorite row: %w", err)
		}
		favorites = append(favorites, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return favorites, nil
}

// Keys returns the favorites of owner as a set, for result annotation.
func (r *FavoriteRepository) Keys(ctx context.Context, owner string) (map[models.FavoriteKey]bool, error) {
	favorites, err := r.List(ctx, owner)
	if err != nil {
		return nil, err
	}

	keys := make(map[models.FavoriteKey]bool, len(favorites))
	for _, f := range favorites {
		keys[f.Key()] = true
	}
	return keys, nil
}
