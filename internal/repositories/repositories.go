package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/goccy/go-json"
)

// queryer is satisfied by both [sql.DB] and [sql.Tx].
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing when it returns nil.
//
// The database is opened with immediate transactions, so the write lock is held from the start
// and get-or-create, uniqueness checks and inserts cannot interleave with another writer.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ensureTenant creates the tenant row if it does not exist yet.
func ensureTenant(ctx context.Context, q queryer, tenant string) error {
	if _, err := q.ExecContext(ctx, "INSERT OR IGNORE INTO tenants (uuid) VALUES (?)", tenant); err != nil {
		return fmt.Errorf("failed to get or create tenant: %w", err)
	}
	return nil
}

// ensureUser creates the user row if it does not exist yet.
func ensureUser(ctx context.Context, q queryer, user string) error {
	if _, err := q.ExecContext(ctx, "INSERT OR IGNORE INTO users (uuid) VALUES (?)", user); err != nil {
		return fmt.Errorf("failed to get or create user: %w", err)
	}
	return nil
}

// encodeFields returns the JSON field map and its folded counterpart used by searches.
func encodeFields(fields map[string]string) (string, string, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode fields: %w", err)
	}
	folded, err := json.Marshal(shared.FoldFields(fields))
	if err != nil {
		return "", "", fmt.Errorf("failed to encode folded fields: %w", err)
	}
	return string(raw), string(folded), nil
}

func decodeFields(raw string) (map[string]string, error) {
	fields := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	return fields, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

// likePattern folds term and wraps it for a substring LIKE match.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(shared.Fold(term)) + "%"
}

// searchClause matches rows whose folded field map holds term in one of columns.
// An empty columns slice matches any field.
func searchClause(column string, columns []string, term string) (string, []any) {
	if len(columns) == 0 {
		return fmt.Sprintf(
			`EXISTS (SELECT 1 FROM json_each(%s) AS f WHERE f.value LIKE ? ESCAPE '\')`, column,
		), []any{likePattern(term)}
	}
	clause := fmt.Sprintf(
		`EXISTS (SELECT 1 FROM json_each(%s) AS f WHERE f.key IN (%s) AND f.value LIKE ? ESCAPE '\')`,
		column, placeholders(len(columns)),
	)
	return clause, append(stringArgs(columns), likePattern(term))
}

// exactClause matches rows whose field map holds exactly term in one of columns.
func exactClause(column string, columns []string, term string) (string, []any) {
	clause := fmt.Sprintf(
		`EXISTS (SELECT 1 FROM json_each(%s) AS f WHERE f.key IN (%s) AND f.value = ?)`,
		column, placeholders(len(columns)),
	)
	return clause, append(stringArgs(columns), term)
}

// fieldPath builds the JSON path of a top-level field for json_extract.
func fieldPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `\"`) + `"`
}

func direction(d string) string {
	if strings.EqualFold(d, models.DirectionDesc) {
		return "DESC"
	}
	return "ASC"
}

// paginate appends LIMIT/OFFSET; SQLite needs a LIMIT for OFFSET so -1 stands for none.
func paginate(query string, args []any, p models.ListParams) (string, []any) {
	limit := -1
	if p.Limit != nil {
		limit = *p.Limit
	}
	return query + " LIMIT ? OFFSET ?", append(args, limit, p.Offset)
}

func checkAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
