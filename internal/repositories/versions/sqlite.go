package versions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/dbx"
	"github.com/driftguard/driftguard/internal/models"
)

// SQLiteRepository implements the version log over modernc.org/sqlite for
// embedded, single-node deployments.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Append(ctx context.Context, v *models.Version) error {
	query := `
		INSERT INTO versions (id, resource_id, author, origin, seq, change_count, payload, created_at)
		VALUES (?, ?, ?, ?,
			COALESCE((SELECT MAX(seq) FROM versions WHERE resource_id = ?), 0) + 1,
			?, ?, ?)
		RETURNING seq;
	`
	row := r.db.QueryRowContext(ctx, query,
		v.ID, v.ResourceID, v.Author, v.Origin.String(), v.ResourceID, v.ChangeCount, v.Payload, v.CreatedAt)
	if err := row.Scan(&v.Seq); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, versionID string) (*models.Version, error) {
	query := selectColumns + ` WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, versionID))
}

func (r *SQLiteRepository) History(ctx context.Context, resourceID string) ([]*models.Version, error) {
	query := selectColumns + ` WHERE resource_id = ? ORDER BY seq DESC`
	rows, err := r.db.QueryContext(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to select versions: %w", err)
	}
	defer rows.Close()

	var result []*models.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) LatestByOrigin(ctx context.Context, resourceID string, origin models.Origin) (*models.Version, error) {
	query := selectColumns + ` WHERE resource_id = ? AND origin = ? ORDER BY seq DESC LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, resourceID, origin.String()))
}

func (r *SQLiteRepository) LatestBefore(ctx context.Context, resourceID string, seq int64) (*models.Version, error) {
	query := selectColumns + ` WHERE resource_id = ? AND seq < ? ORDER BY seq DESC LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, resourceID, seq))
}

func (r *SQLiteRepository) Resources(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT resource_id FROM versions ORDER BY resource_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select resources: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) scanOne(row *sql.Row) (*models.Version, error) {
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return v, err
}
