package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"filevault/internal/models"
)

type ShareRepository struct {
	pool *pgxpool.Pool
}

func NewShareRepository(pool *pgxpool.Pool) *ShareRepository {
	return &ShareRepository{pool: pool}
}

const shareColumns = `id, file_id, token_hash, created_at, expires_at, revoked_at`

func (r *ShareRepository) Create(ctx context.Context, share models.ShareToken) error {
	const query = `
		INSERT INTO share_tokens (id, file_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, NOW(), $4)
	`
	_, err := r.pool.Exec(ctx, query, share.ID, share.FileID, share.TokenHash, share.ExpiresAt)
	return err
}

func scanShare(row pgx.Row) (models.ShareToken, error) {
	var share models.ShareToken
	err := row.Scan(
		&share.ID,
		&share.FileID,
		&share.TokenHash,
		&share.CreatedAt,
		&share.ExpiresAt,
		&share.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ShareToken{}, ErrShareNotFound
	}
	return share, err
}

func (r *ShareRepository) GetByID(ctx context.Context, id string) (models.ShareToken, error) {
	const query = `SELECT ` + shareColumns + ` FROM share_tokens WHERE id = $1`
	return scanShare(r.pool.QueryRow(ctx, query, id))
}

func (r *ShareRepository) GetByTokenHash(ctx context.Context, tokenHash []byte) (models.ShareToken, error) {
	const query = `SELECT ` + shareColumns + ` FROM share_tokens WHERE token_hash = $1`
	return scanShare(r.pool.QueryRow(ctx, query, tokenHash))
}

func (r *ShareRepository) ListByFile(ctx context.Context, fileID string) ([]models.ShareToken, error) {
	const query = `SELECT ` + shareColumns + ` FROM share_tokens WHERE file_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shares []models.ShareToken
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, share)
	}
	return shares, rows.Err()
}

// Revoke is idempotent: revoking an already-revoked share leaves the original
// revocation timestamp in place.
func (r *ShareRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE share_tokens SET revoked_at = COALESCE(revoked_at, $2) WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrShareNotFound
	}
	return nil
}

func (r *ShareRepository) DeleteByFile(ctx context.Context, fileID string) error {
	const query = `DELETE FROM share_tokens WHERE file_id = $1`
	_, err := r.pool.Exec(ctx, query, fileID)
	return err
}

// DeleteUnusable purges shares that can never be redeemed again.
func (r *ShareRepository) DeleteUnusable(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM share_tokens WHERE revoked_at IS NOT NULL OR (expires_at IS NOT NULL AND expires_at < $1)`
	cmd, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
