package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"filevault/internal/models"
)

type FileRepository struct {
	pool *pgxpool.Pool
}

func NewFileRepository(pool *pgxpool.Pool) *FileRepository {
	return &FileRepository{pool: pool}
}

const fileColumns = `id, user_id, name, object_key, size_bytes, checksum, status, created_at, updated_at`

func (r *FileRepository) Create(ctx context.Context, file models.FileObject) error {
	const query = `
		INSERT INTO files (
			id, user_id, name, object_key, size_bytes, checksum, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		file.ID,
		file.UserID,
		file.Name,
		file.ObjectKey,
		file.SizeBytes,
		file.Checksum,
		file.Status,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateFileName
	}
	return err
}

func scanFile(row pgx.Row) (models.FileObject, error) {
	var file models.FileObject
	err := row.Scan(
		&file.ID,
		&file.UserID,
		&file.Name,
		&file.ObjectKey,
		&file.SizeBytes,
		&file.Checksum,
		&file.Status,
		&file.CreatedAt,
		&file.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.FileObject{}, ErrFileNotFound
	}
	return file, err
}

func (r *FileRepository) GetByID(ctx context.Context, id string) (models.FileObject, error) {
	const query = `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	return scanFile(r.pool.QueryRow(ctx, query, id))
}

func (r *FileRepository) FindByName(ctx context.Context, userID string, name string) (models.FileObject, error) {
	const query = `SELECT ` + fileColumns + ` FROM files WHERE user_id = $1 AND name = $2 AND status != 'deleted'`
	return scanFile(r.pool.QueryRow(ctx, query, userID, name))
}

func (r *FileRepository) ListByUser(ctx context.Context, userID string) ([]models.FileObject, error) {
	const query = `
		SELECT ` + fileColumns + `
		FROM files
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []models.FileObject
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// MarkDeleting flips active -> deleting. The conditional update serializes a
// delete against concurrent reads and against a second delete of the same id.
func (r *FileRepository) MarkDeleting(ctx context.Context, id string) error {
	const query = `UPDATE files SET status = 'deleting', updated_at = NOW() WHERE id = $1 AND status = 'active'`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

func (r *FileRepository) MarkDeleted(ctx context.Context, id string) error {
	const query = `UPDATE files SET status = 'deleted', updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

func (r *FileRepository) SumActiveBytes(ctx context.Context, userID string) (int64, error) {
	const query = `SELECT COALESCE(SUM(size_bytes), 0) FROM files WHERE user_id = $1 AND status = 'active'`
	var total int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
