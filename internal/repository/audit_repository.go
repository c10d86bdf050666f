package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"filevault/internal/models"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Record(ctx context.Context, entry models.AuditEntry) error {
	const query = `
		INSERT INTO audit_log (id, user_id, operation, file_name, size_bytes, outcome, ip_address, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, NOW())
	`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Operation,
		entry.FileName,
		entry.SizeBytes,
		entry.Outcome,
		entry.IPAddress,
	)
	return err
}

func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	const query = `
		SELECT id, COALESCE(user_id, ''), operation, file_name, size_bytes, outcome, ip_address, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Operation,
			&entry.FileName,
			&entry.SizeBytes,
			&entry.Outcome,
			&entry.IPAddress,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
