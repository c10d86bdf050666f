package quota

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger keeps the counters on the user row. Every mutation is a
// single conditional UPDATE; isolation comes from the row-level atomicity of
// the statement, not from explicit locking.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (l *PostgresLedger) Reserve(ctx context.Context, userID string, bytes int64) (*Reservation, error) {
	if bytes < 0 {
		return nil, ErrQuotaExceeded
	}

	const query = `
		UPDATE users
		SET reserved_bytes = reserved_bytes + $2, updated_at = NOW()
		WHERE id = $1 AND used_bytes + reserved_bytes + $2 <= quota_bytes
	`
	cmd, err := l.pool.Exec(ctx, query, userID, bytes)
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		// Either the user is over quota or the row does not exist.
		var exists bool
		if err := l.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrUserUnknown
		}
		return nil, ErrQuotaExceeded
	}

	return NewReservation(userID, bytes), nil
}

func (l *PostgresLedger) Commit(ctx context.Context, res *Reservation, actualBytes int64) error {
	if actualBytes > res.Bytes {
		return ErrOverCommit
	}
	if !res.Settle() {
		return nil
	}

	const query = `
		UPDATE users
		SET used_bytes = used_bytes + $3,
		    reserved_bytes = GREATEST(reserved_bytes - $2, 0),
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := l.pool.Exec(ctx, query, res.UserID, res.Bytes, actualBytes)
	return err
}

func (l *PostgresLedger) Release(ctx context.Context, res *Reservation) error {
	if !res.Settle() {
		return nil
	}

	const query = `
		UPDATE users
		SET reserved_bytes = GREATEST(reserved_bytes - $2, 0), updated_at = NOW()
		WHERE id = $1
	`
	_, err := l.pool.Exec(ctx, query, res.UserID, res.Bytes)
	return err
}

func (l *PostgresLedger) Reclaim(ctx context.Context, userID string, bytes int64) error {
	const query = `
		UPDATE users
		SET used_bytes = GREATEST(used_bytes - $2, 0), updated_at = NOW()
		WHERE id = $1
	`
	_, err := l.pool.Exec(ctx, query, userID, bytes)
	return err
}

func (l *PostgresLedger) Usage(ctx context.Context, userID string) (Usage, error) {
	const query = `SELECT used_bytes, reserved_bytes, quota_bytes FROM users WHERE id = $1`

	var usage Usage
	err := l.pool.QueryRow(ctx, query, userID).Scan(&usage.UsedBytes, &usage.ReservedBytes, &usage.QuotaBytes)
	if errors.Is(err, pgx.ErrNoRows) {
		return Usage{}, ErrUserUnknown
	}
	return usage, err
}
