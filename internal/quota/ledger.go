// Package quota implements two-phase byte accounting for uploads. An upload
// first reserves its declared size, streams while the reservation is held, and
// then commits the actual written size (or releases on any failure). Admission
// is a single atomic statement, so concurrent uploads from one user can never
// overshoot the limit through a check-then-act race.
package quota

import (
	"context"
	"errors"
	"sync/atomic"

	"filevault/internal/ids"
)

var (
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrUserUnknown   = errors.New("quota account not found")
	ErrOverCommit    = errors.New("commit exceeds reservation")
)

// Reservation is a provisional hold on a user's quota. It must be settled
// exactly once, by Commit or Release; the settled flag makes the second
// settlement a no-op rather than a double-count.
type Reservation struct {
	ID     string
	UserID string
	Bytes  int64

	settled atomic.Bool
}

// NewReservation is used by Ledger implementations; callers obtain
// reservations through Reserve.
func NewReservation(userID string, bytes int64) *Reservation {
	return &Reservation{ID: ids.New(), UserID: userID, Bytes: bytes}
}

// Settle returns true the first time it is called. Ledger implementations use
// it to make the second Commit or Release of a reservation a no-op.
func (r *Reservation) Settle() bool {
	return r.settled.CompareAndSwap(false, true)
}

type Usage struct {
	UsedBytes     int64
	ReservedBytes int64
	QuotaBytes    int64
}

type Ledger interface {
	// Reserve admits bytes against the user's remaining quota or fails with
	// ErrQuotaExceeded. The hold stays in place until Commit or Release.
	Reserve(ctx context.Context, userID string, bytes int64) (*Reservation, error)

	// Commit converts the hold into used bytes, recording actualBytes (which
	// may undershoot the declared size, never exceed it).
	Commit(ctx context.Context, res *Reservation, actualBytes int64) error

	// Release drops the hold. Safe to call after Commit or a prior Release.
	Release(ctx context.Context, res *Reservation) error

	// Reclaim returns committed bytes to the user, e.g. after a file delete.
	Reclaim(ctx context.Context, userID string, bytes int64) error

	Usage(ctx context.Context, userID string) (Usage, error)
}
