package memory

import (
	"context"

	"filevault/internal/quota"
)

// ledger mirrors the postgres ledger semantics over the shared user map: the
// admission check and the counter bump happen under one lock acquisition.
type ledger struct {
	s *Store
}

func (l *ledger) Reserve(_ context.Context, userID string, bytes int64) (*quota.Reservation, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	user, ok := l.s.users[userID]
	if !ok {
		return nil, quota.ErrUserUnknown
	}
	if bytes < 0 || user.UsedBytes+user.ReservedBytes+bytes > user.QuotaBytes {
		return nil, quota.ErrQuotaExceeded
	}

	user.ReservedBytes += bytes
	return quota.NewReservation(userID, bytes), nil
}

func (l *ledger) Commit(_ context.Context, res *quota.Reservation, actualBytes int64) error {
	if actualBytes > res.Bytes {
		return quota.ErrOverCommit
	}
	if !res.Settle() {
		return nil
	}

	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	user, ok := l.s.users[res.UserID]
	if !ok {
		return quota.ErrUserUnknown
	}
	user.ReservedBytes -= res.Bytes
	if user.ReservedBytes < 0 {
		user.ReservedBytes = 0
	}
	user.UsedBytes += actualBytes
	return nil
}

func (l *ledger) Release(_ context.Context, res *quota.Reservation) error {
	if !res.Settle() {
		return nil
	}

	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	user, ok := l.s.users[res.UserID]
	if !ok {
		return quota.ErrUserUnknown
	}
	user.ReservedBytes -= res.Bytes
	if user.ReservedBytes < 0 {
		user.ReservedBytes = 0
	}
	return nil
}

func (l *ledger) Reclaim(_ context.Context, userID string, bytes int64) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	user, ok := l.s.users[userID]
	if !ok {
		return quota.ErrUserUnknown
	}
	user.UsedBytes -= bytes
	if user.UsedBytes < 0 {
		user.UsedBytes = 0
	}
	return nil
}

func (l *ledger) Usage(_ context.Context, userID string) (quota.Usage, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	user, ok := l.s.users[userID]
	if !ok {
		return quota.Usage{}, quota.ErrUserUnknown
	}
	return quota.Usage{
		UsedBytes:     user.UsedBytes,
		ReservedBytes: user.ReservedBytes,
		QuotaBytes:    user.QuotaBytes,
	}, nil
}
