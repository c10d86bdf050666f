package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"filevault/internal/models"
	"filevault/internal/repository"
)

type shareRepo struct {
	s *Store
}

func (r *shareRepo) Create(_ context.Context, share models.ShareToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	share.CreatedAt = time.Now()
	r.s.shares[share.ID] = &share
	return nil
}

func (r *shareRepo) GetByID(_ context.Context, id string) (models.ShareToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if share, ok := r.s.shares[id]; ok {
		return *share, nil
	}
	return models.ShareToken{}, repository.ErrShareNotFound
}

func (r *shareRepo) GetByTokenHash(_ context.Context, tokenHash []byte) (models.ShareToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, share := range r.s.shares {
		if bytes.Equal(share.TokenHash, tokenHash) {
			return *share, nil
		}
	}
	return models.ShareToken{}, repository.ErrShareNotFound
}

func (r *shareRepo) ListByFile(_ context.Context, fileID string) ([]models.ShareToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var shares []models.ShareToken
	for _, share := range r.s.shares {
		if share.FileID == fileID {
			shares = append(shares, *share)
		}
	}
	sort.Slice(shares, func(i, j int) bool {
		return shares[i].CreatedAt.After(shares[j].CreatedAt)
	})
	return shares, nil
}

func (r *shareRepo) Revoke(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	share, ok := r.s.shares[id]
	if !ok {
		return repository.ErrShareNotFound
	}
	if share.RevokedAt == nil {
		share.RevokedAt = &at
	}
	return nil
}

func (r *shareRepo) DeleteByFile(_ context.Context, fileID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, share := range r.s.shares {
		if share.FileID == fileID {
			delete(r.s.shares, id)
		}
	}
	return nil
}

func (r *shareRepo) DeleteUnusable(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var removed int64
	for id, share := range r.s.shares {
		if !share.Usable(now) {
			delete(r.s.shares, id)
			removed++
		}
	}
	return removed, nil
}
