package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"filevault/internal/models"
	"filevault/internal/repository"
)

type sessionRepo struct {
	s *Store
}

func (r *sessionRepo) Create(_ context.Context, session models.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	session.CreatedAt = now
	session.LastSeenAt = now
	r.s.sessions[session.ID] = &session
	return nil
}

func (r *sessionRepo) GetByTokenHash(_ context.Context, tokenHash []byte) (models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, session := range r.s.sessions {
		if bytes.Equal(session.TokenHash, tokenHash) {
			return *session, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (r *sessionRepo) GetByID(_ context.Context, id string) (models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if session, ok := r.s.sessions[id]; ok {
		return *session, nil
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (r *sessionRepo) Touch(_ context.Context, id string, ip string, userAgent string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.sessions[id]
	if !ok {
		return nil
	}
	session.LastSeenAt = time.Now()
	if ip != "" {
		session.IPAddress = ip
	}
	if userAgent != "" {
		session.UserAgent = userAgent
	}
	return nil
}

func (r *sessionRepo) DeleteByID(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.sessions[id]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(r.s.sessions, id)
	return nil
}

func (r *sessionRepo) DeleteByUser(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, session := range r.s.sessions {
		if session.UserID == userID {
			delete(r.s.sessions, id)
		}
	}
	return nil
}

func (r *sessionRepo) DeleteByUserExcept(_ context.Context, userID string, keepID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, session := range r.s.sessions {
		if session.UserID == userID && id != keepID {
			delete(r.s.sessions, id)
		}
	}
	return nil
}

func (r *sessionRepo) CountByUser(_ context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	count := 0
	for _, session := range r.s.sessions {
		if session.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *sessionRepo) DeleteOldest(_ context.Context, userID string, keepLatest int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var owned []*models.Session
	for _, session := range r.s.sessions {
		if session.UserID == userID {
			owned = append(owned, session)
		}
	}
	if len(owned) <= keepLatest {
		return nil
	}

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].LastSeenAt.After(owned[j].LastSeenAt)
	})
	for _, session := range owned[keepLatest:] {
		delete(r.s.sessions, session.ID)
	}
	return nil
}

func (r *sessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var removed int64
	for id, session := range r.s.sessions {
		if session.ExpiresAt.Before(now) {
			delete(r.s.sessions, id)
			removed++
		}
	}
	return removed, nil
}
