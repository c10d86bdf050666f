package memory

import (
	"context"
	"time"

	"filevault/internal/models"
	"filevault/internal/repository"
)

type userRepo struct {
	s *Store
}

func (r *userRepo) Create(_ context.Context, user models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.userByName(user.Username) != nil {
		return repository.ErrDuplicateUsername
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.users[user.ID] = &user
	return nil
}

func (r *userRepo) FindByUsername(_ context.Context, username string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if u := r.s.userByName(username); u != nil {
		return *u, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

func (r *userRepo) GetByID(_ context.Context, id string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if u, ok := r.s.users[id]; ok {
		return *u, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

func (r *userRepo) List(_ context.Context) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	users := make([]models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		users = append(users, *u)
	}
	return users, nil
}

func (r *userRepo) UpdatePassword(_ context.Context, id string, hash []byte, mustChange bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.MustChangePassword = mustChange
	u.UpdatedAt = time.Now()
	return nil
}

func (r *userRepo) UpdateQuota(_ context.Context, id string, quotaBytes int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.QuotaBytes = quotaBytes
	u.UpdatedAt = time.Now()
	return nil
}

func (r *userRepo) SetRole(_ context.Context, id string, role models.UserRole) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now()
	return nil
}

func (r *userRepo) SetUsedBytes(_ context.Context, id string, usedBytes int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.UsedBytes = usedBytes
	u.UpdatedAt = time.Now()
	return nil
}

func (r *userRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(r.s.users, id)

	// Mirror the FK cascades of the postgres schema.
	for sid, session := range r.s.sessions {
		if session.UserID == id {
			delete(r.s.sessions, sid)
		}
	}
	for fid, file := range r.s.files {
		if file.UserID == id {
			for shid, share := range r.s.shares {
				if share.FileID == fid {
					delete(r.s.shares, shid)
				}
			}
			delete(r.s.files, fid)
		}
	}
	return nil
}
