package memory

import (
	"context"
	"sort"
	"time"

	"filevault/internal/models"
	"filevault/internal/repository"
)

type fileRepo struct {
	s *Store
}

func (r *fileRepo) Create(_ context.Context, file models.FileObject) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.files {
		if existing.UserID == file.UserID && existing.Name == file.Name && existing.Status != models.FileStatusDeleted {
			return repository.ErrDuplicateFileName
		}
	}

	now := time.Now()
	file.CreatedAt = now
	file.UpdatedAt = now
	r.s.files[file.ID] = &file
	return nil
}

func (r *fileRepo) GetByID(_ context.Context, id string) (models.FileObject, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if file, ok := r.s.files[id]; ok {
		return *file, nil
	}
	return models.FileObject{}, repository.ErrFileNotFound
}

func (r *fileRepo) FindByName(_ context.Context, userID string, name string) (models.FileObject, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, file := range r.s.files {
		if file.UserID == userID && file.Name == name && file.Status != models.FileStatusDeleted {
			return *file, nil
		}
	}
	return models.FileObject{}, repository.ErrFileNotFound
}

func (r *fileRepo) ListByUser(_ context.Context, userID string) ([]models.FileObject, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var files []models.FileObject
	for _, file := range r.s.files {
		if file.UserID == userID && file.Status == models.FileStatusActive {
			files = append(files, *file)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

func (r *fileRepo) MarkDeleting(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	file, ok := r.s.files[id]
	if !ok || file.Status != models.FileStatusActive {
		return repository.ErrFileNotFound
	}
	file.Status = models.FileStatusDeleting
	file.UpdatedAt = time.Now()
	return nil
}

func (r *fileRepo) MarkDeleted(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	file, ok := r.s.files[id]
	if !ok {
		return repository.ErrFileNotFound
	}
	file.Status = models.FileStatusDeleted
	file.UpdatedAt = time.Now()
	return nil
}

func (r *fileRepo) SumActiveBytes(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var total int64
	for _, file := range r.s.files {
		if file.UserID == userID && file.Status == models.FileStatusActive {
			total += file.SizeBytes
		}
	}
	return total, nil
}
