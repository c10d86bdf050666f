package memory

import (
	"context"
	"time"

	"filevault/internal/models"
)

type auditRepo struct {
	s *Store
}

func (r *auditRepo) Record(_ context.Context, entry models.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	entry.CreatedAt = time.Now()
	r.s.audit = append(r.s.audit, entry)
	return nil
}

func (r *auditRepo) ListRecent(_ context.Context, limit int) ([]models.AuditEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if limit <= 0 || limit > len(r.s.audit) {
		limit = len(r.s.audit)
	}

	entries := make([]models.AuditEntry, 0, limit)
	for i := len(r.s.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, r.s.audit[i])
	}
	return entries, nil
}
