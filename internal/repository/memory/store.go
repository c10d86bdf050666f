// Package memory backs the repository interfaces and the quota ledger with
// in-process maps. It exists for tests and for running the service without a
// database; state does not survive a restart.
package memory

import (
	"sync"

	"filevault/internal/models"
	"filevault/internal/quota"
	"filevault/internal/repository"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]*models.User
	sessions map[string]*models.Session
	files    map[string]*models.FileObject
	shares   map[string]*models.ShareToken
	audit    []models.AuditEntry
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]*models.User),
		sessions: make(map[string]*models.Session),
		files:    make(map[string]*models.FileObject),
		shares:   make(map[string]*models.ShareToken),
	}
}

func (s *Store) Users() repository.UserRepo       { return &userRepo{s} }
func (s *Store) Sessions() repository.SessionRepo { return &sessionRepo{s} }
func (s *Store) Files() repository.FileRepo       { return &fileRepo{s} }
func (s *Store) Shares() repository.ShareRepo     { return &shareRepo{s} }
func (s *Store) Audit() repository.AuditRepo      { return &auditRepo{s} }
func (s *Store) Ledger() quota.Ledger             { return &ledger{s} }

func (s *Store) userByName(username string) *models.User {
	for _, u := range s.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}
