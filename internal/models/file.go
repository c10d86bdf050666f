package models

import "time"

type FileStatus string

const (
	FileStatusActive   FileStatus = "active"
	FileStatusDeleting FileStatus = "deleting"
	FileStatusDeleted  FileStatus = "deleted"
)

type FileObject struct {
	ID        string
	UserID    string
	Name      string
	ObjectKey string
	SizeBytes int64
	Checksum  []byte
	Status    FileStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShareToken grants unauthenticated read access to a single file. Only the
// sha256 of the token is stored; the cleartext exists once, in the response
// that created it.
type ShareToken struct {
	ID        string
	FileID    string
	TokenHash []byte
	CreatedAt time.Time
	ExpiresAt *time.Time
	RevokedAt *time.Time
}

func (t ShareToken) Usable(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	if t.ExpiresAt != nil && t.ExpiresAt.Before(now) {
		return false
	}
	return true
}

type AuditEntry struct {
	ID        string
	UserID    string
	Operation string
	FileName  string
	SizeBytes int64
	Outcome   string
	IPAddress string
	CreatedAt time.Time
}
