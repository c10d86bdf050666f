package models

import "time"

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

type User struct {
	ID                 string
	Username           string
	PasswordHash       []byte
	Role               UserRole
	QuotaBytes         int64
	UsedBytes          int64
	ReservedBytes      int64
	MustChangePassword bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RemainingBytes is the space still admissible for new uploads, counting
// in-flight reservations against the limit.
func (u User) RemainingBytes() int64 {
	remaining := u.QuotaBytes - u.UsedBytes - u.ReservedBytes
	if remaining < 0 {
		return 0
	}
	return remaining
}

type Session struct {
	ID         string
	UserID     string
	TokenHash  []byte
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
