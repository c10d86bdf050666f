package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateUser      = errors.New("username already registered")
	ErrExpiredSession     = errors.New("session expired")
	ErrInvalidSession     = errors.New("invalid session")
	ErrDuplicateName      = errors.New("a file with that name already exists")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrFileTooLarge       = errors.New("file exceeds the maximum upload size")
	ErrIntegrityMismatch  = errors.New("stored bytes do not match recorded digest")
)
