// Package auth provides authentication and authorization for the diskfs
// gateway: static API keys and a read-only switch for mutating operations.
package auth

import (
	"context"
	"errors"
)

// PermissionType represents different permission types for authorization
type PermissionType int

const (
	ReadPerm PermissionType = iota
	WritePerm
	DeletePerm
)

func (p PermissionType) String() string {
	switch p {
	case ReadPerm:
		return "read"
	case WritePerm:
		return "write"
	case DeletePerm:
		return "delete"
	default:
		return "unknown"
	}
}

// Common authentication/authorization errors
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrPermissionDenied     = errors.New("permission denied")
)

// Authenticator defines the interface for caller authentication
type Authenticator interface {
	// Authenticate validates a token and returns the subject it belongs to
	Authenticate(ctx context.Context, token string) (subject string, err error)
}

// Authorizer defines the interface for authorization checks
type Authorizer interface {
	// Authorize checks if subject has the specified permission for a path
	Authorize(ctx context.Context, subject string, path string, perm PermissionType) error
}
