package auth

import (
	"context"
	"fmt"
)

// ReadOnlyAuthorizer allows every read and, when readOnly is set, rejects
// writes and deletes for every subject.
type ReadOnlyAuthorizer struct {
	readOnly bool
}

// NewReadOnlyAuthorizer creates an authorizer
func NewReadOnlyAuthorizer(readOnly bool) *ReadOnlyAuthorizer {
	return &ReadOnlyAuthorizer{readOnly: readOnly}
}

// Authorize implements Authorizer
func (a *ReadOnlyAuthorizer) Authorize(ctx context.Context, subject string, path string, perm PermissionType) error {
	if subject == "" {
		return ErrPermissionDenied
	}
	if perm == ReadPerm || !a.readOnly {
		return nil
	}
	return fmt.Errorf("%w: %s access is disabled on a read-only gateway", ErrPermissionDenied, perm)
}
