package handlers

import (
	"fmt"
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/auth"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/server/middleware"
)

// PathInfo represents parsed path information
type PathInfo struct {
	Path        string // normalized path, "" for the root
	Name        string // last path segment
	IsDirectory bool   // the URL path ended with "/" or named the root
	Err         error  // set when the path failed normalization
}

// IsInvalid reports whether the path must be rejected
func (p PathInfo) IsInvalid() bool {
	return p.Err != nil
}

// ParseFilePath extracts path information from the wildcard part of a URL:
//
//	docs/report.pdf  -> file "docs/report.pdf"
//	docs/archive/    -> directory "docs/archive"
//	"" or "/"        -> the root directory ""
//
// Traversal above the root and control characters mark the path invalid.
func ParseFilePath(urlPath string, normalizer pathutil.Normalizer) PathInfo {
	isDirectory := urlPath == "" || strings.HasSuffix(urlPath, "/")

	normalized, err := normalizer.NormalizePath(urlPath)
	if err != nil {
		return PathInfo{IsDirectory: true, Err: fmt.Errorf("%w: %w", ErrInvalidPath, err)}
	}

	name := ""
	if normalized != "" {
		name = path.Base(normalized)
	}

	return PathInfo{
		Path:        normalized,
		Name:        name,
		IsDirectory: isDirectory || normalized == "",
	}
}

// authorizeRequest resolves the caller and checks perm on p. It writes the
// error response itself and returns false when the request must stop.
func authorizeRequest(w http.ResponseWriter, r *http.Request, authorizer auth.Authorizer, p string, perm auth.PermissionType, logger *zap.Logger) (string, bool) {
	subject, ok := middleware.GetSubject(r.Context())
	if !ok {
		SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
		return "", false
	}

	// Authorize before touching the drive so existence is not leaked
	if err := authorizer.Authorize(r.Context(), subject, p, perm); err != nil {
		SendErrorResponse(w, logger, err, http.StatusForbidden)
		return "", false
	}
	return subject, true
}
