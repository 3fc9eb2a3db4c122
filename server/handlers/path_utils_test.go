package handlers

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/auth"
	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/internal/diskapi"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/links"
	"github.com/ebogdum/diskfs/locks"
)

func TestParseFilePath(t *testing.T) {
	normalizer := pathutil.NewWhitespaceNormalizer()

	tests := []struct {
		input   string
		path    string
		name    string
		isDir   bool
		invalid bool
	}{
		{"normal/file.txt", "normal/file.txt", "file.txt", false, false},
		{"/etc/passwd", "etc/passwd", "passwd", false, false},
		{"./file.txt", "file.txt", "file.txt", false, false},
		{"docs/archive/", "docs/archive", "archive", true, false},
		{"", "", "", true, false},
		{"/", "", "", true, false},
		{"../../../etc/passwd", "", "", true, true},
		{"..\\..\\..\\windows\\system32", "", "", true, true},
		{"dir/../../../etc/passwd", "", "", true, true},
		{"bad\x00name", "", "", true, true},
	}

	for _, tt := range tests {
		t.Run("path_"+tt.input, func(t *testing.T) {
			info := ParseFilePath(tt.input, normalizer)
			assert.Equal(t, tt.invalid, info.IsInvalid())
			if tt.invalid {
				assert.ErrorIs(t, info.Err, ErrInvalidPath)
				return
			}
			assert.Equal(t, tt.path, info.Path)
			assert.Equal(t, tt.name, info.Name)
			assert.Equal(t, tt.isDir, info.IsDirectory)
		})
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"authentication", auth.ErrAuthenticationFailed, http.StatusUnauthorized},
		{"permission", fmt.Errorf("wrapped: %w", auth.ErrPermissionDenied), http.StatusForbidden},
		{"traversal", backends.UnableToReadFile("../x", "", pathutil.ErrPathTraversal), http.StatusBadRequest},
		{"directory", core.ErrIsDirectory, http.StatusBadRequest},
		{"remote not found", backends.UnableToReadFile("x", "", &diskapi.APIError{StatusCode: 404}), http.StatusNotFound},
		{"local not found", backends.UnableToDeleteFile("x", "", fs.ErrNotExist), http.StatusNotFound},
		{"locked", fmt.Errorf("lock: %w", locks.ErrLocked), http.StatusConflict},
		{"exists", backends.UnableToMoveFile("a", "b", fs.ErrExist), http.StatusConflict},
		{"visibility", backends.UnableToSetVisibility("x", "", backends.ErrVisibilityNotSupported), http.StatusNotImplemented},
		{"disabled", backends.ErrBackendNotEnabled, http.StatusServiceUnavailable},
		{"link used", links.ErrLinkUsed, http.StatusGone},
		{"remote 5xx", &diskapi.APIError{StatusCode: 503}, http.StatusBadGateway},
		{"remote 401", &diskapi.APIError{StatusCode: 401}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, ok := errorStatus(tt.err)
			assert.True(t, ok)
			assert.Equal(t, tt.status, status)
		})
	}

	_, _, ok := errorStatus(errors.New("boom"))
	assert.False(t, ok)
}

func TestSendErrorResponseDefault(t *testing.T) {
	rec := httptest.NewRecorder()
	SendErrorResponse(rec, zap.NewNop(), errors.New("boom"), http.StatusTeapot)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"code":"INTERNAL_ERROR","message":"boom"}`, rec.Body.String())
}
