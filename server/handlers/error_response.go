package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/auth"
	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/internal/diskapi"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/links"
	"github.com/ebogdum/diskfs/locks"
)

// Request validation errors
var (
	ErrInvalidPath    = errors.New("invalid path")
	ErrInvalidRequest = errors.New("invalid request")
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorStatus maps err to an HTTP status and error code. ok is false when no
// rule matched.
func errorStatus(err error) (status int, code string, ok bool) {
	switch {
	case errors.Is(err, auth.ErrAuthenticationFailed):
		return http.StatusUnauthorized, "AUTHENTICATION_FAILED", true
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden, "PERMISSION_DENIED", true
	case errors.Is(err, ErrInvalidPath),
		errors.Is(err, pathutil.ErrPathTraversal),
		errors.Is(err, pathutil.ErrCorruptedPath):
		return http.StatusBadRequest, "INVALID_PATH", true
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, core.ErrUnknownField):
		return http.StatusBadRequest, "INVALID_REQUEST", true
	case errors.Is(err, core.ErrIsDirectory):
		return http.StatusBadRequest, "IS_DIRECTORY", true
	case errors.Is(err, links.ErrLinkExpired), errors.Is(err, links.ErrLinkUsed):
		return http.StatusGone, "LINK_GONE", true
	case errors.Is(err, links.ErrLinkInvalid):
		return http.StatusNotFound, "LINK_INVALID", true
	case errors.Is(err, diskapi.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, "NOT_FOUND", true
	case errors.Is(err, locks.ErrLocked):
		return http.StatusConflict, "RESOURCE_LOCKED", true
	case errors.Is(err, fs.ErrExist), errors.Is(err, diskapi.ErrConflict):
		return http.StatusConflict, "ALREADY_EXISTS", true
	case errors.Is(err, fs.ErrPermission):
		return http.StatusForbidden, "OPERATION_NOT_PERMITTED", true
	case errors.Is(err, backends.ErrVisibilityNotSupported):
		return http.StatusNotImplemented, "NOT_SUPPORTED", true
	case errors.Is(err, backends.ErrBackendNotEnabled):
		return http.StatusServiceUnavailable, "BACKEND_NOT_ENABLED", true
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", true
	case errors.Is(err, diskapi.ErrTooManyRequests):
		return http.StatusServiceUnavailable, "UPSTREAM_THROTTLED", true
	case errors.Is(err, diskapi.ErrBadRequest),
		errors.Is(err, diskapi.ErrUnauthorized),
		errors.Is(err, diskapi.ErrServer),
		errors.Is(err, diskapi.ErrOperationFailed):
		return http.StatusBadGateway, "UPSTREAM_ERROR", true
	}
	return 0, "", false
}

// SendErrorResponse sends a standardized JSON error response. Errors without
// a specific mapping are sent with defaultStatusCode.
func SendErrorResponse(w http.ResponseWriter, logger *zap.Logger, err error, defaultStatusCode int) {
	statusCode, errorCode, ok := errorStatus(err)
	if !ok {
		statusCode, errorCode = defaultStatusCode, "INTERNAL_ERROR"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Code:    errorCode,
		Message: err.Error(),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode error response", zap.Error(err))
		fmt.Fprintf(w, "Internal error occurred")
	}

	level := zap.InfoLevel
	if statusCode >= http.StatusInternalServerError {
		level = zap.WarnLevel
	}
	logger.Log(level, "Error response sent",
		zap.String("error_code", errorCode),
		zap.Int("status_code", statusCode),
		zap.Error(err))
}

// SendJSONResponse sends a JSON response with the given status
func SendJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Fprintf(w, `{"error":"Failed to encode response"}`)
	}
}
