package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/auth"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/metadata"
)

// VisibilityRequest is the body of visibility changes
type VisibilityRequest struct {
	Visibility metadata.Visibility `json:"visibility"`
}

// V1GetMetadata handles GET /v1/metadata/{path}. Without a field query the
// full attributes are returned; with ?field=size (or last_modified, mime_type,
// visibility) only that field is retrieved.
// @Summary Get metadata
// @Tags metadata
// @Security BearerAuth
// @Param path path string true "Resource path"
// @Param field query string false "size, last_modified, mime_type or visibility"
// @Success 200 {object} metadata.FileAttributes "Attributes"
// @Failure 400 {object} ErrorResponse "Unknown field"
// @Failure 404 {object} ErrorResponse "Not Found"
// @Router /v1/metadata/{path} [get]
func V1GetMetadata(engine *core.Engine, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathInfo := ParseFilePath(chi.URLParam(r, "*"), engine)
		if pathInfo.IsInvalid() {
			SendErrorResponse(w, logger, pathInfo.Err, http.StatusBadRequest)
			return
		}

		if _, ok := authorizeRequest(w, r, authorizer, pathInfo.Path, auth.ReadPerm, logger); !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.MetadataOpTimeout)
		defer cancel()

		var (
			attrs metadata.StorageAttributes
			err   error
		)
		if field := r.URL.Query().Get("field"); field != "" {
			attrs, err = engine.Metadata(ctx, pathInfo.Path, field)
		} else {
			attrs, err = engine.Describe(ctx, pathInfo.Path)
		}
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, http.StatusOK, attrs)
	}
}

// V1SetVisibility handles PUT /v1/visibility/{path}
// @Summary Set visibility
// @Tags metadata
// @Security BearerAuth
// @Accept json
// @Param path path string true "File path"
// @Param request body VisibilityRequest true "Visibility"
// @Success 204 "Visibility set"
// @Failure 501 {object} ErrorResponse "Not supported by the backend"
// @Router /v1/visibility/{path} [put]
func V1SetVisibility(engine *core.Engine, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathInfo := ParseFilePath(chi.URLParam(r, "*"), engine)
		if pathInfo.IsInvalid() {
			SendErrorResponse(w, logger, pathInfo.Err, http.StatusBadRequest)
			return
		}

		var req VisibilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			SendErrorResponse(w, logger, fmt.Errorf("%w: invalid JSON in request body", ErrInvalidRequest), http.StatusBadRequest)
			return
		}
		if req.Visibility != metadata.VisibilityPublic && req.Visibility != metadata.VisibilityPrivate {
			SendErrorResponse(w, logger, fmt.Errorf("%w: visibility must be %q or %q", ErrInvalidRequest, metadata.VisibilityPublic, metadata.VisibilityPrivate), http.StatusBadRequest)
			return
		}

		if _, ok := authorizeRequest(w, r, authorizer, pathInfo.Path, auth.WritePerm, logger); !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.MetadataOpTimeout)
		defer cancel()

		if err := engine.SetVisibility(ctx, pathInfo.Path, req.Visibility); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
