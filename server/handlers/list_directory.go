package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/auth"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/metadata"
)

// DirectoryListingResponse represents the response for directory listing operations
type DirectoryListingResponse struct {
	Path      string                       `json:"path"`
	Recursive bool                         `json:"recursive"`
	Count     int                          `json:"count"`
	Truncated bool                         `json:"truncated"`
	Items     []metadata.StorageAttributes `json:"items"`
}

// V1ListDirectory handles GET /v1/directories/{path}?recursive=true&limit=N
// @Summary List directory contents
// @Description Lists the entries below a directory, optionally recursively, capped at the configured maximum
// @Tags directories
// @Security BearerAuth
// @Param path path string true "Directory path"
// @Param recursive query bool false "List the whole subtree"
// @Param limit query int false "Maximum number of entries"
// @Success 200 {object} DirectoryListingResponse "Directory listing"
// @Failure 400 {object} ErrorResponse "Bad Request"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "Not Found"
// @Router /v1/directories/{path} [get]
func V1ListDirectory(engine *core.Engine, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathInfo := ParseFilePath(chi.URLParam(r, "*"), engine)
		if pathInfo.IsInvalid() {
			SendErrorResponse(w, logger, pathInfo.Err, http.StatusBadRequest)
			return
		}

		query := r.URL.Query()
		recursive := query.Get("recursive") == "true"

		limit := 0
		if raw := query.Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				SendErrorResponse(w, logger, fmt.Errorf("%w: limit must be a non-negative integer", ErrInvalidRequest), http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		subject, ok := authorizeRequest(w, r, authorizer, pathInfo.Path, auth.ReadPerm, logger)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.MetadataOpTimeout)
		defer cancel()

		if count, ok := writeListing(w, ctx, engine, pathInfo.Path, recursive, limit, logger); ok {
			logger.Info("Directory listed via API",
				log.Path("path", pathInfo.Path),
				zap.String("subject", log.SanitizeSubject(subject)),
				zap.Bool("recursive", recursive),
				zap.Int("items_count", count))
		}
	}
}

// V1CreateDirectory handles POST /v1/directories/{path}
// @Summary Create directory
// @Tags directories
// @Security BearerAuth
// @Param path path string true "Directory path"
// @Success 201 {object} metadata.DirectoryAttributes "Directory created"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 409 {object} ErrorResponse "Already exists or locked"
// @Router /v1/directories/{path} [post]
func V1CreateDirectory(engine *core.Engine, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathInfo := ParseFilePath(chi.URLParam(r, "*"), engine)
		if pathInfo.IsInvalid() {
			SendErrorResponse(w, logger, pathInfo.Err, http.StatusBadRequest)
			return
		}
		if pathInfo.Path == "" {
			SendErrorResponse(w, logger, fmt.Errorf("%w: the root directory always exists", ErrInvalidPath), http.StatusBadRequest)
			return
		}

		subject, ok := authorizeRequest(w, r, authorizer, pathInfo.Path, auth.WritePerm, logger)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.MetadataOpTimeout)
		defer cancel()

		if err := engine.CreateDirectory(ctx, pathInfo.Path, metadata.WriteConfig{}); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, http.StatusCreated, metadata.NewDirectoryAttributes(pathInfo.Path, nil))

		logger.Info("Directory created via API",
			log.Path("path", pathInfo.Path),
			zap.String("subject", log.SanitizeSubject(subject)))
	}
}

// writeListing lists p and writes the JSON response. It reports the number of
// entries written and whether the listing succeeded.
func writeListing(w http.ResponseWriter, ctx context.Context, engine *core.Engine, p string, recursive bool, limit int, logger *zap.Logger) (int, bool) {
	listing, err := engine.ListDirectory(ctx, p, recursive, limit)
	if err != nil {
		SendErrorResponse(w, logger, err, http.StatusInternalServerError)
		return 0, false
	}

	w.Header().Set(HeaderType, metadata.TypeDirectory)
	SendJSONResponse(w, http.StatusOK, DirectoryListingResponse{
		Path:      listing.Path,
		Recursive: recursive,
		Count:     len(listing.Entries),
		Truncated: listing.Truncated,
		Items:     listing.Entries,
	})
	return len(listing.Entries), true
}
