// Package links serves the single-use download link endpoints.
package links

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/auth"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/links"
	"github.com/ebogdum/diskfs/server/handlers"
	"github.com/ebogdum/diskfs/server/middleware"
)

// maxExpirySeconds caps the lifetime a caller may ask for
const maxExpirySeconds = 86400

// GenerateLinkRequest represents the request payload for generating a single-use link.
type GenerateLinkRequest struct {
	Path          string `json:"path"`
	ExpirySeconds int    `json:"expiry_seconds"` // 0 uses the configured default
}

// GenerateLinkResponse represents the response payload containing the generated link.
type GenerateLinkResponse struct {
	URL     string    `json:"url"`
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// V1GenerateLinkHandler handles POST /v1/links/generate
// @Summary Generate single-use download link
// @Description Creates a signed, expiring download link that works once
// @Tags links
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body GenerateLinkRequest true "Link generation request"
// @Success 201 {object} GenerateLinkResponse "Link generated"
// @Failure 400 {object} handlers.ErrorResponse "Bad Request"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Failure 404 {object} handlers.ErrorResponse "Not Found"
// @Router /v1/links/generate [post]
func V1GenerateLinkHandler(engine *core.Engine, manager *links.LinkManager, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject, ok := middleware.GetSubject(r.Context())
		if !ok {
			handlers.SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
			return
		}

		var req GenerateLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Warn("Invalid JSON in link generation request", zap.Error(err))
			handlers.SendErrorResponse(w, logger, fmt.Errorf("%w: invalid JSON in request body", handlers.ErrInvalidRequest), http.StatusBadRequest)
			return
		}

		if req.Path == "" {
			handlers.SendErrorResponse(w, logger, fmt.Errorf("%w: path is required", handlers.ErrInvalidRequest), http.StatusBadRequest)
			return
		}
		if req.ExpirySeconds < 0 || req.ExpirySeconds > maxExpirySeconds {
			handlers.SendErrorResponse(w, logger, fmt.Errorf("%w: expiry must be between 0 and %d seconds", handlers.ErrInvalidRequest, maxExpirySeconds), http.StatusBadRequest)
			return
		}

		pathInfo := handlers.ParseFilePath(req.Path, engine)
		if pathInfo.IsInvalid() {
			handlers.SendErrorResponse(w, logger, pathInfo.Err, http.StatusBadRequest)
			return
		}

		if err := authorizer.Authorize(r.Context(), subject, pathInfo.Path, auth.ReadPerm); err != nil {
			handlers.SendErrorResponse(w, logger, err, http.StatusForbidden)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.MetadataOpTimeout)
		defer cancel()

		// Links are only issued for files that exist now
		attrs, err := engine.Stat(ctx, pathInfo.Path)
		if err != nil {
			handlers.SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		if !attrs.IsFile() {
			handlers.SendErrorResponse(w, logger, fmt.Errorf("cannot link %s: %w", pathInfo.Path, core.ErrIsDirectory), http.StatusBadRequest)
			return
		}

		token, expires, err := manager.GenerateLink(pathInfo.Path, time.Duration(req.ExpirySeconds)*time.Second)
		if err != nil {
			logger.Error("Failed to generate single-use link", log.Path("path", pathInfo.Path), zap.Error(err))
			handlers.SendErrorResponse(w, logger, errors.New("failed to generate download link"), http.StatusInternalServerError)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}

		handlers.SendJSONResponse(w, http.StatusCreated, GenerateLinkResponse{
			URL:     fmt.Sprintf("%s://%s/download/%s", scheme, r.Host, token),
			Token:   token,
			Expires: expires,
		})

		logger.Info("Generated single-use download link",
			log.Path("path", pathInfo.Path),
			zap.String("subject", log.SanitizeSubject(subject)),
			zap.String("token", links.TruncateToken(token)),
			zap.Time("expires", expires))
	}
}
