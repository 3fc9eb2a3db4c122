package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/auth"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/metadata"
)

// V1PutFile handles PUT /v1/files/{path}. The body replaces the file at path;
// the answer is 201 when the file did not exist before and 200 otherwise.
// @Summary Upload file
// @Description Streams the request body to path, replacing any existing file
// @Tags files
// @Security BearerAuth
// @Accept octet-stream
// @Produce json
// @Param path path string true "File path"
// @Param Content-Type header string false "Stored content type"
// @Success 200 {object} metadata.FileAttributes "File replaced"
// @Success 201 {object} metadata.FileAttributes "File created"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 409 {object} ErrorResponse "Locked"
// @Failure 502 {object} ErrorResponse "Drive error"
// @Router /v1/files/{path} [put]
func V1PutFile(engine *core.Engine, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathInfo := ParseFilePath(chi.URLParam(r, "*"), engine)
		if pathInfo.IsInvalid() {
			SendErrorResponse(w, logger, pathInfo.Err, http.StatusBadRequest)
			return
		}

		// PUT is only for files, not directories
		if pathInfo.IsDirectory {
			SendErrorResponse(w, logger,
				fmt.Errorf("%w: PUT cannot be used with directory paths (trailing slash)", ErrInvalidPath),
				http.StatusBadRequest)
			return
		}

		subject, ok := authorizeRequest(w, r, authorizer, pathInfo.Path, auth.WritePerm, logger)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.FileOpTimeout)
		defer cancel()

		existed, err := engine.Exists(ctx, pathInfo.Path)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		writeCfg := metadata.WriteConfig{}
		if ct := r.Header.Get("Content-Type"); ct != "" {
			writeCfg = writeCfg.With(metadata.OptionContentType, ct)
		}

		if err := engine.PutFile(ctx, pathInfo.Path, r.Body, writeCfg); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		statusCode := http.StatusCreated
		if existed {
			statusCode = http.StatusOK
		}

		attrs, err := engine.Describe(ctx, pathInfo.Path)
		if err != nil {
			// The upload itself succeeded
			logger.Warn("Failed to describe uploaded file", log.Path("path", pathInfo.Path), zap.Error(err))
			w.WriteHeader(statusCode)
			return
		}
		SendJSONResponse(w, statusCode, attrs)

		logger.Info("File uploaded",
			log.Path("path", pathInfo.Path),
			zap.String("subject", log.SanitizeSubject(subject)),
			zap.Int("status_code", statusCode))
	}
}

// V1DeleteFile handles DELETE /v1/files/{path}. A trailing slash deletes the
// directory with its contents.
// @Summary Delete file or directory
// @Tags files
// @Security BearerAuth
// @Param path path string true "File path, with a trailing slash for directories"
// @Success 204 "Deleted"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Not Found"
// @Failure 409 {object} ErrorResponse "Locked"
// @Router /v1/files/{path} [delete]
func V1DeleteFile(engine *core.Engine, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathInfo := ParseFilePath(chi.URLParam(r, "*"), engine)
		if pathInfo.IsInvalid() {
			SendErrorResponse(w, logger, pathInfo.Err, http.StatusBadRequest)
			return
		}
		if pathInfo.Path == "" {
			SendErrorResponse(w, logger, fmt.Errorf("%w: the root directory cannot be deleted", ErrInvalidPath), http.StatusBadRequest)
			return
		}

		subject, ok := authorizeRequest(w, r, authorizer, pathInfo.Path, auth.DeletePerm, logger)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.FileOpTimeout)
		defer cancel()

		var err error
		if pathInfo.IsDirectory {
			err = engine.DeleteDirectory(ctx, pathInfo.Path)
		} else {
			err = engine.DeleteFile(ctx, pathInfo.Path)
		}
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)

		logger.Info("Resource deleted",
			log.Path("path", pathInfo.Path),
			zap.Bool("directory", pathInfo.IsDirectory),
			zap.String("subject", log.SanitizeSubject(subject)))
	}
}
