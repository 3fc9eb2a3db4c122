package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/auth"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/metadata"
)

// Response headers describing a stored resource
const (
	HeaderType         = "X-Diskfs-Type"
	HeaderSize         = "X-Diskfs-Size"
	HeaderLastModified = "X-Diskfs-Last-Modified"
)

// V1GetFile handles GET /v1/files/{path}. Files are streamed; directories
// answer with their shallow listing.
// @Summary Download file
// @Description Streams a file, or returns the shallow listing of a directory
// @Tags files
// @Security BearerAuth
// @Produce octet-stream
// @Param path path string true "File path"
// @Success 200 {file} binary "File content"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "Not Found"
// @Router /v1/files/{path} [get]
func V1GetFile(engine *core.Engine, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathInfo := ParseFilePath(chi.URLParam(r, "*"), engine)
		if pathInfo.IsInvalid() {
			SendErrorResponse(w, logger, pathInfo.Err, http.StatusBadRequest)
			return
		}

		subject, ok := authorizeRequest(w, r, authorizer, pathInfo.Path, auth.ReadPerm, logger)
		if !ok {
			return
		}

		metadataCtx, metadataCancel := context.WithTimeout(r.Context(), cfg.MetadataOpTimeout)
		defer metadataCancel()

		if pathInfo.IsDirectory {
			writeListing(w, metadataCtx, engine, pathInfo.Path, false, 0, logger)
			return
		}

		fileCtx, fileCancel := context.WithTimeout(r.Context(), cfg.FileOpTimeout)
		defer fileCancel()

		reader, attrs, err := engine.OpenFile(fileCtx, pathInfo.Path)
		if errors.Is(err, core.ErrIsDirectory) {
			writeListing(w, metadataCtx, engine, pathInfo.Path, false, 0, logger)
			return
		}
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		defer reader.Close()

		setFileHeaders(w, attrs)
		w.WriteHeader(http.StatusOK)

		written, err := io.Copy(w, reader)
		if err != nil {
			// Headers are gone already; the client sees a truncated body
			logger.Error("Failed to stream file content",
				log.Path("path", pathInfo.Path),
				zap.Error(err))
			return
		}

		logger.Info("File downloaded",
			log.Path("path", pathInfo.Path),
			zap.String("subject", log.SanitizeSubject(subject)),
			log.Size("size", written))
	}
}

// V1HeadFile handles HEAD /v1/files/{path}
// @Summary File headers
// @Tags files
// @Security BearerAuth
// @Param path path string true "File path"
// @Success 200 "Headers only"
// @Failure 404 "Not Found"
// @Router /v1/files/{path} [head]
func V1HeadFile(engine *core.Engine, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathInfo := ParseFilePath(chi.URLParam(r, "*"), engine)
		if pathInfo.IsInvalid() {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if _, ok := authorizeRequest(w, r, authorizer, pathInfo.Path, auth.ReadPerm, logger); !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.MetadataOpTimeout)
		defer cancel()

		attrs, err := engine.Describe(ctx, pathInfo.Path)
		if err != nil {
			status, _, ok := errorStatus(err)
			if !ok {
				status = http.StatusInternalServerError
			}
			w.WriteHeader(status)
			return
		}

		if file, ok := attrs.(metadata.FileAttributes); ok {
			setFileHeaders(w, file)
		} else {
			w.Header().Set(HeaderType, attrs.Type())
			setLastModified(w, attrs)
		}
		w.WriteHeader(http.StatusOK)
	}
}

func setFileHeaders(w http.ResponseWriter, attrs metadata.FileAttributes) {
	contentType := "application/octet-stream"
	if mt, ok := attrs.MimeType(); ok {
		contentType = mt
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set(HeaderType, attrs.Type())

	if size, ok := attrs.FileSize(); ok {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.Header().Set(HeaderSize, strconv.FormatInt(size, 10))
	}
	setLastModified(w, attrs)
}

func setLastModified(w http.ResponseWriter, attrs metadata.StorageAttributes) {
	ts, ok := attrs.LastModified()
	if !ok {
		return
	}
	modified := time.Unix(ts, 0).UTC()
	w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
	w.Header().Set(HeaderLastModified, modified.Format(time.RFC3339))
}
