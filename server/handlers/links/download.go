package links

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/links"
	"github.com/ebogdum/diskfs/server/handlers"
)

// V1DownloadLinkHandler handles GET /download/{token}. The token is spent
// before the file is opened, so a failed download needs a new link.
// @Summary Download through a single-use link
// @Tags links
// @Produce octet-stream
// @Param token path string true "Download token"
// @Success 200 {file} binary "File content"
// @Failure 404 {object} handlers.ErrorResponse "Invalid link"
// @Failure 410 {object} handlers.ErrorResponse "Link expired or used"
// @Router /download/{token} [get]
func V1DownloadLinkHandler(engine *core.Engine, manager *links.LinkManager, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")
		if token == "" {
			handlers.SendErrorResponse(w, logger, fmt.Errorf("%w: missing token", handlers.ErrInvalidRequest), http.StatusBadRequest)
			return
		}

		// RealIP middleware has already resolved forwarded addresses
		clientIP := r.RemoteAddr

		filePath, err := manager.ValidateAndInvalidateLink(r.Context(), token, clientIP)
		if err != nil {
			if !errors.Is(err, links.ErrLinkInvalid) && !errors.Is(err, links.ErrLinkExpired) && !errors.Is(err, links.ErrLinkUsed) {
				err = errors.New("link validation failed")
			}
			handlers.SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.FileOpTimeout)
		defer cancel()

		reader, attrs, err := engine.OpenFile(ctx, filePath)
		if err != nil {
			logger.Error("Failed to open file for single-use link",
				zap.String("token", links.TruncateToken(token)),
				log.Path("file_path", filePath),
				zap.Error(err))
			handlers.SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		defer reader.Close()

		contentType := "application/octet-stream"
		if mt, ok := attrs.MimeType(); ok {
			contentType = mt
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(filePath)}))
		if size, ok := attrs.FileSize(); ok {
			w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		}
		w.WriteHeader(http.StatusOK)

		if _, err := io.Copy(w, reader); err != nil {
			logger.Error("Failed to stream file content for single-use link",
				zap.String("token", links.TruncateToken(token)),
				log.Path("file_path", filePath),
				zap.Error(err))
			return
		}

		logger.Info("Successfully served file via single-use link",
			zap.String("token", links.TruncateToken(token)),
			log.Path("file_path", filePath),
			zap.String("client_ip", clientIP))
	}
}
