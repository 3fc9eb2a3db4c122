package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/auth"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/metadata"
)

// TransferRequest is the body of move and copy requests
type TransferRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// TransferResponse reports a completed move or copy
type TransferResponse struct {
	Operation   string `json:"operation"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

type transferFunc func(ctx context.Context, source, destination string, cfg metadata.WriteConfig) error

// V1Move handles POST /v1/move
// @Summary Move file or directory
// @Tags transfer
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body TransferRequest true "Source and destination"
// @Success 200 {object} TransferResponse "Moved"
// @Failure 404 {object} ErrorResponse "Not Found"
// @Failure 409 {object} ErrorResponse "Destination exists or locked"
// @Router /v1/move [post]
func V1Move(engine *core.Engine, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	// The source disappears, so moving needs delete access to it
	return transferHandler("move", engine.Move, auth.DeletePerm, engine, authorizer, cfg, logger)
}

// V1Copy handles POST /v1/copy
// @Summary Copy file or directory
// @Tags transfer
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body TransferRequest true "Source and destination"
// @Success 200 {object} TransferResponse "Copied"
// @Failure 404 {object} ErrorResponse "Not Found"
// @Failure 409 {object} ErrorResponse "Destination exists or locked"
// @Router /v1/copy [post]
func V1Copy(engine *core.Engine, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return transferHandler("copy", engine.Copy, auth.ReadPerm, engine, authorizer, cfg, logger)
}

func transferHandler(op string, transfer transferFunc, sourcePerm auth.PermissionType, engine *core.Engine, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			SendErrorResponse(w, logger, fmt.Errorf("%w: invalid JSON in request body", ErrInvalidRequest), http.StatusBadRequest)
			return
		}
		if req.Source == "" || req.Destination == "" {
			SendErrorResponse(w, logger, fmt.Errorf("%w: source and destination are required", ErrInvalidRequest), http.StatusBadRequest)
			return
		}

		source := ParseFilePath(req.Source, engine)
		destination := ParseFilePath(req.Destination, engine)
		for _, p := range []PathInfo{source, destination} {
			if p.IsInvalid() {
				SendErrorResponse(w, logger, p.Err, http.StatusBadRequest)
				return
			}
			if p.Path == "" {
				SendErrorResponse(w, logger, fmt.Errorf("%w: the root directory cannot be transferred", ErrInvalidPath), http.StatusBadRequest)
				return
			}
		}

		subject, ok := authorizeRequest(w, r, authorizer, source.Path, sourcePerm, logger)
		if !ok {
			return
		}
		if _, ok := authorizeRequest(w, r, authorizer, destination.Path, auth.WritePerm, logger); !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.FileOpTimeout)
		defer cancel()

		if err := transfer(ctx, source.Path, destination.Path, metadata.WriteConfig{}); err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, http.StatusOK, TransferResponse{
			Operation:   op,
			Source:      source.Path,
			Destination: destination.Path,
		})

		logger.Info("Transfer completed",
			zap.String("operation", op),
			log.Path("source", source.Path),
			log.Path("destination", destination.Path),
			zap.String("subject", log.SanitizeSubject(subject)))
	}
}
