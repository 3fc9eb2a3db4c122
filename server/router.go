// Package server wires the diskfs HTTP gateway.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/auth"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/links"
	"github.com/ebogdum/diskfs/metrics"
	"github.com/ebogdum/diskfs/server/handlers"
	linksHandlers "github.com/ebogdum/diskfs/server/handlers/links"
	authMiddleware "github.com/ebogdum/diskfs/server/middleware"
)

// NewRouter creates and configures the HTTP router. Link routes are mounted
// only when linkManager is non-nil.
func NewRouter(
	engine *core.Engine,
	authenticator auth.Authenticator,
	authorizer auth.Authorizer,
	linkManager *links.LinkManager,
	serverConfig *config.ServerConfig,
	logger *zap.Logger,
) chi.Router {
	metrics.RegisterMetrics()

	r := chi.NewRouter()

	r.Use(authMiddleware.V1RequestIDMiddleware())
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(authMiddleware.V1SecurityHeaders())
	r.Use(authMiddleware.V1MetricsMiddleware(logger))

	// Health check endpoint (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		handlers.SendJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Metrics endpoint (no auth required)
	r.Handle("/metrics", promhttp.Handler())

	mutationLimit := authMiddleware.V1RateLimitMiddleware(serverConfig.MutationRateLimit, serverConfig.MutationBurst, logger)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.V1AuthMiddleware(authenticator, logger))

		r.Route("/files", func(r chi.Router) {
			r.Get("/*", handlers.V1GetFile(engine, authorizer, serverConfig, logger))
			r.Head("/*", handlers.V1HeadFile(engine, authorizer, serverConfig, logger))
			r.With(mutationLimit).Put("/*", handlers.V1PutFile(engine, authorizer, serverConfig, logger))
			r.With(mutationLimit).Delete("/*", handlers.V1DeleteFile(engine, authorizer, serverConfig, logger))
		})

		r.Route("/directories", func(r chi.Router) {
			r.Get("/*", handlers.V1ListDirectory(engine, authorizer, serverConfig, logger))
			r.With(mutationLimit).Post("/*", handlers.V1CreateDirectory(engine, authorizer, serverConfig, logger))
		})

		r.Get("/metadata/*", handlers.V1GetMetadata(engine, authorizer, serverConfig, logger))
		r.With(mutationLimit).Put("/visibility/*", handlers.V1SetVisibility(engine, authorizer, serverConfig, logger))

		r.With(mutationLimit).Post("/move", handlers.V1Move(engine, authorizer, serverConfig, logger))
		r.With(mutationLimit).Post("/copy", handlers.V1Copy(engine, authorizer, serverConfig, logger))

		if linkManager != nil {
			r.With(mutationLimit).Post("/links/generate",
				linksHandlers.V1GenerateLinkHandler(engine, linkManager, authorizer, serverConfig, logger))
		}
	})

	// Single-use download endpoint (no auth required)
	if linkManager != nil {
		r.Get("/download/{token}", linksHandlers.V1DownloadLinkHandler(engine, linkManager, serverConfig, logger))
	}

	logger.Info("HTTP router configured successfully",
		zap.Bool("links_enabled", linkManager != nil))

	return r
}
