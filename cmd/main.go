package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/auth"
	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/backends/gateway"
	"github.com/ebogdum/diskfs/backends/localfs"
	"github.com/ebogdum/diskfs/backends/noop"
	"github.com/ebogdum/diskfs/backends/s3"
	"github.com/ebogdum/diskfs/backends/yandexdisk"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/internal/diskapi"
	"github.com/ebogdum/diskfs/links"
	linkspg "github.com/ebogdum/diskfs/links/postgres"
	linksqlite "github.com/ebogdum/diskfs/links/sqlite"
	"github.com/ebogdum/diskfs/locks"
	"github.com/ebogdum/diskfs/server"
)

var rootCmd = &cobra.Command{
	Use:   "diskfs",
	Short: "diskfs - filesystem access to a Yandex Disk",
	Long: `diskfs exposes a Yandex Disk as a uniform filesystem: a set of file
commands for scripts and an authenticated HTTP gateway for everything else.`,
	SilenceUsage: true,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP gateway",
	Long:  "Start the HTTP gateway over the configured disk backend",
	RunE:  runServer,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the diskfs configuration and display the loaded settings",
	RunE:  validateConfig,
}

var configFilePath string

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")

	configCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serverCmd, configCmd)
	addFileCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// runServer starts the gateway and blocks until SIGINT or SIGTERM
func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateServer(&cfg); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	logger, err := initializeLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			// Log to stderr since logger may not be working
			fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
		}
	}()

	logger.Info("Starting diskfs gateway",
		zap.String("backend", cfg.Disk.Backend),
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.Bool("read_only", cfg.Auth.ReadOnly))

	filesystem, closeFilesystem, err := buildFilesystem(cfg, logger)
	if err != nil {
		return err
	}
	defer closeFilesystem()

	lockManager, err := buildLockManager(cfg.Locks, logger)
	if err != nil {
		return err
	}
	defer lockManager.Close()

	engine := core.NewEngine(filesystem, lockManager, cfg.Server.MaxListEntries, logger)

	authenticator := auth.NewAPIKeyAuthenticator(cfg.Auth.APIKeys)
	authorizer := auth.NewReadOnlyAuthorizer(cfg.Auth.ReadOnly)

	var linkManager *links.LinkManager
	if cfg.Server.LinkSecret != "" {
		store, err := buildLinkStore(cfg.Server, logger)
		if err != nil {
			return err
		}

		linkManager, err = links.NewLinkManager(cfg.Server.LinkSecret, cfg.Server.LinkTTL, logger, links.WithUsedStore(store))
		if err != nil {
			return fmt.Errorf("failed to initialize link manager: %w", err)
		}
		defer linkManager.Close()
		links.StartCleanupWorker(ctx, linkManager, cfg.Server.LinkCleanupInterval, logger)
	} else {
		logger.Info("Download links disabled (no link secret configured)")
	}

	router := server.NewRouter(engine, authenticator, authorizer, linkManager, &cfg.Server, logger)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	tlsEnabled := cfg.Server.CertFile != "" && cfg.Server.KeyFile != ""
	go func() {
		var err error
		if tlsEnabled {
			logger.Info("Starting HTTPS server", zap.String("addr", cfg.Server.ListenAddr))
			err = srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			logger.Warn("TLS disabled; serving plain HTTP", zap.String("addr", cfg.Server.ListenAddr))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Starting metrics server", zap.String("addr", cfg.Metrics.ListenAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server forced to shutdown", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server exited gracefully")
	return nil
}

// validateConfig validates the configuration and displays the loaded settings
func validateConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Validating configuration...")

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		fmt.Fprintf(out, "❌ Configuration validation failed: %v\n", err)
		return err
	}
	if err := config.ValidateServer(&cfg); err != nil {
		fmt.Fprintf(out, "⚠️  File commands will work, but the gateway will not start: %v\n", err)
	} else {
		fmt.Fprintln(out, "✅ Configuration is valid")
	}

	fmt.Fprintf(out, "Backend: %s\n", cfg.Disk.Backend)
	switch cfg.Disk.Backend {
	case config.BackendYandex:
		fmt.Fprintf(out, "API Base URL: %s\n", cfg.Disk.BaseURL)
		fmt.Fprintf(out, "Token: %s\n", maskSecret(cfg.Disk.Token))
		fmt.Fprintf(out, "Permanent Delete: %t\n", cfg.Disk.PermanentDelete)
	case config.BackendLocal:
		fmt.Fprintf(out, "Local Root: %s\n", cfg.Disk.LocalRoot)
	case config.BackendS3:
		fmt.Fprintf(out, "S3 Bucket: %s\n", cfg.S3.Bucket)
		fmt.Fprintf(out, "S3 Region: %s\n", cfg.S3.Region)
	case config.BackendGateway:
		fmt.Fprintf(out, "Gateway URL: %s\n", cfg.Gateway.URL)
		fmt.Fprintf(out, "Gateway API Key: %s\n", maskSecret(cfg.Gateway.APIKey))
	}
	fmt.Fprintf(out, "Locks: %s\n", cfg.Locks.Backend)
	fmt.Fprintf(out, "Listen Address: %s\n", cfg.Server.ListenAddr)
	fmt.Fprintf(out, "API Keys: %d\n", len(cfg.Auth.APIKeys))
	fmt.Fprintf(out, "Read Only: %t\n", cfg.Auth.ReadOnly)
	fmt.Fprintf(out, "Download Links: %t\n", cfg.Server.LinkSecret != "")
	switch {
	case cfg.Server.LinkStoreDSN != "":
		fmt.Fprintln(out, "Link Store: postgres")
	case cfg.Server.LinkStorePath != "":
		fmt.Fprintf(out, "Link Store: sqlite (%s)\n", cfg.Server.LinkStorePath)
	}

	return nil
}

// maskSecret masks all but the edges of a secret for display
func maskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) > 12 {
		return secret[:4] + "***" + secret[len(secret)-4:]
	}
	return "***"
}

// buildFilesystem creates the configured backend. The returned function
// releases whatever the backend holds open.
func buildFilesystem(cfg config.AppConfig, logger *zap.Logger) (backends.Filesystem, func(), error) {
	switch cfg.Disk.Backend {
	case config.BackendLocal:
		logger.Info("Initializing local backend", zap.String("root_path", cfg.Disk.LocalRoot))
		adapter, err := localfs.NewLocalFSAdapter(cfg.Disk.LocalRoot)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize local backend: %w", err)
		}
		return adapter, func() {}, nil

	case config.BackendMemory:
		logger.Warn("Using the in-memory backend; nothing is persisted")
		return localfs.NewMemoryAdapter(), func() {}, nil

	case config.BackendS3:
		logger.Info("Initializing S3 backend", zap.String("bucket", cfg.S3.Bucket))
		adapter, err := s3.NewFromConfig(cfg.S3, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize S3 backend: %w", err)
		}
		return adapter, func() {}, nil

	case config.BackendGateway:
		logger.Info("Forwarding to a peer gateway", zap.String("url", cfg.Gateway.URL))
		adapter, err := gateway.NewFromConfig(cfg.Gateway, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize gateway backend: %w", err)
		}
		return adapter, func() { adapter.Close() }, nil
	}

	if cfg.Disk.Token == "" {
		logger.Warn("Yandex Disk backend disabled (no token configured)")
		return noop.NewNoopAdapter(), func() {}, nil
	}

	logger.Info("Initializing Yandex Disk backend", zap.String("base_url", cfg.Disk.BaseURL))
	client, err := diskapi.NewClient(cfg.Disk, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize disk API client: %w", err)
	}
	adapter, err := yandexdisk.New(client,
		yandexdisk.WithLogger(logger),
		yandexdisk.WithStrictExistence(cfg.Disk.StrictExistence))
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to initialize Yandex Disk backend: %w", err)
	}
	return adapter, func() { client.Close() }, nil
}

// buildLinkStore opens the store that remembers consumed download links
func buildLinkStore(cfg config.ServerConfig, logger *zap.Logger) (links.UsedStore, error) {
	switch {
	case cfg.LinkStoreDSN != "":
		logger.Info("Keeping consumed download links in PostgreSQL")
		store, err := linkspg.NewStore(cfg.LinkStoreDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open link store: %w", err)
		}
		return store, nil

	case cfg.LinkStorePath != "":
		logger.Info("Keeping consumed download links in SQLite", zap.String("path", cfg.LinkStorePath))
		store, err := linksqlite.NewStore(cfg.LinkStorePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open link store: %w", err)
		}
		return store, nil
	}
	return links.NewMemoryStore(), nil
}

// buildLockManager creates the configured lock manager
func buildLockManager(cfg config.LocksConfig, logger *zap.Logger) (locks.Manager, error) {
	if cfg.Backend != config.LocksRedis {
		return locks.NewLocalManager(), nil
	}

	logger.Info("Using Redis locks", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.TTL))
	manager, err := locks.NewRedisManager(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize lock manager: %w", err)
	}
	return manager, nil
}

// initializeLogger creates a zap logger based on configuration
func initializeLogger(logCfg config.LogConfig) (*zap.Logger, error) {
	var cfg zap.Config

	if logCfg.Format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(logCfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = level

	// Keep stdout free for command output
	cfg.OutputPaths = []string{"stderr"}

	return cfg.Build()
}
