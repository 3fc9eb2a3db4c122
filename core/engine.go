// Package core orchestrates filesystem operations for the gateway and the CLI.
// It adds path locking, metrics and sanitized logging around a
// backends.Filesystem.
package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/locks"
	"github.com/ebogdum/diskfs/metrics"
)

// Engine errors
var (
	ErrIsDirectory  = errors.New("path is a directory")
	ErrUnknownField = errors.New("unknown metadata field")
)

// Engine represents the core diskfs engine that orchestrates operations
type Engine struct {
	fs             backends.Filesystem
	lockManager    locks.Manager
	normalizer     pathutil.Normalizer
	maxListEntries int
	logger         *zap.Logger
}

// NewEngine creates a new core engine instance. maxListEntries caps listings
// materialized by ListDirectory; zero or less means no cap.
func NewEngine(fs backends.Filesystem, lockManager locks.Manager, maxListEntries int, logger *zap.Logger) *Engine {
	if lockManager == nil {
		lockManager = locks.NewLocalManager()
	}
	return &Engine{
		fs:             fs,
		lockManager:    lockManager,
		normalizer:     pathutil.NewWhitespaceNormalizer(),
		maxListEntries: maxListEntries,
		logger:         logger,
	}
}

// Filesystem returns the filesystem the engine operates on
func (e *Engine) Filesystem() backends.Filesystem {
	return e.fs
}

// NormalizePath canonicalizes path the way the engine does for locking
func (e *Engine) NormalizePath(path string) (string, error) {
	return e.normalizer.NormalizePath(path)
}

// observe records the outcome of an operation
func (e *Engine) observe(op string, start time.Time, err error) {
	metrics.FSOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	result := "success"
	if err != nil {
		result = "failure"
		metrics.ErrorsTotal.WithLabelValues("engine", errorType(err)).Inc()
	}
	metrics.FSOpsTotal.WithLabelValues(op, result).Inc()
}

// errorType classifies err for the errors metric
func errorType(err error) string {
	switch {
	case errors.Is(err, locks.ErrLocked):
		return "locked"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context"
	case errors.Is(err, ErrIsDirectory):
		return "is_directory"
	}
	if opErr, ok := backends.AsOperationError(err); ok {
		return string(opErr.Op)
	}
	return "other"
}

// lock locks the normalized form of paths. Paths that fail normalization are
// locked verbatim; the filesystem reports the normalization error itself.
func (e *Engine) lock(ctx context.Context, paths ...string) (func(), error) {
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		key, err := e.normalizer.NormalizePath(p)
		if err != nil {
			key = p
		}
		keys = append(keys, key)
	}
	return e.lockManager.TryLock(ctx, keys...)
}
