package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/metadata"
	"github.com/ebogdum/diskfs/metrics"
)

// Listing is a materialized directory listing
type Listing struct {
	Path      string                       `json:"path"`
	Entries   []metadata.StorageAttributes `json:"entries"`
	Truncated bool                         `json:"truncated"`
}

// ListDirectory lists the entries below path, recursively when recursive is
// set. At most limit entries are returned; limit is clamped to the engine's
// cap and zero means the cap.
func (e *Engine) ListDirectory(ctx context.Context, path string, recursive bool, limit int) (listing *Listing, err error) {
	defer func(start time.Time) { e.observe("list", start, err) }(time.Now())

	if e.maxListEntries > 0 && (limit <= 0 || limit > e.maxListEntries) {
		limit = e.maxListEntries
	}

	listing = &Listing{
		Path:    path,
		Entries: []metadata.StorageAttributes{},
	}

	for attrs, err := range e.fs.ListContents(ctx, path, recursive) {
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(listing.Entries) >= limit {
			listing.Truncated = true
			break
		}
		listing.Entries = append(listing.Entries, attrs)
	}

	metrics.ListedEntriesTotal.Add(float64(len(listing.Entries)))

	e.logger.Debug("Directory listed",
		log.Path("path", path),
		zap.Bool("recursive", recursive),
		zap.Int("entries", len(listing.Entries)),
		zap.Bool("truncated", listing.Truncated))

	return listing, nil
}

// WalkDirectory calls fn for every entry below path without materializing the
// listing. Iteration stops at the first error returned by fn.
func (e *Engine) WalkDirectory(ctx context.Context, path string, recursive bool, fn func(metadata.StorageAttributes) error) (err error) {
	defer func(start time.Time) { e.observe("walk", start, err) }(time.Now())

	var count int
	for attrs, err := range e.fs.ListContents(ctx, path, recursive) {
		if err != nil {
			return err
		}
		count++
		if err := fn(attrs); err != nil {
			return err
		}
	}

	metrics.ListedEntriesTotal.Add(float64(count))
	return nil
}

// CreateDirectory creates a directory at path
func (e *Engine) CreateDirectory(ctx context.Context, path string, cfg metadata.WriteConfig) (err error) {
	defer func(start time.Time) { e.observe("create_directory", start, err) }(time.Now())

	release, err := e.lock(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for %s: %w", path, err)
	}
	defer release()

	if err := e.fs.CreateDirectory(ctx, path, cfg); err != nil {
		return err
	}

	e.logger.Info("Directory created successfully", log.Path("path", path))
	return nil
}

// DeleteDirectory removes the directory at path with all its contents
func (e *Engine) DeleteDirectory(ctx context.Context, path string) (err error) {
	defer func(start time.Time) { e.observe("delete_directory", start, err) }(time.Now())

	release, err := e.lock(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for %s: %w", path, err)
	}
	defer release()

	if err := e.fs.DeleteDirectory(ctx, path); err != nil {
		return err
	}

	e.logger.Info("Directory deleted successfully", log.Path("path", path))
	return nil
}
