// Package yandexdisk implements backends.Filesystem on top of the remote drive
// REST API. The adapter normalizes paths, translates each operation into client
// calls and turns client failures into backends.OperationError values. It does
// not cache, retry or buffer.
package yandexdisk

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/internal/diskapi"
	"github.com/ebogdum/diskfs/internal/mimetype"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

// Client is the remote drive API consumed by the adapter
type Client interface {
	ListContent(ctx context.Context, path string, fields []string, deep bool) (*diskapi.Resource, error)
	Upload(ctx context.Context, path string, body io.Reader, overwrite bool) error
	Remove(ctx context.Context, path string) error
	AddDirectory(ctx context.Context, path string) error
	Move(ctx context.Context, from, to string) error
	Copy(ctx context.Context, from, to string) error
	GetDownloadURL(ctx context.Context, path string, fields []string) (*diskapi.Link, error)
	PathPrefix() string
}

// URLOpener opens a read-only stream on a download link
type URLOpener interface {
	OpenURL(ctx context.Context, href string) (io.ReadCloser, error)
}

var (
	_ Client              = (*diskapi.Client)(nil)
	_ URLOpener           = (*diskapi.Client)(nil)
	_ backends.Filesystem = (*Adapter)(nil)
)

// Adapter implements backends.Filesystem for the remote drive
type Adapter struct {
	client          Client
	opener          URLOpener
	normalizer      pathutil.Normalizer
	detector        mimetype.Detector
	strictExistence bool
	logger          *zap.Logger
}

// Option configures an Adapter
type Option func(*Adapter)

// WithNormalizer replaces the default path normalizer
func WithNormalizer(n pathutil.Normalizer) Option {
	return func(a *Adapter) {
		a.normalizer = n
	}
}

// WithMimeDetector replaces the default extension based mime detector
func WithMimeDetector(d mimetype.Detector) Option {
	return func(a *Adapter) {
		a.detector = d
	}
}

// WithURLOpener sets the opener used for download links. By default the client
// itself is used when it implements URLOpener.
func WithURLOpener(o URLOpener) Option {
	return func(a *Adapter) {
		a.opener = o
	}
}

// WithLogger sets the adapter logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithStrictExistence makes existence checks report false only for not-found
// answers. Other client errors are returned as metadata failures.
func WithStrictExistence(strict bool) Option {
	return func(a *Adapter) {
		a.strictExistence = strict
	}
}

// New creates an adapter over client
func New(client Client, opts ...Option) (*Adapter, error) {
	if client == nil {
		return nil, errors.New("yandexdisk: client is required")
	}

	a := &Adapter{
		client:     client,
		normalizer: pathutil.NewWhitespaceNormalizer(),
		detector:   mimetype.NewExtensionDetector(nil),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.opener == nil {
		opener, ok := client.(URLOpener)
		if !ok {
			return nil, errors.New("yandexdisk: client cannot open download links and no URL opener was given")
		}
		a.opener = opener
	}
	if a.normalizer == nil || a.detector == nil || a.logger == nil {
		return nil, errors.New("yandexdisk: normalizer, mime detector and logger must not be nil")
	}

	return a, nil
}

func (a *Adapter) normalize(path string) (string, error) {
	return a.normalizer.NormalizePath(path)
}

// entryPath turns a path reported by the drive into a normalized path
func (a *Adapter) entryPath(raw string) (string, error) {
	if prefix := a.client.PathPrefix(); prefix != "" {
		raw = strings.TrimPrefix(raw, prefix)
	}
	return a.normalize(raw)
}

// isAbsent reports whether a failed existence check means "nothing there"
func (a *Adapter) isAbsent(err error) bool {
	if backends.IsOperation(err, backends.OpCheckExistence) {
		return true
	}
	if a.strictExistence {
		return errors.Is(err, diskapi.ErrNotFound)
	}
	return errors.Is(err, diskapi.ErrBadRequest)
}

// toAttributes converts a drive resource into an attribute snapshot at path
func (a *Adapter) toAttributes(path string, r *diskapi.Resource) metadata.StorageAttributes {
	var modified *int64
	if t, ok := r.ModifiedTime(); ok {
		ts := t.Unix()
		modified = &ts
	}

	if r.IsDir() {
		return metadata.NewDirectoryAttributes(path, modified)
	}

	mimeType := r.MimeType
	if mimeType == "" {
		mimeType = a.detector.DetectMimeTypeFromPath(path)
	}
	opts := []metadata.FileOption{metadata.WithMimeType(mimeType)}
	if r.Size != nil {
		opts = append(opts, metadata.WithFileSize(*r.Size))
	}
	if modified != nil {
		opts = append(opts, metadata.WithLastModified(*modified))
	}
	return metadata.NewFileAttributes(path, opts...)
}
