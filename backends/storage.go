// Package backends provides the filesystem contract implemented by diskfs storage
// adapters and the typed failures those adapters return.
package backends

import (
	"context"
	"io"
	"iter"

	"github.com/ebogdum/diskfs/metadata"
)

// Filesystem defines the file-oriented operations a storage adapter exposes.
// Paths are normalized by the implementation before use.
type Filesystem interface {
	// FileExists reports whether anything exists at path
	FileExists(ctx context.Context, path string) (bool, error)

	// DirectoryExists reports whether a directory exists at path
	DirectoryExists(ctx context.Context, path string) (bool, error)

	// Write stores contents at path, replacing any existing file
	Write(ctx context.Context, path string, contents []byte, cfg metadata.WriteConfig) error

	// WriteStream stores everything read from contents at path, replacing any existing file
	WriteStream(ctx context.Context, path string, contents io.Reader, cfg metadata.WriteConfig) error

	// Read returns the full contents of the file at path
	Read(ctx context.Context, path string) ([]byte, error)

	// ReadStream opens the file at path for reading. The caller must close it.
	ReadStream(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the file at path
	Delete(ctx context.Context, path string) error

	// DeleteDirectory removes the directory at path and everything below it
	DeleteDirectory(ctx context.Context, path string) error

	// CreateDirectory creates a directory at path
	CreateDirectory(ctx context.Context, path string, cfg metadata.WriteConfig) error

	// SetVisibility changes the visibility of path
	SetVisibility(ctx context.Context, path string, visibility metadata.Visibility) error

	// Visibility returns the visibility of path
	Visibility(ctx context.Context, path string) (metadata.FileAttributes, error)

	// MimeType returns the mime type of path
	MimeType(ctx context.Context, path string) (metadata.FileAttributes, error)

	// LastModified returns the modification time of path
	LastModified(ctx context.Context, path string) (metadata.FileAttributes, error)

	// FileSize returns the size of the file at path
	FileSize(ctx context.Context, path string) (metadata.FileAttributes, error)

	// Attributes returns a full metadata snapshot of path
	Attributes(ctx context.Context, path string) (metadata.StorageAttributes, error)

	// ListContents lazily enumerates the entries below path, recursively when deep
	// is set. The sequence can be ranged over once.
	ListContents(ctx context.Context, path string, deep bool) iter.Seq2[metadata.StorageAttributes, error]

	// Move relocates source to destination
	Move(ctx context.Context, source, destination string, cfg metadata.WriteConfig) error

	// Copy duplicates source at destination
	Copy(ctx context.Context, source, destination string, cfg metadata.WriteConfig) error
}
