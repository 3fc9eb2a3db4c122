package noop

import (
	"context"
	"io"
	"iter"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/metadata"
)

// NoopAdapter is a filesystem that fails every operation.
// It is used when the remote drive is not configured.
type NoopAdapter struct{}

// NewNoopAdapter creates a new noop filesystem
func NewNoopAdapter() backends.Filesystem {
	return &NoopAdapter{}
}

// FileExists always returns an error for noop backend
func (n *NoopAdapter) FileExists(ctx context.Context, path string) (bool, error) {
	return false, backends.UnableToRetrieveMetadata(path, backends.MetadataExistence, "", backends.ErrBackendNotEnabled)
}

// DirectoryExists always returns an error for noop backend
func (n *NoopAdapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	return n.FileExists(ctx, path)
}

// Write always returns an error for noop backend
func (n *NoopAdapter) Write(ctx context.Context, path string, contents []byte, cfg metadata.WriteConfig) error {
	return backends.UnableToWriteFile(path, "", backends.ErrBackendNotEnabled)
}

// WriteStream always returns an error for noop backend
func (n *NoopAdapter) WriteStream(ctx context.Context, path string, contents io.Reader, cfg metadata.WriteConfig) error {
	return backends.UnableToWriteFile(path, "", backends.ErrBackendNotEnabled)
}

// Read always returns an error for noop backend
func (n *NoopAdapter) Read(ctx context.Context, path string) ([]byte, error) {
	return nil, backends.UnableToReadFile(path, "", backends.ErrBackendNotEnabled)
}

// ReadStream always returns an error for noop backend
func (n *NoopAdapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	return nil, backends.UnableToReadFile(path, "", backends.ErrBackendNotEnabled)
}

// Delete always returns an error for noop backend
func (n *NoopAdapter) Delete(ctx context.Context, path string) error {
	return backends.UnableToDeleteFile(path, "", backends.ErrBackendNotEnabled)
}

// DeleteDirectory always returns an error for noop backend
func (n *NoopAdapter) DeleteDirectory(ctx context.Context, path string) error {
	return backends.UnableToDeleteDirectory(path, "", backends.ErrBackendNotEnabled)
}

// CreateDirectory always returns an error for noop backend
func (n *NoopAdapter) CreateDirectory(ctx context.Context, path string, cfg metadata.WriteConfig) error {
	return backends.UnableToCreateDirectory(path, "", backends.ErrBackendNotEnabled)
}

// SetVisibility always returns an error for noop backend
func (n *NoopAdapter) SetVisibility(ctx context.Context, path string, visibility metadata.Visibility) error {
	return backends.UnableToSetVisibility(path, "", backends.ErrBackendNotEnabled)
}

// Visibility always returns an error for noop backend
func (n *NoopAdapter) Visibility(ctx context.Context, path string) (metadata.FileAttributes, error) {
	return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(path, backends.MetadataVisibility, "", backends.ErrBackendNotEnabled)
}

// MimeType always returns an error for noop backend
func (n *NoopAdapter) MimeType(ctx context.Context, path string) (metadata.FileAttributes, error) {
	return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(path, backends.MetadataMimeType, "", backends.ErrBackendNotEnabled)
}

// LastModified always returns an error for noop backend
func (n *NoopAdapter) LastModified(ctx context.Context, path string) (metadata.FileAttributes, error) {
	return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(path, backends.MetadataLastModified, "", backends.ErrBackendNotEnabled)
}

// FileSize always returns an error for noop backend
func (n *NoopAdapter) FileSize(ctx context.Context, path string) (metadata.FileAttributes, error) {
	return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(path, backends.MetadataFileSize, "", backends.ErrBackendNotEnabled)
}

// Attributes always returns an error for noop backend
func (n *NoopAdapter) Attributes(ctx context.Context, path string) (metadata.StorageAttributes, error) {
	return nil, backends.UnableToRetrieveMetadata(path, backends.MetadataAttributes, "", backends.ErrBackendNotEnabled)
}

// ListContents yields a single error for noop backend
func (n *NoopAdapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[metadata.StorageAttributes, error] {
	return func(yield func(metadata.StorageAttributes, error) bool) {
		yield(nil, backends.UnableToRetrieveMetadata(path, backends.MetadataListing, "", backends.ErrBackendNotEnabled))
	}
}

// Move always returns an error for noop backend
func (n *NoopAdapter) Move(ctx context.Context, source, destination string, cfg metadata.WriteConfig) error {
	return backends.UnableToMoveFile(source, destination, backends.ErrBackendNotEnabled)
}

// Copy always returns an error for noop backend
func (n *NoopAdapter) Copy(ctx context.Context, source, destination string, cfg metadata.WriteConfig) error {
	return backends.UnableToCopyFile(source, destination, backends.ErrBackendNotEnabled)
}
