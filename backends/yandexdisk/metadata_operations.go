package yandexdisk

import (
	"context"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/metadata"
)

var attributeFields = []string{"path", "type", "size", "modified", "mime_type"}

// SetVisibility always fails: the drive has no visibility controls
func (a *Adapter) SetVisibility(_ context.Context, path string, _ metadata.Visibility) error {
	location, err := a.normalize(path)
	if err != nil {
		location = path
	}
	return backends.UnableToSetVisibility(location, "the remote drive does not support visibility controls", backends.ErrVisibilityNotSupported)
}

// Visibility returns attributes carrying only the path. The visibility is
// reported as absent rather than as an error.
func (a *Adapter) Visibility(_ context.Context, path string) (metadata.FileAttributes, error) {
	location, err := a.normalize(path)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(path, backends.MetadataVisibility, "", err)
	}
	return metadata.NewFileAttributes(location), nil
}

// MimeType infers the mime type from path alone; the drive is not contacted
func (a *Adapter) MimeType(_ context.Context, path string) (metadata.FileAttributes, error) {
	location, err := a.normalize(path)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(path, backends.MetadataMimeType, "", err)
	}
	return metadata.NewFileAttributes(location,
		metadata.WithMimeType(a.detector.DetectMimeTypeFromPath(location))), nil
}

// LastModified returns the modification time of path
func (a *Adapter) LastModified(ctx context.Context, path string) (metadata.FileAttributes, error) {
	location, err := a.normalize(path)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(path, backends.MetadataLastModified, "", err)
	}

	res, err := a.client.ListContent(ctx, location, []string{"modified"}, false)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(location, backends.MetadataLastModified, "", err)
	}

	if t, ok := res.ModifiedTime(); ok {
		return metadata.NewFileAttributes(location, metadata.WithLastModified(t.Unix())), nil
	}
	return metadata.NewFileAttributes(location), nil
}

// FileSize returns the size of the file at path
func (a *Adapter) FileSize(ctx context.Context, path string) (metadata.FileAttributes, error) {
	location, err := a.normalize(path)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(path, backends.MetadataFileSize, "", err)
	}

	res, err := a.client.ListContent(ctx, location, []string{"size"}, false)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(location, backends.MetadataFileSize, "", err)
	}

	if res.Size != nil {
		return metadata.NewFileAttributes(location, metadata.WithFileSize(*res.Size)), nil
	}
	return metadata.NewFileAttributes(location), nil
}

// Attributes returns a snapshot of the file or directory at path
func (a *Adapter) Attributes(ctx context.Context, path string) (metadata.StorageAttributes, error) {
	location, err := a.normalize(path)
	if err != nil {
		return nil, backends.UnableToRetrieveMetadata(path, backends.MetadataAttributes, "", err)
	}

	res, err := a.client.ListContent(ctx, location, attributeFields, false)
	if err != nil {
		return nil, backends.UnableToRetrieveMetadata(location, backends.MetadataAttributes, "", err)
	}
	return a.toAttributes(location, res), nil
}
