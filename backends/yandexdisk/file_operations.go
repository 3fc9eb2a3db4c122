package yandexdisk

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/metadata"
)

// existenceFields keeps the existence check response as small as possible
var existenceFields = []string{"path"}

// FileExists reports whether anything exists at path. Client errors in the
// bad-request class are reported as false instead of an error.
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	location, err := a.normalize(path)
	if err != nil {
		return false, backends.UnableToRetrieveMetadata(path, backends.MetadataExistence, "", err)
	}

	if _, err := a.client.ListContent(ctx, location, existenceFields, false); err != nil {
		if a.isAbsent(err) {
			a.logger.Debug("Existence check found nothing",
				zap.String("path", location),
				zap.Error(err))
			return false, nil
		}
		return false, backends.UnableToRetrieveMetadata(location, backends.MetadataExistence, "", err)
	}

	return true, nil
}

// DirectoryExists is FileExists: the drive answers the same way for both kinds
func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	return a.FileExists(ctx, path)
}

// Write uploads contents to path, replacing any existing file
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg metadata.WriteConfig) error {
	return a.WriteStream(ctx, path, bytes.NewReader(contents), cfg)
}

// WriteStream uploads everything read from contents to path, replacing any
// existing file
func (a *Adapter) WriteStream(ctx context.Context, path string, contents io.Reader, _ metadata.WriteConfig) error {
	location, err := a.normalize(path)
	if err != nil {
		return backends.UnableToWriteFile(path, "", err)
	}

	if err := a.client.Upload(ctx, location, contents, true); err != nil {
		return backends.UnableToWriteFile(location, "", err)
	}
	return nil
}

// Read returns the full contents of the file at path
func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	stream, err := a.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		location, _ := a.normalize(path)
		return nil, backends.UnableToReadFile(location, "", err)
	}
	return data, nil
}

// ReadStream resolves a download link for path and opens it. The caller owns
// the returned stream.
func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	location, err := a.normalize(path)
	if err != nil {
		return nil, backends.UnableToReadFile(path, "", err)
	}

	link, err := a.client.GetDownloadURL(ctx, location, []string{"href"})
	if err != nil {
		return nil, backends.UnableToReadFile(location, "", err)
	}

	stream, err := a.opener.OpenURL(ctx, link.Href)
	if err != nil {
		return nil, backends.UnableToReadFile(location, "", fmt.Errorf("failed to open download link: %w", err))
	}
	return stream, nil
}

// Delete removes the file at path
func (a *Adapter) Delete(ctx context.Context, path string) error {
	location, err := a.normalize(path)
	if err != nil {
		return backends.UnableToDeleteFile(path, "", err)
	}

	if err := a.client.Remove(ctx, location); err != nil {
		return backends.UnableToDeleteFile(location, "", err)
	}
	return nil
}

// Move relocates source to destination
func (a *Adapter) Move(ctx context.Context, source, destination string, _ metadata.WriteConfig) error {
	from, to, err := a.normalizePair(source, destination)
	if err != nil {
		return backends.UnableToMoveFile(from, to, err)
	}

	if err := a.client.Move(ctx, from, to); err != nil {
		return backends.UnableToMoveFile(from, to, err)
	}
	return nil
}

// Copy duplicates source at destination
func (a *Adapter) Copy(ctx context.Context, source, destination string, _ metadata.WriteConfig) error {
	from, to, err := a.normalizePair(source, destination)
	if err != nil {
		return backends.UnableToCopyFile(from, to, err)
	}

	if err := a.client.Copy(ctx, from, to); err != nil {
		return backends.UnableToCopyFile(from, to, err)
	}
	return nil
}

// normalizePair normalizes both ends of a transfer. On failure the raw inputs
// are returned so the error still names both locations.
func (a *Adapter) normalizePair(source, destination string) (string, string, error) {
	from, err := a.normalize(source)
	if err != nil {
		return source, destination, err
	}
	to, err := a.normalize(destination)
	if err != nil {
		return source, destination, err
	}
	return from, to, nil
}
