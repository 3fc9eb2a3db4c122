package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/metadata"
)

// Metadata fields accepted by Metadata
const (
	FieldSize         = "size"
	FieldLastModified = "last_modified"
	FieldMimeType     = "mime_type"
	FieldVisibility   = "visibility"
)

// Exists reports whether anything exists at path
func (e *Engine) Exists(ctx context.Context, path string) (ok bool, err error) {
	defer func(start time.Time) { e.observe("exists", start, err) }(time.Now())
	return e.fs.FileExists(ctx, path)
}

// Stat returns the attributes of path
func (e *Engine) Stat(ctx context.Context, path string) (attrs metadata.StorageAttributes, err error) {
	defer func(start time.Time) { e.observe("stat", start, err) }(time.Now())
	return e.fs.Attributes(ctx, path)
}

// Describe is Stat with the mime type of files filled in when it can be inferred
func (e *Engine) Describe(ctx context.Context, path string) (attrs metadata.StorageAttributes, err error) {
	defer func(start time.Time) { e.observe("describe", start, err) }(time.Now())

	attrs, err = e.fs.Attributes(ctx, path)
	if err != nil {
		return nil, err
	}

	if file, ok := attrs.(metadata.FileAttributes); ok {
		return e.fillMimeType(ctx, path, file), nil
	}
	return attrs, nil
}

// Metadata retrieves a single metadata field of path
func (e *Engine) Metadata(ctx context.Context, path, field string) (attrs metadata.FileAttributes, err error) {
	defer func(start time.Time) { e.observe("metadata_"+field, start, err) }(time.Now())

	switch field {
	case FieldSize:
		return e.fs.FileSize(ctx, path)
	case FieldLastModified:
		return e.fs.LastModified(ctx, path)
	case FieldMimeType:
		return e.fs.MimeType(ctx, path)
	case FieldVisibility:
		return e.fs.Visibility(ctx, path)
	default:
		return metadata.FileAttributes{}, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
}

// OpenFile opens the file at path for streaming. The returned attributes carry
// a mime type whenever one can be inferred. The caller must close the stream.
func (e *Engine) OpenFile(ctx context.Context, path string) (rc io.ReadCloser, file metadata.FileAttributes, err error) {
	defer func(start time.Time) { e.observe("open", start, err) }(time.Now())

	attrs, err := e.fs.Attributes(ctx, path)
	if err != nil {
		return nil, metadata.FileAttributes{}, err
	}

	file, ok := attrs.(metadata.FileAttributes)
	if !ok {
		return nil, metadata.FileAttributes{}, fmt.Errorf("cannot open %s: %w", attrs.Path(), ErrIsDirectory)
	}

	file = e.fillMimeType(ctx, path, file)

	rc, err = e.fs.ReadStream(ctx, path)
	if err != nil {
		return nil, metadata.FileAttributes{}, err
	}

	e.logger.Debug("File opened successfully",
		log.Path("path", file.Path()))

	return rc, file, nil
}

func (e *Engine) fillMimeType(ctx context.Context, path string, file metadata.FileAttributes) metadata.FileAttributes {
	if _, known := file.MimeType(); known {
		return file
	}
	if mt, err := e.fs.MimeType(ctx, path); err == nil {
		return withMimeType(file, mt)
	}
	return file
}

// withMimeType copies the mime type of mt into file
func withMimeType(file, mt metadata.FileAttributes) metadata.FileAttributes {
	mimeType, ok := mt.MimeType()
	if !ok {
		return file
	}

	opts := []metadata.FileOption{metadata.WithMimeType(mimeType)}
	if size, ok := file.FileSize(); ok {
		opts = append(opts, metadata.WithFileSize(size))
	}
	if ts, ok := file.LastModified(); ok {
		opts = append(opts, metadata.WithLastModified(ts))
	}
	if v, ok := file.Visibility(); ok {
		opts = append(opts, metadata.WithVisibility(v))
	}
	return metadata.NewFileAttributes(file.Path(), opts...)
}

// ReadFile returns the whole file at path
func (e *Engine) ReadFile(ctx context.Context, path string) (data []byte, err error) {
	defer func(start time.Time) { e.observe("read", start, err) }(time.Now())
	return e.fs.Read(ctx, path)
}

// PutFile streams reader to path, replacing any existing file
func (e *Engine) PutFile(ctx context.Context, path string, reader io.Reader, cfg metadata.WriteConfig) (err error) {
	defer func(start time.Time) { e.observe("write", start, err) }(time.Now())

	release, err := e.lock(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for %s: %w", path, err)
	}
	defer release()

	counter := &countingReader{r: reader}
	if err := e.fs.WriteStream(ctx, path, counter, cfg); err != nil {
		return err
	}

	e.logger.Info("File written successfully",
		log.Path("path", path),
		log.Size("size", counter.n))

	return nil
}

// WriteFile stores data at path, replacing any existing file
func (e *Engine) WriteFile(ctx context.Context, path string, data []byte, cfg metadata.WriteConfig) (err error) {
	defer func(start time.Time) { e.observe("write", start, err) }(time.Now())

	release, err := e.lock(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for %s: %w", path, err)
	}
	defer release()

	if err := e.fs.Write(ctx, path, data, cfg); err != nil {
		return err
	}

	e.logger.Info("File written successfully",
		log.Path("path", path),
		log.Size("size", int64(len(data))))

	return nil
}

// DeleteFile removes the file at path
func (e *Engine) DeleteFile(ctx context.Context, path string) (err error) {
	defer func(start time.Time) { e.observe("delete", start, err) }(time.Now())

	release, err := e.lock(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for %s: %w", path, err)
	}
	defer release()

	if err := e.fs.Delete(ctx, path); err != nil {
		return err
	}

	e.logger.Info("File deleted successfully", log.Path("path", path))
	return nil
}

// Move relocates source to destination
func (e *Engine) Move(ctx context.Context, source, destination string, cfg metadata.WriteConfig) (err error) {
	defer func(start time.Time) { e.observe("move", start, err) }(time.Now())

	release, err := e.lock(ctx, source, destination)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for move: %w", err)
	}
	defer release()

	if err := e.fs.Move(ctx, source, destination, cfg); err != nil {
		return err
	}

	e.logger.Info("Moved successfully",
		log.Path("source", source),
		log.Path("destination", destination))
	return nil
}

// Copy duplicates source at destination
func (e *Engine) Copy(ctx context.Context, source, destination string, cfg metadata.WriteConfig) (err error) {
	defer func(start time.Time) { e.observe("copy", start, err) }(time.Now())

	release, err := e.lock(ctx, destination)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for copy: %w", err)
	}
	defer release()

	if err := e.fs.Copy(ctx, source, destination, cfg); err != nil {
		return err
	}

	e.logger.Info("Copied successfully",
		log.Path("source", source),
		log.Path("destination", destination))
	return nil
}

// SetVisibility changes the visibility of path
func (e *Engine) SetVisibility(ctx context.Context, path string, visibility metadata.Visibility) (err error) {
	defer func(start time.Time) { e.observe("set_visibility", start, err) }(time.Now())

	err = e.fs.SetVisibility(ctx, path, visibility)
	if err != nil && backends.IsOperation(err, backends.OpSetVisibility) {
		e.logger.Debug("Visibility change rejected",
			log.Path("path", path),
			zap.String("visibility", string(visibility)))
	}
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
