// Package localfs implements backends.Filesystem on an afero.Fs. It serves the
// local and in-memory backends and mirrors the remote drive's semantics where
// they differ from a POSIX filesystem.
package localfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/internal/mimetype"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

var _ backends.Filesystem = (*LocalFSAdapter)(nil)

// LocalFSAdapter implements backends.Filesystem over an afero.Fs
type LocalFSAdapter struct {
	fs         afero.Fs
	normalizer pathutil.Normalizer
	detector   mimetype.Detector
}

// NewLocalFSAdapter creates an adapter rooted at rootPath on the local disk
func NewLocalFSAdapter(rootPath string) (*LocalFSAdapter, error) {
	osFs := afero.NewOsFs()

	// Ensure root path exists
	if err := osFs.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root path %s: %w", rootPath, err)
	}
	if _, err := osFs.Stat(rootPath); err != nil {
		return nil, fmt.Errorf("root path %s is not accessible: %w", rootPath, err)
	}

	return New(afero.NewBasePathFs(osFs, rootPath)), nil
}

// NewMemoryAdapter creates an adapter over an empty in-memory filesystem
func NewMemoryAdapter() *LocalFSAdapter {
	return New(afero.NewMemMapFs())
}

// New creates an adapter over fsys
func New(fsys afero.Fs) *LocalFSAdapter {
	return &LocalFSAdapter{
		fs:         fsys,
		normalizer: pathutil.NewWhitespaceNormalizer(),
		detector:   mimetype.NewExtensionDetector(nil),
	}
}

// name converts a normalized path into an afero name
func name(normalized string) string {
	return pathutil.ToAbsolute(normalized)
}

// FileExists reports whether anything exists at path
func (a *LocalFSAdapter) FileExists(ctx context.Context, path string) (bool, error) {
	location, err := a.normalizer.NormalizePath(path)
	if err != nil {
		return false, backends.UnableToRetrieveMetadata(path, backends.MetadataExistence, "", err)
	}

	ok, err := afero.Exists(a.fs, name(location))
	if err != nil {
		return false, backends.UnableToRetrieveMetadata(location, backends.MetadataExistence, "", err)
	}
	return ok, nil
}

// DirectoryExists is FileExists, matching the remote drive
func (a *LocalFSAdapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	return a.FileExists(ctx, path)
}

// Write stores contents at path, creating parent directories
func (a *LocalFSAdapter) Write(ctx context.Context, path string, contents []byte, cfg metadata.WriteConfig) error {
	return a.WriteStream(ctx, path, bytes.NewReader(contents), cfg)
}

// WriteStream stores everything read from contents at path
func (a *LocalFSAdapter) WriteStream(ctx context.Context, path string, contents io.Reader, _ metadata.WriteConfig) error {
	location, err := a.normalizer.NormalizePath(path)
	if err != nil {
		return backends.UnableToWriteFile(path, "", err)
	}
	if location == "" {
		return backends.UnableToWriteFile(location, "the root is a directory", fs.ErrInvalid)
	}

	if err := afero.WriteReader(a.fs, name(location), contents); err != nil {
		// Clean up partially written file
		_ = a.fs.Remove(name(location))
		return backends.UnableToWriteFile(location, "", err)
	}
	return nil
}

// Read returns the full contents of the file at path
func (a *LocalFSAdapter) Read(ctx context.Context, path string) ([]byte, error) {
	stream, err := a.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, backends.UnableToReadFile(path, "", err)
	}
	return data, nil
}

// ReadStream opens the file at path for reading
func (a *LocalFSAdapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	location, err := a.normalizer.NormalizePath(path)
	if err != nil {
		return nil, backends.UnableToReadFile(path, "", err)
	}

	file, err := a.fs.Open(name(location))
	if err != nil {
		return nil, backends.UnableToReadFile(location, "", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, backends.UnableToReadFile(location, "", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, backends.UnableToReadFile(location, "path is a directory", fs.ErrInvalid)
	}

	return file, nil
}

// Delete removes the file or directory at path
func (a *LocalFSAdapter) Delete(ctx context.Context, path string) error {
	location, err := a.normalizer.NormalizePath(path)
	if err != nil {
		return backends.UnableToDeleteFile(path, "", err)
	}
	if err := a.remove(location); err != nil {
		return backends.UnableToDeleteFile(location, "", err)
	}
	return nil
}

// DeleteDirectory removes the directory at path with everything below it
func (a *LocalFSAdapter) DeleteDirectory(ctx context.Context, path string) error {
	location, err := a.normalizer.NormalizePath(path)
	if err != nil {
		return backends.UnableToDeleteDirectory(path, "", err)
	}
	if err := a.remove(location); err != nil {
		return backends.UnableToDeleteDirectory(location, "", err)
	}
	return nil
}

// remove deletes location recursively. Missing paths are an error, as on the drive.
func (a *LocalFSAdapter) remove(location string) error {
	if location == "" {
		return fmt.Errorf("refusing to delete the root: %w", fs.ErrPermission)
	}
	if _, err := a.fs.Stat(name(location)); err != nil {
		return err
	}
	return a.fs.RemoveAll(name(location))
}

// CreateDirectory creates a directory at path. The parent must exist.
func (a *LocalFSAdapter) CreateDirectory(ctx context.Context, path string, _ metadata.WriteConfig) error {
	location, err := a.normalizer.NormalizePath(path)
	if err != nil {
		return backends.UnableToCreateDirectory(path, "", err)
	}
	if err := a.fs.Mkdir(name(location), 0o755); err != nil {
		return backends.UnableToCreateDirectory(location, "", err)
	}
	return nil
}

// SetVisibility always fails: visibility is not modelled
func (a *LocalFSAdapter) SetVisibility(ctx context.Context, path string, _ metadata.Visibility) error {
	return backends.UnableToSetVisibility(path, "the local backend does not support visibility controls", backends.ErrVisibilityNotSupported)
}

// Visibility returns attributes carrying only the path
func (a *LocalFSAdapter) Visibility(ctx context.Context, path string) (metadata.FileAttributes, error) {
	location, err := a.normalizer.NormalizePath(path)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(path, backends.MetadataVisibility, "", err)
	}
	return metadata.NewFileAttributes(location), nil
}

// MimeType infers the mime type from path
func (a *LocalFSAdapter) MimeType(ctx context.Context, path string) (metadata.FileAttributes, error) {
	location, err := a.normalizer.NormalizePath(path)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(path, backends.MetadataMimeType, "", err)
	}
	return metadata.NewFileAttributes(location,
		metadata.WithMimeType(a.detector.DetectMimeTypeFromPath(location))), nil
}

// LastModified returns the modification time of path
func (a *LocalFSAdapter) LastModified(ctx context.Context, path string) (metadata.FileAttributes, error) {
	location, info, err := a.stat(path)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(location, backends.MetadataLastModified, "", err)
	}
	return metadata.NewFileAttributes(location, metadata.WithLastModified(info.ModTime().Unix())), nil
}

// FileSize returns the size of the file at path
func (a *LocalFSAdapter) FileSize(ctx context.Context, path string) (metadata.FileAttributes, error) {
	location, info, err := a.stat(path)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(location, backends.MetadataFileSize, "", err)
	}
	if info.IsDir() {
		return metadata.NewFileAttributes(location), nil
	}
	return metadata.NewFileAttributes(location, metadata.WithFileSize(info.Size())), nil
}

// Attributes returns a snapshot of the file or directory at path
func (a *LocalFSAdapter) Attributes(ctx context.Context, path string) (metadata.StorageAttributes, error) {
	location, info, err := a.stat(path)
	if err != nil {
		return nil, backends.UnableToRetrieveMetadata(location, backends.MetadataAttributes, "", err)
	}
	return a.toAttributes(location, info), nil
}

// stat normalizes path and stats it. On normalization failure the raw path is returned.
func (a *LocalFSAdapter) stat(path string) (string, os.FileInfo, error) {
	location, err := a.normalizer.NormalizePath(path)
	if err != nil {
		return path, nil, err
	}
	info, err := a.fs.Stat(name(location))
	if err != nil {
		return location, nil, err
	}
	return location, info, nil
}

func (a *LocalFSAdapter) toAttributes(location string, info os.FileInfo) metadata.StorageAttributes {
	modified := info.ModTime().Unix()
	if info.IsDir() {
		return metadata.NewDirectoryAttributes(location, &modified)
	}
	return metadata.NewFileAttributes(location,
		metadata.WithFileSize(info.Size()),
		metadata.WithLastModified(modified),
		metadata.WithMimeType(a.detector.DetectMimeTypeFromPath(location)))
}

// ListContents enumerates the entries below path in lexical order. The
// sequence can be ranged over once.
func (a *LocalFSAdapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[metadata.StorageAttributes, error] {
	var consumed atomic.Bool

	return func(yield func(metadata.StorageAttributes, error) bool) {
		if consumed.Swap(true) {
			yield(nil, backends.UnableToRetrieveMetadata(path, backends.MetadataListing, "", backends.ErrListingConsumed))
			return
		}

		base, err := a.normalizer.NormalizePath(path)
		if err != nil {
			yield(nil, backends.UnableToRetrieveMetadata(path, backends.MetadataListing, "", err))
			return
		}

		if !deep {
			entries, err := afero.ReadDir(a.fs, name(base))
			if err != nil {
				yield(nil, backends.UnableToRetrieveMetadata(base, backends.MetadataListing, "", err))
				return
			}
			for _, info := range entries {
				if ctx.Err() != nil {
					yield(nil, backends.UnableToRetrieveMetadata(base, backends.MetadataListing, "", ctx.Err()))
					return
				}
				if !yield(a.toAttributes(join(base, info.Name()), info), nil) {
					return
				}
			}
			return
		}

		stopped := false
		err = afero.Walk(a.fs, name(base), func(walked string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			entry := strings.TrimPrefix(filepath.ToSlash(walked), "/")
			if entry == base {
				return nil
			}
			if !yield(a.toAttributes(entry, info), nil) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil && !stopped {
			yield(nil, backends.UnableToRetrieveMetadata(base, backends.MetadataListing, "", err))
		}
	}
}

func join(base, child string) string {
	if base == "" {
		return child
	}
	return base + "/" + child
}

// Move relocates source to destination. The destination must not exist.
func (a *LocalFSAdapter) Move(ctx context.Context, source, destination string, _ metadata.WriteConfig) error {
	from, to, err := a.transferPaths(source, destination)
	if err != nil {
		return backends.UnableToMoveFile(from, to, err)
	}
	if err := a.fs.Rename(name(from), name(to)); err != nil {
		return backends.UnableToMoveFile(from, to, err)
	}
	return nil
}

// Copy duplicates source at destination. Directories are copied recursively.
func (a *LocalFSAdapter) Copy(ctx context.Context, source, destination string, _ metadata.WriteConfig) error {
	from, to, err := a.transferPaths(source, destination)
	if err != nil {
		return backends.UnableToCopyFile(from, to, err)
	}

	err = afero.Walk(a.fs, name(from), func(walked string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(filepath.ToSlash(walked), name(from)), "/")
		target := name(to)
		if rel != "" {
			target = name(join(to, rel))
		}
		if info.IsDir() {
			return a.fs.Mkdir(target, 0o755)
		}
		return a.copyFile(walked, target)
	})
	if err != nil {
		return backends.UnableToCopyFile(from, to, err)
	}
	return nil
}

func (a *LocalFSAdapter) copyFile(src, dst string) error {
	in, err := a.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := a.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// transferPaths normalizes both ends of a move or copy and checks that the
// source exists, the destination does not, and the destination parent does.
func (a *LocalFSAdapter) transferPaths(source, destination string) (string, string, error) {
	from, err := a.normalizer.NormalizePath(source)
	if err != nil {
		return source, destination, err
	}
	to, err := a.normalizer.NormalizePath(destination)
	if err != nil {
		return source, destination, err
	}

	if from == "" || to == "" || to == from || strings.HasPrefix(to, from+"/") {
		return from, to, fmt.Errorf("cannot transfer %q to %q: %w", from, to, fs.ErrInvalid)
	}
	if _, err := a.fs.Stat(name(from)); err != nil {
		return from, to, err
	}
	if _, err := a.fs.Stat(name(to)); err == nil {
		return from, to, fs.ErrExist
	}
	if dir := filepath.ToSlash(filepath.Dir(name(to))); dir != "/" {
		if _, err := a.fs.Stat(dir); err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}
