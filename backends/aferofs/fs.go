// Package aferofs exposes a backends.Filesystem as an afero.Fs, so tools written
// against afero (walkers, copy helpers, test fixtures) can operate on a drive.
//
// Reads stream lazily from the backend; writes are piped into WriteStream and
// committed on Close. Permission, ownership and timestamp changes are not
// supported.
package aferofs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

// Fs adapts a backends.Filesystem to afero.Fs
type Fs struct {
	ctx        context.Context
	fs         backends.Filesystem
	normalizer pathutil.Normalizer
}

var _ afero.Fs = (*Fs)(nil)

// New creates an afero view of filesystem. Every backend call made through
// the view uses ctx.
func New(ctx context.Context, filesystem backends.Filesystem) *Fs {
	return &Fs{
		ctx:        ctx,
		fs:         filesystem,
		normalizer: pathutil.NewWhitespaceNormalizer(),
	}
}

// Name implements afero.Fs
func (f *Fs) Name() string {
	return "diskfs"
}

// Create creates or truncates the named file for writing
func (f *Fs) Create(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

// Mkdir creates a single directory; it fails when name exists
func (f *Fs) Mkdir(name string, perm os.FileMode) error {
	p, err := f.clean("mkdir", name)
	if err != nil {
		return err
	}
	if p == "" {
		return &fs.PathError{Op: "mkdir", Path: name, Err: fs.ErrExist}
	}

	exists, err := f.fs.FileExists(f.ctx, p)
	if err != nil {
		return pathError("mkdir", name, err)
	}
	if exists {
		return &fs.PathError{Op: "mkdir", Path: name, Err: fs.ErrExist}
	}

	if err := f.fs.CreateDirectory(f.ctx, p, metadata.WriteConfig{}); err != nil {
		return pathError("mkdir", name, err)
	}
	return nil
}

// MkdirAll creates name and any missing parents
func (f *Fs) MkdirAll(name string, perm os.FileMode) error {
	p, err := f.clean("mkdir", name)
	if err != nil {
		return err
	}

	current := ""
	for _, segment := range splitPath(p) {
		current = path.Join(current, segment)

		attrs, err := f.fs.Attributes(f.ctx, current)
		switch {
		case err == nil && attrs.IsDir():
			continue
		case err == nil:
			return &fs.PathError{Op: "mkdir", Path: current, Err: syscall.ENOTDIR}
		case !errors.Is(err, fs.ErrNotExist):
			return pathError("mkdir", current, err)
		}

		if err := f.fs.CreateDirectory(f.ctx, current, metadata.WriteConfig{}); err != nil {
			return pathError("mkdir", current, err)
		}
	}
	return nil
}

// Open opens the named file or directory for reading
func (f *Fs) Open(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens name with flag. Write-only opens always replace the whole
// file; read-write and append opens are not supported.
func (f *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	p, err := f.clean("open", name)
	if err != nil {
		return nil, err
	}

	switch {
	case flag&os.O_RDWR != 0, flag&os.O_APPEND != 0:
		return nil, &fs.PathError{Op: "open", Path: name, Err: errors.ErrUnsupported}
	case flag&os.O_WRONLY != 0:
		return f.openForWrite(name, p, flag)
	}

	attrs, err := f.fs.Attributes(f.ctx, p)
	if err != nil {
		return nil, pathError("open", name, err)
	}
	if attrs.IsDir() {
		return newDirFile(f, name, p, attrs), nil
	}
	return newReadFile(f, name, p, attrs), nil
}

func (f *Fs) openForWrite(name, p string, flag int) (afero.File, error) {
	if p == "" {
		return nil, &fs.PathError{Op: "open", Path: name, Err: syscall.EISDIR}
	}

	attrs, err := f.fs.Attributes(f.ctx, p)
	switch {
	case err == nil && attrs.IsDir():
		return nil, &fs.PathError{Op: "open", Path: name, Err: syscall.EISDIR}
	case err == nil && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrExist}
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return nil, pathError("open", name, err)
	case err != nil && flag&os.O_CREATE == 0:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	return newWriteFile(f, name, p), nil
}

// Remove removes a file or an empty directory
func (f *Fs) Remove(name string) error {
	p, err := f.clean("remove", name)
	if err != nil {
		return err
	}
	if p == "" {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrPermission}
	}

	attrs, err := f.fs.Attributes(f.ctx, p)
	if err != nil {
		return pathError("remove", name, err)
	}

	if !attrs.IsDir() {
		return pathError("remove", name, f.fs.Delete(f.ctx, p))
	}

	for _, err := range f.fs.ListContents(f.ctx, p, false) {
		if err != nil {
			return pathError("remove", name, err)
		}
		return &fs.PathError{Op: "remove", Path: name, Err: syscall.ENOTEMPTY}
	}
	return pathError("remove", name, f.fs.DeleteDirectory(f.ctx, p))
}

// RemoveAll removes name and everything below it. A missing name is not an error.
func (f *Fs) RemoveAll(name string) error {
	p, err := f.clean("removeall", name)
	if err != nil {
		return err
	}
	if p == "" {
		return &fs.PathError{Op: "removeall", Path: name, Err: fs.ErrPermission}
	}

	attrs, err := f.fs.Attributes(f.ctx, p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return pathError("removeall", name, err)
	}

	if attrs.IsDir() {
		return pathError("removeall", name, f.fs.DeleteDirectory(f.ctx, p))
	}
	return pathError("removeall", name, f.fs.Delete(f.ctx, p))
}

// Rename moves oldname to newname
func (f *Fs) Rename(oldname, newname string) error {
	from, err := f.clean("rename", oldname)
	if err != nil {
		return err
	}
	to, err := f.clean("rename", newname)
	if err != nil {
		return err
	}

	if err := f.fs.Move(f.ctx, from, to, metadata.WriteConfig{}); err != nil {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: unwrapBackend(err)}
	}
	return nil
}

// Stat returns a FileInfo describing name
func (f *Fs) Stat(name string) (os.FileInfo, error) {
	p, err := f.clean("stat", name)
	if err != nil {
		return nil, err
	}

	attrs, err := f.fs.Attributes(f.ctx, p)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	return newFileInfo(attrs), nil
}

// Chmod is not supported
func (f *Fs) Chmod(name string, mode os.FileMode) error {
	return &fs.PathError{Op: "chmod", Path: name, Err: errors.ErrUnsupported}
}

// Chown is not supported
func (f *Fs) Chown(name string, uid, gid int) error {
	return &fs.PathError{Op: "chown", Path: name, Err: errors.ErrUnsupported}
}

// Chtimes is not supported
func (f *Fs) Chtimes(name string, atime, mtime time.Time) error {
	return &fs.PathError{Op: "chtimes", Path: name, Err: errors.ErrUnsupported}
}

func (f *Fs) clean(op, name string) (string, error) {
	p, err := f.normalizer.NormalizePath(name)
	if err != nil {
		return "", &fs.PathError{Op: op, Path: name, Err: err}
	}
	return p, nil
}

// pathError wraps a backend failure the way the os package reports errors.
// A nil err stays nil.
func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return &fs.PathError{Op: op, Path: name, Err: unwrapBackend(err)}
}

// unwrapBackend reduces well-known backend failures to the fs sentinels so
// os.IsNotExist and friends keep working
func unwrapBackend(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fs.ErrNotExist
	case errors.Is(err, fs.ErrExist):
		return fs.ErrExist
	case errors.Is(err, fs.ErrPermission):
		return fs.ErrPermission
	}
	return err
}

func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
