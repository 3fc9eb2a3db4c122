package aferofs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"sync"
	"syscall"
	"time"

	"github.com/ebogdum/diskfs/metadata"
)

// fileInfo describes a backend entry as an os.FileInfo
type fileInfo struct {
	name    string
	size    int64
	modTime time.Time
	dir     bool
}

func newFileInfo(attrs metadata.StorageAttributes) *fileInfo {
	info := &fileInfo{
		name: path.Base(attrs.Path()),
		dir:  attrs.IsDir(),
	}
	if attrs.Path() == "" {
		info.name = "/"
	}
	if ts, ok := attrs.LastModified(); ok {
		info.modTime = time.Unix(ts, 0)
	}
	if file, ok := attrs.(metadata.FileAttributes); ok {
		if size, ok := file.FileSize(); ok {
			info.size = size
		}
	}
	return info
}

func (i *fileInfo) Name() string       { return i.name }
func (i *fileInfo) Size() int64        { return i.size }
func (i *fileInfo) ModTime() time.Time { return i.modTime }
func (i *fileInfo) IsDir() bool        { return i.dir }
func (i *fileInfo) Sys() any           { return nil }

func (i *fileInfo) Mode() fs.FileMode {
	if i.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}

// baseFile rejects every operation; the concrete files override what they support
type baseFile struct {
	name string
}

func (b *baseFile) Name() string { return b.name }

func (b *baseFile) err(op string) error {
	return &fs.PathError{Op: op, Path: b.name, Err: syscall.EBADF}
}

func (b *baseFile) Read([]byte) (int, error)           { return 0, b.err("read") }
func (b *baseFile) ReadAt([]byte, int64) (int, error)  { return 0, b.err("read") }
func (b *baseFile) Seek(int64, int) (int64, error)     { return 0, b.err("seek") }
func (b *baseFile) Write([]byte) (int, error)          { return 0, b.err("write") }
func (b *baseFile) WriteAt([]byte, int64) (int, error) { return 0, b.err("write") }
func (b *baseFile) WriteString(string) (int, error)    { return 0, b.err("write") }
func (b *baseFile) Readdir(int) ([]os.FileInfo, error) { return nil, b.err("readdir") }
func (b *baseFile) Readdirnames(int) ([]string, error) { return nil, b.err("readdir") }
func (b *baseFile) Truncate(int64) error               { return b.err("truncate") }
func (b *baseFile) Sync() error                        { return nil }

// readFile streams a file from the backend. The stream is opened on first
// read; seeking reopens it and skips ahead.
type readFile struct {
	baseFile
	fs     *Fs
	path   string
	attrs  metadata.StorageAttributes
	stream io.ReadCloser
	offset int64
	closed bool
}

func newReadFile(f *Fs, name, p string, attrs metadata.StorageAttributes) *readFile {
	return &readFile{baseFile: baseFile{name: name}, fs: f, path: p, attrs: attrs}
}

func (r *readFile) Read(b []byte) (int, error) {
	if r.closed {
		return 0, fs.ErrClosed
	}
	if r.stream == nil {
		if err := r.open(r.offset); err != nil {
			return 0, err
		}
	}
	n, err := r.stream.Read(b)
	r.offset += int64(n)
	return n, err
}

// ReadAt reads from a separate stream so the sequential offset is untouched
func (r *readFile) ReadAt(b []byte, off int64) (int, error) {
	if r.closed {
		return 0, fs.ErrClosed
	}
	if off < 0 {
		return 0, &fs.PathError{Op: "readat", Path: r.name, Err: fs.ErrInvalid}
	}

	stream, err := r.fs.fs.ReadStream(r.fs.ctx, r.path)
	if err != nil {
		return 0, pathError("read", r.name, err)
	}
	defer stream.Close()

	if _, err := io.CopyN(io.Discard, stream, off); err != nil {
		return 0, err
	}
	return io.ReadFull(stream, b)
}

func (r *readFile) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, fs.ErrClosed
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.offset + offset
	case io.SeekEnd:
		target = r.size() + offset
	default:
		return 0, &fs.PathError{Op: "seek", Path: r.name, Err: fs.ErrInvalid}
	}
	if target < 0 {
		return 0, &fs.PathError{Op: "seek", Path: r.name, Err: fs.ErrInvalid}
	}

	if target != r.offset && r.stream != nil {
		r.stream.Close()
		r.stream = nil
	}
	r.offset = target
	return target, nil
}

func (r *readFile) Stat() (os.FileInfo, error) {
	return newFileInfo(r.attrs), nil
}

func (r *readFile) Close() error {
	if r.closed {
		return fs.ErrClosed
	}
	r.closed = true
	if r.stream != nil {
		return r.stream.Close()
	}
	return nil
}

func (r *readFile) open(offset int64) error {
	stream, err := r.fs.fs.ReadStream(r.fs.ctx, r.path)
	if err != nil {
		return pathError("read", r.name, err)
	}
	if offset > 0 {
		if _, err := io.CopyN(io.Discard, stream, offset); err != nil && !errors.Is(err, io.EOF) {
			stream.Close()
			return pathError("read", r.name, err)
		}
	}
	r.stream = stream
	return nil
}

func (r *readFile) size() int64 {
	if file, ok := r.attrs.(metadata.FileAttributes); ok {
		if size, ok := file.FileSize(); ok {
			return size
		}
	}
	return 0
}

// dirFile lists a directory. Entries are fetched on the first Readdir call.
type dirFile struct {
	baseFile
	fs      *Fs
	path    string
	attrs   metadata.StorageAttributes
	entries []os.FileInfo
	loaded  bool
}

func newDirFile(f *Fs, name, p string, attrs metadata.StorageAttributes) *dirFile {
	return &dirFile{baseFile: baseFile{name: name}, fs: f, path: p, attrs: attrs}
}

// Readdir follows os.File semantics: n > 0 returns at most n entries and
// io.EOF at the end; n <= 0 returns everything left.
func (d *dirFile) Readdir(n int) ([]os.FileInfo, error) {
	if !d.loaded {
		for attrs, err := range d.fs.fs.ListContents(d.fs.ctx, d.path, false) {
			if err != nil {
				return nil, pathError("readdir", d.name, err)
			}
			d.entries = append(d.entries, newFileInfo(attrs))
		}
		d.loaded = true
	}

	if n <= 0 {
		out := d.entries
		d.entries = nil
		return out, nil
	}
	if len(d.entries) == 0 {
		return nil, io.EOF
	}

	n = min(n, len(d.entries))
	out := d.entries[:n]
	d.entries = d.entries[n:]
	return out, nil
}

func (d *dirFile) Readdirnames(n int) ([]string, error) {
	infos, err := d.Readdir(n)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, err
}

func (d *dirFile) Stat() (os.FileInfo, error) {
	return newFileInfo(d.attrs), nil
}

func (d *dirFile) Close() error {
	return nil
}

// writeFile pipes everything written into the backend's WriteStream. The
// upload is committed when Close returns nil.
type writeFile struct {
	baseFile
	fs      *Fs
	path    string
	pw      *io.PipeWriter
	done    chan error
	written int64
	once    sync.Once
	err     error
}

func newWriteFile(f *Fs, name, p string) *writeFile {
	pr, pw := io.Pipe()
	w := &writeFile{
		baseFile: baseFile{name: name},
		fs:       f,
		path:     p,
		pw:       pw,
		done:     make(chan error, 1),
	}

	go func() {
		err := f.fs.WriteStream(f.ctx, p, pr, metadata.WriteConfig{})
		// Unblock writers if the backend stopped reading early
		pr.CloseWithError(errors.Join(err, io.ErrClosedPipe))
		w.done <- err
	}()

	return w
}

func (w *writeFile) Write(b []byte) (int, error) {
	n, err := w.pw.Write(b)
	w.written += int64(n)
	if err != nil {
		return n, pathError("write", w.name, err)
	}
	return n, nil
}

func (w *writeFile) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *writeFile) Stat() (os.FileInfo, error) {
	return &fileInfo{name: path.Base(w.path), size: w.written, modTime: time.Now()}, nil
}

func (w *writeFile) Close() error {
	w.once.Do(func() {
		w.pw.Close()
		w.err = pathError("write", w.name, <-w.done)
	})
	return w.err
}
