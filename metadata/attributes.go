// Package metadata provides the attribute model returned by diskfs filesystem
// operations: file and directory snapshots plus the opaque write configuration.
package metadata

import (
	"encoding/json"
	"fmt"
)

// Visibility is an access marker for a stored object. The remote drive has no
// visibility concept, so attributes produced by diskfs never carry one.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Attribute type discriminators used in JSON output
const (
	TypeFile      = "file"
	TypeDirectory = "dir"
)

// StorageAttributes is implemented by FileAttributes and DirectoryAttributes only.
type StorageAttributes interface {
	Path() string
	Type() string
	IsFile() bool
	IsDir() bool
	Visibility() (Visibility, bool)
	LastModified() (int64, bool)

	storageAttributes()
}

// FileAttributes is an immutable snapshot of a file's metadata
type FileAttributes struct {
	path         string
	fileSize     *int64
	visibility   *Visibility
	lastModified *int64
	mimeType     *string
}

// FileOption sets an optional FileAttributes field at construction time
type FileOption func(*FileAttributes)

// WithFileSize sets the size in bytes. Negative sizes are ignored.
func WithFileSize(size int64) FileOption {
	return func(f *FileAttributes) {
		if size >= 0 {
			f.fileSize = &size
		}
	}
}

// WithLastModified sets the modification time in seconds since the epoch
func WithLastModified(ts int64) FileOption {
	return func(f *FileAttributes) {
		f.lastModified = &ts
	}
}

// WithMimeType sets the mime type; an empty string leaves it absent
func WithMimeType(mimeType string) FileOption {
	return func(f *FileAttributes) {
		if mimeType != "" {
			f.mimeType = &mimeType
		}
	}
}

// WithVisibility sets the visibility marker
func WithVisibility(v Visibility) FileOption {
	return func(f *FileAttributes) {
		if v != "" {
			f.visibility = &v
		}
	}
}

// NewFileAttributes creates file attributes for an already normalized path
func NewFileAttributes(path string, opts ...FileOption) FileAttributes {
	f := FileAttributes{path: path}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func (f FileAttributes) storageAttributes() {}

// Path returns the normalized path
func (f FileAttributes) Path() string { return f.path }

// Type returns TypeFile
func (f FileAttributes) Type() string { return TypeFile }

// IsFile reports true
func (f FileAttributes) IsFile() bool { return true }

// IsDir reports false
func (f FileAttributes) IsDir() bool { return false }

// FileSize returns the size in bytes if known
func (f FileAttributes) FileSize() (int64, bool) {
	if f.fileSize == nil {
		return 0, false
	}
	return *f.fileSize, true
}

// Visibility returns the visibility marker if known
func (f FileAttributes) Visibility() (Visibility, bool) {
	if f.visibility == nil {
		return "", false
	}
	return *f.visibility, true
}

// LastModified returns the modification time in unix seconds if known
func (f FileAttributes) LastModified() (int64, bool) {
	if f.lastModified == nil {
		return 0, false
	}
	return *f.lastModified, true
}

// MimeType returns the mime type if known
func (f FileAttributes) MimeType() (string, bool) {
	if f.mimeType == nil {
		return "", false
	}
	return *f.mimeType, true
}

// MarshalJSON encodes the attributes, omitting absent fields
func (f FileAttributes) MarshalJSON() ([]byte, error) {
	return json.Marshal(attributesJSON{
		Type:         TypeFile,
		Path:         f.path,
		FileSize:     f.fileSize,
		Visibility:   f.visibility,
		LastModified: f.lastModified,
		MimeType:     f.mimeType,
	})
}

// DirectoryAttributes is an immutable snapshot of a directory's metadata
type DirectoryAttributes struct {
	path         string
	visibility   *Visibility
	lastModified *int64
}

// NewDirectoryAttributes creates directory attributes for an already normalized path.
// A nil lastModified leaves the timestamp absent.
func NewDirectoryAttributes(path string, lastModified *int64) DirectoryAttributes {
	d := DirectoryAttributes{path: path}
	if lastModified != nil {
		ts := *lastModified
		d.lastModified = &ts
	}
	return d
}

func (d DirectoryAttributes) storageAttributes() {}

// Path returns the normalized path
func (d DirectoryAttributes) Path() string { return d.path }

// Type returns TypeDirectory
func (d DirectoryAttributes) Type() string { return TypeDirectory }

// IsFile reports false
func (d DirectoryAttributes) IsFile() bool { return false }

// IsDir reports true
func (d DirectoryAttributes) IsDir() bool { return true }

// Visibility returns the visibility marker if known
func (d DirectoryAttributes) Visibility() (Visibility, bool) {
	if d.visibility == nil {
		return "", false
	}
	return *d.visibility, true
}

// LastModified returns the modification time in unix seconds if known
func (d DirectoryAttributes) LastModified() (int64, bool) {
	if d.lastModified == nil {
		return 0, false
	}
	return *d.lastModified, true
}

// MarshalJSON encodes the attributes, omitting absent fields
func (d DirectoryAttributes) MarshalJSON() ([]byte, error) {
	return json.Marshal(attributesJSON{
		Type:         TypeDirectory,
		Path:         d.path,
		Visibility:   d.visibility,
		LastModified: d.lastModified,
	})
}

type attributesJSON struct {
	Type         string      `json:"type"`
	Path         string      `json:"path"`
	FileSize     *int64      `json:"file_size,omitempty"`
	Visibility   *Visibility `json:"visibility,omitempty"`
	LastModified *int64      `json:"last_modified,omitempty"`
	MimeType     *string     `json:"mime_type,omitempty"`
}

// DecodeAttributes parses the JSON form written by MarshalJSON
func DecodeAttributes(data []byte) (StorageAttributes, error) {
	var raw attributesJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch raw.Type {
	case TypeFile:
		return FileAttributes{
			path:         raw.Path,
			fileSize:     raw.FileSize,
			visibility:   raw.Visibility,
			lastModified: raw.LastModified,
			mimeType:     raw.MimeType,
		}, nil
	case TypeDirectory:
		return DirectoryAttributes{
			path:         raw.Path,
			visibility:   raw.Visibility,
			lastModified: raw.LastModified,
		}, nil
	}
	return nil, fmt.Errorf("unknown attributes type %q", raw.Type)
}
