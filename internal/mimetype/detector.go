// Package mimetype infers content types from file paths.
package mimetype

import (
	"mime"
	"path"
	"strings"
)

// Detector infers a mime type from a path. An empty result means unknown.
type Detector interface {
	DetectMimeTypeFromPath(path string) string
}

// DetectorFunc adapts an ordinary function to the Detector interface
type DetectorFunc func(path string) string

// DetectMimeTypeFromPath calls f(path)
func (f DetectorFunc) DetectMimeTypeFromPath(path string) string {
	return f(path)
}

// commonTypes takes precedence over the platform mime tables, which differ
// between systems for several of these extensions.
var commonTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".xml":  "application/xml",
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ExtensionDetector resolves mime types by file extension
type ExtensionDetector struct {
	overrides map[string]string
}

// NewExtensionDetector creates a detector. overrides maps extensions (with or
// without the leading dot) to mime types and wins over the built-in table.
func NewExtensionDetector(overrides map[string]string) *ExtensionDetector {
	normalized := make(map[string]string, len(overrides))
	for ext, mimeType := range overrides {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[ext] = mimeType
	}
	return &ExtensionDetector{overrides: normalized}
}

// DetectMimeTypeFromPath implements Detector
func (d *ExtensionDetector) DetectMimeTypeFromPath(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return ""
	}

	if mimeType, ok := d.overrides[ext]; ok {
		return mimeType
	}
	if mimeType, ok := commonTypes[ext]; ok {
		return mimeType
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return ""
	}
	// Drop parameters such as "; charset=utf-8"
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	return mimeType
}
