// Package pathutil provides path normalization for diskfs.
package pathutil

import (
	"errors"
	"strings"
	"unicode"
)

// Path normalization errors
var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrCorruptedPath = errors.New("corrupted path detected")
)

// Normalizer canonicalizes a path before it is sent to a backend or compared
type Normalizer interface {
	NormalizePath(path string) (string, error)
}

// NormalizerFunc adapts an ordinary function to the Normalizer interface
type NormalizerFunc func(path string) (string, error)

// NormalizePath calls f(path)
func (f NormalizerFunc) NormalizePath(path string) (string, error) {
	return f(path)
}

// WhitespaceNormalizer produces relative, slash-separated paths without empty,
// "." or ".." segments. "/docs//a.txt ", "docs\\a.txt" and "./docs/a.txt" all
// normalize to "docs/a.txt"; the root normalizes to "".
type WhitespaceNormalizer struct{}

// NewWhitespaceNormalizer creates the default normalizer
func NewWhitespaceNormalizer() WhitespaceNormalizer {
	return WhitespaceNormalizer{}
}

// NormalizePath implements Normalizer. Applying it to its own output returns
// the same path.
func (WhitespaceNormalizer) NormalizePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	path = strings.ReplaceAll(path, "\\", "/")

	// Control and format characters are never valid in a drive path
	for _, r := range path {
		if unicode.Is(unicode.C, r) {
			return "", ErrCorruptedPath
		}
	}

	parts := make([]string, 0, strings.Count(path, "/")+1)
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(parts) == 0 {
				return "", ErrPathTraversal
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, part)
		}
	}

	return strings.Join(parts, "/"), nil
}

// MustNormalize normalizes path with the default normalizer and panics on error.
// It is meant for constant paths in tests and wiring code.
func MustNormalize(path string) string {
	normalized, err := WhitespaceNormalizer{}.NormalizePath(path)
	if err != nil {
		panic(err)
	}
	return normalized
}

// ToAbsolute turns a normalized path into the slash-rooted form used in URLs and logs
func ToAbsolute(normalized string) string {
	return "/" + strings.TrimPrefix(normalized, "/")
}
