package aferofs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// MirrorStats summarizes a Mirror run
type MirrorStats struct {
	Directories int
	Files       int
	Bytes       int64
}

// Mirror copies the tree at srcRoot in src to dstRoot in dst. Existing files
// at the destination are replaced; nothing is deleted.
func Mirror(ctx context.Context, src afero.Fs, srcRoot string, dst afero.Fs, dstRoot string) (MirrorStats, error) {
	var stats MirrorStats

	err := afero.Walk(src, srcRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := relative(srcRoot, p)
		if err != nil {
			return err
		}
		target := path.Join(filepath.ToSlash(dstRoot), rel)

		if info.IsDir() {
			if err := dst.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", target, err)
			}
			stats.Directories++
			return nil
		}

		n, err := copyFile(src, p, dst, target)
		if err != nil {
			return err
		}
		stats.Files++
		stats.Bytes += n
		return nil
	})

	return stats, err
}

func copyFile(src afero.Fs, from string, dst afero.Fs, to string) (int64, error) {
	in, err := src.Open(from)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", from, err)
	}
	defer in.Close()

	out, err := dst.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", to, err)
	}

	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("failed to copy %s to %s: %w", from, to, err)
	}
	return n, nil
}

// relative returns p relative to root in slash form
func relative(root, p string) (string, error) {
	rel, err := filepath.Rel(filepath.FromSlash(root), filepath.FromSlash(p))
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return "", nil
	}
	if strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", p, root)
	}
	return rel, nil
}
