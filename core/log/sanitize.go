// Package log sanitizes user data before it reaches the logs.
package log

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// SanitizationMode controls how paths and identities appear in logs
type SanitizationMode int32

const (
	// ProductionMode hashes paths and identities
	ProductionMode SanitizationMode = iota
	// DevelopmentMode truncates long values
	DevelopmentMode
	// DebugMode logs values unchanged
	DebugMode
)

// ModeEnvVar selects the sanitization mode at startup
const ModeEnvVar = "DISKFS_LOG_MODE"

var currentMode atomic.Int32

func init() {
	if mode, ok := ParseMode(os.Getenv(ModeEnvVar)); ok {
		SetMode(mode)
	}
}

// ParseMode maps "production", "development" or "debug" to a mode
func ParseMode(s string) (SanitizationMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production":
		return ProductionMode, true
	case "development":
		return DevelopmentMode, true
	case "debug":
		return DebugMode, true
	}
	return ProductionMode, false
}

// SetMode changes the sanitization mode for the whole process
func SetMode(mode SanitizationMode) {
	currentMode.Store(int32(mode))
}

// Mode returns the current sanitization mode
func Mode() SanitizationMode {
	return SanitizationMode(currentMode.Load())
}

// SanitizePath sanitizes a drive path for logging
func SanitizePath(path string) string {
	if path == "" {
		return ""
	}

	switch Mode() {
	case DevelopmentMode:
		if len(path) <= 20 {
			return path
		}
		return path[:10] + "..." + path[len(path)-7:]
	case DebugMode:
		return path
	default:
		hash := sha256.Sum256([]byte(path))
		return fmt.Sprintf("hash:%x", hash[:8])
	}
}

// SanitizeSubject sanitizes an authenticated identity such as an API key
func SanitizeSubject(subject string) string {
	if subject == "" {
		return ""
	}

	switch Mode() {
	case DevelopmentMode:
		if len(subject) <= 8 {
			return "****"
		}
		return subject[:4] + "****"
	case DebugMode:
		return subject
	default:
		hash := sha256.Sum256([]byte(subject))
		return fmt.Sprintf("subject_hash:%x", hash[:6])
	}
}

// SanitizeSize rounds sizes to the nearest KiB in production mode
func SanitizeSize(size int64) int64 {
	if Mode() == ProductionMode {
		return (size + 512) / 1024 * 1024
	}
	return size
}

// Path returns a zap field holding the sanitized path
func Path(key, path string) zap.Field {
	return zap.String(key, SanitizePath(path))
}

// Size returns a zap field holding the sanitized size
func Size(key string, size int64) zap.Field {
	return zap.Int64(key, SanitizeSize(size))
}
