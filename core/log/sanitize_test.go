package log

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withMode(t *testing.T, mode SanitizationMode) {
	t.Helper()
	prev := Mode()
	SetMode(mode)
	t.Cleanup(func() { SetMode(prev) })
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want SanitizationMode
		ok   bool
	}{
		{"production", ProductionMode, true},
		{" Development ", DevelopmentMode, true},
		{"DEBUG", DebugMode, true},
		{"", ProductionMode, false},
		{"verbose", ProductionMode, false},
	}

	for _, tt := range tests {
		got, ok := ParseMode(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestSanitizePath(t *testing.T) {
	long := "documents/projects/secret-plan.txt"

	t.Run("production hashes", func(t *testing.T) {
		withMode(t, ProductionMode)
		got := SanitizePath(long)
		assert.True(t, strings.HasPrefix(got, "hash:"))
		assert.NotContains(t, got, "secret")
		assert.Equal(t, got, SanitizePath(long))
		assert.Empty(t, SanitizePath(""))
	})

	t.Run("development truncates", func(t *testing.T) {
		withMode(t, DevelopmentMode)
		assert.Equal(t, "short.txt", SanitizePath("short.txt"))
		assert.Equal(t, "documents/...lan.txt", SanitizePath(long))
	})

	t.Run("debug shows everything", func(t *testing.T) {
		withMode(t, DebugMode)
		assert.Equal(t, long, SanitizePath(long))
	})
}

func TestSanitizeSubjectAndSize(t *testing.T) {
	withMode(t, ProductionMode)
	assert.True(t, strings.HasPrefix(SanitizeSubject("my-api-key"), "subject_hash:"))
	assert.Equal(t, int64(2048), SanitizeSize(1800))

	SetMode(DevelopmentMode)
	assert.Equal(t, "my-a****", SanitizeSubject("my-api-key"))
	assert.Equal(t, "****", SanitizeSubject("short"))
	assert.Equal(t, int64(1800), SanitizeSize(1800))
}
