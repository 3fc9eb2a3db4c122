package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhitespaceNormalizer(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		expectedErr error
	}{
		{
			name:     "empty path",
			input:    "",
			expected: "",
		},
		{
			name:     "root path",
			input:    "/",
			expected: "",
		},
		{
			name:     "simple path",
			input:    "file.txt",
			expected: "file.txt",
		},
		{
			name:     "leading slash",
			input:    "/docs/a.txt",
			expected: "docs/a.txt",
		},
		{
			name:     "surrounding whitespace",
			input:    "  /docs/a.txt \n",
			expected: "docs/a.txt",
		},
		{
			name:     "backslashes",
			input:    "docs\\sub\\b.txt",
			expected: "docs/sub/b.txt",
		},
		{
			name:     "multiple slashes",
			input:    "dir//file.txt",
			expected: "dir/file.txt",
		},
		{
			name:     "trailing slash",
			input:    "dir/",
			expected: "dir",
		},
		{
			name:     "current directory",
			input:    "./file.txt",
			expected: "file.txt",
		},
		{
			name:     "safe relative navigation",
			input:    "dir/../file.txt",
			expected: "file.txt",
		},
		{
			name:     "inner whitespace kept",
			input:    "my docs/a b.txt",
			expected: "my docs/a b.txt",
		},
		{
			name:        "directory traversal",
			input:       "../../../etc/passwd",
			expectedErr: ErrPathTraversal,
		},
		{
			name:        "mixed traversal",
			input:       "dir/../../etc/passwd",
			expectedErr: ErrPathTraversal,
		},
		{
			name:        "null byte",
			input:       "file\x00.txt",
			expectedErr: ErrCorruptedPath,
		},
		{
			name:        "control character",
			input:       "dir/\x07bell",
			expectedErr: ErrCorruptedPath,
		},
		{
			name:        "zero width space",
			input:       "dir/a\u200bb",
			expectedErr: ErrCorruptedPath,
		},
	}

	n := NewWhitespaceNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := n.NormalizePath(tt.input)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestWhitespaceNormalizerIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"/",
		" /docs/a.txt ",
		"docs\\sub\\..\\b.txt",
		"./a/./b/../c/",
		"my docs//x",
	}

	n := NewWhitespaceNormalizer()
	for _, input := range inputs {
		once, err := n.NormalizePath(input)
		require.NoError(t, err)
		twice, err := n.NormalizePath(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "normalizing %q twice changed the result", input)
	}
}

func TestNormalizerFunc(t *testing.T) {
	var n Normalizer = NormalizerFunc(func(path string) (string, error) {
		return "fixed/" + path, nil
	})

	got, err := n.NormalizePath("x")
	require.NoError(t, err)
	assert.Equal(t, "fixed/x", got)
}

func TestToAbsolute(t *testing.T) {
	assert.Equal(t, "/", ToAbsolute(""))
	assert.Equal(t, "/docs/a.txt", ToAbsolute("docs/a.txt"))
	assert.Equal(t, "/docs", ToAbsolute("/docs"))
}

func TestMustNormalizePanics(t *testing.T) {
	assert.Equal(t, "a/b", MustNormalize("/a//b/"))
	assert.Panics(t, func() { MustNormalize("../x") })
}
