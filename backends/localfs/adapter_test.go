package localfs

import (
	"context"
	"io/fs"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/metadata"
)

func paths(t *testing.T, seq iter.Seq2[metadata.StorageAttributes, error]) []string {
	t.Helper()
	var out []string
	for attrs, err := range seq {
		require.NoError(t, err)
		out = append(out, attrs.Path())
	}
	return out
}

func seed(t *testing.T) *LocalFSAdapter {
	t.Helper()
	ctx := context.Background()
	a := NewMemoryAdapter()
	cfg := metadata.WriteConfig{}

	require.NoError(t, a.CreateDirectory(ctx, "docs", cfg))
	require.NoError(t, a.CreateDirectory(ctx, "docs/sub", cfg))
	require.NoError(t, a.Write(ctx, "docs/a.txt", []byte("0123456789"), cfg))
	require.NoError(t, a.WriteStream(ctx, "/docs/sub/b.txt", strings.NewReader("hello"), cfg))
	return a
}

func TestLocalWriteReadStat(t *testing.T) {
	ctx := context.Background()
	a := seed(t)

	data, err := a.Read(ctx, " docs//a.txt")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	ok, err := a.FileExists(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.DirectoryExists(ctx, "docs/missing")
	require.NoError(t, err)
	assert.False(t, ok)

	size, err := a.FileSize(ctx, "docs/a.txt")
	require.NoError(t, err)
	got, ok := size.FileSize()
	require.True(t, ok)
	assert.Equal(t, int64(10), got)

	attrs, err := a.Attributes(ctx, "docs/sub")
	require.NoError(t, err)
	assert.True(t, attrs.IsDir())

	attrs, err = a.Attributes(ctx, "docs/sub/b.txt")
	require.NoError(t, err)
	file := attrs.(metadata.FileAttributes)
	mt, _ := file.MimeType()
	assert.Equal(t, "text/plain", mt)

	_, err = a.ReadStream(ctx, "docs")
	assert.True(t, backends.IsOperation(err, backends.OpRead))

	_, err = a.Read(ctx, "nope.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLocalListContents(t *testing.T) {
	ctx := context.Background()
	a := seed(t)

	assert.Equal(t, []string{"docs/a.txt", "docs/sub"}, paths(t, a.ListContents(ctx, "/docs", false)))
	assert.Equal(t, []string{"docs/a.txt", "docs/sub", "docs/sub/b.txt"}, paths(t, a.ListContents(ctx, "docs", true)))
	assert.Equal(t, []string{"docs"}, paths(t, a.ListContents(ctx, "", false)))

	seq := a.ListContents(ctx, "docs", false)
	_ = paths(t, seq)
	for _, err := range seq {
		assert.ErrorIs(t, err, backends.ErrListingConsumed)
	}

	for _, err := range a.ListContents(ctx, "missing", true) {
		assert.True(t, backends.IsOperation(err, backends.OpRetrieveMetadata))
	}
}

func TestLocalMoveCopyDelete(t *testing.T) {
	ctx := context.Background()
	a := seed(t)
	cfg := metadata.WriteConfig{}

	require.NoError(t, a.Copy(ctx, "docs/a.txt", "docs/sub/a-copy.txt", cfg))
	data, err := a.Read(ctx, "docs/sub/a-copy.txt")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	require.NoError(t, a.Copy(ctx, "docs/sub", "copied", cfg))
	assert.Equal(t, []string{"copied/a-copy.txt", "copied/b.txt"}, paths(t, a.ListContents(ctx, "copied", true)))

	err = a.Copy(ctx, "docs/a.txt", "copied/b.txt", cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrExist)

	require.NoError(t, a.Move(ctx, "docs/a.txt", "moved.txt", cfg))
	ok, _ := a.FileExists(ctx, "docs/a.txt")
	assert.False(t, ok)

	err = a.Move(ctx, "moved.txt", "no/such/dir/x.txt", cfg)
	opErr, isOp := backends.AsOperationError(err)
	require.True(t, isOp)
	assert.Equal(t, backends.OpMove, opErr.Op)
	assert.Equal(t, "no/such/dir/x.txt", opErr.Destination)

	require.NoError(t, a.DeleteDirectory(ctx, "copied"))
	ok, _ = a.DirectoryExists(ctx, "copied")
	assert.False(t, ok)

	err = a.Delete(ctx, "copied")
	assert.True(t, backends.IsOperation(err, backends.OpDeleteFile))

	err = a.DeleteDirectory(ctx, "/")
	assert.ErrorIs(t, err, fs.ErrPermission)
}

func TestLocalVisibility(t *testing.T) {
	a := NewMemoryAdapter()
	err := a.SetVisibility(context.Background(), "x", metadata.VisibilityPublic)
	assert.ErrorIs(t, err, backends.ErrVisibilityNotSupported)

	attrs, err := a.Visibility(context.Background(), "x")
	require.NoError(t, err)
	_, ok := attrs.Visibility()
	assert.False(t, ok)
}

func TestNewLocalFSAdapterOnDisk(t *testing.T) {
	ctx := context.Background()
	a, err := NewLocalFSAdapter(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, a.Write(ctx, "nested/file.json", []byte(`{}`), metadata.WriteConfig{}))
	mt, err := a.MimeType(ctx, "nested/file.json")
	require.NoError(t, err)
	got, _ := mt.MimeType()
	assert.Equal(t, "application/json", got)
	assert.Equal(t, []string{"nested", "nested/file.json"}, paths(t, a.ListContents(ctx, "", true)))
}
