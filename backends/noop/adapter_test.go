package noop

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/metadata"
)

func TestNoopAdapterFailsEverything(t *testing.T) {
	ctx := context.Background()
	fs := NewNoopAdapter()
	cfg := metadata.WriteConfig{}

	_, existsErr := fs.FileExists(ctx, "a")
	_, readErr := fs.Read(ctx, "a")
	_, streamErr := fs.ReadStream(ctx, "a")
	_, attrsErr := fs.Attributes(ctx, "a")
	_, sizeErr := fs.FileSize(ctx, "a")

	errs := map[string]error{
		"exists":     existsErr,
		"write":      fs.Write(ctx, "a", []byte("x"), cfg),
		"stream":     fs.WriteStream(ctx, "a", bytes.NewReader(nil), cfg),
		"read":       readErr,
		"readStream": streamErr,
		"delete":     fs.Delete(ctx, "a"),
		"deleteDir":  fs.DeleteDirectory(ctx, "a"),
		"mkdir":      fs.CreateDirectory(ctx, "a", cfg),
		"visibility": fs.SetVisibility(ctx, "a", metadata.VisibilityPublic),
		"attributes": attrsErr,
		"size":       sizeErr,
		"move":       fs.Move(ctx, "a", "b", cfg),
		"copy":       fs.Copy(ctx, "a", "b", cfg),
	}

	for name, err := range errs {
		require.Error(t, err, name)
		assert.ErrorIs(t, err, backends.ErrBackendNotEnabled, name)
		_, ok := backends.AsOperationError(err)
		assert.True(t, ok, name)
	}
}

func TestNoopListContents(t *testing.T) {
	var count int
	for attrs, err := range NewNoopAdapter().ListContents(context.Background(), "", true) {
		count++
		assert.Nil(t, attrs)
		assert.ErrorIs(t, err, backends.ErrBackendNotEnabled)
	}
	assert.Equal(t, 1, count)
}
