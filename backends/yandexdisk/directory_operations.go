package yandexdisk

import (
	"context"
	"iter"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/metadata"
)

// listingFields limits listing responses to what attribute conversion needs
var listingFields = []string{
	"_embedded.items.path",
	"_embedded.items.type",
	"_embedded.items.size",
	"_embedded.items.modified",
}

// CreateDirectory creates a directory at path
func (a *Adapter) CreateDirectory(ctx context.Context, path string, _ metadata.WriteConfig) error {
	location, err := a.normalize(path)
	if err != nil {
		return backends.UnableToCreateDirectory(path, "", err)
	}

	if err := a.client.AddDirectory(ctx, location); err != nil {
		return backends.UnableToCreateDirectory(location, "", err)
	}
	return nil
}

// DeleteDirectory removes the directory at path with everything below it
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	location, err := a.normalize(path)
	if err != nil {
		return backends.UnableToDeleteDirectory(path, "", err)
	}

	if err := a.client.Remove(ctx, location); err != nil {
		return backends.UnableToDeleteDirectory(location, "", err)
	}
	return nil
}

// ListContents enumerates the entries below path. Nothing is requested until
// the sequence is ranged over, and it can be ranged over once; later attempts
// yield a single ErrListingConsumed failure. The listed directory never
// appears in its own listing.
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[metadata.StorageAttributes, error] {
	var consumed atomic.Bool

	return func(yield func(metadata.StorageAttributes, error) bool) {
		if consumed.Swap(true) {
			yield(nil, backends.UnableToRetrieveMetadata(path, backends.MetadataListing, "", backends.ErrListingConsumed))
			return
		}

		base, err := a.normalize(path)
		if err != nil {
			yield(nil, backends.UnableToRetrieveMetadata(path, backends.MetadataListing, "", err))
			return
		}

		res, err := a.client.ListContent(ctx, base, listingFields, deep)
		if err != nil {
			yield(nil, backends.UnableToRetrieveMetadata(base, backends.MetadataListing, "", err))
			return
		}

		items := res.Items()
		a.logger.Debug("Listing directory",
			zap.String("path", base),
			zap.Bool("deep", deep),
			zap.Int("entries", len(items)))

		for i := range items {
			entry, err := a.entryPath(items[i].Path)
			if err != nil {
				yield(nil, backends.UnableToRetrieveMetadata(items[i].Path, backends.MetadataListing, "invalid entry path", err))
				return
			}
			if entry == base {
				continue
			}
			if !yield(a.toAttributes(entry, &items[i]), nil) {
				return
			}
		}
	}
}
