package s3

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"iter"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/metadata"
)

// deleteBatchSize is the DeleteObjects limit
const deleteBatchSize = 1000

// CreateDirectory writes a directory marker at path
func (a *Adapter) CreateDirectory(ctx context.Context, path string, cfg metadata.WriteConfig) error {
	location, err := a.normalize(path)
	if err != nil {
		return backends.UnableToCreateDirectory(path, "", err)
	}
	if location == "" {
		return backends.UnableToCreateDirectory(location, "the root always exists", fs.ErrExist)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.dirPrefix(location)),
		Body:   bytes.NewReader(nil),
		ACL:    aws.String(aclFor(a.visibility(cfg))),
	}
	a.encrypt(input)

	if _, err := a.client.PutObjectWithContext(ctx, input); err != nil {
		return backends.UnableToCreateDirectory(location, "", err)
	}
	return nil
}

// DeleteDirectory removes every key below path, including the marker
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	location, err := a.normalize(path)
	if err != nil {
		return backends.UnableToDeleteDirectory(path, "", err)
	}
	if location == "" {
		return backends.UnableToDeleteDirectory(location, "refusing to delete the root", fs.ErrPermission)
	}

	var keys []string
	for key, err := range a.keys(ctx, a.dirPrefix(location)) {
		if err != nil {
			return backends.UnableToDeleteDirectory(location, "", err)
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return backends.UnableToDeleteDirectory(location, "", fs.ErrNotExist)
	}

	if err := a.deleteKeys(ctx, keys); err != nil {
		return backends.UnableToDeleteDirectory(location, "", err)
	}

	a.logger.Debug("Directory deleted",
		zap.String("bucket", a.bucket),
		log.Path("path", location),
		zap.Int("objects", len(keys)))
	return nil
}

// ListContents enumerates the entries below path one page at a time. Shallow
// listings use the "/" delimiter; deep listings report every directory
// implied by a key once. The sequence can be ranged over once.
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

		input := &s3.ListObjectsV2Input{
			Bucket:  aws.String(a.bucket),
			Prefix:  aws.String(a.dirPrefix(base)),
			MaxKeys: aws.Int64(a.pageSize),
		}
		if !deep {
			input.Delimiter = aws.String("/")
		}

		seen := map[string]bool{base: true}
		emitDir := func(p string) bool {
			if seen[p] {
				return true
			}
			seen[p] = true
			return yield(metadata.NewDirectoryAttributes(p, nil), nil)
		}

		for {
			out, err := a.client.ListObjectsV2WithContext(ctx, input)
			if err != nil {
				yield(nil, backends.UnableToRetrieveMetadata(base, backends.MetadataListing, "", err))
				return
			}

			for _, cp := range out.CommonPrefixes {
				if !emitDir(a.pathOf(aws.StringValue(cp.Prefix))) {
					return
				}
			}

			for _, obj := range out.Contents {
				key := aws.StringValue(obj.Key)
				entry := a.pathOf(key)

				if deep {
					for _, parent := range parents(base, entry) {
						if !emitDir(parent) {
							return
						}
					}
				}
				if strings.HasSuffix(key, "/") {
					if !emitDir(entry) {
						return
					}
					continue
				}
				if !yield(a.fileAttributes(entry, obj.Size, obj.LastModified, nil), nil) {
					return
				}
			}

			if !aws.BoolValue(out.IsTruncated) {
				return
			}
			input.ContinuationToken = out.NextContinuationToken
		}
	}
}

// parents returns the directories strictly between base and entry, outermost first
func parents(base, entry string) []string {
	rel := entry
	if base != "" {
		rel = strings.TrimPrefix(entry, base+"/")
	}

	var out []string
	for i := range len(rel) {
		if rel[i] != '/' {
			continue
		}
		if base == "" {
			out = append(out, rel[:i])
		} else {
			out = append(out, base+"/"+rel[:i])
		}
	}
	return out
}

// hasChildren reports whether any key, a marker included, lives below location
func (a *Adapter) hasChildren(ctx context.Context, location string) (bool, error) {
	out, err := a.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(a.dirPrefix(location)),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return false, err
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

// keys enumerates every object key starting with prefix
func (a *Adapter) keys(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		input := &s3.ListObjectsV2Input{
			Bucket:  aws.String(a.bucket),
			Prefix:  aws.String(prefix),
			MaxKeys: aws.Int64(a.pageSize),
		}
		for {
			out, err := a.client.ListObjectsV2WithContext(ctx, input)
			if err != nil {
				yield("", err)
				return
			}
			for _, obj := range out.Contents {
				if !yield(aws.StringValue(obj.Key), nil) {
					return
				}
			}
			if !aws.BoolValue(out.IsTruncated) {
				return
			}
			input.ContinuationToken = out.NextContinuationToken
		}
	}
}

// deleteKeys removes keys in DeleteObjects batches
func (a *Adapter) deleteKeys(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		batch := keys[start:min(start+deleteBatchSize, len(keys))]

		objects := make([]*s3.ObjectIdentifier, len(batch))
		for i, key := range batch {
			objects[i] = &s3.ObjectIdentifier{Key: aws.String(key)}
		}

		out, err := a.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucket),
			Delete: &s3.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("failed to delete %d objects, first %s: %s",
				len(out.Errors), aws.StringValue(first.Key), aws.StringValue(first.Message))
		}
	}
	return nil
}
