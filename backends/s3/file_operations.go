package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/metadata"
)

// FileExists reports whether an object or a directory exists at path
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	location, err := a.normalize(path)
	if err != nil {
		return false, backends.UnableToRetrieveMetadata(path, backends.MetadataExistence, "", err)
	}
	if location == "" {
		return true, nil
	}

	_, err = a.head(ctx, location)
	switch {
	case err == nil:
		return true, nil
	case !isNotFound(err):
		return false, backends.UnableToRetrieveMetadata(location, backends.MetadataExistence, "", err)
	}
	return a.DirectoryExists(ctx, location)
}

// DirectoryExists reports whether any key lives below path
func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	location, err := a.normalize(path)
	if err != nil {
		return false, backends.UnableToRetrieveMetadata(path, backends.MetadataExistence, "", err)
	}
	if location == "" {
		return true, nil
	}

	ok, err := a.hasChildren(ctx, location)
	if err != nil {
		return false, backends.UnableToRetrieveMetadata(location, backends.MetadataExistence, "", err)
	}
	return ok, nil
}

// Write stores contents at path
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg metadata.WriteConfig) error {
	return a.WriteStream(ctx, path, bytes.NewReader(contents), cfg)
}

// WriteStream stores everything read from contents at path. PutObject needs a
// seekable body, so other readers are buffered in memory first.
func (a *Adapter) WriteStream(ctx context.Context, path string, contents io.Reader, cfg metadata.WriteConfig) error {
	location, err := a.normalize(path)
	if err != nil {
		return backends.UnableToWriteFile(path, "", err)
	}
	if location == "" {
		return backends.UnableToWriteFile(location, "the root is a directory", fs.ErrInvalid)
	}

	body, ok := contents.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(contents)
		if err != nil {
			return backends.UnableToWriteFile(location, "failed to read contents", err)
		}
		body = bytes.NewReader(data)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.objectKey(location)),
		Body:        body,
		ContentType: aws.String(a.contentType(location, cfg)),
		ACL:         aws.String(aclFor(a.visibility(cfg))),
	}
	a.encrypt(input)

	if _, err := a.client.PutObjectWithContext(ctx, input); err != nil {
		return backends.UnableToWriteFile(location, "", err)
	}

	a.logger.Debug("Object written",
		zap.String("bucket", a.bucket),
		log.Path("path", location))
	return nil
}

// Read returns the full contents of the object at path
func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	stream, err := a.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, backends.UnableToReadFile(path, "failed to read object body", err)
	}
	return data, nil
}

// ReadStream opens the object at path for reading
func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	location, err := a.normalize(path)
	if err != nil {
		return nil, backends.UnableToReadFile(path, "", err)
	}

	out, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(location)),
	})
	if err != nil {
		return nil, backends.UnableToReadFile(location, "", translate(err))
	}
	return out.Body, nil
}

// Delete removes the object at path. A missing object is an error.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	location, err := a.normalize(path)
	if err != nil {
		return backends.UnableToDeleteFile(path, "", err)
	}
	if location == "" {
		return backends.UnableToDeleteFile(location, "refusing to delete the root", fs.ErrPermission)
	}

	if _, err := a.head(ctx, location); err != nil {
		return backends.UnableToDeleteFile(location, "", translate(err))
	}

	if _, err := a.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(location)),
	}); err != nil {
		return backends.UnableToDeleteFile(location, "", err)
	}
	return nil
}

// SetVisibility applies the canned ACL matching visibility
func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility metadata.Visibility) error {
	location, err := a.normalize(path)
	if err != nil {
		return backends.UnableToSetVisibility(path, "", err)
	}

	if _, err := a.client.PutObjectAclWithContext(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(location)),
		ACL:    aws.String(aclFor(visibility)),
	}); err != nil {
		return backends.UnableToSetVisibility(location, "", translate(err))
	}
	return nil
}

// Visibility reports public when anonymous users may read the object
func (a *Adapter) Visibility(ctx context.Context, path string) (metadata.FileAttributes, error) {
	location, err := a.normalize(path)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(path, backends.MetadataVisibility, "", err)
	}

	out, err := a.client.GetObjectAclWithContext(ctx, &s3.GetObjectAclInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(location)),
	})
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(location, backends.MetadataVisibility, "", translate(err))
	}

	visibility := metadata.VisibilityPrivate
	for _, grant := range out.Grants {
		if grant.Grantee == nil || aws.StringValue(grant.Grantee.URI) != allUsersGroup {
			continue
		}
		switch aws.StringValue(grant.Permission) {
		case s3.PermissionRead, s3.PermissionFullControl:
			visibility = metadata.VisibilityPublic
		}
	}
	return metadata.NewFileAttributes(location, metadata.WithVisibility(visibility)), nil
}

// MimeType returns the stored content type, falling back to the extension
func (a *Adapter) MimeType(ctx context.Context, path string) (metadata.FileAttributes, error) {
	location, err := a.normalize(path)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(path, backends.MetadataMimeType, "", err)
	}

	out, err := a.head(ctx, location)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(location, backends.MetadataMimeType, "", translate(err))
	}

	mimeType := aws.StringValue(out.ContentType)
	if mimeType == "" {
		mimeType = a.detector.DetectMimeTypeFromPath(location)
	}
	return metadata.NewFileAttributes(location, metadata.WithMimeType(mimeType)), nil
}

// LastModified returns the modification time of the object at path
func (a *Adapter) LastModified(ctx context.Context, path string) (metadata.FileAttributes, error) {
	location, err := a.normalize(path)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(path, backends.MetadataLastModified, "", err)
	}

	out, err := a.head(ctx, location)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(location, backends.MetadataLastModified, "", translate(err))
	}
	if out.LastModified == nil {
		return metadata.NewFileAttributes(location), nil
	}
	return metadata.NewFileAttributes(location, metadata.WithLastModified(out.LastModified.Unix())), nil
}

// FileSize returns the size of the object at path
func (a *Adapter) FileSize(ctx context.Context, path string) (metadata.FileAttributes, error) {
	location, err := a.normalize(path)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(path, backends.MetadataFileSize, "", err)
	}

	out, err := a.head(ctx, location)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(location, backends.MetadataFileSize, "", translate(err))
	}
	return metadata.NewFileAttributes(location, metadata.WithFileSize(aws.Int64Value(out.ContentLength))), nil
}

// Attributes describes the object at path, or the directory when no object
// has that exact key
func (a *Adapter) Attributes(ctx context.Context, path string) (metadata.StorageAttributes, error) {
	location, err := a.normalize(path)
	if err != nil {
		return nil, backends.UnableToRetrieveMetadata(path, backends.MetadataAttributes, "", err)
	}
	if location == "" {
		return metadata.NewDirectoryAttributes("", nil), nil
	}

	out, err := a.head(ctx, location)
	if err == nil {
		return a.fileAttributes(location, out.ContentLength, out.LastModified, out.ContentType), nil
	}
	if !isNotFound(err) {
		return nil, backends.UnableToRetrieveMetadata(location, backends.MetadataAttributes, "", err)
	}

	ok, err := a.hasChildren(ctx, location)
	if err != nil {
		return nil, backends.UnableToRetrieveMetadata(location, backends.MetadataAttributes, "", err)
	}
	if !ok {
		return nil, backends.UnableToRetrieveMetadata(location, backends.MetadataAttributes, "", fs.ErrNotExist)
	}
	return metadata.NewDirectoryAttributes(location, nil), nil
}

// Move copies source to destination and then deletes source
func (a *Adapter) Move(ctx context.Context, source, destination string, cfg metadata.WriteConfig) error {
	from, to, err := a.transferPaths(source, destination)
	if err != nil {
		return backends.UnableToMoveFile(from, to, err)
	}

	keys, err := a.transfer(ctx, from, to, cfg)
	if err != nil {
		return backends.UnableToMoveFile(from, to, err)
	}
	if err := a.deleteKeys(ctx, keys); err != nil {
		return backends.UnableToMoveFile(from, to, fmt.Errorf("copied but failed to remove the source: %w", err))
	}
	return nil
}

// Copy duplicates source at destination. Directories are copied key by key.
func (a *Adapter) Copy(ctx context.Context, source, destination string, cfg metadata.WriteConfig) error {
	from, to, err := a.transferPaths(source, destination)
	if err != nil {
		return backends.UnableToCopyFile(from, to, err)
	}

	if _, err := a.transfer(ctx, from, to, cfg); err != nil {
		return backends.UnableToCopyFile(from, to, err)
	}
	return nil
}

func (a *Adapter) transferPaths(source, destination string) (string, string, error) {
	from, err := a.normalize(source)
	if err != nil {
		return source, destination, err
	}
	to, err := a.normalize(destination)
	if err != nil {
		return from, destination, err
	}
	if from == "" || to == "" || from == to || strings.HasPrefix(to, from+"/") {
		return from, to, fmt.Errorf("cannot transfer %q to %q: %w", from, to, fs.ErrInvalid)
	}
	return from, to, nil
}

// transfer copies the object at from, or every key below it, to to. It
// returns the source keys that were copied.
func (a *Adapter) transfer(ctx context.Context, from, to string, cfg metadata.WriteConfig) ([]string, error) {
	_, err := a.head(ctx, from)
	if err == nil {
		src := a.objectKey(from)
		return []string{src}, a.copyObject(ctx, src, a.objectKey(to), cfg)
	}
	if !isNotFound(err) {
		return nil, err
	}

	srcPrefix, dstPrefix := a.dirPrefix(from), a.dirPrefix(to)
	var keys []string
	for key, err := range a.keys(ctx, srcPrefix) {
		if err != nil {
			return keys, err
		}
		if err := a.copyObject(ctx, key, dstPrefix+key[len(srcPrefix):], cfg); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, fs.ErrNotExist
	}
	return keys, nil
}

func (a *Adapter) copyObject(ctx context.Context, src, dst string, cfg metadata.WriteConfig) error {
	input := &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		CopySource: aws.String((&url.URL{Path: a.bucket + "/" + src}).EscapedPath()),
		Key:        aws.String(dst),
		ACL:        aws.String(aclFor(a.visibility(cfg))),
	}
	input.ServerSideEncryption = a.sse()
	if a.serverSideEncryption == s3.ServerSideEncryptionAwsKms && a.kmsKeyID != "" {
		input.SSEKMSKeyId = aws.String(a.kmsKeyID)
	}

	if _, err := a.client.CopyObjectWithContext(ctx, input); err != nil {
		return translate(err)
	}
	return nil
}

func (a *Adapter) head(ctx context.Context, location string) (*s3.HeadObjectOutput, error) {
	return a.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(location)),
	})
}

func (a *Adapter) fileAttributes(location string, size *int64, modified *time.Time, contentType *string) metadata.FileAttributes {
	opts := []metadata.FileOption{metadata.WithFileSize(aws.Int64Value(size))}
	if modified != nil {
		opts = append(opts, metadata.WithLastModified(modified.Unix()))
	}
	if ct := aws.StringValue(contentType); ct != "" {
		opts = append(opts, metadata.WithMimeType(ct))
	}
	return metadata.NewFileAttributes(location, opts...)
}

func (a *Adapter) contentType(location string, cfg metadata.WriteConfig) string {
	if ct, ok := cfg.Get(metadata.OptionContentType, "").(string); ok && ct != "" {
		return ct
	}
	return a.detector.DetectMimeTypeFromPath(location)
}

func (a *Adapter) visibility(cfg metadata.WriteConfig) metadata.Visibility {
	switch v := cfg.Get(metadata.OptionVisibility, nil).(type) {
	case metadata.Visibility:
		return v
	case string:
		return metadata.Visibility(v)
	}
	return a.defaultVisibility
}

func (a *Adapter) sse() *string {
	if a.serverSideEncryption == "" {
		return nil
	}
	return aws.String(a.serverSideEncryption)
}

func (a *Adapter) encrypt(input *s3.PutObjectInput) {
	input.ServerSideEncryption = a.sse()
	if a.serverSideEncryption == s3.ServerSideEncryptionAwsKms && a.kmsKeyID != "" {
		input.SSEKMSKeyId = aws.String(a.kmsKeyID)
	}
}
