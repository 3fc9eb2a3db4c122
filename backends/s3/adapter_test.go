package s3

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"iter"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/metadata"
)

type object struct {
	data        []byte
	contentType string
	acl         string
	modified    time.Time
}

// fakeS3 keeps a single bucket in memory. Calls the adapter does not make
// panic through the nil embedded interface.
type fakeS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string]*object
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]*object)}
}

func notFound(code string) error {
	return awserr.NewRequestFailure(awserr.New(code, "not found", nil), http.StatusNotFound, "req-1")
}

func (f *fakeS3) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, notFound("NotFound")
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, notFound(s3.ErrCodeNoSuchKey)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.StringValue(in.Key)] = &object{
		data:        data,
		contentType: aws.StringValue(in.ContentType),
		acl:         aws.StringValue(in.ACL),
		modified:    time.Unix(1700000000, 0),
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectsWithContext(_ aws.Context, in *s3.DeleteObjectsInput, _ ...request.Option) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.StringValue(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) CopyObjectWithContext(_ aws.Context, in *s3.CopyObjectInput, _ ...request.Option) (*s3.CopyObjectOutput, error) {
	source, err := url.PathUnescape(aws.StringValue(in.CopySource))
	if err != nil {
		return nil, err
	}
	_, key, _ := strings.Cut(source, "/")

	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return nil, notFound(s3.ErrCodeNoSuchKey)
	}
	copied := *obj
	copied.acl = aws.StringValue(in.ACL)
	f.objects[aws.StringValue(in.Key)] = &copied
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) GetObjectAclWithContext(_ aws.Context, in *s3.GetObjectAclInput, _ ...request.Option) (*s3.GetObjectAclOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, notFound(s3.ErrCodeNoSuchKey)
	}
	out := &s3.GetObjectAclOutput{}
	if obj.acl == s3.ObjectCannedACLPublicRead {
		out.Grants = append(out.Grants, &s3.Grant{
			Grantee:    &s3.Grantee{URI: aws.String(allUsersGroup)},
			Permission: aws.String(s3.PermissionRead),
		})
	}
	return out, nil
}

func (f *fakeS3) PutObjectAclWithContext(_ aws.Context, in *s3.PutObjectAclInput, _ ...request.Option) (*s3.PutObjectAclOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, notFound(s3.ErrCodeNoSuchKey)
	}
	obj.acl = aws.StringValue(in.ACL)
	return &s3.PutObjectAclOutput{}, nil
}

// ListObjectsV2WithContext pages by index; the continuation token is the
// offset of the next entry
func (f *fakeS3) ListObjectsV2WithContext(_ aws.Context, in *s3.ListObjectsV2Input, _ ...request.Option) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.StringValue(in.Prefix)
	delimiter := aws.StringValue(in.Delimiter)

	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	type entry struct {
		key      string
		isPrefix bool
	}
	var entries []entry
	seen := map[string]bool{}
	for _, key := range keys {
		if delimiter != "" {
			if i := strings.Index(key[len(prefix):], delimiter); i >= 0 {
				cp := key[:len(prefix)+i+1]
				if !seen[cp] {
					seen[cp] = true
					entries = append(entries, entry{cp, true})
				}
				continue
			}
		}
		entries = append(entries, entry{key, false})
	}

	start := 0
	if token := aws.StringValue(in.ContinuationToken); token != "" {
		start, _ = strconv.Atoi(token)
	}
	end := len(entries)
	if limit := int(aws.Int64Value(in.MaxKeys)); limit > 0 {
		end = min(start+limit, len(entries))
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(entries))}
	if end < len(entries) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	for _, e := range entries[start:end] {
		if e.isPrefix {
			out.CommonPrefixes = append(out.CommonPrefixes, &s3.CommonPrefix{Prefix: aws.String(e.key)})
			continue
		}
		obj := f.objects[e.key]
		out.Contents = append(out.Contents, &s3.Object{
			Key:          aws.String(e.key),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
		})
	}
	return out, nil
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for key := range f.objects {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func paths(t *testing.T, seq iter.Seq2[metadata.StorageAttributes, error]) []string {
	t.Helper()
	var out []string
	for attrs, err := range seq {
		require.NoError(t, err)
		out = append(out, attrs.Path())
	}
	sort.Strings(out)
	return out
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeS3) {
	t.Helper()
	ctx := context.Background()
	client := newFakeS3()
	a, err := New(client, "bucket", WithPrefix("/root/"), WithPageSize(2))
	require.NoError(t, err)

	cfg := metadata.WriteConfig{}
	require.NoError(t, a.Write(ctx, "docs/a.txt", []byte("alpha"), cfg))
	require.NoError(t, a.WriteStream(ctx, "docs/sub/b.json", strings.NewReader(`{"b":1}`), cfg))
	require.NoError(t, a.Write(ctx, "top.txt", []byte("top"), cfg))
	require.NoError(t, a.CreateDirectory(ctx, "empty", cfg))
	return a, client
}

func TestNewRequiresClientAndBucket(t *testing.T) {
	_, err := New(nil, "bucket")
	assert.Error(t, err)
	_, err = New(newFakeS3(), "")
	assert.Error(t, err)
}

func TestS3WriteRead(t *testing.T) {
	ctx := context.Background()
	a, client := newTestAdapter(t)

	assert.Contains(t, client.keys(), "root/docs/a.txt")
	assert.Contains(t, client.keys(), "root/empty/")

	data, err := a.Read(ctx, "/docs//a.txt")
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	size, err := a.FileSize(ctx, "docs/a.txt")
	require.NoError(t, err)
	n, ok := size.FileSize()
	require.True(t, ok)
	assert.Equal(t, int64(5), n)

	mt, err := a.MimeType(ctx, "docs/sub/b.json")
	require.NoError(t, err)
	got, _ := mt.MimeType()
	assert.Equal(t, "application/json", got)

	lm, err := a.LastModified(ctx, "top.txt")
	require.NoError(t, err)
	ts, ok := lm.LastModified()
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), ts)

	_, err = a.Read(ctx, "docs/missing.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.True(t, backends.IsOperation(err, backends.OpRead))

	err = a.Write(ctx, "", []byte("x"), metadata.WriteConfig{})
	assert.True(t, backends.IsOperation(err, backends.OpWrite))
}

func TestS3ContentTypeOption(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t)

	cfg := metadata.WriteConfig{}.With(metadata.OptionContentType, "text/csv")
	require.NoError(t, a.Write(ctx, "report", []byte("a,b"), cfg))

	attrs, err := a.Attributes(ctx, "report")
	require.NoError(t, err)
	file, ok := attrs.(metadata.FileAttributes)
	require.True(t, ok)
	mt, _ := file.MimeType()
	assert.Equal(t, "text/csv", mt)
}

func TestS3Existence(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t)

	for _, p := range []string{"", "docs", "docs/a.txt", "docs/sub", "empty"} {
		ok, err := a.FileExists(ctx, p)
		require.NoError(t, err)
		assert.True(t, ok, p)
	}

	ok, err := a.FileExists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.DirectoryExists(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	attrs, err := a.Attributes(ctx, "docs/sub")
	require.NoError(t, err)
	assert.True(t, attrs.IsDir())

	_, err = a.Attributes(ctx, "nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestS3ListContents(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t)

	assert.Equal(t, []string{"docs", "empty", "top.txt"}, paths(t, a.ListContents(ctx, "", false)))
	assert.Equal(t, []string{"docs/a.txt", "docs/sub"}, paths(t, a.ListContents(ctx, "docs", false)))
	assert.Empty(t, paths(t, a.ListContents(ctx, "empty", false)))

	assert.Equal(t,
		[]string{"docs", "docs/a.txt", "docs/sub", "docs/sub/b.json", "empty", "top.txt"},
		paths(t, a.ListContents(ctx, "/", true)))

	seq := a.ListContents(ctx, "docs", true)
	assert.Equal(t, []string{"docs/a.txt", "docs/sub", "docs/sub/b.json"}, paths(t, seq))
	for _, err := range seq {
		assert.ErrorIs(t, err, backends.ErrListingConsumed)
	}
}

func TestS3Visibility(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t)

	v, err := a.Visibility(ctx, "top.txt")
	require.NoError(t, err)
	got, _ := v.Visibility()
	assert.Equal(t, metadata.VisibilityPrivate, got)

	require.NoError(t, a.SetVisibility(ctx, "top.txt", metadata.VisibilityPublic))
	v, err = a.Visibility(ctx, "top.txt")
	require.NoError(t, err)
	got, _ = v.Visibility()
	assert.Equal(t, metadata.VisibilityPublic, got)

	cfg := metadata.WriteConfig{}.With(metadata.OptionVisibility, metadata.VisibilityPublic)
	require.NoError(t, a.Write(ctx, "shared.txt", []byte("s"), cfg))
	v, err = a.Visibility(ctx, "shared.txt")
	require.NoError(t, err)
	got, _ = v.Visibility()
	assert.Equal(t, metadata.VisibilityPublic, got)

	err = a.SetVisibility(ctx, "nope", metadata.VisibilityPublic)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.True(t, backends.IsOperation(err, backends.OpSetVisibility))
}

func TestS3Delete(t *testing.T) {
	ctx := context.Background()
	a, client := newTestAdapter(t)

	require.NoError(t, a.Delete(ctx, "top.txt"))
	assert.NotContains(t, client.keys(), "root/top.txt")

	err := a.Delete(ctx, "top.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.True(t, backends.IsOperation(err, backends.OpDeleteFile))

	assert.ErrorIs(t, a.Delete(ctx, "/"), fs.ErrPermission)

	require.NoError(t, a.DeleteDirectory(ctx, "docs"))
	assert.Equal(t, []string{"root/empty/"}, client.keys())

	err = a.DeleteDirectory(ctx, "docs")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestS3MoveAndCopy(t *testing.T) {
	ctx := context.Background()
	a, client := newTestAdapter(t)

	require.NoError(t, a.Copy(ctx, "top.txt", "copy.txt", metadata.WriteConfig{}))
	data, err := a.Read(ctx, "copy.txt")
	require.NoError(t, err)
	assert.Equal(t, "top", string(data))

	require.NoError(t, a.Move(ctx, "docs", "archive/docs", metadata.WriteConfig{}))
	assert.Equal(t, []string{
		"root/archive/docs/a.txt",
		"root/archive/docs/sub/b.json",
		"root/copy.txt",
		"root/empty/",
		"root/top.txt",
	}, client.keys())

	err = a.Move(ctx, "missing", "elsewhere", metadata.WriteConfig{})
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.True(t, backends.IsOperation(err, backends.OpMove))

	err = a.Copy(ctx, "archive", "archive/inner", metadata.WriteConfig{})
	assert.ErrorIs(t, err, fs.ErrInvalid)
}
