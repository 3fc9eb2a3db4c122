package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"net/http"
	"net/url"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/metadata"
)

// head reports the resource type of location, or "" when nothing is there
func (a *Adapter) head(ctx context.Context, location string) (string, error) {
	resp, err := a.read(ctx, http.MethodHead, a.endpoint(routeFiles, location, nil))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	resp.Body.Close()

	if t := resp.Header.Get(headerType); t != "" {
		return t, nil
	}
	return metadata.TypeFile, nil
}

func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	location, err := a.normalize(path)
	if err != nil {
		return false, backends.UnableToCheckExistence(path, err)
	}
	if location == "" {
		return true, nil
	}

	t, err := a.head(ctx, location)
	if err != nil {
		return false, backends.UnableToCheckExistence(location, err)
	}
	return t != "", nil
}

func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	location, err := a.normalize(path)
	if err != nil {
		return false, backends.UnableToCheckExistence(path, err)
	}
	if location == "" {
		return true, nil
	}

	t, err := a.head(ctx, location)
	if err != nil {
		return false, backends.UnableToCheckExistence(location, err)
	}
	return t == metadata.TypeDirectory, nil
}

func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg metadata.WriteConfig) error {
	return a.WriteStream(ctx, path, bytes.NewReader(contents), cfg)
}

// WriteStream uploads contents with a PUT. A visibility in cfg is applied
// after the upload.
func (a *Adapter) WriteStream(ctx context.Context, path string, contents io.Reader, cfg metadata.WriteConfig) error {
	location, err := a.normalize(path)
	if err != nil {
		return backends.UnableToWriteFile(path, "", err)
	}
	if location == "" {
		return backends.UnableToWriteFile(location, "the root is a directory", fs.ErrInvalid)
	}

	header := http.Header{"Content-Type": {"application/octet-stream"}}
	if ct, ok := cfg.Get(metadata.OptionContentType, nil).(string); ok && ct != "" {
		header.Set("Content-Type", ct)
	}

	resp, err := a.do(ctx, http.MethodPut, a.endpoint(routeFiles, location, nil), contents, header)
	if err != nil {
		return backends.UnableToWriteFile(location, "", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if v, ok := visibilityOf(cfg); ok {
		if err := a.SetVisibility(ctx, location, v); err != nil {
			return backends.UnableToWriteFile(location, "", err)
		}
	}
	return nil
}

func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	rc, err := a.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, backends.UnableToReadFile(path, "", err)
	}
	return data, nil
}

// ReadStream streams the body of GET /v1/files. The peer answers a directory
// with its listing, which is reported as an error here.
func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	location, err := a.normalize(path)
	if err != nil {
		return nil, backends.UnableToReadFile(path, "", err)
	}

	resp, err := a.read(ctx, http.MethodGet, a.endpoint(routeFiles, location, nil))
	if err != nil {
		return nil, backends.UnableToReadFile(location, "", err)
	}
	if resp.Header.Get(headerType) == metadata.TypeDirectory {
		resp.Body.Close()
		return nil, backends.UnableToReadFile(location, "path is a directory", fs.ErrInvalid)
	}
	return resp.Body, nil
}

func (a *Adapter) Delete(ctx context.Context, path string) error {
	location, err := a.normalize(path)
	if err != nil {
		return backends.UnableToDeleteFile(path, "", err)
	}
	if location == "" {
		return backends.UnableToDeleteFile(location, "refusing to delete the root", fs.ErrPermission)
	}

	if err := a.discard(ctx, http.MethodDelete, a.endpoint(routeFiles, location, nil)); err != nil {
		return backends.UnableToDeleteFile(location, "", err)
	}
	return nil
}

func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	location, err := a.normalize(path)
	if err != nil {
		return backends.UnableToDeleteDirectory(path, "", err)
	}
	if location == "" {
		return backends.UnableToDeleteDirectory(location, "refusing to delete the root", fs.ErrPermission)
	}

	if err := a.discard(ctx, http.MethodDelete, a.endpoint(routeFiles, location+"/", nil)); err != nil {
		return backends.UnableToDeleteDirectory(location, "", err)
	}
	return nil
}

func (a *Adapter) CreateDirectory(ctx context.Context, path string, cfg metadata.WriteConfig) error {
	location, err := a.normalize(path)
	if err != nil {
		return backends.UnableToCreateDirectory(path, "", err)
	}
	if location == "" {
		return backends.UnableToCreateDirectory(location, "the root always exists", fs.ErrExist)
	}

	if err := a.discard(ctx, http.MethodPost, a.endpoint(routeDirectories, location, nil)); err != nil {
		return backends.UnableToCreateDirectory(location, "", err)
	}
	return nil
}

func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility metadata.Visibility) error {
	location, err := a.normalize(path)
	if err != nil {
		return backends.UnableToSetVisibility(path, "", err)
	}

	body := map[string]metadata.Visibility{"visibility": visibility}
	if err := a.sendJSON(ctx, http.MethodPut, a.endpoint(routeVisibility, location, nil), body); err != nil {
		return backends.UnableToSetVisibility(location, "", err)
	}
	return nil
}

func (a *Adapter) Visibility(ctx context.Context, path string) (metadata.FileAttributes, error) {
	return a.field(ctx, path, "visibility", backends.MetadataVisibility)
}

func (a *Adapter) MimeType(ctx context.Context, path string) (metadata.FileAttributes, error) {
	return a.field(ctx, path, "mime_type", backends.MetadataMimeType)
}

func (a *Adapter) LastModified(ctx context.Context, path string) (metadata.FileAttributes, error) {
	return a.field(ctx, path, "last_modified", backends.MetadataLastModified)
}

func (a *Adapter) FileSize(ctx context.Context, path string) (metadata.FileAttributes, error) {
	return a.field(ctx, path, "size", backends.MetadataFileSize)
}

// field asks the peer for a single metadata field of a file
func (a *Adapter) field(ctx context.Context, path, name, kind string) (metadata.FileAttributes, error) {
	location, err := a.normalize(path)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(path, kind, "", err)
	}

	var raw json.RawMessage
	if err := a.getJSON(ctx, a.endpoint(routeMetadata, location, url.Values{"field": {name}}), &raw); err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(location, kind, "", err)
	}

	attrs, err := metadata.DecodeAttributes(raw)
	if err != nil {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(location, kind, "malformed gateway response", err)
	}
	file, ok := attrs.(metadata.FileAttributes)
	if !ok {
		return metadata.FileAttributes{}, backends.UnableToRetrieveMetadata(location, kind, "path is a directory", fs.ErrInvalid)
	}
	return file, nil
}

func (a *Adapter) Attributes(ctx context.Context, path string) (metadata.StorageAttributes, error) {
	location, err := a.normalize(path)
	if err != nil {
		return nil, backends.UnableToRetrieveMetadata(path, backends.MetadataAttributes, "", err)
	}

	var raw json.RawMessage
	if err := a.getJSON(ctx, a.endpoint(routeMetadata, location, nil), &raw); err != nil {
		return nil, backends.UnableToRetrieveMetadata(location, backends.MetadataAttributes, "", err)
	}

	attrs, err := metadata.DecodeAttributes(raw)
	if err != nil {
		return nil, backends.UnableToRetrieveMetadata(location, backends.MetadataAttributes, "malformed gateway response", err)
	}
	return attrs, nil
}

// listingResponse is the part of the peer's listing answer used here
type listingResponse struct {
	Truncated bool              `json:"truncated"`
	Items     []json.RawMessage `json:"items"`
}

// ListContents fetches the listing when first ranged over. A listing the peer
// cut short ends with an error after the entries it did return.
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[metadata.StorageAttributes, error] {
	var consumed atomic.Bool

	return func(yield func(metadata.StorageAttributes, error) bool) {
		if consumed.Swap(true) {
			yield(nil, backends.UnableToRetrieveMetadata(path, backends.MetadataListing, "", backends.ErrListingConsumed))
			return
		}

		location, err := a.normalize(path)
		if err != nil {
			yield(nil, backends.UnableToRetrieveMetadata(path, backends.MetadataListing, "", err))
			return
		}

		query := url.Values{}
		if deep {
			query.Set("recursive", "true")
		}

		var listing listingResponse
		if err := a.getJSON(ctx, a.endpoint(routeDirectories, location, query), &listing); err != nil {
			yield(nil, backends.UnableToRetrieveMetadata(location, backends.MetadataListing, "", err))
			return
		}

		for _, item := range listing.Items {
			attrs, err := metadata.DecodeAttributes(item)
			if err != nil {
				yield(nil, backends.UnableToRetrieveMetadata(location, backends.MetadataListing, "malformed gateway response", err))
				return
			}
			if !yield(attrs, nil) {
				return
			}
		}

		if listing.Truncated {
			a.logger.Warn("Gateway truncated directory listing",
				log.Path("path", location),
				zap.Int("entries", len(listing.Items)))
			yield(nil, backends.UnableToRetrieveMetadata(location, backends.MetadataListing,
				fmt.Sprintf("the gateway returned only the first %d entries", len(listing.Items)), errListingTruncated))
		}
	}
}

var errListingTruncated = errors.New("listing truncated")

func (a *Adapter) Move(ctx context.Context, source, destination string, cfg metadata.WriteConfig) error {
	if err := a.transfer(ctx, routeMove, source, destination); err != nil {
		return backends.UnableToMoveFile(source, destination, err)
	}
	return nil
}

func (a *Adapter) Copy(ctx context.Context, source, destination string, cfg metadata.WriteConfig) error {
	if err := a.transfer(ctx, routeCopy, source, destination); err != nil {
		return backends.UnableToCopyFile(source, destination, err)
	}
	return nil
}

func (a *Adapter) transfer(ctx context.Context, route, source, destination string) error {
	from, err := a.normalize(source)
	if err != nil {
		return err
	}
	to, err := a.normalize(destination)
	if err != nil {
		return err
	}

	body := map[string]string{"source": from, "destination": to}
	return a.sendJSON(ctx, http.MethodPost, a.endpoint(route, "", nil), body)
}

// discard sends a bodiless request and drops the answer
func (a *Adapter) discard(ctx context.Context, method, rawURL string) error {
	resp, err := a.do(ctx, method, rawURL, nil, nil)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// visibilityOf reads the visibility option, which may be a Visibility or a string
func visibilityOf(cfg metadata.WriteConfig) (metadata.Visibility, bool) {
	switch v := cfg.Get(metadata.OptionVisibility, nil).(type) {
	case metadata.Visibility:
		return v, v != ""
	case string:
		return metadata.Visibility(v), v != ""
	}
	return "", false
}
