package diskapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	resourcesEndpoint = "/v1/disk/resources"
	uploadEndpoint    = "/v1/disk/resources/upload"
	downloadEndpoint  = "/v1/disk/resources/download"
	moveEndpoint      = "/v1/disk/resources/move"
	copyEndpoint      = "/v1/disk/resources/copy"
)

// ListContent returns the resource at path with the requested fields. For
// directories, every page of _embedded.items is fetched; with deep set, the
// entries of all sub-directories are appended breadth first.
func (c *Client) ListContent(ctx context.Context, path string, fields []string, deep bool) (*Resource, error) {
	extra := []string{"_embedded.total", "_embedded.limit"}
	if deep {
		extra = append(extra, "_embedded.items.path", "_embedded.items.type")
	}
	selection := fieldParam(fields, extra...)

	root, err := c.listAll(ctx, c.apiPath(path), selection)
	if err != nil {
		return nil, err
	}
	if !deep || root.Embedded == nil {
		return root, nil
	}

	queue := subdirectories(root.Embedded.Items)
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		child, err := c.listAll(ctx, dir, selection)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", dir, err)
		}

		items := child.Items()
		root.Embedded.Items = append(root.Embedded.Items, items...)
		queue = append(queue, subdirectories(items)...)
	}

	c.logger.Debug("Deep listing completed",
		zap.String("path", path),
		zap.Int("items", len(root.Embedded.Items)))

	return root, nil
}

func subdirectories(items []Resource) []string {
	var dirs []string
	for _, item := range items {
		if item.IsDir() && item.Path != "" {
			dirs = append(dirs, item.Path)
		}
	}
	return dirs
}

// listAll fetches every page of a directory listing
func (c *Client) listAll(ctx context.Context, apiPath, fields string) (*Resource, error) {
	res, err := c.listPage(ctx, apiPath, fields, 0)
	if err != nil {
		return nil, err
	}
	if res.Embedded == nil {
		return res, nil
	}

	last := len(res.Embedded.Items)
	for last == c.pageSize && (res.Embedded.Total == 0 || len(res.Embedded.Items) < res.Embedded.Total) {
		next, err := c.listPage(ctx, apiPath, fields, len(res.Embedded.Items))
		if err != nil {
			return nil, err
		}
		if next.Embedded == nil {
			break
		}
		res.Embedded.Items = append(res.Embedded.Items, next.Embedded.Items...)
		last = len(next.Embedded.Items)
	}

	return res, nil
}

func (c *Client) listPage(ctx context.Context, apiPath, fields string, offset int) (*Resource, error) {
	q := url.Values{}
	q.Set("path", apiPath)
	q.Set("limit", strconv.Itoa(c.pageSize))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if fields != "" {
		q.Set("fields", fields)
	}

	var res Resource
	if _, err := c.doJSON(ctx, http.MethodGet, c.endpoint(resourcesEndpoint, q), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Upload stores body at path. The API hands out an upload link first; the
// content is then sent to that link in a single request.
func (c *Client) Upload(ctx context.Context, path string, body io.Reader, overwrite bool) error {
	q := url.Values{}
	q.Set("path", c.apiPath(path))
	q.Set("overwrite", strconv.FormatBool(overwrite))

	var link Link
	if _, err := c.doJSON(ctx, http.MethodGet, c.endpoint(uploadEndpoint, q), &link); err != nil {
		return err
	}
	if link.Href == "" {
		return fmt.Errorf("upload link for %s has no href", path)
	}

	method := link.Method
	if method == "" {
		method = http.MethodPut
	}

	req, err := http.NewRequestWithContext(ctx, method, link.Href, body)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.send(c.streamClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}

	c.logger.Debug("File uploaded to disk",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))

	return nil
}

// Remove deletes the resource at path, waiting for asynchronous deletions
func (c *Client) Remove(ctx context.Context, path string) error {
	q := url.Values{}
	q.Set("path", c.apiPath(path))
	q.Set("permanently", strconv.FormatBool(c.permanentDelete))

	var link Link
	status, err := c.doJSON(ctx, http.MethodDelete, c.endpoint(resourcesEndpoint, q), &link)
	if err != nil {
		return err
	}
	if status == http.StatusAccepted {
		return c.waitOperation(ctx, link)
	}
	return nil
}

// AddDirectory creates a directory at path
func (c *Client) AddDirectory(ctx context.Context, path string) error {
	q := url.Values{}
	q.Set("path", c.apiPath(path))

	_, err := c.doJSON(ctx, http.MethodPut, c.endpoint(resourcesEndpoint, q), nil)
	return err
}

// Move relocates from to path, waiting for asynchronous moves
func (c *Client) Move(ctx context.Context, from, to string) error {
	return c.transfer(ctx, moveEndpoint, from, to)
}

// Copy duplicates from at path, waiting for asynchronous copies
func (c *Client) Copy(ctx context.Context, from, to string) error {
	return c.transfer(ctx, copyEndpoint, from, to)
}

func (c *Client) transfer(ctx context.Context, endpoint, from, to string) error {
	q := url.Values{}
	q.Set("from", c.apiPath(from))
	q.Set("path", c.apiPath(to))
	q.Set("overwrite", "false")

	var link Link
	status, err := c.doJSON(ctx, http.MethodPost, c.endpoint(endpoint, q), &link)
	if err != nil {
		return err
	}
	if status == http.StatusAccepted {
		return c.waitOperation(ctx, link)
	}
	return nil
}

// GetDownloadURL returns a short-lived link to the content of path
func (c *Client) GetDownloadURL(ctx context.Context, path string, fields []string) (*Link, error) {
	q := url.Values{}
	q.Set("path", c.apiPath(path))
	if selection := fieldParam(fields, "href"); selection != "" {
		q.Set("fields", selection)
	}

	var link Link
	if _, err := c.doJSON(ctx, http.MethodGet, c.endpoint(downloadEndpoint, q), &link); err != nil {
		return nil, err
	}
	if link.Href == "" {
		return nil, fmt.Errorf("download link for %s has no href", path)
	}
	return &link, nil
}

// OpenURL opens a read-only stream on href. On any non-2xx answer the
// response body is closed before returning.
func (c *Client) OpenURL(ctx context.Context, href string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.send(c.streamClient, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}

	return resp.Body, nil
}

// waitOperation polls an asynchronous operation until it finishes
func (c *Client) waitOperation(ctx context.Context, link Link) error {
	if link.Href == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.operationTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var st operationStatus
		if _, err := c.doJSON(ctx, http.MethodGet, link.Href, &st); err != nil {
			return fmt.Errorf("failed to poll operation status: %w", err)
		}

		switch st.Status {
		case "success":
			return nil
		case "failed":
			return fmt.Errorf("%w: %s", ErrOperationFailed, link.Href)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for operation: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
