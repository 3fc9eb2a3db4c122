package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/auth"
	"github.com/ebogdum/diskfs/backends/localfs"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/links"
	"github.com/ebogdum/diskfs/locks"
	"github.com/ebogdum/diskfs/metadata"
	"github.com/ebogdum/diskfs/server/handlers"
)

const testKey = "test-secret"

type testGateway struct {
	server *httptest.Server
	locks  *locks.LocalManager
}

func newTestGateway(t *testing.T, readOnly bool) *testGateway {
	t.Helper()
	ctx := context.Background()

	fs := localfs.NewMemoryAdapter()
	cfg := metadata.WriteConfig{}
	require.NoError(t, fs.CreateDirectory(ctx, "docs", cfg))
	require.NoError(t, fs.Write(ctx, "docs/a.txt", []byte("alpha"), cfg))
	require.NoError(t, fs.Write(ctx, "docs/b.json", []byte(`{"b":1}`), cfg))

	lm := locks.NewLocalManager()
	engine := core.NewEngine(fs, lm, 100, zap.NewNop())

	linkManager, err := links.NewLinkManager("link-secret", time.Minute, zap.NewNop())
	require.NoError(t, err)

	serverCfg := config.DefaultAppConfig().Server
	serverCfg.MutationRateLimit = 0

	router := NewRouter(engine,
		auth.NewAPIKeyAuthenticator([]string{testKey}),
		auth.NewReadOnlyAuthorizer(readOnly),
		linkManager,
		&serverCfg,
		zap.NewNop())

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testGateway{server: srv, locks: lm}
}

func (g *testGateway) do(t *testing.T, method, path string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, g.server.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body handlers.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Code
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	g := newTestGateway(t, false)

	resp, err := http.Get(g.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, err = http.Get(g.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthenticationRequired(t *testing.T) {
	g := newTestGateway(t, false)

	resp, err := http.Get(g.server.URL + "/v1/files/docs/a.txt")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, g.server.URL+"/v1/files/docs/a.txt", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetFile(t *testing.T) {
	g := newTestGateway(t, false)

	resp := g.do(t, http.MethodGet, "/v1/files/docs/b.json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "7", resp.Header.Get(handlers.HeaderSize))
	assert.Equal(t, metadata.TypeFile, resp.Header.Get(handlers.HeaderType))
	assert.NotEmpty(t, resp.Header.Get("Last-Modified"))
	assert.Equal(t, `{"b":1}`, readBody(t, resp))

	resp = g.do(t, http.MethodGet, "/v1/files/docs/missing.txt", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, resp))

	resp = g.do(t, http.MethodGet, "/v1/files/../etc/passwd", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetDirectoryListsIt(t *testing.T) {
	g := newTestGateway(t, false)

	for _, p := range []string{"/v1/files/docs/", "/v1/files/docs"} {
		resp := g.do(t, http.MethodGet, p, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, p)

		var listing struct {
			Count int `json:"count"`
			Items []struct {
				Type string `json:"type"`
				Path string `json:"path"`
			} `json:"items"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
		assert.Equal(t, 2, listing.Count)
		assert.Equal(t, "docs/a.txt", listing.Items[0].Path)
	}
}

func TestHeadFile(t *testing.T) {
	g := newTestGateway(t, false)

	resp := g.do(t, http.MethodHead, "/v1/files/docs/a.txt", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "5", resp.Header.Get(handlers.HeaderSize))

	resp = g.do(t, http.MethodHead, "/v1/files/docs", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, metadata.TypeDirectory, resp.Header.Get(handlers.HeaderType))

	resp = g.do(t, http.MethodHead, "/v1/files/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPutFile(t *testing.T) {
	g := newTestGateway(t, false)

	resp := g.do(t, http.MethodPut, "/v1/files/docs/new.txt", strings.NewReader("fresh"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = g.do(t, http.MethodPut, "/v1/files/docs/new.txt", strings.NewReader("again"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = g.do(t, http.MethodGet, "/v1/files/docs/new.txt", nil)
	assert.Equal(t, "again", readBody(t, resp))

	resp = g.do(t, http.MethodPut, "/v1/files/docs/dir/", strings.NewReader("x"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPutFileLocked(t *testing.T) {
	g := newTestGateway(t, false)

	release, err := g.locks.TryLock(context.Background(), "docs")
	require.NoError(t, err)
	defer release()

	resp := g.do(t, http.MethodPut, "/v1/files/docs/new.txt", strings.NewReader("x"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "RESOURCE_LOCKED", errorCode(t, resp))
}

func TestDeleteFileAndDirectory(t *testing.T) {
	g := newTestGateway(t, false)

	resp := g.do(t, http.MethodDelete, "/v1/files/docs/a.txt", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = g.do(t, http.MethodDelete, "/v1/files/docs/", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = g.do(t, http.MethodGet, "/v1/files/docs/b.json", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = g.do(t, http.MethodDelete, "/v1/files/", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDirectories(t *testing.T) {
	g := newTestGateway(t, false)

	resp := g.do(t, http.MethodPost, "/v1/directories/docs/sub", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	g.do(t, http.MethodPut, "/v1/files/docs/sub/c.txt", strings.NewReader("gamma"))

	resp = g.do(t, http.MethodGet, "/v1/directories/docs?recursive=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var raw map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, float64(4), raw["count"])
	assert.Equal(t, true, raw["recursive"])

	resp = g.do(t, http.MethodGet, "/v1/directories/docs?recursive=true&limit=1", nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, float64(1), raw["count"])
	assert.Equal(t, true, raw["truncated"])

	resp = g.do(t, http.MethodGet, "/v1/directories/docs?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMoveAndCopy(t *testing.T) {
	g := newTestGateway(t, false)

	resp := g.do(t, http.MethodPost, "/v1/copy", strings.NewReader(`{"source":"docs/a.txt","destination":"docs/copy.txt"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = g.do(t, http.MethodPost, "/v1/move", strings.NewReader(`{"source":"/docs/copy.txt","destination":"moved.txt"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out handlers.TransferResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, handlers.TransferResponse{Operation: "move", Source: "docs/copy.txt", Destination: "moved.txt"}, out)

	resp = g.do(t, http.MethodGet, "/v1/files/moved.txt", nil)
	assert.Equal(t, "alpha", readBody(t, resp))

	resp = g.do(t, http.MethodPost, "/v1/move", strings.NewReader(`{"source":"docs/a.txt"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = g.do(t, http.MethodPost, "/v1/copy", strings.NewReader(`not json`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetadataAndVisibility(t *testing.T) {
	g := newTestGateway(t, false)

	resp := g.do(t, http.MethodGet, "/v1/metadata/docs/a.txt?field=size", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var raw map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, float64(5), raw["file_size"])

	resp = g.do(t, http.MethodGet, "/v1/metadata/docs/a.txt?field=owner", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = g.do(t, http.MethodGet, "/v1/metadata/docs/a.txt", nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, "text/plain", raw["mime_type"])

	resp = g.do(t, http.MethodPut, "/v1/visibility/docs/a.txt", strings.NewReader(`{"visibility":"public"}`))
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.Equal(t, "NOT_SUPPORTED", errorCode(t, resp))

	resp = g.do(t, http.MethodPut, "/v1/visibility/docs/a.txt", strings.NewReader(`{"visibility":"secret"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReadOnlyGateway(t *testing.T) {
	g := newTestGateway(t, true)

	resp := g.do(t, http.MethodGet, "/v1/files/docs/a.txt", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = g.do(t, http.MethodPut, "/v1/files/docs/a.txt", strings.NewReader("x"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = g.do(t, http.MethodDelete, "/v1/files/docs/a.txt", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// copying only reads the source but still writes the destination
	resp = g.do(t, http.MethodPost, "/v1/copy", strings.NewReader(`{"source":"docs/a.txt","destination":"x.txt"}`))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSingleUseDownloadLink(t *testing.T) {
	g := newTestGateway(t, false)

	resp := g.do(t, http.MethodPost, "/v1/links/generate", strings.NewReader(`{"path":"docs/a.txt","expiry_seconds":60}`))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var link struct {
		URL   string `json:"url"`
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&link))
	assert.True(t, strings.HasSuffix(link.URL, "/download/"+link.Token))

	// downloads need no API key
	first, err := http.Get(g.server.URL + "/download/" + link.Token)
	require.NoError(t, err)
	defer first.Body.Close()
	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Contains(t, first.Header.Get("Content-Disposition"), "a.txt")
	assert.Equal(t, "alpha", readBody(t, first))

	second, err := http.Get(g.server.URL + "/download/" + link.Token)
	require.NoError(t, err)
	defer second.Body.Close()
	assert.Equal(t, http.StatusGone, second.StatusCode)

	bogus, err := http.Get(g.server.URL + "/download/bogus.token")
	require.NoError(t, err)
	defer bogus.Body.Close()
	assert.Equal(t, http.StatusNotFound, bogus.StatusCode)

	resp = g.do(t, http.MethodPost, "/v1/links/generate", strings.NewReader(`{"path":"docs"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = g.do(t, http.MethodPost, "/v1/links/generate", strings.NewReader(`{"path":"docs/a.txt","expiry_seconds":999999}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMutationRateLimit(t *testing.T) {
	fs := localfs.NewMemoryAdapter()
	engine := core.NewEngine(fs, nil, 0, zap.NewNop())
	serverCfg := config.DefaultAppConfig().Server
	serverCfg.MutationRateLimit = 0.001
	serverCfg.MutationBurst = 1

	router := NewRouter(engine, auth.NewAPIKeyAuthenticator([]string{testKey}), auth.NewReadOnlyAuthorizer(false), nil, &serverCfg, zap.NewNop())

	put := func() int {
		req := httptest.NewRequest(http.MethodPut, "/v1/files/a.txt", strings.NewReader("x"))
		req.Header.Set("Authorization", testKey)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusCreated, put())
	assert.Equal(t, http.StatusTooManyRequests, put())

	// reads are not limited
	req := httptest.NewRequest(http.MethodGet, "/v1/files/a.txt", nil)
	req.Header.Set("Authorization", testKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// link routes are absent without a manager
	req = httptest.NewRequest(http.MethodGet, "/download/x", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
