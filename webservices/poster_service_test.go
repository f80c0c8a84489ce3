package webservices

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	snapshot "github.com/jamesrr39/go-snapshot-testing"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/mapposter-app/fonts"
	"github.com/jamesrr39/mapposter-app/locationresolver"
	"github.com/jamesrr39/mapposter-app/mapposter"
	"github.com/jamesrr39/mapposter-app/posterrenderer"
	"github.com/jamesrr39/mapposter-app/renderservice"
	"github.com/jamesrr39/mapposter-app/tileprovider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls int32
	renderservice.MapTileProvider
}

func (p *countingProvider) Fetch(ctx context.Context, center mapposter.LatLng, zoom mapposter.ZoomLevel, viewport image.Point) (image.Image, errorsx.Error) {
	atomic.AddInt32(&p.calls, 1)
	return p.MapTileProvider.Fetch(ctx, center, zoom, viewport)
}

func newTestLogger() *logpkg.Logger {
	return logpkg.NewLogger(os.Stderr, logpkg.LogLevelDebug)
}

func newTestServer(t *testing.T) (*httptest.Server, *countingProvider) {
	logger := newTestLogger()
	provider := &countingProvider{MapTileProvider: tileprovider.NewPlaceholderProvider(tileprovider.DefaultPlaceholderStyle)}

	renderService := renderservice.NewRenderService(
		logger,
		locationresolver.NewResolver(logger, locationresolver.NewHTTPClient(), time.Second),
		provider,
		posterrenderer.NewComposer(fonts.DefaultBoldFont(), fonts.DefaultFont()),
		posterrenderer.Encode,
		posterrenderer.MapRegion.Size(),
		2,
	)

	server := httptest.NewServer(NewRouter(logger, renderService, nil))
	t.Cleanup(server.Close)

	return server, provider
}

func postRender(t *testing.T, serverURL, body string) (*http.Response, []byte) {
	resp, err := http.Post(serverURL+"/render", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, respBody
}

func TestPosterService_handlePostRender(t *testing.T) {
	server, provider := newTestServer(t)

	resp, body := postRender(t, server.URL, `{
		"title": "ŽARĖNAI",
		"subtitle": "TELŠIŲ R., LT",
		"zoom": "12",
		"maps_link": "https://maps.google.com/?q=55.7,22.3"
	}`)

	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Len(t, resp.Header.Get(RenderIDHeader), 36)
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))

	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, posterrenderer.CanvasBounds, img.Bounds())
}

func TestPosterService_handlePostRender_numericZoomAndJPEG(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := postRender(t, server.URL, `{"title": "Vilnius", "zoom": 11, "maps_link": "54.687,25.279", "output": "JPEG"}`)

	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, []byte{0xff, 0xd8}, body[:2])
}

func TestPosterService_handlePostRender_invalidZoom(t *testing.T) {
	server, provider := newTestServer(t)

	resp, body := postRender(t, server.URL, `{
		"title": "ŽARĖNAI",
		"subtitle": "TELŠIŲ R., LT",
		"zoom": "99",
		"maps_link": "https://maps.google.com/?q=55.7,22.3"
	}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(0), atomic.LoadInt32(&provider.calls))
	assert.Empty(t, resp.Header.Get(RenderIDHeader))
	snapshot.AssertMatchesSnapshot(t, "invalid_zoom", snapshot.NewTextSnapshot(string(body)))
}

func TestPosterService_handlePostRender_badRequests(t *testing.T) {
	server, provider := newTestServer(t)

	tests := []struct {
		Name string
		Body string
	}{
		{"malformed json", `{"title": `},
		{"empty title", `{"title": "", "zoom": "12", "maps_link": "55.7,22.3"}`},
		{"missing zoom", `{"title": "A", "maps_link": "55.7,22.3"}`},
		{"missing maps link", `{"title": "A", "zoom": "12"}`},
		{"zoom of the wrong type", `{"title": "A", "zoom": true, "maps_link": "55.7,22.3"}`},
		{"body too large", `{"title": "` + strings.Repeat("A", maxRequestBodyBytes) + `", "zoom": "12", "maps_link": "55.7,22.3"}`},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			resp, body := postRender(t, server.URL, test.Body)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
			assert.Contains(t, string(body), `"code":"BadRequest"`)
		})
	}

	assert.Equal(t, int32(0), atomic.LoadInt32(&provider.calls))
}

func TestPosterService_handlePostRender_unresolvableLocation(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := postRender(t, server.URL, `{"title": "A", "zoom": "12", "maps_link": "ftp://example.com/map"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), `"code":"UnresolvableLocation"`)
}

type fakeRenderer struct {
	err errorsx.Error
}

func (r *fakeRenderer) Render(ctx context.Context, req mapposter.RenderRequest) (*renderservice.RenderResult, errorsx.Error) {
	return nil, r.err
}

func TestPosterService_errorStatusCodes(t *testing.T) {
	tests := []struct {
		Err                error
		ExpectedStatusCode int
		ExpectedBody       string
	}{
		{mapposter.NewError(mapposter.CodeResolveTimeout, "resolving the link timed out"), http.StatusGatewayTimeout, `{"code":"ResolveTimeout","message":"resolving the link timed out"}`},
		{mapposter.NewError(mapposter.CodeProviderError, "tile server is unavailable"), http.StatusBadGateway, `{"code":"ProviderError","message":"tile server is unavailable"}`},
		{mapposter.NewError(mapposter.CodeProviderTimeout, "timed out"), http.StatusGatewayTimeout, `{"code":"ProviderTimeout","message":"timed out"}`},
		{mapposter.NewError(mapposter.CodeEncodingError, "poster canvas is empty"), http.StatusInternalServerError, `{"code":"EncodingError","message":"poster canvas is empty"}`},
		// details of uncoded errors are not leaked
		{errorsx.Errorf("secret detail"), http.StatusInternalServerError, `{"code":"InternalError","message":"internal error"}`},
	}

	for _, test := range tests {
		t.Run(test.Err.Error(), func(t *testing.T) {
			ps := NewPosterService(newTestLogger(), &fakeRenderer{errorsx.Wrap(test.Err)})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
			ps.ServeHTTP(w, r)

			assert.Equal(t, test.ExpectedStatusCode, w.Code)
			assert.Equal(t, test.ExpectedBody+"\n", w.Body.String())
		})
	}
}
