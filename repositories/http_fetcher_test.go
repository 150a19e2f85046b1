package repositories

import (
	"context"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectFetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Cookie"))
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	resp, err := NewDirectFetch(time.Second, "").Fetch(context.Background(), server.URL+"/pic.png")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "png-bytes", string(body))
	assert.Equal(t, "image/png", resp.ContentType)
}

func TestDirectFetch_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewDirectFetch(time.Second, "").Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 403: Forbidden")
}

func TestDirectFetch_NetworkError(t *testing.T) {
	_, err := NewDirectFetch(time.Second, "").Fetch(context.Background(), "http://invalid-url-that-should-fail.invalid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network error while fetching image")
}

func TestDirectFetch_CORS(t *testing.T) {
	allow := ""
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://plugin.example", r.Header.Get("Origin"))
		if allow != "" {
			w.Header().Set("Access-Control-Allow-Origin", allow)
		}
		w.Write([]byte("x"))
	}))
	defer server.Close()

	fetcher := NewDirectFetch(time.Second, "https://plugin.example")

	_, err := fetcher.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORS")

	for _, value := range []string{"*", "https://plugin.example"} {
		allow = value
		resp, err := fetcher.Fetch(context.Background(), server.URL)
		require.NoError(t, err, value)
		resp.Body.Close()
	}

	allow = "https://other.example"
	_, err = fetcher.Fetch(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestImageRasterizer_CORS(t *testing.T) {
	allow := ""
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://plugin.example", r.Header.Get("Origin"))
		if allow != "" {
			w.Header().Set("Access-Control-Allow-Origin", allow)
		}
		w.Header().Set("Content-Type", "image/png")
		png.Encode(w, image.NewNRGBA(image.Rect(0, 0, 2, 2)))
	}))
	defer server.Close()

	direct := NewDirectFetch(time.Second, "https://plugin.example")
	canvas := NewCanvasDecodeFetch(NewImageRasterizer(time.Second, "https://plugin.example", 1<<20))

	_, err := direct.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	_, err = canvas.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORS")

	allow = "https://plugin.example"
	resp, err := canvas.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestProxyFetch_EscapesTarget(t *testing.T) {
	var gotTarget, rawQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTarget = r.URL.Query().Get("url")
		rawQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "image/gif")
		w.Write([]byte("GIF89a"))
	}))
	defer server.Close()

	target := "https://example.com/a b.gif?x=1&y=2"
	resp, err := NewProxyFetch(time.Second, server.URL+"/?url=").Fetch(context.Background(), target)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, target, gotTarget)
	assert.Equal(t, "image/gif", resp.ContentType)
	assert.Equal(t, "url="+url.QueryEscape(target), rawQuery)
}

func TestProxyFetch_NoEndpoint(t *testing.T) {
	_, err := NewProxyFetch(time.Second, "").Fetch(context.Background(), "https://example.com/a.png")
	assert.Error(t, err)
}

func TestLowLevelFetch_Headers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("User-Agent"))
		assert.Equal(t, "image/*", r.Header.Get("Accept"))
		assert.Empty(t, r.Header.Get("Accept-Encoding"))
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	resp, err := NewLowLevelFetch(time.Second).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestLowLevelFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewLowLevelFetch(50*time.Millisecond).Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out after 50ms")
}
