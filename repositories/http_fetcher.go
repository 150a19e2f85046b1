package repositories

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

// DirectFetch requests the image from its origin without credentials. When an origin is
// configured the response must allow it, the way a browser enforces CORS.
type DirectFetch struct {
	client *http.Client
	origin string
}

func NewDirectFetch(timeout time.Duration, origin string) *DirectFetch {
	return &DirectFetch{
		// no cookie jar: credentials are never sent
		client: &http.Client{Timeout: timeout},
		origin: origin,
	}
}

func (f *DirectFetch) Kind() domain.StrategyKind { return domain.StrategyDirect }

func (f *DirectFetch) Fetch(ctx context.Context, target string) (*domain.FetchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := doCORSGet(f.client, req, f.origin)
	if err != nil {
		return nil, err
	}
	return toFetchResponse(resp), nil
}

// doCORSGet sends origin and rejects responses that do not allow it. An empty origin
// disables the check.
func doCORSGet(client *http.Client, req *http.Request, origin string) (*http.Response, error) {
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp, err := doGet(client, req)
	if err != nil {
		return nil, err
	}
	if origin != "" && !allowsOrigin(resp.Header.Get("Access-Control-Allow-Origin"), origin) {
		resp.Body.Close()
		return nil, fmt.Errorf("CORS: no Access-Control-Allow-Origin for %s", origin)
	}
	return resp, nil
}

func allowsOrigin(header, origin string) bool {
	header = strings.TrimSpace(header)
	return header == "*" || strings.EqualFold(strings.TrimRight(header, "/"), strings.TrimRight(origin, "/"))
}

// ProxyFetch goes through a CORS relay; the target URL is query-escaped and appended to
// the relay endpoint.
type ProxyFetch struct {
	client   *http.Client
	endpoint string
}

func NewProxyFetch(timeout time.Duration, endpoint string) *ProxyFetch {
	return &ProxyFetch{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
	}
}

func (f *ProxyFetch) Kind() domain.StrategyKind { return domain.StrategyProxy }

func (f *ProxyFetch) Fetch(ctx context.Context, target string) (*domain.FetchResponse, error) {
	if f.endpoint == "" {
		return nil, errors.New("no proxy endpoint configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+url.QueryEscape(target), nil)
	if err != nil {
		return nil, err
	}
	resp, err := doGet(f.client, req)
	if err != nil {
		return nil, err
	}
	return toFetchResponse(resp), nil
}

// LowLevelFetch uses a bare transport with an explicit timeout and sends no headers but
// Accept. It covers hosts that reject the headers other clients attach.
type LowLevelFetch struct {
	client  *http.Client
	timeout time.Duration
}

func NewLowLevelFetch(timeout time.Duration) *LowLevelFetch {
	return &LowLevelFetch{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:              http.ProxyFromEnvironment,
				DisableCompression: true,
				DisableKeepAlives:  true,
			},
		},
		timeout: timeout,
	}
}

func (f *LowLevelFetch) Kind() domain.StrategyKind { return domain.StrategyLowLevel }

func (f *LowLevelFetch) Fetch(ctx context.Context, target string) (*domain.FetchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	// An empty User-Agent suppresses the default one.
	req.Header.Set("User-Agent", "")
	req.Header.Set("Accept", "image/*")

	resp, err := doGet(f.client, req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("request timed out after %s: %w", f.timeout, err)
		}
		return nil, err
	}
	return toFetchResponse(resp), nil
}

func doGet(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error while fetching image: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, statusText(resp))
	}
	return resp, nil
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return "Error fetching image"
}

func toFetchResponse(resp *http.Response) *domain.FetchResponse {
	return &domain.FetchResponse{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
	}
}

// readAllLimited reads at most max bytes and fails when the body is larger.
func readAllLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("image exceeds maximum size of %d bytes", max)
	}
	return data, nil
}
