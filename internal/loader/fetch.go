package loader

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Fetcher reads the raw bytes of a location.
type Fetcher interface {
	Fetch(ctx context.Context, loc Location) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, loc Location) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	return f(ctx, loc)
}

// FileFetcher reads documents from disk. Gzip files are decompressed.
type FileFetcher struct{}

// Fetch reads loc.Target.
func (FileFetcher) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(loc.Target)
	if err != nil {
		return nil, err
	}
	return gunzip(data)
}

// HTTPFetcher downloads documents over HTTP.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPClient returns a client tuned for a handful of hosts serving large files.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: timeout,
	}
}

// Fetch performs a GET on loc.Target. Any status other than 200 is an error.
func (f HTTPFetcher) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.Target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return gunzip(data)
}

// MultiFetcher dispatches on the location kind.
type MultiFetcher struct {
	File    Fetcher
	HTTP    Fetcher
	PostGIS Fetcher
}

// Fetch forwards to the fetcher registered for loc.Kind.
func (m MultiFetcher) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	var f Fetcher
	switch loc.Kind {
	case KindFile:
		f = m.File
	case KindHTTP:
		f = m.HTTP
	case KindPostGIS:
		f = m.PostGIS
	}
	if f == nil {
		return nil, fmt.Errorf("no fetcher for %s location %q", loc.Kind, loc.ID)
	}
	return f.Fetch(ctx, loc)
}

var gzipMagic = []byte{0x1f, 0x8b}

// gunzip decompresses data when it carries the gzip magic header.
func gunzip(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, gzipMagic) {
		return data, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer func() { _ = r.Close() }()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return out, nil
}
