package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bluele/gcache"
)

const userAgent = "structure-map/1.0 (github.com/Zachdehooge/structure-map)"

// Fetcher loads a GeoJSON document from a URL or a local path.
type Fetcher interface {
	Fetch(ctx context.Context, urlOrPath string) (*FeatureCollection, error)
}

// Client fetches GeoJSON documents over HTTP or from disk.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a client using hc, or a plain http.Client when hc is nil.
// Fetches have no deadline beyond their context.
func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{httpClient: hc}
}

// IsRemote reports whether urlOrPath should be fetched over HTTP.
func IsRemote(urlOrPath string) bool {
	return strings.HasPrefix(urlOrPath, "http://") || strings.HasPrefix(urlOrPath, "https://")
}

// Fetch retrieves and parses a FeatureCollection.
func (c *Client) Fetch(ctx context.Context, urlOrPath string) (*FeatureCollection, error) {
	body, err := c.FetchRaw(ctx, urlOrPath)
	if err != nil {
		return nil, err
	}
	fc, err := Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", urlOrPath, err)
	}
	return fc, nil
}

// FetchRaw returns the raw bytes behind urlOrPath.
func (c *Client) FetchRaw(ctx context.Context, urlOrPath string) ([]byte, error) {
	if urlOrPath == "" {
		return nil, fmt.Errorf("empty data location")
	}

	if !IsRemote(urlOrPath) {
		data, err := os.ReadFile(urlOrPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", urlOrPath, err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlOrPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", urlOrPath, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, urlOrPath)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// Cached memoizes parsed collections by location for a fixed time.
// Callers must treat returned collections as read-only.
type Cached struct {
	next  Fetcher
	cache gcache.Cache
	ttl   time.Duration
}

// NewCached wraps next in an LRU of the given size.
func NewCached(next Fetcher, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = 16
	}
	return &Cached{
		next:  next,
		cache: gcache.New(size).LRU().Build(),
		ttl:   ttl,
	}
}

// Fetch returns a cached collection or loads it through the wrapped fetcher.
// Failures are never cached.
func (c *Cached) Fetch(ctx context.Context, urlOrPath string) (*FeatureCollection, error) {
	if v, err := c.cache.Get(urlOrPath); err == nil {
		if fc, ok := v.(*FeatureCollection); ok {
			return fc, nil
		}
	}

	fc, err := c.next.Fetch(ctx, urlOrPath)
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 {
		_ = c.cache.SetWithExpire(urlOrPath, fc, c.ttl)
	} else {
		_ = c.cache.Set(urlOrPath, fc)
	}
	return fc, nil
}

// Purge drops every cached collection.
func (c *Cached) Purge() {
	c.cache.Purge()
}

// Local maps locations under a URL path prefix onto a directory, so files the
// server publishes at /data/ are read straight from disk. Other locations go
// to next.
type Local struct {
	next   Fetcher
	prefix string
	dir    string
}

// NewLocal returns a Local serving prefix (e.g. "/data/") from dir.
func NewLocal(next Fetcher, prefix, dir string) *Local {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Local{next: next, prefix: prefix, dir: dir}
}

// Path returns the file backing location, if it is under the prefix.
func (l *Local) Path(location string) (string, bool) {
	if l.dir == "" || !strings.HasPrefix(location, l.prefix) {
		return "", false
	}
	rel := filepath.FromSlash(strings.TrimPrefix(location, l.prefix))
	if rel == "" || strings.Contains(rel, "..") {
		return "", false
	}
	return filepath.Join(l.dir, rel), true
}

// Fetch reads mapped locations from disk and delegates the rest.
func (l *Local) Fetch(ctx context.Context, location string) (*FeatureCollection, error) {
	if p, ok := l.Path(location); ok {
		return l.next.Fetch(ctx, p)
	}
	return l.next.Fetch(ctx, location)
}
