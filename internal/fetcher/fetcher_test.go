package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent header")
		}
		_, _ = w.Write([]byte(sampleRoutes))
	}))
	defer srv.Close()

	fc, err := NewClient(nil).Fetch(context.Background(), srv.URL+"/structure_station_routes.geojson")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Errorf("got %d features, want 2", len(fc.Features))
	}
}

func TestClientFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := NewClient(nil).Fetch(context.Background(), srv.URL); err == nil {
		t.Error("expected error for 404 response")
	}
}

func TestClientFetchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "structure_elements.geojson")
	if err := os.WriteFile(path, []byte(sampleRoutes), 0644); err != nil {
		t.Fatal(err)
	}
	fc, err := NewClient(nil).Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := fc.Features[1].Name(); got != "R2" {
		t.Errorf("second feature name = %q, want R2", got)
	}

	if _, err := NewClient(nil).Fetch(context.Background(), ""); err == nil {
		t.Error("expected error for empty location")
	}
}

type countingFetcher struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingFetcher) Fetch(ctx context.Context, urlOrPath string) (*FeatureCollection, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, context.DeadlineExceeded
	}
	return NewFeatureCollection(), nil
}

func TestCachedFetch(t *testing.T) {
	next := &countingFetcher{}
	c := NewCached(next, 4, time.Minute)

	a, err := c.Fetch(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Fetch(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("cached fetch should return the same collection")
	}
	if n := next.calls.Load(); n != 1 {
		t.Errorf("underlying fetcher called %d times, want 1", n)
	}

	c.Purge()
	if _, err := c.Fetch(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if n := next.calls.Load(); n != 2 {
		t.Errorf("after purge called %d times, want 2", n)
	}
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	next := &countingFetcher{fail: true}
	c := NewCached(next, 4, 0)
	for i := 0; i < 2; i++ {
		if _, err := c.Fetch(context.Background(), "x"); err == nil {
			t.Fatal("expected error")
		}
	}
	if n := next.calls.Load(); n != 2 {
		t.Errorf("underlying fetcher called %d times, want 2", n)
	}
}

func TestLocalMapsPrefix(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "structure_stations.geojson"),
		[]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":null,"properties":{"name":"Hbf"}}]}`), 0644); err != nil {
		t.Fatal(err)
	}
	l := NewLocal(NewClient(nil), "/data", dir)

	p, ok := l.Path("/data/structure_stations.geojson")
	if !ok || p != filepath.Join(dir, "structure_stations.geojson") {
		t.Errorf("Path = %q, %v", p, ok)
	}
	if _, ok := l.Path("/data/../secret"); ok {
		t.Error("parent path mapped")
	}
	if _, ok := l.Path("http://example.com/data/x.geojson"); ok {
		t.Error("remote location mapped")
	}

	fc, err := l.Fetch(context.Background(), "/data/structure_stations.geojson")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if names := fc.Names(); len(names) != 1 || names[0] != "Hbf" {
		t.Errorf("names = %v", names)
	}
}
