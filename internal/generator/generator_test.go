package generator

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Zachdehooge/structure-map/internal/fetcher"
	"github.com/Zachdehooge/structure-map/internal/frontend"
	"github.com/Zachdehooge/structure-map/internal/loader"
	"github.com/Zachdehooge/structure-map/internal/mapview"
)

type staticFetcher struct{}

func (staticFetcher) Fetch(ctx context.Context, urlOrPath string) (*fetcher.FeatureCollection, error) {
	fc := fetcher.NewFeatureCollection()
	fc.Append(fetcher.NewFeature(nil, fetcher.Properties{{Key: "name", Value: "R1"}}))
	return fc, nil
}

func testPage(t *testing.T) Page {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	c := mapview.NewCanvas(func(ctx context.Context, url string) (mapview.Image, error) {
		return mapview.Image{URL: url, Width: 24, Height: 24}, nil
	})
	f := frontend.New(c, frontend.Options{
		Href:    "http://localhost:8080/#style=background",
		Files:   loader.FilesFor("/data/structure"),
		Fetcher: staticFetcher{},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	go func() { _ = f.Run(ctx) }()
	if err := f.MapReady(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.Settle(ctx); err != nil {
		t.Fatal(err)
	}
	return Build(f, c, MapOptions{
		Center:    [2]float64{8.6671065, 49.8747541},
		Zoom:      14,
		MaxBounds: [2][2]float64{{-31, 35}, {48, 62}},
		Hash:      "location",
	}, "http://localhost:8080")
}

func TestRenderPage(t *testing.T) {
	p := testPage(t)
	if p.Style != "background" {
		t.Errorf("style = %q", p.Style)
	}
	if len(p.State.HoverLayers) != 2 || len(p.State.ClickLayers) != 2 {
		t.Errorf("layers click=%v hover=%v", p.State.ClickLayers, p.State.HoverLayers)
	}

	var buf bytes.Buffer
	if err := Render(&buf, p); err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := buf.String()
	for _, want := range []string{
		`id="mySidepanel"`,
		`id="closeBtn"`,
		`id="infoContent"`,
		`id="stationRouteSelector"`,
		`<option value="none">none</option>`,
		`"station-route-way-layer"`,
		`"custom-marker"`,
		`"/data/structure_elements.geojson"`,
		`"hash":"location"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %s", want)
		}
	}
}

func TestPageListsLoadedRoutes(t *testing.T) {
	p := testPage(t)
	if len(p.RouteOptions) != 2 || p.RouteOptions[1].Value != "R1" {
		t.Fatalf("RouteOptions = %+v", p.RouteOptions)
	}

	var buf bytes.Buffer
	if err := Render(&buf, p); err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := buf.String()
	none := strings.Index(html, `<option value="none">none</option>`)
	r1 := strings.Index(html, `<option value="R1">R1</option>`)
	if none < 0 || r1 < 0 || r1 < none {
		t.Errorf("selector options missing or out of order (none at %d, R1 at %d)", none, r1)
	}
}

func TestGenerateWritesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "structure-map.html")
	if err := Generate(testPage(t), out); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "<!DOCTYPE html>") {
		t.Errorf("unexpected output start: %.40s", data)
	}
}

func TestWatchRegeneratesOnChange(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "structure_elements.geojson")
	if err := os.WriteFile(file, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var calls atomic.Int32
	fired := make(chan struct{}, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, []string{file}, 20*time.Millisecond, func() error {
			calls.Add(1)
			select {
			case fired <- struct{}{}:
			default:
			}
			return nil
		}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	// Keep writing until the watcher has picked up a change; it may not be
	// registered yet on the first write.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for done := false; !done; {
		select {
		case <-fired:
			done = true
		case <-ticker.C:
			if err := os.WriteFile(file, []byte(`{"type":"FeatureCollection","features":[]}`), 0644); err != nil {
				t.Fatal(err)
			}
		case <-ctx.Done():
			t.Fatal("watch never regenerated")
		}
	}
	cancel()
	<-errc
	if calls.Load() == 0 {
		t.Error("regenerate not called")
	}
}
