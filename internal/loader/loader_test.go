package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/Zachdehooge/structure-map/internal/fetcher"
	"github.com/Zachdehooge/structure-map/internal/mapview"
	"github.com/Zachdehooge/structure-map/internal/routes"
)

type stubFetcher struct {
	fc  *fetcher.FeatureCollection
	err error
	got string
}

func (s *stubFetcher) Fetch(ctx context.Context, urlOrPath string) (*fetcher.FeatureCollection, error) {
	s.got = urlOrPath
	return s.fc, s.err
}

func okImages(ctx context.Context, url string) (mapview.Image, error) {
	return mapview.Image{URL: url, Width: 24, Height: 24}, nil
}

func TestFilesFor(t *testing.T) {
	f := FilesFor("http://localhost:8888/structure12/structure")
	if f.Elements != "http://localhost:8888/structure12/structure_elements.geojson" ||
		f.Stations != "http://localhost:8888/structure12/structure_stations.geojson" ||
		f.StationRoutes != "http://localhost:8888/structure12/structure_station_routes.geojson" {
		t.Errorf("FilesFor = %+v", f)
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct{ origin, in, want string }{
		{"http://localhost:8080", "/data/x.geojson", "http://localhost:8080/data/x.geojson"},
		{"http://localhost:8080/", "/data/x.geojson", "http://localhost:8080/data/x.geojson"},
		{"http://localhost:8080", "https://other/x", "https://other/x"},
		{"http://localhost:8080", "//cdn/x", "//cdn/x"},
		{"", "/data/x.geojson", "/data/x.geojson"},
	}
	for _, tt := range tests {
		if got := ResolveURL(tt.origin, tt.in); got != tt.want {
			t.Errorf("ResolveURL(%q, %q) = %q, want %q", tt.origin, tt.in, got, tt.want)
		}
	}
}

func TestAttachPointsAndRouteLayers(t *testing.T) {
	c := mapview.NewCanvas(okImages)
	l := New(c, Options{Files: FilesFor("/data/structure")})
	cell := routes.NewCell()

	if err := l.AttachPoints(); err != nil {
		t.Fatalf("AttachPoints: %v", err)
	}
	if err := l.AttachRouteLayers(cell); err != nil {
		t.Fatalf("AttachRouteLayers: %v", err)
	}

	src, ok := c.Source(PointsSource)
	if !ok || src.Data != "/data/structure_elements.geojson" {
		t.Errorf("points source = %+v", src)
	}
	pl, _ := c.Layer(PointLayer)
	if pl.MinZoom != 15 || pl.Type != mapview.TypeCircle {
		t.Errorf("point layer = %+v", pl)
	}
	for _, id := range RouteLayers {
		rl, ok := c.Layer(id)
		if !ok || rl.Visibility() != mapview.Hidden {
			t.Errorf("%s should exist hidden: %+v", id, rl)
		}
	}
	rs, _ := c.Source(RouteSource)
	if rs.Data != cell.Get() {
		t.Error("route source must start bound to the cell placeholder")
	}
}

func TestStationsGatedOnIcon(t *testing.T) {
	c := mapview.NewCanvas(func(ctx context.Context, url string) (mapview.Image, error) {
		return mapview.Image{}, errors.New("404")
	})
	l := New(c, Options{Files: FilesFor("/data/structure")})

	_, err := l.LoadMarker(context.Background())
	if !errors.Is(err, ErrIconLoad) {
		t.Fatalf("LoadMarker err = %v, want ErrIconLoad", err)
	}
	if _, ok := c.Source(NamesSource); ok {
		t.Error("names source must not be attached when the icon fails")
	}

	c = mapview.NewCanvas(okImages)
	l = New(c, Options{Files: FilesFor("/data/structure"), IconURL: "/static/marker.png", Origin: "http://h"})
	img, err := l.LoadMarker(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if img.URL != "http://h/static/marker.png" {
		t.Errorf("icon url = %q", img.URL)
	}
	if err := l.AttachStations(img); err != nil {
		t.Fatalf("AttachStations: %v", err)
	}
	nl, ok := c.Layer(NameLayer)
	if !ok || nl.Layout["icon-image"] != MarkerImage || nl.Layout["icon-size"] != 0.75 {
		t.Errorf("name layer = %+v", nl)
	}
	if !c.HasImage(MarkerImage) {
		t.Error("marker image not registered")
	}
}

func TestResolveStationRoutesSharesCollection(t *testing.T) {
	c := mapview.NewCanvas(okImages)
	fc := fetcher.NewFeatureCollection()
	fc.Append(
		fetcher.NewFeature(nil, fetcher.Properties{{Key: "name", Value: "R1"}}),
		fetcher.NewFeature(nil, fetcher.Properties{{Key: "name", Value: "R2"}}),
	)
	stub := &stubFetcher{fc: fc}
	l := New(c, Options{Files: FilesFor("/data/structure"), Origin: "http://h", Fetcher: stub})
	cell := routes.NewCell()
	sel := routes.NewSelector(c, cell, RouteLayers...)
	if err := l.AttachRouteLayers(cell); err != nil {
		t.Fatal(err)
	}

	got, err := l.FetchStationRoutes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stub.got != "http://h/data/structure_station_routes.geojson" {
		t.Errorf("fetched %q", stub.got)
	}
	if err := l.ResolveStationRoutes(cell, sel, got); err != nil {
		t.Fatal(err)
	}

	src, _ := c.Source(RouteSource)
	if src.Data != cell.Get() || cell.Get() != fc {
		t.Error("route source and selector must share the fetched collection")
	}
	opts := sel.Options()
	if len(opts) != 3 || opts[1].Value != "R1" || opts[2].Value != "R2" {
		t.Errorf("options = %+v", opts)
	}

	// A second resolution is ignored.
	if err := l.ResolveStationRoutes(cell, sel, fetcher.NewFeatureCollection()); err != nil {
		t.Fatal(err)
	}
	if cell.Get() != fc {
		t.Error("cell was overwritten")
	}
}

func TestFetchStationRoutesError(t *testing.T) {
	l := New(mapview.NewCanvas(okImages), Options{Files: FilesFor("x"), Fetcher: &stubFetcher{err: errors.New("boom")}})
	if _, err := l.FetchStationRoutes(context.Background()); err == nil {
		t.Error("expected fetch error")
	}
}
