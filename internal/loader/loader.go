// Package loader attaches the structure datasets to the map and declares how
// each one is drawn.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Zachdehooge/structure-map/internal/fetcher"
	"github.com/Zachdehooge/structure-map/internal/mapview"
	"github.com/Zachdehooge/structure-map/internal/metrics"
	"github.com/Zachdehooge/structure-map/internal/routes"
)

// DefaultMarkerIcon is the station icon the name layer uses.
const DefaultMarkerIcon = "https://img.icons8.com/material-outlined/24/000000/railway-station.png"

// ErrIconLoad marks a failed marker icon load. It aborts the station layer.
var ErrIconLoad = errors.New("marker icon load failed")

// Files are the three dataset locations derived from a common prefix.
type Files struct {
	Elements      string `json:"elements"`
	Stations      string `json:"stations"`
	StationRoutes string `json:"stationRoutes"`
}

// FilesFor derives dataset locations from prefix, e.g.
// "http://localhost:8888/structure12/structure" or "/data/structure".
func FilesFor(prefix string) Files {
	return Files{
		Elements:      prefix + "_elements.geojson",
		Stations:      prefix + "_stations.geojson",
		StationRoutes: prefix + "_station_routes.geojson",
	}
}

// ResolveURL resolves a root-relative location against origin, the way the
// page rewrites requests for paths starting with "/". Other locations pass
// through untouched.
func ResolveURL(origin, location string) string {
	if origin == "" || !strings.HasPrefix(location, "/") || strings.HasPrefix(location, "//") {
		return location
	}
	return strings.TrimSuffix(origin, "/") + location
}

// Loader attaches sources and layers for the three datasets.
type Loader struct {
	m       mapview.Map
	files   Files
	iconURL string
	origin  string
	fetch   fetcher.Fetcher
	log     *slog.Logger
}

// Options configures a Loader.
type Options struct {
	Files   Files
	IconURL string
	// Origin resolves root-relative locations for fetches made from Go.
	Origin  string
	Fetcher fetcher.Fetcher
	Logger  *slog.Logger
}

// New returns a loader bound to m.
func New(m mapview.Map, opts Options) *Loader {
	if opts.IconURL == "" {
		opts.IconURL = DefaultMarkerIcon
	}
	if opts.Fetcher == nil {
		opts.Fetcher = fetcher.NewClient(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loader{
		m:       m,
		files:   opts.Files,
		iconURL: opts.IconURL,
		origin:  opts.Origin,
		fetch:   opts.Fetcher,
		log:     opts.Logger,
	}
}

// Files returns the dataset locations the loader uses.
func (l *Loader) Files() Files { return l.files }

// AttachPoints binds the elements file by reference; the renderer fetches it.
func (l *Loader) AttachPoints() error {
	if err := l.m.AddSource(PointsSource, mapview.Source{Type: "geojson", Data: l.files.Elements}); err != nil {
		return fmt.Errorf("points source: %w", err)
	}
	if err := l.m.AddLayer(PointLayerSpec()); err != nil {
		return fmt.Errorf("points layer: %w", err)
	}
	return nil
}

// AttachRouteLayers binds the route source to the cell's current collection
// (the empty placeholder until the fetch lands) and adds both hidden route layers.
func (l *Loader) AttachRouteLayers(cell *routes.Cell) error {
	if err := l.m.AddSource(RouteSource, mapview.Source{Type: "geojson", Data: cell.Get()}); err != nil {
		return fmt.Errorf("route source: %w", err)
	}
	for _, spec := range []mapview.Layer{RoutePointLayerSpec(), RouteWayLayerSpec()} {
		if err := l.m.AddLayer(spec); err != nil {
			return fmt.Errorf("route layer: %w", err)
		}
	}
	return nil
}

// LoadMarker fetches the station icon. A failure is wrapped in ErrIconLoad.
func (l *Loader) LoadMarker(ctx context.Context) (mapview.Image, error) {
	img, err := l.m.LoadImage(ctx, ResolveURL(l.origin, l.iconURL))
	if err != nil {
		metrics.IconLoadFailTotal.Inc()
		return mapview.Image{}, fmt.Errorf("%w: %v", ErrIconLoad, err)
	}
	return img, nil
}

// AttachStations registers the icon and binds the stations file and its symbol layer.
func (l *Loader) AttachStations(img mapview.Image) error {
	if err := l.m.AddImage(MarkerImage, img); err != nil {
		return fmt.Errorf("marker image: %w", err)
	}
	if err := l.m.AddSource(NamesSource, mapview.Source{Type: "geojson", Data: l.files.Stations}); err != nil {
		return fmt.Errorf("names source: %w", err)
	}
	if err := l.m.AddLayer(NameLayerSpec()); err != nil {
		return fmt.Errorf("names layer: %w", err)
	}
	return nil
}

// FetchStationRoutes downloads the station-routes document. There is no
// retry and no timeout beyond ctx.
func (l *Loader) FetchStationRoutes(ctx context.Context) (*fetcher.FeatureCollection, error) {
	fc, err := l.fetch.Fetch(ctx, ResolveURL(l.origin, l.files.StationRoutes))
	if err != nil {
		metrics.RoutesFetchFailTotal.Inc()
		return nil, err
	}
	return fc, nil
}

// ResolveStationRoutes publishes fc: the cell takes it, the route source is
// rebound to the very same collection, and the selector is repopulated from it.
func (l *Loader) ResolveStationRoutes(cell *routes.Cell, sel *routes.Selector, fc *fetcher.FeatureCollection) error {
	if !cell.Resolve(fc) {
		l.log.Debug("routes_already_resolved")
		return nil
	}
	if err := l.m.SetSourceData(RouteSource, cell.Get()); err != nil {
		return fmt.Errorf("route source: %w", err)
	}
	opts := sel.Populate()
	metrics.RoutesLoadedTotal.Inc()
	l.log.Info("routes_loaded", "count", len(opts)-1)
	return nil
}
