package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/natefinch/atomic"

	"github.com/Zachdehooge/structure-map/internal/dispatch"
	"github.com/Zachdehooge/structure-map/internal/frontend"
	"github.com/Zachdehooge/structure-map/internal/loader"
	"github.com/Zachdehooge/structure-map/internal/mapview"
	"github.com/Zachdehooge/structure-map/internal/routes"
)

// MapOptions is the initial map view handed to the renderer.
type MapOptions struct {
	Center    [2]float64    `json:"center"`
	Zoom      float64       `json:"zoom"`
	Bearing   float64       `json:"bearing"`
	MaxBounds [2][2]float64 `json:"maxBounds"`
	Hash      string        `json:"hash"`
}

// PageState is the JSON blob the page script replays onto the map.
type PageState struct {
	Map         MapOptions       `json:"map"`
	View        mapview.Snapshot `json:"view"`
	ClickLayers []string         `json:"clickLayers"`
	HoverLayers []string         `json:"hoverLayers"`
	RouteSource string           `json:"routeSource"`
}

// Page is everything the template renders.
type Page struct {
	Title        string
	Style        string
	APIBase      string
	UpdatedAt    string
	RouteOptions []routes.Option
	State        PageState
}

// Build assembles a page from a running frontend and the canvas it drives.
func Build(f *frontend.Frontend, c *mapview.Canvas, opts MapOptions, apiBase string) Page {
	return Page{
		Title:        "Structure Map",
		Style:        f.Style().String(),
		APIBase:      apiBase,
		UpdatedAt:    time.Now().UTC().Format("Jan 2, 2006 at 03:04:05 UTC"),
		RouteOptions: f.RouteOptions(),
		State: PageState{
			Map:         opts,
			View:        c.Snapshot(),
			ClickLayers: f.ClickableLayers(),
			HoverLayers: hoverLayers(f.Bindings()),
			RouteSource: loader.RouteSource,
		},
	}
}

func hoverLayers(keys []dispatch.Key) []string {
	seen := map[string]bool{}
	var out []string
	for _, k := range keys {
		if k.Event != dispatch.MouseEnter || seen[k.Layer] {
			continue
		}
		seen[k.Layer] = true
		out = append(out, k.Layer)
	}
	return out
}

// Render writes the page HTML to w.
func Render(w io.Writer, p Page) error {
	return pageTemplate.Execute(w, p)
}

// Generate renders the page and atomically replaces outputPath, so a browser
// never reads a partial file.
func Generate(p Page, outputPath string) error {
	var buf bytes.Buffer
	if err := Render(&buf, p); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	if err := atomic.WriteFile(outputPath, &buf); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return nil
}

func toJSON(v interface{}) (template.JS, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return template.JS(b), nil
}

// Watch calls regenerate whenever one of files changes, coalescing bursts of
// events within debounce. It returns when ctx ends.
func Watch(ctx context.Context, files []string, debounce time.Duration, regenerate func() error, log *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	// Watch directories: editors often replace files, which drops a file watch.
	wanted := map[string]bool{}
	dirs := map[string]bool{}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		wanted[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("failed to watch %s: %w", d, err)
		}
	}
	log.Info("watch_started", "files", len(wanted))

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(ev.Name)
			if !wanted[abs] || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("watch_event", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error("watch_error", "err", err)
		case <-fire:
			fire = nil
			if err := regenerate(); err != nil {
				log.Error("regenerate_error", "err", err)
			}
		}
	}
}
