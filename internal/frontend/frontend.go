// Package frontend runs the map's event loop. Every map mutation happens on
// the loop goroutine; network completions post their follow-up work back to
// it, so components never race on the map or on each other.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Zachdehooge/structure-map/internal/dispatch"
	"github.com/Zachdehooge/structure-map/internal/fetcher"
	"github.com/Zachdehooge/structure-map/internal/loader"
	"github.com/Zachdehooge/structure-map/internal/mapview"
	"github.com/Zachdehooge/structure-map/internal/metrics"
	"github.com/Zachdehooge/structure-map/internal/panel"
	"github.com/Zachdehooge/structure-map/internal/routes"
	"github.com/Zachdehooge/structure-map/internal/style"
)

var (
	ErrNotReady = errors.New("map style not loaded")
	ErrStopped  = errors.New("event loop stopped")
)

// Resetter is implemented by maps that can drop their state on a style change.
type Resetter interface {
	Reset()
}

// Options configures a Frontend.
type Options struct {
	// Href is the page URL; its style parameter picks the base style.
	Href    string
	Files   loader.Files
	IconURL string
	Origin  string
	Fetcher fetcher.Fetcher
	Logger  *slog.Logger
}

type task struct {
	fn   func(ctx context.Context) error
	done chan error
}

// Frontend wires the style registry, data loader, dispatcher, info panel
// and route selector to one map.
type Frontend struct {
	m     mapview.Map
	opts  Options
	log   *slog.Logger
	panel *panel.Controller
	tasks chan task

	runMu  sync.Mutex
	runCtx context.Context

	async errgroup.Group

	mu       sync.RWMutex
	href     string
	style    style.Name
	gen      int
	table    *dispatch.Table
	cell     *routes.Cell
	selector *routes.Selector
	loader   *loader.Loader
	cursor   string
	failures []error
}

// New returns a frontend for m. Call Run before sending events.
func New(m mapview.Map, opts Options) *Frontend {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Frontend{
		m:     m,
		opts:  opts,
		log:   opts.Logger,
		panel: panel.NewController(),
		tasks: make(chan task, 64),
		href:  opts.Href,
	}
}

// Run processes events until ctx ends. Handler errors are logged and
// recorded; they abort only the handler that raised them.
func (f *Frontend) Run(ctx context.Context) error {
	f.runMu.Lock()
	f.runCtx = ctx
	f.runMu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-f.tasks:
			err := t.fn(ctx)
			if err != nil && t.done == nil {
				f.fail(err)
			}
			if t.done != nil {
				t.done <- err
			}
		}
	}
}

func (f *Frontend) fail(err error) {
	metrics.HandlerErrorsTotal.Inc()
	f.log.Error("handler_error", "err", err)
	f.mu.Lock()
	f.failures = append(f.failures, err)
	f.mu.Unlock()
}

func (f *Frontend) baseCtx() context.Context {
	f.runMu.Lock()
	defer f.runMu.Unlock()
	if f.runCtx == nil {
		return context.Background()
	}
	return f.runCtx
}

// Do runs fn on the loop and waits for its result.
func (f *Frontend) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	t := task{fn: fn, done: make(chan error, 1)}
	select {
	case f.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. Used by async completions.
func (f *Frontend) post(fn func(ctx context.Context) error) {
	select {
	case f.tasks <- task{fn: fn}:
	case <-f.baseCtx().Done():
		f.log.Debug("completion_dropped", "reason", ErrStopped)
	}
}

// MapReady applies the style named in the page URL, then runs style-ready.
func (f *Frontend) MapReady(ctx context.Context) error {
	return f.Do(ctx, func(ctx context.Context) error {
		return f.applyStyle(ctx)
	})
}

// Reload switches to the style named in href. Sources, layers, filters and
// the route selection are rebuilt from scratch.
func (f *Frontend) Reload(ctx context.Context, href string) error {
	return f.Do(ctx, func(ctx context.Context) error {
		if r, ok := f.m.(Resetter); ok {
			r.Reset()
		}
		f.mu.Lock()
		f.href = href
		f.mu.Unlock()
		return f.applyStyle(ctx)
	})
}

func (f *Frontend) applyStyle(ctx context.Context) error {
	f.mu.RLock()
	href := f.href
	f.mu.RUnlock()

	name := style.Resolve(href)
	if err := style.For(name)(f.m); err != nil {
		return fmt.Errorf("apply style %s: %w", name, err)
	}
	metrics.StyleAppliedTotal.WithLabelValues(name.String()).Inc()
	f.log.Info("style_applied", "style", name.String())

	f.mu.Lock()
	f.style = name
	f.mu.Unlock()
	return f.styleReady(ctx)
}

// styleReady attaches data sources and layers and binds interaction
// handlers. The icon load and the routes fetch run concurrently and finish
// their own registration work whenever they complete.
func (f *Frontend) styleReady(ctx context.Context) error {
	l := loader.New(f.m, loader.Options{
		Files:   f.opts.Files,
		IconURL: f.opts.IconURL,
		Origin:  f.opts.Origin,
		Fetcher: f.opts.Fetcher,
		Logger:  f.log,
	})
	cell := routes.NewCell()
	sel := routes.NewSelector(f.m, cell, loader.RouteLayers...)
	table := f.bindHandlers()

	f.mu.Lock()
	f.gen++
	gen := f.gen
	f.loader, f.cell, f.selector, f.table = l, cell, sel, table
	f.cursor = mapview.CursorDefault
	f.mu.Unlock()

	if err := l.AttachPoints(); err != nil {
		return err
	}

	base := f.baseCtx()
	f.async.Go(func() error {
		img, err := l.LoadMarker(base)
		f.post(func(ctx context.Context) error {
			if f.stale(gen) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("station layer: %w", err)
			}
			return l.AttachStations(img)
		})
		return nil
	})

	f.async.Go(func() error {
		fc, err := l.FetchStationRoutes(base)
		if err != nil {
			// Dropped: the selector simply never populates.
			f.log.Debug("routes_fetch_dropped", "url", l.Files().StationRoutes, "err", err)
			return nil
		}
		f.post(func(ctx context.Context) error {
			if f.stale(gen) {
				return nil
			}
			return l.ResolveStationRoutes(cell, sel, fc)
		})
		return nil
	})

	return l.AttachRouteLayers(cell)
}

func (f *Frontend) stale(gen int) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return gen != f.gen
}

func (f *Frontend) bindHandlers() *dispatch.Table {
	t := dispatch.NewTable()
	t.On(dispatch.Click, loader.PointLayer, func(e dispatch.MapEvent) error {
		return f.showInfo(panel.KindPoint, e)
	})
	t.On(dispatch.Click, loader.NameLayer, func(e dispatch.MapEvent) error {
		return f.showInfo(panel.KindName, e)
	})
	for _, layer := range []string{loader.PointLayer, loader.NameLayer} {
		t.On(dispatch.MouseEnter, layer, func(dispatch.MapEvent) error {
			f.setCursor(mapview.CursorPointer)
			return nil
		})
		t.On(dispatch.MouseLeave, layer, func(dispatch.MapEvent) error {
			f.setCursor(mapview.CursorDefault)
			return nil
		})
	}
	t.On(dispatch.Click, dispatch.MapLayer, func(dispatch.MapEvent) error {
		f.closePanel()
		return nil
	})
	return t
}

func (f *Frontend) showInfo(kind panel.Kind, e dispatch.MapEvent) error {
	var props fetcher.Properties
	if feat := e.First(); feat != nil {
		props = feat.Properties
	}
	if _, err := f.panel.ShowInfo(kind, props); err != nil {
		return fmt.Errorf("render %s panel: %w", kind, err)
	}
	metrics.PanelShownTotal.WithLabelValues(string(kind)).Inc()
	return nil
}

func (f *Frontend) closePanel() panel.State {
	st := f.panel.Close()
	metrics.PanelClosedTotal.Inc()
	return st
}

func (f *Frontend) setCursor(c string) {
	f.m.SetCursor(c)
	f.mu.Lock()
	f.cursor = c
	f.mu.Unlock()
}

func (f *Frontend) currentTable() (*dispatch.Table, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.table == nil {
		return nil, ErrNotReady
	}
	return f.table, nil
}

// Click dispatches a click over hits and returns the resulting panel state.
func (f *Frontend) Click(ctx context.Context, hits []dispatch.Hit) (panel.State, error) {
	err := f.Do(ctx, func(ctx context.Context) error {
		t, err := f.currentTable()
		if err != nil {
			return err
		}
		return t.Click(hits)
	})
	return f.panel.Snapshot(), err
}

// Move dispatches pointer movement and returns the resulting cursor.
func (f *Frontend) Move(ctx context.Context, hits []dispatch.Hit) (string, error) {
	err := f.Do(ctx, func(ctx context.Context) error {
		t, err := f.currentTable()
		if err != nil {
			return err
		}
		return t.Move(hits)
	})
	return f.Cursor(), err
}

// CloseButton handles the panel's close control.
func (f *Frontend) CloseButton(ctx context.Context) (panel.State, error) {
	var st panel.State
	err := f.Do(ctx, func(ctx context.Context) error {
		st = f.closePanel()
		return nil
	})
	return st, err
}

// SelectRoute applies a selector change.
func (f *Frontend) SelectRoute(ctx context.Context, value string) ([]routes.LayerState, error) {
	var states []routes.LayerState
	err := f.Do(ctx, func(ctx context.Context) error {
		f.mu.RLock()
		sel := f.selector
		f.mu.RUnlock()
		if sel == nil {
			return ErrNotReady
		}
		var err error
		if states, err = sel.Select(value); err != nil {
			return err
		}
		label := "route"
		if sel.Selected() == routes.None {
			label = routes.None
		}
		metrics.RouteSelectionsTotal.WithLabelValues(label).Inc()
		return nil
	})
	return states, err
}

// RouteOptions returns the selector's current options.
func (f *Frontend) RouteOptions() []routes.Option {
	f.mu.RLock()
	sel := f.selector
	f.mu.RUnlock()
	if sel == nil {
		return []routes.Option{{Value: routes.None, Label: routes.None}}
	}
	return sel.Options()
}

// WaitRoutes blocks until the station routes document has been published to
// the selector, then returns its options.
func (f *Frontend) WaitRoutes(ctx context.Context) ([]routes.Option, error) {
	f.mu.RLock()
	cell := f.cell
	f.mu.RUnlock()
	if cell == nil {
		return nil, ErrNotReady
	}
	if _, err := cell.Wait(ctx); err != nil {
		return nil, err
	}
	// The cell resolves on the loop before Populate runs; a no-op round
	// trip ensures that task has finished.
	if err := f.Do(ctx, func(context.Context) error { return nil }); err != nil {
		return nil, err
	}
	return f.RouteOptions(), nil
}

// Settle waits for in-flight fetches and for the loop to apply their results.
func (f *Frontend) Settle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		_ = f.async.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return f.Do(ctx, func(context.Context) error { return nil })
}

// Panel returns the current info panel state.
func (f *Frontend) Panel() panel.State { return f.panel.Snapshot() }

// Cursor returns the canvas cursor set by the hover handlers.
func (f *Frontend) Cursor() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cursor
}

// Style returns the active style.
func (f *Frontend) Style() style.Name {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.style
}

// SelectedRoute returns the selected route or routes.None.
func (f *Frontend) SelectedRoute() string {
	f.mu.RLock()
	sel := f.selector
	f.mu.RUnlock()
	if sel == nil {
		return routes.None
	}
	return sel.Selected()
}

// Bindings lists the active dispatch table entries.
func (f *Frontend) Bindings() []dispatch.Key {
	t, err := f.currentTable()
	if err != nil {
		return nil
	}
	return t.Bindings()
}

// ClickableLayers lists layers with click handlers, for hit testing in the page.
func (f *Frontend) ClickableLayers() []string {
	t, err := f.currentTable()
	if err != nil {
		return nil
	}
	return t.Layers(dispatch.Click)
}

// Failures returns handler errors recorded so far.
func (f *Frontend) Failures() []error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]error(nil), f.failures...)
}
