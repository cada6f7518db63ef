// Package server exposes the map page, its data files and the event
// endpoints the page script calls back into.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Zachdehooge/structure-map/internal/dispatch"
	"github.com/Zachdehooge/structure-map/internal/frontend"
	"github.com/Zachdehooge/structure-map/internal/generator"
	"github.com/Zachdehooge/structure-map/internal/loader"
	"github.com/Zachdehooge/structure-map/internal/logger"
	"github.com/Zachdehooge/structure-map/internal/mapview"
	"github.com/Zachdehooge/structure-map/internal/metrics"
	"github.com/Zachdehooge/structure-map/internal/panel"
	"github.com/Zachdehooge/structure-map/internal/routes"
	"github.com/Zachdehooge/structure-map/internal/style"
)

// Server serves one map session. The frontend state (panel, route
// selection) is shared by every page load, like a single-user dashboard.
type Server struct {
	f       *frontend.Frontend
	canvas  *mapview.Canvas
	mapOpts generator.MapOptions
	dataDir string
	log     *slog.Logger
	started time.Time
	origins []string
	// routesWait bounds how long /api/routes?wait=1 blocks.
	routesWait time.Duration
}

// Options configures a Server.
type Options struct {
	Map        generator.MapOptions
	DataDir    string
	Logger     *slog.Logger
	RoutesWait time.Duration
	// AllowedOrigins lists the origins allowed to call /api. A page
	// generated to disk and opened from file:// sends Origin "null".
	AllowedOrigins []string
}

// New returns a server around a running frontend and its canvas.
func New(f *frontend.Frontend, c *mapview.Canvas, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RoutesWait <= 0 {
		opts.RoutesWait = 30 * time.Second
	}
	return &Server{
		f:          f,
		canvas:     c,
		mapOpts:    opts.Map,
		dataDir:    opts.DataDir,
		log:        opts.Logger,
		started:    time.Now(),
		origins:    opts.AllowedOrigins,
		routesWait: opts.RoutesWait,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.AccessMiddleware(s.log))
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/", s.handlePage)
	if s.dataDir != "" {
		r.Handle("/data/*", http.StripPrefix("/data/", http.FileServer(http.Dir(s.dataDir))))
	}

	r.Route("/api", func(r chi.Router) {
		if len(s.origins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: s.origins,
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type"},
				MaxAge:         300,
			}))
		}
		r.Use(middleware.Compress(5))
		r.Use(middleware.Timeout(s.routesWait + 5*time.Second))
		r.Get("/state", s.handleState)
		r.Post("/click", s.handleClick)
		r.Post("/hover", s.handleHover)
		r.Post("/close", s.handleClose)
		r.Get("/routes", s.handleRoutes)
		r.Post("/routes/select", s.handleSelect)
	})
	return r
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

type healthResponse struct {
	Status        string `json:"status"`
	Style         string `json:"style"`
	RoutesLoaded  bool   `json:"routesLoaded"`
	Failures      int    `json:"failures"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Style:         s.f.Style().String(),
		RoutesLoaded:  len(s.f.RouteOptions()) > 1,
		Failures:      len(s.f.Failures()),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	})
}

// handlePage renders the map. A style parameter in the query that differs
// from the active style reloads the map with it.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("style"); raw != "" {
		if want, _ := style.Parse(raw); want != s.f.Style() {
			href := "#style=" + want.String()
			if err := s.f.Reload(r.Context(), href); err != nil {
				s.log.Error("style_reload_error", "err", err)
				http.Error(w, "failed to apply style", http.StatusInternalServerError)
				return
			}
		}
	}

	page := generator.Build(s.f, s.canvas, s.mapOpts, "")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := generator.Render(w, page); err != nil {
		s.log.Error("render_error", "err", err)
	}
}

type stateResponse struct {
	Style    string           `json:"style"`
	View     mapview.Snapshot `json:"view"`
	Bindings []dispatch.Key   `json:"bindings"`
	Panel    panel.State      `json:"panel"`
	Options  []routes.Option  `json:"options"`
	Selected string           `json:"selected"`
	Cursor   string           `json:"cursor"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		Style:    s.f.Style().String(),
		View:     s.canvas.Snapshot(),
		Bindings: s.f.Bindings(),
		Panel:    s.f.Panel(),
		Options:  s.f.RouteOptions(),
		Selected: s.f.SelectedRoute(),
		Cursor:   s.f.Cursor(),
	})
}

type hitsRequest struct {
	Hits []dispatch.Hit `json:"hits"`
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req hitsRequest
	if !readJSON(w, r, &req) {
		return
	}
	st, err := s.f.Click(r.Context(), req.Hits)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	var req hitsRequest
	if !readJSON(w, r, &req) {
		return
	}
	cursor, err := s.f.Move(r.Context(), req.Hits)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cursor": cursor})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	st, err := s.f.CloseButton(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type routesResponse struct {
	Options    []routes.Option `json:"options"`
	Loaded     bool            `json:"loaded"`
	Collection interface{}     `json:"collection,omitempty"`
	Selected   string          `json:"selected"`
}

// handleRoutes returns the selector options. With wait=1 it blocks until the
// station routes document is loaded; the response then also carries the
// exact collection bound to the route source.
func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	resp := routesResponse{Options: s.f.RouteOptions(), Selected: s.f.SelectedRoute()}
	resp.Loaded = len(resp.Options) > 1

	if r.URL.Query().Get("wait") == "1" {
		ctx, cancel := context.WithTimeout(r.Context(), s.routesWait)
		defer cancel()
		opts, err := s.f.WaitRoutes(ctx)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp.Options = opts
		resp.Loaded = true
	}

	if src, ok := s.canvas.Source(loader.RouteSource); ok && resp.Loaded {
		resp.Collection = src.Data
	}
	writeJSON(w, http.StatusOK, resp)
}

type selectRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !readJSON(w, r, &req) {
		return
	}
	layers, err := s.f.SelectRoute(r.Context(), req.Value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"selected": s.f.SelectedRoute(),
		"layers":   layers,
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, frontend.ErrNotReady):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		status = http.StatusRequestTimeout
	}
	if status == http.StatusInternalServerError {
		s.log.Error("api_error", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe runs the HTTP server until ctx ends, then shuts it down gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server_listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("server_shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
