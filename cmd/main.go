package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cli/browser"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Zachdehooge/structure-map/internal/config"
	"github.com/Zachdehooge/structure-map/internal/fetcher"
	"github.com/Zachdehooge/structure-map/internal/frontend"
	"github.com/Zachdehooge/structure-map/internal/generator"
	"github.com/Zachdehooge/structure-map/internal/loader"
	"github.com/Zachdehooge/structure-map/internal/logger"
	"github.com/Zachdehooge/structure-map/internal/mapview"
	"github.com/Zachdehooge/structure-map/internal/server"
	"github.com/Zachdehooge/structure-map/internal/style"
)

var (
	outputFile  string
	verbose     bool
	watchMode   bool
	styleName   string
	configPath  string
	apiBase     string
	openBrowser bool
)

// settleTimeout bounds how long a one-shot generate waits for the icon and
// the station routes.
const settleTimeout = 60 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "structure-map",
		Short: "Render railway structure data on an interactive map",
		Long: `Structure Map loads the elements, stations and station routes
GeoJSON files sharing one prefix and renders them as a single map page,
either written to disk or served with live click, hover and route selection.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnvFiles()
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			cfg, log, err := setup(cmd)
			if err != nil {
				cmd.PrintErrln(err)
				os.Exit(1)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Start the map event loop
			s := newSession(cfg, log)
			go func() { _ = s.f.Run(ctx) }()

			// Generate map HTML
			if err := s.generate(ctx, cmd, cfg); err != nil {
				cmd.PrintErrln(fmt.Errorf("failed to generate map: %w", err))
				os.Exit(1)
			}
			if w := staticPageWarning(apiBase, cfg.Server.Port); w != "" {
				cmd.PrintErrln(color.YellowString("warning: %s", w))
			}

			// Watch mode
			if watchMode {
				runWatchMode(ctx, cmd, cfg, s)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yml (default: ./config.yml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&styleName, "style", "", "Base style: default or background")

	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output HTML file path (default from config)")
	rootCmd.Flags().BoolVar(&watchMode, "watch", false, "Regenerate the HTML when local data files change")
	rootCmd.Flags().StringVar(&apiBase, "api", "", "Base URL of a running 'serve' instance (e.g. http://localhost:8080); "+
		"without it the written page shows the map and routes but clicks and route selection do nothing")

	addServeCmd(rootCmd)
	addRoutesCmd(rootCmd)
	addStylesCmd(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration, applies flag overrides and installs the logger.
func setup(cmd *cobra.Command) (*config.AppConfig, *slog.Logger, error) {
	level := os.Getenv("LOG_LEVEL")
	if verbose {
		level = "debug"
	}
	log := logger.SetupWriter(os.Stderr, level, os.Getenv("LOG_FORMAT"))

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if styleName != "" {
		if _, ok := style.Parse(styleName); !ok {
			return nil, nil, fmt.Errorf("unknown style %q (want one of %v)", styleName, style.Names())
		}
		cfg.Map.Style = styleName
	}
	if outputFile != "" {
		cfg.Output = outputFile
	}
	return cfg, log, nil
}

// session is one frontend driving one recording canvas.
type session struct {
	f      *frontend.Frontend
	canvas *mapview.Canvas
	cache  *fetcher.Cached
	local  *fetcher.Local
	files  loader.Files
	href   string
	ready  bool
}

func newSession(cfg *config.AppConfig, log *slog.Logger) *session {
	hc := &http.Client{}
	cache := fetcher.NewCached(fetcher.NewClient(hc), 16, cfg.CacheTTL())
	local := fetcher.NewLocal(cache, "/data/", cfg.Data.Dir)
	canvas := mapview.NewCanvas(mapview.HTTPImageLoader(hc))
	files := loader.FilesFor(cfg.Data.Prefix)
	href := "#style=" + cfg.Map.Style

	f := frontend.New(canvas, frontend.Options{
		Href:    href,
		Files:   files,
		IconURL: cfg.Map.MarkerIcon,
		Origin:  cfg.Server.Origin,
		Fetcher: local,
		Logger:  log,
	})
	return &session{f: f, canvas: canvas, cache: cache, local: local, files: files, href: href}
}

func mapOptions(cfg *config.AppConfig) generator.MapOptions {
	return generator.MapOptions{
		Center:    cfg.Map.Center,
		Zoom:      cfg.Map.Zoom,
		Bearing:   cfg.Map.Bearing,
		MaxBounds: cfg.Map.MaxBounds,
		Hash:      cfg.Map.Hash,
	}
}

// localFiles lists the dataset files that live on this machine.
func (s *session) localFiles() []string {
	var out []string
	for _, loc := range []string{s.files.Elements, s.files.Stations, s.files.StationRoutes} {
		if p, ok := s.local.Path(loc); ok {
			out = append(out, p)
		} else if !fetcher.IsRemote(loc) {
			out = append(out, loc)
		}
	}
	return out
}

// generate runs the map to a settled state and writes the page.
func (s *session) generate(ctx context.Context, cmd *cobra.Command, cfg *config.AppConfig) error {
	if verbose {
		cmd.Println(fmt.Sprintf("Loading structure data from %s...", cfg.Data.Prefix))
	}

	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()

	// Load the style and data, or reload them after a file change
	if !s.ready {
		if err := s.f.MapReady(ctx); err != nil {
			return fmt.Errorf("failed to load map: %w", err)
		}
		s.ready = true
	} else {
		s.cache.Purge()
		if err := s.f.Reload(ctx, s.href); err != nil {
			return fmt.Errorf("failed to reload map: %w", err)
		}
	}
	// Wait for the marker icon and station routes
	if err := s.f.Settle(ctx); err != nil {
		return fmt.Errorf("failed waiting for data: %w", err)
	}
	for _, e := range s.f.Failures() {
		cmd.PrintErrln(color.YellowString("warning: %v", e))
	}

	if verbose {
		cmd.Println(fmt.Sprintf("Generating HTML to %s...", cfg.Output))
	}
	// Generate HTML
	page := generator.Build(s.f, s.canvas, mapOptions(cfg), apiBase)
	if err := generator.Generate(page, cfg.Output); err != nil {
		return err
	}

	cmd.Println(fmt.Sprintf("Structure map saved to %s (%d routes)", cfg.Output, len(s.f.RouteOptions())-1))
	return nil
}

// staticPageWarning explains what a page written without an API base cannot
// do. It returns "" when api is set.
func staticPageWarning(api string, port int) string {
	if api != "" {
		return ""
	}
	return fmt.Sprintf("no --api given: the page cannot open the info panel or filter routes; "+
		"run 'structure-map serve' and pass --api http://localhost:%d, or open the map from serve directly", port)
}

// runWatchMode regenerates the page whenever a local data file changes.
func runWatchMode(ctx context.Context, cmd *cobra.Command, cfg *config.AppConfig, s *session) {
	files := s.localFiles()
	if len(files) == 0 {
		cmd.PrintErrln("watch mode needs local data files; all datasets are remote")
		return
	}
	cmd.Println(fmt.Sprintf("Watch mode activated. Watching %d files. Press Ctrl+C to stop.", len(files)))

	err := generator.Watch(ctx, files, 500*time.Millisecond, func() error {
		return s.generate(ctx, cmd, cfg)
	}, slog.Default())
	if err != nil && !errors.Is(err, context.Canceled) {
		cmd.PrintErrln(fmt.Errorf("watch failed: %w", err))
	}
}

// addServeCmd adds a 'serve' subcommand that hosts the page and its event API.
func addServeCmd(rootCmd *cobra.Command) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the interactive map over HTTP",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, log, err := setup(cmd)
			if err != nil {
				cmd.PrintErrln(err)
				os.Exit(1)
			}
			if err := runServe(cmd, cfg, log); err != nil {
				cmd.PrintErrln(fmt.Errorf("server failed: %w", err))
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().BoolVar(&openBrowser, "open", false, "Open the map in the default browser")
	serveCmd.Flags().BoolVar(&watchMode, "watch", false, "Reload the map when local data files change")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, cfg *config.AppConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := newSession(cfg, log)
	g, ctx := errgroup.WithContext(ctx)

	// Event loop, then the initial style
	g.Go(func() error {
		if err := s.f.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if err := s.f.MapReady(ctx); err != nil {
		stop()
		_ = g.Wait()
		return err
	}

	// HTTP server
	srv := server.New(s.f, s.canvas, server.Options{
		Map:            mapOptions(cfg),
		DataDir:        cfg.Data.Dir,
		Logger:         log,
		AllowedOrigins: []string{"*"},
	})
	g.Go(func() error {
		return server.ListenAndServe(ctx, cfg.Addr(), srv.Handler(), log)
	})

	// Reload the map on data changes
	if watchMode {
		files := s.localFiles()
		g.Go(func() error {
			if len(files) == 0 {
				log.Warn("watch_skipped", "reason", "no local data files")
				return nil
			}
			err := generator.Watch(ctx, files, 500*time.Millisecond, func() error {
				s.cache.Purge()
				return s.f.Reload(ctx, s.href)
			}, log)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	url := fmt.Sprintf("http://localhost:%d/", cfg.Server.Port)
	cmd.Println(fmt.Sprintf("Open at %s", url))
	if openBrowser {
		if err := browser.OpenURL(url); err != nil {
			log.Warn("browser_open_failed", "err", err)
		}
	}

	return g.Wait()
}

// addRoutesCmd adds a 'routes' subcommand that lists station routes without
// rendering anything.
func addRoutesCmd(rootCmd *cobra.Command) {
	routesCmd := &cobra.Command{
		Use:   "routes",
		Short: "List the station routes the selector would offer",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, log, err := setup(cmd)
			if err != nil {
				cmd.PrintErrln(err)
				os.Exit(1)
			}
			s := newSession(cfg, log)

			location := loader.ResolveURL(cfg.Server.Origin, s.files.StationRoutes)
			fc, err := s.local.Fetch(cmd.Context(), location)
			if err != nil {
				cmd.PrintErrln(fmt.Errorf("failed to fetch station routes: %w", err))
				os.Exit(1)
			}

			names := fc.Names()
			if len(names) == 0 {
				cmd.Println("No station routes.")
				return
			}

			bold := color.New(color.Bold)
			cmd.Println(bold.Sprintf("Station routes (%d):", len(names)))
			for _, feat := range fc.Features {
				kind := "-"
				if feat.Geometry != nil && feat.Geometry.Coordinates != nil {
					kind = feat.Geometry.Coordinates.GeoJSONType()
				}
				cmd.Println(fmt.Sprintf("  %s %s", color.CyanString(feat.Name()), color.HiBlackString("(%s)", kind)))
			}
			if b, ok := fc.Bound(); ok {
				cmd.Println(fmt.Sprintf("Bounds: [%.5f, %.5f] - [%.5f, %.5f]", b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()))
			}
		},
	}
	rootCmd.AddCommand(routesCmd)
}

// addStylesCmd adds a 'styles' subcommand listing the base styles.
func addStylesCmd(rootCmd *cobra.Command) {
	stylesCmd := &cobra.Command{
		Use:   "styles",
		Short: "List available base styles",
		Run: func(cmd *cobra.Command, args []string) {
			for _, n := range style.Names() {
				line := n
				if n == style.Default.String() {
					line += color.HiBlackString(" (default)")
				}
				cmd.Println(line)
			}
		},
	}
	rootCmd.AddCommand(stylesCmd)
}
