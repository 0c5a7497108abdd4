// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/artpar/amodule/adapters/clock"
	"github.com/artpar/amodule/adapters/hasher"
	apihttp "github.com/artpar/amodule/adapters/http"
	"github.com/artpar/amodule/adapters/idgen"
	"github.com/artpar/amodule/adapters/imageio"
	"github.com/artpar/amodule/adapters/memory"
	"github.com/artpar/amodule/adapters/metrics"
	"github.com/artpar/amodule/adapters/sqlite"
	"github.com/artpar/amodule/app"
	"github.com/artpar/amodule/config"
	"github.com/artpar/amodule/core/openapi"
	"github.com/artpar/amodule/core/spec"
	"github.com/artpar/amodule/ports"
	"github.com/artpar/amodule/resources"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/swaggo/swag"
)

// pruneInterval is how often expired runs are deleted.
const pruneInterval = 10 * time.Minute

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Spec       *spec.Specification
	DB         *sqlite.DB // nil unless runs.store is sqlite
	Runs       ports.RunStore
	Metrics    *metrics.Collector
	Registry   *prometheus.Registry
	Detector   *app.Detector
	OpenAPI    *openapi.Service
	Router     http.Handler
	HTTPServer *http.Server

	holder    *config.Holder
	sqlRuns   *sqlite.RunStore
	clock     ports.Clock
	retention atomic.Int64 // time.Duration
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// Options controls application initialization.
type Options struct {
	// ConfigPath is the YAML configuration file. When it does not exist the
	// configuration comes from AMODULE_* variables and defaults.
	ConfigPath string

	// Watch enables hot reload of ConfigPath on change and on SIGHUP.
	Watch bool

	// Version is reported by /version.
	Version string

	// LogOutput receives log lines. Defaults to stdout.
	LogOutput io.Writer
}

// New loads configuration and creates the application.
func New(opts Options) (*App, error) {
	cfg, err := config.LoadWithFallback(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a, err := NewWithConfig(cfg, opts)
	if err != nil {
		return nil, err
	}

	if opts.Watch && opts.ConfigPath != "" {
		if _, statErr := os.Stat(opts.ConfigPath); statErr == nil {
			if err := a.watchConfig(opts.ConfigPath); err != nil {
				a.Logger.Warn().Err(err).Msg("config hot reload unavailable")
			}
		}
	}
	return a, nil
}

// NewWithConfig creates the application from an already loaded configuration.
func NewWithConfig(cfg *config.Config, opts Options) (*App, error) {
	logger := SetupLogger(cfg.Logging, opts.LogOutput)
	logger.Info().Msg("initializing amodule")

	a := &App{
		Logger: logger,
		Config: cfg,
		clock:  clock.Real{},
		stop:   make(chan struct{}),
	}
	a.retention.Store(int64(cfg.Runs.Retention))

	if err := a.initSpec(); err != nil {
		return nil, fmt.Errorf("init spec: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(a.Registry)
		a.Metrics.SetModule(a.Spec.Module.Name, a.Spec.Module.Version)
		logger.Info().Msg("prometheus metrics enabled")
	}

	if err := a.initRuns(); err != nil {
		a.Close()
		return nil, fmt.Errorf("init run store: %w", err)
	}

	if err := a.initDetector(); err != nil {
		a.Close()
		return nil, fmt.Errorf("init detector: %w", err)
	}

	a.initHTTPServer(opts.Version)

	if a.sqlRuns != nil {
		a.wg.Add(1)
		go a.pruneLoop()
	}

	return a, nil
}

func (a *App) initSpec() error {
	var (
		s   *spec.Specification
		err error
	)
	if path := a.Config.Module.SpecPath; path != "" {
		s, err = spec.ParseFile(path)
	} else {
		s, err = resources.Load()
	}
	if err != nil {
		return err
	}
	a.Spec = s
	resources.SetDir(a.Config.Module.ResourcesDir)

	a.Logger.Info().
		Str("module", s.Module.Name).
		Str("version", s.Module.Version).
		Strs("methods", s.MethodNames()).
		Msg("specification loaded")
	return nil
}

func (a *App) initRuns() error {
	switch a.Config.Runs.Store {
	case "sqlite":
		db, err := sqlite.Open(a.Config.Database.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		a.DB = db
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		a.sqlRuns = sqlite.NewRunStore(db)
		a.Runs = a.sqlRuns
		a.Logger.Info().Str("dsn", a.Config.Database.DSN).Msg("run history stored in sqlite")
	case "memory":
		a.Runs = memory.NewRunStore(a.Config.Runs.Capacity)
		a.Logger.Info().Int("capacity", a.Config.Runs.Capacity).Msg("run history kept in memory")
	default:
		a.Logger.Info().Msg("run history disabled")
	}
	return nil
}

func (a *App) initDetector() error {
	deps := app.DetectorDeps{
		Spec:   a.Spec,
		Clock:  a.clock,
		IDGen:  idgen.UUID{Prefix: "run_"},
		Logger: a.Logger,
	}
	if a.Runs != nil {
		deps.Runs = a.Runs
	}
	if a.Metrics != nil {
		deps.Observer = a.Metrics
	}

	d, err := app.NewDetector(deps)
	if err != nil {
		return err
	}
	a.Detector = d
	return nil
}

func (a *App) initHTTPServer(version string) {
	cfg := a.Config

	var ready apihttp.ReadyChecker
	if a.DB != nil {
		ready = a.DB
	}

	handler := apihttp.NewModuleHandler(apihttp.HandlerDeps{
		Module:       a.Detector,
		Codec:        imageio.PNG{MaxPixels: cfg.Server.MaxImagePixels},
		Runs:         a.Runs,
		Clock:        a.clock,
		Logger:       a.Logger,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	routerCfg := apihttp.RouterConfig{
		MetricsPath: cfg.Metrics.Path,
		Version:     version,
		Timeout:     cfg.Server.WriteTimeout,
	}
	if a.Metrics != nil {
		routerCfg.Metrics = a.Metrics
		routerCfg.MetricsHandler = promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
	}
	if cfg.Auth.Enabled() {
		routerCfg.Auth = apihttp.NewAPIKeyAuth(hasher.NewBcrypt(0), cfg.Auth.APIKeyHash, cfg.Auth.Header, a.Metrics, a.Logger)
		a.Logger.Info().Str("header", cfg.Auth.Header).Msg("api key required for /api")
	}
	if cfg.OpenAPI.Enabled {
		a.OpenAPI = openapi.NewService(a.Spec, openapi.Options{APIKey: cfg.Auth.Enabled()})
		publishDocs(a.OpenAPI)
		routerCfg.OpenAPI = a.OpenAPI
		routerCfg.SwaggerInstance = swag.Name
	}

	a.Router = apihttp.NewRouter(handler, apihttp.NewHealthHandler(ready), a.Logger, routerCfg)
	a.HTTPServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// watchConfig hot reloads the configuration file. Only the log level and
// run retention take effect without a restart.
func (a *App) watchConfig(path string) error {
	h, err := config.NewHolder(path, a.Logger)
	if err != nil {
		return err
	}

	h.OnChange(func(cfg *config.Config) {
		a.applyReload(cfg)
		if a.Metrics != nil {
			a.Metrics.ConfigReloads.Inc()
			a.Metrics.ConfigLastReload.SetToCurrentTime()
		}
	})
	h.OnError(func(error) {
		if a.Metrics != nil {
			a.Metrics.ConfigReloadErrors.Inc()
		}
	})

	if err := h.WatchFile(); err != nil {
		h.Stop()
		return err
	}
	h.WatchSignals()
	a.holder = h
	return nil
}

func (a *App) applyReload(cfg *config.Config) {
	a.retention.Store(int64(cfg.Runs.Retention))
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
}

func (a *App) pruneLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := a.PruneRuns(context.Background()); err != nil {
				a.Logger.Warn().Err(err).Msg("failed to prune runs")
			}
		case <-a.stop:
			return
		}
	}
}

// PruneRuns deletes sqlite runs older than the configured retention. It
// does nothing when retention is zero or runs are not in sqlite.
func (a *App) PruneRuns(ctx context.Context) (int64, error) {
	retention := time.Duration(a.retention.Load())
	if a.sqlRuns == nil || retention <= 0 {
		return 0, nil
	}

	n, err := a.sqlRuns.Prune(ctx, a.clock.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.Logger.Info().Int64("deleted", n).Dur("retention", retention).Msg("pruned runs")
	}
	return n, nil
}

// Run starts the HTTP server and blocks until ctx is done, SIGINT or
// SIGTERM arrives, or the server fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Close()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
		a.Logger.Info().Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown stops the HTTP server and releases resources.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	if a.HTTPServer != nil {
		if err = a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}
	a.Close()

	a.Logger.Info().Msg("shutdown complete")
	return err
}

// Close releases resources without touching the HTTP server. It is safe
// to call more than once.
func (a *App) Close() {
	a.stopOnce.Do(func() {
		close(a.stop)
		a.wg.Wait()

		if a.holder != nil {
			a.holder.Stop()
		}
		if a.DB != nil {
			if err := a.DB.Close(); err != nil {
				a.Logger.Error().Err(err).Msg("database close error")
			}
		}
	})
}

// SetupLogger builds the process logger from configuration. The level is
// applied globally so hot reload can change it.
func SetupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}

// docs forwards swag's doc.json to the most recently built App. swag
// allows a name to be registered only once per process.
var docs struct {
	once sync.Once
	svc  atomic.Pointer[openapi.Service]
}

type currentDoc struct{}

func (currentDoc) ReadDoc() string {
	if s := docs.svc.Load(); s != nil {
		return s.ReadDoc()
	}
	return "{}"
}

func publishDocs(svc *openapi.Service) {
	docs.svc.Store(svc)
	docs.once.Do(func() {
		swag.Register(swag.Name, currentDoc{})
	})
}
