// Package server assembles the toolkit from its settings: logging,
// event bus, Fabric client, run engine, backup store, pipeline
// watcher, the optional Temporal wiring, and the HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fabrik/internal/api"
	"fabrik/internal/backup"
	"fabrik/internal/bpa"
	"fabrik/internal/config"
	"fabrik/internal/event"
	"fabrik/internal/fabric"
	"fabrik/internal/logging"
	"fabrik/internal/metrics"
	"fabrik/internal/pipeline"
	"fabrik/internal/runs"
	"fabrik/internal/temporal"
	temporalworker "fabrik/internal/temporal/worker"
	"fabrik/internal/version"
)

const shutdownTimeout = 10 * time.Second

// App holds every running component. Optional pieces stay nil when
// their settings section leaves them off.
type App struct {
	Settings config.Settings
	Logger   *logging.Logger
	Buffer   *logging.Buffer
	Metrics  *metrics.Registry
	Bus      *event.Bus[event.Event]
	Fabric   *fabric.Client
	Analyzer *bpa.Analyzer
	RunStore *runs.Store
	Engine   *runs.Engine
	Backups  *backup.Store
	Watcher  *pipeline.Watcher
	Temporal temporal.WorkflowClient

	devServer *TemporalDevServer
	busCancel context.CancelFunc
}

// New builds the application. Nothing listens yet; call Run.
func New(settings config.Settings) (*App, error) {
	app := &App{Settings: settings, Metrics: &metrics.Registry{}}

	level, ok := logging.ParseLevel(settings.Server.LogLevel)
	if !ok {
		level = logging.LevelInfo
	}
	app.Buffer = logging.NewBuffer(int(settings.Server.LogBuffer))
	app.Logger = logging.NewLogger(app.Buffer, level)

	busCtx, busCancel := context.WithCancel(context.Background())
	app.busCancel = busCancel
	app.Bus = event.NewBus[event.Event](busCtx, event.BusOptions{
		Name:     "fabrik",
		Registry: app.Metrics,
	})
	go app.countRunEvents(busCtx)

	if err := app.buildFabricClient(); err != nil {
		app.close()
		return nil, err
	}

	analyzer, err := bpa.NewAnalyzer(settings.BPA.RulesPath)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("load BPA rules: %w", err)
	}
	app.Analyzer = analyzer

	if err := app.buildRunEngine(); err != nil {
		app.close()
		return nil, err
	}
	if err := app.buildBackupStore(); err != nil {
		app.close()
		return nil, err
	}
	if err := app.buildWatcher(); err != nil {
		app.close()
		return nil, err
	}

	return app, nil
}

func (a *App) buildFabricClient() error {
	settings := a.Settings.Fabric
	auth := fabric.AuthConfig{
		Token:        os.Getenv(settings.TokenEnv),
		TenantID:     settings.TenantID,
		ClientID:     settings.ClientID,
		ClientSecret: os.Getenv(settings.ClientSecretEnv),
	}
	if auth.Token == "" && auth.TenantID == "" && auth.ClientID == "" {
		a.Logger.Info("no Fabric credentials configured; API-backed features disabled", nil)
		return nil
	}

	client, err := fabric.NewClient(fabric.Config{
		Auth:              auth,
		FabricBaseURL:     settings.APIBase,
		PowerBIBaseURL:    settings.PowerBIBase,
		RequestsPerSecond: float64(settings.RateLimitRPS),
		HTTPClient:        &http.Client{Timeout: time.Duration(settings.TimeoutSeconds) * time.Second},
		Logger:            a.Logger,
	})
	if err != nil {
		return fmt.Errorf("build Fabric client: %w", err)
	}
	a.Fabric = client
	return nil
}

func (a *App) buildRunEngine() error {
	settings := a.Settings.Runs
	dataDir := settings.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(".fabrik", "runs")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create run data dir: %w", err)
	}
	store, err := runs.OpenStore(filepath.Join(dataDir, "runs.db"))
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	a.RunStore = store

	var invoker runs.Invoker = &runs.DryRunInvoker{}
	if a.Fabric != nil {
		invoker = &runs.NotebookInvoker{Client: a.Fabric}
	}
	engine, err := runs.NewEngine(runs.Options{
		Invoker:        invoker,
		Store:          store,
		Bus:            a.Bus,
		Logger:         a.Logger,
		DefaultTimeout: time.Duration(settings.DefaultTimeoutMinutes) * time.Minute,
	})
	if err != nil {
		return err
	}
	a.Engine = engine
	return nil
}

func (a *App) buildBackupStore() error {
	settings := a.Settings.Backup
	if strings.TrimSpace(settings.Dir) == "" {
		return nil
	}

	var mirror *backup.Mirror
	if strings.TrimSpace(settings.Endpoint) != "" {
		built, err := backup.NewMirror(backup.MirrorConfig{
			Endpoint:  settings.Endpoint,
			AccessKey: os.Getenv(settings.AccessKeyEnv),
			SecretKey: os.Getenv(settings.SecretKeyEnv),
			UseSSL:    settings.UseSSL,
			Bucket:    settings.Bucket,
			Prefix:    settings.Prefix,
		})
		if err != nil {
			return fmt.Errorf("build backup mirror: %w", err)
		}
		mirror = built
	}

	store, err := backup.OpenStore(backup.Options{
		Dir:         settings.Dir,
		CatalogPath: filepath.Join(settings.Dir, "catalog.db"),
		Client:      a.Fabric,
		Mirror:      mirror,
		Bus:         a.Bus,
		Logger:      a.Logger,
	})
	if err != nil {
		return fmt.Errorf("open backup store: %w", err)
	}
	a.Backups = store
	return nil
}

func (a *App) buildWatcher() error {
	settings := a.Settings.Pipeline
	if !settings.Watch || strings.TrimSpace(settings.Dir) == "" {
		return nil
	}
	if err := os.MkdirAll(settings.Dir, 0o755); err != nil {
		return fmt.Errorf("create pipeline dir: %w", err)
	}
	watcher, err := pipeline.WatchDir(settings.Dir, a.Bus, a.Logger)
	if err != nil {
		return fmt.Errorf("watch pipeline dir: %w", err)
	}
	a.Watcher = watcher
	return nil
}

// startTemporal dials the cluster, optionally bootstrapping the dev
// server first, and starts the task queue worker.
func (a *App) startTemporal() error {
	settings := a.Settings.Temporal
	if !settings.Enabled {
		return nil
	}

	if settings.StartDevServer {
		devServer, host, err := StartTemporalDevServer(settings.Host, a.Logger)
		if err != nil {
			return err
		}
		a.devServer = devServer
		settings.Host = host
		if !WaitForTemporalServer(host, temporalDevServerStartTimeout, devServer.Done(), a.Logger) {
			return errors.New("temporal dev server did not become ready")
		}
	}

	client, err := temporal.NewClient(temporal.ClientConfig{
		HostPort:  settings.Host,
		Namespace: settings.Namespace,
		Logger:    a.Logger,
	})
	if err != nil {
		return fmt.Errorf("dial temporal: %w", err)
	}
	a.Temporal = client

	if err := temporalworker.StartWorker(client, a.Fabric, a.Logger); err != nil {
		return fmt.Errorf("start temporal worker: %w", err)
	}
	return nil
}

// countRunEvents folds run lifecycle events into the metrics registry.
func (a *App) countRunEvents(ctx context.Context) {
	output, cancel := a.Bus.SubscribeTypes(runs.EventRunStarted, runs.EventRunFinished)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-output:
			if !ok {
				return
			}
			runEvent, matched := ev.(event.RunEvent)
			if !matched {
				continue
			}
			switch runEvent.EventType {
			case runs.EventRunStarted:
				a.Metrics.IncRunStarted()
			case runs.EventRunFinished:
				switch runs.State(runEvent.State) {
				case runs.StateSucceeded:
					a.Metrics.IncRunSucceeded()
				case runs.StateCancelled:
					a.Metrics.IncRunCancelled()
				default:
					a.Metrics.IncRunFailed()
				}
			}
		}
	}
}

// Run starts Temporal (when enabled) and serves HTTP until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.startTemporal(); err != nil {
		a.close()
		return err
	}
	defer a.close()

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.Options{
		Logger:    a.Logger,
		AuthToken: a.Settings.Server.AuthToken,
		Rest: &api.RestHandler{
			Logger:             a.Logger,
			Engine:             a.Engine,
			Store:              a.RunStore,
			Backups:            a.Backups,
			Watcher:            a.Watcher,
			Metrics:            a.Metrics,
			Bus:                a.Bus,
			FabricConfigured:   a.Fabric != nil,
			TemporalConfigured: a.Temporal != nil,
			Started:            time.Now(),
		},
		Streams: &api.StreamHandler{
			Bus:       a.Bus,
			LogHub:    a.Logger.Hub(),
			LogBuffer: a.Buffer,
		},
	})

	address := net.JoinHostPort(a.Settings.Server.Bind, strconv.FormatInt(a.Settings.Server.Port, 10))
	httpServer := &http.Server{Addr: address, Handler: mux}

	a.Logger.Info("server listening", map[string]string{
		"address": address,
		"version": version.String(),
	})

	errs := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// Close releases every resource the App owns. Run closes the App when
// it returns; callers that only borrow the collaborators (the stdio MCP
// server does) close it themselves.
func (a *App) Close() {
	a.close()
}

func (a *App) close() {
	if a.Watcher != nil {
		_ = a.Watcher.Close()
		a.Watcher = nil
	}
	temporalworker.StopWorker()
	if a.Temporal != nil {
		a.Temporal.Close()
		a.Temporal = nil
	}
	if a.devServer != nil {
		a.devServer.Stop(a.Logger)
		a.devServer = nil
	}
	if a.Backups != nil {
		_ = a.Backups.Close()
		a.Backups = nil
	}
	if a.RunStore != nil {
		_ = a.RunStore.Close()
		a.RunStore = nil
	}
	if a.busCancel != nil {
		a.busCancel()
		a.busCancel = nil
	}
}
