package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rahulunni73/authclient/internal/metrics"
	"github.com/rahulunni73/authclient/internal/store/sqlite"
	"github.com/rahulunni73/authclient/pkg/authclient"
	"github.com/rahulunni73/authclient/pkg/cryptox"
	"github.com/rahulunni73/authclient/pkg/httpx"
	"github.com/rahulunni73/authclient/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	shutdownGracePeriod = 5 * time.Second
)

// Application wires a configured authclient.Client with its store, metrics
// and keeper.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db      *sqlite.Store // nil when the session is kept in memory
	client  *authclient.Client
	metrics *metrics.Collector
	keeper  *Keeper

	metricsServer *http.Server
}

// New creates an Application with all dependencies initialized. The client
// is initialized from cfg.Backend; a rejected backend config is an error.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authclient",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	store, err := app.initStore()
	if err != nil {
		return nil, err
	}

	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		app.closeStore()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	app.metrics = collector

	app.client = authclient.NewClient(
		authclient.WithStore(store),
		authclient.WithHTTPClient(app.httpClient()),
		authclient.WithLogger(app.logger),
		authclient.WithObserver(collector),
		authclient.WithRefreshTimeout(cfg.Timeouts.Refresh),
	)

	res := app.client.Initialize(cfg.ClientConfig())
	if !res.IsConfigured {
		app.closeStore()
		return nil, fmt.Errorf("failed to initialize client: %s", res.Message)
	}
	app.logger.Info("client initialized",
		"base_url", res.BaseURL,
		"encryption_enabled", res.EncryptionEnabled,
	)

	if cfg.Keeper.Interval > 0 {
		app.keeper = NewKeeper(app.client.Session(), app.logger, cfg.Keeper.Interval, cfg.Keeper.Lead)
	}

	return app, nil
}

func (app *Application) Client() *authclient.Client { return app.client }

func (app *Application) Logger() *slog.Logger { return app.logger }

// Run starts the keeper and the metrics endpoint, then blocks until ctx is
// done or a shutdown signal arrives.
func (app *Application) Run(ctx context.Context) error {
	if app.keeper != nil {
		app.keeper.Start()
		defer app.keeper.Stop()
	}

	serverErrors := make(chan error, 1)
	if app.cfg.Metrics.Addr != "" {
		app.metricsServer = &http.Server{
			Addr:              app.cfg.Metrics.Addr,
			Handler:           app.metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			serverErrors <- app.metricsServer.ListenAndServe()
		}()
		app.logger.Info("metrics endpoint listening", "addr", app.cfg.Metrics.Addr)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
	case <-ctx.Done():
	}

	return app.stopMetrics()
}

// Close cancels outstanding requests and releases the store.
func (app *Application) Close() error {
	if n := app.client.CancelAllRequests(); n > 0 {
		app.logger.Info("cancelled outstanding requests", "count", n)
	}
	return app.closeStore()
}

func (app *Application) metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metrics.Handler())
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", app.readyz)
	return mux
}

// readyz reports 503 when the session store is unreachable.
func (app *Application) readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"store": "ok"}
	status, code := "ok", http.StatusOK

	if app.db == nil {
		checks["store"] = "memory"
	} else if err := app.db.Ping(r.Context()); err != nil {
		checks["store"] = "error: " + err.Error()
		status, code = "degraded", http.StatusServiceUnavailable
	}
	if !app.client.ClientInitInfo().IsConfigured {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"version": BuildVersion,
		"checks":  checks,
	})
}

func (app *Application) stopMetrics() error {
	if app.metricsServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := app.metricsServer.Shutdown(ctx); err != nil {
		app.logger.Error("graceful metrics shutdown failed", "error", err)
		return app.metricsServer.Close()
	}
	return nil
}

// httpClient layers logging over per-host rate limiting.
func (app *Application) httpClient() *http.Client {
	limited := httpx.NewRateLimitTransport(http.DefaultTransport, app.cfg.RateLimit())
	return &http.Client{
		Timeout:   app.cfg.Timeouts.HTTP,
		Transport: slogx.NewLoggingTransport(limited, app.logger),
	}
}

// initStore opens the sqlite store when a path is configured, otherwise the
// session lives in memory.
func (app *Application) initStore() (authclient.SecretStore, error) {
	if app.cfg.Store.Path == "" {
		app.logger.Debug("no store path configured, session kept in memory")
		return authclient.NewMemoryStore(), nil
	}

	material, ephemeral, err := cryptox.LoadMasterKey(app.cfg.Store.MasterKeyPath, MasterKeyEnv)
	if err != nil {
		return nil, err
	}
	if ephemeral {
		app.logger.Warn("no master key configured, stored session will not survive restart",
			"env", MasterKeyEnv)
	}

	sealer, err := cryptox.NewSealer(material)
	if err != nil {
		return nil, fmt.Errorf("failed to create sealer: %w", err)
	}

	db, err := sqlite.NewStore(app.cfg.Store.Path, sealer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply store migrations: %w", err)
	}
	app.db = db

	app.logger.Info("session store ready", "path", app.cfg.Store.Path)
	return db, nil
}

func (app *Application) closeStore() error {
	if app.db == nil {
		return nil
	}
	err := app.db.Close()
	app.db = nil
	return err
}
