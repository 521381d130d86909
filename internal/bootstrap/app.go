// Package bootstrap wires configuration, storage, the media pipeline, and
// the HTTP surface into one runnable application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"

	"shortstack/internal/api"
	"shortstack/internal/bgm"
	"shortstack/internal/config"
	"shortstack/internal/diagnostics"
	"shortstack/internal/domain"
	"shortstack/internal/inputs"
	"shortstack/internal/jobs"
	"shortstack/internal/media"
	"shortstack/internal/pipeline"
	"shortstack/internal/store"
)

// shutdownGrace bounds how long draining in-flight work may take.
const shutdownGrace = 30 * time.Second

// App owns every long-lived component of the service.
type App struct {
	settings   config.Settings
	logger     hclog.Logger
	store      *store.Store
	pool       *bgm.Pool
	dispatcher *jobs.Dispatcher
	checker    *diagnostics.Checker
	httpServer *http.Server
}

// New builds the full component graph. Jobs recovered from disk are not
// re-dispatched yet; Run does that before serving requests.
func New(settings config.Settings, logger hclog.Logger) (*App, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	for _, dir := range []string{
		settings.JobsDir(),
		settings.WorkDir(),
		settings.UploadsDir(),
		settings.OutputsDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	st, err := store.New(store.Options{
		Dir:                settings.JobsDir(),
		OutputsDir:         settings.OutputsDir(),
		CompletedRetention: settings.CompletedRetention,
		FailedRetention:    settings.FailedRetention,
		Logger:             logger.Named("store"),
	})
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	if err := st.Load(); err != nil {
		st.Close()
		return nil, fmt.Errorf("recover job records: %w", err)
	}

	pool := bgm.NewPool(settings.BGMDir, logger.Named("bgm"))
	pool.Start()

	adapter := media.NewAdapter(media.Options{
		FFmpegPath:    settings.FFmpegPath,
		WhisperPath:   settings.WhisperPath,
		WhisperModel:  settings.WhisperModel,
		WatermarkText: settings.WatermarkText,
		ThumbnailSeek: settings.ThumbnailSeek,
		ToolTimeout:   settings.ToolTimeout,
		Logger:        logger.Named("media"),
	})

	engine := pipeline.New(pipeline.Options{
		Store:      st,
		Adapter:    adapter,
		Music:      pool,
		WorkDir:    settings.WorkDir(),
		OutputsDir: settings.OutputsDir(),
		Logger:     logger.Named("pipeline"),
	})

	dispatcher := jobs.NewDispatcher(st, engine, settings.MaxConcurrent, logger.Named("jobs"))

	checker := diagnostics.NewChecker()
	server := api.NewServer(api.Options{
		Jobs:       dispatcher,
		Resolver:   inputs.NewResolver(settings.UploadsDir(), logger.Named("inputs")),
		Prober:     adapter,
		Health:     func() domain.DiagnosticReport { return checker.Run(settings) },
		OutputsDir: settings.OutputsDir(),
		Logger:     logger.Named("api"),
	})

	return &App{
		settings:   settings,
		logger:     logger,
		store:      st,
		pool:       pool,
		dispatcher: dispatcher,
		checker:    checker,
		httpServer: &http.Server{
			Addr:    settings.ListenAddr,
			Handler: server.Handler(),
		},
	}, nil
}

// Run resumes recovered jobs, serves HTTP until the context ends, then
// shuts everything down in dependency order.
func (a *App) Run(ctx context.Context) error {
	report := a.checker.Run(a.settings)
	for _, item := range report.Items {
		switch item.Status {
		case domain.DiagnosticStatusFail:
			a.logger.Error("startup check failed", "check", item.ID, "message", item.Message)
		case domain.DiagnosticStatusWarn:
			a.logger.Warn("startup check warning", "check", item.ID, "message", item.Message)
		}
	}

	a.dispatcher.Resume()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.settings.ListenAddr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	a.shutdown()
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

// shutdown stops intake first, drains pipelines, then releases storage.
func (a *App) shutdown() {
	a.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Warn("http shutdown incomplete", "error", err)
	}
	a.dispatcher.Shutdown(ctx)
	a.pool.Close()
	a.store.Close()
}
