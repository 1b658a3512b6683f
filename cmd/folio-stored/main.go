// Command folio-stored serves the folio catalogue over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/folio-dev/folio/internal/api"
	"github.com/folio-dev/folio/internal/auth"
	"github.com/folio-dev/folio/internal/config"
	"github.com/folio-dev/folio/internal/engine"
	"github.com/folio-dev/folio/internal/logging"
	"github.com/folio-dev/folio/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

type rootOptions struct {
	configPath string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "folio-stored",
		Short:         "Serve the folio catalogue",
		Long:          "Syncs the local catalogue files with the remote origin, then serves them over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "settings file")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Rebuild the working and backup files once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), opts)
		},
	})
	return cmd
}

// app is everything the daemon needs, built from one settings file.
type app struct {
	settings *config.Settings
	logger   *zap.Logger
	metrics  *metrics.Collector
	store    *engine.CollectionStore
}

func newApp(configPath string) (*app, error) {
	// Settings are loaded before the configured logger exists.
	bootLogger, err := logging.New("info", "json")
	if err != nil {
		return nil, err
	}
	settings, err := config.Load(configPath, bootLogger)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	logger, err := logging.New(settings.Logging.Level, settings.Logging.Format)
	if err != nil {
		return nil, err
	}

	var collector *metrics.Collector
	if settings.Metrics.Enabled {
		collector = metrics.NewCollector("folio")
	}

	origin := engine.NewOrigin(settings.RemoteFile(),
		engine.WithOriginTimeout(settings.Storage.RemoteTimeout),
		engine.WithOriginLogger(logger),
		engine.WithOriginMetrics(collector),
	)
	store := engine.NewCollectionStore(
		engine.Paths{Working: settings.WorkingFile(), Backup: settings.BackupFile()},
		origin,
		engine.WithLogger(logger),
		engine.WithMetrics(collector),
	)

	return &app{settings: settings, logger: logger, metrics: collector, store: store}, nil
}

func (a *app) initialize(ctx context.Context) (engine.Source, error) {
	ctx, cancel := context.WithTimeout(ctx, a.settings.Storage.RemoteTimeout+5*time.Second)
	defer cancel()
	return a.store.Initialize(ctx)
}

func (a *app) handler() http.Handler {
	h := &api.Handler{
		Store:         a.store,
		Logger:        a.logger,
		ReinitTimeout: a.settings.Storage.RemoteTimeout + 5*time.Second,
	}
	return api.NewRouter(h, auth.NewGate(a.settings.Auth.PasskeyPath), api.RouterOptions{
		Logger:      a.logger,
		Metrics:     a.metrics,
		MetricsPath: a.settings.Metrics.Path,
	})
}

func runSync(ctx context.Context, opts *rootOptions) error {
	a, err := newApp(opts.configPath)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	source, err := a.initialize(ctx)
	if err != nil {
		return fmt.Errorf("syncing storage: %w", err)
	}
	color.New(color.FgGreen).Printf("synced %s from %s\n", a.settings.WorkingFile(), source)
	return nil
}

func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := newApp(opts.configPath)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	if _, err := a.initialize(ctx); err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	watcher, err := engine.NewWatcher(a.store, a.settings.Storage.RemoteTimeout, a.logger)
	if err != nil {
		a.logger.Warn("working file watcher disabled", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              a.settings.ListenAddr(),
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", opts.configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    http://%s\n", srv.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Origin:  %s\n", a.settings.RemoteFile())
	if a.metrics != nil {
		green.Print("    ▶ ")
		fmt.Printf("Metrics: %s\n", a.settings.Metrics.Path)
	}
	fmt.Println()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}
