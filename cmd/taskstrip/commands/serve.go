package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bryanchriswhite/taskstrip/internal/api"
	"github.com/bryanchriswhite/taskstrip/internal/config"
	"github.com/bryanchriswhite/taskstrip/internal/dbusapi"
	"github.com/bryanchriswhite/taskstrip/internal/logger"
	"github.com/bryanchriswhite/taskstrip/internal/scheduler"
	"github.com/bryanchriswhite/taskstrip/internal/taskbar"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the taskstrip service",
	Long: `Start tracking the desktop and serve the taskbar model over HTTP,
a websocket stream and, when enabled, the D-Bus session bus.`,
	Example: `  # Start server on default port (8080)
  taskstrip serve

  # Start server on custom port
  taskstrip serve --port 9090

  # Run against the in-memory desktop
  taskstrip serve --backend memory

  # Start with debug logging
  taskstrip serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()

	cfg := e.cfg
	log := logger.WithComponent("serve")
	log.Info().
		Str("config", e.configMgr.GetConfigPath()).
		Str("backend", cfg.Backend).
		Str("settings", cfg.SettingsBackend).
		Int("installed", e.catalog.Len()).
		Msg("Starting taskstrip")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := scheduler.New()
	desk, xhost, err := e.openHost(loop)
	if err != nil {
		return err
	}

	svc := taskbar.NewService(loop, desk, e.storage, e.catalog, taskbar.Options{
		NotifyDelay:      time.Duration(cfg.NotifyDelayMS) * time.Millisecond,
		FavoritesEnabled: cfg.FavoritesEnabled,
	})
	server := api.NewServer(loop, svc, e.catalog)

	// the loop outlives every component so their teardown can still reach it
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(loopCtx)
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	var wg sync.WaitGroup
	errc := make(chan error, 8)
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	if xhost != nil {
		spawn("x11", xhost.Run)
	}
	spawn("api", func(ctx context.Context) error { return server.Start(ctx, cfg.ServerPort) })
	if cfg.DBusEnabled {
		spawn("dbus", func(ctx context.Context) error { return dbusapi.Serve(ctx, loop, svc) })
	}
	spawn("catalog", func(ctx context.Context) error {
		return e.catalog.Watch(ctx, func() {
			loop.Post(desk.EmitInstalledChanged)
		})
	})
	if cfg.SettingsBackend != config.SettingsSQLite {
		spawn("config", func(ctx context.Context) error {
			return e.configMgr.Watch(ctx, func(prev, next *config.Config) {
				if config.FavoritesChanged(prev, next) {
					loop.Post(desk.EmitFavoritesChanged)
				}
			})
		})
	}

	log.Info().
		Str("api", fmt.Sprintf("http://localhost:%d/api", cfg.ServerPort)).
		Bool("dbus", cfg.DBusEnabled).
		Msg("taskstrip is running, press Ctrl+C to stop")

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down gracefully")
	case err = <-errc:
		log.Error().Err(err).Msg("Component failed, shutting down")
	}
	stop()
	wg.Wait()
	return err
}
