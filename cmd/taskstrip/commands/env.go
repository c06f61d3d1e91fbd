package commands

import (
	"fmt"

	"github.com/bryanchriswhite/taskstrip/internal/appinfo"
	"github.com/bryanchriswhite/taskstrip/internal/config"
	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/host/memhost"
	"github.com/bryanchriswhite/taskstrip/internal/host/x11"
	"github.com/bryanchriswhite/taskstrip/internal/logger"
	"github.com/bryanchriswhite/taskstrip/internal/scheduler"
	"github.com/bryanchriswhite/taskstrip/internal/settings"
	"github.com/spf13/viper"
)

// desktop is a host that can be told about settings and catalog changes.
type desktop interface {
	host.Host
	EmitFavoritesChanged()
	EmitInstalledChanged()
}

// env is what every command that touches the taskbar needs.
type env struct {
	configMgr *config.Manager
	cfg       *config.Config
	catalog   *appinfo.Catalog
	storage   settings.Store
	closers   []func() error
}

// setup loads the config, applies flag overrides without persisting them
// and opens the favorites storage.
func setup() (*env, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			cfg.ServerPort = port
		}
	}
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			cfg.LogLevel = level
		}
	}
	if viper.IsSet("backend") {
		if backend := viper.GetString("backend"); backend != "" {
			cfg.Backend = backend
		}
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	e := &env{configMgr: configMgr, cfg: cfg}

	dirs := cfg.ApplicationDirs
	if len(dirs) == 0 {
		dirs = appinfo.DefaultDirs()
	}
	e.catalog = appinfo.New(dirs...)

	switch cfg.SettingsBackend {
	case config.SettingsSQLite:
		db, err := settings.OpenSQLite(configMgr.SettingsDBPath())
		if err != nil {
			return nil, err
		}
		e.storage = db
		e.closers = append(e.closers, db.Close)
	case config.SettingsFile, "":
		e.storage = configMgr
	default:
		return nil, fmt.Errorf("unknown settings backend: %s", cfg.SettingsBackend)
	}
	return e, nil
}

// openHost connects the configured backend. The X11 host is also returned
// on its own so the caller can pump its events; it is nil for memory.
func (e *env) openHost(loop *scheduler.Loop) (desktop, *x11.Host, error) {
	switch e.cfg.Backend {
	case config.BackendMemory:
		return memhost.New(4), nil, nil
	case config.BackendX11, "":
		h, err := x11.Open(loop, e.catalog)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to X11: %w", err)
		}
		e.closers = append(e.closers, h.Close)
		return h, h, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend: %s", e.cfg.Backend)
	}
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			logger.WithComponent("cli").Debug().Err(err).Msg("Close failed")
		}
	}
}
