package config

import (
	"context"
	"path/filepath"
	"slices"
	"time"

	"github.com/bryanchriswhite/taskstrip/internal/logger"
	"github.com/fsnotify/fsnotify"
)

const watchSettle = 200 * time.Millisecond

// Watch reloads the file when it changes on disk and calls onChange with the
// previous and the new configuration. It blocks until ctx is done. The
// directory is watched so editors that replace the file are seen.
func (m *Manager) Watch(ctx context.Context, onChange func(prev, next *Config)) error {
	log := logger.WithComponent("config")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(m.GetConfigDir()); err != nil {
		return err
	}
	log.Debug().Str("path", m.configPath).Msg("Watching config file")

	target := filepath.Clean(m.configPath)
	timer := time.NewTimer(watchSettle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(watchSettle)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Config watcher error")

		case <-timer.C:
			prev, next, changed := m.reload()
			if changed && onChange != nil {
				onChange(prev, next)
			}
		}
	}
}

// reload re-reads the file. It reports changed == false when the file is
// unreadable or matches what is already loaded.
func (m *Manager) reload() (prev, next *Config, changed bool) {
	cfg, err := readFile(m.configPath)
	if err != nil {
		logger.WithComponent("config").Warn().Err(err).Msg("Failed to reload config, keeping current")
		return nil, nil, false
	}

	m.mu.Lock()
	old := m.config
	m.config = cfg
	m.mu.Unlock()

	if old != nil && equal(old, cfg) {
		return nil, nil, false
	}
	logger.WithComponent("config").Info().Str("path", m.configPath).Msg("Config reloaded")
	if old == nil {
		old = Defaults()
	}
	return old.clone(), cfg.clone(), true
}

// FavoritesChanged reports whether the pin list differs between a and b.
func FavoritesChanged(a, b *Config) bool {
	return !slices.Equal(a.Favorites, b.Favorites) || a.FavoritesEnabled != b.FavoritesEnabled
}

func equal(a, b *Config) bool {
	if !slices.Equal(a.Favorites, b.Favorites) || !slices.Equal(a.ApplicationDirs, b.ApplicationDirs) {
		return false
	}
	if len(a.Settings) != len(b.Settings) {
		return false
	}
	for k, v := range a.Settings {
		if !slices.Equal(v, b.Settings[k]) {
			return false
		}
	}
	for _, key := range Keys() {
		f := fields[key]
		if _, list := f.get(a).([]string); list {
			continue
		}
		if f.get(a) != f.get(b) {
			return false
		}
	}
	return true
}
