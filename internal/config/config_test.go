package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "taskstrip", "config.yaml"))
	require.NoError(t, err)
	return m
}

func TestNewManagerCreatesDefaults(t *testing.T) {
	m := newTestManager(t)

	_, err := os.Stat(m.GetConfigPath())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), m.Get())
	assert.Equal(t, 8080, m.GetPort())
	assert.Equal(t, filepath.Join(m.GetConfigDir(), "settings.db"), m.SettingsDBPath())
}

func TestLoadFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: 9999\nfavorites: [firefox]\n"), 0o644))

	m, err := NewManager(path)
	require.NoError(t, err)
	cfg := m.Get()
	assert.Equal(t, 9999, cfg.ServerPort)
	assert.Equal(t, []string{"firefox"}, cfg.Favorites)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, BackendX11, cfg.Backend)
	assert.True(t, cfg.FavoritesEnabled)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: [nope\n"), 0o644))

	_, err := NewManager(path)
	assert.Error(t, err)
}

func TestSettingsStore(t *testing.T) {
	m := newTestManager(t)

	got, err := m.Strings(FavoritesKey)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, m.SetStrings(FavoritesKey, []string{"a", "b"}))
	require.NoError(t, m.SetStrings("recent", []string{"x"}))

	reopened, err := NewManager(m.GetConfigPath())
	require.NoError(t, err)
	got, err = reopened.Strings(FavoritesKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
	got, err = reopened.Strings("recent")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got)

	got, err = reopened.Strings("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetReturnsCopy(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SetStrings(FavoritesKey, []string{"a"}))

	cfg := m.Get()
	cfg.Favorites[0] = "mutated"
	assert.Equal(t, []string{"a"}, m.Get().Favorites)
}

func TestSetValidatesAndSaves(t *testing.T) {
	m := newTestManager(t)

	tests := []struct {
		key, value string
		want       any
	}{
		{"server_port", "9090", 9090},
		{"log_level", "DEBUG", "debug"},
		{"log_pretty", "false", false},
		{"backend", "memory", "memory"},
		{"notify_delay_ms", "250", 250},
		{"favorites", "firefox, gimp,,", []string{"firefox", "gimp"}},
		{"settings_backend", "sqlite", "sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			require.NoError(t, m.Set(tt.key, tt.value))
			got, err := m.Value(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Error(t, m.Set("server_port", "70000"))
	assert.Error(t, m.Set("backend", "wayland"))
	assert.Error(t, m.Set("log_pretty", "maybe"))
	assert.Error(t, m.Set("nope", "1"))
	_, err := m.Value("nope")
	assert.Error(t, err)
	assert.Equal(t, 9090, m.GetPort(), "a rejected value leaves the config alone")

	v, err := m.Viper()
	require.NoError(t, err)
	assert.Equal(t, 9090, v.GetInt("server_port"))
	assert.Equal(t, []string{"firefox", "gimp"}, v.GetStringSlice("favorites"))
}

func TestKeysAreSorted(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "favorites")
	assert.IsIncreasing(t, keys)
}

func TestReloadDetectsChanges(t *testing.T) {
	m := newTestManager(t)

	_, _, changed := m.reload()
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(m.GetConfigPath(), []byte("favorites: [x]\n"), 0o644))
	prev, next, changed := m.reload()
	require.True(t, changed)
	assert.True(t, FavoritesChanged(prev, next))
	assert.Equal(t, []string{"x"}, m.Get().Favorites)

	require.NoError(t, os.WriteFile(m.GetConfigPath(), []byte("favorites: [x]\nserver_port: 1234\n"), 0o644))
	prev, next, changed = m.reload()
	require.True(t, changed)
	assert.False(t, FavoritesChanged(prev, next))

	require.NoError(t, os.WriteFile(m.GetConfigPath(), []byte("server_port: [nope\n"), 0o644))
	_, _, changed = m.reload()
	assert.False(t, changed)
	assert.Equal(t, 1234, m.GetPort())
}

func TestWatchSeesExternalEdits(t *testing.T) {
	m := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	go func() {
		_ = m.Watch(ctx, func(_, next *Config) { changes <- next })
	}()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(m.GetConfigPath(), []byte("favorites: [vim]\n"), 0o644))
	select {
	case next := <-changes:
		assert.Equal(t, []string{"vim"}, next.Favorites)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}
}
