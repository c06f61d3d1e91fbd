package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bryanchriswhite/taskstrip/internal/logger"
	"github.com/bryanchriswhite/taskstrip/internal/settings"
	"gopkg.in/yaml.v3"
)

// FavoritesKey is the settings key served from Config.Favorites.
const FavoritesKey = "favorite-apps"

// Backends
const (
	BackendX11    = "x11"
	BackendMemory = "memory"

	SettingsFile   = "file"
	SettingsSQLite = "sqlite"
)

// Config represents the application configuration
type Config struct {
	LogLevel   string `json:"log_level" yaml:"log_level"`
	LogPretty  bool   `json:"log_pretty" yaml:"log_pretty"`
	ServerPort int    `json:"server_port" yaml:"server_port"`

	// Backend selects the desktop host: x11 or memory.
	Backend     string `json:"backend" yaml:"backend"`
	DBusEnabled bool   `json:"dbus_enabled" yaml:"dbus_enabled"`

	NotifyDelayMS    int      `json:"notify_delay_ms" yaml:"notify_delay_ms"`
	FavoritesEnabled bool     `json:"favorites_enabled" yaml:"favorites_enabled"`
	Favorites        []string `json:"favorites" yaml:"favorites"`

	// SettingsBackend stores favorites in this file or in an SQLite database.
	SettingsBackend string   `json:"settings_backend" yaml:"settings_backend"`
	SettingsDB      string   `json:"settings_db,omitempty" yaml:"settings_db,omitempty"`
	ApplicationDirs []string `json:"application_dirs,omitempty" yaml:"application_dirs,omitempty"`

	// Settings holds string lists under keys other than the favorites key.
	Settings map[string][]string `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

var _ settings.Store = (*Manager)(nil)

// DefaultPath is $HOME/.config/taskstrip/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "taskstrip", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty, creating it
// with defaults when it does not exist.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("backend", m.config.Backend).
		Int("favorites", len(m.config.Favorites)).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		LogLevel:         "info",
		LogPretty:        true,
		ServerPort:       8080,
		Backend:          BackendX11,
		DBusEnabled:      true,
		NotifyDelayMS:    100,
		FavoritesEnabled: true,
		Favorites:        []string{},
		SettingsBackend:  SettingsFile,
	}
}

// readFile parses path, filling unset fields from the defaults.
func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Favorites == nil {
		cfg.Favorites = []string{}
	}
	return cfg, nil
}

// load reads the configuration from disk
func (m *Manager) load() error {
	cfg, err := readFile(m.configPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	return m.config.clone()
}

func (c *Config) clone() *Config {
	cfg := *c
	cfg.Favorites = append([]string{}, c.Favorites...)
	cfg.ApplicationDirs = append([]string(nil), c.ApplicationDirs...)
	if c.Settings != nil {
		cfg.Settings = make(map[string][]string, len(c.Settings))
		for k, v := range c.Settings {
			cfg.Settings[k] = append([]string{}, v...)
		}
	}
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	if cfg != nil {
		cfg = cfg.clone()
	}
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Int("favorites", len(cfg.Favorites)).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Msg("Failed to marshal config")
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// Update updates the entire configuration
func (m *Manager) Update(cfg *Config) error {
	m.mu.Lock()
	m.config = cfg.clone()
	m.mu.Unlock()
	return m.Save()
}

// Strings implements settings.Store.
func (m *Manager) Strings(key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return nil, nil
	}
	if key == FavoritesKey {
		return append([]string{}, m.config.Favorites...), nil
	}
	v, ok := m.config.Settings[key]
	if !ok {
		return nil, nil
	}
	return append([]string{}, v...), nil
}

// SetStrings implements settings.Store and saves the file.
func (m *Manager) SetStrings(key string, values []string) error {
	values = append([]string{}, values...)

	m.mu.Lock()
	if m.config == nil {
		m.config = Defaults()
	}
	if key == FavoritesKey {
		m.config.Favorites = values
	} else {
		if m.config.Settings == nil {
			m.config.Settings = make(map[string][]string)
		}
		m.config.Settings[key] = values
	}
	m.mu.Unlock()
	return m.Save()
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) error {
	m.mu.Lock()
	m.config.ServerPort = port
	m.mu.Unlock()
	return m.Save()
}

// GetPort gets the server port
func (m *Manager) GetPort() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ServerPort
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}

// SettingsDBPath is the SQLite settings database, defaulting to settings.db
// next to the config file.
func (m *Manager) SettingsDBPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config != nil && m.config.SettingsDB != "" {
		return m.config.SettingsDB
	}
	return filepath.Join(filepath.Dir(m.configPath), "settings.db")
}
