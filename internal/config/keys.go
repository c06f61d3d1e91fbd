package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/taskstrip/internal/logger"
	"github.com/spf13/viper"
)

// field binds one config key to its accessors.
type field struct {
	get func(*Config) any
	set func(*Config, string) error
}

var fields = map[string]field{
	"log_level": {
		get: func(c *Config) any { return c.LogLevel },
		set: func(c *Config, v string) error {
			switch strings.ToLower(v) {
			case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled", "off":
				c.LogLevel = strings.ToLower(v)
				return nil
			}
			return fmt.Errorf("invalid log level %q", v)
		},
	},
	"log_pretty": {
		get: func(c *Config) any { return c.LogPretty },
		set: boolSetter(func(c *Config, b bool) { c.LogPretty = b }),
	},
	"server_port": {
		get: func(c *Config) any { return c.ServerPort },
		set: func(c *Config, v string) error {
			port, err := strconv.Atoi(v)
			if err != nil || port < 1 || port > 65535 {
				return fmt.Errorf("invalid port %q", v)
			}
			c.ServerPort = port
			return nil
		},
	},
	"backend": {
		get: func(c *Config) any { return c.Backend },
		set: enumSetter(func(c *Config, v string) { c.Backend = v }, BackendX11, BackendMemory),
	},
	"dbus_enabled": {
		get: func(c *Config) any { return c.DBusEnabled },
		set: boolSetter(func(c *Config, b bool) { c.DBusEnabled = b }),
	},
	"notify_delay_ms": {
		get: func(c *Config) any { return c.NotifyDelayMS },
		set: func(c *Config, v string) error {
			ms, err := strconv.Atoi(v)
			if err != nil || ms < 0 {
				return fmt.Errorf("invalid delay %q", v)
			}
			c.NotifyDelayMS = ms
			return nil
		},
	},
	"favorites_enabled": {
		get: func(c *Config) any { return c.FavoritesEnabled },
		set: boolSetter(func(c *Config, b bool) { c.FavoritesEnabled = b }),
	},
	"favorites": {
		get: func(c *Config) any { return c.Favorites },
		set: func(c *Config, v string) error {
			c.Favorites = splitList(v)
			return nil
		},
	},
	"settings_backend": {
		get: func(c *Config) any { return c.SettingsBackend },
		set: enumSetter(func(c *Config, v string) { c.SettingsBackend = v }, SettingsFile, SettingsSQLite),
	},
	"settings_db": {
		get: func(c *Config) any { return c.SettingsDB },
		set: func(c *Config, v string) error {
			c.SettingsDB = v
			return nil
		},
	},
	"application_dirs": {
		get: func(c *Config) any { return c.ApplicationDirs },
		set: func(c *Config, v string) error {
			c.ApplicationDirs = splitList(v)
			return nil
		},
	},
}

// Keys lists the settable keys in order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value returns the value stored under key.
func (m *Manager) Value(key string) (any, error) {
	f, ok := fields[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	return f.get(m.Get()), nil
}

// Set parses value for key and saves the file.
func (m *Manager) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}

	m.mu.Lock()
	if m.config == nil {
		m.config = Defaults()
	}
	next := m.config.clone()
	if err := f.set(next, value); err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = next
	m.mu.Unlock()

	logger.WithComponent("config").Info().Str("key", key).Str("value", value).Msg("Config value set")
	return m.Save()
}

// Viper returns a viper instance over the config file as it is on disk.
func (m *Manager) Viper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(m.configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return v, nil
}

func boolSetter(apply func(*Config, bool)) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", v)
		}
		apply(c, b)
		return nil
	}
}

func enumSetter(apply func(*Config, string), allowed ...string) func(*Config, string) error {
	return func(c *Config, v string) error {
		for _, a := range allowed {
			if v == a {
				apply(c, v)
				return nil
			}
		}
		return fmt.Errorf("invalid value %q (want one of %s)", v, strings.Join(allowed, ", "))
	}
}

// splitList parses a comma separated list, dropping blanks.
func splitList(v string) []string {
	out := []string{}
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
