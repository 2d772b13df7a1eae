package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bryanchriswhite/ShareFrame/internal/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. SHAREFRAME_RENDER_FPS.
const EnvPrefix = "SHAREFRAME"

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns the config file used when none is given
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(dir, "shareframe", "config.yaml"), nil
}

// NewManager loads configFile (or the default path), layering defaults,
// the file and SHAREFRAME_* environment variables. A missing file is
// created with the defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m := &Manager{configPath: path, v: v}

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", path).
			Msg("Config file not found, creating new config")
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	cfg, err := m.decode()
	if err != nil {
		return nil, err
	}
	m.config = cfg

	logger.WithComponent("config").Info().
		Str("path", path).
		Str("backend", cfg.Capture.Backend).
		Msg("Config loaded")

	return m, nil
}

func (m *Manager) decode() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// Value returns the raw value stored under key
func (m *Manager) Value(key string) (interface{}, error) {
	if !IsKey(key) {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.Get(key), nil
}

// Set changes key, validates the result and saves it to disk. An invalid
// value leaves the configuration untouched.
func (m *Manager) Set(key, value string) error {
	if err := m.Override(key, value); err != nil {
		return err
	}
	return m.Save()
}

// Override changes key for this process only (command-line flags).
func (m *Manager) Override(key string, value interface{}) error {
	if !IsKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.v.Get(key)
	m.v.Set(key, value)
	cfg, err := m.decode()
	if err != nil {
		m.v.Set(key, previous)
		return fmt.Errorf("%s: %w", key, err)
	}
	m.config = cfg
	return nil
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(m.v.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// WriteYAML writes the effective settings (defaults, file and
// environment merged) to w.
func (m *Manager) WriteYAML(w io.Writer) error {
	m.mu.RLock()
	settings := m.v.AllSettings()
	m.mu.RUnlock()

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return err
	}
	return enc.Close()
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Keys returns every known config key, sorted
func Keys() []string {
	d := defaults()
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsKey reports whether key is a known config key
func IsKey(key string) bool {
	_, ok := defaults()[key]
	return ok
}
