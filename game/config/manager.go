package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wricardo/mcp-training/storageyard/game/engine"
	"github.com/wricardo/mcp-training/storageyard/game/service"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// DefaultConfigID is loaded as the default preset when present
const DefaultConfigID = "transfer_5x5"

// Manager handles environment preset loading and caching
type Manager struct {
	configDir     string
	defaultConfig *engine.EnvConfig
	configs       map[string]*engine.EnvConfig
	logger        *zap.Logger
	mu            sync.RWMutex
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the manager's logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a new configuration manager
func NewManager(configDir string, opts ...Option) (*Manager, error) {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		configs:   make(map[string]*engine.EnvConfig),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.loadDefaultConfig(); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	return m, nil
}

// ValidName reports whether name is a plain file name inside the config
// directory: no path separators, no "..", no leading dot.
func ValidName(name string) bool {
	return name != "" &&
		!strings.ContainsAny(name, `/\`) &&
		!strings.Contains(name, "..") &&
		!strings.HasPrefix(name, ".")
}

// LoadConfig loads a preset by ID (file name without extension)
func (m *Manager) LoadConfig(name string) (*engine.EnvConfig, error) {
	id := configID(name)
	if !ValidName(id) {
		return nil, fmt.Errorf("%w: invalid config id %q", ErrConfigNotFound, name)
	}

	m.mu.RLock()
	if config, exists := m.configs[id]; exists {
		m.mu.RUnlock()
		return config, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if config, exists := m.configs[id]; exists {
		return config, nil
	}

	path, err := m.findFile(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	format, _ := FormatForPath(path)
	config, err := DecodePreset(data, format)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", id, err)
	}

	m.configs[id] = config
	return config, nil
}

// ListConfigs returns information about all valid presets, sorted by ID
func (m *Manager) ListConfigs() ([]*service.ConfigInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var configs []*service.ConfigInfo
	seen := make(map[string]bool)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := FormatForPath(entry.Name()); !ok {
			continue
		}

		id := configID(entry.Name())
		if seen[id] {
			continue
		}
		seen[id] = true

		config, err := m.LoadConfig(id)
		if err != nil {
			m.logger.Warn("skipping invalid config", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		configs = append(configs, service.NewConfigInfo(entry.Name(), id, config))
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].ConfigID < configs[j].ConfigID })
	return configs, nil
}

// GetDefault returns the default configuration
func (m *Manager) GetDefault() *engine.EnvConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultConfig
}

// SetDefault sets the default configuration by ID
func (m *Manager) SetDefault(name string) error {
	config, err := m.LoadConfig(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultConfig = config
	return nil
}

// RefreshCache drops cached presets and reloads the default
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.configs = make(map[string]*engine.EnvConfig)
	m.mu.Unlock()

	return m.loadDefaultConfig()
}

// SaveConfig validates and writes a preset. A name ending in .yaml or .yml is
// written as YAML, anything else as JSON.
func (m *Manager) SaveConfig(name string, config *engine.EnvConfig) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: name %q must be a plain file name", ErrInvalidConfig, name)
	}
	if err := engine.ValidateEnvConfig(config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	format, ok := FormatForPath(name)
	filename := name
	if !ok {
		format = FormatJSON
		filename = name + ".json"
	}

	data, err := EncodePreset(config, format)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	configPath := filepath.Join(m.configDir, filename)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	m.configs[configID(name)] = config
	m.mu.Unlock()

	m.logger.Info("config saved", zap.String("config_id", configID(name)), zap.String("path", configPath))
	return nil
}

// loadDefaultConfig prefers DefaultConfigID, then the first valid preset,
// then the built-in default.
func (m *Manager) loadDefaultConfig() error {
	config, err := m.LoadConfig(DefaultConfigID)
	if err != nil {
		configs, listErr := m.ListConfigs()
		if listErr != nil || len(configs) == 0 {
			m.setDefault(engine.DefaultEnvConfig())
			return nil
		}

		config, err = m.LoadConfig(configs[0].ConfigID)
		if err != nil {
			m.setDefault(engine.DefaultEnvConfig())
			return nil
		}
	}

	m.setDefault(config)
	return nil
}

func (m *Manager) setDefault(config *engine.EnvConfig) {
	m.mu.Lock()
	m.defaultConfig = config
	m.mu.Unlock()
}

// findFile resolves a config ID to a file path. Caller holds the lock.
func (m *Manager) findFile(id string) (string, error) {
	for _, ext := range supportedExtensions {
		path := filepath.Join(m.configDir, id+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrConfigNotFound, id)
}

// configID strips a known preset extension
func configID(name string) string {
	if _, ok := FormatForPath(name); ok {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}
