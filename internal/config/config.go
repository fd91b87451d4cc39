package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/CaptureKit/internal/capture"
	"github.com/bryanchriswhite/CaptureKit/internal/encoder"
	"github.com/bryanchriswhite/CaptureKit/internal/frame"
	"github.com/bryanchriswhite/CaptureKit/internal/logger"
	"github.com/bryanchriswhite/CaptureKit/internal/session"
	"github.com/bryanchriswhite/CaptureKit/internal/target"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServerPort = 8090
	DefaultLogLevel   = "info"
	DefaultFPS        = 10
)

// Config represents the application configuration
type Config struct {
	LogLevel   string        `json:"log_level" yaml:"log_level"`
	ServerPort int           `json:"server_port" yaml:"server_port"`
	Target     target.Fields `json:"target" yaml:"target"`
	Capture    CaptureConfig `json:"capture" yaml:"capture"`
	Output     OutputConfig  `json:"output" yaml:"output"`
}

// CaptureConfig holds the capture settings. Nil booleans leave the choice
// to the backend.
type CaptureConfig struct {
	CursorCapture         *bool  `json:"cursor_capture,omitempty" yaml:"cursor_capture,omitempty"`
	DrawBorder            *bool  `json:"draw_border,omitempty" yaml:"draw_border,omitempty"`
	SecondaryWindow       *bool  `json:"secondary_window,omitempty" yaml:"secondary_window,omitempty"`
	MinimumUpdateInterval string `json:"minimum_update_interval,omitempty" yaml:"minimum_update_interval,omitempty"`
	DirtyRegion           *bool  `json:"dirty_region,omitempty" yaml:"dirty_region,omitempty"`
	ColorFormat           string `json:"color_format" yaml:"color_format"`
	FPS                   int    `json:"fps" yaml:"fps"`
}

// OutputConfig controls where the capture command writes frames
type OutputConfig struct {
	Dir       string `json:"dir" yaml:"dir"`
	Format    string `json:"format" yaml:"format"`
	MaxFrames int    `json:"max_frames" yaml:"max_frames"`
	Annotate  bool   `json:"annotate" yaml:"annotate"` // caption and border on served frames
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		LogLevel:   DefaultLogLevel,
		ServerPort: DefaultServerPort,
		Capture: CaptureConfig{
			ColorFormat: frame.RGBA8.String(),
			FPS:         DefaultFPS,
		},
		Output: OutputConfig{
			Dir:    ".",
			Format: string(encoder.PNG),
		},
	}
}

// Settings converts the capture section into backend settings
func (c *Config) Settings() (capture.Settings, error) {
	format, err := frame.ParsePixelFormat(c.Capture.ColorFormat)
	if err != nil {
		return capture.Settings{}, err
	}

	var interval time.Duration
	if s := strings.TrimSpace(c.Capture.MinimumUpdateInterval); s != "" {
		interval, err = time.ParseDuration(s)
		if err != nil {
			return capture.Settings{}, fmt.Errorf("invalid minimum_update_interval %q: %w", s, err)
		}
		if interval < 0 {
			return capture.Settings{}, fmt.Errorf("minimum_update_interval must not be negative, got %s", s)
		}
	}
	if c.Capture.FPS < 0 {
		return capture.Settings{}, fmt.Errorf("fps must not be negative, got %d", c.Capture.FPS)
	}

	return capture.Settings{
		CursorCapture:     c.Capture.CursorCapture,
		DrawBorder:        c.Capture.DrawBorder,
		SecondaryWindow:   c.Capture.SecondaryWindow,
		DirtyRegion:       c.Capture.DirtyRegion,
		MinUpdateInterval: interval,
		FPS:               c.Capture.FPS,
		ColorFormat:       format,
	}, nil
}

// SessionOptions builds the options for a capture session. Target fields
// that are absent from the file stay absent.
func (c *Config) SessionOptions() (session.Options, error) {
	settings, err := c.Settings()
	if err != nil {
		return session.Options{}, err
	}
	return session.Options{Target: c.Target, Settings: settings}, nil
}

// OutputFormat returns the configured image format for saved frames
func (c *Config) OutputFormat() (encoder.Format, error) {
	if c.Output.Format == "" {
		return encoder.PNG, nil
	}
	return encoder.ParseFormat(c.Output.Format)
}

// Validate checks the fields that can be checked without a display
func (c *Config) Validate() error {
	if _, err := target.Validate(c.Target); err != nil {
		return err
	}
	if _, err := c.Settings(); err != nil {
		return err
	}
	if _, err := c.OutputFormat(); err != nil {
		return err
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server_port %d", c.ServerPort)
	}
	if c.Output.MaxFrames < 0 {
		return fmt.Errorf("max_frames must not be negative, got %d", c.Output.MaxFrames)
	}
	return nil
}

// clone returns a deep copy so callers cannot mutate the managed config
func (c *Config) clone() *Config {
	cp := *c
	cp.Target = target.Fields{
		WindowHandle: clonePtr(c.Target.WindowHandle),
		MonitorIndex: clonePtr(c.Target.MonitorIndex),
		WindowTitle:  clonePtr(c.Target.WindowTitle),
	}
	cp.Capture.CursorCapture = clonePtr(c.Capture.CursorCapture)
	cp.Capture.DrawBorder = clonePtr(c.Capture.DrawBorder)
	cp.Capture.SecondaryWindow = clonePtr(c.Capture.SecondaryWindow)
	cp.Capture.DirtyRegion = clonePtr(c.Capture.DirtyRegion)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// DefaultPath returns $HOME/.config/capturekit/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "capturekit", "config.yaml"), nil
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager loads configFile, or the default path when empty. A missing
// file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	m := &Manager{configPath: path}

	if err := m.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	cfg := m.Get()
	spec, _ := target.Validate(cfg.Target)
	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("target", spec.String()).
		Msg("Config loaded")

	return m, nil
}

// load reads the configuration from disk, filling unset fields with defaults
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	return m.config.clone()
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	if cfg == nil {
		cfg = Defaults()
	}
	data, err := yaml.Marshal(cfg)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Update validates and replaces the configuration, then saves it
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg.clone()
	m.mu.Unlock()
	return m.Save()
}

// SetTarget replaces the target fields and saves
func (m *Manager) SetTarget(fields target.Fields) error {
	cfg := m.Get()
	cfg.Target = fields
	return m.Update(cfg)
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) error {
	cfg := m.Get()
	cfg.ServerPort = port
	return m.Update(cfg)
}

// GetPort returns the server port
func (m *Manager) GetPort() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return DefaultServerPort
	}
	return m.config.ServerPort
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	cfg := m.Get()
	cfg.LogLevel = level
	return m.Update(cfg)
}

// GetLogLevel returns the log level
func (m *Manager) GetLogLevel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return DefaultLogLevel
	}
	return m.config.LogLevel
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
