// Package config provides configuration management for repsense
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config represents the main repsense configuration
type Config struct {
	Server    ServerConfig                `yaml:"server"`
	Database  DatabaseConfig              `yaml:"database"`
	Samples   SamplesConfig               `yaml:"samples"`
	Detection DetectionConfig             `yaml:"detection"`
	Events    EventsConfig                `yaml:"events"`
	Camera    CameraConfig                `yaml:"camera"`
	Logging   LoggingConfig               `yaml:"logging"`
	Exercises map[string]ExerciseOverride `yaml:"exercises"`

	// Internal fields
	mu       sync.RWMutex      `yaml:"-"`
	path     string            `yaml:"-"`
	watchers []func(*Config)   `yaml:"-"`
	watcher  *fsnotify.Watcher `yaml:"-"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite path
}

// SamplesConfig points at a directory of <exercise>.csv recordings
type SamplesConfig struct {
	Dir string `yaml:"dir"`
}

// DetectionConfig holds settings shared by every detector
type DetectionConfig struct {
	SmoothingWindow      int     `yaml:"smoothing_window"`
	MinConfidence        float64 `yaml:"min_confidence"`
	CalibrationTimeoutMs int     `yaml:"calibration_timeout_ms"`
}

// CalibrationTimeout returns the calibration budget as a duration
func (d DetectionConfig) CalibrationTimeout() time.Duration {
	return time.Duration(d.CalibrationTimeoutMs) * time.Millisecond
}

// EventsConfig holds rep event bus settings
type EventsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`      // external NATS server, used when embedded is false
	Embedded bool   `yaml:"embedded"` // run an in-process NATS server
	Port     int    `yaml:"port"`     // embedded server port, -1 for random
}

// CameraConfig holds local camera mode settings
type CameraConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Device     int    `yaml:"device"`
	FPS        int    `yaml:"fps"`
	PoseScript string `yaml:"pose_script"`
	Exercise   string `yaml:"exercise"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// ExerciseOverride tunes one catalog entry. Zero fields keep the built-in value.
type ExerciseOverride struct {
	Sensitivity float64 `yaml:"sensitivity"`
	DebounceMs  int64   `yaml:"debounce_ms"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.path = path

	return cfg, nil
}

// Parse decodes YAML configuration and applies defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Detection.MinConfidence < 0 || c.Detection.MinConfidence > 1 {
		return fmt.Errorf("detection.min_confidence must be within [0,1], got %v", c.Detection.MinConfidence)
	}
	if c.Detection.SmoothingWindow < 0 {
		return fmt.Errorf("detection.smoothing_window must not be negative, got %d", c.Detection.SmoothingWindow)
	}
	for name, o := range c.Exercises {
		if o.Sensitivity < 0 || o.Sensitivity >= 1 {
			return fmt.Errorf("exercises.%s.sensitivity must be within [0,1), got %v", name, o.Sensitivity)
		}
		if o.DebounceMs < 0 {
			return fmt.Errorf("exercises.%s.debounce_ms must not be negative, got %d", name, o.DebounceMs)
		}
	}
	return nil
}

// Watch starts watching for configuration file changes
func (c *Config) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.watcher = watcher
	path := c.path
	c.mu.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					time.Sleep(100 * time.Millisecond) // Debounce
					c.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watch error", "error", err)
			}
		}
	}()

	return watcher.Add(path)
}

// Close stops the file watcher started by Watch
func (c *Config) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher == nil {
		return nil
	}
	err := c.watcher.Close()
	c.watcher = nil
	return err
}

// OnChange registers a callback for config changes
func (c *Config) OnChange(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

// reload reloads the configuration from disk
func (c *Config) reload() {
	newCfg, err := Load(c.GetPath())
	if err != nil {
		slog.Error("Failed to reload config", "error", err)
		return
	}

	c.mu.Lock()
	// Detection tuning, overrides and the log level are applied live. Listeners,
	// storage and the log format need a restart.
	c.Detection = newCfg.Detection
	c.Exercises = newCfg.Exercises
	c.Logging.Level = newCfg.Logging.Level
	watchers := c.watchers
	c.mu.Unlock()

	SetLogLevel(newCfg.Logging.Level)

	slog.Info("Configuration reloaded")

	for _, fn := range watchers {
		fn(c)
	}
}

// ExerciseOverrides returns a copy of the per-exercise overrides
func (c *Config) ExerciseOverrides() map[string]ExerciseOverride {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]ExerciseOverride, len(c.Exercises))
	for k, v := range c.Exercises {
		out[k] = v
	}
	return out
}

// DetectionSettings returns the current detection settings
func (c *Config) DetectionSettings() DetectionConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Detection
}

// SetPath sets the path for the config file (used for watching)
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// GetPath returns the current config file path
func (c *Config) GetPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// setDefaults sets default values for unset fields
func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Database.Path == "" {
		c.Database.Path = "repsense.db"
	}
	if c.Detection.SmoothingWindow == 0 {
		c.Detection.SmoothingWindow = 5
	}
	if c.Detection.MinConfidence == 0 {
		c.Detection.MinConfidence = 0.5
	}
	if c.Detection.CalibrationTimeoutMs == 0 {
		c.Detection.CalibrationTimeoutMs = 2000
	}
	if c.Events.Embedded && c.Events.Port == 0 {
		c.Events.Port = 4222
	}
	if c.Events.URL == "" {
		c.Events.URL = "nats://127.0.0.1:4222"
	}
	if c.Camera.FPS == 0 {
		c.Camera.FPS = 30
	}
	if c.Camera.PoseScript == "" {
		c.Camera.PoseScript = "scripts/pose_server.py"
	}
	if c.Camera.Exercise == "" {
		c.Camera.Exercise = "squats"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Exercises == nil {
		c.Exercises = map[string]ExerciseOverride{}
	}
}

// logLevel is shared by every logger SetupLogging builds so reloads can change it.
var logLevel = new(slog.LevelVar)

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLogLevel changes the level of loggers built by SetupLogging, including
// those already derived with With.
func SetLogLevel(level string) {
	logLevel.Set(parseLevel(level))
}

// SetupLogging installs the default slog logger for the given settings
func SetupLogging(cfg LoggingConfig, w io.Writer) *slog.Logger {
	SetLogLevel(cfg.Level)

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
