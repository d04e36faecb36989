package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  addr: ":9090"
  allowed_origins: ["http://localhost:3000"]
database:
  path: "/data/reps.db"
detection:
  smoothing_window: 7
  min_confidence: 0.6
events:
  enabled: true
  embedded: true
  port: -1
exercises:
  pushups:
    sensitivity: 0.12
    debounce_ms: 450
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Expected addr ':9090', got '%s'", cfg.Server.Addr)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("Unexpected allowed origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Database.Path != "/data/reps.db" {
		t.Errorf("Expected database path '/data/reps.db', got '%s'", cfg.Database.Path)
	}
	if cfg.Detection.SmoothingWindow != 7 {
		t.Errorf("Expected smoothing window 7, got %d", cfg.Detection.SmoothingWindow)
	}
	if cfg.Detection.MinConfidence != 0.6 {
		t.Errorf("Expected min confidence 0.6, got %v", cfg.Detection.MinConfidence)
	}
	if cfg.Events.Port != -1 {
		t.Errorf("Expected random embedded port -1, got %d", cfg.Events.Port)
	}
	if cfg.GetPath() != configPath {
		t.Errorf("Expected path %s, got %s", configPath, cfg.GetPath())
	}

	o, ok := cfg.Exercises["pushups"]
	if !ok {
		t.Fatal("Expected pushups override")
	}
	if o.Sensitivity != 0.12 || o.DebounceMs != 450 {
		t.Errorf("Unexpected override %+v", o)
	}
}

func TestLoadNonExistent(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Expected error when loading non-existent file")
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "server: [unclosed"},
		{"confidence above one", "detection:\n  min_confidence: 1.5\n"},
		{"negative window", "detection:\n  smoothing_window: -2\n"},
		{"sensitivity of one", "exercises:\n  squats:\n    sensitivity: 1\n"},
		{"negative debounce", "exercises:\n  squats:\n    debounce_ms: -10\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.content)); err == nil {
				t.Errorf("Expected error for %q", tt.content)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Expected default addr ':8080', got '%s'", cfg.Server.Addr)
	}
	if cfg.Detection.SmoothingWindow != 5 {
		t.Errorf("Expected default window 5, got %d", cfg.Detection.SmoothingWindow)
	}
	if cfg.Detection.MinConfidence != 0.5 {
		t.Errorf("Expected default confidence 0.5, got %v", cfg.Detection.MinConfidence)
	}
	if cfg.Detection.CalibrationTimeout() != 2*time.Second {
		t.Errorf("Expected 2s calibration timeout, got %v", cfg.Detection.CalibrationTimeout())
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Unexpected logging defaults %+v", cfg.Logging)
	}
	if cfg.Events.Enabled {
		t.Error("Expected events disabled by default")
	}
	if cfg.Exercises == nil {
		t.Error("Expected non-nil overrides map")
	}
}

func TestEmbeddedPortDefault(t *testing.T) {
	cfg, err := Parse([]byte("events:\n  enabled: true\n  embedded: true\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Events.Port != 4222 {
		t.Errorf("Expected embedded port 4222, got %d", cfg.Events.Port)
	}
}

func TestExerciseOverridesCopy(t *testing.T) {
	cfg, err := Parse([]byte("exercises:\n  squats:\n    sensitivity: 0.1\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	overrides := cfg.ExerciseOverrides()
	overrides["squats"] = ExerciseOverride{Sensitivity: 0.9}

	if cfg.ExerciseOverrides()["squats"].Sensitivity != 0.1 {
		t.Error("ExerciseOverrides() must return a copy")
	}
}

func TestWatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping watcher test in short mode")
	}

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("detection:\n  smoothing_window: 5\n"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	changed := make(chan int, 4)
	cfg.OnChange(func(c *Config) {
		changed <- c.DetectionSettings().SmoothingWindow
	})

	if err := cfg.Watch(); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer cfg.Close()

	if err := os.WriteFile(configPath, []byte("detection:\n  smoothing_window: 9\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case w := <-changed:
			if w == 9 {
				return
			}
		case <-deadline:
			t.Fatal("Timed out waiting for reload")
		}
	}
}

func TestSetupLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogging(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Info message should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("Expected JSON warn line, got %q", out)
	}
}

func TestReloadAppliesLogLevel(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("logging:\n  level: info\n"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	var buf bytes.Buffer
	logger := SetupLogging(cfg.Logging, &buf).With("component", "test")
	t.Cleanup(func() { SetLogLevel("info") })

	logger.Debug("before reload")

	if err := os.WriteFile(configPath, []byte("logging:\n  level: debug\n  format: json\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}
	cfg.reload()

	logger.Debug("after reload")

	out := buf.String()
	if strings.Contains(out, "before reload") {
		t.Error("Debug message should be filtered before reload")
	}
	if !strings.Contains(out, "after reload") {
		t.Errorf("Expected debug line after reload, got %q", out)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected level debug, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Log format must not change on reload, got %q", cfg.Logging.Format)
	}
}
