package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ayusman/repsense/internal/app"
	"github.com/ayusman/repsense/internal/capture"
	"github.com/ayusman/repsense/internal/config"
	"github.com/ayusman/repsense/internal/engine"
	"github.com/ayusman/repsense/internal/envelope"
	"github.com/ayusman/repsense/internal/events"
	"github.com/ayusman/repsense/internal/exercise"
	"github.com/ayusman/repsense/internal/metrics"
	"github.com/ayusman/repsense/internal/server"
	"github.com/ayusman/repsense/internal/session"
	"github.com/ayusman/repsense/internal/store"
	"github.com/ayusman/repsense/internal/tray"
)

func main() {
	configPath := flag.String("config", findConfigFile(), "path to the YAML configuration")
	flag.Parse()

	fmt.Println("repsense - Exercise Rep Counter")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := config.SetupLogging(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	// Initialize the store
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	st, err := store.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	publisher, closeBus := setupEvents(cfg.Events, logger)
	defer closeBus()

	registry := metrics.SetupPrometheus()
	m := metrics.NewManager("repsense", "engine", registry)

	var source envelope.SampleSource = st.Samples()
	if cfg.Samples.Dir != "" {
		source = envelope.Chain{st.Samples(), envelope.DirSource{Dir: cfg.Samples.Dir}}
	}

	catalogs := newCatalogHolder(exercise.Default().ApplyOverrides(cfg.ExerciseOverrides()))
	newSession := func() *session.Session {
		detection := cfg.DetectionSettings()
		return session.New(session.Options{
			Engine: engine.Options{
				Catalog:            catalogs.Get(),
				Source:             source,
				SmoothingWindow:    detection.SmoothingWindow,
				MinConfidence:      detection.MinConfidence,
				CalibrationTimeout: detection.CalibrationTimeout(),
			},
			Recorder:  st.Sessions(),
			Publisher: publisher,
			Metrics:   m,
			Logger:    logger,
		})
	}

	var live *server.LiveHandler
	var camApp *app.App
	if cfg.Camera.Enabled {
		live = server.NewLiveHandler(cfg.Server.AllowedOrigins, logger)
		camApp = app.New(app.Config{
			CameraConfig: capture.CameraConfig{Device: cfg.Camera.Device, FPS: cfg.Camera.FPS},
			Pose:         capture.PoseConfig{Script: findPoseScript(cfg.Camera.PoseScript)},
			NewSession:   newSession,
			Exercise:     cfg.Camera.Exercise,
			OnResult:     live.Broadcast,
			Logger:       logger,
		})
	}

	invalidate := func(name string) {
		if camApp != nil {
			camApp.Invalidate(name)
		}
	}

	srv := server.New(server.Config{
		StaticDir:        findWebDir(),
		Store:            st,
		Catalog:          catalogs.Get,
		NewSession:       newSession,
		OnSamplesChanged: invalidate,
		Live:             live,
		Gatherer:         registry,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		Logger:           logger,
	})

	// Hot reload applies detection tuning to new sessions and the camera session
	if cfg.GetPath() != "" {
		cfg.OnChange(func(c *config.Config) {
			catalog := exercise.Default().ApplyOverrides(c.ExerciseOverrides())
			catalogs.Set(catalog)
			if camApp != nil {
				camApp.SetCatalog(catalog)
			}
		})
		if err := cfg.Watch(); err != nil {
			logger.Warn("Config hot reload disabled", "error", err)
		}
		defer cfg.Close()
	}

	go func() {
		if err := srv.ListenAndServe(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if camApp != nil {
		runCameraMode(ctx, camApp, catalogs.Get().Names(), cfg.Server.Addr, logger)
	} else {
		<-ctx.Done()
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
}

// runCameraMode counts reps from the local camera with a tray menu until
// the user quits or ctx is cancelled. The tray must own the main goroutine.
func runCameraMode(ctx context.Context, a *app.App, exercises []string, addr string, logger *slog.Logger) {
	if err := a.Start(ctx); err != nil {
		log.Fatalf("Failed to start camera: %v", err)
	}

	t := tray.New(exercises, a.Exercise())
	t.OnToggle(a.SetEnabled)
	t.OnExercise(func(name string) {
		if err := a.SetExercise(ctx, name); err != nil {
			logger.Error("Failed to switch exercise", "exercise", name, "error", err)
		}
	})
	t.OnSettings(func() {
		logger.Info("Settings are served by the web app", "url", "http://localhost"+addr)
	})

	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			sum, err := a.Stop(context.Background())
			if err != nil {
				logger.Error("Failed to end camera session", "error", err)
				return
			}
			logger.Info("Workout finished", "total_reps", sum.TotalReps)
		})
	}
	t.OnQuit(shutdown)

	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				shutdown()
				t.Quit()
				return
			case <-ticker.C:
				last := a.Last()
				t.SetStatus(a.Exercise(), a.TotalReps(), last.Feedback)
			}
		}
	}()

	t.Run()
	shutdown()
}

func setupEvents(cfg config.EventsConfig, logger *slog.Logger) (events.Publisher, func()) {
	if !cfg.Enabled {
		return events.Nop{}, func() {}
	}

	var (
		bus *events.Bus
		err error
	)
	if cfg.Embedded {
		bus, err = events.NewEmbedded(events.Config{Port: cfg.Port}, logger)
	} else {
		bus, err = events.Connect(cfg.URL, logger)
	}
	if err != nil {
		logger.Warn("Rep events disabled", "error", err)
		return events.Nop{}, func() {}
	}
	return bus, bus.Close
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("No config at %s, using defaults", path)
			return config.Default(), nil
		}
		return nil, err
	}
	return config.Load(path)
}

// catalogHolder shares the current catalog between request handlers and
// the reload callback.
type catalogHolder struct {
	mu      sync.RWMutex
	catalog *exercise.Catalog
}

func newCatalogHolder(c *exercise.Catalog) *catalogHolder {
	return &catalogHolder{catalog: c}
}

func (h *catalogHolder) Get() *exercise.Catalog {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.catalog
}

func (h *catalogHolder) Set(c *exercise.Catalog) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.catalog = c
}

// findConfigFile looks for a config file in common locations.
func findConfigFile() string {
	if p := os.Getenv("REPSENSE_CONFIG"); p != "" {
		return p
	}

	candidates := []string{"repsense.yaml", "config/repsense.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".repsense", "repsense.yaml"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "repsense.yaml"
}

// findPoseScript resolves the configured script, keeping it empty when it
// does not exist so the capture package can search its default locations.
func findPoseScript(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.repsense/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".repsense", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
