package app

import (
	"time"
)

// runPipeline reads frames at the camera rate until stop is closed.
func (a *App) runPipeline(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	fps := a.camera.FPS()
	if fps <= 0 {
		fps = 15
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}
			a.step()
		}
	}
}

// step processes one camera frame. It reports whether a result was produced.
//
// Frames with nobody in view are dropped before the session so they do not
// advance hold timers.
func (a *App) step() bool {
	a.mu.RLock()
	s := a.session
	a.mu.RUnlock()
	if s == nil {
		return false
	}

	mat, err := a.camera.ReadFrame()
	if err != nil {
		a.logger.Debug("Error reading frame", "error", err)
		return false
	}

	frame, err := a.detector.Detect(mat)
	mat.Close()
	if err != nil {
		a.logger.Warn("Error detecting pose", "error", err)
		return false
	}
	if frame == nil {
		return false
	}

	res := s.Process(frame, a.config.Now().UnixMilli())

	a.mu.Lock()
	a.last = res
	a.mu.Unlock()

	if res.RepCompleted {
		a.logger.Info("Rep counted", "exercise", res.Exercise, "total", res.TotalReps)
	}
	if a.config.OnResult != nil {
		a.config.OnResult(res)
	}
	return true
}
