// Package tray provides the system tray menu for the local camera mode.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// Tray shows the running rep count and lets the user pick an exercise.
type Tray struct {
	exercises  []string
	onToggle   func(enabled bool)
	onExercise func(name string)
	onSettings func()
	onQuit     func()
	enabled    bool
	current    string
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle   *systray.MenuItem
	menuReps     *systray.MenuItem
	menuFeedback *systray.MenuItem
	menuPicker   map[string]*systray.MenuItem
}

// New creates a Tray offering the given exercises, with current selected.
func New(exercises []string, current string) *Tray {
	return &Tray{
		exercises: exercises,
		current:   current,
		enabled:   true,
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnExercise sets the callback called when an exercise is picked.
func (t *Tray) OnExercise(fn func(name string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExercise = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

func (t *Tray) onReady() {
	systray.SetTitle(repsTitle(0))
	systray.SetTooltip("repsense rep counter")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem("● Counting", "Pause or resume rep counting")
	systray.AddSeparator()

	t.menuReps = systray.AddMenuItem(statusLine(t.current, 0), "Reps this session")
	t.menuReps.Disable()
	t.menuFeedback = systray.AddMenuItem("", "Form feedback")
	t.menuFeedback.Disable()
	systray.AddSeparator()

	picker := systray.AddMenuItem("Exercise", "Choose the exercise to count")
	t.menuPicker = make(map[string]*systray.MenuItem, len(t.exercises))
	for _, name := range t.exercises {
		item := picker.AddSubMenuItemCheckbox(name, "Count "+name, name == t.current)
		t.menuPicker[name] = item
		go t.watchPick(name, item)
	}
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	menuQuit := systray.AddMenuItem("Quit", "Quit repsense")
	t.mu.Unlock()

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) watchPick(name string, item *systray.MenuItem) {
	for range item.ClickedCh {
		t.handlePick(name)
	}
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled

	if enabled {
		t.menuToggle.SetTitle("● Counting")
	} else {
		t.menuToggle.SetTitle("○ Paused")
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handlePick(name string) {
	t.mu.Lock()
	t.current = name
	for n, item := range t.menuPicker {
		if n == name {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
	callback := t.onExercise
	t.mu.Unlock()

	if callback != nil {
		callback(name)
	}
}

func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Quit stops the tray loop, unblocking Run.
func (t *Tray) Quit() {
	systray.Quit()
}

// SetStatus updates the rep count, the current exercise and its feedback cue.
func (t *Tray) SetStatus(exercise string, totalReps int, feedback string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = exercise
	if t.menuReps == nil {
		return
	}
	systray.SetTitle(repsTitle(totalReps))
	t.menuReps.SetTitle(statusLine(exercise, totalReps))
	t.menuFeedback.SetTitle(feedback)
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Current returns the selected exercise.
func (t *Tray) Current() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

func repsTitle(n int) string {
	return fmt.Sprintf("%d reps", n)
}

func statusLine(exercise string, n int) string {
	if exercise == "" {
		exercise = "none"
	}
	return fmt.Sprintf("%s: %d", exercise, n)
}
