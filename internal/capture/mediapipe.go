package capture

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/repsense/internal/pose"
)

// DefaultPoseScript is the pose service shipped with the repository.
const DefaultPoseScript = "scripts/pose_server.py"

// DefaultIdleTimeout stops an unused pose service.
const DefaultIdleTimeout = 30 * time.Second

// ErrScriptNotFound is returned when no pose service script can be located.
var ErrScriptNotFound = errors.New("pose service script not found")

// PoseConfig configures the MediaPipe pose subprocess.
type PoseConfig struct {
	// Python is the interpreter. Empty prefers a local virtualenv, then python3.
	Python string
	// Script is the service path. Empty searches the default locations.
	Script string
	// Args are passed after the script.
	Args []string
	// Env is appended to the inherited environment.
	Env []string
	// IdleTimeout stops the process after this long without a frame.
	// Zero selects DefaultIdleTimeout, negative disables it.
	IdleTimeout time.Duration
}

// MediaPipePose implements PoseDetector using a Python MediaPipe subprocess.
// Each request is a 4-byte big-endian length followed by a JPEG; each reply
// is one JSON line holding the landmarks.
type MediaPipePose struct {
	config    PoseConfig
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

// NewMediaPipePose creates a pose detector. The Python process is started
// lazily on first detection.
func NewMediaPipePose(config PoseConfig) (*MediaPipePose, error) {
	if config.Script == "" {
		config.Script = findScript(DefaultPoseScript)
		if config.Script == "" {
			return nil, ErrScriptNotFound
		}
	}
	if config.Python == "" {
		config.Python = findVenvPython()
		if config.Python == "" {
			config.Python = "python3"
		}
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}

	return &MediaPipePose{config: config}, nil
}

// Detect encodes the frame as JPEG and asks the service for landmarks.
func (d *MediaPipePose) Detect(frame *gocv.Mat) (pose.Frame, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return d.detectJPEG(buf.GetBytes())
}

func (d *MediaPipePose) detectJPEG(data []byte) (pose.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		d.shutdown()
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		d.shutdown()
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		d.shutdown()
		return nil, fmt.Errorf("read response: %w", err)
	}

	frame, err := parsePoseResponse(line)
	if err != nil {
		return nil, err
	}

	d.resetIdleTimer()
	return frame, nil
}

// Close shuts down the Python process.
func (d *MediaPipePose) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

type poseResponse struct {
	Landmarks []*pose.Landmark `json:"landmarks"`
	Error     string           `json:"error,omitempty"`
}

// parsePoseResponse decodes one reply line. Null landmarks become invisible
// ones; an empty list means nobody was detected.
func parsePoseResponse(line []byte) (pose.Frame, error) {
	var resp poseResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("pose service: %s", resp.Error)
	}
	if len(resp.Landmarks) == 0 {
		return nil, nil
	}

	frame := make(pose.Frame, len(resp.Landmarks))
	for i, l := range resp.Landmarks {
		if l != nil {
			frame[i] = *l
		}
	}
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("pose service: %w", err)
	}
	return frame, nil
}

func (d *MediaPipePose) ensureStarted() error {
	if d.started {
		return nil
	}

	args := append([]string{d.config.Script}, d.config.Args...)
	d.cmd = exec.Command(d.config.Python, args...)
	d.cmd.Env = append(os.Environ(), d.config.Env...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// MediaPipe logs to stderr
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true

	return nil
}

func (d *MediaPipePose) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *MediaPipePose) resetIdleTimer() {
	if d.config.IdleTimeout < 0 {
		return
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

func findScript(rel string) string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		rel,
		filepath.Join("..", rel),
		filepath.Join(execDir, rel),
		filepath.Join(os.Getenv("HOME"), ".repsense", rel),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".repsense/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}
