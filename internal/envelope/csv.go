package envelope

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ayusman/repsense/internal/pose"
)

// ValuesPerFrame is the number of comma-separated floats on every sample line.
const ValuesPerFrame = pose.NumLandmarks * 3

// ErrMalformedSample is returned when a sample line does not hold ValuesPerFrame floats.
var ErrMalformedSample = errors.New("malformed sample line")

// ReadCSV parses a recorded sample: one frame per line, landmark i's x, y and z at
// positions 3i, 3i+1 and 3i+2. Blank lines are skipped. Parsed landmarks are fully visible.
func ReadCSV(r io.Reader) ([]pose.Frame, error) {
	scanner := bufio.NewScanner(r)
	// 99 floats at full precision fit well under 4KB; allow generous headroom.
	scanner.Buffer(make([]byte, 0, 8*1024), 64*1024)

	var frames []pose.Frame
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != ValuesPerFrame {
			return nil, fmt.Errorf("%w: line %d has %d values, expected %d", ErrMalformedSample, lineNo, len(fields), ValuesPerFrame)
		}

		frame := make(pose.Frame, pose.NumLandmarks)
		for i := 0; i < pose.NumLandmarks; i++ {
			var xyz [3]float64
			for j := 0; j < 3; j++ {
				v, err := strconv.ParseFloat(strings.TrimSpace(fields[3*i+j]), 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d value %d: %v", ErrMalformedSample, lineNo, 3*i+j, err)
				}
				xyz[j] = v
			}
			frame[i] = pose.Landmark{X: xyz[0], Y: xyz[1], Z: xyz[2], Visibility: 1}
		}

		if err := frame.Validate(); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedSample, lineNo, err)
		}
		frames = append(frames, frame)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}

	return frames, nil
}

// WriteCSV writes frames in the format read by ReadCSV. Visibility is not recorded.
func WriteCSV(w io.Writer, frames []pose.Frame) error {
	bw := bufio.NewWriter(w)
	values := make([]string, ValuesPerFrame)

	for n, frame := range frames {
		if len(frame) != pose.NumLandmarks {
			return fmt.Errorf("frame %d: %w", n, pose.ErrWrongLandmarkCount)
		}
		for i, l := range frame {
			values[3*i] = strconv.FormatFloat(l.X, 'g', -1, 64)
			values[3*i+1] = strconv.FormatFloat(l.Y, 'g', -1, 64)
			values[3*i+2] = strconv.FormatFloat(l.Z, 'g', -1, 64)
		}
		if _, err := bw.WriteString(strings.Join(values, ",")); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}

	return bw.Flush()
}
