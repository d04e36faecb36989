package pose

// StandingFrame returns a preset frame of a person standing upright, arms at the sides,
// facing the camera with every landmark fully visible.
func StandingFrame() Frame {
	f := make(Frame, NumLandmarks)
	for i := range f {
		f[i] = Landmark{X: 0.5, Y: 0.5, Visibility: 0.99}
	}

	// Head
	f[Nose] = Landmark{X: 0.50, Y: 0.12, Visibility: 0.99}
	f[LeftEye] = Landmark{X: 0.52, Y: 0.10, Visibility: 0.99}
	f[RightEye] = Landmark{X: 0.48, Y: 0.10, Visibility: 0.99}
	f[LeftEar] = Landmark{X: 0.54, Y: 0.11, Visibility: 0.95}
	f[RightEar] = Landmark{X: 0.46, Y: 0.11, Visibility: 0.95}

	// Arms hang straight down
	f[LeftShoulder] = Landmark{X: 0.58, Y: 0.25, Visibility: 0.99}
	f[RightShoulder] = Landmark{X: 0.42, Y: 0.25, Visibility: 0.99}
	f[LeftElbow] = Landmark{X: 0.60, Y: 0.38, Visibility: 0.98}
	f[RightElbow] = Landmark{X: 0.40, Y: 0.38, Visibility: 0.98}
	f[LeftWrist] = Landmark{X: 0.61, Y: 0.50, Visibility: 0.97}
	f[RightWrist] = Landmark{X: 0.39, Y: 0.50, Visibility: 0.97}

	// Legs straight
	f[LeftHip] = Landmark{X: 0.55, Y: 0.52, Visibility: 0.99}
	f[RightHip] = Landmark{X: 0.45, Y: 0.52, Visibility: 0.99}
	f[LeftKnee] = Landmark{X: 0.55, Y: 0.70, Visibility: 0.98}
	f[RightKnee] = Landmark{X: 0.45, Y: 0.70, Visibility: 0.98}
	f[LeftAnkle] = Landmark{X: 0.55, Y: 0.88, Visibility: 0.97}
	f[RightAnkle] = Landmark{X: 0.45, Y: 0.88, Visibility: 0.97}

	return f
}

// MetricFrame returns a standing frame with both landmarks of each pair moved to the same Y.
// Tests use it to drive a detector along a single vertical metric.
func MetricFrame(left, right int, y float64) Frame {
	f := StandingFrame()
	f[left].Y = y
	f[right].Y = y
	return f
}

// OccludedFrame returns a standing frame with the given landmarks dropped below any
// confidence gate.
func OccludedFrame(indices ...int) Frame {
	f := StandingFrame()
	for _, i := range indices {
		f[i].Visibility = 0.05
	}
	return f
}
