package ad5933

import (
	"context"
	"math"
	"time"
)

// Sample is a single DFT conversion result.
type Sample struct {
	Elapsed   float64 `json:"elapsed"`   // Seconds since the start of the sweep
	Frequency float64 `json:"frequency"` // Excitation frequency in Hz
	Real      int16   `json:"real"`      // Real part of the DFT
	Imag      int16   `json:"imag"`      // Imaginary part of the DFT
}

// Magnitude returns the magnitude of the DFT result.
func (s Sample) Magnitude() float64 {
	return math.Hypot(float64(s.Real), float64(s.Imag))
}

// Phase returns the phase of the DFT result in radians.
func (s Sample) Phase() float64 {
	return math.Atan2(float64(s.Imag), float64(s.Real))
}

// SweepResult is the outcome of one sweep run.
type SweepResult struct {
	Started   time.Time `json:"started"`   // When the run began
	Config    Config    `json:"config"`    // Configuration the run was started with
	Samples   []Sample  `json:"samples"`   // Samples in acquisition order
	Cancelled bool      `json:"cancelled"` // The run was stopped before the sweep completed
}

// Clock abstracts time so the polling loop can be driven without delays.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is done, in which case it returns ctx.Err().
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
