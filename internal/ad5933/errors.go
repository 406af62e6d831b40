package ad5933

import (
	"errors"
	"fmt"
)

var (
	// ErrSweepInProgress is returned when a sweep or temperature measurement
	// is requested while another one is running on the same device.
	ErrSweepInProgress = errors.New("sweep already in progress")

	// ErrNotRunning is returned by operations that need an active sweep.
	ErrNotRunning = errors.New("no sweep in progress")

	// ErrTemperatureTimeout is returned when the temperature valid bit is
	// not set within the allowed number of polls.
	ErrTemperatureTimeout = errors.New("temperature measurement timed out")
)

// BusError is a failed register transaction. It is fatal to the sweep that
// issued it.
type BusError struct {
	Op   string // "read" or "write"
	Addr byte
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("%s register %#02x: %s", e.Op, e.Addr, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}
