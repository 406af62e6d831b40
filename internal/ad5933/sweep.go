package ad5933

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// DefaultRepeat is the number of conversions taken at every frequency.
	DefaultRepeat = 5

	// DefaultSettleDelay is the wait after Initialize for the DDS output to settle.
	DefaultSettleDelay = time.Second

	// DefaultPollInterval is the wait between two status register polls.
	DefaultPollInterval = 50 * time.Millisecond

	temperaturePolls = 20
)

var errCancelled = errors.New("sweep cancelled")

// WithRepeat sets the number of conversions per frequency point
func WithRepeat(n int) func(s *Sweeper) {
	return func(s *Sweeper) {
		if n > 0 {
			s.repeat = n
		}
	}
}

// WithDelay sets a fixed delay before every data ready poll cycle
func WithDelay(d time.Duration) func(s *Sweeper) {
	return func(s *Sweeper) {
		s.delay = d
	}
}

// WithSettleDelay sets the delay between Initialize and Start
func WithSettleDelay(d time.Duration) func(s *Sweeper) {
	return func(s *Sweeper) {
		s.settleDelay = d
	}
}

// WithPollInterval sets the status register poll interval
func WithPollInterval(d time.Duration) func(s *Sweeper) {
	return func(s *Sweeper) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithFrequencyDivisor reports frequencies divided by k. It is used when the
// master clock is divided externally and the programmed frequency is k times
// the real excitation frequency.
func WithFrequencyDivisor(k float64) func(s *Sweeper) {
	return func(s *Sweeper) {
		if k > 0 {
			s.divisor = k
		}
	}
}

// WithAutoRestart makes Begin start a new sweep each time one completes
func WithAutoRestart(enabled bool) func(s *Sweeper) {
	return func(s *Sweeper) {
		s.autoRestart = enabled
	}
}

// WithClock replaces the wall clock
func WithClock(c Clock) func(s *Sweeper) {
	return func(s *Sweeper) {
		s.clock = c
	}
}

// WithSampleHandler registers a callback invoked from the sweep goroutine
// for every new sample. It must not block.
func WithSampleHandler(fn func(Sample)) func(s *Sweeper) {
	return func(s *Sweeper) {
		s.onSample = fn
	}
}

type sweepRun struct {
	config    Config
	started   time.Time
	frequency float64 // bookkeeping only, the chip advances on its own
	n         int     // conversions taken at the current frequency
}

// Sweeper runs frequency sweeps on a Device. At most one sweep is in flight
// at a time; it can be cancelled from any goroutine.
type Sweeper struct {
	device *Device
	clock  Clock
	logger *slog.Logger

	repeat       int
	delay        time.Duration
	settleDelay  time.Duration
	pollInterval time.Duration
	divisor      float64
	autoRestart  bool
	onSample     func(Sample)

	inFlight atomic.Bool // a sweep or measurement owns the device
	active   atomic.Bool // cleared to request cancellation
	wg       sync.WaitGroup

	mu      sync.Mutex
	cancel  context.CancelFunc
	samples []Sample // samples of the current or last run
}

// NewSweeper creates a Sweeper for device. It logs through the device logger.
func NewSweeper(device *Device, options ...func(s *Sweeper)) *Sweeper {
	s := Sweeper{
		device:       device,
		clock:        SystemClock{},
		logger:       device.logger.With(slog.String("component", "sweeper")),
		repeat:       DefaultRepeat,
		settleDelay:  DefaultSettleDelay,
		pollInterval: DefaultPollInterval,
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Device returns the device the sweeper drives.
func (s *Sweeper) Device() *Device {
	return s.device
}

// Repeat returns the number of conversions per frequency.
func (s *Sweeper) Repeat() int {
	return s.repeat
}

// Run performs one sweep with the current device configuration and blocks
// until it completes or is cancelled. A cancelled sweep is not an error.
func (s *Sweeper) Run(ctx context.Context) (*SweepResult, error) {
	ctx, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.release()

	s.active.Store(true)
	defer s.active.Store(false)

	return s.runOnce(ctx, s.clock.Now(), true)
}

// Begin starts sweeping in a background goroutine. Every finished run is sent
// to results, when it is not nil; a run cancelled after ctx is done may be
// dropped. With auto-restart a new run starts after each completed one.
// The returned channel receives the error that ended sweeping, if any, and is
// closed once the goroutine exits.
func (s *Sweeper) Begin(ctx context.Context, results chan<- SweepResult) (<-chan error, error) {
	ctx, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}

	stopped := make(chan error, 1)

	// the run stays active across restarts
	s.active.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(stopped)
		defer s.release()
		defer s.active.Store(false)

		for run := 1; ; run++ {
			result, err := s.runOnce(ctx, s.clock.Now(), true)
			if err != nil {
				s.logger.Error(err.Error())
				stopped <- err
				return
			}

			if results != nil {
				select {
				case results <- *result:
				case <-ctx.Done():
				}
			}

			if !s.autoRestart || result.Cancelled || ctx.Err() != nil {
				return
			}

			s.logger.Debug("restarting sweep", slog.Int("run", run+1))
		}
	}()

	return stopped, nil
}

// RunPlan measures each frequency of plan as a single-frequency sweep and
// joins the samples into one result. Elapsed times are relative to the start
// of the plan, and Samples reports every point measured so far. The device
// configuration in effect before the plan is restored afterwards.
func (s *Sweeper) RunPlan(ctx context.Context, plan []float64) (result *SweepResult, err error) {
	if len(plan) == 0 {
		return nil, errors.New("empty frequency plan")
	}

	ctx, err = s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.release()

	s.active.Store(true)
	defer s.active.Store(false)

	prev := s.device.Config()
	defer func() {
		if _, rerr := s.device.Configure(prev); rerr != nil {
			err = errors.Join(err, fmt.Errorf("restoring configuration: %w", rerr))
		}
	}()

	result = &SweepResult{Started: s.clock.Now()}
	for i, freq := range plan {
		if !s.isActive(ctx) {
			result.Cancelled = true
			break
		}

		if _, err = s.device.SingleFrequency(freq); err != nil {
			return result, fmt.Errorf("programming frequency %d of plan: %w", i, err)
		}

		var r *SweepResult
		r, err = s.runOnce(ctx, result.Started, i == 0)
		if r != nil {
			if i == 0 {
				result.Config = r.Config
			}
			result.Samples = r.Samples
		}
		if err != nil {
			return result, err
		}
		if r.Cancelled {
			result.Cancelled = true
			break
		}
	}

	return result, nil
}

// MeasureTemperature runs a temperature conversion and returns degrees
// Celsius. It fails with ErrSweepInProgress while a sweep is running.
func (s *Sweeper) MeasureTemperature(ctx context.Context) (float64, error) {
	ctx, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.release()

	if _, err = s.device.SetMode(ModeTemperature); err != nil {
		return 0, err
	}

	for i := 0; i < temperaturePolls; i++ {
		status, err := s.device.Status()
		if err != nil {
			return 0, err
		}
		if status.TemperatureValid() {
			return s.device.ReadTemperature()
		}
		if err = s.clock.Sleep(ctx, s.pollInterval); err != nil {
			return 0, err
		}
	}

	return 0, ErrTemperatureTimeout
}

// Cancel clears the run-active flag without waiting. The sweep loop exits at
// its next check, at most one poll interval later.
func (s *Sweeper) Cancel() {
	s.active.Store(false)

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Stop cancels the sweep and waits for a background sweep to exit.
func (s *Sweeper) Stop() {
	s.Cancel()
	s.wg.Wait()
}

// IsRunning returns true while a sweep run is active
func (s *Sweeper) IsRunning() bool {
	return s.active.Load()
}

// Latest returns the most recent sample of the current or last run.
func (s *Sweeper) Latest() (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// Samples returns a copy of the samples of the current or last run.
func (s *Sweeper) Samples() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

func (s *Sweeper) acquire(ctx context.Context) (context.Context, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}

	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	return ctx, nil
}

func (s *Sweeper) release() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.inFlight.Store(false)
}

func (s *Sweeper) isActive(ctx context.Context) bool {
	return s.active.Load() && ctx.Err() == nil
}

// runOnce executes a sweep with a fresh run state. Elapsed times count from
// started; with reset false the samples are appended to the previous ones.
// The caller owns the active flag.
func (s *Sweeper) runOnce(ctx context.Context, started time.Time, reset bool) (*SweepResult, error) {
	run := &sweepRun{
		config:  s.device.Config(),
		started: started,
		n:       1,
	}
	run.frequency = run.config.StartFrequency

	if reset {
		s.mu.Lock()
		s.samples = make([]Sample, 0, (run.config.NumSteps+1)*s.repeat)
		s.mu.Unlock()
	}

	s.logger.Info("starting sweep",
		slog.String("start", humanize.SIWithDigits(run.config.StartFrequency, 2, "Hz")),
		slog.String("step", humanize.SIWithDigits(run.config.FrequencyStep, 2, "Hz")),
		slog.Int("steps", run.config.NumSteps),
		slog.Int("repeat", s.repeat))

	err := s.execute(ctx, run)

	result := &SweepResult{
		Started: run.started,
		Config:  run.config,
		Samples: s.Samples(),
	}

	switch {
	case errors.Is(err, errCancelled):
		result.Cancelled = true
		s.logger.Info("sweep cancelled", slog.String("samples", humanize.Comma(int64(len(result.Samples)))))

	case err != nil:
		return result, fmt.Errorf("sweep failed: %w", err)

	default:
		s.logger.Info("sweep completed", slog.String("samples", humanize.Comma(int64(len(result.Samples)))))
	}

	return result, nil
}

// execute drives Standby, Initialize, Start, then Repeat and Increment until
// the chip reports the sweep complete or the run is cancelled.
func (s *Sweeper) execute(ctx context.Context, run *sweepRun) error {
	for _, m := range []Mode{ModeStandby, ModeInitialize} {
		if _, err := s.device.SetMode(m); err != nil {
			return err
		}
	}
	if err := s.clock.Sleep(ctx, s.settleDelay); err != nil {
		return errCancelled
	}
	if _, err := s.device.SetMode(ModeStart); err != nil {
		return err
	}

	for s.isActive(ctx) {
		if s.delay > 0 {
			if err := s.clock.Sleep(ctx, s.delay); err != nil {
				return errCancelled
			}
		}

		ready, err := s.waitDataReady(ctx)
		if err != nil {
			return err
		}
		if !ready {
			return errCancelled
		}

		re, im, err := s.device.ReadData()
		if err != nil {
			return err
		}
		s.record(run, re, im)

		if run.n < s.repeat {
			if _, err = s.device.SetMode(ModeRepeat); err != nil {
				return err
			}
			run.n++
			continue
		}

		// a zero-step sweep never reports completion on its own
		if run.config.NumSteps == 0 || !s.isActive(ctx) {
			break
		}

		status, err := s.device.Status()
		if err != nil {
			return err
		}
		if status.SweepComplete() {
			break
		}

		if _, err = s.device.SetMode(ModeIncrement); err != nil {
			return err
		}
		run.n = 1
		run.frequency += run.config.FrequencyStep
	}

	if !s.isActive(ctx) {
		return errCancelled
	}
	return nil
}

// waitDataReady polls the status register until a conversion is available.
// It returns false when the run is cancelled first.
func (s *Sweeper) waitDataReady(ctx context.Context) (bool, error) {
	for {
		if !s.isActive(ctx) {
			return false, nil
		}

		status, err := s.device.Status()
		if err != nil {
			return false, err
		}
		if status.DataReady() {
			return true, nil
		}

		if err = s.clock.Sleep(ctx, s.pollInterval); err != nil {
			return false, nil
		}
	}
}

func (s *Sweeper) record(run *sweepRun, re, im int16) {
	freq := run.frequency
	if s.divisor > 0 {
		freq /= s.divisor
	}

	sample := Sample{
		Elapsed:   s.clock.Now().Sub(run.started).Seconds(),
		Frequency: freq,
		Real:      re,
		Imag:      im,
	}

	s.mu.Lock()
	s.samples = append(s.samples, sample)
	s.mu.Unlock()

	s.logger.Debug("sample",
		slog.String("frequency", humanize.SIWithDigits(freq, 2, "Hz")),
		slog.Int("real", int(re)),
		slog.Int("imag", int(im)))

	if s.onSample != nil {
		s.onSample(sample)
	}
}
