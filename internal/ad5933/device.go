package ad5933

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

//go:generate mockgen -destination=mocks/transport.go -package=mocks github.com/roman-kulish/impedance-sweeper/internal/ad5933 RegisterTransport

// RegisterTransport gives access to the chip registers. Implementations
// issue one bus transaction per register address.
type RegisterTransport interface {
	// ReadRegister reads n consecutive registers starting at addr and
	// composes them big-endian.
	ReadRegister(addr byte, n int) (uint32, error)

	// WriteRegister writes values[i] to register addr+i.
	WriteRegister(addr byte, values []byte) error
}

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *Device) {
	return func(d *Device) {
		d.logger = logger.With(slog.String("device", "ad5933"))
	}
}

// Device is an AD5933 reached through a RegisterTransport. Every setter
// writes the chip before it updates the cached configuration, and all
// register traffic is serialised, so setters may be called while a sweep
// is running.
type Device struct {
	mu     sync.Mutex
	bus    RegisterTransport
	config Config
	logger *slog.Logger
}

// NewDevice creates a new Device with a discard logger. The chip is not
// touched until the first setter or Configure call.
func NewDevice(bus RegisterTransport, options ...func(d *Device)) *Device {
	d := Device{
		bus:    bus,
		config: DefaultConfig(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

// Config returns the configuration last written to the chip.
func (d *Device) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// Configure validates c and writes every sweep register. Substituted values
// are returned and logged as warnings.
func (d *Device) Configure(c Config) ([]Adjustment, error) {
	c, adjustments := ValidateConfig(c)
	for i := range adjustments {
		d.warn(&adjustments[i])
	}

	r, _ := ParseOutputRange(c.OutputRange)

	d.mu.Lock()
	defer d.mu.Unlock()

	steps := []struct {
		msg string
		fn  func() error
	}{
		{msg: "writing output range and gain", fn: func() error {
			return d.modifyControl(controlRangeMask|controlGainBit, rangeBits(r)|gainBits(c.PGAGain))
		}},
		{msg: "writing clock source", fn: func() error {
			return d.modifyControl(controlClockBit, flagBits(controlClockBit, c.ExternalClock))
		}},
		{msg: "writing start frequency", fn: func() error {
			return d.write(RegStartFrequency, EncodeFrequency(c.StartFrequency, c.MasterClock))
		}},
		{msg: "writing frequency step", fn: func() error {
			return d.write(RegFrequencyStep, EncodeFrequency(c.FrequencyStep, c.MasterClock))
		}},
		{msg: "writing number of steps", fn: func() error {
			return d.write(RegNumSteps, bigEndian(uint32(c.NumSteps), numStepsWidth))
		}},
		{msg: "writing settling cycles", fn: func() error {
			return d.write(RegSettleCycles, EncodeSettleCycles(c.SettleCycles).Bytes())
		}},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return adjustments, fmt.Errorf("%s: %w", s.msg, err)
		}
	}

	d.config = c
	return adjustments, nil
}

// SingleFrequency programs a zero-step sweep at freq.
func (d *Device) SingleFrequency(freq float64) ([]Adjustment, error) {
	var adjustments []Adjustment

	adj, err := d.SetStartFrequency(freq)
	if adj != nil {
		adjustments = append(adjustments, *adj)
	}
	if err != nil {
		return adjustments, err
	}

	_, err = d.SetNumSteps(0)
	return adjustments, err
}

func (d *Device) SetOutputRange(name string) (*Adjustment, error) {
	r, adj := ValidateOutputRange(name)
	d.warn(adj)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.modifyControl(controlRangeMask, rangeBits(r)); err != nil {
		return adj, fmt.Errorf("writing output range: %w", err)
	}
	d.config.OutputRange = r.String()
	return adj, nil
}

func (d *Device) SetPGAGain(gain int) (*Adjustment, error) {
	gain, adj := ValidatePGAGain(gain)
	d.warn(adj)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.modifyControl(controlGainBit, gainBits(gain)); err != nil {
		return adj, fmt.Errorf("writing PGA gain: %w", err)
	}
	d.config.PGAGain = gain
	return adj, nil
}

func (d *Device) SetExternalClock(external bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.modifyControl(controlClockBit, flagBits(controlClockBit, external)); err != nil {
		return fmt.Errorf("writing clock source: %w", err)
	}
	d.config.ExternalClock = external
	return nil
}

// SetReset asserts or releases the reset bit. Reset interrupts a sweep but
// keeps the programmed registers.
func (d *Device) SetReset(asserted bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.modifyControl(controlResetBit, flagBits(controlResetBit, asserted)); err != nil {
		return fmt.Errorf("writing reset: %w", err)
	}
	return nil
}

// SetMode writes the operation code. Other control fields are preserved.
func (d *Device) SetMode(m Mode) (*Adjustment, error) {
	m, adj := ValidateMode(m)
	d.warn(adj)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.modifyControl(controlModeMask, uint16(m)<<controlModeShift); err != nil {
		return adj, fmt.Errorf("writing mode %s: %w", m, err)
	}
	return adj, nil
}

// PowerDown puts the chip into its low power state.
func (d *Device) PowerDown() error {
	_, err := d.SetMode(ModePowerDown)
	return err
}

func (d *Device) SetStartFrequency(freq float64) (*Adjustment, error) {
	freq, adj := ValidateStartFrequency(freq)
	d.warn(adj)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.write(RegStartFrequency, EncodeFrequency(freq, d.config.MasterClock)); err != nil {
		return adj, fmt.Errorf("writing start frequency: %w", err)
	}
	d.config.StartFrequency = freq
	return adj, nil
}

func (d *Device) SetFrequencyStep(step float64) (*Adjustment, error) {
	step, adj := ValidateFrequencyStep(step)
	d.warn(adj)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.write(RegFrequencyStep, EncodeFrequency(step, d.config.MasterClock)); err != nil {
		return adj, fmt.Errorf("writing frequency step: %w", err)
	}
	d.config.FrequencyStep = step
	return adj, nil
}

func (d *Device) SetNumSteps(n int) (*Adjustment, error) {
	n, adj := ValidateNumSteps(n)
	d.warn(adj)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.write(RegNumSteps, bigEndian(uint32(n), numStepsWidth)); err != nil {
		return adj, fmt.Errorf("writing number of steps: %w", err)
	}
	d.config.NumSteps = n
	return adj, nil
}

func (d *Device) SetSettleCycles(n int) (*Adjustment, error) {
	n, adj := ValidateSettleCycles(n)
	d.warn(adj)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.write(RegSettleCycles, EncodeSettleCycles(n).Bytes()); err != nil {
		return adj, fmt.Errorf("writing settling cycles: %w", err)
	}
	d.config.SettleCycles = n
	return adj, nil
}

// SetMasterClock changes the clock used to encode frequencies and rewrites
// the start frequency and step registers accordingly.
func (d *Device) SetMasterClock(freq float64) (*Adjustment, error) {
	freq, adj := ValidateMasterClock(freq)
	d.warn(adj)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.write(RegStartFrequency, EncodeFrequency(d.config.StartFrequency, freq)); err != nil {
		return adj, fmt.Errorf("writing start frequency: %w", err)
	}
	if err := d.write(RegFrequencyStep, EncodeFrequency(d.config.FrequencyStep, freq)); err != nil {
		return adj, fmt.Errorf("writing frequency step: %w", err)
	}
	d.config.MasterClock = freq
	return adj, nil
}

// Mode reads the operation code currently held by the control register.
func (d *Device) Mode() (Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, err := d.read(RegControl, 1)
	if err != nil {
		return 0, err
	}
	return Mode(v >> 4), nil
}

// Status reads the status register.
func (d *Device) Status() (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, err := d.read(RegStatus, statusWidth)
	if err != nil {
		return 0, err
	}
	return Status(v), nil
}

// ReadData reads the real and imaginary parts of the last DFT conversion.
func (d *Device) ReadData() (real, imag int16, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	re, err := d.read(RegReal, dataWidth)
	if err != nil {
		return 0, 0, err
	}
	im, err := d.read(RegImag, dataWidth)
	if err != nil {
		return 0, 0, err
	}
	return TwosComplement16(uint16(re)), TwosComplement16(uint16(im)), nil
}

// ReadTemperature reads the temperature register in degrees Celsius. The
// value is only meaningful once the status reports it valid.
func (d *Device) ReadTemperature() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, err := d.read(RegTemperature, temperatureWidth)
	if err != nil {
		return 0, err
	}
	return Celsius(uint16(v)), nil
}

// modifyControl replaces the bits selected by mask with bits, keeping the
// rest of the register. Only the bytes covered by mask are transferred.
// Callers hold d.mu.
func (d *Device) modifyControl(mask, bits uint16) error {
	addr, width, shift := RegControl, controlWidth, 0
	switch {
	case mask&0x00FF == 0:
		width, shift = 1, 8
	case mask&0xFF00 == 0:
		addr, width = RegControl+1, 1
	}

	current, err := d.read(addr, width)
	if err != nil {
		return err
	}

	m := uint32(mask >> shift)
	v := (current &^ m) | (uint32(bits>>shift) & m)
	return d.write(addr, bigEndian(v, width))
}

func (d *Device) read(addr byte, n int) (uint32, error) {
	v, err := d.bus.ReadRegister(addr, n)
	if err != nil {
		return 0, &BusError{Op: "read", Addr: addr, Err: err}
	}
	return v, nil
}

func (d *Device) write(addr byte, values []byte) error {
	if err := d.bus.WriteRegister(addr, values); err != nil {
		return &BusError{Op: "write", Addr: addr, Err: err}
	}
	return nil
}

func (d *Device) warn(a *Adjustment) {
	if a == nil {
		return
	}
	d.logger.Warn(fmt.Sprintf("invalid %s setting", a.Field),
		slog.Any("requested", a.Requested),
		slog.Any("applied", a.Applied),
		slog.String("reason", a.Reason))
}

func rangeBits(r OutputRange) uint16 {
	return uint16(r) << controlRangeShift
}

func gainBits(gain int) uint16 {
	if gain == 1 {
		return controlGainBit
	}
	return 0
}

func flagBits(bit uint16, set bool) uint16 {
	if set {
		return bit
	}
	return 0
}
