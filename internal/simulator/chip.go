package simulator

import (
	"fmt"
	"math"
	"sync"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

// Load is the impedance connected to the simulated chip: a resistor in
// parallel with a capacitor. Gain scales admittance into DFT counts.
type Load struct {
	Resistance  float64 // Ohm
	Capacitance float64 // Farad
	Gain        float64 // DFT counts per Siemens
}

// DefaultLoad keeps the DFT output within int16 over the whole frequency range.
var DefaultLoad = Load{
	Resistance:  10e3,
	Capacitance: 1e-9,
	Gain:        1e7,
}

// WithLoad sets the simulated load
func WithLoad(l Load) func(c *Chip) {
	return func(c *Chip) {
		c.load = l
	}
}

// WithLatency sets the number of status polls that report no data after a
// conversion is started. A negative value means data never becomes ready.
func WithLatency(polls int) func(c *Chip) {
	return func(c *Chip) {
		c.latency = polls
	}
}

// WithMasterClock sets the clock used to decode frequency registers
func WithMasterClock(hz float64) func(c *Chip) {
	return func(c *Chip) {
		c.masterClock = hz
	}
}

// WithTemperature sets the die temperature reported by temperature conversions
func WithTemperature(celsius float64) func(c *Chip) {
	return func(c *Chip) {
		c.temperature = celsius
	}
}

// Chip is an in-memory AD5933 that implements ad5933.RegisterTransport.
// Mode writes to the control register trigger the same state changes as on
// the real part.
type Chip struct {
	mu   sync.Mutex
	regs [256]byte

	load        Load
	latency     int
	masterClock float64
	temperature float64

	index   int // increments since Initialize
	pending int // polls still reporting no data, -1 when idle
	reads   int
	writes  int
}

// NewChip creates a simulated chip with every register cleared.
func NewChip(options ...func(c *Chip)) *Chip {
	c := Chip{
		load:        DefaultLoad,
		masterClock: ad5933.DefaultMasterClock,
		temperature: 25,
		pending:     -1,
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

func (c *Chip) ReadRegister(addr byte, n int) (uint32, error) {
	if n < 1 || n > 4 || int(addr)+n > len(c.regs) {
		return 0, fmt.Errorf("simulator: invalid read of %d bytes at %#02x", n, addr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var v uint32
	for i := 0; i < n; i++ {
		a := addr + byte(i)
		if a == ad5933.RegStatus {
			c.pollStatus()
		}
		v = v<<8 | uint32(c.regs[a])
		c.reads++
	}
	return v, nil
}

func (c *Chip) WriteRegister(addr byte, values []byte) error {
	if int(addr)+len(values) > len(c.regs) {
		return fmt.Errorf("simulator: invalid write of %d bytes at %#02x", len(values), addr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, b := range values {
		a := addr + byte(i)
		c.regs[a] = b
		c.writes++
		if a == ad5933.RegControl {
			c.execute(ad5933.Mode(b >> 4))
		}
	}
	return nil
}

// Register returns the raw content of a register.
func (c *Chip) Register(addr byte) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[addr]
}

// Control returns the 16-bit control register image.
func (c *Chip) Control() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint16(c.regs[ad5933.RegControl])<<8 | uint16(c.regs[ad5933.RegControl+1])
}

// Writes returns the number of register byte writes so far.
func (c *Chip) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// Frequency returns the excitation frequency of the current sweep point.
func (c *Chip) Frequency() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frequency()
}

func (c *Chip) execute(m ad5933.Mode) {
	switch m {
	case ad5933.ModeStandby, ad5933.ModePowerDown:
		c.setStatus(0)
		c.pending = -1

	case ad5933.ModeInitialize:
		c.index = 0
		c.setStatus(0)
		c.pending = -1

	case ad5933.ModeStart, ad5933.ModeRepeat:
		c.convert()

	case ad5933.ModeIncrement:
		if c.index < int(c.reg16(ad5933.RegNumSteps)&0x1FF) {
			c.index++
		}
		c.convert()

	case ad5933.ModeTemperature:
		raw := uint16(int16(math.Round(c.temperature*32))) & 0x3FFF
		c.regs[ad5933.RegTemperature] = byte(raw >> 8)
		c.regs[ad5933.RegTemperature+1] = byte(raw)
		c.setStatus(c.status() | ad5933.StatusTemperatureValid)
	}
}

// convert starts a DFT conversion at the current frequency point.
func (c *Chip) convert() {
	c.setStatus(c.status() &^ (ad5933.StatusDataReady | ad5933.StatusSweepComplete))

	re, im := c.dft(c.frequency())
	c.regs[ad5933.RegReal] = byte(uint16(re) >> 8)
	c.regs[ad5933.RegReal+1] = byte(re)
	c.regs[ad5933.RegImag] = byte(uint16(im) >> 8)
	c.regs[ad5933.RegImag+1] = byte(im)

	c.pending = c.latency
	if c.latency == 0 {
		c.complete()
	}
}

func (c *Chip) pollStatus() {
	switch {
	case c.pending > 0:
		c.pending--
	case c.pending == 0:
		c.complete()
	}
}

func (c *Chip) complete() {
	st := c.status() | ad5933.StatusDataReady
	if c.index >= int(c.reg16(ad5933.RegNumSteps)&0x1FF) {
		st |= ad5933.StatusSweepComplete
	}
	c.setStatus(st)
	c.pending = -1
}

func (c *Chip) dft(freq float64) (int16, int16) {
	re := c.load.Gain / c.load.Resistance
	im := c.load.Gain * 2 * math.Pi * freq * c.load.Capacitance
	return saturate(re), saturate(im)
}

func (c *Chip) frequency() float64 {
	start := float64(c.reg24(ad5933.RegStartFrequency))
	step := float64(c.reg24(ad5933.RegFrequencyStep))
	code := start + float64(c.index)*step
	return code * c.masterClock / 4 / (1 << 27)
}

func (c *Chip) status() ad5933.Status {
	return ad5933.Status(c.regs[ad5933.RegStatus])
}

func (c *Chip) setStatus(s ad5933.Status) {
	c.regs[ad5933.RegStatus] = byte(s)
}

func (c *Chip) reg16(addr byte) uint16 {
	return uint16(c.regs[addr])<<8 | uint16(c.regs[addr+1])
}

func (c *Chip) reg24(addr byte) uint32 {
	return uint32(c.regs[addr])<<16 | uint32(c.regs[addr+1])<<8 | uint32(c.regs[addr+2])
}

func saturate(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(math.Round(v))
}
