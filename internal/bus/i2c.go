package bus

import (
	"fmt"
	"sync"

	"tinygo.org/x/drivers"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

// Transport reaches the AD5933 register file over an I2C bus. Every
// register byte is one bus transaction.
type Transport struct {
	mu   sync.Mutex
	bus  drivers.I2C
	addr uint16
}

var _ ad5933.RegisterTransport = (*Transport)(nil)

// WithAddress overrides the default 7-bit device address
func WithAddress(addr uint16) func(t *Transport) {
	return func(t *Transport) {
		t.addr = addr
	}
}

// NewTransport creates a Transport on bus.
func NewTransport(bus drivers.I2C, options ...func(t *Transport)) *Transport {
	t := Transport{
		bus:  bus,
		addr: ad5933.DefaultAddress,
	}

	for _, option := range options {
		option(&t)
	}

	return &t
}

// Address returns the device address.
func (t *Transport) Address() uint16 {
	return t.addr
}

func (t *Transport) ReadRegister(addr byte, n int) (uint32, error) {
	if n < 1 || n > 4 {
		return 0, fmt.Errorf("invalid register width %d", n)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		v   uint32
		buf [1]byte
	)
	for i := 0; i < n; i++ {
		if err := t.bus.Tx(t.addr, []byte{addr + byte(i)}, buf[:]); err != nil {
			return 0, fmt.Errorf("reading register %#02x: %w", addr+byte(i), err)
		}
		v = v<<8 | uint32(buf[0])
	}
	return v, nil
}

func (t *Transport) WriteRegister(addr byte, values []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, b := range values {
		if err := t.bus.Tx(t.addr, []byte{addr + byte(i), b}, nil); err != nil {
			return fmt.Errorf("writing register %#02x: %w", addr+byte(i), err)
		}
	}
	return nil
}
