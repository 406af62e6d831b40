package bus

import (
	"fmt"
	"io"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

// HostBus is an I2C bus of the host, e.g. /dev/i2c-1 on Linux.
type HostBus struct {
	bus i2c.BusCloser
}

var (
	_ drivers.I2C = (*HostBus)(nil)
	_ io.Closer   = (*HostBus)(nil)
)

// Open initialises the host drivers and opens the named I2C bus. An empty
// name selects the first bus available.
func Open(name string) (*HostBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialising host drivers: %w", err)
	}

	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening I2C bus %q: %w", name, err)
	}

	return &HostBus{bus: b}, nil
}

func (h *HostBus) Tx(addr uint16, w, r []byte) error {
	return h.bus.Tx(addr, w, r)
}

func (h *HostBus) String() string {
	return h.bus.String()
}

func (h *HostBus) Close() error {
	return h.bus.Close()
}
