package bus

import (
	"fmt"
	"io"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
	"github.com/roman-kulish/impedance-sweeper/internal/simulator"
)

const (
	DeviceTypeSimulator = "simulator"
	DeviceTypeAD5933    = "ad5933"

	defaultSimulatorName = "sim0"
)

// DeviceConfig selects the chip a binary talks to
type DeviceConfig struct {
	Name     string `yaml:"name"`
	Bus      string `yaml:"bus"`     // periph bus name, e.g. "/dev/i2c-1"; empty for the first bus
	Address  uint16 `yaml:"address"` // 7-bit I2C address
	Simulate bool   `yaml:"simulate"`
}

// Endpoint is an opened register transport together with the identity
// recorded for its sessions.
type Endpoint struct {
	Transport ad5933.RegisterTransport
	Type      string
	ID        string

	closer io.Closer
}

// Close releases the underlying bus.
func (e *Endpoint) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

// OpenEndpoint opens the host bus described by config, or an in-memory chip
// when config.Simulate is set.
func OpenEndpoint(config *DeviceConfig) (*Endpoint, error) {
	if config.Simulate {
		name := config.Name
		if name == "" {
			name = defaultSimulatorName
		}
		return &Endpoint{Transport: simulator.NewChip(), Type: DeviceTypeSimulator, ID: name}, nil
	}

	hostBus, err := Open(config.Bus)
	if err != nil {
		return nil, err
	}

	id := config.Name
	if id == "" {
		id = fmt.Sprintf("%s@%#02x", hostBus.String(), config.Address)
	}

	return &Endpoint{
		Transport: NewTransport(hostBus, WithAddress(config.Address)),
		Type:      DeviceTypeAD5933,
		ID:        id,
		closer:    hostBus,
	}, nil
}
