package bus

import (
	"testing"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

func TestOpenEndpointSimulated(t *testing.T) {
	testCases := []struct {
		name   string
		config DeviceConfig
		wantID string
	}{
		{"default name", DeviceConfig{Simulate: true}, "sim0"},
		{"named", DeviceConfig{Name: "bench", Simulate: true}, "bench"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := OpenEndpoint(&tc.config)
			if err != nil {
				t.Fatalf("OpenEndpoint failed: %v", err)
			}
			defer e.Close()

			if e.Type != DeviceTypeSimulator {
				t.Errorf("Expected type %s, got %s", DeviceTypeSimulator, e.Type)
			}
			if e.ID != tc.wantID {
				t.Errorf("Expected id %s, got %s", tc.wantID, e.ID)
			}

			d := ad5933.NewDevice(e.Transport)
			if _, err = d.Configure(ad5933.DefaultConfig()); err != nil {
				t.Errorf("Expected the simulated chip to accept a configuration, got %v", err)
			}
		})
	}
}

func TestEndpointCloseWithoutBus(t *testing.T) {
	if err := (&Endpoint{}).Close(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}
