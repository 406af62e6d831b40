package ad5933

import (
	"fmt"
	"strings"
)

// DefaultAddress is the fixed I2C address of the AD5933.
const DefaultAddress = 0x0D

// Register addresses. Multi-byte registers span consecutive addresses,
// most significant byte first.
const (
	RegControl        byte = 0x80 // 2 bytes
	RegStartFrequency byte = 0x82 // 3 bytes
	RegFrequencyStep  byte = 0x85 // 3 bytes
	RegNumSteps       byte = 0x88 // 2 bytes
	RegSettleCycles   byte = 0x8A // 2 bytes
	RegStatus         byte = 0x8F // 1 byte
	RegTemperature    byte = 0x92 // 2 bytes
	RegReal           byte = 0x94 // 2 bytes
	RegImag           byte = 0x96 // 2 bytes
)

const (
	controlWidth     = 2
	frequencyWidth   = 3
	numStepsWidth    = 2
	settleWidth      = 2
	statusWidth      = 1
	temperatureWidth = 2
	dataWidth        = 2
)

// Control register fields, as bits of the 16-bit register image.
const (
	controlModeShift  = 12
	controlModeMask   = uint16(0xF) << controlModeShift
	controlRangeShift = 9
	controlRangeMask  = uint16(0x3) << controlRangeShift
	controlGainBit    = uint16(1) << 8 // set for x1, clear for x5
	controlResetBit   = uint16(1) << 4
	controlClockBit   = uint16(1) << 3 // set for external clock
)

// Status is the content of the status register.
type Status uint8

const (
	StatusTemperatureValid Status = 1 << 0
	StatusDataReady        Status = 1 << 1
	StatusSweepComplete    Status = 1 << 2
)

func (s Status) TemperatureValid() bool { return s&StatusTemperatureValid != 0 }
func (s Status) DataReady() bool        { return s&StatusDataReady != 0 }
func (s Status) SweepComplete() bool    { return s&StatusSweepComplete != 0 }

// Mode is the 4-bit operation code held in bits 15-12 of the control register.
type Mode uint8

const (
	ModeNoOperation Mode = 0b0000
	ModeInitialize  Mode = 0b0001
	ModeStart       Mode = 0b0010
	ModeIncrement   Mode = 0b0011
	ModeRepeat      Mode = 0b0100
	ModeTemperature Mode = 0b1001
	ModePowerDown   Mode = 0b1010
	ModeStandby     Mode = 0b1011
)

var modeNames = map[Mode]string{
	ModeNoOperation: "No operation",
	ModeInitialize:  "Initialize",
	ModeStart:       "Start",
	ModeIncrement:   "Increment",
	ModeRepeat:      "Repeat",
	ModeTemperature: "Temperature",
	ModePowerDown:   "Power-down",
	ModeStandby:     "Standby",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%#x)", uint8(m))
}

// Valid reports whether m is one of the documented operation codes.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// OutputRange is the 2-bit excitation voltage code held in bits 10-9 of
// the control register.
type OutputRange uint8

const (
	Range2Vpp    OutputRange = 0b00
	Range200mVpp OutputRange = 0b01
	Range400mVpp OutputRange = 0b10
	Range1Vpp    OutputRange = 0b11
)

var outputRangeNames = map[OutputRange]string{
	Range2Vpp:    "2 Vpp",
	Range200mVpp: "200 mVpp",
	Range400mVpp: "400 mVpp",
	Range1Vpp:    "1 Vpp",
}

func (r OutputRange) String() string {
	if name, ok := outputRangeNames[r]; ok {
		return name
	}
	return fmt.Sprintf("OutputRange(%d)", uint8(r))
}

// ParseOutputRange looks up a range by name, e.g. "400 mVpp". Case and
// whitespace are ignored.
func ParseOutputRange(name string) (OutputRange, bool) {
	key := normalizeRangeName(name)
	for r, n := range outputRangeNames {
		if normalizeRangeName(n) == key {
			return r, true
		}
	}
	return 0, false
}

func normalizeRangeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}
