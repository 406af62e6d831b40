package ad5933

import (
	"fmt"
	"math"
)

// Limits enforced by the validators.
const (
	MinStartFrequency = 0.1
	MaxStartFrequency = 100_000.0
	MaxFrequencyStep  = 100_000.0
	MaxNumSteps       = 511
	MaxSettleCycles   = 2044

	DefaultStartFrequency = 1000.0
	DefaultOutputRange    = Range400mVpp
	DefaultPGAGain        = 1
)

// Config holds the sweep parameters programmed into the chip.
type Config struct {
	OutputRange    string  `json:"outputRange" yaml:"outputRange"`       // "2 Vpp", "200 mVpp", "400 mVpp" or "1 Vpp"
	PGAGain        int     `json:"pgaGain" yaml:"pgaGain"`               // 1 or 5
	ExternalClock  bool    `json:"externalClock" yaml:"externalClock"`   // MCLK pin instead of the internal oscillator
	StartFrequency float64 `json:"startFrequency" yaml:"startFrequency"` // Hz
	FrequencyStep  float64 `json:"frequencyStep" yaml:"frequencyStep"`   // Hz
	NumSteps       int     `json:"numSteps" yaml:"numSteps"`             // 0 measures a single frequency
	SettleCycles   int     `json:"settleCycles" yaml:"settleCycles"`     // excitation cycles before each conversion
	MasterClock    float64 `json:"masterClock" yaml:"masterClock"`       // Hz
}

// DefaultConfig returns the power-on configuration used by the driver.
func DefaultConfig() Config {
	return Config{
		OutputRange:    Range200mVpp.String(),
		PGAGain:        1,
		ExternalClock:  true,
		StartFrequency: 10_000,
		FrequencyStep:  500,
		NumSteps:       100,
		SettleCycles:   100,
		MasterClock:    DefaultMasterClock,
	}
}

// Frequencies returns the nominal excitation frequencies of the sweep.
func (c Config) Frequencies() []float64 {
	freqs := make([]float64, c.NumSteps+1)
	for i := range freqs {
		freqs[i] = c.StartFrequency + float64(i)*c.FrequencyStep
	}
	return freqs
}

// Adjustment records a requested value that was replaced by a safe one.
type Adjustment struct {
	Field     string `json:"field"`
	Requested any    `json:"requested"`
	Applied   any    `json:"applied"`
	Reason    string `json:"reason"`
}

func (a Adjustment) String() string {
	return fmt.Sprintf("%s: %v replaced with %v (%s)", a.Field, a.Requested, a.Applied, a.Reason)
}

// ValidateOutputRange resolves a range name. Unknown names fall back to 400 mVpp.
func ValidateOutputRange(name string) (OutputRange, *Adjustment) {
	if r, ok := ParseOutputRange(name); ok {
		return r, nil
	}
	return DefaultOutputRange, &Adjustment{
		Field:     "outputRange",
		Requested: name,
		Applied:   DefaultOutputRange.String(),
		Reason:    `valid ranges are "2 Vpp", "200 mVpp", "400 mVpp" and "1 Vpp"`,
	}
}

// ValidatePGAGain accepts 1 or 5, anything else becomes 1.
func ValidatePGAGain(gain int) (int, *Adjustment) {
	if gain == 1 || gain == 5 {
		return gain, nil
	}
	return DefaultPGAGain, &Adjustment{
		Field:     "pgaGain",
		Requested: gain,
		Applied:   DefaultPGAGain,
		Reason:    "gain must be 1 or 5",
	}
}

// ValidateMode accepts the documented operation codes, anything else becomes Standby.
func ValidateMode(m Mode) (Mode, *Adjustment) {
	if m.Valid() {
		return m, nil
	}
	return ModeStandby, &Adjustment{
		Field:     "mode",
		Requested: m.String(),
		Applied:   ModeStandby.String(),
		Reason:    "invalid operation code",
	}
}

// ValidateStartFrequency requires 0.1 < f < 100000 and falls back to 1 kHz.
func ValidateStartFrequency(f float64) (float64, *Adjustment) {
	if f > MinStartFrequency && f < MaxStartFrequency {
		return f, nil
	}
	return DefaultStartFrequency, &Adjustment{
		Field:     "startFrequency",
		Requested: f,
		Applied:   DefaultStartFrequency,
		Reason:    "start frequency must be between 0.1 Hz and 100 kHz",
	}
}

// ValidateFrequencyStep clamps the step into [0, 100000].
func ValidateFrequencyStep(f float64) (float64, *Adjustment) {
	var applied float64
	switch {
	case math.IsNaN(f) || f < 0:
		applied = 0
	case f > MaxFrequencyStep:
		applied = MaxFrequencyStep
	default:
		return f, nil
	}
	return applied, &Adjustment{
		Field:     "frequencyStep",
		Requested: f,
		Applied:   applied,
		Reason:    "frequency step must be between 0 and 100 kHz",
	}
}

// ValidateNumSteps clamps the number of increments into [0, 511].
func ValidateNumSteps(n int) (int, *Adjustment) {
	var applied int
	switch {
	case n < 0:
		applied = 0
	case n > MaxNumSteps:
		applied = MaxNumSteps
	default:
		return n, nil
	}
	return applied, &Adjustment{
		Field:     "numSteps",
		Requested: n,
		Applied:   applied,
		Reason:    "number of frequency steps must be between 0 and 511",
	}
}

// ValidateSettleCycles clamps into [0, 2044]. Odd values above 511 lose one
// cycle because the x2 and x4 multipliers only represent even counts.
func ValidateSettleCycles(n int) (int, *Adjustment) {
	var applied int
	var reason string
	switch {
	case n < 0:
		applied, reason = 0, "settling cycles cannot be negative"
	case n > MaxSettleCycles:
		applied, reason = MaxSettleCycles, "settling cycles must not exceed 2044"
	case n > 511 && n%2 != 0:
		applied, reason = n-1, "settling cycles above 511 must be even"
	default:
		return n, nil
	}
	return applied, &Adjustment{
		Field:     "settleCycles",
		Requested: n,
		Applied:   applied,
		Reason:    reason,
	}
}

// ValidateMasterClock requires a positive clock and falls back to 16 MHz.
func ValidateMasterClock(f float64) (float64, *Adjustment) {
	if f > 0 && !math.IsInf(f, 1) {
		return f, nil
	}
	return DefaultMasterClock, &Adjustment{
		Field:     "masterClock",
		Requested: f,
		Applied:   DefaultMasterClock,
		Reason:    "master clock must be positive",
	}
}

// ValidateConfig runs every validator and returns the corrected configuration
// together with the list of substitutions made. It never fails.
func ValidateConfig(c Config) (Config, []Adjustment) {
	var adjustments []Adjustment
	collect := func(a *Adjustment) {
		if a != nil {
			adjustments = append(adjustments, *a)
		}
	}

	r, a := ValidateOutputRange(c.OutputRange)
	c.OutputRange = r.String()
	collect(a)

	c.PGAGain, a = ValidatePGAGain(c.PGAGain)
	collect(a)
	c.MasterClock, a = ValidateMasterClock(c.MasterClock)
	collect(a)
	c.StartFrequency, a = ValidateStartFrequency(c.StartFrequency)
	collect(a)
	c.FrequencyStep, a = ValidateFrequencyStep(c.FrequencyStep)
	collect(a)
	c.NumSteps, a = ValidateNumSteps(c.NumSteps)
	collect(a)
	c.SettleCycles, a = ValidateSettleCycles(c.SettleCycles)
	collect(a)

	return c, adjustments
}
