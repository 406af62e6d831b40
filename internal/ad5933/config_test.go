package ad5933

import "testing"

func TestValidatePGAGain(t *testing.T) {
	testCases := []struct {
		gain     int
		want     int
		adjusted bool
	}{
		{1, 1, false},
		{5, 5, false},
		{3, 1, true},
		{0, 1, true},
	}

	for _, tc := range testCases {
		got, adj := ValidatePGAGain(tc.gain)
		if got != tc.want {
			t.Errorf("ValidatePGAGain(%d): expected %d, got %d", tc.gain, tc.want, got)
		}
		if (adj != nil) != tc.adjusted {
			t.Errorf("ValidatePGAGain(%d): expected adjustment %v, got %v", tc.gain, tc.adjusted, adj)
		}
	}
}

func TestValidateOutputRange(t *testing.T) {
	testCases := []struct {
		name     string
		want     OutputRange
		adjusted bool
	}{
		{"2 Vpp", Range2Vpp, false},
		{"200 mVpp", Range200mVpp, false},
		{"400mvpp", Range400mVpp, false},
		{" 1 Vpp ", Range1Vpp, false},
		{"3 Vpp", Range400mVpp, true},
		{"", Range400mVpp, true},
	}

	for _, tc := range testCases {
		got, adj := ValidateOutputRange(tc.name)
		if got != tc.want {
			t.Errorf("ValidateOutputRange(%q): expected %s, got %s", tc.name, tc.want, got)
		}
		if (adj != nil) != tc.adjusted {
			t.Errorf("ValidateOutputRange(%q): expected adjustment %v, got %v", tc.name, tc.adjusted, adj)
		}
	}

	_, adj := ValidateOutputRange("3 Vpp")
	if adj.Applied != "400 mVpp" || adj.Requested != "3 Vpp" {
		t.Errorf("Unexpected adjustment: %s", adj)
	}
}

func TestValidateSettleCycles(t *testing.T) {
	testCases := []struct {
		cycles   int
		want     int
		adjusted bool
	}{
		{100, 100, false},
		{511, 511, false},
		{512, 512, false},
		{513, 512, true},
		{600, 600, false},
		{1023, 1022, true},
		{1200, 1200, false},
		{2044, 2044, false},
		{2045, 2044, true},
		{5000, 2044, true},
		{-1, 0, true},
	}

	for _, tc := range testCases {
		got, adj := ValidateSettleCycles(tc.cycles)
		if got != tc.want {
			t.Errorf("ValidateSettleCycles(%d): expected %d, got %d", tc.cycles, tc.want, got)
		}
		if (adj != nil) != tc.adjusted {
			t.Errorf("ValidateSettleCycles(%d): expected adjustment %v, got %v", tc.cycles, tc.adjusted, adj)
		}
	}
}

func TestValidateFrequencies(t *testing.T) {
	testCases := []struct {
		name     string
		validate func(float64) (float64, *Adjustment)
		in, want float64
		adjusted bool
	}{
		{"start in range", ValidateStartFrequency, 30_000, 30_000, false},
		{"start at lower bound", ValidateStartFrequency, 0.1, DefaultStartFrequency, true},
		{"start at upper bound", ValidateStartFrequency, 100_000, DefaultStartFrequency, true},
		{"step in range", ValidateFrequencyStep, 500, 500, false},
		{"negative step", ValidateFrequencyStep, -10, 0, true},
		{"step too large", ValidateFrequencyStep, 250_000, MaxFrequencyStep, true},
		{"master clock", ValidateMasterClock, 4e6, 4e6, false},
		{"zero master clock", ValidateMasterClock, 0, DefaultMasterClock, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, adj := tc.validate(tc.in)
			if got != tc.want {
				t.Errorf("Expected %v, got %v", tc.want, got)
			}
			if (adj != nil) != tc.adjusted {
				t.Errorf("Expected adjustment %v, got %v", tc.adjusted, adj)
			}
		})
	}
}

func TestValidateNumSteps(t *testing.T) {
	if n, adj := ValidateNumSteps(511); n != 511 || adj != nil {
		t.Errorf("Expected 511 without adjustment, got %d, %v", n, adj)
	}
	if n, adj := ValidateNumSteps(512); n != 511 || adj == nil {
		t.Errorf("Expected 511 with adjustment, got %d, %v", n, adj)
	}
	if n, adj := ValidateNumSteps(-3); n != 0 || adj == nil {
		t.Errorf("Expected 0 with adjustment, got %d, %v", n, adj)
	}
}

func TestValidateMode(t *testing.T) {
	if m, adj := ValidateMode(ModeRepeat); m != ModeRepeat || adj != nil {
		t.Errorf("Expected Repeat without adjustment, got %s, %v", m, adj)
	}
	if m, adj := ValidateMode(Mode(0b0101)); m != ModeStandby || adj == nil {
		t.Errorf("Expected Standby with adjustment, got %s, %v", m, adj)
	}
}

func TestValidateConfig(t *testing.T) {
	c := Config{
		OutputRange:    "3 Vpp",
		PGAGain:        3,
		StartFrequency: 10_000,
		FrequencyStep:  100,
		NumSteps:       50,
		SettleCycles:   2045,
		MasterClock:    DefaultMasterClock,
	}

	got, adjustments := ValidateConfig(c)
	if len(adjustments) != 3 {
		t.Fatalf("Expected 3 adjustments, got %d: %v", len(adjustments), adjustments)
	}
	if got.OutputRange != "400 mVpp" {
		t.Errorf("Expected 400 mVpp, got %s", got.OutputRange)
	}
	if got.PGAGain != 1 {
		t.Errorf("Expected gain 1, got %d", got.PGAGain)
	}
	if got.SettleCycles != 2044 {
		t.Errorf("Expected 2044 settling cycles, got %d", got.SettleCycles)
	}
	if got.StartFrequency != c.StartFrequency || got.NumSteps != c.NumSteps {
		t.Errorf("Expected valid fields untouched, got %+v", got)
	}

	fields := map[string]bool{}
	for _, a := range adjustments {
		fields[a.Field] = true
	}
	for _, f := range []string{"outputRange", "pgaGain", "settleCycles"} {
		if !fields[f] {
			t.Errorf("Expected adjustment for %s", f)
		}
	}
}

func TestConfigFrequencies(t *testing.T) {
	c := Config{StartFrequency: 1000, FrequencyStep: 250, NumSteps: 4}
	want := []float64{1000, 1250, 1500, 1750, 2000}

	got := c.Frequencies()
	if len(got) != len(want) {
		t.Fatalf("Expected %d frequencies, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Frequency %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}
