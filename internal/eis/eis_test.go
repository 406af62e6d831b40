package eis

import (
	"bytes"
	"errors"
	"io"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/parquet-go"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

var testSamples = []ad5933.Sample{
	{Elapsed: 1.05, Frequency: 10_000, Real: 1000, Imag: -200},
	{Elapsed: 1.1, Frequency: 10_000, Real: 1002, Imag: -198},
	{Elapsed: 1.15, Frequency: 10_500, Real: 990, Imag: -210},
	{Elapsed: 1.2, Frequency: 10_500, Real: 994, Imag: -214},
}

func TestWriteRead(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 15, 123456000, time.Local)
	meta := NewMetadata(ad5933.DefaultConfig(), ts)

	var buf bytes.Buffer
	if err := Write(&buf, meta, testSamples); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	lines := strings.Split(buf.String(), "\n")
	want := "output range: 200 mVpp, pga_gain: 1, external_clock: true, settle_cycles: 100, " +
		"code version: 1.0.0, timestamp: 2024-03-01 12:30:15.123456"
	if lines[0] != want {
		t.Errorf("Expected metadata %q, got %q", want, lines[0])
	}
	if lines[1] != "" || lines[2] != "T,F,R,I" {
		t.Errorf("Unexpected header lines %q", lines[1:3])
	}
	if lines[3] != "1.05,10000,1000,-200" {
		t.Errorf("Unexpected first row %q", lines[3])
	}

	gotMeta, got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != len(testSamples) {
		t.Fatalf("Expected %d samples, got %d", len(testSamples), len(got))
	}
	for i := range got {
		if got[i] != testSamples[i] {
			t.Errorf("Sample %d: expected %+v, got %+v", i, testSamples[i], got[i])
		}
	}
	for k, v := range meta {
		if gotMeta[k] != v {
			t.Errorf("Metadata %q: expected %q, got %q", k, v, gotMeta[k])
		}
	}

	parsed, err := gotMeta.Timestamp()
	if err != nil || !parsed.Equal(ts) {
		t.Errorf("Expected timestamp %s, got %s (%v)", ts, parsed, err)
	}
}

func TestReadLegacyFile(t *testing.T) {
	in := "output range: 2 Vpp, pga_gain: 5\n\nF,R,I\n1000.0,12,-3\n\n2000.0,10,-4\n"

	meta, samples, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if meta[KeyOutputRange] != "2 Vpp" || meta[KeyPGAGain] != "5" {
		t.Errorf("Unexpected metadata %v", meta)
	}
	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(samples))
	}
	if samples[1] != (ad5933.Sample{Frequency: 2000, Real: 10, Imag: -4}) {
		t.Errorf("Unexpected sample %+v", samples[1])
	}
}

func TestReadErrors(t *testing.T) {
	testCases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"bad metadata", "no separator here\n\nT,F,R,I\n"},
		{"missing header", "a: b\n"},
		{"bad header", "a: b\n\nX,Y\n"},
		{"bad row", "a: b\n\nT,F,R,I\n1,2,three,4\n"},
		{"short row", "a: b\n\nT,F,R,I\n1,2,3\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := Read(strings.NewReader(tc.in)); err == nil {
				t.Error("Expected an error")
			}
		})
	}

	if _, _, err := Read(strings.NewReader("")); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestWriteReadFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), FileName("sweep", 2, 7))
	if filepath.Base(name) != "sweep_ch2_7.txt" {
		t.Errorf("Unexpected file name %s", filepath.Base(name))
	}

	if err := WriteFile(name, NewMetadata(ad5933.DefaultConfig(), time.Now()), testSamples); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	_, samples, err := ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(samples) != len(testSamples) {
		t.Errorf("Expected %d samples, got %d", len(testSamples), len(samples))
	}
}

func TestAverage(t *testing.T) {
	// out of order on purpose
	samples := append([]ad5933.Sample{}, testSamples[2:]...)
	samples = append(samples, testSamples[:2]...)

	points := Average(samples)
	if len(points) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(points))
	}

	want := []Point{
		{Elapsed: 1.075, Frequency: 10_000, Real: 1001, Imag: -199},
		{Elapsed: 1.175, Frequency: 10_500, Real: 992, Imag: -212},
	}
	for i, p := range points {
		if p.Frequency != want[i].Frequency || p.Real != want[i].Real || p.Imag != want[i].Imag {
			t.Errorf("Point %d: expected %+v, got %+v", i, want[i], p)
		}
		if math.Abs(p.Elapsed-want[i].Elapsed) > 1e-9 {
			t.Errorf("Point %d: expected elapsed %v, got %v", i, want[i].Elapsed, p.Elapsed)
		}
	}

	p := Point{Real: 3, Imag: 4}
	if p.Magnitude() != 5 {
		t.Errorf("Expected magnitude 5, got %v", p.Magnitude())
	}
	if got := (Point{Real: 0, Imag: 1}).Phase(); got != math.Pi/2 {
		t.Errorf("Expected phase pi/2, got %v", got)
	}
}

func TestCalibrate(t *testing.T) {
	cal := []Point{{Frequency: 1000, Real: 100}, {Frequency: 2000, Imag: 100}}
	data := []Point{{Frequency: 1000, Real: 50}, {Frequency: 2000, Real: 200}}

	z, err := Calibrate(data, cal, DefaultCalibrationResistance)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	if math.Abs(z[0].Magnitude-2*DefaultCalibrationResistance) > 1e-6 {
		t.Errorf("Expected %v Ohm, got %v", 2*DefaultCalibrationResistance, z[0].Magnitude)
	}
	if math.Abs(z[1].Magnitude-DefaultCalibrationResistance/2) > 1e-6 {
		t.Errorf("Expected %v Ohm, got %v", DefaultCalibrationResistance/2, z[1].Magnitude)
	}
	if math.Abs(z[1].Phase+math.Pi/2) > 1e-12 {
		t.Errorf("Expected phase -pi/2, got %v", z[1].Phase)
	}

	if _, err = Calibrate(data[:1], cal, DefaultCalibrationResistance); err == nil {
		t.Error("Expected an error for mismatched lengths")
	}
	if _, err = Calibrate([]Point{{}}, cal[:1], DefaultCalibrationResistance); err == nil {
		t.Error("Expected an error for a zero magnitude point")
	}
}

func TestFitCalibration(t *testing.T) {
	// magnitude = 100 + 0.01 f
	cal := []Point{
		{Frequency: 1000, Real: 110},
		{Frequency: 2000, Real: 120},
		{Frequency: 3000, Real: 130},
	}

	fit, err := FitCalibration(cal, 1000)
	if err != nil {
		t.Fatalf("FitCalibration failed: %v", err)
	}
	if math.Abs(fit.Intercept-100) > 1e-9 || math.Abs(fit.Slope-0.01) > 1e-12 {
		t.Errorf("Expected 100 + 0.01 f, got %v + %v f", fit.Intercept, fit.Slope)
	}

	z := fit.Impedance(Point{Frequency: 2000, Real: 60})
	if math.Abs(z.Magnitude-2000) > 1e-6 {
		t.Errorf("Expected 2000 Ohm, got %v", z.Magnitude)
	}

	if _, err = FitCalibration(cal[:1], 1000); err == nil {
		t.Error("Expected an error for a single point")
	}
}

func TestLogPlan(t *testing.T) {
	plan, err := LogPlan(100, 100_000, 4)
	if err != nil {
		t.Fatalf("LogPlan failed: %v", err)
	}
	want := []float64{100, 1000, 10_000, 100_000}
	for i := range want {
		if math.Abs(plan[i]-want[i])/want[i] > 1e-9 {
			t.Errorf("Point %d: expected %v, got %v", i, want[i], plan[i])
		}
	}

	for _, tc := range []struct {
		lo, hi float64
		n      int
	}{
		{100, 1000, 1},
		{0, 1000, 5},
		{1000, 100, 5},
	} {
		if _, err = LogPlan(tc.lo, tc.hi, tc.n); err == nil {
			t.Errorf("LogPlan(%v, %v, %d): expected an error", tc.lo, tc.hi, tc.n)
		}
	}
}

func TestWriteParquet(t *testing.T) {
	result := &ad5933.SweepResult{
		Started: time.Now(),
		Config:  ad5933.DefaultConfig(),
		Samples: testSamples,
	}

	var buf bytes.Buffer
	if err := WriteParquet(&buf, result); err != nil {
		t.Fatalf("WriteParquet failed: %v", err)
	}

	r := parquet.NewGenericReader[ParquetSample](bytes.NewReader(buf.Bytes()))
	defer r.Close()

	if n := r.NumRows(); n != int64(len(testSamples)) {
		t.Fatalf("Expected %d rows, got %d", len(testSamples), n)
	}

	rows := make([]ParquetSample, len(testSamples))
	n, err := r.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("Read failed: %v", err)
	}
	if n != len(testSamples) {
		t.Fatalf("Expected %d rows, got %d", len(testSamples), n)
	}
	for i, row := range rows {
		s := testSamples[i]
		if row.Frequency != s.Frequency || row.Real != int32(s.Real) || row.Imag != int32(s.Imag) {
			t.Errorf("Row %d: expected %+v, got %+v", i, s, row)
		}
	}
}
