package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
	"github.com/roman-kulish/impedance-sweeper/internal/control"
	"github.com/roman-kulish/impedance-sweeper/internal/eis"
	"github.com/roman-kulish/impedance-sweeper/internal/simulator"
	"github.com/roman-kulish/impedance-sweeper/internal/storage"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := NewRootCommand(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func newTestServer(t *testing.T) (string, chan ad5933.SweepResult) {
	t.Helper()

	device := ad5933.NewDevice(simulator.NewChip())
	cfg := ad5933.DefaultConfig()
	cfg.StartFrequency = 10_000
	cfg.FrequencyStep = 1000
	cfg.NumSteps = 2
	if _, err := device.Configure(cfg); err != nil {
		t.Fatalf("Failed to configure device: %v", err)
	}

	sweeper := ad5933.NewSweeper(device,
		ad5933.WithRepeat(1),
		ad5933.WithSettleDelay(0),
		ad5933.WithPollInterval(time.Millisecond))

	results := make(chan ad5933.SweepResult, 4)
	server := control.NewServer(sweeper, control.WithResultHandler(func(r ad5933.SweepResult) {
		results <- r
	}))

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		sweeper.Stop()
		server.Wait()
		ts.Close()
	})
	return ts.URL, results
}

func waitResult(t *testing.T, results <-chan ad5933.SweepResult) ad5933.SweepResult {
	t.Helper()

	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for a sweep result")
	}
	return ad5933.SweepResult{}
}

func TestStatusCommand(t *testing.T) {
	url, _ := newTestServer(t)

	out, err := execute(t, "--server", url, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}

	var st control.Status
	if err = json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("Failed to decode status %q: %v", out, err)
	}
	if st.Running {
		t.Error("Expected the sweeper to be idle")
	}
	if st.Config.NumSteps != 2 {
		t.Errorf("Expected 2 steps, got %d", st.Config.NumSteps)
	}
}

func TestConfigureCommand(t *testing.T) {
	url, _ := newTestServer(t)

	out, err := execute(t, "--server", url, "configure", "--steps", "600", "--gain", "3")
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	var resp control.ConfigResponse
	if err = json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("Failed to decode response %q: %v", out, err)
	}
	if resp.Config.NumSteps != 511 || resp.Config.PGAGain != 1 {
		t.Errorf("Expected clamped steps and gain, got %d and %d", resp.Config.NumSteps, resp.Config.PGAGain)
	}
	if resp.Config.StartFrequency != 10_000 {
		t.Errorf("Expected start frequency to be kept, got %v", resp.Config.StartFrequency)
	}
	if len(resp.Adjustments) != 2 {
		t.Errorf("Expected 2 adjustments, got %d", len(resp.Adjustments))
	}
}

func TestStartAndSamplesCommands(t *testing.T) {
	url, results := newTestServer(t)

	if _, err := execute(t, "--server", url, "start"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	r := waitResult(t, results)
	if len(r.Samples) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(r.Samples))
	}

	out, err := execute(t, "--server", url, "samples")
	if err != nil {
		t.Fatalf("samples failed: %v", err)
	}
	var samples []ad5933.Sample
	if err = json.Unmarshal([]byte(out), &samples); err != nil {
		t.Fatalf("Failed to decode samples: %v", err)
	}
	if len(samples) != 3 {
		t.Errorf("Expected 3 samples, got %d", len(samples))
	}
}

func TestSingleCommand(t *testing.T) {
	url, results := newTestServer(t)

	if _, err := execute(t, "--server", url, "single", "abc"); err == nil {
		t.Error("Expected an error for a non-numeric frequency")
	}

	if _, err := execute(t, "--server", url, "single", "20000"); err != nil {
		t.Fatalf("single failed: %v", err)
	}
	r := waitResult(t, results)
	if len(r.Samples) != 1 || r.Samples[0].Frequency != 20_000 {
		t.Errorf("Expected one sample at 20 kHz, got %+v", r.Samples)
	}
}

func TestTemperatureCommand(t *testing.T) {
	url, _ := newTestServer(t)

	out, err := execute(t, "--server", url, "temperature")
	if err != nil {
		t.Fatalf("temperature failed: %v", err)
	}
	if strings.TrimSpace(out) == "" {
		t.Error("Expected a temperature reading")
	}
}

func TestInvalidLogLevel(t *testing.T) {
	if _, err := execute(t, "--log-level", "loud", "status"); err == nil {
		t.Error("Expected an error for an invalid log level")
	}
}

func testStore(t *testing.T) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "sweeps.db")
	store := storage.NewSqliteStore(dbPath)
	sessionID, err := store.CreateSession(context.Background(), "simulator", "sim0", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	record := resultRecorder(store, sessionID, slog.New(slog.NewTextHandler(io.Discard, nil)))
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		record(ad5933.SweepResult{
			Started: started.Add(time.Duration(i) * time.Minute),
			Config:  ad5933.DefaultConfig(),
			Samples: []ad5933.Sample{
				{Elapsed: 0.1, Frequency: 1000, Real: 100, Imag: -20},
				{Elapsed: 0.2, Frequency: 2000, Real: 90, Imag: -30},
			},
			Cancelled: i == 2,
		})
	}
	record(ad5933.SweepResult{Started: started})

	if err = store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return dbPath
}

func TestExportText(t *testing.T) {
	dbPath := testStore(t)
	out := t.TempDir()

	stdout, err := execute(t, "export", "--db", dbPath, "--out", out, "--completed")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.Contains(stdout, "exported 2 sweeps") {
		t.Errorf("Unexpected output %q", stdout)
	}

	meta, samples, err := eis.ReadFile(filepath.Join(out, eis.FileName("sweep", 0, 1)))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(samples) != 2 || samples[1].Real != 90 {
		t.Errorf("Unexpected samples %+v", samples)
	}
	ts, err := meta.Timestamp()
	if err != nil || !ts.Equal(time.Date(2024, 5, 1, 10, 1, 0, 0, time.UTC)) {
		t.Errorf("Unexpected timestamp %s (%v)", ts, err)
	}
}

func TestExportParquet(t *testing.T) {
	dbPath := testStore(t)
	out := t.TempDir()

	if _, err := execute(t, "export", "--db", dbPath, "--out", out, "--format", "parquet"); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(out, "*.parquet"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Errorf("Expected 3 parquet files, got %d", len(files))
	}
	for _, f := range files {
		if info, err := os.Stat(f); err != nil || info.Size() == 0 {
			t.Errorf("Expected a non-empty file %s", f)
		}
	}
}

func TestExportErrors(t *testing.T) {
	if _, err := execute(t, "export", "--db", filepath.Join(t.TempDir(), "missing.db")); err == nil {
		t.Error("Expected an error for a missing database")
	}
	if _, err := execute(t, "export", "--db", testStore(t), "--format", "csv"); err == nil {
		t.Error("Expected an error for an unknown format")
	}
}
