package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
	"github.com/roman-kulish/impedance-sweeper/internal/bus"
	"github.com/roman-kulish/impedance-sweeper/internal/eis"
	"github.com/roman-kulish/impedance-sweeper/internal/simulator"
	"github.com/roman-kulish/impedance-sweeper/internal/storage"
)

func newTestOrchestrator(t *testing.T, count int, options ...func(*Orchestrator)) (*Orchestrator, *storage.SqliteStore) {
	t.Helper()

	device := ad5933.NewDevice(simulator.NewChip())
	cfg := ad5933.DefaultConfig()
	cfg.StartFrequency = 1000
	cfg.FrequencyStep = 1000
	cfg.NumSteps = 3
	if _, err := device.Configure(cfg); err != nil {
		t.Fatalf("Failed to configure device: %v", err)
	}

	sweeper := ad5933.NewSweeper(device, SweeperOptions(&EngineConfig{
		Repeat:       2,
		PollInterval: Duration(time.Millisecond),
	})...)

	store := storage.NewSqliteStore(filepath.Join(t.TempDir(), "sweeps.db"))
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := NewOrchestrator(sweeper, store, logger, time.Millisecond, count, options...)
	o.SetDevice(bus.DeviceTypeSimulator, "sim0")
	return o, store
}

func TestOrchestratorRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	o, store := newTestOrchestrator(t, 3, WithMaxBatchSize(3), WithTextFiles(dir, "cell", 1))
	if err := o.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].DeviceType != bus.DeviceTypeSimulator {
		t.Fatalf("Expected one simulator session, got %v", sessions)
	}

	r, err := store.ReadSweeps(ctx, sessions[0].ID)
	if err != nil {
		t.Fatalf("ReadSweeps failed: %v", err)
	}
	defer r.Close()

	var sweeps int
	for r.Next(ctx) {
		sweeps++
		if n := len(r.Current().Samples); n != 8 {
			t.Errorf("Expected 8 samples, got %d", n)
		}
	}
	if err = r.Error(); err != nil {
		t.Fatalf("Reader failed: %v", err)
	}
	if sweeps != 3 {
		t.Errorf("Expected 3 sweeps, got %d", sweeps)
	}

	for i := 0; i < 3; i++ {
		meta, samples, err := eis.ReadFile(filepath.Join(dir, eis.FileName("cell", 1, i)))
		if err != nil {
			t.Fatalf("ReadFile %d failed: %v", i, err)
		}
		if len(samples) != 8 {
			t.Errorf("File %d: expected 8 samples, got %d", i, len(samples))
		}
		if meta[eis.KeyVersion] != eis.Version {
			t.Errorf("File %d: expected version %s, got %q", i, eis.Version, meta[eis.KeyVersion])
		}
	}
}

func TestOrchestratorPlan(t *testing.T) {
	ctx := context.Background()

	plan, err := eis.LogPlan(100, 10_000, 3)
	if err != nil {
		t.Fatalf("LogPlan failed: %v", err)
	}

	o, store := newTestOrchestrator(t, 1, WithPlan(plan))
	if err = o.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	sessions, err := store.Sessions(ctx)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("Expected one session, got %v %v", sessions, err)
	}

	r, err := store.ReadSweeps(ctx, sessions[0].ID)
	if err != nil {
		t.Fatalf("ReadSweeps failed: %v", err)
	}
	defer r.Close()

	if !r.Next(ctx) {
		t.Fatalf("Expected a sweep, got none (%v)", r.Error())
	}
	points := eis.Average(r.Current().Result().Samples)
	if len(points) != 3 {
		t.Fatalf("Expected 3 frequencies, got %d", len(points))
	}
	for i, p := range points {
		if diff := p.Frequency - plan[i]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("Point %d: expected %v Hz, got %v Hz", i, plan[i], p.Frequency)
		}
	}
}

func TestOrchestratorRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	o, store := newTestOrchestrator(t, 0)
	if err := o.Run(ctx); err != nil {
		t.Fatalf("Expected a cancelled run to stop cleanly, got %v", err)
	}

	r, err := store.ReadSweeps(context.Background(), o.sessionID)
	if err != nil {
		t.Fatalf("ReadSweeps failed: %v", err)
	}
	defer r.Close()

	if !r.Next(context.Background()) {
		t.Errorf("Expected at least one stored sweep (%v)", r.Error())
	}
}
