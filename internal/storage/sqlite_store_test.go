package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "sweeps.db"))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return s
}

func testResult(started time.Time, start float64, cancelled bool) *ad5933.SweepResult {
	cfg := ad5933.DefaultConfig()
	cfg.StartFrequency = start
	cfg.FrequencyStep = 1000
	cfg.NumSteps = 4

	r := &ad5933.SweepResult{Started: started, Config: cfg, Cancelled: cancelled}
	for i, f := range cfg.Frequencies() {
		for n := 0; n < 2; n++ {
			r.Samples = append(r.Samples, ad5933.Sample{
				Elapsed:   float64(2*i+n) * 0.05,
				Frequency: f,
				Real:      int16(1000 + i),
				Imag:      int16(-i*10 - n),
			})
		}
	}
	return r
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.CreateSession(ctx, "simulator", "sim0", ad5933.DefaultConfig())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	second, err := s.CreateSession(ctx, "ad5933", "/dev/i2c-1@0x0d", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	sess, err := s.Session(ctx, first)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if sess.DeviceType != "simulator" || sess.DeviceID != "sim0" {
		t.Errorf("Unexpected session %+v", sess)
	}
	if sess.Config == nil {
		t.Error("Expected session config")
	}
	if sess.StartTime.IsZero() {
		t.Error("Expected session start time")
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != first || sessions[1].ID != second {
		t.Errorf("Expected sessions %d and %d, got %v", first, second, sessions)
	}
	if sessions[1].Config != nil {
		t.Errorf("Expected no config, got %q", *sessions[1].Config)
	}

	if _, err = s.Session(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStoreAndReadSweeps(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sessionID, err := s.CreateSession(ctx, "simulator", "sim0", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	results := []*ad5933.SweepResult{
		testResult(base, 10_000, false),
		testResult(base.Add(time.Minute), 20_000, true),
		testResult(base.Add(2*time.Minute), 30_000, false),
	}
	for _, r := range results {
		// batch size 3 splits the ten samples over four statements
		if _, err = s.StoreSweepResult(ctx, sessionID, r, 3); err != nil {
			t.Fatalf("StoreSweepResult failed: %v", err)
		}
	}

	reader, err := s.ReadSweeps(ctx, sessionID)
	if err != nil {
		t.Fatalf("ReadSweeps failed: %v", err)
	}
	defer reader.Close()

	if reader.Session().ID != sessionID {
		t.Errorf("Expected session %d, got %d", sessionID, reader.Session().ID)
	}

	var i int
	for ; reader.Next(ctx); i++ {
		got, want := reader.Current(), results[i]
		if !got.Started.Equal(want.Started) {
			t.Errorf("Sweep %d: expected start %s, got %s", i, want.Started, got.Started)
		}
		if got.Cancelled != want.Cancelled {
			t.Errorf("Sweep %d: expected cancelled %v, got %v", i, want.Cancelled, got.Cancelled)
		}
		if got.Config != want.Config {
			t.Errorf("Sweep %d: expected config %+v, got %+v", i, want.Config, got.Config)
		}
		if len(got.Samples) != len(want.Samples) {
			t.Fatalf("Sweep %d: expected %d samples, got %d", i, len(want.Samples), len(got.Samples))
		}
		for j := range got.Samples {
			if got.Samples[j] != want.Samples[j] {
				t.Errorf("Sweep %d sample %d: expected %+v, got %+v", i, j, want.Samples[j], got.Samples[j])
			}
		}
	}
	if err = reader.Error(); err != nil {
		t.Fatalf("Reader failed: %v", err)
	}
	if i != len(results) {
		t.Errorf("Expected %d sweeps, got %d", len(results), i)
	}
}

func TestReadSweepsFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sessionID, err := s.CreateSession(ctx, "simulator", "sim0", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, r := range []*ad5933.SweepResult{
		testResult(base, 10_000, false),
		testResult(base.Add(time.Minute), 10_000, true),
		testResult(base.Add(2*time.Minute), 10_000, false),
	} {
		if _, err = s.StoreSweepResult(ctx, sessionID, r, 0); err != nil {
			t.Fatalf("StoreSweepResult %d failed: %v", i, err)
		}
	}

	count := func(opts ...ReaderOption) (sweeps, samples int) {
		t.Helper()

		r, err := s.ReadSweeps(ctx, sessionID, opts...)
		if err != nil {
			t.Fatalf("ReadSweeps failed: %v", err)
		}
		defer r.Close()

		for r.Next(ctx) {
			sweeps++
			samples += len(r.Current().Samples)
		}
		if err = r.Error(); err != nil {
			t.Fatalf("Reader failed: %v", err)
		}
		return
	}

	testCases := []struct {
		name    string
		opts    []ReaderOption
		sweeps  int
		samples int
	}{
		{"all", nil, 3, 30},
		{"time range", []ReaderOption{WithTimeRange(base.Add(30*time.Second), base.Add(5*time.Minute))}, 2, 20},
		{"start time", []ReaderOption{WithStartTime(base.Add(2 * time.Minute))}, 1, 10},
		{"end time", []ReaderOption{WithEndTime(base)}, 1, 10},
		{"frequency range", []ReaderOption{WithFreqRange(11_000, 12_000)}, 3, 12},
		{"min frequency", []ReaderOption{WithMinFreq(14_000)}, 3, 6},
		{"max frequency", []ReaderOption{WithMaxFreq(10_000)}, 3, 6},
		{"completed only", []ReaderOption{WithCompletedOnly()}, 2, 20},
		{"no match", []ReaderOption{WithMinFreq(90_000)}, 0, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sweeps, samples := count(tc.opts...)
			if sweeps != tc.sweeps || samples != tc.samples {
				t.Errorf("Expected %d sweeps with %d samples, got %d with %d", tc.sweeps, tc.samples, sweeps, samples)
			}
		})
	}

	if _, err = s.ReadSweeps(ctx, sessionID, WithFreqRange(2000, 1000)); err == nil {
		t.Error("Expected an error for an inverted frequency range")
	}
	if _, err = s.ReadSweeps(ctx, sessionID, WithTimeRange(base, base.Add(-time.Second))); err == nil {
		t.Error("Expected an error for an inverted time range")
	}
	if _, err = s.ReadSweeps(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestReaderContextCancelled(t *testing.T) {
	s := newTestStore(t)

	sessionID, err := s.CreateSession(context.Background(), "simulator", "sim0", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err = s.StoreSweepResult(context.Background(), sessionID, testResult(time.Now(), 1000, false), 0); err != nil {
		t.Fatalf("StoreSweepResult failed: %v", err)
	}

	r, err := s.ReadSweeps(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("ReadSweeps failed: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if r.Next(ctx) {
		t.Error("Expected Next to stop on a cancelled context")
	}
	if !errors.Is(r.Error(), context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", r.Error())
	}
}
