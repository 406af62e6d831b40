package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
	"github.com/roman-kulish/impedance-sweeper/internal/eis"
	"github.com/roman-kulish/impedance-sweeper/internal/storage"
)

const maxBatchSize = storage.DefaultBatchSize

// WithMaxBatchSize sets the maximum number of samples inserted by a single
// statement.
func WithMaxBatchSize(size int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.maxBatchSize = size
	}
}

// WithTextFiles also writes every sweep as a data file into dir.
func WithTextFiles(dir, prefix string, channel int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.textDir = dir
		o.filePrefix = prefix
		o.channel = channel
	}
}

// WithPlan replaces the linear sweep with single-frequency measurements at
// each frequency of plan.
func WithPlan(plan []float64) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.plan = plan
	}
}

// Orchestrator takes timed sweeps on one device and stores every result in
// the database and, optionally, as data files.
type Orchestrator struct {
	sweeper *ad5933.Sweeper
	store   storage.Store
	logger  *slog.Logger

	deviceType string
	deviceID   string
	sessionID  int64

	period       time.Duration
	count        int
	plan         []float64
	maxBatchSize int

	textDir    string
	filePrefix string
	channel    int
}

// NewOrchestrator creates a new Orchestrator. It sweeps count times, once every
// period; a zero count sweeps until the context is done.
func NewOrchestrator(sweeper *ad5933.Sweeper, store storage.Store, logger *slog.Logger, period time.Duration, count int, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		sweeper:      sweeper,
		store:        store,
		logger:       logger,
		period:       period,
		count:        count,
		maxBatchSize: maxBatchSize,
		filePrefix:   defaultFilePrefix,
	}

	for _, option := range options {
		option(&o)
	}

	return &o
}

// SetDevice names the device recorded with the session
func (o *Orchestrator) SetDevice(deviceType, deviceID string) {
	o.deviceType = deviceType
	o.deviceID = deviceID
}

// Run creates a session and sweeps on schedule until done or ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	sessionID, err := o.store.CreateSession(ctx, o.deviceType, o.deviceID, o.sweeper.Device().Config())
	if err != nil {
		return fmt.Errorf("creating session for device %s: %w", o.deviceID, err)
	}
	o.sessionID = sessionID

	o.logger.Info("session started",
		slog.Int64("session", sessionID),
		slog.String("device", o.deviceID))

	ticker := time.NewTicker(max(o.period, time.Millisecond))
	defer ticker.Stop()

	for i := 0; o.count == 0 || i < o.count; i++ {
		result, err := o.sweep(ctx)
		if err != nil {
			return fmt.Errorf("sweep %d: %w", i, err)
		}

		if err = o.storeSweepResult(ctx, i, result); err != nil {
			return err
		}

		if result.Cancelled || ctx.Err() != nil {
			return nil
		}
		if o.count > 0 && i == o.count-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}

	return nil
}

func (o *Orchestrator) sweep(ctx context.Context) (*ad5933.SweepResult, error) {
	if len(o.plan) > 0 {
		return o.sweeper.RunPlan(ctx, o.plan)
	}
	return o.sweeper.Run(ctx)
}

func (o *Orchestrator) storeSweepResult(ctx context.Context, i int, r *ad5933.SweepResult) error {
	if len(r.Samples) == 0 {
		o.logger.Warn("sweep produced no samples", slog.Int("sweep", i))
		return nil
	}

	// the sweep may have been interrupted, the result is still stored
	sweepID, err := o.store.StoreSweepResult(context.WithoutCancel(ctx), o.sessionID, r, o.maxBatchSize)
	if err != nil {
		return fmt.Errorf("storing sweep %d: %w", i, err)
	}

	attrs := []any{
		slog.Int("sweep", i),
		slog.Int64("id", sweepID),
		slog.String("samples", humanize.Comma(int64(len(r.Samples)))),
		slog.Bool("cancelled", r.Cancelled),
	}

	if o.textDir != "" {
		name := filepath.Join(o.textDir, eis.FileName(o.filePrefix, o.channel, i))
		if err = eis.WriteFile(name, eis.NewMetadata(r.Config, r.Started), r.Samples); err != nil {
			return fmt.Errorf("writing sweep %d: %w", i, err)
		}
		attrs = append(attrs, slog.String("file", name))
	}

	o.logger.Info("sweep stored", attrs...)
	return nil
}
