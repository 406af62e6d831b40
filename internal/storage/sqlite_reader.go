package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

// ReaderOption configures a SweepReader with specific filtering criteria.
type ReaderOption func(*SqliteSweepReader)

// WithMinFreq excludes samples below f.
func WithMinFreq(f float64) ReaderOption {
	return func(r *SqliteSweepReader) {
		r.minFreq = &f
	}
}

// WithMaxFreq excludes samples above f.
func WithMaxFreq(f float64) ReaderOption {
	return func(r *SqliteSweepReader) {
		r.maxFreq = &f
	}
}

// WithFreqRange sets both minimum and maximum frequency filters.
func WithFreqRange(minFreq, maxFreq float64) ReaderOption {
	return func(r *SqliteSweepReader) {
		r.minFreq = &minFreq
		r.maxFreq = &maxFreq
	}
}

// WithStartTime excludes sweeps started before t.
func WithStartTime(t time.Time) ReaderOption {
	return func(r *SqliteSweepReader) {
		r.startTime = &t
	}
}

// WithEndTime excludes sweeps started after t.
func WithEndTime(t time.Time) ReaderOption {
	return func(r *SqliteSweepReader) {
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SqliteSweepReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// WithCompletedOnly skips cancelled sweeps.
func WithCompletedOnly() ReaderOption {
	return func(r *SqliteSweepReader) {
		r.completedOnly = true
	}
}

var _ SweepReader = (*SqliteSweepReader)(nil)

// SqliteSweepReader implements SweepReader for SQLite database backend.
// Rows of the joined sweep and sample tables are grouped into sweeps.
type SqliteSweepReader struct {
	db *sql.DB

	sessionID     int64
	session       *Session
	completedOnly bool

	startTime *time.Time
	endTime   *time.Time
	minFreq   *float64
	maxFreq   *float64

	current    *Sweep
	next       *Sweep // sweep of the row read ahead
	nextSample ad5933.Sample
	rows       *sql.Rows
	err        error
}

func newSqliteSweepReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteSweepReader, error) {
	sr := &SqliteSweepReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(sr)
	}
	if err := sr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return sr, nil
}

func (sr *SqliteSweepReader) init(ctx context.Context) error {
	if sr.db == nil {
		return errors.New("database connection required")
	}
	if sr.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: sr.loadSession},
		{msg: "initializing filters", fn: sr.initFilters},
		{msg: "initializing query", fn: sr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (sr *SqliteSweepReader) loadSession(ctx context.Context) (err error) {
	sr.session, err = loadSession(ctx, sr.db, sr.sessionID)
	return
}

func (sr *SqliteSweepReader) initFilters(context.Context) error {
	if sr.startTime != nil && sr.endTime != nil && sr.startTime.After(*sr.endTime) {
		return fmt.Errorf("start time %s is after end time %s", sr.startTime, sr.endTime)
	}
	if sr.minFreq != nil && sr.maxFreq != nil && *sr.minFreq > *sr.maxFreq {
		return fmt.Errorf("min frequency %f is greater than max frequency %f", *sr.minFreq, *sr.maxFreq)
	}

	if sr.minFreq == nil {
		f := -math.MaxFloat64
		sr.minFreq = &f
	}
	if sr.maxFreq == nil {
		f := math.MaxFloat64
		sr.maxFreq = &f
	}
	return nil
}

func (sr *SqliteSweepReader) initQuery(ctx context.Context) (err error) {
	stmt, err := sr.db.PrepareContext(ctx, selectSweepSamplesSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	startedFrom, startedTo := int64(math.MinInt64), int64(math.MaxInt64)
	if sr.startTime != nil {
		startedFrom = sr.startTime.UnixMicro()
	}
	if sr.endTime != nil {
		startedTo = sr.endTime.UnixMicro()
	}

	sr.rows, err = stmt.QueryContext(ctx, sr.sessionID, startedFrom, startedTo, *sr.minFreq, *sr.maxFreq)
	return
}

// scanRow reads one joined row. The returned sweep carries no samples.
func (sr *SqliteSweepReader) scanRow() (*Sweep, ad5933.Sample, error) {
	var (
		sweep     = Sweep{SessionID: sr.sessionID}
		startedAt int64
		config    sql.NullString
		sample    sampleData
	)

	err := sr.rows.Scan(
		&sweep.ID,
		&startedAt,
		&sweep.Cancelled,
		&config,
		&sample.Elapsed,
		&sample.Frequency,
		&sample.Real,
		&sample.Imag,
	)
	if err != nil {
		return nil, ad5933.Sample{}, fmt.Errorf("scanning sample: %w", err)
	}

	sweep.Started = fromUnixMicro(startedAt)
	if config.Valid {
		if err = json.Unmarshal([]byte(config.String), &sweep.Config); err != nil {
			return nil, ad5933.Sample{}, fmt.Errorf("decoding sweep %d config: %w", sweep.ID, err)
		}
	}

	return &sweep, ad5933.Sample{
		Elapsed:   sample.Elapsed,
		Frequency: sample.Frequency,
		Real:      int16(sample.Real),
		Imag:      int16(sample.Imag),
	}, nil
}

func (sr *SqliteSweepReader) Session() *Session {
	return sr.session
}

func (sr *SqliteSweepReader) Next(ctx context.Context) bool {
	for {
		ok := sr.advance(ctx)
		if !ok || !sr.completedOnly || !sr.current.Cancelled {
			return ok
		}
	}
}

func (sr *SqliteSweepReader) advance(ctx context.Context) bool {
	if sr.err != nil || sr.rows == nil {
		return false
	}

	sr.current = nil
	if sr.next != nil {
		sr.current = sr.next
		sr.current.Samples = append(sr.current.Samples, sr.nextSample)
		sr.next = nil
	}

	for {
		select {
		case <-ctx.Done():
			sr.err = ctx.Err()
			return false
		default:
		}

		if !sr.rows.Next() {
			return sr.current != nil
		}

		sweep, sample, err := sr.scanRow()
		if err != nil {
			sr.err = err
			return false
		}

		switch {
		case sr.current == nil:
			sr.current = sweep
			sr.current.Samples = append(sr.current.Samples, sample)

		case sweep.ID != sr.current.ID:
			sr.next = sweep
			sr.nextSample = sample
			return true

		default:
			sr.current.Samples = append(sr.current.Samples, sample)
		}
	}
}

func (sr *SqliteSweepReader) Current() *Sweep {
	return sr.current
}

func (sr *SqliteSweepReader) Error() error {
	if sr.err != nil {
		return sr.err
	}
	if sr.rows != nil {
		return sr.rows.Err()
	}
	return nil
}

func (sr *SqliteSweepReader) Close() error {
	if sr.rows != nil {
		err := sr.rows.Close()
		sr.current = nil
		sr.next = nil
		sr.rows = nil
		return err
	}
	return nil
}
