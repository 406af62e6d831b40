package app

import (
	"math"
	"time"

	"github.com/roman-kulish/impedance-sweeper/internal/eis"
	"github.com/roman-kulish/impedance-sweeper/internal/storage"
)

// ImpedanceData is a time x frequency grid of DFT magnitudes in dB. Every
// row is one sweep, every column one frequency point.
type ImpedanceData struct {
	Width, Height                int
	FrequencyMin, FrequencyMax   float64
	TimestampStart, TimestampEnd time.Time
	BoundsTracker                *SmoothBounds
	Frequencies                  []float64   // Column frequencies of the widest sweep
	Timestamps                   []time.Time // Start time of every row
	Rows                         [][]*float64
}

func NewImpedanceData(b *SmoothBounds) *ImpedanceData {
	return &ImpedanceData{
		FrequencyMin:  math.MaxFloat64,
		BoundsTracker: b,
	}
}

// Update appends sweep as a new row. Repeated conversions at a frequency are
// averaged first.
func (d *ImpedanceData) Update(sweep *storage.Sweep) {
	points := eis.Average(sweep.Samples)
	if len(points) == 0 {
		return
	}

	if len(points) > d.Width {
		d.Width = len(points)
		d.Frequencies = d.Frequencies[:0]
		for _, p := range points {
			d.Frequencies = append(d.Frequencies, p.Frequency)
		}
	}
	d.Height++

	d.FrequencyMin = min(d.FrequencyMin, points[0].Frequency)
	d.FrequencyMax = max(d.FrequencyMax, points[len(points)-1].Frequency)

	if d.TimestampStart.IsZero() || d.TimestampStart.After(sweep.Started) {
		d.TimestampStart = sweep.Started
	}
	if d.TimestampEnd.IsZero() || d.TimestampEnd.Before(sweep.Started) {
		d.TimestampEnd = sweep.Started
	}

	levels := make([]*float64, len(points))
	for i, p := range points {
		levels[i] = magnitudeDB(p.Magnitude())
		d.BoundsTracker.Update(levels[i])
	}
	d.Rows = append(d.Rows, levels)
	d.Timestamps = append(d.Timestamps, sweep.Started)
}

// magnitudeDB returns 20*log10(m), nil for a zero magnitude.
func magnitudeDB(m float64) *float64 {
	if m <= 0 {
		return nil
	}
	db := 20 * math.Log10(m)
	return &db
}
