package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

// Session is a series of sweeps taken with one device.
type Session struct {
	ID         int64     `json:"id"`
	StartTime  time.Time `json:"startTime"`
	DeviceType string    `json:"deviceType"`
	DeviceID   string    `json:"deviceID"`
	Config     *string   `json:"config,omitempty"`
}

// Sweep is a stored sweep run.
type Sweep struct {
	ID        int64           `json:"id"`
	SessionID int64           `json:"sessionID"`
	Started   time.Time       `json:"started"`
	Cancelled bool            `json:"cancelled"`
	Config    ad5933.Config   `json:"config"`
	Samples   []ad5933.Sample `json:"samples"`
}

// Result converts the sweep back into a sweep result.
func (s *Sweep) Result() *ad5933.SweepResult {
	return &ad5933.SweepResult{
		Started:   s.Started,
		Config:    s.Config,
		Samples:   s.Samples,
		Cancelled: s.Cancelled,
	}
}

type sweepData struct {
	SessionID int64
	StartedAt int64 // Unix microseconds
	Cancelled bool
	Config    sql.NullString
}

type sampleData struct {
	SweepID   int64
	Elapsed   float64
	Frequency float64
	Real      int64
	Imag      int64
}

func toSweepData(sessionID int64, r *ad5933.SweepResult) (*sweepData, error) {
	config, err := json.Marshal(r.Config)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}

	return &sweepData{
		SessionID: sessionID,
		StartedAt: r.Started.UnixMicro(),
		Cancelled: r.Cancelled,
		Config:    sql.NullString{String: string(config), Valid: true},
	}, nil
}

func toSampleData(sweepID int64, s ad5933.Sample) *sampleData {
	return &sampleData{
		SweepID:   sweepID,
		Elapsed:   s.Elapsed,
		Frequency: s.Frequency,
		Real:      int64(s.Real),
		Imag:      int64(s.Imag),
	}
}
