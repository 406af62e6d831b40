package eis

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/segmentio/parquet-go"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

// Parquet key/value metadata entries.
const (
	ParquetConfigKey  = "config"
	ParquetStartedKey = "started"
)

// ParquetSample is the Parquet row of one sample.
type ParquetSample struct {
	Elapsed   float64 `parquet:"elapsed"`
	Frequency float64 `parquet:"frequency"`
	Real      int32   `parquet:"real"`
	Imag      int32   `parquet:"imag"`
}

// NewParquetWriter creates a generic parquet writer carrying the sweep
// configuration as JSON metadata.
func NewParquetWriter(w io.Writer, result *ad5933.SweepResult) *parquet.GenericWriter[ParquetSample] {
	config := "{}"
	if b, err := json.Marshal(result.Config); err == nil {
		config = string(b)
	}

	return parquet.NewGenericWriter[ParquetSample](w,
		parquet.KeyValueMetadata(ParquetConfigKey, config),
		parquet.KeyValueMetadata(ParquetStartedKey, result.Started.Format(TimestampFormat)),
	)
}

// WriteParquet writes the samples of result as a Parquet file.
func WriteParquet(w io.Writer, result *ad5933.SweepResult) error {
	pw := NewParquetWriter(w, result)

	rows := make([]ParquetSample, len(result.Samples))
	for i, s := range result.Samples {
		rows[i] = ParquetSample{
			Elapsed:   s.Elapsed,
			Frequency: s.Frequency,
			Real:      int32(s.Real),
			Imag:      int32(s.Imag),
		}
	}

	if _, err := pw.Write(rows); err != nil {
		_ = pw.Close()
		return fmt.Errorf("writing parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}
	return nil
}
