package eis

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

// Version is recorded in the metadata line of every data file.
const Version = "1.0.0"

// TimestampFormat is the layout of the metadata timestamp.
const TimestampFormat = "2006-01-02 15:04:05.000000"

// Metadata keys of the first line of a data file.
const (
	KeyOutputRange   = "output range"
	KeyPGAGain       = "pga_gain"
	KeyExternalClock = "external_clock"
	KeySettleCycles  = "settle_cycles"
	KeyVersion       = "code version"
	KeyTimestamp     = "timestamp"
)

var metadataKeys = []string{
	KeyOutputRange,
	KeyPGAGain,
	KeyExternalClock,
	KeySettleCycles,
	KeyVersion,
	KeyTimestamp,
}

const (
	columnsHeader       = "T,F,R,I"
	legacyColumnsHeader = "F,R,I"
)

// Metadata is the key/value header of a data file.
type Metadata map[string]string

// NewMetadata describes a sweep acquired with c at ts.
func NewMetadata(c ad5933.Config, ts time.Time) Metadata {
	return Metadata{
		KeyOutputRange:   c.OutputRange,
		KeyPGAGain:       strconv.Itoa(c.PGAGain),
		KeyExternalClock: strconv.FormatBool(c.ExternalClock),
		KeySettleCycles:  strconv.Itoa(c.SettleCycles),
		KeyVersion:       Version,
		KeyTimestamp:     ts.Local().Format(TimestampFormat),
	}
}

// Timestamp parses the timestamp entry.
func (m Metadata) Timestamp() (time.Time, error) {
	return time.ParseInLocation(TimestampFormat, m[KeyTimestamp], time.Local)
}

func (m Metadata) String() string {
	keys := make([]string, 0, len(m))
	for _, k := range metadataKeys {
		if _, ok := m[k]; ok {
			keys = append(keys, k)
		}
	}

	var extra []string
	for k := range m {
		if !isMetadataKey(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + ": " + m[k]
	}
	return strings.Join(pairs, ", ")
}

func isMetadataKey(k string) bool {
	for _, key := range metadataKeys {
		if k == key {
			return true
		}
	}
	return false
}

// FileName returns the name of the i-th data file of a channel.
func FileName(prefix string, channel, i int) string {
	return fmt.Sprintf("%s_ch%d_%d.txt", prefix, channel, i)
}

// Write writes the metadata line, a blank line, the column header and one
// row per sample.
func Write(w io.Writer, meta Metadata, samples []ad5933.Sample) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "%s\n\n%s\n", meta, columnsHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, s := range samples {
		_, err := fmt.Fprintf(bw, "%s,%s,%d,%d\n",
			strconv.FormatFloat(s.Elapsed, 'f', -1, 64),
			strconv.FormatFloat(s.Frequency, 'f', -1, 64),
			s.Real,
			s.Imag)
		if err != nil {
			return fmt.Errorf("writing sample: %w", err)
		}
	}

	return bw.Flush()
}

// WriteFile creates or truncates the named file and writes samples to it.
func WriteFile(name string, meta Metadata, samples []ad5933.Sample) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("creating data file: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	return Write(f, meta, samples)
}

// Read parses a data file. Files without the elapsed column are accepted
// and read with zero elapsed time.
func Read(r io.Reader) (Metadata, []ad5933.Sample, error) {
	sc := bufio.NewScanner(r)

	if !sc.Scan() {
		return nil, nil, fmt.Errorf("reading metadata: %w", scanErr(sc))
	}
	meta, err := parseMetadata(sc.Text())
	if err != nil {
		return nil, nil, err
	}

	// blank line, then the column header
	for i := 0; i < 2; i++ {
		if !sc.Scan() {
			return nil, nil, fmt.Errorf("reading header: %w", scanErr(sc))
		}
	}

	var columns int
	switch strings.TrimSpace(sc.Text()) {
	case columnsHeader:
		columns = 4
	case legacyColumnsHeader:
		columns = 3
	default:
		return nil, nil, fmt.Errorf("unexpected column header %q", sc.Text())
	}

	var samples []ad5933.Sample
	for line := 4; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		s, err := parseRow(text, columns)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, s)
	}
	if err = sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading samples: %w", err)
	}

	return meta, samples, nil
}

// ReadFile reads the named data file.
func ReadFile(name string) (Metadata, []ad5933.Sample, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("opening data file: %w", err)
	}
	defer f.Close()

	return Read(f)
}

func parseMetadata(line string) (Metadata, error) {
	meta := Metadata{}
	for _, pair := range strings.Split(line, ",") {
		key, value, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("malformed metadata entry %q", pair)
		}
		meta[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return meta, nil
}

func parseRow(text string, columns int) (ad5933.Sample, error) {
	fields := strings.Split(text, ",")
	if len(fields) != columns {
		return ad5933.Sample{}, fmt.Errorf("expected %d columns, got %d", columns, len(fields))
	}

	values := make([]float64, columns)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return ad5933.Sample{}, fmt.Errorf("column %d: %w", i+1, err)
		}
		values[i] = v
	}
	if columns == 3 {
		values = append([]float64{0}, values...)
	}

	return ad5933.Sample{
		Elapsed:   values[0],
		Frequency: values[1],
		Real:      toInt16(values[2]),
		Imag:      toInt16(values[3]),
	}, nil
}

func toInt16(v float64) int16 {
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v))))
}

func scanErr(sc *bufio.Scanner) error {
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}
