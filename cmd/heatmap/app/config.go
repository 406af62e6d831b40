package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     int64
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	CellSize      int
	TimeZone      *time.Location
	MinLevel      *float64
	MaxLevel      *float64
	MinFrequency  *float64
	MaxFrequency  *float64
	MinTimestamp  *time.Time
	MaxTimestamp  *time.Time
	CompletedOnly bool
	Verbose       bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Theme:    DefaultTheme,
		CellSize: defaultCellSize,
		TimeZone: time.Local,
	}
}

func NewConfigFromCLI() (*Config, error) {
	return parseConfig(flag.CommandLine, os.Args[1:])
}

func parseConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	c := NewConfig()

	var imageFormat, theme, tz, minTime, maxTime string
	var minLevel, maxLevel, minFreq, maxFreq float64
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", ImagePNG, "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(DefaultTheme), "Color theme. [default, classic, grayscale, jungle, thermal, marine]")
	fs.IntVar(&c.CellSize, "cell", defaultCellSize, "Pixels per sweep and frequency point")
	fs.StringVar(&tz, "tz", "Local", "Time zone of the time scale")
	fs.Float64Var(&minLevel, "min-level", 0, "Manual minimum magnitude in dB")
	fs.Float64Var(&maxLevel, "max-level", 0, "Manual maximum magnitude in dB")
	fs.Float64Var(&minFreq, "min-freq", 0, "Minimum frequency in Hz")
	fs.Float64Var(&maxFreq, "max-freq", 0, "Maximum frequency in Hz")
	fs.StringVar(&minTime, "from", "", "Earliest sweep start, "+time.DateTime)
	fs.StringVar(&maxTime, "to", "", "Latest sweep start, "+time.DateTime)
	fs.BoolVar(&c.CompletedOnly, "completed", false, "Skip cancelled sweeps")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time and frequency scales")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min-level":
			c.MinLevel = &minLevel
		case "max-level":
			c.MaxLevel = &maxLevel
		case "min-freq":
			c.MinFrequency = &minFreq
		case "max-freq":
			c.MaxFrequency = &maxFreq
		}
	})

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.SessionID <= 0 {
		err = errors.New("session id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok = validThemes[ColorTheme(theme)]; !ok {
		err = fmt.Errorf("invalid color theme: %s", theme)
	} else if c.CellSize < 1 {
		err = fmt.Errorf("cell size must be at least 1: %d given", c.CellSize)
	} else if c.TimeZone, err = time.LoadLocation(tz); err != nil {
		err = fmt.Errorf("invalid time zone: %w", err)
	} else if c.MinTimestamp, err = parseTime(minTime, c.TimeZone); err != nil {
		err = fmt.Errorf("invalid -from: %w", err)
	} else if c.MaxTimestamp, err = parseTime(maxTime, c.TimeZone); err != nil {
		err = fmt.Errorf("invalid -to: %w", err)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = ColorTheme(theme)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}

func parseTime(s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateTime, s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
