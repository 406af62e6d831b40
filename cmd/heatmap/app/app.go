package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/impedance-sweeper/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	data, err := readSweeps(ctx, store, config, logger)
	if err != nil {
		return err
	}

	img, err := render(data, config, logger)
	if err != nil {
		return err
	}

	return writeImage(config.OutputFile, config.Format, img)
}

// ReaderOptions translates the command line filters into reader options.
func ReaderOptions(config *Config) ([]storage.ReaderOption, []any) {
	var opts []storage.ReaderOption
	var filters []any

	switch {
	case config.MinFrequency != nil && config.MaxFrequency != nil:
		opts = append(opts, storage.WithFreqRange(*config.MinFrequency, *config.MaxFrequency))
		filters = append(filters,
			slog.String("minFreq", formatFrequency(*config.MinFrequency)),
			slog.String("maxFreq", formatFrequency(*config.MaxFrequency)))

	case config.MinFrequency != nil:
		opts = append(opts, storage.WithMinFreq(*config.MinFrequency))
		filters = append(filters, slog.String("minFreq", formatFrequency(*config.MinFrequency)))

	case config.MaxFrequency != nil:
		opts = append(opts, storage.WithMaxFreq(*config.MaxFrequency))
		filters = append(filters, slog.String("maxFreq", formatFrequency(*config.MaxFrequency)))
	}

	switch {
	case config.MinTimestamp != nil && config.MaxTimestamp != nil:
		opts = append(opts, storage.WithTimeRange(*config.MinTimestamp, *config.MaxTimestamp))
		filters = append(filters,
			slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)),
			slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))

	case config.MinTimestamp != nil:
		opts = append(opts, storage.WithStartTime(*config.MinTimestamp))
		filters = append(filters, slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)))

	case config.MaxTimestamp != nil:
		opts = append(opts, storage.WithEndTime(*config.MaxTimestamp))
		filters = append(filters, slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))
	}

	if config.CompletedOnly {
		opts = append(opts, storage.WithCompletedOnly())
		filters = append(filters, slog.Bool("completedOnly", true))
	}

	return opts, filters
}

func readSweeps(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) (*ImpedanceData, error) {
	opts, filters := ReaderOptions(config)
	logger.Info("iterator configuration", filters...)

	iter, err := store.ReadSweeps(ctx, config.SessionID, opts...)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	data := NewImpedanceData(NewSmoothBounds(0.3))
	for iter.Next(ctx) {
		sweep := iter.Current()
		data.Update(sweep)

		if config.Verbose {
			logger.Debug("sweep read",
				slog.Int64("id", sweep.ID),
				slog.String("started", sweep.Started.Format(time.DateTime)),
				slog.Int("samples", len(sweep.Samples)))
		}
	}
	if err = iter.Error(); err != nil {
		return nil, err
	}
	if data.Height == 0 {
		return nil, errors.New("no sweeps matched")
	}

	data.BoundsTracker.Override(config.MinLevel, config.MaxLevel)
	bounds := data.BoundsTracker.Current()

	logger.Info("finished reading sweeps",
		slog.Group("stats",
			slog.String("sweeps", humanize.Comma(int64(data.Height))),
			slog.String("minTimestamp", data.TimestampStart.In(config.TimeZone).Format(time.DateTime)),
			slog.String("maxTimestamp", data.TimestampEnd.In(config.TimeZone).Format(time.DateTime)),
			slog.String("minFreq", formatFrequency(data.FrequencyMin)),
			slog.String("maxFreq", formatFrequency(data.FrequencyMax)),
			slog.String("minLevel", fmt.Sprintf("%0.2fdB", bounds.Min)),
			slog.String("maxLevel", fmt.Sprintf("%0.2fdB", bounds.Max)),
		))

	return data, nil
}

func render(data *ImpedanceData, config *Config, logger *slog.Logger) (image.Image, error) {
	renderer := NewHeatmapRenderer(RenderConfig{
		Location:   config.TimeZone,
		CellSize:   config.CellSize,
		ColorTheme: config.Theme,
		Annotate:   !config.NoAnnotations,
	})

	img, err := renderer.Render(data)
	if err != nil {
		return nil, fmt.Errorf("rendering heatmap: %w", err)
	}

	size := img.Bounds().Size()
	logger.Info("rendered heatmap",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(renderer.colorMap.ThemeName())),
			slog.Int("colors", renderer.colorMap.Size()),
			slog.Int("width", size.X),
			slog.Int("height", size.Y),
		))

	return img, nil
}

func writeImage(name string, format ImageFormat, img image.Image) (err error) {
	out, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	return encodeImage(out, format, img)
}

func encodeImage(w io.Writer, format ImageFormat, img image.Image) error {
	switch format {
	case ImagePNG:
		return png.Encode(w, img)
	case ImageJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 98})
	}
	return fmt.Errorf("unsupported image format: %s", format)
}
