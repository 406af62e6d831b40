package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
	"github.com/roman-kulish/impedance-sweeper/internal/bus"
	"github.com/roman-kulish/impedance-sweeper/internal/eis"
	"github.com/roman-kulish/impedance-sweeper/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	dataDir, err := dataDirectory(&config.Storage)
	if err != nil {
		return err
	}

	store := storage.NewSqliteStore(filepath.Join(dataDir, fmt.Sprintf("eis_session_%s.sqlite", time.Now().UTC().Format("20060102_150405"))))
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error(fmt.Sprintf("closing storage: %s", err.Error()))
		}
	}()

	endpoint, err := bus.OpenEndpoint(&config.Device)
	if err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}
	defer endpoint.Close()

	device := ad5933.NewDevice(endpoint.Transport, ad5933.WithLogger(logger.With(slog.String("device", endpoint.ID))))
	if _, err = device.Configure(config.Sweep); err != nil {
		return fmt.Errorf("configuring device: %w", err)
	}
	defer func() {
		if err := device.PowerDown(); err != nil {
			logger.Warn("power down failed", slog.String("error", err.Error()))
		}
	}()

	sweeper := ad5933.NewSweeper(device, SweeperOptions(&config.Engine)...)

	options := []func(*Orchestrator){WithMaxBatchSize(config.Storage.MaxBatchSize)}
	if config.Storage.TextFiles {
		options = append(options, WithTextFiles(dataDir, config.Storage.FilePrefix, config.Storage.Channel))
	}
	if p := config.Schedule.Plan; p != nil {
		plan, err := eis.LogPlan(p.Min, p.Max, p.Points)
		if err != nil {
			return fmt.Errorf("creating sweep plan: %w", err)
		}
		options = append(options, WithPlan(plan))
	}

	o := NewOrchestrator(sweeper, store, logger, time.Duration(config.Schedule.Period), config.Schedule.Count, options...)
	o.SetDevice(endpoint.Type, endpoint.ID)

	return o.Run(ctx)
}

// SweeperOptions translates the engine configuration into sweeper options.
func SweeperOptions(config *EngineConfig) []func(*ad5933.Sweeper) {
	options := []func(*ad5933.Sweeper){
		ad5933.WithRepeat(config.Repeat),
		ad5933.WithDelay(time.Duration(config.Delay)),
		ad5933.WithSettleDelay(time.Duration(config.SettleDelay)),
		ad5933.WithPollInterval(time.Duration(config.PollInterval)),
	}
	if config.FrequencyDivisor > 0 {
		options = append(options, ad5933.WithFrequencyDivisor(config.FrequencyDivisor))
	}
	return options
}

func dataDirectory(config *StorageConfig) (string, error) {
	dir := config.DataDirectory
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return "", fmt.Errorf("checking storage directory: %w", err)
	}
	if !stat.IsDir() {
		return "", fmt.Errorf("invalid storage directory '%s'", dir)
	}

	return dir, nil
}
