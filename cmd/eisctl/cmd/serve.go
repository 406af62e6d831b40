package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
	"github.com/roman-kulish/impedance-sweeper/internal/bus"
	"github.com/roman-kulish/impedance-sweeper/internal/control"
	"github.com/roman-kulish/impedance-sweeper/internal/storage"
)

const (
	BusOptionName          = "bus"
	AddressOptionName      = "address"
	SimulateOptionName     = "simulate"
	StateOptionName        = "state"
	DBOptionName           = "db"
	ListenOptionName       = "listen"
	RepeatOptionName       = "repeat"
	PollIntervalOptionName = "poll-interval"
	SettleDelayOptionName  = "settle-delay"
	AutoRestartOptionName  = "auto-restart"

	DefaultListen = ":8080"
	DefaultState  = "eisctl.state"
)

type serveOptions struct {
	device       bus.DeviceConfig
	state        string
	db           string
	listen       string
	repeat       int
	pollInterval time.Duration
	settleDelay  time.Duration
	autoRestart  bool
}

func NewServeCommand(g *globals) *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP control API for one AD5933",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, &opts, g.logger)
		},
	}

	cmd.Flags().StringVar(&opts.device.Bus, BusOptionName, "", "I2C bus name; empty selects the first bus")
	cmd.Flags().Uint16Var(&opts.device.Address, AddressOptionName, ad5933.DefaultAddress, "7-bit I2C address")
	cmd.Flags().BoolVar(&opts.device.Simulate, SimulateOptionName, false, "Use the simulated chip")
	cmd.Flags().StringVar(&opts.state, StateOptionName, DefaultState, "Path to the state database")
	cmd.Flags().StringVar(&opts.db, DBOptionName, "", "Store finished sweeps in this SQLite database")
	cmd.Flags().StringVar(&opts.listen, ListenOptionName, DefaultListen, "Listen address")
	cmd.Flags().IntVar(&opts.repeat, RepeatOptionName, ad5933.DefaultRepeat, "Conversions per frequency point")
	cmd.Flags().DurationVar(&opts.pollInterval, PollIntervalOptionName, ad5933.DefaultPollInterval, "Status poll interval")
	cmd.Flags().DurationVar(&opts.settleDelay, SettleDelayOptionName, ad5933.DefaultSettleDelay, "Delay after the initialize command")
	cmd.Flags().BoolVar(&opts.autoRestart, AutoRestartOptionName, false, "Start a new sweep whenever one finishes")

	return cmd
}

func serve(ctx context.Context, opts *serveOptions, logger *slog.Logger) error {
	endpoint, err := bus.OpenEndpoint(&opts.device)
	if err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}
	defer endpoint.Close()

	state, err := control.OpenStateStore(opts.state)
	if err != nil {
		return err
	}
	defer state.Close()

	hub := control.NewHub(logger)
	device := ad5933.NewDevice(endpoint.Transport, ad5933.WithLogger(logger.With(slog.String("device", endpoint.ID))))
	sweeper := ad5933.NewSweeper(device,
		ad5933.WithRepeat(opts.repeat),
		ad5933.WithPollInterval(opts.pollInterval),
		ad5933.WithSettleDelay(opts.settleDelay),
		ad5933.WithAutoRestart(opts.autoRestart),
		ad5933.WithSampleHandler(hub.Publish),
	)

	options := []func(*control.Server){
		control.WithLogger(logger),
		control.WithStateStore(state),
		control.WithHub(hub),
	}

	if opts.db != "" {
		store := storage.NewSqliteStore(opts.db)
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error(fmt.Sprintf("closing storage: %s", err.Error()))
			}
		}()

		sessionID, err := store.CreateSession(ctx, endpoint.Type, endpoint.ID, device.Config())
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		options = append(options, control.WithResultHandler(resultRecorder(store, sessionID, logger)))
	}

	server := control.NewServer(sweeper, options...)
	adjustments, err := server.Restore()
	if err != nil {
		return fmt.Errorf("restoring state: %w", err)
	}
	for _, a := range adjustments {
		logger.Warn(a.String())
	}

	logger.Info("serving control API",
		slog.String("listen", opts.listen),
		slog.String("deviceType", endpoint.Type),
		slog.String("deviceID", endpoint.ID))

	err = server.Run(ctx, opts.listen)
	if perr := device.PowerDown(); perr != nil {
		logger.Warn("power down failed", slog.String("error", perr.Error()))
	}
	return err
}

func resultRecorder(store storage.Store, sessionID int64, logger *slog.Logger) func(ad5933.SweepResult) {
	return func(r ad5933.SweepResult) {
		if len(r.Samples) == 0 {
			return
		}
		id, err := store.StoreSweepResult(context.Background(), sessionID, &r, storage.DefaultBatchSize)
		if err != nil {
			logger.Error("failed to store sweep", slog.String("error", err.Error()))
			return
		}
		logger.Debug("sweep stored", slog.Int64("sweepID", id), slog.Int("samples", len(r.Samples)))
	}
}
