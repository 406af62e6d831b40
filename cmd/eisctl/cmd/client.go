package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/impedance-sweeper/internal/control"
)

func NewStartCommand(g *globals) *cobra.Command {
	return commandCommand(g, control.CommandStart, "Start sweeping")
}

func NewStopCommand(g *globals) *cobra.Command {
	return commandCommand(g, control.CommandStop, "Stop sweeping")
}

func NewPowerDownCommand(g *globals) *cobra.Command {
	return commandCommand(g, control.CommandPowerDown, "Stop sweeping and power the chip down")
}

func commandCommand(g *globals, c control.Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(c),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := g.client().Command(cmd.Context(), c, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
}

func NewSingleCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "single FREQUENCY",
		Short: "Sweep a single frequency in Hz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			freq, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid frequency %q: %w", args[0], err)
			}

			resp, err := g.client().Single(cmd.Context(), freq)
			if err != nil {
				return err
			}
			for _, a := range resp.Adjustments {
				g.logger.Warn(a.String())
			}
			return printJSON(cmd, resp)
		},
	}
}

func NewStatusCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sweeper status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := g.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}
}

func NewSamplesCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "samples",
		Short: "Print the samples of the current or last sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := g.client().Samples(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, samples)
		},
	}
}

func NewTemperatureCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "temperature",
		Short: "Measure the die temperature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := g.client().Temperature(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%.2f\n", t)
			return err
		},
	}
}

// NewConfigureCommand changes the flags given on the command line and keeps
// every other setting at its current value.
func NewConfigureCommand(g *globals) *cobra.Command {
	var (
		outputRange    string
		pgaGain        int
		externalClock  bool
		startFrequency float64
		frequencyStep  float64
		numSteps       int
		settleCycles   int
		masterClock    float64
	)

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Change the sweep configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := g.client()
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}

			cfg := st.Config
			flags := cmd.Flags()
			if flags.Changed("range") {
				cfg.OutputRange = outputRange
			}
			if flags.Changed("gain") {
				cfg.PGAGain = pgaGain
			}
			if flags.Changed("external-clock") {
				cfg.ExternalClock = externalClock
			}
			if flags.Changed("start") {
				cfg.StartFrequency = startFrequency
			}
			if flags.Changed("step") {
				cfg.FrequencyStep = frequencyStep
			}
			if flags.Changed("steps") {
				cfg.NumSteps = numSteps
			}
			if flags.Changed("settle") {
				cfg.SettleCycles = settleCycles
			}
			if flags.Changed("mclk") {
				cfg.MasterClock = masterClock
			}

			resp, err := c.Configure(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			for _, a := range resp.Adjustments {
				g.logger.Warn(a.String())
			}
			return printJSON(cmd, resp)
		},
	}

	cmd.Flags().StringVar(&outputRange, "range", "", "Output range. [2 Vpp, 1 Vpp, 400 mVpp, 200 mVpp]")
	cmd.Flags().IntVar(&pgaGain, "gain", 1, "PGA gain. [1, 5]")
	cmd.Flags().BoolVar(&externalClock, "external-clock", true, "Use the MCLK pin instead of the internal oscillator")
	cmd.Flags().Float64Var(&startFrequency, "start", 0, "Start frequency in Hz")
	cmd.Flags().Float64Var(&frequencyStep, "step", 0, "Frequency step in Hz")
	cmd.Flags().IntVar(&numSteps, "steps", 0, "Number of frequency increments")
	cmd.Flags().IntVar(&settleCycles, "settle", 0, "Settling cycles before each conversion")
	cmd.Flags().Float64Var(&masterClock, "mclk", 0, "Master clock in Hz")

	return cmd
}
