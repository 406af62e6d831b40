package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/impedance-sweeper/internal/control"
)

const (
	ServerOptionName   = "server"
	LogLevelOptionName = "log-level"

	DefaultServer = "http://localhost:8080"
)

// globals are the persistent flags shared by every command
type globals struct {
	server   string
	logLevel slog.LevelVar
	logger   *slog.Logger
}

func (g *globals) client() *control.Client {
	return control.NewClient(g.server)
}

func NewRootCommand(out io.Writer) *cobra.Command {
	g := &globals{}
	var logLevel string

	cmd := &cobra.Command{
		Use:           "eisctl",
		Short:         "Tool to run and control AD5933 impedance sweeps",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := g.logLevel.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("invalid %s: %w", LogLevelOptionName, err)
			}
			g.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: &g.logLevel}))
			return nil
		},
	}
	cmd.SetOut(out)

	cmd.AddCommand(NewServeCommand(g))
	cmd.AddCommand(NewStartCommand(g))
	cmd.AddCommand(NewStopCommand(g))
	cmd.AddCommand(NewSingleCommand(g))
	cmd.AddCommand(NewPowerDownCommand(g))
	cmd.AddCommand(NewStatusCommand(g))
	cmd.AddCommand(NewSamplesCommand(g))
	cmd.AddCommand(NewConfigureCommand(g))
	cmd.AddCommand(NewTemperatureCommand(g))
	cmd.AddCommand(NewExportCommand(g))

	cmd.PersistentFlags().StringVar(&g.server, ServerOptionName, DefaultServer, "Control API base URL")
	cmd.PersistentFlags().StringVar(&logLevel, LogLevelOptionName, "info", "Log level. [debug, info, warn, error]")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
