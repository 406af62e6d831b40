package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roman-kulish/impedance-sweeper/internal/eis"
	"github.com/roman-kulish/impedance-sweeper/internal/storage"
)

const (
	SessionOptionName   = "session"
	FormatOptionName    = "format"
	OutOptionName       = "out"
	PrefixOptionName    = "prefix"
	ChannelOptionName   = "channel"
	CompletedOptionName = "completed"

	FormatText    = "text"
	FormatParquet = "parquet"
)

type exportOptions struct {
	db        string
	session   int64
	format    string
	out       string
	prefix    string
	channel   int
	completed bool
}

func NewExportCommand(g *globals) *cobra.Command {
	opts := exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored sweeps as data files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := export(cmd.Context(), &opts, g.logger)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %s sweeps to %s\n", humanize.Comma(int64(n)), opts.out)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.db, DBOptionName, "", "Path to the SQLite database")
	cmd.Flags().Int64Var(&opts.session, SessionOptionName, 1, "Session ID")
	cmd.Flags().StringVar(&opts.format, FormatOptionName, FormatText, "Output format. [text, parquet]")
	cmd.Flags().StringVar(&opts.out, OutOptionName, ".", "Output directory")
	cmd.Flags().StringVar(&opts.prefix, PrefixOptionName, "sweep", "File name prefix")
	cmd.Flags().IntVar(&opts.channel, ChannelOptionName, 0, "Channel number in file names")
	cmd.Flags().BoolVar(&opts.completed, CompletedOptionName, false, "Skip cancelled sweeps")
	_ = cmd.MarkFlagRequired(DBOptionName)

	return cmd
}

func export(ctx context.Context, opts *exportOptions, logger *slog.Logger) (n int, err error) {
	format := strings.ToLower(opts.format)
	if format != FormatText && format != FormatParquet {
		return 0, fmt.Errorf("invalid %s: %s", FormatOptionName, opts.format)
	}
	if _, err = os.Stat(opts.db); err != nil {
		return 0, fmt.Errorf("database file '%s': %w", opts.db, err)
	}
	if err = os.MkdirAll(opts.out, 0o755); err != nil {
		return 0, fmt.Errorf("creating output directory: %w", err)
	}

	store := storage.NewSqliteStore(opts.db)
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	var readerOpts []storage.ReaderOption
	if opts.completed {
		readerOpts = append(readerOpts, storage.WithCompletedOnly())
	}

	iter, err := store.ReadSweeps(ctx, opts.session, readerOpts...)
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	for iter.Next(ctx) {
		sweep := iter.Current()
		name := filepath.Join(opts.out, eis.FileName(opts.prefix, opts.channel, n))

		switch format {
		case FormatText:
			err = eis.WriteFile(name, eis.NewMetadata(sweep.Config, sweep.Started), sweep.Samples)
		case FormatParquet:
			name = strings.TrimSuffix(name, filepath.Ext(name)) + ".parquet"
			err = writeParquetFile(name, sweep)
		}
		if err != nil {
			return n, err
		}

		logger.Debug("sweep exported", slog.Int64("id", sweep.ID), slog.String("file", name))
		n++
	}

	return n, iter.Error()
}

func writeParquetFile(name string, sweep *storage.Sweep) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("creating parquet file: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	return eis.WriteParquet(f, sweep.Result())
}
