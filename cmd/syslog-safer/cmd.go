package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joeycumines/logiface"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/joeycumines/go-syslogsafer/config"
	"github.com/joeycumines/go-syslogsafer/internal/logging"
)

type runFunc func(ctx context.Context, cfg config.Config, logger *logiface.Logger[logiface.Event]) error

const longDescription = `If syslogd (or similar) blocks, every process using syslog hangs with it.

syslog-safer copies from the source (usually /dev/log) to the destination,
and is never blocked by the destination. It reads the source as fast as
possible, storing everything in a fixed size buffer, which is drained to the
destination. If the buffer is full, the oldest data is dropped.

Flags override values from the config file, which override the defaults.`

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	`source`:    `source`,
	`dest`:      `dest`,
	`transport`: `transport`,
	`pidfile`:   `pidfile`,
	`notify`:    `notify_file`,
	`buffer`:    `buffer_size`,
	`verbose`:   `verbose`,
}

func newRootCommand(stderr io.Writer, run runFunc) *cobra.Command {
	var (
		configPath string
		defaults   = config.Default()
		flags      = defaults
	)

	cmd := &cobra.Command{
		Use:   `syslog-safer -d dest [flags]`,
		Short: `Relay syslog through a drop-oldest buffer, never blocking the source`,
		Long:  longDescription,
		Args:  cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, overrides(cmd.Flags(), &flags))
			if err != nil {
				return err
			}

			logger := logging.New(stderr, logging.Level(cfg.Verbose))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, os.Interrupt)
			defer stop()

			return run(ctx, *cfg, logger)
		},
	}

	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.SortFlags = false
	f.StringVarP(&flags.Source, `source`, `s`, defaults.Source, `source socket path`)
	f.StringVarP(&flags.Dest, `dest`, `d`, ``, `destination socket path (required), e.g. /dev/xlog`)
	f.VarP(&flags.Transport, `transport`, `t`, `socket type of both endpoints, stream or dgram`)
	f.StringVarP(&flags.PidFile, `pidfile`, `p`, defaults.PidFile, `pid file path, empty to disable`)
	f.StringVarP(&flags.NotifyFile, `notify`, `n`, ``, `file overwritten on each drop, empty to disable`)
	f.VarP(&flags.BufferSize, `buffer`, `b`, `buffer size, at least 8M, K/M/G units are binary`)
	f.BoolVarP(&flags.Verbose, `verbose`, `v`, false, `debug logging, including every buffered segment`)
	f.StringVarP(&configPath, `config`, `c`, ``, `optional YAML config file`)

	return cmd
}

// overrides returns the config values of the flags that were explicitly set.
func overrides(fs *pflag.FlagSet, flags *config.Config) map[string]interface{} {
	values := map[string]interface{}{
		`source`:    flags.Source,
		`dest`:      flags.Dest,
		`transport`: flags.Transport.String(),
		`pidfile`:   flags.PidFile,
		`notify`:    flags.NotifyFile,
		`buffer`:    strconv.FormatUint(uint64(flags.BufferSize), 10),
		`verbose`:   flags.Verbose,
	}
	m := make(map[string]interface{})
	fs.Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			m[key] = values[f.Name]
		}
	})
	return m
}
