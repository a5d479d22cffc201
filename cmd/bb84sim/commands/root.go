package commands

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/qkdlab/bb84sim/internal/config"
	"github.com/qkdlab/bb84sim/internal/logger"
)

var (
	cfg *config.Config
	log zerolog.Logger

	logLevel  string
	logPretty bool
)

// Execute runs the CLI against os.Args. Errors are returned rather than
// printed; once flags are parsed the global zerolog logger is configured to
// report them.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bb84sim",
		Short:         "BB84 quantum key distribution simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("log-pretty") {
				cfg.LogPretty = logPretty
			}
			log = logger.New(logger.Config{
				Level:  cfg.LogLevel,
				Pretty: cfg.LogPretty,
				Out:    cmd.ErrOrStderr(),
			})
			logger.SetGlobalLogger(log)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error (default $BB84_LOG_LEVEL)")
	root.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "human readable logs (default $BB84_LOG_PRETTY)")

	root.AddCommand(runCmd(), serveCmd(), replayCmd(), benchCmd())
	return root
}
