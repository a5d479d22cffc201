package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qkdlab/bb84sim/bb84"
)

// replay <file>: print a recording.
func replayCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Print a recording made with run --record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			events, err := bb84.ReadEvents(f)
			p := printer{w: cmd.OutOrStdout(), stats: verbose}
			for _, e := range events {
				p.Emit(e)
			}
			if err != nil {
				return fmt.Errorf("replaying %s: %w", args[0], err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print stats snapshots")
	return cmd
}
