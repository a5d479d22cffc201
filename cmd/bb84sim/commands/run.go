package commands

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qkdlab/bb84sim/bb84"
	"github.com/qkdlab/bb84sim/bb84/photon"
)

// seededSource returns a source seeded with seed, falling back to the
// configured seed and then the clock when it is 0.
func seededSource(seed int64) photon.Source {
	if seed == 0 {
		seed = cfg.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return photon.NewSource(rand.New(rand.NewSource(seed)))
}

// run: simulate one run and print it.
func runCmd() *cobra.Command {
	var (
		qubits  int
		eve     bool
		attack  float64
		detect  float64
		seed    int64
		record  string
		report  int
		delay   time.Duration
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate one BB84 run and print every qubit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("qubits") {
				qubits = cfg.DefaultQubits
			}
			if !cmd.Flags().Changed("report") {
				report = cfg.ReportInterval
			}

			sinks := []bb84.Sink{printer{w: cmd.OutOrStdout(), stats: verbose}}
			var rec *bb84.Recorder
			if record != "" {
				f, err := os.Create(record)
				if err != nil {
					return fmt.Errorf("creating recording: %w", err)
				}
				defer f.Close()
				rec = bb84.NewRecorder(f)
				sinks = append(sinks, rec)
			}

			s, err := bb84.NewSession(bb84.SessionOpts{
				Source:         seededSource(seed),
				Sink:           bb84.MultiSink(sinks...),
				Log:            &log,
				ReportInterval: report,
				StepDelay:      delay,
				Eve:            photon.EveConfigFromPercent(eve, attack, detect),
			})
			if err != nil {
				return err
			}
			if err := s.Start(qubits); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := s.Wait(ctx); err != nil {
				if err := s.Stop(); err == nil {
					if sum, ok := s.Summary(); ok {
						printSummary(cmd.OutOrStdout(), sum)
					}
				}
				_ = s.Wait(context.Background())
			}
			if verbose {
				printKeys(cmd.OutOrStdout(), s)
			}

			if rec != nil {
				if err := rec.Err(); err != nil {
					return err
				}
				log.Info().Str("file", record).Int("frames", rec.Frames()).Msg("recording written")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&qubits, "qubits", "n", 50, "qubits to send (default $BB84_DEFAULT_QUBITS)")
	cmd.Flags().BoolVar(&eve, "eve", false, "enable the intercept-resend eavesdropper")
	cmd.Flags().Float64Var(&attack, "attack", 69, "percentage of qubits Eve intercepts")
	cmd.Flags().Float64Var(&detect, "detect", 11, "percentage of interceptions flagged as detected")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed; 0 uses $BB84_SEED or the clock")
	cmd.Flags().StringVar(&record, "record", "", "write every event to this file")
	cmd.Flags().IntVar(&report, "report", 1, "qubits between stats snapshots (default $BB84_REPORT_INTERVAL)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "pause between qubits")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print stats snapshots and both sifted keys")
	return cmd
}
