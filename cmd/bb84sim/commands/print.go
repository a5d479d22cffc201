package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/qkdlab/bb84sim/bb84"
)

// printer is a bb84.Sink rendering events as text, one line each.
type printer struct {
	w io.Writer
	// stats enables printing of StatsSnapshots.
	stats bool
}

func (p printer) Emit(e bb84.Event) {
	switch e := e.(type) {
	case bb84.QubitEvent:
		var flags []string
		if e.Sifted() {
			flags = append(flags, "sifted")
			if e.Bit != e.MeasuredBit {
				flags = append(flags, "ERROR")
			}
		}
		if e.Intercepted {
			flags = append(flags, "intercepted")
		}
		if e.Detected {
			flags = append(flags, "detected")
		}
		fmt.Fprintf(p.w, "%5d  bit=%d %s->%s measured=%d  (%+.2f, %+.2f, %+.2f)  %s\n",
			e.Seq, e.Bit, e.SenderBasis, e.ReceiverBasis, e.MeasuredBit,
			e.X, e.Y, e.Z, strings.Join(flags, " "))
	case bb84.StatsSnapshot:
		if p.stats {
			fmt.Fprintf(p.w, "stats  sent=%d intercepts=%d detections=%d qber=%.4f\n",
				e.TotalSent, e.Intercepts, e.Detections, e.RunningQBER)
		}
	case bb84.SessionSummary:
		printSummary(p.w, e)
	case bb84.ResetAck:
		fmt.Fprintln(p.w, "reset")
	}
}

func printSummary(w io.Writer, s bb84.SessionSummary) {
	fmt.Fprintf(w, "\nsent:        %d\n", s.TotalSent)
	fmt.Fprintf(w, "intercepts:  %d\n", s.Intercepts)
	fmt.Fprintf(w, "detections:  %d\n", s.Detections)
	fmt.Fprintf(w, "key length:  %d\n", s.KeyLength)
	fmt.Fprintf(w, "efficiency:  %.1f%%\n", s.Efficiency*100)
	fmt.Fprintf(w, "qber:        %.2f%%\n", s.FinalQBER*100)
	fmt.Fprintf(w, "verdict:     %s\n", s.Verdict)
	if s.Intercepts > 0 {
		fmt.Fprintf(w, "eve gain:    %.2f\n", s.EveInformationGain)
	}
}

// printKeys prints both sifted keys of s and how many positions differ.
func printKeys(w io.Writer, s *bb84.Session) {
	sender, receiver := s.Keys()
	fmt.Fprintf(w, "sender key:   %s\n", sender)
	fmt.Fprintf(w, "receiver key: %s\n", receiver)
	fmt.Fprintf(w, "mismatches:   %d\n", sender.XOr(receiver).CountOnes())
}
