package commands

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/qkdlab/bb84sim/bb84"
	"github.com/qkdlab/bb84sim/bb84/photon"
)

// inputs are the swept flags, in the order they vary (last fastest).
var inputs = []string{"qubits", "attack", "detect", "seed"}

var columns = []string{
	"Qubits", "Attack", "Detect", "Seed",
	"Intercepts", "Detections", "KeyBits", "QBER", "Verdict", "Efficiency",
}

// An Experiment packages together the parameters and results of benchmarking
// a single parameterization for easy formatting.
type Experiment struct {
	// Inputs
	Qubits int
	Attack float64
	Detect float64
	Seed   int

	// Outputs
	Intercepts int
	Detections int
	KeyBits    int
	QBER       float64
	Verdict    bb84.Verdict
	Efficiency float64
}

// bench: sweep the cartesian product of the given parameters.
func benchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run one session per parameter combination and print CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var vals [][]interface{}
			for _, inp := range inputs {
				v, err := lookupInput(cmd.Flags(), inp)
				if err != nil {
					return err
				}
				vals = append(vals, v)
			}
			return sweep(cmd.Context(), cmd.OutOrStdout(), vals)
		},
	}
	cmd.Flags().IntSlice("qubits", []int{1000}, "qubits sent per session")
	cmd.Flags().Float64Slice("attack", []float64{0, 25, 50, 100}, "percentages of qubits Eve intercepts")
	cmd.Flags().Float64Slice("detect", []float64{11}, "percentages of interceptions flagged as detected")
	cmd.Flags().IntSlice("seed", []int{42}, "random seeds")
	return cmd
}

func sweep(ctx context.Context, w io.Writer, vals [][]interface{}) error {
	fmt.Fprintln(w, header())
	tmpl := template.Must(template.New("line").Parse(lineTmpl()))
	var err error
	applyCartesian(func(args []interface{}) {
		if err != nil {
			return
		}
		exp := &Experiment{
			Qubits: args[inpIndex("qubits")].(int),
			Attack: args[inpIndex("attack")].(float64),
			Detect: args[inpIndex("detect")].(float64),
			Seed:   args[inpIndex("seed")].(int),
		}
		if err = bench(ctx, exp); err != nil {
			err = fmt.Errorf("benching %+v: %w", *exp, err)
			return
		}
		if err = tmpl.Execute(w, exp); err != nil {
			err = fmt.Errorf("BUG: could not fill in line template: %w", err)
		}
	}, vals)
	return err
}

func bench(ctx context.Context, exp *Experiment) error {
	s, err := bb84.NewSession(bb84.SessionOpts{
		Source:         photon.NewSource(rand.New(rand.NewSource(int64(exp.Seed)))),
		ReportInterval: exp.Qubits,
		Eve:            photon.EveConfigFromPercent(exp.Attack > 0, exp.Attack, exp.Detect),
	})
	if err != nil {
		return err
	}
	if err := s.Start(exp.Qubits); err != nil {
		return err
	}
	if err := s.Wait(ctx); err != nil {
		return err
	}
	sum, _ := s.Summary()
	exp.Intercepts = sum.Intercepts
	exp.Detections = sum.Detections
	exp.KeyBits = sum.KeyLength
	exp.QBER = sum.FinalQBER
	exp.Verdict = sum.Verdict
	exp.Efficiency = sum.Efficiency
	return nil
}

func inpIndex(v string) int {
	for i, inp := range inputs {
		if inp == v {
			return i
		}
	}
	return -1
}

func header() string {
	return strings.Join(columns, ", ")
}

func lineTmpl() string {
	var els []string
	for _, c := range columns {
		els = append(els, "{{."+c+"}}")
	}
	return strings.Join(els, ", ") + "\n"
}

func lookupInput(fs *pflag.FlagSet, name string) ([]interface{}, error) {
	var r []interface{}
	if v, err := fs.GetIntSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := fs.GetFloat64Slice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else {
		return nil, fmt.Errorf("unknown type for input %s", name)
	}
	if len(r) == 0 {
		return nil, fmt.Errorf("no values for input %s", name)
	}
	return r, nil
}

// applyCartesian calls f once for every combination drawing one value from
// each of args.
func applyCartesian(f func([]interface{}), args [][]interface{}) {
	for i := range args {
		if len(args[i]) == 1 {
			continue
		}
		l := make([][]interface{}, len(args))
		r := make([][]interface{}, len(args))
		copy(l, args)
		copy(r, args)
		l[i] = args[i][:1]
		r[i] = args[i][1:]
		applyCartesian(f, l)
		applyCartesian(f, r)
		return
	}
	x := make([]interface{}, 0, len(args))
	for _, a := range args {
		x = append(x, a[0])
	}
	f(x)
}
